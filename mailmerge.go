package mailmerge

import (
	"context"
	"time"

	"github.com/lattiq/mailmerge/internal/core"
)

// Type aliases to re-export core types for the public API.
type (
	Transport         = core.Transport
	TransportSettings = core.TransportSettings
	TransportError    = core.TransportError
	ValidationError   = core.ValidationError
	Record            = core.Record
	Payload           = core.Payload
	Receipt           = core.Receipt
	Outcome           = core.Outcome
	Result            = core.Result
	RunSummary        = core.RunSummary
)

// Outcome constants
const (
	OutcomeSent      = core.OutcomeSent
	OutcomeSkipped   = core.OutcomeSkipped
	OutcomeFailed    = core.OutcomeFailed
	OutcomePreviewed = core.OutcomePreviewed
)

// Error constructor and classification functions
var (
	NewValidationError          = core.NewValidationError
	NewValidationErrorWithValue = core.NewValidationErrorWithValue
	NewTransportError           = core.NewTransportError
	IsTransient                 = core.IsTransient
	IsTransientStatus           = core.IsTransientStatus
)

// Public interfaces for the mailmerge library
type (
	// Sleeper blocks for d or until ctx is done, whichever comes first.
	// It returns ctx.Err() when the context ends the wait early.
	Sleeper func(ctx context.Context, d time.Duration) error

	// Jitter returns a random duration in [0, max).
	Jitter func(max time.Duration) time.Duration
)

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
