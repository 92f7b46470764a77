package mailmerge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lattiq/mailmerge/internal/transports/gmail"
	"github.com/lattiq/mailmerge/internal/transports/mailgun"
	"github.com/lattiq/mailmerge/internal/transports/ses"
	"github.com/lattiq/mailmerge/internal/transports/smtp"
)

// NewTransport creates the transport selected by cfg.
func NewTransport(ctx context.Context, cfg TransportConfig, log *slog.Logger) (Transport, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = TransportSettings{}
	}

	var (
		t   Transport
		err error
	)

	switch cfg.Type {
	case TransportGmail, "":
		t, err = gmail.New(ctx, settings, gmail.WithUserAgent(UserAgent()), gmail.WithLogger(log))
	case TransportSES:
		t, err = ses.New(ctx, settings)
	case TransportSMTP:
		t, err = smtp.New(settings)
	case TransportMailgun:
		t, err = mailgun.New(settings)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	return WithSendTimeout(t, cfg.Timeout), nil
}

// WithSendTimeout bounds every Send call of t. A non-positive timeout returns t.
func WithSendTimeout(t Transport, timeout time.Duration) Transport {
	if timeout <= 0 {
		return t
	}
	return &timeoutTransport{next: t, timeout: timeout}
}

type timeoutTransport struct {
	next    Transport
	timeout time.Duration
}

func (t *timeoutTransport) Send(ctx context.Context, userID string, payload Payload) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Send(ctx, userID, payload)
}

func (t *timeoutTransport) Name() string {
	return t.next.Name()
}
