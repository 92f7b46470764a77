package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Transport defines the single capability the dispatch engine needs from a mail service:
// deliver an already-encoded message on behalf of an authenticated user.
type Transport interface {
	// Send delivers the encoded message.
	// Failures should be reported as *TransportError so they can be classified.
	Send(ctx context.Context, userID string, payload Payload) (*Receipt, error)

	// Name returns the transport's name for identification and logging.
	Name() string
}

// TransportSettings represents configuration settings for a transport.
type TransportSettings map[string]string

// Get retrieves a configuration value by key.
func (ts TransportSettings) Get(key string) string {
	return ts[key]
}

// GetOr retrieves a configuration value by key, falling back to def when unset.
func (ts TransportSettings) GetOr(key, def string) string {
	if v := ts[key]; v != "" {
		return v
	}
	return def
}

// Set sets a configuration value.
func (ts TransportSettings) Set(key, value string) {
	ts[key] = value
}

// EmailField is the record field holding the recipient address.
const EmailField = "Email"

// Record is one row of recipient input, keyed by header name.
type Record map[string]string

// Email returns the trimmed recipient address, or "" if absent.
func (r Record) Email() string {
	return strings.TrimSpace(r[EmailField])
}

// Field returns the trimmed value of the named field.
func (r Record) Field(name string) string {
	return strings.TrimSpace(r[name])
}

// Payload is the wire form of a message: the canonical MIME bytes in unpadded
// base64url encoding.
type Payload struct {
	Raw string `json:"raw"`
}

// NewPayload encodes canonical message bytes.
func NewPayload(message []byte) Payload {
	return Payload{Raw: base64.RawURLEncoding.EncodeToString(message)}
}

// Decode returns the canonical message bytes.
func (p Payload) Decode() ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(p.Raw)
}

// Size returns the length of the encoded payload.
func (p Payload) Size() int {
	return len(p.Raw)
}

// Receipt contains the result of a successful send.
type Receipt struct {
	// MessageID is the identifier assigned by the transport.
	MessageID string

	// ThreadID is the conversation identifier, when the transport has one.
	ThreadID string

	// Transport is the name of the transport that accepted the message.
	Transport string

	// Timestamp when the message was accepted.
	Timestamp time.Time
}

// Outcome is the per-recipient result of a dispatch.
type Outcome int

const (
	// OutcomeSent indicates the transport accepted the message.
	OutcomeSent Outcome = iota

	// OutcomeSkipped indicates the record had no email address.
	OutcomeSkipped

	// OutcomeFailed indicates retries were exhausted or the failure was permanent.
	OutcomeFailed

	// OutcomePreviewed indicates the message was built but not sent (dry run).
	OutcomePreviewed
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	case OutcomePreviewed:
		return "previewed"
	default:
		return "unknown"
	}
}

// Result is the outcome of dispatching a single record.
type Result struct {
	// Index is the 1-based position of the record in the input.
	Index int

	// Email is the recipient address (empty for skipped records).
	Email string

	// Subject is the rendered subject.
	Subject string

	// Outcome is the final state for this record.
	Outcome Outcome

	// Attempts is the number of transport calls made.
	Attempts int

	// Attachments is the number of files attached.
	Attachments int

	// Receipt is set when the message was sent.
	Receipt *Receipt

	// Err is the reason for a failure.
	Err error
}

// RunSummary aggregates the results of a dispatch run.
type RunSummary struct {
	// RunID identifies the run in logs and traces.
	RunID string

	Sent      int
	Failed    int
	Skipped   int
	Previewed int
	Total     int

	// Results holds one entry per processed record, in input order.
	Results []Result
}

// Record adds a result to the summary counters.
func (s *RunSummary) Record(r Result) {
	switch r.Outcome {
	case OutcomeSent:
		s.Sent++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	case OutcomePreviewed:
		s.Previewed++
	}
	s.Results = append(s.Results, r)
}

// String returns the one-line summary.
func (s *RunSummary) String() string {
	return fmt.Sprintf("sent=%d failed=%d skipped=%d total=%d", s.Sent, s.Failed, s.Skipped, s.Total)
}

// ValidationError represents a validation error with specific field information.
type ValidationError struct {
	// Field is the name of the field that failed validation.
	Field string

	// Message is the validation error message.
	Message string

	// Value is the invalid value (optional).
	Value interface{}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation error in %s: %s (value: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Is implements error matching for errors.Is.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// TransportError represents a failure reported by a transport.
type TransportError struct {
	// Transport is the name of the transport that generated the error.
	Transport string

	// Code is the transport-specific error code.
	Code string

	// Message is the error message from the transport.
	Message string

	// StatusCode is the HTTP (or HTTP-equivalent) status code, 0 if unknown.
	StatusCode int

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport %s error [%s] (status: %d): %s",
			e.Transport, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("transport %s error [%s]: %s", e.Transport, e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the status code is in the transient set.
func (e *TransportError) Retryable() bool {
	return IsTransientStatus(e.StatusCode)
}

// RetryableError interface indicates whether an error can be retried.
type RetryableError interface {
	Retryable() bool
}

// NewTransportError creates a new transport error.
func NewTransportError(transport, code string, statusCode int, cause error) *TransportError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &TransportError{
		Transport:  transport,
		Code:       code,
		Message:    msg,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewValidationErrorWithValue creates a new validation error with a value.
func NewValidationErrorWithValue(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// IsTransientStatus reports whether a status code signals quota exhaustion, rate
// limiting, or temporary server trouble.
func IsTransientStatus(status int) bool {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}

// IsTransient checks if an error is worth retrying after a delay.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}

	return false
}

// StatusCode extracts the status code from a transport error, or 0.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
