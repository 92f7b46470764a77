package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransientStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{403, 429, 500, 503} {
		assert.True(t, IsTransientStatus(status), status)
	}
	for _, status := range []int{0, 200, 400, 401, 404, 502, 504} {
		assert.False(t, IsTransientStatus(status), status)
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	transient := NewTransportError("gmail", "rateLimitExceeded", http.StatusTooManyRequests, errors.New("slow down"))
	permanent := NewTransportError("gmail", "invalidArgument", http.StatusBadRequest, errors.New("bad"))

	assert.True(t, IsTransient(transient))
	assert.True(t, IsTransient(fmt.Errorf("attempt 1: %w", transient)))
	assert.False(t, IsTransient(permanent))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsTransient(nil))
}

func TestStatusCode(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrapped: %w", NewTransportError("ses", "Throttling", 429, nil))
	assert.Equal(t, 429, StatusCode(err))
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
}

func TestTransportError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := NewTransportError("smtp", "send_error", 0, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "transport smtp error [send_error]: connection reset", err.Error())

	withStatus := NewTransportError("gmail", "backendError", 503, cause)
	assert.Contains(t, withStatus.Error(), "(status: 503)")
}

func TestPayload_RoundTrip(t *testing.T) {
	t.Parallel()

	msg := []byte("Subject: ??>>\r\n\r\n\xff\xfe body")
	p := NewPayload(msg)

	assert.NotContains(t, p.Raw, "=")
	assert.NotContains(t, p.Raw, "+")
	assert.NotContains(t, p.Raw, "/")
	assert.Equal(t, len(p.Raw), p.Size())

	decoded, err := p.Decode()
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestRecord_Email(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ada@example.com", Record{"Email": "  ada@example.com "}.Email())
	assert.Equal(t, "", Record{"Email": "   "}.Email())
	assert.Equal(t, "", Record{"Name": "Ada"}.Email())
}

func TestRunSummary_Record(t *testing.T) {
	t.Parallel()

	s := &RunSummary{Total: 5}
	s.Record(Result{Index: 1, Outcome: OutcomeSent})
	s.Record(Result{Index: 2, Outcome: OutcomeSkipped})
	s.Record(Result{Index: 3, Outcome: OutcomeFailed})
	s.Record(Result{Index: 4, Outcome: OutcomeSent})
	s.Record(Result{Index: 5, Outcome: OutcomePreviewed})

	assert.Equal(t, 2, s.Sent)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Previewed)
	assert.Len(t, s.Results, 5)
	assert.Equal(t, "sent=2 failed=1 skipped=1 total=5", s.String())
}

func TestOutcome_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sent", OutcomeSent.String())
	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
	assert.Equal(t, "previewed", OutcomePreviewed.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}

func TestTransportSettings(t *testing.T) {
	t.Parallel()

	s := TransportSettings{}
	s.Set("region", "eu-west-1")
	assert.Equal(t, "eu-west-1", s.Get("region"))
	assert.Equal(t, "587", s.GetOr("port", "587"))
	assert.Equal(t, "eu-west-1", s.GetOr("region", "us-east-1"))
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	err := NewValidationErrorWithValue("batch_size", "must not be negative", -1)
	assert.Equal(t, "validation error in batch_size: must not be negative (value: -1)", err.Error())
	assert.ErrorIs(t, fmt.Errorf("config: %w", err), &ValidationError{})
}
