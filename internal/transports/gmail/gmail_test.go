package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/mailmerge/internal/core"
)

func newTestTransport(t *testing.T, handler http.HandlerFunc) *Transport {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tr, err := New(context.Background(), core.TransportSettings{},
		WithHTTPClient(srv.Client()),
		WithEndpoint(srv.URL+"/"),
		WithUserAgent("mailmerge/test"),
	)
	require.NoError(t, err)
	return tr
}

func TestTransport_Send(t *testing.T) {
	t.Parallel()

	payload := core.NewPayload([]byte("To: a@example.com\r\n\r\nhi"))

	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/gmail/v1/users/me/messages/send", r.URL.Path)
		assert.Contains(t, r.Header.Get("User-Agent"), "mailmerge/test")

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, payload.Raw, body["raw"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg-1","threadId":"thread-1"}`))
	})

	receipt, err := tr.Send(context.Background(), "me", payload)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", receipt.MessageID)
	assert.Equal(t, "thread-1", receipt.ThreadID)
	assert.Equal(t, "gmail", receipt.Transport)
	assert.Equal(t, "gmail", tr.Name())
}

func TestTransport_SendClassifiesStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		reason    string
		transient bool
	}{
		{http.StatusTooManyRequests, "rateLimitExceeded", true},
		{http.StatusForbidden, "dailyLimitExceeded", true},
		{http.StatusInternalServerError, "backendError", true},
		{http.StatusServiceUnavailable, "backendError", true},
		{http.StatusBadRequest, "invalidArgument", false},
		{http.StatusNotFound, "notFound", false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":    tt.status,
						"message": tt.reason,
						"errors":  []map[string]any{{"reason": tt.reason, "message": tt.reason}},
					},
				})
			})

			_, err := tr.Send(context.Background(), "me", core.NewPayload([]byte("x")))
			require.Error(t, err)

			var te *core.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.status, te.StatusCode)
			assert.Equal(t, tt.reason, te.Code)
			assert.Equal(t, tt.transient, core.IsTransient(err))
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), core.TransportSettings{
		"credentials_file": t.TempDir() + "/missing.json",
	})
	assert.Error(t, err)
}
