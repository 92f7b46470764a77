// Package mailgun delivers encoded messages through the Mailgun MIME API.
package mailgun

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/lattiq/mailmerge/internal/core"
	"github.com/lattiq/mailmerge/internal/message"
)

const name = "mailgun"

// Sender is the subset of the Mailgun client used by the transport.
type Sender interface {
	Send(ctx context.Context, m *mailgun.Message) (string, string, error)
}

// Transport implements core.Transport for Mailgun.
type Transport struct {
	client Sender
}

// New creates a Mailgun transport from settings: api_key, domain and base_url.
func New(settings core.TransportSettings) (*Transport, error) {
	apiKey := settings.Get("api_key")
	if apiKey == "" {
		return nil, core.NewValidationError("api_key", "Mailgun API key is required")
	}

	domain := settings.Get("domain")
	if domain == "" {
		return nil, core.NewValidationError("domain", "Mailgun domain is required")
	}

	client := mailgun.NewMailgun(domain, apiKey)
	if baseURL := settings.Get("base_url"); baseURL != "" {
		client.SetAPIBase(baseURL)
	}

	return NewWithClient(client), nil
}

// NewWithClient creates a transport around an existing client.
func NewWithClient(client Sender) *Transport {
	return &Transport{client: client}
}

// Send posts the message as MIME. Recipients are taken from the To header.
func (t *Transport) Send(ctx context.Context, _ string, payload core.Payload) (*core.Receipt, error) {
	raw, err := payload.Decode()
	if err != nil {
		return nil, core.NewTransportError(name, "invalid_payload", http.StatusBadRequest, err)
	}

	_, to, err := message.Envelope(raw)
	if err != nil {
		return nil, core.NewTransportError(name, "invalid_message", http.StatusBadRequest, err)
	}

	m := mailgun.NewMIMEMessage(io.NopCloser(bytes.NewReader(raw)), to...)

	_, id, err := t.client.Send(ctx, m)
	if err != nil {
		status := mailgun.GetStatusFromErr(err)
		if status < 0 {
			status = 0
		}
		return nil, core.NewTransportError(name, "send_failed", status, err)
	}

	return &core.Receipt{
		MessageID: id,
		Transport: name,
		Timestamp: time.Now(),
	}, nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return name
}
