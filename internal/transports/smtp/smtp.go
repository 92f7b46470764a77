// Package smtp delivers encoded messages to an SMTP relay.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/lattiq/mailmerge/internal/core"
	"github.com/lattiq/mailmerge/internal/message"
)

const name = "smtp"

// Dialer opens an SMTP session. *gomail.Dialer satisfies it.
type Dialer interface {
	Dial() (gomail.SendCloser, error)
}

// Transport implements core.Transport over SMTP.
// Each Send opens its own session.
type Transport struct {
	dialer Dialer
	host   string
}

// New creates an SMTP transport from settings: host, port, username, password,
// tls_skip_verify and ssl.
func New(settings core.TransportSettings) (*Transport, error) {
	host := settings.Get("host")
	if host == "" {
		return nil, core.NewValidationError("host", "SMTP host is required")
	}

	port, err := strconv.Atoi(settings.GetOr("port", "587"))
	if err != nil {
		return nil, core.NewValidationErrorWithValue("port", "invalid port number", settings.Get("port"))
	}

	d := gomail.NewDialer(host, port, settings.Get("username"), settings.Get("password"))
	d.SSL = settings.Get("ssl") == "true"
	d.TLSConfig = &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}
	if settings.Get("tls_skip_verify") == "true" {
		d.TLSConfig.InsecureSkipVerify = true
	}

	return NewWithDialer(d, host), nil
}

// NewWithDialer creates a transport that opens sessions with d.
func NewWithDialer(d Dialer, host string) *Transport {
	return &Transport{dialer: d, host: host}
}

// Send relays the message. The envelope is taken from the From and To headers.
func (t *Transport) Send(ctx context.Context, _ string, payload core.Payload) (*core.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := payload.Decode()
	if err != nil {
		return nil, core.NewTransportError(name, "invalid_payload", http.StatusBadRequest, err)
	}

	from, to, err := message.Envelope(raw)
	if err != nil {
		return nil, core.NewTransportError(name, "invalid_message", http.StatusBadRequest, err)
	}

	sc, err := t.dialer.Dial()
	if err != nil {
		return nil, classify("dial_error", err)
	}
	defer sc.Close()

	if err := sc.Send(from, to, bytes.NewReader(raw)); err != nil {
		return nil, classify("send_error", err)
	}

	return &core.Receipt{
		MessageID: fmt.Sprintf("%d@%s", time.Now().UnixNano(), t.host),
		Transport: name,
		Timestamp: time.Now(),
	}, nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return name
}

// classify maps SMTP replies onto HTTP-equivalent statuses: 4xx replies and
// network failures are transient, 5xx replies are permanent.
func classify(code string, err error) *core.TransportError {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch {
		case tpErr.Code >= 400 && tpErr.Code < 500:
			return core.NewTransportError(name, strconv.Itoa(tpErr.Code), http.StatusServiceUnavailable, err)
		case tpErr.Code >= 500:
			return core.NewTransportError(name, strconv.Itoa(tpErr.Code), http.StatusBadRequest, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return core.NewTransportError(name, code, http.StatusServiceUnavailable, err)
	}

	return core.NewTransportError(name, code, 0, err)
}
