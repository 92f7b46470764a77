// Package gmail delivers encoded messages through the Gmail API.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/lattiq/mailmerge/internal/auth"
	"github.com/lattiq/mailmerge/internal/core"
	"github.com/lattiq/mailmerge/internal/logger"
)

const name = "gmail"

// Default settings file names.
const (
	DefaultCredentialsFile = "credentials.json"
	DefaultTokenFile       = "token.json"
)

// Option configures the transport.
type Option func(*options)

type options struct {
	userAgent  string
	logger     *slog.Logger
	httpClient *http.Client
	endpoint   string
}

// WithUserAgent adds a user agent fragment to API requests.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// WithLogger sets the logger used for token refresh messages.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHTTPClient uses an already authorized client instead of the stored token.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithEndpoint overrides the API base URL.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// Transport implements core.Transport for the Gmail API.
type Transport struct {
	svc *gmail.Service
}

// New creates a Gmail transport. Unless WithHTTPClient is given, requests are
// authorized with the token stored at settings["token_file"] using the client
// credentials at settings["credentials_file"].
func New(ctx context.Context, settings core.TransportSettings, opts ...Option) (*Transport, error) {
	o := options{logger: logger.NewNope()}
	for _, opt := range opts {
		opt(&o)
	}

	client := o.httpClient
	if client == nil {
		cfg, err := auth.ConfigFromFile(settings.GetOr("credentials_file", DefaultCredentialsFile))
		if err != nil {
			return nil, err
		}

		store := auth.NewTokenStore(settings.GetOr("token_file", DefaultTokenFile))
		client, err = auth.HTTPClient(ctx, cfg, store, o.logger)
		if err != nil {
			return nil, err
		}
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(client)}
	if o.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(o.endpoint))
	}

	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	svc.UserAgent = o.userAgent

	return &Transport{svc: svc}, nil
}

// Send submits the payload as a raw message on behalf of userID.
func (t *Transport) Send(ctx context.Context, userID string, payload core.Payload) (*core.Receipt, error) {
	msg, err := t.svc.Users.Messages.Send(userID, &gmail.Message{Raw: payload.Raw}).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}

	return &core.Receipt{
		MessageID: msg.Id,
		ThreadID:  msg.ThreadId,
		Transport: name,
		Timestamp: time.Now(),
	}, nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return name
}

func classify(err error) *core.TransportError {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		code := "api_error"
		if len(apiErr.Errors) > 0 && apiErr.Errors[0].Reason != "" {
			code = apiErr.Errors[0].Reason
		}
		return core.NewTransportError(name, code, apiErr.Code, err)
	}
	return core.NewTransportError(name, "request_error", 0, err)
}
