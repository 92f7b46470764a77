// Package auth loads OAuth2 client credentials and persists user tokens for the
// Gmail transport.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/lattiq/mailmerge/internal/logger"
)

var (
	// ErrTokenNotFound indicates no token has been stored yet.
	ErrTokenNotFound = errors.New("oauth token not found, run `mailmerge auth` first")

	// ErrMissingCredentials indicates the client credentials file was not configured.
	ErrMissingCredentials = errors.New("oauth credentials file is required")
)

// DefaultScopes returns the scopes needed to send mail.
func DefaultScopes() []string {
	return []string{gmail.GmailSendScope}
}

// ConfigFromFile reads a Google client credentials file (installed or web application).
func ConfigFromFile(path string, scopes ...string) (*oauth2.Config, error) {
	if path == "" {
		return nil, ErrMissingCredentials
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes()
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return cfg, nil
}

// AuthCodeURL returns the consent page URL. Offline access is requested so the
// stored token carries a refresh token.
func AuthCodeURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// TokenStore persists a token as JSON in a file.
type TokenStore struct {
	path string
	mu   sync.Mutex
}

// NewTokenStore creates a store backed by path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path returns the backing file path.
func (s *TokenStore) Path() string {
	return s.path
}

// Load reads the stored token.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return &tok, nil
}

// Save writes tok with owner-only permissions.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// persistingSource saves every token the wrapped source issues that differs
// from the last one seen.
type persistingSource struct {
	src    oauth2.TokenSource
	store  *TokenStore
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken != p.last {
		if err := p.store.Save(tok); err != nil {
			p.logger.Warn("failed to persist refreshed token", slog.String("error", err.Error()))
		} else {
			p.logger.Debug("persisted refreshed token", slog.Time("expiry", tok.Expiry))
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

// TokenSource returns a source that refreshes the stored token when it expires
// and writes refreshed tokens back to the store.
func TokenSource(ctx context.Context, cfg *oauth2.Config, store *TokenStore, log *slog.Logger) (oauth2.TokenSource, error) {
	tok, err := store.Load()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNope()
	}

	ps := &persistingSource{
		src:    cfg.TokenSource(ctx, tok),
		store:  store,
		logger: log,
		last:   tok.AccessToken,
	}
	return oauth2.ReuseTokenSource(tok, ps), nil
}

// HTTPClient returns a client that authorizes requests with the stored token.
func HTTPClient(ctx context.Context, cfg *oauth2.Config, store *TokenStore, log *slog.Logger) (*http.Client, error) {
	ts, err := TokenSource(ctx, cfg, store, log)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

// Exchange trades an authorization code for a token and stores it.
func Exchange(ctx context.Context, cfg *oauth2.Config, store *TokenStore, code string) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if err := store.Save(tok); err != nil {
		return nil, err
	}
	return tok, nil
}
