package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const installedCredentials = `{
  "installed": {
    "client_id": "client-id.apps.googleusercontent.com",
    "client_secret": "secret",
    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
    "token_uri": "https://oauth2.googleapis.com/token",
    "redirect_uris": ["http://localhost"]
  }
}`

func tokenServer(t *testing.T, accessToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  accessToken,
			"token_type":    "Bearer",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/auth",
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: "http://localhost",
		Scopes:      DefaultScopes(),
	}
}

func TestConfigFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(installedCredentials), 0o600))

	cfg, err := ConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "client-id.apps.googleusercontent.com", cfg.ClientID)
	assert.Equal(t, DefaultScopes(), cfg.Scopes)

	_, err = ConfigFromFile("")
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = ConfigFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestAuthCodeURL_RequestsOfflineAccess(t *testing.T) {
	t.Parallel()

	url := AuthCodeURL(testConfig("https://token.example.com"), "state-1")
	assert.Contains(t, url, "access_type=offline")
	assert.Contains(t, url, "state=state-1")
}

func TestTokenStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store := NewTokenStore(filepath.Join(t.TempDir(), "nested", "token.json"))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrTokenNotFound)

	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour).Round(time.Second)}
	require.NoError(t, store.Save(tok))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, tok.AccessToken, loaded.AccessToken)
	assert.Equal(t, tok.RefreshToken, loaded.RefreshToken)
	assert.True(t, tok.Expiry.Equal(loaded.Expiry))
}

func TestExchange_StoresToken(t *testing.T) {
	t.Parallel()

	srv := tokenServer(t, "exchanged")
	store := NewTokenStore(filepath.Join(t.TempDir(), "token.json"))

	tok, err := Exchange(context.Background(), testConfig(srv.URL), store, "code-1")
	require.NoError(t, err)
	assert.Equal(t, "exchanged", tok.AccessToken)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "exchanged", loaded.AccessToken)
}

func TestTokenSource_PersistsRefreshedToken(t *testing.T) {
	t.Parallel()

	srv := tokenServer(t, "fresh")
	store := NewTokenStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, store.Save(&oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	ts, err := TokenSource(context.Background(), testConfig(srv.URL), store, nil)
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh", loaded.AccessToken)
}

func TestTokenSource_MissingToken(t *testing.T) {
	t.Parallel()

	_, err := HTTPClient(context.Background(), testConfig("https://token.example.com"),
		NewTokenStore(filepath.Join(t.TempDir(), "token.json")), nil)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
