package oauth

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/dtorcivia/trainercal/internal/contract"
	"github.com/dtorcivia/trainercal/internal/crypto"
	"github.com/dtorcivia/trainercal/internal/database"
)

type tokenServer struct {
	*httptest.Server
	exchanges atomic.Int32
	refreshes atomic.Int32
}

func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			ts.exchanges.Add(1)
			if r.Form.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			w.Write([]byte(`{"access_token":"access-1","refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600}`))
		case "refresh_token":
			ts.refreshes.Add(1)
			w.Write([]byte(`{"access_token":"access-2","token_type":"Bearer","expires_in":3600}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func setupManager(t *testing.T, ts *tokenServer) (*Manager, *database.DB) {
	t.Helper()
	db := database.OpenForTest(t)
	enc, err := crypto.NewEncryptor("test-encryption-key")
	if err != nil {
		t.Fatal(err)
	}
	m := newManager(contract.ProviderGoogle, &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/oauth/google/callback",
		Scopes:       []string{"calendar.readonly"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   ts.URL + "/auth",
			TokenURL:  ts.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}, db, enc, time.Minute)
	return m, db
}

func stateFrom(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatal(err)
	}
	state := u.Query().Get("state")
	if state == "" {
		t.Fatalf("auth url has no state: %s", authURL)
	}
	if u.Query().Get("access_type") != "offline" {
		t.Fatalf("expected offline access in %s", authURL)
	}
	return state
}

func TestExchangeStoresEncryptedToken(t *testing.T) {
	ts := newTokenServer(t)
	m, db := setupManager(t, ts)
	ctx := context.Background()

	authURL, err := m.AuthURL(ctx)
	if err != nil {
		t.Fatalf("AuthURL failed: %v", err)
	}
	state := stateFrom(t, authURL)

	if ok, _ := m.Connected(ctx); ok {
		t.Fatal("should not be connected before exchange")
	}
	if err := m.Exchange(ctx, "good-code", state); err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if ok, _ := m.Connected(ctx); !ok {
		t.Fatal("expected connected after exchange")
	}

	var sealed []byte
	if err := db.QueryRow(`SELECT token_enc FROM oauth_tokens WHERE provider = 'google'`).Scan(&sealed); err != nil {
		t.Fatal(err)
	}
	if len(sealed) == 0 || bytes.Contains(sealed, []byte("refresh-1")) {
		t.Fatal("token must be stored encrypted")
	}

	tok, err := m.ValidToken(ctx)
	if err != nil {
		t.Fatalf("ValidToken failed: %v", err)
	}
	if tok.AccessToken != "access-1" {
		t.Fatalf("expected cached access token, got %q", tok.AccessToken)
	}
}

func TestStateIsSingleUse(t *testing.T) {
	ts := newTokenServer(t)
	m, _ := setupManager(t, ts)
	ctx := context.Background()

	authURL, _ := m.AuthURL(ctx)
	state := stateFrom(t, authURL)

	if err := m.Exchange(ctx, "good-code", state); err != nil {
		t.Fatalf("first exchange failed: %v", err)
	}
	if err := m.Exchange(ctx, "good-code", state); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on reuse, got %v", err)
	}
	if got := ts.exchanges.Load(); got != 1 {
		t.Fatalf("expected exactly one code exchange, got %d", got)
	}
}

func TestExpiredStateRejected(t *testing.T) {
	ts := newTokenServer(t)
	m, _ := setupManager(t, ts)
	ctx := context.Background()

	authURL, _ := m.AuthURL(ctx)
	state := stateFrom(t, authURL)

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if err := m.Exchange(ctx, "good-code", state); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestStateBoundToProvider(t *testing.T) {
	ts := newTokenServer(t)
	m, db := setupManager(t, ts)
	ctx := context.Background()

	authURL, _ := m.AuthURL(ctx)
	state := stateFrom(t, authURL)

	enc, _ := crypto.NewEncryptor("test-encryption-key")
	other := newManager(contract.ProviderOutlook, m.config, db, enc, time.Minute)
	if err := other.Exchange(ctx, "good-code", state); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState across providers, got %v", err)
	}
}

func TestValidTokenRefreshesExpired(t *testing.T) {
	ts := newTokenServer(t)
	m, _ := setupManager(t, ts)
	ctx := context.Background()

	authURL, _ := m.AuthURL(ctx)
	if err := m.Exchange(ctx, "good-code", stateFrom(t, authURL)); err != nil {
		t.Fatal(err)
	}

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	m.cached = nil

	tok, err := m.ValidToken(ctx)
	if err != nil {
		t.Fatalf("ValidToken failed: %v", err)
	}
	if tok.AccessToken != "access-2" {
		t.Fatalf("expected refreshed token, got %q", tok.AccessToken)
	}
	if tok.RefreshToken != "refresh-1" {
		t.Fatalf("refresh token must be kept when not rotated, got %q", tok.RefreshToken)
	}
	if ts.refreshes.Load() != 1 {
		t.Fatalf("expected one refresh, got %d", ts.refreshes.Load())
	}
}

func TestValidTokenNotConnected(t *testing.T) {
	ts := newTokenServer(t)
	m, _ := setupManager(t, ts)
	if _, err := m.ValidToken(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestAuthURLRequiresCredentials(t *testing.T) {
	ts := newTokenServer(t)
	m, _ := setupManager(t, ts)
	m.config.ClientSecret = ""
	if _, err := m.AuthURL(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
