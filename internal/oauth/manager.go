// Package oauth manages provider authorization: the consent URL, the
// callback code exchange, and encrypted token storage with refresh.
package oauth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/dtorcivia/trainercal/internal/config"
	"github.com/dtorcivia/trainercal/internal/contract"
	"github.com/dtorcivia/trainercal/internal/crypto"
	"github.com/dtorcivia/trainercal/internal/database"
	"github.com/dtorcivia/trainercal/internal/util"
)

var (
	// ErrNotConnected means no token is stored for the provider.
	ErrNotConnected = errors.New("provider not connected")
	// ErrInvalidState means the callback state is unknown, expired, or already used.
	ErrInvalidState = errors.New("invalid or expired oauth state")
	// ErrNotConfigured means client credentials for the provider are missing.
	ErrNotConfigured = errors.New("provider credentials not configured")
)

// refreshSkew refreshes access tokens slightly before they expire.
const refreshSkew = 5 * time.Minute

// Manager handles the OAuth lifecycle of one provider.
type Manager struct {
	provider  contract.Provider
	config    *oauth2.Config
	db        *database.DB
	encryptor *crypto.Encryptor
	stateTTL  time.Duration
	now       func() time.Time

	mu     sync.Mutex // serializes refresh
	cached *oauth2.Token
}

// NewGoogleManager creates the manager for Google Calendar.
func NewGoogleManager(cfg *config.Config, db *database.DB, enc *crypto.Encryptor) *Manager {
	return newManager(contract.ProviderGoogle, &oauth2.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURI,
		Scopes:       cfg.Google.Scopes,
		Endpoint:     google.Endpoint,
	}, db, enc, cfg.Retention.OAuthStateTTL)
}

// NewOutlookManager creates the manager for Outlook via the Microsoft identity platform.
func NewOutlookManager(cfg *config.Config, db *database.DB, enc *crypto.Encryptor) *Manager {
	return newManager(contract.ProviderOutlook, &oauth2.Config{
		ClientID:     cfg.Outlook.ClientID,
		ClientSecret: cfg.Outlook.ClientSecret,
		RedirectURL:  cfg.Outlook.RedirectURI,
		Scopes:       cfg.Outlook.Scopes,
		Endpoint:     microsoft.AzureADEndpoint(cfg.Outlook.Tenant),
	}, db, enc, cfg.Retention.OAuthStateTTL)
}

func newManager(p contract.Provider, oc *oauth2.Config, db *database.DB, enc *crypto.Encryptor, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = config.DefaultOAuthStateTTL
	}
	return &Manager{
		provider:  p,
		config:    oc,
		db:        db,
		encryptor: enc,
		stateTTL:  ttl,
		now:       time.Now,
	}
}

// Provider returns the provider this manager serves.
func (m *Manager) Provider() contract.Provider {
	return m.provider
}

// IsConfigured reports whether client credentials are present.
func (m *Manager) IsConfigured() bool {
	return m.config.ClientID != "" && m.config.ClientSecret != ""
}

// AuthURL starts an authorization flow and returns the consent URL. The
// state embedded in the URL is stored hashed and expires after the TTL.
func (m *Manager) AuthURL(ctx context.Context) (string, error) {
	if !m.IsConfigured() {
		return "", ErrNotConfigured
	}

	state, hash, err := crypto.GenerateOAuthState()
	if err != nil {
		return "", err
	}

	expires := m.now().Add(m.stateTTL)
	if _, err := m.db.ExecContext(ctx, `
		INSERT INTO oauth_states (state_hash, provider, expires_at)
		VALUES (?, ?, ?)
	`, hash, string(m.provider), util.SQLiteTimestamp(expires)); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}

	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// consumeState deletes a matching, unexpired state. Deletion makes it single-use.
func (m *Manager) consumeState(ctx context.Context, state string) error {
	if state == "" {
		return ErrInvalidState
	}
	res, err := m.db.ExecContext(ctx, `
		DELETE FROM oauth_states
		WHERE state_hash = ? AND provider = ? AND expires_at > ?
	`, crypto.HashSHA256(state), string(m.provider), util.SQLiteTimestamp(m.now()))
	if err != nil {
		return fmt.Errorf("failed to consume oauth state: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ErrInvalidState
	}
	return nil
}

// Exchange validates the callback state, trades the code for a token and stores it.
func (m *Manager) Exchange(ctx context.Context, code, state string) error {
	if err := m.consumeState(ctx, state); err != nil {
		return err
	}

	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code: %w", err)
	}
	if token.RefreshToken == "" {
		return fmt.Errorf("%s returned no refresh token; revoke access and reconnect", m.provider)
	}

	if err := m.saveToken(ctx, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	m.mu.Lock()
	m.cached = token
	m.mu.Unlock()

	util.Info("OAuth token saved", "provider", m.provider)
	return nil
}

// Connected reports whether a token is stored for the provider.
func (m *Manager) Connected(ctx context.Context) (bool, error) {
	var count int
	if err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM oauth_tokens WHERE provider = ?`, string(m.provider),
	).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check token: %w", err)
	}
	return count > 0, nil
}

// Disconnect removes the stored token.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()

	_, err := m.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE provider = ?`, string(m.provider))
	return err
}

// ValidToken returns an access token, refreshing and persisting it when near expiry.
func (m *Manager) ValidToken(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil && m.now().Add(refreshSkew).Before(m.cached.Expiry) {
		return m.cached, nil
	}

	token, err := m.loadToken(ctx)
	if err != nil {
		return nil, err
	}

	if token.Expiry.Before(m.now().Add(refreshSkew)) {
		util.Debug("Refreshing access token", "provider", m.provider)

		// Drop the access token so the source is forced to refresh.
		stale := &oauth2.Token{RefreshToken: token.RefreshToken}
		fresh, err := m.config.TokenSource(ctx, stale).Token()
		if err != nil {
			util.Error("OAuth token refresh failed", "provider", m.provider, "error", err)
			return nil, fmt.Errorf("token refresh failed: %w", err)
		}
		if fresh.RefreshToken == "" {
			fresh.RefreshToken = token.RefreshToken
		}
		if err := m.saveToken(ctx, fresh); err != nil {
			util.Error("Failed to save refreshed token", "provider", m.provider, "error", err)
		}
		token = fresh
	}

	m.cached = token
	return token, nil
}

// Client returns an HTTP client authorized for the provider's API.
func (m *Manager) Client(ctx context.Context) (*http.Client, error) {
	token, err := m.ValidToken(ctx)
	if err != nil {
		return nil, err
	}
	return m.config.Client(ctx, token), nil
}

func (m *Manager) saveToken(ctx context.Context, token *oauth2.Token) error {
	sealed, err := m.encryptor.SealJSON(token)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	scopes := strings.Join(m.config.Scopes, " ")
	if s, ok := token.Extra("scope").(string); ok && s != "" {
		scopes = s
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (provider, token_enc, scopes, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(provider) DO UPDATE SET
			token_enc = excluded.token_enc,
			scopes = excluded.scopes,
			updated_at = datetime('now')
	`, string(m.provider), sealed, scopes)
	return err
}

func (m *Manager) loadToken(ctx context.Context) (*oauth2.Token, error) {
	var sealed []byte
	err := m.db.QueryRowContext(ctx,
		`SELECT token_enc FROM oauth_tokens WHERE provider = ?`, string(m.provider),
	).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	var token oauth2.Token
	if err := m.encryptor.OpenJSON(sealed, &token); err != nil {
		return nil, fmt.Errorf("failed to decrypt token: %w", err)
	}
	return &token, nil
}
