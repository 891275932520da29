package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dtorcivia/trainercal/internal/util"
)

// ErrNoProviders is returned by TestProvider for an unknown provider name.
var ErrNoProviders = errors.New("no such notification provider")

// Manager fans messages out to every enabled provider.
type Manager struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewManager creates a manager with the given providers registered.
func NewManager(providers ...Provider) *Manager {
	m := &Manager{}
	for _, p := range providers {
		m.RegisterProvider(p)
	}
	return m
}

// RegisterProvider adds a notification provider.
func (m *Manager) RegisterProvider(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = append(m.providers, p)
	util.Debug("Registered notification provider", "provider", p.Name(), "enabled", p.Enabled())
}

// EnabledProviders returns only enabled providers.
func (m *Manager) EnabledProviders() []Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var enabled []Provider
	for _, p := range m.providers {
		if p.Enabled() {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// Notify sends msg to every enabled provider. It fails only when every
// provider failed; a manager with no enabled providers is a no-op.
func (m *Manager) Notify(ctx context.Context, msg Message) error {
	if msg.Level == "" {
		msg.Level = LevelInfo
	}

	providers := m.EnabledProviders()
	if len(providers) == 0 {
		return nil
	}

	var errs []error
	for _, provider := range providers {
		if err := provider.Send(ctx, msg); err != nil {
			util.Error("Failed to send notification",
				"provider", provider.Name(),
				"title", msg.Title,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
		}
	}

	if len(errs) == len(providers) {
		return fmt.Errorf("all notification providers failed: %w", errors.Join(errs...))
	}
	return nil
}

// TestProvider sends a test notification to a specific provider.
func (m *Manager) TestProvider(ctx context.Context, name string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.providers {
		if p.Name() != name {
			continue
		}
		if !p.Enabled() {
			return fmt.Errorf("provider %s is not enabled", name)
		}
		if t, ok := p.(Testable); ok {
			return t.SendTest(ctx)
		}
		return p.Send(ctx, Message{Title: "trainercal test", Body: "Notifications are configured correctly.", Level: LevelInfo})
	}
	return fmt.Errorf("%w: %s", ErrNoProviders, name)
}
