// Package console prints notifications to a terminal.
package console

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dtorcivia/trainercal/internal/notifications"
)

// Provider writes one line per message.
type Provider struct {
	mu sync.Mutex
	w  io.Writer
}

// NewProvider creates a console provider writing to w.
func NewProvider(w io.Writer) *Provider {
	return &Provider{w: w}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "console"
}

// Enabled always returns true.
func (p *Provider) Enabled() bool {
	return true
}

// Send prints the message, prefixed with its level for errors.
func (p *Provider) Send(ctx context.Context, msg notifications.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prefix := ""
	if msg.Level == notifications.LevelError {
		prefix = "error: "
	}
	line := prefix + msg.Title
	if msg.Body != "" {
		line += ": " + msg.Body
	}
	_, err := fmt.Fprintln(p.w, line)
	return err
}

// SendTest prints a canned message so the terminal path can be checked.
func (p *Provider) SendTest(ctx context.Context) error {
	return p.Send(ctx, notifications.Message{
		Title: "trainercal test",
		Body:  "Terminal notifications are working.",
		Level: notifications.LevelInfo,
	})
}
