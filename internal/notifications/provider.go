// Package notifications delivers user-facing messages through push services
// and the console.
package notifications

import (
	"context"
)

// Level is the severity of a message.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Message is one notification as seen by the trainer.
type Message struct {
	Title string
	Body  string
	Level Level
	// URL, when set, is opened by a tap on the notification.
	URL string
}

// Provider defines the interface for notification providers.
type Provider interface {
	// Name returns the provider name (e.g., "ntfy", "pushover", "console").
	Name() string

	// Enabled returns whether the provider is configured and enabled.
	Enabled() bool

	// Send delivers one message.
	Send(ctx context.Context, msg Message) error
}

// Testable providers can send a canned test message.
type Testable interface {
	SendTest(ctx context.Context) error
}
