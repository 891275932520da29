// Package ntfy provides ntfy.sh notification delivery.
package ntfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dtorcivia/trainercal/internal/config"
	"github.com/dtorcivia/trainercal/internal/notifications"
)

const defaultServer = "https://ntfy.sh"

// Provider implements ntfy notifications.
type Provider struct {
	config *config.NtfyConfig
	client *http.Client
}

// NewProvider creates a new ntfy provider.
func NewProvider(cfg *config.NtfyConfig) *Provider {
	return &Provider{
		config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "ntfy"
}

// Enabled returns whether ntfy is configured and enabled.
func (p *Provider) Enabled() bool {
	return p.config.Enabled && p.config.Topic != ""
}

// ntfyMessage is the ntfy JSON publish format.
type ntfyMessage struct {
	Topic    string   `json:"topic"`
	Title    string   `json:"title,omitempty"`
	Message  string   `json:"message"`
	Priority int      `json:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Click    string   `json:"click,omitempty"`
}

// priority maps ntfy's named priorities to their numeric form.
func priority(name string) int {
	switch strings.ToLower(name) {
	case "min", "1":
		return 1
	case "low", "2":
		return 2
	case "high", "4":
		return 4
	case "urgent", "max", "5":
		return 5
	default:
		return 3
	}
}

// Send publishes msg. Errors are raised one priority step.
func (p *Provider) Send(ctx context.Context, msg notifications.Message) error {
	out := ntfyMessage{
		Topic:    p.config.Topic,
		Title:    msg.Title,
		Message:  msg.Body,
		Priority: priority(p.config.Priority),
		Tags:     []string{"calendar"},
		Click:    msg.URL,
	}
	if out.Message == "" {
		out.Message = msg.Title
	}
	if msg.Level == notifications.LevelError {
		out.Tags = []string{"warning", "calendar"}
		out.Priority = min(out.Priority+1, 5)
	}
	return p.send(ctx, &out)
}

// SendTest sends a test notification.
func (p *Provider) SendTest(ctx context.Context) error {
	return p.send(ctx, &ntfyMessage{
		Topic:    p.config.Topic,
		Title:    "trainercal test",
		Message:  "If you can see this, ntfy is configured correctly.",
		Priority: 3,
		Tags:     []string{"test_tube", "calendar"},
	})
}

func (p *Provider) send(ctx context.Context, msg *ntfyMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	serverURL := p.config.Server
	if serverURL == "" {
		serverURL = defaultServer
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.Token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ntfy returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
