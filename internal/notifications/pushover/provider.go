// Package pushover provides Pushover notification delivery.
package pushover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dtorcivia/trainercal/internal/config"
	"github.com/dtorcivia/trainercal/internal/notifications"
)

// DefaultAPIURL is the Pushover message endpoint.
const DefaultAPIURL = "https://api.pushover.net/1/messages.json"

// Provider implements Pushover notifications.
type Provider struct {
	config *config.PushoverConfig
	client *http.Client
	apiURL string
}

// NewProvider creates a new Pushover provider.
func NewProvider(cfg *config.PushoverConfig) *Provider {
	return &Provider{
		config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		apiURL: DefaultAPIURL,
	}
}

// WithAPIURL overrides the message endpoint.
func (p *Provider) WithAPIURL(u string) *Provider {
	p.apiURL = u
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "pushover"
}

// Enabled returns whether Pushover is configured and enabled.
func (p *Provider) Enabled() bool {
	return p.config.Enabled && p.config.AppToken != "" && p.config.UserKey != ""
}

// Send delivers msg. Errors go out at high priority.
func (p *Provider) Send(ctx context.Context, msg notifications.Message) error {
	prio := p.config.Priority
	if msg.Level == notifications.LevelError && prio < 1 {
		prio = 1
	}

	body := msg.Body
	if body == "" {
		body = msg.Title
	}

	params := url.Values{
		"token":    {p.config.AppToken},
		"user":     {p.config.UserKey},
		"title":    {msg.Title},
		"message":  {body},
		"priority": {strconv.Itoa(prio)},
	}
	if p.config.Sound != "" {
		params.Set("sound", p.config.Sound)
	}
	if msg.URL != "" {
		params.Set("url", msg.URL)
		params.Set("url_title", "Open calendar")
	}
	return p.send(ctx, params)
}

// SendTest sends a test notification.
func (p *Provider) SendTest(ctx context.Context) error {
	return p.send(ctx, url.Values{
		"token":    {p.config.AppToken},
		"user":     {p.config.UserKey},
		"title":    {"trainercal test"},
		"message":  {"If you can see this, Pushover is configured correctly."},
		"priority": {"0"},
	})
}

func (p *Provider) send(ctx context.Context, params url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var response struct {
		Status  int      `json:"status"`
		Request string   `json:"request"`
		Errors  []string `json:"errors,omitempty"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}

	if response.Status != 1 {
		errMsg := "unknown error"
		if len(response.Errors) > 0 {
			errMsg = strings.Join(response.Errors, ", ")
		}
		return fmt.Errorf("pushover error: %s", errMsg)
	}
	return nil
}
