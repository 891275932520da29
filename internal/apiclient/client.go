// Package apiclient is the REST client for the trainercal server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dtorcivia/trainercal/internal/contract"
	"github.com/dtorcivia/trainercal/internal/response"
)

// DefaultTimeout bounds every request, including the unified sync.
const DefaultTimeout = 60 * time.Second

// ErrUnauthorized is matched by any 401 response.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Client calls the trainercal REST API with a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout on a copy of the HTTP client, so
// a client passed to WithHTTPClient is left as it was.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// New creates a client for the server at baseURL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}

	var env response.ErrorResponse
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Code != "" {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// Status returns the provider connection states.
func (c *Client) Status(ctx context.Context) (contract.StatusResponse, error) {
	var out contract.StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/calendar/status", nil, &out)
	return out, err
}

// AuthURL asks the server to start the OAuth flow for p.
func (c *Client) AuthURL(ctx context.Context, p contract.Provider) (string, error) {
	var out contract.AuthURLResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/"+url.PathEscape(string(p))+"/calendar", nil, &out); err != nil {
		return "", err
	}
	if out.AuthURL == "" {
		return "", errors.New("server returned an empty authUrl")
	}
	return out.AuthURL, nil
}

// Disconnect removes the stored credentials of p.
func (c *Client) Disconnect(ctx context.Context, p contract.Provider) error {
	return c.do(ctx, http.MethodDelete, "/api/auth/"+url.PathEscape(string(p))+"/calendar", nil, nil)
}

// Sync runs the unified provider sync.
func (c *Client) Sync(ctx context.Context) (contract.SyncResponse, error) {
	var out contract.SyncResponse
	err := c.do(ctx, http.MethodPost, "/api/calendar/sync", nil, &out)
	return out, err
}

// ListEvents returns manual events in [from, to). Zero bounds use the
// server's default window.
func (c *Client) ListEvents(ctx context.Context, from, to time.Time) ([]contract.CalendarEvent, error) {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("from", from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		q.Set("to", to.UTC().Format(time.RFC3339))
	}
	path := "/api/calendar/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out contract.EventsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// CreateEvent creates a manual event.
func (c *Client) CreateEvent(ctx context.Context, in contract.EventInput) (contract.CalendarEvent, error) {
	var out contract.CalendarEvent
	err := c.do(ctx, http.MethodPost, "/api/calendar/events", in, &out)
	return out, err
}

// UpdateEvent replaces a manual event.
func (c *Client) UpdateEvent(ctx context.Context, id string, in contract.EventInput) (contract.CalendarEvent, error) {
	var out contract.CalendarEvent
	err := c.do(ctx, http.MethodPut, "/api/calendar/events/"+url.PathEscape(id), in, &out)
	return out, err
}

// DeleteEvent removes a manual event or a single occurrence.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/calendar/events/"+url.PathEscape(id), nil, nil)
}

// ListStudents returns the roster.
func (c *Client) ListStudents(ctx context.Context) ([]contract.Student, error) {
	var out contract.StudentsResponse
	if err := c.do(ctx, http.MethodGet, "/api/students", nil, &out); err != nil {
		return nil, err
	}
	return out.Students, nil
}

// CreateStudent adds a student.
func (c *Client) CreateStudent(ctx context.Context, in contract.StudentInput) (contract.Student, error) {
	var out contract.Student
	err := c.do(ctx, http.MethodPost, "/api/students", in, &out)
	return out, err
}
