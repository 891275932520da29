// Package outlook fetches events from Outlook calendars through Microsoft Graph.
package outlook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dtorcivia/trainercal/internal/contract"
)

// DefaultBaseURL is the Graph v1.0 root.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

const maxPages = 50

// ClientSource supplies an authorized HTTP client.
type ClientSource interface {
	Client(ctx context.Context) (*http.Client, error)
}

// APIError is a non-2xx Graph response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("graph api error: status %d", e.Status)
	}
	return fmt.Sprintf("graph api error: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// CalendarClient reads the signed-in user's default calendar.
type CalendarClient struct {
	auth    ClientSource
	baseURL string
}

// NewCalendarClient creates a Graph calendar client. An empty baseURL uses DefaultBaseURL.
func NewCalendarClient(auth ClientSource, baseURL string) *CalendarClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &CalendarClient{auth: auth, baseURL: strings.TrimRight(baseURL, "/")}
}

type graphEvent struct {
	contract.OutlookEvent
	IsCancelled bool `json:"isCancelled"`
}

type calendarViewPage struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

// FetchEvents returns every occurrence in [from, to) from /me/calendarView.
// Times are requested in UTC; cancelled occurrences are dropped.
func (c *CalendarClient) FetchEvents(ctx context.Context, from, to time.Time) ([]contract.OutlookEvent, error) {
	httpClient, err := c.auth.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth client: %w", err)
	}

	q := url.Values{}
	q.Set("startDateTime", from.UTC().Format(time.RFC3339))
	q.Set("endDateTime", to.UTC().Format(time.RFC3339))
	q.Set("$select", "id,subject,start,end,body,isAllDay,isCancelled")
	q.Set("$orderby", "start/dateTime")
	q.Set("$top", "100")
	next := c.baseURL + "/me/calendarView?" + q.Encode()

	var out []contract.OutlookEvent
	for page := 0; page < maxPages; page++ {
		p, err := c.getPage(ctx, httpClient, next)
		if err != nil {
			return nil, err
		}
		for _, ev := range p.Value {
			if ev.IsCancelled {
				continue
			}
			out = append(out, ev.OutlookEvent)
		}
		if p.NextLink == "" {
			return out, nil
		}
		next = p.NextLink
	}
	return nil, fmt.Errorf("failed to list events: more than %d pages", maxPages)
}

func (c *CalendarClient) getPage(ctx context.Context, httpClient *http.Client, rawURL string) (*calendarViewPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.timezone="UTC", outlook.body-content-type="text"`)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}

	var page calendarViewPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode calendarView: %w", err)
	}
	return &page, nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}
