// Package google fetches events from the Google Calendar API.
package google

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/dtorcivia/trainercal/internal/contract"
)

// maxPages bounds pagination against a misbehaving API.
const maxPages = 50

// ClientSource supplies an authorized HTTP client.
type ClientSource interface {
	Client(ctx context.Context) (*http.Client, error)
}

// CalendarClient reads one Google calendar.
type CalendarClient struct {
	auth       ClientSource
	calendarID string
	opts       []option.ClientOption
}

// NewCalendarClient creates a client for calendarID ("primary" when empty).
// Extra options are appended to the service options, e.g. an endpoint override.
func NewCalendarClient(auth ClientSource, calendarID string, opts ...option.ClientOption) *CalendarClient {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &CalendarClient{auth: auth, calendarID: calendarID, opts: opts}
}

func (c *CalendarClient) service(ctx context.Context) (*calendar.Service, error) {
	httpClient, err := c.auth.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth client: %w", err)
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, c.opts...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return svc, nil
}

// FetchEvents returns every event in [from, to), recurring series expanded
// into single instances, in start order. Cancelled instances are dropped.
func (c *CalendarClient) FetchEvents(ctx context.Context, from, to time.Time) ([]contract.GoogleEvent, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	var (
		out       []contract.GoogleEvent
		pageToken string
	)
	for page := 0; page < maxPages; page++ {
		call := svc.Events.List(c.calendarID).
			SingleEvents(true).
			OrderBy("startTime").
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			MaxResults(250).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		events, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list events: %w", err)
		}

		for _, item := range events.Items {
			if item.Status == "cancelled" {
				continue
			}
			out = append(out, convertEvent(item))
		}

		if events.NextPageToken == "" {
			return out, nil
		}
		pageToken = events.NextPageToken
	}
	return nil, fmt.Errorf("failed to list events: more than %d pages", maxPages)
}

func convertEvent(e *calendar.Event) contract.GoogleEvent {
	return contract.GoogleEvent{
		ID:          e.Id,
		Summary:     e.Summary,
		Description: e.Description,
		Start:       convertTime(e.Start),
		End:         convertTime(e.End),
	}
}

func convertTime(t *calendar.EventDateTime) contract.GoogleEventTime {
	if t == nil {
		return contract.GoogleEventTime{}
	}
	return contract.GoogleEventTime{
		DateTime: t.DateTime,
		Date:     t.Date,
		TimeZone: t.TimeZone,
	}
}
