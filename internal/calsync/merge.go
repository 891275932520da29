package calsync

import (
	"fmt"
	"strings"
	"time"

	"github.com/dtorcivia/trainercal/internal/contract"
	"github.com/dtorcivia/trainercal/internal/util"
)

const untitled = "(no title)"

// Date-time layouts accepted without an offset. Fractional seconds, as sent
// by Graph, are accepted after the seconds field.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// SyncedID returns the merged-list id of a provider event.
func SyncedID(p contract.Provider, providerID string) string {
	return string(p) + "_" + providerID
}

// parseDateTime reads an RFC 3339 value, or a local value in tz (falling back
// to loc when tz is empty or unknown).
func parseDateTime(s, tz string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	zone := loc
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			zone = l
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, zone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date-time %q", s)
}

// parseDate returns local midnight of an all-day date.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	if len(s) < 10 {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	return time.ParseInLocation("2006-01-02", s[:10], loc)
}

func googleTime(t contract.GoogleEventTime, loc *time.Location) (time.Time, bool, error) {
	if t.Date != "" {
		v, err := parseDate(t.Date, loc)
		return v, true, err
	}
	if t.DateTime != "" {
		v, err := parseDateTime(t.DateTime, t.TimeZone, loc)
		return v, false, err
	}
	return time.Time{}, false, fmt.Errorf("missing date and dateTime")
}

// MapGoogle converts a Google event into a synced calendar event.
func MapGoogle(ev contract.GoogleEvent, loc *time.Location) (contract.CalendarEvent, error) {
	if ev.ID == "" {
		return contract.CalendarEvent{}, fmt.Errorf("google event without id")
	}
	start, allDay, err := googleTime(ev.Start, loc)
	if err != nil {
		return contract.CalendarEvent{}, fmt.Errorf("google event %s start: %w", ev.ID, err)
	}
	end, _, err := googleTime(ev.End, loc)
	if err != nil {
		return contract.CalendarEvent{}, fmt.Errorf("google event %s end: %w", ev.ID, err)
	}
	return synced(contract.ProviderGoogle, ev.ID, ev.Summary, ev.Description, start, end, allDay), nil
}

// MapOutlook converts an Outlook event into a synced calendar event.
func MapOutlook(ev contract.OutlookEvent, loc *time.Location) (contract.CalendarEvent, error) {
	if ev.ID == "" {
		return contract.CalendarEvent{}, fmt.Errorf("outlook event without id")
	}

	parse := func(dt contract.OutlookDateTime) (time.Time, error) {
		if ev.IsAllDay {
			return parseDate(dt.DateTime, loc)
		}
		return parseDateTime(dt.DateTime, dt.TimeZone, loc)
	}
	start, err := parse(ev.Start)
	if err != nil {
		return contract.CalendarEvent{}, fmt.Errorf("outlook event %s start: %w", ev.ID, err)
	}
	end, err := parse(ev.End)
	if err != nil {
		return contract.CalendarEvent{}, fmt.Errorf("outlook event %s end: %w", ev.ID, err)
	}
	return synced(contract.ProviderOutlook, ev.ID, ev.Subject, ev.Body.Content, start, end, ev.IsAllDay), nil
}

func synced(p contract.Provider, id, title, description string, start, end time.Time, allDay bool) contract.CalendarEvent {
	title = strings.TrimSpace(title)
	if title == "" {
		title = untitled
	}
	return contract.CalendarEvent{
		ID:          SyncedID(p, id),
		Title:       title,
		Start:       start,
		End:         end,
		AllDay:      allDay,
		Description: strings.TrimSpace(description),
		Type:        contract.TypeSynced,
		Source:      contract.SourceFor(p),
	}
}

// MapSyncResponse maps every provider result, in provider order. Events that
// cannot be mapped are logged and skipped; duplicate ids keep the first.
func MapSyncResponse(resp contract.SyncResponse, loc *time.Location) []contract.CalendarEvent {
	var out []contract.CalendarEvent
	seen := map[string]bool{}
	add := func(ev contract.CalendarEvent, err error) {
		if err != nil {
			util.Warn("Skipping unmappable event", "error", err)
			return
		}
		if seen[ev.ID] {
			return
		}
		seen[ev.ID] = true
		out = append(out, ev)
	}

	if g := resp.Results.Google; g != nil {
		for _, ev := range g.Events {
			add(MapGoogle(ev, loc))
		}
	}
	if o := resp.Results.Outlook; o != nil {
		for _, ev := range o.Events {
			add(MapOutlook(ev, loc))
		}
	}
	return out
}

// Merge keeps the manual events of current, in order, and replaces every
// other event with fresh. The result is a new slice.
func Merge(current, fresh []contract.CalendarEvent) []contract.CalendarEvent {
	out := make([]contract.CalendarEvent, 0, len(current)+len(fresh))
	for _, ev := range current {
		if ev.Source == contract.SourceManual {
			out = append(out, ev)
		}
	}
	return append(out, fresh...)
}

// replaceManual keeps the synced events of current and puts manual in front.
func replaceManual(current, manual []contract.CalendarEvent) []contract.CalendarEvent {
	out := make([]contract.CalendarEvent, 0, len(current)+len(manual))
	out = append(out, manual...)
	for _, ev := range current {
		if ev.Source != contract.SourceManual {
			out = append(out, ev)
		}
	}
	return out
}
