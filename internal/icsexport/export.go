// Package icsexport writes the merged calendar as an iCalendar feed.
package icsexport

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/dtorcivia/trainercal/internal/contract"
)

const productID = "-//trainercal//calendar export//EN"

// Options controls the generated calendar.
type Options struct {
	// Name is written as X-WR-CALNAME when set.
	Name string
	// Timezone is written as X-WR-TIMEZONE when set.
	Timezone string
	// Now stamps every VEVENT. Defaults to time.Now.
	Now time.Time
}

// Build returns a calendar with one VEVENT per event. Occurrences of recurring
// trainings are already expanded, so no RRULE is emitted.
func Build(events []contract.CalendarEvent, opts Options) *ical.Calendar {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	if opts.Timezone != "" {
		cal.SetXWRTimezone(opts.Timezone)
	}

	for _, ev := range events {
		ve := cal.AddEvent(uid(ev))
		ve.SetDtStampTime(now)
		if ev.AllDay {
			ve.SetAllDayStartAt(ev.Start)
			ve.SetAllDayEndAt(ev.End)
		} else {
			ve.SetStartAt(ev.Start)
			ve.SetEndAt(ev.End)
		}
		ve.SetSummary(summary(ev))
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		ve.SetProperty(ical.ComponentPropertyCategories, string(ev.Type))
	}
	return cal
}

// Write serializes the calendar built from events to w.
func Write(w io.Writer, events []contract.CalendarEvent, opts Options) error {
	if err := Build(events, opts).SerializeTo(w); err != nil {
		return fmt.Errorf("failed to write calendar: %w", err)
	}
	return nil
}

func uid(ev contract.CalendarEvent) string {
	return fmt.Sprintf("%s@%s.trainercal", ev.ID, ev.Source)
}

func summary(ev contract.CalendarEvent) string {
	if ev.StudentName != "" {
		return ev.Title + " (" + ev.StudentName + ")"
	}
	return ev.Title
}
