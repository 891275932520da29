package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/dtorcivia/trainercal/internal/contract"
	"github.com/dtorcivia/trainercal/internal/database"
)

// maxOccurrences caps the expansion of one series per query.
const maxOccurrences = 1000

const occurrenceLayout = "20060102T150405Z"

// OccurrenceID builds the id of one occurrence of a recurring series.
func OccurrenceID(seriesID string, start time.Time) string {
	return seriesID + "_" + start.UTC().Format(occurrenceLayout)
}

// ParseOccurrenceID splits an occurrence id into its series id and start.
func ParseOccurrenceID(id string) (string, time.Time, bool) {
	i := strings.LastIndex(id, "_")
	if i <= 0 {
		return "", time.Time{}, false
	}
	t, err := time.Parse(occurrenceLayout, id[i+1:])
	if err != nil {
		return "", time.Time{}, false
	}
	return id[:i], t, true
}

// ValidateRecurrence accepts an RFC 5545 RRULE body repeating at most daily.
func ValidateRecurrence(rule string) error {
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return err
	}
	switch opt.Freq {
	case rrule.HOURLY, rrule.MINUTELY, rrule.SECONDLY:
		return errors.New("sessions cannot repeat more often than daily")
	}
	return nil
}

// expandSeries returns the occurrences of ev overlapping [from, to), minus exdates.
func expandSeries(ev database.LocalEvent, exdates []time.Time, from, to time.Time, loc *time.Location) ([]contract.CalendarEvent, error) {
	opt, err := rrule.StrToROption(ev.Recurrence.String)
	if err != nil {
		return nil, fmt.Errorf("parse rrule: %w", err)
	}
	opt.Dtstart = ev.Start.In(loc)
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("build rrule: %w", err)
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range exdates {
		set.ExDate(ex.In(loc))
	}

	dur := ev.End.Sub(ev.Start)
	starts := set.Between(from.Add(-dur).In(loc), to.In(loc), true)
	if len(starts) > maxOccurrences {
		starts = starts[:maxOccurrences]
	}

	base := toContract(ev)
	out := make([]contract.CalendarEvent, 0, len(starts))
	for _, start := range starts {
		end := start.Add(dur)
		if !end.After(from) || !start.Before(to) {
			continue
		}
		occ := base
		occ.ID = OccurrenceID(ev.ID, start)
		occ.SeriesID = ev.ID
		occ.Start = start
		occ.End = end
		out = append(out, occ)
	}
	return out, nil
}
