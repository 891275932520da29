// Package util provides utility functions for the application.
package util

import (
	"fmt"
	"time"
	// Embed timezone database for containers without tzdata
	_ "time/tzdata"
)

// DisplayFormatter renders event times in the trainer's timezone.
type DisplayFormatter struct {
	Location       *time.Location
	DateFormat     string
	TimeFormat     string
	DatetimeFormat string
}

// NewDisplayFormatter creates a formatter for the specified timezone.
func NewDisplayFormatter(timezone string, dateFormat, timeFormat, datetimeFormat string) (*DisplayFormatter, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}

	// Fall back to the built-in layouts
	if dateFormat == "" {
		dateFormat = "Mon Jan 2, 2006"
	}
	if timeFormat == "" {
		timeFormat = "15:04"
	}
	if datetimeFormat == "" {
		datetimeFormat = "Mon Jan 2, 2006 15:04"
	}

	return &DisplayFormatter{
		Location:       loc,
		DateFormat:     dateFormat,
		TimeFormat:     timeFormat,
		DatetimeFormat: datetimeFormat,
	}, nil
}

// FormatDate formats a time as date only in local timezone.
func (f *DisplayFormatter) FormatDate(t time.Time) string {
	return t.In(f.Location).Format(f.DateFormat)
}

// FormatTime formats a time as time only in local timezone.
func (f *DisplayFormatter) FormatTime(t time.Time) string {
	return t.In(f.Location).Format(f.TimeFormat)
}

// FormatDateTime formats a time as full datetime in local timezone.
func (f *DisplayFormatter) FormatDateTime(t time.Time) string {
	return t.In(f.Location).Format(f.DatetimeFormat)
}

// FormatSpan renders an event's start and end. All-day spans show dates only,
// with the exclusive end date turned back into an inclusive one.
func (f *DisplayFormatter) FormatSpan(start, end time.Time, allDay bool) string {
	if allDay {
		// Exclusive end date
		last := end.AddDate(0, 0, -1)
		if !last.After(start) {
			return f.FormatDate(start) + " (all day)"
		}
		return f.FormatDate(start) + " - " + f.FormatDate(last) + " (all day)"
	}
	s, e := start.In(f.Location), end.In(f.Location)
	if s.YearDay() == e.YearDay() && s.Year() == e.Year() {
		return f.FormatDateTime(s) + " - " + f.FormatTime(e)
	}
	return f.FormatDateTime(s) + " - " + f.FormatDateTime(e)
}

// FormatRelative formats a time relative to now (e.g., "in 47 minutes", "2 hours ago").
func (f *DisplayFormatter) FormatRelative(t time.Time) string {
	diff := time.Until(t)
	if diff < 0 {
		// Past
		return formatDuration(-diff) + " ago"
	}
	// Future
	return "in " + formatDuration(diff)
}

// formatDuration renders d in its largest whole unit.
func formatDuration(d time.Duration) string {
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d < time.Minute:
		return plural(int(d.Seconds()), "second")
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour")
	default:
		return plural(int(d.Hours()/24), "day")
	}
}

// SQLiteTimestamp formats a time for SQLite TEXT columns.
func SQLiteTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseSQLiteTimestamp parses a value written by SQLiteTimestamp or by
// SQLite's datetime('now').
func ParseSQLiteTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	// datetime('now') has no zone and is UTC
	return time.Parse("2006-01-02 15:04:05", s)
}

// Default formatter instance
var defaultFormatter *DisplayFormatter

func init() {
	// UTC until the server config sets one
	defaultFormatter, _ = NewDisplayFormatter("UTC", "", "", "")
}

// SetDefaultFormatter sets the global default formatter.
func SetDefaultFormatter(f *DisplayFormatter) {
	defaultFormatter = f
}

// GetDefaultFormatter returns the global default formatter.
func GetDefaultFormatter() *DisplayFormatter {
	return defaultFormatter
}
