package util

import (
	"strings"
	"testing"
	"time"
)

func TestFormatSpan(t *testing.T) {
	f, err := NewDisplayFormatter("UTC", "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	day := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		start, end time.Time
		allDay     bool
		want       string
	}{
		{day.Add(9 * time.Hour), day.Add(10 * time.Hour), false, "Mon Jan 20, 2025 09:00 - 10:00"},
		{day, day.AddDate(0, 0, 1), true, "Mon Jan 20, 2025 (all day)"},
		{day, day.AddDate(0, 0, 3), true, "Mon Jan 20, 2025 - Wed Jan 22, 2025 (all day)"},
		{day.Add(23 * time.Hour), day.Add(25 * time.Hour), false, "Mon Jan 20, 2025 23:00 - Tue Jan 21, 2025 01:00"},
	}
	for _, tt := range tests {
		if got := f.FormatSpan(tt.start, tt.end, tt.allDay); got != tt.want {
			t.Errorf("FormatSpan(%v, %v, %v) = %q, want %q", tt.start, tt.end, tt.allDay, got, tt.want)
		}
	}
}

func TestFormatRelative(t *testing.T) {
	f := GetDefaultFormatter()

	if got := f.FormatRelative(time.Now().Add(-2*time.Hour - time.Minute)); got != "2 hours ago" {
		t.Errorf("past = %q", got)
	}
	if got := f.FormatRelative(time.Now().Add(47*time.Minute + 30*time.Second)); !strings.HasPrefix(got, "in 47 minutes") {
		t.Errorf("future = %q", got)
	}
}

func TestNewDisplayFormatterRejectsUnknownZone(t *testing.T) {
	if _, err := NewDisplayFormatter("Mars/Olympus", "", "", ""); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestParseSQLiteTimestamp(t *testing.T) {
	want := time.Date(2025, 1, 20, 9, 30, 0, 0, time.UTC)
	for _, s := range []string{SQLiteTimestamp(want), "2025-01-20 09:30:00"} {
		got, err := ParseSQLiteTimestamp(s)
		if err != nil {
			t.Fatalf("ParseSQLiteTimestamp(%q) error = %v", s, err)
		}
		if !got.Equal(want) {
			t.Errorf("ParseSQLiteTimestamp(%q) = %v", s, got)
		}
	}
}
