package calsync

import (
	"testing"
	"time"

	"github.com/dtorcivia/trainercal/internal/contract"
)

func manualEvent(id, title string) contract.CalendarEvent {
	start := time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)
	return contract.CalendarEvent{
		ID:     id,
		Title:  title,
		Start:  start,
		End:    start.Add(time.Hour),
		Type:   contract.TypeTraining,
		Source: contract.SourceManual,
	}
}

func ids(events []contract.CalendarEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

func equalIDs(t *testing.T, got []contract.CalendarEvent, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("ids = %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("ids = %v, want %v", g, want)
		}
	}
}

func TestMergeKeepsManualEvents(t *testing.T) {
	m1 := manualEvent("1", "Leg day")
	m2 := manualEvent("2", "Consult")
	oldSynced := contract.CalendarEvent{ID: "google_old", Source: contract.SourceGoogle, Type: contract.TypeSynced}
	current := []contract.CalendarEvent{m1, oldSynced, m2}

	fresh := []contract.CalendarEvent{
		{ID: "google_new", Source: contract.SourceGoogle, Type: contract.TypeSynced},
		{ID: "outlook_x", Source: contract.SourceOutlook, Type: contract.TypeSynced},
	}

	merged := Merge(current, fresh)
	equalIDs(t, merged, "1", "2", "google_new", "outlook_x")
	if merged[0] != m1 || merged[1] != m2 {
		t.Error("manual events were modified by merge")
	}
	if len(current) != 3 || current[1].ID != "google_old" {
		t.Error("merge mutated its input")
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	current := []contract.CalendarEvent{manualEvent("1", "Leg day")}
	fresh := []contract.CalendarEvent{{ID: "google_a", Source: contract.SourceGoogle, Type: contract.TypeSynced}}

	once := Merge(current, fresh)
	twice := Merge(once, fresh)
	equalIDs(t, twice, ids(once)...)
}

func TestMergeDropsStaleSyncedEvents(t *testing.T) {
	current := []contract.CalendarEvent{
		manualEvent("1", "Leg day"),
		{ID: "google_gone", Source: contract.SourceGoogle, Type: contract.TypeSynced},
	}
	equalIDs(t, Merge(current, nil), "1")
}

func TestMapGoogle(t *testing.T) {
	ev, err := MapGoogle(contract.GoogleEvent{
		ID:      "abc",
		Summary: "Dentist",
		Start:   contract.GoogleEventTime{DateTime: "2025-01-20T09:00:00-05:00"},
		End:     contract.GoogleEventTime{DateTime: "2025-01-20T10:00:00-05:00"},
	}, time.UTC)
	if err != nil {
		t.Fatalf("MapGoogle() error = %v", err)
	}
	if ev.ID != "google_abc" || ev.Source != contract.SourceGoogle || ev.Type != contract.TypeSynced {
		t.Errorf("unexpected tagging: %+v", ev)
	}
	if !ev.Start.Equal(time.Date(2025, 1, 20, 14, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %v", ev.Start)
	}
	if ev.AllDay {
		t.Error("timed event marked all-day")
	}
}

func TestMapGoogleAllDayUsesLocalMidnight(t *testing.T) {
	loc := time.FixedZone("TEST", -3*3600)
	ev, err := MapGoogle(contract.GoogleEvent{
		ID:    "holiday",
		Start: contract.GoogleEventTime{Date: "2025-03-01"},
		End:   contract.GoogleEventTime{Date: "2025-03-02"},
	}, loc)
	if err != nil {
		t.Fatalf("MapGoogle() error = %v", err)
	}
	if !ev.AllDay {
		t.Error("expected all-day event")
	}
	if want := time.Date(2025, 3, 1, 0, 0, 0, 0, loc); !ev.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", ev.Start, want)
	}
	if want := time.Date(2025, 3, 2, 0, 0, 0, 0, loc); !ev.End.Equal(want) {
		t.Errorf("End = %v, want %v", ev.End, want)
	}
	if ev.Title != "(no title)" {
		t.Errorf("Title = %q", ev.Title)
	}
}

func TestMapOutlook(t *testing.T) {
	ev, err := MapOutlook(contract.OutlookEvent{
		ID:      "xyz",
		Subject: "Team sync",
		Start:   contract.OutlookDateTime{DateTime: "2025-01-20T15:00:00.0000000", TimeZone: "UTC"},
		End:     contract.OutlookDateTime{DateTime: "2025-01-20T15:30:00.0000000", TimeZone: "UTC"},
		Body:    contract.OutlookBody{Content: " notes "},
	}, time.FixedZone("TEST", 3600))
	if err != nil {
		t.Fatalf("MapOutlook() error = %v", err)
	}
	if ev.ID != "outlook_xyz" || ev.Source != contract.SourceOutlook {
		t.Errorf("unexpected tagging: %+v", ev)
	}
	if !ev.Start.Equal(time.Date(2025, 1, 20, 15, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %v", ev.Start)
	}
	if ev.Description != "notes" {
		t.Errorf("Description = %q", ev.Description)
	}
}

func TestMapOutlookAllDay(t *testing.T) {
	ev, err := MapOutlook(contract.OutlookEvent{
		ID:       "hol",
		Subject:  "Holiday",
		IsAllDay: true,
		Start:    contract.OutlookDateTime{DateTime: "2025-03-01T00:00:00.0000000", TimeZone: "UTC"},
		End:      contract.OutlookDateTime{DateTime: "2025-03-02T00:00:00.0000000", TimeZone: "UTC"},
	}, time.UTC)
	if err != nil {
		t.Fatalf("MapOutlook() error = %v", err)
	}
	if !ev.AllDay || !ev.Start.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected all-day mapping: %+v", ev)
	}
}

func TestMapSyncResponseSkipsBadEvents(t *testing.T) {
	resp := contract.SyncResponse{Results: contract.SyncResults{
		Google: &contract.GoogleSyncResult{Events: []contract.GoogleEvent{
			{ID: "ok", Start: contract.GoogleEventTime{DateTime: "2025-01-20T09:00:00Z"}, End: contract.GoogleEventTime{DateTime: "2025-01-20T10:00:00Z"}},
			{ID: "bad", Start: contract.GoogleEventTime{DateTime: "tomorrow"}, End: contract.GoogleEventTime{DateTime: "2025-01-20T10:00:00Z"}},
			{ID: "ok", Start: contract.GoogleEventTime{DateTime: "2025-01-21T09:00:00Z"}, End: contract.GoogleEventTime{DateTime: "2025-01-21T10:00:00Z"}},
		}},
		Outlook: &contract.OutlookSyncResult{Events: []contract.OutlookEvent{
			{ID: "o1", Start: contract.OutlookDateTime{DateTime: "2025-01-20T12:00:00"}, End: contract.OutlookDateTime{DateTime: "2025-01-20T13:00:00"}},
		}},
	}}

	equalIDs(t, MapSyncResponse(resp, time.UTC), "google_ok", "outlook_o1")
}

func TestReplaceManual(t *testing.T) {
	current := []contract.CalendarEvent{
		manualEvent("old", "Old"),
		{ID: "google_a", Source: contract.SourceGoogle, Type: contract.TypeSynced},
	}
	got := replaceManual(current, []contract.CalendarEvent{manualEvent("new", "New")})
	equalIDs(t, got, "new", "google_a")
}
