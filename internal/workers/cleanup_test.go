package workers

import (
	"context"
	"testing"
	"time"

	"github.com/dtorcivia/trainercal/internal/config"
	"github.com/dtorcivia/trainercal/internal/database"
	"github.com/dtorcivia/trainercal/internal/util"
)

func TestRunOncePrunesOldRows(t *testing.T) {
	db := database.OpenForTest(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	insertRun := func(runID string, finished time.Time) {
		t.Helper()
		if _, err := db.ExecContext(ctx, `
			INSERT INTO sync_runs (run_id, provider, status, event_count, started_at, finished_at)
			VALUES (?, 'google', 'ok', 3, ?, ?)
		`, runID, util.SQLiteTimestamp(finished), util.SQLiteTimestamp(finished)); err != nil {
			t.Fatalf("insert sync run: %v", err)
		}
	}
	insertRun("old", now.AddDate(0, 0, -45))
	insertRun("recent", now.AddDate(0, 0, -2))

	insertState := func(hash string, expires time.Time) {
		t.Helper()
		if _, err := db.ExecContext(ctx, `
			INSERT INTO oauth_states (state_hash, provider, expires_at) VALUES (?, 'outlook', ?)
		`, hash, util.SQLiteTimestamp(expires)); err != nil {
			t.Fatalf("insert state: %v", err)
		}
	}
	insertState("expired", now.Add(-time.Minute))
	insertState("live", now.Add(5*time.Minute))

	w := NewCleanupWorker(db, &config.RetentionConfig{Enabled: true, SyncRunsDays: 30, Schedule: "0 3 * * *"})
	w.now = func() time.Time { return now }

	var ran bool
	w.AddTask(Task{Name: "extra", Run: func(context.Context) { ran = true }})

	res := w.RunOnce(ctx)
	if res.SyncRuns != 1 || res.OAuthStates != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !ran {
		t.Fatal("extra task did not run")
	}

	var runs, states int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_runs WHERE run_id = 'recent'`).Scan(&runs)
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM oauth_states WHERE state_hash = 'live'`).Scan(&states)
	if runs != 1 || states != 1 {
		t.Fatalf("recent rows were removed: runs=%d states=%d", runs, states)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	db := database.OpenForTest(t)
	w := NewCleanupWorker(db, &config.RetentionConfig{Enabled: true, Schedule: "every tuesday"})

	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestStartStopsWithContext(t *testing.T) {
	db := database.OpenForTest(t)
	w := NewCleanupWorker(db, &config.RetentionConfig{Enabled: true, SyncRunsDays: 30, Schedule: "@hourly"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
