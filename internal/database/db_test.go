package database

import (
	"context"
	"testing"
)

func TestOpenRunsMigrations(t *testing.T) {
	db := OpenForTest(t)

	var version int
	if err := db.QueryRow("SELECT MAX(version) FROM migrations").Scan(&version); err != nil {
		t.Fatalf("failed to read migration version: %v", err)
	}
	if want := len(allMigrations()); version != want {
		t.Fatalf("expected version %d, got %d", want, version)
	}

	for _, table := range []string{"oauth_tokens", "oauth_states", "students", "local_events", "sync_runs", "event_exceptions"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("missing table %s: %v", table, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := OpenForTest(t)
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestLocalEventTypeConstraint(t *testing.T) {
	db := OpenForTest(t)
	_, err := db.Exec(`INSERT INTO local_events (id, title, start_at, end_at, type) VALUES ('x', 't', 'a', 'b', 'synced')`)
	if err == nil {
		t.Fatal("synced events must not be storable")
	}
}

func TestOpenConfiguresConnection(t *testing.T) {
	db := OpenForTest(t)

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}
