package database

import "fmt"

func (db *DB) migrate() error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for _, m := range allMigrations() {
		if m.version > currentVersion {
			if err := db.runMigration(m); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.version, err)
			}
		}
	}
	return nil
}

type migration struct {
	version int
	sql     string
}

func (db *DB) runMigration(m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.sql); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

func allMigrations() []migration {
	return []migration{
		{version: 1, sql: migration001InitialSchema},
		{version: 2, sql: migration002EventExceptions},
	}
}

const migration001InitialSchema = `
-- Provider credentials; token_enc is an AES-256-GCM sealed oauth2.Token
CREATE TABLE IF NOT EXISTS oauth_tokens (
    provider TEXT PRIMARY KEY CHECK (provider IN ('google', 'outlook')),
    token_enc BLOB NOT NULL,
    scopes TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

-- Pending authorization flows; consumed on callback
CREATE TABLE IF NOT EXISTS oauth_states (
    state_hash TEXT PRIMARY KEY,            -- SHA-256 of the state parameter
    provider TEXT NOT NULL,
    expires_at TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_oauth_states_expires ON oauth_states(expires_at);

CREATE TABLE IF NOT EXISTS students (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

-- Trainer-owned (manual) events. Synced events are never stored.
CREATE TABLE IF NOT EXISTS local_events (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    start_at TEXT NOT NULL,                 -- RFC3339 UTC
    end_at TEXT NOT NULL,
    all_day INTEGER NOT NULL DEFAULT 0,
    description TEXT,
    type TEXT NOT NULL CHECK (type IN ('training', 'consultation', 'personal')),
    student_id TEXT REFERENCES students(id) ON DELETE SET NULL,
    recurrence TEXT,                        -- RRULE body without the RRULE: prefix
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_local_events_start ON local_events(start_at);

-- One row per provider per unified sync
CREATE TABLE IF NOT EXISTS sync_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('ok', 'failed')),
    event_count INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_provider ON sync_runs(provider, status, finished_at);
`

const migration002EventExceptions = `
-- Occurrences removed from a recurring series (EXDATE)
CREATE TABLE IF NOT EXISTS event_exceptions (
    event_id TEXT NOT NULL REFERENCES local_events(id) ON DELETE CASCADE,
    occurrence_start TEXT NOT NULL,         -- RFC3339 UTC
    PRIMARY KEY (event_id, occurrence_start)
);
`
