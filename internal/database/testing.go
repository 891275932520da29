package database

import (
	"path/filepath"
	"strings"
	"testing"
)

// OpenForTest opens a migrated database in a temp dir and closes it on cleanup.
// The test is skipped when the sqlite driver was built without cgo.
func OpenForTest(t testing.TB) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		if strings.Contains(err.Error(), "cgo") {
			t.Skipf("sqlite unavailable: %v", err)
		}
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
