package database

import (
	"database/sql"
	"time"
)

// OAuthToken is the stored credential for one provider.
type OAuthToken struct {
	Provider  string
	TokenEnc  []byte
	Scopes    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Student is a roster row.
type Student struct {
	ID        string
	Name      string
	Email     sql.NullString
	CreatedAt time.Time
}

// LocalEvent is a trainer-owned event row.
type LocalEvent struct {
	ID          string
	Title       string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Description sql.NullString
	Type        string
	StudentID   sql.NullString
	StudentName sql.NullString // joined, not a column
	Recurrence  sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SyncRun records the outcome of fetching one provider.
type SyncRun struct {
	ID         int64
	RunID      string
	Provider   string
	Status     string
	EventCount int
	Error      sql.NullString
	StartedAt  time.Time
	FinishedAt time.Time
}

// Sync run statuses
const (
	SyncStatusOK     = "ok"
	SyncStatusFailed = "failed"
)
