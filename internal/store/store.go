// Package store persists students and trainer-owned calendar events.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtorcivia/trainercal/internal/database"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Store is the sqlite-backed repository for students and manual events.
type Store struct {
	db    *database.DB
	loc   *time.Location
	now   func() time.Time
	newID func() string
}

// New creates a store. Recurrences are expanded in loc so weekly sessions keep
// their wall-clock time across DST changes.
func New(db *database.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		db:    db,
		loc:   loc,
		now:   time.Now,
		newID: uuid.NewString,
	}
}
