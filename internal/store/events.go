package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dtorcivia/trainercal/internal/contract"
	"github.com/dtorcivia/trainercal/internal/database"
	"github.com/dtorcivia/trainercal/internal/util"
)

const eventColumns = `
	e.id, e.title, e.start_at, e.end_at, e.all_day, e.description, e.type,
	e.student_id, s.name, e.recurrence, e.created_at, e.updated_at`

// ListEvents returns manual events overlapping [from, to). Recurring events
// are expanded into occurrences; each carries the series id.
func (s *Store) ListEvents(ctx context.Context, from, to time.Time) ([]contract.CalendarEvent, error) {
	if !to.After(from) {
		return nil, invalid("window", "to must be after from")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM local_events e
		LEFT JOIN students s ON s.id = e.student_id
		WHERE e.start_at < ?
		  AND (e.end_at > ? OR (e.recurrence IS NOT NULL AND e.recurrence != ''))
		ORDER BY e.start_at, e.id
	`, util.SQLiteTimestamp(to), util.SQLiteTimestamp(from))
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var stored []database.LocalEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		stored = append(stored, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	events := []contract.CalendarEvent{}
	for _, ev := range stored {
		if !ev.Recurrence.Valid || ev.Recurrence.String == "" {
			events = append(events, toContract(ev))
			continue
		}
		exdates, err := s.exceptions(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		occ, err := expandSeries(ev, exdates, from, to, s.loc)
		if err != nil {
			util.Warn("Skipping event with invalid recurrence", "event_id", ev.ID, "error", err)
			continue
		}
		events = append(events, occ...)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	return events, nil
}

// GetEvent returns a stored event (a series master for recurring events).
func (s *Store) GetEvent(ctx context.Context, id string) (contract.CalendarEvent, error) {
	ev, err := s.getRow(ctx, id)
	if err != nil {
		return contract.CalendarEvent{}, err
	}
	return toContract(ev), nil
}

func (s *Store) getRow(ctx context.Context, id string) (database.LocalEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM local_events e
		LEFT JOIN students s ON s.id = e.student_id
		WHERE e.id = ?
	`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ev, ErrNotFound
	}
	return ev, err
}

// CreateEvent validates and inserts a manual event.
func (s *Store) CreateEvent(ctx context.Context, in contract.EventInput) (contract.CalendarEvent, error) {
	in, err := s.validate(ctx, in)
	if err != nil {
		return contract.CalendarEvent{}, err
	}

	id := s.newID()
	now := util.SQLiteTimestamp(s.now())
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO local_events
			(id, title, start_at, end_at, all_day, description, type, student_id, recurrence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, in.Title, util.SQLiteTimestamp(in.Start), util.SQLiteTimestamp(in.End), in.AllDay,
		nullString(in.Description), string(in.Type), nullString(in.StudentID), nullString(in.Recurrence),
		now, now); err != nil {
		return contract.CalendarEvent{}, fmt.Errorf("failed to create event: %w", err)
	}

	return s.GetEvent(ctx, id)
}

// UpdateEvent replaces the mutable fields of a stored event. Occurrence ids
// are rejected; edit the series instead.
func (s *Store) UpdateEvent(ctx context.Context, id string, in contract.EventInput) (contract.CalendarEvent, error) {
	in, err := s.validate(ctx, in)
	if err != nil {
		return contract.CalendarEvent{}, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE local_events SET
			title = ?, start_at = ?, end_at = ?, all_day = ?, description = ?,
			type = ?, student_id = ?, recurrence = ?, updated_at = ?
		WHERE id = ?
	`, in.Title, util.SQLiteTimestamp(in.Start), util.SQLiteTimestamp(in.End), in.AllDay,
		nullString(in.Description), string(in.Type), nullString(in.StudentID), nullString(in.Recurrence),
		util.SQLiteTimestamp(s.now()), id)
	if err != nil {
		return contract.CalendarEvent{}, fmt.Errorf("failed to update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contract.CalendarEvent{}, ErrNotFound
	}
	return s.GetEvent(ctx, id)
}

// DeleteEvent removes a stored event. An occurrence id removes only that
// occurrence from its series.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM local_events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	seriesID, occStart, ok := ParseOccurrenceID(id)
	if !ok {
		return ErrNotFound
	}
	series, err := s.getRow(ctx, seriesID)
	if err != nil {
		return err
	}
	if !series.Recurrence.Valid || series.Recurrence.String == "" {
		return ErrNotFound
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO event_exceptions (event_id, occurrence_start) VALUES (?, ?)
	`, seriesID, util.SQLiteTimestamp(occStart)); err != nil {
		return fmt.Errorf("failed to exclude occurrence: %w", err)
	}
	return nil
}

func (s *Store) exceptions(ctx context.Context, eventID string) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT occurrence_start FROM event_exceptions WHERE event_id = ?`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exceptions: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		if t, err := util.ParseSQLiteTimestamp(raw); err == nil {
			out = append(out, t)
		}
	}
	return out, rows.Err()
}

// validate normalizes input and enforces the manual-event rules.
func (s *Store) validate(ctx context.Context, in contract.EventInput) (contract.EventInput, error) {
	in.Title = util.SanitizeString(in.Title)
	if err := util.ValidateTitle(in.Title); err != nil {
		return in, invalid("title", "%v", err)
	}
	if err := util.ValidateTimeRange(in.Start, in.End); err != nil {
		return in, invalid("time", "%v", err)
	}
	if !in.Type.Manual() {
		return in, invalid("type", "must be training, consultation or personal")
	}

	in.StudentID = strings.TrimSpace(in.StudentID)
	if in.StudentID != "" {
		if !in.Type.LinksStudent() {
			return in, invalid("studentId", "only training and consultation events link a student")
		}
		if _, err := s.GetStudent(ctx, in.StudentID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return in, invalid("studentId", "unknown student %q", in.StudentID)
			}
			return in, err
		}
	}

	in.Recurrence = strings.TrimPrefix(strings.TrimSpace(in.Recurrence), "RRULE:")
	if in.Recurrence != "" {
		if err := ValidateRecurrence(in.Recurrence); err != nil {
			return in, invalid("recurrence", "%v", err)
		}
	}
	return in, nil
}

func scanEvent(row scanner) (database.LocalEvent, error) {
	var (
		ev               database.LocalEvent
		start, end       string
		created, updated string
	)
	err := row.Scan(&ev.ID, &ev.Title, &start, &end, &ev.AllDay, &ev.Description, &ev.Type,
		&ev.StudentID, &ev.StudentName, &ev.Recurrence, &created, &updated)
	if err != nil {
		return ev, err
	}
	if ev.Start, err = util.ParseSQLiteTimestamp(start); err != nil {
		return ev, fmt.Errorf("event %s: bad start_at: %w", ev.ID, err)
	}
	if ev.End, err = util.ParseSQLiteTimestamp(end); err != nil {
		return ev, fmt.Errorf("event %s: bad end_at: %w", ev.ID, err)
	}
	ev.CreatedAt, _ = util.ParseSQLiteTimestamp(created)
	ev.UpdatedAt, _ = util.ParseSQLiteTimestamp(updated)
	return ev, nil
}

func toContract(ev database.LocalEvent) contract.CalendarEvent {
	return contract.CalendarEvent{
		ID:          ev.ID,
		Title:       ev.Title,
		Start:       ev.Start,
		End:         ev.End,
		AllDay:      ev.AllDay,
		Description: ev.Description.String,
		Type:        contract.EventType(ev.Type),
		StudentID:   ev.StudentID.String,
		StudentName: ev.StudentName.String,
		Source:      contract.SourceManual,
		Recurrence:  ev.Recurrence.String,
	}
}
