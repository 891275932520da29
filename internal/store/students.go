package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dtorcivia/trainercal/internal/contract"
	"github.com/dtorcivia/trainercal/internal/util"
)

// ListStudents returns the roster ordered by name.
func (s *Store) ListStudents(ctx context.Context) ([]contract.Student, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, created_at FROM students ORDER BY name COLLATE NOCASE, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	students := []contract.Student{}
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// GetStudent returns one student or ErrNotFound.
func (s *Store) GetStudent(ctx context.Context, id string) (contract.Student, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, email, created_at FROM students WHERE id = ?`, id)
	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return contract.Student{}, ErrNotFound
	}
	return st, err
}

// CreateStudent validates and inserts a student.
func (s *Store) CreateStudent(ctx context.Context, in contract.StudentInput) (contract.Student, error) {
	name := util.SanitizeString(in.Name)
	if err := util.ValidateTitle(name); err != nil {
		return contract.Student{}, invalid("name", "%v", err)
	}
	if in.Email != "" {
		if err := util.ValidateEmail(in.Email); err != nil {
			return contract.Student{}, invalid("email", "%v", err)
		}
	}

	st := contract.Student{
		ID:        s.newID(),
		Name:      name,
		Email:     in.Email,
		CreatedAt: s.now().UTC().Truncate(time.Second),
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, name, email, created_at) VALUES (?, ?, ?, ?)
	`, st.ID, st.Name, nullString(st.Email), util.SQLiteTimestamp(st.CreatedAt)); err != nil {
		return contract.Student{}, fmt.Errorf("failed to create student: %w", err)
	}
	return st, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (contract.Student, error) {
	var (
		st      contract.Student
		email   sql.NullString
		created string
	)
	if err := row.Scan(&st.ID, &st.Name, &email, &created); err != nil {
		return st, err
	}
	st.Email = email.String
	st.CreatedAt, _ = util.ParseSQLiteTimestamp(created)
	return st, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
