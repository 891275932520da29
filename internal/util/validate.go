package util

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Validation errors
var (
	ErrEmptyField     = errors.New("field cannot be empty")
	ErrInvalidEmail   = errors.New("invalid email address")
	ErrEndBeforeStart = errors.New("end time must be after start time")
	ErrTooLong        = errors.New("value too long")
)

// MaxTitleLength bounds event titles and student names.
const MaxTitleLength = 200

// ValidateEmail checks if a string is a valid email address.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmptyField
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateTitle checks a required, bounded, single-line label.
func ValidateTitle(s string) error {
	s = SanitizeString(s)
	if s == "" {
		return ErrEmptyField
	}
	if len(s) > MaxTitleLength {
		return fmt.Errorf("%w: %d exceeds %d characters", ErrTooLong, len(s), MaxTitleLength)
	}
	return nil
}

// ValidateTimeRange validates start and end times.
func ValidateTimeRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return ErrEmptyField
	}
	if !end.After(start) {
		return ErrEndBeforeStart
	}
	return nil
}

// SanitizeString removes leading/trailing whitespace and normalizes internal whitespace.
func SanitizeString(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateString truncates a string to max length, adding ellipsis if needed.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
