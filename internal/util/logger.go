// Package util provides a structured logger for the application.
package util

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// ParseLogLevel converts a string to a slog level. Unknown values map to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger provides structured logging on top of log/slog.
type Logger struct {
	level  slog.Level
	format string // "json" or "text"
	inner  *slog.Logger
}

// NewLogger creates a new logger writing to stdout.
func NewLogger(level, format string) *Logger {
	return newLogger(os.Stdout, ParseLogLevel(level), format)
}

func newLogger(w io.Writer, level slog.Level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		format = "json"
		h = slog.NewJSONHandler(w, opts)
	}
	return &Logger{level: level, format: format, inner: slog.New(h)}
}

// WithOutput returns a logger with the same level and format writing to w.
// Fields attached with With are not carried over.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	return newLogger(w, l.level, l.format)
}

// With returns a new logger with an additional field.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{level: l.level, format: l.format, inner: l.inner.With(key, value)}
}

// WithFields returns a new logger with multiple additional fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{level: l.level, format: l.format, inner: l.inner.With(args...)}
}

// Slog exposes the underlying slog logger.
func (l *Logger) Slog() *slog.Logger {
	return l.inner
}

func (l *Logger) Debug(msg string, args ...any) { l.inner.Debug(msg, normalize(args)...) }
func (l *Logger) Info(msg string, args ...any)  { l.inner.Info(msg, normalize(args)...) }
func (l *Logger) Warn(msg string, args ...any)  { l.inner.Warn(msg, normalize(args)...) }
func (l *Logger) Error(msg string, args ...any) { l.inner.Error(msg, normalize(args)...) }

// normalize renders error values as strings so the JSON handler does not
// emit them as empty objects.
func normalize(args []any) []any {
	for i, a := range args {
		if err, ok := a.(error); ok && err != nil {
			args[i] = err.Error()
		}
	}
	return args
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(NewLogger("info", "json"))
}

// SetDefaultLogger sets the default logger.
func SetDefaultLogger(l *Logger) {
	defaultLogger.Store(l)
}

// GetDefaultLogger returns the default logger.
func GetDefaultLogger() *Logger {
	return defaultLogger.Load()
}

// Package-level convenience functions

func Debug(msg string, args ...any) { GetDefaultLogger().Debug(msg, args...) }
func Info(msg string, args ...any)  { GetDefaultLogger().Info(msg, args...) }
func Warn(msg string, args ...any)  { GetDefaultLogger().Warn(msg, args...) }
func Error(msg string, args ...any) { GetDefaultLogger().Error(msg, args...) }
