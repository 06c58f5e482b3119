// Package logging provides the structured logger used by every component.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getpup/pupsourcing/es"
	"github.com/lmittmann/tint"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options configures a Logger.
type Options struct {
	// Level is one of debug, info, warn or error (default: info).
	Level string

	// Format is text or json (default: text).
	Format string

	// Output receives the log lines (default: os.Stderr).
	Output io.Writer

	// NoColor disables colors in text output.
	NoColor bool

	// File, if set, also receives every record as JSON at debug level.
	File io.Writer
}

// Logger writes structured log records through log/slog.
type Logger struct {
	slog *slog.Logger
}

// Compile-time check that Logger implements es.Logger.
var _ es.Logger = (*Logger)(nil)

// New creates a logger from opts.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	level := ParseLevel(opts.Level)

	var handler slog.Handler
	switch opts.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(opts.Output, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(opts.Output, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    opts.NoColor,
		})
	}

	if opts.File != nil {
		file := slog.NewJSONHandler(opts.File, &slog.HandlerOptions{Level: slog.LevelDebug})
		handler = fanout{handler, file}
	}

	return &Logger{slog: slog.New(handler)}
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{slog: slog.New(fanout{})}
}

// With returns a logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

// WithRunID adds run_id to every record.
func (l *Logger) WithRunID(runID string) *Logger {
	return l.With("run_id", runID)
}

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Debug logs at debug level.
func (l *Logger) Debug(ctx context.Context, msg string, keyvals ...interface{}) {
	l.slog.DebugContext(ctx, msg, keyvals...)
}

// Info logs at info level.
func (l *Logger) Info(ctx context.Context, msg string, keyvals ...interface{}) {
	l.slog.InfoContext(ctx, msg, keyvals...)
}

// Warn logs at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, keyvals ...interface{}) {
	l.slog.WarnContext(ctx, msg, keyvals...)
}

// Error logs at error level.
func (l *Logger) Error(ctx context.Context, msg string, keyvals ...interface{}) {
	l.slog.ErrorContext(ctx, msg, keyvals...)
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("write log record: %w", err)
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
