package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var out bytes.Buffer
	l := New(Options{Format: FormatJSON, Output: &out})

	l.Info(context.Background(), "release activated", "host", "web1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	assert.Equal(t, "release activated", rec["msg"])
	assert.Equal(t, "web1", rec["host"])
	assert.Equal(t, "INFO", rec["level"])
}

func TestNew_LevelFilters(t *testing.T) {
	var out bytes.Buffer
	l := New(Options{Format: FormatJSON, Output: &out, Level: "warn"})
	ctx := context.Background()

	l.Debug(ctx, "hidden")
	l.Info(ctx, "hidden")
	l.Warn(ctx, "shown")
	l.Error(ctx, "shown too")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 2)
}

func TestNew_Text(t *testing.T) {
	var out bytes.Buffer
	l := New(Options{Output: &out, NoColor: true})

	l.Info(context.Background(), "phase changed", "to", "check")

	assert.Contains(t, out.String(), "phase changed")
	assert.Contains(t, out.String(), "to=check")
}

func TestNew_FileReceivesDebug(t *testing.T) {
	var out, file bytes.Buffer
	l := New(Options{Format: FormatJSON, Output: &out, Level: "info", File: &file})

	l.Debug(context.Background(), "rsync output", "line", "deleting x")

	assert.Empty(t, out.String())
	assert.Contains(t, file.String(), "rsync output")
}

func TestWithRunID(t *testing.T) {
	var out, file bytes.Buffer
	l := New(Options{Format: FormatJSON, Output: &out, File: &file}).WithRunID("abc")

	l.Info(context.Background(), "started")

	assert.Contains(t, out.String(), `"run_id":"abc"`)
	assert.Contains(t, file.String(), `"run_id":"abc"`)
}

func TestDiscard(t *testing.T) {
	l := Discard()

	assert.NotPanics(t, func() {
		l.Error(context.Background(), "nothing", "k", "v")
		l.With("k", "v").Info(context.Background(), "nothing")
	})
	assert.False(t, l.Slog().Enabled(context.Background(), slog.LevelError))
}
