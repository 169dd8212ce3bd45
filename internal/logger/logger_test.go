package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestPrettyHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug")

	log.With("worker", "w-1").Info("action finished", "elapsed", 1500*time.Millisecond, "reason", "timed out", "ok", true)

	line := buf.String()
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, "INFO   action finished")
	assert.Contains(t, line, "worker=w-1")
	assert.Contains(t, line, "elapsed=1.5s")
	assert.Contains(t, line, `reason="timed out"`)
	assert.Contains(t, line, "ok=true")
	assert.NotContains(t, line, "\033[", "buffers never get colors")
}

func TestPrettyHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Info("hidden")
	log.Debug("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WARN   shown")
}

func TestPrettyHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil, false))

	log.WithGroup("phase").With("name", "ramp").Info("started", "clients", 4)

	assert.Contains(t, buf.String(), "phase.name=ramp")
	assert.Contains(t, buf.String(), "phase.clients=4")
}

func TestPrettyHandlerColor(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, slog.LevelInfo, true))

	log.Error("boom")

	assert.Contains(t, buf.String(), ansiRed)
	assert.Contains(t, buf.String(), ansiReset)
}
