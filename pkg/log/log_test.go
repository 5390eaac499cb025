package log

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLevelString(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"warning alias", "warning", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"mixed case", "DEBUG", slog.LevelDebug},
		{"unknown falls back to info", "verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetLevelString(tt.level)
			assert.Equal(t, tt.want, levelVar.Level())
		})
	}

	SetLevel(slog.LevelInfo)
}

func TestSetDebug(t *testing.T) {
	SetDebug(true)
	assert.True(t, IsDebug())

	SetDebug(false)
	assert.False(t, IsDebug())
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	logger := WithComponent("mcp.manager")
	logger.Info("server connected", "server", "s1")

	out := buf.String()
	assert.Contains(t, out, "component=mcp.manager")
	assert.Contains(t, out, "server connected")
	assert.Contains(t, out, "server=s1")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	SetLevel(slog.LevelInfo)
	Debug("hidden")
	Info("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestFormatStyleLogging(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Infof("connected to %s in %dms", "s1", 42)
	assert.True(t, strings.Contains(buf.String(), "connected to s1 in 42ms"))
}
