// ABOUTME: Tests for the colorized slog handler and level parsing
// ABOUTME: Color is disabled so assertions can match plain text

package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestColorHandler(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	logger := slog.New(newColorHandler(&buf, slog.LevelInfo))

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.With("component", "gateway").
		WithGroup("conn").
		Warn("slow app", "id", "c1", slog.Group("queue", "depth", 64))

	out := buf.String()
	assert.Contains(t, out, "WRN slow app")
	assert.Contains(t, out, " component=gateway")
	assert.Contains(t, out, " conn.id=c1")
	assert.Contains(t, out, " conn.queue.depth=64")
	assert.Equal(t, byte('\n'), out[len(out)-1])
}
