package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrettyHandlerHandle(t *testing.T) {
	ctx := context.Background()

	t.Run("Renders level, message and attributes", func(t *testing.T) {
		var buf bytes.Buffer
		handler := NewPrettyHandler(&buf, PrettyHandlerOptions{})

		record := slog.NewRecord(time.Now(), slog.LevelWarn, "provider rate limited", 0)
		record.AddAttrs(slog.String("resource_id", "r-1"), slog.Int("attempt", 3))

		err := handler.Handle(ctx, record)

		assert.NoError(t, err)
		output := buf.String()
		assert.Contains(t, output, "WARN:")
		assert.Contains(t, output, "provider rate limited")
		assert.Contains(t, output, "resource_id")
		assert.Contains(t, output, "r-1")
		assert.Contains(t, output, "attempt")
		assert.Contains(t, output, "3")
	})

	t.Run("Renders records with no attributes", func(t *testing.T) {
		var buf bytes.Buffer
		handler := NewPrettyHandler(&buf, PrettyHandlerOptions{})

		record := slog.NewRecord(time.Now(), slog.LevelInfo, "server listening", 0)

		err := handler.Handle(ctx, record)

		assert.NoError(t, err)
		output := buf.String()
		assert.Contains(t, output, "INFO:")
		assert.Contains(t, output, "server listening")
		assert.Contains(t, output, "{}")
	})
}

func TestParseLevel(t *testing.T) {
	t.Run("Maps known names and defaults to info", func(t *testing.T) {
		assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
		assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
		assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
		assert.Equal(t, slog.LevelError, ParseLevel("error"))
		assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
		assert.Equal(t, slog.LevelInfo, ParseLevel(""))
		assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
	})
}
