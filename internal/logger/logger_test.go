package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"INFO", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestContextLogger(t *testing.T) {
	t.Run("falls back to default logger", func(t *testing.T) {
		assert.Equal(t, slog.Default(), FromContext(context.Background()))
	})

	t.Run("carries attributes through With", func(t *testing.T) {
		var buf bytes.Buffer
		l := slog.New(slog.NewJSONHandler(&buf, nil))
		ctx := WithLogger(context.Background(), l)
		ctx = With(ctx, "pr_url", "https://github.com/o/r/pull/1")

		Error(ctx, "publish failed", errors.New("boom"))

		out := buf.String()
		assert.Contains(t, out, `"pr_url":"https://github.com/o/r/pull/1"`)
		assert.Contains(t, out, `"error":"boom"`)
		assert.Contains(t, out, `"msg":"publish failed"`)
	})
}

func TestPrettyHandler(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	l := slog.New(h).With("command", "review").WithGroup("ai").With("model", "gpt-4o")

	l.Debug("hidden")
	l.Info("prediction ready", "tokens", 120)

	assert.Equal(t, "[INFO]  prediction ready command=review ai.model=gpt-4o ai.tokens=120\n", buf.String())
}
