package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khulnasoft/pr-insight/internal/ai"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/i18n"
	"github.com/khulnasoft/pr-insight/internal/models"
)

func init() {
	color.NoColor = true
}

type cannedHandler struct {
	usage *models.TokenUsage
	err   error
}

func (h cannedHandler) ChatCompletion(context.Context, ai.Request) (ai.Response, error) {
	return ai.Response{Text: "ok", Usage: h.usage}, h.err
}

func TestHandleAppError(t *testing.T) {
	t.Run("application error with suggestion", func(t *testing.T) {
		var buf bytes.Buffer
		err := domainErrors.ErrUnknownCommand.
			WithContext("command", "deploy").
			WithSuggestion("run /help\nto list the commands")

		HandleAppError(&buf, err, i18n.MustNew("en"))
		out := buf.String()
		assert.Contains(t, out, "VALIDATION: unknown command")
		assert.Contains(t, out, "command: deploy")
		assert.Contains(t, out, "💡 Try: run /help\n       to list the commands")
	})

	t.Run("plain error", func(t *testing.T) {
		var buf bytes.Buffer
		HandleAppError(&buf, errors.New("boom"), nil)
		assert.Contains(t, buf.String(), "boom")
	})

	t.Run("nil error prints nothing", func(t *testing.T) {
		var buf bytes.Buffer
		HandleAppError(&buf, nil, nil)
		assert.Empty(t, buf.String())
	})
}

func TestWithSpinner(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WithSpinner(&buf, "Running review", func() error { return nil }))
	assert.Contains(t, buf.String(), "Running review")

	want := errors.New("failed")
	assert.ErrorIs(t, WithSpinner(&bytes.Buffer{}, "Running review", func() error { return want }), want)
}

func TestUsageMeter(t *testing.T) {
	m := NewUsageMeter(cannedHandler{usage: &models.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, CostUSD: 0.01, CacheHit: true}})
	for i := 0; i < 2; i++ {
		_, err := m.ChatCompletion(context.Background(), ai.Request{})
		require.NoError(t, err)
	}
	usage, calls := m.Usage()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 30, usage.TotalTokens)
	assert.InDelta(t, 0.02, usage.CostUSD, 1e-9)

	var buf bytes.Buffer
	PrintTokenUsage(&buf, usage, calls, i18n.MustNew("en"))
	out := buf.String()
	assert.Contains(t, out, "Token usage: Input: 20 | Output: 10 | Total: 30 (2 model calls)")
	assert.Contains(t, out, "$0.0200 USD")
	assert.Contains(t, out, "Served from the response cache")

	failing := NewUsageMeter(cannedHandler{err: errors.New("down")})
	_, err := failing.ChatCompletion(context.Background(), ai.Request{})
	assert.Error(t, err)
	_, calls = failing.Usage()
	assert.Zero(t, calls)

	buf.Reset()
	PrintTokenUsage(&buf, models.TokenUsage{}, 0, i18n.MustNew("en"))
	assert.Empty(t, buf.String())
}
