package ui

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/i18n"
	"github.com/khulnasoft/pr-insight/internal/models"
)

// UsageMeter adds up the token usage of every model call made through it.
type UsageMeter struct {
	next ai.Handler

	mu    sync.Mutex
	total models.TokenUsage
	calls int
}

func NewUsageMeter(next ai.Handler) *UsageMeter {
	return &UsageMeter{next: next}
}

func (m *UsageMeter) ChatCompletion(ctx context.Context, req ai.Request) (ai.Response, error) {
	resp, err := m.next.ChatCompletion(ctx, req)
	if err != nil {
		return resp, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.total.Add(resp.Usage)
	if resp.Usage != nil && resp.Usage.CacheHit {
		m.total.CacheHit = true
	}
	return resp, nil
}

// Usage returns the accumulated usage and the number of calls.
func (m *UsageMeter) Usage() (models.TokenUsage, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total, m.calls
}

func PrintTokenUsage(w io.Writer, usage models.TokenUsage, calls int, t *i18n.Translations) {
	if calls == 0 {
		return
	}
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)

	_, _ = cyan.Fprint(w, "📊 ")
	_, _ = fmt.Fprintf(w, "%s: %s %d | %s %d | %s %d (%s)\n",
		t.GetMessage("cli.token_usage", 0, nil),
		t.GetMessage("cli.input", 0, nil), usage.InputTokens,
		t.GetMessage("cli.output", 0, nil), usage.OutputTokens,
		t.GetMessage("cli.total", 0, nil), usage.TotalTokens,
		t.GetMessage("cli.model_calls", calls, map[string]interface{}{"Count": calls}))
	if usage.CostUSD > 0 {
		_, _ = yellow.Fprint(w, "💰 ")
		_, _ = fmt.Fprintf(w, "%s: ", t.GetMessage("cli.cost", 0, nil))
		_, _ = yellow.Fprintf(w, "$%.4f USD\n", usage.CostUSD)
	}
	if usage.CacheHit {
		_, _ = green.Fprintf(w, "✓ %s\n", t.GetMessage("cli.cache_hit", 0, nil))
	}
	if usage.DurationMs > 0 {
		_, _ = fmt.Fprintf(w, "⏱️  %s: %dms\n", t.GetMessage("cli.duration", 0, nil), usage.DurationMs)
	}
}
