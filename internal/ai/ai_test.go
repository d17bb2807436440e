package ai

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/khulnasoft/pr-insight/internal/cache"
	"github.com/khulnasoft/pr-insight/internal/config"
	apperrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/services/cost"
)

type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) ChatCompletion(ctx context.Context, req Request) (Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Response), args.Error(1)
}

func defaultSettings(t *testing.T) *config.Settings {
	t.Helper()
	s, err := config.Default()
	require.NoError(t, err)
	return s
}

func TestBackendFor(t *testing.T) {
	s := defaultSettings(t)
	tests := []struct {
		model   string
		backend string
		name    string
	}{
		{"gpt-4o", BackendOpenAI, "gpt-4o"},
		{"claude-3-5-sonnet", BackendAnthropic, "claude-3-5-sonnet"},
		{"anthropic/claude-3-7-sonnet-20250219", BackendAnthropic, "claude-3-7-sonnet-20250219"},
		{"gemini-1.5-pro", BackendGemini, "gemini-1.5-pro"},
		{"google/gemini-2.0-flash", BackendGemini, "gemini-2.0-flash"},
		{"deepseek-chat", BackendDeepSeek, "deepseek-chat"},
		{"azure/gpt-4o", BackendAzure, "gpt-4o"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			backend, name := BackendFor(s, tt.model)
			assert.Equal(t, tt.backend, backend)
			assert.Equal(t, tt.name, name)
		})
	}

	t.Run("should route plain models to azure when configured", func(t *testing.T) {
		require.NoError(t, s.Set("openai.api_type", "azure"))
		backend, _ := BackendFor(s, "gpt-4o")
		assert.Equal(t, BackendAzure, backend)
	})
}

func TestRouter_ChatCompletion(t *testing.T) {
	ctx := context.Background()
	s := defaultSettings(t)

	built := 0
	anthropic := new(mockHandler)
	anthropic.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(r Request) bool {
		return r.Model == "claude-3-5-sonnet"
	})).Return(Response{Text: "ok", Usage: &models.TokenUsage{}}, nil)

	r := NewRouter(s, map[string]Factory{
		BackendAnthropic: func(context.Context) (Handler, error) {
			built++
			return anthropic, nil
		},
	})

	for i := 0; i < 2; i++ {
		resp, err := r.ChatCompletion(ctx, Request{Model: "anthropic/claude-3-5-sonnet"})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Text)
		assert.Equal(t, BackendAnthropic, resp.Usage.Provider)
	}
	assert.Equal(t, 1, built)

	_, err := r.ChatCompletion(ctx, Request{Model: "gpt-4o"})
	assert.ErrorIs(t, err, apperrors.ErrProviderNotSupported)

	_, err = r.Embed(ctx, "claude-3-5-sonnet", []string{"x"})
	assert.ErrorIs(t, err, apperrors.ErrProviderNotSupported)
}

func TestRetryWithBackoff(t *testing.T) {
	retryBaseDelay = time.Millisecond
	t.Cleanup(func() { retryBaseDelay = time.Second })
	ctx := context.Background()

	t.Run("should retry transient errors", func(t *testing.T) {
		calls := 0
		got, err := RetryWithBackoff(ctx, "test", func() (string, error) {
			calls++
			if calls < 3 {
				return "", &StatusError{Provider: "openai", Code: 503}
			}
			return "done", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "done", got)
		assert.Equal(t, 3, calls)
	})

	t.Run("should not retry permanent errors", func(t *testing.T) {
		calls := 0
		_, err := RetryWithBackoff(ctx, "test", func() (int, error) {
			calls++
			return 0, &StatusError{Provider: "openai", Code: 401}
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("should give up after the last retry", func(t *testing.T) {
		calls := 0
		_, err := RetryWithBackoff(ctx, "test", func() (int, error) {
			calls++
			return 0, errors.New("anthropic: overloaded")
		})
		assert.Error(t, err)
		assert.Equal(t, MaxRetries+1, calls)
	})
}

func TestRetryWithFallbackModels(t *testing.T) {
	ctx := context.Background()
	s := defaultSettings(t)
	require.NoError(t, s.Set("config.model", "gpt-4o"))
	require.NoError(t, s.Set("config.fallback_models", `["claude-3-5-sonnet", "gpt-4o"]`))

	t.Run("should fall back to the next model", func(t *testing.T) {
		var tried []string
		got, err := RetryWithFallbackModels(ctx, s, ModelRegular, func(_ context.Context, model string) (string, error) {
			tried = append(tried, model)
			if model == "gpt-4o" {
				return "", errors.New("boom")
			}
			return model, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "claude-3-5-sonnet", got)
		assert.Equal(t, []string{"gpt-4o", "claude-3-5-sonnet"}, tried)
	})

	t.Run("should report when every model fails", func(t *testing.T) {
		_, err := RetryWithFallbackModels(ctx, s, ModelRegular, func(context.Context, string) (string, error) {
			return "", errors.New("boom")
		})
		assert.ErrorIs(t, err, apperrors.ErrAllModelsFailed)
	})

	t.Run("should start with the turbo model", func(t *testing.T) {
		assert.Equal(t, []string{"gpt-4o-mini", "claude-3-5-sonnet", "gpt-4o"}, Models(s, ModelTurbo))
	})
}

func TestRender(t *testing.T) {
	s := defaultSettings(t)

	t.Run("should fail on missing variables", func(t *testing.T) {
		_, err := RenderPrompt("t", "{{.title}}", map[string]any{})
		assert.Error(t, err)
	})

	t.Run("should render the question prompt", func(t *testing.T) {
		_, user, err := Render(s, "pr_questions_prompt", map[string]any{
			"title":               "Add retries",
			"branch":              "feature/retries",
			"description":         "",
			"language":            "Go",
			"diff":                "+retry()",
			"questions":           "why?",
			"commit_messages_str": "",
		})
		require.NoError(t, err)
		assert.Contains(t, user, "Add retries")
		assert.Contains(t, user, "+retry()")
	})
}

func TestCostAwareWrapper(t *testing.T) {
	ctx := context.Background()
	s := defaultSettings(t)
	dir := t.TempDir()

	c, err := cache.NewAt(filepath.Join(dir, "cache"), time.Hour)
	require.NoError(t, err)
	m, err := cost.NewManagerAt(filepath.Join(dir, "history.json"), 0)
	require.NoError(t, err)

	next := new(mockHandler)
	next.On("ChatCompletion", mock.Anything, mock.Anything).Return(Response{
		Text:  "review: ok",
		Usage: &models.TokenUsage{InputTokens: 1_000_000, OutputTokens: 0},
	}, nil).Once()

	w := NewCostAwareWrapper(WrapperConfig{Next: next, Settings: s, Manager: m, Cache: c})
	req := Request{Model: "gpt-4o", System: "sys", User: "diff", Command: "review"}

	first, err := w.ChatCompletion(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "review: ok", first.Text)
	assert.InDelta(t, 2.50, first.Usage.CostUSD, 1e-9)
	assert.False(t, first.Usage.CacheHit)

	second, err := w.ChatCompletion(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "review: ok", second.Text)
	assert.True(t, second.Usage.CacheHit)
	next.AssertExpectations(t)

	history, err := m.GetHistory()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "review", history[0].Command)
}

func TestCostAwareWrapper_Budget(t *testing.T) {
	ctx := context.Background()
	s := defaultSettings(t)
	m, err := cost.NewManagerAt(filepath.Join(t.TempDir(), "history.json"), 0.01)
	require.NoError(t, err)
	require.NoError(t, m.SaveActivity(ctx, cost.ActivityRecord{Timestamp: time.Now(), CostUSD: 0.01}))

	next := new(mockHandler)
	w := NewCostAwareWrapper(WrapperConfig{Next: next, Settings: s, Manager: m, EstimatedOutputTokens: 1000})

	_, err = w.ChatCompletion(ctx, Request{Model: "gpt-4o", User: "diff"})
	assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
	next.AssertNotCalled(t, "ChatCompletion", mock.Anything, mock.Anything)
}
