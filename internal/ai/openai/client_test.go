package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/config"
	apperrors "github.com/khulnasoft/pr-insight/internal/errors"
)

func settings(t *testing.T) *config.Settings {
	t.Helper()
	s, err := config.Default()
	require.NoError(t, err)
	require.NoError(t, s.Set("openai.key", "sk-test"))
	require.NoError(t, s.Set("deepseek.key", "ds-test"))
	return s
}

func TestClient_ChatCompletion(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "review:\n  score: 90"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150}
		}`))
	}))
	defer srv.Close()

	c, err := New(settings(t), FlavorOpenAI, WithBaseURL(srv.URL))
	require.NoError(t, err)

	resp, err := c.ChatCompletion(context.Background(), ai.Request{Model: "gpt-4o", System: "sys", User: "diff", Temperature: 0.2})
	require.NoError(t, err)

	assert.Equal(t, "review:\n  score: 90", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 120, resp.Usage.InputTokens)
	assert.Equal(t, 30, resp.Usage.OutputTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.2, *got.Temperature)
}

func TestClient_ChatCompletion_ReasoningModel(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer srv.Close()

	c, err := New(settings(t), FlavorOpenAI, WithBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = c.ChatCompletion(context.Background(), ai.Request{Model: "o3-mini", System: "sys", User: "diff"})
	require.NoError(t, err)

	require.Len(t, got.Messages, 1)
	assert.Equal(t, "sys\n\n\ndiff", got.Messages[0].Content)
	assert.Nil(t, got.Temperature)
}

func TestClient_Azure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/gpt4o-prod/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-06-01", r.URL.Query().Get("api-version"))
		assert.Equal(t, "sk-test", r.Header.Get("api-key"))
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer srv.Close()

	s := settings(t)
	require.NoError(t, s.Set("openai.deployment_id", "gpt4o-prod"))
	c, err := New(s, FlavorAzure, WithBaseURL(srv.URL))
	require.NoError(t, err)

	resp, err := c.ChatCompletion(context.Background(), ai.Request{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}

func TestClient_Errors(t *testing.T) {
	t.Run("should require a key", func(t *testing.T) {
		s, err := config.Default()
		require.NoError(t, err)
		_, err = New(s, FlavorOpenAI)
		assert.ErrorIs(t, err, apperrors.ErrAPIKeyMissing)
	})

	t.Run("should map authentication failures", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": {"message": "Incorrect API key"}}`))
		}))
		defer srv.Close()

		c, err := New(settings(t), FlavorDeepSeek, WithBaseURL(srv.URL))
		require.NoError(t, err)
		_, err = c.ChatCompletion(context.Background(), ai.Request{Model: "deepseek-chat"})
		assert.ErrorIs(t, err, apperrors.ErrAPIKeyInvalid)
	})
}

func TestClient_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"data": [
			{"index": 1, "embedding": [0.3, 0.4]},
			{"index": 0, "embedding": [0.1, 0.2]}
		]}`))
	}))
	defer srv.Close()

	c, err := New(settings(t), FlavorOpenAI, WithBaseURL(srv.URL))
	require.NoError(t, err)

	vectors, err := c.Embed(context.Background(), "text-embedding-ada-002", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vectors)
}
