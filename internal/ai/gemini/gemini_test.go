package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/config"
	apperrors "github.com/khulnasoft/pr-insight/internal/errors"
)

func TestExtractUsage(t *testing.T) {
	t.Run("nil response", func(t *testing.T) {
		assert.Nil(t, extractUsage(nil))
	})

	t.Run("nil UsageMetadata", func(t *testing.T) {
		assert.Nil(t, extractUsage(&genai.GenerateContentResponse{}))
	})

	t.Run("valid UsageMetadata", func(t *testing.T) {
		usage := extractUsage(&genai.GenerateContentResponse{
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
				PromptTokenCount:     10,
				CandidatesTokenCount: 20,
				TotalTokenCount:      30,
			},
		})
		require.NotNil(t, usage)
		assert.Equal(t, 10, usage.InputTokens)
		assert.Equal(t, 20, usage.OutputTokens)
		assert.Equal(t, 30, usage.TotalTokens)
		assert.Equal(t, ai.BackendGemini, usage.Provider)
	})
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "review:\n"},
				{Text: "  score: 70"},
			}},
		}},
	}
	assert.Equal(t, "review:\n  score: 70", responseText(resp))
	assert.Equal(t, "STOP", finishReason(resp))
	assert.Empty(t, responseText(nil))
}

func TestGenerateConfig(t *testing.T) {
	cfg := generateConfig(ai.Request{System: "sys", Temperature: 0.2})
	require.NotNil(t, cfg.Temperature)
	assert.Equal(t, float32(0.2), *cfg.Temperature)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "sys", cfg.SystemInstruction.Parts[0].Text)

	assert.Nil(t, generateConfig(ai.Request{}).SystemInstruction)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(errors.New("Error 429, RESOURCE EXHAUSTED")), apperrors.ErrQuotaExceeded)
	assert.ErrorIs(t, classify(errors.New("API key not valid")), apperrors.ErrAPIKeyInvalid)
	assert.ErrorIs(t, classify(errors.New("boom")), apperrors.ErrAIGeneration)
}

func TestNew_RequiresKey(t *testing.T) {
	s, err := config.Default()
	require.NoError(t, err)
	_, err = New(context.Background(), s)
	assert.ErrorIs(t, err, apperrors.ErrAPIKeyMissing)
}
