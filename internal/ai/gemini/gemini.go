// Package gemini serves Gemini models through the genai SDK.
package gemini

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/config"
	apperrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/models"
)

const maxOutputTokens = 8192

type Client struct {
	client *genai.Client
}

func New(ctx context.Context, s *config.Settings) (*Client, error) {
	key := s.GoogleAIStudio.GeminiAPIKey
	if key == "" {
		return nil, apperrors.ErrAPIKeyMissing.WithContext("backend", ai.BackendGemini)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, classify(err)
	}
	return &Client{client: client}, nil
}

func (c *Client) ChatCompletion(ctx context.Context, req ai.Request) (ai.Response, error) {
	cfg := generateConfig(req)
	resp, err := ai.RetryWithBackoff(ctx, "gemini generate", func() (*genai.GenerateContentResponse, error) {
		return c.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.User), cfg)
	})
	if err != nil {
		logger.Error(ctx, "gemini API call failed", err, "model", req.Model)
		return ai.Response{}, classify(err)
	}

	text := responseText(resp)
	if text == "" {
		return ai.Response{}, apperrors.ErrInvalidAIOutput.
			WithContext("reason", "empty response").
			WithContext("backend", ai.BackendGemini)
	}
	return ai.Response{Text: text, FinishReason: finishReason(resp), Usage: extractUsage(resp)}, nil
}

// CountTokens asks the API for the prompt size.
func (c *Client) CountTokens(ctx context.Context, model, text string) (int, error) {
	resp, err := c.client.Models.CountTokens(ctx, model, genai.Text(text), nil)
	if err != nil {
		return 0, classify(err)
	}
	return int(resp.TotalTokens), nil
}

func generateConfig(req ai.Request) *genai.GenerateContentConfig {
	t := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &t,
		MaxOutputTokens: int32(maxOutputTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return cfg
}

func extractUsage(resp *genai.GenerateContentResponse) *models.TokenUsage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	return &models.TokenUsage{
		InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
		OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		Provider:     ai.BackendGemini,
	}
}

// responseText joins the text parts of every candidate, skipping thoughts.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return ""
	}
	return string(resp.Candidates[0].FinishReason)
}

func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "resource exhausted"):
		return apperrors.ErrQuotaExceeded.WithError(err).WithContext("backend", ai.BackendGemini)
	case strings.Contains(msg, "api key"), strings.Contains(msg, "unauthorized"), strings.Contains(msg, "permission denied"):
		return apperrors.ErrAPIKeyInvalid.WithError(err).WithContext("backend", ai.BackendGemini)
	default:
		return apperrors.ErrAIGeneration.WithError(err).WithContext("backend", ai.BackendGemini)
	}
}
