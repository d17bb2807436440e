// Package anthropic serves Claude models through the Messages API.
package anthropic

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/config"
	apperrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/models"
)

const maxOutputTokens = 4096

type Client struct {
	client *anthropic.Client
}

func New(s *config.Settings, opts ...option.RequestOption) (*Client, error) {
	if s.Anthropic.Key == "" {
		return nil, apperrors.ErrAPIKeyMissing.WithContext("backend", ai.BackendAnthropic)
	}
	opts = append([]option.RequestOption{option.WithAPIKey(s.Anthropic.Key), option.WithMaxRetries(0)}, opts...)
	return &Client{client: anthropic.NewClient(opts...)}, nil
}

func (c *Client) ChatCompletion(ctx context.Context, req ai.Request) (ai.Response, error) {
	message, err := ai.RetryWithBackoff(ctx, "anthropic messages", func() (*anthropic.Message, error) {
		return c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.F(anthropic.Model(req.Model)),
			MaxTokens:   anthropic.F(int64(maxOutputTokens)),
			Temperature: anthropic.F(req.Temperature),
			System: anthropic.F([]anthropic.TextBlockParam{
				anthropic.NewTextBlock(req.System),
			}),
			Messages: anthropic.F([]anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
			}),
		})
	})
	if err != nil {
		return ai.Response{}, wrap(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return ai.Response{}, apperrors.ErrInvalidAIOutput.
			WithContext("reason", "no text content").
			WithContext("backend", ai.BackendAnthropic)
	}

	logger.Debug(ctx, "anthropic usage",
		"model", req.Model,
		"input_tokens", message.Usage.InputTokens,
		"output_tokens", message.Usage.OutputTokens,
		"stop_reason", message.StopReason)

	return ai.Response{
		Text:         text.String(),
		FinishReason: string(message.StopReason),
		Usage: &models.TokenUsage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
			TotalTokens:  int(message.Usage.InputTokens + message.Usage.OutputTokens),
			Provider:     ai.BackendAnthropic,
		},
	}, nil
}

func wrap(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "authentication"):
		return apperrors.ErrAPIKeyInvalid.WithError(err).WithContext("backend", ai.BackendAnthropic)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return apperrors.ErrQuotaExceeded.WithError(err).WithContext("backend", ai.BackendAnthropic)
	default:
		return apperrors.ErrAIGeneration.WithError(err).WithContext("backend", ai.BackendAnthropic)
	}
}
