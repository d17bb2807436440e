// Package openai talks to the OpenAI chat completions and embeddings REST
// API. The same client serves Azure OpenAI deployments and OpenAI
// compatible hosts such as DeepSeek.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/config"
	apperrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/models"
)

type Flavor int

const (
	FlavorOpenAI Flavor = iota
	FlavorAzure
	FlavorDeepSeek
)

type Client struct {
	httpClient *http.Client
	flavor     Flavor
	baseURL    string
	apiKey     string
	org        string
	apiVersion string
	deployment string
	name       string
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.httpClient = c } }

func WithBaseURL(u string) Option { return func(cl *Client) { cl.baseURL = strings.TrimRight(u, "/") } }

// New builds a client for flavor from the [openai] or [deepseek] settings.
func New(s *config.Settings, flavor Flavor, opts ...Option) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{Timeout: time.Duration(max(s.Config.AITimeout, 1)) * time.Second},
		flavor:     flavor,
	}
	switch flavor {
	case FlavorDeepSeek:
		c.name, c.baseURL, c.apiKey = ai.BackendDeepSeek, s.DeepSeek.APIBase, s.DeepSeek.Key
	case FlavorAzure:
		c.name, c.baseURL, c.apiKey = ai.BackendAzure, s.OpenAI.APIBase, s.OpenAI.Key
		c.apiVersion, c.deployment = s.OpenAI.APIVersion, s.OpenAI.DeploymentID
	default:
		c.name, c.baseURL, c.apiKey, c.org = ai.BackendOpenAI, s.OpenAI.APIBase, s.OpenAI.Key, s.OpenAI.Org
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" {
		return nil, apperrors.ErrAPIKeyMissing.WithContext("backend", c.name)
	}
	return c, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// reasoning models reject temperature and system messages
func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4") || m == "deepseek-reasoner"
}

func (c *Client) ChatCompletion(ctx context.Context, req ai.Request) (ai.Response, error) {
	body := chatRequest{Model: req.Model}
	if isReasoningModel(req.Model) {
		body.Messages = []message{{Role: "user", Content: req.System + "\n\n\n" + req.User}}
	} else {
		t := req.Temperature
		body.Temperature = &t
		body.Messages = []message{{Role: "system", Content: req.System}, {Role: "user", Content: req.User}}
	}

	var out chatResponse
	_, err := ai.RetryWithBackoff(ctx, "chat completion", func() (struct{}, error) {
		return struct{}{}, c.post(ctx, c.endpoint("chat/completions", req.Model), body, &out)
	})
	if err != nil {
		return ai.Response{}, c.wrap(err)
	}
	if len(out.Choices) == 0 {
		return ai.Response{}, apperrors.ErrInvalidAIOutput.WithContext("reason", "no choices").WithContext("backend", c.name)
	}

	logger.Debug(ctx, "chat completion finished",
		"backend", c.name,
		"model", req.Model,
		"finish_reason", out.Choices[0].FinishReason,
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens)

	return ai.Response{
		Text:         out.Choices[0].Message.Content,
		FinishReason: out.Choices[0].FinishReason,
		Usage: &models.TokenUsage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
			TotalTokens:  out.Usage.TotalTokens,
			Provider:     c.name,
		},
	}, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	var out embeddingResponse
	_, err := ai.RetryWithBackoff(ctx, "embeddings", func() (struct{}, error) {
		return struct{}{}, c.post(ctx, c.endpoint("embeddings", model), embeddingRequest{Model: model, Input: inputs}, &out)
	})
	if err != nil {
		return nil, c.wrap(err)
	}
	vectors := make([][]float32, len(inputs))
	for _, d := range out.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	return vectors, nil
}

func (c *Client) endpoint(path, model string) string {
	if c.flavor != FlavorAzure {
		return c.baseURL + "/" + path
	}
	deployment := c.deployment
	if deployment == "" {
		deployment = model
	}
	return fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s",
		c.baseURL, url.PathEscape(deployment), path, url.QueryEscape(c.apiVersion))
}

func (c *Client) post(ctx context.Context, endpoint string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.flavor == FlavorAzure {
		req.Header.Set("api-key", c.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.org != "" {
		req.Header.Set("OpenAI-Organization", c.org)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ai.StatusError{Provider: c.name, Code: resp.StatusCode, Body: truncate(string(data), 500)}
	}
	return json.Unmarshal(data, out)
}

func (c *Client) wrap(err error) error {
	var se *ai.StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperrors.ErrAPIKeyInvalid.WithError(err).WithContext("backend", c.name)
		case http.StatusTooManyRequests:
			return apperrors.ErrQuotaExceeded.WithError(err).WithContext("backend", c.name)
		}
	}
	return apperrors.ErrAIGeneration.WithError(err).WithContext("backend", c.name)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
