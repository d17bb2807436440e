// Package ai is the chat completion layer shared by every tool: a Handler
// interface implemented per backend, a Router that picks the backend from
// the model name, retry and model fallback helpers, and a cost aware
// wrapper that caches responses and enforces the daily budget.
package ai

import (
	"context"
	"fmt"

	"github.com/khulnasoft/pr-insight/internal/models"
)

// Request is one chat completion call.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float64
	// Command names the tool making the call, for the usage history.
	Command string
}

// Response is the completion text and the accounting for the call.
type Response struct {
	Text         string
	FinishReason string
	Usage        *models.TokenUsage
}

// Handler is implemented by every model backend.
type Handler interface {
	ChatCompletion(ctx context.Context, req Request) (Response, error)
}

// Embedder turns texts into vectors for the similarity index.
type Embedder interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

// TokenCounter is implemented by backends that can count prompt tokens
// server side.
type TokenCounter interface {
	CountTokens(ctx context.Context, model, text string) (int, error)
}

// StatusError is returned by REST backends for non-2xx responses.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Body)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) (Response, error)

func (f HandlerFunc) ChatCompletion(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
