package ai

import (
	"context"
	"strings"
	"sync"

	"github.com/khulnasoft/pr-insight/internal/config"
	apperrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
)

// Backend names, also used as pricing providers.
const (
	BackendOpenAI    = "openai"
	BackendAzure     = "azure"
	BackendAnthropic = "anthropic"
	BackendGemini    = "gemini"
	BackendDeepSeek  = "deepseek"
)

// Factory builds a backend on first use, so a missing key only fails the
// calls that need it.
type Factory func(ctx context.Context) (Handler, error)

// Router dispatches each request to the backend serving its model.
type Router struct {
	settings  *config.Settings
	factories map[string]Factory

	mu       sync.Mutex
	handlers map[string]Handler
}

func NewRouter(s *config.Settings, factories map[string]Factory) *Router {
	return &Router{settings: s, factories: factories, handlers: make(map[string]Handler)}
}

// BackendFor returns the backend name for model and the model name the
// backend expects.
func BackendFor(s *config.Settings, model string) (backend, name string) {
	lower := strings.ToLower(model)
	prefix, _, hasPrefix := strings.Cut(lower, "/")
	if hasPrefix {
		switch prefix {
		case "anthropic", "bedrock":
			return BackendAnthropic, model[len(prefix)+1:]
		case "google", "gemini", "vertex_ai":
			return BackendGemini, model[len(prefix)+1:]
		case "deepseek":
			return BackendDeepSeek, model[len(prefix)+1:]
		case "azure":
			return BackendAzure, model[len(prefix)+1:]
		case "openai":
			return BackendOpenAI, model[len(prefix)+1:]
		}
	}
	switch {
	case strings.HasPrefix(lower, "claude"):
		return BackendAnthropic, model
	case strings.HasPrefix(lower, "gemini"):
		return BackendGemini, model
	case strings.HasPrefix(lower, "deepseek"):
		return BackendDeepSeek, model
	case s != nil && strings.EqualFold(s.OpenAI.APIType, "azure"):
		return BackendAzure, model
	default:
		return BackendOpenAI, model
	}
}

func (r *Router) ChatCompletion(ctx context.Context, req Request) (Response, error) {
	backend, name := BackendFor(r.settings, req.Model)
	h, err := r.handler(ctx, backend)
	if err != nil {
		return Response{}, err
	}
	req.Model = name
	logger.Debug(ctx, "routing chat completion", "backend", backend, "model", name)
	resp, err := h.ChatCompletion(ctx, req)
	if resp.Usage != nil && resp.Usage.Provider == "" {
		resp.Usage.Provider = backend
	}
	return resp, err
}

// Embed routes to the OpenAI backend, the only one with embeddings.
func (r *Router) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	backend, name := BackendFor(r.settings, model)
	h, err := r.handler(ctx, backend)
	if err != nil {
		return nil, err
	}
	e, ok := h.(Embedder)
	if !ok {
		return nil, apperrors.ErrProviderNotSupported.
			WithContext("backend", backend).
			WithContext("operation", "embeddings")
	}
	return e.Embed(ctx, name, inputs)
}

func (r *Router) handler(ctx context.Context, backend string) (Handler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handlers[backend]; ok {
		return h, nil
	}
	factory, ok := r.factories[backend]
	if !ok {
		return nil, apperrors.ErrProviderNotSupported.WithContext("backend", backend)
	}
	h, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	r.handlers[backend] = h
	return h, nil
}
