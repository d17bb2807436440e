package providers

import (
	"context"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/ai/anthropic"
	"github.com/khulnasoft/pr-insight/internal/ai/gemini"
	"github.com/khulnasoft/pr-insight/internal/ai/openai"
	"github.com/khulnasoft/pr-insight/internal/cache"
	"github.com/khulnasoft/pr-insight/internal/config"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/services/cost"
)

// AI is the model access handed to tools: Handler for chat completions
// (cost aware) and Embedder for the similarity index.
type AI struct {
	Handler  ai.Handler
	Embedder ai.Embedder
}

// NewRouter registers every supported backend. Backends are built lazily,
// so only the keys of the models actually used are required.
func NewRouter(s *config.Settings) *ai.Router {
	return ai.NewRouter(s, map[string]ai.Factory{
		ai.BackendOpenAI: func(context.Context) (ai.Handler, error) {
			return handlerOf(openai.New(s, openai.FlavorOpenAI))
		},
		ai.BackendAzure: func(context.Context) (ai.Handler, error) {
			return handlerOf(openai.New(s, openai.FlavorAzure))
		},
		ai.BackendDeepSeek: func(context.Context) (ai.Handler, error) {
			return handlerOf(openai.New(s, openai.FlavorDeepSeek))
		},
		ai.BackendAnthropic: func(context.Context) (ai.Handler, error) {
			c, err := anthropic.New(s)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		ai.BackendGemini: func(ctx context.Context) (ai.Handler, error) {
			c, err := gemini.New(ctx, s)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	})
}

func handlerOf(c *openai.Client, err error) (ai.Handler, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewAI builds the routed handler wrapped with the response cache and the
// daily budget. Cache or history failures only disable those features.
func NewAI(ctx context.Context, s *config.Settings, onBudgetWarning ai.BudgetCallback) *AI {
	router := NewRouter(s)

	var respCache *cache.Cache
	if s.Config.CacheEnabled {
		c, err := cache.New(s.Config.CacheTTL)
		if err != nil {
			logger.Warn(ctx, "response cache disabled", "error", err)
		} else {
			respCache = c
		}
	}

	manager, err := cost.NewManager(s.Config.BudgetDaily)
	if err != nil {
		logger.Warn(ctx, "cost history disabled", "error", err)
		manager = nil
	}

	return &AI{
		Handler: ai.NewCostAwareWrapper(ai.WrapperConfig{
			Next:            router,
			Settings:        s,
			Manager:         manager,
			Cache:           respCache,
			OnBudgetWarning: onBudgetWarning,
		}),
		Embedder: router,
	}
}
