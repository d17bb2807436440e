package ai

import (
	"context"
	"encoding/json"
	"time"

	"github.com/khulnasoft/pr-insight/internal/cache"
	"github.com/khulnasoft/pr-insight/internal/config"
	apperrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/services/cost"
	"github.com/khulnasoft/pr-insight/internal/tokens"
)

// BudgetCallback is told about budget warnings before a call is made.
type BudgetCallback func(status cost.BudgetStatus)

// CostAwareWrapper wraps a Handler with a response cache, a pre-call cost
// estimate checked against the daily budget, and a usage history.
type CostAwareWrapper struct {
	next                  Handler
	settings              *config.Settings
	calculator            *cost.Calculator
	manager               *cost.Manager
	cache                 *cache.Cache
	estimatedOutputTokens int
	onBudgetWarning       BudgetCallback
}

type WrapperConfig struct {
	Next     Handler
	Settings *config.Settings
	// Manager and Cache are optional; nil disables history and caching.
	Manager               *cost.Manager
	Cache                 *cache.Cache
	EstimatedOutputTokens int
	OnBudgetWarning       BudgetCallback
}

func NewCostAwareWrapper(cfg WrapperConfig) *CostAwareWrapper {
	out := cfg.EstimatedOutputTokens
	if out <= 0 {
		out = 1000
	}
	return &CostAwareWrapper{
		next:                  cfg.Next,
		settings:              cfg.Settings,
		calculator:            cost.NewCalculator(),
		manager:               cfg.Manager,
		cache:                 cfg.Cache,
		estimatedOutputTokens: out,
		onBudgetWarning:       cfg.OnBudgetWarning,
	}
}

func (w *CostAwareWrapper) ChatCompletion(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	backend, _ := BackendFor(w.settings, req.Model)

	var key string
	if w.cache != nil {
		key = w.cache.Key(backend, req.Model, req.System, req.User)
		if raw, hit, err := w.cache.Get(key); err != nil {
			logger.Warn(ctx, "cache read failed", "command", req.Command, "error", err)
		} else if hit {
			var cached Response
			if err := json.Unmarshal(raw, &cached); err == nil {
				logger.Info(ctx, "cache hit", "command", req.Command, "model", req.Model)
				cached.Usage = &models.TokenUsage{
					Model:      req.Model,
					Provider:   backend,
					CacheHit:   true,
					DurationMs: time.Since(start).Milliseconds(),
				}
				return cached, nil
			}
		}
	}

	inputTokens := tokens.ForModel(req.Model).Count(req.System + req.User)
	estimated := w.calculator.EstimateCost(backend, req.Model, inputTokens, w.estimatedOutputTokens)

	if w.manager != nil {
		status, err := w.manager.CheckBudget(ctx, estimated)
		if err != nil {
			return Response{}, err
		}
		if status.IsExceeded {
			return Response{}, apperrors.ErrQuotaExceeded.
				WithContext("today_total_usd", status.TodayTotal).
				WithContext("budget_daily_usd", status.Limit)
		}
		if status.IsWarning && w.onBudgetWarning != nil {
			w.onBudgetWarning(*status)
		}
	}

	resp, err := w.next.ChatCompletion(ctx, req)
	if err != nil {
		return Response{}, err
	}

	if w.cache != nil && resp.Text != "" {
		if err := w.cache.Set(key, req.Model, Response{Text: resp.Text, FinishReason: resp.FinishReason}); err != nil {
			logger.Warn(ctx, "failed to cache response", "command", req.Command, "error", err)
		}
	}

	if resp.Usage == nil {
		resp.Usage = &models.TokenUsage{InputTokens: inputTokens}
	}
	resp.Usage.Model = req.Model
	resp.Usage.Provider = backend
	resp.Usage.CostUSD = w.calculator.EstimateCost(backend, req.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	resp.Usage.DurationMs = time.Since(start).Milliseconds()

	if w.manager != nil {
		if err := w.manager.SaveActivity(ctx, cost.ActivityRecord{
			Timestamp:    time.Now(),
			Command:      req.Command,
			Provider:     backend,
			Model:        req.Model,
			TokensInput:  resp.Usage.InputTokens,
			TokensOutput: resp.Usage.OutputTokens,
			CostUSD:      resp.Usage.CostUSD,
			DurationMs:   resp.Usage.DurationMs,
			Hash:         key,
		}); err != nil {
			logger.Warn(ctx, "failed to record activity", "error", err)
		}
	}
	return resp, nil
}
