package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/khulnasoft/pr-insight/internal/config"
	apperrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
)

const MaxRetries = 3

var retryBaseDelay = time.Second

// IsRetryable reports whether err is transient: rate limits, server
// errors, timeouts and overloaded backends.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == 429 || se.Code >= 500
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"429", "500", "502", "503", "504", "529", "overloaded", "rate limit", "timeout", "connection reset", "resource exhausted"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// RetryWithBackoff runs fn until it succeeds, fails with a permanent
// error, or MaxRetries retries have been spent. Delays double from one
// second.
func RetryWithBackoff[T any](ctx context.Context, operation string, fn func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		result, err = fn()
		if err == nil || !IsRetryable(err) {
			return result, err
		}
		if attempt == MaxRetries {
			break
		}
		delay := retryBaseDelay * time.Duration(1<<attempt)
		logger.Warn(ctx, "retrying after transient error",
			"operation", operation,
			"attempt", attempt+1,
			"max_attempts", MaxRetries+1,
			"delay", delay,
			"error", err)
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay):
		}
	}
	return result, err
}

// ModelType selects which configured model a tool starts with.
type ModelType int

const (
	ModelRegular ModelType = iota
	ModelTurbo
	ModelReasoning
)

// Models returns the primary model for t followed by the fallback models,
// without duplicates.
func Models(s *config.Settings, t ModelType) []string {
	primary := s.Config.Model
	switch t {
	case ModelTurbo:
		if s.Config.ModelTurbo != "" {
			primary = s.Config.ModelTurbo
		}
	case ModelReasoning:
		if s.Config.ModelReasoning != "" {
			primary = s.Config.ModelReasoning
		}
	}
	out := []string{primary}
	for _, m := range s.Config.FallbackModels {
		m = strings.TrimSpace(m)
		if m == "" || contains(out, m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// RetryWithFallbackModels calls fn with each model in turn and returns the
// first success. When every model fails the error wraps the last failure.
func RetryWithFallbackModels[T any](ctx context.Context, s *config.Settings, t ModelType, fn func(ctx context.Context, model string) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for i, model := range Models(s, t) {
		result, err := fn(ctx, model)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err
		logger.Warn(ctx, "model failed, trying next", "model", model, "attempt", i+1, "error", err)
	}
	return zero, apperrors.ErrAllModelsFailed.WithError(lastErr)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
