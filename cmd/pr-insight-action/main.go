package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/khulnasoft/pr-insight/internal/config"
	"github.com/khulnasoft/pr-insight/internal/insight"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/servers/action"
)

func main() {
	ctx := context.Background()
	s, err := config.Load(config.LoadOptions{})
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		os.Exit(1)
	}
	logger.Initialize(logger.Options{Level: logger.ParseLevel(s.Config.LogLevel), Format: logger.FormatJSON})

	if err := action.New(insight.New(s), os.Getenv).Run(ctx); err != nil {
		logger.Error(ctx, "action failed", err)
		os.Exit(1)
	}
}
