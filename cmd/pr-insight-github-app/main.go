package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "golang.org/x/crypto/x509roots/fallback" // CA certs for scratch images

	"github.com/khulnasoft/pr-insight/internal/config"
	"github.com/khulnasoft/pr-insight/internal/insight"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/servers/githubapp"
	"github.com/khulnasoft/pr-insight/internal/servers/webhook"
	"github.com/khulnasoft/pr-insight/internal/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := config.Load(config.LoadOptions{})
	if err != nil {
		return err
	}
	logger.Initialize(logger.Options{Level: logger.ParseLevel(s.Config.LogLevel), Format: logger.FormatJSON})

	db, err := sqlite.Open(ctx, s)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error(ctx, "error closing database", err)
		}
	}()

	srv, err := githubapp.New(insight.New(s), sqlite.NewDeliveryRepo(db), sqlite.NewStatsRepo(db))
	if err != nil {
		return err
	}
	return webhook.Serve(ctx, s, webhook.Addr(s, os.Getenv), srv.Handler(ctx), srv.Wait)
}
