package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	_ "golang.org/x/crypto/x509roots/fallback" // CA certs for the provided.al2023 runtime

	"github.com/khulnasoft/pr-insight/internal/config"
	"github.com/khulnasoft/pr-insight/internal/insight"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/servers/githubapp"
	"github.com/khulnasoft/pr-insight/internal/servers/serverless"
	"github.com/khulnasoft/pr-insight/internal/store/sqlite"
)

// lambdaStorePath is the only writable location on Lambda.
const lambdaStorePath = "/tmp/pr-insight.db"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	s, err := config.Load(config.LoadOptions{})
	if err != nil {
		return err
	}
	logger.Initialize(logger.Options{Level: logger.ParseLevel(s.Config.LogLevel), Format: logger.FormatJSON})

	if s.Store.Path == "" {
		if err := s.Set("store.path", lambdaStorePath); err != nil {
			return err
		}
	}
	db, err := sqlite.Open(ctx, s)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	srv, err := githubapp.New(insight.New(s), sqlite.NewDeliveryRepo(db), sqlite.NewStatsRepo(db))
	if err != nil {
		return err
	}
	lambda.Start(serverless.Handler(ctx, srv))
	return nil
}
