package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/khulnasoft/pr-insight/internal/cli"
	"github.com/khulnasoft/pr-insight/internal/config"
	"github.com/khulnasoft/pr-insight/internal/i18n"
	"github.com/khulnasoft/pr-insight/internal/insight"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewCommand(build, os.Stdout, os.Stderr).Run(ctx, os.Args)
	stop()

	if err != nil {
		ui.HandleAppError(os.Stderr, err, i18n.MustNew("en"))
	}
	os.Exit(cli.ExitCode(err))
}

func build(_ context.Context, opts cli.Options) (*insight.Insight, error) {
	s, err := config.Load(config.LoadOptions{ConfigFile: opts.ConfigFile})
	if err != nil {
		return nil, err
	}
	level := s.Config.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger.Initialize(logger.Options{
		Level:  logger.ParseLevel(level),
		Format: logger.Format(s.Config.LogFormat),
	})
	return insight.New(s), nil
}
