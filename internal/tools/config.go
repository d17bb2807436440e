package tools

import (
	"context"

	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/markdown"
)

// Config shows the settings the tools run with.
type Config struct {
	base
}

func NewConfig(d Deps, args []string) *Config {
	return &Config{base: newBase(d, "config", args)}
}

func (t *Config) Run(ctx context.Context) (string, error) {
	body := markdown.ConfigDump(t.Settings)
	if !t.publish() {
		return body, nil
	}
	if _, err := t.Provider.PublishComment(ctx, body, false); err != nil {
		return "", err
	}
	logger.Info(ctx, "configuration published", "pr_url", t.Provider.PRURL())
	return body, nil
}
