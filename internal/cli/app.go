// Package cli is the pr-insight command line: one pull request (or issue)
// URL, one command, its arguments.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/khulnasoft/pr-insight/internal/config"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/i18n"
	"github.com/khulnasoft/pr-insight/internal/insight"
	"github.com/khulnasoft/pr-insight/internal/providers"
	"github.com/khulnasoft/pr-insight/internal/ui"
	"github.com/khulnasoft/pr-insight/internal/version"
)

// Exit codes.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitUsage  = 2
)

// Options are the global flags a BuildFunc needs.
type Options struct {
	ConfigFile string
	// LogLevel overrides config.log_level when set.
	LogLevel string
}

// BuildFunc loads settings and returns the dispatcher a run uses.
type BuildFunc func(ctx context.Context, opts Options) (*insight.Insight, error)

type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

// NewCommand returns the root command. Output of tools that do not publish
// goes to out, progress and errors to errOut.
func NewCommand(build BuildFunc, out, errOut io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "pr-insight",
		Usage:     "AI reviews, descriptions and suggestions for pull requests",
		Version:   version.FullVersion(),
		ArgsUsage: "<command> [--section.key=value ...] [args ...]",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "pr_url", Usage: "URL of the pull request"},
			&cli.StringFlag{Name: "issue_url", Usage: "URL of the issue"},
			&cli.StringFlag{Name: "config", Usage: "settings file, defaults to " + config.LocalSettingsFile},
			&cli.BoolFlag{Name: "verbose", Usage: "log at INFO"},
			&cli.BoolFlag{Name: "debug", Usage: "log at DEBUG"},
		},
		EnableShellCompletion: true,
		ShellComplete: func(_ context.Context, cmd *cli.Command) {
			for _, c := range insight.DefaultRegistry().Commands() {
				_, _ = fmt.Fprintln(cmd.Root().Writer, c)
			}
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, cmd, build, out, errOut)
		},
	}
}

func run(ctx context.Context, cmd *cli.Command, build BuildFunc, out, errOut io.Writer) error {
	url := cmd.String("pr_url")
	if url == "" {
		url = cmd.String("issue_url")
	}
	args := cmd.Args().Slice()
	if url == "" || len(args) == 0 {
		_ = cli.ShowAppHelp(cmd)
		return usageError{domainErrors.ErrMissingArgument.
			WithContext("usage", "pr-insight --pr_url=<url> <command> [args ...]")}
	}

	opts := Options{ConfigFile: cmd.String("config")}
	switch {
	case cmd.Bool("debug"):
		opts.LogLevel = "DEBUG"
	case cmd.Bool("verbose"):
		opts.LogLevel = "INFO"
	}
	in, err := build(ctx, opts)
	if err != nil {
		return err
	}
	t := i18n.MustNew(in.Settings.Config.ResponseLanguage)
	if !in.IsCommand(args[0]) {
		return usageError{domainErrors.ErrUnknownCommand.
			WithContext("command", args[0]).
			WithSuggestion("Available commands: " + strings.Join(in.Registry.Commands(), ", "))}
	}

	var meter *ui.UsageMeter
	newModels := in.NewModels
	in = in.WithSettings(in.Settings)
	in.NewModels = func(ctx context.Context, s *config.Settings) *providers.AI {
		m := newModels(ctx, s)
		meter = ui.NewUsageMeter(m.Handler)
		return &providers.AI{Handler: meter, Embedder: m.Embedder}
	}

	var result string
	running := t.GetMessage("cli.running", 0, map[string]interface{}{
		"Command": insight.Normalize(args[0]),
		"URL":     url,
	})
	err = ui.WithSpinner(errOut, running, func() error {
		var runErr error
		result, runErr = in.Run(ctx, url, args[0], args[1:])
		return runErr
	})
	if err != nil {
		return err
	}

	if !in.Settings.Config.PublishOutput && result != "" {
		_, _ = fmt.Fprintln(out, result)
	}
	if meter != nil {
		usage, calls := meter.Usage()
		ui.PrintTokenUsage(errOut, usage, calls, t)
	}
	return nil
}

// ExitCode maps the error a run returned to the process exit status.
func ExitCode(err error) int {
	var u usageError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &u),
		errors.Is(err, domainErrors.ErrUnknownCommand),
		errors.Is(err, domainErrors.ErrForbiddenArgument),
		errors.Is(err, domainErrors.ErrInvalidPRURL):
		return ExitUsage
	default:
		return ExitFailed
	}
}
