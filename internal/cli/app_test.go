package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/config"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/insight"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/providers"
	"github.com/khulnasoft/pr-insight/internal/vcs"
	"github.com/khulnasoft/pr-insight/internal/vcs/vcstest"
	"github.com/khulnasoft/pr-insight/internal/version"
)

const prURL = "https://example.com/acme/api/pull/3"

type answering struct{ calls int }

func (a *answering) ChatCompletion(context.Context, ai.Request) (ai.Response, error) {
	a.calls++
	return ai.Response{Text: "Because the cache was stale.", Usage: &models.TokenUsage{InputTokens: 12, OutputTokens: 6, TotalTokens: 18}}, nil
}

func testBuild(t *testing.T, model *answering, seen *[]Options) BuildFunc {
	t.Helper()
	return func(_ context.Context, opts Options) (*insight.Insight, error) {
		*seen = append(*seen, opts)
		s, err := config.Default()
		require.NoError(t, err)
		require.NoError(t, s.Set("config.publish_output", "false"))
		fake := vcstest.New(models.PullRequest{Number: 3, Title: "Tidy", URL: prURL},
			models.FilePatchInfo{Filename: "main.go", Patch: "@@ -1 +1 @@\n-a\n+b\n", EditType: models.EditTypeModified})

		in := insight.New(s)
		in.NewProvider = func(context.Context, *config.Settings, string) (vcs.Provider, error) { return fake, nil }
		in.NewModels = func(context.Context, *config.Settings) *providers.AI { return &providers.AI{Handler: model} }
		in.NewIndex = nil
		return in, nil
	}
}

func TestCommand(t *testing.T) {
	color.NoColor = true

	t.Run("runs the command and prints its result", func(t *testing.T) {
		var out, errOut bytes.Buffer
		model := &answering{}
		var seen []Options
		cmd := NewCommand(testBuild(t, model, &seen), &out, &errOut)

		err := cmd.Run(context.Background(), []string{"pr-insight", "--pr_url=" + prURL, "--config=custom.toml", "--debug", "/ask", "why is this needed?"})
		require.NoError(t, err)
		assert.Equal(t, ExitOK, ExitCode(err))
		assert.Equal(t, []Options{{ConfigFile: "custom.toml", LogLevel: "DEBUG"}}, seen)
		assert.Equal(t, 1, model.calls)
		assert.Contains(t, out.String(), "Because the cache was stale.")
		assert.Contains(t, errOut.String(), "Total: 18 (1 model call)")
	})

	t.Run("issue url is accepted", func(t *testing.T) {
		var out bytes.Buffer
		var seen []Options
		cmd := NewCommand(testBuild(t, &answering{}, &seen), &out, &bytes.Buffer{})

		err := cmd.Run(context.Background(), []string{"pr-insight", "--issue_url=" + prURL, "ask", "what changed?"})
		require.NoError(t, err)
		assert.Contains(t, out.String(), "Because the cache was stale.")
	})

	t.Run("missing url is a usage error", func(t *testing.T) {
		var seen []Options
		cmd := NewCommand(testBuild(t, &answering{}, &seen), &bytes.Buffer{}, &bytes.Buffer{})

		err := cmd.Run(context.Background(), []string{"pr-insight", "review"})
		require.Error(t, err)
		assert.Equal(t, ExitUsage, ExitCode(err))
		assert.Empty(t, seen)
	})

	t.Run("unknown command is a usage error", func(t *testing.T) {
		model := &answering{}
		var seen []Options
		cmd := NewCommand(testBuild(t, model, &seen), &bytes.Buffer{}, &bytes.Buffer{})

		err := cmd.Run(context.Background(), []string{"pr-insight", "--pr_url=" + prURL, "deploy"})
		require.ErrorIs(t, err, domainErrors.ErrUnknownCommand)
		assert.Equal(t, ExitUsage, ExitCode(err))
		assert.Zero(t, model.calls)
	})

	t.Run("forbidden argument is a usage error", func(t *testing.T) {
		var seen []Options
		cmd := NewCommand(testBuild(t, &answering{}, &seen), &bytes.Buffer{}, &bytes.Buffer{})

		err := cmd.Run(context.Background(), []string{"pr-insight", "--pr_url=" + prURL, "--", "review", "--openai.key=abc"})
		require.ErrorIs(t, err, domainErrors.ErrForbiddenArgument)
		assert.Equal(t, ExitUsage, ExitCode(err))
	})
}

func TestBuiltinFlags(t *testing.T) {
	t.Run("bare invocation prints help", func(t *testing.T) {
		var out bytes.Buffer
		var seen []Options
		cmd := NewCommand(testBuild(t, &answering{}, &seen), &out, &bytes.Buffer{})

		var err error
		require.NotPanics(t, func() { err = cmd.Run(context.Background(), []string{"pr-insight"}) })
		assert.Equal(t, ExitUsage, ExitCode(err))
		assert.Contains(t, out.String(), "--verbose")
		assert.Empty(t, seen)
	})

	t.Run("version", func(t *testing.T) {
		var out bytes.Buffer
		var seen []Options
		cmd := NewCommand(testBuild(t, &answering{}, &seen), &out, &bytes.Buffer{})

		require.NoError(t, cmd.Run(context.Background(), []string{"pr-insight", "-v"}))
		assert.Contains(t, out.String(), version.FullVersion())
		assert.Empty(t, seen)
	})
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitFailed, ExitCode(domainErrors.ErrAIGeneration))
	assert.Equal(t, ExitUsage, ExitCode(domainErrors.ErrInvalidPRURL.WithContext("url", "x")))
}
