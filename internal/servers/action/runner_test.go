package action

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khulnasoft/pr-insight/internal/config"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/insight"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/providers"
	"github.com/khulnasoft/pr-insight/internal/tools"
	"github.com/khulnasoft/pr-insight/internal/vcs"
	"github.com/khulnasoft/pr-insight/internal/vcs/vcstest"
)

const prURL = "https://api.github.com/repos/acme/api/pulls/9"

type run struct {
	command string
	args    []string
	auto    bool
	token   string
}

type fixedTool struct {
	runs *[]run
	run  run
}

func (t fixedTool) Run(context.Context) (string, error) {
	*t.runs = append(*t.runs, t.run)
	return t.run.command + " result", nil
}

type fixture struct {
	runner *Runner
	fake   *vcstest.Fake
	runs   []run
	env    map[string]string
}

func newFixture(t *testing.T, event string, payload any) *fixture {
	t.Helper()
	dir := t.TempDir()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	eventPath := filepath.Join(dir, "event.json")
	require.NoError(t, os.WriteFile(eventPath, data, 0o600))

	s, err := config.Default()
	require.NoError(t, err)

	f := &fixture{
		fake: vcstest.New(models.PullRequest{Number: 9, URL: prURL}),
		env: map[string]string{
			"GITHUB_EVENT_NAME": event,
			"GITHUB_EVENT_PATH": eventPath,
			"GITHUB_TOKEN":      "ghs_token",
			"OPENAI_KEY":        "sk-test",
			"GITHUB_OUTPUT":     filepath.Join(dir, "output"),
		},
	}
	in := insight.New(s)
	in.NewProvider = func(context.Context, *config.Settings, string) (vcs.Provider, error) { return f.fake, nil }
	in.NewModels = func(context.Context, *config.Settings) *providers.AI { return &providers.AI{} }
	in.NewIndex = nil
	in.Registry = insight.NewRegistry()
	for _, name := range []string{"describe", "review", "improve", "ask", "ask_line"} {
		require.NoError(t, in.Registry.Register(name, func(d tools.Deps, args []string) tools.Tool {
			return fixedTool{runs: &f.runs, run: run{
				command: name,
				args:    args,
				auto:    d.Settings.Config.IsAutoCommand,
				token:   d.Settings.GitHub.UserToken,
			}}
		}))
	}
	f.runner = New(in, func(k string) string { return f.env[k] })
	return f
}

func (f *fixture) commands() []string {
	out := make([]string, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r.command)
	}
	return out
}

func (f *fixture) output(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.env["GITHUB_OUTPUT"])
	require.NoError(t, err)
	return string(data)
}

func prPayload(action string) map[string]any {
	return map[string]any{
		"action":       action,
		"pull_request": map[string]any{"url": prURL, "html_url": "https://github.com/acme/api/pull/9", "state": "open"},
	}
}

func TestMissingEnvironment(t *testing.T) {
	f := newFixture(t, "pull_request", prPayload("opened"))
	delete(f.env, "GITHUB_TOKEN")

	err := f.runner.Run(context.Background())
	assert.ErrorIs(t, err, domainErrors.ErrMissingArgument)
}

func TestPullRequestActions(t *testing.T) {
	t.Run("opened runs every auto action", func(t *testing.T) {
		f := newFixture(t, "pull_request", prPayload("opened"))
		require.NoError(t, f.runner.Run(context.Background()))

		assert.Equal(t, []string{"describe", "review", "improve"}, f.commands())
		for _, r := range f.runs {
			assert.True(t, r.auto)
			assert.Equal(t, "ghs_token", r.token)
		}
		assert.Equal(t, "sk-test", f.runner.insight.Settings.OpenAI.Key)
		out := f.output(t)
		assert.Contains(t, out, "describe=\"describe result\"\n")
		assert.Contains(t, out, "review=\"review result\"\n")
	})

	t.Run("env switches turn actions off", func(t *testing.T) {
		f := newFixture(t, "pull_request_target", prPayload("reopened"))
		f.env["GITHUB_ACTION.AUTO_IMPROVE"] = "false"
		f.env["github_action.auto_describe"] = "False"
		require.NoError(t, f.runner.Run(context.Background()))
		assert.Equal(t, []string{"review"}, f.commands())
	})

	t.Run("other actions are skipped", func(t *testing.T) {
		f := newFixture(t, "pull_request", prPayload("closed"))
		require.NoError(t, f.runner.Run(context.Background()))
		assert.Empty(t, f.runs)
	})
}

func TestCommentEvents(t *testing.T) {
	t.Run("issue comment", func(t *testing.T) {
		f := newFixture(t, "issue_comment", map[string]any{
			"action":  "created",
			"issue":   map[string]any{"number": 9, "pull_request": map[string]any{"url": prURL}},
			"comment": map[string]any{"id": 5, "body": "/ask \"what about retries?\""},
		})
		require.NoError(t, f.runner.Run(context.Background()))
		require.Len(t, f.runs, 1)
		assert.Equal(t, "ask", f.runs[0].command)
		assert.Equal(t, []string{"what about retries?"}, f.runs[0].args)
		assert.False(t, f.runs[0].auto)
		assert.Equal(t, 1, f.fake.Reactions)
		assert.True(t, strings.HasPrefix(f.output(t), "ask="))
	})

	t.Run("review comment question", func(t *testing.T) {
		f := newFixture(t, "pull_request_review_comment", map[string]any{
			"action": "created",
			"comment": map[string]any{
				"id":               6,
				"body":             "/ask why?",
				"path":             "main.go",
				"line":             3,
				"side":             "LEFT",
				"pull_request_url": prURL,
			},
		})
		require.NoError(t, f.runner.Run(context.Background()))
		require.Len(t, f.runs, 1)
		assert.Equal(t, "ask_line", f.runs[0].command)
		assert.Contains(t, f.runs[0].args, "--side=LEFT")
		assert.Contains(t, f.runs[0].args, "--line_start=3")
		assert.Zero(t, f.fake.Reactions)
	})

	t.Run("comment on an issue", func(t *testing.T) {
		f := newFixture(t, "issue_comment", map[string]any{
			"action":  "created",
			"issue":   map[string]any{"number": 4},
			"comment": map[string]any{"id": 7, "body": "/review"},
		})
		require.NoError(t, f.runner.Run(context.Background()))
		assert.Empty(t, f.runs)
	})
}
