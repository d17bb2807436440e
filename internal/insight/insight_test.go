package insight

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/config"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/providers"
	"github.com/khulnasoft/pr-insight/internal/vcs"
	"github.com/khulnasoft/pr-insight/internal/vcs/vcstest"
)

type recorder struct {
	requests []ai.Request
	text     string
}

func (r *recorder) ChatCompletion(_ context.Context, req ai.Request) (ai.Response, error) {
	r.requests = append(r.requests, req)
	return ai.Response{Text: r.text}, nil
}

func newTestInsight(t *testing.T) (*Insight, *vcstest.Fake, *recorder, *[]*config.Settings) {
	t.Helper()
	s, err := config.Default()
	require.NoError(t, err)
	require.NoError(t, s.Set("config.publish_output", "false"))
	require.NoError(t, s.Set("config.publish_output_progress", "false"))

	fake := vcstest.New(models.PullRequest{Number: 3, Title: "Tidy", URL: "https://example.com/acme/api/pull/3"},
		models.FilePatchInfo{Filename: "main.go", Patch: "@@ -1 +1 @@\n-a\n+b\n", EditType: models.EditTypeModified})
	rec := &recorder{text: "It looks fine."}
	var seen []*config.Settings

	in := New(s)
	in.NewProvider = func(_ context.Context, s *config.Settings, _ string) (vcs.Provider, error) {
		seen = append(seen, s)
		return fake, nil
	}
	in.NewModels = func(context.Context, *config.Settings) *providers.AI {
		return &providers.AI{Handler: rec}
	}
	in.NewIndex = nil
	return in, fake, rec, &seen
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "review", Normalize("/review"))
	assert.Equal(t, "ask", Normalize(" /ASK "))
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	for _, name := range []string{
		"review", "review_pr", "auto_review", "answer", "reflect_and_review",
		"describe", "describe_pr", "improve", "improve_code", "ask", "ask_question",
		"ask_line", "reflect", "update_changelog", "config", "settings", "help",
		"help_docs", "analyze", "test", "custom_prompt", "generate_labels",
		"ci_feedback", "checks", "similar_code", "find_similar_component",
	} {
		_, ok := r.lookup(name)
		assert.True(t, ok, name)
	}
	assert.Error(t, r.Register("review", nil))
	assert.Error(t, r.Register("new_tool", nil, "describe"))
}

func TestHandleRequest(t *testing.T) {
	t.Run("quoted question reaches the tool", func(t *testing.T) {
		in, _, rec, _ := newTestInsight(t)

		out, err := in.HandleRequest(context.Background(), "https://example.com/acme/api/pull/3", `/ask "is this safe?"`)
		require.NoError(t, err)
		assert.Contains(t, out, "is this safe?")
		assert.Contains(t, out, "It looks fine.")
		require.Len(t, rec.requests, 1)
		assert.Equal(t, "ask", rec.requests[0].Command)
	})

	t.Run("unknown command", func(t *testing.T) {
		in, _, _, _ := newTestInsight(t)

		_, err := in.HandleRequest(context.Background(), "https://example.com/acme/api/pull/3", "/deploy")
		assert.ErrorIs(t, err, domainErrors.ErrUnknownCommand)
	})

	t.Run("forbidden argument", func(t *testing.T) {
		in, _, _, seen := newTestInsight(t)

		_, err := in.HandleRequest(context.Background(), "https://example.com/acme/api/pull/3", "/review --openai.key=abc")
		assert.ErrorIs(t, err, domainErrors.ErrForbiddenArgument)
		assert.Empty(t, *seen)
	})

	t.Run("overrides stay within the request", func(t *testing.T) {
		in, _, _, seen := newTestInsight(t)

		_, err := in.HandleRequest(context.Background(), "https://example.com/acme/api/pull/3", "/config --pr_reviewer.num_code_suggestions=9")
		require.NoError(t, err)
		require.Len(t, *seen, 1)
		assert.Equal(t, 9, (*seen)[0].PRReviewer.NumCodeSuggestions)
		assert.NotEqual(t, 9, in.Settings.PRReviewer.NumCodeSuggestions)
	})

	t.Run("repository settings apply before arguments", func(t *testing.T) {
		in, fake, _, seen := newTestInsight(t)
		require.NoError(t, in.Settings.Set("config.use_repo_settings_file", "true"))
		fake.Settings = []byte("[pr_reviewer]\nnum_code_suggestions = 2\nextra_instructions = \"be brief\"\n")

		_, err := in.HandleRequest(context.Background(), "https://example.com/acme/api/pull/3", "/config --pr_reviewer.num_code_suggestions=5")
		require.NoError(t, err)
		s := (*seen)[0]
		assert.Equal(t, 5, s.PRReviewer.NumCodeSuggestions)
		assert.Equal(t, "be brief", s.PRReviewer.ExtraInstructions)
	})

	t.Run("auto review marks the request", func(t *testing.T) {
		in, fake, _, seen := newTestInsight(t)
		fake.Patches = nil

		_, err := in.Run(context.Background(), "https://example.com/acme/api/pull/3", "auto_review", nil)
		require.NoError(t, err)
		assert.True(t, (*seen)[0].Config.IsAutoCommand)
		assert.False(t, in.Settings.Config.IsAutoCommand)
	})
}

func TestApplyResponseLanguage(t *testing.T) {
	s, err := config.Default()
	require.NoError(t, err)
	require.NoError(t, s.Set("config.response_language", "ja-JP"))
	require.NoError(t, s.Set("pr_reviewer.extra_instructions", "focus on tests"))

	applyResponseLanguage(s)
	applyResponseLanguage(s)

	assert.Equal(t, "focus on tests"+languageSeparator+"Your response MUST be written in the language corresponding to locale code: 'ja-JP'. This is crucial.",
		s.PRReviewer.ExtraInstructions)
	assert.Contains(t, s.PRDescription.ExtraInstructions, "'ja-JP'")
}

func TestHandleAutoRequest(t *testing.T) {
	in, _, rec, seen := newTestInsight(t)

	_, err := in.HandleAutoRequest(context.Background(), "https://example.com/acme/api/pull/3", `/ask "anything risky?"`)
	require.NoError(t, err)
	require.Len(t, *seen, 1)
	assert.True(t, (*seen)[0].Config.IsAutoCommand)
	require.Len(t, rec.requests, 1)

	_, err = in.HandleAutoRequest(context.Background(), "https://example.com/acme/api/pull/3", "   ")
	assert.ErrorIs(t, err, domainErrors.ErrUnknownCommand)
}

func TestResolveSettings(t *testing.T) {
	t.Run("without repository settings", func(t *testing.T) {
		in, _, _, seen := newTestInsight(t)
		require.NoError(t, in.Settings.Set("config.use_repo_settings_file", "false"))

		s, err := in.ResolveSettings(context.Background(), "https://example.com/acme/api/pull/3")
		require.NoError(t, err)
		assert.NotSame(t, in.Settings, s)
		assert.Empty(t, *seen)
	})

	t.Run("merges the repository file", func(t *testing.T) {
		in, fake, _, _ := newTestInsight(t)
		require.NoError(t, in.Settings.Set("config.use_repo_settings_file", "true"))
		fake.Settings = []byte("[github_app]\npr_commands = [\"/review\"]\n")

		s, err := in.ResolveSettings(context.Background(), "https://example.com/acme/api/pull/3")
		require.NoError(t, err)
		assert.Equal(t, []string{"/review"}, s.GitHubApp.PRCommands)
		assert.NotEqual(t, []string{"/review"}, in.Settings.GitHubApp.PRCommands)
	})
}

func TestForPR(t *testing.T) {
	in, fake, _, seen := newTestInsight(t)
	require.NoError(t, in.Settings.Set("config.use_repo_settings_file", "true"))
	fake.Settings = []byte("[pr_reviewer]\nnum_code_suggestions = 2\n")

	pr, err := in.ForPR(context.Background(), "https://example.com/acme/api/pull/3")
	require.NoError(t, err)
	assert.Equal(t, 2, pr.Settings.PRReviewer.NumCodeSuggestions)

	for _, request := range []string{"/config", "/config --pr_reviewer.num_code_suggestions=4"} {
		_, err = pr.HandleAutoRequest(context.Background(), "https://example.com/acme/api/pull/3", request)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fake.SettingsReads)
	require.Len(t, *seen, 3)
	assert.Equal(t, 2, (*seen)[1].PRReviewer.NumCodeSuggestions)
	assert.Equal(t, 4, (*seen)[2].PRReviewer.NumCodeSuggestions)

	// settings handed in later are merged again
	_, err = pr.WithSettings(in.Settings).Run(context.Background(), "https://example.com/acme/api/pull/3", "config", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.SettingsReads)
}

func TestWithSettings(t *testing.T) {
	in, _, _, seen := newTestInsight(t)
	s := in.Settings.Clone()
	require.NoError(t, s.Set("pr_reviewer.num_code_suggestions", "7"))

	_, err := in.WithSettings(s).Run(context.Background(), "https://example.com/acme/api/pull/3", "config", nil)
	require.NoError(t, err)
	assert.Equal(t, 7, (*seen)[0].PRReviewer.NumCodeSuggestions)
	assert.NotEqual(t, 7, in.Settings.PRReviewer.NumCodeSuggestions)
}
