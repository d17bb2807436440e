package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "github", s.Config.GitProvider)
	assert.True(t, s.Config.PublishOutput)
	assert.Equal(t, 24*time.Hour, s.Config.CacheTTL)
	assert.True(t, s.PRDescription.CollapsibleFileList.Is("adaptive"))
	assert.Contains(t, s.CustomLabelNames(), "Bug fix")
	assert.Equal(t, 3000, s.Server.Port)

	p, err := s.Prompt("pr_review_prompt")
	require.NoError(t, err)
	assert.Contains(t, p.System, "PR-Reviewer")
	assert.Contains(t, p.User, "{{.diff}}")

	_, err = s.Prompt("pr_nothing_prompt")
	assert.ErrorIs(t, err, apperrors.ErrInvalidSettings)
}

func TestSettings_Set(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(t *testing.T, s *Settings)
	}{
		{
			name:  "should parse booleans",
			key:   "pr_description.final_update_message",
			value: "false",
			check: func(t *testing.T, s *Settings) { assert.False(t, s.PRDescription.FinalUpdateMessage) },
		},
		{
			name:  "should parse integers",
			key:   "pr_reviewer.num_code_suggestions",
			value: "3",
			check: func(t *testing.T, s *Settings) { assert.Equal(t, 3, s.PRReviewer.NumCodeSuggestions) },
		},
		{
			name:  "should keep strings as strings",
			key:   "config.model",
			value: "claude-3-5-sonnet",
			check: func(t *testing.T, s *Settings) { assert.Equal(t, "claude-3-5-sonnet", s.Config.Model) },
		},
		{
			name:  "should parse arrays",
			key:   "config.fallback_models",
			value: `["gpt-4o", "gemini-1.5-pro"]`,
			check: func(t *testing.T, s *Settings) {
				assert.Equal(t, []string{"gpt-4o", "gemini-1.5-pro"}, s.Config.FallbackModels)
			},
		},
		{
			name:  "should widen integers for float settings",
			key:   "config.temperature",
			value: "1",
			check: func(t *testing.T, s *Settings) { assert.Equal(t, 1.0, s.Config.Temperature) },
		},
		{
			name:  "should accept double underscore separators",
			key:   "PR_REVIEWER__REQUIRE_SCORE_REVIEW",
			value: "true",
			check: func(t *testing.T, s *Settings) { assert.True(t, s.PRReviewer.RequireScoreReview) },
		},
		{
			name:  "should accept booleans for keyword settings",
			key:   "pr_description.collapsible_file_list",
			value: "true",
			check: func(t *testing.T, s *Settings) { assert.True(t, s.PRDescription.CollapsibleFileList.IsTrue()) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Default()
			require.NoError(t, err)
			require.NoError(t, s.Set(tt.key, tt.value))
			tt.check(t, s)
		})
	}

	t.Run("should reject values of the wrong type", func(t *testing.T) {
		s, err := Default()
		require.NoError(t, err)

		err = s.Set("pr_reviewer.num_code_suggestions", "many")
		assert.ErrorIs(t, err, apperrors.ErrInvalidSettings)
		assert.Equal(t, 0, s.PRReviewer.NumCodeSuggestions)
	})
}

func TestSettings_Clone(t *testing.T) {
	base, err := Default()
	require.NoError(t, err)

	c := base.Clone()
	require.NoError(t, c.Set("config.model", "gpt-4o-mini"))
	c.Config.IgnorePRLabels = append(c.Config.IgnorePRLabels, "wip")

	assert.Equal(t, "gpt-4o-mini", c.Config.Model)
	assert.NotEqual(t, "gpt-4o-mini", base.Config.Model)
	assert.Empty(t, base.Config.IgnorePRLabels)
}

func TestLoad(t *testing.T) {
	t.Run("should merge file and environment", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "settings.toml")
		require.NoError(t, os.WriteFile(path, []byte("[config]\nmodel = \"gemini-1.5-pro\"\nverbosity_level = 2\n"), 0o644))

		s, err := Load(LoadOptions{
			ConfigFile: path,
			Environ: []string{
				"CONFIG__VERBOSITY_LEVEL=1",
				"OPENAI_KEY=sk-test",
				"PINECONE.API_KEY=pc-key",
				"azure_devops__org=https://dev.azure.com/acme",
				"UNRELATED__KEY=x",
				"PATH=/usr/bin",
			},
		})
		require.NoError(t, err)

		assert.Equal(t, "gemini-1.5-pro", s.Config.Model)
		assert.Equal(t, 1, s.Config.VerbosityLevel)
		assert.Equal(t, "sk-test", s.OpenAI.Key)
		assert.Equal(t, "pc-key", s.Pinecone.APIKey)
		assert.Equal(t, "https://dev.azure.com/acme", s.AzureDevOps.Org)
		_, ok := s.Get("unrelated.key")
		assert.False(t, ok)
	})

	t.Run("should fail on a missing file", func(t *testing.T) {
		_, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "missing.toml"), Environ: []string{}})
		assert.ErrorIs(t, err, apperrors.ErrInvalidSettings)
	})
}

func TestSettings_MergeTOML(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	dropped, err := s.MergeTOML([]byte(`
[pr_reviewer]
extra_instructions = "focus on error handling"

[openai]
key = "stolen"
api_base = "https://evil.example.com"
`))
	require.NoError(t, err)

	assert.Equal(t, "focus on error handling", s.PRReviewer.ExtraInstructions)
	assert.Equal(t, []string{"openai.api_base", "openai.key"}, dropped)
	assert.Empty(t, s.OpenAI.Key)
	assert.Equal(t, "https://api.openai.com/v1", s.OpenAI.APIBase)
}

func TestIsForbidden(t *testing.T) {
	tests := []struct {
		arg  string
		want bool
	}{
		{"--openai.key=sk", true},
		{"--OPENAI.KEY=sk", true},
		{"--openai__key=sk", true},
		{"--github.base_url=https://x", true},
		{"--gitlab.personal_access_token=x", true},
		{"--pr_review_prompt.system=hi", true},
		{"--config.git_provider=gitlab", true},
		{"--pr_reviewer.extra_instructions=be brief", false},
		{"--pr_url=https://github.com/o/r/pull/1", false},
		{"openai.key", false},
		{"-i", false},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			assert.Equal(t, tt.want, IsForbidden(tt.arg))
		})
	}
}

func TestSettings_ApplyArgs(t *testing.T) {
	t.Run("should apply overrides and keep other args", func(t *testing.T) {
		s, err := Default()
		require.NoError(t, err)

		rest, err := s.ApplyArgs([]string{"-i", "--pr_reviewer.num_code_suggestions=2", "what", "--verbose"})
		require.NoError(t, err)
		assert.Equal(t, []string{"-i", "what", "--verbose"}, rest)
		assert.Equal(t, 2, s.PRReviewer.NumCodeSuggestions)
	})

	t.Run("should name the forbidden argument", func(t *testing.T) {
		s, err := Default()
		require.NoError(t, err)

		_, err = s.ApplyArgs([]string{"--pr_reviewer.num_code_suggestions=2", "--openai.key=sk"})
		require.ErrorIs(t, err, apperrors.ErrForbiddenArgument)
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, "--openai.key=sk", appErr.Context["arg"])
		assert.Equal(t, 0, s.PRReviewer.NumCodeSuggestions)
	})
}
