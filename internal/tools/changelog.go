package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/vcs"
)

const (
	changelogPrompt = "pr_update_changelog_prompt"
	// changelogContextLines is how much of the current changelog is shown
	// to the model.
	changelogContextLines = 50
)

// UpdateChangelog proposes a changelog entry for the PR.
type UpdateChangelog struct {
	base
	now func() time.Time
}

func NewUpdateChangelog(d Deps, args []string) *UpdateChangelog {
	return &UpdateChangelog{base: newBase(d, "update_changelog", args), now: time.Now}
}

func (t *UpdateChangelog) Run(ctx context.Context) (string, error) {
	ctx = logger.With(ctx, "tool", t.command, "pr_url", t.Provider.PRURL())
	cfg := t.Settings.PRUpdateChangelog
	path := cfg.ChangelogPath
	if path == "" {
		path = "CHANGELOG.md"
	}
	t.progress(ctx, "preparing_changelog")

	pr, err := t.Provider.PR(ctx)
	if err != nil {
		return "", err
	}
	current, err := t.Provider.FileContent(ctx, path, pr.TargetBranch)
	if err != nil {
		logger.Warn(ctx, "changelog not found, starting a new one", "path", path, "error", err)
		current = ""
	}
	shown := current
	if lines := strings.Split(current, "\n"); len(lines) > changelogContextLines {
		shown = strings.Join(lines[:changelogContextLines], "\n")
	}
	if strings.TrimSpace(shown) == "" {
		shown = "Example:\n## <current_date>\n\n### Added\n...\n### Changed\n...\n### Fixed\n...\n"
	}

	vars, _, err := t.prVars(ctx)
	if err != nil {
		return "", err
	}
	vars["extra_instructions"] = cfg.ExtraInstructions
	vars["today"] = t.now().Format("2006-01-02")
	vars["changelog_file_str"] = shown

	entry, err := ai.RetryWithFallbackModels(ctx, t.Settings, ai.ModelRegular, func(ctx context.Context, model string) (string, error) {
		c, err := t.compressor(model, changelogPrompt, vars, false)
		if err != nil {
			return "", err
		}
		res, err := c.GetPRDiff(ctx, t.Provider)
		if err != nil {
			return "", err
		}
		v := cloneVars(vars)
		v["diff"] = res.Diff
		return t.chat(ctx, model, changelogPrompt, v)
	})
	if err != nil {
		t.clearProgress(ctx)
		return "", err
	}
	entry = stripFence(entry)
	if cfg.AddPRLink && pr.URL != "" {
		entry += fmt.Sprintf("\n\n[PR #%d](%s)", pr.Number, pr.URL)
	}

	if !t.publish() {
		return entry, nil
	}
	defer t.clearProgress(ctx)
	if committer, ok := t.Provider.(vcs.FileCommitter); ok && cfg.PushChangelogChanges {
		message := "Update " + path
		if cfg.SkipCIOnPush {
			message += " [skip ci]"
		}
		updated := entry + "\n\n" + current
		if err := committer.CommitFile(ctx, path, updated, message); err != nil {
			return "", err
		}
		logger.Info(ctx, "changelog committed", "path", path)
		return t.msg("changelog_committed", map[string]interface{}{"Path": path}), nil
	}
	if cfg.PushChangelogChanges {
		logger.Warn(ctx, "provider cannot commit files, publishing the changelog entry as a comment")
	}
	body := fmt.Sprintf("**Changelog updates:** 🔄\n\n%s\n\n>'/update_changelog --pr_update_changelog.push_changelog_changes=true'\n", entry)
	if _, err := t.Provider.PublishComment(ctx, body, false); err != nil {
		return "", err
	}
	return body, nil
}

// stripFence removes a markdown code fence wrapped around the whole text.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if _, rest, ok := strings.Cut(s, "\n"); ok {
		s = rest
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
