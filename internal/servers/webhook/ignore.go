package webhook

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/config"
	"github.com/khulnasoft/pr-insight/internal/logger"
)

// PullRequestInfo is the part of a webhook payload the ignore rules look at.
type PullRequestInfo struct {
	Repo         string
	Title        string
	Author       string
	Labels       []string
	SourceBranch string
	TargetBranch string
}

// ShouldProcess applies the config.ignore_* rules to pr. A rule with an
// invalid pattern is logged and skipped.
func ShouldProcess(ctx context.Context, s *config.Settings, pr PullRequestInfo) bool {
	c := s.Config
	switch {
	case pr.Repo != "" && slices.Contains(c.IgnoreRepositories, pr.Repo):
		logger.Info(ctx, "ignoring pull request of an ignored repository", "repo", pr.Repo)
		return false
	case pr.Author != "" && slices.Contains(c.IgnorePRAuthors, pr.Author):
		logger.Info(ctx, "ignoring pull request of an ignored author", "author", pr.Author)
		return false
	case pr.Title != "" && matchesAny(ctx, c.IgnorePRTitle, pr.Title):
		logger.Info(ctx, "ignoring pull request by title", "title", pr.Title)
		return false
	case hasIgnoredLabel(c.IgnorePRLabels, pr.Labels):
		logger.Info(ctx, "ignoring pull request by label", "labels", strings.Join(pr.Labels, ", "))
		return false
	case pr.SourceBranch != "" && matchesAny(ctx, c.IgnorePRSourceBranches, pr.SourceBranch):
		logger.Info(ctx, "ignoring pull request by source branch", "branch", pr.SourceBranch)
		return false
	case pr.TargetBranch != "" && matchesAny(ctx, c.IgnorePRTargetBranches, pr.TargetBranch):
		logger.Info(ctx, "ignoring pull request by target branch", "branch", pr.TargetBranch)
		return false
	}
	return true
}

func matchesAny(ctx context.Context, patterns []string, s string) bool {
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			logger.Warn(ctx, "invalid ignore pattern", "pattern", p, "error", err)
			continue
		}
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func hasIgnoredLabel(ignored, labels []string) bool {
	for _, l := range labels {
		if slices.Contains(ignored, l) {
			return true
		}
	}
	return false
}

// IsGitHubBot reports whether a GitHub sender should be ignored under
// github_app.ignore_bot_pr. Our own app is never treated as a bot.
func IsGitHubBot(s *config.Settings, login, senderType string) bool {
	return s.GitHubApp.IgnoreBotPR && senderType == "Bot" && !strings.Contains(login, "pr-insight")
}

var gitlabBotMarkers = []string{"khulnasoft", "bot_", "bot-", "_bot", "-bot"}

// IsGitLabBot reports whether a GitLab user name looks like a bot account.
func IsGitLabBot(name string) bool {
	name = strings.ToLower(name)
	for _, m := range gitlabBotMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}
