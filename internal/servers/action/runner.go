// Package action runs pr-insight inside a GitHub Actions workflow, driven by
// the event that triggered the workflow.
package action

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/google/go-github/v80/github"

	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/insight"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/servers/webhook"
)

// Runner handles one workflow event.
type Runner struct {
	insight *insight.Insight
	getenv  func(string) string
}

func New(in *insight.Insight, getenv func(string) string) *Runner {
	if getenv == nil {
		getenv = os.Getenv
	}
	return &Runner{insight: in, getenv: getenv}
}

// env returns the first non-empty variable among names.
func (r *Runner) env(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(r.getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

// Run reads GITHUB_EVENT_NAME and GITHUB_EVENT_PATH and reacts to the event.
func (r *Runner) Run(ctx context.Context) error {
	event := r.env("GITHUB_EVENT_NAME")
	path := r.env("GITHUB_EVENT_PATH")
	token := r.env("GITHUB_TOKEN")
	for _, v := range [][2]string{{"GITHUB_EVENT_NAME", event}, {"GITHUB_EVENT_PATH", path}, {"GITHUB_TOKEN", token}} {
		if v[1] == "" {
			return domainErrors.ErrMissingArgument.WithContext("env", v[0])
		}
	}
	if err := r.configure(token); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domainErrors.ErrMissingArgument.WithError(err).WithContext("env", "GITHUB_EVENT_PATH")
	}
	payload, err := github.ParseWebHook(event, data)
	if err != nil {
		logger.Info(ctx, "skipping unsupported event", "event", event, "error", err)
		return nil
	}
	ctx = logger.With(ctx, "event", event, "server_type", "github_action")

	switch ev := payload.(type) {
	case *github.PullRequestEvent:
		return r.handlePullRequest(ctx, ev.GetAction(), ev.GetPullRequest())
	case *github.PullRequestTargetEvent:
		return r.handlePullRequest(ctx, ev.GetAction(), ev.GetPullRequest())
	case *github.IssueCommentEvent:
		if !isCommentAction(ev.GetAction()) {
			return nil
		}
		links := ev.GetIssue().GetPullRequestLinks()
		if links == nil {
			logger.Info(ctx, "ignoring comment on an issue")
			return nil
		}
		return r.handleComment(ctx, links.GetURL(), ev.GetComment().GetID(), ev.GetComment().GetBody(), nil)
	case *github.PullRequestReviewCommentEvent:
		if !isCommentAction(ev.GetAction()) {
			return nil
		}
		c := ev.GetComment()
		line := &webhook.LineQuestion{
			File:      c.GetPath(),
			StartLine: c.GetStartLine(),
			EndLine:   c.GetLine(),
			Side:      c.GetSide(),
			CommentID: strconv.FormatInt(c.GetID(), 10),
		}
		return r.handleComment(ctx, c.GetPullRequestURL(), c.GetID(), c.GetBody(), line)
	default:
		logger.Info(ctx, "no handler for event")
		return nil
	}
}

func isCommentAction(action string) bool {
	return action == "created" || action == "edited"
}

// configure applies the workflow's credentials to the base settings.
func (r *Runner) configure(token string) error {
	s := r.insight.Settings
	overrides := [][2]string{
		{"github.user_token", token},
		{"github.deployment_type", "user"},
		{"config.git_provider", "github"},
	}
	if key := r.env("OPENAI_KEY", "OPENAI.KEY"); key != "" {
		overrides = append(overrides, [2]string{"openai.key", key})
	}
	if org := r.env("OPENAI_ORG", "OPENAI.ORG"); org != "" {
		overrides = append(overrides, [2]string{"openai.org", org})
	}
	for _, o := range overrides {
		if err := s.Set(o[0], o[1]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) handlePullRequest(ctx context.Context, action string, pr *github.PullRequest) error {
	prURL := pr.GetURL()
	if prURL == "" {
		return nil
	}
	ctx = logger.With(ctx, "action", action, "api_url", prURL)
	in, err := r.insight.ForPR(ctx, prURL)
	if err != nil {
		return err
	}
	cfg := in.Settings.GitHubAction
	if !slices.Contains(cfg.PRActions, action) {
		logger.Info(ctx, "skipping action")
		return nil
	}

	auto := []struct {
		enabled bool
		request string
	}{
		{r.flag("GITHUB_ACTION.AUTO_DESCRIBE", cfg.AutoDescribe), "/describe --pr_description.final_update_message=false"},
		{r.flag("GITHUB_ACTION.AUTO_REVIEW", cfg.AutoReview), "/review"},
		{r.flag("GITHUB_ACTION.AUTO_IMPROVE", cfg.AutoImprove), "/improve"},
	}
	logger.Info(ctx, "running auto actions",
		"auto_describe", auto[0].enabled,
		"auto_review", auto[1].enabled,
		"auto_improve", auto[2].enabled)
	for _, a := range auto {
		if !a.enabled {
			continue
		}
		out, err := in.HandleAutoRequest(ctx, prURL, a.request)
		if err != nil {
			logger.Error(ctx, "auto action failed", err, "request", a.request)
			continue
		}
		r.writeOutput(ctx, cfg.EnableOutput, a.request, out)
	}
	return nil
}

// flag lets a workflow env variable override a github_action_config switch.
func (r *Runner) flag(name string, fallback bool) bool {
	v := r.env(name, strings.ToLower(name))
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true")
}

func (r *Runner) handleComment(ctx context.Context, prURL string, commentID int64, body string, line *webhook.LineQuestion) error {
	request := webhook.CommentCommand(body)
	if request == "" || prURL == "" {
		return nil
	}
	ctx = logger.With(ctx, "api_url", prURL)
	eyes := line == nil
	if line != nil && strings.Contains(request, "/ask") {
		line.Question = request
		request = line.Request()
	}
	if !r.insight.IsCommand(strings.Fields(request)[0]) {
		logger.Info(ctx, "ignoring unknown command", "request", request)
		return nil
	}
	if eyes && commentID != 0 {
		if provider, err := r.insight.NewProvider(ctx, r.insight.Settings, prURL); err == nil {
			if _, err := provider.AddEyesReaction(ctx, commentID); err != nil {
				logger.Warn(ctx, "failed to add eyes reaction", "error", err)
			}
		}
	}
	out, err := r.insight.HandleRequest(ctx, prURL, request)
	if err != nil {
		return err
	}
	r.writeOutput(ctx, r.insight.Settings.GitHubAction.EnableOutput, request, out)
	return nil
}

// writeOutput appends "<command>=<json>" to $GITHUB_OUTPUT.
func (r *Runner) writeOutput(ctx context.Context, enabled bool, request, output string) {
	path := r.env("GITHUB_OUTPUT")
	if !enabled || path == "" || output == "" {
		return
	}
	key := insight.Normalize(strings.Fields(request)[0])
	value, err := json.Marshal(output)
	if err != nil {
		logger.Warn(ctx, "failed to encode action output", "error", err)
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Warn(ctx, "failed to open action output", "error", err)
		return
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s=%s\n", key, value); err != nil {
		logger.Warn(ctx, "failed to write action output", "error", err)
	}
}
