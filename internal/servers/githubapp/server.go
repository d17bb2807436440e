// Package githubapp serves the GitHub App webhook: comment commands, auto
// commands on new pull requests and pushes, and merged PR statistics.
package githubapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v80/github"

	"github.com/khulnasoft/pr-insight/internal/insight"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/servers/webhook"
	"github.com/khulnasoft/pr-insight/internal/store/sqlite"
)

const (
	WebhookPath = "/api/v1/github_webhooks"
	StatsPath   = "/api/v1/stats"

	maxPayloadBytes = 25 << 20
)

// DeliveryStore remembers the delivery ids already handled.
type DeliveryStore interface {
	MarkDelivered(ctx context.Context, id, event string) (bool, error)
}

// StatsStore keeps the statistics of merged pull requests.
type StatsStore interface {
	Record(ctx context.Context, s sqlite.PRStat) error
	webhook.StatsSource
}

// Server handles GitHub App deliveries. Work runs in the background after
// the delivery has been acknowledged; Wait blocks until it has finished.
type Server struct {
	insight    *insight.Insight
	deliveries DeliveryStore
	stats      StatsStore
	pushes     *pushTracker

	wg    sync.WaitGroup
	spawn func(func())
}

// New builds the server. deliveries and stats may be nil, in which case
// redeliveries are handled again and merged PRs are only logged.
func New(in *insight.Insight, deliveries DeliveryStore, stats StatsStore) (*Server, error) {
	if in.Settings.GitHubApp.OverrideDeploymentType {
		if err := in.Settings.Set("github.deployment_type", "app"); err != nil {
			return nil, err
		}
	}
	ttl := time.Duration(in.Settings.GitHubApp.PushTriggerPendingTasksTTL) * time.Second
	s := &Server{
		insight:    in,
		deliveries: deliveries,
		stats:      stats,
		pushes:     newPushTracker(ttl),
	}
	s.spawn = func(f func()) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			f()
		}()
	}
	return s, nil
}

// Handler returns the routes wrapped in recovery and logging middleware.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", webhook.Health)
	mux.HandleFunc("POST "+WebhookPath, s.handleWebhook)
	if s.stats != nil {
		mux.Handle("GET "+StatsPath, webhook.Stats(s.stats))
	}
	return webhook.Middleware(ctx, "github_app", mux)
}

// Wait blocks until every background task has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil || !json.Valid(body) {
		logger.Warn(ctx, "error parsing request body", "error", err)
		webhook.WriteError(w, http.StatusBadRequest, "error parsing request body")
		return
	}
	if secret := s.insight.Settings.GitHub.WebhookSecret; secret != "" {
		if err := webhook.VerifySignature(body, secret, r.Header.Get(webhook.SignatureHeader)); err != nil {
			logger.Warn(ctx, "rejected webhook", "error", err)
			webhook.WriteError(w, http.StatusForbidden, "request signatures didn't match")
			return
		}
	}

	event := github.WebHookType(r)
	delivery := github.DeliveryID(r)
	ctx = logger.With(ctx, "event", event, "delivery_id", delivery)
	if s.deliveries != nil && delivery != "" {
		first, err := s.deliveries.MarkDelivered(ctx, delivery, event)
		if err != nil {
			logger.Warn(ctx, "failed to record delivery", "error", err)
		} else if !first {
			logger.Info(ctx, "ignoring redelivered webhook")
			webhook.WriteJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	payload, err := github.ParseWebHook(event, body)
	if err != nil {
		logger.Info(ctx, "no handler for event", "error", err)
		webhook.WriteJSON(w, http.StatusOK, struct{}{})
		return
	}
	bg := context.WithoutCancel(ctx)
	s.spawn(func() { s.handleEvent(bg, event, payload) })
	webhook.WriteJSON(w, http.StatusOK, struct{}{})
}

// sender is the common part of the event payloads.
type sender interface {
	GetAction() string
	GetSender() *github.User
	GetRepo() *github.Repository
	GetInstallation() *github.Installation
}

func (s *Server) handleEvent(ctx context.Context, event string, payload any) {
	e, ok := payload.(sender)
	if !ok || e.GetAction() == "" {
		logger.Debug(ctx, "no handler for event")
		return
	}
	action := e.GetAction()
	in, err := s.insightFor(e.GetInstallation().GetID())
	if err != nil {
		logger.Error(ctx, "failed to prepare request settings", err)
		return
	}
	ctx = logger.With(ctx,
		"action", action,
		"sender", e.GetSender().GetLogin(),
		"repo", e.GetRepo().GetFullName(),
		"installation_id", e.GetInstallation().GetID(),
		"app_name", in.Settings.Config.AppName,
	)

	_, isCheckRun := payload.(*github.CheckRunEvent)
	if !isCheckRun && webhook.IsGitHubBot(in.Settings, e.GetSender().GetLogin(), e.GetSender().GetType()) {
		logger.Info(ctx, "ignoring event from bot user")
		return
	}

	switch ev := payload.(type) {
	case *github.IssueCommentEvent:
		if action != "created" || ev.GetIssue().GetPullRequestLinks() == nil {
			return
		}
		s.handleComment(ctx, in, ev.GetIssue().GetPullRequestLinks().GetURL(), ev.GetComment().GetID(), ev.GetComment().GetBody(), nil)
	case *github.PullRequestReviewCommentEvent:
		if action != "created" {
			return
		}
		c := ev.GetComment()
		var line *webhook.LineQuestion
		if c.GetSubjectType() == "line" {
			line = &webhook.LineQuestion{
				Question:  c.GetBody(),
				File:      c.GetPath(),
				StartLine: c.GetStartLine(),
				EndLine:   c.GetLine(),
				Side:      c.GetSide(),
				CommentID: strconv.FormatInt(c.GetID(), 10),
			}
		}
		s.handleComment(ctx, in, c.GetPullRequestURL(), c.GetID(), c.GetBody(), line)
	case *github.PullRequestEvent:
		if !webhook.ShouldProcess(ctx, in.Settings, pullRequestInfo(ev.GetRepo(), ev.GetPullRequest())) {
			return
		}
		s.handlePullRequest(ctx, in, ev)
	case *github.CheckRunEvent:
		s.handleCheckRun(ctx, in, ev)
	default:
		logger.Info(ctx, "no handler for event")
	}
}

// insightFor acts as the App installation that sent the delivery.
func (s *Server) insightFor(installationID int64) (*insight.Insight, error) {
	settings := s.insight.Settings.Clone()
	if installationID != 0 {
		if err := settings.Set("github.installation_id", strconv.FormatInt(installationID, 10)); err != nil {
			return nil, err
		}
	}
	return s.insight.WithSettings(settings), nil
}

func (s *Server) handleComment(ctx context.Context, in *insight.Insight, prURL string, commentID int64, body string, line *webhook.LineQuestion) {
	request := webhook.CommentCommand(body)
	if request == "" || prURL == "" {
		logger.Debug(ctx, "ignoring non-command comment")
		return
	}
	ctx = logger.With(ctx, "api_url", prURL)
	eyes := true
	if line != nil && strings.Contains(request, "/ask") {
		line.Question = request
		request = line.Request()
		eyes = false
	}
	fields := strings.Fields(request)
	if !in.IsCommand(fields[0]) {
		logger.Info(ctx, "ignoring unknown command", "command", fields[0])
		return
	}
	if eyes {
		s.addEyes(ctx, in, prURL, commentID)
	}
	logger.Info(ctx, "processing comment", "request", request)
	if _, err := in.HandleRequest(ctx, prURL, request); err != nil {
		logger.Error(ctx, "comment command failed", err)
	}
}

func (s *Server) addEyes(ctx context.Context, in *insight.Insight, prURL string, commentID int64) {
	if commentID == 0 {
		return
	}
	provider, err := in.NewProvider(ctx, in.Settings, prURL)
	if err != nil {
		logger.Warn(ctx, "failed to create provider for reaction", "error", err)
		return
	}
	if _, err := provider.AddEyesReaction(ctx, commentID); err != nil {
		logger.Warn(ctx, "failed to add eyes reaction", "error", err)
	}
}

func (s *Server) handlePullRequest(ctx context.Context, in *insight.Insight, ev *github.PullRequestEvent) {
	pr := ev.GetPullRequest()
	apiURL := pr.GetURL()
	if apiURL == "" {
		return
	}
	ctx = logger.With(ctx, "api_url", apiURL)
	action := ev.GetAction()

	if action == "closed" {
		if pr.GetMerged() {
			s.recordStats(ctx, ev)
		}
		return
	}
	if !isOpenForWork(action, pr) {
		logger.Info(ctx, "skipping pull request event", "draft", pr.GetDraft(), "state", pr.GetState())
		return
	}
	if action == "synchronize" {
		s.handlePush(ctx, in, ev)
		return
	}
	if !slices.Contains(in.Settings.GitHubApp.HandlePRActions, action) {
		return
	}

	in, err := in.ForPR(ctx, apiURL)
	if err != nil {
		logger.Error(ctx, "failed to resolve settings", err)
		return
	}
	if !webhook.ShouldProcess(ctx, in.Settings, pullRequestInfo(ev.GetRepo(), pr)) {
		return
	}
	webhook.RunAutoCommands(ctx, in, apiURL, "pr_commands", in.Settings.GitHubApp.PRCommands)
}

// isOpenForWork skips drafts, closed PRs and the review_requested or
// synchronize events GitHub sends while the PR is being created.
func isOpenForWork(action string, pr *github.PullRequest) bool {
	if pr.GetDraft() || pr.GetState() != "open" {
		return false
	}
	if action == "review_requested" || action == "synchronize" {
		return !pr.GetCreatedAt().Time.Equal(pr.GetUpdatedAt().Time)
	}
	return true
}

func (s *Server) handlePush(ctx context.Context, in *insight.Insight, ev *github.PullRequestEvent) {
	pr := ev.GetPullRequest()
	apiURL := pr.GetURL()
	in, err := in.ForPR(ctx, apiURL)
	if err != nil {
		logger.Error(ctx, "failed to resolve settings", err)
		return
	}
	app := in.Settings.GitHubApp
	switch {
	case !app.HandlePushTrigger:
		return
	case ev.GetBefore() == ev.GetAfter():
		return
	case app.PushTriggerIgnoreMergeCommits && ev.GetAfter() == pr.GetMergeCommitSHA():
		logger.Info(ctx, "skipping merge commit push")
		return
	case app.PushTriggerIgnoreBotCommits && ev.GetSender().GetType() == "Bot":
		logger.Info(ctx, "skipping push by bot user")
		return
	}
	if !webhook.ShouldProcess(ctx, in.Settings, pullRequestInfo(ev.GetRepo(), pr)) {
		return
	}
	ran := s.pushes.run(ctx, apiURL, app.PushTriggerPendingTasksBacklog, func() {
		logger.Info(ctx, "performing incremental review")
		webhook.RunAutoCommands(ctx, in, apiURL, "push_commands", app.PushCommands)
	})
	if !ran {
		logger.Info(ctx, "skipping push trigger, another event already triggered processing")
	}
}

func (s *Server) handleCheckRun(ctx context.Context, in *insight.Insight, ev *github.CheckRunEvent) {
	run := ev.GetCheckRun()
	if ev.GetAction() != "completed" || run.GetConclusion() != "failure" || !in.Settings.Checks.EnableAutoChecksFeedback {
		return
	}
	for _, pr := range run.PullRequests {
		prURL := pr.GetURL()
		if prURL == "" {
			continue
		}
		if _, err := in.HandleAutoRequest(logger.With(ctx, "api_url", prURL), prURL, "/checks"); err != nil {
			logger.Error(ctx, "checks feedback failed", err, "api_url", prURL)
		}
	}
}

func (s *Server) recordStats(ctx context.Context, ev *github.PullRequestEvent) {
	pr := ev.GetPullRequest()
	merged := pr.GetMergedAt().Time
	stat := sqlite.PRStat{
		Repo:         ev.GetRepo().GetFullName(),
		Number:       pr.GetNumber(),
		FilesChanged: pr.GetChangedFiles(),
		Additions:    pr.GetAdditions(),
		Deletions:    pr.GetDeletions(),
		Commits:      pr.GetCommits(),
		HoursOpen:    merged.Sub(pr.GetCreatedAt().Time).Hours(),
		MergedAt:     merged,
	}
	logger.Info(ctx, "statistics for closed PR",
		"analytics", true,
		"files_changed", stat.FilesChanged,
		"additions", stat.Additions,
		"deletions", stat.Deletions,
		"commits", stat.Commits,
		"hours_open", stat.HoursOpen)
	if s.stats == nil {
		return
	}
	if err := s.stats.Record(ctx, stat); err != nil {
		logger.Error(ctx, "failed to record statistics", err)
	}
}

func pullRequestInfo(repo *github.Repository, pr *github.PullRequest) webhook.PullRequestInfo {
	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}
	return webhook.PullRequestInfo{
		Repo:         repo.GetFullName(),
		Title:        pr.GetTitle(),
		Author:       pr.GetUser().GetLogin(),
		Labels:       labels,
		SourceBranch: pr.GetHead().GetRef(),
		TargetBranch: pr.GetBase().GetRef(),
	}
}
