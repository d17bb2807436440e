// Package gitlab serves the GitLab webhook: merge request, note and push
// hooks.
package gitlab

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/insight"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/servers/webhook"
	gitlabvcs "github.com/khulnasoft/pr-insight/internal/vcs/gitlab"
)

const (
	WebhookPath = "/webhook"
	TokenHeader = "X-Gitlab-Token"

	maxPayloadBytes = 25 << 20
)

// MergeRequestFinder returns the URL of the merge request a pushed commit
// belongs to, or "" when there is none.
type MergeRequestFinder func(ctx context.Context, projectID int, sha, ref string) (string, error)

// Server handles GitLab hooks. Work runs in the background after the hook
// has been acknowledged.
type Server struct {
	insight *insight.Insight
	findMR  MergeRequestFinder

	wg    sync.WaitGroup
	spawn func(func())
}

// New requires gitlab.url and routes every request to the GitLab provider.
func New(in *insight.Insight) (*Server, error) {
	if strings.TrimSpace(in.Settings.GitLab.URL) == "" {
		return nil, domainErrors.ErrInvalidSettings.
			WithContext("key", "gitlab.url").
			WithSuggestion("set gitlab.url to the GitLab instance the hooks come from")
	}
	if err := in.Settings.Set("config.git_provider", "gitlab"); err != nil {
		return nil, err
	}
	s := &Server{insight: in}
	s.findMR = s.lookupMergeRequest
	s.spawn = func(f func()) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			f()
		}()
	}
	return s, nil
}

func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", webhook.Health)
	mux.HandleFunc("POST "+WebhookPath, s.handleWebhook)
	return webhook.Middleware(ctx, "gitlab_app", mux)
}

func (s *Server) Wait() {
	s.wg.Wait()
}

var success = map[string]string{"message": "success"}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		webhook.WriteError(w, http.StatusBadRequest, "error reading request body")
		return
	}
	var p hookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		logger.Warn(ctx, "error parsing request body", "error", err)
		webhook.WriteError(w, http.StatusBadRequest, "error parsing request body")
		return
	}

	settings := s.insight.Settings
	secret := settings.GitLab.SharedSecret
	token := r.Header.Get(TokenHeader)
	if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		logger.Warn(ctx, "failed to validate secret")
		webhook.WriteJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
		return
	}
	if settings.GitLab.PersonalAccessToken == "" {
		logger.Warn(ctx, "no gitlab token configured")
		webhook.WriteJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
		return
	}

	bg := context.WithoutCancel(ctx)
	s.spawn(func() { s.handleHook(bg, &p) })
	webhook.WriteJSON(w, http.StatusOK, success)
}

func (s *Server) handleHook(ctx context.Context, p *hookPayload) {
	ctx = logger.With(ctx,
		"object_kind", p.ObjectKind,
		"sender", p.sender(),
		"app_name", s.insight.Settings.Config.AppName)
	if webhook.IsGitLabBot(p.senderName()) {
		logger.Info(ctx, "skipping gitlab bot user")
		return
	}

	switch {
	case p.ObjectKind == "merge_request":
		s.handleMergeRequest(ctx, p)
	case p.ObjectKind == "note" && p.EventType == "note" && p.MergeRequest != nil:
		s.handleNote(ctx, p)
	case p.ObjectKind == "push" && p.EventName == "push":
		s.handlePush(ctx, p)
	default:
		logger.Debug(ctx, "no handler for hook")
	}
}

func (s *Server) handleMergeRequest(ctx context.Context, p *hookPayload) {
	attrs := p.ObjectAttributes
	if attrs.Action != "open" && attrs.Action != "reopen" {
		return
	}
	ctx = logger.With(ctx, "api_url", attrs.URL)
	if !webhook.ShouldProcess(ctx, s.insight.Settings, p.mergeRequestInfo()) {
		return
	}
	if attrs.Draft || attrs.WorkInProgress {
		logger.Info(ctx, "skipping draft merge request")
		return
	}
	in, err := s.insight.ForPR(ctx, attrs.URL)
	if err != nil {
		logger.Error(ctx, "failed to resolve settings", err)
		return
	}
	if !webhook.ShouldProcess(ctx, in.Settings, p.mergeRequestInfo()) {
		return
	}
	webhook.RunAutoCommands(ctx, in, attrs.URL, "pr_commands", in.Settings.GitLab.PRCommands)
}

func (s *Server) handleNote(ctx context.Context, p *hookPayload) {
	url := p.MergeRequest.URL
	ctx = logger.With(ctx, "api_url", url)
	attrs := p.ObjectAttributes
	request := webhook.CommentCommand(attrs.Note)
	if request == "" {
		logger.Debug(ctx, "ignoring non-command note")
		return
	}
	if attrs.Type == "DiffNote" && strings.Contains(request, "/ask") && attrs.Position != nil {
		pos := attrs.Position
		request = webhook.LineQuestion{
			Question:  request,
			File:      pos.NewPath,
			StartLine: pos.LineRange.Start.NewLine,
			EndLine:   pos.LineRange.End.NewLine,
			Side:      "RIGHT",
			CommentID: attrs.DiscussionID,
		}.Request()
	}
	logger.Info(ctx, "processing merge request note", "request", request)
	if _, err := s.insight.HandleRequest(ctx, url, request); err != nil {
		logger.Error(ctx, "note command failed", err)
	}
}

func (s *Server) handlePush(ctx context.Context, p *hookPayload) {
	url, err := s.findMR(ctx, p.ProjectID, p.CheckoutSHA, p.Ref)
	if err != nil {
		logger.Error(ctx, "failed to find merge request for push", err, "sha", p.CheckoutSHA)
		return
	}
	if url == "" {
		logger.Info(ctx, "no merge request found for commit", "sha", p.CheckoutSHA)
		return
	}
	ctx = logger.With(ctx, "api_url", url)
	in, err := s.insight.ForPR(ctx, url)
	if err != nil {
		logger.Error(ctx, "failed to resolve settings", err)
		return
	}
	cfg := in.Settings.GitLab
	if !cfg.HandlePushTrigger || len(cfg.PushCommands) == 0 {
		logger.Info(ctx, "push event, but no push commands found or push trigger is disabled")
		return
	}
	webhook.RunAutoCommands(ctx, in, url, "push_commands", cfg.PushCommands)
}

// lookupMergeRequest asks GitLab for the merge requests containing sha and
// falls back to the open merge requests of the pushed branch.
func (s *Server) lookupMergeRequest(ctx context.Context, projectID int, sha, ref string) (string, error) {
	api, err := gitlabvcs.NewAPI(s.insight.Settings)
	if err != nil {
		return "", err
	}
	project := strconv.Itoa(projectID)
	urls, err := gitlabvcs.MergeRequestURLsByCommit(ctx, api, project, sha)
	if err != nil {
		return "", err
	}
	if len(urls) == 0 {
		branch := strings.TrimPrefix(ref, "refs/heads/")
		if urls, err = gitlabvcs.OpenMergeRequestURLs(ctx, api, project, branch); err != nil {
			return "", err
		}
	}
	if len(urls) == 0 {
		return "", nil
	}
	return urls[0], nil
}
