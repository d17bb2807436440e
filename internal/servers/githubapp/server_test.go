package githubapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khulnasoft/pr-insight/internal/config"
	"github.com/khulnasoft/pr-insight/internal/insight"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/providers"
	"github.com/khulnasoft/pr-insight/internal/servers/webhook"
	"github.com/khulnasoft/pr-insight/internal/store/sqlite"
	"github.com/khulnasoft/pr-insight/internal/tools"
	"github.com/khulnasoft/pr-insight/internal/vcs"
	"github.com/khulnasoft/pr-insight/internal/vcs/vcstest"
)

const (
	secret = "s3cret"
	apiURL = "https://api.github.com/repos/acme/api/pulls/3"
)

type call struct {
	command      string
	args         []string
	auto         bool
	installation int64
}

type stubTool struct {
	log  *callLog
	call call
}

func (t stubTool) Run(context.Context) (string, error) {
	t.log.add(t.call)
	return "done", nil
}

type callLog struct {
	mu    sync.Mutex
	calls []call
}

func (l *callLog) add(c call) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
}

func (l *callLog) commands() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.calls))
	for _, c := range l.calls {
		out = append(out, c.command)
	}
	return out
}

type fixture struct {
	server *Server
	fake   *vcstest.Fake
	log    *callLog
	stats  *sqlite.StatsRepo
}

func newFixture(t *testing.T, overrides map[string]string) *fixture {
	t.Helper()
	s, err := config.Default()
	require.NoError(t, err)
	require.NoError(t, s.Set("github.webhook_secret", secret))
	require.NoError(t, s.Set("store.path", ":memory:"))
	require.NoError(t, s.Set("github_app.pr_commands", `["/describe", "/review --pr_reviewer.num_code_suggestions=0"]`))
	require.NoError(t, s.Set("github_app.push_commands", `["/review"]`))
	for k, v := range overrides {
		require.NoError(t, s.Set(k, v))
	}

	db, err := sqlite.Open(context.Background(), s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fake := vcstest.New(models.PullRequest{Number: 3, Title: "Fix parser", URL: apiURL})
	log := &callLog{}

	in := insight.New(s)
	in.NewProvider = func(context.Context, *config.Settings, string) (vcs.Provider, error) { return fake, nil }
	in.NewModels = func(context.Context, *config.Settings) *providers.AI { return &providers.AI{} }
	in.NewIndex = nil
	in.Registry = insight.NewRegistry()
	for _, name := range []string{"describe", "review", "ask_line", "checks"} {
		require.NoError(t, in.Registry.Register(name, func(d tools.Deps, args []string) tools.Tool {
			return stubTool{log: log, call: call{
				command:      name,
				args:         args,
				auto:         d.Settings.Config.IsAutoCommand,
				installation: d.Settings.GitHub.InstallationID,
			}}
		}))
	}

	stats := sqlite.NewStatsRepo(db)
	srv, err := New(in, sqlite.NewDeliveryRepo(db), stats)
	require.NoError(t, err)
	srv.spawn = func(f func()) { f() }
	return &fixture{server: srv, fake: fake, log: log, stats: stats}
}

func (f *fixture) deliver(t *testing.T, event, delivery string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(string(body)))
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", delivery)
	req.Header.Set(webhook.SignatureHeader, "sha256="+hex.EncodeToString(mac.Sum(nil)))
	rec := httptest.NewRecorder()
	f.server.Handler(context.Background()).ServeHTTP(rec, req)
	return rec
}

type obj = map[string]any

func pullRequest(mutate func(pr obj)) obj {
	pr := obj{
		"url":        apiURL,
		"number":     3,
		"state":      "open",
		"draft":      false,
		"title":      "Fix parser",
		"created_at": "2026-10-19T08:00:00Z",
		"updated_at": "2026-10-19T09:00:00Z",
		"user":       obj{"login": "dev"},
		"head":       obj{"ref": "fix/parser"},
		"base":       obj{"ref": "main"},
	}
	if mutate != nil {
		mutate(pr)
	}
	return pr
}

func prEvent(action string, pr obj) obj {
	return obj{
		"action":       action,
		"pull_request": pr,
		"repository":   obj{"full_name": "acme/api"},
		"sender":       obj{"login": "dev", "type": "User"},
		"installation": obj{"id": 42},
	}
}

func TestWebhookRequestValidation(t *testing.T) {
	f := newFixture(t, nil)
	h := f.server.Handler(context.Background())

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("missing signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(`{"action":"opened"}`))
		req.Header.Set("X-GitHub-Event", "pull_request")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("wrong signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(`{"action":"opened"}`))
		req.Header.Set(webhook.SignatureHeader, "sha256=00")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(`{not json`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	assert.Empty(t, f.log.commands())
}

func TestCommentEvents(t *testing.T) {
	t.Run("issue comment runs the command", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.deliver(t, "issue_comment", "d-1", obj{
			"action":       "created",
			"issue":        obj{"number": 3, "pull_request": obj{"url": apiURL}},
			"comment":      obj{"id": 77, "body": "  /describe --pr_description.publish_labels=false"},
			"repository":   obj{"full_name": "acme/api"},
			"sender":       obj{"login": "dev", "type": "User"},
			"installation": obj{"id": 42},
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, f.log.calls, 1)
		c := f.log.calls[0]
		assert.Equal(t, "describe", c.command)
		assert.False(t, c.auto)
		assert.Equal(t, int64(42), c.installation)
		assert.Equal(t, 1, f.fake.Reactions)
	})

	t.Run("plain comments are ignored", func(t *testing.T) {
		f := newFixture(t, nil)
		f.deliver(t, "issue_comment", "d-2", obj{
			"action":  "created",
			"issue":   obj{"number": 3, "pull_request": obj{"url": apiURL}},
			"comment": obj{"id": 78, "body": "thanks!"},
			"sender":  obj{"login": "dev", "type": "User"},
		})
		assert.Empty(t, f.log.calls)
		assert.Zero(t, f.fake.Reactions)
	})

	t.Run("ask on a diff line", func(t *testing.T) {
		f := newFixture(t, nil)
		f.deliver(t, "pull_request_review_comment", "d-3", obj{
			"action": "created",
			"comment": obj{
				"id":               91,
				"body":             "/ask why is this needed?",
				"path":             "parser/lex.go",
				"start_line":       10,
				"line":             12,
				"side":             "RIGHT",
				"subject_type":     "line",
				"pull_request_url": apiURL,
			},
			"pull_request": pullRequest(nil),
			"sender":       obj{"login": "dev", "type": "User"},
		})
		require.Len(t, f.log.calls, 1)
		c := f.log.calls[0]
		assert.Equal(t, "ask_line", c.command)
		assert.Equal(t, []string{
			"--line_start=10", "--line_end=12", "--side=RIGHT",
			"--file_name=parser/lex.go", "--comment_id=91", "why is this needed?",
		}, c.args)
		assert.Zero(t, f.fake.Reactions)
	})

	t.Run("redelivery is ignored", func(t *testing.T) {
		f := newFixture(t, nil)
		payload := obj{
			"action":  "created",
			"issue":   obj{"number": 3, "pull_request": obj{"url": apiURL}},
			"comment": obj{"id": 79, "body": "/review"},
			"sender":  obj{"login": "dev", "type": "User"},
		}
		f.deliver(t, "issue_comment", "d-4", payload)
		rec := f.deliver(t, "issue_comment", "d-4", payload)
		assert.JSONEq(t, `{"status":"duplicate"}`, rec.Body.String())
		assert.Equal(t, []string{"review"}, f.log.commands())
	})
}

func TestPullRequestEvents(t *testing.T) {
	t.Run("opened runs pr_commands", func(t *testing.T) {
		f := newFixture(t, nil)
		f.deliver(t, "pull_request", "p-1", prEvent("opened", pullRequest(nil)))
		assert.Equal(t, []string{"describe", "review"}, f.log.commands())
		for _, c := range f.log.calls {
			assert.True(t, c.auto)
		}
		assert.Equal(t, 1, f.fake.SettingsReads)
	})

	skipped := map[string]struct {
		action string
		pr     obj
	}{
		"draft": {action: "opened", pr: pullRequest(func(pr obj) { pr["draft"] = true })},
		"review requested while creating": {action: "review_requested", pr: pullRequest(func(pr obj) {
			pr["updated_at"] = pr["created_at"]
		})},
		"ignored title":        {action: "opened", pr: pullRequest(func(pr obj) { pr["title"] = "[Auto] bump deps" })},
		"unhandled action":     {action: "labeled", pr: pullRequest(nil)},
		"closed without merge": {action: "closed", pr: pullRequest(func(pr obj) { pr["state"] = "closed" })},
	}
	for name, tc := range skipped {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.deliver(t, "pull_request", "p-"+name, prEvent(tc.action, tc.pr))
			assert.Empty(t, f.log.calls)
		})
	}

	t.Run("bot sender", func(t *testing.T) {
		f := newFixture(t, nil)
		ev := prEvent("opened", pullRequest(nil))
		ev["sender"] = obj{"login": "dependabot[bot]", "type": "Bot"}
		f.deliver(t, "pull_request", "p-bot", ev)
		assert.Empty(t, f.log.calls)
	})

	t.Run("synchronize runs push_commands", func(t *testing.T) {
		f := newFixture(t, map[string]string{"github_app.handle_push_trigger": "true"})
		ev := prEvent("synchronize", pullRequest(func(pr obj) { pr["merge_commit_sha"] = "ccc" }))
		ev["before"], ev["after"] = "aaa", "bbb"
		f.deliver(t, "pull_request", "s-1", ev)
		assert.Equal(t, []string{"review"}, f.log.commands())

		ev["before"], ev["after"] = "bbb", "ccc"
		f.deliver(t, "pull_request", "s-2", ev)
		assert.Equal(t, []string{"review"}, f.log.commands(), "merge commit pushes are skipped")
	})

	t.Run("synchronize without push trigger", func(t *testing.T) {
		f := newFixture(t, nil)
		ev := prEvent("synchronize", pullRequest(nil))
		ev["before"], ev["after"] = "aaa", "bbb"
		f.deliver(t, "pull_request", "s-3", ev)
		assert.Empty(t, f.log.calls)
	})

	t.Run("merged pull requests are recorded", func(t *testing.T) {
		f := newFixture(t, nil)
		f.deliver(t, "pull_request", "c-1", prEvent("closed", pullRequest(func(pr obj) {
			pr["state"] = "closed"
			pr["merged"] = true
			pr["merged_at"] = "2026-10-19T13:00:00Z"
			pr["changed_files"] = 4
			pr["additions"] = 30
			pr["deletions"] = 2
			pr["commits"] = 3
		})))
		assert.Empty(t, f.log.calls)

		stats, err := f.stats.List(context.Background(), "acme/api")
		require.NoError(t, err)
		require.Len(t, stats, 1)
		assert.Equal(t, 4, stats[0].FilesChanged)
		assert.InDelta(t, 5.0, stats[0].HoursOpen, 0.001)

		rec := httptest.NewRecorder()
		f.server.Handler(context.Background()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, StatsPath+"?repo=acme/api", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":1`)
	})
}

func TestCheckRunFeedback(t *testing.T) {
	f := newFixture(t, map[string]string{"checks.enable_auto_checks_feedback": "true"})
	f.deliver(t, "check_run", "k-1", obj{
		"action": "completed",
		"check_run": obj{
			"name":          "unit-tests",
			"conclusion":    "failure",
			"pull_requests": []obj{{"url": apiURL, "number": 3}},
		},
		"sender": obj{"login": "github-actions[bot]", "type": "Bot"},
	})
	require.Len(t, f.log.calls, 1)
	assert.Equal(t, "checks", f.log.calls[0].command)
	assert.True(t, f.log.calls[0].auto)
}

func TestPushTracker(t *testing.T) {
	tracker := newPushTracker(time.Minute)
	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{})
	var order []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tracker.run(ctx, "pr", true, func() {
			close(started)
			<-release
			record("first")
		})
	}()
	<-started
	go func() {
		defer wg.Done()
		tracker.run(ctx, "pr", true, func() { record("second") })
	}()

	require.Eventually(t, func() bool {
		tracker.mu.Lock()
		defer tracker.mu.Unlock()
		g, ok := tracker.gates.Get("pr")
		return ok && g.active == 2
	}, time.Second, 5*time.Millisecond)

	assert.False(t, tracker.run(ctx, "pr", true, func() { record("third") }))
	assert.True(t, tracker.run(ctx, "other", true, func() { record("other") }))

	close(release)
	wg.Wait()
	assert.Equal(t, []string{"other", "first", "second"}, order)
}
