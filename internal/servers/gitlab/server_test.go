package gitlab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
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

const mrURL = "https://gitlab.example.com/acme/api/-/merge_requests/5"

type recorded struct {
	command string
	args    []string
	auto    bool
	prURL   string
}

type recordingTool struct {
	mu    *sync.Mutex
	calls *[]recorded
	call  recorded
}

func (t recordingTool) Run(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	*t.calls = append(*t.calls, t.call)
	return "", nil
}

type fixture struct {
	server *Server
	fake   *vcstest.Fake
	calls  []recorded
	pushes []string
}

func newFixture(t *testing.T, overrides map[string]string) *fixture {
	t.Helper()
	s, err := config.Default()
	require.NoError(t, err)
	require.NoError(t, s.Set("gitlab.shared_secret", "hook-token"))
	require.NoError(t, s.Set("gitlab.personal_access_token", "glpat-test"))
	require.NoError(t, s.Set("gitlab.pr_commands", `["/describe", "/review"]`))
	require.NoError(t, s.Set("gitlab.push_commands", `["/review"]`))
	for k, v := range overrides {
		require.NoError(t, s.Set(k, v))
	}

	f := &fixture{}
	var mu sync.Mutex
	fake := vcstest.New(models.PullRequest{Number: 5, URL: mrURL})
	f.fake = fake
	in := insight.New(s)
	in.NewProvider = func(_ context.Context, s *config.Settings, prURL string) (vcs.Provider, error) {
		assert.Equal(t, "gitlab", s.Config.GitProvider)
		return fake, nil
	}
	in.NewModels = func(context.Context, *config.Settings) *providers.AI { return &providers.AI{} }
	in.NewIndex = nil
	in.Registry = insight.NewRegistry()
	for _, name := range []string{"describe", "review", "ask_line", "ask"} {
		require.NoError(t, in.Registry.Register(name, func(d tools.Deps, args []string) tools.Tool {
			return recordingTool{mu: &mu, calls: &f.calls, call: recorded{
				command: name,
				args:    args,
				auto:    d.Settings.Config.IsAutoCommand,
				prURL:   d.Provider.PRURL(),
			}}
		}))
	}

	srv, err := New(in)
	require.NoError(t, err)
	srv.spawn = func(fn func()) { fn() }
	srv.findMR = func(_ context.Context, projectID int, sha, ref string) (string, error) {
		f.pushes = append(f.pushes, sha)
		if sha == "orphan" {
			return "", nil
		}
		return mrURL, nil
	}
	f.server = srv
	return f
}

func (f *fixture) hook(t *testing.T, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(string(body)))
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler(context.Background()).ServeHTTP(rec, req)
	return rec
}

func (f *fixture) commands() []string {
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.command)
	}
	return out
}

type obj = map[string]any

func mergeRequestHook(mutate func(attrs obj)) obj {
	attrs := obj{
		"action":        "open",
		"title":         "Add parser",
		"url":           mrURL,
		"source_branch": "feature/parser",
		"target_branch": "main",
		"draft":         false,
	}
	if mutate != nil {
		mutate(attrs)
	}
	return obj{
		"object_kind":       "merge_request",
		"event_type":        "merge_request",
		"user":              obj{"id": 1, "name": "Jane Doe", "username": "jane"},
		"project":           obj{"path_with_namespace": "acme/api"},
		"object_attributes": attrs,
	}
}

func TestNew(t *testing.T) {
	s, err := config.Default()
	require.NoError(t, err)
	require.NoError(t, s.Set("gitlab.url", ""))

	_, err = New(insight.New(s))
	assert.ErrorIs(t, err, domainErrors.ErrInvalidSettings)
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusUnauthorized, f.hook(t, "", mergeRequestHook(nil)).Code)
	assert.Equal(t, http.StatusUnauthorized, f.hook(t, "wrong", mergeRequestHook(nil)).Code)
	assert.Empty(t, f.calls)

	rec := f.hook(t, "hook-token", mergeRequestHook(nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"success"}`, rec.Body.String())
}

func TestMergeRequestHooks(t *testing.T) {
	t.Run("opened merge request runs pr_commands", func(t *testing.T) {
		f := newFixture(t, nil)
		f.hook(t, "hook-token", mergeRequestHook(nil))
		assert.Equal(t, []string{"describe", "review"}, f.commands())
		for _, c := range f.calls {
			assert.True(t, c.auto)
			assert.Equal(t, mrURL, c.prURL)
		}
		assert.Equal(t, 1, f.fake.SettingsReads)
	})

	for name, mutate := range map[string]func(obj){
		"draft":          func(a obj) { a["draft"] = true },
		"update":         func(a obj) { a["action"] = "update" },
		"ignored branch": func(a obj) { a["source_branch"] = "release/2.0" },
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, map[string]string{"config.ignore_pr_source_branches": `["^release/"]`})
			f.hook(t, "hook-token", mergeRequestHook(mutate))
			assert.Empty(t, f.calls)
		})
	}

	t.Run("bot user", func(t *testing.T) {
		f := newFixture(t, nil)
		hook := mergeRequestHook(nil)
		hook["user"] = obj{"name": "project_7_bot_1", "username": "project_7_bot_1"}
		f.hook(t, "hook-token", hook)
		assert.Empty(t, f.calls)
	})
}

func TestNoteHooks(t *testing.T) {
	t.Run("command note", func(t *testing.T) {
		f := newFixture(t, nil)
		f.hook(t, "hook-token", obj{
			"object_kind":       "note",
			"event_type":        "note",
			"user":              obj{"name": "Jane Doe", "username": "jane"},
			"merge_request":     obj{"url": mrURL},
			"object_attributes": obj{"note": "/ask what does this change?", "type": nil},
		})
		require.Len(t, f.calls, 1)
		assert.Equal(t, "ask", f.calls[0].command)
		assert.False(t, f.calls[0].auto)
	})

	t.Run("diff note question", func(t *testing.T) {
		f := newFixture(t, nil)
		f.hook(t, "hook-token", obj{
			"object_kind":   "note",
			"event_type":    "note",
			"user":          obj{"name": "Jane Doe", "username": "jane"},
			"merge_request": obj{"url": mrURL},
			"object_attributes": obj{
				"note":          "/ask is this thread safe?",
				"type":          "DiffNote",
				"discussion_id": "abc123",
				"position": obj{
					"new_path":   "pkg/cache.go",
					"line_range": obj{"start": obj{"new_line": 20}, "end": obj{"new_line": 24}},
				},
			},
		})
		require.Len(t, f.calls, 1)
		assert.Equal(t, "ask_line", f.calls[0].command)
		assert.Equal(t, []string{
			"--line_start=20", "--line_end=24", "--side=RIGHT",
			"--file_name=pkg/cache.go", "--comment_id=abc123", "is this thread safe?",
		}, f.calls[0].args)
	})

	t.Run("regular note", func(t *testing.T) {
		f := newFixture(t, nil)
		f.hook(t, "hook-token", obj{
			"object_kind":       "note",
			"event_type":        "note",
			"user":              obj{"name": "Jane Doe", "username": "jane"},
			"merge_request":     obj{"url": mrURL},
			"object_attributes": obj{"note": "nice work"},
		})
		assert.Empty(t, f.calls)
	})
}

func TestPushHooks(t *testing.T) {
	push := func(sha string) obj {
		return obj{
			"object_kind":  "push",
			"event_name":   "push",
			"user_name":    "Jane Doe",
			"project_id":   12,
			"checkout_sha": sha,
			"ref":          "refs/heads/feature/parser",
		}
	}

	t.Run("push trigger disabled", func(t *testing.T) {
		f := newFixture(t, nil)
		f.hook(t, "hook-token", push("abc"))
		assert.Equal(t, []string{"abc"}, f.pushes)
		assert.Empty(t, f.calls)
	})

	t.Run("push runs push_commands", func(t *testing.T) {
		f := newFixture(t, map[string]string{"gitlab.handle_push_trigger": "true"})
		f.hook(t, "hook-token", push("abc"))
		assert.Equal(t, []string{"review"}, f.commands())
		assert.True(t, f.calls[0].auto)
	})

	t.Run("commit outside a merge request", func(t *testing.T) {
		f := newFixture(t, map[string]string{"gitlab.handle_push_trigger": "true"})
		f.hook(t, "hook-token", push("orphan"))
		assert.Empty(t, f.calls)
	})
}
