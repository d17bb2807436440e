package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/shlex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khulnasoft/pr-insight/internal/config"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/store/sqlite"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"action":"opened"}`)

	assert.NoError(t, VerifySignature(body, "s3cret", sign(body, "s3cret")))
	assert.ErrorIs(t, VerifySignature(body, "s3cret", sign(body, "other")), domainErrors.ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(body, "s3cret", ""), domainErrors.ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature([]byte(`{}`), "s3cret", sign(body, "s3cret")), domainErrors.ErrInvalidSignature)
}

func TestTTLMap(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	m := NewTTLMap[string, int](5 * time.Minute)
	m.now = func() time.Time { return now }

	m.Set("a", 1)
	assert.Equal(t, 2, m.GetOrCreate("b", func() int { return 2 }))
	assert.Equal(t, 2, m.GetOrCreate("b", func() int { return 3 }))

	now = now.Add(4 * time.Minute)
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	// "a" was refreshed by the read, "b" was not
	now = now.Add(2 * time.Minute)
	_, ok = m.Get("a")
	assert.True(t, ok)
	_, ok = m.Get("b")
	assert.False(t, ok)

	now = now.Add(10 * time.Minute)
	assert.Zero(t, m.Len())
}

func TestShouldProcess(t *testing.T) {
	s, err := config.Default()
	require.NoError(t, err)
	require.NoError(t, s.Set("config.ignore_pr_title", `["^\\[Auto\\]", "(bad"]`))
	require.NoError(t, s.Set("config.ignore_pr_labels", `["skip-review"]`))
	require.NoError(t, s.Set("config.ignore_pr_source_branches", `["^release/"]`))
	require.NoError(t, s.Set("config.ignore_pr_target_branches", `["^legacy$"]`))
	require.NoError(t, s.Set("config.ignore_pr_authors", `["renovate"]`))
	require.NoError(t, s.Set("config.ignore_repositories", `["acme/archive"]`))

	ctx := context.Background()
	base := PullRequestInfo{Repo: "acme/api", Title: "Fix parser", Author: "dev", SourceBranch: "fix/parser", TargetBranch: "main"}
	assert.True(t, ShouldProcess(ctx, s, base))

	tests := map[string]func(p *PullRequestInfo){
		"title":         func(p *PullRequestInfo) { p.Title = "[Auto] bump deps" },
		"label":         func(p *PullRequestInfo) { p.Labels = []string{"bug", "skip-review"} },
		"source branch": func(p *PullRequestInfo) { p.SourceBranch = "release/1.2" },
		"target branch": func(p *PullRequestInfo) { p.TargetBranch = "legacy" },
		"author":        func(p *PullRequestInfo) { p.Author = "renovate" },
		"repository":    func(p *PullRequestInfo) { p.Repo = "acme/archive" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			pr := base
			mutate(&pr)
			assert.False(t, ShouldProcess(ctx, s, pr))
		})
	}
}

func TestBots(t *testing.T) {
	s, err := config.Default()
	require.NoError(t, err)
	require.NoError(t, s.Set("github_app.ignore_bot_pr", "true"))

	assert.True(t, IsGitHubBot(s, "dependabot[bot]", "Bot"))
	assert.False(t, IsGitHubBot(s, "pr-insight[bot]", "Bot"))
	assert.False(t, IsGitHubBot(s, "octocat", "User"))

	assert.True(t, IsGitLabBot("Project_42_bot_abc"))
	assert.True(t, IsGitLabBot("KhulnaSoft Reviewer"))
	assert.False(t, IsGitLabBot("Jane Doe"))
}

func TestCommentCommand(t *testing.T) {
	assert.Equal(t, "/review", CommentCommand("  /review"))
	assert.Equal(t, "", CommentCommand("looks good to me"))
	assert.Equal(t, "/ask what is this?\n ![image](https://example.com/a.png)",
		CommentCommand("> ![image](https://example.com/a.png)\n/ask what is this?"))
}

func TestLineQuestionRequest(t *testing.T) {
	q := LineQuestion{
		Question:  `/ask why "retry" here?`,
		File:      "pkg/http client.go",
		EndLine:   14,
		CommentID: "991",
	}
	words, err := shlex.Split(q.Request())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/ask_line", "--line_start=14", "--line_end=14", "--side=RIGHT",
		"--file_name=pkg/http client.go", "--comment_id=991", `why "retry" here?`,
	}, words)
}

type autoRunner struct {
	requests []string
}

func (r *autoRunner) HandleRequest(context.Context, string, string) (string, error) {
	return "", nil
}

func (r *autoRunner) HandleAutoRequest(_ context.Context, _ string, request string) (string, error) {
	r.requests = append(r.requests, request)
	if request == "/describe" {
		return "", errors.New("boom")
	}
	return "", nil
}

func TestRunAutoCommands(t *testing.T) {
	r := &autoRunner{}
	RunAutoCommands(context.Background(), r, "https://example.com/pr/1", "pr_commands",
		[]string{"/describe", "/review --pr_reviewer.num_code_suggestions=0"})
	assert.Equal(t, []string{"/describe", "/review --pr_reviewer.num_code_suggestions=0"}, r.requests)
}

type stubStats struct {
	repo string
	err  error
}

func (s *stubStats) Summary(_ context.Context, repo string) (sqlite.StatsSummary, error) {
	s.repo = repo
	return sqlite.StatsSummary{Repo: repo, Count: 2}, s.err
}

func TestHTTPHandlers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", Health)
	stats := &stubStats{}
	mux.Handle("GET /api/v1/stats", Stats(stats))
	mux.HandleFunc("GET /panic", func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := Middleware(context.Background(), "test", mux)

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats?repo=acme/api", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "acme/api", stats.repo)
		assert.Contains(t, rec.Body.String(), `"count":2`)
	})

	t.Run("stats failure", func(t *testing.T) {
		stats.err = errors.New("disk full")
		defer func() { stats.err = nil }()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("panic", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	})
}

func TestAddr(t *testing.T) {
	s, err := config.Default()
	require.NoError(t, err)
	env := map[string]string{}
	getenv := func(k string) string { return env[k] }

	assert.Equal(t, ":3000", Addr(s, getenv))

	require.NoError(t, s.Set("server.port", "8080"))
	assert.Equal(t, ":8080", Addr(s, getenv))

	env["PORT"] = "9000"
	assert.Equal(t, ":9000", Addr(s, getenv))

	env["PORT"] = "not-a-port"
	assert.Equal(t, ":8080", Addr(s, getenv))
}

func TestServe(t *testing.T) {
	s, err := config.Default()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	drained := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, s, "127.0.0.1:0", http.HandlerFunc(Health), func() { close(drained) })
	}()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	select {
	case <-drained:
	default:
		t.Fatal("drain was not called")
	}
}
