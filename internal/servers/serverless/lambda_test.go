package serverless

import (
	"context"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khulnasoft/pr-insight/internal/config"
	"github.com/khulnasoft/pr-insight/internal/insight"
	"github.com/khulnasoft/pr-insight/internal/servers/githubapp"
)

func TestHandler(t *testing.T) {
	s, err := config.Default()
	require.NoError(t, err)
	require.NoError(t, s.Set("github.webhook_secret", "s3cret"))
	srv, err := githubapp.New(insight.New(s), nil, nil)
	require.NoError(t, err)
	proxy := Handler(context.Background(), srv)

	t.Run("health", func(t *testing.T) {
		resp, err := proxy(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"status":"ok"}`, resp.Body)
	})

	t.Run("unsigned delivery", func(t *testing.T) {
		resp, err := proxy(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod: http.MethodPost,
			Path:       githubapp.WebhookPath,
			Headers:    map[string]string{"X-GitHub-Event": "pull_request"},
			Body:       `{"action":"opened"}`,
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("stats are not served without a store", func(t *testing.T) {
		resp, err := proxy(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: githubapp.StatsPath})
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
