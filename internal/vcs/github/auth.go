package github

import (
	"context"
	"net/http"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gh "github.com/cli/go-gh/v2"
	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/google/go-github/v80/github"
	"github.com/gregjones/httpcache"
	"github.com/khulnasoft/pr-insight/internal/config"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"golang.org/x/oauth2"
)

const defaultAPIURL = "https://api.github.com"

type options struct {
	httpClient     *http.Client
	installationID int64
}

// Option customizes New.
type Option func(*options)

// WithHTTPClient replaces the authenticated transport stack.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithInstallationID selects the App installation to act as.
func WithInstallationID(id int64) Option {
	return func(o *options) { o.installationID = id }
}

// New builds a GitHub provider for prURL. Requests go through a conditional
// request cache and a secondary rate-limit transport, authenticated either
// with a user token or as a GitHub App installation.
func New(ctx context.Context, s *config.Settings, prURL string, opts ...Option) (*Client, error) {
	o := options{installationID: s.GitHub.InstallationID}
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		var err error
		httpClient, err = authenticatedClient(ctx, s, o.installationID)
		if err != nil {
			return nil, err
		}
	}

	client := github.NewClient(httpClient)
	if base := strings.TrimSuffix(s.GitHub.BaseURL, "/"); base != "" && base != defaultAPIURL {
		var err error
		client, err = client.WithEnterpriseURLs(base+"/", base+"/")
		if err != nil {
			return nil, domainErrors.ErrInvalidSettings.WithError(err).WithContext("github.base_url", base)
		}
	}
	return NewWithServices(servicesOf(client), s, prURL)
}

func authenticatedClient(ctx context.Context, s *config.Settings, installationID int64) (*http.Client, error) {
	cached := httpcache.NewMemoryCacheTransport()

	var transport http.RoundTripper
	switch s.GitHub.DeploymentType {
	case "app":
		if s.GitHub.AppID == 0 || s.GitHub.PrivateKey == "" {
			return nil, domainErrors.ErrTokenMissing.WithContext("provider", "github app")
		}
		itr, err := ghinstallation.New(cached, s.GitHub.AppID, installationID, []byte(s.GitHub.PrivateKey))
		if err != nil {
			return nil, domainErrors.ErrInvalidSettings.WithError(err).WithContext("section", "github")
		}
		if base := strings.TrimSuffix(s.GitHub.BaseURL, "/"); base != "" {
			itr.BaseURL = base
		}
		transport = itr
	default:
		token := s.GitHub.UserToken
		if token == "" {
			token = ghCLIToken(ctx)
		}
		if token == "" {
			return nil, domainErrors.ErrTokenMissing.
				WithContext("provider", "github").
				WithSuggestion("set GITHUB_TOKEN or github.user_token, or log in with `gh auth login`")
		}
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   cached,
		}
	}
	return github_ratelimit.NewClient(transport), nil
}

// ghCLIToken reuses the token of a logged-in gh CLI, if any.
func ghCLIToken(ctx context.Context) string {
	stdout, _, err := gh.ExecContext(ctx, "auth", "token")
	if err != nil {
		logger.Debug(ctx, "gh CLI token unavailable", "error", err)
		return ""
	}
	return strings.TrimSpace(stdout.String())
}
