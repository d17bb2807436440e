package providers

import (
	"context"
	"net/url"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/config"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/vcs"
	"github.com/khulnasoft/pr-insight/internal/vcs/azuredevops"
	"github.com/khulnasoft/pr-insight/internal/vcs/bitbucket"
	"github.com/khulnasoft/pr-insight/internal/vcs/codecommit"
	"github.com/khulnasoft/pr-insight/internal/vcs/github"
	"github.com/khulnasoft/pr-insight/internal/vcs/gitlab"
)

// Git provider names accepted in config.git_provider.
const (
	GitHub      = "github"
	GitLab      = "gitlab"
	Bitbucket   = "bitbucket"
	AzureDevOps = "azure"
	CodeCommit  = "codecommit"
)

// NewProvider creates the provider for prURL named by config.git_provider.
// An empty git_provider is guessed from the URL host.
func NewProvider(ctx context.Context, s *config.Settings, prURL string) (vcs.Provider, error) {
	name := strings.ToLower(strings.TrimSpace(s.Config.GitProvider))
	if name == "" {
		name = DetectProvider(prURL)
	}

	var (
		p   vcs.Provider
		err error
	)
	switch name {
	case GitHub:
		var c *github.Client
		c, err = github.New(ctx, s, prURL)
		p = c
	case GitLab:
		var c *gitlab.Client
		c, err = gitlab.New(s, prURL)
		p = c
	case Bitbucket:
		var c *bitbucket.Client
		c, err = bitbucket.New(s, prURL)
		p = c
	case AzureDevOps, "azure_devops", "azuredevops":
		var c *azuredevops.Client
		c, err = azuredevops.New(ctx, s, prURL)
		p = c
	case CodeCommit:
		var c *codecommit.Client
		c, err = codecommit.New(ctx, s, prURL)
		p = c
	default:
		return nil, domainErrors.ErrProviderNotSupported.WithContext("git_provider", name)
	}
	// avoid handing back a typed nil
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DetectProvider maps well-known hosts to a provider name, defaulting to
// github for anything else (GitHub Enterprise hosts are arbitrary).
func DetectProvider(prURL string) string {
	u, err := url.Parse(strings.TrimSpace(prURL))
	if err != nil {
		return GitHub
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.Contains(host, "gitlab"):
		return GitLab
	case strings.Contains(host, "bitbucket"):
		return Bitbucket
	case host == "dev.azure.com" || strings.HasSuffix(host, ".visualstudio.com"):
		return AzureDevOps
	case codecommit.IsValidCodeCommitHostname(host):
		return CodeCommit
	default:
		return GitHub
	}
}
