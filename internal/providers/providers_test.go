package providers

import (
	"context"
	"testing"

	"github.com/khulnasoft/pr-insight/internal/config"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct{ url, want string }{
		{"https://github.com/acme/api/pull/1", GitHub},
		{"https://ghe.acme.io/acme/api/pull/1", GitHub},
		{"https://gitlab.com/acme/api/-/merge_requests/4", GitLab},
		{"https://gitlab.acme.io/acme/api/-/merge_requests/4", GitLab},
		{"https://bitbucket.org/acme/api/pull-requests/2", Bitbucket},
		{"https://dev.azure.com/acme/Platform/_git/api/pullrequest/9", AzureDevOps},
		{"https://acme.visualstudio.com/Platform/_git/api/pullrequest/9", AzureDevOps},
		{"https://us-east-1.console.aws.amazon.com/codesuite/codecommit/repositories/r/pull-requests/3", CodeCommit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectProvider(tt.url), tt.url)
	}
}

func TestNewProvider_Unsupported(t *testing.T) {
	s, err := config.Default()
	require.NoError(t, err)
	s.Config.GitProvider = "gerrit"

	p, err := NewProvider(context.Background(), s, "https://gerrit.acme.io/c/1")
	assert.ErrorIs(t, err, domainErrors.ErrProviderNotSupported)
	assert.True(t, p == nil, "provider interface should be truly nil, not a typed nil")
}

func TestNewProvider_InvalidURLIsTrulyNil(t *testing.T) {
	s, err := config.Default()
	require.NoError(t, err)
	s.Config.GitProvider = "bitbucket"
	s.Bitbucket.BearerToken = "token"

	p, err := NewProvider(context.Background(), s, "https://bitbucket.org/acme")
	assert.Error(t, err)
	assert.True(t, p == nil)
}

func TestNewProvider_GitLab(t *testing.T) {
	s, err := config.Default()
	require.NoError(t, err)
	s.Config.GitProvider = "gitlab"
	s.GitLab.PersonalAccessToken = "glpat"

	p, err := NewProvider(context.Background(), s, "https://gitlab.com/acme/api/-/merge_requests/4")
	require.NoError(t, err)
	assert.Equal(t, "gitlab", p.Name())
}

func TestNewAI(t *testing.T) {
	s, err := config.Default()
	require.NoError(t, err)
	s.Config.CacheEnabled = false

	got := NewAI(context.Background(), s, nil)
	require.NotNil(t, got.Handler)
	require.NotNil(t, got.Embedder)
}

func TestNewTicketExtractor(t *testing.T) {
	s, err := config.Default()
	require.NoError(t, err)

	s.Config.RequireTicketAnalysisReview = false
	assert.Nil(t, NewTicketExtractor(s))
	s.Config.RequireTicketAnalysisReview = true
	assert.NotNil(t, NewTicketExtractor(s))
}

func TestNewSimilarityIndex_SQLite(t *testing.T) {
	s, err := config.Default()
	require.NoError(t, err)
	s.Store.Path = ":memory:"

	idx, closeFn, err := NewSimilarityIndex(context.Background(), s)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &vectordb.SQLite{}, idx)
}
