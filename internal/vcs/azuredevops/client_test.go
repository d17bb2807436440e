package azuredevops

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/khulnasoft/pr-insight/internal/config"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/core"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testPRURL = "https://dev.azure.com/acme/Platform/_git/billing/pullrequest/17"

func ptr[T any](v T) *T { return &v }

func newTestClient(t *testing.T) (*Client, *MockGitAPI) {
	t.Helper()
	s, err := config.Default()
	require.NoError(t, err)
	api := &MockGitAPI{}
	c, err := NewWithAPI(api, s, testPRURL)
	require.NoError(t, err)
	return c, api
}

func testPR() *git.GitPullRequest {
	return &git.GitPullRequest{
		PullRequestId:         ptr(17),
		Title:                 ptr("Add invoices"),
		Description:           ptr("adds invoices"),
		SourceRefName:         ptr("refs/heads/feature/invoices"),
		TargetRefName:         ptr("refs/heads/main"),
		Status:                &git.PullRequestStatusValues.Active,
		LastMergeSourceCommit: &git.GitCommitRef{CommitId: ptr("head")},
		LastMergeTargetCommit: &git.GitCommitRef{CommitId: ptr("base")},
		Labels:                &[]core.WebApiTagDefinition{{Name: ptr("billing")}},
	}
}

func text(s string) io.ReadCloser { return io.NopCloser(strings.NewReader(s)) }

func TestParsePRURL(t *testing.T) {
	tests := []struct {
		url                string
		org, project, repo string
		number             int
		wantErr            bool
	}{
		{url: testPRURL, org: "acme", project: "Platform", repo: "billing", number: 17},
		{url: "https://acme.visualstudio.com/My%20Project/_git/api/pullrequest/3", org: "acme", project: "My Project", repo: "api", number: 3},
		{url: "https://dev.azure.com/acme/Platform/_git/billing", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			org, project, repo, number, err := ParsePRURL(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, domainErrors.ErrInvalidPRURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.org, org)
			assert.Equal(t, tt.project, project)
			assert.Equal(t, tt.repo, repo)
			assert.Equal(t, tt.number, number)
		})
	}
}

func TestClient_PR(t *testing.T) {
	c, api := newTestClient(t)
	api.On("GetPullRequest", mock.Anything, mock.Anything).Return(testPR(), nil).Once()

	pr, err := c.PR(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "feature/invoices", pr.SourceBranch)
	assert.Equal(t, "main", pr.TargetBranch)
	assert.Equal(t, "head", pr.HeadSHA)
	assert.Equal(t, []string{"billing"}, pr.Labels)
	assert.False(t, pr.Merged)
	api.AssertExpectations(t)
}

func TestClient_DiffFiles(t *testing.T) {
	c, api := newTestClient(t)
	api.On("GetPullRequest", mock.Anything, mock.Anything).Return(testPR(), nil)
	api.On("GetPullRequestIterations", mock.Anything, mock.Anything).
		Return(&[]git.GitPullRequestIteration{{Id: ptr(1)}, {Id: ptr(2)}}, nil)
	api.On("GetPullRequestIterationChanges", mock.Anything, mock.MatchedBy(func(a git.GetPullRequestIterationChangesArgs) bool {
		return *a.IterationId == 2 && *a.CompareTo == 0
	})).Return(&git.GitPullRequestIterationChanges{ChangeEntries: &[]git.GitPullRequestChange{
		{ChangeType: ptr(git.VersionControlChangeType("edit")), Item: map[string]any{"path": "/src/invoice.go"}},
		{ChangeType: ptr(git.VersionControlChangeType("add")), Item: map[string]any{"path": "/src/new.go"}},
		{ChangeType: ptr(git.VersionControlChangeType("edit")), Item: map[string]any{"path": "/src", "isFolder": true}},
	}}, nil)
	api.On("GetItemText", mock.Anything, mock.MatchedBy(func(a git.GetItemTextArgs) bool {
		return *a.Path == "src/invoice.go" && *a.VersionDescriptor.Version == "base"
	})).Return(text("a\nb\n"), nil)
	api.On("GetItemText", mock.Anything, mock.MatchedBy(func(a git.GetItemTextArgs) bool {
		return *a.Path == "src/invoice.go" && *a.VersionDescriptor.Version == "head"
	})).Return(text("a\nc\n"), nil)
	api.On("GetItemText", mock.Anything, mock.MatchedBy(func(a git.GetItemTextArgs) bool {
		return *a.Path == "src/new.go"
	})).Return(text("package src\n"), nil)

	files, err := c.DiffFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "src/invoice.go", files[0].Filename)
	assert.Equal(t, models.EditTypeModified, files[0].EditType)
	assert.Contains(t, files[0].Patch, "+c")
	assert.Contains(t, files[0].Patch, "-b")
	assert.Equal(t, models.EditTypeAdded, files[1].EditType)
	assert.Empty(t, files[1].BaseFile)
}

func TestClient_CommitMessages(t *testing.T) {
	c, api := newTestClient(t)
	api.On("GetPullRequestCommits", mock.Anything, mock.Anything).Return(&git.GetPullRequestCommitsResponseValue{
		Value: []git.GitCommitRef{
			{CommitId: ptr("2"), Comment: ptr("second"), RemoteUrl: ptr("https://dev.azure.com/c/2")},
			{CommitId: ptr("1"), Comment: ptr("first"), RemoteUrl: ptr("https://dev.azure.com/c/1")},
		},
	}, nil).Once()

	msgs, err := c.CommitMessages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1. first\n2. second\n", msgs)
	latest, err := c.LatestCommitURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://dev.azure.com/c/2", latest)
}

func TestClient_PublishLabels(t *testing.T) {
	c, api := newTestClient(t)
	api.On("GetPullRequestLabels", mock.Anything, mock.Anything).
		Return(&[]core.WebApiTagDefinition{{Name: ptr("stale")}, {Name: ptr("keep")}}, nil)
	api.On("DeletePullRequestLabels", mock.Anything, mock.MatchedBy(func(a git.DeletePullRequestLabelsArgs) bool {
		return *a.LabelIdOrName == "stale"
	})).Return(nil).Once()
	api.On("CreatePullRequestLabel", mock.Anything, mock.MatchedBy(func(a git.CreatePullRequestLabelArgs) bool {
		return *a.Label.Name == "Bug fix"
	})).Return(&core.WebApiTagDefinition{}, nil).Once()

	require.NoError(t, c.PublishLabels(context.Background(), []string{"keep", "Bug fix"}))
	api.AssertExpectations(t)
}

func TestClient_Comments(t *testing.T) {
	c, api := newTestClient(t)
	api.On("GetThreads", mock.Anything, mock.Anything).Return(&[]git.GitPullRequestCommentThread{
		{Id: ptr(4), Comments: &[]git.Comment{{Content: ptr("updated reviewers"), CommentType: &git.CommentTypeValues.System}}},
		{Id: ptr(5), Comments: &[]git.Comment{{Content: ptr("## PR Reviewer Guide\nold")}}},
	}, nil)
	api.On("CreateThread", mock.Anything, mock.MatchedBy(func(a git.CreateThreadArgs) bool {
		return *a.CommentThread.Status == git.CommentThreadStatusValues.Closed
	})).Return(&git.GitPullRequestCommentThread{Id: ptr(9)}, nil).Once()
	api.On("DeleteComment", mock.Anything, mock.MatchedBy(func(a git.DeleteCommentArgs) bool {
		return *a.ThreadId == 9 && *a.CommentId == 1
	})).Return(nil).Once()
	api.On("UpdateComment", mock.Anything, mock.MatchedBy(func(a git.UpdateCommentArgs) bool {
		return *a.ThreadId == 5 && strings.HasPrefix(*a.Comment.Content, "## PR Reviewer Guide")
	})).Return(&git.Comment{}, nil).Once()
	ctx := context.Background()

	comments, err := c.IssueComments(ctx)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, int64(5), comments[0].ID)

	_, err = c.PublishComment(ctx, "Preparing review...", true)
	require.NoError(t, err)
	require.NoError(t, c.RemoveInitialComment(ctx))
	require.NoError(t, c.EditComment(ctx, &comments[0], "## PR Reviewer Guide\nnew"))
	api.AssertExpectations(t)
}

func TestClient_PublishInlineComments(t *testing.T) {
	c, api := newTestClient(t)
	api.On("CreateThread", mock.Anything, mock.MatchedBy(func(a git.CreateThreadArgs) bool {
		tc := a.CommentThread.ThreadContext
		return *tc.FilePath == "/src/invoice.go" && *tc.RightFileStart.Line == 3 && *tc.RightFileEnd.Line == 5
	})).Return(&git.GitPullRequestCommentThread{Id: ptr(11)}, nil).Once()

	err := c.PublishInlineComments(context.Background(), []models.InlineComment{
		{Body: "check bounds", Path: "src/invoice.go", StartLine: 3, Line: 5},
	})
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestClient_Wrap(t *testing.T) {
	c, api := newTestClient(t)
	api.On("GetPullRequest", mock.Anything, mock.Anything).
		Return((*git.GitPullRequest)(nil), azuredevops.WrappedError{StatusCode: ptr(http.StatusNotFound), Message: ptr("not found")})

	_, err := c.PR(context.Background())
	assert.ErrorIs(t, err, domainErrors.ErrRepositoryNotFound)

	err = c.wrap("op", errors.New("boom"))
	assert.Contains(t, err.Error(), "Platform/billing/17")
	assert.ErrorIs(t, c.AutoApprove(context.Background()), domainErrors.ErrNotSupported)
}
