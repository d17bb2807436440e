package azuredevops

import (
	"context"
	"io"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/core"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"
	"github.com/stretchr/testify/mock"
)

type MockGitAPI struct {
	mock.Mock
}

func (m *MockGitAPI) GetPullRequest(ctx context.Context, args git.GetPullRequestArgs) (*git.GitPullRequest, error) {
	a := m.Called(ctx, args)
	return a.Get(0).(*git.GitPullRequest), a.Error(1)
}

func (m *MockGitAPI) UpdatePullRequest(ctx context.Context, args git.UpdatePullRequestArgs) (*git.GitPullRequest, error) {
	a := m.Called(ctx, args)
	return a.Get(0).(*git.GitPullRequest), a.Error(1)
}

func (m *MockGitAPI) GetPullRequestIterations(ctx context.Context, args git.GetPullRequestIterationsArgs) (*[]git.GitPullRequestIteration, error) {
	a := m.Called(ctx, args)
	return a.Get(0).(*[]git.GitPullRequestIteration), a.Error(1)
}

func (m *MockGitAPI) GetPullRequestIterationChanges(ctx context.Context, args git.GetPullRequestIterationChangesArgs) (*git.GitPullRequestIterationChanges, error) {
	a := m.Called(ctx, args)
	return a.Get(0).(*git.GitPullRequestIterationChanges), a.Error(1)
}

func (m *MockGitAPI) GetPullRequestCommits(ctx context.Context, args git.GetPullRequestCommitsArgs) (*git.GetPullRequestCommitsResponseValue, error) {
	a := m.Called(ctx, args)
	return a.Get(0).(*git.GetPullRequestCommitsResponseValue), a.Error(1)
}

func (m *MockGitAPI) GetItemText(ctx context.Context, args git.GetItemTextArgs) (io.ReadCloser, error) {
	a := m.Called(ctx, args)
	rc, _ := a.Get(0).(io.ReadCloser)
	return rc, a.Error(1)
}

func (m *MockGitAPI) GetThreads(ctx context.Context, args git.GetThreadsArgs) (*[]git.GitPullRequestCommentThread, error) {
	a := m.Called(ctx, args)
	return a.Get(0).(*[]git.GitPullRequestCommentThread), a.Error(1)
}

func (m *MockGitAPI) CreateThread(ctx context.Context, args git.CreateThreadArgs) (*git.GitPullRequestCommentThread, error) {
	a := m.Called(ctx, args)
	return a.Get(0).(*git.GitPullRequestCommentThread), a.Error(1)
}

func (m *MockGitAPI) CreateComment(ctx context.Context, args git.CreateCommentArgs) (*git.Comment, error) {
	a := m.Called(ctx, args)
	return a.Get(0).(*git.Comment), a.Error(1)
}

func (m *MockGitAPI) UpdateComment(ctx context.Context, args git.UpdateCommentArgs) (*git.Comment, error) {
	a := m.Called(ctx, args)
	return a.Get(0).(*git.Comment), a.Error(1)
}

func (m *MockGitAPI) DeleteComment(ctx context.Context, args git.DeleteCommentArgs) error {
	return m.Called(ctx, args).Error(0)
}

func (m *MockGitAPI) GetPullRequestLabels(ctx context.Context, args git.GetPullRequestLabelsArgs) (*[]core.WebApiTagDefinition, error) {
	a := m.Called(ctx, args)
	return a.Get(0).(*[]core.WebApiTagDefinition), a.Error(1)
}

func (m *MockGitAPI) CreatePullRequestLabel(ctx context.Context, args git.CreatePullRequestLabelArgs) (*core.WebApiTagDefinition, error) {
	a := m.Called(ctx, args)
	return a.Get(0).(*core.WebApiTagDefinition), a.Error(1)
}

func (m *MockGitAPI) DeletePullRequestLabels(ctx context.Context, args git.DeletePullRequestLabelsArgs) error {
	return m.Called(ctx, args).Error(0)
}
