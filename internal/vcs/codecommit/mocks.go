package codecommit

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/codecommit"
	"github.com/stretchr/testify/mock"
)

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) GetPullRequest(ctx context.Context, in *codecommit.GetPullRequestInput, _ ...func(*codecommit.Options)) (*codecommit.GetPullRequestOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*codecommit.GetPullRequestOutput), args.Error(1)
}

func (m *MockAPI) GetDifferences(ctx context.Context, in *codecommit.GetDifferencesInput, _ ...func(*codecommit.Options)) (*codecommit.GetDifferencesOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*codecommit.GetDifferencesOutput), args.Error(1)
}

func (m *MockAPI) GetBlob(ctx context.Context, in *codecommit.GetBlobInput, _ ...func(*codecommit.Options)) (*codecommit.GetBlobOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*codecommit.GetBlobOutput), args.Error(1)
}

func (m *MockAPI) GetFile(ctx context.Context, in *codecommit.GetFileInput, _ ...func(*codecommit.Options)) (*codecommit.GetFileOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*codecommit.GetFileOutput), args.Error(1)
}

func (m *MockAPI) GetCommit(ctx context.Context, in *codecommit.GetCommitInput, _ ...func(*codecommit.Options)) (*codecommit.GetCommitOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*codecommit.GetCommitOutput), args.Error(1)
}

func (m *MockAPI) UpdatePullRequestTitle(ctx context.Context, in *codecommit.UpdatePullRequestTitleInput, _ ...func(*codecommit.Options)) (*codecommit.UpdatePullRequestTitleOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*codecommit.UpdatePullRequestTitleOutput), args.Error(1)
}

func (m *MockAPI) UpdatePullRequestDescription(ctx context.Context, in *codecommit.UpdatePullRequestDescriptionInput, _ ...func(*codecommit.Options)) (*codecommit.UpdatePullRequestDescriptionOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*codecommit.UpdatePullRequestDescriptionOutput), args.Error(1)
}

func (m *MockAPI) UpdatePullRequestApprovalState(ctx context.Context, in *codecommit.UpdatePullRequestApprovalStateInput, _ ...func(*codecommit.Options)) (*codecommit.UpdatePullRequestApprovalStateOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*codecommit.UpdatePullRequestApprovalStateOutput), args.Error(1)
}

func (m *MockAPI) GetCommentsForPullRequest(ctx context.Context, in *codecommit.GetCommentsForPullRequestInput, _ ...func(*codecommit.Options)) (*codecommit.GetCommentsForPullRequestOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*codecommit.GetCommentsForPullRequestOutput), args.Error(1)
}

func (m *MockAPI) PostCommentForPullRequest(ctx context.Context, in *codecommit.PostCommentForPullRequestInput, _ ...func(*codecommit.Options)) (*codecommit.PostCommentForPullRequestOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*codecommit.PostCommentForPullRequestOutput), args.Error(1)
}

func (m *MockAPI) PostCommentReply(ctx context.Context, in *codecommit.PostCommentReplyInput, _ ...func(*codecommit.Options)) (*codecommit.PostCommentReplyOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*codecommit.PostCommentReplyOutput), args.Error(1)
}

func (m *MockAPI) UpdateComment(ctx context.Context, in *codecommit.UpdateCommentInput, _ ...func(*codecommit.Options)) (*codecommit.UpdateCommentOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*codecommit.UpdateCommentOutput), args.Error(1)
}

func (m *MockAPI) DeleteCommentContent(ctx context.Context, in *codecommit.DeleteCommentContentInput, _ ...func(*codecommit.Options)) (*codecommit.DeleteCommentContentOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*codecommit.DeleteCommentContentOutput), args.Error(1)
}
