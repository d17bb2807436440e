// Package codecommit implements the pull request provider for AWS
// CodeCommit.
package codecommit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/codecommit"
	"github.com/aws/aws-sdk-go-v2/service/codecommit/types"
	"github.com/khulnasoft/pr-insight/internal/config"
	"github.com/khulnasoft/pr-insight/internal/diff"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/vcs"
)

var _ vcs.Provider = (*Client)(nil)

// maxCommitWalk bounds the commit history walked for commit messages.
const maxCommitWalk = 50

// API is the subset of the CodeCommit client the provider uses.
type API interface {
	GetPullRequest(context.Context, *codecommit.GetPullRequestInput, ...func(*codecommit.Options)) (*codecommit.GetPullRequestOutput, error)
	GetDifferences(context.Context, *codecommit.GetDifferencesInput, ...func(*codecommit.Options)) (*codecommit.GetDifferencesOutput, error)
	GetBlob(context.Context, *codecommit.GetBlobInput, ...func(*codecommit.Options)) (*codecommit.GetBlobOutput, error)
	GetFile(context.Context, *codecommit.GetFileInput, ...func(*codecommit.Options)) (*codecommit.GetFileOutput, error)
	GetCommit(context.Context, *codecommit.GetCommitInput, ...func(*codecommit.Options)) (*codecommit.GetCommitOutput, error)
	UpdatePullRequestTitle(context.Context, *codecommit.UpdatePullRequestTitleInput, ...func(*codecommit.Options)) (*codecommit.UpdatePullRequestTitleOutput, error)
	UpdatePullRequestDescription(context.Context, *codecommit.UpdatePullRequestDescriptionInput, ...func(*codecommit.Options)) (*codecommit.UpdatePullRequestDescriptionOutput, error)
	UpdatePullRequestApprovalState(context.Context, *codecommit.UpdatePullRequestApprovalStateInput, ...func(*codecommit.Options)) (*codecommit.UpdatePullRequestApprovalStateOutput, error)
	GetCommentsForPullRequest(context.Context, *codecommit.GetCommentsForPullRequestInput, ...func(*codecommit.Options)) (*codecommit.GetCommentsForPullRequestOutput, error)
	PostCommentForPullRequest(context.Context, *codecommit.PostCommentForPullRequestInput, ...func(*codecommit.Options)) (*codecommit.PostCommentForPullRequestOutput, error)
	PostCommentReply(context.Context, *codecommit.PostCommentReplyInput, ...func(*codecommit.Options)) (*codecommit.PostCommentReplyOutput, error)
	UpdateComment(context.Context, *codecommit.UpdateCommentInput, ...func(*codecommit.Options)) (*codecommit.UpdateCommentOutput, error)
	DeleteCommentContent(context.Context, *codecommit.DeleteCommentContentInput, ...func(*codecommit.Options)) (*codecommit.DeleteCommentContentOutput, error)
}

// Client is the CodeCommit pull request provider. CodeCommit comment IDs
// are strings; the provider hands out local numeric IDs for them.
type Client struct {
	api      API
	settings *config.Settings
	repo     string
	number   int
	prURL    string

	mu          sync.Mutex
	pr          *types.PullRequest
	files       []models.FilePatchInfo
	commentIDs  map[int64]string
	temporaryID []int64
}

// New loads the default AWS credential chain for codecommit.region.
func New(ctx context.Context, s *config.Settings, prURL string) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if s.CodeCommit.Region != "" {
		opts = append(opts, awsconfig.WithRegion(s.CodeCommit.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, domainErrors.ErrTokenMissing.WithError(err).
			WithContext("provider", "codecommit").
			WithSuggestion("configure AWS credentials and codecommit.region")
	}
	return NewWithAPI(codecommit.NewFromConfig(cfg), s, prURL)
}

func NewWithAPI(api API, s *config.Settings, prURL string) (*Client, error) {
	repo, number, err := ParsePRURL(prURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		api:        api,
		settings:   s,
		repo:       repo,
		number:     number,
		prURL:      strings.TrimSuffix(prURL, "/"),
		commentIDs: map[int64]string{},
	}, nil
}

func (c *Client) Name() string  { return "codecommit" }
func (c *Client) PRURL() string { return c.prURL }
func (c *Client) PRID() string  { return fmt.Sprintf("%s/%d", c.repo, c.number) }

func (c *Client) pullRequest(ctx context.Context) (*types.PullRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pr != nil {
		return c.pr, nil
	}
	logger.FromContext(ctx).Debug("fetching codecommit pull request", "repo", c.repo, "pr_number", c.number)

	out, err := c.api.GetPullRequest(ctx, &codecommit.GetPullRequestInput{PullRequestId: aws.String(strconv.Itoa(c.number))})
	if err != nil {
		return nil, c.wrap("get PR", err)
	}
	if out.PullRequest == nil || len(out.PullRequest.PullRequestTargets) == 0 {
		return nil, domainErrors.ErrRepositoryNotFound.WithContext("pr", c.PRID())
	}
	c.pr = out.PullRequest
	return c.pr, nil
}

// target is the PR's first (and in practice only) source/destination pair.
func target(pr *types.PullRequest) types.PullRequestTarget {
	return pr.PullRequestTargets[0]
}

func (c *Client) PR(ctx context.Context) (*models.PullRequest, error) {
	pr, err := c.pullRequest(ctx)
	if err != nil {
		return nil, err
	}
	t := target(pr)
	out := &models.PullRequest{
		Number:       c.number,
		Title:        aws.ToString(pr.Title),
		Description:  aws.ToString(pr.Description),
		SourceBranch: strings.TrimPrefix(aws.ToString(t.SourceReference), "refs/heads/"),
		TargetBranch: strings.TrimPrefix(aws.ToString(t.DestinationReference), "refs/heads/"),
		Author:       authorOf(aws.ToString(pr.AuthorArn)),
		State:        strings.ToLower(string(pr.PullRequestStatus)),
		URL:          c.prURL,
		HeadSHA:      aws.ToString(t.SourceCommit),
		BaseSHA:      aws.ToString(t.DestinationCommit),
	}
	if t.MergeMetadata != nil {
		out.Merged = t.MergeMetadata.IsMerged
	}
	if pr.CreationDate != nil {
		out.CreatedAt = *pr.CreationDate
	}
	if pr.LastActivityDate != nil {
		out.UpdatedAt = *pr.LastActivityDate
	}
	return out, nil
}

// authorOf keeps the last segment of an IAM ARN.
func authorOf(arn string) string {
	if i := strings.LastIndex(arn, "/"); i >= 0 {
		return arn[i+1:]
	}
	return arn
}

func (c *Client) differences(ctx context.Context) ([]types.Difference, error) {
	pr, err := c.pullRequest(ctx)
	if err != nil {
		return nil, err
	}
	t := target(pr)
	before := t.MergeBase
	if before == nil {
		before = t.DestinationCommit
	}
	var all []types.Difference
	p := codecommit.NewGetDifferencesPaginator(c.api, &codecommit.GetDifferencesInput{
		RepositoryName:        aws.String(c.repo),
		BeforeCommitSpecifier: before,
		AfterCommitSpecifier:  t.SourceCommit,
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, c.wrap("get differences", err)
		}
		all = append(all, page.Differences...)
	}
	return all, nil
}

func diffPath(d types.Difference) string {
	if d.AfterBlob != nil {
		return aws.ToString(d.AfterBlob.Path)
	}
	if d.BeforeBlob != nil {
		return aws.ToString(d.BeforeBlob.Path)
	}
	return ""
}

func (c *Client) Files(ctx context.Context) ([]string, error) {
	diffs, err := c.differences(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(diffs))
	for _, d := range diffs {
		out = append(out, diffPath(d))
	}
	return out, nil
}

// DiffFiles downloads both blobs of every difference and builds the patch
// locally; CodeCommit exposes no unified diff.
func (c *Client) DiffFiles(ctx context.Context) ([]models.FilePatchInfo, error) {
	c.mu.Lock()
	cached := c.files
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	diffs, err := c.differences(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.FilePatchInfo, 0, len(diffs))
	for _, d := range diffs {
		editType, ok := EditTypeFromCode(string(d.ChangeType))
		if !ok {
			logger.Debug(ctx, "skipping unknown change type", "change_type", d.ChangeType, "file", diffPath(d))
			continue
		}
		var base, head string
		if d.BeforeBlob != nil {
			if base, err = c.blob(ctx, d.BeforeBlob.BlobId); err != nil {
				return nil, err
			}
		}
		if d.AfterBlob != nil {
			if head, err = c.blob(ctx, d.AfterBlob.BlobId); err != nil {
				return nil, err
			}
		}
		name := diffPath(d)
		if editType == models.EditTypeModified && d.BeforeBlob != nil && d.AfterBlob != nil &&
			aws.ToString(d.BeforeBlob.Path) != aws.ToString(d.AfterBlob.Path) {
			editType = models.EditTypeRenamed
		}
		patch := diff.LoadLargeDiff(ctx, name, head, base)
		info := models.NewFilePatchInfo(base, head, patch, name, editType)
		if editType == models.EditTypeRenamed {
			info.OldFilename = aws.ToString(d.BeforeBlob.Path)
		}
		info.NumPlusLines, info.NumMinusLines = diff.CountChanges(patch)
		out = append(out, info)
	}

	c.mu.Lock()
	c.files = out
	c.mu.Unlock()
	return out, nil
}

func (c *Client) blob(ctx context.Context, id *string) (string, error) {
	if id == nil {
		return "", nil
	}
	out, err := c.api.GetBlob(ctx, &codecommit.GetBlobInput{RepositoryName: aws.String(c.repo), BlobId: id})
	if err != nil {
		return "", c.wrap("get blob", err)
	}
	return string(out.Content), nil
}

// Languages approximates the language mix from the extensions of the
// changed files.
func (c *Client) Languages(ctx context.Context) (map[string]int, error) {
	files, err := c.Files(ctx)
	if err != nil {
		return nil, err
	}
	return LanguagePercentages(FileExtensions(files)), nil
}

// CommitMessages walks first parents from the source commit back to the
// merge base.
func (c *Client) CommitMessages(ctx context.Context) (string, error) {
	pr, err := c.pullRequest(ctx)
	if err != nil {
		return "", err
	}
	t := target(pr)
	stop := aws.ToString(t.MergeBase)
	if stop == "" {
		stop = aws.ToString(t.DestinationCommit)
	}

	var messages []string
	sha := aws.ToString(t.SourceCommit)
	for i := 0; i < maxCommitWalk && sha != "" && sha != stop; i++ {
		out, err := c.api.GetCommit(ctx, &codecommit.GetCommitInput{RepositoryName: aws.String(c.repo), CommitId: aws.String(sha)})
		if err != nil {
			return "", c.wrap("get commit", err)
		}
		if out.Commit == nil {
			break
		}
		messages = append(messages, strings.TrimSpace(aws.ToString(out.Commit.Message)))
		sha = ""
		if len(out.Commit.Parents) > 0 {
			sha = out.Commit.Parents[0]
		}
	}

	var b strings.Builder
	for i := len(messages) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%d. %s\n", len(messages)-i, messages[i])
	}
	return vcs.ClipDescription(b.String(), c.settings.Config.MaxCommitsTokens), nil
}

func (c *Client) LatestCommitURL(ctx context.Context) (string, error) {
	pr, err := c.pullRequest(ctx)
	if err != nil {
		return "", err
	}
	sha := aws.ToString(target(pr).SourceCommit)
	if i := strings.Index(c.prURL, "/pull-requests/"); i >= 0 {
		return fmt.Sprintf("%s/commit/%s", c.prURL[:i], sha), nil
	}
	return sha, nil
}

func (c *Client) Labels(context.Context, bool) ([]string, error) { return nil, nil }

func (c *Client) PublishLabels(ctx context.Context, labels []string) error {
	logger.Debug(ctx, "codecommit does not support labels", "labels", labels)
	return nil
}

func (c *Client) localID(remote string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, r := range c.commentIDs {
		if r == remote {
			return id
		}
	}
	id := int64(len(c.commentIDs) + 1)
	c.commentIDs[id] = remote
	return id
}

func (c *Client) remoteID(id int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	remote, ok := c.commentIDs[id]
	if !ok {
		return "", fmt.Errorf("unknown codecommit comment %d", id)
	}
	return remote, nil
}

func (c *Client) commentOf(cm types.Comment, loc *types.Location) models.Comment {
	out := models.Comment{
		ID:     c.localID(aws.ToString(cm.CommentId)),
		Author: authorOf(aws.ToString(cm.AuthorArn)),
		Body:   aws.ToString(cm.Content),
	}
	if cm.CreationDate != nil {
		out.CreatedAt = *cm.CreationDate
	}
	if loc != nil {
		out.Path = aws.ToString(loc.FilePath)
		out.Line = int(aws.ToInt64(loc.FilePosition))
	}
	return out
}

func (c *Client) IssueComments(ctx context.Context) ([]models.Comment, error) {
	var out []models.Comment
	p := codecommit.NewGetCommentsForPullRequestPaginator(c.api, &codecommit.GetCommentsForPullRequestInput{
		PullRequestId:  aws.String(strconv.Itoa(c.number)),
		RepositoryName: aws.String(c.repo),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, c.wrap("get comments", err)
		}
		for _, data := range page.CommentsForPullRequestData {
			for _, cm := range data.Comments {
				if cm.Deleted || cm.InReplyTo != nil {
					continue
				}
				out = append(out, c.commentOf(cm, data.Location))
			}
		}
	}
	return out, nil
}

func (c *Client) RepoSettings(ctx context.Context) ([]byte, error) {
	pr, err := c.pullRequest(ctx)
	if err != nil {
		return nil, err
	}
	out, err := c.api.GetFile(ctx, &codecommit.GetFileInput{
		RepositoryName:  aws.String(c.repo),
		FilePath:        aws.String(config.LocalSettingsFile),
		CommitSpecifier: target(pr).DestinationReference,
	})
	if err != nil {
		var missing *types.FileDoesNotExistException
		if errors.As(err, &missing) {
			return nil, nil
		}
		return nil, c.wrap("get repo settings", err)
	}
	return out.FileContent, nil
}

func (c *Client) FileContent(ctx context.Context, path, ref string) (string, error) {
	if ref == "" {
		pr, err := c.pullRequest(ctx)
		if err != nil {
			return "", err
		}
		ref = aws.ToString(target(pr).SourceCommit)
	}
	out, err := c.api.GetFile(ctx, &codecommit.GetFileInput{
		RepositoryName:  aws.String(c.repo),
		FilePath:        aws.String(path),
		CommitSpecifier: aws.String(ref),
	})
	if err != nil {
		return "", c.wrap("get file", err)
	}
	return string(out.FileContent), nil
}

// LineLink is empty: the console has no stable line anchors.
func (c *Client) LineLink(string, int, int) string { return "" }

func (c *Client) postComment(ctx context.Context, body string, loc *types.Location) (*types.Comment, error) {
	pr, err := c.pullRequest(ctx)
	if err != nil {
		return nil, err
	}
	t := target(pr)
	out, err := c.api.PostCommentForPullRequest(ctx, &codecommit.PostCommentForPullRequestInput{
		PullRequestId:  aws.String(strconv.Itoa(c.number)),
		RepositoryName: aws.String(c.repo),
		BeforeCommitId: t.DestinationCommit,
		AfterCommitId:  t.SourceCommit,
		Content:        aws.String(body),
		Location:       loc,
	})
	if err != nil {
		return nil, c.wrap("post comment", err)
	}
	return out.Comment, nil
}

func (c *Client) PublishComment(ctx context.Context, body string, temporary bool) (*models.Comment, error) {
	cm, err := c.postComment(ctx, RemoveMarkdownHTML(body), nil)
	if err != nil {
		return nil, err
	}
	out := models.Comment{Body: body}
	if cm != nil {
		out = c.commentOf(*cm, nil)
	}
	if temporary && out.ID != 0 {
		c.mu.Lock()
		c.temporaryID = append(c.temporaryID, out.ID)
		c.mu.Unlock()
	}
	return &out, nil
}

func (c *Client) EditComment(ctx context.Context, cm *models.Comment, body string) error {
	remote, err := c.remoteID(cm.ID)
	if err != nil {
		return err
	}
	if _, err := c.api.UpdateComment(ctx, &codecommit.UpdateCommentInput{
		CommentId: aws.String(remote),
		Content:   aws.String(RemoveMarkdownHTML(body)),
	}); err != nil {
		return c.wrap("update comment", err)
	}
	return nil
}

func (c *Client) RemoveComment(ctx context.Context, cm *models.Comment) error {
	remote, err := c.remoteID(cm.ID)
	if err != nil {
		return err
	}
	if _, err := c.api.DeleteCommentContent(ctx, &codecommit.DeleteCommentContentInput{CommentId: aws.String(remote)}); err != nil {
		return c.wrap("delete comment", err)
	}
	return nil
}

func (c *Client) RemoveInitialComment(ctx context.Context) error {
	c.mu.Lock()
	ids := c.temporaryID
	c.temporaryID = nil
	c.mu.Unlock()
	for _, id := range ids {
		if err := c.RemoveComment(ctx, &models.Comment{ID: id}); err != nil {
			logger.Warn(ctx, "failed to remove temporary comment", "comment_id", id, "error", err)
		}
	}
	return nil
}

func (c *Client) PublishPersistentComment(ctx context.Context, body string, opts vcs.PersistentCommentOptions) error {
	return vcs.PublishPersistent(ctx, c, body, opts)
}

// PublishDescription updates title and description separately; the console
// needs doubled newlines to keep markdown paragraphs.
func (c *Client) PublishDescription(ctx context.Context, title, body string) error {
	id := aws.String(strconv.Itoa(c.number))
	if _, err := c.api.UpdatePullRequestTitle(ctx, &codecommit.UpdatePullRequestTitleInput{
		PullRequestId: id,
		Title:         aws.String(title),
	}); err != nil {
		return c.wrap("update title", err)
	}
	if _, err := c.api.UpdatePullRequestDescription(ctx, &codecommit.UpdatePullRequestDescriptionInput{
		PullRequestId: id,
		Description:   aws.String(AddAdditionalNewlines(body)),
	}); err != nil {
		return c.wrap("update description", err)
	}
	return nil
}

func (c *Client) PublishInlineComments(ctx context.Context, comments []models.InlineComment) error {
	var errs []error
	for _, ic := range comments {
		loc := &types.Location{
			FilePath:            aws.String(ic.Path),
			FilePosition:        aws.Int64(int64(ic.Line)),
			RelativeFileVersion: types.RelativeFileVersionEnumAfter,
		}
		if ic.Side == "LEFT" {
			loc.RelativeFileVersion = types.RelativeFileVersionEnumBefore
		}
		if _, err := c.postComment(ctx, RemoveMarkdownHTML(ic.Body), loc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) PublishCodeSuggestions(ctx context.Context, suggestions []vcs.CodeSuggestion) error {
	comments := make([]models.InlineComment, 0, len(suggestions))
	for _, s := range suggestions {
		if s.RelevantStart <= 0 {
			continue
		}
		comments = append(comments, models.InlineComment{Body: s.Body, Path: s.RelevantFile, Line: s.RelevantStart})
	}
	return c.PublishInlineComments(ctx, comments)
}

func (c *Client) ReplyToComment(ctx context.Context, commentID int64, body string) error {
	remote, err := c.remoteID(commentID)
	if err != nil {
		return err
	}
	if _, err := c.api.PostCommentReply(ctx, &codecommit.PostCommentReplyInput{
		InReplyTo: aws.String(remote),
		Content:   aws.String(RemoveMarkdownHTML(body)),
	}); err != nil {
		return c.wrap("reply to comment", err)
	}
	return nil
}

func (c *Client) AddEyesReaction(context.Context, int64) (int64, error) { return 0, nil }

func (c *Client) RemoveReaction(context.Context, int64, int64) error { return nil }

func (c *Client) AutoApprove(ctx context.Context) error {
	pr, err := c.pullRequest(ctx)
	if err != nil {
		return err
	}
	if _, err := c.api.UpdatePullRequestApprovalState(ctx, &codecommit.UpdatePullRequestApprovalStateInput{
		PullRequestId: aws.String(strconv.Itoa(c.number)),
		RevisionId:    pr.RevisionId,
		ApprovalState: types.ApprovalStateApprove,
	}); err != nil {
		return c.wrap("approve PR", err)
	}
	return nil
}

func (c *Client) IsSupported(capability vcs.Capability) bool {
	switch capability {
	case vcs.CapGetIssueComments, vcs.CapCreateInlineComment, vcs.CapPublishInlineComments,
		vcs.CapGetLabels, vcs.CapGFMMarkdown, vcs.CapGFMDetails, vcs.CapMultipleInlineComments:
		return false
	}
	return true
}

func (c *Client) wrap(operation string, err error) error {
	var (
		prMissing   *types.PullRequestDoesNotExistException
		repoMissing *types.RepositoryDoesNotExistException
	)
	if errors.As(err, &prMissing) || errors.As(err, &repoMissing) {
		return domainErrors.ErrRepositoryNotFound.WithError(err).
			WithContext("operation", operation).
			WithContext("pr", c.PRID())
	}
	return fmt.Errorf("codecommit %s for %s: %w", operation, c.PRID(), err)
}
