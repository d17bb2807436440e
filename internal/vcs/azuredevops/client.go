// Package azuredevops implements the pull request provider for Azure Repos.
package azuredevops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/khulnasoft/pr-insight/internal/config"
	"github.com/khulnasoft/pr-insight/internal/diff"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/regex"
	"github.com/khulnasoft/pr-insight/internal/vcs"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/core"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"
)

var _ vcs.Provider = (*Client)(nil)

// GitAPI is the subset of git.Client the provider uses.
type GitAPI interface {
	GetPullRequest(context.Context, git.GetPullRequestArgs) (*git.GitPullRequest, error)
	UpdatePullRequest(context.Context, git.UpdatePullRequestArgs) (*git.GitPullRequest, error)
	GetPullRequestIterations(context.Context, git.GetPullRequestIterationsArgs) (*[]git.GitPullRequestIteration, error)
	GetPullRequestIterationChanges(context.Context, git.GetPullRequestIterationChangesArgs) (*git.GitPullRequestIterationChanges, error)
	GetPullRequestCommits(context.Context, git.GetPullRequestCommitsArgs) (*git.GetPullRequestCommitsResponseValue, error)
	GetItemText(context.Context, git.GetItemTextArgs) (io.ReadCloser, error)
	GetThreads(context.Context, git.GetThreadsArgs) (*[]git.GitPullRequestCommentThread, error)
	CreateThread(context.Context, git.CreateThreadArgs) (*git.GitPullRequestCommentThread, error)
	CreateComment(context.Context, git.CreateCommentArgs) (*git.Comment, error)
	UpdateComment(context.Context, git.UpdateCommentArgs) (*git.Comment, error)
	DeleteComment(context.Context, git.DeleteCommentArgs) error
	GetPullRequestLabels(context.Context, git.GetPullRequestLabelsArgs) (*[]core.WebApiTagDefinition, error)
	CreatePullRequestLabel(context.Context, git.CreatePullRequestLabelArgs) (*core.WebApiTagDefinition, error)
	DeletePullRequestLabels(context.Context, git.DeletePullRequestLabelsArgs) error
}

// Client is the Azure DevOps pull request provider. Comment IDs are thread
// IDs; the thread's first comment carries the body.
type Client struct {
	api      GitAPI
	settings *config.Settings
	project  string
	repo     string
	number   int
	prURL    string

	mu          sync.Mutex
	pr          *git.GitPullRequest
	files       []models.FilePatchInfo
	commits     []git.GitCommitRef
	temporaryID []int64
}

// ParsePRURL returns organization, project, repository and PR id.
func ParsePRURL(prURL string) (org, project, repo string, number int, err error) {
	m := regex.AzurePRURL.FindStringSubmatch(strings.TrimSpace(prURL))
	if m == nil {
		return "", "", "", 0, domainErrors.ErrInvalidPRURL.WithContext("url", prURL)
	}
	org = m[1]
	if org == "" {
		org = m[2]
	}
	number, err = strconv.Atoi(m[5])
	if err != nil {
		return "", "", "", 0, domainErrors.ErrInvalidPRURL.WithContext("url", prURL).WithError(err)
	}
	project, _ = url.PathUnescape(m[3])
	repo, _ = url.PathUnescape(m[4])
	return org, project, repo, number, nil
}

// New connects with azure_devops.pat to the organization of prURL, or to
// azure_devops.org when set.
func New(ctx context.Context, s *config.Settings, prURL string) (*Client, error) {
	if s.AzureDevOps.PAT == "" {
		return nil, domainErrors.ErrTokenMissing.
			WithContext("provider", "azure").
			WithSuggestion("set azure_devops.pat or AZURE_DEVOPS__PAT")
	}
	org, _, _, _, err := ParsePRURL(prURL)
	if err != nil {
		return nil, err
	}
	orgURL := s.AzureDevOps.Org
	if orgURL == "" {
		orgURL = "https://dev.azure.com/" + org
	}
	api, err := git.NewClient(ctx, azuredevops.NewPatConnection(orgURL, s.AzureDevOps.PAT))
	if err != nil {
		return nil, domainErrors.ErrInvalidSettings.WithError(err).WithContext("azure_devops.org", orgURL)
	}
	return NewWithAPI(api, s, prURL)
}

func NewWithAPI(api GitAPI, s *config.Settings, prURL string) (*Client, error) {
	_, project, repo, number, err := ParsePRURL(prURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		api:      api,
		settings: s,
		project:  project,
		repo:     repo,
		number:   number,
		prURL:    strings.TrimSuffix(prURL, "/"),
	}, nil
}

func (c *Client) Name() string  { return "azure" }
func (c *Client) PRURL() string { return c.prURL }
func (c *Client) PRID() string  { return fmt.Sprintf("%s/%s/%d", c.project, c.repo, c.number) }

func (c *Client) pullRequest(ctx context.Context) (*git.GitPullRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pr != nil {
		return c.pr, nil
	}
	logger.FromContext(ctx).Debug("fetching azure devops pull request", "project", c.project, "repo", c.repo, "pr_number", c.number)

	pr, err := c.api.GetPullRequest(ctx, git.GetPullRequestArgs{
		RepositoryId:  &c.repo,
		PullRequestId: &c.number,
		Project:       &c.project,
	})
	if err != nil {
		return nil, c.wrap("get PR", err)
	}
	c.pr = pr
	return pr, nil
}

func (c *Client) PR(ctx context.Context) (*models.PullRequest, error) {
	pr, err := c.pullRequest(ctx)
	if err != nil {
		return nil, err
	}
	out := &models.PullRequest{
		Number:       deref(pr.PullRequestId),
		Title:        deref(pr.Title),
		Description:  deref(pr.Description),
		SourceBranch: strings.TrimPrefix(deref(pr.SourceRefName), "refs/heads/"),
		TargetBranch: strings.TrimPrefix(deref(pr.TargetRefName), "refs/heads/"),
		Draft:        deref(pr.IsDraft),
		URL:          c.prURL,
		CreatedAt:    timeOf(pr.CreationDate),
		MergedAt:     timeOf(pr.ClosedDate),
	}
	if pr.Status != nil {
		out.State = string(*pr.Status)
		out.Merged = *pr.Status == git.PullRequestStatusValues.Completed
	}
	if pr.CreatedBy != nil {
		out.Author = deref(pr.CreatedBy.DisplayName)
	}
	if pr.LastMergeSourceCommit != nil {
		out.HeadSHA = deref(pr.LastMergeSourceCommit.CommitId)
	}
	if pr.LastMergeTargetCommit != nil {
		out.BaseSHA = deref(pr.LastMergeTargetCommit.CommitId)
	}
	if pr.Labels != nil {
		for _, l := range *pr.Labels {
			out.Labels = append(out.Labels, deref(l.Name))
		}
	}
	return out, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func timeOf(t *azuredevops.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.Time
}

type change struct {
	path, originalPath string
	editType           models.EditType
}

// changes lists the files touched by the latest iteration against the
// target branch.
func (c *Client) changes(ctx context.Context) ([]change, error) {
	iterations, err := c.api.GetPullRequestIterations(ctx, git.GetPullRequestIterationsArgs{
		RepositoryId:  &c.repo,
		PullRequestId: &c.number,
		Project:       &c.project,
	})
	if err != nil {
		return nil, c.wrap("get iterations", err)
	}
	if iterations == nil || len(*iterations) == 0 {
		return nil, nil
	}
	last := (*iterations)[len(*iterations)-1].Id
	compareTo := 0

	res, err := c.api.GetPullRequestIterationChanges(ctx, git.GetPullRequestIterationChangesArgs{
		RepositoryId:  &c.repo,
		PullRequestId: &c.number,
		IterationId:   last,
		Project:       &c.project,
		CompareTo:     &compareTo,
	})
	if err != nil {
		return nil, c.wrap("get iteration changes", err)
	}
	if res == nil || res.ChangeEntries == nil {
		return nil, nil
	}

	var out []change
	for _, entry := range *res.ChangeEntries {
		path := itemPath(entry.Item)
		if path == "" {
			continue
		}
		ch := change{path: strings.TrimPrefix(path, "/"), editType: editTypeOf(entry.ChangeType)}
		if entry.OriginalPath != nil {
			ch.originalPath = strings.TrimPrefix(*entry.OriginalPath, "/")
		}
		out = append(out, ch)
	}
	return out, nil
}

// itemPath reads the path of a change item, which the SDK leaves untyped.
func itemPath(item any) string {
	switch v := item.(type) {
	case map[string]any:
		if p, ok := v["path"].(string); ok && !isFolder(v) {
			return p
		}
	case *git.GitItem:
		if v != nil && !deref(v.IsFolder) {
			return deref(v.Path)
		}
	}
	return ""
}

func isFolder(item map[string]any) bool {
	folder, _ := item["isFolder"].(bool)
	return folder
}

func editTypeOf(ct *git.VersionControlChangeType) models.EditType {
	if ct == nil {
		return models.EditTypeUnknown
	}
	kind := string(*ct)
	switch {
	case strings.Contains(kind, "rename"):
		return models.EditTypeRenamed
	case strings.Contains(kind, "delete"):
		return models.EditTypeDeleted
	case strings.Contains(kind, "add"):
		return models.EditTypeAdded
	case strings.Contains(kind, "edit"):
		return models.EditTypeModified
	}
	return models.EditTypeUnknown
}

func (c *Client) Files(ctx context.Context) ([]string, error) {
	changes, err := c.changes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(changes))
	for _, ch := range changes {
		out = append(out, ch.path)
	}
	return out, nil
}

// DiffFiles loads both versions of every changed file and computes the
// unified patch locally; Azure DevOps does not serve patches.
func (c *Client) DiffFiles(ctx context.Context) ([]models.FilePatchInfo, error) {
	c.mu.Lock()
	cached := c.files
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	pr, err := c.pullRequest(ctx)
	if err != nil {
		return nil, err
	}
	changes, err := c.changes(ctx)
	if err != nil {
		return nil, err
	}
	var baseSHA, headSHA string
	if pr.LastMergeTargetCommit != nil {
		baseSHA = deref(pr.LastMergeTargetCommit.CommitId)
	}
	if pr.LastMergeSourceCommit != nil {
		headSHA = deref(pr.LastMergeSourceCommit.CommitId)
	}

	log := logger.FromContext(ctx)
	out := make([]models.FilePatchInfo, 0, len(changes))
	for _, ch := range changes {
		var base, head string
		if ch.editType != models.EditTypeAdded {
			name := ch.path
			if ch.originalPath != "" {
				name = ch.originalPath
			}
			if base, err = c.FileContent(ctx, name, baseSHA); err != nil {
				log.Debug("could not load base file", "file", name, "error", err)
			}
		}
		if ch.editType != models.EditTypeDeleted {
			if head, err = c.FileContent(ctx, ch.path, headSHA); err != nil {
				log.Debug("could not load head file", "file", ch.path, "error", err)
			}
		}
		patch := diff.LoadLargeDiff(ctx, ch.path, head, base)
		info := models.NewFilePatchInfo(base, head, patch, ch.path, ch.editType)
		info.OldFilename = ch.originalPath
		info.NumPlusLines, info.NumMinusLines = diff.CountChanges(patch)
		out = append(out, info)
	}

	c.mu.Lock()
	c.files = out
	c.mu.Unlock()
	return out, nil
}

// Languages is empty: Azure Repos has no language statistics endpoint.
func (c *Client) Languages(context.Context) (map[string]int, error) {
	return map[string]int{}, nil
}

func (c *Client) listCommits(ctx context.Context) ([]git.GitCommitRef, error) {
	c.mu.Lock()
	if c.commits != nil {
		defer c.mu.Unlock()
		return c.commits, nil
	}
	c.mu.Unlock()

	res, err := c.api.GetPullRequestCommits(ctx, git.GetPullRequestCommitsArgs{
		RepositoryId:  &c.repo,
		PullRequestId: &c.number,
		Project:       &c.project,
	})
	if err != nil {
		return nil, c.wrap("list commits", err)
	}
	commits := []git.GitCommitRef{}
	if res != nil {
		commits = slices.Clone(res.Value)
	}
	// Newest first on the wire.
	slices.Reverse(commits)

	c.mu.Lock()
	c.commits = commits
	c.mu.Unlock()
	return commits, nil
}

func (c *Client) CommitMessages(ctx context.Context) (string, error) {
	commits, err := c.listCommits(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, cm := range commits {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(deref(cm.Comment)))
	}
	return vcs.ClipDescription(b.String(), c.settings.Config.MaxCommitsTokens), nil
}

func (c *Client) LatestCommitURL(ctx context.Context) (string, error) {
	commits, err := c.listCommits(ctx)
	if err != nil || len(commits) == 0 {
		return "", err
	}
	return deref(commits[len(commits)-1].RemoteUrl), nil
}

func (c *Client) Labels(ctx context.Context, _ bool) ([]string, error) {
	labels, err := c.api.GetPullRequestLabels(ctx, git.GetPullRequestLabelsArgs{
		RepositoryId:  &c.repo,
		PullRequestId: &c.number,
		Project:       &c.project,
	})
	if err != nil {
		return nil, c.wrap("get labels", err)
	}
	var out []string
	if labels != nil {
		for _, l := range *labels {
			out = append(out, deref(l.Name))
		}
	}
	return out, nil
}

// PublishLabels reconciles the PR's labels with labels.
func (c *Client) PublishLabels(ctx context.Context, labels []string) error {
	current, err := c.Labels(ctx, true)
	if err != nil {
		return err
	}
	for _, name := range current {
		if slices.Contains(labels, name) {
			continue
		}
		if err := c.api.DeletePullRequestLabels(ctx, git.DeletePullRequestLabelsArgs{
			RepositoryId:  &c.repo,
			PullRequestId: &c.number,
			LabelIdOrName: &name,
			Project:       &c.project,
		}); err != nil {
			return c.wrap("delete label", err)
		}
	}
	for _, name := range labels {
		if slices.Contains(current, name) {
			continue
		}
		if _, err := c.api.CreatePullRequestLabel(ctx, git.CreatePullRequestLabelArgs{
			Label:         &core.WebApiCreateTagRequestData{Name: &name},
			RepositoryId:  &c.repo,
			PullRequestId: &c.number,
			Project:       &c.project,
		}); err != nil {
			return c.wrap("create label", err)
		}
	}
	return nil
}

func (c *Client) threads(ctx context.Context) ([]git.GitPullRequestCommentThread, error) {
	threads, err := c.api.GetThreads(ctx, git.GetThreadsArgs{
		RepositoryId:  &c.repo,
		PullRequestId: &c.number,
		Project:       &c.project,
	})
	if err != nil {
		return nil, c.wrap("get threads", err)
	}
	if threads == nil {
		return nil, nil
	}
	return *threads, nil
}

func (c *Client) IssueComments(ctx context.Context) ([]models.Comment, error) {
	threads, err := c.threads(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Comment
	for _, th := range threads {
		if th.Comments == nil || len(*th.Comments) == 0 {
			continue
		}
		first := (*th.Comments)[0]
		if first.CommentType != nil && *first.CommentType == git.CommentTypeValues.System {
			continue
		}
		out = append(out, c.commentOf(th, first))
	}
	return out, nil
}

func (c *Client) commentOf(th git.GitPullRequestCommentThread, cm git.Comment) models.Comment {
	out := models.Comment{
		ID:        int64(deref(th.Id)),
		Body:      deref(cm.Content),
		URL:       fmt.Sprintf("%s?discussionId=%d", c.prURL, deref(th.Id)),
		CreatedAt: timeOf(cm.PublishedDate),
	}
	if cm.Author != nil {
		out.Author = deref(cm.Author.DisplayName)
		out.IsBot = regex.BotUsername.MatchString(deref(cm.Author.UniqueName))
	}
	if th.ThreadContext != nil {
		out.Path = strings.TrimPrefix(deref(th.ThreadContext.FilePath), "/")
		if th.ThreadContext.RightFileStart != nil {
			out.Line = deref(th.ThreadContext.RightFileStart.Line)
		}
	}
	return out
}

func (c *Client) RepoSettings(ctx context.Context) ([]byte, error) {
	pr, err := c.pullRequest(ctx)
	if err != nil {
		return nil, err
	}
	ref := ""
	if pr.LastMergeTargetCommit != nil {
		ref = deref(pr.LastMergeTargetCommit.CommitId)
	}
	content, err := c.FileContent(ctx, config.LocalSettingsFile, ref)
	if err != nil {
		if errors.Is(err, domainErrors.ErrRepositoryNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []byte(content), nil
}

func (c *Client) FileContent(ctx context.Context, path, ref string) (string, error) {
	args := git.GetItemTextArgs{
		RepositoryId: &c.repo,
		Path:         &path,
		Project:      &c.project,
	}
	if ref != "" {
		args.VersionDescriptor = &git.GitVersionDescriptor{
			Version:     &ref,
			VersionType: &git.GitVersionTypeValues.Commit,
		}
	}
	rc, err := c.api.GetItemText(ctx, args)
	if err != nil {
		return "", c.wrap("get item", err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(b), nil
}

func (c *Client) LineLink(file string, start, end int) string {
	link := fmt.Sprintf("%s?_a=files&path=/%s", c.prURL, url.PathEscape(strings.TrimPrefix(file, "/")))
	if start < 0 {
		return link
	}
	if end < start {
		end = start
	}
	return fmt.Sprintf("%s&line=%d&lineEnd=%d&lineStartColumn=1&lineEndColumn=999999", link, start, end)
}

func (c *Client) commentStatus() *git.CommentThreadStatus {
	if strings.EqualFold(c.settings.AzureDevOps.DefaultCommentStatus, "active") {
		return &git.CommentThreadStatusValues.Active
	}
	return &git.CommentThreadStatusValues.Closed
}

func (c *Client) createThread(ctx context.Context, body string, status *git.CommentThreadStatus, tc *git.CommentThreadContext) (*git.GitPullRequestCommentThread, error) {
	comments := []git.Comment{{Content: &body, CommentType: &git.CommentTypeValues.Text}}
	return c.api.CreateThread(ctx, git.CreateThreadArgs{
		CommentThread: &git.GitPullRequestCommentThread{
			Comments:      &comments,
			Status:        status,
			ThreadContext: tc,
		},
		RepositoryId:  &c.repo,
		PullRequestId: &c.number,
		Project:       &c.project,
	})
}

func (c *Client) PublishComment(ctx context.Context, body string, temporary bool) (*models.Comment, error) {
	th, err := c.createThread(ctx, body, c.commentStatus(), nil)
	if err != nil {
		return nil, c.wrap("create thread", err)
	}
	if temporary {
		c.mu.Lock()
		c.temporaryID = append(c.temporaryID, int64(deref(th.Id)))
		c.mu.Unlock()
	}
	out := models.Comment{ID: int64(deref(th.Id)), Body: body}
	if th.Comments != nil && len(*th.Comments) > 0 {
		out = c.commentOf(*th, (*th.Comments)[0])
	}
	return &out, nil
}

func (c *Client) EditComment(ctx context.Context, cm *models.Comment, body string) error {
	threadID, commentID := int(cm.ID), 1
	_, err := c.api.UpdateComment(ctx, git.UpdateCommentArgs{
		Comment:       &git.Comment{Content: &body},
		RepositoryId:  &c.repo,
		PullRequestId: &c.number,
		ThreadId:      &threadID,
		CommentId:     &commentID,
		Project:       &c.project,
	})
	if err != nil {
		return c.wrap("update comment", err)
	}
	return nil
}

func (c *Client) RemoveComment(ctx context.Context, cm *models.Comment) error {
	threadID, commentID := int(cm.ID), 1
	if err := c.api.DeleteComment(ctx, git.DeleteCommentArgs{
		RepositoryId:  &c.repo,
		PullRequestId: &c.number,
		ThreadId:      &threadID,
		CommentId:     &commentID,
		Project:       &c.project,
	}); err != nil {
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
			logger.Warn(ctx, "failed to remove temporary comment", "thread_id", id, "error", err)
		}
	}
	return nil
}

func (c *Client) PublishPersistentComment(ctx context.Context, body string, opts vcs.PersistentCommentOptions) error {
	return vcs.PublishPersistent(ctx, c, body, opts)
}

func (c *Client) PublishDescription(ctx context.Context, title, body string) error {
	_, err := c.api.UpdatePullRequest(ctx, git.UpdatePullRequestArgs{
		GitPullRequestToUpdate: &git.GitPullRequest{Title: &title, Description: &body},
		RepositoryId:           &c.repo,
		PullRequestId:          &c.number,
		Project:                &c.project,
	})
	if err != nil {
		return c.wrap("update PR", err)
	}
	return nil
}

func (c *Client) PublishInlineComments(ctx context.Context, comments []models.InlineComment) error {
	var errs []error
	for _, ic := range comments {
		start := ic.Line
		if ic.StartLine > 0 && ic.StartLine < ic.Line {
			start = ic.StartLine
		}
		startOffset, endOffset := 1, 1
		path := "/" + strings.TrimPrefix(ic.Path, "/")
		tc := &git.CommentThreadContext{
			FilePath:       &path,
			RightFileStart: &git.CommentPosition{Line: &start, Offset: &startOffset},
			RightFileEnd:   &git.CommentPosition{Line: &ic.Line, Offset: &endOffset},
		}
		if _, err := c.createThread(ctx, ic.Body, &git.CommentThreadStatusValues.Active, tc); err != nil {
			errs = append(errs, c.wrap("publish inline comment", err))
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
		comments = append(comments, models.InlineComment{
			Body: s.Body, Path: s.RelevantFile, StartLine: s.RelevantStart, Line: max(s.RelevantEnd, s.RelevantStart),
		})
	}
	return c.PublishInlineComments(ctx, comments)
}

func (c *Client) ReplyToComment(ctx context.Context, threadID int64, body string) error {
	id := int(threadID)
	_, err := c.api.CreateComment(ctx, git.CreateCommentArgs{
		Comment:       &git.Comment{Content: &body, CommentType: &git.CommentTypeValues.Text},
		RepositoryId:  &c.repo,
		PullRequestId: &c.number,
		ThreadId:      &id,
		Project:       &c.project,
	})
	if err != nil {
		return c.wrap("reply to thread", err)
	}
	return nil
}

func (c *Client) AddEyesReaction(context.Context, int64) (int64, error) { return 0, nil }

func (c *Client) RemoveReaction(context.Context, int64, int64) error { return nil }

// AutoApprove needs the reviewer identity of the token owner, which a PAT
// connection cannot resolve through the git client.
func (c *Client) AutoApprove(context.Context) error {
	return domainErrors.ErrNotSupported.WithContext("operation", "auto approve").WithContext("provider", "azure")
}

func (c *Client) IsSupported(capability vcs.Capability) bool {
	switch capability {
	case vcs.CapGFMDetails, vcs.CapMultipleInlineComments:
		return false
	}
	return true
}

func (c *Client) wrap(operation string, err error) error {
	var wrapped azuredevops.WrappedError
	var wrappedPtr *azuredevops.WrappedError
	status := 0
	switch {
	case errors.As(err, &wrappedPtr) && wrappedPtr.StatusCode != nil:
		status = *wrappedPtr.StatusCode
	case errors.As(err, &wrapped) && wrapped.StatusCode != nil:
		status = *wrapped.StatusCode
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domainErrors.ErrTokenMissing.WithError(err).
			WithContext("provider", "azure").
			WithContext("operation", operation)
	case http.StatusNotFound:
		return domainErrors.ErrRepositoryNotFound.WithError(err).
			WithContext("operation", operation).
			WithContext("repo", c.project+"/"+c.repo)
	}
	return fmt.Errorf("azure devops %s for %s: %w", operation, c.PRID(), err)
}
