package github

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/go-github/v80/github"
	"github.com/khulnasoft/pr-insight/internal/config"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/regex"
	"github.com/khulnasoft/pr-insight/internal/vcs"
)

var (
	_ vcs.Provider            = (*Client)(nil)
	_ vcs.IssueFetcher        = (*Client)(nil)
	_ vcs.CheckRunsFetcher    = (*Client)(nil)
	_ vcs.IncrementalProvider = (*Client)(nil)
	_ vcs.CodeSearcher        = (*Client)(nil)
	_ vcs.FileCommitter       = (*Client)(nil)
)

type PullRequestsService interface {
	Get(ctx context.Context, owner, repo string, number int) (*github.PullRequest, *github.Response, error)
	Edit(ctx context.Context, owner, repo string, number int, pr *github.PullRequest) (*github.PullRequest, *github.Response, error)
	ListFiles(ctx context.Context, owner, repo string, number int, opts *github.ListOptions) ([]*github.CommitFile, *github.Response, error)
	ListCommits(ctx context.Context, owner, repo string, number int, opts *github.ListOptions) ([]*github.RepositoryCommit, *github.Response, error)
	CreateReview(ctx context.Context, owner, repo string, number int, review *github.PullRequestReviewRequest) (*github.PullRequestReview, *github.Response, error)
	CreateComment(ctx context.Context, owner, repo string, number int, comment *github.PullRequestComment) (*github.PullRequestComment, *github.Response, error)
	CreateCommentInReplyTo(ctx context.Context, owner, repo string, number int, body string, commentID int64) (*github.PullRequestComment, *github.Response, error)
}

type IssuesService interface {
	Get(ctx context.Context, owner, repo string, number int) (*github.Issue, *github.Response, error)
	ListComments(ctx context.Context, owner, repo string, number int, opts *github.IssueListCommentsOptions) ([]*github.IssueComment, *github.Response, error)
	CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
	EditComment(ctx context.Context, owner, repo string, commentID int64, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
	DeleteComment(ctx context.Context, owner, repo string, commentID int64) (*github.Response, error)
	ListLabelsByIssue(ctx context.Context, owner, repo string, number int, opts *github.ListOptions) ([]*github.Label, *github.Response, error)
	ReplaceLabelsForIssue(ctx context.Context, owner, repo string, number int, labels []string) ([]*github.Label, *github.Response, error)
}

type RepositoriesService interface {
	GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error)
	ListLanguages(ctx context.Context, owner, repo string) (map[string]int, *github.Response, error)
	GetCommit(ctx context.Context, owner, repo, sha string, opts *github.ListOptions) (*github.RepositoryCommit, *github.Response, error)
	CreateFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error)
	UpdateFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error)
}

type ReactionsService interface {
	CreateIssueCommentReaction(ctx context.Context, owner, repo string, id int64, content string) (*github.Reaction, *github.Response, error)
	DeleteIssueCommentReaction(ctx context.Context, owner, repo string, commentID, reactionID int64) (*github.Response, error)
}

type ChecksService interface {
	ListCheckRunsForRef(ctx context.Context, owner, repo, ref string, opts *github.ListCheckRunsOptions) (*github.ListCheckRunsResults, *github.Response, error)
}

type SearchService interface {
	Code(ctx context.Context, query string, opts *github.SearchOptions) (*github.CodeSearchResult, *github.Response, error)
}

// Services groups the go-github services the provider talks to.
type Services struct {
	PullRequests PullRequestsService
	Issues       IssuesService
	Repositories RepositoriesService
	Reactions    ReactionsService
	Checks       ChecksService
	Search       SearchService
}

func servicesOf(c *github.Client) Services {
	return Services{
		PullRequests: c.PullRequests,
		Issues:       c.Issues,
		Repositories: c.Repositories,
		Reactions:    c.Reactions,
		Checks:       c.Checks,
		Search:       c.Search,
	}
}

// Client is the GitHub pull request provider.
type Client struct {
	svc      Services
	settings *config.Settings
	owner    string
	repo     string
	number   int
	prURL    string

	mu          sync.Mutex
	pr          *github.PullRequest
	files       []models.FilePatchInfo
	commits     []*github.RepositoryCommit
	labels      []string
	temporaryID []int64
}

// NewWithServices builds a provider on top of explicit services.
func NewWithServices(svc Services, s *config.Settings, prURL string) (*Client, error) {
	owner, repo, number, err := ParsePRURL(prURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		svc:      svc,
		settings: s,
		owner:    owner,
		repo:     repo,
		number:   number,
		prURL:    strings.TrimSuffix(prURL, "/"),
	}, nil
}

// ParsePRURL extracts owner, repository and number from a pull request or
// issue URL. API URLs are accepted as well.
func ParsePRURL(prURL string) (owner, repo string, number int, err error) {
	normalized := strings.Replace(strings.TrimSpace(prURL), "://api.github.com/repos/", "://github.com/", 1)
	m := regex.GitHubPRURL.FindStringSubmatch(normalized)
	if m == nil {
		m = regex.GitHubIssueURLFull.FindStringSubmatch(normalized)
	}
	if m == nil {
		return "", "", 0, domainErrors.ErrInvalidPRURL.WithContext("url", prURL)
	}
	number, err = strconv.Atoi(m[4])
	if err != nil {
		return "", "", 0, domainErrors.ErrInvalidPRURL.WithContext("url", prURL).WithError(err)
	}
	return m[2], m[3], number, nil
}

func (c *Client) Name() string  { return "github" }
func (c *Client) PRURL() string { return c.prURL }
func (c *Client) PRID() string  { return fmt.Sprintf("%s/%s#%d", c.owner, c.repo, c.number) }

func (c *Client) fullName() string { return c.owner + "/" + c.repo }

func (c *Client) pullRequest(ctx context.Context) (*github.PullRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pr != nil {
		return c.pr, nil
	}
	log := logger.FromContext(ctx)
	log.Debug("fetching github pull request", "repo", c.fullName(), "pr_number", c.number)

	pr, resp, err := c.svc.PullRequests.Get(ctx, c.owner, c.repo, c.number)
	if err != nil {
		return nil, c.wrap("get PR", resp, err)
	}
	c.pr = pr
	return pr, nil
}

func (c *Client) PR(ctx context.Context) (*models.PullRequest, error) {
	pr, err := c.pullRequest(ctx)
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}
	return &models.PullRequest{
		Number:       pr.GetNumber(),
		Title:        pr.GetTitle(),
		Description:  pr.GetBody(),
		SourceBranch: pr.GetHead().GetRef(),
		TargetBranch: pr.GetBase().GetRef(),
		Author:       pr.GetUser().GetLogin(),
		State:        pr.GetState(),
		Draft:        pr.GetDraft(),
		Merged:       pr.GetMerged(),
		URL:          pr.GetHTMLURL(),
		HeadSHA:      pr.GetHead().GetSHA(),
		BaseSHA:      pr.GetBase().GetSHA(),
		Labels:       labels,
		CreatedAt:    pr.GetCreatedAt().Time,
		UpdatedAt:    pr.GetUpdatedAt().Time,
		MergedAt:     pr.GetMergedAt().Time,
		Additions:    pr.GetAdditions(),
		Deletions:    pr.GetDeletions(),
		ChangedFiles: pr.GetChangedFiles(),
		Commits:      pr.GetCommits(),
	}, nil
}

func (c *Client) listFiles(ctx context.Context) ([]*github.CommitFile, error) {
	opts := &github.ListOptions{PerPage: 100}
	var all []*github.CommitFile
	for {
		files, resp, err := c.svc.PullRequests.ListFiles(ctx, c.owner, c.repo, c.number, opts)
		if err != nil {
			return nil, c.wrap("list PR files", resp, err)
		}
		all = append(all, files...)
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func (c *Client) Files(ctx context.Context) ([]string, error) {
	files, err := c.listFiles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.GetFilename())
	}
	return out, nil
}

// DiffFiles returns every changed file with its base and head contents.
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
	files, err := c.listFiles(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	out := make([]models.FilePatchInfo, 0, len(files))
	for _, f := range files {
		editType := editTypeOf(f.GetStatus())
		var base, head string
		if editType != models.EditTypeAdded {
			name := f.GetFilename()
			if f.GetPreviousFilename() != "" {
				name = f.GetPreviousFilename()
			}
			base, err = c.FileContent(ctx, name, pr.GetBase().GetSHA())
			if err != nil {
				log.Debug("could not load base file", "file", name, "error", err)
			}
		}
		if editType != models.EditTypeDeleted {
			head, err = c.FileContent(ctx, f.GetFilename(), pr.GetHead().GetSHA())
			if err != nil {
				log.Debug("could not load head file", "file", f.GetFilename(), "error", err)
			}
		}
		info := models.NewFilePatchInfo(base, head, f.GetPatch(), f.GetFilename(), editType)
		info.OldFilename = f.GetPreviousFilename()
		info.NumPlusLines = f.GetAdditions()
		info.NumMinusLines = f.GetDeletions()
		out = append(out, info)
	}

	c.mu.Lock()
	c.files = out
	c.mu.Unlock()
	return out, nil
}

func editTypeOf(status string) models.EditType {
	switch status {
	case "added":
		return models.EditTypeAdded
	case "removed":
		return models.EditTypeDeleted
	case "renamed":
		return models.EditTypeRenamed
	case "modified", "changed":
		return models.EditTypeModified
	}
	return models.EditTypeUnknown
}

func (c *Client) Languages(ctx context.Context) (map[string]int, error) {
	langs, resp, err := c.svc.Repositories.ListLanguages(ctx, c.owner, c.repo)
	if err != nil {
		return nil, c.wrap("list languages", resp, err)
	}
	return langs, nil
}

func (c *Client) listCommits(ctx context.Context) ([]*github.RepositoryCommit, error) {
	c.mu.Lock()
	if c.commits != nil {
		defer c.mu.Unlock()
		return c.commits, nil
	}
	c.mu.Unlock()

	opts := &github.ListOptions{PerPage: 100}
	var all []*github.RepositoryCommit
	for {
		commits, resp, err := c.svc.PullRequests.ListCommits(ctx, c.owner, c.repo, c.number, opts)
		if err != nil {
			return nil, c.wrap("list commits", resp, err)
		}
		all = append(all, commits...)
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.mu.Lock()
	c.commits = all
	c.mu.Unlock()
	return all, nil
}

// CommitMessages lists the commit messages numbered from 1, clipped to
// config.max_commits_tokens.
func (c *Client) CommitMessages(ctx context.Context) (string, error) {
	commits, err := c.listCommits(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, commit := range commits {
		fmt.Fprintf(&b, "%d. %s\n", i+1, commit.GetCommit().GetMessage())
	}
	return vcs.ClipDescription(b.String(), c.settings.Config.MaxCommitsTokens), nil
}

func (c *Client) Labels(ctx context.Context, update bool) ([]string, error) {
	c.mu.Lock()
	if c.labels != nil && !update {
		defer c.mu.Unlock()
		return c.labels, nil
	}
	c.mu.Unlock()

	labels, resp, err := c.svc.Issues.ListLabelsByIssue(ctx, c.owner, c.repo, c.number, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, c.wrap("list labels", resp, err)
	}
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.GetName())
	}

	c.mu.Lock()
	c.labels = names
	c.mu.Unlock()
	return names, nil
}

func (c *Client) IssueComments(ctx context.Context) ([]models.Comment, error) {
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	var out []models.Comment
	for {
		comments, resp, err := c.svc.Issues.ListComments(ctx, c.owner, c.repo, c.number, opts)
		if err != nil {
			return nil, c.wrap("list comments", resp, err)
		}
		for _, cm := range comments {
			out = append(out, commentOf(cm))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func commentOf(cm *github.IssueComment) models.Comment {
	login := cm.GetUser().GetLogin()
	return models.Comment{
		ID:        cm.GetID(),
		Author:    login,
		Body:      cm.GetBody(),
		URL:       cm.GetHTMLURL(),
		CreatedAt: cm.GetCreatedAt().Time,
		IsBot:     cm.GetUser().GetType() == "Bot" || strings.HasSuffix(login, "[bot]"),
	}
}

func (c *Client) RepoSettings(ctx context.Context) ([]byte, error) {
	content, err := c.FileContent(ctx, config.LocalSettingsFile, "")
	if err != nil {
		if errors.Is(err, domainErrors.ErrRepositoryNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []byte(content), nil
}

func (c *Client) FileContent(ctx context.Context, path, ref string) (string, error) {
	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}
	fc, _, resp, err := c.svc.Repositories.GetContents(ctx, c.owner, c.repo, path, opts)
	if err != nil {
		return "", c.wrap("get contents", resp, err)
	}
	if fc == nil {
		return "", domainErrors.ErrRepositoryNotFound.WithContext("path", path)
	}
	return fc.GetContent()
}

// CommitFile writes content to path on the PR head branch.
func (c *Client) CommitFile(ctx context.Context, path, content, message string) error {
	pr, err := c.pullRequest(ctx)
	if err != nil {
		return err
	}
	branch := pr.GetHead().GetRef()
	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(message),
		Content: []byte(content),
		Branch:  github.Ptr(branch),
	}
	existing, _, _, err := c.svc.Repositories.GetContents(ctx, c.owner, c.repo, path, &github.RepositoryContentGetOptions{Ref: branch})
	if err == nil && existing != nil {
		opts.SHA = existing.SHA
		if _, resp, err := c.svc.Repositories.UpdateFile(ctx, c.owner, c.repo, path, opts); err != nil {
			return c.wrap("update file", resp, err)
		}
		return nil
	}
	if _, resp, err := c.svc.Repositories.CreateFile(ctx, c.owner, c.repo, path, opts); err != nil {
		return c.wrap("create file", resp, err)
	}
	return nil
}

func (c *Client) LatestCommitURL(ctx context.Context) (string, error) {
	commits, err := c.listCommits(ctx)
	if err != nil {
		return "", err
	}
	if len(commits) == 0 {
		return "", nil
	}
	return commits[len(commits)-1].GetHTMLURL(), nil
}

// LineLink points at a line range of the PR "files" tab. A negative start
// links to the file itself.
func (c *Client) LineLink(file string, start, end int) string {
	sum := sha256.Sum256([]byte(file))
	anchor := hex.EncodeToString(sum[:])
	switch {
	case start < 0:
		return fmt.Sprintf("%s/files#diff-%s", c.prURL, anchor)
	case end <= start:
		return fmt.Sprintf("%s/files#diff-%sR%d", c.prURL, anchor, start)
	default:
		return fmt.Sprintf("%s/files#diff-%sR%d-R%d", c.prURL, anchor, start, end)
	}
}

func (c *Client) PublishComment(ctx context.Context, body string, temporary bool) (*models.Comment, error) {
	cm, resp, err := c.svc.Issues.CreateComment(ctx, c.owner, c.repo, c.number, &github.IssueComment{Body: github.Ptr(body)})
	if err != nil {
		return nil, c.wrap("publish comment", resp, err)
	}
	if temporary {
		c.mu.Lock()
		c.temporaryID = append(c.temporaryID, cm.GetID())
		c.mu.Unlock()
	}
	out := commentOf(cm)
	return &out, nil
}

func (c *Client) EditComment(ctx context.Context, comment *models.Comment, body string) error {
	_, resp, err := c.svc.Issues.EditComment(ctx, c.owner, c.repo, comment.ID, &github.IssueComment{Body: github.Ptr(body)})
	if err != nil {
		return c.wrap("edit comment", resp, err)
	}
	return nil
}

func (c *Client) RemoveComment(ctx context.Context, comment *models.Comment) error {
	resp, err := c.svc.Issues.DeleteComment(ctx, c.owner, c.repo, comment.ID)
	if err != nil {
		return c.wrap("remove comment", resp, err)
	}
	return nil
}

func (c *Client) RemoveInitialComment(ctx context.Context) error {
	c.mu.Lock()
	ids := c.temporaryID
	c.temporaryID = nil
	c.mu.Unlock()

	for _, id := range ids {
		if resp, err := c.svc.Issues.DeleteComment(ctx, c.owner, c.repo, id); err != nil {
			logger.Warn(ctx, "failed to remove temporary comment", "comment_id", id, "error", c.wrap("remove comment", resp, err))
		}
	}
	return nil
}

func (c *Client) PublishPersistentComment(ctx context.Context, body string, opts vcs.PersistentCommentOptions) error {
	return vcs.PublishPersistent(ctx, c, body, opts)
}

func (c *Client) PublishDescription(ctx context.Context, title, body string) error {
	_, resp, err := c.svc.PullRequests.Edit(ctx, c.owner, c.repo, c.number, &github.PullRequest{
		Title: github.Ptr(title),
		Body:  github.Ptr(body),
	})
	if err != nil {
		return c.wrap("update PR", resp, err)
	}
	return nil
}

func (c *Client) PublishLabels(ctx context.Context, labels []string) error {
	_, resp, err := c.svc.Issues.ReplaceLabelsForIssue(ctx, c.owner, c.repo, c.number, labels)
	if err != nil {
		return c.wrap("publish labels", resp, err)
	}
	c.mu.Lock()
	c.labels = slices.Clone(labels)
	c.mu.Unlock()
	return nil
}

// PublishInlineComments posts all comments as one review. When the review is
// rejected and fallback verification is enabled, comments are retried one by
// one and the invalid ones dropped.
func (c *Client) PublishInlineComments(ctx context.Context, comments []models.InlineComment) error {
	if len(comments) == 0 {
		return nil
	}
	pr, err := c.pullRequest(ctx)
	if err != nil {
		return err
	}

	drafts := make([]*github.DraftReviewComment, 0, len(comments))
	for _, ic := range comments {
		drafts = append(drafts, draftOf(ic))
	}
	_, resp, err := c.svc.PullRequests.CreateReview(ctx, c.owner, c.repo, c.number, &github.PullRequestReviewRequest{
		CommitID: github.Ptr(pr.GetHead().GetSHA()),
		Event:    github.Ptr("COMMENT"),
		Comments: drafts,
	})
	if err == nil {
		return nil
	}
	if !c.settings.GitHub.PublishInlineCommentsFallbackWithVerification {
		return c.wrap("publish inline comments", resp, err)
	}

	logger.Warn(ctx, "inline review rejected, verifying comments one by one", "count", len(comments), "error", err)
	published := 0
	for _, ic := range comments {
		_, _, cerr := c.svc.PullRequests.CreateComment(ctx, c.owner, c.repo, c.number, pullCommentOf(ic, pr.GetHead().GetSHA()))
		if cerr != nil {
			logger.Debug(ctx, "dropping invalid inline comment", "path", ic.Path, "line", ic.Line, "error", cerr)
			continue
		}
		published++
	}
	if published == 0 {
		return c.wrap("publish inline comments", resp, err)
	}
	return nil
}

func draftOf(ic models.InlineComment) *github.DraftReviewComment {
	d := &github.DraftReviewComment{
		Path: github.Ptr(ic.Path),
		Body: github.Ptr(ic.Body),
	}
	if ic.Position > 0 {
		d.Position = github.Ptr(ic.Position)
		return d
	}
	side := ic.Side
	if side == "" {
		side = "RIGHT"
	}
	d.Line = github.Ptr(ic.Line)
	d.Side = github.Ptr(side)
	if ic.StartLine > 0 && ic.StartLine < ic.Line {
		d.StartLine = github.Ptr(ic.StartLine)
		d.StartSide = github.Ptr(side)
	}
	return d
}

func pullCommentOf(ic models.InlineComment, sha string) *github.PullRequestComment {
	d := draftOf(ic)
	return &github.PullRequestComment{
		Body:      d.Body,
		Path:      d.Path,
		CommitID:  github.Ptr(sha),
		Position:  d.Position,
		Line:      d.Line,
		Side:      d.Side,
		StartLine: d.StartLine,
		StartSide: d.StartSide,
	}
}

// PublishCodeSuggestions posts committable ```suggestion blocks.
func (c *Client) PublishCodeSuggestions(ctx context.Context, suggestions []vcs.CodeSuggestion) error {
	comments := make([]models.InlineComment, 0, len(suggestions))
	for _, s := range suggestions {
		if s.RelevantStart <= 0 || s.RelevantEnd <= 0 {
			logger.Debug(ctx, "skipping suggestion without lines", "file", s.RelevantFile)
			continue
		}
		ic := models.InlineComment{Body: s.Body, Path: s.RelevantFile, Line: s.RelevantEnd, Side: "RIGHT"}
		if s.RelevantStart < s.RelevantEnd {
			ic.StartLine = s.RelevantStart
		}
		comments = append(comments, ic)
	}
	return c.PublishInlineComments(ctx, comments)
}

func (c *Client) ReplyToComment(ctx context.Context, commentID int64, body string) error {
	_, resp, err := c.svc.PullRequests.CreateCommentInReplyTo(ctx, c.owner, c.repo, c.number, body, commentID)
	if err != nil {
		return c.wrap("reply to comment", resp, err)
	}
	return nil
}

func (c *Client) AddEyesReaction(ctx context.Context, commentID int64) (int64, error) {
	r, resp, err := c.svc.Reactions.CreateIssueCommentReaction(ctx, c.owner, c.repo, commentID, "eyes")
	if err != nil {
		return 0, c.wrap("add reaction", resp, err)
	}
	return r.GetID(), nil
}

func (c *Client) RemoveReaction(ctx context.Context, commentID, reactionID int64) error {
	resp, err := c.svc.Reactions.DeleteIssueCommentReaction(ctx, c.owner, c.repo, commentID, reactionID)
	if err != nil {
		return c.wrap("remove reaction", resp, err)
	}
	return nil
}

func (c *Client) AutoApprove(ctx context.Context) error {
	_, resp, err := c.svc.PullRequests.CreateReview(ctx, c.owner, c.repo, c.number, &github.PullRequestReviewRequest{
		Event: github.Ptr("APPROVE"),
		Body:  github.Ptr("Auto-approved PR"),
	})
	if err != nil {
		return c.wrap("approve PR", resp, err)
	}
	return nil
}

func (c *Client) IsSupported(vcs.Capability) bool { return true }

// Issue fetches an issue of repo ("owner/name") as a ticket.
func (c *Client) Issue(ctx context.Context, repo string, number int) (*models.Ticket, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok {
		owner, name = c.owner, c.repo
	}
	issue, resp, err := c.svc.Issues.Get(ctx, owner, name, number)
	if err != nil {
		return nil, c.wrap("get issue", resp, err)
	}
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}
	return &models.Ticket{
		TicketID:  issue.GetNumber(),
		TicketURL: issue.GetHTMLURL(),
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		Labels:    strings.Join(labels, ", "),
	}, nil
}

// FailedCheckRuns returns the failed check runs of the PR head commit.
func (c *Client) FailedCheckRuns(ctx context.Context) ([]models.CheckRun, error) {
	pr, err := c.pullRequest(ctx)
	if err != nil {
		return nil, err
	}
	res, resp, err := c.svc.Checks.ListCheckRunsForRef(ctx, c.owner, c.repo, pr.GetHead().GetSHA(), &github.ListCheckRunsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, c.wrap("list check runs", resp, err)
	}
	var out []models.CheckRun
	for _, run := range res.CheckRuns {
		if run.GetConclusion() != "failure" {
			continue
		}
		out = append(out, models.CheckRun{
			ID:         run.GetID(),
			Name:       run.GetName(),
			Status:     run.GetStatus(),
			Conclusion: run.GetConclusion(),
			DetailsURL: run.GetDetailsURL(),
			Summary:    run.GetOutput().GetSummary(),
			Logs:       run.GetOutput().GetText(),
		})
	}
	return out, nil
}

// IncrementalCommits finds the commits pushed after the latest review
// comment and the files they touched.
func (c *Client) IncrementalCommits(ctx context.Context) (*vcs.IncrementalPR, error) {
	comments, err := c.IssueComments(ctx)
	if err != nil {
		return nil, err
	}
	commits, err := c.listCommits(ctx)
	if err != nil {
		return nil, err
	}

	inc := &vcs.IncrementalPR{IsIncremental: true}
	for i := len(comments) - 1; i >= 0; i-- {
		if strings.HasPrefix(comments[i].Body, "## PR Reviewer Guide") {
			inc.PreviousReviewURL = comments[i].URL
			inc.LastReviewedAt = comments[i].CreatedAt
			break
		}
	}
	if inc.PreviousReviewURL == "" {
		return inc, nil
	}

	files := map[string]bool{}
	for _, commit := range commits {
		date := commit.GetCommit().GetCommitter().GetDate().Time
		if !date.After(inc.LastReviewedAt) {
			inc.LastSeenCommitSHA = commit.GetSHA()
			continue
		}
		if inc.FirstNewCommitSHA == "" {
			inc.FirstNewCommitSHA = commit.GetSHA()
		}
		inc.CommitsRange = append(inc.CommitsRange, models.Commit{
			SHA:     commit.GetSHA(),
			Message: commit.GetCommit().GetMessage(),
			Date:    date,
			URL:     commit.GetHTMLURL(),
		})
		full, resp, err := c.svc.Repositories.GetCommit(ctx, c.owner, c.repo, commit.GetSHA(), nil)
		if err != nil {
			return nil, c.wrap("get commit", resp, err)
		}
		for _, f := range full.Files {
			if !files[f.GetFilename()] {
				files[f.GetFilename()] = true
				inc.UnreviewedFiles = append(inc.UnreviewedFiles, f.GetFilename())
			}
		}
	}
	return inc, nil
}

// SearchCode runs a GitHub code search limited to the PR's repository.
func (c *Client) SearchCode(ctx context.Context, query string, limit int) ([]vcs.SearchResult, error) {
	q := fmt.Sprintf("%s repo:%s", query, c.fullName())
	if c.settings.PRSimilar.SearchFromOrg {
		q = fmt.Sprintf("%s org:%s", query, c.owner)
	}
	res, resp, err := c.svc.Search.Code(ctx, q, &github.SearchOptions{ListOptions: github.ListOptions{PerPage: limit}})
	if err != nil {
		return nil, c.wrap("search code", resp, err)
	}
	out := make([]vcs.SearchResult, 0, len(res.CodeResults))
	for _, r := range res.CodeResults {
		out = append(out, vcs.SearchResult{
			Repository: r.GetRepository().GetFullName(),
			Path:       r.GetPath(),
			URL:        r.GetHTMLURL(),
		})
	}
	return out, nil
}

func (c *Client) wrap(operation string, resp *github.Response, err error) error {
	if resp != nil && resp.Response != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return domainErrors.ErrGitHubTokenInvalid.WithError(err).WithContext("operation", operation)
		case http.StatusForbidden:
			if resp.Rate.Remaining == 0 && !resp.Rate.Reset.IsZero() {
				return domainErrors.ErrGitHubRateLimit.WithError(err).
					WithContext("operation", operation).
					WithContext("reset", resp.Rate.Reset.Time)
			}
			return domainErrors.ErrGitHubInsufficientPerms.WithError(err).
				WithContext("operation", operation).
				WithContext("repo", c.fullName())
		case http.StatusTooManyRequests:
			return domainErrors.ErrGitHubRateLimit.WithError(err).
				WithContext("operation", operation).
				WithContext("retry_after", resp.Header.Get("Retry-After"))
		case http.StatusNotFound:
			return domainErrors.ErrRepositoryNotFound.WithError(err).
				WithContext("operation", operation).
				WithContext("repo", c.fullName())
		}
	}
	return fmt.Errorf("github %s for %s: %w", operation, c.PRID(), err)
}
