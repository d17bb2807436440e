// Package gitlab implements the merge request provider for GitLab.
package gitlab

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
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
	gl "gitlab.com/gitlab-org/api/client-go"
)

var (
	_ vcs.Provider     = (*Client)(nil)
	_ vcs.IssueFetcher = (*Client)(nil)
)

const defaultURL = "https://gitlab.com"

// Client is the GitLab merge request provider.
type Client struct {
	api      *gl.Client
	settings *config.Settings
	project  string
	iid      int
	mrURL    string

	mu          sync.Mutex
	mr          *gl.MergeRequest
	files       []models.FilePatchInfo
	commits     []*gl.Commit
	temporaryID []int
}

// ParseMRURL returns the project path and merge request IID of mrURL.
func ParseMRURL(mrURL string) (project string, iid int, err error) {
	m := regex.GitLabMRURL.FindStringSubmatch(strings.TrimSpace(mrURL))
	if m == nil {
		return "", 0, domainErrors.ErrInvalidPRURL.WithContext("url", mrURL)
	}
	iid, err = strconv.Atoi(m[2])
	if err != nil {
		return "", 0, domainErrors.ErrInvalidPRURL.WithContext("url", mrURL).WithError(err)
	}
	return strings.TrimSuffix(m[1], "/-"), iid, nil
}

// New builds a GitLab provider authenticated with the configured personal
// access token.
func New(s *config.Settings, mrURL string, opts ...gl.ClientOptionFunc) (*Client, error) {
	api, err := NewAPI(s, opts...)
	if err != nil {
		return nil, err
	}
	return NewWithClient(api, s, mrURL)
}

// NewAPI returns an API client for gitlab.url authenticated with the
// personal access token.
func NewAPI(s *config.Settings, opts ...gl.ClientOptionFunc) (*gl.Client, error) {
	if s.GitLab.PersonalAccessToken == "" {
		return nil, domainErrors.ErrTokenMissing.
			WithContext("provider", "gitlab").
			WithSuggestion("set gitlab.personal_access_token or GITLAB__PERSONAL_ACCESS_TOKEN")
	}
	base := strings.TrimSuffix(s.GitLab.URL, "/")
	if base == "" {
		base = defaultURL
	}
	api, err := gl.NewClient(s.GitLab.PersonalAccessToken, append([]gl.ClientOptionFunc{gl.WithBaseURL(base)}, opts...)...)
	if err != nil {
		return nil, domainErrors.ErrInvalidSettings.WithError(err).WithContext("gitlab.url", base)
	}
	return api, nil
}

// NewWithClient builds a provider on top of an existing API client.
func NewWithClient(api *gl.Client, s *config.Settings, mrURL string) (*Client, error) {
	project, iid, err := ParseMRURL(mrURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		api:      api,
		settings: s,
		project:  project,
		iid:      iid,
		mrURL:    strings.TrimSuffix(mrURL, "/"),
	}, nil
}

func (c *Client) Name() string  { return "gitlab" }
func (c *Client) PRURL() string { return c.mrURL }
func (c *Client) PRID() string  { return fmt.Sprintf("%s!%d", c.project, c.iid) }

func (c *Client) mergeRequest(ctx context.Context) (*gl.MergeRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mr != nil {
		return c.mr, nil
	}
	logger.FromContext(ctx).Debug("fetching gitlab merge request", "project", c.project, "iid", c.iid)

	mr, resp, err := c.api.MergeRequests.GetMergeRequest(c.project, c.iid, nil, gl.WithContext(ctx))
	if err != nil {
		return nil, c.wrap("get merge request", resp, err)
	}
	c.mr = mr
	return mr, nil
}

func (c *Client) PR(ctx context.Context) (*models.PullRequest, error) {
	mr, err := c.mergeRequest(ctx)
	if err != nil {
		return nil, err
	}
	out := &models.PullRequest{
		Number:       mr.IID,
		Title:        mr.Title,
		Description:  mr.Description,
		SourceBranch: mr.SourceBranch,
		TargetBranch: mr.TargetBranch,
		State:        mr.State,
		Draft:        mr.Draft,
		Merged:       mr.State == "merged",
		URL:          mr.WebURL,
		HeadSHA:      mr.SHA,
		BaseSHA:      mr.DiffRefs.BaseSha,
		Labels:       slices.Clone([]string(mr.Labels)),
		CreatedAt:    timeOf(mr.CreatedAt),
		UpdatedAt:    timeOf(mr.UpdatedAt),
		MergedAt:     timeOf(mr.MergedAt),
	}
	if mr.Author != nil {
		out.Author = mr.Author.Username
	}
	return out, nil
}

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func (c *Client) listDiffs(ctx context.Context) ([]*gl.MergeRequestDiff, error) {
	opts := &gl.ListMergeRequestDiffsOptions{ListOptions: gl.ListOptions{PerPage: 100}}
	var all []*gl.MergeRequestDiff
	for {
		diffs, resp, err := c.api.MergeRequests.ListMergeRequestDiffs(c.project, c.iid, opts, gl.WithContext(ctx))
		if err != nil {
			return nil, c.wrap("list merge request diffs", resp, err)
		}
		all = append(all, diffs...)
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func (c *Client) Files(ctx context.Context) ([]string, error) {
	diffs, err := c.listDiffs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(diffs))
	for _, d := range diffs {
		out = append(out, d.NewPath)
	}
	return out, nil
}

// DiffFiles returns every changed file with its contents at the merge base
// and at the source branch head.
func (c *Client) DiffFiles(ctx context.Context) ([]models.FilePatchInfo, error) {
	c.mu.Lock()
	cached := c.files
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	mr, err := c.mergeRequest(ctx)
	if err != nil {
		return nil, err
	}
	diffs, err := c.listDiffs(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	out := make([]models.FilePatchInfo, 0, len(diffs))
	for _, d := range diffs {
		editType := editTypeOf(d)
		var base, head string
		if editType != models.EditTypeAdded {
			if base, err = c.FileContent(ctx, d.OldPath, mr.DiffRefs.BaseSha); err != nil {
				log.Debug("could not load base file", "file", d.OldPath, "error", err)
			}
		}
		if editType != models.EditTypeDeleted {
			if head, err = c.FileContent(ctx, d.NewPath, mr.SHA); err != nil {
				log.Debug("could not load head file", "file", d.NewPath, "error", err)
			}
		}
		info := models.NewFilePatchInfo(base, head, d.Diff, d.NewPath, editType)
		if d.RenamedFile {
			info.OldFilename = d.OldPath
		}
		info.NumPlusLines, info.NumMinusLines = diff.CountChanges(d.Diff)
		out = append(out, info)
	}

	c.mu.Lock()
	c.files = out
	c.mu.Unlock()
	return out, nil
}

func editTypeOf(d *gl.MergeRequestDiff) models.EditType {
	switch {
	case d.NewFile:
		return models.EditTypeAdded
	case d.DeletedFile:
		return models.EditTypeDeleted
	case d.RenamedFile:
		return models.EditTypeRenamed
	}
	return models.EditTypeModified
}

// Languages converts GitLab's language percentages to the integer weights
// used for file grouping.
func (c *Client) Languages(ctx context.Context) (map[string]int, error) {
	langs, resp, err := c.api.Projects.GetProjectLanguages(c.project, gl.WithContext(ctx))
	if err != nil {
		return nil, c.wrap("get languages", resp, err)
	}
	out := make(map[string]int)
	if langs == nil {
		return out, nil
	}
	for name, pct := range *langs {
		out[name] = int(math.Round(float64(pct)))
	}
	return out, nil
}

func (c *Client) listCommits(ctx context.Context) ([]*gl.Commit, error) {
	c.mu.Lock()
	if c.commits != nil {
		defer c.mu.Unlock()
		return c.commits, nil
	}
	c.mu.Unlock()

	commits, resp, err := c.api.MergeRequests.GetMergeRequestCommits(c.project, c.iid,
		&gl.GetMergeRequestCommitsOptions{PerPage: 100}, gl.WithContext(ctx))
	if err != nil {
		return nil, c.wrap("list commits", resp, err)
	}
	// GitLab lists the newest commit first.
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
	for i, commit := range commits {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(commit.Message))
	}
	return vcs.ClipDescription(b.String(), c.settings.Config.MaxCommitsTokens), nil
}

func (c *Client) LatestCommitURL(ctx context.Context) (string, error) {
	commits, err := c.listCommits(ctx)
	if err != nil {
		return "", err
	}
	if len(commits) == 0 {
		return "", nil
	}
	return commits[len(commits)-1].WebURL, nil
}

func (c *Client) Labels(ctx context.Context, update bool) ([]string, error) {
	if update {
		c.mu.Lock()
		c.mr = nil
		c.mu.Unlock()
	}
	mr, err := c.mergeRequest(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone([]string(mr.Labels)), nil
}

func (c *Client) IssueComments(ctx context.Context) ([]models.Comment, error) {
	opts := &gl.ListMergeRequestNotesOptions{
		ListOptions: gl.ListOptions{PerPage: 100},
		Sort:        gl.Ptr("asc"),
	}
	var out []models.Comment
	for {
		notes, resp, err := c.api.Notes.ListMergeRequestNotes(c.project, c.iid, opts, gl.WithContext(ctx))
		if err != nil {
			return nil, c.wrap("list notes", resp, err)
		}
		for _, n := range notes {
			if n.System {
				continue
			}
			out = append(out, c.commentOf(n))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (c *Client) commentOf(n *gl.Note) models.Comment {
	return models.Comment{
		ID:        int64(n.ID),
		Author:    n.Author.Username,
		Body:      n.Body,
		URL:       fmt.Sprintf("%s#note_%d", c.mrURL, n.ID),
		Path:      positionPath(n),
		CreatedAt: timeOf(n.CreatedAt),
		IsBot:     regex.BotUsername.MatchString(n.Author.Username),
	}
}

func positionPath(n *gl.Note) string {
	if n.Position == nil {
		return ""
	}
	return n.Position.NewPath
}

func (c *Client) RepoSettings(ctx context.Context) ([]byte, error) {
	mr, err := c.mergeRequest(ctx)
	if err != nil {
		return nil, err
	}
	raw, resp, err := c.api.RepositoryFiles.GetRawFile(c.project, config.LocalSettingsFile,
		&gl.GetRawFileOptions{Ref: gl.Ptr(mr.TargetBranch)}, gl.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, c.wrap("get repo settings", resp, err)
	}
	return raw, nil
}

func (c *Client) FileContent(ctx context.Context, path, ref string) (string, error) {
	var opts *gl.GetRawFileOptions
	if ref != "" {
		opts = &gl.GetRawFileOptions{Ref: gl.Ptr(ref)}
	}
	raw, resp, err := c.api.RepositoryFiles.GetRawFile(c.project, path, opts, gl.WithContext(ctx))
	if err != nil {
		return "", c.wrap("get file", resp, err)
	}
	return string(raw), nil
}

// LineLink points at a line range of the source branch blob.
func (c *Client) LineLink(file string, start, end int) string {
	branch := ""
	c.mu.Lock()
	if c.mr != nil {
		branch = c.mr.SourceBranch
	}
	c.mu.Unlock()

	project := c.mrURL
	if i := strings.Index(project, "/-/merge_requests/"); i >= 0 {
		project = project[:i]
	} else if i := strings.Index(project, "/merge_requests/"); i >= 0 {
		project = project[:i]
	}
	link := fmt.Sprintf("%s/-/blob/%s/%s?ref_type=heads", project, branch, file)
	switch {
	case start < 0:
		return link
	case end <= start:
		return fmt.Sprintf("%s#L%d", link, start)
	default:
		return fmt.Sprintf("%s#L%d-%d", link, start, end)
	}
}

func (c *Client) PublishComment(ctx context.Context, body string, temporary bool) (*models.Comment, error) {
	note, resp, err := c.api.Notes.CreateMergeRequestNote(c.project, c.iid,
		&gl.CreateMergeRequestNoteOptions{Body: gl.Ptr(body)}, gl.WithContext(ctx))
	if err != nil {
		return nil, c.wrap("publish note", resp, err)
	}
	if temporary {
		c.mu.Lock()
		c.temporaryID = append(c.temporaryID, note.ID)
		c.mu.Unlock()
	}
	out := c.commentOf(note)
	return &out, nil
}

func (c *Client) EditComment(ctx context.Context, comment *models.Comment, body string) error {
	_, resp, err := c.api.Notes.UpdateMergeRequestNote(c.project, c.iid, int(comment.ID),
		&gl.UpdateMergeRequestNoteOptions{Body: gl.Ptr(body)}, gl.WithContext(ctx))
	if err != nil {
		return c.wrap("edit note", resp, err)
	}
	return nil
}

func (c *Client) RemoveComment(ctx context.Context, comment *models.Comment) error {
	resp, err := c.api.Notes.DeleteMergeRequestNote(c.project, c.iid, int(comment.ID), gl.WithContext(ctx))
	if err != nil {
		return c.wrap("remove note", resp, err)
	}
	return nil
}

func (c *Client) RemoveInitialComment(ctx context.Context) error {
	c.mu.Lock()
	ids := c.temporaryID
	c.temporaryID = nil
	c.mu.Unlock()

	for _, id := range ids {
		if resp, err := c.api.Notes.DeleteMergeRequestNote(c.project, c.iid, id, gl.WithContext(ctx)); err != nil {
			logger.Warn(ctx, "failed to remove temporary note", "note_id", id, "error", c.wrap("remove note", resp, err))
		}
	}
	return nil
}

func (c *Client) PublishPersistentComment(ctx context.Context, body string, opts vcs.PersistentCommentOptions) error {
	return vcs.PublishPersistent(ctx, c, body, opts)
}

func (c *Client) PublishDescription(ctx context.Context, title, body string) error {
	_, resp, err := c.api.MergeRequests.UpdateMergeRequest(c.project, c.iid, &gl.UpdateMergeRequestOptions{
		Title:       gl.Ptr(title),
		Description: gl.Ptr(body),
	}, gl.WithContext(ctx))
	if err != nil {
		return c.wrap("update merge request", resp, err)
	}
	return nil
}

func (c *Client) PublishLabels(ctx context.Context, labels []string) error {
	opt := gl.LabelOptions(labels)
	mr, resp, err := c.api.MergeRequests.UpdateMergeRequest(c.project, c.iid, &gl.UpdateMergeRequestOptions{
		Labels: &opt,
	}, gl.WithContext(ctx))
	if err != nil {
		return c.wrap("publish labels", resp, err)
	}
	c.mu.Lock()
	c.mr = mr
	c.mu.Unlock()
	return nil
}

// PublishInlineComments opens one discussion per comment. Comments GitLab
// rejects are posted as plain notes linking to the line instead.
func (c *Client) PublishInlineComments(ctx context.Context, comments []models.InlineComment) error {
	mr, err := c.mergeRequest(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, ic := range comments {
		pos := &gl.PositionOptions{
			BaseSHA:      gl.Ptr(mr.DiffRefs.BaseSha),
			StartSHA:     gl.Ptr(mr.DiffRefs.StartSha),
			HeadSHA:      gl.Ptr(mr.DiffRefs.HeadSha),
			PositionType: gl.Ptr("text"),
			NewPath:      gl.Ptr(ic.Path),
			OldPath:      gl.Ptr(ic.Path),
		}
		if ic.Side == "LEFT" {
			pos.OldLine = gl.Ptr(ic.Line)
		} else {
			pos.NewLine = gl.Ptr(ic.Line)
		}
		_, resp, err := c.api.Discussions.CreateMergeRequestDiscussion(c.project, c.iid,
			&gl.CreateMergeRequestDiscussionOptions{Body: gl.Ptr(ic.Body), Position: pos}, gl.WithContext(ctx))
		if err == nil {
			continue
		}
		logger.Debug(ctx, "inline discussion rejected, falling back to note", "path", ic.Path, "line", ic.Line, "error", err)
		fallback := fmt.Sprintf("**[%s](%s)**\n\n%s", ic.Path, c.LineLink(ic.Path, ic.Line, ic.Line), ic.Body)
		if _, ferr := c.PublishComment(ctx, fallback, false); ferr != nil {
			errs = append(errs, c.wrap("publish inline comment", resp, err))
		}
	}
	return errors.Join(errs...)
}

// PublishCodeSuggestions turns ```suggestion blocks into GitLab's
// multi-line suggestion syntax anchored at the first relevant line.
func (c *Client) PublishCodeSuggestions(ctx context.Context, suggestions []vcs.CodeSuggestion) error {
	comments := make([]models.InlineComment, 0, len(suggestions))
	for _, s := range suggestions {
		if s.RelevantStart <= 0 || s.RelevantEnd < s.RelevantStart {
			logger.Debug(ctx, "skipping suggestion without lines", "file", s.RelevantFile)
			continue
		}
		body := strings.ReplaceAll(s.Body, "```suggestion", fmt.Sprintf("```suggestion:-0+%d", s.RelevantEnd-s.RelevantStart))
		comments = append(comments, models.InlineComment{Body: body, Path: s.RelevantFile, Line: s.RelevantStart, Side: "RIGHT"})
	}
	return c.PublishInlineComments(ctx, comments)
}

// ReplyToComment posts a new note. GitLab threads are addressed by
// discussion ID, which notes from the hook payload do not carry.
func (c *Client) ReplyToComment(ctx context.Context, _ int64, body string) error {
	_, err := c.PublishComment(ctx, body, false)
	return err
}

func (c *Client) AddEyesReaction(ctx context.Context, commentID int64) (int64, error) {
	award, resp, err := c.api.AwardEmoji.CreateMergeRequestAwardEmojiOnNote(c.project, c.iid, int(commentID),
		&gl.CreateAwardEmojiOptions{Name: "eyes"}, gl.WithContext(ctx))
	if err != nil {
		return 0, c.wrap("add award emoji", resp, err)
	}
	return int64(award.ID), nil
}

func (c *Client) RemoveReaction(ctx context.Context, commentID, reactionID int64) error {
	resp, err := c.api.AwardEmoji.DeleteMergeRequestAwardEmojiOnNote(c.project, c.iid, int(commentID), int(reactionID), gl.WithContext(ctx))
	if err != nil {
		return c.wrap("remove award emoji", resp, err)
	}
	return nil
}

func (c *Client) AutoApprove(ctx context.Context) error {
	_, resp, err := c.api.MergeRequestApprovals.ApproveMergeRequest(c.project, c.iid, nil, gl.WithContext(ctx))
	if err != nil {
		return c.wrap("approve merge request", resp, err)
	}
	return nil
}

func (c *Client) IsSupported(capability vcs.Capability) bool {
	return capability != vcs.CapMultipleInlineComments
}

// Issue fetches an issue of project repo, or of the merge request's own
// project when repo is empty.
func (c *Client) Issue(ctx context.Context, repo string, number int) (*models.Ticket, error) {
	if repo == "" {
		repo = c.project
	}
	issue, resp, err := c.api.Issues.GetIssue(repo, number, gl.WithContext(ctx))
	if err != nil {
		return nil, c.wrap("get issue", resp, err)
	}
	return &models.Ticket{
		TicketID:  issue.IID,
		TicketURL: issue.WebURL,
		Title:     issue.Title,
		Body:      issue.Description,
		Labels:    strings.Join(issue.Labels, ", "),
	}, nil
}

// OpenMergeRequestURLs lists the web URLs of the open merge requests whose
// source branch is branch. Push hooks use it to find the MR to refresh.
func OpenMergeRequestURLs(ctx context.Context, api *gl.Client, project any, branch string) ([]string, error) {
	mrs, _, err := api.MergeRequests.ListProjectMergeRequests(project, &gl.ListProjectMergeRequestsOptions{
		SourceBranch: gl.Ptr(branch),
		State:        gl.Ptr("opened"),
	}, gl.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list merge requests for %s: %w", branch, err)
	}
	urls := make([]string, 0, len(mrs))
	for _, mr := range mrs {
		urls = append(urls, mr.WebURL)
	}
	return urls, nil
}

// MergeRequestURLsByCommit lists the web URLs of the merge requests that
// contain sha.
func MergeRequestURLsByCommit(ctx context.Context, api *gl.Client, project any, sha string) ([]string, error) {
	mrs, _, err := api.Commits.ListMergeRequestsByCommit(project, sha, gl.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list merge requests for commit %s: %w", sha, err)
	}
	urls := make([]string, 0, len(mrs))
	for _, mr := range mrs {
		urls = append(urls, mr.WebURL)
	}
	return urls, nil
}

func (c *Client) wrap(operation string, resp *gl.Response, err error) error {
	if resp != nil && resp.Response != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return domainErrors.ErrTokenMissing.WithError(err).
				WithContext("provider", "gitlab").
				WithContext("operation", operation)
		case http.StatusNotFound:
			return domainErrors.ErrRepositoryNotFound.WithError(err).
				WithContext("operation", operation).
				WithContext("project", c.project)
		}
	}
	return fmt.Errorf("gitlab %s for %s: %w", operation, c.PRID(), err)
}
