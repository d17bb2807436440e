// Package bitbucket implements the pull request provider for Bitbucket Cloud
// on top of its 2.0 REST API.
package bitbucket

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/khulnasoft/pr-insight/internal/httpclient"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/regex"
	"github.com/khulnasoft/pr-insight/internal/vcs"
)

var _ vcs.Provider = (*Client)(nil)

const defaultAPIURL = "https://api.bitbucket.org/2.0"

type (
	link struct {
		Href string `json:"href"`
	}

	links struct {
		HTML link `json:"html"`
	}

	user struct {
		DisplayName string `json:"display_name"`
		Nickname    string `json:"nickname"`
		Type        string `json:"type"`
	}

	endpoint struct {
		Branch struct {
			Name string `json:"name"`
		} `json:"branch"`
		Commit struct {
			Hash string `json:"hash"`
		} `json:"commit"`
	}

	pullRequest struct {
		ID          int       `json:"id"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		State       string    `json:"state"`
		Author      user      `json:"author"`
		Source      endpoint  `json:"source"`
		Destination endpoint  `json:"destination"`
		Links       links     `json:"links"`
		CreatedOn   time.Time `json:"created_on"`
		UpdatedOn   time.Time `json:"updated_on"`
	}

	diffStat struct {
		Status string `json:"status"`
		Old    *struct {
			Path string `json:"path"`
		} `json:"old"`
		New *struct {
			Path string `json:"path"`
		} `json:"new"`
		LinesAdded   int `json:"lines_added"`
		LinesRemoved int `json:"lines_removed"`
	}

	commit struct {
		Hash    string    `json:"hash"`
		Message string    `json:"message"`
		Date    time.Time `json:"date"`
		Links   links     `json:"links"`
	}

	content struct {
		Raw string `json:"raw"`
	}

	inline struct {
		Path string `json:"path"`
		To   *int   `json:"to,omitempty"`
		From *int   `json:"from,omitempty"`
	}

	comment struct {
		ID        int64     `json:"id"`
		Content   content   `json:"content"`
		User      *user     `json:"user"`
		Links     *links    `json:"links"`
		Inline    *inline   `json:"inline"`
		CreatedOn time.Time `json:"created_on"`
	}

	commentRequest struct {
		Content content `json:"content"`
		Inline  *inline `json:"inline,omitempty"`
		Parent  *parent `json:"parent,omitempty"`
	}

	parent struct {
		ID int64 `json:"id"`
	}

	page[T any] struct {
		Values []T    `json:"values"`
		Next   string `json:"next"`
	}
)

// Client is the Bitbucket Cloud pull request provider.
type Client struct {
	api       *httpclient.Client
	settings  *config.Settings
	workspace string
	repo      string
	number    int
	prURL     string

	mu          sync.Mutex
	pr          *pullRequest
	files       []models.FilePatchInfo
	commits     []commit
	temporaryID []int64
}

// ParsePRURL returns workspace, repository slug and PR number.
func ParsePRURL(prURL string) (workspace, repo string, number int, err error) {
	m := regex.BitbucketPRURL.FindStringSubmatch(strings.TrimSpace(prURL))
	if m == nil {
		return "", "", 0, domainErrors.ErrInvalidPRURL.WithContext("url", prURL)
	}
	number, err = strconv.Atoi(m[3])
	if err != nil {
		return "", "", 0, domainErrors.ErrInvalidPRURL.WithContext("url", prURL).WithError(err)
	}
	return m[1], m[2], number, nil
}

// New builds a provider using bitbucket.bearer_token.
func New(s *config.Settings, prURL string) (*Client, error) {
	if s.Bitbucket.BearerToken == "" {
		return nil, domainErrors.ErrTokenMissing.
			WithContext("provider", "bitbucket").
			WithSuggestion("set bitbucket.bearer_token or BITBUCKET__BEARER_TOKEN")
	}
	base := s.Bitbucket.APIURL
	if base == "" {
		base = defaultAPIURL
	}
	return NewWithClient(httpclient.New(base, httpclient.Bearer(s.Bitbucket.BearerToken)), s, prURL)
}

func NewWithClient(api *httpclient.Client, s *config.Settings, prURL string) (*Client, error) {
	workspace, repo, number, err := ParsePRURL(prURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		api:       api,
		settings:  s,
		workspace: workspace,
		repo:      repo,
		number:    number,
		prURL:     strings.TrimSuffix(prURL, "/"),
	}, nil
}

func (c *Client) Name() string  { return "bitbucket" }
func (c *Client) PRURL() string { return c.prURL }
func (c *Client) PRID() string  { return fmt.Sprintf("%s/%s/%d", c.workspace, c.repo, c.number) }

func (c *Client) repoPath() string {
	return fmt.Sprintf("repositories/%s/%s", url.PathEscape(c.workspace), url.PathEscape(c.repo))
}

func (c *Client) prPath(suffix string) string {
	return fmt.Sprintf("%s/pullrequests/%d%s", c.repoPath(), c.number, suffix)
}

func (c *Client) pullRequest(ctx context.Context) (*pullRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pr != nil {
		return c.pr, nil
	}
	logger.FromContext(ctx).Debug("fetching bitbucket pull request", "repo", c.workspace+"/"+c.repo, "pr_number", c.number)

	var pr pullRequest
	if err := c.api.JSON(ctx, http.MethodGet, c.prPath(""), nil, &pr); err != nil {
		return nil, c.wrap("get PR", err)
	}
	c.pr = &pr
	return &pr, nil
}

func (c *Client) PR(ctx context.Context) (*models.PullRequest, error) {
	pr, err := c.pullRequest(ctx)
	if err != nil {
		return nil, err
	}
	return &models.PullRequest{
		Number:       pr.ID,
		Title:        pr.Title,
		Description:  pr.Description,
		SourceBranch: pr.Source.Branch.Name,
		TargetBranch: pr.Destination.Branch.Name,
		Author:       pr.Author.DisplayName,
		State:        strings.ToLower(pr.State),
		Merged:       pr.State == "MERGED",
		URL:          pr.Links.HTML.Href,
		HeadSHA:      pr.Source.Commit.Hash,
		BaseSHA:      pr.Destination.Commit.Hash,
		CreatedAt:    pr.CreatedOn,
		UpdatedAt:    pr.UpdatedOn,
	}, nil
}

// paginate follows "next" links until exhausted.
func paginate[T any](ctx context.Context, api *httpclient.Client, path string) ([]T, error) {
	var all []T
	for path != "" {
		var p page[T]
		if err := api.JSON(ctx, http.MethodGet, path, nil, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Values...)
		path = p.Next
	}
	return all, nil
}

func (c *Client) diffStats(ctx context.Context) ([]diffStat, error) {
	stats, err := paginate[diffStat](ctx, c.api, c.prPath("/diffstat?pagelen=100"))
	if err != nil {
		return nil, c.wrap("get diffstat", err)
	}
	return stats, nil
}

func (s diffStat) path() string {
	if s.New != nil {
		return s.New.Path
	}
	if s.Old != nil {
		return s.Old.Path
	}
	return ""
}

func (c *Client) Files(ctx context.Context) ([]string, error) {
	stats, err := c.diffStats(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(stats))
	for _, s := range stats {
		out = append(out, s.path())
	}
	return out, nil
}

// DiffFiles splits the PR's unified diff per file and pairs each patch with
// its diffstat entry.
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
	stats, err := c.diffStats(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := c.api.Raw(ctx, c.prPath("/diff"))
	if err != nil {
		return nil, c.wrap("get diff", err)
	}
	patches := SplitDiff(raw)

	log := logger.FromContext(ctx)
	out := make([]models.FilePatchInfo, 0, len(stats))
	for _, s := range stats {
		editType := editTypeOf(s.Status)
		name := s.path()
		var base, head string
		if !c.settings.Bitbucket.AvoidFullFiles {
			if editType != models.EditTypeAdded && s.Old != nil {
				if base, err = c.FileContent(ctx, s.Old.Path, pr.Destination.Commit.Hash); err != nil {
					log.Debug("could not load base file", "file", s.Old.Path, "error", err)
				}
			}
			if editType != models.EditTypeDeleted {
				if head, err = c.FileContent(ctx, name, pr.Source.Commit.Hash); err != nil {
					log.Debug("could not load head file", "file", name, "error", err)
				}
			}
		}
		info := models.NewFilePatchInfo(base, head, patches[name], name, editType)
		if editType == models.EditTypeRenamed && s.Old != nil {
			info.OldFilename = s.Old.Path
		}
		info.NumPlusLines = s.LinesAdded
		info.NumMinusLines = s.LinesRemoved
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
	case "modified":
		return models.EditTypeModified
	}
	return models.EditTypeUnknown
}

// SplitDiff maps each file of a multi-file unified diff to its hunks. The
// git headers are dropped; patches start at the first "@@" line.
func SplitDiff(raw string) map[string]string {
	out := map[string]string{}
	var (
		name  string
		hunks []string
	)
	flush := func() {
		if name != "" {
			out[name] = strings.Join(hunks, "\n")
		}
		hunks = nil
	}
	inHunks := false
	for _, line := range diff.SplitLines(raw) {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
			name = ""
			if i := strings.LastIndex(line, " b/"); i >= 0 {
				name = line[i+3:]
			}
			inHunks = false
			continue
		}
		if !inHunks {
			if strings.HasPrefix(line, "+++ b/") {
				name = strings.TrimPrefix(line, "+++ b/")
			}
			if !strings.HasPrefix(line, "@@") {
				continue
			}
			inHunks = true
		}
		hunks = append(hunks, line)
	}
	flush()
	return out
}

func (c *Client) Languages(ctx context.Context) (map[string]int, error) {
	var repo struct {
		Language string `json:"language"`
	}
	if err := c.api.JSON(ctx, http.MethodGet, c.repoPath(), nil, &repo); err != nil {
		return nil, c.wrap("get repository", err)
	}
	if repo.Language == "" {
		return map[string]int{}, nil
	}
	return map[string]int{repo.Language: 100}, nil
}

func (c *Client) listCommits(ctx context.Context) ([]commit, error) {
	c.mu.Lock()
	if c.commits != nil {
		defer c.mu.Unlock()
		return c.commits, nil
	}
	c.mu.Unlock()

	commits, err := paginate[commit](ctx, c.api, c.prPath("/commits"))
	if err != nil {
		return nil, c.wrap("list commits", err)
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
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(cm.Message))
	}
	return vcs.ClipDescription(b.String(), c.settings.Config.MaxCommitsTokens), nil
}

func (c *Client) LatestCommitURL(ctx context.Context) (string, error) {
	commits, err := c.listCommits(ctx)
	if err != nil || len(commits) == 0 {
		return "", err
	}
	return commits[len(commits)-1].Links.HTML.Href, nil
}

// Labels are not a Bitbucket concept.
func (c *Client) Labels(context.Context, bool) ([]string, error) { return nil, nil }

func (c *Client) PublishLabels(ctx context.Context, labels []string) error {
	logger.Debug(ctx, "bitbucket does not support labels", "labels", labels)
	return nil
}

func (c *Client) IssueComments(ctx context.Context) ([]models.Comment, error) {
	comments, err := paginate[comment](ctx, c.api, c.prPath("/comments?pagelen=100"))
	if err != nil {
		return nil, c.wrap("list comments", err)
	}
	out := make([]models.Comment, 0, len(comments))
	for _, cm := range comments {
		out = append(out, commentOf(cm))
	}
	return out, nil
}

func commentOf(cm comment) models.Comment {
	out := models.Comment{
		ID:        cm.ID,
		Body:      cm.Content.Raw,
		CreatedAt: cm.CreatedOn,
	}
	if cm.User != nil {
		out.Author = cm.User.DisplayName
		out.IsBot = cm.User.Type == "app_user" || regex.BotUsername.MatchString(cm.User.Nickname)
	}
	if cm.Links != nil {
		out.URL = cm.Links.HTML.Href
	}
	if cm.Inline != nil {
		out.Path = cm.Inline.Path
		if cm.Inline.To != nil {
			out.Line = *cm.Inline.To
		}
	}
	return out
}

func (c *Client) RepoSettings(ctx context.Context) ([]byte, error) {
	pr, err := c.pullRequest(ctx)
	if err != nil {
		return nil, err
	}
	content, err := c.FileContent(ctx, config.LocalSettingsFile, pr.Destination.Branch.Name)
	if err != nil {
		if errors.Is(err, domainErrors.ErrRepositoryNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []byte(content), nil
}

func (c *Client) FileContent(ctx context.Context, path, ref string) (string, error) {
	if ref == "" {
		pr, err := c.pullRequest(ctx)
		if err != nil {
			return "", err
		}
		ref = pr.Source.Commit.Hash
	}
	out, err := c.api.Raw(ctx, fmt.Sprintf("%s/src/%s/%s", c.repoPath(), url.PathEscape(ref), path))
	if err != nil {
		return "", c.wrap("get file", err)
	}
	return out, nil
}

func (c *Client) LineLink(file string, start, _ int) string {
	if start < 0 {
		return fmt.Sprintf("%s/#L%s", c.prURL, file)
	}
	return fmt.Sprintf("%s/#L%sT%d", c.prURL, file, start)
}

func (c *Client) postComment(ctx context.Context, cm commentRequest) (*comment, error) {
	var created comment
	if err := c.api.JSON(ctx, http.MethodPost, c.prPath("/comments"), cm, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) PublishComment(ctx context.Context, body string, temporary bool) (*models.Comment, error) {
	created, err := c.postComment(ctx, commentRequest{Content: content{Raw: body}})
	if err != nil {
		return nil, c.wrap("publish comment", err)
	}
	if temporary {
		c.mu.Lock()
		c.temporaryID = append(c.temporaryID, created.ID)
		c.mu.Unlock()
	}
	out := commentOf(*created)
	return &out, nil
}

func (c *Client) EditComment(ctx context.Context, cm *models.Comment, body string) error {
	path := c.prPath(fmt.Sprintf("/comments/%d", cm.ID))
	if err := c.api.JSON(ctx, http.MethodPut, path, commentRequest{Content: content{Raw: body}}, nil); err != nil {
		return c.wrap("edit comment", err)
	}
	return nil
}

func (c *Client) RemoveComment(ctx context.Context, cm *models.Comment) error {
	if err := c.api.JSON(ctx, http.MethodDelete, c.prPath(fmt.Sprintf("/comments/%d", cm.ID)), nil, nil); err != nil {
		return c.wrap("remove comment", err)
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

func (c *Client) PublishDescription(ctx context.Context, title, body string) error {
	payload := map[string]string{"title": title, "description": body}
	if err := c.api.JSON(ctx, http.MethodPut, c.prPath(""), payload, nil); err != nil {
		return c.wrap("update PR", err)
	}
	return nil
}

// PublishInlineComments posts one inline comment per entry; Bitbucket has no
// batch review endpoint.
func (c *Client) PublishInlineComments(ctx context.Context, comments []models.InlineComment) error {
	var errs []error
	for _, ic := range comments {
		in := &inline{Path: ic.Path}
		line := ic.Line
		if ic.Side == "LEFT" {
			in.From = &line
		} else {
			in.To = &line
		}
		if _, err := c.postComment(ctx, commentRequest{Content: content{Raw: ic.Body}, Inline: in}); err != nil {
			errs = append(errs, c.wrap("publish inline comment", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Client) PublishCodeSuggestions(ctx context.Context, suggestions []vcs.CodeSuggestion) error {
	comments := make([]models.InlineComment, 0, len(suggestions))
	for _, s := range suggestions {
		if s.RelevantEnd <= 0 {
			continue
		}
		comments = append(comments, models.InlineComment{Body: s.Body, Path: s.RelevantFile, Line: s.RelevantEnd, Side: "RIGHT"})
	}
	return c.PublishInlineComments(ctx, comments)
}

func (c *Client) ReplyToComment(ctx context.Context, commentID int64, body string) error {
	if _, err := c.postComment(ctx, commentRequest{Content: content{Raw: body}, Parent: &parent{ID: commentID}}); err != nil {
		return c.wrap("reply to comment", err)
	}
	return nil
}

// AddEyesReaction is a no-op: Bitbucket comments have no reactions.
func (c *Client) AddEyesReaction(context.Context, int64) (int64, error) { return 0, nil }

func (c *Client) RemoveReaction(context.Context, int64, int64) error { return nil }

func (c *Client) AutoApprove(ctx context.Context) error {
	if err := c.api.JSON(ctx, http.MethodPost, c.prPath("/approve"), nil, nil); err != nil {
		return c.wrap("approve PR", err)
	}
	return nil
}

func (c *Client) IsSupported(capability vcs.Capability) bool {
	switch capability {
	case vcs.CapGetLabels, vcs.CapGFMDetails, vcs.CapPublishInlineComments,
		vcs.CapPublishFileComments, vcs.CapMultipleInlineComments:
		return false
	}
	return true
}

func (c *Client) wrap(operation string, err error) error {
	switch httpclient.StatusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domainErrors.ErrTokenMissing.WithError(err).
			WithContext("provider", "bitbucket").
			WithContext("operation", operation)
	case http.StatusNotFound:
		return domainErrors.ErrRepositoryNotFound.WithError(err).
			WithContext("operation", operation).
			WithContext("repo", c.workspace+"/"+c.repo)
	}
	return fmt.Errorf("bitbucket %s for %s: %w", operation, c.PRID(), err)
}
