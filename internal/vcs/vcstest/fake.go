// Package vcstest provides an in-memory git provider for tool tests.
package vcstest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/vcs"
)

var _ vcs.Provider = (*Fake)(nil)

// Fake records everything published to it. Set the exported fields before
// use; read the Published* fields afterwards.
type Fake struct {
	mu sync.Mutex

	URL          string
	PullRequest  models.PullRequest
	Patches      []models.FilePatchInfo
	Langs        map[string]int
	Commits      []models.Commit
	CurrentTags  []string
	Comments     []models.Comment
	Settings     []byte
	Contents     map[string]string
	Capabilities map[vcs.Capability]bool
	Tickets      map[string]*models.Ticket
	Checks       []models.CheckRun

	Published       []string
	Temporary       []string
	Edited          map[int64]string
	Removed         []int64
	Description     *struct{ Title, Body string }
	PublishedLabels []string
	Inline          []models.InlineComment
	Suggestions     []vcs.CodeSuggestion
	Replies         map[int64]string
	Reactions       int
	Approved        bool
	SettingsReads   int

	nextID int64
}

// New returns a Fake with GitHub-like capabilities.
func New(pr models.PullRequest, files ...models.FilePatchInfo) *Fake {
	return &Fake{
		URL:         pr.URL,
		PullRequest: pr,
		Patches:     files,
		Langs:       map[string]int{},
		Contents:    map[string]string{},
		Capabilities: map[vcs.Capability]bool{
			vcs.CapGFMMarkdown:            true,
			vcs.CapGFMDetails:             true,
			vcs.CapGetLabels:              true,
			vcs.CapGetIssueComments:       true,
			vcs.CapPublishFileComments:    true,
			vcs.CapCreateInlineComment:    true,
			vcs.CapPublishInlineComments:  true,
			vcs.CapMultipleInlineComments: true,
		},
		Edited:  map[int64]string{},
		Replies: map[int64]string{},
		Tickets: map[string]*models.Ticket{},
	}
}

func (f *Fake) Name() string  { return "fake" }
func (f *Fake) PRURL() string { return f.URL }
func (f *Fake) PRID() string  { return fmt.Sprintf("fake#%d", f.PullRequest.Number) }

func (f *Fake) PR(context.Context) (*models.PullRequest, error) {
	pr := f.PullRequest
	return &pr, nil
}

func (f *Fake) DiffFiles(context.Context) ([]models.FilePatchInfo, error) {
	return append([]models.FilePatchInfo(nil), f.Patches...), nil
}

func (f *Fake) Files(context.Context) ([]string, error) {
	out := make([]string, 0, len(f.Patches))
	for _, p := range f.Patches {
		out = append(out, p.Filename)
	}
	return out, nil
}

func (f *Fake) Languages(context.Context) (map[string]int, error) { return f.Langs, nil }

func (f *Fake) CommitMessages(context.Context) (string, error) {
	var s string
	for i, c := range f.Commits {
		s += fmt.Sprintf("%d. %s\n", i+1, c.Message)
	}
	return s, nil
}

func (f *Fake) Labels(context.Context, bool) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.CurrentTags...), nil
}

func (f *Fake) IssueComments(context.Context) ([]models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Comment(nil), f.Comments...), nil
}

func (f *Fake) RepoSettings(context.Context) ([]byte, error) {
	f.SettingsReads++
	return f.Settings, nil
}

func (f *Fake) FileContent(_ context.Context, path, _ string) (string, error) {
	c, ok := f.Contents[path]
	if !ok {
		return "", fmt.Errorf("file %s not found", path)
	}
	return c, nil
}

func (f *Fake) LatestCommitURL(context.Context) (string, error) {
	return f.URL + "/commits/" + f.PullRequest.HeadSHA, nil
}

func (f *Fake) LineLink(file string, start, end int) string {
	if start < 0 {
		return fmt.Sprintf("%s/files#%s", f.URL, file)
	}
	return fmt.Sprintf("%s/files#%s-L%d-L%d", f.URL, file, start, end)
}

func (f *Fake) PublishComment(_ context.Context, body string, temporary bool) (*models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := models.Comment{ID: f.nextID, Body: body, URL: fmt.Sprintf("%s#comment-%d", f.URL, f.nextID), IsBot: true}
	if temporary {
		f.Temporary = append(f.Temporary, body)
	} else {
		f.Published = append(f.Published, body)
	}
	f.Comments = append(f.Comments, c)
	return &c, nil
}

func (f *Fake) EditComment(_ context.Context, c *models.Comment, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Edited[c.ID] = body
	for i := range f.Comments {
		if f.Comments[i].ID == c.ID {
			f.Comments[i].Body = body
		}
	}
	return nil
}

func (f *Fake) RemoveComment(_ context.Context, c *models.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Removed = append(f.Removed, c.ID)
	return nil
}

func (f *Fake) RemoveInitialComment(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Temporary = nil
	return nil
}

func (f *Fake) PublishPersistentComment(ctx context.Context, body string, opts vcs.PersistentCommentOptions) error {
	return vcs.PublishPersistent(ctx, f, body, opts)
}

func (f *Fake) PublishDescription(_ context.Context, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Description = &struct{ Title, Body string }{title, body}
	return nil
}

func (f *Fake) PublishLabels(_ context.Context, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PublishedLabels = append([]string(nil), labels...)
	sort.Strings(f.PublishedLabels)
	f.CurrentTags = labels
	return nil
}

func (f *Fake) PublishInlineComments(_ context.Context, comments []models.InlineComment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Inline = append(f.Inline, comments...)
	return nil
}

func (f *Fake) PublishCodeSuggestions(_ context.Context, suggestions []vcs.CodeSuggestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Suggestions = append(f.Suggestions, suggestions...)
	return nil
}

func (f *Fake) ReplyToComment(_ context.Context, id int64, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Replies[id] = body
	return nil
}

func (f *Fake) AddEyesReaction(context.Context, int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reactions++
	return int64(f.Reactions), nil
}

func (f *Fake) RemoveReaction(context.Context, int64, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reactions--
	return nil
}

func (f *Fake) AutoApprove(context.Context) error {
	f.Approved = true
	return nil
}

func (f *Fake) IsSupported(c vcs.Capability) bool { return f.Capabilities[c] }

// Issue implements vcs.IssueFetcher.
func (f *Fake) Issue(_ context.Context, repo string, number int) (*models.Ticket, error) {
	t, ok := f.Tickets[fmt.Sprintf("%s#%d", repo, number)]
	if !ok {
		return nil, fmt.Errorf("issue %s#%d not found", repo, number)
	}
	return t, nil
}

// FailedCheckRuns implements vcs.CheckRunsFetcher.
func (f *Fake) FailedCheckRuns(context.Context) ([]models.CheckRun, error) {
	return f.Checks, nil
}
