// Package vcs defines the git provider contract shared by the GitHub,
// GitLab, Bitbucket, Azure DevOps and CodeCommit adapters.
package vcs

import (
	"context"
	"time"

	"github.com/khulnasoft/pr-insight/internal/models"
)

// Capability names an optional provider feature checked with IsSupported.
type Capability string

const (
	CapGFMMarkdown            Capability = "gfm_markdown"
	CapGFMDetails             Capability = "gfm_details"
	CapGetLabels              Capability = "get_labels"
	CapGetIssueComments       Capability = "get_issue_comments"
	CapPublishFileComments    Capability = "publish_file_comments"
	CapCreateInlineComment    Capability = "create_inline_comment"
	CapPublishInlineComments  Capability = "publish_inline_comments"
	CapMultipleInlineComments Capability = "multiple_inline_comments"
)

// Provider is a pull request on one git hosting service.
type Provider interface {
	Name() string
	PRURL() string
	// PRID identifies the PR in logs, e.g. "owner/repo#12".
	PRID() string

	PR(ctx context.Context) (*models.PullRequest, error)
	DiffFiles(ctx context.Context) ([]models.FilePatchInfo, error)
	Files(ctx context.Context) ([]string, error)
	Languages(ctx context.Context) (map[string]int, error)
	CommitMessages(ctx context.Context) (string, error)
	Labels(ctx context.Context, update bool) ([]string, error)
	IssueComments(ctx context.Context) ([]models.Comment, error)
	// RepoSettings returns the raw .pr_insight.toml of the default branch, or
	// nil when the repository has none.
	RepoSettings(ctx context.Context) ([]byte, error)
	FileContent(ctx context.Context, path, ref string) (string, error)
	LatestCommitURL(ctx context.Context) (string, error)
	LineLink(file string, start, end int) string

	PublishComment(ctx context.Context, body string, temporary bool) (*models.Comment, error)
	EditComment(ctx context.Context, comment *models.Comment, body string) error
	RemoveComment(ctx context.Context, comment *models.Comment) error
	// RemoveInitialComment deletes the temporary comments published so far.
	RemoveInitialComment(ctx context.Context) error
	PublishPersistentComment(ctx context.Context, body string, opts PersistentCommentOptions) error
	PublishDescription(ctx context.Context, title, body string) error
	PublishLabels(ctx context.Context, labels []string) error
	PublishInlineComments(ctx context.Context, comments []models.InlineComment) error
	PublishCodeSuggestions(ctx context.Context, suggestions []CodeSuggestion) error
	ReplyToComment(ctx context.Context, commentID int64, body string) error
	AddEyesReaction(ctx context.Context, commentID int64) (int64, error)
	RemoveReaction(ctx context.Context, commentID, reactionID int64) error
	AutoApprove(ctx context.Context) error

	IsSupported(c Capability) bool
}

// CodeSuggestion is a committable replacement of a line range.
type CodeSuggestion struct {
	Body          string
	RelevantFile  string
	RelevantStart int
	RelevantEnd   int
}

// PersistentCommentOptions controls PublishPersistentComment.
type PersistentCommentOptions struct {
	InitialHeader      string
	UpdateHeader       bool
	Name               string
	FinalUpdateMessage bool
}

// IssueFetcher is implemented by providers that can read linked issues.
type IssueFetcher interface {
	Issue(ctx context.Context, repo string, number int) (*models.Ticket, error)
}

// CheckRunsFetcher is implemented by providers exposing CI results.
type CheckRunsFetcher interface {
	FailedCheckRuns(ctx context.Context) ([]models.CheckRun, error)
}

// IncrementalPR describes the commits added since the last review.
type IncrementalPR struct {
	IsIncremental     bool
	FirstNewCommitSHA string
	LastSeenCommitSHA string
	CommitsRange      []models.Commit
	PreviousReviewURL string
	LastReviewedAt    time.Time
	UnreviewedFiles   []string
}

// IncrementalProvider supports "/review -i".
type IncrementalProvider interface {
	IncrementalCommits(ctx context.Context) (*IncrementalPR, error)
}

// FileCommitter is implemented by providers that can commit a file to the
// PR branch.
type FileCommitter interface {
	CommitFile(ctx context.Context, path, content, message string) error
}

// CodeSearcher finds similar code across repositories.
type CodeSearcher interface {
	SearchCode(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// SearchResult is one code search hit.
type SearchResult struct {
	Repository string
	Path       string
	URL        string
	Score      float64
}
