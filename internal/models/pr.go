package models

import "time"

// EditType classifies how a file changed in a pull request.
type EditType string

const (
	EditTypeAdded    EditType = "ADDED"
	EditTypeDeleted  EditType = "DELETED"
	EditTypeModified EditType = "MODIFIED"
	EditTypeRenamed  EditType = "RENAMED"
	EditTypeUnknown  EditType = "UNKNOWN"
)

type (
	// PullRequest is the provider-neutral view of a PR / MR.
	PullRequest struct {
		Number       int
		Title        string
		Description  string
		SourceBranch string
		TargetBranch string
		Author       string
		State        string
		Draft        bool
		Merged       bool
		URL          string
		HeadSHA      string
		BaseSHA      string
		Labels       []string
		CreatedAt    time.Time
		UpdatedAt    time.Time
		MergedAt     time.Time
		Additions    int
		Deletions    int
		ChangedFiles int
		Commits      int
	}

	// FilePatchInfo holds one changed file with its contents and unified patch.
	FilePatchInfo struct {
		BaseFile      string
		HeadFile      string
		Patch         string
		Filename      string
		Tokens        int
		EditType      EditType
		OldFilename   string
		NumPlusLines  int
		NumMinusLines int
		Language      string
	}

	// Comment is a PR conversation comment or an inline review comment.
	Comment struct {
		ID        int64
		Author    string
		Body      string
		URL       string
		Path      string
		Line      int
		CreatedAt time.Time
		IsBot     bool
	}

	// Commit represents a commit included in the PR.
	Commit struct {
		SHA     string
		Message string
		Date    time.Time
		URL     string
	}
)

// NewFilePatchInfo builds a FilePatchInfo with token count unset.
func NewFilePatchInfo(baseFile, headFile, patch, filename string, editType EditType) FilePatchInfo {
	return FilePatchInfo{
		BaseFile: baseFile,
		HeadFile: headFile,
		Patch:    patch,
		Filename: filename,
		Tokens:   -1,
		EditType: editType,
	}
}

type ProgressEventType string

const (
	ProgressFetchingPR ProgressEventType = "fetching_pr"
	ProgressPrediction ProgressEventType = "prediction"
	ProgressFallback   ProgressEventType = "fallback_model"
	ProgressPublishing ProgressEventType = "publishing"
	ProgressGeneric    ProgressEventType = "generic_info"
)

// ProgressEvent reports tool progress to interactive front ends.
type ProgressEvent struct {
	Type    ProgressEventType
	Message string
	Data    map[string]interface{}
}
