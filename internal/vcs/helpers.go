package vcs

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/config"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/tokens"
)

const userDescriptionHeader = "### **user description**"

// generatedHeaders open a description written by the describe tool.
var generatedHeaders = []string{
	userDescriptionHeader,
	"### **pr type**",
	"### **pr description**",
	"### **pr labels**",
	"### **type**",
	"### **description**",
	"### **labels**",
	"### 🤖 generated by pr insight",
}

// defaultLabels are the describe tool's built-in PR types.
var defaultLabels = []string{"bug fix", "tests", "enhancement", "documentation", "other"}

// UserDescription returns the part of a PR description written by a human.
// Descriptions produced by the describe tool keep only their "User
// description" section.
func UserDescription(description string) string {
	description = strings.TrimSpace(description)
	lower := strings.ToLower(description)

	generated := false
	for _, h := range generatedHeaders {
		if strings.HasPrefix(lower, h) {
			generated = true
			break
		}
	}
	if !generated {
		return description
	}

	idx := strings.Index(lower, userDescriptionHeader)
	if idx < 0 {
		return ""
	}
	start := idx + len(userDescriptionHeader)
	end := len(description)
	for _, h := range generatedHeaders[1:] {
		if i := strings.Index(lower[start:], h); i >= 0 && start+i < end {
			end = start + i
		}
	}
	return strings.TrimSpace(description[start:end])
}

// ClipDescription bounds a PR description to maxTokens tokens.
func ClipDescription(description string, maxTokens int) string {
	if maxTokens <= 0 {
		return description
	}
	return tokens.ForModel("").ClipTokens(description, maxTokens, tokens.DefaultClip)
}

// PRDescription returns the PR body, clipped to config.max_description_tokens
// unless full is set.
func PRDescription(ctx context.Context, p Provider, s *config.Settings, full bool) (string, error) {
	pr, err := p.PR(ctx)
	if err != nil {
		return "", err
	}
	if full {
		return pr.Description, nil
	}
	return ClipDescription(pr.Description, s.Config.MaxDescriptionTokens), nil
}

// UserLabels keeps the labels a human added, dropping the ones the describe
// tool manages.
func UserLabels(s *config.Settings, current []string) []string {
	custom := s.CustomLabelNames()
	var out []string
	for _, label := range current {
		if slices.Contains(defaultLabels, strings.ToLower(label)) {
			continue
		}
		if s.Config.EnableCustomLabels && slices.Contains(custom, label) {
			continue
		}
		out = append(out, label)
	}
	return out
}

// IsReviewLabel reports labels set by the reviewer itself.
func IsReviewLabel(label string) bool {
	l := strings.ToLower(label)
	return strings.HasPrefix(l, "review effort") || strings.HasPrefix(l, "possible security concern")
}

// PublishPersistent edits the first comment starting with the header, or
// publishes a new comment when there is none.
func PublishPersistent(ctx context.Context, p Provider, body string, opts PersistentCommentOptions) error {
	comments, err := p.IssueComments(ctx)
	if err != nil {
		logger.Warn(ctx, "could not list comments, publishing a new one", "error", err)
		_, err = p.PublishComment(ctx, body, false)
		return err
	}

	for i := range comments {
		c := &comments[i]
		if !strings.HasPrefix(c.Body, opts.InitialHeader) {
			continue
		}
		latest, _ := p.LatestCommitURL(ctx)
		updated := body
		if opts.UpdateHeader {
			header := fmt.Sprintf("%s\n\n#### (%s updated until commit %s)\n", opts.InitialHeader, capitalize(opts.Name), latest)
			updated = strings.Replace(body, opts.InitialHeader, header, 1)
		}
		logger.Info(ctx, "persistent mode, updating comment", "comment_url", c.URL, "name", opts.Name)
		if err := p.EditComment(ctx, c, updated); err != nil {
			return err
		}
		if opts.FinalUpdateMessage {
			msg := fmt.Sprintf("**[Persistent %s](%s)** updated to latest commit %s", opts.Name, c.URL, latest)
			if _, err := p.PublishComment(ctx, msg, false); err != nil {
				return err
			}
		}
		return nil
	}

	_, err = p.PublishComment(ctx, body, false)
	return err
}

// BranchOf returns the PR source branch.
func BranchOf(pr *models.PullRequest) string {
	if pr == nil {
		return ""
	}
	return pr.SourceBranch
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
