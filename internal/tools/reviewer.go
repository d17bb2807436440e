package tools

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/compression"
	"github.com/khulnasoft/pr-insight/internal/diff"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/markdown"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/vcs"
	"github.com/khulnasoft/pr-insight/internal/yamlfix"
)

const (
	reviewPrompt = "pr_review_prompt"

	effortLabelPrefix   = "Review effort [1-5]: "
	securityLabel       = "Possible security concern"
	autoApprovalDocsURL = "https://github.com/khulnasoft/pr-insight/blob/main/docs/tools/review.md#auto-approval"

	reflectQuestionsHeader = "Questions to better understand the PR:"
	answerCommand          = "/answer"
)

var reviewYAMLKeys = []string{
	"ticket_compliance_check",
	"estimated_effort_to_review_[1-5]:",
	"security_concerns:",
	"key_issues_to_review:",
	"relevant_file:",
	"relevant_line:",
	"suggestion:",
}

// Reviewer produces the "PR Reviewer Guide" comment. In answer mode it also
// feeds the author's answers to earlier clarifying questions to the model.
type Reviewer struct {
	base
	answerMode  bool
	incremental bool
	autoApprove bool
}

// NewReviewer builds the review tool. "-i" requests an incremental review
// and "auto_approve" runs the approval flow instead of a review.
func NewReviewer(d Deps, args []string, answerMode bool) *Reviewer {
	r := &Reviewer{base: newBase(d, "review", args), answerMode: answerMode}
	if answerMode {
		r.command = "answer"
	}
	r.incremental = r.hasFlag("-i", "--incremental")
	r.autoApprove = r.hasFlag("auto_approve", "auto_approval", "approve")
	return r
}

func (r *Reviewer) Run(ctx context.Context) (string, error) {
	ctx = logger.With(ctx, "tool", r.command, "pr_url", r.Provider.PRURL())

	if r.autoApprove {
		return r.runAutoApprove(ctx)
	}

	files, err := r.Provider.DiffFiles(ctx)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		logger.Info(ctx, "PR has no files, skipping review")
		return "", nil
	}

	var src compression.Source = r.Provider
	incrementalLink := ""
	if r.incremental {
		inc, run, err := r.incrementalState(ctx)
		if err != nil {
			return "", err
		}
		if !run {
			return "", nil
		}
		if inc != nil && inc.PreviousReviewURL != "" {
			src = filteredSource{Provider: r.Provider, keep: inc.UnreviewedFiles}
			files = filterFiles(files, inc.UnreviewedFiles)
			incrementalLink = fmt.Sprintf("%s/commits/%s", strings.TrimRight(r.Provider.PRURL(), "/"), inc.FirstNewCommitSHA)
		}
	}

	r.progress(ctx, "preparing_review")

	vars, err := r.vars(ctx, len(files))
	if err != nil {
		return "", err
	}
	prediction, err := ai.RetryWithFallbackModels(ctx, r.Settings, ai.ModelRegular, func(ctx context.Context, model string) (string, error) {
		return r.predict(ctx, model, vars, src)
	})
	if err != nil {
		r.clearProgress(ctx)
		return "", err
	}

	data := yamlfix.Load(ctx, prediction, yamlfix.Options{
		KeysFix:  reviewYAMLKeys,
		FirstKey: "review",
		LastKey:  "security_concerns",
	})
	if data == nil {
		logger.Warn(ctx, "review prediction could not be parsed, nothing to publish")
		r.clearProgress(ctx)
		return "", nil
	}

	body, inline := r.render(ctx, data, files, incrementalLink)
	if body == "" {
		logger.Warn(ctx, "empty review, nothing to publish")
		r.clearProgress(ctx)
		return "", nil
	}
	if !r.publish() {
		return body, nil
	}

	if incrementalLink == "" {
		if err := r.setReviewLabels(ctx, data); err != nil {
			logger.Warn(ctx, "failed to set review labels", "error", err)
		}
	}
	if r.Settings.PRReviewer.PersistentComment && incrementalLink == "" {
		err = r.Provider.PublishPersistentComment(ctx, body, vcs.PersistentCommentOptions{
			InitialHeader:      markdown.ReviewHeader + " 🔍",
			UpdateHeader:       true,
			Name:               "review",
			FinalUpdateMessage: r.Settings.PRReviewer.FinalUpdateMessage,
		})
	} else {
		_, err = r.Provider.PublishComment(ctx, body, false)
	}
	r.clearProgress(ctx)
	if err != nil {
		return "", err
	}
	if len(inline) > 0 {
		if err := r.Provider.PublishInlineComments(ctx, inline); err != nil {
			logger.Warn(ctx, "failed to publish inline code comments", "error", err)
		}
	}
	logger.Info(ctx, "review published", "inline_comments", len(inline))
	return body, nil
}

// filteredSource narrows a provider's diff to the files of new commits.
type filteredSource struct {
	vcs.Provider
	keep []string
}

func (f filteredSource) DiffFiles(ctx context.Context) ([]models.FilePatchInfo, error) {
	files, err := f.Provider.DiffFiles(ctx)
	if err != nil {
		return nil, err
	}
	return filterFiles(files, f.keep), nil
}

func filterFiles(files []models.FilePatchInfo, keep []string) []models.FilePatchInfo {
	var out []models.FilePatchInfo
	for _, f := range files {
		if slices.Contains(keep, f.Filename) {
			out = append(out, f)
		}
	}
	return out
}

// incrementalState reports whether an incremental review should run.
func (r *Reviewer) incrementalState(ctx context.Context) (*vcs.IncrementalPR, bool, error) {
	ip, ok := r.Provider.(vcs.IncrementalProvider)
	if !ok {
		logger.Warn(ctx, "incremental review not supported by provider, running a full review", "provider", r.Provider.Name())
		return nil, true, nil
	}
	inc, err := ip.IncrementalCommits(ctx)
	if err != nil {
		return nil, false, err
	}
	if inc.PreviousReviewURL == "" {
		logger.Info(ctx, "no previous review found, running a full review")
		return inc, true, nil
	}
	if r.Settings.Config.IsAutoCommand && inc.FirstNewCommitSHA == "" {
		logger.Info(ctx, "incremental review enabled but there are no new commits")
		return inc, false, nil
	}
	if len(inc.UnreviewedFiles) == 0 {
		msg := r.msg("incremental_review_skipped", map[string]interface{}{"URL": inc.PreviousReviewURL})
		if r.publish() {
			if _, err := r.Provider.PublishComment(ctx, msg, false); err != nil {
				return nil, false, err
			}
		}
		logger.Info(ctx, "no files changed since previous review")
		return inc, false, nil
	}

	cfg := r.Settings.PRReviewer
	notEnoughCommits := len(inc.CommitsRange) < cfg.MinimalCommitsForIncrementalReview
	tooRecent := false
	if cfg.MinimalMinutesForIncrementalReview > 0 && !inc.LastReviewedAt.IsZero() {
		threshold := time.Now().Add(-time.Duration(cfg.MinimalMinutesForIncrementalReview) * time.Minute)
		tooRecent = inc.LastReviewedAt.After(threshold)
	}
	skip := notEnoughCommits && tooRecent
	if cfg.RequireAllThresholdsForIncrementalReview {
		skip = notEnoughCommits || tooRecent
	}
	if skip {
		logger.Info(ctx, "incremental review skipped, not enough new commits or too recent",
			"new_commits", len(inc.CommitsRange),
			"last_reviewed_at", inc.LastReviewedAt)
		return inc, false, nil
	}
	return inc, true, nil
}

func (r *Reviewer) vars(ctx context.Context, numFiles int) (map[string]any, error) {
	vars, _, err := r.prVars(ctx)
	if err != nil {
		return nil, err
	}
	cfg := r.Settings.PRReviewer
	vars["num_pr_files"] = numFiles
	vars["num_code_suggestions"] = cfg.NumCodeSuggestions
	vars["require_score"] = cfg.RequireScoreReview
	vars["require_tests"] = cfg.RequireTestsReview
	vars["require_estimate_effort_to_review"] = cfg.RequireEstimateEffortToReview
	vars["require_can_be_split_review"] = cfg.RequireCanBeSplitReview
	vars["require_security_review"] = cfg.RequireSecurityReview
	vars["extra_instructions"] = cfg.ExtraInstructions
	vars["is_ai_metadata"] = r.Settings.Config.EnableAIMetadata
	vars["question_str"] = ""
	vars["answer_str"] = ""
	if cfg.RequireTicketAnalysisReview {
		vars["related_tickets"] = r.relatedTickets(ctx, vars["description"].(string))
	}
	if r.answerMode {
		questions, answers, err := r.questionsAndAnswers(ctx)
		if err != nil {
			return nil, err
		}
		vars["question_str"] = questions
		vars["answer_str"] = answers
	}
	return vars, nil
}

// questionsAndAnswers finds the latest reflect comment and the "/answer"
// comment that follows it.
func (r *Reviewer) questionsAndAnswers(ctx context.Context) (questions, answers string, err error) {
	comments, err := r.Provider.IssueComments(ctx)
	if err != nil {
		return "", "", err
	}
	for i := len(comments) - 1; i >= 0; i-- {
		body := strings.TrimSpace(comments[i].Body)
		if answers == "" && strings.HasPrefix(body, answerCommand) {
			answers = strings.TrimSpace(strings.TrimPrefix(body, answerCommand))
			continue
		}
		if idx := strings.Index(body, reflectQuestionsHeader); idx >= 0 {
			questions = body[idx+len(reflectQuestionsHeader):]
			if end := strings.Index(questions, reflectAnswerHint); end >= 0 {
				questions = questions[:end]
			}
			questions = strings.TrimSpace(questions)
			break
		}
	}
	if questions == "" {
		logger.Warn(ctx, "no clarifying questions found on the PR")
	}
	return questions, answers, nil
}

func (r *Reviewer) predict(ctx context.Context, model string, vars map[string]any, src compression.Source) (string, error) {
	c, err := r.compressor(model, reviewPrompt, vars, true)
	if err != nil {
		return "", err
	}
	res, err := c.GetPRDiff(ctx, src)
	if err != nil {
		return "", err
	}
	vars = cloneVars(vars)
	vars["diff"] = res.Diff
	logger.Debug(ctx, "review diff prepared", "model", model, "tokens", c.Count(res.Diff), "remaining_files", len(res.Remaining))
	return r.chat(ctx, model, reviewPrompt, vars)
}

// render turns the parsed prediction into the comment body and the inline
// comments split out of code_feedback.
func (r *Reviewer) render(ctx context.Context, data yamlfix.Map, files []models.FilePatchInfo, incrementalLink string) (string, []models.InlineComment) {
	if review, ok := data.Sub("review"); ok {
		review.MoveToEnd("key_issues_to_review")
		data.Set("review", review)
	}

	var inline []models.InlineComment
	if data.Has("code_feedback") {
		if r.Settings.PRReviewer.InlineCodeComments {
			inline = r.inlineComments(data, files)
			data.Delete("code_feedback")
		} else {
			data.Set("code_feedback", r.linkCodeFeedback(data.List("code_feedback"), files))
		}
	}

	body := markdown.ConvertReview(ctx, data, markdown.ReviewOptions{
		GFM:         r.gfm(),
		IntroText:   r.Settings.PRReviewer.EnableIntroText,
		Incremental: incrementalLink,
		Links:       r.Provider,
		Files:       files,
	})
	if body == "" {
		return "", nil
	}
	if r.gfm() && r.Settings.PRReviewer.EnableHelpText {
		body += usageGuide("review")
	}
	body += r.relevantConfigs("pr_reviewer")
	return body, inline
}

func (r *Reviewer) linkCodeFeedback(items []any, files []models.FilePatchInfo) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		m, ok := it.(yamlfix.Map)
		if !ok {
			continue
		}
		m = append(yamlfix.Map{}, m...)
		file := strings.TrimSpace(m.String("relevant_file"))
		line := strings.TrimSpace(m.String("relevant_line"))
		if file != "" {
			m.Set("relevant_file", "`"+file+"`")
		}
		if line != "" {
			if _, absolute := diff.FindLineNumber(files, file, line); absolute > 0 {
				if link := r.Provider.LineLink(file, absolute, absolute); link != "" {
					m.Set("relevant_line", fmt.Sprintf("[%s](%s)", line, link))
				}
			}
		}
		out = append(out, m)
	}
	return out
}

func (r *Reviewer) inlineComments(data yamlfix.Map, files []models.FilePatchInfo) []models.InlineComment {
	var out []models.InlineComment
	for _, it := range data.List("code_feedback") {
		m, ok := it.(yamlfix.Map)
		if !ok {
			continue
		}
		file := strings.TrimSpace(m.String("relevant_file"))
		suggestion := strings.TrimSpace(m.String("suggestion"))
		_, absolute := diff.FindLineNumber(files, file, strings.TrimSpace(m.String("relevant_line")))
		if file == "" || suggestion == "" || absolute <= 0 {
			continue
		}
		out = append(out, models.InlineComment{
			Body: "**Suggestion:** " + suggestion,
			Path: file,
			Line: absolute,
			Side: "RIGHT",
		})
	}
	return out
}

// reviewLabels derives the effort and security labels from a prediction.
func (r *Reviewer) reviewLabels(data yamlfix.Map) []string {
	review, _ := data.Sub("review")
	cfg := r.Settings.PRReviewer
	var labels []string
	if cfg.EnableReviewLabelsEffort && cfg.RequireEstimateEffortToReview {
		if v, ok := review.Get("estimated_effort_to_review_[1-5]"); ok {
			head, _, _ := strings.Cut(yamlfix.Str(v), ",")
			if n, err := strconv.Atoi(strings.TrimSpace(head)); err == nil && n >= 1 && n <= 5 {
				labels = append(labels, effortLabelPrefix+strconv.Itoa(n))
			}
		}
	}
	if cfg.EnableReviewLabelsSecurity && cfg.RequireSecurityReview {
		if v, ok := review.Get("security_concerns"); ok {
			s := strings.ToLower(yamlfix.Str(v))
			if strings.Contains(s, "yes") || strings.Contains(s, "true") {
				labels = append(labels, securityLabel)
			}
		}
	}
	return labels
}

func (r *Reviewer) setReviewLabels(ctx context.Context, data yamlfix.Map) error {
	cfg := r.Settings.PRReviewer
	if !cfg.EnableReviewLabelsEffort && !cfg.EnableReviewLabelsSecurity {
		return nil
	}
	if !r.Provider.IsSupported(vcs.CapGetLabels) {
		return nil
	}
	current, err := r.Provider.Labels(ctx, true)
	if err != nil {
		return err
	}
	next := make([]string, 0, len(current)+2)
	for _, l := range current {
		if !vcs.IsReviewLabel(l) {
			next = append(next, l)
		}
	}
	next = append(next, r.reviewLabels(data)...)

	a, b := slices.Clone(current), slices.Clone(next)
	slices.Sort(a)
	slices.Sort(b)
	if slices.Equal(a, b) {
		logger.Debug(ctx, "review labels unchanged", "labels", current)
		return nil
	}
	logger.Info(ctx, "setting review labels", "labels", next)
	return r.Provider.PublishLabels(ctx, next)
}

func (r *Reviewer) runAutoApprove(ctx context.Context) (string, error) {
	cfg := r.Settings.PRReviewer
	effort := 0
	if cfg.EnableAutoApproval && cfg.MaximalReviewEffort < 5 {
		effort = r.effortExceeded(ctx)
	}
	var msg string
	switch {
	case !cfg.EnableAutoApproval:
		msg = r.msg("auto_approval_disabled", map[string]interface{}{"URL": autoApprovalDocsURL})
	case effort > 0:
		msg = r.msg("auto_approve_effort_exceeded", map[string]interface{}{
			"Effort": effort,
			"Max":    cfg.MaximalReviewEffort,
		})
	default:
		if err := r.Provider.AutoApprove(ctx); err != nil {
			return "", err
		}
		msg = r.msg("auto_approved", nil)
	}
	logger.Info(ctx, "auto approval handled", "result", msg)
	if r.publish() {
		if _, err := r.Provider.PublishComment(ctx, msg, false); err != nil {
			return "", err
		}
	}
	return msg, nil
}

// effortExceeded returns the effort from the PR's review label when it is
// above pr_reviewer.maximal_review_effort, else 0.
func (r *Reviewer) effortExceeded(ctx context.Context) int {
	labels, err := r.Provider.Labels(ctx, false)
	if err != nil {
		logger.Warn(ctx, "failed to read labels for auto approval", "error", err)
		return 0
	}
	for _, l := range labels {
		if !strings.HasPrefix(strings.ToLower(l), strings.ToLower(effortLabelPrefix)) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(l[len(effortLabelPrefix):]))
		if err == nil && n > r.Settings.PRReviewer.MaximalReviewEffort {
			return n
		}
	}
	return 0
}
