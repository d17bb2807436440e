package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/ai"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/tokens"
	"github.com/khulnasoft/pr-insight/internal/vcs"
	"github.com/khulnasoft/pr-insight/internal/yamlfix"
)

const (
	checksPrompt     = "pr_checks_prompt"
	CIFeedbackHeader = "## CI Failure Feedback 🧐"
)

// CIFeedback explains failed CI checks of the PR.
type CIFeedback struct {
	base
}

func NewCIFeedback(d Deps, args []string) *CIFeedback {
	return &CIFeedback{base: newBase(d, "checks", args)}
}

func (t *CIFeedback) Run(ctx context.Context) (string, error) {
	ctx = logger.With(ctx, "tool", t.command, "pr_url", t.Provider.PRURL())
	fetcher, ok := t.Provider.(vcs.CheckRunsFetcher)
	if !ok {
		return "", domainErrors.ErrNotSupported.
			WithContext("provider", t.Provider.Name()).
			WithContext("command", t.command)
	}
	runs, err := fetcher.FailedCheckRuns(ctx)
	if err != nil {
		return "", err
	}
	runs = t.selectRuns(runs)
	if len(runs) == 0 {
		msg := t.msg("no_failed_checks", nil)
		if t.publish() {
			if _, err := t.Provider.PublishComment(ctx, msg, false); err != nil {
				return "", err
			}
		}
		return msg, nil
	}
	t.progress(ctx, "preparing_ci_feedback")

	pr, err := t.Provider.PR(ctx)
	if err != nil {
		return "", err
	}

	var sections []string
	for _, run := range runs {
		section, err := t.analyze(ctx, pr, run)
		if err != nil {
			t.clearProgress(ctx)
			return "", err
		}
		sections = append(sections, section)
	}
	body := CIFeedbackHeader + "\n\n" + strings.Join(sections, "\n\n___\n\n")
	if t.Settings.Checks.EnableHelpText && t.gfm() {
		body += usageGuide("checks")
	}

	if !t.publish() {
		return body, nil
	}
	if t.Settings.Checks.PersistentComment {
		err = t.Provider.PublishPersistentComment(ctx, body, vcs.PersistentCommentOptions{
			InitialHeader:      CIFeedbackHeader,
			UpdateHeader:       true,
			Name:               "checks",
			FinalUpdateMessage: t.Settings.Checks.FinalUpdateMessage,
		})
	} else {
		_, err = t.Provider.PublishComment(ctx, body, false)
	}
	t.clearProgress(ctx)
	if err != nil {
		return "", err
	}
	logger.Info(ctx, "CI feedback published", "checks", len(runs))
	return body, nil
}

// selectRuns keeps the runs named in the arguments, or every failed run
// not excluded by checks.excluded_checks_list.
func (t *CIFeedback) selectRuns(runs []models.CheckRun) []models.CheckRun {
	wanted := strings.ToLower(questionText(t.freeText()))
	var out []models.CheckRun
	for _, r := range runs {
		name := strings.ToLower(r.Name)
		if wanted != "" {
			if strings.Contains(name, wanted) {
				out = append(out, r)
			}
			continue
		}
		excluded := false
		for _, ex := range t.Settings.Checks.ExcludedChecksList {
			if ex != "" && strings.Contains(name, strings.ToLower(ex)) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, r)
		}
	}
	return out
}

func (t *CIFeedback) analyze(ctx context.Context, pr *models.PullRequest, run models.CheckRun) (string, error) {
	logs := run.Logs
	if strings.TrimSpace(logs) == "" {
		logs = run.Summary
	}
	data, err := ai.RetryWithFallbackModels(ctx, t.Settings, ai.ModelRegular, func(ctx context.Context, model string) (yamlfix.Map, error) {
		out, err := t.chat(ctx, model, checksPrompt, map[string]any{
			"title":      pr.Title,
			"branch":     vcs.BranchOf(pr),
			"check_name": run.Name,
			"logs":       tailTokens(model, logs, t.Settings.Checks.MaxLogsTokens),
		})
		if err != nil {
			return nil, err
		}
		data := yamlfix.Load(ctx, out, yamlfix.Options{
			KeysFix:  []string{"failure_summary:", "relevant_error_logs:", "suggested_fix:"},
			FirstKey: "failed_test_name",
			LastKey:  "suggested_fix",
		})
		if data == nil {
			return nil, domainErrors.ErrInvalidAIOutput.WithContext("prompt", checksPrompt).WithContext("model", model)
		}
		return data, nil
	})
	if err != nil {
		return "", err
	}

	stage := run.Name
	if run.DetailsURL != "" {
		stage = fmt.Sprintf("[%s](%s)", run.Name, run.DetailsURL)
	}
	rows := [][2]string{
		{"**Action:** ", run.Name},
		{"**Failed stage:** ", stage},
	}
	if name := strings.TrimSpace(data.String("failed_test_name")); name != "" {
		rows = append(rows, [2]string{"**Failed test name:** ", name})
	}
	rows = append(rows,
		[2]string{"**Failure summary:** ", strings.TrimSpace(data.String("failure_summary"))},
		[2]string{"**Suggested fix:** ", strings.TrimSpace(data.String("suggested_fix"))},
	)

	var b strings.Builder
	if !t.gfm() {
		for _, r := range rows {
			b.WriteString(r[0] + r[1] + "\n\n")
		}
		if l := strings.TrimSpace(data.String("relevant_error_logs")); l != "" {
			fmt.Fprintf(&b, "**Relevant error logs:**\n```\n%s\n```\n", l)
		}
		return b.String(), nil
	}
	b.WriteString("<table>")
	for _, r := range rows {
		fmt.Fprintf(&b, "<tr><td>\n\n%s%s\n</td></tr>", r[0], r[1])
	}
	if l := strings.TrimSpace(data.String("relevant_error_logs")); l != "" {
		fmt.Fprintf(&b, "<tr><td>\n\n<details><summary><strong>Relevant error logs:</strong></summary>\n\n```yaml\n%s\n```\n</details></td></tr>", l)
	}
	b.WriteString("</table>")
	return b.String(), nil
}

// tailTokens keeps the end of logs within maxTokens, where failures usually
// are.
func tailTokens(model, logs string, maxTokens int) string {
	if maxTokens <= 0 {
		return logs
	}
	enc := tokens.ForModel(model)
	if enc.Count(logs) <= maxTokens {
		return logs
	}
	lines := strings.Split(logs, "\n")
	lo, hi := 0, len(lines)
	for lo < hi {
		mid := (lo + hi) / 2
		if enc.Count(strings.Join(lines[mid:], "\n")) <= maxTokens {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo >= len(lines) {
		return enc.ClipTokens(lines[len(lines)-1], maxTokens, tokens.DefaultClip)
	}
	return "...(truncated)\n" + strings.Join(lines[lo:], "\n")
}
