package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/sync/errgroup"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/compression"
	"github.com/khulnasoft/pr-insight/internal/diff"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/vcs"
	"github.com/khulnasoft/pr-insight/internal/yamlfix"
)

const (
	suggestionsPrompt        = "pr_code_suggestions_prompt"
	suggestionsReflectPrompt = "pr_code_suggestions_reflect_prompt"
	customPrompt             = "pr_custom_prompt_prompt"

	SuggestionsHeader       = "## PR Code Suggestions ✨"
	CustomSuggestionsHeader = "## PR Custom Suggestions 🛠️"
)

var suggestionsYAMLKeys = []string{
	"relevant_file:", "suggestion_content:", "existing_code:", "improved_code:",
}

// CodeSuggestions asks for improvements chunk by chunk, scores them in a
// second pass and publishes the ones above the threshold. With custom set it
// applies the user's pr_custom_prompt instead.
type CodeSuggestions struct {
	base
	custom bool
	files  []models.FilePatchInfo
}

func NewCodeSuggestions(d Deps, args []string) *CodeSuggestions {
	return &CodeSuggestions{base: newBase(d, "improve", args)}
}

func NewCustomPrompt(d Deps, args []string) *CodeSuggestions {
	return &CodeSuggestions{base: newBase(d, "custom_prompt", args), custom: true}
}

func (t *CodeSuggestions) prompt() string {
	if t.custom {
		return customPrompt
	}
	return suggestionsPrompt
}

func (t *CodeSuggestions) header() string {
	if t.custom {
		return CustomSuggestionsHeader
	}
	return SuggestionsHeader
}

func (t *CodeSuggestions) perChunk() int {
	if t.custom {
		return t.Settings.PRCustomPrompt.NumCodeSuggestionsPerChunk
	}
	return t.Settings.PRCodeSuggestions.NumCodeSuggestionsPerChunk
}

func (t *CodeSuggestions) selfReflect() bool {
	if t.custom {
		return t.Settings.PRCustomPrompt.SelfReflectOnCustomSuggestions
	}
	return t.Settings.PRCodeSuggestions.SelfReflectOnSuggestions
}

func (t *CodeSuggestions) threshold() int {
	if t.custom {
		return t.Settings.PRCustomPrompt.SuggestionsScoreThreshold
	}
	return t.Settings.PRCodeSuggestions.SuggestionsScoreThreshold
}

func (t *CodeSuggestions) Run(ctx context.Context) (string, error) {
	ctx = logger.With(ctx, "tool", t.command, "pr_url", t.Provider.PRURL())
	cfg := t.Settings.PRCodeSuggestions

	if t.custom && strings.TrimSpace(t.Settings.PRCustomPrompt.Prompt) == "" {
		return "", domainErrors.ErrInvalidSettings.
			WithContext("setting", "pr_custom_prompt.prompt").
			WithSuggestion("Set pr_custom_prompt.prompt to the instructions the suggestions should follow")
	}

	var err error
	t.files, err = t.Provider.DiffFiles(ctx)
	if err != nil {
		return "", err
	}
	if len(t.files) == 0 {
		logger.Info(ctx, "no diff files, nothing to suggest")
		return "", nil
	}
	t.progress(ctx, "preparing_suggestions")

	vars, _, err := t.prVars(ctx)
	if err != nil {
		return "", err
	}
	vars["num_code_suggestions"] = t.perChunk()
	vars["focus_only_on_problems"] = cfg.FocusOnlyOnProblems
	vars["extra_instructions"] = cfg.ExtraInstructions
	vars["diff_no_line_numbers"] = ""
	vars["prompt"] = t.Settings.PRCustomPrompt.Prompt

	suggestions, err := ai.RetryWithFallbackModels(ctx, t.Settings, ai.ModelRegular, func(ctx context.Context, model string) ([]models.CodeSuggestion, error) {
		return t.predict(ctx, model, vars)
	})
	if err != nil {
		t.clearProgress(ctx)
		return "", err
	}
	suggestions = t.rank(suggestions)
	logger.Info(ctx, "code suggestions ready", "count", len(suggestions))

	if len(suggestions) == 0 {
		return t.publishNoSuggestions(ctx)
	}
	if cfg.CommitableCodeSuggestions && !t.custom {
		if !t.publish() {
			return t.table(suggestions), nil
		}
		err := t.Provider.PublishCodeSuggestions(ctx, t.committable(suggestions, math.MinInt))
		t.clearProgress(ctx)
		return t.table(suggestions), err
	}

	body := t.table(suggestions)
	if !t.publish() {
		return body, nil
	}
	if cfg.PersistentComment {
		err = t.Provider.PublishPersistentComment(ctx, body, vcs.PersistentCommentOptions{
			InitialHeader: t.header(),
			UpdateHeader:  true,
			Name:          "suggestions",
		})
	} else {
		_, err = t.Provider.PublishComment(ctx, body, false)
	}
	t.clearProgress(ctx)
	if err != nil {
		return "", err
	}
	if th := cfg.DualPublishingScoreThreshold; th > 0 && !t.custom {
		if dual := t.committable(suggestions, th); len(dual) > 0 {
			logger.Info(ctx, "dual publishing high score suggestions", "count", len(dual), "threshold", th)
			if err := t.Provider.PublishCodeSuggestions(ctx, dual); err != nil {
				logger.Warn(ctx, "failed to publish committable suggestions", "error", err)
			}
		}
	}
	return body, nil
}

// predict runs one prompt per diff chunk, in parallel when configured.
func (t *CodeSuggestions) predict(ctx context.Context, model string, vars map[string]any) ([]models.CodeSuggestion, error) {
	cfg := t.Settings.PRCodeSuggestions
	c, err := t.compressor(model, t.prompt(), vars, t.custom)
	if err != nil {
		return nil, err
	}
	opts, err := compression.OptionsFromSettings(t.Settings, model)
	if err != nil {
		return nil, err
	}
	opts.PromptTokens = c.PromptTokens()
	opts.AddLineNumbers = t.custom
	opts.MaxAICalls = cfg.MaxNumberOfCalls
	multi, err := compression.New(opts).GetPRDiffMultiplePatches(ctx, t.Provider)
	if err != nil {
		return nil, err
	}
	if len(multi.Patches) == 0 {
		logger.Info(ctx, "no patches left after compression")
		return nil, nil
	}

	results := make([][]models.CodeSuggestion, len(multi.Patches))
	g, gctx := errgroup.WithContext(ctx)
	if !cfg.ParallelCalls {
		g.SetLimit(1)
	}
	for i, patch := range multi.Patches {
		g.Go(func() error {
			chunkVars := cloneVars(vars)
			if t.custom {
				chunkVars["diff"] = patch
			} else {
				chunkVars["diff_no_line_numbers"] = patch
			}
			out, err := t.chat(gctx, model, t.prompt(), chunkVars)
			if err != nil {
				return err
			}
			suggestions := parseSuggestions(gctx, out)
			if len(suggestions) > 0 && t.selfReflect() {
				numbered := patch
				if !t.custom {
					numbered = t.numberedDiff(multi.FilesInPatches[i])
				}
				t.reflect(gctx, model, numbered, suggestions)
			}
			results[i] = suggestions
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []models.CodeSuggestion
	for _, r := range results {
		all = append(all, r...)
	}
	if len(multi.Patches) > 1 && cfg.FinalClipFactor > 0 && cfg.FinalClipFactor < 1 {
		sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
		keep := int(math.Ceil(float64(len(all)) * cfg.FinalClipFactor))
		all = all[:keep]
	}
	return all, nil
}

func parseSuggestions(ctx context.Context, response string) []models.CodeSuggestion {
	data := yamlfix.Load(ctx, response, yamlfix.Options{
		KeysFix:  suggestionsYAMLKeys,
		FirstKey: "code_suggestions",
		LastKey:  "label",
	})
	var out []models.CodeSuggestion
	for _, it := range data.List("code_suggestions") {
		m, ok := it.(yamlfix.Map)
		if !ok {
			continue
		}
		s := models.CodeSuggestion{
			RelevantFile:       strings.TrimSpace(m.String("relevant_file")),
			Language:           strings.TrimSpace(m.String("language")),
			SuggestionContent:  strings.TrimSpace(m.String("suggestion_content")),
			ExistingCode:       strings.TrimRight(m.String("existing_code"), "\n"),
			ImprovedCode:       strings.TrimRight(m.String("improved_code"), "\n"),
			OneSentenceSummary: strings.TrimSpace(m.String("one_sentence_summary")),
			Label:              strings.ToLower(strings.TrimSpace(m.String("label"))),
		}
		if v, ok := m.Get("relevant_lines_start"); ok {
			s.RelevantLinesStart, _ = intOf(v)
		}
		if v, ok := m.Get("relevant_lines_end"); ok {
			s.RelevantLinesEnd, _ = intOf(v)
		}
		if s.RelevantFile == "" || s.SuggestionContent == "" {
			continue
		}
		if s.ExistingCode != "" && s.ExistingCode == s.ImprovedCode {
			logger.Debug(ctx, "dropping suggestion with identical existing and improved code", "file", s.RelevantFile)
			continue
		}
		out = append(out, s)
	}
	return out
}

func (t *CodeSuggestions) numberedDiff(files []string) string {
	var b strings.Builder
	for _, name := range files {
		for _, f := range t.files {
			if f.Filename == name && f.Patch != "" {
				b.WriteString(diff.DecoupleHunks(f.Patch, f))
				break
			}
		}
	}
	return b.String()
}

// reflect scores suggestions in place. A failed pass leaves them unscored.
func (t *CodeSuggestions) reflect(ctx context.Context, model, numberedDiff string, suggestions []models.CodeSuggestion) {
	var b strings.Builder
	for i, s := range suggestions {
		fmt.Fprintf(&b, "suggestion %d: {'relevant_file': %q, 'one_sentence_summary': %q, 'suggestion_content': %q, 'existing_code': %q, 'improved_code': %q, 'label': %q}\n\n",
			i+1, s.RelevantFile, s.OneSentenceSummary, s.SuggestionContent, s.ExistingCode, s.ImprovedCode, s.Label)
	}
	out, err := t.chat(ctx, model, suggestionsReflectPrompt, map[string]any{
		"diff":                 numberedDiff,
		"num_code_suggestions": len(suggestions),
		"suggestion_str":       b.String(),
	})
	if err != nil {
		logger.Warn(ctx, "self reflection on suggestions failed", "error", err)
		return
	}
	data := yamlfix.Load(ctx, out, yamlfix.Options{
		KeysFix:  []string{"relevant_file:", "suggestion_summary:", "why:"},
		FirstKey: "code_suggestions",
		LastKey:  "why",
	})
	feedback := data.List("code_suggestions")
	for i := range suggestions {
		if i >= len(feedback) {
			break
		}
		m, ok := feedback[i].(yamlfix.Map)
		if !ok {
			continue
		}
		s := &suggestions[i]
		if v, ok := m.Get("suggestion_score"); ok {
			s.Score, _ = intOf(v)
		}
		s.ScoreWhy = strings.TrimSpace(m.String("why"))
		if v, ok := m.Get("relevant_lines_start"); ok {
			s.RelevantLinesStart, _ = intOf(v)
		}
		if v, ok := m.Get("relevant_lines_end"); ok {
			s.RelevantLinesEnd, _ = intOf(v)
		}
	}
}

// rank fills missing line ranges, applies the score threshold and sorts by
// score, highest first.
func (t *CodeSuggestions) rank(suggestions []models.CodeSuggestion) []models.CodeSuggestion {
	threshold := t.threshold()
	out := suggestions[:0]
	for _, s := range suggestions {
		if s.RelevantLinesStart <= 0 && s.ExistingCode != "" {
			first := strings.SplitN(strings.TrimSpace(s.ExistingCode), "\n", 2)[0]
			if _, absolute := diff.FindLineNumber(t.files, s.RelevantFile, first); absolute > 0 {
				s.RelevantLinesStart = absolute
				s.RelevantLinesEnd = absolute + strings.Count(strings.TrimSpace(s.ExistingCode), "\n")
			}
		}
		if t.selfReflect() && s.Score < threshold {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (t *CodeSuggestions) committable(suggestions []models.CodeSuggestion, minScore int) []vcs.CodeSuggestion {
	var out []vcs.CodeSuggestion
	for _, s := range suggestions {
		if s.Score < minScore || s.RelevantLinesStart <= 0 {
			continue
		}
		end := max(s.RelevantLinesEnd, s.RelevantLinesStart)
		body := fmt.Sprintf("**Suggestion:** %s [%s", s.SuggestionContent, s.Label)
		if s.Score > 0 {
			body += fmt.Sprintf(", importance: %d", s.Score)
		}
		body += fmt.Sprintf("]\n```suggestion\n%s\n```", s.ImprovedCode)
		out = append(out, vcs.CodeSuggestion{
			Body:          body,
			RelevantFile:  s.RelevantFile,
			RelevantStart: s.RelevantLinesStart,
			RelevantEnd:   end,
		})
	}
	return out
}

func (t *CodeSuggestions) publishNoSuggestions(ctx context.Context) (string, error) {
	msg := t.msg("no_code_suggestions", nil)
	if !t.publish() {
		return msg, nil
	}
	defer t.clearProgress(ctx)
	if !t.Settings.PRCodeSuggestions.PublishOutputNoSuggestions {
		return msg, nil
	}
	body := t.header() + "\n\n" + msg
	var err error
	if t.Settings.PRCodeSuggestions.PersistentComment {
		err = t.Provider.PublishPersistentComment(ctx, body, vcs.PersistentCommentOptions{
			InitialHeader: t.header(),
			UpdateHeader:  true,
			Name:          "suggestions",
		})
	} else {
		_, err = t.Provider.PublishComment(ctx, body, false)
	}
	return body, err
}

// table groups the suggestions by label. Groups keep the order of their
// best scored suggestion.
func (t *CodeSuggestions) table(suggestions []models.CodeSuggestion) string {
	var labels []string
	byLabel := map[string][]models.CodeSuggestion{}
	for _, s := range suggestions {
		label := s.Label
		if label == "" {
			label = "general"
		}
		if _, ok := byLabel[label]; !ok {
			labels = append(labels, label)
		}
		byLabel[label] = append(byLabel[label], s)
	}

	var b strings.Builder
	b.WriteString(t.header() + "\n\n")
	if !t.gfm() {
		for _, label := range labels {
			fmt.Fprintf(&b, "### %s\n\n", capitalizeFirst(label))
			for _, s := range byLabel[label] {
				fmt.Fprintf(&b, "- **%s**", s.OneSentenceSummary)
				if s.Score > 0 {
					fmt.Fprintf(&b, " (importance: %d)", s.Score)
				}
				fmt.Fprintf(&b, "\n  %s\n  `%s`", s.SuggestionContent, s.RelevantFile)
				if s.RelevantLinesStart > 0 {
					fmt.Fprintf(&b, " lines %d-%d", s.RelevantLinesStart, max(s.RelevantLinesEnd, s.RelevantLinesStart))
				}
				fmt.Fprintf(&b, "\n```diff\n%s\n```\n\n", codeDiff(s.ExistingCode, s.ImprovedCode))
			}
		}
		return b.String()
	}

	b.WriteString(`<table><thead><tr><td><strong>Category</strong></td><td align=left><strong>Suggestion&nbsp; </strong></td><td align=center><strong>Impact</strong></td></tr>`)
	b.WriteString("<tbody>")
	for _, label := range labels {
		group := byLabel[label]
		for i, s := range group {
			b.WriteString("<tr>")
			if i == 0 {
				fmt.Fprintf(&b, "<td rowspan=%d>%s</td>\n", len(group), capitalizeFirst(label))
			}
			summary := s.OneSentenceSummary
			if summary == "" {
				summary = s.SuggestionContent
			}
			fmt.Fprintf(&b, "<td>\n\n<details><summary>%s</summary>\n\n___\n\n", summary)
			fmt.Fprintf(&b, "**%s**\n\n", s.SuggestionContent)
			if s.RelevantLinesStart > 0 {
				end := max(s.RelevantLinesEnd, s.RelevantLinesStart)
				fmt.Fprintf(&b, "[%s [%d-%d]](%s)\n\n", s.RelevantFile, s.RelevantLinesStart, end, t.Provider.LineLink(s.RelevantFile, s.RelevantLinesStart, end))
			} else {
				fmt.Fprintf(&b, "[%s](%s)\n\n", s.RelevantFile, t.Provider.LineLink(s.RelevantFile, -1, -1))
			}
			fmt.Fprintf(&b, "```diff\n%s\n```\n", codeDiff(s.ExistingCode, s.ImprovedCode))
			if s.Score > 0 {
				fmt.Fprintf(&b, "<details><summary>Suggestion importance[1-10]: %d</summary>\n\n__\n\nWhy: %s\n\n</details>", s.Score, s.ScoreWhy)
			}
			fmt.Fprintf(&b, "</details></td><td align=center>%s\n\n</td></tr>", t.impact(s.Score))
		}
	}
	b.WriteString("</tbody></table>")

	if t.custom {
		if t.Settings.PRCustomPrompt.EnableHelpText {
			b.WriteString(usageGuide("custom_prompt"))
		}
		b.WriteString(t.relevantConfigs("pr_custom_prompt"))
	} else {
		if t.Settings.PRCodeSuggestions.EnableHelpText {
			b.WriteString(usageGuide("improve"))
		}
		b.WriteString(t.relevantConfigs("pr_code_suggestions"))
	}
	return b.String()
}

func (t *CodeSuggestions) impact(score int) string {
	cfg := t.Settings.PRCodeSuggestions
	if !cfg.NewScoreMechanism {
		return fmt.Sprint(score)
	}
	high, medium := cfg.NewScoreMechanismThHigh, cfg.NewScoreMechanismThMedium
	if high <= 0 {
		high = 9
	}
	if medium <= 0 {
		medium = 7
	}
	switch {
	case score >= high:
		return "High"
	case score >= medium:
		return "Medium"
	default:
		return "Low"
	}
}

// codeDiff renders existing vs improved code as diff lines without headers.
func codeDiff(existing, improved string) string {
	a := difflib.SplitLines(strings.TrimRight(existing, "\n"))
	b := difflib.SplitLines(strings.TrimRight(improved, "\n"))
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:       a,
		B:       b,
		Context: max(len(a), len(b)),
	})
	if err != nil {
		return improved
	}
	var lines []string
	for _, l := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if strings.HasPrefix(l, "---") || strings.HasPrefix(l, "+++") || strings.HasPrefix(l, "@@") {
			continue
		}
		lines = append(lines, l)
	}
	return strings.Join(lines, "\n")
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
