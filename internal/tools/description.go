package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/compression"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/markdown"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/regex"
	"github.com/khulnasoft/pr-insight/internal/vcs"
	"github.com/khulnasoft/pr-insight/internal/yamlfix"
)

const (
	descriptionPrompt            = "pr_description_prompt"
	descriptionOnlyFilesPrompt   = "pr_description_only_files_prompts"
	descriptionOnlySummaryPrompt = "pr_description_only_description_prompts"

	markerType        = "pr_insight:type"
	markerSummary     = "pr_insight:summary"
	markerWalkthrough = "pr_insight:walkthrough"

	extraFilesLabel    = "additional files (token-limit)"
	maxExtraFiles      = 100
	sectionSeparator   = "\n\n___\n\n"
	describeNameInText = "describe"
)

var descriptionYAMLKeys = []string{
	"filename:", "language:", "changes_summary:", "changes_title:", "description:", "title:",
}

// Description writes the PR title, type, summary and file walkthrough.
// With labelsOnly it publishes the predicted labels and nothing else.
type Description struct {
	base
	labelsOnly bool
	semantic   bool
	files      []models.FilePatchInfo
}

func NewDescription(d Deps, args []string) *Description {
	return &Description{base: newBase(d, "describe", args)}
}

// NewGenerateLabels runs the description prediction but only publishes labels.
func NewGenerateLabels(d Deps, args []string) *Description {
	return &Description{base: newBase(d, "generate_labels", args), labelsOnly: true}
}

func (t *Description) Run(ctx context.Context) (string, error) {
	ctx = logger.With(ctx, "tool", t.command, "pr_url", t.Provider.PRURL())
	cfg := t.Settings.PRDescription

	pr, err := t.Provider.PR(ctx)
	if err != nil {
		return "", err
	}
	userDescription := vcs.UserDescription(pr.Description)
	if cfg.UseDescriptionMarkers && !t.labelsOnly && !strings.Contains(userDescription, "pr_insight:") {
		logger.Info(ctx, "description markers enabled but none found in the PR description, skipping")
		return "", nil
	}

	t.files, err = t.Provider.DiffFiles(ctx)
	if err != nil {
		return "", err
	}
	t.semantic = cfg.EnableSemanticFilesTypes && t.gfm()

	if t.labelsOnly {
		t.progress(ctx, "preparing_labels")
	} else {
		t.progress(ctx, "preparing_description")
	}

	vars, err := t.vars(ctx)
	if err != nil {
		return "", err
	}
	data, err := ai.RetryWithFallbackModels(ctx, t.Settings, ai.ModelRegular, func(ctx context.Context, model string) (yamlfix.Map, error) {
		return t.predict(ctx, model, vars)
	})
	if err != nil {
		t.clearProgress(ctx)
		return "", err
	}
	if data == nil {
		logger.Warn(ctx, "description prediction could not be parsed, nothing to publish")
		t.clearProgress(ctx)
		return "", nil
	}
	labels := t.labels(data)

	if t.labelsOnly {
		return t.publishLabelsOnly(ctx, pr, labels)
	}

	data = t.orderKeys(data, userDescription)
	title, body := t.render(data, pr)
	if cfg.UseDescriptionMarkers {
		body = t.fillMarkers(data, pr, userDescription)
	}
	if !t.publish() {
		return body, nil
	}

	if cfg.PublishLabels && len(labels) > 0 {
		t.publishLabels(ctx, pr, labels)
	}
	if cfg.PublishDescriptionAsComment {
		full := fmt.Sprintf("## Title\n\n%s\n\n___\n%s", title, body)
		if cfg.PublishDescriptionAsCommentPersistent {
			err = t.Provider.PublishPersistentComment(ctx, full, vcs.PersistentCommentOptions{
				InitialHeader:      "## Title",
				UpdateHeader:       true,
				Name:               describeNameInText,
				FinalUpdateMessage: cfg.FinalUpdateMessage,
			})
		} else {
			_, err = t.Provider.PublishComment(ctx, full, false)
		}
	} else {
		err = t.Provider.PublishDescription(ctx, title, body)
		if err == nil && cfg.FinalUpdateMessage {
			t.finalUpdateMessage(ctx)
		}
	}
	t.clearProgress(ctx)
	if err != nil {
		return "", err
	}
	logger.Info(ctx, "description published", "labels", labels)
	return body, nil
}

func (t *Description) vars(ctx context.Context) (map[string]any, error) {
	vars, _, err := t.prVars(ctx)
	if err != nil {
		return nil, err
	}
	cfg := t.Settings.PRDescription
	vars["extra_instructions"] = cfg.ExtraInstructions
	vars["custom_labels"] = t.customLabels()
	vars["enable_semantic_files_types"] = t.semantic
	vars["include_file_summary_changes"] = len(t.files) <= 8 || !cfg.CollapsibleFileList.Is("adaptive")
	vars["related_tickets"] = t.relatedTickets(ctx, vars["description"].(string))
	return vars, nil
}

func (t *Description) customLabels() []string {
	names := t.Settings.CustomLabelNames()
	out := make([]string, 0, len(names))
	for _, n := range names {
		key := strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(n))
		out = append(out, fmt.Sprintf("%s = %q", key, n))
	}
	return out
}

func (t *Description) predict(ctx context.Context, model string, vars map[string]any) (yamlfix.Map, error) {
	c, err := t.compressor(model, descriptionPrompt, vars, false)
	if err != nil {
		return nil, err
	}
	opts, err := compression.OptionsFromSettings(t.Settings, model)
	if err != nil {
		return nil, err
	}
	opts.PromptTokens = c.PromptTokens()
	opts.LargePRHandling = t.Settings.PRDescription.EnableLargePRHandling && !t.labelsOnly
	res, err := compression.New(opts).GetPRDiff(ctx, t.Provider)
	if err != nil {
		return nil, err
	}
	if res.LargePR {
		return t.predictLarge(ctx, model, vars)
	}
	vars = cloneVars(vars)
	vars["diff"] = res.Diff
	out, err := t.chat(ctx, model, descriptionPrompt, vars)
	if err != nil {
		return nil, err
	}
	return yamlfix.Load(ctx, out, yamlfix.Options{
		KeysFix:  descriptionYAMLKeys,
		FirstKey: "type",
		LastKey:  "pr_files",
	}), nil
}

// predictLarge describes each chunk of files separately, then asks for
// the title, type and summary from the per-file results.
func (t *Description) predictLarge(ctx context.Context, model string, vars map[string]any) (yamlfix.Map, error) {
	cfg := t.Settings.PRDescription
	c, err := t.compressor(model, descriptionOnlyFilesPrompt, cloneVars(vars), false)
	if err != nil {
		return nil, err
	}
	opts, err := compression.OptionsFromSettings(t.Settings, model)
	if err != nil {
		return nil, err
	}
	opts.PromptTokens = c.PromptTokens()
	opts.MaxAICalls = cfg.MaxAICalls
	multi, err := compression.New(opts).GetPRDiffMultiplePatches(ctx, t.Provider)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "large PR, describing files in chunks", "chunks", len(multi.Patches))

	results := make([]string, len(multi.Patches))
	g, gctx := errgroup.WithContext(ctx)
	weight := int64(1)
	if cfg.AsyncAICalls {
		weight = int64(max(len(multi.Patches), 1))
	}
	sem := semaphore.NewWeighted(weight)
	for i, patch := range multi.Patches {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			chunkVars := cloneVars(vars)
			chunkVars["diff"] = patch
			out, err := t.chat(gctx, model, descriptionOnlyFilesPrompt, chunkVars)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var files []any
	described := map[string]bool{}
	for _, r := range results {
		m := yamlfix.Load(ctx, r, yamlfix.Options{KeysFix: descriptionYAMLKeys, FirstKey: "pr_files", LastKey: "label"})
		for _, f := range m.List("pr_files") {
			if fm, ok := f.(yamlfix.Map); ok {
				described[strings.TrimSpace(fm.String("filename"))] = true
				files = append(files, fm)
			}
		}
	}
	if cfg.MentionExtraFiles {
		extra := 0
		for _, name := range append(append([]string{}, multi.Remaining...), multi.Deleted...) {
			if described[name] || extra >= maxExtraFiles {
				continue
			}
			files = append(files, yamlfix.Map{
				{Key: "filename", Value: name},
				{Key: "changes_title", Value: "..."},
				{Key: "label", Value: extraFilesLabel},
			})
			extra++
		}
	}

	var summary strings.Builder
	for _, f := range files {
		fm := f.(yamlfix.Map)
		fmt.Fprintf(&summary, "- %s: %s\n", strings.TrimSpace(fm.String("filename")), strings.TrimSpace(fm.String("changes_title")))
	}
	descVars := cloneVars(vars)
	descVars["diff"] = c.Clip(summary.String(), c.MaxTokens()-c.PromptTokens()-compression.OutputBufferTokensSoftThreshold)
	out, err := t.chat(ctx, model, descriptionOnlySummaryPrompt, descVars)
	if err != nil {
		return nil, err
	}
	data := yamlfix.Load(ctx, out, yamlfix.Options{KeysFix: descriptionYAMLKeys, FirstKey: "type", LastKey: "title"})
	if data == nil {
		return nil, domainErrors.ErrInvalidAIOutput.WithContext("prompt", descriptionOnlySummaryPrompt)
	}
	data.Set("pr_files", files)
	return data, nil
}

// labels reads "labels" or "type", as a list or a comma separated string,
// restoring the custom label spelling.
func (t *Description) labels(data yamlfix.Map) []string {
	var raw any
	if v, ok := data.Get("labels"); ok {
		raw = v
	} else if v, ok := data.Get("type"); ok {
		raw = v
	}
	var labels []string
	switch v := raw.(type) {
	case []any:
		for _, l := range v {
			labels = append(labels, strings.TrimSpace(yamlfix.Str(l)))
		}
	case string:
		for _, l := range strings.Split(v, ",") {
			labels = append(labels, strings.TrimSpace(l))
		}
	}

	custom := t.Settings.CustomLabelNames()
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l == "" {
			continue
		}
		for _, c := range custom {
			if strings.EqualFold(c, l) || strings.EqualFold(strings.ReplaceAll(c, " ", "_"), l) {
				l = c
				break
			}
		}
		if !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}

// orderKeys puts the sections in publishing order.
func (t *Description) orderKeys(data yamlfix.Map, userDescription string) yamlfix.Map {
	cfg := t.Settings.PRDescription
	out := yamlfix.Map{}
	if cfg.AddOriginalUserDescription && userDescription != "" {
		out = append(out, yamlfix.MapItem{Key: "User Description", Value: userDescription})
	}
	for _, key := range []string{"title", "type", "labels", "description", "pr_files"} {
		if key == "type" && !cfg.EnablePRType {
			continue
		}
		if v, ok := data.Get(key); ok {
			out = append(out, yamlfix.MapItem{Key: key, Value: v})
		}
	}
	return out
}

// render returns the title and the markdown body.
func (t *Description) render(data yamlfix.Map, pr *models.PullRequest) (string, string) {
	cfg := t.Settings.PRDescription
	title := pr.Title
	if cfg.GenerateAITitle {
		if v := strings.TrimSpace(data.String("title")); v != "" {
			title = v
		}
	}

	var sections []string
	for _, it := range data {
		switch it.Key {
		case "title", "labels":
			continue
		case "User Description":
			sections = append(sections, "### **User description**\n"+yamlfix.Str(it.Value))
		case "type":
			sections = append(sections, "### **PR Type**\n"+strings.Join(t.typeList(it.Value), ", "))
		case "description":
			sections = append(sections, "### **Description**\n"+t.descriptionText(it.Value))
		case "pr_files":
			if walkthrough := t.walkthrough(it.Value); walkthrough != "" {
				sections = append(sections, "### **Changes walkthrough** 📝\n"+walkthrough)
			}
		}
	}
	body := strings.Join(sections, sectionSeparator)
	if t.gfm() && cfg.EnableHelpText {
		body += usageGuide("describe")
	}
	body += t.relevantConfigs("pr_description")
	return title, body
}

func (t *Description) typeList(v any) []string {
	switch x := v.(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, strings.TrimSpace(yamlfix.Str(e)))
		}
		return out
	default:
		return []string{strings.TrimSpace(yamlfix.Str(v))}
	}
}

func (t *Description) descriptionText(v any) string {
	text := strings.TrimSpace(yamlfix.Str(v))
	if !t.Settings.PRDescription.UseBulletPoints || strings.HasPrefix(text, "-") || strings.HasPrefix(text, "*") {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			lines[i] = "- " + l
		}
	}
	return strings.Join(lines, "\n")
}

// walkthrough groups pr_files by label into the "Relevant files" table.
func (t *Description) walkthrough(v any) string {
	items, _ := v.([]any)
	var groups []markdown.LabeledFiles
	index := map[string]int{}
	for _, it := range items {
		m, ok := it.(yamlfix.Map)
		if !ok {
			continue
		}
		name := strings.TrimSpace(m.String("filename"))
		if name == "" {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(m.String("label")))
		if label == "" {
			label = "other"
		}
		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, markdown.LabeledFiles{Label: label})
		}
		groups[i].Files = append(groups[i].Files, markdown.FileChange{
			Filename: name,
			Title:    strings.TrimSpace(m.String("changes_title")),
			Summary:  strings.TrimSpace(m.String("changes_summary")),
		})
	}
	if len(groups) == 0 {
		return ""
	}
	if !t.semantic {
		var b strings.Builder
		for _, g := range groups {
			for _, f := range g.Files {
				fmt.Fprintf(&b, "- `%s`: %s\n", f.Filename, f.Title)
			}
		}
		return b.String()
	}
	collapsible := t.Settings.PRDescription.CollapsibleFileList
	return markdown.FilesTable(groups, markdown.WalkthroughOptions{
		Collapsible: collapsible.IsTrue() || (collapsible.Is("adaptive") && markdown.CountFiles(groups) > markdown.CollapsibleFileListThreshold),
		DiffFiles:   t.files,
		Links:       t.Provider,
	})
}

// fillMarkers replaces the pr_insight markers of the user's own template.
func (t *Description) fillMarkers(data yamlfix.Map, pr *models.PullRequest, body string) string {
	header := ""
	if t.Settings.PRDescription.IncludeGeneratedByHeader {
		header = fmt.Sprintf("### 🤖 Generated by PR Insight at %s\n\n", pr.HeadSHA)
	}
	if v, ok := data.Get("type"); ok && !regex.DescriptionMarkerType.MatchString(body) {
		body = strings.ReplaceAll(body, markerType, header+strings.Join(t.typeList(v), ", "))
	}
	if v, ok := data.Get("description"); ok && !regex.DescriptionMarkerSummary.MatchString(body) {
		body = strings.ReplaceAll(body, markerSummary, header+t.descriptionText(v))
	}
	if v, ok := data.Get("pr_files"); ok && !regex.DescriptionMarkerWalkthrough.MatchString(body) {
		body = strings.ReplaceAll(body, markerWalkthrough, t.walkthrough(v))
	}
	return body
}

func (t *Description) publishLabels(ctx context.Context, pr *models.PullRequest, labels []string) {
	if !t.Provider.IsSupported(vcs.CapGetLabels) {
		return
	}
	current, err := t.Provider.Labels(ctx, true)
	if err != nil {
		logger.Warn(ctx, "failed to read current labels", "error", err)
		current = pr.Labels
	}
	all := append(append([]string{}, labels...), vcs.UserLabels(t.Settings, current)...)
	if err := t.Provider.PublishLabels(ctx, all); err != nil {
		logger.Warn(ctx, "failed to publish labels", "error", err)
	}
}

func (t *Description) publishLabelsOnly(ctx context.Context, pr *models.PullRequest, labels []string) (string, error) {
	artifact := strings.Join(labels, ", ")
	if !t.publish() {
		return artifact, nil
	}
	t.publishLabels(ctx, pr, labels)
	t.clearProgress(ctx)
	return artifact, nil
}

func (t *Description) finalUpdateMessage(ctx context.Context) {
	latest, err := t.Provider.LatestCommitURL(ctx)
	if err != nil || latest == "" {
		return
	}
	msg := t.msg("description_updated", map[string]interface{}{"PRURL": t.Provider.PRURL(), "CommitURL": latest})
	if _, err := t.Provider.PublishComment(ctx, msg, false); err != nil {
		logger.Warn(ctx, "failed to publish final update message", "error", err)
	}
}
