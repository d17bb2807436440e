package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/yamlfix"
)

const (
	analyzePrompt = "pr_analyze_prompt"
	AnalyzeHeader = "## PR Analysis 🔬"
)

// Analyze lists the components changed by the PR with follow-up commands.
// Components come from the diff itself; the model is asked only when no
// definition can be recognised.
type Analyze struct {
	base
}

func NewAnalyze(d Deps, args []string) *Analyze {
	return &Analyze{base: newBase(d, "analyze", args)}
}

func (t *Analyze) Run(ctx context.Context) (string, error) {
	ctx = logger.With(ctx, "tool", t.command, "pr_url", t.Provider.PRURL())
	files, err := t.Provider.DiffFiles(ctx)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}
	t.progress(ctx, "preparing_analysis")

	components := changedComponents(files)
	if len(components) == 0 {
		logger.Info(ctx, "no definitions recognised in the diff, asking the model")
		components, err = t.predict(ctx)
		if err != nil {
			t.clearProgress(ctx)
			return "", err
		}
	}

	body := t.render(components)
	if !t.publish() {
		return body, nil
	}
	_, err = t.Provider.PublishComment(ctx, body, false)
	t.clearProgress(ctx)
	if err != nil {
		return "", err
	}
	logger.Info(ctx, "analysis published", "components", len(components))
	return body, nil
}

func (t *Analyze) predict(ctx context.Context) ([]component, error) {
	vars := map[string]any{"diff": ""}
	return ai.RetryWithFallbackModels(ctx, t.Settings, ai.ModelRegular, func(ctx context.Context, model string) ([]component, error) {
		c, err := t.compressor(model, analyzePrompt, vars, false)
		if err != nil {
			return nil, err
		}
		res, err := c.GetPRDiff(ctx, t.Provider)
		if err != nil {
			return nil, err
		}
		out, err := t.chat(ctx, model, analyzePrompt, map[string]any{"diff": res.Diff})
		if err != nil {
			return nil, err
		}
		data := yamlfix.Load(ctx, out, yamlfix.Options{FirstKey: "components", LastKey: "change"})
		var components []component
		for _, it := range data.List("components") {
			m, ok := it.(yamlfix.Map)
			if !ok || strings.TrimSpace(m.String("name")) == "" {
				continue
			}
			components = append(components, component{
				File:   strings.TrimSpace(m.String("filename")),
				Name:   strings.TrimSpace(m.String("name")),
				Kind:   strings.TrimSpace(m.String("kind")),
				Change: strings.TrimSpace(m.String("change")),
			})
		}
		return components, nil
	})
}

func (t *Analyze) render(components []component) string {
	var b strings.Builder
	b.WriteString(AnalyzeHeader + "\n\n")
	if len(components) == 0 {
		b.WriteString("No changed components were identified in this PR.\n")
		return b.String()
	}
	if !t.gfm() {
		for _, c := range components {
			fmt.Fprintf(&b, "- `%s` (%s, %s) in `%s`: `/test %s`, `/find_similar_component %s`\n",
				c.Name, c.Kind, c.Change, c.File, c.Name, c.Name)
		}
		return b.String()
	}

	b.WriteString("<table><thead><tr><th align=\"left\">Component</th><th align=\"left\">Type</th><th align=\"left\">Change</th><th align=\"left\">Actions</th></tr></thead><tbody>\n")
	file := ""
	for _, c := range components {
		if c.File != file {
			file = c.File
			fmt.Fprintf(&b, "<tr><td colspan=4><a href=\"%s\"><strong>%s</strong></a></td></tr>\n", t.Provider.LineLink(c.File, -1, -1), c.File)
		}
		fmt.Fprintf(&b, "<tr><td><code>%s</code></td><td>%s</td><td>%s</td><td><code>/test %s</code><br><code>/find_similar_component %s</code></td></tr>\n",
			c.Name, c.Kind, c.Change, c.Name, c.Name)
	}
	b.WriteString("</tbody></table>\n")
	return b.String()
}
