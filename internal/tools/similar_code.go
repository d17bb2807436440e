package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/ai"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/vcs"
	"github.com/khulnasoft/pr-insight/internal/vectordb"
	"github.com/khulnasoft/pr-insight/internal/yamlfix"
)

const (
	similarPrompt = "pr_similar_prompt"
	SimilarHeader = "## Similar Code Results 🔍"
)

// SimilarCode finds code resembling a component of the PR. The PR's own
// components are indexed as a side effect, so later queries see them.
type SimilarCode struct {
	base
}

func NewSimilarCode(d Deps, args []string) *SimilarCode {
	return &SimilarCode{base: newBase(d, "similar_code", args)}
}

type similarHit struct {
	Repository string
	File       string
	Component  string
	URL        string
	Score      float64
}

func (t *SimilarCode) Run(ctx context.Context) (string, error) {
	cfg := t.Settings.PRSimilar
	name := questionText(t.freeText())
	files, err := t.Provider.DiffFiles(ctx)
	if err != nil {
		return "", err
	}
	if name == "" {
		if components := changedComponents(files); len(components) > 0 {
			name = components[0].Name
		}
	}
	if name == "" {
		return "", domainErrors.ErrMissingArgument.
			WithContext("argument", "component").
			WithSuggestion("Run /find_similar_component <component_name>")
	}
	ctx = logger.With(ctx, "tool", t.command, "pr_url", t.Provider.PRURL(), "component", name)

	file, code, ok := findComponent(files, name, "")
	if !ok {
		return "", domainErrors.ErrMissingArgument.
			WithContext("component", name).
			WithSuggestion("The component was not found in the files of this PR; /analyze lists the changed components")
	}
	if cfg.MaxProblemTokens > 0 {
		code = vcs.ClipDescription(code, cfg.MaxProblemTokens)
	}
	t.progress(ctx, "preparing_similar_code")

	keywords, err := ai.RetryWithFallbackModels(ctx, t.Settings, ai.ModelTurbo, func(ctx context.Context, model string) ([]string, error) {
		out, err := t.chat(ctx, model, similarPrompt, map[string]any{
			"number_of_keywords": max(cfg.NumberOfKeywords, 1),
			"component_name":     name,
			"component_code":     code,
		})
		if err != nil {
			return nil, err
		}
		var kw []string
		for _, k := range yamlfix.Load(ctx, out, yamlfix.Options{FirstKey: "keywords"}).List("keywords") {
			if s := strings.TrimSpace(yamlfix.Str(k)); s != "" {
				kw = append(kw, s)
			}
		}
		return kw, nil
	})
	if err != nil {
		t.clearProgress(ctx)
		return "", err
	}

	repo := repoOf(t.Provider)
	var hits []similarHit
	if t.Embedder != nil && t.Index != nil {
		hits, err = t.vectorHits(ctx, repo, file.Filename, name, code, keywords)
		if err != nil {
			logger.Warn(ctx, "vector search failed", "error", err)
		}
	}
	if searcher, ok := t.Provider.(vcs.CodeSearcher); ok && len(keywords) > 0 {
		query := strings.Join(keywords, " ")
		results, err := searcher.SearchCode(ctx, query, max(cfg.NumberOfResults, 1))
		if err != nil {
			logger.Warn(ctx, "provider code search failed", "error", err)
		}
		for _, r := range results {
			hits = append(hits, similarHit{Repository: r.Repository, File: r.Path, URL: r.URL, Score: r.Score})
		}
	}

	body := t.render(name, file.Filename, keywords, hits)
	if !t.publish() {
		return body, nil
	}
	_, err = t.Provider.PublishComment(ctx, body, false)
	t.clearProgress(ctx)
	if err != nil {
		return "", err
	}
	return body, nil
}

// vectorHits indexes the component, then queries for its neighbours,
// skipping the component itself.
func (t *SimilarCode) vectorHits(ctx context.Context, repo, file, name, code string, keywords []string) ([]similarHit, error) {
	cfg := t.Settings.PRSimilar
	text := name + "\n" + strings.Join(keywords, ", ") + "\n" + code
	vectors, err := t.Embedder.Embed(ctx, cfg.EmbeddingModel, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domainErrors.ErrInvalidAIOutput.WithContext("model", cfg.EmbeddingModel)
	}
	self := vectordb.Record{
		Repo:      repo,
		Component: name,
		File:      file,
		URL:       t.Provider.LineLink(file, -1, -1),
		Vector:    vectors[0],
	}
	if err := t.Index.Upsert(ctx, []vectordb.Record{self}); err != nil {
		logger.Warn(ctx, "failed to index component", "error", err)
	}

	scope := repo
	if cfg.SearchFromOrg {
		scope = ""
	}
	matches, err := t.Index.Query(ctx, scope, vectors[0], max(cfg.NumberOfResults, 1)+1)
	if err != nil {
		return nil, err
	}
	var hits []similarHit
	for _, m := range matches {
		if m.ID() == self.ID() {
			continue
		}
		hits = append(hits, similarHit{Repository: m.Repo, File: m.File, Component: m.Component, URL: m.URL, Score: m.Score})
		if len(hits) >= max(cfg.NumberOfResults, 1) {
			break
		}
	}
	return hits, nil
}

func (t *SimilarCode) render(name, file string, keywords []string, hits []similarHit) string {
	var b strings.Builder
	b.WriteString(SimilarHeader + "\n\n")
	fmt.Fprintf(&b, "**Component:** `%s` in `%s`\n\n", name, file)
	if len(keywords) > 0 {
		fmt.Fprintf(&b, "**Search keywords:** %s\n\n", strings.Join(keywords, ", "))
	}
	if len(hits) == 0 {
		b.WriteString("No similar code was found.\n")
		return b.String()
	}
	if !t.gfm() {
		for i, h := range hits {
			fmt.Fprintf(&b, "%d. %s `%s` %s (%.2f)\n", i+1, h.Repository, h.File, h.URL, h.Score)
		}
		return b.String()
	}
	b.WriteString("<table><thead><tr><th></th><th align=\"left\">Repository</th><th align=\"left\">File</th><th align=\"left\">Component</th><th>Similarity</th></tr></thead><tbody>\n")
	for i, h := range hits {
		link := h.File
		if h.URL != "" {
			link = fmt.Sprintf("<a href=\"%s\">%s</a>", h.URL, h.File)
		}
		fmt.Fprintf(&b, "<tr><td>%d</td><td>%s</td><td>%s</td><td><code>%s</code></td><td align=center>%.2f</td></tr>\n",
			i+1, h.Repository, link, h.Component, h.Score)
	}
	b.WriteString("</tbody></table>\n")
	return b.String()
}

// repoOf derives "owner/repo" from the provider's PR id ("owner/repo#12").
func repoOf(p vcs.Provider) string {
	id := p.PRID()
	if i := strings.LastIndex(id, "#"); i >= 0 {
		return id[:i]
	}
	return id
}
