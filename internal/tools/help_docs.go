package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/compression"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/yamlfix"
)

const helpDocsPrompt = "pr_help_docs_prompts"

var (
	wordPattern   = regexp.MustCompile(`[a-z0-9_]+`)
	anchorInvalid = regexp.MustCompile(`[^a-z0-9 _-]`)
	stopWords     = []string{
		"the", "and", "for", "how", "what", "can", "does", "with", "this", "that",
		"are", "you", "your", "use", "from", "when", "which", "why", "who", "there",
	}
)

// docSection is one heading and its text.
type docSection struct {
	File   string
	Header string
	Text   string
	score  int
}

// HelpDocs answers a question from the repository documentation. Docs are
// read from the checkout the command runs in.
type HelpDocs struct {
	base
	docs fs.FS
}

func NewHelpDocs(d Deps, args []string) *HelpDocs {
	return &HelpDocs{base: newBase(d, "help_docs", args), docs: os.DirFS(".")}
}

// WithDocs reads documentation from fsys instead of the working directory.
func (t *HelpDocs) WithDocs(fsys fs.FS) *HelpDocs {
	t.docs = fsys
	return t
}

func (t *HelpDocs) Run(ctx context.Context) (string, error) {
	ctx = logger.With(ctx, "tool", t.command, "pr_url", t.Provider.PRURL())
	cfg := t.Settings.PRHelpDocs
	question := questionText(t.freeText())
	if question == "" {
		return "", domainErrors.ErrMissingArgument.
			WithContext("argument", "question").
			WithSuggestion("Usage: /help_docs \"your question\"")
	}

	sections, err := t.loadSections()
	if err != nil {
		return "", err
	}
	if len(sections) == 0 {
		return "", domainErrors.ErrRepositoryNotFound.
			WithContext("docs_path", cfg.DocsPath).
			WithSuggestion("Set pr_help_docs.docs_path to the documentation folder of the repository")
	}
	sections = rankSections(sections, question, max(cfg.MaxSections, 1))
	logger.Debug(ctx, "documentation sections selected", "count", len(sections))

	t.progress(ctx, "preparing_answer")
	vars := map[string]any{
		"docs_url": t.docsURL(),
		"question": question,
		"snippets": "",
	}
	data, err := ai.RetryWithFallbackModels(ctx, t.Settings, ai.ModelRegular, func(ctx context.Context, model string) (yamlfix.Map, error) {
		c, err := t.compressor(model, helpDocsPrompt, vars, false)
		if err != nil {
			return nil, err
		}
		v := cloneVars(vars)
		v["snippets"] = c.Clip(formatSections(sections), c.MaxTokens()-c.PromptTokens()-compression.OutputBufferTokensSoftThreshold)
		out, err := t.chat(ctx, model, helpDocsPrompt, v)
		if err != nil {
			return nil, err
		}
		data := yamlfix.Load(ctx, out, yamlfix.Options{
			KeysFix:  []string{"response:", "user_question:"},
			FirstKey: "user_question",
			LastKey:  "question_is_relevant",
		})
		if data == nil {
			return nil, domainErrors.ErrInvalidAIOutput.WithContext("prompt", helpDocsPrompt).WithContext("model", model)
		}
		return data, nil
	})
	if err != nil {
		t.clearProgress(ctx)
		return "", err
	}

	body := t.render(question, data)
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

func (t *HelpDocs) loadSections() ([]docSection, error) {
	cfg := t.Settings.PRHelpDocs
	exts := cfg.SupportedDocExts
	if len(exts) == 0 {
		exts = []string{".md", ".mdx", ".rst"}
	}
	root := path.Clean(strings.Trim(cfg.DocsPath, "/"))
	if root == "" {
		root = "."
	}

	var files []string
	err := fs.WalkDir(t.docs, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && slices.Contains(exts, strings.ToLower(path.Ext(p))) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if !cfg.ExcludeRootReadme && root != "." {
		if _, err := fs.Stat(t.docs, "README.md"); err == nil {
			files = append(files, "README.md")
		}
	}

	var sections []docSection
	for _, f := range files {
		src, err := fs.ReadFile(t.docs, f)
		if err != nil {
			return nil, err
		}
		sections = append(sections, splitSections(f, src)...)
	}
	return sections, nil
}

// splitSections cuts a markdown document at every heading. Text before the
// first heading is a section with an empty header.
func splitSections(file string, src []byte) []docSection {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	type mark struct {
		offset int
		header string
	}
	var marks []mark
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		seg := h.Lines().At(0)
		start := bytes.LastIndexByte(src[:seg.Start], '\n') + 1
		header := strings.Repeat("#", h.Level) + " " + strings.TrimSpace(string(seg.Value(src)))
		marks = append(marks, mark{offset: start, header: header})
	}

	var out []docSection
	add := func(header string, body []byte) {
		if s := strings.TrimSpace(string(body)); s != "" {
			out = append(out, docSection{File: file, Header: header, Text: s})
		}
	}
	if len(marks) == 0 {
		add("", src)
		return out
	}
	add("", src[:marks[0].offset])
	for i, m := range marks {
		end := len(src)
		if i+1 < len(marks) {
			end = marks[i+1].offset
		}
		add(m.header, src[m.offset:end])
	}
	return out
}

func questionWords(q string) []string {
	var out []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(q), -1) {
		if len(w) < 3 || slices.Contains(stopWords, w) || slices.Contains(out, w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// rankSections orders sections by how many question words they contain,
// header hits counting double, and keeps the best limit.
func rankSections(sections []docSection, question string, limit int) []docSection {
	words := questionWords(question)
	for i := range sections {
		header := strings.ToLower(sections[i].Header)
		body := strings.ToLower(sections[i].Text)
		score := 0
		for _, w := range words {
			if strings.Contains(header, w) {
				score += 2
			}
			if strings.Contains(body, w) {
				score++
			}
		}
		sections[i].score = score
	}
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].score > sections[j].score })
	if len(sections) > limit {
		sections = sections[:limit]
	}
	return sections
}

func formatSections(sections []docSection) string {
	var b strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&b, "==file name==\n\n%s\n\n==file content==\n\n%s\n=========\n\n", s.File, s.Text)
	}
	return b.String()
}

func (t *HelpDocs) docsURL() string {
	cfg := t.Settings.PRHelpDocs
	if cfg.RepoURL == "" {
		return cfg.DocsPath
	}
	branch := cfg.RepoDefaultBranch
	if branch == "" {
		branch = "main"
	}
	return strings.TrimSuffix(cfg.RepoURL, "/") + "/blob/" + branch + "/" + strings.Trim(cfg.DocsPath, "/")
}

func (t *HelpDocs) sectionLink(file, header string) string {
	cfg := t.Settings.PRHelpDocs
	var link string
	if cfg.RepoURL != "" {
		branch := cfg.RepoDefaultBranch
		if branch == "" {
			branch = "main"
		}
		link = strings.TrimSuffix(cfg.RepoURL, "/") + "/blob/" + branch + "/" + file
	} else {
		link = t.Provider.LineLink(file, -1, -1)
	}
	if anchor := headerAnchor(header); anchor != "" {
		link += "#" + anchor
	}
	return link
}

// headerAnchor builds the GitHub style anchor of a markdown heading.
func headerAnchor(header string) string {
	h := strings.ToLower(strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(header), "#")))
	h = anchorInvalid.ReplaceAllString(h, "")
	return strings.ReplaceAll(h, " ", "-")
}

func (t *HelpDocs) render(question string, data yamlfix.Map) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Question: \n%s\n\n", question)

	relevant := true
	if v, ok := data.Get("question_is_relevant"); ok {
		if n, ok := intOf(v); ok && n == 0 {
			relevant = false
		}
	}
	answer := strings.TrimSpace(data.String("response"))
	if !relevant || answer == "" {
		b.WriteString("### Answer:\nThe question does not appear to be related to the documentation of this repository.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "### Answer:\n%s\n\n", answer)

	var links []string
	for _, it := range data.List("relevant_sections") {
		m, ok := it.(yamlfix.Map)
		if !ok {
			continue
		}
		file := strings.TrimSpace(m.String("file_name"))
		if file == "" {
			continue
		}
		links = append(links, t.sectionLink(file, m.String("relevant_section_header_string")))
	}
	if len(links) > 0 {
		b.WriteString("#### Relevant Sources:\n\n")
		for _, l := range links {
			fmt.Fprintf(&b, "> - %s\n", l)
		}
	}
	if t.Settings.PRHelpDocs.EnableHelpText && t.gfm() {
		b.WriteString(usageGuide("help_docs"))
	}
	return b.String()
}
