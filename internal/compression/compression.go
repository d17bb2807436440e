// Package compression turns the files of a pull request into diffs that fit
// a model's context window.
package compression

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/config"
	"github.com/khulnasoft/pr-insight/internal/diff"
	"github.com/khulnasoft/pr-insight/internal/language"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/tokens"
)

const (
	OutputBufferTokensSoftThreshold = 1500
	OutputBufferTokensHardThreshold = 1000
	MaxExtraLines                   = 10

	PolicyClip = "clip"
	PolicySkip = "skip"
)

const (
	addedFilesHeader    = "Additional added files (insufficient token budget to process):"
	modifiedFilesHeader = "Additional modified files (insufficient token budget to process):"
	deletedFilesHeader  = "Deleted files:"

	maxClipAttempts = 3
)

// Source supplies the changed files of a PR and the repository languages.
type Source interface {
	DiffFiles(ctx context.Context) ([]models.FilePatchInfo, error)
	Languages(ctx context.Context) (map[string]int, error)
}

// Options controls a Compressor.
type Options struct {
	Model                 string
	MaxTokens             int
	PromptTokens          int
	AddLineNumbers        bool
	ExtraLinesBefore      int
	ExtraLinesAfter       int
	DynamicContext        bool
	MaxBeforeDynamic      int
	LargePatchPolicy      string
	UseExtraBadExtensions bool
	LargePRHandling       bool
	MaxAICalls            int
}

// OptionsFromSettings reads the patch and token settings for model.
func OptionsFromSettings(s *config.Settings, model string) (Options, error) {
	maxTokens, err := tokens.ModelMaxTokens(model, s.Config.MaxModelTokens, s.Config.CustomModelMaxTokens)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Model:                 model,
		MaxTokens:             maxTokens,
		ExtraLinesBefore:      min(s.Config.PatchExtraLinesBefore, MaxExtraLines),
		ExtraLinesAfter:       min(s.Config.PatchExtraLinesAfter, MaxExtraLines),
		DynamicContext:        s.Config.AllowDynamicContext,
		MaxBeforeDynamic:      s.Config.MaxExtraLinesBeforeDynamicContext,
		LargePatchPolicy:      s.Config.LargePatchPolicy,
		UseExtraBadExtensions: s.Config.UseExtraBadExtensions,
		MaxAICalls:            s.PRDescription.MaxAICalls,
	}, nil
}

// Compressor builds token-bounded diffs for one model and prompt.
type Compressor struct {
	enc  *tokens.Encoder
	opts Options
}

// New returns a Compressor counting tokens with the model's encoder.
func New(opts Options) *Compressor {
	return &Compressor{enc: tokens.ForModel(opts.Model), opts: opts}
}

// SetPrompt records the token size of the rendered prompt without the diff.
func (c *Compressor) SetPrompt(system, user string) {
	c.opts.PromptTokens = c.enc.Count(system) + c.enc.Count(user)
}

func (c *Compressor) PromptTokens() int { return c.opts.PromptTokens }
func (c *Compressor) MaxTokens() int    { return c.opts.MaxTokens }
func (c *Compressor) Count(text string) int {
	return c.enc.Count(text)
}

// Clip shortens text to maxTokens.
func (c *Compressor) Clip(text string, maxTokens int) string {
	return c.enc.ClipTokens(text, maxTokens, tokens.DefaultClip)
}

// Result is a single diff ready for one prompt.
type Result struct {
	Diff string
	// Language is the language of the first file group, "" for Other only.
	Language string
	// Remaining lists the files whose patches did not fit.
	Remaining []string
	Deleted   []string
	// LargePR is set when large PR handling is enabled and the changes need
	// more than one call. Diff is empty in that case.
	LargePR bool
}

// MultiResult is a diff split into token-bounded chunks.
type MultiResult struct {
	Patches        []string
	FilesInPatches [][]string
	Remaining      []string
	Deleted        []string
	Language       string
}

type fileEntry struct {
	filename string
	patch    string
	tokens   int
	editType models.EditType
}

type chunk struct {
	patches []string
	tokens  int
	files   []string
}

// GetPRDiff returns the full extended diff when it fits the model, or a
// compressed diff with the leftover files listed by name.
func (c *Compressor) GetPRDiff(ctx context.Context, src Source) (Result, error) {
	groups, err := c.groups(ctx, src)
	if err != nil {
		return Result{}, err
	}

	res := Result{Language: mainLanguage(groups)}
	patches, total := c.extendedDiff(ctx, groups)
	if total+OutputBufferTokensSoftThreshold < c.opts.MaxTokens {
		res.Diff = strings.Join(patches, "\n")
		return res, nil
	}

	entries, deleted := c.compressedFiles(ctx, groups)
	res.Deleted = deleted
	calls := 1
	if c.opts.LargePRHandling {
		calls = max(c.opts.MaxAICalls, 1)
	}
	chunks, _ := c.chunks(ctx, entries, calls)
	if c.opts.LargePRHandling && len(chunks) > 1 {
		logger.Info(ctx, "large PR handling, diff needs several calls", "chunks", len(chunks))
		res.LargePR = true
		return res, nil
	}

	var first chunk
	if len(chunks) > 0 {
		first = chunks[0]
	} else {
		first.tokens = c.opts.PromptTokens
	}
	inPatch := make(map[string]bool, len(first.files))
	for _, f := range first.files {
		inPatch[f] = true
	}

	final := strings.Join(first.patches, "\n")
	budget := c.opts.MaxTokens - OutputBufferTokensHardThreshold
	curr := first.tokens

	var added, modified []string
	if budget-curr > 10 {
		for _, e := range entries {
			if inPatch[e.filename] {
				continue
			}
			switch e.editType {
			case models.EditTypeAdded:
				added = append(added, e.filename)
			case models.EditTypeModified, models.EditTypeRenamed:
				modified = append(modified, e.filename)
			}
		}
	}
	res.Remaining = append(append([]string{}, added...), modified...)

	for _, list := range []struct {
		header string
		files  []string
	}{
		{addedFilesHeader, added},
		{modifiedFilesHeader, modified},
		{deletedFilesHeader, deleted},
	} {
		if len(list.files) == 0 {
			continue
		}
		s := c.Clip(list.header+"\n"+strings.Join(list.files, "\n"), budget-curr)
		if s == "" {
			continue
		}
		final += "\n\n" + s
		curr += c.enc.Count(s) + 2
	}

	res.Diff = final
	return res, nil
}

// GetPRDiffMultiplePatches splits the compressed diff into at most
// MaxAICalls chunks.
func (c *Compressor) GetPRDiffMultiplePatches(ctx context.Context, src Source) (MultiResult, error) {
	groups, err := c.groups(ctx, src)
	if err != nil {
		return MultiResult{}, err
	}
	// token counts drive the order inside each language group
	c.extendedDiff(ctx, groups)

	entries, deleted := c.compressedFiles(ctx, groups)
	chunks, remaining := c.chunks(ctx, entries, max(c.opts.MaxAICalls, 1))

	res := MultiResult{Remaining: remaining, Deleted: deleted, Language: mainLanguage(groups)}
	for _, ch := range chunks {
		res.Patches = append(res.Patches, strings.Join(ch.patches, "\n"))
		res.FilesInPatches = append(res.FilesInPatches, ch.files)
	}
	return res, nil
}

// GetPRMultiDiffs returns one diff when the whole PR fits, otherwise up to
// maxCalls diffs that each fit the model on their own.
func (c *Compressor) GetPRMultiDiffs(ctx context.Context, src Source, maxCalls int) ([]string, error) {
	groups, err := c.groups(ctx, src)
	if err != nil {
		return nil, err
	}

	patches, total := c.extendedDiff(ctx, groups)
	if total+OutputBufferTokensSoftThreshold < c.opts.MaxTokens {
		if len(patches) == 0 {
			return nil, nil
		}
		return []string{strings.Join(patches, "\n")}, nil
	}

	limit := c.opts.MaxTokens - OutputBufferTokensSoftThreshold
	var (
		out     []string
		current []string
	)
	total = c.opts.PromptTokens
	call := 1
	for _, file := range sortedByTokens(groups) {
		if call > maxCalls {
			logger.Debug(ctx, "maximal number of diff chunks reached", "max_calls", maxCalls)
			break
		}
		if file.Patch == "" {
			continue
		}
		patch, ok := diff.HandlePatchDeletions(ctx, file.Patch, file.BaseFile, file.HeadFile, file.Filename, file.EditType)
		if !ok || patch == "" {
			continue
		}
		patch = c.render(patch, file)
		n := c.enc.Count(patch)

		if c.opts.PromptTokens+n > limit {
			clipped, cn, fits := c.clipToFit(patch, n, limit-c.opts.PromptTokens)
			if !fits {
				logger.Warn(ctx, "patch too large, skipping", "file", file.Filename)
				continue
			}
			logger.Info(ctx, "clipped large patch", "file", file.Filename)
			patch, n = clipped, cn
		}

		if total+n > limit && len(current) > 0 {
			out = append(out, strings.Join(current, "\n"))
			current = nil
			total = c.opts.PromptTokens
			call++
			if call > maxCalls {
				break
			}
		}
		current = append(current, patch)
		total += n
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, "\n"))
	}
	return out, nil
}

func (c *Compressor) groups(ctx context.Context, src Source) ([]language.FileGroup, error) {
	files, err := src.DiffFiles(ctx)
	if err != nil {
		return nil, err
	}
	languages, err := src.Languages(ctx)
	if err != nil {
		logger.Warn(ctx, "could not load repository languages", "error", err)
		languages = nil
	}
	return language.SortFilesByMainLanguages(languages, files, c.opts.UseExtraBadExtensions), nil
}

// extendedDiff renders every patch with extra context. It records the token
// size of each file in groups and returns the total including the prompt.
func (c *Compressor) extendedDiff(ctx context.Context, groups []language.FileGroup) ([]string, int) {
	total := c.opts.PromptTokens
	var patches []string
	for gi := range groups {
		for fi := range groups[gi].Files {
			file := &groups[gi].Files[fi]
			if file.Patch == "" {
				continue
			}
			extended := diff.ExtendPatch(ctx, file.BaseFile, file.Patch, file.HeadFile, diff.ExtendOptions{
				Before:           c.opts.ExtraLinesBefore,
				After:            c.opts.ExtraLinesAfter,
				DynamicContext:   c.opts.DynamicContext,
				MaxBeforeDynamic: c.opts.MaxBeforeDynamic,
				Filename:         file.Filename,
			})
			if extended == "" {
				logger.Warn(ctx, "empty extended patch", "file", file.Filename)
				continue
			}

			var full string
			if c.opts.AddLineNumbers {
				full = diff.DecoupleHunks(extended, *file)
			} else {
				full = fmt.Sprintf("\n\n## File: '%s'\n%s\n", strings.TrimSpace(file.Filename), strings.TrimRight(extended, " \t\n"))
			}
			n := c.enc.Count(full)
			file.Tokens = n
			total += n
			patches = append(patches, full)
		}
	}
	return patches, total
}

// compressedFiles drops deletion-only hunks and collects deleted files.
func (c *Compressor) compressedFiles(ctx context.Context, groups []language.FileGroup) ([]fileEntry, []string) {
	var (
		entries []fileEntry
		deleted []string
		seen    = map[string]bool{}
	)
	for _, file := range sortedByTokens(groups) {
		if file.Patch == "" {
			continue
		}
		patch, ok := diff.HandlePatchDeletions(ctx, file.Patch, file.BaseFile, file.HeadFile, file.Filename, file.EditType)
		if !ok {
			if !seen[file.Filename] {
				seen[file.Filename] = true
				deleted = append(deleted, file.Filename)
			}
			continue
		}
		if c.opts.AddLineNumbers {
			patch = diff.DecoupleHunks(patch, file)
		}
		entries = append(entries, fileEntry{
			filename: file.Filename,
			patch:    patch,
			tokens:   c.enc.Count(patch),
			editType: file.EditType,
		})
	}
	return entries, deleted
}

// chunks fills up to calls chunks, each starting from the files left over
// by the previous one.
func (c *Compressor) chunks(ctx context.Context, entries []fileEntry, calls int) ([]chunk, []string) {
	pending := make(map[string]bool, len(entries))
	for _, e := range entries {
		pending[e.filename] = true
	}

	var (
		out       []chunk
		remaining []string
	)
	for call := 0; call < calls; call++ {
		var ch chunk
		ch, remaining = c.fullPatch(ctx, entries, pending)
		if len(ch.patches) > 0 {
			out = append(out, ch)
		}
		if len(remaining) == 0 {
			break
		}
		pending = make(map[string]bool, len(remaining))
		for _, f := range remaining {
			pending[f] = true
		}
	}
	return out, remaining
}

func (c *Compressor) fullPatch(ctx context.Context, entries []fileEntry, pending map[string]bool) (chunk, []string) {
	ch := chunk{tokens: c.opts.PromptTokens}
	var remaining []string
	for _, e := range entries {
		if !pending[e.filename] {
			continue
		}
		if ch.tokens > c.opts.MaxTokens-OutputBufferTokensHardThreshold {
			logger.Warn(ctx, "file was fully skipped, no more tokens", "file", e.filename)
			remaining = append(remaining, e.filename)
			continue
		}

		patch, n := e.patch, e.tokens
		limit := c.opts.MaxTokens - OutputBufferTokensSoftThreshold
		if ch.tokens+n > limit {
			clipped, cn, fits := c.clipToFit(patch, n, limit-ch.tokens)
			if !fits {
				logger.Debug(ctx, "patch does not fit the remaining budget", "file", e.filename, "tokens", n)
				remaining = append(remaining, e.filename)
				continue
			}
			logger.Info(ctx, "clipped large patch", "file", e.filename)
			patch, n = clipped, cn
		}
		if patch == "" {
			continue
		}

		var final string
		if c.opts.AddLineNumbers {
			final = "\n\n" + strings.TrimSpace(patch)
		} else {
			final = fmt.Sprintf("\n\n## File: '%s'\n\n%s\n", strings.TrimSpace(e.filename), strings.TrimSpace(patch))
		}
		ch.patches = append(ch.patches, final)
		ch.tokens += c.enc.Count(final)
		ch.files = append(ch.files, e.filename)
	}
	return ch, remaining
}

// clipToFit clips patch to budget tokens under the clip policy. The
// truncation marker counts against the budget; an estimate that still
// overshoots is retried with the overshoot taken off.
func (c *Compressor) clipToFit(patch string, n, budget int) (string, int, bool) {
	if c.opts.LargePatchPolicy != PolicyClip || budget <= 0 {
		return "", 0, false
	}
	target := budget - c.enc.Count(tokens.TruncationMarker)
	for attempt := 0; attempt < maxClipAttempts && target > 0; attempt++ {
		clipped := c.enc.ClipTokens(patch, target, tokens.ClipOptions{
			AddThreeDots:   true,
			NumInputTokens: n,
			DeleteLastLine: true,
		})
		if clipped == "" {
			return "", 0, false
		}
		cn := c.enc.Count(clipped)
		if cn <= budget {
			return clipped, cn, true
		}
		target -= cn - budget
	}
	return "", 0, false
}

func (c *Compressor) render(patch string, file models.FilePatchInfo) string {
	if c.opts.AddLineNumbers {
		return diff.DecoupleHunks(patch, file)
	}
	return diff.PlainFilePatch(patch, file)
}

func sortedByTokens(groups []language.FileGroup) []models.FilePatchInfo {
	var out []models.FilePatchInfo
	for _, g := range groups {
		files := append([]models.FilePatchInfo(nil), g.Files...)
		sort.SliceStable(files, func(i, j int) bool { return files[i].Tokens > files[j].Tokens })
		out = append(out, files...)
	}
	return out
}

func mainLanguage(groups []language.FileGroup) string {
	if len(groups) == 0 || groups[0].Language == language.OtherLanguage {
		return ""
	}
	return groups[0].Language
}
