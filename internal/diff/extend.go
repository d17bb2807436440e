package diff

import (
	"context"
	"fmt"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/language"
	"github.com/khulnasoft/pr-insight/internal/logger"
)

// ExtendOptions controls how much file context is added around each hunk.
type ExtendOptions struct {
	Before int
	After  int
	// DynamicContext widens Before up to MaxBeforeDynamic lines when that
	// reaches the hunk's enclosing section header.
	DynamicContext   bool
	MaxBeforeDynamic int
	Filename         string
}

// ExtendPatch adds unchanged lines from the original file before and after
// every hunk of patch. The patch is returned as-is when nothing can be
// extended.
func ExtendPatch(ctx context.Context, original, patch, newContent string, opts ExtendOptions) string {
	if patch == "" || original == "" || (opts.Before == 0 && opts.After == 0) {
		return patch
	}
	if opts.Filename != "" && !language.IsValidFile(opts.Filename, false) {
		return patch
	}
	return processPatchLines(ctx, patch, original, newContent, opts)
}

func processPatchLines(ctx context.Context, patch, original, newContent string, opts ExtendOptions) string {
	origLines := SplitLines(original)
	newLines := SplitLines(newContent)
	patchLines := SplitLines(patch)
	out := make([]string, 0, len(patchLines)+opts.Before+opts.After)

	validHunk := true
	start1, size1 := -1, -1
	for i, line := range patchLines {
		if !strings.HasPrefix(line, "@@") {
			out = append(out, line)
			continue
		}
		h, ok := ParseHunkHeader(line)
		if !ok {
			out = append(out, line)
			continue
		}
		if validHunk && start1 != -1 && opts.After > 0 {
			out = append(out, prefixed(slice(origLines, start1+size1-1, start1+size1-1+opts.After))...)
		}
		start1, size1 = h.Start1, h.Size1
		section := h.Section

		validHunk = hunkMatchesFile(ctx, i, origLines, patchLines, h.Start1)

		ext := h
		var delta []string
		if validHunk && (opts.Before > 0 || opts.After > 0) {
			found := false
			if opts.DynamicContext && len(newLines) > 0 {
				ext = contextLimits(h, opts.MaxBeforeDynamic, opts.After, len(origLines))
				beforeOrig := slice(origLines, ext.Start1-1, h.Start1-1)
				beforeNew := slice(newLines, ext.Start2-1, h.Start2-1)
				for j, l := range beforeOrig {
					if section == "" || !strings.Contains(l, section) {
						continue
					}
					ext.Start1 += j
					ext.Start2 += j
					ext.Size1 -= j
					ext.Size2 -= j
					if equalLines(beforeOrig[j:], tail(beforeNew, j)) {
						found = true
						section = ""
					}
					break
				}
			}
			if !found {
				ext = contextLimits(h, opts.Before, opts.After, len(origLines))
			}

			delta = prefixed(slice(origLines, ext.Start1-1, h.Start1-1))
			if len(newLines) > 0 {
				deltaNew := prefixed(slice(newLines, ext.Start2-1, h.Start2-1))
				if !equalLines(delta, deltaNew) {
					matched := false
					for j := range delta {
						if equalLines(delta[j:], tail(deltaNew, j)) {
							delta = delta[j:]
							ext.Start1 += j
							ext.Size1 -= j
							ext.Start2 += j
							ext.Size2 -= j
							matched = true
							break
						}
					}
					if !matched {
						ext = h
						delta = nil
					}
				}
			}
			if section != "" && !opts.DynamicContext {
				for _, l := range delta {
					if strings.Contains(l, section) {
						section = ""
						break
					}
				}
			}
		}
		out = append(out, "", fmt.Sprintf("@@ -%d,%d +%d,%d @@ %s", ext.Start1, ext.Size1, ext.Start2, ext.Size2, section))
		out = append(out, delta...)
	}

	if start1 != -1 && opts.After > 0 && validHunk {
		out = append(out, prefixed(slice(origLines, start1+size1-1, start1+size1-1+opts.After))...)
	}
	return strings.Join(out, "\n")
}

func contextLimits(h HunkHeader, before, after, origLen int) HunkHeader {
	ext := h
	ext.Start1 = max(1, h.Start1-before)
	ext.Size1 = h.Size1 + (h.Start1 - ext.Start1) + after
	ext.Start2 = max(1, h.Start2-before)
	ext.Size2 = h.Size2 + (h.Start2 - ext.Start2) + after
	if ext.Start1-1+ext.Size1 > origLen {
		capped := ext.Start1 - 1 + ext.Size1 - origLen
		ext.Size1 = max(ext.Size1-capped, h.Size1)
		ext.Size2 = max(ext.Size2-capped, h.Size2)
	}
	return ext
}

// hunkMatchesFile rejects hunks whose first context line disagrees with the
// original file, extending those would corrupt the patch.
func hunkMatchesFile(ctx context.Context, i int, origLines, patchLines []string, start1 int) bool {
	if i+1 >= len(patchLines) || !strings.HasPrefix(patchLines[i+1], " ") {
		return true
	}
	if start1 < 1 || start1 > len(origLines) {
		return true
	}
	if strings.TrimSpace(patchLines[i+1]) != strings.TrimSpace(origLines[start1-1]) {
		logger.Warn(ctx, "invalid hunk in PR, header line does not match the original file", "line", start1)
		return false
	}
	return true
}

func slice(lines []string, from, to int) []string {
	from = max(from, 0)
	to = min(to, len(lines))
	if from >= to {
		return nil
	}
	return lines[from:to]
}

func tail(lines []string, from int) []string {
	if from >= len(lines) {
		return nil
	}
	return lines[from:]
}

func prefixed(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = " " + l
	}
	return out
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
