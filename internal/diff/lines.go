package diff

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/khulnasoft/pr-insight/internal/models"
)

// closeMatchCutoff is the similarity ratio above which a model-quoted line is
// considered the same as a patch line.
const closeMatchCutoff = 0.93

// FindLineNumber locates relevantLine in the patch of file relevantFile. It
// returns the line's index inside the patch and its line number in the new
// file, or (-1, -1) when the line is absent or was deleted.
func FindLineNumber(files []models.FilePatchInfo, relevantFile, relevantLine string) (position, absolute int) {
	position, absolute = -1, -1
	for _, f := range files {
		if f.Filename == "" || strings.TrimSpace(f.Filename) != relevantFile {
			continue
		}
		lines := SplitLines(f.Patch)

		if m := CloseMatches(relevantLine, lines, 3, closeMatchCutoff); len(m) == 1 && strings.HasPrefix(m[0], "+") {
			relevantLine = m[0]
		}
		if p, a, ok := scanPatch(lines, relevantLine); ok {
			return p, a
		}
		if strings.HasPrefix(relevantLine, "+") {
			noPlus := strings.TrimLeft(relevantLine[1:], " \t")
			if p, a, ok := scanPatch(lines, noPlus); ok {
				return p, a
			}
		}
	}
	return position, absolute
}

// LineAtAbsolute maps a new-file line number to its index inside patch.
func LineAtAbsolute(patch string, absolute int) int {
	start2, delta := 0, 0
	for i, line := range SplitLines(patch) {
		if strings.HasPrefix(line, "@@") {
			delta = 0
			if h, ok := ParseHunkHeader(line); ok {
				start2 = h.Start2
			}
		} else if !strings.HasPrefix(line, "-") {
			delta++
		}
		if start2+delta-1 == absolute {
			return i
		}
	}
	return -1
}

func scanPatch(lines []string, needle string) (position, absolute int, ok bool) {
	start2, delta := 0, 0
	for i, line := range lines {
		if strings.HasPrefix(line, "@@") {
			delta = 0
			if h, ok := ParseHunkHeader(line); ok {
				start2 = h.Start2
			}
		} else if !strings.HasPrefix(line, "-") {
			delta++
		}
		if line != "" && line[0] != '-' && strings.Contains(line, needle) {
			return i, start2 + delta - 1, true
		}
	}
	return -1, -1, false
}

// CloseMatches returns up to n candidates whose character similarity ratio
// with word is at least cutoff, best first.
func CloseMatches(word string, candidates []string, n int, cutoff float64) []string {
	type scored struct {
		s     string
		ratio float64
	}
	a := chars(word)
	m := difflib.NewMatcher(nil, a)
	var res []scored
	for _, c := range candidates {
		m.SetSeq1(chars(c))
		if m.RealQuickRatio() >= cutoff && m.QuickRatio() >= cutoff {
			if r := m.Ratio(); r >= cutoff {
				res = append(res, scored{c, r})
			}
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].ratio != res[j].ratio {
			return res[i].ratio > res[j].ratio
		}
		return res[i].s > res[j].s
	})
	if len(res) > n {
		res = res[:n]
	}
	out := make([]string, len(res))
	for i, r := range res {
		out[i] = r.s
	}
	return out
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
