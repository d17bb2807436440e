// Package diff works on unified diff patches: hunk headers, context
// extension, deletion pruning, line numbering and line lookup.
package diff

import (
	"strconv"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/regex"
)

// HunkHeader is a parsed "@@ -start1,size1 +start2,size2 @@ section" line.
type HunkHeader struct {
	Start1, Size1 int
	Start2, Size2 int
	Section       string
}

// ParseHunkHeader parses line. Omitted sizes are reported as 0.
func ParseHunkHeader(line string) (HunkHeader, bool) {
	m := regex.HunkHeader.FindStringSubmatch(line)
	if m == nil {
		return HunkHeader{}, false
	}
	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	return HunkHeader{
		Start1:  atoi(m[1]),
		Size1:   atoi(m[2]),
		Start2:  atoi(m[3]),
		Size2:   atoi(m[4]),
		Section: m[5],
	}, true
}

// SplitLines splits s on line boundaries without keeping a trailing empty
// element.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// CountChanges returns the number of added and removed lines in patch.
func CountChanges(patch string) (plus, minus int) {
	for _, line := range SplitLines(patch) {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			plus++
		case strings.HasPrefix(line, "-"):
			minus++
		}
	}
	return plus, minus
}
