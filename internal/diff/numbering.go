package diff

import (
	"fmt"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/models"
)

// DecoupleHunks rewrites patch into "__new hunk__" sections with line numbers
// on every new line, followed by "__old hunk__" sections for removed lines.
func DecoupleHunks(patch string, file models.FilePatchInfo) string {
	name := strings.TrimSpace(file.Filename)
	if file.EditType == models.EditTypeDeleted {
		return fmt.Sprintf("\n\n## File '%s' was deleted\n", name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n\n## File: '%s'\n", name)

	lines := SplitLines(patch)
	var (
		newLines, oldLines []string
		header, prevHeader string
		matched            bool
		start2             int
	)
	flush := func(headerLine string) {
		if headerLine != "" {
			fmt.Fprintf(&b, "\n%s\n", headerLine)
		}
		plus := anyPrefix(newLines, "+")
		minus := anyPrefix(oldLines, "-")
		if plus || minus {
			trimRight(&b)
			b.WriteString("\n__new hunk__\n")
			for i, l := range newLines {
				fmt.Fprintf(&b, "%d %s\n", start2+i, l)
			}
		}
		if minus {
			trimRight(&b)
			b.WriteString("\n__old hunk__\n")
			for _, l := range oldLines {
				b.WriteString(l + "\n")
			}
		}
	}

	for i, line := range lines {
		if strings.Contains(strings.ToLower(line), "no newline at end of file") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "@@"):
			header = line
			h, ok := ParseHunkHeader(line)
			if ok && (len(newLines) > 0 || len(oldLines) > 0) {
				flush(prevHeader)
				newLines, oldLines = nil, nil
			}
			if ok {
				matched = true
				prevHeader = header
				start2 = h.Start2
			}
		case strings.HasPrefix(line, "+"):
			newLines = append(newLines, line)
		case strings.HasPrefix(line, "-"):
			oldLines = append(oldLines, line)
		default:
			if line == "" && i > 0 {
				if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "@@") {
					continue
				}
				if i+1 == len(lines) {
					continue
				}
			}
			newLines = append(newLines, line)
			oldLines = append(oldLines, line)
		}
	}
	if matched && len(newLines) > 0 {
		flush(header)
	}
	return strings.TrimRight(b.String(), " \t\n")
}

// PlainFilePatch is the un-numbered rendering of a file patch.
func PlainFilePatch(patch string, file models.FilePatchInfo) string {
	patch = strings.ReplaceAll(patch, "\n@@ ", "\n\n@@ ")
	return fmt.Sprintf("\n\n## File: '%s'\n\n%s\n", strings.TrimSpace(file.Filename), strings.TrimSpace(patch))
}

// ExtractHunkLines returns the hunks of patch that contain lineStart on the
// given side ("left" or "right") and the selected lines themselves.
func ExtractHunkLines(patch, filename string, lineStart, lineEnd int, side string) (hunks, selected string) {
	var hb, sb strings.Builder
	fmt.Fprintf(&hb, "\n\n## File: '%s'\n\n", strings.TrimSpace(filename))
	side = strings.ToLower(side)

	var (
		h        HunkHeader
		skip     bool
		selCount int
	)
	for _, line := range SplitLines(patch) {
		if strings.Contains(strings.ToLower(line), "no newline at end of file") {
			continue
		}
		if strings.HasPrefix(line, "@@") {
			skip = false
			selCount = 0
			h, _ = ParseHunkHeader(line)
			switch side {
			case "left":
				skip = !(h.Start1 <= lineStart && lineStart <= h.Start1+h.Size1)
			case "right":
				skip = !(h.Start2 <= lineStart && lineStart <= h.Start2+h.Size2)
			}
			if !skip {
				fmt.Fprintf(&hb, "\n%s\n", line)
			}
			continue
		}
		if skip {
			continue
		}
		if side == "right" && lineStart <= h.Start2+selCount && h.Start2+selCount <= lineEnd {
			sb.WriteString(line + "\n")
		}
		if side == "left" && h.Start1+selCount <= lineEnd {
			sb.WriteString(line + "\n")
		}
		hb.WriteString(line + "\n")
		if !strings.HasPrefix(line, "-") {
			selCount++
		}
	}
	return strings.TrimRight(hb.String(), " \t\n"), strings.TrimRight(sb.String(), " \t\n")
}

func anyPrefix(lines []string, prefix string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

func trimRight(b *strings.Builder) {
	s := strings.TrimRight(b.String(), " \t\n")
	b.Reset()
	b.WriteString(s)
}
