package tools

import (
	"strings"

	"github.com/khulnasoft/pr-insight/internal/diff"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/regex"
)

const maxComponentLines = 200

// component is a definition touched by the PR.
type component struct {
	File   string
	Name   string
	Kind   string
	Change string
}

func componentKind(keyword string) string {
	switch keyword {
	case "class":
		return "class"
	case "interface", "struct", "type":
		return "type"
	default:
		return "function"
	}
}

// changedComponents lists the definitions on added or removed lines, plus
// the enclosing definition each hunk header names. A name seen with
// different changes is reported as modified.
func changedComponents(files []models.FilePatchInfo) []component {
	var out []component
	seen := map[string]int{}
	add := func(file, line, change string) {
		d := regex.ComponentDefinition.FindStringSubmatch(line)
		if d == nil {
			return
		}
		key := file + "\x00" + d[2]
		if i, ok := seen[key]; ok {
			if out[i].Change != change {
				out[i].Change = "modified"
			}
			return
		}
		seen[key] = len(out)
		out = append(out, component{File: file, Name: d[2], Kind: componentKind(d[1]), Change: change})
	}

	for _, f := range files {
		for _, line := range diff.SplitLines(f.Patch) {
			switch {
			case strings.HasPrefix(line, "@@"):
				if m := regex.HunkHeader.FindStringSubmatch(line); m != nil {
					add(f.Filename, m[5], "modified")
				}
			case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			case strings.HasPrefix(line, "+"):
				add(f.Filename, line[1:], "added")
			case strings.HasPrefix(line, "-"):
				add(f.Filename, line[1:], "deleted")
			}
		}
	}
	return out
}

// findComponent locates the named definition in the PR files. hint, when
// set, restricts the search to files whose path contains it.
func findComponent(files []models.FilePatchInfo, name, hint string) (models.FilePatchInfo, string, bool) {
	for _, f := range files {
		if hint != "" && !strings.Contains(f.Filename, hint) {
			continue
		}
		source := f.HeadFile
		if source == "" {
			source = f.BaseFile
		}
		if code := componentCode(source, name); code != "" {
			return f, code, true
		}
	}
	return models.FilePatchInfo{}, "", false
}

// componentCode returns the definition of name and its body: the lines up
// to the next definition at the same or a lower indentation.
func componentCode(source, name string) string {
	lines := strings.Split(source, "\n")
	start := -1
	for i, l := range lines {
		if d := regex.ComponentDefinition.FindStringSubmatch(l); d != nil && d[2] == name {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}
	indent := indentation(lines[start])
	end := len(lines)
	for i := start + 1; i < len(lines) && i-start < maxComponentLines; i++ {
		l := lines[i]
		if strings.TrimSpace(l) == "" {
			continue
		}
		if indentation(l) <= indent && regex.ComponentDefinition.MatchString(l) {
			end = i
			break
		}
		end = i + 1
	}
	return strings.TrimRight(strings.Join(lines[start:end], "\n"), "\n ")
}

func indentation(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}
