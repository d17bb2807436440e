package markdown

import (
	"fmt"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/yamlfix"
)

// ParseCodeSuggestion renders one code feedback entry. With GFM and a
// relevant_line it produces an HTML table, otherwise a markdown list.
func ParseCodeSuggestion(s yamlfix.Map, gfm bool) string {
	var b strings.Builder
	if gfm && s.Has("relevant_line") {
		b.WriteString("<table>")
		for _, it := range s {
			value := yamlfix.Str(it.Value)
			switch strings.ToLower(it.Key) {
			case "relevant_file":
				file := strings.Trim(strings.Trim(strings.Trim(value, "`"), `"`), "'")
				fmt.Fprintf(&b, "<tr><td>relevant file</td><td>%s</td></tr>", file)
			case "suggestion":
				fmt.Fprintf(&b, "<tr><td>%s &nbsp;&nbsp;&nbsp;&nbsp;&nbsp;</td><td>\n\n<strong>\n\n%s\n\n</strong>\n</td></tr>", it.Key, strings.TrimSpace(value))
			case "relevant_line":
				b.WriteString("<tr><td>relevant line</td>")
				parts := strings.Split(value, "](")
				line := strings.TrimLeft(strings.TrimLeft(parts[0], "`"), "[")
				if len(parts) > 1 {
					link := strings.Trim(strings.TrimRight(parts[1], ")"), "`")
					fmt.Fprintf(&b, "<td><a href='%s'>%s</a></td>", link, line)
				} else {
					fmt.Fprintf(&b, "<td>%s</td>", line)
				}
				b.WriteString("</tr>")
			}
		}
		b.WriteString("</table><hr>")
		return b.String()
	}

	for _, it := range s {
		key := strings.TrimRight(it.Key, " \t\n")
		if sub, ok := it.Value.(yamlfix.Map); ok {
			fmt.Fprintf(&b, "  - **%s:**\n", key)
			for _, code := range sub {
				block := fmt.Sprintf("```\n%s\n```", yamlfix.Str(code.Value))
				fmt.Fprintf(&b, "    - **%s:**\n%s\n", code.Key, indent(block, "        "))
			}
			continue
		}
		value := yamlfix.Str(it.Value)
		if _, isString := it.Value.(string); isString {
			value = strings.TrimRight(value, " \t\n")
		}
		if strings.Contains(strings.ToLower(key), "relevant_file") {
			fmt.Fprintf(&b, "\n  - **%s:** %s  \n", key, value)
		} else {
			fmt.Fprintf(&b, "   **%s:** %s  \n", key, value)
		}
		if !strings.Contains(strings.ToLower(key), "relevant_line") {
			text := strings.TrimRight(b.String(), "\n") + "   \n"
			b.Reset()
			b.WriteString(text)
		}
	}
	b.WriteString("\n")
	return b.String()
}

// indent prefixes every non-blank line of text.
func indent(text, prefix string) string {
	lines := strings.SplitAfter(text, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "")
}

// Dedent removes the leading whitespace common to all non-blank lines.
func Dedent(text string) string {
	lines := strings.Split(text, "\n")
	margin := ""
	first := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		ws := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		switch {
		case first:
			margin, first = ws, false
		case strings.HasPrefix(ws, margin):
		case strings.HasPrefix(margin, ws):
			margin = ws
		default:
			n := 0
			for n < len(ws) && n < len(margin) && ws[n] == margin[n] {
				n++
			}
			margin = margin[:n]
		}
	}
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = strings.TrimPrefix(l, margin)
	}
	return strings.Join(lines, "\n")
}
