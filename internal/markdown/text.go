package markdown

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/khulnasoft/pr-insight/internal/config"
	"github.com/khulnasoft/pr-insight/internal/regex"
)

// CountCharsWithoutHTML counts the characters of s outside HTML tags.
func CountCharsWithoutHTML(s string) int {
	if !strings.Contains(s, "<") {
		return utf8.RuneCountInString(s)
	}
	return utf8.RuneCountInString(regex.HTMLTag.ReplaceAllString(s, ""))
}

// ReplaceCodeTags turns `code` spans into <code> elements.
func ReplaceCodeTags(text string) string {
	parts := strings.Split(text, "`")
	for i := 1; i < len(parts); i += 2 {
		parts[i] = "<code>" + parts[i] + "</code>"
	}
	return strings.Join(parts, "")
}

// InsertBR wraps text for HTML table cells: a <br> goes after the word that
// pushes a line past x visible characters, and code spans are closed and
// reopened around the break.
func InsertBR(text string, x int) string {
	if CountCharsWithoutHTML(text) < x {
		return text
	}
	text = ReplaceCodeTags(text)

	if strings.HasPrefix(text, "- ") || strings.HasPrefix(text, "* ") {
		text = "<li>" + text[2:]
	}
	text = strings.NewReplacer("\n- ", "<br><li> ", "\n - ", "<br><li> ", "\n* ", "<br><li> ", "\n * ", "<br><li> ").Replace(text)
	text = strings.ReplaceAll(text, "\n", "<br>")

	lines := strings.Split(text, "<br>")
	var words []string
	for i, line := range lines {
		words = append(words, strings.Split(line, " ")...)
		if i < len(lines)-1 {
			words[len(words)-1] += "<br>"
		}
	}

	var out strings.Builder
	insideCode := false
	length := 0
	for _, w := range words {
		saved := w == "<code>" || w == "</code>" || w == "<li>" || w == "<br>"
		n := CountCharsWithoutHTML(w)
		if !saved && length+n > x {
			if insideCode {
				out.WriteString("</code><br><code>")
			} else {
				out.WriteString("<br>")
			}
			length = 0
		}
		out.WriteString(w + " ")
		if !saved {
			length += n + 1
		}
		if w == "<li>" || w == "<br>" {
			length = 0
		}
		if strings.Contains(w, "<code>") {
			insideCode = true
		}
		if strings.Contains(w, "</code>") {
			insideCode = false
		}
	}
	return strings.TrimSpace(out.String())
}

// EmphasizeHeader makes the text before the first ": " bold, as HTML or as
// markdown, optionally linked.
func EmphasizeHeader(text string, onlyMarkdown bool, link string) string {
	i := strings.Index(text, ": ")
	if i == -1 {
		return text
	}
	head, rest := text[:i+1], text[i+1:]
	switch {
	case onlyMarkdown && link != "":
		return fmt.Sprintf("[**%s**](%s)\n%s", head, link, rest)
	case onlyMarkdown:
		return fmt.Sprintf("**%s**\n%s", head, rest)
	case link != "":
		return fmt.Sprintf("<strong><a href='%s'>%s</a></strong><br>%s", link, head, rest)
	default:
		return "<strong>" + head + "</strong><br>" + rest
	}
}

var stripPolicy = bluemonday.StrictPolicy()

// StripHTML removes every HTML element from s, keeping the text.
func StripHTML(s string) string {
	return stripPolicy.Sanitize(s)
}

var configSkipKeys = []string{
	"ai_disclaimer", "ai_disclaimer_title", "analytics_folder", "secret_provider", "skip_keys",
	"app_id", "redirect", "trial_prefix_message", "no_eligible_message", "identity_provider",
	"allowed_repos", "app_name",
}

// RelevantConfigurations lists the [config] section and one tool section in
// a collapsible block.
func RelevantConfigurations(s *config.Settings, section string) string {
	skip := append(append([]string{}, configSkipKeys...), s.Config.SkipKeys...)

	var b strings.Builder
	b.WriteString("\n<hr>\n<details> <summary><strong>🛠️ Relevant configurations:</strong></summary> \n\n")
	b.WriteString("<br>These are the relevant configurations for this tool:\n\n")
	b.WriteString("**[config**]\n```yaml\n\n")
	writeSection(&b, s.Section("config"), skip, "")
	b.WriteString("\n```\n")
	fmt.Fprintf(&b, "\n**[%s]**\n```yaml\n\n", section)
	writeSection(&b, s.Section(section), skip, "")
	b.WriteString("\n```")
	b.WriteString("\n</details>\n")
	return b.String()
}

// ConfigDump renders every pr_* and config section as "section.key = value"
// lines in a collapsible block.
func ConfigDump(s *config.Settings) string {
	skip := append(append([]string{}, configSkipKeys...), s.Config.SkipKeys...)

	var b strings.Builder
	b.WriteString("<details> <summary><strong>🛠️ PR-Insight Configurations:</strong></summary>\n\n")
	b.WriteString("```yaml\n")
	for _, name := range s.Sections() {
		if !strings.HasPrefix(name, "pr_") && !strings.HasPrefix(name, "config") {
			continue
		}
		if strings.HasSuffix(name, "_prompt") || strings.HasSuffix(name, "_prompts") {
			continue
		}
		section := s.Section(name)
		if len(section) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n==================== %s ====================\n", name)
		writeSection(&b, section, skip, name+".")
	}
	b.WriteString("```\n</details>\n")
	return b.String()
}

func writeSection(b *strings.Builder, section map[string]any, skip []string, prefix string) {
	keys := make([]string, 0, len(section))
	for k := range section {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if containsFold(skip, k) {
			continue
		}
		if prefix == "" {
			fmt.Fprintf(b, "%s: %s\n", k, formatSetting(section[k], false))
		} else {
			fmt.Fprintf(b, "%s%s = %s\n", prefix, strings.ToLower(k), formatSetting(section[k], true))
		}
	}
}

func formatSetting(v any, quote bool) string {
	switch x := v.(type) {
	case string:
		if quote {
			return "'" + strings.ReplaceAll(x, "\n", `\n`) + "'"
		}
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			if s, ok := e.(string); ok {
				parts[i] = "'" + s + "'"
			} else {
				parts[i] = formatSetting(e, true)
			}
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
