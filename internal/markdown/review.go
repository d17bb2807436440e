// Package markdown renders model predictions into the comments published on
// pull requests.
package markdown

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/diff"
	"github.com/khulnasoft/pr-insight/internal/language"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/yamlfix"
)

// Review comment headers, also used to find the persistent comment.
const (
	ReviewHeader            = "## PR Reviewer Guide"
	IncrementalReviewHeader = "## Incremental PR Reviewer Guide"
)

var reviewEmojis = map[string]string{
	"Can be split":                       "🔀",
	"Key issues to review":               "⚡",
	"Recommended focus areas for review": "⚡",
	"Possible issues":                    "⚡",
	"Score":                              "🏅",
	"Relevant tests":                     "🧪",
	"Focused PR":                         "✨",
	"Relevant ticket":                    "🎫",
	"Security concerns":                  "🔒",
	"Insights from user's answers":       "📝",
	"Code feedback":                      "🤖",
	"Estimated effort to review [1-5]":   "⏱️",
	"Ticket compliance check":            "🎫",
}

// LineLinker builds a permalink to a line range of a PR file.
type LineLinker interface {
	LineLink(file string, start, end int) string
}

// ReviewOptions tune ConvertReview for the target provider.
type ReviewOptions struct {
	GFM bool
	// IntroText adds the "key observations" sentence below the header.
	IntroText bool
	// Incremental is the link to the first reviewed commit; empty for a
	// full review.
	Incremental string
	Links       LineLinker
	Files       []models.FilePatchInfo
}

// ConvertReview renders the "review" and "code_feedback" sections of a
// reviewer prediction. It returns "" when the review is empty.
func ConvertReview(ctx context.Context, data yamlfix.Map, opts ReviewOptions) string {
	var b strings.Builder
	if opts.Incremental == "" {
		b.WriteString(ReviewHeader + " 🔍\n\n")
	} else {
		b.WriteString(IncrementalReviewHeader + " 🔍\n\n")
		fmt.Fprintf(&b, "⏮️ Starting from commit %s\n\n", opts.Incremental)
	}
	review, ok := data.Sub("review")
	if !ok || len(review) == 0 {
		return ""
	}
	review = append(yamlfix.Map{}, review...)
	review.Delete("todo_summary")

	if opts.IntroText {
		b.WriteString("Here are some key observations to aid the review process:\n\n")
	}
	if opts.GFM {
		b.WriteString("<table>\n")
	}

	for _, item := range review {
		key, value := item.Key, item.Value
		lowerKey := strings.ToLower(key)
		if yamlfix.IsEmpty(value) && lowerKey != "can_be_split" && lowerKey != "key_issues_to_review" {
			continue
		}
		keyNice := capitalize(strings.ReplaceAll(key, "_", " "))
		emoji := reviewEmojis[keyNice]
		lowerNice := strings.ToLower(keyNice)

		switch {
		case strings.Contains(keyNice, "Estimated effort to review"):
			n, ok := effortValue(value)
			if !ok {
				continue
			}
			bars := fmt.Sprintf("%d %s%s", n, strings.Repeat("🔵", clamp(n, 0, 5)), strings.Repeat("⚪", clamp(5-n, 0, 5)))
			row(&b, opts.GFM, fmt.Sprintf("%s&nbsp;<strong>Estimated effort to review</strong>: %s", emoji, bars),
				fmt.Sprintf("### %s Estimated effort to review: %s\n\n", emoji, bars))

		case strings.Contains(lowerNice, "relevant tests"):
			v := strings.ToLower(strings.TrimSpace(yamlfix.Str(value)))
			if yamlfix.IsNo(v) {
				row(&b, opts.GFM, emoji+"&nbsp;<strong>No relevant tests</strong>", "### "+emoji+" No relevant tests\n\n")
			} else {
				row(&b, opts.GFM, emoji+"&nbsp;<strong>PR contains tests</strong>", "### PR contains tests\n\n")
			}

		case strings.Contains(lowerNice, "ticket compliance check"):
			b.WriteString(ticketCompliance(ctx, emoji, value, opts.GFM))

		case strings.Contains(lowerNice, "security concerns"):
			if yamlfix.IsNo(value) {
				row(&b, opts.GFM, emoji+"&nbsp;<strong>No security concerns identified</strong>",
					"### "+emoji+" No security concerns identified\n\n")
				continue
			}
			text := strings.TrimSpace(yamlfix.Str(value))
			row(&b, opts.GFM, emoji+"&nbsp;<strong>Security concerns</strong><br><br>\n\n"+EmphasizeHeader(text, false, ""),
				"### "+emoji+" Security concerns\n\n"+EmphasizeHeader(text, true, "")+"\n\n")

		case strings.Contains(lowerNice, "can be split"):
			if opts.GFM {
				b.WriteString("<tr><td>" + canBeSplit(emoji, value) + "</td></tr>\n")
			}

		case strings.Contains(lowerNice, "key issues to review"):
			writeKeyIssues(ctx, &b, emoji, value, opts)

		default:
			v := yamlfix.Str(value)
			row(&b, opts.GFM, fmt.Sprintf("%s&nbsp;<strong>%s</strong>: %s", emoji, keyNice, v),
				fmt.Sprintf("### %s %s: %s\n\n", emoji, keyNice, v))
		}
	}

	if opts.GFM {
		b.WriteString("</table>\n")
	}

	if data.Has("code_feedback") {
		if opts.GFM {
			b.WriteString("\n\n<details><summary> <strong>Code feedback:</strong></summary>\n\n<hr>")
		} else {
			b.WriteString("\n\n### Code feedback:\n\n")
		}
		for _, v := range data.List("code_feedback") {
			m, ok := v.(yamlfix.Map)
			if !ok || len(m) == 0 {
				continue
			}
			b.WriteString(ParseCodeSuggestion(m, opts.GFM) + "\n\n")
		}
		out := strings.TrimSuffix(b.String(), "<hr>")
		b.Reset()
		b.WriteString(out)
		if opts.GFM {
			b.WriteString("</details>")
		}
	}
	return b.String()
}

func row(b *strings.Builder, gfm bool, cell, plain string) {
	if gfm {
		b.WriteString("<tr><td>" + cell + "</td></tr>\n")
		return
	}
	b.WriteString(plain)
}

func effortValue(v any) (int, bool) {
	s := strings.TrimSpace(yamlfix.Str(v))
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	head, _, _ := strings.Cut(s, ",")
	n, err := strconv.Atoi(strings.TrimSpace(head))
	return n, err == nil
}

func writeKeyIssues(ctx context.Context, b *strings.Builder, emoji string, value any, opts ReviewOptions) {
	issues, isList := value.([]any)
	if yamlfix.IsNo(value) {
		row(b, opts.GFM, emoji+"&nbsp;<strong>No major issues detected</strong>", "### "+emoji+" No major issues detected\n\n")
		return
	}
	if opts.GFM {
		b.WriteString("<tr><td>" + emoji + "&nbsp;<strong>Recommended focus areas for review</strong><br><br>\n\n")
	} else {
		b.WriteString("### " + emoji + " Recommended focus areas for review\n\n#### \n")
	}
	if len(issues) == 0 && !isList {
		b.WriteString(yamlfix.Str(value) + "\n\n")
	}
	for _, raw := range issues {
		issue, ok := raw.(yamlfix.Map)
		if !ok || len(issue) == 0 {
			continue
		}
		file := strings.TrimSpace(issue.String("relevant_file"))
		header := strings.TrimSpace(issue.String("issue_header"))
		if strings.EqualFold(header, "possible bug") {
			header = "Possible Issue"
		}
		content := strings.TrimSpace(issue.String("issue_content"))
		start, _ := strconv.Atoi(strings.TrimSpace(issue.String("start_line")))
		end, _ := strconv.Atoi(strings.TrimSpace(issue.String("end_line")))

		lines := RelevantLines(ctx, opts.Files, file, start, end, true)
		link := ""
		if opts.Links != nil {
			link = opts.Links.LineLink(file, start, end)
		}

		var s string
		switch {
		case opts.GFM && link != "" && lines != "":
			s = fmt.Sprintf("<details><summary><a href='%s'><strong>%s</strong></a>\n\n%s\n</summary>\n\n%s\n\n</details>", link, header, content, lines)
		case opts.GFM && link != "":
			s = fmt.Sprintf("<a href='%s'><strong>%s</strong></a><br>%s", link, header, content)
		case opts.GFM:
			s = fmt.Sprintf("<strong>%s</strong><br>%s", header, content)
		case link != "":
			s = fmt.Sprintf("[**%s**](%s)\n\n%s\n\n", header, link, content)
		default:
			s = fmt.Sprintf("**%s**\n\n%s\n\n", header, content)
		}
		b.WriteString(s + "\n\n")
	}
	if opts.GFM {
		b.WriteString("</td></tr>\n")
	}
}

func canBeSplit(emoji string, value any) string {
	splits, _ := value.([]any)
	if yamlfix.IsEmpty(value) || len(splits) <= 1 {
		return emoji + "&nbsp;<strong>No multiple PR themes</strong>\n\n"
	}
	var b strings.Builder
	b.WriteString(emoji + "&nbsp;<strong>Multiple PR themes</strong><br><br>\n\n")
	for _, raw := range splits {
		split, ok := raw.(yamlfix.Map)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "<details><summary>\nSub-PR theme: <b>%s</b></summary>\n\n", split.String("title"))
		b.WriteString("___\n\nRelevant files:\n\n")
		for _, f := range split.List("relevant_files") {
			b.WriteString("- " + yamlfix.Str(f) + "\n")
		}
		b.WriteString("___\n\n</details>\n\n")
	}
	return b.String()
}

func ticketCompliance(ctx context.Context, emoji string, value any, gfm bool) string {
	tickets, ok := value.([]any)
	if !ok {
		return ""
	}
	var (
		body   strings.Builder
		levels []string
	)
	for _, raw := range tickets {
		t, ok := raw.(yamlfix.Map)
		if !ok {
			continue
		}
		url := strings.TrimSpace(t.String("ticket_url"))
		full := strings.TrimSpace(t.String("fully_compliant_requirements"))
		notCompliant := strings.TrimSpace(t.String("not_compliant_requirements"))
		human := strings.TrimSpace(t.String("requires_further_human_verification"))
		if full == "" && notCompliant == "" {
			logger.Debug(ctx, "ticket compliance has no requirements", "ticket_url", url)
			continue
		}

		level := ""
		switch {
		case full != "" && notCompliant != "":
			level = "Partially compliant"
		case full != "" && human == "":
			level = "Fully compliant"
		case full != "":
			level = "PR Code Verified"
		default:
			level = "Not compliant"
		}
		levels = append(levels, level)

		var explanation strings.Builder
		if full != "" {
			fmt.Fprintf(&explanation, "Compliant requirements:\n\n%s\n\n", full)
		}
		if notCompliant != "" {
			fmt.Fprintf(&explanation, "Non-compliant requirements:\n\n%s\n\n", notCompliant)
		}
		if human != "" {
			fmt.Fprintf(&explanation, "Requires further human verification:\n\n%s\n\n", human)
		}
		id := url[strings.LastIndex(url, "/")+1:]
		fmt.Fprintf(&body, "\n\n**[%s](%s) - %s**\n\n%s\n\n", id, url, level, explanation.String())
	}

	mark := complianceEmoji(levels)
	if gfm {
		return fmt.Sprintf("<tr><td>\n\n**%s Ticket compliance analysis %s**\n\n%s</td></tr>\n", emoji, mark, body.String())
	}
	return fmt.Sprintf("### %s Ticket compliance analysis %s\n\n%s\n\n", emoji, mark, body.String())
}

func complianceEmoji(levels []string) string {
	if len(levels) == 0 {
		return ""
	}
	all := func(l string) bool {
		for _, v := range levels {
			if v != l {
				return false
			}
		}
		return true
	}
	anyOf := func(ls ...string) bool {
		for _, v := range levels {
			for _, l := range ls {
				if v == l {
					return true
				}
			}
		}
		return false
	}
	switch {
	case all("Fully compliant"), all("PR Code Verified"):
		return "✅"
	case anyOf("Not compliant"):
		if anyOf("Fully compliant", "PR Code Verified") {
			return "🔶"
		}
		return "❌"
	case anyOf("Partially compliant"):
		return "🔶"
	default:
		return "✅"
	}
}

// RelevantLines returns lines start..end of file as a fenced code block,
// read from the head file or, failing that, from the patch.
func RelevantLines(ctx context.Context, files []models.FilePatchInfo, file string, start, end int, dedent bool) string {
	for _, f := range files {
		if strings.TrimSpace(f.Filename) != file {
			continue
		}
		var text string
		if f.HeadFile == "" {
			_, selected := diff.ExtractHunkLines(f.Patch, f.Filename, start, end, "right")
			if selected == "" {
				logger.Warn(ctx, "failed to extract relevant lines from patch", "file", f.Filename)
				return ""
			}
			var b strings.Builder
			for _, l := range diff.SplitLines(selected) {
				if strings.HasPrefix(l, "-") || l == "" {
					continue
				}
				b.WriteString(l[1:] + "\n")
			}
			text = b.String()
		} else {
			lines := diff.SplitLines(f.HeadFile)
			from, to := max(start-1, 0), min(end, len(lines))
			if from < to {
				text = strings.Join(lines[from:to], "\n")
			}
		}
		if dedent && text != "" {
			text = Dedent(text)
		}
		lang := f.Language
		if lang == "" {
			lang = strings.ToLower(language.Of(f.Filename))
		}
		return fmt.Sprintf("```%s\n%s\n```", lang, text)
	}
	return ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}
