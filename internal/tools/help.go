package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/logger"
)

const docsBaseURL = "https://github.com/khulnasoft/pr-insight/blob/main/docs/tools"

type commandHelp struct {
	name    string
	summary string
	usage   string
}

var commandHelps = []commandHelp{
	{"describe", "Generates PR description - title, type, summary, code walkthrough and labels", "/describe"},
	{"review", "Adjustable feedback about the PR, possible issues, security concerns, review effort and more", "/review"},
	{"improve", "Code suggestions for improving the PR", "/improve"},
	{"ask", "Answering free-text questions about the PR", "/ask \"question\""},
	{"ask_line", "Answering a question about specific lines of the PR diff", "/ask_line --line_start=N --line_end=M --side=RIGHT --file_name=path \"question\""},
	{"reflect", "Asks clarifying questions about the PR, answered with /answer", "/reflect"},
	{"answer", "Reviews the PR using the answers to the clarifying questions", "/answer ..."},
	{"update_changelog", "Automatically updates the changelog", "/update_changelog"},
	{"help_docs", "Answers a question using the repository documentation", "/help_docs \"question\""},
	{"analyze", "Identifies code components that changed in the PR", "/analyze"},
	{"test", "Generates unit tests for a selected component", "/test component_name"},
	{"custom_prompt", "Generates suggestions from a user-configured prompt", "/custom_prompt"},
	{"generate_labels", "Generates custom labels for the PR", "/generate_labels"},
	{"checks", "Explains why a CI check failed", "/checks ci_job"},
	{"find_similar_component", "Finds code similar to a selected component", "/find_similar_component component_name"},
	{"config", "Shows the configuration the tools run with", "/config"},
	{"help", "Shows this message", "/help"},
}

var toolGuides = map[string]string{
	"review": "The `review` tool scans the PR code changes and generates a list of feedbacks about the PR, " +
		"aiming to aid the reviewing process.\n\nRun `/review -i` to review only the commits pushed since " +
		"the previous review, and `/review auto_approve` to approve the PR when auto approval is enabled.\n\n" +
		"Edit the `[pr_reviewer]` section of `.pr_insight.toml` to change the review focus, e.g. " +
		"`require_score_review` or `num_code_suggestions`.",
	"describe": "The `describe` tool scans the PR code changes and generates a title, type, summary, walkthrough " +
		"and labels.\n\nSet `pr_description.use_description_markers=true` to fill `pr_insight:summary`, " +
		"`pr_insight:type` and `pr_insight:walkthrough` markers in your own template.",
	"improve": "The `improve` tool scans the PR code changes and automatically generates suggestions for improving " +
		"the PR code.\n\nSet `pr_code_suggestions.commitable_code_suggestions=true` to publish each suggestion " +
		"as a committable inline comment.",
	"ask":    "The `ask` tool answers questions about the PR, based on the PR code changes.\n\nExample: `/ask \"Is the new cache thread safe?\"`",
	"analyze": "The `analyze` tool lists the code components changed in the PR. Each component offers follow-up " +
		"actions such as `/test` and `/find_similar_component`.",
	"test":          "The `test` tool generates unit tests for a component changed in the PR.\n\nExample: `/test ParseConfig`",
	"custom_prompt": "The `custom_prompt` tool applies the prompt in `[pr_custom_prompt]` to the PR diff.",
	"checks":        "The `checks` tool explains failed CI checks and suggests fixes.\n\nExample: `/checks unit-tests`",
	"help_docs":     "The `help_docs` tool answers questions using the documentation of the repository.",
}

// usageGuide is the collapsible help block appended to tool output.
func usageGuide(tool string) string {
	guide, ok := toolGuides[tool]
	if !ok {
		return ""
	}
	return fmt.Sprintf("\n\n<br>\n\n<details> <summary><strong>💡 Tool usage guide:</strong></summary><hr> \n\n%s\n\nSee the [%s usage page](%s/%s.md) for more details.\n</details>\n",
		guide, tool, docsBaseURL, tool)
}

// Help lists the available commands.
type Help struct {
	base
}

func NewHelp(d Deps, args []string) *Help {
	return &Help{base: newBase(d, "help", args)}
}

func (h *Help) Run(ctx context.Context) (string, error) {
	var body string
	if h.gfm() {
		body = helpTable()
	} else {
		body = helpList()
	}
	if !h.publish() {
		return body, nil
	}
	if _, err := h.Provider.PublishComment(ctx, body, false); err != nil {
		return "", err
	}
	logger.Info(ctx, "help published")
	return body, nil
}

func helpTable() string {
	var b strings.Builder
	b.WriteString("## PR Insight Walkthrough 🤖\n\n")
	b.WriteString("Welcome to PR Insight, an AI-powered tool for automated pull request analysis, feedback, suggestions and more.\n\n")
	b.WriteString("Here is a list of tools you can use to interact with PR Insight:\n\n")
	b.WriteString("<table><tr><th align=\"left\">Tool</th><th align=\"left\">Description</th><th align=\"left\">Usage</th></tr>")
	for _, c := range commandHelps {
		fmt.Fprintf(&b, "\n<tr><td align=\"left\"><a href='%s/%s.md'><strong>%s</strong></a></td><td>%s</td><td><code>%s</code></td></tr>",
			docsBaseURL, c.name, strings.ToUpper(c.name[:1])+strings.ReplaceAll(c.name[1:], "_", " "), c.summary, c.usage)
	}
	b.WriteString("\n</table>\n\n")
	b.WriteString("(1) Note that each tool can be triggered automatically when a new PR is opened, or called manually by commenting on a PR.\n\n")
	b.WriteString("(2) Tools can be configured with `--section.key=value` arguments, e.g. `/review --pr_reviewer.num_code_suggestions=3`.\n")
	return b.String()
}

func helpList() string {
	var b strings.Builder
	b.WriteString("## PR Insight Walkthrough\n\n")
	b.WriteString("Available commands:\n\n")
	for _, c := range commandHelps {
		fmt.Fprintf(&b, "- `%s`: %s\n", c.usage, c.summary)
	}
	return b.String()
}
