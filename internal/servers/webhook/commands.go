package webhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/logger"
)

// Runner executes comment style requests on a pull request.
type Runner interface {
	HandleRequest(ctx context.Context, prURL, request string) (string, error)
	HandleAutoRequest(ctx context.Context, prURL, request string) (string, error)
}

// RunAutoCommands runs each configured command in order. A failing command
// is logged and the rest still run.
func RunAutoCommands(ctx context.Context, r Runner, prURL, conf string, commands []string) {
	if len(commands) == 0 {
		logger.Info(ctx, "no auto commands configured", "commands_conf", conf)
		return
	}
	for _, command := range commands {
		logger.Info(ctx, "running auto command", "commands_conf", conf, "command", command)
		if _, err := r.HandleAutoRequest(ctx, prURL, command); err != nil {
			logger.Error(ctx, "auto command failed", err, "command", command)
		}
	}
}

// CommentCommand returns the request held by a comment body, or "" when
// the comment is not addressed to us. A quoted image followed by /ask is
// turned into a question about the image.
func CommentCommand(body string) string {
	body = strings.TrimLeft(body, " \t\r\n")
	if strings.HasPrefix(body, "/") {
		return body
	}
	if strings.HasPrefix(body, "> ![image]") && strings.Contains(body, "/ask") {
		image, question, _ := strings.Cut(body, "/ask")
		return "/ask" + question + "\n" + strings.TrimLeft(strings.TrimSpace(image), ">")
	}
	return ""
}

// LineQuestion is an /ask posted on a line range of the diff.
type LineQuestion struct {
	Question  string
	File      string
	StartLine int
	EndLine   int
	Side      string
	CommentID string
}

// Request renders the question as an /ask_line request.
func (q LineQuestion) Request() string {
	side := q.Side
	if side == "" {
		side = "RIGHT"
	}
	start := q.StartLine
	if start == 0 {
		start = q.EndLine
	}
	question := strings.TrimSpace(strings.Replace(q.Question, "/ask", "", 1))
	return fmt.Sprintf("/ask_line --line_start=%d --line_end=%d --side=%s --file_name=%s --comment_id=%s %s",
		start, q.EndLine, side, quote(q.File), q.CommentID, quote(question))
}

// quote wraps s in double quotes that survive shell-style splitting.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
