package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/diff"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/regex"
	"github.com/khulnasoft/pr-insight/internal/yamlfix"
)

const (
	questionsPrompt     = "pr_questions_prompt"
	lineQuestionsPrompt = "pr_line_questions_prompt"
	reflectPrompt       = "pr_information_from_user_prompts"

	reflectAnswerHint = "Please respond to the questions above in the following format:"
)

// Questions answers a free-text question about the whole PR.
type Questions struct {
	base
}

func NewQuestions(d Deps, args []string) *Questions {
	return &Questions{base: newBase(d, "ask", args)}
}

func (t *Questions) Run(ctx context.Context) (string, error) {
	ctx = logger.With(ctx, "tool", t.command, "pr_url", t.Provider.PRURL())
	question := questionText(t.freeText())
	if question == "" {
		return "", domainErrors.ErrMissingArgument.
			WithContext("argument", "question").
			WithSuggestion(t.msg("empty_question", nil))
	}
	t.progress(ctx, "preparing_answer")

	vars, _, err := t.prVars(ctx)
	if err != nil {
		return "", err
	}
	vars["questions"] = question

	answer, err := ai.RetryWithFallbackModels(ctx, t.Settings, ai.ModelRegular, func(ctx context.Context, model string) (string, error) {
		c, err := t.compressor(model, questionsPrompt, vars, false)
		if err != nil {
			return "", err
		}
		res, err := c.GetPRDiff(ctx, t.Provider)
		if err != nil {
			return "", err
		}
		v := cloneVars(vars)
		v["diff"] = res.Diff
		return t.chat(ctx, model, questionsPrompt, v)
	})
	if err != nil {
		t.clearProgress(ctx)
		return "", err
	}

	body := answerBody(question, answer)
	if !t.publish() {
		return body, nil
	}
	_, err = t.Provider.PublishComment(ctx, body, false)
	t.clearProgress(ctx)
	if err != nil {
		return "", err
	}
	logger.Info(ctx, "answer published")
	return body, nil
}

// LineQuestions answers a question about selected lines of one file,
// replying in the review thread it came from.
type LineQuestions struct {
	base
}

func NewLineQuestions(d Deps, args []string) *LineQuestions {
	return &LineQuestions{base: newBase(d, "ask_line", args)}
}

func (t *LineQuestions) Run(ctx context.Context) (string, error) {
	ctx = logger.With(ctx, "tool", t.command, "pr_url", t.Provider.PRURL())
	question := questionText(t.freeText())
	if question == "" {
		return "", domainErrors.ErrMissingArgument.
			WithContext("argument", "question").
			WithSuggestion(t.msg("empty_question", nil))
	}
	fileName, ok := t.arg("file_name")
	if !ok || fileName == "" {
		return "", domainErrors.ErrMissingArgument.WithContext("argument", "--file_name")
	}
	start, err := t.intArg("line_start")
	if err != nil {
		return "", err
	}
	end, err := t.intArg("line_end")
	if err != nil {
		return "", err
	}
	side, _ := t.arg("side")
	if side == "" {
		side = "RIGHT"
	}

	files, err := t.Provider.DiffFiles(ctx)
	if err != nil {
		return "", err
	}
	var hunk, selected string
	for _, f := range files {
		if f.Filename == fileName {
			hunk, selected = diff.ExtractHunkLines(f.Patch, f.Filename, start, end, side)
			break
		}
	}
	if strings.TrimSpace(selected) == "" {
		logger.Warn(ctx, "selected lines not found in the PR diff", "file", fileName, "line_start", start, "line_end", end)
	}

	vars, _, err := t.prVars(ctx)
	if err != nil {
		return "", err
	}
	vars["full_hunk"] = hunk
	vars["selected_lines"] = selected
	vars["question"] = question

	answer, err := ai.RetryWithFallbackModels(ctx, t.Settings, ai.ModelRegular, func(ctx context.Context, model string) (string, error) {
		return t.chat(ctx, model, lineQuestionsPrompt, vars)
	})
	if err != nil {
		return "", err
	}

	body := answerBody(question, answer)
	if !t.publish() {
		return body, nil
	}
	if raw, ok := t.arg("comment_id"); ok && raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "", domainErrors.ErrInvalidSettings.WithError(err).WithContext("argument", "--comment_id")
		}
		if err := t.Provider.ReplyToComment(ctx, id, body); err != nil {
			return "", err
		}
		return body, nil
	}
	if _, err := t.Provider.PublishComment(ctx, body, false); err != nil {
		return "", err
	}
	return body, nil
}

func (t *LineQuestions) intArg(name string) (int, error) {
	raw, ok := t.arg(name)
	if !ok || raw == "" {
		return 0, domainErrors.ErrMissingArgument.WithContext("argument", "--"+name)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domainErrors.ErrInvalidSettings.WithError(err).WithContext("argument", "--"+name)
	}
	return n, nil
}

// Reflect asks the author clarifying questions; the answers feed "/answer".
type Reflect struct {
	base
}

func NewReflect(d Deps, args []string) *Reflect {
	return &Reflect{base: newBase(d, "reflect", args)}
}

func (t *Reflect) Run(ctx context.Context) (string, error) {
	ctx = logger.With(ctx, "tool", t.command, "pr_url", t.Provider.PRURL())
	t.progress(ctx, "preparing_answer")

	vars, _, err := t.prVars(ctx)
	if err != nil {
		return "", err
	}
	out, err := ai.RetryWithFallbackModels(ctx, t.Settings, ai.ModelRegular, func(ctx context.Context, model string) (string, error) {
		c, err := t.compressor(model, reflectPrompt, vars, false)
		if err != nil {
			return "", err
		}
		res, err := c.GetPRDiff(ctx, t.Provider)
		if err != nil {
			return "", err
		}
		v := cloneVars(vars)
		v["diff"] = res.Diff
		return t.chat(ctx, model, reflectPrompt, v)
	})
	if err != nil {
		t.clearProgress(ctx)
		return "", err
	}

	data := yamlfix.Load(ctx, out, yamlfix.Options{FirstKey: "questions"})
	var questions []string
	for _, q := range data.List("questions") {
		if s := strings.TrimSpace(yamlfix.Str(q)); s != "" {
			questions = append(questions, s)
		}
	}
	if len(questions) == 0 {
		t.clearProgress(ctx)
		return "", domainErrors.ErrInvalidAIOutput.WithContext("prompt", reflectPrompt)
	}

	var b strings.Builder
	b.WriteString(reflectQuestionsHeader + "\n\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	b.WriteString("\n" + reflectAnswerHint + "\n\n")
	b.WriteString(">/answer\n>1) ...\n>2) ...\n>...\n")
	body := b.String()

	if !t.publish() {
		return body, nil
	}
	_, err = t.Provider.PublishComment(ctx, body, false)
	t.clearProgress(ctx)
	if err != nil {
		return "", err
	}
	return body, nil
}

// questionText strips the quotes a comment command wraps the question in.
func questionText(s string) string {
	s = strings.TrimSpace(s)
	if m := regex.QuestionArg.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	return s
}

// answerBody keeps answers from starting lines with a slash command, which
// would trigger the bot again.
func answerBody(question, answer string) string {
	answer = strings.TrimSpace(answer)
	answer = strings.ReplaceAll(answer, "\n/", "\n /")
	if strings.HasPrefix(answer, "/") {
		answer = " " + answer
	}
	return fmt.Sprintf("### **Ask**❓\n%s\n\n### **Answer:**\n%s\n\n", question, answer)
}
