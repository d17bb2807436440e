package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/ai"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/language"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/yamlfix"
)

const testPrompt = "pr_test_prompt"

// Test writes unit tests for one component changed in the PR.
type Test struct {
	base
}

func NewTest(d Deps, args []string) *Test {
	return &Test{base: newBase(d, "test", args)}
}

func (t *Test) Run(ctx context.Context) (string, error) {
	cfg := t.Settings.PRTest
	name := questionText(t.freeText())
	if name == "" {
		name = cfg.ClassName
	}
	if name == "" {
		return "", domainErrors.ErrMissingArgument.
			WithContext("argument", "component").
			WithSuggestion("Run /test <component_name>; /analyze lists the changed components")
	}
	ctx = logger.With(ctx, "tool", t.command, "pr_url", t.Provider.PRURL(), "component", name)

	files, err := t.Provider.DiffFiles(ctx)
	if err != nil {
		return "", err
	}
	file, code, ok := findComponent(files, name, cfg.File)
	if !ok {
		return "", domainErrors.ErrMissingArgument.
			WithContext("component", name).
			WithSuggestion("The component was not found in the files of this PR; /analyze lists the changed components")
	}
	lang := file.Language
	if lang == "" {
		lang = language.Of(file.Filename)
	}
	t.progress(ctx, "preparing_tests")

	vars, _, err := t.prVars(ctx)
	if err != nil {
		return "", err
	}
	vars["num_tests"] = max(cfg.NumTests, 1)
	vars["component_name"] = name
	vars["relevant_file"] = file.Filename
	vars["language"] = lang
	vars["testing_framework"] = cfg.TestingFramework
	vars["avoid_mocks"] = cfg.AvoidMocks
	vars["extra_instructions"] = cfg.ExtraInstructions
	vars["component_code"] = code

	data, err := ai.RetryWithFallbackModels(ctx, t.Settings, ai.ModelRegular, func(ctx context.Context, model string) (yamlfix.Map, error) {
		c, err := t.compressor(model, testPrompt, vars, false)
		if err != nil {
			return nil, err
		}
		res, err := c.GetPRDiff(ctx, t.Provider)
		if err != nil {
			return nil, err
		}
		v := cloneVars(vars)
		v["diff"] = res.Diff
		out, err := t.chat(ctx, model, testPrompt, v)
		if err != nil {
			return nil, err
		}
		data := yamlfix.Load(ctx, out, yamlfix.Options{KeysFix: []string{"tests_summary:", "tests_code:"}, FirstKey: "tests_summary", LastKey: "tests_code"})
		if data == nil || strings.TrimSpace(data.String("tests_code")) == "" {
			return nil, domainErrors.ErrInvalidAIOutput.WithContext("prompt", testPrompt).WithContext("model", model)
		}
		return data, nil
	})
	if err != nil {
		t.clearProgress(ctx)
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Generated tests for '%s' 🧪\n\n", name)
	fmt.Fprintf(&b, "**File:** `%s`\n\n", file.Filename)
	if summary := strings.TrimSpace(data.String("tests_summary")); summary != "" {
		b.WriteString(summary + "\n\n")
	}
	fmt.Fprintf(&b, "```%s\n%s\n```\n", strings.ToLower(lang), strings.TrimRight(data.String("tests_code"), "\n"))
	if cfg.EnableHelpText && t.gfm() {
		b.WriteString(usageGuide("test"))
	}
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
