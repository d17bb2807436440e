// Package tools implements the commands that run against a pull request:
// review, describe, improve, ask and the rest of the command table.
package tools

import (
	"context"
	"strconv"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/compression"
	"github.com/khulnasoft/pr-insight/internal/config"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/i18n"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/markdown"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/tickets"
	"github.com/khulnasoft/pr-insight/internal/vcs"
	"github.com/khulnasoft/pr-insight/internal/vectordb"
)

// Tool is one command. Run returns the rendered artifact; it is published
// on the PR unless config.publish_output is off.
type Tool interface {
	Run(ctx context.Context) (string, error)
}

// Deps are the collaborators shared by every tool. Embedder, Index and
// Tickets are optional.
type Deps struct {
	Settings     *config.Settings
	Provider     vcs.Provider
	AI           ai.Handler
	Embedder     ai.Embedder
	Index        vectordb.Index
	Tickets      *tickets.Extractor
	Translations *i18n.Translations
}

type base struct {
	Deps
	command string
	args    []string
}

func newBase(d Deps, command string, args []string) base {
	if d.Translations == nil {
		d.Translations = i18n.MustNew(d.Settings.Config.ResponseLanguage)
	}
	return base{Deps: d, command: command, args: args}
}

func (b *base) msg(id string, data map[string]interface{}) string {
	return b.Translations.GetMessage(id, 0, data)
}

func (b *base) publish() bool { return b.Settings.Config.PublishOutput }

func (b *base) gfm() bool { return b.Provider.IsSupported(vcs.CapGFMMarkdown) }

// progress posts a temporary "Preparing..." comment.
func (b *base) progress(ctx context.Context, messageID string) {
	c := b.Settings.Config
	if !c.PublishOutput || !c.PublishOutputProgress || c.IsAutoCommand {
		return
	}
	if _, err := b.Provider.PublishComment(ctx, b.msg(messageID, nil), true); err != nil {
		logger.Warn(ctx, "failed to publish progress comment", "error", err)
	}
}

func (b *base) clearProgress(ctx context.Context) {
	if !b.publish() {
		return
	}
	if err := b.Provider.RemoveInitialComment(ctx); err != nil {
		logger.Warn(ctx, "failed to remove progress comment", "error", err)
	}
}

// prVars collects the PR fields most prompts start from.
func (b *base) prVars(ctx context.Context) (map[string]any, *models.PullRequest, error) {
	pr, err := b.Provider.PR(ctx)
	if err != nil {
		return nil, nil, err
	}
	description, err := vcs.PRDescription(ctx, b.Provider, b.Settings, false)
	if err != nil {
		return nil, nil, err
	}
	commits, err := b.Provider.CommitMessages(ctx)
	if err != nil {
		logger.Warn(ctx, "failed to list commit messages", "error", err)
		commits = ""
	}
	if b.Settings.Config.MaxCommitsTokens > 0 {
		commits = vcs.ClipDescription(commits, b.Settings.Config.MaxCommitsTokens)
	}
	vars := map[string]any{
		"title":               pr.Title,
		"branch":              vcs.BranchOf(pr),
		"description":         description,
		"commit_messages_str": commits,
		"language":            "",
		"diff":                "",
		"related_tickets":     []models.Ticket(nil),
		"extra_instructions":  "",
	}
	return vars, pr, nil
}

// compressor sizes a Compressor for model against the prompt rendered
// without a diff.
func (b *base) compressor(model, prompt string, vars map[string]any, lineNumbers bool) (*compression.Compressor, error) {
	opts, err := compression.OptionsFromSettings(b.Settings, model)
	if err != nil {
		return nil, err
	}
	opts.AddLineNumbers = lineNumbers
	c := compression.New(opts)

	empty := cloneVars(vars)
	empty["diff"] = ""
	if _, ok := empty["diff_no_line_numbers"]; ok {
		empty["diff_no_line_numbers"] = ""
	}
	system, user, err := ai.Render(b.Settings, prompt, empty)
	if err != nil {
		return nil, err
	}
	c.SetPrompt(system, user)
	return c, nil
}

// chat renders prompt and asks model, retrying transient failures.
func (b *base) chat(ctx context.Context, model, prompt string, vars map[string]any) (string, error) {
	system, user, err := ai.Render(b.Settings, prompt, vars)
	if err != nil {
		return "", err
	}
	resp, err := ai.RetryWithBackoff(ctx, b.command, func() (ai.Response, error) {
		return b.AI.ChatCompletion(ctx, ai.Request{
			Model:       model,
			System:      system,
			User:        user,
			Temperature: b.Settings.Config.Temperature,
			Command:     b.command,
		})
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", domainErrors.ErrAIGeneration.WithContext("model", model).WithContext("command", b.command)
	}
	logger.Debug(ctx, "model response received", "model", model, "command", b.command, "finish_reason", resp.FinishReason)
	return resp.Text, nil
}

// relatedTickets fetches linked issues when ticket analysis is enabled.
func (b *base) relatedTickets(ctx context.Context, description string) []models.Ticket {
	if b.Tickets == nil {
		return nil
	}
	return b.Tickets.Tickets(ctx, b.Provider, description)
}

// arg returns the value of a "--name=value" argument.
func (b *base) arg(name string) (string, bool) {
	prefix := "--" + name + "="
	for _, a := range b.args {
		if strings.HasPrefix(a, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(a, prefix)), true
		}
	}
	return "", false
}

// freeText joins the arguments that are not "--key=value" options.
func (b *base) freeText() string {
	var parts []string
	for _, a := range b.args {
		if strings.HasPrefix(a, "--") && strings.Contains(a, "=") {
			continue
		}
		parts = append(parts, a)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func (b *base) hasFlag(names ...string) bool {
	for _, a := range b.args {
		for _, n := range names {
			if a == n {
				return true
			}
		}
	}
	return false
}

// relevantConfigs appends the tool section dump when configured.
func (b *base) relevantConfigs(section string) string {
	if !b.Settings.Config.OutputRelevantConfigurations {
		return ""
	}
	return markdown.RelevantConfigurations(b.Settings, section)
}

func cloneVars(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

// intOf reads a model-provided number that may come back as text.
func intOf(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	}
	return 0, false
}
