// Package insight routes a command on a pull request to the tool that
// handles it, with the settings of that one request.
package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/shlex"

	"github.com/khulnasoft/pr-insight/internal/ai"
	"github.com/khulnasoft/pr-insight/internal/config"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/providers"
	"github.com/khulnasoft/pr-insight/internal/services/cost"
	"github.com/khulnasoft/pr-insight/internal/tools"
	"github.com/khulnasoft/pr-insight/internal/vcs"
	"github.com/khulnasoft/pr-insight/internal/vectordb"
)

const (
	languageInstruction = "Your response MUST be written in the language corresponding to locale code: '%s'. This is crucial."
	languageSeparator   = "\n======\n\nIn addition to the above instructions, please also adhere to the following:\n======\n"
)

type (
	ProviderFunc func(ctx context.Context, s *config.Settings, prURL string) (vcs.Provider, error)
	ModelsFunc   func(ctx context.Context, s *config.Settings) *providers.AI
	IndexFunc    func(ctx context.Context, s *config.Settings) (vectordb.Index, func() error, error)
)

// Insight handles requests against pull requests. Settings are cloned per
// request, so repository settings and argument overrides never leak into
// the next one.
type Insight struct {
	Settings *config.Settings
	Registry *Registry

	NewProvider ProviderFunc
	NewModels   ModelsFunc
	NewIndex    IndexFunc
	// OnBudgetWarning is told when the daily model budget passes a
	// warning level.
	OnBudgetWarning ai.BudgetCallback

	// repoMerged is set when Settings already hold the repository file.
	repoMerged bool
}

// New wires the real providers, model backends and similarity index.
func New(s *config.Settings) *Insight {
	in := &Insight{
		Settings:    s,
		Registry:    DefaultRegistry(),
		NewProvider: providers.NewProvider,
		NewIndex:    providers.NewSimilarityIndex,
	}
	in.NewModels = func(ctx context.Context, s *config.Settings) *providers.AI {
		return providers.NewAI(ctx, s, in.budgetWarning(ctx))
	}
	return in
}

func (in *Insight) budgetWarning(ctx context.Context) ai.BudgetCallback {
	return func(status cost.BudgetStatus) {
		logger.Warn(ctx, "daily model budget warning",
			"percent_used", status.PercentUsed,
			"today_total", status.TodayTotal,
			"limit", status.Limit)
		if in.OnBudgetWarning != nil {
			in.OnBudgetWarning(status)
		}
	}
}

// HandleRequest runs a comment style request such as `/ask "why?"` on
// prURL and returns the artifact the tool produced.
func (in *Insight) HandleRequest(ctx context.Context, prURL, request string) (string, error) {
	words, err := shlex.Split(request)
	if err != nil {
		return "", domainErrors.ErrMissingArgument.WithError(err).WithContext("request", request)
	}
	if len(words) == 0 {
		return "", domainErrors.ErrUnknownCommand.WithContext("request", request)
	}
	return in.Run(ctx, prURL, words[0], words[1:])
}

// HandleAutoRequest runs a request triggered by an event such as a newly
// opened pull request. Tools treat it as an automatic command.
func (in *Insight) HandleAutoRequest(ctx context.Context, prURL, request string) (string, error) {
	words, err := shlex.Split(request)
	if err != nil {
		return "", domainErrors.ErrMissingArgument.WithError(err).WithContext("request", request)
	}
	if len(words) == 0 {
		return "", domainErrors.ErrUnknownCommand.WithContext("request", request)
	}
	return in.run(ctx, prURL, words[0], words[1:], true)
}

// WithSettings returns a copy of in that starts every request from s.
func (in *Insight) WithSettings(s *config.Settings) *Insight {
	c := *in
	c.Settings = s
	c.repoMerged = false
	return &c
}

// ForPR returns a copy of in whose requests start from the settings
// ResolveSettings gives for prURL. The repository file is read once here
// and not again per request.
func (in *Insight) ForPR(ctx context.Context, prURL string) (*Insight, error) {
	s, err := in.ResolveSettings(ctx, prURL)
	if err != nil {
		return nil, err
	}
	c := in.WithSettings(s)
	c.repoMerged = s.Config.UseRepoSettingsFile
	return c, nil
}

// ResolveSettings returns the settings a request on prURL would start from:
// a copy of the base settings with the repository's file merged in.
func (in *Insight) ResolveSettings(ctx context.Context, prURL string) (*config.Settings, error) {
	s := in.Settings.Clone()
	if !s.Config.UseRepoSettingsFile {
		return s, nil
	}
	provider, err := in.NewProvider(ctx, s, prURL)
	if err != nil {
		return nil, err
	}
	in.applyRepoSettings(ctx, s, provider)
	return s, nil
}

// IsCommand reports whether command names a registered tool.
func (in *Insight) IsCommand(command string) bool {
	_, ok := in.Registry.lookup(command)
	return ok
}

// Run executes command with args on prURL.
func (in *Insight) Run(ctx context.Context, prURL, command string, args []string) (string, error) {
	return in.run(ctx, prURL, command, args, false)
}

func (in *Insight) run(ctx context.Context, prURL, command string, args []string, auto bool) (string, error) {
	e, ok := in.Registry.lookup(command)
	if !ok {
		return "", domainErrors.ErrUnknownCommand.WithContext("command", command)
	}
	if err := config.ValidateArgs(args); err != nil {
		logger.Error(ctx, "forbidden argument, use a configuration file instead", err)
		return "", err
	}
	ctx = logger.With(ctx, "command", e.name, "pr_url", prURL)

	s := in.Settings.Clone()
	provider, err := in.NewProvider(ctx, s, prURL)
	if err != nil {
		return "", err
	}
	if s.Config.UseRepoSettingsFile && !in.repoMerged {
		in.applyRepoSettings(ctx, s, provider)
	}
	rest, err := s.ApplyArgs(args)
	if err != nil {
		return "", err
	}
	if auto || e.auto {
		if err := s.Set("config.is_auto_command", "true"); err != nil {
			return "", err
		}
	}
	applyResponseLanguage(s)

	d := tools.Deps{
		Settings: s,
		Provider: provider,
		Tickets:  providers.NewTicketExtractor(s),
	}
	models := in.NewModels(ctx, s)
	d.AI, d.Embedder = models.Handler, models.Embedder
	if e.name == "similar_code" && in.NewIndex != nil {
		idx, closeIndex, err := in.NewIndex(ctx, s)
		if err != nil {
			logger.Warn(ctx, "similarity index unavailable", "error", err)
		} else {
			defer func() {
				if err := closeIndex(); err != nil {
					logger.Warn(ctx, "failed to close similarity index", "error", err)
				}
			}()
			d.Index = idx
		}
	}

	logger.Info(ctx, "request handler started", "args", rest)
	return e.factory(d, rest).Run(ctx)
}

// applyRepoSettings merges the repository's .pr_insight.toml. A broken file
// is reported and ignored.
func (in *Insight) applyRepoSettings(ctx context.Context, s *config.Settings, p vcs.Provider) {
	data, err := p.RepoSettings(ctx)
	if err != nil {
		logger.Warn(ctx, "failed to read repository settings", "error", err)
		return
	}
	if len(data) == 0 {
		return
	}
	dropped, err := s.MergeTOML(data)
	if err != nil {
		logger.Warn(ctx, "invalid repository settings ignored", "error", err)
		return
	}
	if len(dropped) > 0 {
		logger.Warn(ctx, "forbidden keys in repository settings ignored", "keys", dropped)
	}
	logger.Debug(ctx, "repository settings applied")
}

// applyResponseLanguage asks every tool for answers in
// config.response_language when it is not English.
func applyResponseLanguage(s *config.Settings) {
	lang := strings.TrimSpace(s.Config.ResponseLanguage)
	if lang == "" || strings.EqualFold(lang, "en-us") {
		return
	}
	instruction := fmt.Sprintf(languageInstruction, lang)
	for _, section := range s.Sections() {
		key := section + ".extra_instructions"
		v, ok := s.Get(key)
		if !ok {
			continue
		}
		current, _ := v.(string)
		if strings.Contains(current, instruction) {
			continue
		}
		next := instruction
		if strings.TrimSpace(current) != "" {
			next = current + languageSeparator + instruction
		}
		_ = s.Set(key, next)
	}
}
