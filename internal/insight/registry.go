package insight

import (
	"fmt"
	"sort"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/tools"
)

// Factory builds the tool for one request. args are the arguments left
// after settings overrides were applied.
type Factory func(d tools.Deps, args []string) tools.Tool

type entry struct {
	name    string
	factory Factory
	// auto marks commands triggered by an event rather than a person
	auto bool
}

// Registry maps command names and their aliases to tool factories.
type Registry struct {
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a command under name and every alias.
func (r *Registry) Register(name string, factory Factory, aliases ...string) error {
	for _, n := range append([]string{name}, aliases...) {
		if _, exists := r.entries[n]; exists {
			return fmt.Errorf("command %q already registered", n)
		}
	}
	for _, n := range append([]string{name}, aliases...) {
		r.entries[n] = entry{name: name, factory: factory}
	}
	return nil
}

func (r *Registry) registerAuto(name string, factory Factory) error {
	if err := r.Register(name, factory); err != nil {
		return err
	}
	r.entries[name] = entry{name: name, factory: factory, auto: true}
	return nil
}

func (r *Registry) lookup(command string) (entry, bool) {
	e, ok := r.entries[Normalize(command)]
	return e, ok
}

// Commands returns every registered command name and alias, sorted.
func (r *Registry) Commands() []string {
	out := make([]string, 0, len(r.entries))
	for n := range r.entries {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Normalize strips the slash a comment command starts with.
func Normalize(command string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(command), "/"))
}

// DefaultRegistry registers the full command table.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	review := func(d tools.Deps, args []string) tools.Tool { return tools.NewReviewer(d, args, false) }
	answer := func(d tools.Deps, args []string) tools.Tool { return tools.NewReviewer(d, args, true) }

	must(r.Register("review", review, "review_pr"))
	must(r.registerAuto("auto_review", review))
	must(r.Register("answer", answer, "reflect_and_review"))
	must(r.Register("describe", func(d tools.Deps, args []string) tools.Tool { return tools.NewDescription(d, args) }, "describe_pr"))
	must(r.Register("improve", func(d tools.Deps, args []string) tools.Tool { return tools.NewCodeSuggestions(d, args) }, "improve_code"))
	must(r.Register("ask", func(d tools.Deps, args []string) tools.Tool { return tools.NewQuestions(d, args) }, "ask_question"))
	must(r.Register("ask_line", func(d tools.Deps, args []string) tools.Tool { return tools.NewLineQuestions(d, args) }))
	must(r.Register("reflect", func(d tools.Deps, args []string) tools.Tool { return tools.NewReflect(d, args) }))
	must(r.Register("update_changelog", func(d tools.Deps, args []string) tools.Tool { return tools.NewUpdateChangelog(d, args) }))
	must(r.Register("config", func(d tools.Deps, args []string) tools.Tool { return tools.NewConfig(d, args) }, "settings"))
	must(r.Register("help", func(d tools.Deps, args []string) tools.Tool { return tools.NewHelp(d, args) }))
	must(r.Register("help_docs", func(d tools.Deps, args []string) tools.Tool { return tools.NewHelpDocs(d, args) }))
	must(r.Register("analyze", func(d tools.Deps, args []string) tools.Tool { return tools.NewAnalyze(d, args) }))
	must(r.Register("test", func(d tools.Deps, args []string) tools.Tool { return tools.NewTest(d, args) }))
	must(r.Register("custom_prompt", func(d tools.Deps, args []string) tools.Tool { return tools.NewCustomPrompt(d, args) }))
	must(r.Register("generate_labels", func(d tools.Deps, args []string) tools.Tool { return tools.NewGenerateLabels(d, args) }))
	must(r.Register("ci_feedback", func(d tools.Deps, args []string) tools.Tool { return tools.NewCIFeedback(d, args) }, "checks"))
	must(r.Register("similar_code", func(d tools.Deps, args []string) tools.Tool { return tools.NewSimilarCode(d, args) }, "find_similar_component"))
	return r
}
