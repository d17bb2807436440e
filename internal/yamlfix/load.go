package yamlfix

import (
	"context"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/khulnasoft/pr-insight/internal/logger"
)

// Options name the keys the repair passes look for.
type Options struct {
	// KeysFix are keys whose inline values get turned into block scalars.
	KeysFix []string
	// FirstKey and LastKey bound the YAML snippet inside free text.
	FirstKey string
	LastKey  string
}

var defaultFixKeys = []string{
	"relevant line:", "suggestion content:", "relevant file:",
	"existing code:", "improved code:", "label:",
}

var snippetPattern = regexp.MustCompile("```(yaml)?[\\s\\S]*?```")

// Parse decodes text as an ordered mapping.
func Parse(text string) (Map, error) {
	var m Map
	if err := yaml.Unmarshal([]byte(text), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Load parses a model response, stripping code fences first and falling back
// to TryFix. It returns nil when nothing could be recovered.
func Load(ctx context.Context, response string, opts Options) Map {
	text := strings.Trim(response, "\n")
	text = strings.TrimPrefix(text, "yaml")
	text = strings.TrimPrefix(text, "```yaml")
	text = strings.TrimRight(text, " \t\r\n")
	text = strings.TrimSuffix(text, "```")

	m, err := Parse(text)
	if err == nil && m != nil {
		return m
	}
	logger.Warn(ctx, "initial failure to parse AI prediction", "error", err)
	m, ok := TryFix(ctx, text, opts, response)
	if !ok {
		logger.Warn(ctx, "failed to parse AI prediction after fallbacks")
		return nil
	}
	logger.Debug(ctx, "parsed AI prediction after fallbacks")
	return m
}

// TryFix applies the repair passes in order and returns the first mapping
// that parses. original is the response before fences were stripped.
func TryFix(ctx context.Context, text string, opts Options, original string) (Map, bool) {
	lines := strings.Split(text, "\n")
	keys := append(append([]string{}, defaultFixKeys...), opts.KeysFix...)

	// block scalars for inline values
	fixed := make([]string, len(lines))
	copy(fixed, lines)
	for i := range fixed {
		for _, key := range keys {
			if strings.Contains(fixed[i], key) && !strings.Contains(fixed[i], "|") {
				fixed[i] = strings.ReplaceAll(fixed[i], key, key+" |\n        ")
			}
		}
	}
	if m, ok := attempt(strings.Join(fixed, "\n")); ok {
		logger.Debug(ctx, "parsed AI prediction after adding block scalars")
		return m, true
	}

	// fenced snippet
	snippet := snippetPattern.FindString(strings.Join(fixed, "\n"))
	if snippet == "" {
		snippet = snippetPattern.FindString(original)
	}
	if snippet != "" {
		body := strings.TrimRight(strings.TrimPrefix(snippet, "```yaml"), "`")
		if m, ok := attempt(body); ok {
			logger.Debug(ctx, "parsed AI prediction after extracting the yaml snippet")
			return m, true
		}
	}

	// surrounding braces
	braced := strings.TrimSpace(text)
	braced = strings.TrimPrefix(braced, "{")
	braced = strings.TrimSuffix(braced, "}")
	braced = strings.TrimRight(braced, ":\n")
	if m, ok := attempt(braced); ok {
		logger.Debug(ctx, "parsed AI prediction after removing curly brackets")
		return m, true
	}

	// snippet bounded by first and last key
	if opts.FirstKey != "" && opts.LastKey != "" {
		start := strings.Index(text, "\n"+opts.FirstKey+":")
		if start == -1 {
			start = strings.Index(text, opts.FirstKey+":")
		}
		last := strings.LastIndex(text, opts.LastKey+":")
		end := -1
		if last >= 0 {
			if rel := strings.Index(text[last:], "\n\n"); rel >= 0 {
				end = last + rel
			}
		}
		if end == -1 {
			end = len(text)
		}
		if start >= 0 && start < end {
			part := strings.TrimSpace(text[start:end])
			part = strings.Trim(part, "`yaml")
			part = strings.TrimSpace(strings.Trim(part, "`"))
			if m, ok := attempt(part); ok {
				logger.Debug(ctx, "parsed AI prediction between first and last keys")
				return m, true
			}
		}
	}

	// leading '+' on code lines
	unplussed := make([]string, len(lines))
	for i, l := range lines {
		if strings.HasPrefix(l, "+") {
			l = " " + l[1:]
		}
		unplussed[i] = l
	}
	if m, ok := attempt(strings.Join(unplussed, "\n")); ok {
		logger.Debug(ctx, "parsed AI prediction after removing leading '+'")
		return m, true
	}

	// drop trailing lines
	for i := 1; i < len(lines); i++ {
		if m, ok := attempt(strings.Join(lines[:len(lines)-i], "\n")); ok {
			logger.Debug(ctx, "parsed AI prediction after removing trailing lines", "lines", i)
			return m, true
		}
	}
	return nil, false
}

func attempt(text string) (Map, bool) {
	m, err := Parse(text)
	if err != nil || m == nil {
		return nil, false
	}
	return m, true
}
