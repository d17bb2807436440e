package ai

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/khulnasoft/pr-insight/internal/config"
)

// RenderPrompt executes a text/template prompt. Every variable the template
// references must be present in vars.
func RenderPrompt(name, tmplStr string, vars map[string]any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}
	return buf.String(), nil
}

// Render loads the named prompt section and renders both halves.
func Render(s *config.Settings, name string, vars map[string]any) (system, user string, err error) {
	p, err := s.Prompt(name)
	if err != nil {
		return "", "", err
	}
	if system, err = RenderPrompt(name+".system", p.System, vars); err != nil {
		return "", "", err
	}
	if user, err = RenderPrompt(name+".user", p.User, vars); err != nil {
		return "", "", err
	}
	return system, user, nil
}
