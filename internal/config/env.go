package config

import "strings"

// envAliases maps well-known provider variables onto settings keys.
var envAliases = map[string]string{
	"OPENAI_KEY":        "openai.key",
	"OPENAI_API_KEY":    "openai.key",
	"DEEPSEEK_API_KEY":  "deepseek.key",
	"ANTHROPIC_API_KEY": "anthropic.key",
	"GEMINI_API_KEY":    "google_ai_studio.gemini_api_key",
	"GITHUB_TOKEN":      "github.user_token",
	"GITLAB_TOKEN":      "gitlab.personal_access_token",
}

// applyEnv overlays SECTION__KEY and SECTION.KEY variables for sections the
// defaults already define. Other variables are ignored.
func applyEnv(raw map[string]any, environ []string) {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		section, key, ok := envKey(name)
		if !ok {
			continue
		}
		sec, ok := raw[section].(map[string]any)
		if !ok {
			continue
		}
		sec[key] = coerce(sec[key], value)
	}
}

func envKey(name string) (section, key string, ok bool) {
	if alias, found := envAliases[strings.ToUpper(name)]; found {
		section, key, _ = strings.Cut(alias, ".")
		return section, key, true
	}
	sep := "__"
	if !strings.Contains(name, sep) {
		sep = "."
	}
	section, key, ok = strings.Cut(name, sep)
	if !ok || section == "" || key == "" {
		return "", "", false
	}
	return strings.ToLower(section), strings.ToLower(key), true
}
