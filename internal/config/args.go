package config

import (
	"strings"

	apperrors "github.com/khulnasoft/pr-insight/internal/errors"
)

// forbiddenArgs cannot be changed from the command line or a PR comment.
// Bare words match any section, dotted entries match a section.key pair.
var forbiddenArgs = []string{
	"shared_secret",
	"user",
	"system",
	"enable_comment_approval",
	"enable_manual_approval",
	"enable_auto_approval",
	"approve_pr_on_self_review",
	"base_url",
	"url",
	"app_name",
	"secret_provider",
	"git_provider",
	"skip_keys",
	"openai.key",
	"analytics_folder",
	"uri",
	"app_id",
	"webhook_secret",
	"bearer_token",
	"personal_access_token",
	"override_deployment_type",
	"private_key",
	"local_cache_path",
	"enable_local_cache",
	"jira_base_url",
	"api_base",
	"api_type",
	"api_version",
}

// IsForbidden reports whether a "--section.key=value" argument touches a
// protected setting.
func IsForbidden(arg string) bool {
	if !strings.HasPrefix(arg, "--") {
		return false
	}
	lowered := strings.ReplaceAll(strings.ToLower(arg), "__", ".")
	for _, word := range forbiddenArgs {
		w := strings.ToLower(word)
		if !strings.Contains(w, ".") {
			w = "." + w
		}
		if strings.Contains(lowered, w) {
			return true
		}
	}
	return false
}

// ValidateArgs rejects the first forbidden argument.
func ValidateArgs(args []string) error {
	for _, arg := range args {
		if IsForbidden(arg) {
			return apperrors.ErrForbiddenArgument.WithContext("arg", arg)
		}
	}
	return nil
}

// ApplyArgs applies every "--section.key=value" argument as an override and
// returns the remaining arguments in order.
func (s *Settings) ApplyArgs(args []string) ([]string, error) {
	if err := ValidateArgs(args); err != nil {
		return nil, err
	}
	rest := make([]string, 0, len(args))
	for _, arg := range args {
		key, value, ok := parseOverride(arg)
		if !ok {
			rest = append(rest, arg)
			continue
		}
		if err := s.Set(key, value); err != nil {
			return nil, err
		}
	}
	return rest, nil
}

func parseOverride(arg string) (key, value string, ok bool) {
	if !strings.HasPrefix(arg, "--") {
		return "", "", false
	}
	key, value, ok = strings.Cut(strings.TrimLeft(arg, "-"), "=")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if !strings.Contains(key, ".") && !strings.Contains(key, "__") {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}
