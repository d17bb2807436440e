package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType defines the category of the error
type ErrorType string

const (
	TypeConfiguration ErrorType = "CONFIGURATION"
	TypeValidation    ErrorType = "VALIDATION"
	TypeAI            ErrorType = "AI"
	TypeVCS           ErrorType = "VCS"
	TypeServer        ErrorType = "SERVER"
	TypeInternal      ErrorType = "INTERNAL"
)

// AppError represents a domain-level error with a type and an underlying error
type AppError struct {
	Type       ErrorType
	Message    string
	Context    map[string]interface{}
	Err        error
	Suggestion string

	// origin points at the sentinel this error was derived from, so
	// errors.Is(ErrX.WithContext(...), ErrX) holds.
	origin *AppError
}

func (e *AppError) Error() string {
	var msg string
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	} else {
		msg = fmt.Sprintf("%s: %s", e.Type, e.Message)
	}

	if len(e.Context) > 0 {
		keys := e.ContextKeys()
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		msg += " [" + strings.Join(parts, " ") + "]"
	}

	return msg
}

// ContextKeys returns the keys of Context, sorted.
func (e *AppError) ContextKeys() []string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel e was derived from.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e == t || (e.origin != nil && e.origin == t.root())
}

func (e *AppError) root() *AppError {
	if e.origin != nil {
		return e.origin
	}
	return e
}

func (e *AppError) clone() *AppError {
	return &AppError{
		Type:       e.Type,
		Message:    e.Message,
		Context:    e.Context,
		Err:        e.Err,
		Suggestion: e.Suggestion,
		origin:     e.root(),
	}
}

// WithError creates a new AppError with an underlying error
func (e *AppError) WithError(err error) *AppError {
	c := e.clone()
	c.Err = err
	return c
}

// WithContext creates a new AppError with additional context
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	ctx := make(map[string]interface{}, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	c := e.clone()
	c.Context = ctx
	return c
}

func (e *AppError) WithSuggestion(suggestion string) *AppError {
	c := e.clone()
	c.Suggestion = suggestion
	return c
}

// NewAppError creates a new AppError
func NewAppError(t ErrorType, msg string, err error) *AppError {
	return &AppError{
		Type:    t,
		Message: msg,
		Err:     err,
	}
}

// AsAppError extracts the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Configuration errors
var (
	ErrAPIKeyMissing = NewAppError(TypeConfiguration, "AI API key is missing", nil).
				WithSuggestion("Set the key for the model provider, e.g. OPENAI_KEY, ANTHROPIC_API_KEY or GEMINI_API_KEY")

	ErrTokenMissing = NewAppError(TypeConfiguration, "git provider token is missing", nil).
			WithSuggestion("Set GITHUB_TOKEN, GITLAB__PERSONAL_ACCESS_TOKEN or AZURE_DEVOPS__PAT")

	ErrInvalidSettings = NewAppError(TypeConfiguration, "invalid settings", nil)

	ErrUnknownModel = NewAppError(TypeConfiguration, "model is not in the max tokens table", nil).
			WithSuggestion("Set config.custom_model_max_tokens for custom models")
)

// Validation errors
var (
	ErrForbiddenArgument = NewAppError(TypeValidation, "CLI argument is forbidden", nil).
				WithSuggestion("Sensitive settings can only be set in the configuration file or environment")

	ErrUnknownCommand = NewAppError(TypeValidation, "unknown command", nil).
				WithSuggestion("Run: pr-insight --pr_url=<url> help")

	ErrInvalidPRURL = NewAppError(TypeValidation, "invalid pull request URL", nil)

	ErrMissingArgument = NewAppError(TypeValidation, "missing required argument", nil)
)

// VCS errors
var (
	ErrProviderNotSupported = NewAppError(TypeVCS, "git provider not supported", nil).
				WithSuggestion("Supported providers: github, gitlab, bitbucket, azure, codecommit")

	ErrRepositoryNotFound = NewAppError(TypeVCS, "repository not found", nil).
				WithSuggestion("Check repository URL and access permissions")

	ErrNotSupported = NewAppError(TypeVCS, "operation not supported by git provider", nil)

	ErrGitHubTokenInvalid = NewAppError(TypeVCS, "GitHub token is invalid or expired", nil).
				WithSuggestion("Generate a new token at: https://github.com/settings/tokens")

	ErrGitHubInsufficientPerms = NewAppError(TypeVCS, "GitHub token has insufficient permissions", nil).
					WithSuggestion("Token needs 'repo' scope and pull request write access")

	ErrGitHubRateLimit = NewAppError(TypeVCS, "GitHub API rate limit exceeded", nil).
				WithSuggestion("Wait a few minutes or use an App installation for higher limits")

	ErrEmptyDiff = NewAppError(TypeVCS, "pull request has no diff", nil)
)

// AI errors
var (
	ErrQuotaExceeded = NewAppError(TypeAI, "AI quota exceeded or rate limited", nil).
				WithSuggestion("Wait a few minutes and try again, or raise config.budget_daily")

	ErrAIGeneration = NewAppError(TypeAI, "AI generation failed", nil).
			WithSuggestion("Try again or check your API key configuration")

	ErrInvalidAIOutput = NewAppError(TypeAI, "invalid AI output format", nil).
				WithSuggestion("This is likely a temporary issue, please try again")

	ErrAllModelsFailed = NewAppError(TypeAI, "all models failed", nil).
				WithSuggestion("Check config.model and config.fallback_models")

	ErrAPIKeyInvalid = NewAppError(TypeAI, "AI API key is invalid", nil)
)

// Server errors
var (
	ErrInvalidSignature = NewAppError(TypeServer, "request signatures didn't match", nil)

	ErrMissingSignature = NewAppError(TypeServer, "x-hub-signature-256 header is missing", nil)

	ErrUnauthorized = NewAppError(TypeServer, "unauthorized webhook request", nil)
)
