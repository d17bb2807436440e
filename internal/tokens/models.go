package tokens

import (
	"strings"

	apperrors "github.com/khulnasoft/pr-insight/internal/errors"
)

// maxTokensPerModel is the context window used when fitting a PR into a
// prompt. Provider prefixes such as "anthropic/" are stripped before lookup.
var maxTokensPerModel = map[string]int{
	"gpt-3.5-turbo":              16000,
	"gpt-4":                      8000,
	"gpt-4-turbo":                128000,
	"gpt-4o":                     128000,
	"gpt-4o-2024-05-13":          128000,
	"gpt-4o-2024-08-06":          128000,
	"gpt-4o-2024-11-20":          128000,
	"gpt-4o-mini":                128000,
	"gpt-4.1":                    1047576,
	"gpt-4.1-mini":               1047576,
	"o1":                         204800,
	"o1-mini":                    128000,
	"o3-mini":                    204800,
	"claude-3-haiku-20240307":    100000,
	"claude-3-opus-20240229":     100000,
	"claude-3-5-sonnet":          100000,
	"claude-3-5-sonnet-20240620": 100000,
	"claude-3-5-sonnet-20241022": 100000,
	"claude-3-5-haiku-20241022":  100000,
	"claude-3-7-sonnet-20250219": 200000,
	"claude-sonnet-4-20250514":   200000,
	"gemini-1.5-pro":             1048576,
	"gemini-1.5-flash":           1048576,
	"gemini-2.0-flash":           1048576,
	"gemini-2.5-pro":             1048576,
	"gemini-2.5-flash":           1048576,
	"deepseek-chat":              128000,
	"deepseek-reasoner":          64000,
}

// ModelMaxTokens returns the token budget for model. capTokens > 0 bounds
// the result; customMax > 0 is used for models missing from the table.
func ModelMaxTokens(model string, capTokens, customMax int) (int, error) {
	name := model
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	limit, ok := maxTokensPerModel[name]
	if !ok {
		if customMax <= 0 {
			return 0, apperrors.ErrUnknownModel.WithContext("model", model)
		}
		limit = customMax
	}
	if capTokens > 0 && limit > capTokens {
		limit = capTokens
	}
	return limit, nil
}
