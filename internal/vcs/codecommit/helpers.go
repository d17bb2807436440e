package codecommit

import (
	"math"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/regex"
)

var consoleHostname = regexp.MustCompile(`^[a-z]{2}-(gov-)?[a-z]+-\d\.console\.aws\.amazon\.com$`)

// IsValidCodeCommitHostname reports whether host is a regional AWS console
// host, e.g. us-east-1.console.aws.amazon.com.
func IsValidCodeCommitHostname(host string) bool {
	return consoleHostname.MatchString(host)
}

// ParsePRURL extracts the repository name and PR number from a CodeCommit
// console URL.
func ParsePRURL(prURL string) (repo string, number int, err error) {
	u, err := url.Parse(strings.TrimSpace(prURL))
	if err != nil {
		return "", 0, domainErrors.ErrInvalidPRURL.WithContext("url", prURL).WithError(err)
	}
	if !IsValidCodeCommitHostname(u.Hostname()) {
		return "", 0, domainErrors.ErrInvalidPRURL.WithContext("url", prURL).WithContext("host", u.Hostname())
	}
	m := regex.CodeCommitPRPath.FindStringSubmatch(u.Path)
	if m == nil {
		return "", 0, domainErrors.ErrInvalidPRURL.WithContext("url", prURL)
	}
	number, err = strconv.Atoi(m[2])
	if err != nil {
		return "", 0, domainErrors.ErrInvalidPRURL.WithContext("url", prURL).WithError(err)
	}
	return m[1], number, nil
}

// FileExtensions returns the lowercased extension of every filename, "" for
// files without one.
func FileExtensions(filenames []string) []string {
	out := make([]string, 0, len(filenames))
	for _, name := range filenames {
		out = append(out, strings.ToLower(filepath.Ext(name)))
	}
	return out
}

// LanguagePercentages turns a list of extensions into rounded percentages
// of the total, standing in for the repository language breakdown.
func LanguagePercentages(extensions []string) map[string]int {
	out := map[string]int{}
	if len(extensions) == 0 {
		return out
	}
	counts := map[string]int{}
	for _, ext := range extensions {
		counts[ext]++
	}
	for ext, n := range counts {
		out[ext] = int(math.Round(float64(n) / float64(len(extensions)) * 100))
	}
	return out
}

// EditTypeFromCode maps CodeCommit change letters (A, D, M, R) to edit types.
func EditTypeFromCode(code string) (models.EditType, bool) {
	switch strings.ToUpper(code) {
	case "A":
		return models.EditTypeAdded, true
	case "D":
		return models.EditTypeDeleted, true
	case "M":
		return models.EditTypeModified, true
	case "R":
		return models.EditTypeRenamed, true
	}
	return models.EditTypeUnknown, false
}

// AddAdditionalNewlines doubles every lone newline. The CodeCommit console
// renders single newlines as spaces.
func AddAdditionalNewlines(body string) string {
	var b strings.Builder
	b.Grow(len(body) + len(body)/8)
	for i := 0; i < len(body); {
		if body[i] != '\n' {
			b.WriteByte(body[i])
			i++
			continue
		}
		j := i
		for j < len(body) && body[j] == '\n' {
			j++
		}
		if j-i == 1 {
			b.WriteString("\n\n")
		} else {
			b.WriteString(body[i:j])
		}
		i = j
	}
	return b.String()
}

var detailsTags = strings.NewReplacer(
	"<details>", "",
	"</details>", "",
	"<summary>", "",
	"</summary>", "",
)

// RemoveMarkdownHTML strips the collapsible-section tags the console shows
// verbatim.
func RemoveMarkdownHTML(body string) string {
	return detailsTags.Replace(body)
}
