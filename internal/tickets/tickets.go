// Package tickets finds the GitHub issues a PR description links to and
// loads them for the review prompt.
package tickets

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"

	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/regex"
	"github.com/khulnasoft/pr-insight/internal/vcs"
	"github.com/microcosm-cc/bluemonday"
)

// MaxTicketCharacters bounds the issue body passed to the model.
const MaxTicketCharacters = 10000

// maxShortRefDigits: "#12345" is more likely a color or an id than an issue.
const maxShortRefDigits = 5

var stripHTML = bluemonday.StrictPolicy()

// ExtractLinks returns the issue URLs in description: full GitHub issue
// links (any github* host) and short "#N" references resolved against
// repoPath ("owner/repo").
func ExtractLinks(description, repoPath string) []string {
	links := regex.GitHubIssueURL.FindAllString(description, -1)
	for _, ref := range regex.IssueNumberRef.FindAllString(description, -1) {
		number := ref[1:]
		if len(number) >= maxShortRefDigits {
			continue
		}
		links = append(links, fmt.Sprintf("https://github.com/%s/issues/%s", repoPath, number))
	}
	return links
}

// ParseIssueURL splits an issue URL into "owner/repo" and the number.
func ParseIssueURL(issueURL string) (repo string, number int, ok bool) {
	m := regex.IssueURLParts.FindStringSubmatch(issueURL)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], n, true
}

// Clip cuts body to MaxTicketCharacters, marking the cut with "...".
func Clip(body string) string {
	if len(body) <= MaxTicketCharacters {
		return body
	}
	return body[:MaxTicketCharacters] + "..."
}

// Extractor loads linked tickets once per PR.
type Extractor struct {
	mu    sync.Mutex
	cache map[string][]models.Ticket
}

func NewExtractor() *Extractor {
	return &Extractor{cache: map[string][]models.Ticket{}}
}

// Tickets returns the issues linked from the user part of the PR
// description. Only providers serving GitHub style PR URLs can resolve
// tickets; others yield nil. Issues that fail to load are logged and skipped.
func (e *Extractor) Tickets(ctx context.Context, p vcs.Provider, description string) []models.Ticket {
	fetcher, ok := p.(vcs.IssueFetcher)
	repoPath := repoOf(p.PRURL())
	if !ok || repoPath == "" {
		return nil
	}

	e.mu.Lock()
	cached, hit := e.cache[p.PRURL()]
	e.mu.Unlock()
	if hit {
		logger.Debug(ctx, "using cached tickets", "count", len(cached))
		return cached
	}

	var out []models.Ticket
	seen := map[string]bool{}
	for _, link := range ExtractLinks(vcs.UserDescription(description), repoPath) {
		if seen[link] {
			continue
		}
		seen[link] = true

		repo, number, ok := ParseIssueURL(link)
		if !ok {
			continue
		}
		t, err := fetcher.Issue(ctx, repo, number)
		if err != nil {
			logger.Warn(ctx, "failed to load ticket", "ticket_url", link, "error", err)
			continue
		}
		t.TicketURL = link
		t.Body = Clip(html.UnescapeString(stripHTML.Sanitize(t.Body)))
		out = append(out, *t)
	}
	if len(out) > 0 {
		logger.Info(ctx, "extracted tickets from PR description", "count", len(out))
	}

	e.mu.Lock()
	e.cache[p.PRURL()] = out
	e.mu.Unlock()
	return out
}

func repoOf(prURL string) string {
	m := regex.GitHubPRURL.FindStringSubmatch(prURL)
	if m == nil {
		return ""
	}
	return strings.Join(m[2:4], "/")
}
