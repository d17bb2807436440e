package tickets

import (
	"context"
	"strings"
	"testing"

	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/khulnasoft/pr-insight/internal/vcs/vcstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLinks(t *testing.T) {
	description := "Fixes https://github.com/acme/api/issues/525 and #12, see also #123456 and " +
		"https://github.company.ai/acme/pro/issues/7"

	got := ExtractLinks(description, "acme/web")

	assert.Equal(t, []string{
		"https://github.com/acme/api/issues/525",
		"https://github.company.ai/acme/pro/issues/7",
		"https://github.com/acme/web/issues/12",
	}, got)
	assert.Empty(t, ExtractLinks("no references here", "acme/web"))
}

func TestParseIssueURL(t *testing.T) {
	repo, n, ok := ParseIssueURL("https://github.com/acme/api/issues/525")
	require.True(t, ok)
	assert.Equal(t, "acme/api", repo)
	assert.Equal(t, 525, n)

	_, _, ok = ParseIssueURL("https://github.com/acme/api/pull/1")
	assert.False(t, ok)
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", Clip("short"))
	long := strings.Repeat("a", MaxTicketCharacters+10)
	clipped := Clip(long)
	assert.Len(t, clipped, MaxTicketCharacters+3)
	assert.True(t, strings.HasSuffix(clipped, "..."))
}

func TestExtractor_Tickets(t *testing.T) {
	fake := vcstest.New(models.PullRequest{Number: 3, URL: "https://github.com/acme/web/pull/3"})
	fake.Tickets["acme/web#12"] = &models.Ticket{TicketID: 12, Title: "Crash on save", Body: "<p>Steps &amp; logs</p>", Labels: "bug, p1"}

	e := NewExtractor()
	got := e.Tickets(context.Background(), fake, "Closes #12 and #12, mentions #99")

	require.Len(t, got, 1)
	assert.Equal(t, 12, got[0].TicketID)
	assert.Equal(t, "https://github.com/acme/web/issues/12", got[0].TicketURL)
	assert.Equal(t, "Steps & logs", got[0].Body)
	assert.Equal(t, "bug, p1", got[0].Labels)

	delete(fake.Tickets, "acme/web#12")
	cached := e.Tickets(context.Background(), fake, "Closes #12")
	assert.Equal(t, got, cached)
}

func TestExtractor_NonGitHubURL(t *testing.T) {
	fake := vcstest.New(models.PullRequest{Number: 3, URL: "https://gitlab.com/acme/web/-/merge_requests/3"})
	assert.Nil(t, NewExtractor().Tickets(context.Background(), fake, "Closes #12"))
}
