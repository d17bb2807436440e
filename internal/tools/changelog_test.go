package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khulnasoft/pr-insight/internal/vcs/vcstest"
)

// committingFake adds file commits to the fake provider.
type committingFake struct {
	*vcstest.Fake
	path, content, message string
}

func (f *committingFake) CommitFile(_ context.Context, path, content, message string) error {
	f.path, f.content, f.message = path, content, message
	return nil
}

const changelogEntry = "## 2026-10-19\n\n### Fixed\n- Add returns the sum"

func TestUpdateChangelog(t *testing.T) {
	fixedNow := func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }

	t.Run("publishes the entry as a comment", func(t *testing.T) {
		d, p, h := testDeps(t, map[string]string{"update_changelog": "```\n" + changelogEntry + "\n```"})
		d.Settings.Config.PublishOutput = true
		d.Settings.PRUpdateChangelog.PushChangelogChanges = false
		d.Settings.PRUpdateChangelog.AddPRLink = false
		p.Contents["CHANGELOG.md"] = "# Changelog\n\n## 2026-10-01\n- Initial release\n"

		tool := NewUpdateChangelog(d, nil)
		tool.now = fixedNow
		body, err := tool.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, p.Published, 1)
		assert.True(t, strings.HasPrefix(body, "**Changelog updates:** 🔄"))
		assert.Contains(t, body, "Add returns the sum")
		assert.NotContains(t, body, "```")
		require.Equal(t, 1, h.calls())
		assert.Contains(t, h.requests[0].User, "2026-10-19")
		assert.Contains(t, h.requests[0].User, "Initial release")
	})

	t.Run("commits when the provider can", func(t *testing.T) {
		d, p, _ := testDeps(t, map[string]string{"update_changelog": changelogEntry})
		d.Settings.Config.PublishOutput = true
		d.Settings.PRUpdateChangelog.PushChangelogChanges = true
		d.Settings.PRUpdateChangelog.SkipCIOnPush = true
		d.Settings.PRUpdateChangelog.AddPRLink = true
		d.Settings.PRUpdateChangelog.ChangelogPath = "CHANGES.md"
		p.Contents["CHANGES.md"] = "## 2026-10-01\n- Initial release\n"
		committer := &committingFake{Fake: p}
		d.Provider = committer

		tool := NewUpdateChangelog(d, nil)
		tool.now = fixedNow
		msg, err := tool.Run(context.Background())
		require.NoError(t, err)
		assert.Contains(t, msg, "CHANGES.md")
		assert.Empty(t, p.Published)
		assert.Equal(t, "CHANGES.md", committer.path)
		assert.Equal(t, "Update CHANGES.md [skip ci]", committer.message)
		assert.True(t, strings.HasPrefix(committer.content, changelogEntry+"\n\n[PR #7](https://example.com/acme/calc/pull/7)"))
		assert.True(t, strings.HasSuffix(committer.content, "- Initial release\n"))
	})

	t.Run("missing changelog starts a new one", func(t *testing.T) {
		d, _, h := testDeps(t, map[string]string{"update_changelog": changelogEntry})
		d.Settings.Config.PublishOutput = false

		tool := NewUpdateChangelog(d, nil)
		tool.now = fixedNow
		entry, err := tool.Run(context.Background())
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(entry, changelogEntry))
		assert.Contains(t, h.requests[0].User, "<current_date>")
	})
}
