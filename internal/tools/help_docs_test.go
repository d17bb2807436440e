package tools

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
)

func TestSplitSections(t *testing.T) {
	src := []byte("Intro text.\n\n# Install\n\nRun make.\n\n## From source\n\nClone it.\n")

	got := splitSections("docs/a.md", src)
	require.Len(t, got, 3)
	assert.Equal(t, "", got[0].Header)
	assert.Equal(t, "Intro text.", got[0].Text)
	assert.Equal(t, "# Install", got[1].Header)
	assert.Equal(t, "# Install\n\nRun make.", got[1].Text)
	assert.Equal(t, "## From source", got[2].Header)
}

func TestRankSections(t *testing.T) {
	sections := []docSection{
		{File: "a.md", Header: "# Usage", Text: "run the binary"},
		{File: "b.md", Header: "# Configuration", Text: "set the timeout in the configuration file"},
		{File: "c.md", Header: "# Timeout", Text: "timeouts"},
	}

	got := rankSections(sections, "How do I change the timeout?", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "c.md", got[0].File)
	assert.Equal(t, "b.md", got[1].File)
}

func TestHeaderAnchor(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "## Getting Started", want: "getting-started"},
		{header: "# Config: `timeout` (seconds)", want: "config-timeout-seconds"},
		{header: "", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, headerAnchor(tt.header), tt.header)
	}
}

func TestHelpDocs(t *testing.T) {
	docs := fstest.MapFS{
		"docs/install.md": {Data: []byte("# Install\n\nRun `make install`.\n\n# Timeout\n\nSet `timeout` in config.toml.\n")},
		"docs/notes.txt":  {Data: []byte("ignored")},
		"README.md":       {Data: []byte("# Project\n\nA tool.\n")},
	}
	answer := "```yaml\nuser_question: |\n  how to set the timeout\nresponse: |\n  Set timeout in config.toml.\nrelevant_sections:\n- file_name: docs/install.md\n  relevant_section_header_string: '# Timeout'\nquestion_is_relevant: 1\n```"

	t.Run("answers with links to the sections", func(t *testing.T) {
		d, _, h := testDeps(t, map[string]string{"help_docs": answer})
		d.Settings.Config.PublishOutput = false
		d.Settings.PRHelpDocs.DocsPath = "docs"
		d.Settings.PRHelpDocs.RepoURL = "https://github.com/acme/calc"
		d.Settings.PRHelpDocs.RepoDefaultBranch = "main"
		d.Settings.PRHelpDocs.EnableHelpText = false

		body, err := NewHelpDocs(d, []string{"how", "to", "set", "the", "timeout"}).WithDocs(docs).Run(context.Background())
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(body, "### Question: \nhow to set the timeout"))
		assert.Contains(t, body, "Set timeout in config.toml.")
		assert.Contains(t, body, "https://github.com/acme/calc/blob/main/docs/install.md#timeout")
		require.Equal(t, 1, h.calls())
		assert.Contains(t, h.requests[0].User, "docs/install.md")
		assert.NotContains(t, h.requests[0].User, "ignored")
	})

	t.Run("irrelevant question", func(t *testing.T) {
		d, _, _ := testDeps(t, map[string]string{"help_docs": "```yaml\nresponse: ''\nquestion_is_relevant: 0\n```"})
		d.Settings.Config.PublishOutput = false
		d.Settings.PRHelpDocs.DocsPath = "docs"

		body, err := NewHelpDocs(d, []string{"what is the weather"}).WithDocs(docs).Run(context.Background())
		require.NoError(t, err)
		assert.Contains(t, body, "does not appear to be related")
	})

	t.Run("missing docs folder", func(t *testing.T) {
		d, _, h := testDeps(t, nil)
		d.Settings.PRHelpDocs.DocsPath = "missing"
		d.Settings.PRHelpDocs.ExcludeRootReadme = true

		_, err := NewHelpDocs(d, []string{"anything"}).WithDocs(docs).Run(context.Background())
		assert.ErrorIs(t, err, domainErrors.ErrRepositoryNotFound)
		assert.Zero(t, h.calls())
	})
}
