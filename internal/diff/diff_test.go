package diff

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khulnasoft/pr-insight/internal/models"
)

func TestParseHunkHeader(t *testing.T) {
	h, ok := ParseHunkHeader("@@ -10,3 +12,4 @@ func main() {")
	require.True(t, ok)
	assert.Equal(t, HunkHeader{Start1: 10, Size1: 3, Start2: 12, Size2: 4, Section: "func main() {"}, h)

	h, ok = ParseHunkHeader("@@ -1 +1 @@")
	require.True(t, ok)
	assert.Equal(t, 0, h.Size1)

	_, ok = ParseHunkHeader("not a header")
	assert.False(t, ok)
}

func TestHandlePatchDeletions(t *testing.T) {
	ctx := context.Background()

	t.Run("should keep hunks that add lines", func(t *testing.T) {
		patch := "--- a/file.py\n+++ b/file.py\n@@ -1,2 +1,2 @@\n-foo\n-bar\n+baz\n"
		got, ok := HandlePatchDeletions(ctx, patch, "foo\nbar\n", "baz\n", "file.py", models.EditTypeUnknown)
		assert.True(t, ok)
		assert.Equal(t, strings.TrimRight(patch, "\n"), got)
	})

	t.Run("should report deleted files", func(t *testing.T) {
		patch := "--- a/file.py\n+++ b/file.py\n@@ -1,2 +1,2 @@\n-foo\n-bar\n"
		got, ok := HandlePatchDeletions(ctx, patch, "foo\nbar\n", "", "file.py", models.EditTypeUnknown)
		assert.False(t, ok)
		assert.Empty(t, got)
	})

	t.Run("should keep the file header with identical content", func(t *testing.T) {
		patch := "--- a/file.py\n+++ b/file.py\n@@ -1,2 +1,2 @@\n-foo\n-bar\n"
		got, ok := HandlePatchDeletions(ctx, patch, "foo\nbar\n", "foo\nbar\n", "file.py", models.EditTypeUnknown)
		assert.True(t, ok)
		assert.Equal(t, strings.TrimRight(patch, "\n"), got)
	})
}

func TestOmitDeletionHunks(t *testing.T) {
	lines := []string{
		"@@ -1,2 +1,1 @@",
		"-removed",
		" kept",
		"@@ -10,1 +9,2 @@",
		" ctx",
		"+added",
	}
	assert.Equal(t, "@@ -10,1 +9,2 @@\n ctx\n+added", OmitDeletionHunks(lines))
}

func TestFindLineNumber(t *testing.T) {
	tests := []struct {
		name     string
		patch    string
		file     string
		line     string
		position int
		absolute int
	}{
		{
			name:     "should find an added line",
			patch:    "@@ -1,1 +1,2 @@\n-line1\n+line2\n+relevant_line\n",
			file:     "file1",
			line:     "relevant_line",
			position: 3,
			absolute: 2,
		},
		{
			name:     "should accept a close match",
			patch:    "@@ -1,1 +1,2 @@\n-line1\n+relevant_line in file similar match\n",
			file:     "file1",
			line:     "+relevant_line in file similar match ",
			position: 2,
			absolute: 1,
		},
		{
			name:     "should report missing lines",
			patch:    "@@ -1,1 +1,2 @@\n-line1\n+relevant_line\n",
			file:     "file1",
			line:     "not_found",
			position: -1,
			absolute: -1,
		},
		{
			name:     "should report missing files",
			patch:    "@@ -1,1 +1,2 @@\n-line1\n+relevant_line\n",
			file:     "file2",
			line:     "relevant_line",
			position: -1,
			absolute: -1,
		},
		{
			name:     "should match the hunk header for an empty line",
			patch:    "@@ -1,1 +1,2 @@\n-line1\n+relevant_line\n",
			file:     "file1",
			line:     "",
			position: 0,
			absolute: 0,
		},
		{
			name:     "should ignore deleted lines",
			patch:    "@@ -1,2 +1,1 @@\n-line1\n-relevant_line\n",
			file:     "file1",
			line:     "relevant_line",
			position: -1,
			absolute: -1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := []models.FilePatchInfo{{Filename: "file1", Patch: tt.patch}}
			p, a := FindLineNumber(files, tt.file, tt.line)
			assert.Equal(t, tt.position, p)
			assert.Equal(t, tt.absolute, a)
		})
	}
}

func TestLineAtAbsolute(t *testing.T) {
	patch := "@@ -1,1 +1,2 @@\n-line1\n+line2\n+relevant_line\n"
	assert.Equal(t, 3, LineAtAbsolute(patch, 2))
	assert.Equal(t, -1, LineAtAbsolute(patch, 40))
}

func TestExtendPatch(t *testing.T) {
	ctx := context.Background()
	original := "line1\nline2\nline3\nline4\nline5\nline6\n"
	patch := "@@ -3,1 +3,1 @@\n-line3\n+new_line3"
	newContent := "line1\nline2\nnew_line3\nline4\nline5\nline6\n"

	t.Run("should add context before and after", func(t *testing.T) {
		got := ExtendPatch(ctx, original, patch, newContent, ExtendOptions{Before: 1, After: 1})
		assert.Equal(t, "\n@@ -2,3 +2,3 @@ \n line2\n-line3\n+new_line3\n line4", got)
	})

	t.Run("should clamp at file start", func(t *testing.T) {
		got := ExtendPatch(ctx, original, patch, newContent, ExtendOptions{Before: 5})
		assert.Equal(t, "\n@@ -1,3 +1,3 @@ \n line1\n line2\n-line3\n+new_line3", got)
	})

	t.Run("should leave patches without context settings", func(t *testing.T) {
		assert.Equal(t, patch, ExtendPatch(ctx, original, patch, newContent, ExtendOptions{}))
	})

	t.Run("should skip bad extensions", func(t *testing.T) {
		assert.Equal(t, patch, ExtendPatch(ctx, original, patch, newContent, ExtendOptions{Before: 1, Filename: "image.png"}))
	})
}

func TestDecoupleHunks(t *testing.T) {
	patch := "@@ -1,3 +1,3 @@ func a()\n ctx\n-old\n+new\n ctx2\n"
	got := DecoupleHunks(patch, models.FilePatchInfo{Filename: "a.go"})

	want := "\n\n## File: 'a.go'\n\n@@ -1,3 +1,3 @@ func a()\n__new hunk__\n1  ctx\n2 +new\n3  ctx2\n__old hunk__\n ctx\n-old\n ctx2"
	assert.Equal(t, want, got)

	deleted := DecoupleHunks(patch, models.FilePatchInfo{Filename: "a.go", EditType: models.EditTypeDeleted})
	assert.Equal(t, "\n\n## File 'a.go' was deleted\n", deleted)
}

func TestExtractHunkLines(t *testing.T) {
	patch := "@@ -1,3 +1,4 @@\n ctx\n+added1\n+added2\n ctx2\n"
	hunks, selected := ExtractHunkLines(patch, "a.go", 2, 3, "RIGHT")

	assert.Contains(t, hunks, "## File: 'a.go'")
	assert.Contains(t, hunks, "@@ -1,3 +1,4 @@")
	assert.Equal(t, "+added1\n+added2", selected)
}

func TestCountChanges(t *testing.T) {
	plus, minus := CountChanges("--- a/x\n+++ b/x\n@@ -1,2 +1,2 @@\n-a\n+b\n+c\n")
	assert.Equal(t, 2, plus)
	assert.Equal(t, 1, minus)
}

func TestLoadLargeDiff(t *testing.T) {
	got := LoadLargeDiff(context.Background(), "x.txt", "a\nc\n", "a\nb\n")
	assert.Contains(t, got, "--- a/x.txt")
	assert.Contains(t, got, "-b")
	assert.Contains(t, got, "+c")
	assert.Empty(t, LoadLargeDiff(context.Background(), "x.txt", "", ""))
}
