package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/models"
)

func TestChangedComponents(t *testing.T) {
	files := []models.FilePatchInfo{
		{Filename: "calc/add.go", Patch: samplePatch},
		{
			Filename: "shapes.py",
			Patch:    "@@ -10,2 +10,6 @@ class Shape:\n     pass\n+\n+class Circle(Shape):\n+    def area(self):\n+        return 3.14\n-def legacy():\n",
		},
	}

	got := changedComponents(files)
	want := []component{
		{File: "calc/add.go", Name: "Add", Kind: "function", Change: "modified"},
		{File: "shapes.py", Name: "Shape", Kind: "class", Change: "modified"},
		{File: "shapes.py", Name: "Circle", Kind: "class", Change: "added"},
		{File: "shapes.py", Name: "area", Kind: "function", Change: "added"},
		{File: "shapes.py", Name: "legacy", Kind: "function", Change: "deleted"},
	}
	assert.Equal(t, want, got)
}

func TestComponentCode(t *testing.T) {
	source := "package calc\n\n// Add sums.\nfunc Add(a, b int) int {\n\treturn a + b\n}\n\nfunc Sub(a, b int) int {\n\treturn a - b\n}\n"

	assert.Equal(t, "func Add(a, b int) int {\n\treturn a + b\n}", componentCode(source, "Add"))
	assert.Equal(t, "func Sub(a, b int) int {\n\treturn a - b\n}", componentCode(source, "Sub"))
	assert.Empty(t, componentCode(source, "Mul"))
}

func TestFindComponentHint(t *testing.T) {
	files := []models.FilePatchInfo{
		{Filename: "a/util.go", HeadFile: "func Helper() {}\n"},
		{Filename: "b/util.go", HeadFile: "func Helper() int { return 1 }\n"},
	}

	f, code, ok := findComponent(files, "Helper", "b/")
	require.True(t, ok)
	assert.Equal(t, "b/util.go", f.Filename)
	assert.Contains(t, code, "return 1")

	_, _, ok = findComponent(files, "Helper", "c/")
	assert.False(t, ok)
}

func TestAnalyze(t *testing.T) {
	t.Run("lists components found in the diff", func(t *testing.T) {
		d, _, h := testDeps(t, nil)
		d.Settings.Config.PublishOutput = false

		body, err := NewAnalyze(d, nil).Run(context.Background())
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(body, AnalyzeHeader))
		assert.Contains(t, body, "<code>Add</code>")
		assert.Contains(t, body, "/test Add")
		assert.Zero(t, h.calls())
	})

	t.Run("asks the model when nothing is recognised", func(t *testing.T) {
		d, p, h := testDeps(t, map[string]string{
			"analyze": "```yaml\ncomponents:\n- filename: config.yaml\n  name: retries\n  kind: setting\n  change: modified\n```",
		})
		d.Settings.Config.PublishOutput = false
		p.Patches = []models.FilePatchInfo{{Filename: "config.yaml", Patch: "@@ -1 +1 @@\n-retries: 1\n+retries: 3\n"}}

		body, err := NewAnalyze(d, nil).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, h.calls())
		assert.Contains(t, body, "<code>retries</code>")
	})
}

func TestTestTool(t *testing.T) {
	t.Run("component is required", func(t *testing.T) {
		d, _, _ := testDeps(t, nil)
		d.Settings.PRTest.ClassName = ""

		_, err := NewTest(d, nil).Run(context.Background())
		assert.ErrorIs(t, err, domainErrors.ErrMissingArgument)
	})

	t.Run("generates tests for a changed function", func(t *testing.T) {
		d, _, h := testDeps(t, map[string]string{
			"test": "```yaml\ntests_summary: |\n  Covers positive numbers\ntests_code: |\n  func TestAdd(t *testing.T) {}\n```",
		})
		d.Settings.Config.PublishOutput = false
		d.Settings.PRTest.File = ""

		body, err := NewTest(d, []string{"Add"}).Run(context.Background())
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(body, "## Generated tests for 'Add' 🧪"))
		assert.Contains(t, body, "func TestAdd(t *testing.T) {}")
		require.Equal(t, 1, h.calls())
		assert.Contains(t, h.requests[0].User, "return a + b")
	})
}
