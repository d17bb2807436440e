package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khulnasoft/pr-insight/internal/models"
)

const checksResponse = "```yaml\nfailed_test_name: |\n  TestAdd\nfailure_summary: |\n  Add returned -1 for (1, 2).\nrelevant_error_logs: |\n  add_test.go:12: got -1, want 3\nsuggested_fix: |\n  Return a + b.\n```"

func TestCIFeedback(t *testing.T) {
	t.Run("explains each failed run", func(t *testing.T) {
		d, p, h := testDeps(t, map[string]string{"checks": checksResponse})
		d.Settings.Config.PublishOutput = true
		d.Settings.Checks.PersistentComment = false
		d.Settings.Checks.EnableHelpText = false
		p.Checks = []models.CheckRun{
			{Name: "unit-tests", DetailsURL: "https://ci.example.com/1", Logs: "ok\nadd_test.go:12: got -1, want 3\nFAIL"},
		}

		body, err := NewCIFeedback(d, nil).Run(context.Background())
		require.NoError(t, err)
		require.Len(t, p.Published, 1)
		assert.True(t, strings.HasPrefix(body, CIFeedbackHeader))
		assert.Contains(t, body, "[unit-tests](https://ci.example.com/1)")
		assert.Contains(t, body, "TestAdd")
		assert.Contains(t, body, "Return a + b.")
		require.Equal(t, 1, h.calls())
		assert.Contains(t, h.requests[0].User, "got -1, want 3")
	})

	t.Run("excluded checks are skipped", func(t *testing.T) {
		d, p, h := testDeps(t, nil)
		d.Settings.Config.PublishOutput = false
		d.Settings.Checks.ExcludedChecksList = []string{"lint"}
		p.Checks = []models.CheckRun{{Name: "Lint / golangci"}}

		body, err := NewCIFeedback(d, nil).Run(context.Background())
		require.NoError(t, err)
		assert.Contains(t, body, "No failed checks")
		assert.Zero(t, h.calls())
	})

	t.Run("argument selects a run", func(t *testing.T) {
		d, p, h := testDeps(t, map[string]string{"checks": checksResponse})
		d.Settings.Config.PublishOutput = false
		p.Checks = []models.CheckRun{
			{Name: "unit-tests", Logs: "FAIL TestAdd"},
			{Name: "e2e", Logs: "FAIL TestLogin"},
		}

		body, err := NewCIFeedback(d, []string{"e2e"}).Run(context.Background())
		require.NoError(t, err)
		assert.Contains(t, body, "**Action:** e2e")
		assert.NotContains(t, body, "**Action:** unit-tests")
		require.Equal(t, 1, h.calls())
	})
}

func TestTailTokens(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, fmt.Sprintf("line %d of the build output", i))
	}
	logs := strings.Join(lines, "\n")

	assert.Equal(t, logs, tailTokens("gpt-4o", logs, 0))
	assert.Equal(t, "short", tailTokens("gpt-4o", "short", 100))

	got := tailTokens("gpt-4o", logs, 50)
	assert.True(t, strings.HasPrefix(got, "...(truncated)\n"))
	assert.True(t, strings.HasSuffix(got, "line 199 of the build output"))
	assert.NotContains(t, got, "line 0 of")
}
