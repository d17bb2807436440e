package diff

import (
	"context"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/models"
)

// OmitDeletionHunks drops hunks that only remove lines.
func OmitDeletionHunks(patchLines []string) string {
	var (
		kept       []string
		hunk       []string
		addHunk    bool
		insideHunk bool
	)
	for _, line := range patchLines {
		if strings.HasPrefix(line, "@@") {
			if _, ok := ParseHunkHeader(line); ok {
				if insideHunk {
					if addHunk {
						kept = append(kept, hunk...)
					}
					hunk = nil
					addHunk = false
				}
				hunk = append(hunk, line)
				insideHunk = true
			}
			continue
		}
		hunk = append(hunk, line)
		if strings.HasPrefix(line, "+") {
			addHunk = true
		}
	}
	if insideHunk && addHunk {
		kept = append(kept, hunk...)
	}
	return strings.Join(kept, "\n")
}

// HandlePatchDeletions prunes deletion-only hunks from patch. It reports
// false when the file itself was deleted and should be listed by name only.
func HandlePatchDeletions(ctx context.Context, patch, originalContent, newContent, filename string, editType models.EditType) (string, bool) {
	if newContent == "" && (editType == models.EditTypeDeleted || editType == models.EditTypeUnknown || editType == "") {
		logger.Debug(ctx, "minimizing deleted file", "file", filename)
		return "", false
	}
	pruned := OmitDeletionHunks(SplitLines(patch))
	if pruned != patch {
		logger.Debug(ctx, "deletion hunks were omitted", "file", filename)
	}
	return pruned, true
}
