package diff

import (
	"context"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/khulnasoft/pr-insight/internal/logger"
)

// LoadLargeDiff rebuilds a unified patch from both file versions, for
// providers that omit the patch of large files.
func LoadLargeDiff(ctx context.Context, filename, newContent, originalContent string) string {
	if originalContent == "" && newContent == "" {
		return ""
	}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.TrimRight(originalContent, " \t\r\n")),
		B:        difflib.SplitLines(strings.TrimRight(newContent, " \t\r\n")),
		FromFile: "a/" + filename,
		ToFile:   "b/" + filename,
		Context:  3,
	}
	patch, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		logger.Warn(ctx, "failed to build diff", "file", filename, "error", err)
		return ""
	}
	logger.Debug(ctx, "file was modified but no patch was found, built one", "file", filename)
	return patch
}
