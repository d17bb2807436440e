package codecommit

import (
	"testing"

	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePRURL(t *testing.T) {
	repo, number, err := ParsePRURL("https://us-east-1.console.aws.amazon.com/codesuite/codecommit/repositories/my_test_repo/pull-requests/321")
	require.NoError(t, err)
	assert.Equal(t, "my_test_repo", repo)
	assert.Equal(t, 321, number)

	_, _, err = ParsePRURL("https://example.com/codecommit/repositories/my_test_repo/pull-requests/4321")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidPRURL)
}

func TestIsValidCodeCommitHostname(t *testing.T) {
	regions := []string{
		"af-south-1", "ap-east-1", "ap-northeast-1", "ap-northeast-2", "ap-northeast-3",
		"ap-south-1", "ap-south-2", "ap-southeast-1", "ap-southeast-2", "ap-southeast-3",
		"ap-southeast-4", "ca-central-1", "eu-central-1", "eu-central-2", "eu-north-1",
		"eu-south-1", "eu-south-2", "eu-west-1", "eu-west-2", "eu-west-3", "il-central-1",
		"me-central-1", "me-south-1", "sa-east-1", "us-east-1", "us-east-2", "us-gov-east-1",
		"us-gov-west-1", "us-west-1", "us-west-2",
	}
	for _, region := range regions {
		assert.True(t, IsValidCodeCommitHostname(region+".console.aws.amazon.com"), region)
	}
	assert.False(t, IsValidCodeCommitHostname("no-such-region.console.aws.amazon.com"))
	assert.False(t, IsValidCodeCommitHostname("console.aws.amazon.com"))
}

func TestFileExtensions(t *testing.T) {
	filenames := []string{
		"app.py", "cli.py", "composer.json", "composer.lock", "hello.py", "image1.jpg",
		"image2.JPG", "index.js", "provider.py", "README", "test.py",
	}
	want := []string{".py", ".py", ".json", ".lock", ".py", ".jpg", ".jpg", ".js", ".py", "", ".py"}

	assert.Equal(t, want, FileExtensions(filenames))
}

func TestLanguagePercentages(t *testing.T) {
	got := LanguagePercentages([]string{".py", ".py", ".json", ".lock", ".py", ".jpg", ".jpg", ".js", ".py", "", ".py"})
	assert.Equal(t, map[string]int{".py": 45, ".json": 9, ".lock": 9, ".jpg": 18, ".js": 9, "": 9}, got)

	got = LanguagePercentages([]string{"txt", "py", "py"})
	assert.Equal(t, 67, got["py"])
	assert.Equal(t, 33, got["txt"])

	assert.Empty(t, LanguagePercentages(nil))
}

func TestEditTypeFromCode(t *testing.T) {
	tests := map[string]models.EditType{
		"A": models.EditTypeAdded,
		"D": models.EditTypeDeleted,
		"M": models.EditTypeModified,
		"R": models.EditTypeRenamed,
		"a": models.EditTypeAdded,
		"r": models.EditTypeRenamed,
	}
	for code, want := range tests {
		got, ok := EditTypeFromCode(code)
		assert.True(t, ok, code)
		assert.Equal(t, want, got, code)
	}
	_, ok := EditTypeFromCode("X")
	assert.False(t, ok)
}

func TestAddAdditionalNewlines(t *testing.T) {
	assert.Equal(t,
		"abc\n\ndef\n\n___\n\nghi\n\njkl\n\nmno\n\npqr\n\n",
		AddAdditionalNewlines("abc\ndef\n\n___\nghi\njkl\nmno\n\npqr\n"))

	in := "## PR Type:\nEnhancement\n\n___\n## PR Description:\nAdds a name filter.\n\n___\n## PR Main Files Walkthrough:\n`foo`: new `-f` option.\n`bar`: lists stopped servers.\n"
	want := "## PR Type:\n\nEnhancement\n\n___\n\n## PR Description:\n\nAdds a name filter.\n\n___\n\n## PR Main Files Walkthrough:\n\n`foo`: new `-f` option.\n\n`bar`: lists stopped servers.\n\n"
	assert.Equal(t, want, AddAdditionalNewlines(in))
}

func TestRemoveMarkdownHTML(t *testing.T) {
	in := "## PR Feedback\n<details><summary>Code feedback:</summary>\nfile foo\n</summary>\n"
	assert.Equal(t, "## PR Feedback\nCode feedback:\nfile foo\n\n", RemoveMarkdownHTML(in))
}
