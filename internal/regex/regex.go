package regex

import "regexp"

var (
	// Diff patterns
	HunkHeader      = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@[ ]?(.*)`)
	HunkHeaderLoose = regexp.MustCompile(`@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)
	FunctionHeader  = regexp.MustCompile(`^\s*(?:(?:export|public|private|protected|static|async|override|def|func|function|class|interface|struct|type|fn|impl|module)\b)`)

	// ComponentDefinition captures the keyword and the name of a definition.
	ComponentDefinition = regexp.MustCompile(`^\s*(?:(?:export|public|private|protected|static|async|pub|default)\s+)*(func|def|function|class|interface|struct|type|fn)\s+(?:\([^)]*\)\s*)?([A-Za-z_$][\w$]*)`)

	// Ticket patterns
	GitHubIssueURL = regexp.MustCompile(`https://github[^/]+/[^/]+/[^/]+/issues/\d+`)
	IssueNumberRef = regexp.MustCompile(`#\d+`)
	IssueURLParts  = regexp.MustCompile(`^https?://[^/]+/([^/]+/[^/]+)/issues/(\d+)`)

	// Pull request URL patterns
	GitHubPRURL        = regexp.MustCompile(`^https?://([^/]+)/(?:api/v3/repos/)?([^/]+)/([^/]+)/pulls?/(\d+)`)
	GitHubIssueURLFull = regexp.MustCompile(`^https?://([^/]+)/(?:api/v3/repos/)?([^/]+)/([^/]+)/issues/(\d+)`)
	GitLabMRURL        = regexp.MustCompile(`^https?://[^/]+/(.+?)/(?:-/)?merge_requests/(\d+)`)
	BitbucketPRURL     = regexp.MustCompile(`^https?://bitbucket\.org/([^/]+)/([^/]+)/pull-requests/(\d+)`)
	AzurePRURL         = regexp.MustCompile(`^https?://(?:dev\.azure\.com/([^/]+)|([^/.]+)\.visualstudio\.com)/([^/]+)/_git/([^/]+)/pullrequest/(\d+)`)
	CodeCommitPRPath   = regexp.MustCompile(`^/codesuite/codecommit/repositories/([^/]+)/pull-requests/(\d+)`)

	// Markdown and model output
	YAMLCodeBlock                = regexp.MustCompile("(?s)```(?:yaml|yml)?\\s*\n(.*?)```")
	HTMLTag                      = regexp.MustCompile(`<[^>]+>`)
	DescriptionMarkerType        = regexp.MustCompile(`<!--\s*pr_insight:type\s*-->`)
	DescriptionMarkerSummary     = regexp.MustCompile(`<!--\s*pr_insight:summary\s*-->`)
	DescriptionMarkerWalkthrough = regexp.MustCompile(`<!--\s*pr_insight:walkthrough\s*-->`)
	QuestionArg                  = regexp.MustCompile(`^"(.*)"$`)

	// Servers
	BotUsername = regexp.MustCompile(`(?i)(khulnasoft|bot_|bot-|_bot|-bot)`)
	MergeCommit = regexp.MustCompile(`^Merge (?:branch|pull request|remote-tracking branch)`)
)
