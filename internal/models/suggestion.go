package models

// CodeSuggestion is one improvement proposed by the model.
type CodeSuggestion struct {
	RelevantFile       string `yaml:"relevant_file" json:"relevant_file"`
	Language           string `yaml:"language" json:"language"`
	SuggestionContent  string `yaml:"suggestion_content" json:"suggestion_content"`
	ExistingCode       string `yaml:"existing_code" json:"existing_code"`
	ImprovedCode       string `yaml:"improved_code" json:"improved_code"`
	OneSentenceSummary string `yaml:"one_sentence_summary" json:"one_sentence_summary"`
	Label              string `yaml:"label" json:"label"`
	RelevantLinesStart int    `yaml:"relevant_lines_start" json:"relevant_lines_start"`
	RelevantLinesEnd   int    `yaml:"relevant_lines_end" json:"relevant_lines_end"`
	Score              int    `yaml:"score" json:"score"`
	ScoreWhy           string `yaml:"score_why" json:"score_why"`
}

// InlineComment is a comment anchored to a file line in the PR diff.
type InlineComment struct {
	Body      string
	Path      string
	Line      int
	StartLine int
	Side      string
	Position  int
}

// CheckRun is a CI job result attached to the PR head commit.
type CheckRun struct {
	ID         int64
	Name       string
	Status     string
	Conclusion string
	DetailsURL string
	Summary    string
	Logs       string
}
