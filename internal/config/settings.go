package config

import (
	"fmt"
	"strings"
	"time"
)

// BoolOrString holds settings that accept either a boolean or a keyword,
// such as pr_description.collapsible_file_list = "adaptive".
type BoolOrString string

func (b *BoolOrString) UnmarshalTOML(v interface{}) error {
	switch val := v.(type) {
	case bool:
		*b = BoolOrString(fmt.Sprint(val))
	case string:
		*b = BoolOrString(strings.ToLower(strings.TrimSpace(val)))
	default:
		return fmt.Errorf("expected bool or string, got %T", v)
	}
	return nil
}

func (b BoolOrString) IsTrue() bool { return b == "true" }

func (b BoolOrString) Is(keyword string) bool { return string(b) == keyword }

type (
	// Settings is the typed view of the merged configuration. The raw map it
	// was decoded from is kept alongside so overrides can be re-applied.
	Settings struct {
		Config             Core                  `toml:"config"`
		PRReviewer         PRReviewer            `toml:"pr_reviewer"`
		PRDescription      PRDescription         `toml:"pr_description"`
		PRQuestions        ToolHelp              `toml:"pr_questions"`
		PRCodeSuggestions  PRCodeSuggestions     `toml:"pr_code_suggestions"`
		PRUpdateChangelog  PRUpdateChangelog     `toml:"pr_update_changelog"`
		PRAnalyze          ToolHelp              `toml:"pr_analyze"`
		PRTest             PRTest                `toml:"pr_test"`
		PRImproveComponent PRImproveComponent    `toml:"pr_improve_component"`
		PRCustomPrompt     PRCustomPrompt        `toml:"pr_custom_prompt"`
		PRHelpDocs         PRHelpDocs            `toml:"pr_help_docs"`
		PRHelp             PRHelp                `toml:"pr_help"`
		Checks             Checks                `toml:"checks"`
		PRSimilar          PRSimilar             `toml:"pr_similar"`
		GitHub             GitHub                `toml:"github"`
		GitHubApp          GitHubApp             `toml:"github_app"`
		GitHubAction       GitHubActionConfig    `toml:"github_action_config"`
		GitLab             GitLab                `toml:"gitlab"`
		Bitbucket          Bitbucket             `toml:"bitbucket"`
		AzureDevOps        AzureDevOps           `toml:"azure_devops"`
		CodeCommit         CodeCommit            `toml:"codecommit"`
		OpenAI             OpenAI                `toml:"openai"`
		Anthropic          APIKey                `toml:"anthropic"`
		GoogleAIStudio     GoogleAIStudio        `toml:"google_ai_studio"`
		DeepSeek           DeepSeek              `toml:"deepseek"`
		Pinecone           Pinecone              `toml:"pinecone"`
		Store              Store                 `toml:"store"`
		Server             Server                `toml:"server"`
		CustomLabels       map[string]LabelEntry `toml:"custom_labels"`

		raw map[string]any
	}

	Core struct {
		Model                             string        `toml:"model"`
		ModelTurbo                        string        `toml:"model_turbo"`
		ModelReasoning                    string        `toml:"model_reasoning"`
		FallbackModels                    []string      `toml:"fallback_models"`
		GitProvider                       string        `toml:"git_provider"`
		PublishOutput                     bool          `toml:"publish_output"`
		PublishOutputProgress             bool          `toml:"publish_output_progress"`
		VerbosityLevel                    int           `toml:"verbosity_level"`
		LogLevel                          string        `toml:"log_level"`
		LogFormat                         string        `toml:"log_format"`
		UseExtraBadExtensions             bool          `toml:"use_extra_bad_extensions"`
		AITimeout                         int           `toml:"ai_timeout"`
		Temperature                       float64       `toml:"temperature"`
		MaxDescriptionTokens              int           `toml:"max_description_tokens"`
		MaxCommitsTokens                  int           `toml:"max_commits_tokens"`
		MaxModelTokens                    int           `toml:"max_model_tokens"`
		CustomModelMaxTokens              int           `toml:"custom_model_max_tokens"`
		PatchExtraLinesBefore             int           `toml:"patch_extra_lines_before"`
		PatchExtraLinesAfter              int           `toml:"patch_extra_lines_after"`
		AllowDynamicContext               bool          `toml:"allow_dynamic_context"`
		MaxExtraLinesBeforeDynamicContext int           `toml:"max_extra_lines_before_dynamic_context"`
		LargePatchPolicy                  string        `toml:"large_patch_policy"`
		OutputRelevantConfigurations      bool          `toml:"output_relevant_configurations"`
		EnableCustomLabels                bool          `toml:"enable_custom_labels"`
		ResponseLanguage                  string        `toml:"response_language"`
		IsAutoCommand                     bool          `toml:"is_auto_command"`
		CLIMode                           bool          `toml:"cli_mode"`
		EnableAIMetadata                  bool          `toml:"enable_ai_metadata"`
		RequireTicketAnalysisReview       bool          `toml:"require_ticket_analysis_review"`
		AppName                           string        `toml:"app_name"`
		SecretProvider                    string        `toml:"secret_provider"`
		IgnorePRTitle                     []string      `toml:"ignore_pr_title"`
		IgnorePRTargetBranches            []string      `toml:"ignore_pr_target_branches"`
		IgnorePRSourceBranches            []string      `toml:"ignore_pr_source_branches"`
		IgnorePRLabels                    []string      `toml:"ignore_pr_labels"`
		IgnorePRAuthors                   []string      `toml:"ignore_pr_authors"`
		IgnoreRepositories                []string      `toml:"ignore_repositories"`
		UseRepoSettingsFile               bool          `toml:"use_repo_settings_file"`
		UseGlobalSettingsFile             bool          `toml:"use_global_settings_file"`
		SkipKeys                          []string      `toml:"skip_keys"`
		BudgetDaily                       float64       `toml:"budget_daily"`
		CacheEnabled                      bool          `toml:"cache_enabled"`
		CacheTTL                          time.Duration `toml:"cache_ttl"`
	}

	PRReviewer struct {
		RequireScoreReview                       bool   `toml:"require_score_review"`
		RequireTestsReview                       bool   `toml:"require_tests_review"`
		RequireEstimateEffortToReview            bool   `toml:"require_estimate_effort_to_review"`
		RequireCanBeSplitReview                  bool   `toml:"require_can_be_split_review"`
		RequireSecurityReview                    bool   `toml:"require_security_review"`
		RequireTicketAnalysisReview              bool   `toml:"require_ticket_analysis_review"`
		NumCodeSuggestions                       int    `toml:"num_code_suggestions"`
		InlineCodeComments                       bool   `toml:"inline_code_comments"`
		PersistentComment                        bool   `toml:"persistent_comment"`
		ExtraInstructions                        string `toml:"extra_instructions"`
		FinalUpdateMessage                       bool   `toml:"final_update_message"`
		EnableReviewLabelsSecurity               bool   `toml:"enable_review_labels_security"`
		EnableReviewLabelsEffort                 bool   `toml:"enable_review_labels_effort"`
		RequireAllThresholdsForIncrementalReview bool   `toml:"require_all_thresholds_for_incremental_review"`
		MinimalCommitsForIncrementalReview       int    `toml:"minimal_commits_for_incremental_review"`
		MinimalMinutesForIncrementalReview       int    `toml:"minimal_minutes_for_incremental_review"`
		EnableIntroText                          bool   `toml:"enable_intro_text"`
		EnableHelpText                           bool   `toml:"enable_help_text"`
		EnableAutoApproval                       bool   `toml:"enable_auto_approval"`
		MaximalReviewEffort                      int    `toml:"maximal_review_effort"`
	}

	PRDescription struct {
		PublishLabels                         bool         `toml:"publish_labels"`
		AddOriginalUserDescription            bool         `toml:"add_original_user_description"`
		GenerateAITitle                       bool         `toml:"generate_ai_title"`
		UseBulletPoints                       bool         `toml:"use_bullet_points"`
		ExtraInstructions                     string       `toml:"extra_instructions"`
		EnablePRType                          bool         `toml:"enable_pr_type"`
		FinalUpdateMessage                    bool         `toml:"final_update_message"`
		EnableHelpText                        bool         `toml:"enable_help_text"`
		EnableHelpComment                     bool         `toml:"enable_help_comment"`
		PublishDescriptionAsComment           bool         `toml:"publish_description_as_comment"`
		PublishDescriptionAsCommentPersistent bool         `toml:"publish_description_as_comment_persistent"`
		UseDescriptionMarkers                 bool         `toml:"use_description_markers"`
		IncludeGeneratedByHeader              bool         `toml:"include_generated_by_header"`
		EnableLargePRHandling                 bool         `toml:"enable_large_pr_handling"`
		MaxAICalls                            int          `toml:"max_ai_calls"`
		AsyncAICalls                          bool         `toml:"async_ai_calls"`
		MentionExtraFiles                     bool         `toml:"mention_extra_files"`
		EnableSemanticFilesTypes              bool         `toml:"enable_semantic_files_types"`
		CollapsibleFileList                   BoolOrString `toml:"collapsible_file_list"`
		InlineFileSummary                     BoolOrString `toml:"inline_file_summary"`
	}

	ToolHelp struct {
		EnableHelpText bool `toml:"enable_help_text"`
	}

	PRCodeSuggestions struct {
		MaxContextTokens              int     `toml:"max_context_tokens"`
		NumCodeSuggestionsPerChunk    int     `toml:"num_code_suggestions_per_chunk"`
		CommitableCodeSuggestions     bool    `toml:"commitable_code_suggestions"`
		DualPublishingScoreThreshold  int     `toml:"dual_publishing_score_threshold"`
		FocusOnlyOnProblems           bool    `toml:"focus_only_on_problems"`
		ExtraInstructions             string  `toml:"extra_instructions"`
		RankSuggestions               bool    `toml:"rank_suggestions"`
		EnableHelpText                bool    `toml:"enable_help_text"`
		EnableChatText                bool    `toml:"enable_chat_text"`
		PersistentComment             bool    `toml:"persistent_comment"`
		MaxHistoryLen                 int     `toml:"max_history_len"`
		PublishOutputNoSuggestions    bool    `toml:"publish_output_no_suggestions"`
		ApplySuggestionsCheckbox      bool    `toml:"apply_suggestions_checkbox"`
		EnableMoreSuggestionsCheckbox bool    `toml:"enable_more_suggestions_checkbox"`
		SuggestionsScoreThreshold     int     `toml:"suggestions_score_threshold"`
		NewScoreMechanism             bool    `toml:"new_score_mechanism"`
		NewScoreMechanismThHigh       int     `toml:"new_score_mechanism_th_high"`
		NewScoreMechanismThMedium     int     `toml:"new_score_mechanism_th_medium"`
		SelfReflectOnSuggestions      bool    `toml:"self_reflect_on_suggestions"`
		ParallelCalls                 bool    `toml:"parallel_calls"`
		MaxNumberOfCalls              int     `toml:"max_number_of_calls"`
		FinalClipFactor               float64 `toml:"final_clip_factor"`
		DecoupleHunks                 bool    `toml:"decouple_hunks"`
	}

	PRUpdateChangelog struct {
		PushChangelogChanges bool   `toml:"push_changelog_changes"`
		ExtraInstructions    string `toml:"extra_instructions"`
		AddPRLink            bool   `toml:"add_pr_link"`
		SkipCIOnPush         bool   `toml:"skip_ci_on_push"`
		ChangelogPath        string `toml:"changelog_path"`
	}

	PRTest struct {
		ExtraInstructions string `toml:"extra_instructions"`
		TestingFramework  string `toml:"testing_framework"`
		NumTests          int    `toml:"num_tests"`
		AvoidMocks        bool   `toml:"avoid_mocks"`
		File              string `toml:"file"`
		ClassName         string `toml:"class_name"`
		EnableHelpText    bool   `toml:"enable_help_text"`
	}

	PRImproveComponent struct {
		NumCodeSuggestions int    `toml:"num_code_suggestions"`
		ExtraInstructions  string `toml:"extra_instructions"`
		File               string `toml:"file"`
		ClassName          string `toml:"class_name"`
	}

	PRCustomPrompt struct {
		Prompt                         string `toml:"prompt"`
		SuggestionsScoreThreshold      int    `toml:"suggestions_score_threshold"`
		NumCodeSuggestionsPerChunk     int    `toml:"num_code_suggestions_per_chunk"`
		SelfReflectOnCustomSuggestions bool   `toml:"self_reflect_on_custom_suggestions"`
		EnableHelpText                 bool   `toml:"enable_help_text"`
	}

	PRHelpDocs struct {
		RepoURL           string   `toml:"repo_url"`
		RepoDefaultBranch string   `toml:"repo_default_branch"`
		DocsPath          string   `toml:"docs_path"`
		ExcludeRootReadme bool     `toml:"exclude_root_readme"`
		SupportedDocExts  []string `toml:"supported_doc_exts"`
		MaxSections       int      `toml:"max_sections"`
		EnableHelpText    bool     `toml:"enable_help_text"`
	}

	PRHelp struct {
		ForceLocalDB         bool `toml:"force_local_db"`
		NumRetrievedSnippets int  `toml:"num_retrieved_snippets"`
	}

	Checks struct {
		EnableAutoChecksFeedback bool     `toml:"enable_auto_checks_feedback"`
		ExcludedChecksList       []string `toml:"excluded_checks_list"`
		PersistentComment        bool     `toml:"persistent_comment"`
		EnableHelpText           bool     `toml:"enable_help_text"`
		FinalUpdateMessage       bool     `toml:"final_update_message"`
		MaxLogsTokens            int      `toml:"max_logs_tokens"`
	}

	PRSimilar struct {
		MaxProblemTokens int    `toml:"max_problem_tokens"`
		NumberOfKeywords int    `toml:"number_of_keywords"`
		SearchFromOrg    bool   `toml:"search_from_org"`
		VectorDB         string `toml:"vectordb"`
		EmbeddingModel   string `toml:"embedding_model"`
		NumberOfResults  int    `toml:"number_of_results"`
	}

	GitHub struct {
		DeploymentType                                string   `toml:"deployment_type"`
		UserToken                                     string   `toml:"user_token"`
		AppID                                         int64    `toml:"app_id"`
		PrivateKey                                    string   `toml:"private_key"`
		WebhookSecret                                 string   `toml:"webhook_secret"`
		InstallationID                                int64    `toml:"installation_id"`
		RatelimitRetries                              int      `toml:"ratelimit_retries"`
		BaseURL                                       string   `toml:"base_url"`
		PublishInlineCommentsFallbackWithVerification bool     `toml:"publish_inline_comments_fallback_with_verification"`
		TryFixInvalidInlineComments                   bool     `toml:"try_fix_invalid_inline_comments"`
		AppName                                       string   `toml:"app_name"`
		IgnorePRTitle                                 []string `toml:"ignore_pr_title"`
	}

	GitHubApp struct {
		BotUser                         string   `toml:"bot_user"`
		OverrideDeploymentType          bool     `toml:"override_deployment_type"`
		HandlePRActions                 []string `toml:"handle_pr_actions"`
		PRCommands                      []string `toml:"pr_commands"`
		HandlePushTrigger               bool     `toml:"handle_push_trigger"`
		PushTriggerIgnoreBotCommits     bool     `toml:"push_trigger_ignore_bot_commits"`
		PushTriggerIgnoreMergeCommits   bool     `toml:"push_trigger_ignore_merge_commits"`
		PushTriggerWaitForInitialReview bool     `toml:"push_trigger_wait_for_initial_review"`
		PushTriggerPendingTasksBacklog  bool     `toml:"push_trigger_pending_tasks_backlog"`
		PushTriggerPendingTasksTTL      int      `toml:"push_trigger_pending_tasks_ttl"`
		PushCommands                    []string `toml:"push_commands"`
		IgnoreBotPR                     bool     `toml:"ignore_bot_pr"`
	}

	GitHubActionConfig struct {
		AutoReview   bool     `toml:"auto_review"`
		AutoDescribe bool     `toml:"auto_describe"`
		AutoImprove  bool     `toml:"auto_improve"`
		PRActions    []string `toml:"pr_actions"`
		EnableOutput bool     `toml:"enable_output"`
	}

	GitLab struct {
		URL                 string   `toml:"url"`
		PersonalAccessToken string   `toml:"personal_access_token"`
		SharedSecret        string   `toml:"shared_secret"`
		PRCommands          []string `toml:"pr_commands"`
		HandlePushTrigger   bool     `toml:"handle_push_trigger"`
		PushCommands        []string `toml:"push_commands"`
	}

	Bitbucket struct {
		APIURL         string   `toml:"api_url"`
		BearerToken    string   `toml:"bearer_token"`
		PRCommands     []string `toml:"pr_commands"`
		AvoidFullFiles bool     `toml:"avoid_full_files"`
	}

	AzureDevOps struct {
		Org                  string `toml:"org"`
		PAT                  string `toml:"pat"`
		DefaultCommentStatus string `toml:"default_comment_status"`
	}

	CodeCommit struct {
		Region string `toml:"region"`
	}

	OpenAI struct {
		Key          string `toml:"key"`
		Org          string `toml:"org"`
		APIBase      string `toml:"api_base"`
		APIType      string `toml:"api_type"`
		APIVersion   string `toml:"api_version"`
		DeploymentID string `toml:"deployment_id"`
	}

	APIKey struct {
		Key string `toml:"key"`
	}

	GoogleAIStudio struct {
		GeminiAPIKey string `toml:"gemini_api_key"`
	}

	DeepSeek struct {
		Key     string `toml:"key"`
		APIBase string `toml:"api_base"`
	}

	Pinecone struct {
		APIKey      string `toml:"api_key"`
		Environment string `toml:"environment"`
		Index       string `toml:"index"`
	}

	Store struct {
		Path string `toml:"path"`
	}

	Server struct {
		Port         int           `toml:"port"`
		ReadTimeout  time.Duration `toml:"read_timeout"`
		WriteTimeout time.Duration `toml:"write_timeout"`
	}

	LabelEntry struct {
		Description string `toml:"description"`
	}
)
