package gitlab

import "github.com/khulnasoft/pr-insight/internal/servers/webhook"

// hookPayload holds the fields of the merge request, note and push hooks
// the server acts on.
type hookPayload struct {
	ObjectKind  string `json:"object_kind"`
	EventType   string `json:"event_type"`
	EventName   string `json:"event_name"`
	UserName    string `json:"user_name"`
	ProjectID   int    `json:"project_id"`
	CheckoutSHA string `json:"checkout_sha"`
	Ref         string `json:"ref"`

	User struct {
		ID       int    `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"user"`
	Project struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
	ObjectAttributes objectAttributes `json:"object_attributes"`
	MergeRequest     *struct {
		URL string `json:"url"`
	} `json:"merge_request"`
}

type objectAttributes struct {
	Action         string `json:"action"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	SourceBranch   string `json:"source_branch"`
	TargetBranch   string `json:"target_branch"`
	Draft          bool   `json:"draft"`
	WorkInProgress bool   `json:"work_in_progress"`
	Labels         []struct {
		Title string `json:"title"`
	} `json:"labels"`

	Note         string        `json:"note"`
	Type         string        `json:"type"`
	DiscussionID string        `json:"discussion_id"`
	Position     *notePosition `json:"position"`
}

type notePosition struct {
	NewPath   string `json:"new_path"`
	LineRange struct {
		Start struct {
			NewLine int `json:"new_line"`
		} `json:"start"`
		End struct {
			NewLine int `json:"new_line"`
		} `json:"end"`
	} `json:"line_range"`
}

func (p *hookPayload) sender() string {
	if p.User.Username != "" {
		return p.User.Username
	}
	return p.UserName
}

func (p *hookPayload) senderName() string {
	if p.User.Name != "" {
		return p.User.Name
	}
	return p.UserName
}

func (p *hookPayload) mergeRequestInfo() webhook.PullRequestInfo {
	attrs := p.ObjectAttributes
	labels := make([]string, 0, len(attrs.Labels))
	for _, l := range attrs.Labels {
		labels = append(labels, l.Title)
	}
	return webhook.PullRequestInfo{
		Repo:         p.Project.PathWithNamespace,
		Title:        attrs.Title,
		Author:       p.User.Username,
		Labels:       labels,
		SourceBranch: attrs.SourceBranch,
		TargetBranch: attrs.TargetBranch,
	}
}
