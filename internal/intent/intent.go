// Package intent models the closed set of actions the classifier can emit
// as a tagged variant, plus the allow-list rules deciding whether a member
// may execute one.
package intent

import "go-agent-fleet/internal/roster"

// Kind tags an intent variant.
type Kind string

const (
	KindBash              Kind = "bash"
	KindWebSearch         Kind = "websearch"
	KindDraft             Kind = "draft"
	KindGenerateImage     Kind = "generate_image"
	KindInstagramPost     Kind = "instagram_post"
	KindMetricoolSchedule Kind = "metricool_schedule"
	KindCreateSkill       Kind = "create_skill"
	KindBrowserVisit      Kind = "browser_visit"
	KindStoreCredential   Kind = "store_credential"
	KindWriteFile         Kind = "write_file"
	KindResponse          Kind = "response"
)

// Intent is one classified action. Each variant carries only its own
// parameters; Response is the fallback for anything unrecognized.
type Intent interface {
	Kind() Kind
}

// Bash runs a terminal command.
type Bash struct {
	Command string
}

func (Bash) Kind() Kind { return KindBash }

// WebSearch queries the web, or fetches a URL when the query looks like one.
type WebSearch struct {
	Query string
}

func (WebSearch) Kind() Kind { return KindWebSearch }

// Draft produces written content.
type Draft struct {
	Prompt string
}

func (Draft) Kind() Kind { return KindDraft }

// GenerateImage creates an image from a description.
type GenerateImage struct {
	Prompt string
	Size   string
}

func (GenerateImage) Kind() Kind { return KindGenerateImage }

// InstagramPost publishes an image with a caption.
type InstagramPost struct {
	Caption        string
	ImagePathOrURL string
}

func (InstagramPost) Kind() Kind { return KindInstagramPost }

// MetricoolSchedule schedules a post.
type MetricoolSchedule struct {
	Content       string
	ScheduledDate string
}

func (MetricoolSchedule) Kind() Kind { return KindMetricoolSchedule }

// CreateSkill registers a new agent-authored skill.
type CreateSkill struct {
	Name         string
	Description  string
	Instructions string
}

func (CreateSkill) Kind() Kind { return KindCreateSkill }

// BrowserVisit opens a URL in the automated browser.
type BrowserVisit struct {
	URL string
}

func (BrowserVisit) Kind() Kind { return KindBrowserVisit }

// StoreCredential saves a credential through the management surface.
type StoreCredential struct {
	Key   string
	Value string
}

func (StoreCredential) Kind() Kind { return KindStoreCredential }

// WriteFile writes a file inside the workspace.
type WriteFile struct {
	FilePath string
	Content  string
}

func (WriteFile) Kind() Kind { return KindWriteFile }

// Response is a plain conversational reply and the default variant.
type Response struct {
	Text string
}

func (Response) Kind() Kind { return KindResponse }

// requiredSkill maps intent kinds to the allow-list entry they need.
// Response needs none; CreateSkill is always permitted since agents are
// standing-invited to author skills.
var requiredSkill = map[Kind]string{
	KindBash:              "bash",
	KindWebSearch:         "websearch",
	KindDraft:             "draft",
	KindGenerateImage:     "generate_image",
	KindInstagramPost:     "instagram_post",
	KindMetricoolSchedule: "metricool_schedule",
	KindBrowserVisit:      "browser_visit",
	KindStoreCredential:   "store_credential",
	KindWriteFile:         "write_file",
}

// RequiredSkill returns the allow-list entry a kind needs, or "" when the
// kind is always permitted.
func RequiredSkill(k Kind) string {
	return requiredSkill[k]
}

// Allowed reports whether the member may execute the intent kind. An empty
// skill list on the member means no restriction.
func Allowed(m roster.Member, k Kind) bool {
	req := RequiredSkill(k)
	if req == "" || len(m.Skills) == 0 {
		return true
	}
	for _, s := range m.Skills {
		if s == req {
			return true
		}
	}
	return false
}
