package intent

import (
	"encoding/json"
	"strings"
)

// wire is the JSON shape the classifier emits.
type wire struct {
	Intent string `json:"intent"`
	Params struct {
		Command        string `json:"command"`
		Query          string `json:"query"`
		URL            string `json:"url"`
		Prompt         string `json:"prompt"`
		Size           string `json:"size"`
		Caption        string `json:"caption"`
		ImagePathOrURL string `json:"imagePathOrUrl"`
		Content        string `json:"content"`
		ScheduledDate  string `json:"scheduledDate"`
		Name           string `json:"name"`
		Description    string `json:"description"`
		Instructions   string `json:"instructions"`
		Key            string `json:"key"`
		Value          string `json:"value"`
		FilePath       string `json:"filePath"`
		Text           string `json:"text"`
	} `json:"params"`
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Parse turns raw classifier output into an Intent. Unparseable or
// unrecognized output degrades to a Response rather than failing the
// pipeline.
func Parse(raw string) Intent {
	var w wire
	if err := json.Unmarshal([]byte(stripFences(raw)), &w); err != nil {
		return Response{}
	}
	p := w.Params
	switch Kind(w.Intent) {
	case KindBash:
		return Bash{Command: p.Command}
	case KindWebSearch:
		return WebSearch{Query: p.Query}
	case KindDraft:
		return Draft{Prompt: p.Prompt}
	case KindGenerateImage:
		return GenerateImage{Prompt: p.Prompt, Size: p.Size}
	case KindInstagramPost:
		img := p.ImagePathOrURL
		if img == "" {
			img = p.Prompt
		}
		return InstagramPost{Caption: p.Caption, ImagePathOrURL: img}
	case KindMetricoolSchedule:
		content := p.Content
		if content == "" {
			content = p.Prompt
		}
		return MetricoolSchedule{Content: content, ScheduledDate: p.ScheduledDate}
	case KindCreateSkill:
		return CreateSkill{Name: p.Name, Description: p.Description, Instructions: p.Instructions}
	case KindBrowserVisit:
		return BrowserVisit{URL: strings.TrimSpace(p.URL)}
	case KindStoreCredential:
		return StoreCredential{Key: strings.TrimSpace(p.Key), Value: p.Value}
	case KindWriteFile:
		return WriteFile{FilePath: strings.TrimSpace(p.FilePath), Content: p.Content}
	case KindResponse:
		return Response{Text: p.Text}
	default:
		return Response{}
	}
}
