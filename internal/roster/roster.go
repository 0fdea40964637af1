// Package roster reads the team configuration owned by the management
// surface. The core never mutates roster fields; it only reads them to
// route, wake and spawn agents.
package roster

import "context"

// Member statuses.
const (
	StatusActive = "active"
	StatusPaused = "paused"
)

// Skill is an agent-authored capability referenced from the runtime context.
type Skill struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Instructions string `json:"instructions"`
}

// Member is one roster entry. DisplayName and Aliases drive mention
// detection; the remaining fields feed the spawned agent's runtime context.
type Member struct {
	ID             string   `json:"id"`
	Name           string   `json:"name,omitempty"`
	DisplayName    string   `json:"displayName"`
	Aliases        []string `json:"aliases,omitempty"`
	Status         string   `json:"status"`
	WakeOnSignals  *bool    `json:"wakeOnSignals,omitempty"`
	TemplateID     string   `json:"templateId,omitempty"`
	Role           string   `json:"role,omitempty"`
	JobDescription string   `json:"jobDescription,omitempty"`
	Goals          string   `json:"goals,omitempty"`
	KPIs           string   `json:"kpis,omitempty"`
	AccessNotes    string   `json:"accessNotes,omitempty"`
	SpecMarkdown   string   `json:"specMarkdown,omitempty"`
	Skills         []string `json:"skills,omitempty"`
	WorksForName   string   `json:"worksForName,omitempty"`
	WorksForAbout  string   `json:"worksForAbout,omitempty"`
}

// WakesOnSignals reports whether tick/signal wakes apply. Absent means yes.
func (m Member) WakesOnSignals() bool {
	return m.WakeOnSignals == nil || *m.WakeOnSignals
}

// ShouldWake reports whether the scheduler may wake this member.
func (m Member) ShouldWake() bool {
	return m.Status == StatusActive && m.WakesOnSignals()
}

// Source provides the current team and the external signals snapshot.
type Source interface {
	Team(ctx context.Context) ([]Member, error)
	Signals(ctx context.Context) (string, error)
}

// Normalize fills derived fields: DisplayName falls back to Name (then ID)
// and nil alias slices become empty.
func Normalize(members []Member) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if m.DisplayName == "" {
			if m.Name != "" {
				m.DisplayName = m.Name
			} else {
				m.DisplayName = m.ID
			}
		}
		if m.Aliases == nil {
			m.Aliases = []string{}
		}
		out = append(out, m)
	}
	return out
}
