package procs

import (
	"context"
	"fmt"
	"strings"

	"go-agent-fleet/internal/roster"
)

// PromptStore returns a previously stored custom prompt for a member. When
// one exists it is used verbatim instead of the composed context.
type PromptStore interface {
	CustomPrompt(ctx context.Context, agentID string) (string, bool, error)
}

// SkillStore returns the agent-authored skills a member has accumulated.
type SkillStore interface {
	SkillsFor(ctx context.Context, agentID string) ([]roster.Skill, error)
}

// ImplementedTools lists every tool an unrestricted member may use, in
// display order.
var ImplementedTools = []string{
	"bash",
	"websearch",
	"draft",
	"generate_image",
	"instagram_post",
	"metricool_schedule",
	"browser_visit",
	"store_credential",
	"write_file",
}

const kpiCoaching = "Analyze these KPIs against what you observe, take actions that move them, and proactively report progress and blockers to your human without waiting to be asked."

const skillInvitation = "You may create more skills whenever you find a reusable procedure worth keeping."

// ComposePrompt builds the member's runtime context. Section order matters:
// later sections refine earlier ones when the model reads them as a single
// prompt.
func ComposePrompt(m roster.Member, roleDescription string, customSkills []roster.Skill) string {
	name := m.DisplayName
	if name == "" {
		name = m.Name
	}
	role := m.Role
	if role == "" {
		role = name
	}

	sections := []string{fmt.Sprintf("You are %s, a %s.", name, role)}
	if roleDescription != "" {
		sections = append(sections, roleDescription)
	}
	if s := strings.TrimSpace(m.JobDescription); s != "" {
		sections = append(sections, "Your specific role: "+s)
	}
	if s := strings.TrimSpace(m.Goals); s != "" {
		sections = append(sections, "Your goals:\n"+s)
	}
	if s := strings.TrimSpace(m.KPIs); s != "" {
		sections = append(sections, "KPIs you are measured on:\n"+s+"\n\n"+kpiCoaching)
	}
	if s := strings.TrimSpace(m.AccessNotes); s != "" {
		sections = append(sections, "Access you have: "+s)
	}
	if s := strings.TrimSpace(m.SpecMarkdown); s != "" {
		sections = append(sections, s)
	}
	if len(customSkills) > 0 {
		var b strings.Builder
		b.WriteString("Skills you have defined:")
		for _, sk := range customSkills {
			fmt.Fprintf(&b, "\n- %s: %s. %s", sk.Name, sk.Description, sk.Instructions)
		}
		sections = append(sections, b.String())
	}
	sections = append(sections, skillInvitation)
	sections = append(sections, "Tools you can use: "+strings.Join(resolveTools(m), ", ")+".")
	if m.WorksForName != "" {
		trailer := fmt.Sprintf("You work for a human named %s.", m.WorksForName)
		if m.WorksForAbout != "" {
			trailer += " About them: " + m.WorksForAbout
		}
		sections = append(sections, trailer)
	}
	return strings.Join(sections, "\n\n")
}

// resolveTools returns the member's allow-list, or the full implemented
// list when the member has no explicit restriction.
func resolveTools(m roster.Member) []string {
	if len(m.Skills) == 0 {
		return ImplementedTools
	}
	return m.Skills
}
