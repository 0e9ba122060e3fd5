// Package persona provides named custom instruction presets. An agent's
// instructions may start with "@<id>" to use a preset, optionally followed by
// extra text that is appended to it.
package persona

import (
	"fmt"
	"strings"
)

// Persona is a reusable set of custom instructions.
type Persona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Instructions string `json:"instructions"`
}

// DefaultPersonas returns the built-in personas.
func DefaultPersonas() []Persona {
	return []Persona{
		{
			ID:          "optimist",
			Name:        "Optimist",
			Description: "Looks for opportunities and workable upsides",
			Instructions: `Approach the problem optimistically:
- Look for opportunities and positive outcomes
- Acknowledge challenges, then show how they can be overcome
- Stay grounded in what the other agents have actually argued`,
		},
		{
			ID:          "skeptic",
			Name:        "Skeptic",
			Description: "Questions assumptions and asks for evidence",
			Instructions: `Approach the problem skeptically:
- Question assumptions, including those shared by the other agents
- Identify risks and downsides
- Ask for evidence and point out gaps in reasoning`,
		},
		{
			ID:          "pragmatist",
			Name:        "Pragmatist",
			Description: "Prefers practical, implementable answers",
			Instructions: `Approach the problem pragmatically:
- Focus on what is achievable with realistic resources
- Prefer proven solutions over theoretical ideals
- End with concrete, actionable steps`,
		},
		{
			ID:          "visionary",
			Name:        "Visionary",
			Description: "Thinks long-term and challenges the status quo",
			Instructions: `Approach the problem as a visionary:
- Consider long-term implications and larger trends
- Propose transformative options the others may have missed
- Keep bold ideas coherent and explain how to get there`,
		},
		{
			ID:          "analyst",
			Name:        "Analyst",
			Description: "Structured, evidence-based evaluation",
			Instructions: `Approach the problem analytically:
- Break the problem into parts and evaluate each one
- Compare the options the agents proposed on explicit criteria
- Quantify impacts where possible`,
		},
		{
			ID:          "devils_advocate",
			Name:        "Devil's Advocate",
			Description: "Argues against the emerging consensus",
			Instructions: `Act as devil's advocate:
- Argue against whatever view the other agents are converging on
- Represent unpopular but valid perspectives
- Be provocative but intellectually honest`,
		},
	}
}

// Get returns a persona by ID.
func Get(id string) *Persona {
	for _, p := range DefaultPersonas() {
		if p.ID == id {
			return &p
		}
	}
	return nil
}

// List returns all persona IDs.
func List() []string {
	personas := DefaultPersonas()
	ids := make([]string, len(personas))
	for i, p := range personas {
		ids[i] = p.ID
	}
	return ids
}

// Expand replaces a leading "@<id>" reference with the persona's
// instructions. Text without a reference is returned trimmed.
func Expand(instructions string) (string, error) {
	text := strings.TrimSpace(instructions)
	if !strings.HasPrefix(text, "@") {
		return text, nil
	}

	ref, rest, _ := strings.Cut(text[1:], " ")
	p := Get(strings.ToLower(ref))
	if p == nil {
		return "", fmt.Errorf("unknown persona %q (available: %s)", ref, strings.Join(List(), ", "))
	}

	if rest = strings.TrimSpace(rest); rest != "" {
		return p.Instructions + "\n" + rest, nil
	}
	return p.Instructions, nil
}
