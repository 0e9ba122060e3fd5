package core

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAssignment parses a per-agent assignment string.
// Format: agent=value
//
// Examples:
//   - "Agent 1=Claude" -> ("Agent 1", "Claude")
//   - "2=Gemini" -> ("Agent 2", "Gemini")
//   - "agent 3=Be terse." -> ("Agent 3", "Be terse.")
func ParseAssignment(spec string) (string, string, error) {
	if strings.TrimSpace(spec) == "" {
		return "", "", fmt.Errorf("assignment cannot be empty")
	}

	parts := strings.SplitN(spec, "=", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("assignment must look like 'Agent 1=value': %s", spec)
	}

	id, err := NormalizeAgentID(parts[0])
	if err != nil {
		return "", "", err
	}

	value := strings.TrimSpace(parts[1])
	if value == "" {
		return "", "", fmt.Errorf("value cannot be empty in assignment: %s", spec)
	}

	return id, value, nil
}

// ParseAssignments parses a list of assignments into an agent id keyed map.
// Later entries for the same agent win.
func ParseAssignments(specs []string) (map[string]string, error) {
	result := make(map[string]string, len(specs))
	for _, spec := range specs {
		id, value, err := ParseAssignment(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid assignment '%s': %w", spec, err)
		}
		result[id] = value
	}
	return result, nil
}

// NormalizeAgentID accepts "Agent 2", "agent2" or "2" and returns "Agent 2".
func NormalizeAgentID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "agent") {
		s = strings.TrimSpace(s[len("agent"):])
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return "", fmt.Errorf("invalid agent id: %q", raw)
	}
	return AgentID(n), nil
}
