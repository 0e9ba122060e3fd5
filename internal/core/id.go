package core

import (
	"fmt"

	"github.com/google/uuid"
)

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// AgentID returns the stable roster id for the n-th agent (1-based).
func AgentID(n int) string {
	return fmt.Sprintf("Agent %d", n)
}

// AgentIDs returns the roster ids for a session with n agents.
func AgentIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = AgentID(i + 1)
	}
	return ids
}
