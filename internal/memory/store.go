// Package memory keeps each debate agent's carried memory and conversation history.
package memory

import (
	"fmt"
	"sync"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

type entry struct {
	mu      sync.Mutex
	memory  string
	history []core.Message
}

// Store holds per-agent memory and history for one session.
// The roster is fixed at construction; entries for different agents can be
// updated concurrently.
type Store struct {
	order   []string
	entries map[string]*entry
}

// New creates a store with an empty memory for every agent.
func New(agentIDs []string) *Store {
	s := &Store{
		order:   make([]string, len(agentIDs)),
		entries: make(map[string]*entry, len(agentIDs)),
	}
	copy(s.order, agentIDs)
	for _, id := range agentIDs {
		s.entries[id] = &entry{}
	}
	return s
}

func (s *Store) get(agentID string) (*entry, error) {
	e, ok := s.entries[agentID]
	if !ok {
		return nil, fmt.Errorf("unknown agent: %s", agentID)
	}
	return e, nil
}

// RecordPrompt appends a user message to the agent's history.
func (s *Store) RecordPrompt(agentID, prompt string) error {
	e, err := s.get(agentID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, core.Message{Role: core.RoleUser, Content: prompt})
	return nil
}

// RecordResult applies a round outcome. Successful content is appended as an
// assistant message and becomes the memory; failures and empty responses only
// replace the memory with a readable sentinel.
func (s *Store) RecordResult(outcome core.Outcome) error {
	e, err := s.get(outcome.AgentID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch outcome.Kind {
	case core.OutcomeContent:
		e.history = append(e.history, core.Message{Role: core.RoleAssistant, Content: outcome.Content})
		e.memory = outcome.Content
	case core.OutcomeEmpty:
		e.memory = core.EmptyResponseMemory(outcome.AgentID)
	default:
		if outcome.Err != nil {
			e.memory = core.ErrorMemory(outcome.AgentID, outcome.Err)
		} else {
			e.memory = fmt.Sprintf("Error for %s: %s", outcome.AgentID, outcome.Error)
		}
	}
	return nil
}

// Memory returns the agent's current memory.
func (s *Store) Memory(agentID string) string {
	e, err := s.get(agentID)
	if err != nil {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.memory
}

// History returns a copy of the agent's conversation history.
func (s *Store) History(agentID string) []core.Message {
	e, err := s.get(agentID)
	if err != nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	history := make([]core.Message, len(e.history))
	copy(history, e.history)
	return history
}

// Snapshot returns a copy of every agent's memory in roster order.
func (s *Store) Snapshot() []core.Memory {
	memories := make([]core.Memory, len(s.order))
	for i, id := range s.order {
		memories[i] = core.Memory{AgentID: id, Content: s.Memory(id)}
	}
	return memories
}
