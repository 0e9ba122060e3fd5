// Package core contains the core domain types for adapta-chat.
package core

import (
	"time"
)

// SessionStatus represents the current phase of a debate session.
type SessionStatus string

const (
	StatusSetup           SessionStatus = "setup"
	StatusRoundInProgress SessionStatus = "round_in_progress"
	StatusRoundComplete   SessionStatus = "round_complete"
	StatusSynthesizing    SessionStatus = "synthesizing"
	StatusConcluded       SessionStatus = "concluded"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in an agent's conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Agent is one debate participant bound to a backend.
type Agent struct {
	ID                 string `json:"id"`      // "Agent 1", "Agent 2", ...
	Backend            string `json:"backend"` // registry name, e.g. "GPT"
	Model              string `json:"model,omitempty"`
	CustomInstructions string `json:"custom_instructions,omitempty"`
}

// AgentState is an agent together with its carried memory and transcript.
type AgentState struct {
	Agent
	Memory  string    `json:"memory"`
	History []Message `json:"history"`
}

// Memory pairs an agent id with its latest response or error sentinel.
type Memory struct {
	AgentID string `json:"agent_id"`
	Content string `json:"content"`
}

// OutcomeKind classifies a single agent's result for a round.
type OutcomeKind string

const (
	OutcomeContent OutcomeKind = "content"
	OutcomeFailed  OutcomeKind = "failed"
	OutcomeEmpty   OutcomeKind = "empty"
)

// Outcome is one agent's slot in a RoundResult.
type Outcome struct {
	AgentID  string        `json:"agent_id"`
	Backend  string        `json:"backend"`
	Kind     OutcomeKind   `json:"kind"`
	Content  string        `json:"content,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Err      error         `json:"-"`
}

// OK reports whether the agent produced usable content.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeContent
}

// RoundResult holds exactly one outcome per agent, in roster order.
type RoundResult struct {
	Round    int       `json:"round"`
	Outcomes []Outcome `json:"outcomes"`
}

// Get returns the outcome for the given agent.
func (r RoundResult) Get(agentID string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.AgentID == agentID {
			return o, true
		}
	}
	return Outcome{}, false
}

// Failures counts outcomes that were not usable content.
func (r RoundResult) Failures() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}

// Synthesis is the manager's final conclusion.
type Synthesis struct {
	Backend   string    `json:"backend"`
	Content   string    `json:"content"`
	Fallback  bool      `json:"fallback"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a read-only snapshot of one debate run.
type Session struct {
	ID             string        `json:"id"`
	Topic          string        `json:"topic"`
	NumAgents      int           `json:"num_agents"`
	NumRounds      int           `json:"num_rounds"`
	CurrentRound   int           `json:"current_round"`
	Status         SessionStatus `json:"status"`
	Manager        string        `json:"manager"`
	FinalRoundMode string        `json:"final_round_mode"`
	Agents         []AgentState  `json:"agents"`
	Rounds         []RoundResult `json:"rounds"`
	Synthesis      *Synthesis    `json:"synthesis,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

// LastRound returns the most recent round result, if any.
func (s *Session) LastRound() *RoundResult {
	if len(s.Rounds) == 0 {
		return nil
	}
	return &s.Rounds[len(s.Rounds)-1]
}

// FinalMemories returns every agent's memory in roster order.
func (s *Session) FinalMemories() []Memory {
	memories := make([]Memory, len(s.Agents))
	for i, a := range s.Agents {
		memories[i] = Memory{AgentID: a.ID, Content: a.Memory}
	}
	return memories
}

// Conclusion returns the synthesis text, or an empty string before synthesis.
func (s *Session) Conclusion() string {
	if s.Synthesis == nil {
		return ""
	}
	return s.Synthesis.Content
}

// IsConcluded returns true once the manager synthesis has been recorded.
func (s *Session) IsConcluded() bool {
	return s.Status == StatusConcluded
}

// DebateSummary is a lightweight representation for listing archived debates.
type DebateSummary struct {
	ID        string        `json:"id"`
	Topic     string        `json:"topic"`
	NumAgents int           `json:"num_agents"`
	NumRounds int           `json:"num_rounds"`
	Status    SessionStatus `json:"status"`
	Manager   string        `json:"manager"`
	CreatedAt time.Time     `json:"created_at"`
}

// StartConfig holds the parameters for starting a debate session.
type StartConfig struct {
	Topic        string            `json:"topic"`
	NumAgents    int               `json:"num_agents"`
	NumRounds    int               `json:"num_rounds"`
	Bindings     map[string]string `json:"bindings,omitempty"`     // agent id -> backend
	Instructions map[string]string `json:"instructions,omitempty"` // agent id -> custom instructions
	Manager      string            `json:"manager,omitempty"`
}
