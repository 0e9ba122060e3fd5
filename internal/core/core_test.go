package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestNormalizeAgentID(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "Agent 2", want: "Agent 2"},
		{input: "agent2", want: "Agent 2"},
		{input: " AGENT 10 ", want: "Agent 10"},
		{input: "3", want: "Agent 3"},
		{input: "0", wantErr: true},
		{input: "agent", wantErr: true},
		{input: "Bob", wantErr: true},
	}

	for _, tt := range tests {
		got, err := NormalizeAgentID(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NormalizeAgentID(%q) expected error, got %q", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeAgentID(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeAgentID(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseAssignment(t *testing.T) {
	id, value, err := ParseAssignment("2=Argue = carefully.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "Agent 2" || value != "Argue = carefully." {
		t.Errorf("got (%q, %q)", id, value)
	}

	for _, bad := range []string{"", "Agent 1", "Agent 1=  ", "x=Claude"} {
		if _, _, err := ParseAssignment(bad); err == nil {
			t.Errorf("ParseAssignment(%q) expected error", bad)
		}
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := ParseAssignments([]string{"1=GPT", "agent 3=Claude", "Agent 1=Gemini"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got["Agent 1"] != "Gemini" || got["Agent 3"] != "Claude" {
		t.Errorf("unexpected assignments: %v", got)
	}

	if _, err := ParseAssignments([]string{"1=GPT", "nope"}); err == nil {
		t.Error("expected error for malformed entry")
	}
}

func TestAgentIDs(t *testing.T) {
	ids := AgentIDs(3)
	if len(ids) != 3 || ids[0] != "Agent 1" || ids[2] != "Agent 3" {
		t.Errorf("unexpected ids: %v", ids)
	}
	if NewSessionID() == NewSessionID() {
		t.Error("session ids should be unique")
	}
}

func TestMemorySentinels(t *testing.T) {
	inner := errors.New("timeout")
	wrapped := &AgentInvocationError{AgentID: "Agent 2", Backend: "GPT", Err: inner}

	if got := ErrorMemory("Agent 2", wrapped); got != "Error for Agent 2: timeout" {
		t.Errorf("ErrorMemory = %q", got)
	}
	if got := ErrorMemory("Agent 1", fmt.Errorf("boom")); got != "Error for Agent 1: boom" {
		t.Errorf("ErrorMemory = %q", got)
	}
	if got := EmptyResponseMemory("Agent 3"); got != "Agent 3 returned an empty response." {
		t.Errorf("EmptyResponseMemory = %q", got)
	}
	if !errors.Is(wrapped, inner) {
		t.Error("AgentInvocationError should unwrap")
	}
}

func TestSessionHelpers(t *testing.T) {
	s := &Session{
		Agents: []AgentState{
			{Agent: Agent{ID: "Agent 1"}, Memory: "a"},
			{Agent: Agent{ID: "Agent 2"}, Memory: "b"},
		},
	}
	if s.LastRound() != nil || s.Conclusion() != "" {
		t.Error("expected empty session helpers")
	}

	s.Rounds = []RoundResult{{Round: 1, Outcomes: []Outcome{
		{AgentID: "Agent 1", Kind: OutcomeContent, Content: "a"},
		{AgentID: "Agent 2", Kind: OutcomeFailed, Error: "x"},
	}}}
	if r := s.LastRound(); r == nil || r.Failures() != 1 {
		t.Errorf("unexpected last round: %+v", r)
	}
	if o, ok := s.Rounds[0].Get("Agent 2"); !ok || o.OK() {
		t.Errorf("unexpected outcome: %+v", o)
	}

	finals := s.FinalMemories()
	if len(finals) != 2 || finals[1].AgentID != "Agent 2" || finals[1].Content != "b" {
		t.Errorf("unexpected final memories: %+v", finals)
	}
}
