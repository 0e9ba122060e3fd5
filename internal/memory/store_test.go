package memory

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

func mustRecord(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewStoreStartsEmpty(t *testing.T) {
	s := New([]string{"Agent 1", "Agent 2"})

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot length = %d, want 2", len(snap))
	}
	if snap[0] != (core.Memory{AgentID: "Agent 1"}) || snap[1] != (core.Memory{AgentID: "Agent 2"}) {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if h := s.History("Agent 1"); len(h) != 0 {
		t.Errorf("expected empty history, got %+v", h)
	}
}

func TestRecordSuccessAppendsAssistantMessage(t *testing.T) {
	s := New([]string{"Agent 1"})

	mustRecord(t, s.RecordPrompt("Agent 1", "prompt 1"))
	mustRecord(t, s.RecordResult(core.Outcome{AgentID: "Agent 1", Kind: core.OutcomeContent, Content: "answer"}))

	history := s.History("Agent 1")
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0] != (core.Message{Role: core.RoleUser, Content: "prompt 1"}) {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[1] != (core.Message{Role: core.RoleAssistant, Content: "answer"}) {
		t.Errorf("history[1] = %+v", history[1])
	}
	if got := s.Memory("Agent 1"); got != "answer" {
		t.Errorf("memory = %q, want answer", got)
	}
}

func TestRecordFailureKeepsHistoryOdd(t *testing.T) {
	s := New([]string{"Agent 1"})

	mustRecord(t, s.RecordPrompt("Agent 1", "prompt 1"))
	mustRecord(t, s.RecordResult(core.Outcome{
		AgentID: "Agent 1",
		Kind:    core.OutcomeFailed,
		Err:     errors.New("backend down"),
	}))

	if n := len(s.History("Agent 1")); n != 1 {
		t.Errorf("history length = %d, want 1", n)
	}
	if got := s.Memory("Agent 1"); got != "Error for Agent 1: backend down" {
		t.Errorf("memory = %q", got)
	}
}

func TestRecordFailureUnwrapsInvocationError(t *testing.T) {
	s := New([]string{"Agent 2"})

	err := &core.AgentInvocationError{AgentID: "Agent 2", Backend: "GPT", Err: errors.New("boom")}
	mustRecord(t, s.RecordResult(core.Outcome{AgentID: "Agent 2", Kind: core.OutcomeFailed, Err: err}))

	if got := s.Memory("Agent 2"); got != "Error for Agent 2: boom" {
		t.Errorf("memory = %q", got)
	}
}

func TestRecordEmptyResponse(t *testing.T) {
	s := New([]string{"Agent 1"})

	mustRecord(t, s.RecordPrompt("Agent 1", "prompt"))
	mustRecord(t, s.RecordResult(core.Outcome{AgentID: "Agent 1", Kind: core.OutcomeEmpty}))

	if n := len(s.History("Agent 1")); n != 1 {
		t.Errorf("history length = %d, want 1", n)
	}
	if got := s.Memory("Agent 1"); got != "Agent 1 returned an empty response." {
		t.Errorf("memory = %q", got)
	}
}

func TestUnknownAgent(t *testing.T) {
	s := New([]string{"Agent 1"})

	if err := s.RecordPrompt("Agent 9", "x"); err == nil {
		t.Error("expected error recording a prompt for an unknown agent")
	}
	if err := s.RecordResult(core.Outcome{AgentID: "Agent 9", Kind: core.OutcomeContent}); err == nil {
		t.Error("expected error recording a result for an unknown agent")
	}
	if got := s.Memory("Agent 9"); got != "" {
		t.Errorf("memory = %q, want empty", got)
	}
	if h := s.History("Agent 9"); h != nil {
		t.Errorf("history = %+v, want nil", h)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New([]string{"Agent 1"})
	mustRecord(t, s.RecordResult(core.Outcome{AgentID: "Agent 1", Kind: core.OutcomeContent, Content: "v1"}))

	snap := s.Snapshot()
	mustRecord(t, s.RecordResult(core.Outcome{AgentID: "Agent 1", Kind: core.OutcomeContent, Content: "v2"}))

	if snap[0].Content != "v1" {
		t.Errorf("snapshot changed: %q", snap[0].Content)
	}
	if got := s.Memory("Agent 1"); got != "v2" {
		t.Errorf("memory = %q, want v2", got)
	}

	history := s.History("Agent 1")
	history[0].Content = "mutated"
	if got := s.History("Agent 1")[0].Content; got != "v1" {
		t.Errorf("history was shared: %q", got)
	}
}

func TestConcurrentAgentsUpdateIndependently(t *testing.T) {
	ids := []string{"Agent 1", "Agent 2", "Agent 3", "Agent 4"}
	s := New(ids)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for r := 1; r <= 10; r++ {
				_ = s.RecordPrompt(id, fmt.Sprintf("prompt %d", r))
				_ = s.RecordResult(core.Outcome{AgentID: id, Kind: core.OutcomeContent, Content: fmt.Sprintf("%s round %d", id, r)})
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		if n := len(s.History(id)); n != 20 {
			t.Errorf("%s history length = %d, want 20", id, n)
		}
		if got := s.Memory(id); got != id+" round 10" {
			t.Errorf("%s memory = %q", id, got)
		}
	}
}
