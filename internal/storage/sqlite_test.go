package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "adapta-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := NewSQLiteStorage(filepath.Join(tmpDir, "nested", "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Initialize(); err != nil {
		t.Fatalf("failed to initialize: %v", err)
	}
	return store
}

func TestAgentConfiguration(t *testing.T) {
	store := newTestStorage(t)

	t.Run("EmptyLoads", func(t *testing.T) {
		instructions, err := store.LoadCustomInstructions()
		if err != nil {
			t.Fatalf("failed to load instructions: %v", err)
		}
		if instructions == nil || len(instructions) != 0 {
			t.Errorf("expected empty non-nil map, got %v", instructions)
		}

		bindings, err := store.LoadModelBindings()
		if err != nil {
			t.Fatalf("failed to load bindings: %v", err)
		}
		if bindings == nil || len(bindings) != 0 {
			t.Errorf("expected empty non-nil map, got %v", bindings)
		}
	})

	t.Run("SaveReplacesWholeMapping", func(t *testing.T) {
		err := store.SaveCustomInstructions(map[string]string{
			"Agent 1": "Argue for.",
			"Agent 2": "Argue against.",
		})
		if err != nil {
			t.Fatalf("failed to save instructions: %v", err)
		}

		err = store.SaveCustomInstructions(map[string]string{
			"Agent 2": "  Stay neutral.  ",
			"Agent 3": "   ",
		})
		if err != nil {
			t.Fatalf("failed to save instructions: %v", err)
		}

		got, err := store.LoadCustomInstructions()
		if err != nil {
			t.Fatalf("failed to load instructions: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 instruction, got %d: %v", len(got), got)
		}
		if got["Agent 2"] != "Stay neutral." {
			t.Errorf("Agent 2 mismatch: got %q", got["Agent 2"])
		}
	})

	t.Run("Bindings", func(t *testing.T) {
		if err := store.SaveModelBindings(map[string]string{"Agent 1": "Claude", "Agent 4": "GPT"}); err != nil {
			t.Fatalf("failed to save bindings: %v", err)
		}

		got, err := store.LoadModelBindings()
		if err != nil {
			t.Fatalf("failed to load bindings: %v", err)
		}
		if got["Agent 1"] != "Claude" || got["Agent 4"] != "GPT" {
			t.Errorf("unexpected bindings: %v", got)
		}

		if err := store.SaveModelBindings(map[string]string{}); err != nil {
			t.Fatalf("failed to clear bindings: %v", err)
		}
		got, _ = store.LoadModelBindings()
		if len(got) != 0 {
			t.Errorf("expected bindings to be cleared, got %v", got)
		}
	})
}

func testSession(id string, created time.Time) *core.Session {
	completed := created.Add(time.Minute)
	return &core.Session{
		ID:             id,
		Topic:          "Test Topic",
		NumAgents:      2,
		NumRounds:      1,
		CurrentRound:   1,
		Status:         core.StatusConcluded,
		Manager:        "Gemini",
		FinalRoundMode: "fixed",
		Agents: []core.AgentState{
			{
				Agent:  core.Agent{ID: "Agent 1", Backend: "GPT"},
				Memory: "first",
				History: []core.Message{
					{Role: core.RoleUser, Content: "prompt"},
					{Role: core.RoleAssistant, Content: "first"},
				},
			},
			{
				Agent:  core.Agent{ID: "Agent 2", Backend: "Gemini"},
				Memory: "Error for Agent 2: timeout",
				History: []core.Message{
					{Role: core.RoleUser, Content: "prompt"},
				},
			},
		},
		Rounds: []core.RoundResult{{
			Round: 1,
			Outcomes: []core.Outcome{
				{AgentID: "Agent 1", Backend: "GPT", Kind: core.OutcomeContent, Content: "first"},
				{AgentID: "Agent 2", Backend: "Gemini", Kind: core.OutcomeFailed, Error: "timeout"},
			},
		}},
		Synthesis:   &core.Synthesis{Backend: "Gemini", Content: "done", CreatedAt: completed},
		CreatedAt:   created,
		UpdatedAt:   completed,
		CompletedAt: &completed,
	}
}

func TestDebateArchive(t *testing.T) {
	store := newTestStorage(t)
	now := time.Now()

	t.Run("SaveAndGet", func(t *testing.T) {
		session := testSession("debate-1", now)
		if err := store.SaveDebate(session); err != nil {
			t.Fatalf("failed to save debate: %v", err)
		}

		got, err := store.GetDebate("debate-1")
		if err != nil {
			t.Fatalf("failed to get debate: %v", err)
		}
		if got == nil {
			t.Fatal("debate not found")
		}
		if got.Topic != session.Topic {
			t.Errorf("Topic mismatch: got %s, want %s", got.Topic, session.Topic)
		}
		if len(got.Agents) != 2 || len(got.Agents[0].History) != 2 {
			t.Errorf("agents not restored: %+v", got.Agents)
		}
		if got.Agents[1].Memory != "Error for Agent 2: timeout" {
			t.Errorf("memory mismatch: %q", got.Agents[1].Memory)
		}
		if len(got.Rounds) != 1 || got.Rounds[0].Outcomes[1].Kind != core.OutcomeFailed {
			t.Errorf("rounds not restored: %+v", got.Rounds)
		}
		if got.Conclusion() != "done" {
			t.Errorf("conclusion mismatch: %q", got.Conclusion())
		}
		if got.CompletedAt == nil {
			t.Error("expected completed_at to be set")
		}
	})

	t.Run("SaveIsIdempotent", func(t *testing.T) {
		session := testSession("debate-1", now)
		session.Synthesis.Content = "revised"
		if err := store.SaveDebate(session); err != nil {
			t.Fatalf("failed to re-save debate: %v", err)
		}
		got, _ := store.GetDebate("debate-1")
		if got.Conclusion() != "revised" {
			t.Errorf("expected updated conclusion, got %q", got.Conclusion())
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := store.GetDebate("nope")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		if err := store.SaveDebate(testSession("debate-2", now.Add(time.Hour))); err != nil {
			t.Fatalf("failed to save debate: %v", err)
		}

		summaries, err := store.ListDebates(10, 0)
		if err != nil {
			t.Fatalf("failed to list debates: %v", err)
		}
		if len(summaries) != 2 {
			t.Fatalf("expected 2 debates, got %d", len(summaries))
		}
		if summaries[0].ID != "debate-2" {
			t.Errorf("expected newest first, got %s", summaries[0].ID)
		}
		if summaries[1].Manager != "Gemini" || summaries[1].NumAgents != 2 {
			t.Errorf("summary mismatch: %+v", summaries[1])
		}

		page, _ := store.ListDebates(1, 1)
		if len(page) != 1 || page[0].ID != "debate-1" {
			t.Errorf("pagination mismatch: %+v", page)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := store.DeleteDebate("debate-1"); err != nil {
			t.Fatalf("failed to delete debate: %v", err)
		}
		got, _ := store.GetDebate("debate-1")
		if got != nil {
			t.Error("expected debate to be deleted")
		}
	})

	t.Run("RejectsMissingID", func(t *testing.T) {
		if err := store.SaveDebate(&core.Session{}); err == nil {
			t.Error("expected error for session without id")
		}
	})
}
