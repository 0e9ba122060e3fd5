// Package prompt builds the per-round prompts sent to debate agents.
package prompt

import (
	"fmt"
	"strings"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

// FinalRoundMode controls what the last round's prompt contains.
type FinalRoundMode string

const (
	// FinalRoundFixed sends the same topic-independent instruction to every agent.
	FinalRoundFixed FinalRoundMode = "fixed"
	// FinalRoundContextual repeats the problem and the peers' latest memories.
	FinalRoundContextual FinalRoundMode = "contextual"
)

// FinalRoundText is the fixed instruction for the last round.
const FinalRoundText = "This is the final round. Please provide your absolute final and conclusive solution based on all previous discussions."

// ParseFinalRoundMode validates a mode name. Empty means FinalRoundFixed.
func ParseFinalRoundMode(s string) (FinalRoundMode, error) {
	switch FinalRoundMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FinalRoundFixed:
		return FinalRoundFixed, nil
	case FinalRoundContextual:
		return FinalRoundContextual, nil
	default:
		return "", fmt.Errorf("unknown final round mode: %s", s)
	}
}

// Request carries everything needed to build one agent's prompt.
type Request struct {
	Round              int
	NumRounds          int
	AgentID            string
	Problem            string
	CustomInstructions string
	// Memories holds every agent's memory from the previous round in roster order.
	// The requesting agent's own entry is skipped.
	Memories []core.Memory
}

// Builder produces prompts. The zero value uses FinalRoundFixed.
type Builder struct {
	FinalRound FinalRoundMode
}

// NewBuilder creates a builder with the given final round mode.
func NewBuilder(mode FinalRoundMode) Builder {
	return Builder{FinalRound: mode}
}

// Build returns the prompt for one agent. It fails only on malformed round numbers.
func (b Builder) Build(req Request) (string, error) {
	if req.NumRounds < 1 {
		return "", fmt.Errorf("invalid number of rounds: %d", req.NumRounds)
	}
	if req.Round < 1 || req.Round > req.NumRounds {
		return "", fmt.Errorf("round %d out of range 1..%d", req.Round, req.NumRounds)
	}

	switch {
	case req.Round == 1:
		return firstRound(req), nil
	case req.Round == req.NumRounds:
		if b.FinalRound == FinalRoundContextual {
			return contextualFinalRound(req), nil
		}
		return FinalRoundText, nil
	default:
		return middleRound(req), nil
	}
}

func firstRound(req Request) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s, an intelligent AI agent.\n", req.AgentID)
	writeInstructions(&sb, req.CustomInstructions)
	sb.WriteString("You are part of a team of agents tasked with solving the following problem:\n\n")
	fmt.Fprintf(&sb, "**Problem:** \"%s\"\n\n", req.Problem)
	sb.WriteString("This is the first round. Please provide your initial, detailed solution or opinion. ")
	sb.WriteString("Structure your thoughts clearly. Do not ask questions to the user.")

	return sb.String()
}

func middleRound(req Request) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s.\n", req.AgentID)
	writeInstructions(&sb, req.CustomInstructions)
	fmt.Fprintf(&sb, "This is round %d of %d in a debate to solve the problem: \"%s\"\n\n", req.Round, req.NumRounds, req.Problem)
	sb.WriteString("Here are the responses from the other agents in the previous round:\n\n")
	writePeers(&sb, "RESPONSE FROM", req.AgentID, req.Memories)
	sb.WriteString("Please review and reflect on these other perspectives. ")
	sb.WriteString("Now, provide an updated and refined version of your own solution. ")
	sb.WriteString("Incorporate the best ideas and address any weaknesses pointed out.")

	if req.Round == req.NumRounds-1 {
		sb.WriteString("\n\n**IMPORTANT:** This is the second-to-last round. ")
		sb.WriteString("Please make your response as conclusive as possible to prepare for the final summary.")
	}

	return sb.String()
}

func contextualFinalRound(req Request) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s.\n", req.AgentID)
	writeInstructions(&sb, req.CustomInstructions)
	fmt.Fprintf(&sb, "The debate on the problem \"%s\" has reached its last round.\n\n", req.Problem)
	sb.WriteString("Here are the latest responses from the other agents:\n\n")
	writePeers(&sb, "RESPONSE FROM", req.AgentID, req.Memories)
	sb.WriteString(FinalRoundText)

	return sb.String()
}

// BuildManager returns the single-shot synthesis prompt for the manager agent.
func BuildManager(problem string, finals []core.Memory) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "As the manager of a multi-agent debate, your team has concluded their discussion on the problem: \"%s\"\n\n", problem)
	sb.WriteString("Here are the final, conclusive responses from all agents:\n\n")
	writePeers(&sb, "FINAL RESPONSE FROM", "", finals)
	sb.WriteString("Your task is to synthesize all of these responses into a single, comprehensive, and well-structured final answer for the user. ")
	sb.WriteString("Provide the best possible solution based on the collaborative work of your team.")

	return sb.String()
}

func writeInstructions(sb *strings.Builder, instructions string) {
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		sb.WriteString("\n")
		return
	}
	sb.WriteString("\nAdditional instructions:\n")
	sb.WriteString(instructions)
	sb.WriteString("\n\n")
}

func writePeers(sb *strings.Builder, label, self string, memories []core.Memory) {
	for _, m := range memories {
		if m.AgentID == self {
			continue
		}
		fmt.Fprintf(sb, "# %s %s\n%s\n\n", label, m.AgentID, m.Content)
	}
}
