// Package invoker runs one backend call per agent concurrently and joins them.
package invoker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/thiagofdso/adapta-chat/internal/core"
	"github.com/thiagofdso/adapta-chat/internal/provider"
	"github.com/thiagofdso/adapta-chat/internal/tracer"
)

// Task is one agent's call for the current round.
type Task struct {
	AgentID string
	Backend string
	Options provider.Options
	// History is the agent's conversation including this round's prompt.
	History []core.Message
}

// Resolver maps a backend name to its Generator.
type Resolver interface {
	Get(name string) (provider.Generator, error)
}

// Invoker fans out a round's tasks and waits for all of them.
type Invoker struct {
	resolver Resolver

	// OnResult, if set, is called once per task in completion order from the
	// collecting goroutine.
	OnResult func(core.Outcome)
}

// New creates an invoker that resolves backends through r.
func New(r Resolver) *Invoker {
	return &Invoker{resolver: r}
}

type taskResult struct {
	index   int
	outcome core.Outcome
}

// RunRound launches every task before waiting on any, then returns exactly
// one outcome per task in task order. A failing or panicking task only
// affects its own slot.
func (inv *Invoker) RunRound(ctx context.Context, round int, tasks []Task) core.RoundResult {
	ctx, span := tracer.StartSpan(ctx, "debate.round.fanout",
		attribute.Int("round", round),
		attribute.Int("agents", len(tasks)),
	)
	defer span.End()

	resultChan := make(chan taskResult, len(tasks))

	for i, task := range tasks {
		go func(index int, task Task) {
			resultChan <- taskResult{index: index, outcome: inv.invoke(ctx, task)}
		}(i, task)
	}

	outcomes := make([]core.Outcome, len(tasks))
	for i := 0; i < len(tasks); i++ {
		result := <-resultChan
		outcomes[result.index] = result.outcome

		if inv.OnResult != nil {
			inv.OnResult(result.outcome)
		}
	}

	return core.RoundResult{Round: round, Outcomes: outcomes}
}

func (inv *Invoker) invoke(ctx context.Context, task Task) (outcome core.Outcome) {
	start := time.Now()
	outcome = core.Outcome{AgentID: task.AgentID, Backend: task.Backend}

	ctx, span := tracer.StartSpan(ctx, "debate.agent.invoke",
		attribute.String("agent", task.AgentID),
		attribute.String("backend", task.Backend),
	)

	defer func() {
		if r := recover(); r != nil {
			outcome = failed(outcome, task, fmt.Errorf("panic: %v", r))
		}
		outcome.Duration = time.Since(start)
		tracer.End(span, outcome.Err)
	}()

	gen, err := inv.resolver.Get(task.Backend)
	if err != nil {
		return failed(outcome, task, err)
	}

	content, err := gen.Generate(ctx, task.History, task.Options)
	if err != nil {
		return failed(outcome, task, err)
	}

	if strings.TrimSpace(content) == "" {
		warning := &core.EmptyResponseWarning{AgentID: task.AgentID}
		slog.Warn("Agent returned an empty response", "agent", task.AgentID, "backend", task.Backend)
		outcome.Kind = core.OutcomeEmpty
		outcome.Error = warning.Error()
		return outcome
	}

	outcome.Kind = core.OutcomeContent
	outcome.Content = content
	return outcome
}

func failed(outcome core.Outcome, task Task, err error) core.Outcome {
	invErr := &core.AgentInvocationError{AgentID: task.AgentID, Backend: task.Backend, Err: err}
	slog.Error("Agent invocation failed", "agent", task.AgentID, "backend", task.Backend, "error", err)

	outcome.Kind = core.OutcomeFailed
	outcome.Content = ""
	outcome.Err = invErr
	outcome.Error = err.Error()
	return outcome
}
