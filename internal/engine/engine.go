// Package engine drives debate sessions through their rounds.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/thiagofdso/adapta-chat/internal/core"
	"github.com/thiagofdso/adapta-chat/internal/council"
	"github.com/thiagofdso/adapta-chat/internal/invoker"
	"github.com/thiagofdso/adapta-chat/internal/memory"
	"github.com/thiagofdso/adapta-chat/internal/metrics"
	"github.com/thiagofdso/adapta-chat/internal/persona"
	"github.com/thiagofdso/adapta-chat/internal/prompt"
	"github.com/thiagofdso/adapta-chat/internal/provider"
	"github.com/thiagofdso/adapta-chat/internal/tracer"
)

// Session bounds.
const (
	MinAgents = 2
	MaxAgents = 10
	MinRounds = 1
	MaxRounds = 10
)

// DefaultManager is the manager backend used when none is configured.
const DefaultManager = "Gemini"

// ConfigStore supplies saved per-agent settings for agents the caller did not configure.
type ConfigStore interface {
	LoadCustomInstructions() (map[string]string, error)
	LoadModelBindings() (map[string]string, error)
}

// Archive stores concluded sessions.
type Archive interface {
	SaveDebate(session *core.Session) error
}

// Persister writes the transcript of a concluded session and returns its location.
type Persister interface {
	Persist(session *core.Session) (string, error)
}

// Callbacks receive progress events. All fields are optional.
type Callbacks struct {
	OnRoundStarted      func(round, numRounds int)
	OnAgentResult       func(round int, outcome core.Outcome)
	OnRoundComplete     func(result core.RoundResult)
	OnSynthesisComplete func(synthesis core.Synthesis)
}

// Options configures an Engine.
type Options struct {
	Manager    string
	FinalRound prompt.FinalRoundMode
	Store      ConfigStore
	Archive    Archive
	Persister  Persister
	Metrics    *metrics.Recorder
	Callbacks  Callbacks
}

type session struct {
	id           string
	topic        string
	numAgents    int
	numRounds    int
	currentRound int
	status       core.SessionStatus
	manager      string
	agents       []core.Agent
	memory       *memory.Store
	rounds       []core.RoundResult
	synthesis    *core.Synthesis
	createdAt    time.Time
	updatedAt    time.Time
	completedAt  *time.Time
}

// Engine owns at most one debate session and moves it through
// Setup -> RoundInProgress -> RoundComplete -> ... -> Synthesizing -> Concluded.
// Only one round or synthesis call runs at a time.
type Engine struct {
	registry    *provider.Registry
	builder     prompt.Builder
	synthesizer *council.Synthesizer
	opts        Options

	mu         sync.Mutex
	session    *session
	busy       bool
	generation uint64
	cancel     context.CancelFunc
}

// New creates a debate engine over the given backends.
func New(registry *provider.Registry, opts Options) *Engine {
	if opts.Manager == "" {
		opts.Manager = DefaultManager
	}
	if opts.FinalRound == "" {
		opts.FinalRound = prompt.FinalRoundFixed
	}
	return &Engine{
		registry:    registry,
		builder:     prompt.NewBuilder(opts.FinalRound),
		synthesizer: council.New(registry, opts.Metrics),
		opts:        opts,
	}
}

// cursor hands out backends round-robin.
type cursor struct {
	backends []string
	next     int
}

func (c *cursor) Next() string {
	b := c.backends[c.next]
	c.next = (c.next + 1) % len(c.backends)
	return b
}

// Start validates cfg and creates a new session, replacing any previous one.
// Invalid input returns a *core.ConfigurationError and leaves the engine unchanged.
func (e *Engine) Start(ctx context.Context, cfg core.StartConfig) (*core.Session, error) {
	slog.Debug("Starting debate", "topic", cfg.Topic, "agents", cfg.NumAgents, "rounds", cfg.NumRounds)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.busy {
		return nil, core.ErrRoundInFlight
	}

	s, err := e.newSession(cfg)
	if err != nil {
		return nil, err
	}

	e.generation++
	e.session = s

	slog.Info("Debate started",
		"id", s.id,
		"agents", s.numAgents,
		"rounds", s.numRounds,
		"manager", s.manager,
	)
	return e.snapshotLocked(), nil
}

func (e *Engine) newSession(cfg core.StartConfig) (*session, error) {
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		return nil, &core.ConfigurationError{Field: "topic", Message: "topic cannot be empty"}
	}
	if cfg.NumAgents < MinAgents || cfg.NumAgents > MaxAgents {
		return nil, &core.ConfigurationError{
			Field:   "num_agents",
			Message: fmt.Sprintf("must be between %d and %d, got %d", MinAgents, MaxAgents, cfg.NumAgents),
		}
	}
	if cfg.NumRounds < MinRounds || cfg.NumRounds > MaxRounds {
		return nil, &core.ConfigurationError{
			Field:   "num_rounds",
			Message: fmt.Sprintf("must be between %d and %d, got %d", MinRounds, MaxRounds, cfg.NumRounds),
		}
	}

	backends := e.registry.Names()
	if len(backends) == 0 {
		return nil, &core.ConfigurationError{Field: "backends", Message: "no backends are available"}
	}

	manager, err := e.resolveManager(cfg.Manager, backends)
	if err != nil {
		return nil, err
	}

	bindings, err := e.resolveBindings(cfg.Bindings)
	if err != nil {
		return nil, err
	}
	instructions, err := e.resolveInstructions(cfg.Instructions)
	if err != nil {
		return nil, err
	}

	rr := &cursor{backends: backends}
	ids := core.AgentIDs(cfg.NumAgents)
	agents := make([]core.Agent, len(ids))
	for i, id := range ids {
		backend, ok := bindings[id]
		if !ok {
			backend = rr.Next()
		}
		agents[i] = core.Agent{
			ID:                 id,
			Backend:            backend,
			CustomInstructions: instructions[id],
		}
	}

	now := time.Now()
	return &session{
		id:           core.NewSessionID(),
		topic:        topic,
		numAgents:    cfg.NumAgents,
		numRounds:    cfg.NumRounds,
		currentRound: 1,
		status:       core.StatusRoundInProgress,
		manager:      manager,
		agents:       agents,
		memory:       memory.New(ids),
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

// resolveManager prefers an explicit manager, then the configured default,
// then the first registered backend.
func (e *Engine) resolveManager(explicit string, backends []string) (string, error) {
	if explicit != "" {
		if !e.registry.Has(explicit) {
			return "", &core.ConfigurationError{Field: "manager", Message: fmt.Sprintf("unknown backend %q", explicit)}
		}
		return explicit, nil
	}
	if e.registry.Has(e.opts.Manager) {
		return e.opts.Manager, nil
	}
	slog.Warn("Configured manager is not available, using first backend",
		"manager", e.opts.Manager,
		"fallback", backends[0],
	)
	return backends[0], nil
}

// resolveBindings validates explicit bindings strictly. Saved bindings that
// name a backend which is no longer available are dropped with a warning.
func (e *Engine) resolveBindings(explicit map[string]string) (map[string]string, error) {
	if explicit != nil {
		bindings := make(map[string]string, len(explicit))
		for agentID, backend := range explicit {
			if backend == "" {
				continue
			}
			if !e.registry.Has(backend) {
				return nil, &core.ConfigurationError{
					Field:   "bindings",
					Message: fmt.Sprintf("%s is bound to unknown backend %q", agentID, backend),
				}
			}
			bindings[agentID] = backend
		}
		return bindings, nil
	}

	bindings := make(map[string]string)
	if e.opts.Store == nil {
		return bindings, nil
	}
	saved, err := e.opts.Store.LoadModelBindings()
	if err != nil {
		slog.Warn("Failed to load saved model bindings", "error", err)
		return bindings, nil
	}
	for agentID, backend := range saved {
		if !e.registry.Has(backend) {
			slog.Warn("Ignoring saved binding to unavailable backend", "agent", agentID, "backend", backend)
			continue
		}
		bindings[agentID] = backend
	}
	return bindings, nil
}

// resolveInstructions expands persona references. Explicit instructions with
// an unknown persona are rejected; saved ones are kept as literal text.
func (e *Engine) resolveInstructions(explicit map[string]string) (map[string]string, error) {
	source := explicit
	if source == nil && e.opts.Store != nil {
		saved, err := e.opts.Store.LoadCustomInstructions()
		if err != nil {
			slog.Warn("Failed to load saved custom instructions", "error", err)
		}
		source = saved
	}

	instructions := make(map[string]string, len(source))
	for agentID, text := range source {
		expanded, err := persona.Expand(text)
		if err != nil {
			if explicit != nil {
				return nil, &core.ConfigurationError{Field: "instructions", Message: fmt.Sprintf("%s: %v", agentID, err)}
			}
			slog.Warn("Saved instructions reference an unknown persona", "agent", agentID, "error", err)
			expanded = strings.TrimSpace(text)
		}
		instructions[agentID] = expanded
	}
	return instructions, nil
}

// checkLocked returns the current session if no call is in flight and the
// session is in the wanted status.
func (e *Engine) checkLocked(want ...core.SessionStatus) (*session, error) {
	if e.session == nil {
		return nil, core.ErrNoSession
	}
	if e.busy {
		return nil, core.ErrRoundInFlight
	}
	for _, w := range want {
		if e.session.status == w {
			return e.session, nil
		}
	}
	return nil, fmt.Errorf("%w: session is %s", core.ErrInvalidTransition, e.session.status)
}

// begin marks the engine busy and returns a cancellable context tied to the
// current generation.
func (e *Engine) begin(ctx context.Context) (context.Context, uint64) {
	runCtx, cancel := context.WithCancel(ctx)
	e.busy = true
	e.cancel = cancel
	return runCtx, e.generation
}

// finishLocked clears the busy flag. It returns false when the session was
// reset while the call was running, in which case its results must be dropped.
func (e *Engine) finishLocked(gen uint64) bool {
	if e.generation != gen {
		return false
	}
	e.busy = false
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	return true
}

// RunCurrentRound prompts every agent for the current round and waits for all
// of them. Prompts are built from the memories as they were before the round.
func (e *Engine) RunCurrentRound(ctx context.Context) (*core.Session, error) {
	e.mu.Lock()
	s, err := e.checkLocked(core.StatusRoundInProgress)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}

	round := s.currentRound
	memories := s.memory.Snapshot()
	prompts := make([]string, len(s.agents))
	for i, agent := range s.agents {
		p, err := e.builder.Build(prompt.Request{
			Round:              round,
			NumRounds:          s.numRounds,
			AgentID:            agent.ID,
			Problem:            s.topic,
			CustomInstructions: agent.CustomInstructions,
			Memories:           memories,
		})
		if err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("failed to build prompt for %s: %w", agent.ID, err)
		}
		prompts[i] = p
	}

	tasks := make([]invoker.Task, len(s.agents))
	for i, agent := range s.agents {
		if err := s.memory.RecordPrompt(agent.ID, prompts[i]); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		tasks[i] = invoker.Task{
			AgentID: agent.ID,
			Backend: agent.Backend,
			Options: provider.Options{Model: agent.Model},
			History: s.memory.History(agent.ID),
		}
	}

	runCtx, gen := e.begin(ctx)
	cb := e.opts.Callbacks
	numRounds := s.numRounds
	e.mu.Unlock()

	slog.Info("Running round", "round", round, "of", numRounds, "agents", len(tasks))
	if cb.OnRoundStarted != nil {
		cb.OnRoundStarted(round, numRounds)
	}

	runCtx, span := tracer.StartSpan(runCtx, "debate.round",
		attribute.Int("round", round),
		attribute.Int("agents", len(tasks)),
	)
	inv := invoker.New(e.registry)
	if cb.OnAgentResult != nil {
		inv.OnResult = func(o core.Outcome) { cb.OnAgentResult(round, o) }
	}
	result := inv.RunRound(runCtx, round, tasks)
	span.SetAttributes(attribute.Int("failures", result.Failures()))
	tracer.End(span, nil)

	e.mu.Lock()
	if !e.finishLocked(gen) {
		e.mu.Unlock()
		slog.Info("Discarding round results from a reset session", "round", round)
		return nil, core.ErrSessionReset
	}

	kinds := make([]string, len(result.Outcomes))
	for i, o := range result.Outcomes {
		if err := s.memory.RecordResult(o); err != nil {
			slog.Error("Failed to record outcome", "agent", o.AgentID, "error", err)
		}
		kinds[i] = string(o.Kind)
	}
	s.rounds = append(s.rounds, result)
	s.status = core.StatusRoundComplete
	s.updatedAt = time.Now()
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.opts.Metrics.ObserveRound(kinds)
	slog.Info("Round complete", "round", round, "failures", result.Failures())
	if cb.OnRoundComplete != nil {
		cb.OnRoundComplete(result)
	}
	return snap, nil
}

// Advance moves to the next round, or to Synthesizing after the last one.
func (e *Engine) Advance() (*core.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.checkLocked(core.StatusRoundComplete)
	if err != nil {
		return nil, err
	}

	if s.currentRound < s.numRounds {
		s.currentRound++
		s.status = core.StatusRoundInProgress
	} else {
		s.status = core.StatusSynthesizing
	}
	s.updatedAt = time.Now()

	slog.Debug("Session advanced", "round", s.currentRound, "status", s.status)
	return e.snapshotLocked(), nil
}

// Synthesize asks the manager for the final conclusion and concludes the
// session. A failed manager call yields the fallback conclusion, not an error.
func (e *Engine) Synthesize(ctx context.Context) (*core.Session, error) {
	e.mu.Lock()
	s, err := e.checkLocked(core.StatusSynthesizing)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	topic, manager := s.topic, s.manager
	finals := s.memory.Snapshot()
	runCtx, gen := e.begin(ctx)
	cb := e.opts.Callbacks
	e.mu.Unlock()

	slog.Info("Synthesizing conclusion", "manager", manager)
	synthesis := e.synthesizer.Synthesize(runCtx, topic, finals, manager)

	e.mu.Lock()
	if !e.finishLocked(gen) {
		e.mu.Unlock()
		return nil, core.ErrSessionReset
	}
	now := time.Now()
	s.synthesis = &synthesis
	s.status = core.StatusConcluded
	s.updatedAt = now
	s.completedAt = &now
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if cb.OnSynthesisComplete != nil {
		cb.OnSynthesisComplete(synthesis)
	}
	return snap, nil
}

// SynthesizeAndPersist concludes the session if needed, archives it and
// writes the transcript. Persistence failures are returned as
// *core.PersistenceError together with the unchanged concluded snapshot, so
// calling it again on a concluded session retries only the writes.
func (e *Engine) SynthesizeAndPersist(ctx context.Context) (*core.Session, string, error) {
	e.mu.Lock()
	s, err := e.checkLocked(core.StatusSynthesizing, core.StatusConcluded)
	if err != nil {
		e.mu.Unlock()
		return nil, "", err
	}

	var snap *core.Session
	if s.status == core.StatusConcluded {
		// Writes-only retry. The busy flag keeps a concurrent retry or Start out.
		snap = e.snapshotLocked()
		_, gen := e.begin(ctx)
		e.mu.Unlock()
		defer func() {
			e.mu.Lock()
			e.finishLocked(gen)
			e.mu.Unlock()
		}()
	} else {
		e.mu.Unlock()
		snap, err = e.Synthesize(ctx)
		if err != nil {
			return nil, "", err
		}
	}

	var errs []error
	if e.opts.Archive != nil {
		if err := e.opts.Archive.SaveDebate(snap); err != nil {
			slog.Error("Failed to archive debate", "id", snap.ID, "error", err)
			errs = append(errs, &core.PersistenceError{Path: "archive", Err: err})
		}
	}

	var path string
	if e.opts.Persister != nil {
		path, err = e.opts.Persister.Persist(snap)
		if err != nil {
			slog.Error("Failed to write transcript", "id", snap.ID, "error", err)
			var perr *core.PersistenceError
			if !errors.As(err, &perr) {
				err = &core.PersistenceError{Path: path, Err: err}
			}
			errs = append(errs, err)
		} else {
			slog.Info("Transcript written", "path", path)
		}
	}

	return snap, path, errors.Join(errs...)
}

// Reset discards the session. A round still running is cancelled and its
// results are dropped when it returns.
func (e *Engine) Reset() *core.Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.session = nil
	e.busy = false
	e.generation++

	slog.Debug("Session reset")
	return &core.Session{Status: core.StatusSetup}
}

// Snapshot returns a copy of the current session. Without a session it
// returns an empty snapshot in the Setup status.
func (e *Engine) Snapshot() *core.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// DefaultManager returns the manager backend used when Start does not name one.
func (e *Engine) DefaultManager() string {
	return e.opts.Manager
}

// Busy reports whether a round or synthesis is in flight.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

func (e *Engine) snapshotLocked() *core.Session {
	s := e.session
	if s == nil {
		return &core.Session{Status: core.StatusSetup}
	}

	agents := make([]core.AgentState, len(s.agents))
	for i, a := range s.agents {
		agents[i] = core.AgentState{
			Agent:   a,
			Memory:  s.memory.Memory(a.ID),
			History: s.memory.History(a.ID),
		}
	}

	rounds := make([]core.RoundResult, len(s.rounds))
	for i, r := range s.rounds {
		outcomes := make([]core.Outcome, len(r.Outcomes))
		copy(outcomes, r.Outcomes)
		rounds[i] = core.RoundResult{Round: r.Round, Outcomes: outcomes}
	}

	snap := &core.Session{
		ID:             s.id,
		Topic:          s.topic,
		NumAgents:      s.numAgents,
		NumRounds:      s.numRounds,
		CurrentRound:   s.currentRound,
		Status:         s.status,
		Manager:        s.manager,
		FinalRoundMode: string(e.builder.FinalRound),
		Agents:         agents,
		Rounds:         rounds,
		CreatedAt:      s.createdAt,
		UpdatedAt:      s.updatedAt,
	}
	if s.synthesis != nil {
		synthesis := *s.synthesis
		snap.Synthesis = &synthesis
	}
	if s.completedAt != nil {
		completed := *s.completedAt
		snap.CompletedAt = &completed
	}
	return snap
}

// Run drives a whole session: start, every round, synthesis and persistence.
// Persistence errors are returned with the concluded snapshot.
func (e *Engine) Run(ctx context.Context, cfg core.StartConfig) (*core.Session, string, error) {
	snap, err := e.Start(ctx, cfg)
	if err != nil {
		return nil, "", err
	}

	for snap.Status != core.StatusSynthesizing {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		if _, err := e.RunCurrentRound(ctx); err != nil {
			return nil, "", err
		}
		if snap, err = e.Advance(); err != nil {
			return nil, "", err
		}
	}

	return e.SynthesizeAndPersist(ctx)
}
