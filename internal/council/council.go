// Package council runs the manager agent's final synthesis of a debate.
package council

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/thiagofdso/adapta-chat/internal/core"
	"github.com/thiagofdso/adapta-chat/internal/metrics"
	"github.com/thiagofdso/adapta-chat/internal/prompt"
	"github.com/thiagofdso/adapta-chat/internal/provider"
	"github.com/thiagofdso/adapta-chat/internal/tracer"
)

// FallbackConclusion replaces the manager's answer when it fails or is empty.
const FallbackConclusion = "Synthesis unavailable: the manager agent did not produce a final conclusion."

// Resolver maps a backend name to its Generator.
type Resolver interface {
	Get(name string) (provider.Generator, error)
}

// Synthesizer asks the manager backend for the final conclusion.
type Synthesizer struct {
	registry Resolver
	metrics  *metrics.Recorder
}

// New creates a synthesizer. rec may be nil.
func New(registry Resolver, rec *metrics.Recorder) *Synthesizer {
	return &Synthesizer{registry: registry, metrics: rec}
}

// Synthesize issues one single-turn call to the manager. It never fails:
// errors and blank answers produce FallbackConclusion with the cause recorded.
func (s *Synthesizer) Synthesize(ctx context.Context, problem string, finals []core.Memory, manager string) core.Synthesis {
	ctx, span := tracer.StartSpan(ctx, "debate.synthesize",
		attribute.String("manager", manager),
		attribute.Int("agents", len(finals)),
	)

	synthesis, err := s.generate(ctx, problem, finals, manager)
	tracer.End(span, err)

	if err != nil {
		slog.Warn("Manager synthesis failed, using fallback", "manager", manager, "error", err)
		synthesis = core.Synthesis{
			Backend:  manager,
			Content:  FallbackConclusion,
			Fallback: true,
			Error:    err.Error(),
		}
	}
	synthesis.CreatedAt = time.Now()
	s.metrics.ObserveSynthesis(synthesis.Fallback)
	return synthesis
}

func (s *Synthesizer) generate(ctx context.Context, problem string, finals []core.Memory, manager string) (synthesis core.Synthesis, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &core.SynthesisError{Backend: manager, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	gen, err := s.registry.Get(manager)
	if err != nil {
		return core.Synthesis{}, &core.SynthesisError{Backend: manager, Err: err}
	}

	history := []core.Message{{Role: core.RoleUser, Content: prompt.BuildManager(problem, finals)}}
	content, err := gen.Generate(ctx, history, provider.Options{})
	if err != nil {
		return core.Synthesis{}, &core.SynthesisError{Backend: manager, Err: err}
	}

	content = provider.StripThinking(content)
	if strings.TrimSpace(content) == "" {
		return core.Synthesis{}, &core.SynthesisError{Backend: manager}
	}

	return core.Synthesis{Backend: manager, Content: content}, nil
}
