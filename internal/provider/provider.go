// Package provider contains the model backends that debate agents talk to.
package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

// Options tunes a single generate call. Zero values fall back to backend defaults.
type Options struct {
	Model     string
	MaxTokens int
}

// Generator is a model backend. Implementations must be safe for concurrent
// use since several agents can share one backend within a round.
type Generator interface {
	// Name returns the backend's registry name, e.g. "GPT".
	Name() string

	// Generate sends the full conversation and returns the assistant reply.
	Generate(ctx context.Context, history []core.Message, opts Options) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc struct {
	name string
	fn   func(ctx context.Context, history []core.Message, opts Options) (string, error)
}

// NewGeneratorFunc creates a named Generator from a function.
func NewGeneratorFunc(name string, fn func(ctx context.Context, history []core.Message, opts Options) (string, error)) *GeneratorFunc {
	return &GeneratorFunc{name: name, fn: fn}
}

// Name returns the backend name.
func (g *GeneratorFunc) Name() string { return g.name }

// Generate calls the wrapped function.
func (g *GeneratorFunc) Generate(ctx context.Context, history []core.Message, opts Options) (string, error) {
	return g.fn(ctx, history, opts)
}

// Registry holds the configured backends in registration order.
// The order is the round-robin order used for agents without an explicit binding.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
	order      []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		generators: make(map[string]Generator),
	}
}

// Register adds a backend. Re-registering a name replaces it in place.
func (r *Registry) Register(g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.generators[g.Name()]; !exists {
		r.order = append(r.order, g.Name())
	}
	r.generators[g.Name()] = g
}

// Get retrieves a backend by name.
func (r *Registry) Get(name string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.generators[name]
	if !ok {
		return nil, fmt.Errorf("backend not found: %s", name)
	}
	return g, nil
}

// Has reports whether a backend is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.generators[name]
	return ok
}

// Names returns the backend names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// List returns all backends in registration order.
func (r *Registry) List() []Generator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	generators := make([]Generator, 0, len(r.order))
	for _, name := range r.order {
		generators = append(generators, r.generators[name])
	}
	return generators
}

// Len returns the number of registered backends.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
