package provider

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

// MockGenerator produces simulated responses for demos and offline runs.
type MockGenerator struct {
	name  string
	delay time.Duration
	calls atomic.Int64
}

// NewMockGenerator creates a mock backend that answers after delay.
func NewMockGenerator(name string, delay time.Duration) *MockGenerator {
	return &MockGenerator{name: name, delay: delay}
}

// Name returns the backend name.
func (g *MockGenerator) Name() string { return g.name }

// Calls returns how many times Generate has been called.
func (g *MockGenerator) Calls() int64 { return g.calls.Load() }

// Generate returns a simulated reply to the last message.
func (g *MockGenerator) Generate(ctx context.Context, history []core.Message, opts Options) (string, error) {
	if len(history) == 0 {
		return "", ErrEmptyHistory
	}
	n := g.calls.Add(1)

	if g.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(g.delay):
		}
	}

	last := history[len(history)-1].Content
	return fmt.Sprintf("%s response #%d to: %s... [Simulated content]", g.name, n, truncate(last, 50)), nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max])
	}
	return s
}
