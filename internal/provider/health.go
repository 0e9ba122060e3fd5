package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

// HealthCheckPrompt is the prompt sent to backends for health checks.
const HealthCheckPrompt = "1+1? One digit answer only"

// HealthStatus is the result of a backend health check.
type HealthStatus struct {
	Backend      string        `json:"backend"`
	Available    bool          `json:"available"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// HealthCheck asks the backend a trivial question and validates the answer.
func HealthCheck(ctx context.Context, g Generator, timeout time.Duration) HealthStatus {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	content, err := g.Generate(ctx, []core.Message{{Role: core.RoleUser, Content: HealthCheckPrompt}}, Options{})
	status := HealthStatus{
		Backend:      g.Name(),
		ResponseTime: time.Since(start),
		CheckedAt:    time.Now(),
	}
	if err == nil {
		err = validateHealthResponse(content)
	}
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Available = true
	return status
}

func validateHealthResponse(content string) error {
	trimmed := strings.TrimSpace(StripThinking(content))
	if strings.Contains(trimmed, "2") && len(trimmed) <= 20 {
		return nil
	}
	if trimmed == "" {
		return fmt.Errorf("unexpected response: empty")
	}
	if len(trimmed) > 120 {
		trimmed = trimmed[:120] + "..."
	}
	return fmt.Errorf("unexpected response: %q", trimmed)
}
