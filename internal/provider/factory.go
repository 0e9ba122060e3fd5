package provider

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/thiagofdso/adapta-chat/internal/config"
	"github.com/thiagofdso/adapta-chat/internal/metrics"
)

// RetryBaseDelay is the first retry backoff; later waits double (1s, 2s, 4s, ...).
var RetryBaseDelay = time.Second

// New creates the raw backend described by cfg, without middleware.
func New(cfg config.BackendConfig, apiKey string) (Generator, error) {
	switch cfg.Kind {
	case "openai":
		return NewOpenAIGenerator(cfg.Name, apiKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens), nil
	case "anthropic":
		return NewAnthropicGenerator(cfg.Name, apiKey, cfg.Model, cfg.MaxTokens), nil
	case "gemini":
		return NewGeminiGenerator(cfg.Name, apiKey, cfg.Model, cfg.MaxTokens), nil
	case "ollama":
		return NewOllamaGenerator(cfg.Name, cfg.BaseURL, cfg.Model, cfg.MaxTokens), nil
	case "cli":
		return NewCLIGenerator(cfg.Name, cfg.Command, cfg.Args, cfg.ModelFlag, cfg.Model).
			WithOutputFormat(cfg.OutputFormat).
			WithPromptVia(cfg.PromptVia), nil
	case "mock":
		return NewMockGenerator(cfg.Name, 500*time.Millisecond), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q for %s", cfg.Kind, cfg.Name)
	}
}

// Wrap applies the configured middleware stack to a raw backend.
func Wrap(base Generator, cfg config.BackendConfig, rec *metrics.Recorder) Generator {
	mws := []Middleware{
		WithMetrics(rec),
		WithTracing(),
		WithCircuitBreaker(cfg.CircuitBreaker.MaxFailures, cfg.CircuitBreaker.Timeout, rec),
		WithRateLimit(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, rec),
		WithRetry(cfg.MaxRetries, RetryBaseDelay),
		WithTimeout(cfg.Timeout),
	}
	if cfg.StripThinking {
		mws = append(mws, WithThinkingStripped())
	}
	return Chain(base, mws...)
}

func needsAPIKey(kind string) bool {
	switch kind {
	case "openai", "anthropic", "gemini":
		return true
	default:
		return false
	}
}

// NewRegistryFromConfig registers every enabled backend in config order.
// Backends missing their API key are skipped with a warning. With mock set,
// every backend is replaced by a MockGenerator of the same name.
func NewRegistryFromConfig(cfg *config.Config, rec *metrics.Recorder, mock bool) (*Registry, error) {
	registry := NewRegistry()

	for _, bc := range cfg.Backends {
		if bc.Disabled {
			continue
		}

		if mock {
			bc.Kind = "mock"
		}

		apiKey := cfg.APIKey(bc)
		if needsAPIKey(bc.Kind) && apiKey == "" {
			slog.Warn("Skipping backend without API key",
				"backend", bc.Name,
				"env", bc.APIKeyEnv,
			)
			continue
		}

		base, err := New(bc, apiKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create backend %s: %w", bc.Name, err)
		}
		registry.Register(Wrap(base, bc, rec))
	}

	return registry, nil
}
