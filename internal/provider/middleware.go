package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

// Middleware wraps a Generator with extra behavior.
type Middleware func(next Generator) Generator

// Chain applies middlewares to base. The first middleware is the outermost.
func Chain(base Generator, mws ...Middleware) Generator {
	g := base
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			g = mws[i](g)
		}
	}
	return g
}

// wrap builds a Generator that keeps next's name.
func wrap(next Generator, fn func(ctx context.Context, history []core.Message, opts Options) (string, error)) Generator {
	return NewGeneratorFunc(next.Name(), fn)
}

// WithTimeout bounds every call with its own deadline.
func WithTimeout(d time.Duration) Middleware {
	return func(next Generator) Generator {
		if d <= 0 {
			return next
		}
		return wrap(next, func(ctx context.Context, history []core.Message, opts Options) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Generate(ctx, history, opts)
		})
	}
}

// retryBackoff is the wait before retry number attempt (1-based): base,
// 2*base, 4*base, ...
func retryBackoff(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		return 0
	}
	return base << (attempt - 1)
}

// WithRetry retries retriable failures with exponential backoff (base, 2*base, 4*base, ...).
func WithRetry(maxRetries int, base time.Duration) Middleware {
	return func(next Generator) Generator {
		if maxRetries <= 0 {
			return next
		}
		return wrap(next, func(ctx context.Context, history []core.Message, opts Options) (string, error) {
			for attempt := 0; attempt <= maxRetries; attempt++ {
				if attempt > 0 {
					backoff := retryBackoff(attempt, base)
					slog.Info("Retrying backend call after backoff",
						"backend", next.Name(),
						"attempt", attempt+1,
						"max_attempts", maxRetries+1,
						"backoff", backoff,
					)

					select {
					case <-time.After(backoff):
					case <-ctx.Done():
						return "", ctx.Err()
					}
				}

				result, err := next.Generate(ctx, history, opts)
				if err == nil {
					return result, nil
				}

				if !IsRetriable(err) {
					return "", err
				}

				if attempt == maxRetries {
					slog.Error("Backend call failed after all retries",
						"backend", next.Name(),
						"attempts", attempt+1,
						"error", err,
					)
					return "", fmt.Errorf("failed after %d attempts: %w", attempt+1, err)
				}

				slog.Warn("Backend call failed, will retry",
					"backend", next.Name(),
					"attempt", attempt+1,
					"error", err,
				)
			}
			return "", fmt.Errorf("unexpected retry loop exit")
		})
	}
}

// WithThinkingStripped removes <thinking> blocks from successful replies.
func WithThinkingStripped() Middleware {
	return func(next Generator) Generator {
		return wrap(next, func(ctx context.Context, history []core.Message, opts Options) (string, error) {
			out, err := next.Generate(ctx, history, opts)
			if err != nil {
				return "", err
			}
			return StripThinking(out), nil
		})
	}
}
