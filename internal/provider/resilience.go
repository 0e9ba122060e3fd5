package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/thiagofdso/adapta-chat/internal/core"
	"github.com/thiagofdso/adapta-chat/internal/metrics"
)

// WithCircuitBreaker stops calling a backend after maxFailures consecutive
// failures and lets a trial call through once timeout has passed.
func WithCircuitBreaker(maxFailures int, timeout time.Duration, rec *metrics.Recorder) Middleware {
	return func(next Generator) Generator {
		if maxFailures <= 0 {
			return next
		}
		if timeout <= 0 {
			timeout = time.Minute
		}

		breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        next.Name(),
			MaxRequests: 1,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(maxFailures)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("Backend circuit breaker state change",
					"backend", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
			IsSuccessful: func(err error) bool {
				// a cancelled debate says nothing about backend health
				return err == nil || errors.Is(err, context.Canceled)
			},
		})

		return wrap(next, func(ctx context.Context, history []core.Message, opts Options) (string, error) {
			out, err := breaker.Execute(func() (string, error) {
				return next.Generate(ctx, history, opts)
			})
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				rec.IncThrottle(next.Name(), "circuit_open")
				return "", &BackendError{Backend: next.Name(), Message: "circuit breaker open", Err: err}
			}
			return out, err
		})
	}
}

// WithRateLimit waits for a token before each call. perMinute <= 0 disables it.
func WithRateLimit(perMinute float64, burst int, rec *metrics.Recorder) Middleware {
	return func(next Generator) Generator {
		if perMinute <= 0 {
			return next
		}
		if burst <= 0 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(perMinute/60), burst)

		return wrap(next, func(ctx context.Context, history []core.Message, opts Options) (string, error) {
			if err := limiter.Wait(ctx); err != nil {
				rec.IncThrottle(next.Name(), "rate_limit")
				return "", fmt.Errorf("rate limit wait for %s: %w", next.Name(), err)
			}
			return next.Generate(ctx, history, opts)
		})
	}
}
