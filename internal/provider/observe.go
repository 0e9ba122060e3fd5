package provider

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/thiagofdso/adapta-chat/internal/core"
	"github.com/thiagofdso/adapta-chat/internal/metrics"
	"github.com/thiagofdso/adapta-chat/internal/tracer"
)

// WithMetrics records call counts and latency for the backend.
func WithMetrics(rec *metrics.Recorder) Middleware {
	return func(next Generator) Generator {
		if rec == nil {
			return next
		}
		return wrap(next, func(ctx context.Context, history []core.Message, opts Options) (string, error) {
			start := time.Now()
			out, err := next.Generate(ctx, history, opts)
			rec.ObserveRequest(next.Name(), err, time.Since(start))
			return out, err
		})
	}
}

// WithTracing opens one span per generate call.
func WithTracing() Middleware {
	return func(next Generator) Generator {
		return wrap(next, func(ctx context.Context, history []core.Message, opts Options) (string, error) {
			ctx, span := tracer.StartSpan(ctx, "backend.generate",
				attribute.String("backend", next.Name()),
				attribute.Int("messages", len(history)),
			)
			out, err := next.Generate(ctx, history, opts)
			span.SetAttributes(attribute.Int("response_chars", len(out)))
			tracer.End(span, err)
			return out, err
		})
	}
}
