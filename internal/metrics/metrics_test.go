package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveRequest("GPT", nil, 10*time.Millisecond)
	r.ObserveRequest("GPT", errors.New("boom"), time.Millisecond)
	r.IncThrottle("GPT", "circuit_open")
	r.ObserveRound([]string{"content", "failed", "content"})
	r.ObserveSynthesis(true)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"requests success", r.requestsTotal.WithLabelValues("GPT", "success"), 1},
		{"requests error", r.requestsTotal.WithLabelValues("GPT", "error"), 1},
		{"throttles", r.throttleTotal.WithLabelValues("GPT", "circuit_open"), 1},
		{"rounds", r.roundsTotal, 1},
		{"content outcomes", r.agentOutcomes.WithLabelValues("content"), 2},
		{"fallback syntheses", r.synthesesTotal.WithLabelValues("fallback"), 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("nil recorder panicked: %v", r)
		}
	}()

	var r *Recorder
	r.ObserveRequest("GPT", nil, time.Second)
	r.IncThrottle("GPT", "rate_limit")
	r.ObserveRound([]string{"content"})
	r.ObserveSynthesis(false)
}
