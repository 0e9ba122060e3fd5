// Package metrics records Prometheus metrics for backend calls and debate rounds.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the debate metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	throttleTotal   *prometheus.CounterVec
	roundsTotal     prometheus.Counter
	agentOutcomes   *prometheus.CounterVec
	synthesesTotal  *prometheus.CounterVec
}

// NewRecorder registers the debate metrics on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adapta_backend_requests_total",
				Help: "Total number of backend generate calls by backend and status",
			},
			[]string{"backend", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adapta_backend_request_duration_seconds",
				Help:    "Duration of backend generate calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		throttleTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adapta_backend_throttle_total",
				Help: "Total number of calls rejected by the rate limiter or circuit breaker",
			},
			[]string{"backend", "reason"},
		),
		roundsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "adapta_rounds_total",
				Help: "Total number of completed debate rounds",
			},
		),
		agentOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adapta_agent_outcomes_total",
				Help: "Per-agent round outcomes by kind (content, failed, empty)",
			},
			[]string{"kind"},
		),
		synthesesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adapta_syntheses_total",
				Help: "Manager syntheses by result (ok, fallback)",
			},
			[]string{"result"},
		),
	}
}

// ObserveRequest records one backend call.
func (r *Recorder) ObserveRequest(backend string, err error, duration time.Duration) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.requestsTotal.WithLabelValues(backend, status).Inc()
	r.requestDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// IncThrottle records a call that was throttled or short-circuited.
func (r *Recorder) IncThrottle(backend, reason string) {
	if r == nil {
		return
	}
	r.throttleTotal.WithLabelValues(backend, reason).Inc()
}

// ObserveRound records a completed round and the kind of each agent outcome.
func (r *Recorder) ObserveRound(kinds []string) {
	if r == nil {
		return
	}
	r.roundsTotal.Inc()
	for _, k := range kinds {
		r.agentOutcomes.WithLabelValues(k).Inc()
	}
}

// ObserveSynthesis records whether the manager produced a conclusion.
func (r *Recorder) ObserveSynthesis(fallback bool) {
	if r == nil {
		return
	}
	result := "ok"
	if fallback {
		result = "fallback"
	}
	r.synthesesTotal.WithLabelValues(result).Inc()
}
