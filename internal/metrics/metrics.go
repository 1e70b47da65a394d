package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voyagr",
			Name:      "status_transitions_total",
			Help:      "Committed booking status transitions by edge.",
		},
		[]string{"from", "to"},
	)

	invalidTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voyagr",
			Name:      "status_transitions_rejected_total",
			Help:      "Rejected booking status transitions by edge.",
		},
		[]string{"from", "to"},
	)

	sideEffectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voyagr",
			Name:      "side_effect_failures_total",
			Help:      "Side-effect handler failures by action.",
		},
		[]string{"action"},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "voyagr",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of periodic sweep passes.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voyagr",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(transitions, invalidTransitions, sideEffectFailures, sweepDuration, httpRequests)
	})
}

// IncTransition increments the committed transition counter.
func IncTransition(from, to string) {
	transitions.WithLabelValues(from, to).Inc()
}

// IncInvalidTransition increments the rejected transition counter.
func IncInvalidTransition(from, to string) {
	invalidTransitions.WithLabelValues(from, to).Inc()
}

// IncSideEffectFailure increments the failure counter for an action label.
func IncSideEffectFailure(action string) {
	sideEffectFailures.WithLabelValues(action).Inc()
}

// ObserveSweep records the duration of one sweep pass in seconds.
func ObserveSweep(seconds float64) {
	sweepDuration.Observe(seconds)
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
