package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Log Replay
// =============================================================================

var (
	// tracesChecked counts replayed traces.
	// Labels: policy (fail-fast, exhaustive), verdict (conformant, violating)
	tracesChecked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dcrcheck",
		Subsystem: "engine",
		Name:      "traces_checked_total",
		Help:      "Total traces replayed against a DCR graph",
	}, []string{"policy", "verdict"})

	// violationsFound counts recorded violations by kind.
	// Labels: kind (not_included, condition_unmet, ...)
	violationsFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dcrcheck",
		Subsystem: "engine",
		Name:      "violations_total",
		Help:      "Total rule violations recorded during replay",
	}, []string{"kind"})

	// runDuration measures wall time of complete runs.
	// Labels: mode (sequential, parallel, unbounded), status (ok, error)
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dcrcheck",
		Subsystem: "engine",
		Name:      "run_duration_seconds",
		Help:      "Wall time of a replay run in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"mode", "status"})

	// traceLength tracks the distribution of trace lengths in events.
	traceLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dcrcheck",
		Subsystem: "engine",
		Name:      "trace_length_events",
		Help:      "Number of events per replayed trace",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
)

// recordTrace updates the per-trace metrics for one finished record.
func recordTrace(policy Policy, events int, violated bool, kinds []string) {
	verdict := "conformant"
	if violated {
		verdict = "violating"
	}
	tracesChecked.WithLabelValues(policy.String(), verdict).Inc()
	traceLength.Observe(float64(events))
	for _, k := range kinds {
		violationsFound.WithLabelValues(k).Inc()
	}
}
