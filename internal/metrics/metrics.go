// Package metrics provides Prometheus instrumentation for breakerd.
// All metric collectors are registered via the Init function and exposed
// through the Handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BreakerState tracks the current state of each breaker
	// (0=closed, 1=open, 2=half-open).
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"breaker"},
	)

	// StateChanges counts breaker state transitions by from/to state.
	StateChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaker_state_changes_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"breaker", "from", "to"},
	)

	// Rejections counts fast-rejected calls by reason ("open" when the
	// circuit is open, "half_open_limit" when the trial batch is full).
	Rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaker_rejections_total",
			Help: "Total calls rejected without invoking the operation",
		},
		[]string{"breaker", "reason"},
	)

	// Outcomes counts recorded operation results by outcome
	// ("success", "failure", "timeout").
	Outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaker_outcomes_total",
			Help: "Total recorded operation outcomes",
		},
		[]string{"breaker", "outcome"},
	)

	// OperationDuration observes wrapped operation latency in seconds.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "breaker_operation_duration_seconds",
			Help:    "Latency of operations executed through a breaker",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"breaker"},
	)

	// WatchdogRecoveries counts proactive open-to-half-open transitions
	// triggered by the background health check.
	WatchdogRecoveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaker_watchdog_recoveries_total",
			Help: "Total automatic recovery probes triggered by the watchdog",
		},
		[]string{"breaker"},
	)

	// AuthFailures counts admin API authentication failures by reason.
	AuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakerd_auth_failures_total",
			Help: "Total admin API authentication failures",
		},
		[]string{"reason"},
	)

	// RateLimitHits counts rate limit rejections on the HTTP surface.
	RateLimitHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "breakerd_rate_limit_hits_total",
			Help: "Total rate limit rejections",
		},
	)
)

// Init registers all metric collectors with the default Prometheus
// registry. Must be called once at startup before handling requests.
func Init() {
	prometheus.MustRegister(
		BreakerState,
		StateChanges,
		Rejections,
		Outcomes,
		OperationDuration,
		WatchdogRecoveries,
		AuthFailures,
		RateLimitHits,
	)
}

// Handler returns an http.Handler that serves the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
