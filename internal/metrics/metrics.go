// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MatchesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "liarslock_matches_created_total",
			Help: "Matches created by the matchmaking queue",
		},
	)
	MatchesResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liarslock_matches_resolved_total",
			Help: "Matches that reached a terminal phase",
		},
		[]string{"phase", "resolution"},
	)
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liarslock_submissions_total",
			Help: "Phase submissions by action and outcome",
		},
		[]string{"action", "result"},
	)
	QueueJoins = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "liarslock_queue_joins_total",
			Help: "Agents placed in the waiting queue",
		},
	)
	SweepForfeits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "liarslock_sweep_forfeits_total",
			Help: "Matches forfeited by the timeout sweeper",
		},
	)
	SweepErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "liarslock_sweep_errors_total",
			Help: "Per-match failures during a sweep",
		},
	)
	TxConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "liarslock_store_tx_conflicts_total",
			Help: "Optimistic transaction retries caused by concurrent writers",
		},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liarslock_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liarslock_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(MatchesCreated)
	prometheus.MustRegister(MatchesResolved)
	prometheus.MustRegister(Submissions)
	prometheus.MustRegister(QueueJoins)
	prometheus.MustRegister(SweepForfeits)
	prometheus.MustRegister(SweepErrors)
	prometheus.MustRegister(TxConflicts)
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPDuration)
}

// ObserveConflict matches store.ConflictObserver.
func ObserveConflict(int) { TxConflicts.Inc() }
