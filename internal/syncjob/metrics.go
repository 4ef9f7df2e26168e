package syncjob

import "github.com/prometheus/client_golang/prometheus"

var (
	runsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "companion",
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Sync runs grouped by type and outcome.",
	}, []string{"type", "outcome"})

	runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "companion",
		Subsystem: "sync",
		Name:      "run_duration_seconds",
		Help:      "Wall time of sync runs from precondition check to log write.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"type"})

	submittedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "companion",
		Subsystem: "sync",
		Name:      "records_submitted_total",
		Help:      "Records accepted by the server, labeled by family.",
	}, []string{"family"})

	tokenRefreshCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "companion",
		Subsystem: "sync",
		Name:      "token_refresh_total",
		Help:      "Login calls made to obtain a bearer token, labeled by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(runsCounter, runDuration, submittedCounter, tokenRefreshCounter)
}
