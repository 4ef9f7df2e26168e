package scheduler

import "github.com/prometheus/client_golang/prometheus"

var (
	triggeredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "companion",
		Subsystem: "scheduler",
		Name:      "runs_started_total",
		Help:      "Sync invocations started, by trigger (periodic, manual, import).",
	}, []string{"trigger"})

	mergedTriggerCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "companion",
		Subsystem: "scheduler",
		Name:      "merged_triggers_total",
		Help:      "Manual triggers folded into an already pending one.",
	})

	constraintBlockedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "companion",
		Subsystem: "scheduler",
		Name:      "constraint_deferrals_total",
		Help:      "Runs deferred because a constraint was not met.",
	}, []string{"constraint"})

	nextRunGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "companion",
		Subsystem: "scheduler",
		Name:      "next_run_timestamp_seconds",
		Help:      "Unix timestamp of the next scheduled run, 0 when paused.",
	})
)

func init() {
	prometheus.MustRegister(triggeredCounter, mergedTriggerCounter, constraintBlockedCounter, nextRunGauge)
}
