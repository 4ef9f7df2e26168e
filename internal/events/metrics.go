package events

import "github.com/prometheus/client_golang/prometheus"

var (
	publishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "companion",
		Subsystem: "events",
		Name:      "outcomes_published_total",
		Help:      "Sync outcomes published to Kafka, labeled by status.",
	}, []string{"status"})

	publishFailedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "companion",
		Subsystem: "events",
		Name:      "outcomes_publish_failed_total",
		Help:      "Sync outcomes that could not be written to Kafka.",
	})
)

func init() {
	prometheus.MustRegister(publishedCounter, publishFailedCounter)
}
