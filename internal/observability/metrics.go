package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	lastSuccessGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "companion",
		Subsystem: "sync",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful submission.",
	})
	lastFailureGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "companion",
		Subsystem: "sync",
		Name:      "last_failure_timestamp_seconds",
		Help:      "Unix timestamp of the most recent terminal sync failure.",
	})
)

func init() {
	prometheus.MustRegister(lastSuccessGauge, lastFailureGauge)
}

// RecordSyncSucceeded updates the success watermark gauge.
func RecordSyncSucceeded(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSuccessGauge.Set(float64(ts.Unix()))
}

// RecordSyncFailed updates the failure watermark gauge.
func RecordSyncFailed(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastFailureGauge.Set(float64(ts.Unix()))
}
