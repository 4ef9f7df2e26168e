// Package observability holds process-wide error reporting and watermark metrics.
package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// SentryConfig configures error reporting. An empty DSN disables it.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
	ServerName  string
}

// InitSentry initializes the global Sentry client.
func InitSentry(cfg SentryConfig, logger *zap.Logger) error {
	if cfg.DSN == "" {
		logger.Info("sentry DSN not configured, error reporting disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		ServerName:  cfg.ServerName,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if event.Request != nil && event.Request.Headers != nil {
				delete(event.Request.Headers, "Authorization")
				delete(event.Request.Headers, "Cookie")
			}
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	logger.Info("sentry initialized", zap.String("environment", cfg.Environment))
	return nil
}

// FlushSentry waits for buffered events to be delivered.
func FlushSentry(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// Reporter forwards terminal failures to Sentry with tags. It is a no-op when
// Sentry was not initialized.
type Reporter struct {
	hub *sentry.Hub
}

// NewReporter reports through the current global hub.
func NewReporter() *Reporter {
	return &Reporter{hub: sentry.CurrentHub()}
}

// Report captures err tagged with tags.
func (r *Reporter) Report(err error, tags map[string]string) {
	if err == nil || r == nil || r.hub == nil || r.hub.Client() == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}

// RecoverAndCapture reports a panic to Sentry and re-panics.
func RecoverAndCapture() {
	if rec := recover(); rec != nil {
		err, ok := rec.(error)
		if !ok {
			err = fmt.Errorf("panic: %v", rec)
		}
		sentry.CaptureException(err)
		sentry.Flush(2 * time.Second)
		panic(rec)
	}
}
