// Package events publishes sync outcomes for downstream archiving.
package events

import (
	"context"
	"time"
)

// EventTypeSyncOutcome is the event_type header carried by outcome messages.
const EventTypeSyncOutcome = "sync.outcome"

// Counts is the number of records the server accepted per family.
type Counts struct {
	DailyMetrics  int `json:"dailyMetrics"`
	Activities    int `json:"activities"`
	SleepSessions int `json:"sleepSessions"`
}

// SyncOutcome describes one finished sync run.
type SyncOutcome struct {
	RunID      string    `json:"runId"`
	Device     string    `json:"device"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	Attempt    int       `json:"attempt"`
	Counts     Counts    `json:"counts"`
	WindowFrom string    `json:"windowFrom,omitempty"`
	WindowTo   string    `json:"windowTo,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher delivers outcomes. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, outcome SyncOutcome) error
	Close() error
}

// NoopPublisher drops every outcome.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, SyncOutcome) error { return nil }
func (NoopPublisher) Close() error                              { return nil }
