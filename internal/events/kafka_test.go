package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type stubWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *stubWriter) Close() error {
	w.closed = true
	return nil
}

func sampleOutcome() SyncOutcome {
	return SyncOutcome{
		RunID:      "run-1",
		Device:     "pixel-8",
		Type:       "PERIODIC",
		Status:     "SUCCESS",
		Message:    "Synced 2 days, 1 activities, 1 sleep sessions",
		Attempt:    1,
		Counts:     Counts{DailyMetrics: 2, Activities: 1, SleepSessions: 1},
		OccurredAt: time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisherWritesKeyedMessage(t *testing.T) {
	writer := &stubWriter{}
	publisher := NewKafkaPublisher([]string{"kafka:9092"}, "health_sync_outcomes")
	publisher.writer = writer

	before := testutil.ToFloat64(publishedCounter.WithLabelValues("SUCCESS"))
	require.NoError(t, publisher.Publish(context.Background(), sampleOutcome()))
	require.Equal(t, before+1, testutil.ToFloat64(publishedCounter.WithLabelValues("SUCCESS")))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	require.Equal(t, "pixel-8", string(msg.Key))
	require.Equal(t, EventTypeSyncOutcome, string(msg.Headers[0].Value))

	var decoded SyncOutcome
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, sampleOutcome(), decoded)

	require.NoError(t, publisher.Close())
	require.True(t, writer.closed)
}

func TestKafkaPublisherCountsFailures(t *testing.T) {
	publisher := NewKafkaPublisher(nil, "health_sync_outcomes")
	publisher.writer = &stubWriter{err: errors.New("leader not available")}

	before := testutil.ToFloat64(publishFailedCounter)
	err := publisher.Publish(context.Background(), sampleOutcome())
	require.ErrorContains(t, err, "run-1")
	require.Equal(t, before+1, testutil.ToFloat64(publishFailedCounter))
}
