package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"example.com/companion/internal/events"
)

func outcomeMessage(t *testing.T, offset int64, outcome events.SyncOutcome) kafka.Message {
	t.Helper()
	msg, err := events.EncodeMessage(outcome)
	require.NoError(t, err)
	msg.Topic = "health_sync_outcomes"
	msg.Offset = offset
	return msg
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outcome := events.SyncOutcome{
		RunID:      "run-1",
		Device:     "pixel",
		Type:       "PERIODIC",
		Status:     "SUCCESS",
		Message:    "Synced 2 days, 1 activities, 0 sleep sessions",
		Attempt:    1,
		Counts:     events.Counts{DailyMetrics: 2, Activities: 1},
		WindowFrom: "2025-03-09",
		WindowTo:   "2025-03-10",
		OccurredAt: time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC),
	}
	reader := &stubReader{
		messages: []kafka.Message{outcomeMessage(t, 10, outcome)},
		after:    contextCanceled,
	}
	handler := &stubHandler{}
	before := testutil.ToFloat64(processedCounter.WithLabelValues("health_sync_outcomes", "SUCCESS"))

	processor := NewProcessor(reader, handler, WithLogger(zaptest.NewLogger(t)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, events.EventTypeSyncOutcome, handler.last.EventType)
	require.Equal(t, "run-1", handler.last.RunID)
	require.Equal(t, int64(10), handler.last.Offset)
	require.Equal(t, outcome.Counts, handler.last.Outcome.Counts)
	require.True(t, outcome.OccurredAt.Equal(handler.last.Outcome.OccurredAt))
	require.Equal(t, before+1, testutil.ToFloat64(processedCounter.WithLabelValues("health_sync_outcomes", "SUCCESS")))
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		messages: []kafka.Message{outcomeMessage(t, 20, events.SyncOutcome{RunID: "run-2", Status: "RETRY"})},
		after:    contextCanceled,
	}
	handler := &stubHandler{err: errors.New("boom")}

	processor := NewProcessor(reader, handler, WithLogger(zaptest.NewLogger(t)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	malformed := []kafka.Message{
		{Topic: "health_sync_outcomes", Value: []byte(`{}`)},
		{Topic: "health_sync_outcomes", Value: []byte(`not json`), Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(events.EventTypeSyncOutcome)},
		}},
		{Topic: "health_sync_outcomes", Value: []byte(`{"runId":"x"}`), Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("activity.created")},
		}},
	}
	reader := &stubReader{messages: malformed, after: contextCanceled}
	handler := &stubHandler{}
	before := testutil.ToFloat64(decodeErrorCounter.WithLabelValues("health_sync_outcomes"))

	processor := NewProcessor(reader, handler)

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Zero(t, handler.calls)
	require.Equal(t, len(malformed), reader.commitCalls)
	require.Equal(t, before+float64(len(malformed)), testutil.ToFloat64(decodeErrorCounter.WithLabelValues("health_sync_outcomes")))
}

func TestDecodeFallsBackToPayloadRunID(t *testing.T) {
	msg := kafka.Message{
		Value:   []byte(`{"runId":"from-body","status":"ERROR"}`),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(events.EventTypeSyncOutcome)}},
	}

	decoded, err := decodeMessage(msg)
	require.NoError(t, err)
	require.Equal(t, "from-body", decoded.RunID)
	require.JSONEq(t, string(msg.Value), string(decoded.Payload))
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}
