package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes outcomes as JSON to a single topic, keyed by device.
// The writer is created on first publish.
type KafkaPublisher struct {
	brokers []string
	topic   string

	mu     sync.Mutex
	writer messageWriter
}

// NewKafkaPublisher creates a KafkaPublisher.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{brokers: brokers, topic: topic}
}

// Publish encodes and writes one outcome.
func (p *KafkaPublisher) Publish(ctx context.Context, outcome SyncOutcome) error {
	msg, err := EncodeMessage(outcome)
	if err != nil {
		return err
	}
	if err := p.writerForTopic().WriteMessages(ctx, msg); err != nil {
		publishFailedCounter.Inc()
		return fmt.Errorf("publish outcome %s: %w", outcome.RunID, err)
	}
	publishedCounter.WithLabelValues(outcome.Status).Inc()
	return nil
}

// EncodeMessage builds the Kafka message for an outcome.
func EncodeMessage(outcome SyncOutcome) (kafka.Message, error) {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode outcome: %w", err)
	}
	return kafka.Message{
		Key:   []byte(outcome.Device),
		Value: payload,
		Time:  outcome.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeSyncOutcome)},
			{Key: "run_id", Value: []byte(outcome.RunID)},
		},
	}, nil
}

func (p *KafkaPublisher) writerForTopic() messageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer != nil {
		return p.writer
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        p.topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Async:        false,
	}
	return p.writer
}

// Close releases the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	p.writer = nil
	return err
}
