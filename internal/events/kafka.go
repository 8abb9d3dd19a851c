// Package events publishes ETA-change events produced by tracking runs.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/JonMunkholm/shiptrack/internal/core"
)

// EventETAChanged is the event-type header value of every published message.
const EventETAChanged = "eta.changed"

// Writer is the subset of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes ETA-change events to a topic, keyed by tracking number so
// every event for one shipment lands on the same partition.
type Kafka struct {
	writer Writer
	logger *slog.Logger
}

var _ core.EventPublisher = (*Kafka)(nil)

// NewKafka creates a publisher writing to topic on the given brokers.
func NewKafka(brokers []string, topic string, logger *slog.Logger) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return NewKafkaWithWriter(w, logger)
}

// NewKafkaWithWriter creates a publisher on an existing writer.
func NewKafkaWithWriter(w Writer, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{writer: w, logger: logger}
}

// PublishETAChanged writes all events in one batch.
func (k *Kafka) PublishETAChanged(ctx context.Context, events []core.ETAChangedEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs, err := Messages(events)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d eta events: %w", len(msgs), err)
	}

	k.logger.Debug("published eta events", "count", len(msgs), "run_id", events[0].RunID)
	return nil
}

// Close flushes pending messages and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Messages encodes events as JSON Kafka messages.
func Messages(events []core.ETAChangedEvent) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("encode eta event for %s: %w", ev.TrackingNumber, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.TrackingNumber),
			Value: b,
			Time:  ev.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(EventETAChanged)},
				{Key: "manifest-id", Value: []byte(ev.ManifestID)},
			},
		})
	}
	return msgs, nil
}

// Nop discards every event.
type Nop struct{}

var _ core.EventPublisher = Nop{}

func (Nop) PublishETAChanged(context.Context, []core.ETAChangedEvent) error { return nil }

func (Nop) Close() error { return nil }
