package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the forwarder uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// KafkaForwarder copies bus events onto a Kafka topic.
type KafkaForwarder struct {
	writer MessageWriter
	logger *slog.Logger
}

func NewKafkaForwarder(writer MessageWriter, logger *slog.Logger) *KafkaForwarder {
	return &KafkaForwarder{writer: writer, logger: logger}
}

func (f *KafkaForwarder) Forward(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventID(), err)
	}

	msg := kafka.Message{
		Value: value,
		Time:  event.OccurredAt(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType())},
			{Key: "event_id", Value: []byte(event.EventID())},
		},
	}
	if keyed, ok := event.(Keyed); ok {
		msg.Key = []byte(keyed.EventKey())
	}

	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("forward event %s: %w", event.EventID(), err)
	}

	f.logger.Debug("event forwarded to kafka",
		"event_type", event.EventType(),
		"event_id", event.EventID())
	return nil
}

// Register subscribes the forwarder to the given event types.
func (f *KafkaForwarder) Register(bus *EventBus, eventTypes ...string) {
	for _, t := range eventTypes {
		bus.Subscribe(t, f.Forward)
	}
}

func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}
