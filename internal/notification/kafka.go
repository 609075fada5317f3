package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications as JSON events keyed by destination.
type KafkaNotifier struct {
	writer messageWriter
}

// NewKafkaNotifier builds a notifier writing to topic on the given brokers.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Send implements Notifier.
func (n *KafkaNotifier) Send(ctx context.Context, message Message) error {
	if message.OccurredAt.IsZero() {
		message.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(message.Destination),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(message.Kind)},
		},
	}); err != nil {
		return fmt.Errorf("publish %s notification: %w", message.Kind, err)
	}
	return nil
}

// Close flushes pending messages and releases the writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
