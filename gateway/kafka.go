package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaNotifier.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications as JSON keyed by shipment id.
type KafkaNotifier struct {
	writer MessageWriter
}

// NewKafkaNotifier builds a notifier writing to topic on brokers.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return NewKafkaNotifierWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	})
}

func NewKafkaNotifierWithWriter(w MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: w}
}

func (k *KafkaNotifier) Notify(ctx context.Context, note Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("kafka notifier: encode: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(note.ShipmentID),
		Value: payload,
		Time:  note.SentAt,
		Headers: []kafka.Header{
			{Key: "category", Value: []byte(note.Category)},
			{Key: "action_required", Value: []byte(fmt.Sprintf("%t", note.ActionRequired))},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka notifier: write: %w", err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
