// Package events publishes usage events for the stats worker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/illegalcall/swift-letter/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// KafkaPublisher writes events as JSON, keyed by user so one user's events
// stay ordered on a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(event.Type)},
		},
	}
	if event.UserID != "" {
		msg.Key = sarama.StringEncoder(event.UserID)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	slog.Debug("Event published", "type", event.Type, "partition", partition, "offset", offset)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// Noop drops events; used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, models.Event) error { return nil }

// Emit publishes without failing the caller. Usage events are best effort.
func Emit(ctx context.Context, p Publisher, event models.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		slog.Warn("Failed to publish usage event", "type", event.Type, "error", err)
	}
}
