package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/webhook"
	"github.com/segmentio/kafka-go"
)

// writer is the subset of *kafka.Writer the producer uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes inbound events keyed by the business number, so one
// tenant's events stay ordered within a partition.
type Producer struct {
	writer writer
	logger *slog.Logger
}

// NewProducer creates a producer for cfg.Topic.
func NewProducer(cfg Config) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return newProducer(w, cfg.Topic)
}

func newProducer(w writer, topic string) *Producer {
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes one event synchronously.
func (p *Producer) Publish(ctx context.Context, event *core.InboundEvent) error {
	value, err := json.Marshal(webhook.FromEvent(event))
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	msg := kafka.Message{Key: []byte(event.To), Value: value}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish event", "event_id", event.ID, "err", err)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("event published", "event_id", event.ID, "value_size", len(value))
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
