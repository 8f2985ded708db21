// Package kafka moves inbound message events through a Kafka topic using
// segmentio/kafka-go. The producer publishes webhook payloads as JSON; the
// consumer decodes them and hands each event to a Handler, committing the
// offset only once the handler has finished with it.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/webhook"
	"github.com/segmentio/kafka-go"
)

// Config holds Kafka connection settings.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Handler processes one decoded event. A non-nil error leaves the message
// uncommitted.
type Handler func(ctx context.Context, event *core.InboundEvent) error

// reader is the subset of *kafka.Reader the consumer uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads inbound events from a topic.
type Consumer struct {
	reader  reader
	handler Handler
	logger  *slog.Logger
}

// NewConsumer creates a consumer for cfg.Topic in consumer group cfg.GroupID.
func NewConsumer(cfg Config, handler Handler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, cfg.Topic, handler)
}

func newConsumer(r reader, topic string, handler Handler) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Run fetches and handles messages until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			if errors.Is(err, io.EOF) {
				c.logger.Info("consumer stopping", "reason", "reader closed")
				return nil
			}
			c.logger.Error("failed to fetch message", "err", err)
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"err", err,
			)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"err", err,
			)
		}
	}
}

// handle decodes and dispatches one message. Undecodable messages are
// logged and reported as handled so they do not block the partition.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	payload, err := DecodeJSON[webhook.Payload](msg.Value)
	if err != nil {
		c.logger.Warn("dropping undecodable message", "offset", msg.Offset, "err", err)
		return nil
	}
	event := payload.InboundEvent()
	if err := core.ValidateInboundEvent(event); err != nil {
		c.logger.Warn("dropping invalid event", "offset", msg.Offset, "err", err)
		return nil
	}
	c.logger.Debug("message received", "event_id", event.ID, "partition", msg.Partition, "offset", msg.Offset)
	return c.handler(ctx, event)
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
