package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/config"
)

// Record is one raw message. Key is used for partition hashing.
type Record struct {
	Key   []byte
	Value []byte
}

// Producer publishes raw records to a Kafka topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a Producer for the given topic.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes a single record to Kafka synchronously.
func (p *Producer) Publish(ctx context.Context, rec Record) error {
	msg := kafka.Message{
		Key:   rec.Key,
		Value: rec.Value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish message", "error", err)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("message published", "value_size", len(rec.Value))
	return nil
}

// PublishBatch writes multiple records to Kafka in a single write call.
func (p *Producer) PublishBatch(ctx context.Context, recs []Record) error {
	messages := make([]kafka.Message, 0, len(recs))
	for _, rec := range recs {
		messages = append(messages, kafka.Message{
			Key:   rec.Key,
			Value: rec.Value,
		})
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("failed to publish batch",
			"count", len(messages),
			"error", err,
		)
		return fmt.Errorf("publishing batch to kafka: %w", err)
	}
	p.logger.Debug("batch published", "count", len(messages))
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
