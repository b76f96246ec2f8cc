package publish

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/rickgao/fulltick/internal/config"
	"github.com/rickgao/fulltick/internal/model"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes ticks to a Kafka topic keyed by symbol, so every
// tick of one symbol lands on the same partition.
type KafkaPublisher struct {
	w      messageWriter
	logger *slog.Logger
}

// NewKafkaPublisher creates an asynchronous, hash-balanced writer.
func NewKafkaPublisher(cfg config.KafkaSinkConfig, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("sink", "kafka", "topic", cfg.Topic)

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("kafka write failed", "count", len(messages), "error", err)
			}
		},
	}
	return newKafkaPublisher(w, logger)
}

func newKafkaPublisher(w messageWriter, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{w: w, logger: logger}
}

// HandleTick queues the tick for the topic.
func (p *KafkaPublisher) HandleTick(ctx context.Context, tick model.Tick) error {
	payload, err := Encode(tick)
	if err != nil {
		return fmt.Errorf("encode tick: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(tick.Symbol.String()),
		Value: payload,
		Time:  tick.ReceivedAt,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", tick.Symbol, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
