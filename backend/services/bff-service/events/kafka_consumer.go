package events

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const maxHandleAttempts = 3

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads payment events from a Kafka topic. An offset is
// committed once its message has been applied or given up on.
type KafkaConsumer struct {
	reader  messageReader
	handler *Handler
	logger  *zap.Logger
	backoff time.Duration
}

func NewKafkaConsumer(brokers []string, topic, groupID string, handler *Handler, logger *zap.Logger) *KafkaConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	return &KafkaConsumer{reader: r, handler: handler, logger: logger, backoff: 2 * time.Second}
}

// Run consumes until ctx is cancelled, then closes the reader.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("Kafka reader close failed", zap.Error(err))
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			c.logger.Warn("Failed to read payment event", zap.Error(err))
			if !c.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		if !c.apply(ctx, m) {
			return ctx.Err()
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Warn("Failed to commit payment event", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// apply retries the handler a few times. A message that still fails is
// skipped; the cache TTL bounds how stale the student's list can get. It
// returns false only when ctx ends.
func (c *KafkaConsumer) apply(ctx context.Context, m kafka.Message) bool {
	for attempt := 1; ; attempt++ {
		err := c.handler.Handle(ctx, m.Value)
		if err == nil {
			return true
		}
		if attempt >= maxHandleAttempts {
			c.logger.Error("Skipping payment event after retries",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
			return true
		}
		c.logger.Warn("Failed to apply payment event", zap.Int64("offset", m.Offset), zap.Int("attempt", attempt), zap.Error(err))
		if !c.sleep(ctx) {
			return false
		}
	}
}

func (c *KafkaConsumer) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.backoff):
		return true
	}
}
