package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/PriorityCraft/internal/config"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/errors"
)

// EventHandler processes one decoded event.  A non-nil error leaves the
// message uncommitted so it is redelivered after the retry budget.
type EventHandler func(ctx context.Context, env *EventEnvelope) error

// ReaderInterface abstracts kafka.Reader for tests.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer runs a fetch-handle-commit loop over one topic.  The worker
// consumes item-change events through it to trigger incremental
// recalculations.
type Consumer struct {
	reader     ReaderInterface
	handler    EventHandler
	deadLetter DeadLetterSink // optional
	logger     logging.Logger

	maxRetries   int
	retryBackoff time.Duration

	closed    atomic.Bool
	processed atomic.Int64
	dropped   atomic.Int64
}

// DeadLetterSink receives messages the consumer gave up on.  The Publisher
// provides the production implementation.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, original kafka.Message, reason string) error
}

// ConsumerOption customizes a Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetter routes dropped messages to sink instead of discarding
// them outright.
func WithDeadLetter(sink DeadLetterSink) ConsumerOption {
	return func(c *Consumer) { c.deadLetter = sink }
}

// WithRetryPolicy overrides the per-message retry budget and backoff base.
func WithRetryPolicy(maxRetries int, backoff time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if backoff > 0 {
			c.retryBackoff = backoff
		}
	}
}

// NewConsumer builds a Consumer over topic in the configured group.
func NewConsumer(cfg config.KafkaConfig, topic string, handler EventHandler, log logging.Logger, opts ...ConsumerOption) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "kafka group ID required")
	}
	if handler == nil {
		return nil, errors.New(errors.ErrCodeValidation, "event handler required")
	}

	startOffset := kafka.LastOffset
	if cfg.AutoOffsetReset == "earliest" {
		startOffset = kafka.FirstOffset
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       topic,
		StartOffset: startOffset,
		MinBytes:    1,
		MaxBytes:    10 * 1024 * 1024,
		MaxWait:     time.Second,
	})
	c := &Consumer{
		reader:       reader,
		handler:      handler,
		logger:       log.Named("consumer").With(logging.String("topic", topic)),
		maxRetries:   3,
		retryBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewConsumerWithReader wraps an existing reader, for tests.
func NewConsumerWithReader(reader ReaderInterface, handler EventHandler, log logging.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:       reader,
		handler:      handler,
		logger:       log.Named("consumer"),
		maxRetries:   3,
		retryBackoff: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until ctx is cancelled or the consumer is closed.  A message
// that cannot be decoded is committed and dropped; a message whose handler
// keeps failing past the retry budget is also dropped so one poison message
// cannot stall the partition.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if c.closed.Load() {
			return nil
		}
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || c.closed.Load() {
				return nil
			}
			return errors.Wrap(err, errors.ErrCodeExternalService, "failed to fetch message")
		}

		env, err := decodeEnvelope(msg)
		if err != nil {
			c.logger.Warn("dropping undecodable message",
				logging.Int64("offset", msg.Offset), logging.Err(err))
			c.drop(ctx, msg, "undecodable envelope")
			c.commit(ctx, msg)
			continue
		}

		if err := c.handleWithRetry(ctx, env); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("dropping event after retries",
				logging.String("event_id", env.EventID),
				logging.String("event_type", env.EventType),
				logging.Err(err))
			c.drop(ctx, msg, "retry budget exhausted: "+err.Error())
		} else {
			c.processed.Add(1)
		}
		c.commit(ctx, msg)
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, env *EventEnvelope) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryBackoff * time.Duration(attempt)):
			}
		}
		if err = c.handler(ctx, env); err == nil {
			return nil
		}
		c.logger.Warn("event handler failed",
			logging.String("event_id", env.EventID),
			logging.Int("attempt", attempt+1),
			logging.Err(err))
	}
	return err
}

// drop counts a dropped message and forwards it to the dead-letter sink
// when one is configured.  Dead-letter failures are logged, never fatal:
// the offset still commits so the partition keeps moving.
func (c *Consumer) drop(ctx context.Context, msg kafka.Message, reason string) {
	c.dropped.Add(1)
	if c.deadLetter == nil {
		return
	}
	if err := c.deadLetter.DeadLetter(ctx, msg, reason); err != nil && ctx.Err() == nil {
		c.logger.Error("failed to forward message to dead letter",
			logging.Int64("offset", msg.Offset), logging.Err(err))
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.logger.Error("failed to commit offset",
			logging.Int64("offset", msg.Offset), logging.Err(err))
	}
}

// Processed returns the count of successfully handled events.
func (c *Consumer) Processed() int64 { return c.processed.Load() }

// Dropped returns the count of dropped events.
func (c *Consumer) Dropped() int64 { return c.dropped.Load() }

// Close stops the loop and releases the reader.  Idempotent.
func (c *Consumer) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.reader.Close()
}
