package kafka

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/PriorityCraft/internal/config"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// ErrPublisherClosed is returned for publishes after Close.
var ErrPublisherClosed = errors.New(errors.ErrCodeInternal, "event publisher closed")

// sourceService identifies this engine in event envelopes and headers.
const sourceService = "prioritycraft-engine"

// WriterInterface abstracts kafka.Writer for tests.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits weight-approval and run-completion events.  It satisfies
// the application layer's EventPublisher contract; publish failures are the
// caller's to log and tolerate — the events are an audit stream, not part of
// the calculation's correctness.
type Publisher struct {
	writer WriterInterface
	logger logging.Logger
	closed atomic.Bool

	published atomic.Int64
	failed    atomic.Int64
}

// NewPublisher builds a Publisher over a hash-balanced kafka.Writer so all
// events for one weight version or run land on one partition, in order.
func NewPublisher(cfg config.KafkaConfig, log logging.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	retries := cfg.ProducerRetries
	if retries <= 0 {
		retries = 3
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  retries + 1,
		BatchSize:    batchSize,
		BatchTimeout: time.Second,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
	}
	return &Publisher{writer: writer, logger: log.Named("event_publisher")}, nil
}

// NewPublisherWithWriter wraps an existing writer, for tests.
func NewPublisherWithWriter(w WriterInterface, log logging.Logger) *Publisher {
	return &Publisher{writer: w, logger: log.Named("event_publisher")}
}

// WeightsApproved announces a newly approved weight vector.
func (p *Publisher) WeightsApproved(ctx context.Context, wv decision.WeightVector) error {
	payload := WeightsApprovedPayload{
		VectorID:         wv.ID,
		Version:          wv.Version,
		StakeholderID:    wv.StakeholderID,
		Weights:          wv.Weights,
		ConsistencyRatio: wv.ConsistencyRatio,
		Verdict:          string(wv.Verdict),
		ApprovedAt:       time.Now().UTC(),
	}
	key := []byte(fmt.Sprintf("v%d", wv.Version))
	return p.publish(ctx, TopicWeightsApproved, EventWeightsApproved, key, payload)
}

// CalculationCompleted announces a finished run with its audit summary.
func (p *Publisher) CalculationCompleted(ctx context.Context, result *decision.CalculationResult) error {
	if result == nil {
		return errors.New(errors.ErrCodeValidation, "calculation result required")
	}
	methodCounts := make(map[string]int, len(result.Audit.MethodCounts))
	for method, n := range result.Audit.MethodCounts {
		methodCounts[string(method)] = n
	}
	payload := CalculationCompletedPayload{
		RunID:         result.RunID,
		Trigger:       string(result.Audit.Trigger),
		WeightVersion: result.Audit.WeightVersion,
		ItemCount:     result.Audit.ItemCount,
		Partial:       result.Partial,
		MethodCounts:  methodCounts,
		CacheHits:     result.Audit.CacheHits,
		CacheMisses:   result.Audit.CacheMisses,
		DurationMS:    result.Audit.DurationMS,
		FinishedAt:    time.Time(result.Audit.FinishedAt).UTC(),
	}
	return p.publish(ctx, TopicCalculationCompleted, EventCalculationCompleted,
		[]byte(result.RunID), payload)
}

// ItemsChanged forwards an upstream item-change notification, used by
// tooling that detects attribute edits outside the engine.
func (p *Publisher) ItemsChanged(ctx context.Context, itemIDs []string, source string) error {
	if len(itemIDs) == 0 {
		return errors.New(errors.ErrCodeValidation, "item IDs required")
	}
	payload := ItemsChangedPayload{
		ItemIDs:   itemIDs,
		Source:    source,
		ChangedAt: time.Now().UTC(),
	}
	return p.publish(ctx, TopicItemsChanged, EventItemsChanged, []byte(itemIDs[0]), payload)
}

// DeadLetter forwards a message the consumer gave up on to the dead-letter
// topic, preserving the original bytes and recording where it came from and
// why it was dropped.
func (p *Publisher) DeadLetter(ctx context.Context, original kafka.Message, reason string) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	msg := kafka.Message{
		Topic: TopicDeadLetter,
		Key:   original.Key,
		Value: original.Value,
		Headers: []kafka.Header{
			{Key: "origin_topic", Value: []byte(original.Topic)},
			{Key: "reason", Value: []byte(reason)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.failed.Add(1)
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to publish dead letter")
	}
	p.published.Add(1)
	p.logger.Warn("message routed to dead letter",
		logging.String("origin_topic", original.Topic),
		logging.Int64("offset", original.Offset),
		logging.String("reason", reason),
	)
	return nil
}

func (p *Publisher) publish(ctx context.Context, topic, eventType string, key []byte, payload interface{}) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	env, err := NewEventEnvelope(eventType, sourceService, payload)
	if err != nil {
		return err
	}
	msg, err := env.toMessage(topic, key)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.failed.Add(1)
		return errors.Wrapf(err, errors.ErrCodeExternalService, "failed to publish %s event", eventType)
	}
	p.published.Add(1)

	p.logger.Debug("event published",
		logging.String("topic", topic),
		logging.String("event_type", eventType),
		logging.String("event_id", env.EventID),
		logging.Duration("latency", time.Since(start)),
	)
	return nil
}

// Published returns the count of successfully published events.
func (p *Publisher) Published() int64 { return p.published.Load() }

// Failed returns the count of failed publishes.
func (p *Publisher) Failed() int64 { return p.failed.Load() }

// Close flushes and shuts the writer down.  Idempotent.
func (p *Publisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("event publisher closed", logging.Int64("published", p.published.Load()))
	return err
}
