// Package kafka publishes the engine's lifecycle events — weight-vector
// approvals, completed calculation runs, item changes — onto the audit
// stream, and consumes item-change events for incremental recalculation.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
)

// Topic constants.
const (
	TopicWeightsApproved       = "prioritycraft.weights.approved"
	TopicCalculationCompleted  = "prioritycraft.calculation.completed"
	TopicItemsChanged          = "prioritycraft.items.changed"
	TopicDeadLetter            = "prioritycraft.dead_letter"
)

// Event types carried in the envelope header.
const (
	EventWeightsApproved      = "weights.approved"
	EventCalculationCompleted = "calculation.completed"
	EventItemsChanged         = "items.changed"
)

// EventEnvelope standardizes every message on the stream.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	TraceID       string            `json:"trace_id,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// WeightsApprovedPayload announces that a weight vector reached quorum and
// became the active version for subsequent runs.
type WeightsApprovedPayload struct {
	VectorID         common.ID            `json:"vector_id"`
	Version          int                  `json:"version"`
	StakeholderID    common.StakeholderID `json:"stakeholder_id"`
	Weights          map[string]float64   `json:"weights"`
	ConsistencyRatio float64              `json:"consistency_ratio"`
	Verdict          string               `json:"verdict"`
	ApprovedAt       time.Time            `json:"approved_at"`
}

// CalculationCompletedPayload summarizes a finished run.  Full score
// records live in the database; the event carries the audit summary only.
type CalculationCompletedPayload struct {
	RunID         string         `json:"run_id"`
	Trigger       string         `json:"trigger"`
	WeightVersion int            `json:"weight_version"`
	ItemCount     int            `json:"item_count"`
	Partial       bool           `json:"partial"`
	MethodCounts  map[string]int `json:"method_counts"`
	CacheHits     int            `json:"cache_hits"`
	CacheMisses   int            `json:"cache_misses"`
	DurationMS    int64          `json:"duration_ms"`
	FinishedAt    time.Time      `json:"finished_at"`
}

// ItemsChangedPayload notifies the engine that work-item attributes changed
// upstream; the worker turns it into an incremental recalculation.
type ItemsChangedPayload struct {
	ItemIDs   []string  `json:"item_ids"`
	Source    string    `json:"source"`
	ChangedAt time.Time `json:"changed_at"`
}

// NewEventEnvelope wraps payload in a versioned envelope.
func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal event payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "v1",
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the envelope payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeValidation, "event payload is empty")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode event payload")
	}
	return nil
}

func (e *EventEnvelope) toMessage(topic string, key []byte) (kafka.Message, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal event envelope")
	}
	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(e.EventType)},
		{Key: "source_service", Value: []byte(e.Source)},
		{Key: "schema_version", Value: []byte(e.SchemaVersion)},
	}
	if e.TraceID != "" {
		headers = append(headers, kafka.Header{Key: "trace_id", Value: []byte(e.TraceID)})
	}
	return kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   val,
		Headers: headers,
		Time:    e.Timestamp,
	}, nil
}

// decodeEnvelope parses a raw message back into an EventEnvelope.
func decodeEnvelope(msg kafka.Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal event envelope")
	}
	return &env, nil
}

// TopicConfig describes one topic for EnsureTopics.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
}

// DefaultTopics lists the topics the engine needs at startup.
func DefaultTopics() []TopicConfig {
	return []TopicConfig{
		{Name: TopicWeightsApproved, NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 90 * 24 * 3600 * 1000},
		{Name: TopicCalculationCompleted, NumPartitions: 6, ReplicationFactor: 1, RetentionMs: 30 * 24 * 3600 * 1000},
		{Name: TopicItemsChanged, NumPartitions: 6, ReplicationFactor: 1, RetentionMs: 7 * 24 * 3600 * 1000},
		{Name: TopicDeadLetter, NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 30 * 24 * 3600 * 1000},
	}
}

// ConnInterface abstracts kafka.Conn for tests.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates the engine's topics on the cluster.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

// NewTopicManager dials the first broker.
func NewTopicManager(brokers []string, log logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to dial kafka broker")
	}
	return &TopicManager{conn: conn, logger: log.Named("topic_manager")}, nil
}

// NewTopicManagerWithConn wraps an existing connection, for tests.
func NewTopicManagerWithConn(conn ConnInterface, log logging.Logger) *TopicManager {
	return &TopicManager{conn: conn, logger: log.Named("topic_manager")}
}

// EnsureTopics creates each topic, tolerating ones that already exist.
func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	for _, t := range topics {
		if t.Name == "" || t.NumPartitions < 1 || t.ReplicationFactor < 1 {
			return errors.Newf(errors.ErrCodeValidation, "invalid topic config %q", t.Name)
		}
		cfg := kafka.TopicConfig{
			Topic:             t.Name,
			NumPartitions:     t.NumPartitions,
			ReplicationFactor: t.ReplicationFactor,
		}
		if t.RetentionMs > 0 {
			cfg.ConfigEntries = append(cfg.ConfigEntries, kafka.ConfigEntry{
				ConfigName:  "retention.ms",
				ConfigValue: fmt.Sprintf("%d", t.RetentionMs),
			})
		}
		if err := m.conn.CreateTopics(cfg); err != nil {
			if exists, _ := m.topicExists(t.Name); exists {
				continue
			}
			return errors.Wrapf(err, errors.ErrCodeExternalService, "failed to create topic %s", t.Name)
		}
		m.logger.Info("topic created", logging.String("topic", t.Name))
	}
	return nil
}

func (m *TopicManager) topicExists(name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, err
	}
	return len(partitions) > 0, nil
}

// Close releases the broker connection.
func (m *TopicManager) Close() error {
	return m.conn.Close()
}
