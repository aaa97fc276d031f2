package kafka

import (
	"context"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafkago.Message
	writeErr error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return w.writeErr
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) last(t *testing.T) kafkago.Message {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	require.NotEmpty(t, w.messages)
	return w.messages[len(w.messages)-1]
}

func testWeightVector() decision.WeightVector {
	return decision.WeightVector{
		ID:               common.NewID(),
		Version:          3,
		StakeholderID:    "alice",
		Weights:          map[string]float64{"value": 0.5, "risk": 0.3, "gate": 0.2},
		ConsistencyRatio: 0.04,
		Verdict:          decision.ConsistencyAccepted,
		Approved:         true,
	}
}

func TestPublisher_WeightsApproved(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewPublisherWithWriter(writer, logging.NewNopLogger())

	err := pub.WeightsApproved(context.Background(), testWeightVector())
	require.NoError(t, err)

	msg := writer.last(t)
	assert.Equal(t, TopicWeightsApproved, msg.Topic)
	assert.Equal(t, "v3", string(msg.Key))

	env, err := decodeEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, EventWeightsApproved, env.EventType)
	assert.Equal(t, sourceService, env.Source)
	assert.Equal(t, "v1", env.SchemaVersion)
	assert.NotEmpty(t, env.EventID)

	var payload WeightsApprovedPayload
	require.NoError(t, env.DecodePayload(&payload))
	assert.Equal(t, 3, payload.Version)
	assert.Equal(t, 0.04, payload.ConsistencyRatio)
	assert.Equal(t, string(decision.ConsistencyAccepted), payload.Verdict)
	assert.Len(t, payload.Weights, 3)

	assert.Equal(t, int64(1), pub.Published())
}

func TestPublisher_CalculationCompleted(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewPublisherWithWriter(writer, logging.NewNopLogger())

	result := &decision.CalculationResult{
		RunID:   "run-abc",
		Partial: true,
		Audit: decision.RunAudit{
			RunID:         "run-abc",
			Trigger:       decision.TriggerItemChange,
			WeightVersion: 2,
			ItemCount:     7,
			MethodCounts: map[decision.MethodUsed]int{
				decision.MethodBaseline: 5,
				decision.MethodEnhanced: 2,
			},
			CacheHits:   4,
			CacheMisses: 3,
			DurationMS:  120,
			FinishedAt:  common.NewTimestamp(),
		},
	}
	require.NoError(t, pub.CalculationCompleted(context.Background(), result))

	msg := writer.last(t)
	assert.Equal(t, TopicCalculationCompleted, msg.Topic)
	assert.Equal(t, "run-abc", string(msg.Key))

	env, err := decodeEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, EventCalculationCompleted, env.EventType)

	var payload CalculationCompletedPayload
	require.NoError(t, env.DecodePayload(&payload))
	assert.Equal(t, "run-abc", payload.RunID)
	assert.Equal(t, string(decision.TriggerItemChange), payload.Trigger)
	assert.Equal(t, 2, payload.WeightVersion)
	assert.Equal(t, 7, payload.ItemCount)
	assert.True(t, payload.Partial)
	assert.Equal(t, 5, payload.MethodCounts[string(decision.MethodBaseline)])
	assert.Equal(t, 2, payload.MethodCounts[string(decision.MethodEnhanced)])
	assert.Equal(t, 4, payload.CacheHits)
}

func TestPublisher_CalculationCompleted_NilResult(t *testing.T) {
	pub := NewPublisherWithWriter(&fakeWriter{}, logging.NewNopLogger())

	err := pub.CalculationCompleted(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestPublisher_WriteFailureWrapped(t *testing.T) {
	writer := &fakeWriter{writeErr: assert.AnError}
	pub := NewPublisherWithWriter(writer, logging.NewNopLogger())

	err := pub.WeightsApproved(context.Background(), testWeightVector())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeExternalService))
	assert.Equal(t, int64(1), pub.Failed())
	assert.Equal(t, int64(0), pub.Published())
}

func TestPublisher_ClosedRejectsPublish(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewPublisherWithWriter(writer, logging.NewNopLogger())
	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close()) // idempotent

	err := pub.WeightsApproved(context.Background(), testWeightVector())
	assert.ErrorIs(t, err, ErrPublisherClosed)
	assert.True(t, writer.closed)
}

func TestPublisher_ItemsChanged(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewPublisherWithWriter(writer, logging.NewNopLogger())

	require.NoError(t, pub.ItemsChanged(context.Background(), []string{"a", "b"}, "jira-sync"))

	msg := writer.last(t)
	assert.Equal(t, TopicItemsChanged, msg.Topic)

	env, err := decodeEnvelope(msg)
	require.NoError(t, err)
	var payload ItemsChangedPayload
	require.NoError(t, env.DecodePayload(&payload))
	assert.Equal(t, []string{"a", "b"}, payload.ItemIDs)
	assert.Equal(t, "jira-sync", payload.Source)

	err = pub.ItemsChanged(context.Background(), nil, "jira-sync")
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestPublisher_DeadLetter(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewPublisherWithWriter(writer, logging.NewNopLogger())

	original := kafkago.Message{
		Topic:  TopicItemsChanged,
		Offset: 42,
		Key:    []byte("item-1"),
		Value:  []byte("not json"),
	}
	require.NoError(t, pub.DeadLetter(context.Background(), original, "undecodable envelope"))

	msg := writer.last(t)
	assert.Equal(t, TopicDeadLetter, msg.Topic)
	assert.Equal(t, original.Key, msg.Key)
	assert.Equal(t, original.Value, msg.Value)

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, TopicItemsChanged, headers["origin_topic"])
	assert.Equal(t, "undecodable envelope", headers["reason"])

	require.NoError(t, pub.Close())
	assert.ErrorIs(t, pub.DeadLetter(context.Background(), original, "x"), ErrPublisherClosed)
}
