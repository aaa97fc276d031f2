package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorityCraft/internal/domain/criterion"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

func sampleRecord(runID, itemID string, total float64) decision.ScoreRecord {
	return decision.ScoreRecord{
		RunID:         runID,
		ItemID:        itemID,
		Total:         total,
		Contributions: map[string]float64{"value": total * 0.6, "risk": total * 0.4},
		Confidence:    0.9,
		Method:        decision.MethodBaseline,
		Fingerprint:   "fp-" + itemID,
		ScoredAt:      common.NewTimestamp(),
	}
}

func TestRunRepo_ScoresRoundTrip(t *testing.T) {
	conn := postgresConnection(t)
	truncateTables(t, conn, "score_records")
	repo := repositories.NewRunRepo(conn.DB(), testLogger())
	ctx := testContext(t)

	records := []decision.ScoreRecord{
		sampleRecord("run-1", "item-b", 0.42),
		sampleRecord("run-1", "item-a", 0.87),
		sampleRecord("run-1", "item-c", 0.42),
	}
	records[0].Warnings = []string{"missing attribute effort"}
	records[0].Degraded = true
	records[0].Method = decision.MethodCoaching
	require.NoError(t, repo.SaveScores(ctx, records))

	got, err := repo.ListScores(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Ranking order: total descending, item ID breaks the tie.
	assert.Equal(t, "item-a", got[0].ItemID)
	assert.Equal(t, "item-b", got[1].ItemID)
	assert.Equal(t, "item-c", got[2].ItemID)

	assert.Equal(t, decision.MethodCoaching, got[1].Method)
	assert.True(t, got[1].Degraded)
	assert.Equal(t, []string{"missing attribute effort"}, got[1].Warnings)
	assert.InDelta(t, 0.87*0.6, got[0].Contributions["value"], 1e-9)
}

func TestRunRepo_DuplicateScoreRejected(t *testing.T) {
	conn := postgresConnection(t)
	truncateTables(t, conn, "score_records")
	repo := repositories.NewRunRepo(conn.DB(), testLogger())
	ctx := testContext(t)

	require.NoError(t, repo.SaveScores(ctx, []decision.ScoreRecord{
		sampleRecord("run-2", "item-a", 0.5),
	}))

	err := repo.SaveScores(ctx, []decision.ScoreRecord{
		sampleRecord("run-2", "item-a", 0.7),
	})
	require.Error(t, err, "score records are append-only per (run, item)")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))
}

func TestRunRepo_AuditRoundTrip(t *testing.T) {
	conn := postgresConnection(t)
	truncateTables(t, conn, "run_audits")
	repo := repositories.NewRunRepo(conn.DB(), testLogger())
	ctx := testContext(t)

	audit := decision.RunAudit{
		RunID:         "run-3",
		Trigger:       decision.TriggerWeightApproval,
		WeightVersion: 4,
		ItemCount:     120,
		MethodCounts: map[decision.MethodUsed]int{
			decision.MethodBaseline: 100,
			decision.MethodEnhanced: 20,
		},
		CacheHits:   80,
		CacheMisses: 40,
		DurationMS:  1532,
		StartedAt:   common.NewTimestamp(),
		FinishedAt:  common.NewTimestamp(),
	}
	require.NoError(t, repo.SaveAudit(ctx, audit))

	got, err := repo.GetAudit(ctx, "run-3")
	require.NoError(t, err)
	assert.Equal(t, decision.TriggerWeightApproval, got.Trigger)
	assert.Equal(t, 4, got.WeightVersion)
	assert.Equal(t, 120, got.ItemCount)
	assert.Equal(t, audit.MethodCounts, got.MethodCounts)
	assert.Equal(t, 80, got.CacheHits)
	assert.Equal(t, int64(1532), got.DurationMS)

	_, err = repo.GetAudit(ctx, "run-missing")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBatchNotFound))
}

func TestCriterionRepo_SaveAndList(t *testing.T) {
	conn := postgresConnection(t)
	truncateTables(t, conn, "criteria", "weight_vectors")
	repo := repositories.NewCriterionRepo(conn.DB(), testLogger())
	ctx := testContext(t)

	criteria := []*criterion.Criterion{
		{ID: "value", Name: "Business Value", Kind: criterion.KindContinuous, Weight: 0.5, Active: true},
		{ID: "risk", Name: "Delivery Risk", Kind: criterion.KindCategorical, Weight: 0.3, Active: true,
			CategoryMap: map[string]float64{"low": 0.9, "medium": 0.5, "high": 0.1}},
		{ID: "legacy", Name: "Retired Criterion", Kind: criterion.KindContinuous, Weight: 0.2, Active: false},
	}
	for _, c := range criteria {
		require.NoError(t, repo.Save(ctx, c))
	}

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2, "inactive criteria stay out of the working set")
	assert.Equal(t, "risk", active[0].ID)
	assert.Equal(t, "value", active[1].ID)
	assert.Equal(t, 0.9, active[0].CategoryMap["low"])

	got, err := repo.Get(ctx, "risk")
	require.NoError(t, err)
	assert.Equal(t, criterion.KindCategorical, got.Kind)

	_, err = repo.Get(ctx, "velocity")
	assert.True(t, errors.IsCode(err, errors.ErrCodeCriterionUnknown))
}

func TestCriterionRepo_ReferencedCriterionFrozen(t *testing.T) {
	conn := postgresConnection(t)
	truncateTables(t, conn, "criteria", "weight_vectors")
	critRepo := repositories.NewCriterionRepo(conn.DB(), testLogger())
	weightsRepo := repositories.NewWeightVectorRepo(conn.DB(), testLogger())
	ctx := testContext(t)

	c := &criterion.Criterion{ID: "value", Name: "Business Value",
		Kind: criterion.KindContinuous, Weight: 0.5, Active: true}
	require.NoError(t, critRepo.Save(ctx, c))

	wv := storedVector(1, "alice")
	require.NoError(t, weightsRepo.SaveVector(ctx, wv))
	require.NoError(t, weightsRepo.MarkApproved(ctx, wv.ID))

	c.Weight = 0.7
	err := critRepo.Save(ctx, c)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeWeightVectorImmutable))
}
