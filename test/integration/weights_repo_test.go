package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorityCraft/internal/domain/weights"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

func storedVector(version int, stakeholder string) decision.WeightVector {
	return decision.WeightVector{
		ID:               common.NewID(),
		Version:          version,
		StakeholderID:    common.StakeholderID(stakeholder),
		Weights:          map[string]float64{"value": 0.6, "risk": 0.4},
		ConsistencyRatio: 0.04,
		Verdict:          decision.ConsistencyAccepted,
		CreatedAt:        common.NewTimestamp(),
	}
}

func TestWeightVectorRepo_RoundTrip(t *testing.T) {
	conn := postgresConnection(t)
	truncateTables(t, conn, "weight_vectors")
	repo := repositories.NewWeightVectorRepo(conn.DB(), testLogger())
	ctx := testContext(t)

	wv := storedVector(1, "alice")
	require.NoError(t, repo.SaveVector(ctx, wv))

	byID, err := repo.GetVector(ctx, wv.ID)
	require.NoError(t, err)
	assert.Equal(t, wv.Version, byID.Version)
	assert.Equal(t, wv.Weights, byID.Weights)
	assert.Equal(t, decision.ConsistencyAccepted, byID.Verdict)
	assert.False(t, byID.Approved)

	byVersion, err := repo.GetVectorByVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, wv.ID, byVersion.ID)
}

func TestWeightVectorRepo_VersionCollisionRejected(t *testing.T) {
	conn := postgresConnection(t)
	truncateTables(t, conn, "weight_vectors")
	repo := repositories.NewWeightVectorRepo(conn.DB(), testLogger())
	ctx := testContext(t)

	require.NoError(t, repo.SaveVector(ctx, storedVector(1, "alice")))

	err := repo.SaveVector(ctx, storedVector(1, "bob"))
	require.Error(t, err, "vectors are immutable, a version never updates")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))
}

func TestWeightVectorRepo_ApprovalTrail(t *testing.T) {
	conn := postgresConnection(t)
	truncateTables(t, conn, "weight_vectors")
	repo := repositories.NewWeightVectorRepo(conn.DB(), testLogger())
	ctx := testContext(t)

	wv := storedVector(1, "alice")
	require.NoError(t, repo.SaveVector(ctx, wv))

	for _, approver := range []string{"alice", "bob"} {
		require.NoError(t, repo.SaveApproval(ctx, decision.Approval{
			ID:             common.NewID(),
			WeightVectorID: wv.ID,
			ApproverID:     common.StakeholderID(approver),
			ApprovedAt:     common.NewTimestamp(),
		}))
	}
	require.NoError(t, repo.MarkApproved(ctx, wv.ID))

	trail, err := repo.ListApprovals(ctx, wv.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, common.StakeholderID("alice"), trail[0].ApproverID)
	assert.Equal(t, common.StakeholderID("bob"), trail[1].ApproverID)

	got, err := repo.GetVector(ctx, wv.ID)
	require.NoError(t, err)
	assert.True(t, got.Approved)
}

func TestWeightVectorRepo_LatestApproved(t *testing.T) {
	conn := postgresConnection(t)
	truncateTables(t, conn, "weight_vectors")
	repo := repositories.NewWeightVectorRepo(conn.DB(), testLogger())
	ctx := testContext(t)

	_, err := repo.LatestApproved(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrCodeWeightVectorNotFound))

	v1 := storedVector(1, "alice")
	v2 := storedVector(2, "bob")
	v3 := storedVector(3, "carol")
	for _, wv := range []decision.WeightVector{v1, v2, v3} {
		require.NoError(t, repo.SaveVector(ctx, wv))
	}
	require.NoError(t, repo.MarkApproved(ctx, v1.ID))
	require.NoError(t, repo.MarkApproved(ctx, v2.ID))

	got, err := repo.LatestApproved(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version, "version 3 is unapproved and must not win")
}

func TestWeightVectorRepo_ArenaRecovery(t *testing.T) {
	conn := postgresConnection(t)
	truncateTables(t, conn, "weight_vectors")
	repo := repositories.NewWeightVectorRepo(conn.DB(), testLogger())
	ctx := testContext(t)

	wv := storedVector(5, "alice")
	require.NoError(t, repo.SaveVector(ctx, wv))
	require.NoError(t, repo.SaveApproval(ctx, decision.Approval{
		ID:             common.NewID(),
		WeightVectorID: wv.ID,
		ApproverID:     "alice",
		ApprovedAt:     common.NewTimestamp(),
	}))
	require.NoError(t, repo.MarkApproved(ctx, wv.ID))

	// Simulate a restart: rebuild the arena from the repository.
	arena := weights.NewArena(1)
	vectors, err := repo.ListVectors(ctx, 100)
	require.NoError(t, err)
	for _, v := range vectors {
		approvals, err := repo.ListApprovals(ctx, v.ID)
		require.NoError(t, err)
		require.NoError(t, arena.Restore(v, approvals))
	}

	assert.Equal(t, 5, arena.LatestVersion())
	restored, err := arena.LatestApproved()
	require.NoError(t, err)
	assert.Equal(t, wv.ID, restored.ID)
	assert.Len(t, arena.Approvals(wv.ID), 1)

	// Appends continue after the recovered version.
	next := arena.Append(decision.WeightVector{
		StakeholderID: "bob",
		Weights:       map[string]float64{"value": 0.5, "risk": 0.5},
		Verdict:       decision.ConsistencyAccepted,
	})
	assert.Equal(t, 6, next.Version)
}
