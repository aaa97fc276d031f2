package weights

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

func sampleVector(stakeholder string) decision.WeightVector {
	return decision.WeightVector{
		StakeholderID:    common.StakeholderID(stakeholder),
		Weights:          map[string]float64{"value": 0.6, "risk": 0.4},
		ConsistencyRatio: 0.03,
		Verdict:          decision.ConsistencyAccepted,
	}
}

func TestArena_AppendAssignsVersions(t *testing.T) {
	a := NewArena(1)

	v1 := a.Append(sampleVector("alice"))
	v2 := a.Append(sampleVector("bob"))

	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, 2, v2.Version)
	assert.NotEmpty(t, v1.ID)
	assert.Equal(t, 2, a.LatestVersion())
}

func TestArena_GetReturnsSnapshot(t *testing.T) {
	a := NewArena(1)
	v := a.Append(sampleVector("alice"))

	got, err := a.Get(v.ID)
	require.NoError(t, err)

	// Mutating the snapshot must not affect the stored copy.
	got.Weights["value"] = 0.99
	again, err := a.Get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.6, again.Weights["value"])
}

func TestArena_GetNotFound(t *testing.T) {
	a := NewArena(1)
	_, err := a.Get(common.NewID())
	assert.True(t, errors.IsCode(err, errors.ErrCodeWeightVectorNotFound))

	_, err = a.GetVersion(7)
	assert.True(t, errors.IsCode(err, errors.ErrCodeWeightVectorNotFound))
}

func TestArena_Approve(t *testing.T) {
	a := NewArena(1)
	v := a.Append(sampleVector("alice"))

	entry, approved, err := a.Approve(v.ID, "approver-1")
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Equal(t, v.ID, entry.WeightVectorID)

	got, err := a.Get(v.ID)
	require.NoError(t, err)
	assert.True(t, got.Approved)
}

func TestArena_ApproveRequiresQuorum(t *testing.T) {
	a := NewArena(2)
	v := a.Append(sampleVector("alice"))

	_, approved, err := a.Approve(v.ID, "approver-1")
	require.NoError(t, err)
	assert.False(t, approved)

	_, approved, err = a.Approve(v.ID, "approver-2")
	require.NoError(t, err)
	assert.True(t, approved)

	assert.Len(t, a.Approvals(v.ID), 2)
}

func TestArena_DuplicateApprovalRejected(t *testing.T) {
	a := NewArena(2)
	v := a.Append(sampleVector("alice"))

	_, _, err := a.Approve(v.ID, "approver-1")
	require.NoError(t, err)

	_, _, err = a.Approve(v.ID, "approver-1")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDuplicateApproval))
	assert.Len(t, a.Approvals(v.ID), 1)
}

func TestArena_RejectedVectorCannotBeApproved(t *testing.T) {
	a := NewArena(1)
	wv := sampleVector("alice")
	wv.Verdict = decision.ConsistencyRejected
	v := a.Append(wv)

	_, _, err := a.Approve(v.ID, "approver-1")
	assert.True(t, errors.IsCode(err, errors.ErrCodeConsistencyRejected))
}

func TestArena_LatestApproved(t *testing.T) {
	a := NewArena(1)

	_, err := a.LatestApproved()
	assert.True(t, errors.IsNotFound(err))

	v1 := a.Append(sampleVector("alice"))
	v2 := a.Append(sampleVector("bob"))
	_ = v2

	_, _, err = a.Approve(v1.ID, "approver-1")
	require.NoError(t, err)

	got, err := a.LatestApproved()
	require.NoError(t, err)
	assert.Equal(t, v1.Version, got.Version)

	// Approving a later version moves the pointer.
	_, _, err = a.Approve(v2.ID, "approver-1")
	require.NoError(t, err)

	got, err = a.LatestApproved()
	require.NoError(t, err)
	assert.Equal(t, v2.Version, got.Version)
}

func TestArena_RestoreRebuildsState(t *testing.T) {
	a := NewArena(2)

	wv := sampleVector("alice")
	wv.ID = common.NewID()
	wv.Version = 3
	wv.Approved = true
	trail := []decision.Approval{
		{ID: common.NewID(), WeightVectorID: wv.ID, ApproverID: "approver-1"},
		{ID: common.NewID(), WeightVectorID: wv.ID, ApproverID: "approver-2"},
	}
	require.NoError(t, a.Restore(wv, trail))

	assert.Equal(t, 3, a.LatestVersion())
	got, err := a.LatestApproved()
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version)
	assert.Len(t, a.Approvals(wv.ID), 2)

	// New appends continue after the restored version.
	next := a.Append(sampleVector("bob"))
	assert.Equal(t, 4, next.Version)
}

func TestArena_RestoreRejectsDuplicatesAndUnversioned(t *testing.T) {
	a := NewArena(1)

	wv := sampleVector("alice")
	wv.ID = common.NewID()
	wv.Version = 1
	require.NoError(t, a.Restore(wv, nil))

	err := a.Restore(wv, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeVersionConflict))

	bad := sampleVector("bob")
	bad.ID = common.NewID()
	err = a.Restore(bad, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestArena_ConcurrentAppendAndRead(t *testing.T) {
	a := NewArena(1)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := a.Append(sampleVector(fmt.Sprintf("s-%d", i)))
			got, err := a.Get(v.ID)
			assert.NoError(t, err)
			assert.Equal(t, v.Version, got.Version)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, a.LatestVersion())
}
