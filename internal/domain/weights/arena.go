// Package weights owns the lifecycle of derived weight vectors: an
// append-only arena of immutable versions, the approval audit trail, and the
// persistence contract behind them.  Versions are copy-on-write; in-flight
// calculation runs pin a version and are never affected by later approvals.
package weights

import (
	"context"
	"sync"

	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// Arena is the in-memory, append-only store of weight-vector versions.
// Vectors are immutable once inserted; approvals accumulate as audit
// entries.  Safe for concurrent use: readers pin a version and never
// observe a torn write.
type Arena struct {
	mu sync.RWMutex

	byVersion map[int]*decision.WeightVector
	byID      map[common.ID]*decision.WeightVector
	approvals map[common.ID][]decision.Approval
	latest    int

	// requiredApprovals is how many distinct approvers must sign before a
	// vector counts as approved.
	requiredApprovals int
}

// NewArena builds an empty arena.  requiredApprovals < 1 defaults to 1.
func NewArena(requiredApprovals int) *Arena {
	if requiredApprovals < 1 {
		requiredApprovals = 1
	}
	return &Arena{
		byVersion:         make(map[int]*decision.WeightVector),
		byID:              make(map[common.ID]*decision.WeightVector),
		approvals:         make(map[common.ID][]decision.Approval),
		requiredApprovals: requiredApprovals,
	}
}

// Append inserts a new weight vector, assigning it the next version number.
// The stored copy is private to the arena; the returned vector is a
// snapshot the caller may keep.
func (a *Arena) Append(wv decision.WeightVector) decision.WeightVector {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.latest++
	wv.Version = a.latest
	if wv.ID == "" {
		wv.ID = common.NewID()
	}
	if wv.CreatedAt == (common.Timestamp{}) {
		wv.CreatedAt = common.NewTimestamp()
	}

	stored := cloneVector(wv)
	a.byVersion[stored.Version] = stored
	a.byID[stored.ID] = stored
	return wv
}

// Get returns a snapshot of the vector with the given ID.
func (a *Arena) Get(id common.ID) (decision.WeightVector, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	wv, ok := a.byID[id]
	if !ok {
		return decision.WeightVector{}, errors.Newf(errors.ErrCodeWeightVectorNotFound,
			"weight vector %s not found", id)
	}
	return *cloneVector(*wv), nil
}

// GetVersion returns a snapshot of the vector with the given version.
func (a *Arena) GetVersion(version int) (decision.WeightVector, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	wv, ok := a.byVersion[version]
	if !ok {
		return decision.WeightVector{}, errors.Newf(errors.ErrCodeWeightVectorNotFound,
			"weight vector version %d not found", version)
	}
	return *cloneVector(*wv), nil
}

// LatestApproved returns a snapshot of the highest-version approved vector.
func (a *Arena) LatestApproved() (decision.WeightVector, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for v := a.latest; v >= 1; v-- {
		if wv, ok := a.byVersion[v]; ok && wv.Approved {
			return *cloneVector(*wv), nil
		}
	}
	return decision.WeightVector{}, errors.New(errors.ErrCodeWeightVectorNotFound,
		"no approved weight vector exists")
}

// Approve appends an approval audit entry for the vector.  The same
// approver cannot sign twice.  Once the required number of distinct
// approvers have signed, the vector's Approved flag flips — the only
// mutation the arena ever performs, and a monotonic one.
func (a *Arena) Approve(id common.ID, approver common.StakeholderID) (decision.Approval, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	wv, ok := a.byID[id]
	if !ok {
		return decision.Approval{}, false, errors.Newf(errors.ErrCodeWeightVectorNotFound,
			"weight vector %s not found", id)
	}
	if wv.Verdict == decision.ConsistencyRejected {
		return decision.Approval{}, false, errors.Newf(errors.ErrCodeConsistencyRejected,
			"weight vector %s was rejected for inconsistency and cannot be approved", id)
	}
	for _, ap := range a.approvals[id] {
		if ap.ApproverID == approver {
			return decision.Approval{}, false, errors.Newf(errors.ErrCodeDuplicateApproval,
				"approver %s already signed weight vector %s", approver, id)
		}
	}

	entry := decision.Approval{
		ID:             common.NewID(),
		WeightVectorID: id,
		ApproverID:     approver,
		ApprovedAt:     common.NewTimestamp(),
	}
	a.approvals[id] = append(a.approvals[id], entry)

	if !wv.Approved && len(a.approvals[id]) >= a.requiredApprovals {
		wv.Approved = true
	}
	return entry, wv.Approved, nil
}

// Restore re-inserts a persisted vector with its approval trail, keeping
// its original version number.  Used on startup to rebuild the arena from
// the repository; Append must not run concurrently with Restore.
func (a *Arena) Restore(wv decision.WeightVector, approvals []decision.Approval) error {
	if wv.Version < 1 {
		return errors.Newf(errors.ErrCodeValidation,
			"cannot restore weight vector %s without a version", wv.ID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.byVersion[wv.Version]; exists {
		return errors.Newf(errors.ErrCodeVersionConflict,
			"weight vector version %d already present", wv.Version)
	}

	stored := cloneVector(wv)
	a.byVersion[stored.Version] = stored
	a.byID[stored.ID] = stored
	if stored.Version > a.latest {
		a.latest = stored.Version
	}
	if len(approvals) > 0 {
		trail := make([]decision.Approval, len(approvals))
		copy(trail, approvals)
		a.approvals[stored.ID] = trail
	}
	return nil
}

// Approvals returns the approval audit trail for a vector, oldest first.
func (a *Arena) Approvals(id common.ID) []decision.Approval {
	a.mu.RLock()
	defer a.mu.RUnlock()

	src := a.approvals[id]
	out := make([]decision.Approval, len(src))
	copy(out, src)
	return out
}

// LatestVersion returns the highest version number appended so far.
func (a *Arena) LatestVersion() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

func cloneVector(wv decision.WeightVector) *decision.WeightVector {
	clone := wv
	clone.Weights = make(map[string]float64, len(wv.Weights))
	for k, v := range wv.Weights {
		clone.Weights[k] = v
	}
	return &clone
}

// Repository abstracts weight-vector persistence.  The arena is the
// in-process authority; the repository provides durability and recovery.
type Repository interface {
	SaveVector(ctx context.Context, wv decision.WeightVector) error
	GetVector(ctx context.Context, id common.ID) (decision.WeightVector, error)
	GetVectorByVersion(ctx context.Context, version int) (decision.WeightVector, error)
	LatestApproved(ctx context.Context) (decision.WeightVector, error)
	SaveApproval(ctx context.Context, ap decision.Approval) error
	ListApprovals(ctx context.Context, id common.ID) ([]decision.Approval, error)
	MarkApproved(ctx context.Context, id common.ID) error
	ListVectors(ctx context.Context, limit int) ([]decision.WeightVector, error)
}
