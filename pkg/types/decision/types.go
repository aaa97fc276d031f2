// Package decision holds the wire-level data types shared between the
// engine's domain layer, its HTTP surface, and its Kafka event stream:
// weight vectors, score records, ranked items, run audits, and the
// enumerations that classify them.
package decision

import (
	"github.com/turtacn/PriorityCraft/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Enumerations
// ─────────────────────────────────────────────────────────────────────────────

// ConsistencyVerdict classifies a submitted comparison set by its
// consistency ratio.
type ConsistencyVerdict string

const (
	// ConsistencyAccepted: CR at or below the acceptance threshold.
	ConsistencyAccepted ConsistencyVerdict = "accepted"
	// ConsistencyFlagged: CR between the threshold and the ceiling; usable
	// but surfaced for stakeholder review.
	ConsistencyFlagged ConsistencyVerdict = "accepted_with_flag"
	// ConsistencyRejected: CR above the ceiling; the weight vector is not
	// persisted.
	ConsistencyRejected ConsistencyVerdict = "rejected"
)

// MethodUsed records which scoring path produced an item's final score.
type MethodUsed string

const (
	MethodBaseline MethodUsed = "baseline"
	MethodCoaching MethodUsed = "coaching"
	MethodEnhanced MethodUsed = "enhanced"
)

// RunState is the lifecycle state of a calculation run.
type RunState string

const (
	RunStatePending   RunState = "pending"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateCancelled RunState = "cancelled"
	RunStateFailed    RunState = "failed"
)

// RunTrigger records what started a calculation run.
type RunTrigger string

const (
	TriggerManual          RunTrigger = "manual"
	TriggerWeightApproval  RunTrigger = "weight_approval"
	TriggerItemChange      RunTrigger = "item_change"
	TriggerScheduled       RunTrigger = "scheduled"
	TriggerFollowUpVersion RunTrigger = "follow_up_version"
)

// ─────────────────────────────────────────────────────────────────────────────
// Judgments and weight vectors
// ─────────────────────────────────────────────────────────────────────────────

// Judgment is a single pairwise preference on the reciprocal 1–9 scale:
// "Left is Preference times more important than Right".
type Judgment struct {
	Left       string  `json:"left"`
	Right      string  `json:"right"`
	Preference float64 `json:"preference"`
}

// JudgmentPair identifies one cell of the comparison matrix together with
// its contribution to inconsistency; surfaced to stakeholders on rejection.
type JudgmentPair struct {
	Left  string  `json:"left"`
	Right string  `json:"right"`
	Value float64 `json:"value"`
	// Deviation measures how far the judgment sits from the value implied
	// by the derived weights (w_left / w_right).
	Deviation float64 `json:"deviation"`
}

// WeightVector is a versioned, immutable-once-approved set of criterion
// weights derived from a stakeholder's comparison matrix.
type WeightVector struct {
	ID            common.ID            `json:"id"`
	Version       int                  `json:"version"`
	StakeholderID common.StakeholderID `json:"stakeholder_id"`
	// Weights maps criterion ID to its normalized weight; values sum to 1.
	Weights          map[string]float64 `json:"weights"`
	ConsistencyRatio float64            `json:"consistency_ratio"`
	Verdict          ConsistencyVerdict `json:"verdict"`
	Approved         bool               `json:"approved"`
	CreatedAt        common.Timestamp   `json:"created_at"`
}

// Approval is one append-only audit entry recording a stakeholder's
// sign-off on a weight vector.
type Approval struct {
	ID             common.ID            `json:"id"`
	WeightVectorID common.ID            `json:"weight_vector_id"`
	ApproverID     common.StakeholderID `json:"approver_id"`
	ApprovedAt     common.Timestamp     `json:"approved_at"`
}

// SubmitResult is the outcome of submitting a comparison set.
type SubmitResult struct {
	WeightVector *WeightVector `json:"weight_vector,omitempty"`
	Accepted     bool          `json:"accepted"`
	// WorstPairs lists the most inconsistent judgments when the set is
	// rejected or flagged, ordered by descending deviation.
	WorstPairs []JudgmentPair `json:"worst_pairs,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Scores and rankings
// ─────────────────────────────────────────────────────────────────────────────

// ScoreRecord is the full scoring outcome for one item in one run.  Records
// are append-only; a new run supersedes rather than mutates.
type ScoreRecord struct {
	ItemID string  `json:"item_id"`
	RunID  string  `json:"run_id"`
	Total  float64 `json:"total"`
	// Contributions maps criterion ID to normalized_value × weight.
	Contributions map[string]float64 `json:"contributions"`
	// Confidence ∈ [0.1, 1.0]; penalized by missing attributes and
	// degraded enhancement.
	Confidence float64    `json:"confidence"`
	Method     MethodUsed `json:"method"`
	Degraded   bool       `json:"degraded"`
	// Warnings carries non-fatal data-quality notes (unmapped categories,
	// missing attributes).
	Warnings []string `json:"warnings,omitempty"`
	// Fingerprint is the sha256 digest of the item's attributes at scoring
	// time; the cache and incremental recalculation key on it.
	Fingerprint string           `json:"fingerprint"`
	ScoredAt    common.Timestamp `json:"scored_at"`
}

// RankedItem is one row of a calculation result: an item, its score record,
// and its final rank.
type RankedItem struct {
	Rank   int         `json:"rank"`
	ItemID string      `json:"item_id"`
	Score  ScoreRecord `json:"score"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Runs and audit
// ─────────────────────────────────────────────────────────────────────────────

// RunAudit is the per-run audit record: what triggered the run, which
// weight-vector version it pinned, how items were scored, and how the cache
// behaved.
type RunAudit struct {
	RunID         string     `json:"run_id"`
	Trigger       RunTrigger `json:"trigger"`
	WeightVersion int        `json:"weight_version"`
	ItemCount     int        `json:"item_count"`
	// MethodCounts maps MethodUsed to the number of items scored that way.
	MethodCounts map[MethodUsed]int `json:"method_counts"`
	CacheHits    int                `json:"cache_hits"`
	CacheMisses  int                `json:"cache_misses"`
	DurationMS   int64              `json:"duration_ms"`
	StartedAt    common.Timestamp   `json:"started_at"`
	FinishedAt   common.Timestamp   `json:"finished_at"`
}

// RunStatus is the externally visible state of a calculation run.
type RunStatus struct {
	RunID    string   `json:"run_id"`
	State    RunState `json:"state"`
	Progress float64  `json:"progress"` // 0.0–1.0
	// ScoredItems / TotalItems back the progress figure.
	ScoredItems int    `json:"scored_items"`
	TotalItems  int    `json:"total_items"`
	Error       string `json:"error,omitempty"`
}

// CalculationResult bundles everything a completed run produced.
type CalculationResult struct {
	RunID       string       `json:"run_id"`
	RankedItems []RankedItem `json:"ranked_items"`
	Audit       RunAudit     `json:"audit"`
	// Partial is true when the run was cancelled and the ranking covers
	// only the items scored before cancellation.
	Partial bool `json:"partial"`
}

// CalculationOptions controls a single run.
type CalculationOptions struct {
	EnableEnhancement bool `json:"enable_enhancement"`
	// WeightVectorID pins the run to a specific approved weight vector,
	// e.g. to re-rank under a prior version for comparison; empty means
	// the latest approved version.
	WeightVectorID common.ID `json:"weight_vector_id,omitempty"`
	// Filter restricts the run to items matching the item store's filter
	// expression; empty means all items.
	Filter string `json:"filter,omitempty"`
	// ChangedItemIDs, when non-empty, requests incremental recalculation
	// limited to these items plus re-ranking of cached scores.
	ChangedItemIDs []string   `json:"changed_item_ids,omitempty"`
	Trigger        RunTrigger `json:"trigger,omitempty"`
}
