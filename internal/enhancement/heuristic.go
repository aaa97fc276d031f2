package enhancement

import (
	"context"

	"github.com/turtacn/PriorityCraft/internal/domain/item"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// HeuristicTier applies local, deterministic coaching rules when the
// advisor is unavailable: it damps the totals of items scored from
// incomplete or low-quality data so that well-evidenced items rank ahead of
// equally-scored guesses.  It never fails and costs no I/O, which makes it
// the natural last tier before the raw baseline.
type HeuristicTier struct {
	// QualityWeight controls how strongly confidence modulates the total;
	// 0 defaults to 0.1 (a full-confidence item keeps its score, a
	// floor-confidence item loses up to 10%).
	QualityWeight float64
}

// NewHeuristicTier builds the tier with the default quality weight.
func NewHeuristicTier() *HeuristicTier { return &HeuristicTier{} }

func (t *HeuristicTier) Name() string { return "heuristic" }

func (t *HeuristicTier) Method() decision.MethodUsed { return decision.MethodCoaching }

// Enhance rescales the baseline total by a data-quality factor derived from
// the record's confidence.  The adjustment is order-preserving for items of
// equal confidence and penalizes thin evidence in close races.
func (t *HeuristicTier) Enhance(ctx context.Context, _ item.WorkItem, baseline decision.ScoreRecord) (decision.ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return decision.ScoreRecord{}, err
	}

	qw := t.QualityWeight
	if qw <= 0 {
		qw = 0.1
	}

	factor := (1 - qw) + qw*baseline.Confidence
	rec := baseline
	rec.Total = baseline.Total * factor
	if rec.Total > 1 {
		rec.Total = 1
	}
	rec.Method = decision.MethodCoaching
	rec.ScoredAt = common.NewTimestamp()
	return rec, nil
}
