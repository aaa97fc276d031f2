package scoring

import (
	"sort"

	"github.com/turtacn/PriorityCraft/internal/domain/criterion"
	"github.com/turtacn/PriorityCraft/internal/domain/item"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// Scorer combines normalized per-criterion scores with a weight vector into
// one weighted total per item.
type Scorer struct {
	normalizer *Normalizer
}

// NewScorer builds a Scorer over the given normalizer.
func NewScorer(n *Normalizer) *Scorer {
	return &Scorer{normalizer: n}
}

// Normalizer exposes the scorer's normalizer, letting the orchestrator
// compute batch stats once and reuse them across workers.
func (s *Scorer) Normalizer() *Normalizer { return s.normalizer }

// ScoreOne produces the baseline Score Record for a single item against a
// criterion set whose weights are the approved weight vector.  stats must
// come from ComputeStats over the item's batch.
func (s *Scorer) ScoreOne(set *criterion.Set, stats *BatchStats, it item.WorkItem, runID string) decision.ScoreRecord {
	norm := s.normalizer.Normalize(set, stats, it)

	contributions := make(map[string]float64, set.Len())
	total := 0.0
	for _, id := range set.IDs() {
		c, _ := set.Get(id)
		contrib := norm.Scores[id] * c.Weight
		contributions[id] = contrib
		total += contrib
	}

	return decision.ScoreRecord{
		ItemID:        it.ID,
		RunID:         runID,
		Total:         total,
		Contributions: contributions,
		Confidence:    norm.Confidence,
		Method:        decision.MethodBaseline,
		Warnings:      norm.Warnings,
		Fingerprint:   it.Fingerprint(),
		ScoredAt:      common.NewTimestamp(),
	}
}

// ScoreBatch computes batch statistics once, then scores every item
// sequentially.  The orchestrator uses ComputeStats plus ScoreOne directly
// when it wants bounded parallelism; ScoreBatch is the simple path used by
// the CLI and by tests.
func (s *Scorer) ScoreBatch(set *criterion.Set, items []item.WorkItem, runID string) ([]decision.ScoreRecord, error) {
	if len(items) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyBatch, "scoring batch contains no items")
	}
	stats := s.normalizer.ComputeStats(set, items)

	records := make([]decision.ScoreRecord, len(items))
	for i, it := range items {
		records[i] = s.ScoreOne(set, stats, it, runID)
	}
	return records, nil
}

// Rank orders score records into the final ranking: stable sort by total
// descending, ties broken by item ID ascending for determinism.
func Rank(records []decision.ScoreRecord) []decision.RankedItem {
	sorted := make([]decision.ScoreRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Total != sorted[j].Total {
			return sorted[i].Total > sorted[j].Total
		}
		return sorted[i].ItemID < sorted[j].ItemID
	})

	ranked := make([]decision.RankedItem, len(sorted))
	for i, rec := range sorted {
		ranked[i] = decision.RankedItem{
			Rank:   i + 1,
			ItemID: rec.ItemID,
			Score:  rec,
		}
	}
	return ranked
}
