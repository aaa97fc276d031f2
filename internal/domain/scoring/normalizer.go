// Package scoring converts heterogeneous raw attribute values into unit
// interval scores and combines them with an approved weight vector into one
// weighted total per item.  Normalization statistics are computed once per
// batch per criterion so scoring stays linear in the number of items.
package scoring

import (
	"fmt"

	"github.com/turtacn/PriorityCraft/internal/domain/criterion"
	"github.com/turtacn/PriorityCraft/internal/domain/item"
)

// MissingPolicy selects the substitute for absent attribute values.
type MissingPolicy string

const (
	// MissingFixed substitutes a fixed normalized default.
	MissingFixed MissingPolicy = "fixed"
	// MissingMean substitutes the per-criterion mean of the present
	// normalized values.
	MissingMean MissingPolicy = "mean"
)

// NormalizerOptions tunes the missing-value policy and confidence penalty.
type NormalizerOptions struct {
	Policy MissingPolicy
	// Default is the normalized substitute under MissingFixed, and the
	// last-resort substitute under MissingMean when a criterion has no
	// present values at all.
	Default float64
	// ConfidenceFloor is the minimum confidence regardless of how many
	// attributes were missing.
	ConfidenceFloor float64
}

func (o NormalizerOptions) withDefaults() NormalizerOptions {
	if o.Policy == "" {
		o.Policy = MissingFixed
	}
	if o.Default == 0 {
		o.Default = 0.5
	}
	if o.ConfidenceFloor == 0 {
		o.ConfidenceFloor = 0.1
	}
	return o
}

// criterionStats holds the once-per-batch figures for one criterion.
type criterionStats struct {
	min, max     float64
	hasRange     bool
	presentCount int
	// meanNormalized is the mean of present values after normalization,
	// the substitute under MissingMean.
	meanNormalized float64
}

// BatchStats is the per-criterion statistics snapshot for one batch.
type BatchStats struct {
	byID  map[string]*criterionStats
	total int
}

// ItemCount returns the number of items the stats were computed over.
func (s *BatchStats) ItemCount() int { return s.total }

// Normalizer applies each criterion's value-kind policy against batch
// statistics.
type Normalizer struct {
	opts NormalizerOptions
}

// NewNormalizer builds a Normalizer with opts (zero fields get defaults).
func NewNormalizer(opts NormalizerOptions) *Normalizer {
	return &Normalizer{opts: opts.withDefaults()}
}

// ComputeStats makes two passes over the batch: the first collects the
// observed range of every continuous criterion, the second accumulates the
// per-criterion mean of normalized present values.
func (n *Normalizer) ComputeStats(set *criterion.Set, items []item.WorkItem) *BatchStats {
	stats := &BatchStats{byID: make(map[string]*criterionStats, set.Len()), total: len(items)}
	for _, id := range set.IDs() {
		stats.byID[id] = &criterionStats{}
	}

	// Pass one: ranges.
	for _, it := range items {
		for _, id := range set.IDs() {
			c, _ := set.Get(id)
			if c.Kind != criterion.KindContinuous {
				continue
			}
			raw, ok := it.Attributes[id]
			if !ok {
				continue
			}
			v, numeric := raw.AsNumber()
			if !numeric {
				continue
			}
			cs := stats.byID[id]
			if !cs.hasRange {
				cs.min, cs.max = v, v
				cs.hasRange = true
			} else {
				if v < cs.min {
					cs.min = v
				}
				if v > cs.max {
					cs.max = v
				}
			}
		}
	}

	// Pass two: means of normalized present values.
	sums := make(map[string]float64, set.Len())
	for _, it := range items {
		for _, id := range set.IDs() {
			c, _ := set.Get(id)
			raw, ok := it.Attributes[id]
			if !ok {
				continue
			}
			norm, ok := n.normalizePresent(c, stats.byID[id], raw)
			if !ok {
				continue
			}
			sums[id] += norm
			stats.byID[id].presentCount++
		}
	}
	for id, cs := range stats.byID {
		if cs.presentCount > 0 {
			cs.meanNormalized = sums[id] / float64(cs.presentCount)
		} else {
			cs.meanNormalized = n.opts.Default
		}
	}

	return stats
}

// NormalizedItem is the outcome of normalizing one item: per-criterion unit
// scores, the missing-fraction-driven confidence, and any data-quality
// warnings collected along the way.
type NormalizedItem struct {
	Scores     map[string]float64
	Confidence float64
	Warnings   []string
}

// Normalize maps every criterion of the set onto [0,1] for one item,
// applying the missing-value policy and folding data-quality issues into
// the confidence figure.
func (n *Normalizer) Normalize(set *criterion.Set, stats *BatchStats, it item.WorkItem) NormalizedItem {
	out := NormalizedItem{Scores: make(map[string]float64, set.Len())}
	missing := 0

	for _, id := range set.IDs() {
		c, _ := set.Get(id)
		cs := stats.byID[id]

		raw, present := it.Attributes[id]
		if present {
			if norm, ok := n.normalizePresent(c, cs, raw); ok {
				out.Scores[id] = norm
				if UnmappedLabel(c, raw, true) {
					out.Warnings = append(out.Warnings,
						fmt.Sprintf("criterion %s: item %s has unmapped category %q, defaulted to 0.5", id, it.ID, raw.Label))
				}
				continue
			}
			// Present but uninterpretable for this kind; treat as missing.
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("criterion %s: value of item %s is not usable for kind %s", id, it.ID, c.Kind))
		}

		missing++
		out.Scores[id] = n.missingSubstitute(cs)
		if !present {
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("criterion %s: item %s has no value, defaulted to %.2f", id, it.ID, out.Scores[id]))
		}
	}

	out.Confidence = n.confidence(missing, set.Len())
	return out
}

// normalizePresent converts a present raw value according to the
// criterion's kind.  ok=false means the value cannot be interpreted and the
// missing-value policy applies instead.  Unmapped categorical labels are a
// defined case: they normalize to 0.5 (the caller sees ok=true and no
// missing penalty; the warning is added here being a data-quality issue).
func (n *Normalizer) normalizePresent(c *criterion.Criterion, cs *criterionStats, raw item.Value) (float64, bool) {
	switch c.Kind {
	case criterion.KindContinuous:
		v, numeric := raw.AsNumber()
		if !numeric {
			return 0, false
		}
		if !cs.hasRange || cs.max == cs.min {
			// Degenerate range: every item is equally good.
			return 0.5, true
		}
		return (v - cs.min) / (cs.max - cs.min), true

	case criterion.KindCategorical:
		if raw.Type != item.TypeLabel {
			return 0, false
		}
		if mapped, ok := c.CategoryMap[raw.Label]; ok {
			return mapped, true
		}
		// Unmapped label: defined fallback; Normalize attaches the
		// data-quality warning via UnmappedLabel.
		return 0.5, true

	case criterion.KindThreshold:
		v, numeric := raw.AsNumber()
		if !numeric {
			return 0, false
		}
		if c.PassAbove {
			if v >= c.Threshold {
				return 1, true
			}
			return 0, true
		}
		if v <= c.Threshold {
			return 1, true
		}
		return 0, true

	default:
		return 0, false
	}
}

// UnmappedLabel reports whether raw is a categorical label with no entry in
// the criterion's table; the scorer attaches the data-quality warning.
func UnmappedLabel(c *criterion.Criterion, raw item.Value, present bool) bool {
	if !present || c.Kind != criterion.KindCategorical || raw.Type != item.TypeLabel {
		return false
	}
	_, ok := c.CategoryMap[raw.Label]
	return !ok
}

func (n *Normalizer) missingSubstitute(cs *criterionStats) float64 {
	if n.opts.Policy == MissingMean {
		return cs.meanNormalized
	}
	return n.opts.Default
}

// confidence penalizes proportionally to the missing fraction, floored at
// the configured minimum.
func (n *Normalizer) confidence(missing, total int) float64 {
	if total == 0 {
		return n.opts.ConfidenceFloor
	}
	conf := 1.0 - float64(missing)/float64(total)
	if conf < n.opts.ConfidenceFloor {
		conf = n.opts.ConfidenceFloor
	}
	return conf
}
