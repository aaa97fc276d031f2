// Package criterion defines the decision criteria against which work items
// are scored: their value kinds, normalization parameters, and the weight-sum
// invariant that every active configuration must satisfy.
package criterion

import (
	"context"
	"math"
	"sort"

	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
)

// WeightSumTolerance is the permitted deviation of the active criteria's
// weight sum from 1.0.
const WeightSumTolerance = 1e-4

// ValueKind selects the normalization policy applied to a criterion's raw
// attribute values.
type ValueKind string

const (
	// KindContinuous: min–max scaled against the observed batch range.
	KindContinuous ValueKind = "continuous"
	// KindCategorical: mapped through a fixed label → [0,1] table.
	KindCategorical ValueKind = "categorical"
	// KindThreshold: binary 0/1 against a configured pass/fail boundary.
	KindThreshold ValueKind = "threshold"
)

// ParseValueKind validates and returns the ValueKind for s.
func ParseValueKind(s string) (ValueKind, error) {
	switch ValueKind(s) {
	case KindContinuous, KindCategorical, KindThreshold:
		return ValueKind(s), nil
	default:
		return "", errors.Newf(errors.ErrCodeUnknownValueKind, "unknown value kind %q", s)
	}
}

// Criterion is one dimension of the decision: how raw item attributes on
// this dimension are normalized, and how much the dimension matters.
type Criterion struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Category string    `json:"category,omitempty"`
	Kind     ValueKind `json:"kind"`

	// Weight in (0,1); immutable once the criterion is referenced by an
	// approved weight vector.
	Weight float64 `json:"weight"`

	// CategoryMap is the label table for KindCategorical criteria.
	CategoryMap map[string]float64 `json:"category_map,omitempty"`

	// Threshold and PassAbove configure KindThreshold criteria: the item
	// scores 1 when its value is >= Threshold (PassAbove) or <= Threshold
	// (!PassAbove), else 0.
	Threshold float64 `json:"threshold,omitempty"`
	PassAbove bool    `json:"pass_above,omitempty"`

	Active    bool             `json:"active"`
	CreatedAt common.Timestamp `json:"created_at"`
}

// Validate checks a single criterion's internal invariants.
func (c *Criterion) Validate() error {
	if c.ID == "" {
		return errors.Validation("criterion id is required")
	}
	if c.Weight <= 0 || c.Weight >= 1 {
		return errors.Newf(errors.ErrCodeWeightSumViolation,
			"criterion %s weight %g must lie in (0, 1)", c.ID, c.Weight)
	}
	switch c.Kind {
	case KindContinuous:
	case KindCategorical:
		if len(c.CategoryMap) == 0 {
			return errors.Newf(errors.ErrCodeValidation,
				"categorical criterion %s requires a non-empty category map", c.ID)
		}
		for label, v := range c.CategoryMap {
			if v < 0 || v > 1 {
				return errors.Newf(errors.ErrCodeValidation,
					"criterion %s category %q maps to %g outside [0, 1]", c.ID, label, v)
			}
		}
	case KindThreshold:
	default:
		return errors.Newf(errors.ErrCodeUnknownValueKind,
			"criterion %s has unknown value kind %q", c.ID, c.Kind)
	}
	return nil
}

// Set is an active criterion configuration.  Lookups are by criterion ID;
// iteration order is deterministic (sorted by ID).
type Set struct {
	byID  map[string]*Criterion
	order []string
}

// NewSet builds a Set from criteria, validating each member and the
// weight-sum invariant: active weights must sum to 1.0 ± 1e-4.
func NewSet(criteria []*Criterion) (*Set, error) {
	if len(criteria) == 0 {
		return nil, errors.Validation("criterion set must not be empty")
	}
	s := &Set{byID: make(map[string]*Criterion, len(criteria))}
	sum := 0.0
	for _, c := range criteria {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.byID[c.ID]; dup {
			return nil, errors.Newf(errors.ErrCodeValidation, "duplicate criterion id %s", c.ID)
		}
		s.byID[c.ID] = c
		s.order = append(s.order, c.ID)
		sum += c.Weight
	}
	if math.Abs(sum-1.0) > WeightSumTolerance {
		return nil, errors.Newf(errors.ErrCodeWeightSumViolation,
			"criterion weights sum to %.6f, expected 1.0 ± %g", sum, WeightSumTolerance)
	}
	sort.Strings(s.order)
	return s, nil
}

// Get returns the criterion with the given ID.
func (s *Set) Get(id string) (*Criterion, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// IDs returns the criterion IDs in sorted order.
func (s *Set) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of criteria in the set.
func (s *Set) Len() int { return len(s.order) }

// Weights returns the criterion-ID → weight map.
func (s *Set) Weights() map[string]float64 {
	out := make(map[string]float64, len(s.byID))
	for id, c := range s.byID {
		out[id] = c.Weight
	}
	return out
}

// Reweighted returns a copy of the set with weights replaced by the supplied
// map.  Used to materialize a solver-derived weight vector onto an existing
// criterion configuration.
func (s *Set) Reweighted(weights map[string]float64) (*Set, error) {
	criteria := make([]*Criterion, 0, len(s.order))
	for _, id := range s.order {
		w, ok := weights[id]
		if !ok {
			return nil, errors.Newf(errors.ErrCodeCriterionUnknown,
				"weight vector is missing criterion %s", id)
		}
		clone := *s.byID[id]
		clone.Weight = w
		criteria = append(criteria, &clone)
	}
	return NewSet(criteria)
}

// Repository abstracts criterion persistence.
type Repository interface {
	// ListActive returns the active criterion configuration.
	ListActive(ctx context.Context) ([]*Criterion, error)

	// Get returns a single criterion by ID.
	Get(ctx context.Context, id string) (*Criterion, error)

	// Save persists a criterion.  Saving a criterion referenced by an
	// approved weight vector must fail with ErrCodeWeightVectorImmutable.
	Save(ctx context.Context, c *Criterion) error
}
