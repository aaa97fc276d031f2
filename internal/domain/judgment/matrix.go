// Package judgment turns stakeholder pairwise comparisons into normalized
// criterion weights: matrix construction and validation, principal-eigenvector
// extraction with a column-average fallback, consistency measurement, and
// weight-sensitivity analysis.
package judgment

import (
	"math"

	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

const (
	// ScaleMin and ScaleMax bound the reciprocal 1–9 preference scale.
	ScaleMin = 1.0 / 9.0
	ScaleMax = 9.0

	// reciprocityTolerance is the permitted relative deviation between
	// a[i][j] and 1/a[j][i].
	reciprocityTolerance = 1e-6

	// diagonalTolerance is the permitted deviation of diagonal cells from 1.
	diagonalTolerance = 1e-9
)

// Matrix is a validated n×n reciprocal comparison matrix over an ordered set
// of criterion IDs.  Construction enforces reciprocity, a unit diagonal, and
// the preference scale; a Matrix in hand is always well-formed.
type Matrix struct {
	ids   []string
	index map[string]int
	cells [][]float64
}

// NewMatrix validates cells against ids and returns the Matrix.  The cell
// layout follows ids: cells[i][j] answers "how many times more important is
// ids[i] than ids[j]".
func NewMatrix(ids []string, cells [][]float64) (*Matrix, error) {
	n := len(ids)
	if n == 0 {
		return nil, errors.Validation("comparison matrix requires at least one criterion")
	}
	if len(cells) != n {
		return nil, errors.Newf(errors.ErrCodeValidation,
			"comparison matrix has %d rows, expected %d", len(cells), n)
	}
	index := make(map[string]int, n)
	for i, id := range ids {
		if _, dup := index[id]; dup {
			return nil, errors.Newf(errors.ErrCodeValidation, "duplicate criterion id %s", id)
		}
		index[id] = i
		if len(cells[i]) != n {
			return nil, errors.Newf(errors.ErrCodeValidation,
				"comparison matrix row %d has %d columns, expected %d", i, len(cells[i]), n)
		}
	}

	for i := 0; i < n; i++ {
		if math.Abs(cells[i][i]-1.0) > diagonalTolerance {
			return nil, errors.Newf(errors.ErrCodeMatrixDiagonal,
				"diagonal cell (%s,%s) is %g, expected 1", ids[i], ids[i], cells[i][i])
		}
		for j := 0; j < n; j++ {
			v := cells[i][j]
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return nil, errors.Newf(errors.ErrCodePreferenceOutOfScale,
					"cell (%s,%s) holds invalid preference %g", ids[i], ids[j], v)
			}
			if v < ScaleMin-reciprocityTolerance || v > ScaleMax+reciprocityTolerance {
				return nil, errors.Newf(errors.ErrCodePreferenceOutOfScale,
					"cell (%s,%s) preference %g is outside the reciprocal 1-9 scale", ids[i], ids[j], v)
			}
			if i < j {
				recip := cells[j][i]
				if math.Abs(v*recip-1.0) > reciprocityTolerance*math.Max(1.0, v*recip) {
					return nil, errors.Newf(errors.ErrCodeMatrixNotReciprocal,
						"cells (%s,%s)=%g and (%s,%s)=%g are not reciprocal",
						ids[i], ids[j], v, ids[j], ids[i], recip)
				}
			}
		}
	}

	return &Matrix{ids: ids, index: index, cells: cells}, nil
}

// NewMatrixFromJudgments assembles a complete reciprocal matrix from a set
// of pairwise judgments over ids.  Each unordered pair must be covered
// exactly once; reciprocals and the unit diagonal are filled in.
func NewMatrixFromJudgments(ids []string, judgments []decision.Judgment) (*Matrix, error) {
	n := len(ids)
	if n == 0 {
		return nil, errors.Validation("comparison matrix requires at least one criterion")
	}
	index := make(map[string]int, n)
	for i, id := range ids {
		index[id] = i
	}

	cells := make([][]float64, n)
	seen := make([][]bool, n)
	for i := range cells {
		cells[i] = make([]float64, n)
		seen[i] = make([]bool, n)
		cells[i][i] = 1.0
		seen[i][i] = true
	}

	for _, j := range judgments {
		li, ok := index[j.Left]
		if !ok {
			return nil, errors.Newf(errors.ErrCodeCriterionUnknown,
				"judgment references unknown criterion %s", j.Left)
		}
		ri, ok := index[j.Right]
		if !ok {
			return nil, errors.Newf(errors.ErrCodeCriterionUnknown,
				"judgment references unknown criterion %s", j.Right)
		}
		if li == ri {
			if math.Abs(j.Preference-1.0) > diagonalTolerance {
				return nil, errors.Newf(errors.ErrCodeMatrixDiagonal,
					"self-comparison for %s must be 1, got %g", j.Left, j.Preference)
			}
			continue
		}
		p := j.Preference
		if math.IsNaN(p) || math.IsInf(p, 0) || p < ScaleMin || p > ScaleMax {
			return nil, errors.Newf(errors.ErrCodePreferenceOutOfScale,
				"judgment (%s,%s) preference %g is outside the reciprocal 1-9 scale",
				j.Left, j.Right, p)
		}
		if seen[li][ri] {
			// A duplicate must agree with the earlier judgment (directly or
			// as its reciprocal).
			if math.Abs(cells[li][ri]-p) > reciprocityTolerance {
				return nil, errors.Newf(errors.ErrCodeMatrixNotReciprocal,
					"conflicting judgments for pair (%s,%s): %g vs %g",
					j.Left, j.Right, cells[li][ri], p)
			}
			continue
		}
		cells[li][ri] = p
		cells[ri][li] = 1.0 / p
		seen[li][ri] = true
		seen[ri][li] = true
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if !seen[i][j] {
				return nil, errors.Newf(errors.ErrCodeJudgmentSetIncomplete,
					"no judgment covers the pair (%s,%s)", ids[i], ids[j])
			}
		}
	}

	return &Matrix{ids: ids, index: index, cells: cells}, nil
}

// Size returns the matrix dimension n.
func (m *Matrix) Size() int { return len(m.ids) }

// IDs returns the criterion IDs in matrix order.
func (m *Matrix) IDs() []string {
	out := make([]string, len(m.ids))
	copy(out, m.ids)
	return out
}

// Cell returns a[i][j].
func (m *Matrix) Cell(i, j int) float64 { return m.cells[i][j] }
