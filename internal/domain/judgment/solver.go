package judgment

import (
	"math"
	"sort"

	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// randomIndexTable holds Saaty's random consistency index for matrix sizes
// 1..15.  Indexed by n-1.
var randomIndexTable = [...]float64{
	0, 0, 0.58, 0.90, 1.12, 1.24, 1.32, 1.41, 1.45, 1.49,
	1.51, 1.48, 1.56, 1.57, 1.59,
}

// randomIndexBeyondTable applies to matrices larger than the table; the
// asymptotic value used by the acceptance thresholds.
const randomIndexBeyondTable = 1.49

// exactSolverMaxSize is the largest matrix solved by power iteration; larger
// matrices go straight to the column-average approximation.
const exactSolverMaxSize = 15

// RandomIndex returns RI(n).
func RandomIndex(n int) float64 {
	if n < 1 {
		return 0
	}
	if n <= len(randomIndexTable) {
		return randomIndexTable[n-1]
	}
	return randomIndexBeyondTable
}

// SolverOptions tunes the eigenvector extraction.
type SolverOptions struct {
	// MaxIterations bounds the power-iteration loop; <=0 selects 100.
	MaxIterations int
	// Tolerance is the L∞ convergence threshold on successive weight
	// vectors; <=0 selects 1e-9.
	Tolerance float64
}

func (o SolverOptions) withDefaults() SolverOptions {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 100
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-9
	}
	return o
}

// Solution is the outcome of solving a comparison matrix: normalized weights
// (summing to 1), the dominant eigenvalue estimate, and the consistency
// measures derived from it.
type Solution struct {
	// Weights follows the matrix's criterion order.
	Weights []float64
	// WeightsByID maps criterion ID to weight.
	WeightsByID map[string]float64

	LambdaMax        float64
	ConsistencyIndex float64
	ConsistencyRatio float64

	// Exact is true when power iteration converged; false when the
	// column-average approximation produced the weights.
	Exact bool
}

// Solve extracts the principal eigenvector of the matrix.  Power iteration
// is used for matrices up to 15 criteria; larger matrices and matrices on
// which iteration fails to converge fall back to the normalized
// column-average approximation.  Solve never panics on degenerate input.
func (m *Matrix) Solve(opts SolverOptions) *Solution {
	opts = opts.withDefaults()
	n := m.Size()

	if n == 1 {
		return m.buildSolution([]float64{1.0}, 1.0, true)
	}

	if n <= exactSolverMaxSize {
		if w, lambda, ok := m.powerIterate(opts); ok {
			return m.buildSolution(w, lambda, true)
		}
	}

	w := m.columnAverage()
	return m.buildSolution(w, m.estimateLambda(w), false)
}

// powerIterate runs the power method from a uniform start vector.  It
// reports ok=false when the iteration fails to converge or produces a
// non-finite vector.
func (m *Matrix) powerIterate(opts SolverOptions) ([]float64, float64, bool) {
	n := m.Size()
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}

	next := make([]float64, n)
	for iter := 0; iter < opts.MaxIterations; iter++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			acc := 0.0
			for j := 0; j < n; j++ {
				acc += m.cells[i][j] * w[j]
			}
			next[i] = acc
			sum += acc
		}
		if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
			return nil, 0, false
		}

		maxDiff := 0.0
		for i := 0; i < n; i++ {
			next[i] /= sum
			if d := math.Abs(next[i] - w[i]); d > maxDiff {
				maxDiff = d
			}
		}
		w, next = next, w

		if maxDiff < opts.Tolerance {
			lambda := m.estimateLambda(w)
			if math.IsNaN(lambda) || math.IsInf(lambda, 0) {
				return nil, 0, false
			}
			return w, lambda, true
		}
	}
	return nil, 0, false
}

// columnAverage computes the normalized-column-average approximation: each
// column is normalized to sum 1, then weights are the row means.
func (m *Matrix) columnAverage() []float64 {
	n := m.Size()
	colSums := make([]float64, n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			colSums[j] += m.cells[i][j]
		}
	}

	w := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if colSums[j] > 0 {
				w[i] += m.cells[i][j] / colSums[j]
			}
		}
		w[i] /= float64(n)
	}

	// Renormalize against accumulated rounding.
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum > 0 {
		for i := range w {
			w[i] /= sum
		}
	}
	return w
}

// estimateLambda estimates the dominant eigenvalue as the mean of
// (A·w)_i / w_i.
func (m *Matrix) estimateLambda(w []float64) float64 {
	n := m.Size()
	acc := 0.0
	for i := 0; i < n; i++ {
		row := 0.0
		for j := 0; j < n; j++ {
			row += m.cells[i][j] * w[j]
		}
		if w[i] > 0 {
			acc += row / w[i]
		}
	}
	return acc / float64(n)
}

func (m *Matrix) buildSolution(w []float64, lambda float64, exact bool) *Solution {
	n := m.Size()
	sol := &Solution{
		Weights:     w,
		WeightsByID: make(map[string]float64, n),
		LambdaMax:   lambda,
		Exact:       exact,
	}
	for i, id := range m.ids {
		sol.WeightsByID[id] = w[i]
	}

	if n > 1 {
		ci := (lambda - float64(n)) / float64(n-1)
		if ci < 0 {
			ci = 0 // numerical noise on perfectly consistent matrices
		}
		sol.ConsistencyIndex = ci
	}
	// CR is 0 by definition for n < 3: a 2x2 reciprocal matrix cannot be
	// inconsistent.
	if n >= 3 {
		sol.ConsistencyRatio = sol.ConsistencyIndex / RandomIndex(n)
	}
	return sol
}

// Classify maps a consistency ratio onto the acceptance verdict given the
// acceptance threshold and the hard ceiling.
func Classify(cr, threshold, ceiling float64) decision.ConsistencyVerdict {
	switch {
	case cr <= threshold:
		return decision.ConsistencyAccepted
	case cr <= ceiling:
		return decision.ConsistencyFlagged
	default:
		return decision.ConsistencyRejected
	}
}

// WorstPairs ranks the matrix's judgments by how far they deviate from the
// ratios implied by the solved weights, worst first.  At most limit pairs
// are returned; limit <= 0 returns all.  Surfaced to stakeholders when a
// submission is rejected or flagged.
func (m *Matrix) WorstPairs(sol *Solution, limit int) []decision.JudgmentPair {
	n := m.Size()
	pairs := make([]decision.JudgmentPair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			wi, wj := sol.Weights[i], sol.Weights[j]
			if wi <= 0 || wj <= 0 {
				continue
			}
			implied := wi / wj
			ratio := m.cells[i][j] / implied
			if ratio < 1 {
				ratio = 1 / ratio
			}
			pairs = append(pairs, decision.JudgmentPair{
				Left:      m.ids[i],
				Right:     m.ids[j],
				Value:     m.cells[i][j],
				Deviation: ratio - 1,
			})
		}
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].Deviation != pairs[b].Deviation {
			return pairs[a].Deviation > pairs[b].Deviation
		}
		if pairs[a].Left != pairs[b].Left {
			return pairs[a].Left < pairs[b].Left
		}
		return pairs[a].Right < pairs[b].Right
	})
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}
