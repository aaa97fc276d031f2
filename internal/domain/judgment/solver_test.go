package judgment

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

func mustMatrix(t *testing.T, ids []string, cells [][]float64) *Matrix {
	t.Helper()
	m, err := NewMatrix(ids, cells)
	require.NoError(t, err)
	return m
}

func TestSolve_PerfectlyConsistent(t *testing.T) {
	// a:b=2, b:c=2, a:c=4 is transitively consistent, so CR must be 0 and
	// the weights are exactly (4/7, 2/7, 1/7).
	m := mustMatrix(t, abc, [][]float64{
		{1, 2, 4},
		{0.5, 1, 2},
		{0.25, 0.5, 1},
	})

	sol := m.Solve(SolverOptions{})
	require.True(t, sol.Exact)

	assert.InDelta(t, 4.0/7, sol.Weights[0], 1e-6)
	assert.InDelta(t, 2.0/7, sol.Weights[1], 1e-6)
	assert.InDelta(t, 1.0/7, sol.Weights[2], 1e-6)
	assert.InDelta(t, 3.0, sol.LambdaMax, 1e-6)
	assert.InDelta(t, 0.0, sol.ConsistencyRatio, 1e-9)
}

func TestSolve_KnownScenario(t *testing.T) {
	// a≻b=3, a≻c=5, b≻c=2: the dominant eigenvector is approximately
	// (0.648, 0.230, 0.122) with CR well inside the acceptance threshold.
	m, err := NewMatrixFromJudgments(abc, []decision.Judgment{
		{Left: "a", Right: "b", Preference: 3},
		{Left: "a", Right: "c", Preference: 5},
		{Left: "b", Right: "c", Preference: 2},
	})
	require.NoError(t, err)

	sol := m.Solve(SolverOptions{})
	require.True(t, sol.Exact)

	assert.InDelta(t, 0.648, sol.Weights[0], 0.005)
	assert.InDelta(t, 0.230, sol.Weights[1], 0.005)
	assert.InDelta(t, 0.122, sol.Weights[2], 0.005)
	assert.Greater(t, sol.ConsistencyRatio, 0.0)
	assert.Less(t, sol.ConsistencyRatio, 0.10)
	assert.Equal(t, decision.ConsistencyAccepted, Classify(sol.ConsistencyRatio, 0.10, 0.15))
}

func TestSolve_MaximallyInconsistent(t *testing.T) {
	// A cyclic preference (a≻b=9, b≻c=9, c≻a=9) contradicts itself; CR must
	// land far above the acceptance threshold.
	m := mustMatrix(t, abc, [][]float64{
		{1, 9, 1.0 / 9},
		{1.0 / 9, 1, 9},
		{9, 1.0 / 9, 1},
	})

	sol := m.Solve(SolverOptions{})
	assert.Greater(t, sol.ConsistencyRatio, 0.15)
	assert.Equal(t, decision.ConsistencyRejected, Classify(sol.ConsistencyRatio, 0.10, 0.15))
}

func TestSolve_WeightsSumToOne(t *testing.T) {
	// Property: any valid reciprocal matrix yields weights summing to
	// 1.0 ± 1e-4 with CR >= 0.
	matrices := [][][]float64{
		{{1, 3, 5}, {1.0 / 3, 1, 2}, {1.0 / 5, 1.0 / 2, 1}},
		{{1, 7, 1.0 / 3}, {1.0 / 7, 1, 1.0 / 9}, {3, 9, 1}},
		{
			{1, 2, 3, 4},
			{0.5, 1, 2, 3},
			{1.0 / 3, 0.5, 1, 2},
			{0.25, 1.0 / 3, 0.5, 1},
		},
	}
	for i, cells := range matrices {
		t.Run(fmt.Sprintf("matrix_%d", i), func(t *testing.T) {
			ids := make([]string, len(cells))
			for j := range ids {
				ids[j] = fmt.Sprintf("c%d", j)
			}
			sol := mustMatrix(t, ids, cells).Solve(SolverOptions{})

			sum := 0.0
			for _, w := range sol.Weights {
				sum += w
			}
			assert.InDelta(t, 1.0, sum, 1e-4)
			assert.GreaterOrEqual(t, sol.ConsistencyRatio, 0.0)
		})
	}
}

func TestSolve_SmallMatrices(t *testing.T) {
	t.Run("n=1", func(t *testing.T) {
		sol := mustMatrix(t, []string{"only"}, [][]float64{{1}}).Solve(SolverOptions{})
		assert.Equal(t, []float64{1.0}, sol.Weights)
		assert.Equal(t, 0.0, sol.ConsistencyRatio)
	})

	t.Run("n=2 has CR zero by definition", func(t *testing.T) {
		sol := mustMatrix(t, []string{"a", "b"}, [][]float64{{1, 5}, {0.2, 1}}).Solve(SolverOptions{})
		assert.InDelta(t, 5.0/6, sol.Weights[0], 1e-6)
		assert.InDelta(t, 1.0/6, sol.Weights[1], 1e-6)
		assert.Equal(t, 0.0, sol.ConsistencyRatio)
	})
}

func TestSolve_LargeMatrixUsesColumnAverage(t *testing.T) {
	// Above 15 criteria the solver goes straight to the column-average
	// approximation; weights must still normalize and CR stay finite.
	n := 18
	ids := make([]string, n)
	cells := make([][]float64, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("c%02d", i)
		cells[i] = make([]float64, n)
		cells[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := 1.0 + float64((i+j)%5)
			cells[i][j] = v
			cells[j][i] = 1 / v
		}
	}

	sol := mustMatrix(t, ids, cells).Solve(SolverOptions{})
	assert.False(t, sol.Exact)

	sum := 0.0
	for _, w := range sol.Weights {
		assert.False(t, math.IsNaN(w))
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
	assert.GreaterOrEqual(t, sol.ConsistencyRatio, 0.0)
}

func TestSolve_FallbackWhenNotConverged(t *testing.T) {
	// A single permitted iteration cannot converge; the solver must return
	// the column-average approximation instead of failing.
	m := mustMatrix(t, abc, [][]float64{
		{1, 3, 5},
		{1.0 / 3, 1, 2},
		{1.0 / 5, 1.0 / 2, 1},
	})

	sol := m.Solve(SolverOptions{MaxIterations: 1})
	require.NotNil(t, sol)
	assert.False(t, sol.Exact)

	sum := 0.0
	for _, w := range sol.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestRandomIndex(t *testing.T) {
	assert.Equal(t, 0.0, RandomIndex(1))
	assert.Equal(t, 0.0, RandomIndex(2))
	assert.Equal(t, 0.58, RandomIndex(3))
	assert.Equal(t, 1.49, RandomIndex(10))
	assert.Equal(t, 1.59, RandomIndex(15))
	assert.Equal(t, 1.49, RandomIndex(16))
	assert.Equal(t, 0.0, RandomIndex(0))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, decision.ConsistencyAccepted, Classify(0.05, 0.10, 0.15))
	assert.Equal(t, decision.ConsistencyAccepted, Classify(0.10, 0.10, 0.15))
	assert.Equal(t, decision.ConsistencyFlagged, Classify(0.12, 0.10, 0.15))
	assert.Equal(t, decision.ConsistencyRejected, Classify(0.151, 0.10, 0.15))
}

func TestWorstPairs(t *testing.T) {
	m := mustMatrix(t, abc, [][]float64{
		{1, 9, 1.0 / 9},
		{1.0 / 9, 1, 9},
		{9, 1.0 / 9, 1},
	})
	sol := m.Solve(SolverOptions{})

	pairs := m.WorstPairs(sol, 2)
	require.Len(t, pairs, 2)
	assert.GreaterOrEqual(t, pairs[0].Deviation, pairs[1].Deviation)

	all := m.WorstPairs(sol, 0)
	assert.Len(t, all, 3)
}

func TestWorstPairs_ConsistentMatrixHasNoDeviation(t *testing.T) {
	m := mustMatrix(t, abc, [][]float64{
		{1, 2, 4},
		{0.5, 1, 2},
		{0.25, 0.5, 1},
	})
	sol := m.Solve(SolverOptions{})

	for _, p := range m.WorstPairs(sol, 0) {
		assert.InDelta(t, 0.0, p.Deviation, 1e-6)
	}
}
