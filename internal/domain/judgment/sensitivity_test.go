package judgment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStabilityMargins_SeparatedItems(t *testing.T) {
	// Items are far apart on every criterion; the ranking should survive
	// substantial weight shifts in either direction.
	weights := map[string]float64{"value": 0.6, "risk": 0.4}
	items := []ItemProfile{
		{ID: "top", Normalized: map[string]float64{"value": 0.9, "risk": 0.9}},
		{ID: "mid", Normalized: map[string]float64{"value": 0.5, "risk": 0.5}},
		{ID: "low", Normalized: map[string]float64{"value": 0.1, "risk": 0.1}},
	}

	margins := StabilityMargins(weights, items, 3)
	require.Len(t, margins, 2)

	for _, m := range margins {
		assert.Greater(t, m.Increase, 0.1)
		assert.Greater(t, m.Decrease, 0.1)
	}
}

func TestStabilityMargins_TightRace(t *testing.T) {
	// "close" beats "chase" only because of the value criterion; shifting
	// weight toward risk flips them quickly, so the decrease margin on
	// value (and increase margin on risk) must be small.
	weights := map[string]float64{"value": 0.5, "risk": 0.5}
	items := []ItemProfile{
		{ID: "close", Normalized: map[string]float64{"value": 0.80, "risk": 0.40}},
		{ID: "chase", Normalized: map[string]float64{"value": 0.38, "risk": 0.80}},
	}

	margins := StabilityMargins(weights, items, 2)
	require.Contains(t, margins, "value")
	require.Contains(t, margins, "risk")

	assert.Less(t, margins["value"].Decrease, 0.05)
	assert.Less(t, margins["risk"].Increase, 0.05)
}

func TestStabilityMargins_TopKOnly(t *testing.T) {
	// Only the top-1 order matters here; churn below the cut line must not
	// shrink the margin.
	weights := map[string]float64{"value": 0.5, "risk": 0.5}
	items := []ItemProfile{
		{ID: "leader", Normalized: map[string]float64{"value": 0.95, "risk": 0.95}},
		{ID: "b", Normalized: map[string]float64{"value": 0.60, "risk": 0.40}},
		{ID: "c", Normalized: map[string]float64{"value": 0.40, "risk": 0.60}},
	}

	margins := StabilityMargins(weights, items, 1)
	for _, m := range margins {
		assert.Greater(t, m.Increase+m.Decrease, 0.5)
	}
}

func TestStabilityMargins_NoItems(t *testing.T) {
	weights := map[string]float64{"value": 0.7, "risk": 0.3}
	margins := StabilityMargins(weights, nil, 5)

	assert.InDelta(t, 0.3, margins["value"].Increase, 1e-9)
	assert.InDelta(t, 0.7, margins["value"].Decrease, 1e-9)
}

func TestPerturb_KeepsSumOne(t *testing.T) {
	weights := map[string]float64{"a": 0.5, "b": 0.3, "c": 0.2}
	p := perturb(weights, "a", 0.2)
	require.NotNil(t, p)

	sum := 0.0
	for _, v := range p {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 0.7, p["a"], 1e-9)
	// Remaining weights keep their relative proportions.
	assert.InDelta(t, p["b"]/p["c"], 1.5, 1e-9)
}

func TestPerturb_Infeasible(t *testing.T) {
	weights := map[string]float64{"a": 0.5, "b": 0.5}
	assert.Nil(t, perturb(weights, "a", 0.5))
	assert.Nil(t, perturb(weights, "a", -0.5))
}
