package scoring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorityCraft/internal/domain/criterion"
	"github.com/turtacn/PriorityCraft/internal/domain/item"
)

func testSet(t *testing.T) *criterion.Set {
	t.Helper()
	s, err := criterion.NewSet([]*criterion.Criterion{
		{ID: "value", Kind: criterion.KindContinuous, Weight: 0.5, Active: true},
		{ID: "risk", Kind: criterion.KindCategorical, Weight: 0.3, Active: true,
			CategoryMap: map[string]float64{"low": 1.0, "medium": 0.5, "high": 0.0}},
		{ID: "gate", Kind: criterion.KindThreshold, Weight: 0.2, Active: true,
			Threshold: 10, PassAbove: true},
	})
	require.NoError(t, err)
	return s
}

func TestNormalize_Continuous(t *testing.T) {
	set := testSet(t)
	n := NewNormalizer(NormalizerOptions{})
	items := []item.WorkItem{
		{ID: "a", Attributes: item.Attributes{"value": item.Number(0)}},
		{ID: "b", Attributes: item.Attributes{"value": item.Number(50)}},
		{ID: "c", Attributes: item.Attributes{"value": item.Number(100)}},
	}
	stats := n.ComputeStats(set, items)

	assert.Equal(t, 0.0, n.Normalize(set, stats, items[0]).Scores["value"])
	assert.Equal(t, 0.5, n.Normalize(set, stats, items[1]).Scores["value"])
	assert.Equal(t, 1.0, n.Normalize(set, stats, items[2]).Scores["value"])
}

func TestNormalize_DegenerateRange(t *testing.T) {
	// All values equal: every item gets 0.5.
	set := testSet(t)
	n := NewNormalizer(NormalizerOptions{})
	items := []item.WorkItem{
		{ID: "a", Attributes: item.Attributes{"value": item.Number(42)}},
		{ID: "b", Attributes: item.Attributes{"value": item.Number(42)}},
	}
	stats := n.ComputeStats(set, items)

	for _, it := range items {
		assert.Equal(t, 0.5, n.Normalize(set, stats, it).Scores["value"])
	}
}

func TestNormalize_Categorical(t *testing.T) {
	set := testSet(t)
	n := NewNormalizer(NormalizerOptions{})
	items := []item.WorkItem{
		{ID: "a", Attributes: item.Attributes{"risk": item.Label("low")}},
		{ID: "b", Attributes: item.Attributes{"risk": item.Label("high")}},
	}
	stats := n.ComputeStats(set, items)

	assert.Equal(t, 1.0, n.Normalize(set, stats, items[0]).Scores["risk"])
	assert.Equal(t, 0.0, n.Normalize(set, stats, items[1]).Scores["risk"])
}

func TestNormalize_UnmappedCategoryWarns(t *testing.T) {
	set := testSet(t)
	n := NewNormalizer(NormalizerOptions{})
	it := item.WorkItem{ID: "a", Attributes: item.Attributes{"risk": item.Label("unknown-label")}}
	stats := n.ComputeStats(set, []item.WorkItem{it})

	res := n.Normalize(set, stats, it)
	assert.Equal(t, 0.5, res.Scores["risk"])

	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "unmapped") && strings.Contains(w, "unknown-label") {
			found = true
		}
	}
	assert.True(t, found, "expected an unmapped-category warning, got %v", res.Warnings)
}

func TestNormalize_Threshold(t *testing.T) {
	set := testSet(t)
	n := NewNormalizer(NormalizerOptions{})
	items := []item.WorkItem{
		{ID: "pass", Attributes: item.Attributes{"gate": item.Number(15)}},
		{ID: "edge", Attributes: item.Attributes{"gate": item.Number(10)}},
		{ID: "fail", Attributes: item.Attributes{"gate": item.Number(9.9)}},
	}
	stats := n.ComputeStats(set, items)

	assert.Equal(t, 1.0, n.Normalize(set, stats, items[0]).Scores["gate"])
	assert.Equal(t, 1.0, n.Normalize(set, stats, items[1]).Scores["gate"])
	assert.Equal(t, 0.0, n.Normalize(set, stats, items[2]).Scores["gate"])
}

func TestNormalize_ThresholdPassBelow(t *testing.T) {
	set, err := criterion.NewSet([]*criterion.Criterion{
		{ID: "age", Kind: criterion.KindThreshold, Weight: 0.5, Threshold: 30, PassAbove: false},
		{ID: "pad", Kind: criterion.KindContinuous, Weight: 0.5},
	})
	require.NoError(t, err)

	n := NewNormalizer(NormalizerOptions{})
	items := []item.WorkItem{
		{ID: "young", Attributes: item.Attributes{"age": item.Number(10)}},
		{ID: "old", Attributes: item.Attributes{"age": item.Number(45)}},
	}
	stats := n.ComputeStats(set, items)

	assert.Equal(t, 1.0, n.Normalize(set, stats, items[0]).Scores["age"])
	assert.Equal(t, 0.0, n.Normalize(set, stats, items[1]).Scores["age"])
}

func TestNormalize_MissingFixedPolicy(t *testing.T) {
	set := testSet(t)
	n := NewNormalizer(NormalizerOptions{Policy: MissingFixed})
	it := item.WorkItem{ID: "bare", Attributes: item.Attributes{}}
	stats := n.ComputeStats(set, []item.WorkItem{it})

	res := n.Normalize(set, stats, it)
	for _, id := range set.IDs() {
		assert.Equal(t, 0.5, res.Scores[id])
	}
	// All three criteria missing: confidence hits the floor.
	assert.Equal(t, 0.1, res.Confidence)
	assert.Len(t, res.Warnings, 3)
}

func TestNormalize_MissingMeanPolicy(t *testing.T) {
	set := testSet(t)
	n := NewNormalizer(NormalizerOptions{Policy: MissingMean})
	items := []item.WorkItem{
		{ID: "a", Attributes: item.Attributes{"value": item.Number(0), "risk": item.Label("low"), "gate": item.Number(20)}},
		{ID: "b", Attributes: item.Attributes{"value": item.Number(100), "risk": item.Label("low"), "gate": item.Number(20)}},
		{ID: "c", Attributes: item.Attributes{"risk": item.Label("high"), "gate": item.Number(0)}},
	}
	stats := n.ComputeStats(set, items)

	res := n.Normalize(set, stats, items[2])
	// Mean of normalized present values for "value" is (0.0 + 1.0) / 2.
	assert.InDelta(t, 0.5, res.Scores["value"], 1e-9)
	// One of three criteria missing.
	assert.InDelta(t, 2.0/3, res.Confidence, 1e-9)
}

func TestNormalize_ConfidencePenalty(t *testing.T) {
	set := testSet(t)
	n := NewNormalizer(NormalizerOptions{})

	full := item.WorkItem{ID: "full", Attributes: item.Attributes{
		"value": item.Number(1), "risk": item.Label("low"), "gate": item.Number(20)}}
	partial := item.WorkItem{ID: "partial", Attributes: item.Attributes{
		"value": item.Number(2)}}

	stats := n.ComputeStats(set, []item.WorkItem{full, partial})

	assert.Equal(t, 1.0, n.Normalize(set, stats, full).Confidence)
	assert.InDelta(t, 1.0/3, n.Normalize(set, stats, partial).Confidence, 1e-9)
}

func TestNormalize_WrongTypeTreatedAsMissing(t *testing.T) {
	set := testSet(t)
	n := NewNormalizer(NormalizerOptions{})
	it := item.WorkItem{ID: "odd", Attributes: item.Attributes{
		"value": item.Label("not-a-number"),
		"risk":  item.Label("low"),
		"gate":  item.Number(20),
	}}
	stats := n.ComputeStats(set, []item.WorkItem{it})

	res := n.Normalize(set, stats, it)
	assert.Equal(t, 0.5, res.Scores["value"])
	assert.NotEmpty(t, res.Warnings)
	assert.InDelta(t, 2.0/3, res.Confidence, 1e-9)
}
