package judgment

import (
	"sort"
)

// ItemProfile carries one item's normalized per-criterion scores, the input
// sensitivity analysis needs to re-rank under perturbed weights.
type ItemProfile struct {
	ID         string
	Normalized map[string]float64
}

// Margin reports how far one criterion's weight can move in either
// direction before the top-k ranking order changes.  Increase and Decrease
// are absolute weight deltas; a value equal to the full available range
// means the ranking is insensitive to that criterion within scale bounds.
type Margin struct {
	CriterionID string  `json:"criterion_id"`
	Increase    float64 `json:"increase"`
	Decrease    float64 `json:"decrease"`
}

// sensitivityStep is the probing granularity in absolute weight units.
const sensitivityStep = 0.005

// StabilityMargins probes, for each criterion, the largest weight
// perturbation (up and down) that leaves the order of the current top-k
// items unchanged.  The perturbed criterion's delta is absorbed
// proportionally by the remaining weights so the vector keeps summing to 1.
// Results are keyed by criterion ID.
func StabilityMargins(weights map[string]float64, items []ItemProfile, topK int) map[string]Margin {
	margins := make(map[string]Margin, len(weights))
	if len(items) == 0 || len(weights) == 0 {
		for id := range weights {
			margins[id] = Margin{CriterionID: id, Increase: 1 - weights[id], Decrease: weights[id]}
		}
		return margins
	}
	if topK <= 0 || topK > len(items) {
		topK = len(items)
	}

	baseline := topOrder(weights, items, topK)

	for id, w := range weights {
		up := probe(weights, items, topK, baseline, id, 1-w, +1)
		down := probe(weights, items, topK, baseline, id, w, -1)
		margins[id] = Margin{CriterionID: id, Increase: up, Decrease: down}
	}
	return margins
}

// probe walks delta outward in sensitivityStep increments until the top-k
// order changes, returning the last stable delta.
func probe(weights map[string]float64, items []ItemProfile, topK int, baseline []string, id string, bound float64, dir float64) float64 {
	stable := 0.0
	for delta := sensitivityStep; delta <= bound; delta += sensitivityStep {
		perturbed := perturb(weights, id, dir*delta)
		if perturbed == nil {
			break
		}
		if !equalOrder(baseline, topOrder(perturbed, items, topK)) {
			return stable
		}
		stable = delta
	}
	return stable
}

// perturb shifts the weight of id by delta and rescales the remaining
// weights proportionally so the vector still sums to 1.  Returns nil when
// the perturbation is infeasible.
func perturb(weights map[string]float64, id string, delta float64) map[string]float64 {
	w := weights[id]
	nw := w + delta
	if nw <= 0 || nw >= 1 {
		return nil
	}
	rest := 1 - w
	if rest <= 0 {
		return nil
	}
	scale := (1 - nw) / rest

	out := make(map[string]float64, len(weights))
	for k, v := range weights {
		if k == id {
			out[k] = nw
		} else {
			out[k] = v * scale
		}
	}
	return out
}

// topOrder returns the IDs of the k best items under weights, scored as
// Σ(normalized × weight), ties broken by item ID ascending.
func topOrder(weights map[string]float64, items []ItemProfile, k int) []string {
	type scored struct {
		id    string
		total float64
	}
	rows := make([]scored, len(items))
	for i, it := range items {
		total := 0.0
		for cid, w := range weights {
			total += it.Normalized[cid] * w
		}
		rows[i] = scored{id: it.ID, total: total}
	}
	sort.Slice(rows, func(a, b int) bool {
		if rows[a].total != rows[b].total {
			return rows[a].total > rows[b].total
		}
		return rows[a].id < rows[b].id
	})

	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = rows[i].id
	}
	return out
}

func equalOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
