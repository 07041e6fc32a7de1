package series

import (
	"math"
	"sort"
)

// DefaultMissingValue stands in for NaN samples during peak detection. It is
// far below any threshold used in practice, so a missing sample can never
// qualify as a peak.
const DefaultMissingValue = -math.MaxFloat64

// PeakOptions tunes DetectPeaks. The same detector runs at tree, plot and
// stand granularity with different settings.
type PeakOptions struct {
	// Threshold is the minimum value a peak must reach.
	Threshold float64
	// MinDist is the minimum index separation between returned peaks. When
	// two candidates are closer, the lower one is dropped.
	MinDist int
	// NUps is the number of strictly increasing steps required immediately
	// before a peak.
	NUps int
	// MissingValue replaces NaN samples before detection. Zero selects
	// DefaultMissingValue. It must stay below Threshold.
	MissingValue float64
}

// DetectPeaks returns the indices of qualifying local maxima in x, in
// ascending order. An empty result means no peaks, which callers treat as
// "no events", not as an error.
func DetectPeaks(x []float64, opts PeakOptions) []int {
	if len(x) == 0 {
		return nil
	}
	missing := opts.MissingValue
	if missing == 0 {
		missing = DefaultMissingValue
	}

	v := make([]float64, len(x))
	for i, val := range x {
		if math.IsNaN(val) {
			v[i] = missing
		} else {
			v[i] = val
		}
	}

	// ups[i] counts the consecutive strictly increasing steps ending at i.
	ups := make([]int, len(v))
	for i := 1; i < len(v); i++ {
		if v[i] > v[i-1] {
			ups[i] = ups[i-1] + 1
		}
	}

	var candidates []int
	for i := range v {
		if v[i] < opts.Threshold || ups[i] < opts.NUps {
			continue
		}
		if i > 0 && v[i] < v[i-1] {
			continue
		}
		if i < len(v)-1 && v[i] <= v[i+1] {
			continue
		}
		candidates = append(candidates, i)
	}

	if len(candidates) == 0 || opts.MinDist <= 1 {
		return candidates
	}

	// Enforce minimum separation, highest peaks first.
	order := make([]int, len(candidates))
	copy(order, candidates)
	sort.SliceStable(order, func(a, b int) bool {
		return v[order[a]] > v[order[b]]
	})

	var kept []int
	for _, c := range order {
		tooClose := false
		for _, k := range kept {
			if abs(c-k) < opts.MinDist {
				tooClose = true
				break
			}
		}
		if !tooClose {
			kept = append(kept, c)
		}
	}
	sort.Ints(kept)
	return kept
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
