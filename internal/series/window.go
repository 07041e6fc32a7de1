// Package series provides the numeric primitives shared by every level of
// the disturbance pipeline: rolling window means, peak detection and kernel
// smoothing. All functions are total over any non-empty series; undefined
// results are reported as NaN, never as errors.
package series

import "math"

// PriorGrowth returns, for each position i, the mean of up to window values
// ending at i. Partial windows at the start of the series are allowed and
// NaN values are ignored. A window with no defined values yields NaN.
func PriorGrowth(x []float64, window int) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		out[i] = windowMean(x[lo : i+1])
	}
	return out
}

// FollowGrowth returns, for each position i, the mean of up to window values
// over positions i+1 .. i+window. Partial windows at the end of the series
// are allowed; the last position, having no following values, yields NaN.
func FollowGrowth(x []float64, window int) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		hi := i + 1 + window
		if hi > len(x) {
			hi = len(x)
		}
		out[i] = windowMean(x[i+1 : hi])
	}
	return out
}

func windowMean(w []float64) float64 {
	var sum float64
	var n int
	for _, v := range w {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
