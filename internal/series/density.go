package series

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// DefaultSmoothK is the moving kernel window length, in years.
	DefaultSmoothK = 30
	// DefaultSmoothTotal normalizes the smoothed signal back to percent
	// units. Leave at 100 when the input series is already in percent.
	DefaultSmoothTotal = 100
	// DefaultBandwidth is the Gaussian kernel bandwidth in years. One year
	// keeps a single-year canopy loss detectable against the plot-level
	// peak threshold while still bridging adjacent event years.
	DefaultBandwidth = 1.0
)

// SmoothConfig tunes Smooth.
type SmoothConfig struct {
	// K is the centered window length. Zero selects DefaultSmoothK.
	K int
	// Bandwidth is the Gaussian kernel bandwidth in years. Zero selects
	// DefaultBandwidth.
	Bandwidth float64
	// Total rescales the output by 100/Total. Zero selects
	// DefaultSmoothTotal, which leaves percent inputs in percent.
	Total float64
}

// Smooth converts a spiky yearly event series into a continuous disturbance
// density signal. For each position it fits a Gaussian kernel estimate over
// the surrounding window, weighted by the window's values and zero-filled
// outside the series bounds, evaluates it at the window center, and rescales
// by 100/Total. The result is suitable for a second pass of peak detection.
func Smooth(values []float64, cfg SmoothConfig) []float64 {
	k := cfg.K
	if k <= 0 {
		k = DefaultSmoothK
	}
	bw := cfg.Bandwidth
	if bw <= 0 {
		bw = DefaultBandwidth
	}
	total := cfg.Total
	if total <= 0 {
		total = DefaultSmoothTotal
	}

	out := make([]float64, len(values))
	for i := range values {
		kernel := distuv.Normal{Mu: float64(i), Sigma: bw}
		lo := i - k/2
		hi := lo + k
		var sum float64
		for p := lo; p < hi; p++ {
			if p < 0 || p >= len(values) {
				continue
			}
			w := values[p]
			if math.IsNaN(w) || w == 0 {
				continue
			}
			sum += w * kernel.Prob(float64(p))
		}
		out[i] = sum * 100 / total
	}
	return out
}

// MovingAverage returns the centered n-point moving average of x, with
// partial windows at both ends. NaN values are ignored within a window.
func MovingAverage(x []float64, n int) []float64 {
	if n <= 1 {
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}
	out := make([]float64, len(x))
	for i := range x {
		lo := i - n/2
		hi := lo + n
		if lo < 0 {
			lo = 0
		}
		if hi > len(x) {
			hi = len(x)
		}
		out[i] = windowMean(x[lo:hi])
	}
	return out
}
