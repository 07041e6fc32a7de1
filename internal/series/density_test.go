package series

import (
	"math"
	"testing"
)

func TestSmoothSpike(t *testing.T) {
	// A single 100% spike smooths into a symmetric bump peaking at the
	// spike year.
	x := make([]float64, 61)
	x[30] = 100

	sm := Smooth(x, SmoothConfig{K: 30})

	maxIdx := 0
	for i, v := range sm {
		if v > sm[maxIdx] {
			maxIdx = i
		}
	}
	if maxIdx != 30 {
		t.Errorf("smoothed maximum at %d, want 30", maxIdx)
	}
	if math.Abs(sm[28]-sm[32]) > 1e-9 {
		t.Errorf("smoothed signal not symmetric: sm[28]=%v sm[32]=%v", sm[28], sm[32])
	}
	if sm[30] <= sm[25] {
		t.Errorf("smoothed signal does not decay away from the spike")
	}
}

func TestSmoothZeroSeries(t *testing.T) {
	sm := Smooth(make([]float64, 20), SmoothConfig{})
	for i, v := range sm {
		if v != 0 {
			t.Fatalf("sm[%d] = %v, want 0", i, v)
		}
	}
}

func TestSmoothSupportsSecondPassDetection(t *testing.T) {
	// Two well separated spikes must survive smoothing as two detectable
	// peaks. This is the plot-level pipeline in miniature.
	x := make([]float64, 100)
	x[25] = 80
	x[70] = 60

	sm := Smooth(x, SmoothConfig{K: 30})
	peaks := DetectPeaks(sm, PeakOptions{Threshold: 0.1, NUps: 5, MinDist: 10})

	if len(peaks) != 2 {
		t.Fatalf("len(peaks) = %d, want 2 (%v)", len(peaks), peaks)
	}
	if abs(peaks[0]-25) > 2 || abs(peaks[1]-70) > 2 {
		t.Errorf("peaks = %v, want near [25 70]", peaks)
	}
}

func TestMovingAverage(t *testing.T) {
	tests := []struct {
		name string
		x    []float64
		n    int
		want []float64
	}{
		{
			name: "constant series unchanged",
			x:    []float64{3, 3, 3, 3, 3},
			n:    5,
			want: []float64{3, 3, 3, 3, 3},
		},
		{
			name: "centered window with partial edges",
			x:    []float64{0, 0, 10, 0, 0},
			n:    5,
			want: []float64{10.0 / 3, 2.5, 2, 2.5, 10.0 / 3},
		},
		{
			name: "n of one is identity",
			x:    []float64{1, 2, 3},
			n:    1,
			want: []float64{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertSeriesEqual(t, MovingAverage(tt.x, tt.n), tt.want)
		})
	}
}
