package series

import (
	"math"
	"testing"
)

func TestPriorGrowth(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name   string
		x      []float64
		window int
		want   []float64
	}{
		{
			name:   "constant series returns the constant",
			x:      []float64{2, 2, 2, 2, 2},
			window: 3,
			want:   []float64{2, 2, 2, 2, 2},
		},
		{
			name:   "partial windows at the start",
			x:      []float64{1, 2, 3, 4},
			window: 3,
			want:   []float64{1, 1.5, 2, 3},
		},
		{
			name:   "NaN values ignored in the mean",
			x:      []float64{1, nan, 3},
			window: 3,
			want:   []float64{1, 1, 2},
		},
		{
			name:   "all-NaN window yields NaN",
			x:      []float64{nan, nan, 5},
			window: 2,
			want:   []float64{nan, nan, 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PriorGrowth(tt.x, tt.window)
			assertSeriesEqual(t, got, tt.want)
		})
	}
}

func TestFollowGrowth(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name   string
		x      []float64
		window int
		want   []float64
	}{
		{
			name:   "constant series returns the constant",
			x:      []float64{2, 2, 2, 2, 2},
			window: 3,
			want:   []float64{2, 2, 2, 2, nan},
		},
		{
			name:   "left-aligned partial windows at the end",
			x:      []float64{1, 2, 3, 4},
			window: 3,
			want:   []float64{3, 3.5, 4, nan},
		},
		{
			name:   "NaN values ignored in the mean",
			x:      []float64{1, nan, 3, 5},
			window: 2,
			want:   []float64{3, 4, 5, nan},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FollowGrowth(tt.x, tt.window)
			assertSeriesEqual(t, got, tt.want)
		})
	}
}

func assertSeriesEqual(t *testing.T, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.IsNaN(want[i]) {
			if !math.IsNaN(got[i]) {
				t.Errorf("[%d] = %v, want NaN", i, got[i])
			}
			continue
		}
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
