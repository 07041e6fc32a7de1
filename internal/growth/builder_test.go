package growth

import (
	"database/sql"
	"math"
	"strings"
	"testing"

	"github.com/remoteforests/disturbance/internal/models"
)

func testParams() []models.DisturbanceParameter {
	return []models.DisturbanceParameter{{DistParam: "spruce", AIMM: 3, GapMM: 5}}
}

func ringSeries(coreID string, firstYear int, incr []float64) []models.RingObservation {
	obs := make([]models.RingObservation, len(incr))
	for i, v := range incr {
		obs[i] = models.RingObservation{CoreID: coreID, Year: firstYear + i, IncrMM: v}
	}
	return obs
}

func TestBuildMissingTables(t *testing.T) {
	rings := ringSeries("c1", 1900, []float64{1, 1})
	cores := []models.TreeCore{{TreeID: "t1", CoreID: "c1", DistParam: "spruce"}}

	tests := []struct {
		name   string
		rings  []models.RingObservation
		cores  []models.TreeCore
		params []models.DisturbanceParameter
		want   string
	}{
		{"missing rings", nil, cores, testParams(), "ring table"},
		{"missing cores", rings, nil, testParams(), "core table"},
		{"missing params", rings, cores, nil, "parameter table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.rings, tt.cores, tt.params, Config{})
			if err == nil {
				t.Fatal("Build succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestBuildDuplicateYear(t *testing.T) {
	rings := []models.RingObservation{
		{CoreID: "c1", Year: 1900, IncrMM: 1},
		{CoreID: "c1", Year: 1900, IncrMM: 2},
	}
	cores := []models.TreeCore{{TreeID: "t1", CoreID: "c1", DistParam: "spruce"}}
	if _, err := Build(rings, cores, testParams(), Config{}); err == nil {
		t.Fatal("Build succeeded, want duplicate-year error")
	}
}

func TestBuildDiameterNonDecreasing(t *testing.T) {
	rings := ringSeries("c1", 1900, []float64{2, 0, 1.5, 0, 3, 1})
	rings[0].MissingMM = 4
	cores := []models.TreeCore{{TreeID: "t1", CoreID: "c1", DistParam: "spruce"}}

	recs, err := Build(rings, cores, testParams(), Config{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(recs) != len(rings) {
		t.Fatalf("len(recs) = %d, want %d", len(recs), len(rings))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].DBHMM < recs[i-1].DBHMM {
			t.Errorf("dbh decreased at year %d: %v -> %v", recs[i].Year, recs[i-1].DBHMM, recs[i].DBHMM)
		}
	}
	// First year includes the pith offset: (2+4)*2 = 12mm.
	if math.Abs(recs[0].DBHMM-12) > 1e-9 {
		t.Errorf("first dbh = %v, want 12", recs[0].DBHMM)
	}
}

func TestBuildCalibratesToMeasuredDBH(t *testing.T) {
	rings := ringSeries("c1", 1950, []float64{1, 2, 3, 4})
	cores := []models.TreeCore{{
		TreeID:    "t1",
		CoreID:    "c1",
		DistParam: "spruce",
		DBHMM:     sql.NullFloat64{Float64: 300, Valid: true},
	}}

	recs, err := Build(rings, cores, testParams(), Config{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	final := recs[len(recs)-1].DBHMM
	if math.Abs(final-300) > 1e-9 {
		t.Errorf("final dbh = %v, want 300", final)
	}
}

func TestBuildAge(t *testing.T) {
	rings := ringSeries("c1", 1900, []float64{1, 1, 1})
	rings[0].MissingYears = 4
	cores := []models.TreeCore{{TreeID: "t1", CoreID: "c1", DistParam: "spruce"}}

	recs, err := Build(rings, cores, testParams(), Config{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	wantAges := []int{5, 6, 7}
	for i, w := range wantAges {
		if recs[i].Age != w {
			t.Errorf("age[%d] = %d, want %d", i, recs[i].Age, w)
		}
	}
}

func TestBuildAbruptIndex(t *testing.T) {
	// Step change from 1 to 10 mm/year: ai must be strongly positive at the
	// last slow year and taper off after the step.
	incr := []float64{1, 1, 1, 1, 1, 10, 10, 10, 10, 10}
	rings := ringSeries("c1", 1900, incr)
	cores := []models.TreeCore{{TreeID: "t1", CoreID: "c1", DistParam: "spruce"}}

	recs, err := Build(rings, cores, testParams(), Config{Window: 5})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Index 4 is the last slow year: pg = 1, fg = 10.
	if math.Abs(recs[4].AI-9) > 1e-9 {
		t.Errorf("ai at step = %v, want 9", recs[4].AI)
	}
	if !(recs[4].AI > recs[7].AI) {
		t.Errorf("ai should taper after the step: ai[4]=%v ai[7]=%v", recs[4].AI, recs[7].AI)
	}
}
