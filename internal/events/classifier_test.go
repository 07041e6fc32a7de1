package events

import (
	"testing"

	"github.com/remoteforests/disturbance/internal/growth"
	"github.com/remoteforests/disturbance/internal/models"
)

func spruceParams() []models.DisturbanceParameter {
	return []models.DisturbanceParameter{{DistParam: "spruce", AIMM: 3, GapMM: 5}}
}

func coreTable() []models.TreeCore {
	return []models.TreeCore{{TreeID: "t1", CoreID: "c1", PlotID: "p1", DistParam: "spruce"}}
}

func buildRecords(t *testing.T, firstYear int, incr []float64, missingYears int) []models.GrowthRecord {
	t.Helper()
	rings := make([]models.RingObservation, len(incr))
	for i, v := range incr {
		rings[i] = models.RingObservation{CoreID: "c1", Year: firstYear + i, IncrMM: v}
	}
	rings[0].MissingYears = missingYears
	recs, err := growth.Build(rings, coreTable(), spruceParams(), growth.Config{})
	if err != nil {
		t.Fatalf("growth.Build: %v", err)
	}
	return recs
}

func surviving(evts []models.Event) []models.Event {
	var out []models.Event
	for _, e := range evts {
		if !e.Discarded {
			out = append(out, e)
		}
	}
	return out
}

func TestClassifyReleaseAtStepChange(t *testing.T) {
	// Slow growth abruptly doubling tenfold and staying there is a canopy
	// release at the transition year.
	incr := []float64{1, 1, 1, 1, 1, 10, 10, 10, 10, 10, 10, 10}
	recs := buildRecords(t, 1900, incr, 20)

	evts, err := Classify(recs, coreTable(), spruceParams(), Config{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	rel := surviving(evts)
	if len(rel) != 1 {
		t.Fatalf("len(events) = %d, want 1 (%v)", len(rel), rel)
	}
	if rel[0].Type != models.EventRelease {
		t.Errorf("Type = %q, want release", rel[0].Type)
	}
	if rel[0].Year != 1904 {
		t.Errorf("Year = %d, want 1904", rel[0].Year)
	}
}

func TestClassifyGapOrigin(t *testing.T) {
	// Ten early years averaging 6mm against a 5mm gap threshold classify
	// the core as gap origin at its first year.
	incr := []float64{6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 1, 1, 1, 1, 1}
	recs := buildRecords(t, 1850, incr, 4) // ages start at 5

	evts, err := Classify(recs, coreTable(), spruceParams(), Config{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	got := surviving(evts)
	if len(got) != 1 {
		t.Fatalf("len(events) = %d, want 1 (%v)", len(got), got)
	}
	if got[0].Type != models.EventGap {
		t.Errorf("Type = %q, want gap", got[0].Type)
	}
	if got[0].Year != 1850 {
		t.Errorf("Year = %d, want 1850", got[0].Year)
	}
}

func TestClassifyNoEvent(t *testing.T) {
	incr := make([]float64, 40)
	for i := range incr {
		incr[i] = 1
	}
	recs := buildRecords(t, 1900, incr, 20)

	evts, err := Classify(recs, coreTable(), spruceParams(), Config{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("len(events) = %d, want 1 (%v)", len(evts), evts)
	}
	if evts[0].Type != models.EventNone {
		t.Errorf("Type = %q, want no event", evts[0].Type)
	}
	if evts[0].Year != 1900 {
		t.Errorf("Year = %d, want 1900", evts[0].Year)
	}
}

func TestClassifyGapDiscardsNearbyRelease(t *testing.T) {
	// Fast early growth (gap origin, ages 5-15) followed by a step change
	// 20 years later: the release falls inside the keep window after the
	// gap and must be discarded.
	incr := make([]float64, 0, 45)
	for i := 0; i < 20; i++ {
		incr = append(incr, 6)
	}
	for i := 0; i < 5; i++ {
		incr = append(incr, 1)
	}
	for i := 0; i < 20; i++ {
		incr = append(incr, 12)
	}
	recs := buildRecords(t, 1850, incr, 4)

	evts, err := Classify(recs, coreTable(), spruceParams(), Config{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	var gaps, rels, discarded int
	for _, e := range evts {
		switch {
		case e.Type == models.EventGap:
			gaps++
		case e.Type == models.EventRelease && e.Discarded:
			discarded++
		case e.Type == models.EventRelease:
			rels++
		}
	}
	if gaps != 1 {
		t.Errorf("gaps = %d, want 1", gaps)
	}
	if rels != 0 {
		t.Errorf("surviving releases = %d, want 0 (release within keep window of gap)", rels)
	}
	if discarded == 0 {
		t.Error("expected at least one discarded release")
	}
}

func TestClassifyUnknownParamClass(t *testing.T) {
	recs := buildRecords(t, 1900, []float64{1, 1, 1}, 0)
	cores := []models.TreeCore{{TreeID: "t1", CoreID: "c1", PlotID: "p1", DistParam: "unknown"}}
	if _, err := Classify(recs, cores, spruceParams(), Config{}); err == nil {
		t.Fatal("Classify succeeded, want unknown-class error")
	}
}
