package aggregate

import (
	"database/sql"
	"math"
	"testing"

	"github.com/remoteforests/disturbance/internal/models"
)

func tree(plotID string, year int, typ models.EventType, canopy float64) models.TreeRecord {
	tr := models.TreeRecord{PlotID: plotID, Type: typ, CanopyAreaM2: canopy}
	if typ != models.EventNone {
		tr.Year = sql.NullInt64{Int64: int64(year), Valid: true}
	}
	return tr
}

func TestPlotSeriesNormalization(t *testing.T) {
	trees := []models.TreeRecord{
		tree("p1", 1900, models.EventRelease, 10),
		tree("p1", 1900, models.EventGap, 10),
		tree("p1", 1950, models.EventRelease, 20),
		tree("p1", 0, models.EventNone, 40),
		tree("p1", 0, models.EventNone, 20),
	}

	got := PlotSeries(trees, PlotConfig{})
	if len(got) != 2 {
		t.Fatalf("len(series) = %d, want 2 (%v)", len(got), got)
	}
	// Total canopy 100 m²: 20% disturbed in 1900, 20% in 1950.
	if got[0].Year != 1900 || math.Abs(got[0].Percent-20) > 1e-9 {
		t.Errorf("series[0] = %+v, want 20%% in 1900", got[0])
	}
	if got[1].Year != 1950 || math.Abs(got[1].Percent-20) > 1e-9 {
		t.Errorf("series[1] = %+v, want 20%% in 1950", got[1])
	}
}

func TestPlotSeriesExcludesSmallPlots(t *testing.T) {
	// Four trees is below the five-tree minimum: the plot contributes
	// nothing, even though it has events.
	trees := []models.TreeRecord{
		tree("small", 1900, models.EventRelease, 10),
		tree("small", 1901, models.EventRelease, 10),
		tree("small", 1902, models.EventGap, 10),
		tree("small", 0, models.EventNone, 10),
	}

	if got := PlotSeries(trees, PlotConfig{}); len(got) != 0 {
		t.Errorf("series = %v, want empty for a 4-tree plot", got)
	}

	// A fifth tree brings it back in.
	trees = append(trees, tree("small", 0, models.EventNone, 10))
	if got := PlotSeries(trees, PlotConfig{}); len(got) == 0 {
		t.Error("series empty, want rows for a 5-tree plot")
	}
}

func TestPlotPeaks(t *testing.T) {
	// One concentrated disturbance: 60% of the plot canopy lost across
	// three consecutive years around 1900.
	plotEvents := []models.PlotEvent{
		{PlotID: "p1", Year: 1899, Percent: 15},
		{PlotID: "p1", Year: 1900, Percent: 30},
		{PlotID: "p1", Year: 1901, Percent: 15},
	}
	plots := map[string]models.Plot{
		"p1": {PlotID: "p1", Country: "cz", NewStand: "s1"},
	}

	got := PlotPeaks(plotEvents, plots, PlotConfig{})
	if len(got) != 1 {
		t.Fatalf("len(peaks) = %d, want 1 (%v)", len(got), got)
	}
	pk := got[0]
	if pk.Year < 1899 || pk.Year > 1901 {
		t.Errorf("peak year = %d, want near 1900", pk.Year)
	}
	if math.Abs(pk.Severity-60) > 1e-9 {
		t.Errorf("severity = %v, want 60", pk.Severity)
	}
	if pk.Country != "cz" || pk.NewStand != "s1" {
		t.Errorf("peak stand fields = %q/%q, want cz/s1", pk.Country, pk.NewStand)
	}
}

func TestPlotPeaksSeverityFloor(t *testing.T) {
	// A lone 8% blip smooths into a peak whose severity stays at or below
	// the floor and must be dropped.
	plotEvents := []models.PlotEvent{
		{PlotID: "p1", Year: 1900, Percent: 8},
	}
	plots := map[string]models.Plot{"p1": {PlotID: "p1"}}

	if got := PlotPeaks(plotEvents, plots, PlotConfig{Threshold: 0.5}); len(got) != 0 {
		t.Errorf("peaks = %v, want none below the severity floor", got)
	}
}
