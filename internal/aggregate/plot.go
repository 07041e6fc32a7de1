// Package aggregate rolls tree events up into plot-level canopy series and
// peaks, stand-level bootstrap consensus peaks, and the nearest-year join
// between the two.
package aggregate

import (
	"sort"

	"github.com/remoteforests/disturbance/internal/models"
	"github.com/remoteforests/disturbance/internal/series"
)

const (
	// DefaultMinTrees excludes plots with fewer sampled trees from canopy
	// aggregation; smaller samples give unstable proportion estimates.
	DefaultMinTrees = 5
	// DefaultYearMin and DefaultYearMax bound the reconstructed historical
	// range. Dataset configuration, not algorithm parameters.
	DefaultYearMin = 1811
	DefaultYearMax = 1989
	// DefaultPlotThreshold, DefaultPlotNUps and DefaultPlotMinDist tune
	// peak detection on the smoothed plot signal.
	DefaultPlotThreshold = 10
	DefaultPlotNUps      = 5
	DefaultPlotMinDist   = 10
	// DefaultSeverityWindow is the centered window of raw canopy-percent
	// values summed into a peak's severity.
	DefaultSeverityWindow = 11
	// DefaultMinSeverity drops peaks at or below this severity.
	DefaultMinSeverity = 10
)

type PlotConfig struct {
	MinTrees       int
	YearMin        int
	YearMax        int
	Smooth         series.SmoothConfig
	Threshold      float64
	NUps           int
	MinDist        int
	SeverityWindow int
	MinSeverity    float64
}

func (c PlotConfig) withDefaults() PlotConfig {
	if c.MinTrees <= 0 {
		c.MinTrees = DefaultMinTrees
	}
	if c.YearMin == 0 {
		c.YearMin = DefaultYearMin
	}
	if c.YearMax == 0 {
		c.YearMax = DefaultYearMax
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultPlotThreshold
	}
	if c.NUps == 0 {
		c.NUps = DefaultPlotNUps
	}
	if c.MinDist == 0 {
		c.MinDist = DefaultPlotMinDist
	}
	if c.SeverityWindow == 0 {
		c.SeverityWindow = DefaultSeverityWindow
	}
	if c.MinSeverity == 0 {
		c.MinSeverity = DefaultMinSeverity
	}
	return c
}

// PlotSeries converts per-tree events into per-(plot, year) disturbed
// canopy-area percentages. Canopy area comes from the species allometry
// applied by the loader; each plot's disturbed area is normalized by the
// plot's total sampled canopy area. Plots under the tree minimum are
// excluded entirely.
func PlotSeries(trees []models.TreeRecord, cfg PlotConfig) []models.PlotEvent {
	cfg = cfg.withDefaults()

	byPlot := make(map[string][]models.TreeRecord)
	for _, tr := range trees {
		byPlot[tr.PlotID] = append(byPlot[tr.PlotID], tr)
	}
	plotIDs := make([]string, 0, len(byPlot))
	for id := range byPlot {
		plotIDs = append(plotIDs, id)
	}
	sort.Strings(plotIDs)

	var out []models.PlotEvent
	for _, id := range plotIDs {
		sample := byPlot[id]
		if len(sample) < cfg.MinTrees {
			continue
		}

		var total float64
		for _, tr := range sample {
			total += tr.CanopyAreaM2
		}
		if total <= 0 {
			continue
		}

		disturbed := make(map[int]float64)
		for _, tr := range sample {
			if tr.Type == models.EventNone || !tr.Year.Valid {
				continue
			}
			disturbed[int(tr.Year.Int64)] += tr.CanopyAreaM2
		}

		years := make([]int, 0, len(disturbed))
		for y := range disturbed {
			years = append(years, y)
		}
		sort.Ints(years)
		for _, y := range years {
			out = append(out, models.PlotEvent{
				PlotID:  id,
				Year:    y,
				Percent: 100 * disturbed[y] / total,
			})
		}
	}
	return out
}

// PlotPeaks detects disturbance peaks in each plot's smoothed canopy-percent
// signal, over the configured year range gap-filled with zero. Severity is
// the sum of a centered window of raw canopy-percent values around the peak;
// peaks at or below the severity floor are dropped.
func PlotPeaks(plotEvents []models.PlotEvent, plots map[string]models.Plot, cfg PlotConfig) []models.PlotPeak {
	cfg = cfg.withDefaults()
	span := cfg.YearMax - cfg.YearMin + 1

	byPlot := make(map[string][]float64)
	for _, pe := range plotEvents {
		if pe.Year < cfg.YearMin || pe.Year > cfg.YearMax {
			continue
		}
		raw, ok := byPlot[pe.PlotID]
		if !ok {
			raw = make([]float64, span)
			byPlot[pe.PlotID] = raw
		}
		raw[pe.Year-cfg.YearMin] += pe.Percent
	}
	plotIDs := make([]string, 0, len(byPlot))
	for id := range byPlot {
		plotIDs = append(plotIDs, id)
	}
	sort.Strings(plotIDs)

	var out []models.PlotPeak
	for _, id := range plotIDs {
		raw := byPlot[id]
		smoothed := series.Smooth(raw, cfg.Smooth)
		idxs := series.DetectPeaks(smoothed, series.PeakOptions{
			Threshold: cfg.Threshold,
			NUps:      cfg.NUps,
			MinDist:   cfg.MinDist,
		})
		for _, i := range idxs {
			sev := severity(raw, i, cfg.SeverityWindow)
			if sev <= cfg.MinSeverity {
				continue
			}
			peak := models.PlotPeak{
				PlotID:   id,
				Year:     cfg.YearMin + i,
				Value:    smoothed[i],
				Severity: sev,
			}
			if p, ok := plots[id]; ok {
				peak.Country = p.Country
				peak.NewStand = p.NewStand
			}
			out = append(out, peak)
		}
	}
	return out
}

// severity sums the centered window of raw values around index i, clipped to
// the series bounds.
func severity(raw []float64, i, window int) float64 {
	lo := i - window/2
	hi := lo + window
	if lo < 0 {
		lo = 0
	}
	if hi > len(raw) {
		hi = len(raw)
	}
	var sum float64
	for _, v := range raw[lo:hi] {
		sum += v
	}
	return sum
}
