package aggregate

import (
	"sort"

	"github.com/remoteforests/disturbance/internal/models"
)

type JoinConfig struct {
	YearMin int
	YearMax int
}

func (c JoinConfig) withDefaults() JoinConfig {
	if c.YearMin == 0 {
		c.YearMin = DefaultYearMin
	}
	if c.YearMax == 0 {
		c.YearMax = DefaultYearMax
	}
	return c
}

// JoinEvents associates every plot-level peak in range with the nearest
// stand peak in time within the same (country, stand). Plot detection and
// stand consensus rarely land on the identical calendar year, so this is a
// roll-to-nearest join, not an exact match; ties resolve to the earlier
// stand peak. Events in stands without any stand peak are left unjoined and
// dropped.
func JoinEvents(peaks []models.PlotPeak, standPeaks []models.StandPeak, cfg JoinConfig) []models.JoinedEvent {
	cfg = cfg.withDefaults()

	byStand := make(map[standKey][]models.StandPeak)
	for _, sp := range standPeaks {
		k := standKey{sp.Country, sp.NewStand}
		byStand[k] = append(byStand[k], sp)
	}
	for k := range byStand {
		sort.Slice(byStand[k], func(i, j int) bool { return byStand[k][i].Year < byStand[k][j].Year })
	}

	var out []models.JoinedEvent
	for _, pk := range peaks {
		if pk.Year < cfg.YearMin || pk.Year > cfg.YearMax {
			continue
		}
		candidates := byStand[standKey{pk.Country, pk.NewStand}]
		if len(candidates) == 0 {
			continue
		}
		sp := nearestPeak(candidates, pk.Year)
		out = append(out, models.JoinedEvent{
			PlotID:    pk.PlotID,
			Country:   pk.Country,
			NewStand:  pk.NewStand,
			EventYear: pk.Year,
			PeakYear:  sp.Year,
			PeakID:    sp.PeakID(),
			Severity:  pk.Severity,
		})
	}
	return out
}

// nearestPeak binary-searches the year-sorted stand peaks for the one
// closest to year, preferring the earlier peak on a tie.
func nearestPeak(sorted []models.StandPeak, year int) models.StandPeak {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i].Year >= year })
	if i == 0 {
		return sorted[0]
	}
	if i == len(sorted) {
		return sorted[len(sorted)-1]
	}
	before, after := sorted[i-1], sorted[i]
	if year-before.Year <= after.Year-year {
		return before
	}
	return after
}
