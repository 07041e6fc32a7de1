// Package growth reconstructs per-core diameter, age and abrupt-increase
// series from dated ring-width increments.
package growth

import (
	"fmt"
	"sort"

	"github.com/remoteforests/disturbance/internal/models"
	"github.com/remoteforests/disturbance/internal/series"
)

// DefaultWindow is the rolling window length, in years, for the prior and
// following growth means.
const DefaultWindow = 10

type Config struct {
	// Window is the rolling mean window length. Zero selects DefaultWindow.
	Window int
}

// Build derives one GrowthRecord per (core, year) from the three required
// input tables. A missing or empty table aborts the whole batch; no partial
// results are emitted.
//
// Per core, ordered by year: the first year's increment absorbs the pith
// offset correction, increments are cumulated and doubled into a running
// diameter, and the curve is rescaled so its final value matches the measured
// dbh when one exists.
func Build(rings []models.RingObservation, cores []models.TreeCore, params []models.DisturbanceParameter, cfg Config) ([]models.GrowthRecord, error) {
	if len(rings) == 0 {
		return nil, fmt.Errorf("growth: required ring table is missing or empty")
	}
	if len(cores) == 0 {
		return nil, fmt.Errorf("growth: required core table is missing or empty")
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("growth: required disturbance parameter table is missing or empty")
	}

	coreByID := make(map[string]models.TreeCore, len(cores))
	for _, c := range cores {
		coreByID[c.CoreID] = c
	}

	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}

	byCore := make(map[string][]models.RingObservation)
	for _, r := range rings {
		byCore[r.CoreID] = append(byCore[r.CoreID], r)
	}

	coreIDs := make([]string, 0, len(byCore))
	for id := range byCore {
		coreIDs = append(coreIDs, id)
	}
	sort.Strings(coreIDs)

	var out []models.GrowthRecord
	for _, id := range coreIDs {
		core, ok := coreByID[id]
		if !ok {
			// Rings without core metadata cannot be classified; skip.
			continue
		}
		recs, err := buildCore(byCore[id], core, window)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func buildCore(obs []models.RingObservation, core models.TreeCore, window int) ([]models.GrowthRecord, error) {
	sort.Slice(obs, func(i, j int) bool { return obs[i].Year < obs[j].Year })
	for i := 1; i < len(obs); i++ {
		if obs[i].Year == obs[i-1].Year {
			return nil, fmt.Errorf("growth: core %s has duplicate year %d", core.CoreID, obs[i].Year)
		}
	}

	incr := make([]float64, len(obs))
	for i, o := range obs {
		incr[i] = o.IncrMM
	}

	// First year absorbs the radius missed by coring past the pith.
	grown := make([]float64, len(obs))
	copy(grown, incr)
	grown[0] += obs[0].MissingMM

	dbh := make([]float64, len(obs))
	var cum float64
	for i, g := range grown {
		cum += g
		dbh[i] = cum * 2
	}

	// Calibrate the reconstructed curve to the one true measurement.
	scale := 1.0
	if core.DBHMM.Valid && dbh[len(dbh)-1] > 0 {
		scale = core.DBHMM.Float64 / dbh[len(dbh)-1]
	}

	pg := series.PriorGrowth(incr, window)
	fg := series.FollowGrowth(incr, window)

	firstYear := obs[0].Year
	missingYears := obs[0].MissingYears

	out := make([]models.GrowthRecord, len(obs))
	for i, o := range obs {
		out[i] = models.GrowthRecord{
			CoreID: core.CoreID,
			Year:   o.Year,
			Age:    (o.Year - firstYear) + missingYears + 1,
			IncrMM: o.IncrMM,
			DBHMM:  dbh[i] * scale,
			PG:     pg[i],
			FG:     fg[i],
			AI:     fg[i] - pg[i],
		}
	}
	return out, nil
}
