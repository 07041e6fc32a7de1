package rotation

import (
	"context"
	"database/sql"
	"math"
	"sort"

	"github.com/remoteforests/disturbance/internal/models"
)

const (
	// DefaultEndYear closes every unit's observation record. Dataset
	// configuration, not an algorithm parameter.
	DefaultEndYear = 1990
	// DefaultSeverityWidth buckets joined-event severities.
	DefaultSeverityWidth = 5
	// DefaultPatchWidth buckets patch areas, in hectares.
	DefaultPatchWidth = 10
	// DefaultProportionWidth buckets the proportion of a stand's plots
	// disturbed at one stand peak.
	DefaultProportionWidth = 0.1
	// DefaultMinStandHa drops patches in stands too small for a stable
	// patch-size distribution.
	DefaultMinStandHa = 20
)

// SeverityUnits builds one sampling unit per plot: record length from the
// plot's first disturbance to the end year, events carrying the severities
// of the plot's joined peaks.
func SeverityUnits(joined []models.JoinedEvent, plots map[string]models.Plot, endYear int) []Unit {
	if endYear == 0 {
		endYear = DefaultEndYear
	}

	byPlot := make(map[string][]models.JoinedEvent)
	for _, je := range joined {
		byPlot[je.PlotID] = append(byPlot[je.PlotID], je)
	}
	ids := make([]string, 0, len(byPlot))
	for id := range byPlot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	units := make([]Unit, 0, len(ids))
	for _, id := range ids {
		events := byPlot[id]
		first := events[0].EventYear
		severities := make([]float64, len(events))
		for i, je := range events {
			if je.EventYear < first {
				first = je.EventYear
			}
			severities[i] = je.Severity
		}
		u := Unit{
			ID:     id,
			Span:   float64(endYear - first),
			Events: severities,
		}
		if p, ok := plots[id]; ok {
			u.Country = p.Country
			u.Landscape = p.Landscape
			u.Stand = p.NewStand
		}
		units = append(units, u)
	}
	return units
}

// PatchUnits builds one sampling unit per mapped disturbance patch, skipping
// patches in stands at or below the minimum stand area.
func PatchUnits(patches []models.DisturbancePatch, minStandHa float64, endYear int) []Unit {
	if endYear == 0 {
		endYear = DefaultEndYear
	}
	if minStandHa == 0 {
		minStandHa = DefaultMinStandHa
	}

	var units []Unit
	for _, p := range patches {
		if p.StandHa <= minStandHa {
			continue
		}
		units = append(units, Unit{
			ID:        models.StandPeak{Country: p.Country, NewStand: p.NewStand, Year: p.PeakYear}.PeakID(),
			Country:   p.Country,
			Landscape: p.Landscape,
			Stand:     p.NewStand,
			Span:      float64(endYear - p.PeakYear),
			Events:    []float64{p.AreaHa},
		})
	}
	return units
}

// ProportionUnits builds one sampling unit per stand: record length from the
// stand's first consensus peak, events carrying the proportion of the
// stand's plots disturbed at each peak.
func ProportionUnits(standPeaks []models.StandPeak, joined []models.JoinedEvent, plots []models.Plot, endYear int) []Unit {
	if endYear == 0 {
		endYear = DefaultEndYear
	}

	type key = struct{ country, stand string }
	plotCount := make(map[key]int)
	landscape := make(map[key]string)
	for _, p := range plots {
		k := key{p.Country, p.NewStand}
		plotCount[k]++
		landscape[k] = p.Landscape
	}

	// Distinct plots joined to each stand peak.
	plotsAtPeak := make(map[string]map[string]bool)
	for _, je := range joined {
		if plotsAtPeak[je.PeakID] == nil {
			plotsAtPeak[je.PeakID] = make(map[string]bool)
		}
		plotsAtPeak[je.PeakID][je.PlotID] = true
	}

	byStand := make(map[key][]models.StandPeak)
	for _, sp := range standPeaks {
		k := key{sp.Country, sp.NewStand}
		byStand[k] = append(byStand[k], sp)
	}
	keys := make([]key, 0, len(byStand))
	for k := range byStand {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].country != keys[j].country {
			return keys[i].country < keys[j].country
		}
		return keys[i].stand < keys[j].stand
	})

	var units []Unit
	for _, k := range keys {
		n := plotCount[k]
		if n == 0 {
			continue
		}
		peaks := byStand[k]
		first := peaks[0].Year
		props := make([]float64, 0, len(peaks))
		for _, sp := range peaks {
			if sp.Year < first {
				first = sp.Year
			}
			props = append(props, float64(len(plotsAtPeak[sp.PeakID()]))/float64(n))
		}
		units = append(units, Unit{
			ID:        k.country + "-" + k.stand,
			Country:   k.country,
			Landscape: landscape[k],
			Stand:     k.stand,
			Span:      float64(endYear - first),
			Events:    props,
		})
	}
	return units
}

// EstimateScopes runs the estimator at overall, landscape and stand scope
// and flattens the results into output rows for one track.
func EstimateScopes(ctx context.Context, track string, units []Unit, cfg Config) ([]models.RotationEstimate, error) {
	var out []models.RotationEstimate

	add := func(scope, group string, subset []Unit) error {
		ests, err := Estimate(ctx, subset, cfg)
		if err != nil {
			return err
		}
		for _, e := range ests {
			row := models.RotationEstimate{
				Track:    track,
				Scope:    scope,
				Group:    group,
				Class:    e.Class,
				Events:   e.Events,
				Rotation: e.Rotation,
				Samples:  e.Samples,
			}
			if !math.IsNaN(e.CILow) {
				row.CILow = sql.NullFloat64{Float64: e.CILow, Valid: true}
				row.CIHigh = sql.NullFloat64{Float64: e.CIHigh, Valid: true}
			}
			out = append(out, row)
		}
		return nil
	}

	if err := add("overall", "", units); err != nil {
		return nil, err
	}

	for _, scope := range []struct {
		name string
		key  func(Unit) string
	}{
		{"landscape", func(u Unit) string { return u.Country + "-" + u.Landscape }},
		{"stand", func(u Unit) string { return u.Country + "-" + u.Stand }},
	} {
		groups := make(map[string][]Unit)
		for _, u := range units {
			groups[scope.key(u)] = append(groups[scope.key(u)], u)
		}
		names := make([]string, 0, len(groups))
		for name := range groups {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := add(scope.name, name, groups[name]); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
