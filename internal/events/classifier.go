// Package events labels each core's growth history with release, gap-origin
// and no-event records.
package events

import (
	"fmt"
	"math"
	"sort"

	"github.com/remoteforests/disturbance/internal/models"
	"github.com/remoteforests/disturbance/internal/series"
)

const (
	// DefaultNProl is how many years a growth-rate step must persist on
	// both sides of a candidate year to count as a release.
	DefaultNProl = 7
	// DefaultMinDist separates successive release candidates on one core.
	DefaultMinDist = 30
	// DefaultNUps is the rising-run requirement for release candidates.
	DefaultNUps = 1
	// DefaultGapAgeMin and DefaultGapAgeMax bound the early-life window
	// examined by the gap-origin pass.
	DefaultGapAgeMin = 5
	DefaultGapAgeMax = 15
	// DefaultGapMinYears is the minimum number of qualifying early-life
	// records for a gap-origin classification.
	DefaultGapMinYears = 5
	// DefaultKeepWindow discards releases this many years after a gap on
	// the same core: a regeneration pulse, not an independent disturbance.
	DefaultKeepWindow = 30
)

type Config struct {
	NProl       int
	MinDist     int
	NUps        int
	GapAgeMin   int
	GapAgeMax   int
	GapMinYears int
	KeepWindow  int
}

func (c Config) withDefaults() Config {
	if c.NProl <= 0 {
		c.NProl = DefaultNProl
	}
	if c.MinDist <= 0 {
		c.MinDist = DefaultMinDist
	}
	if c.NUps <= 0 {
		c.NUps = DefaultNUps
	}
	if c.GapAgeMin <= 0 {
		c.GapAgeMin = DefaultGapAgeMin
	}
	if c.GapAgeMax <= 0 {
		c.GapAgeMax = DefaultGapAgeMax
	}
	if c.GapMinYears <= 0 {
		c.GapMinYears = DefaultGapMinYears
	}
	if c.KeepWindow <= 0 {
		c.KeepWindow = DefaultKeepWindow
	}
	return c
}

// Classify runs the release and gap-origin passes over every core and
// resolves conflicts between them. Cores with no surviving event get a
// synthetic no-event record at their earliest year so every sampled core
// still contributes to plot canopy totals.
func Classify(records []models.GrowthRecord, cores []models.TreeCore, params []models.DisturbanceParameter, cfg Config) ([]models.Event, error) {
	cfg = cfg.withDefaults()

	coreByID := make(map[string]models.TreeCore, len(cores))
	for _, c := range cores {
		coreByID[c.CoreID] = c
	}
	paramByClass := make(map[string]models.DisturbanceParameter, len(params))
	for _, p := range params {
		paramByClass[p.DistParam] = p
	}

	byCore := make(map[string][]models.GrowthRecord)
	for _, r := range records {
		byCore[r.CoreID] = append(byCore[r.CoreID], r)
	}
	coreIDs := make([]string, 0, len(byCore))
	for id := range byCore {
		coreIDs = append(coreIDs, id)
	}
	sort.Strings(coreIDs)

	var out []models.Event
	for _, id := range coreIDs {
		core, ok := coreByID[id]
		if !ok {
			continue
		}
		param, ok := paramByClass[core.DistParam]
		if !ok {
			return nil, fmt.Errorf("events: core %s has unknown disturbance parameter class %q", id, core.DistParam)
		}
		out = append(out, classifyCore(byCore[id], core, param, cfg)...)
	}
	return out, nil
}

func classifyCore(recs []models.GrowthRecord, core models.TreeCore, param models.DisturbanceParameter, cfg Config) []models.Event {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Year < recs[j].Year })

	evts := releases(recs, core, param, cfg)
	if gap, ok := gapOrigin(recs, core, param, cfg); ok {
		evts = append(evts, gap)
	}

	evts = keepRelease(evts, cfg.KeepWindow)

	surviving := 0
	for _, e := range evts {
		if !e.Discarded {
			surviving++
		}
	}
	if surviving == 0 {
		evts = append(evts, models.Event{
			CoreID: core.CoreID,
			TreeID: core.TreeID,
			PlotID: core.PlotID,
			Year:   recs[0].Year,
			Type:   models.EventNone,
		})
	}

	sort.Slice(evts, func(i, j int) bool { return evts[i].Year < evts[j].Year })
	return evts
}

// releases detects sustained step-changes in growth rate. A candidate peak
// in the abrupt-increase index survives only if following growth is still
// above the candidate's prior growth nprol years later, and prior growth was
// still below the candidate's following growth nprol years earlier.
func releases(recs []models.GrowthRecord, core models.TreeCore, param models.DisturbanceParameter, cfg Config) []models.Event {
	ai := make([]float64, len(recs))
	for i, r := range recs {
		ai[i] = r.AI
	}

	peaks := series.DetectPeaks(ai, series.PeakOptions{
		Threshold: param.AIMM,
		MinDist:   cfg.MinDist,
		NUps:      cfg.NUps,
	})

	var out []models.Event
	for _, i := range peaks {
		if !sustained(recs, i, cfg.NProl) {
			continue
		}
		out = append(out, models.Event{
			CoreID: core.CoreID,
			TreeID: core.TreeID,
			PlotID: core.PlotID,
			Year:   recs[i].Year,
			Type:   models.EventRelease,
		})
	}
	return out
}

// sustained discards a candidate only when a defined comparison shows the
// step-change did not persist. Comparisons that fall outside the series, or
// hit an undefined rolling mean, cannot disqualify the candidate.
func sustained(recs []models.GrowthRecord, i, nprol int) bool {
	if after := i + nprol; after < len(recs) && !math.IsNaN(recs[after].FG) {
		if recs[after].FG <= recs[i].PG {
			return false
		}
	}
	if before := i - nprol; before >= 0 && !math.IsNaN(recs[before].PG) {
		if recs[before].PG >= recs[i].FG {
			return false
		}
	}
	return true
}

// gapOrigin checks whether a core established in an open canopy gap: enough
// qualifying early-life years whose mean increment clears the species gap
// threshold. The gap year is the earliest qualifying year.
func gapOrigin(recs []models.GrowthRecord, core models.TreeCore, param models.DisturbanceParameter, cfg Config) (models.Event, bool) {
	var sum float64
	var n int
	firstYear := 0
	for _, r := range recs {
		if r.Age < cfg.GapAgeMin || r.Age > cfg.GapAgeMax {
			continue
		}
		if n == 0 {
			firstYear = r.Year
		}
		sum += r.IncrMM
		n++
	}
	if n < cfg.GapMinYears {
		return models.Event{}, false
	}
	if mean := sum / float64(n); mean < param.GapMM || math.IsNaN(mean) {
		return models.Event{}, false
	}
	return models.Event{
		CoreID: core.CoreID,
		TreeID: core.TreeID,
		PlotID: core.PlotID,
		Year:   firstYear,
		Type:   models.EventGap,
	}, true
}

// keepRelease marks releases within window years after a gap on the same
// core as discarded. A gap origin invalidates nearby releases as artifacts
// of the same regeneration pulse.
func keepRelease(evts []models.Event, window int) []models.Event {
	sort.Slice(evts, func(i, j int) bool { return evts[i].Year < evts[j].Year })

	gapYear := 0
	hasGap := false
	for _, e := range evts {
		if e.Type == models.EventGap {
			gapYear = e.Year
			hasGap = true
			break
		}
	}
	if !hasGap {
		return evts
	}

	for i, e := range evts {
		if e.Type != models.EventRelease {
			continue
		}
		if d := e.Year - gapYear; d >= 0 && d <= window {
			evts[i].Discarded = true
		}
	}
	return evts
}
