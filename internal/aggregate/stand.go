package aggregate

import (
	"context"
	"math/rand/v2"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/remoteforests/disturbance/internal/models"
	"github.com/remoteforests/disturbance/internal/series"
)

const (
	// DefaultReplicates is the number of bootstrap resamples per stand.
	DefaultReplicates = 1000
	// DefaultPlotsPerReplicate is how many plots each resample draws, with
	// replacement.
	DefaultPlotsPerReplicate = 10
	// DefaultStandNUps and DefaultStandMinDist tune per-replicate peak
	// detection on the smoothed frequency signal.
	DefaultStandNUps    = 5
	DefaultStandMinDist = 10
	// DefaultStandMA is the moving-average length applied on top of the
	// kernel smoothing within each replicate.
	DefaultStandMA = 5
	// DefaultConsensusK smooths the across-replicate peak frequencies.
	DefaultConsensusK = 11
	// DefaultMinShare is the smoothed share of replicates that must flag a
	// year for it to qualify as a stand peak candidate.
	DefaultMinShare = 0.05
)

type StandConfig struct {
	YearMin           int
	YearMax           int
	Replicates        int
	PlotsPerReplicate int
	Threshold         float64 // per-replicate detection threshold, near zero
	NUps              int
	MinDist           int
	MovingAverage     int
	Smooth            series.SmoothConfig
	ConsensusK        int
	MinShare          float64
	Seed              uint64
	Parallelism       int
}

func (c StandConfig) withDefaults() StandConfig {
	if c.YearMin == 0 {
		c.YearMin = DefaultYearMin
	}
	if c.YearMax == 0 {
		c.YearMax = DefaultYearMax
	}
	if c.Replicates <= 0 {
		c.Replicates = DefaultReplicates
	}
	if c.PlotsPerReplicate <= 0 {
		c.PlotsPerReplicate = DefaultPlotsPerReplicate
	}
	if c.NUps == 0 {
		c.NUps = DefaultStandNUps
	}
	if c.MinDist == 0 {
		c.MinDist = DefaultStandMinDist
	}
	if c.MovingAverage == 0 {
		c.MovingAverage = DefaultStandMA
	}
	if c.ConsensusK == 0 {
		c.ConsensusK = DefaultConsensusK
	}
	if c.MinShare == 0 {
		c.MinShare = DefaultMinShare
	}
	if c.Parallelism <= 0 {
		c.Parallelism = runtime.GOMAXPROCS(0)
	}
	return c
}

type standKey struct {
	country string
	stand   string
}

// StandPeaks separates shared disturbance episodes from plot-specific noise.
// Per (country, stand) it resamples plots with replacement, detects peaks in
// each replicate's smoothed event-frequency signal, and keeps only the years
// where peaks recur across a stable share of replicates. Replicates get
// independent PCG streams derived from the seed, so results are identical
// under any execution order.
func StandPeaks(ctx context.Context, peaks []models.PlotPeak, plots []models.Plot, cfg StandConfig) ([]models.StandPeak, error) {
	cfg = cfg.withDefaults()

	plotsByStand := make(map[standKey][]string)
	for _, p := range plots {
		k := standKey{p.Country, p.NewStand}
		plotsByStand[k] = append(plotsByStand[k], p.PlotID)
	}
	eventYearsByPlot := make(map[string][]int)
	for _, pk := range peaks {
		if pk.Year < cfg.YearMin || pk.Year > cfg.YearMax {
			continue
		}
		eventYearsByPlot[pk.PlotID] = append(eventYearsByPlot[pk.PlotID], pk.Year)
	}

	keys := make([]standKey, 0, len(plotsByStand))
	for k := range plotsByStand {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].country != keys[j].country {
			return keys[i].country < keys[j].country
		}
		return keys[i].stand < keys[j].stand
	})

	var out []models.StandPeak
	for standIdx, k := range keys {
		ids := plotsByStand[k]
		sort.Strings(ids)

		// Derive a distinct stream family per stand so adding a stand
		// never shifts another stand's draws.
		standSeed := cfg.Seed + uint64(standIdx)<<32
		standPeaks, err := consensusPeaks(ctx, ids, eventYearsByPlot, standSeed, cfg)
		if err != nil {
			return nil, err
		}
		for _, sp := range standPeaks {
			sp.Country = k.country
			sp.NewStand = k.stand
			out = append(out, sp)
		}
	}
	return out, nil
}

func consensusPeaks(ctx context.Context, plotIDs []string, eventYears map[string][]int, seed uint64, cfg StandConfig) ([]models.StandPeak, error) {
	span := cfg.YearMax - cfg.YearMin + 1
	flagged := make([][]int, cfg.Replicates)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallelism)
	for rep := 0; rep < cfg.Replicates; rep++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seed, uint64(rep)))
			freq := make([]float64, span)
			for i := 0; i < cfg.PlotsPerReplicate; i++ {
				id := plotIDs[rng.IntN(len(plotIDs))]
				for _, y := range eventYears[id] {
					freq[y-cfg.YearMin] += 1 / float64(cfg.PlotsPerReplicate)
				}
			}
			sm := series.MovingAverage(series.Smooth(freq, cfg.Smooth), cfg.MovingAverage)
			flagged[rep] = series.DetectPeaks(sm, series.PeakOptions{
				Threshold: cfg.Threshold,
				NUps:      cfg.NUps,
				MinDist:   cfg.MinDist,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Share of replicates flagging a peak in each year.
	share := make([]float64, span)
	for _, idxs := range flagged {
		for _, i := range idxs {
			share[i] += 1 / float64(cfg.Replicates)
		}
	}

	smoothed := series.Smooth(share, series.SmoothConfig{K: cfg.ConsensusK, Total: cfg.Smooth.Total})
	idxs := series.DetectPeaks(smoothed, series.PeakOptions{
		Threshold: cfg.MinShare,
		NUps:      0,
		MinDist:   cfg.MinDist,
	})

	out := make([]models.StandPeak, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, models.StandPeak{
			Year:  cfg.YearMin + i,
			Share: smoothed[i],
		})
	}
	return out, nil
}
