// Package pipeline orchestrates the staged reconstruction: ring series to
// tree events, tree events to plot and stand peaks, joined events to
// rotation statistics. Each stage is a pure transformation; this package
// only wires them to the store and the logs.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/remoteforests/disturbance/internal/aggregate"
	"github.com/remoteforests/disturbance/internal/events"
	"github.com/remoteforests/disturbance/internal/growth"
	"github.com/remoteforests/disturbance/internal/metrics"
	"github.com/remoteforests/disturbance/internal/models"
	"github.com/remoteforests/disturbance/internal/rotation"
	"github.com/remoteforests/disturbance/internal/store"
)

type Config struct {
	Seed     uint64
	Growth   growth.Config
	Events   events.Config
	Plot     aggregate.PlotConfig
	Stand    aggregate.StandConfig
	Join     aggregate.JoinConfig
	Rotation rotation.Config
	EndYear  int
}

type Pipeline struct {
	store *store.Store
	cfg   Config
}

func New(s *store.Store, cfg Config) *Pipeline {
	cfg.Stand.Seed = cfg.Seed
	cfg.Rotation.Seed = cfg.Seed
	if cfg.Stand.Replicates == 0 {
		cfg.Stand.Replicates = aggregate.DefaultReplicates
	}
	if cfg.Rotation.Replicates == 0 {
		cfg.Rotation.Replicates = rotation.DefaultReplicates
	}
	return &Pipeline{store: s, cfg: cfg}
}

// Run executes every stage in order. A validation failure on the input
// tables aborts before anything is written.
func (p *Pipeline) Run(ctx context.Context) error {
	if _, err := p.RunEvents(ctx); err != nil {
		return err
	}
	joined, err := p.RunPeaks(ctx)
	if err != nil {
		return err
	}
	return p.RunRotation(ctx, joined)
}

// RunEvents classifies every core and persists the per-core events.
func (p *Pipeline) RunEvents(ctx context.Context) ([]models.Event, error) {
	defer stageTimer("events")()

	rings, err := p.store.GetRings()
	if err != nil {
		return nil, fmt.Errorf("load rings: %w", err)
	}
	cores, err := p.store.GetCores()
	if err != nil {
		return nil, fmt.Errorf("load cores: %w", err)
	}
	params, err := p.store.GetDistParams()
	if err != nil {
		return nil, fmt.Errorf("load disturbance parameters: %w", err)
	}

	records, err := growth.Build(rings, cores, params, p.cfg.Growth)
	if err != nil {
		return nil, err
	}
	log.Printf("events: built %d growth records from %d cores", len(records), len(cores))

	evts, err := events.Classify(records, cores, params, p.cfg.Events)
	if err != nil {
		return nil, err
	}
	metrics.CoresClassified.Add(float64(len(cores)))
	counts := map[models.EventType]int{}
	for _, e := range evts {
		if !e.Discarded {
			counts[e.Type]++
			metrics.EventsDetected.WithLabelValues(string(e.Type)).Inc()
		}
	}
	log.Printf("events: %d releases, %d gap origins, %d no-event cores",
		counts[models.EventRelease], counts[models.EventGap], counts[models.EventNone])

	if err := p.store.ReplaceEvents(evts); err != nil {
		return nil, fmt.Errorf("save events: %w", err)
	}
	return evts, nil
}

// RunPeaks aggregates tree events upward: plot canopy series and peaks,
// stand bootstrap consensus peaks, and the nearest-year join between them.
func (p *Pipeline) RunPeaks(ctx context.Context) ([]models.JoinedEvent, error) {
	defer stageTimer("peaks")()

	trees, err := p.store.GetTrees()
	if err != nil {
		return nil, fmt.Errorf("load trees: %w", err)
	}
	plots, err := p.store.GetPlots()
	if err != nil {
		return nil, fmt.Errorf("load plots: %w", err)
	}
	plotByID := make(map[string]models.Plot, len(plots))
	for _, pl := range plots {
		plotByID[pl.PlotID] = pl
	}

	plotEvents := aggregate.PlotSeries(trees, p.cfg.Plot)
	plotPeaks := aggregate.PlotPeaks(plotEvents, plotByID, p.cfg.Plot)
	metrics.PeaksDetected.WithLabelValues("plot").Add(float64(len(plotPeaks)))
	log.Printf("peaks: %d plot peaks from %d plot-year rows", len(plotPeaks), len(plotEvents))
	if err := p.store.ReplacePlotPeaks(plotPeaks); err != nil {
		return nil, fmt.Errorf("save plot peaks: %w", err)
	}

	standPeaks, err := aggregate.StandPeaks(ctx, plotPeaks, plots, p.cfg.Stand)
	if err != nil {
		return nil, err
	}
	metrics.PeaksDetected.WithLabelValues("stand").Add(float64(len(standPeaks)))
	metrics.BootstrapReplicates.WithLabelValues("stand").Add(float64(p.cfg.Stand.Replicates))
	log.Printf("peaks: %d stand consensus peaks", len(standPeaks))
	if err := p.store.ReplaceStandPeaks(standPeaks); err != nil {
		return nil, fmt.Errorf("save stand peaks: %w", err)
	}

	joined := aggregate.JoinEvents(plotPeaks, standPeaks, p.cfg.Join)
	log.Printf("peaks: %d plot events joined to stand peaks", len(joined))
	if err := p.store.ReplaceJoinedEvents(joined); err != nil {
		return nil, fmt.Errorf("save joined events: %w", err)
	}
	return joined, nil
}

// RunRotation estimates rotation periods on all three tracks. Pass nil to
// load joined events from the store.
func (p *Pipeline) RunRotation(ctx context.Context, joined []models.JoinedEvent) error {
	defer stageTimer("rotation")()

	if joined == nil {
		var err error
		joined, err = p.store.GetJoinedEvents()
		if err != nil {
			return fmt.Errorf("load joined events: %w", err)
		}
	}
	plots, err := p.store.GetPlots()
	if err != nil {
		return fmt.Errorf("load plots: %w", err)
	}
	standPeaks, err := p.store.GetStandPeaks()
	if err != nil {
		return fmt.Errorf("load stand peaks: %w", err)
	}
	patches, err := p.store.GetPatches()
	if err != nil {
		return fmt.Errorf("load patches: %w", err)
	}

	plotByID := make(map[string]models.Plot, len(plots))
	for _, pl := range plots {
		plotByID[pl.PlotID] = pl
	}

	var rows []models.RotationEstimate
	tracks := []struct {
		name  string
		units []rotation.Unit
		width float64
	}{
		{"severity", rotation.SeverityUnits(joined, plotByID, p.cfg.EndYear), rotation.DefaultSeverityWidth},
		{"patch", rotation.PatchUnits(patches, 0, p.cfg.EndYear), rotation.DefaultPatchWidth},
		{"proportion", rotation.ProportionUnits(standPeaks, joined, plots, p.cfg.EndYear), rotation.DefaultProportionWidth},
	}
	for _, tr := range tracks {
		cfg := p.cfg.Rotation
		cfg.ClassWidth = tr.width
		ests, err := rotation.EstimateScopes(ctx, tr.name, tr.units, cfg)
		if err != nil {
			return err
		}
		metrics.BootstrapReplicates.WithLabelValues("rotation").Add(float64(cfg.Replicates))
		log.Printf("rotation: %s track, %d units, %d estimate rows", tr.name, len(tr.units), len(ests))
		rows = append(rows, ests...)
	}

	if err := p.store.ReplaceRotationEstimates(rows); err != nil {
		return fmt.Errorf("save rotation estimates: %w", err)
	}
	return nil
}

func stageTimer(stage string) func() {
	start := time.Now()
	return func() {
		metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
