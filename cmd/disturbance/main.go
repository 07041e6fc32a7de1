package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "modernc.org/sqlite"

	"github.com/remoteforests/disturbance/internal/pipeline"
	"github.com/remoteforests/disturbance/internal/store"
)

type app struct {
	ctx      context.Context
	pipeline *pipeline.Pipeline
	store    *store.Store
}

type cli struct {
	DB          string `help:"Path to the SQLite database." default:"data/disturbance.db" env:"DISTURBANCE_DB"`
	Seed        uint64 `help:"Random seed for bootstrap resampling." default:"1"`
	Replicates  int    `help:"Bootstrap replicate count for stand consensus and rotation." default:"1000"`
	EndYear     int    `help:"End of the observation record, closing every unit's record length." default:"1990"`
	MetricsAddr string `help:"Optional address to serve Prometheus metrics on." name:"metrics-addr"`

	Run      runCmd      `cmd:"" default:"1" help:"Run the full pipeline: events, peaks, rotation."`
	Events   eventsCmd   `cmd:"" help:"Classify per-core release and gap-origin events."`
	Peaks    peaksCmd    `cmd:"" help:"Aggregate events into plot and stand peaks and join them."`
	Rotation rotationCmd `cmd:"" help:"Estimate rotation periods from saved peaks and patches."`
}

type runCmd struct{}

func (c *runCmd) Run(a *app) error {
	return a.pipeline.Run(a.ctx)
}

type eventsCmd struct{}

func (c *eventsCmd) Run(a *app) error {
	_, err := a.pipeline.RunEvents(a.ctx)
	return err
}

type peaksCmd struct{}

func (c *peaksCmd) Run(a *app) error {
	_, err := a.pipeline.RunPeaks(a.ctx)
	return err
}

type rotationCmd struct{}

func (c *rotationCmd) Run(a *app) error {
	return a.pipeline.RunRotation(a.ctx, nil)
}

func main() {
	var flags cli
	kctx := kong.Parse(&flags,
		kong.Name("disturbance"),
		kong.Description("Reconstructs forest canopy disturbance history from tree-ring series and estimates rotation periods."),
	)

	db, err := sql.Open("sqlite", flags.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	cfg := pipeline.Config{Seed: flags.Seed, EndYear: flags.EndYear}
	cfg.Stand.Replicates = flags.Replicates
	cfg.Rotation.Replicates = flags.Replicates

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if flags.MetricsAddr != "" {
		go func() {
			log.Printf("serving metrics on %s", flags.MetricsAddr)
			if err := http.ListenAndServe(flags.MetricsAddr, promhttp.Handler()); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	err = kctx.Run(&app{
		ctx:      ctx,
		pipeline: pipeline.New(st, cfg),
		store:    st,
	})
	kctx.FatalIfErrorf(err)
}
