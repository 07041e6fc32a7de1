package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CoresClassified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "disturbance_cores_classified_total",
			Help: "Tree cores run through event classification",
		},
	)

	EventsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disturbance_events_detected_total",
			Help: "Per-core events by type, surviving conflict resolution",
		},
		[]string{"type"},
	)

	PeaksDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disturbance_peaks_detected_total",
			Help: "Disturbance peaks by aggregation level",
		},
		[]string{"level"},
	)

	BootstrapReplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disturbance_bootstrap_replicates_total",
			Help: "Bootstrap replicates computed, by stage",
		},
		[]string{"stage"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "disturbance_stage_duration_seconds",
			Help:    "Wall time per pipeline stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
)
