package models

import (
	"database/sql"
	"fmt"
	"time"
)

// RingObservation is one dated ring-width measurement on a core.
// MissingMM and MissingYears carry the pith-offset correction estimated
// during crossdating; they only matter on a core's first measured year.
type RingObservation struct {
	CoreID       string
	Year         int
	IncrMM       float64
	MissingMM    float64
	MissingYears int
}

type TreeCore struct {
	TreeID    string
	CoreID    string
	PlotID    string
	Species   string
	DistParam string
	DBHMM     sql.NullFloat64
	CreatedAt time.Time
}

// DisturbanceParameter holds the species/site thresholds used for event
// detection. Immutable during a run.
type DisturbanceParameter struct {
	DistParam string
	AIMM      float64 // abrupt-increase threshold (mm/year)
	GapMM     float64 // gap-origin mean-increment threshold (mm/year)
}

// GrowthRecord is the derived per-(core, year) row: reconstructed diameter,
// age, and the windowed growth means feeding event detection. PG, FG and AI
// are NaN where the window is entirely undefined.
type GrowthRecord struct {
	CoreID string
	Year   int
	Age    int
	IncrMM float64
	DBHMM  float64
	PG     float64
	FG     float64
	AI     float64
}

type EventType string

const (
	EventRelease EventType = "release"
	EventGap     EventType = "gap"
	EventNone    EventType = "no event"
)

// Event is a classified disturbance signal on a core. Discarded releases are
// kept with Discarded set so downstream joins can see why a core has no
// surviving event.
type Event struct {
	CoreID    string
	TreeID    string
	PlotID    string
	Year      int
	Type      EventType
	Discarded bool
}

type Plot struct {
	PlotID    string
	Country   string
	Landscape string
	NewStand  string
	Latitude  float64
	Longitude float64
}

// TreeRecord is one row of the combined per-tree event table: the event
// assigned to a tree plus its canopy area from the species allometry,
// computed by the loader.
type TreeRecord struct {
	TreeID       string
	PlotID       string
	Species      string
	Year         sql.NullInt64
	Type         EventType
	CanopyAreaM2 float64
}

// PlotEvent is a per-(plot, year) disturbed canopy-area proportion, in
// percent of the plot's total sampled canopy area.
type PlotEvent struct {
	PlotID  string
	Year    int
	Percent float64
}

// PlotPeak is a detected local maximum in a plot's smoothed disturbance
// signal. Severity is the sum of raw canopy-percent values in a centered
// window around the peak year.
type PlotPeak struct {
	PlotID   string
	Country  string
	NewStand string
	Year     int
	Value    float64
	Severity float64
}

// StandPeak is a stand-level consensus peak surviving bootstrap resampling.
type StandPeak struct {
	Country  string
	NewStand string
	Year     int
	Share    float64 // share of replicates flagging a peak here, smoothed
}

// PeakID is the stable identifier for a stand peak.
func (p StandPeak) PeakID() string {
	return fmt.Sprintf("%s-%s-%d", p.Country, p.NewStand, p.Year)
}

// JoinedEvent associates a plot-level peak with its nearest stand peak in
// time. The atomic unit for severity-class rotation statistics.
type JoinedEvent struct {
	PlotID    string
	Country   string
	NewStand  string
	EventYear int
	PeakYear  int
	PeakID    string
	Severity  float64
}

// DisturbancePatch is an externally mapped spatial patch; an independent
// rotation-period track keyed by patch area.
type DisturbancePatch struct {
	Country   string
	Landscape string
	NewStand  string
	PeakYear  int
	AreaHa    float64
	StandHa   float64
}

// RotationEstimate is one output row: the rotation period for events of at
// least Class, with the bootstrap confidence bounds.
type RotationEstimate struct {
	Track    string // "severity", "patch", "proportion"
	Scope    string // "stand", "landscape", "overall"
	Group    string // stand or landscape name, "" for overall
	Class    float64
	Events   float64 // cumulative event count at this class (point estimate)
	Rotation float64 // years, point estimate
	CILow    sql.NullFloat64
	CIHigh   sql.NullFloat64
	Samples  int
}
