// Package store persists the pipeline's input tables and derived outputs in
// SQLite. How rows get loaded into the input tables is the caller's concern;
// the pipeline only requires the join keys and column semantics to match.
package store

import (
	"database/sql"
	"fmt"

	"github.com/remoteforests/disturbance/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// bulkInsert runs fn for every index inside one transaction. Output tables
// are replaced wholesale per run, so partial writes never survive.
func (s *Store) bulkInsert(query string, n int, args func(i int) []any) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.Exec(args(i)...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) replace(table, query string, n int, args func(i int) []any) error {
	if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if n == 0 {
		return nil
	}
	if err := s.bulkInsert(query, n, args); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// --- input tables ---

func (s *Store) InsertRings(rings []models.RingObservation) error {
	return s.bulkInsert(`
		INSERT INTO rings (core_id, year, incr_mm, missing_mm, missing_years)
		VALUES (?, ?, ?, ?, ?)
	`, len(rings), func(i int) []any {
		r := rings[i]
		return []any{r.CoreID, r.Year, r.IncrMM, r.MissingMM, r.MissingYears}
	})
}

func (s *Store) GetRings() ([]models.RingObservation, error) {
	rows, err := s.db.Query(`
		SELECT core_id, year, incr_mm, missing_mm, missing_years
		FROM rings ORDER BY core_id, year
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RingObservation
	for rows.Next() {
		var r models.RingObservation
		if err := rows.Scan(&r.CoreID, &r.Year, &r.IncrMM, &r.MissingMM, &r.MissingYears); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpsertCore(c models.TreeCore) error {
	_, err := s.db.Exec(`
		INSERT INTO cores (core_id, tree_id, plot_id, species, dist_param, dbh_mm)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(core_id) DO UPDATE SET
			tree_id = excluded.tree_id,
			plot_id = excluded.plot_id,
			species = excluded.species,
			dist_param = excluded.dist_param,
			dbh_mm = excluded.dbh_mm
	`, c.CoreID, c.TreeID, c.PlotID, c.Species, c.DistParam, c.DBHMM)
	return err
}

func (s *Store) GetCores() ([]models.TreeCore, error) {
	rows, err := s.db.Query(`
		SELECT core_id, tree_id, plot_id, COALESCE(species, ''), dist_param, dbh_mm, created_at
		FROM cores ORDER BY core_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TreeCore
	for rows.Next() {
		var c models.TreeCore
		if err := rows.Scan(&c.CoreID, &c.TreeID, &c.PlotID, &c.Species, &c.DistParam, &c.DBHMM, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpsertDistParam(p models.DisturbanceParameter) error {
	_, err := s.db.Exec(`
		INSERT INTO dist_params (dist_param, ai_mm, gap_mm)
		VALUES (?, ?, ?)
		ON CONFLICT(dist_param) DO UPDATE SET
			ai_mm = excluded.ai_mm,
			gap_mm = excluded.gap_mm
	`, p.DistParam, p.AIMM, p.GapMM)
	return err
}

func (s *Store) GetDistParams() ([]models.DisturbanceParameter, error) {
	rows, err := s.db.Query(`SELECT dist_param, ai_mm, gap_mm FROM dist_params ORDER BY dist_param`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DisturbanceParameter
	for rows.Next() {
		var p models.DisturbanceParameter
		if err := rows.Scan(&p.DistParam, &p.AIMM, &p.GapMM); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) InsertTrees(trees []models.TreeRecord) error {
	return s.bulkInsert(`
		INSERT INTO trees (tree_id, plot_id, species, year, event, canopy_area_m2)
		VALUES (?, ?, ?, ?, ?, ?)
	`, len(trees), func(i int) []any {
		t := trees[i]
		return []any{t.TreeID, t.PlotID, t.Species, t.Year, string(t.Type), t.CanopyAreaM2}
	})
}

func (s *Store) GetTrees() ([]models.TreeRecord, error) {
	rows, err := s.db.Query(`
		SELECT tree_id, plot_id, COALESCE(species, ''), year, event, canopy_area_m2
		FROM trees ORDER BY plot_id, tree_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TreeRecord
	for rows.Next() {
		var t models.TreeRecord
		var event string
		if err := rows.Scan(&t.TreeID, &t.PlotID, &t.Species, &t.Year, &event, &t.CanopyAreaM2); err != nil {
			return nil, err
		}
		t.Type = models.EventType(event)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpsertPlot(p models.Plot) error {
	_, err := s.db.Exec(`
		INSERT INTO plots (plot_id, country, landscape, newstand, latitude, longitude)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(plot_id) DO UPDATE SET
			country = excluded.country,
			landscape = excluded.landscape,
			newstand = excluded.newstand,
			latitude = excluded.latitude,
			longitude = excluded.longitude
	`, p.PlotID, p.Country, p.Landscape, p.NewStand, p.Latitude, p.Longitude)
	return err
}

func (s *Store) GetPlots() ([]models.Plot, error) {
	rows, err := s.db.Query(`
		SELECT plot_id, country, COALESCE(landscape, ''), newstand, COALESCE(latitude, 0), COALESCE(longitude, 0)
		FROM plots ORDER BY plot_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Plot
	for rows.Next() {
		var p models.Plot
		if err := rows.Scan(&p.PlotID, &p.Country, &p.Landscape, &p.NewStand, &p.Latitude, &p.Longitude); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) InsertPatches(patches []models.DisturbancePatch) error {
	return s.bulkInsert(`
		INSERT INTO patches (country, landscape, newstand, peakyear, patch_area_ha, stand_area_ha)
		VALUES (?, ?, ?, ?, ?, ?)
	`, len(patches), func(i int) []any {
		p := patches[i]
		return []any{p.Country, p.Landscape, p.NewStand, p.PeakYear, p.AreaHa, p.StandHa}
	})
}

func (s *Store) GetPatches() ([]models.DisturbancePatch, error) {
	rows, err := s.db.Query(`
		SELECT country, COALESCE(landscape, ''), newstand, peakyear, patch_area_ha, stand_area_ha
		FROM patches ORDER BY country, newstand, peakyear
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DisturbancePatch
	for rows.Next() {
		var p models.DisturbancePatch
		if err := rows.Scan(&p.Country, &p.Landscape, &p.NewStand, &p.PeakYear, &p.AreaHa, &p.StandHa); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- output tables ---

func (s *Store) ReplaceEvents(events []models.Event) error {
	return s.replace("events", `
		INSERT INTO events (core_id, tree_id, plot_id, year, event, discarded)
		VALUES (?, ?, ?, ?, ?, ?)
	`, len(events), func(i int) []any {
		e := events[i]
		return []any{e.CoreID, e.TreeID, e.PlotID, e.Year, string(e.Type), e.Discarded}
	})
}

func (s *Store) GetEvents() ([]models.Event, error) {
	rows, err := s.db.Query(`
		SELECT core_id, tree_id, plot_id, year, event, discarded
		FROM events ORDER BY core_id, year
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var e models.Event
		var event string
		if err := rows.Scan(&e.CoreID, &e.TreeID, &e.PlotID, &e.Year, &event, &e.Discarded); err != nil {
			return nil, err
		}
		e.Type = models.EventType(event)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ReplacePlotPeaks(peaks []models.PlotPeak) error {
	return s.replace("plot_peaks", `
		INSERT INTO plot_peaks (plot_id, country, newstand, year, value, severity)
		VALUES (?, ?, ?, ?, ?, ?)
	`, len(peaks), func(i int) []any {
		p := peaks[i]
		return []any{p.PlotID, p.Country, p.NewStand, p.Year, p.Value, p.Severity}
	})
}

func (s *Store) GetPlotPeaks() ([]models.PlotPeak, error) {
	rows, err := s.db.Query(`
		SELECT plot_id, COALESCE(country, ''), COALESCE(newstand, ''), year, value, severity
		FROM plot_peaks ORDER BY plot_id, year
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PlotPeak
	for rows.Next() {
		var p models.PlotPeak
		if err := rows.Scan(&p.PlotID, &p.Country, &p.NewStand, &p.Year, &p.Value, &p.Severity); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ReplaceStandPeaks(peaks []models.StandPeak) error {
	return s.replace("stand_peaks", `
		INSERT INTO stand_peaks (country, newstand, year, share)
		VALUES (?, ?, ?, ?)
	`, len(peaks), func(i int) []any {
		p := peaks[i]
		return []any{p.Country, p.NewStand, p.Year, p.Share}
	})
}

func (s *Store) GetStandPeaks() ([]models.StandPeak, error) {
	rows, err := s.db.Query(`
		SELECT country, newstand, year, share
		FROM stand_peaks ORDER BY country, newstand, year
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StandPeak
	for rows.Next() {
		var p models.StandPeak
		if err := rows.Scan(&p.Country, &p.NewStand, &p.Year, &p.Share); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ReplaceJoinedEvents(events []models.JoinedEvent) error {
	return s.replace("joined_events", `
		INSERT INTO joined_events (plot_id, country, newstand, event_year, peak_year, peakid, severity)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, len(events), func(i int) []any {
		e := events[i]
		return []any{e.PlotID, e.Country, e.NewStand, e.EventYear, e.PeakYear, e.PeakID, e.Severity}
	})
}

func (s *Store) GetJoinedEvents() ([]models.JoinedEvent, error) {
	rows, err := s.db.Query(`
		SELECT plot_id, country, newstand, event_year, peak_year, peakid, severity
		FROM joined_events ORDER BY country, newstand, plot_id, event_year
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.JoinedEvent
	for rows.Next() {
		var e models.JoinedEvent
		if err := rows.Scan(&e.PlotID, &e.Country, &e.NewStand, &e.EventYear, &e.PeakYear, &e.PeakID, &e.Severity); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ReplaceRotationEstimates(rows []models.RotationEstimate) error {
	return s.replace("rotation_estimates", `
		INSERT INTO rotation_estimates (track, scope, grp, class, events, rotation, ci_low, ci_high, samples)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(rows), func(i int) []any {
		r := rows[i]
		return []any{r.Track, r.Scope, r.Group, r.Class, r.Events, r.Rotation, r.CILow, r.CIHigh, r.Samples}
	})
}

func (s *Store) GetRotationEstimates(track string) ([]models.RotationEstimate, error) {
	rows, err := s.db.Query(`
		SELECT track, scope, grp, class, events, rotation, ci_low, ci_high, samples
		FROM rotation_estimates
		WHERE track = ? OR ? = ''
		ORDER BY track, scope, grp, class
	`, track, track)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RotationEstimate
	for rows.Next() {
		var r models.RotationEstimate
		if err := rows.Scan(&r.Track, &r.Scope, &r.Group, &r.Class, &r.Events, &r.Rotation, &r.CILow, &r.CIHigh, &r.Samples); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
