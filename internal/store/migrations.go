package store

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Input tables",
		SQL: `
CREATE TABLE IF NOT EXISTS rings (
    core_id TEXT NOT NULL,
    year INTEGER NOT NULL,
    incr_mm REAL NOT NULL,
    missing_mm REAL DEFAULT 0,
    missing_years INTEGER DEFAULT 0,
    UNIQUE(core_id, year)
);

CREATE TABLE IF NOT EXISTS cores (
    core_id TEXT PRIMARY KEY,
    tree_id TEXT NOT NULL,
    plot_id TEXT NOT NULL,
    species TEXT,
    dist_param TEXT NOT NULL,
    dbh_mm REAL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS dist_params (
    dist_param TEXT PRIMARY KEY,
    ai_mm REAL NOT NULL,
    gap_mm REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS trees (
    tree_id TEXT NOT NULL,
    plot_id TEXT NOT NULL,
    species TEXT,
    year INTEGER,
    event TEXT NOT NULL,
    canopy_area_m2 REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS plots (
    plot_id TEXT PRIMARY KEY,
    country TEXT NOT NULL,
    landscape TEXT,
    newstand TEXT NOT NULL,
    latitude REAL,
    longitude REAL
);

CREATE TABLE IF NOT EXISTS patches (
    country TEXT NOT NULL,
    landscape TEXT,
    newstand TEXT NOT NULL,
    peakyear INTEGER NOT NULL,
    patch_area_ha REAL NOT NULL,
    stand_area_ha REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rings_core ON rings(core_id);
CREATE INDEX IF NOT EXISTS idx_trees_plot ON trees(plot_id);
`,
	},
	{
		Version:     2,
		Description: "Output tables",
		SQL: `
CREATE TABLE IF NOT EXISTS events (
    core_id TEXT NOT NULL,
    tree_id TEXT NOT NULL,
    plot_id TEXT NOT NULL,
    year INTEGER NOT NULL,
    event TEXT NOT NULL,
    discarded BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS plot_peaks (
    plot_id TEXT NOT NULL,
    country TEXT,
    newstand TEXT,
    year INTEGER NOT NULL,
    value REAL NOT NULL,
    severity REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS stand_peaks (
    country TEXT NOT NULL,
    newstand TEXT NOT NULL,
    year INTEGER NOT NULL,
    share REAL NOT NULL,
    UNIQUE(country, newstand, year)
);

CREATE TABLE IF NOT EXISTS joined_events (
    plot_id TEXT NOT NULL,
    country TEXT NOT NULL,
    newstand TEXT NOT NULL,
    event_year INTEGER NOT NULL,
    peak_year INTEGER NOT NULL,
    peakid TEXT NOT NULL,
    severity REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS rotation_estimates (
    track TEXT NOT NULL,
    scope TEXT NOT NULL,
    grp TEXT NOT NULL,
    class REAL NOT NULL,
    events REAL NOT NULL,
    rotation REAL NOT NULL,
    ci_low REAL,
    ci_high REAL,
    samples INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_plot ON events(plot_id);
CREATE INDEX IF NOT EXISTS idx_joined_stand ON joined_events(country, newstand);
`,
	},
}

// Migrate applies any pending schema migrations, each in its own
// transaction.
func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}

	pending := make([]migration, 0, len(migrations))
	for _, m := range migrations {
		if !applied[m.Version] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, m := range pending {
		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
