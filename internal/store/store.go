// Package store implements the task database (C2): one embedded SQLite
// file per task that is simultaneously the progress store and the
// stage-handoff queue (spec §3/§4.2). Grounded on the teacher's
// taskqueue.QueueManager for the "one persisted file per task, lazily
// created" shape, generalized from JSON-on-disk to a real embedded DB
// using modernc.org/sqlite (pure Go, no cgo — the same driver
// MeKo-Christian-WaterColorMap uses, matching the teacher's own
// cross-platform cgo-free build constraints).
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Store wraps the task's .nev database file with a bounded connection
// pool (spec §4.2: "up to 30 connections").
type Store struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	tables map[string]bool // physical tables already created, memoized
}

// Open creates (if absent) and opens the task database at path. Per spec
// §3's Lifecycle invariant the file is created once, at enumeration time,
// and is never deleted implicitly — callers must not remove it except on
// explicit task deletion.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(30)
	db.SetMaxIdleConns(30)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=30000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: busy_timeout: %w", err)
	}

	s := &Store{db: db, path: path, tables: make(map[string]bool)}
	if err := s.createControlTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path (the task's .nev file).
func (s *Store) Path() string { return s.path }

// DB exposes the underlying *sql.DB for packages that need direct access
// (used by resharding and generator queries which need custom SQL).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) createControlTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS task_info (
			channels INTEGER, is_raster INTEGER, bands TEXT, dtype TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS download_info (
			table_name TEXT PRIMARY KEY, total INTEGER DEFAULT 0,
			success INTEGER DEFAULT 0, fail INTEGER DEFAULT 0,
			start_time INTEGER, end_time INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS stitch_info (
			table_name TEXT PRIMARY KEY, total INTEGER DEFAULT 0,
			success INTEGER DEFAULT 0, fail INTEGER DEFAULT 0,
			start_time INTEGER, end_time INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS crop_info (
			table_name TEXT, band TEXT, x INTEGER, y INTEGER,
			x_end INTEGER, y_end INTEGER, cropped INTEGER DEFAULT 0,
			PRIMARY KEY (table_name, band, x, y)
		)`,
		`CREATE TABLE IF NOT EXISTS crop_bounds_info (
			table_name TEXT, band TEXT, ymin INTEGER, ymax INTEGER,
			xmin INTEGER, xmax INTEGER,
			PRIMARY KEY (table_name, band)
		)`,
		`CREATE TABLE IF NOT EXISTS milestones (
			key TEXT PRIMARY KEY, value TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: create control tables: %w", err)
		}
	}
	return nil
}
