package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SetTaskInfo records the single task_info row (spec §3), set once
// download begins so later stages know the canvas shape.
func (s *Store) SetTaskInfo(channels int, isRaster bool, bands, dtype string) error {
	if _, err := s.db.Exec(`DELETE FROM task_info`); err != nil {
		return fmt.Errorf("store: clear task_info: %w", err)
	}
	raster := 0
	if isRaster {
		raster = 1
	}
	_, err := s.db.Exec(`INSERT INTO task_info (channels, is_raster, bands, dtype) VALUES (?, ?, ?, ?)`,
		channels, raster, bands, dtype)
	if err != nil {
		return fmt.Errorf("store: insert task_info: %w", err)
	}
	return nil
}

// TaskInfo reads back the task_info row.
func (s *Store) TaskInfo() (channels int, isRaster bool, bands, dtype string, err error) {
	var raster int
	var bandsN, dtypeN sql.NullString
	err = s.db.QueryRow(`SELECT channels, is_raster, bands, dtype FROM task_info LIMIT 1`).
		Scan(&channels, &raster, &bandsN, &dtypeN)
	if err != nil {
		return 0, false, "", "", fmt.Errorf("store: read task_info: %w", err)
	}
	return channels, raster != 0, bandsN.String, dtypeN.String, nil
}

// UpdateTaskDtype backfills task_info.dtype once the first successful
// download reveals it, matching the Python original's deferred dtype set.
func (s *Store) UpdateTaskDtype(table, dtype string) error {
	_, err := s.db.Exec(`UPDATE task_info SET dtype = ?`, dtype)
	return err
}

// InitDownloadInfo creates one download_info row per physical tile table
// (the `tiles_%` tables that are not `_rs` mirrors) with its row count as
// `total`, matching the Python original's download_info() setup.
func (s *Store) InitDownloadInfo() error {
	tables, err := s.LogicalTables()
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	for _, t := range tables {
		n, err := s.CountRows(t)
		if err != nil {
			return err
		}
		_, err = s.db.Exec(
			`INSERT INTO download_info (table_name, total, success, fail, start_time) VALUES (?, ?, 0, 0, ?)
			 ON CONFLICT(table_name) DO UPDATE SET total=excluded.total, start_time=excluded.start_time`,
			t, n, now)
		if err != nil {
			return fmt.Errorf("store: init download_info for %s: %w", t, err)
		}
	}
	return nil
}

// DownloadProgress aggregates the sum(total)/sum(success)/sum(fail) across
// every download_info row, matching get_download_progress() in the
// Python original and populating the same progress-channel keys spec
// §4.9 names.
type DownloadProgress struct {
	Total, Success, Fail int
}

func (s *Store) DownloadProgress() (DownloadProgress, error) {
	var p DownloadProgress
	err := s.db.QueryRow(`SELECT COALESCE(sum(total),0), COALESCE(sum(success),0), COALESCE(sum(fail),0) FROM download_info`).
		Scan(&p.Total, &p.Success, &p.Fail)
	if err != nil {
		return p, fmt.Errorf("store: download progress: %w", err)
	}
	return p, nil
}

// IncrementDownloadCounters bumps a physical table's success/fail counters
// by delta, called by the writer thread after each batch commit.
func (s *Store) IncrementDownloadCounters(table string, successDelta, failDelta int) error {
	_, err := s.db.Exec(
		`UPDATE download_info SET success = success + ?, fail = fail + ? WHERE table_name = ?`,
		successDelta, failDelta, table)
	return err
}

// InitStitchInfo mirrors InitDownloadInfo for the stitch stage, one row
// per `_rs` shard with its row count as total.
func (s *Store) InitStitchInfo() error {
	rows, err := s.db.Query(
		`SELECT name FROM sqlite_master WHERE type='table' AND (name LIKE 'tiles\_%\_rs' ESCAPE '\')`)
	if err != nil {
		return fmt.Errorf("store: list rs tables: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return err
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	now := time.Now().Unix()
	for _, rsTable := range names {
		logical := rsTable[:len(rsTable)-len("_rs")]
		n, err := s.CountRows(rsTable)
		if err != nil {
			return err
		}
		_, err = s.db.Exec(
			`INSERT INTO stitch_info (table_name, total, success, fail, start_time) VALUES (?, ?, 0, 0, ?)
			 ON CONFLICT(table_name) DO UPDATE SET total=excluded.total, start_time=excluded.start_time`,
			logical, n, now)
		if err != nil {
			return fmt.Errorf("store: init stitch_info for %s: %w", logical, err)
		}
	}
	return nil
}

// IncrementStitchSuccess bumps stitch_info.success for table by delta.
func (s *Store) IncrementStitchSuccess(table string, delta int) error {
	_, err := s.db.Exec(`UPDATE stitch_info SET success = success + ? WHERE table_name = ?`, delta, table)
	return err
}

// StitchSuccessCount returns the persisted success counter for a table,
// used to resume a partially-stitched canvas.
func (s *Store) StitchSuccessCount(table string) (int, error) {
	var n sql.NullInt64
	err := s.db.QueryRow(`SELECT success FROM stitch_info WHERE table_name = ?`, table).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(n.Int64), nil
}

// SetMilestone persists one of the boolean milestone flags from spec
// §4.9 (is_CalculateTiles_done, is_TileDownload_done, is_TileStitch_done)
// to the milestones control table as a key/value row; the
// pipeline's progress.xml sidecar mirrors this table for external
// consumption.
func (s *Store) SetMilestone(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO milestones (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value)
	return err
}

// Milestone reads back a milestone value, returning ("", false) if unset.
func (s *Store) Milestone(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM milestones WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
