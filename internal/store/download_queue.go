package store

import (
	"database/sql"
	"fmt"
)

// DownloadCandidate is one unit of work streamed to C5's worker pool:
// spec §4.5 "A generator streams rows whose (x,y,z,band) is absent from
// _rs or present with status=failed".
type DownloadCandidate struct {
	Table            string // physical table, e.g. tiles_14_part_0
	X, Y, Z          int
	Band             sql.NullString
	Width, Height    int
	BufferedGeometry string
}

// StreamCandidates calls yield for every download candidate in table,
// stopping early if yield returns false. It mirrors
// get_download_parameter()'s SQL: rows in the logical table whose
// (x,y,z,band) key is missing from `{table}_rs` or present there with
// status=-1.
func (s *Store) StreamCandidates(table string, yield func(DownloadCandidate) bool) error {
	rsTable := table + "_rs"
	query := fmt.Sprintf(`
		SELECT t.x, t.y, t.z, t.band, t.width, t.height, t.geometry
		FROM "%s" t
		LEFT JOIN "%s" r ON r.x = t.x AND r.y = t.y AND r.z = t.z AND r.band IS t.band
		WHERE r.rowid IS NULL OR r.status = -1
	`, table, rsTable)

	rows, err := s.db.Query(query)
	if err != nil {
		return fmt.Errorf("store: stream candidates for %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var c DownloadCandidate
		c.Table = table
		if err := rows.Scan(&c.X, &c.Y, &c.Z, &c.Band, &c.Width, &c.Height, &c.BufferedGeometry); err != nil {
			return fmt.Errorf("store: scan candidate: %w", err)
		}
		if !yield(c) {
			break
		}
	}
	return rows.Err()
}

// ResultRow is one payload write into `{table}_rs` (spec §4.5 step 5/6).
type ResultRow struct {
	Table   string
	X, Y, Z int
	Band    sql.NullString
	Payload []byte
	Dtype   string
	Shape   string
	Width   int
	Height  int
	Status  TileStatus
	Error   string
	Cost    float64
}

// WriteResultBatch performs a single multi-row insert into `{table}_rs`
// for every row sharing the same table, the writer thread's batching
// rule from spec §4.5 step 6 (up to 1,000 entries, all from one table).
func (s *Store) WriteResultBatch(table string, rows []ResultRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.EnsureResultsTable(table); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin result batch tx: %w", err)
	}
	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO "%s_rs" (x, y, z, band, payload, dtype, shape, width, height, status, error, cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, table))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: prepare result insert: %w", err)
	}
	defer stmt.Close()

	success, fail := 0, 0
	for _, r := range rows {
		var errArg interface{}
		if r.Error != "" {
			errArg = r.Error
		}
		if _, err := stmt.Exec(r.X, r.Y, r.Z, r.Band, r.Payload, r.Dtype, r.Shape, r.Width, r.Height, int(r.Status), errArg, r.Cost); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: insert result row: %w", err)
		}
		if r.Status == StatusSuccess {
			success++
		} else {
			fail++
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit result batch: %w", err)
	}
	return s.IncrementDownloadCounters(table, success, fail)
}

// DedupResults enforces spec §4.5's at-most-once rule and §8's de-dup
// invariant: for each (x,y,z,band), delete failed rows if any succeeded,
// and keep only the max-rowid row among multiple successes.
func (s *Store) DedupResults(table string) error {
	rsTable := table + "_rs"
	if !s.tables[rsTable] {
		return nil
	}
	stmts := []string{
		fmt.Sprintf(`DELETE FROM "%s" WHERE status = -1 AND EXISTS (
			SELECT 1 FROM "%s" s2 WHERE s2.x = "%s".x AND s2.y = "%s".y AND s2.z = "%s".z
			AND s2.band IS "%s".band AND s2.status = 1)`,
			rsTable, rsTable, rsTable, rsTable, rsTable, rsTable),
		fmt.Sprintf(`DELETE FROM "%s" WHERE status = 1 AND rowid NOT IN (
			SELECT max(rowid) FROM "%s" WHERE status = 1 GROUP BY x, y, z, band)`,
			rsTable, rsTable),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: dedup %s: %w", rsTable, err)
		}
	}
	return nil
}

// CreatePostDownloadIndexes builds the (x,y,z) / status / stitch_status
// indexes once the downloader finishes (spec §4.2), speeding the
// stitcher's sequential reads.
func (s *Store) CreatePostDownloadIndexes(table string) error {
	rsTable := table + "_rs"
	stmts := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "%s_xyz" ON "%s" (x, y, z)`, rsTable, rsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "%s_status" ON "%s" (status)`, rsTable, rsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "%s_stitch" ON "%s" (stitch_status)`, rsTable, rsTable),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: create index on %s: %w", rsTable, err)
		}
	}
	return nil
}

// StitchCandidates streams rows ready for stitching: every status=1 row,
// or, on resume, only those whose stitch_status is still null, matching
// tiles_stitch's resumable query.
func (s *Store) StitchCandidates(table, band string, resume bool, yield func(StitchRow) bool) error {
	rsTable := table + "_rs"
	query := fmt.Sprintf(
		`SELECT rowid, x, y, z, payload, dtype, shape FROM "%s" WHERE status = 1 AND band IS ?`, rsTable)
	if resume {
		query += ` AND stitch_status IS NULL`
	}
	rows, err := s.db.Query(query, nullableBand(band))
	if err != nil {
		return fmt.Errorf("store: stream stitch candidates for %s: %w", rsTable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var r StitchRow
		if err := rows.Scan(&r.RowID, &r.X, &r.Y, &r.Z, &r.Payload, &r.Dtype, &r.Shape); err != nil {
			return fmt.Errorf("store: scan stitch row: %w", err)
		}
		if !yield(r) {
			break
		}
	}
	return rows.Err()
}

// StitchRow is one tile ready to be placed into the canvas.
type StitchRow struct {
	RowID        int64
	X, Y, Z      int
	Payload      []byte
	Dtype, Shape string
}

// MarkStitched flags a tile consumed by the stitcher (spec §3
// stitch_status).
func (s *Store) MarkStitched(table string, x, y, z int) error {
	_, err := s.db.Exec(fmt.Sprintf(`UPDATE "%s_rs" SET stitch_status = 1 WHERE x = ? AND y = ? AND z = ?`, table), x, y, z)
	return err
}
