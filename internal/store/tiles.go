package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// TileStatus mirrors spec §3's tile status enum.
type TileStatus int

const (
	StatusUnattempted TileStatus = 0
	StatusSuccess     TileStatus = 1
	StatusFailed      TileStatus = -1
)

// TileRow is one row of a logical tiles_{z} table (spec §3 Tile record).
type TileRow struct {
	X, Y, Z  int
	Band     sql.NullString
	Geometry string // WKT of the buffered tile footprint
	Width    int
	Height   int
	Payload  []byte
	Dtype    sql.NullString
	Shape    sql.NullString // "rows,cols,channels"
	Status   TileStatus
	StitchStatus sql.NullInt64
	Error    sql.NullString
	Cost     sql.NullFloat64
}

// LogicalTableName is the per-zoom table name before any resharding.
func LogicalTableName(zoom int) string {
	if zoom <= 10 {
		return "tiles_10"
	}
	return fmt.Sprintf("tiles_%d", zoom)
}

// EnsureTileTable creates the physical tiles_{z} table (schema per spec
// §3) if it doesn't already exist. Tables are created lazily on first use,
// per spec §4.2.
func (s *Store) EnsureTileTable(table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables[table] {
		return nil
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
		rowid INTEGER PRIMARY KEY AUTOINCREMENT,
		x INTEGER NOT NULL, y INTEGER NOT NULL, z INTEGER NOT NULL,
		band TEXT, geometry TEXT NOT NULL,
		width INTEGER, height INTEGER,
		payload BLOB, dtype TEXT, shape TEXT,
		status INTEGER DEFAULT 0, stitch_status INTEGER,
		error TEXT, cost REAL
	)`, table)
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("store: create tile table %s: %w", table, err)
	}
	s.tables[table] = true
	return nil
}

// EnsureResultsTable creates the companion `{table}_rs` table that C5
// writes into so reads and writes don't contend on the same rows.
func (s *Store) EnsureResultsTable(table string) error {
	return s.EnsureTileTable(table + "_rs")
}

// InsertTiles batch-inserts enumerated tile rows into table inside one
// transaction, the enumerator's every-50,000 flush (spec §4.4).
func (s *Store) InsertTiles(table string, rows []TileRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.EnsureTileTable(table); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin insert tx: %w", err)
	}
	stmt, err := tx.Prepare(fmt.Sprintf(
		`INSERT INTO "%s" (x, y, z, band, geometry, width, height, status) VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		table))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.X, r.Y, r.Z, r.Band, r.Geometry, r.Width, r.Height); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: insert tile row: %w", err)
		}
	}
	return tx.Commit()
}

// CountRows returns the row count of a logical/physical tile table.
func (s *Store) CountRows(table string) (int, error) {
	var n int
	err := s.db.QueryRow(fmt.Sprintf(`SELECT count(*) FROM "%s"`, table)).Scan(&n)
	return n, err
}

// LogicalTables returns every logical "tiles_%" table name that is not
// itself a results table, used to discover what the enumerator produced.
func (s *Store) LogicalTables() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT name FROM sqlite_master WHERE type='table' AND name LIKE 'tiles\_%' ESCAPE '\' AND name NOT LIKE '%\_rs' ESCAPE '\'`)
	if err != nil {
		return nil, fmt.Errorf("store: list logical tables: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// PhysicalTables returns every physical table name (post-resharding,
// each with a "_rs" companion present) that the downloader has produced,
// used by the stitcher to pick its per-shard work list (spec §5: "up to
// 5 worker threads, one per physical shard").
func (s *Store) PhysicalTables() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT name FROM sqlite_master WHERE type='table' AND name LIKE 'tiles\_%\_rs' ESCAPE '\'`)
	if err != nil {
		return nil, fmt.Errorf("store: list physical tables: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, strings.TrimSuffix(name, "_rs"))
	}
	return out, rows.Err()
}

// TileDimensions returns the unbuffered (width, height) recorded on the
// table's rows, fixed once at enumeration time (spec §4.1) and identical
// across every row of a task.
func (s *Store) TileDimensions(table string) (width, height int, err error) {
	err = s.db.QueryRow(fmt.Sprintf(`SELECT width, height FROM "%s" LIMIT 1`, table)).Scan(&width, &height)
	if err != nil {
		err = fmt.Errorf("store: tile dimensions of %s: %w", table, err)
	}
	return
}

// TableZoom returns the zoom level recorded on a table's rows (every row
// of a physical table shares one zoom, since sharding only ever splits
// by x/y within a zoom).
func (s *Store) TableZoom(table string) (int, error) {
	var z int
	err := s.db.QueryRow(fmt.Sprintf(`SELECT z FROM "%s" LIMIT 1`, table)).Scan(&z)
	if err != nil {
		return 0, fmt.Errorf("store: table zoom of %s: %w", table, err)
	}
	return z, nil
}

// XYSpread returns the min/max x and y for a table, used by resharding
// and by the stitcher's canvas sizing.
func (s *Store) XYSpread(table string) (minX, maxX, minY, maxY int, err error) {
	err = s.db.QueryRow(fmt.Sprintf(
		`SELECT min(x), max(x), min(y), max(y) FROM "%s"`, table)).
		Scan(&minX, &maxX, &minY, &maxY)
	if err != nil {
		err = fmt.Errorf("store: xy spread of %s: %w", table, err)
	}
	return
}

// ResultTableExists reports whether `{table}_rs` is already tracked.
func (s *Store) ResultTableExists(table string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[table+"_rs"]
}

// sanitizeSuffix strips the "tiles_" prefix and any "_rs" suffix; a
// "_part_N" suffix is kept, so the result is the zoom-and-shard label.
func sanitizeSuffix(table string) string {
	name := strings.TrimSuffix(table, "_rs")
	name = strings.TrimPrefix(name, "tiles_")
	return name
}
