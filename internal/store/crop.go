package store

import (
	"database/sql"
	"fmt"
	"math"
)

// CropBlock is one row of crop_info: a block_size x block_size region of
// the final canvas, with a resumable cropped flag (spec §3/§4.7).
type CropBlock struct {
	X, Y, XEnd, YEnd int
	Cropped          bool
}

// InitCropInfo inserts the block grid for (table, band) if it doesn't
// already exist, matching create_crop_info/prepare_crop_param in the
// Python original. width/height are the canvas dimensions in pixels.
func (s *Store) InitCropInfo(table, band string, width, height, blockSize int) error {
	existing, err := s.CropInfo(table, band)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin crop_info tx: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO crop_info (table_name, band, x, y, x_end, y_end, cropped) VALUES (?, ?, ?, ?, ?, ?, 0)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for y := 0; y < height; y += blockSize {
		yEnd := int(math.Min(float64(y+blockSize), float64(height)))
		for x := 0; x < width; x += blockSize {
			xEnd := int(math.Min(float64(x+blockSize), float64(width)))
			if _, err := stmt.Exec(table, band, x, y, xEnd, yEnd); err != nil {
				tx.Rollback()
				return fmt.Errorf("store: insert crop_info block: %w", err)
			}
		}
	}
	if _, err := tx.Exec(
		`INSERT INTO crop_bounds_info (table_name, band, ymin, ymax, xmin, xmax) VALUES (?, ?, NULL, 0, NULL, 0)`,
		table, band); err != nil {
		tx.Rollback()
		return fmt.Errorf("store: insert crop_bounds_info: %w", err)
	}
	return tx.Commit()
}

// CropInfo returns every block for (table, band), cropped or not.
func (s *Store) CropInfo(table, band string) ([]CropBlock, error) {
	rows, err := s.db.Query(
		`SELECT x, y, x_end, y_end, cropped FROM crop_info WHERE table_name = ? AND band IS ?`,
		table, nullableBand(band))
	if err != nil {
		return nil, fmt.Errorf("store: read crop_info: %w", err)
	}
	defer rows.Close()
	var out []CropBlock
	for rows.Next() {
		var b CropBlock
		var cropped int
		if err := rows.Scan(&b.X, &b.Y, &b.XEnd, &b.YEnd, &cropped); err != nil {
			return nil, err
		}
		b.Cropped = cropped == 1
		out = append(out, b)
	}
	return out, rows.Err()
}

func nullableBand(band string) interface{} {
	if band == "" {
		return nil
	}
	return band
}

// MarkBlockCropped flips a block's cropped flag, committed per-block per
// spec §4.7 so restart can resume from the last completed block.
func (s *Store) MarkBlockCropped(table, band string, x, y int) error {
	_, err := s.db.Exec(
		`UPDATE crop_info SET cropped = 1 WHERE table_name = ? AND band IS ? AND x = ? AND y = ?`,
		table, nullableBand(band), x, y)
	return err
}

// Extremum is the running (ymin, ymax, xmin, xmax) of in-polygon pixels.
type Extremum struct {
	YMin, YMax, XMin, XMax int
	HasMin                 bool
}

// CropBounds reads the running extremum for (table, band), treating NULL
// ymin/xmin as +inf per the Python original's read_crop_info_from_db.
func (s *Store) CropBounds(table, band string) (Extremum, error) {
	var ymin, xmin sql.NullInt64
	var ymax, xmax int
	err := s.db.QueryRow(
		`SELECT ymin, ymax, xmin, xmax FROM crop_bounds_info WHERE table_name = ? AND band IS ?`,
		table, nullableBand(band)).Scan(&ymin, &ymax, &xmin, &xmax)
	if err != nil {
		return Extremum{}, fmt.Errorf("store: read crop_bounds_info: %w", err)
	}
	e := Extremum{YMax: ymax, XMax: xmax}
	if ymin.Valid && xmin.Valid {
		e.YMin, e.XMin, e.HasMin = int(ymin.Int64), int(xmin.Int64), true
	}
	return e, nil
}

// MergeCropBounds commutatively merges a block's observed bounds into the
// persisted running extremum and writes the result back (spec §4.7,
// §5 "per-block extremums merge via min/max which are commutative").
func (s *Store) MergeCropBounds(table, band string, block Extremum) error {
	current, err := s.CropBounds(table, band)
	if err != nil {
		return err
	}
	merged := current
	if block.HasMin {
		if !merged.HasMin || block.YMin < merged.YMin {
			merged.YMin = block.YMin
		}
		if !merged.HasMin || block.XMin < merged.XMin {
			merged.XMin = block.XMin
		}
		merged.HasMin = true
		if block.YMax > merged.YMax {
			merged.YMax = block.YMax
		}
		if block.XMax > merged.XMax {
			merged.XMax = block.XMax
		}
	}
	var yminArg, xminArg interface{}
	if merged.HasMin {
		yminArg, xminArg = merged.YMin, merged.XMin
	}
	_, err = s.db.Exec(
		`UPDATE crop_bounds_info SET ymin = ?, ymax = ?, xmin = ?, xmax = ? WHERE table_name = ? AND band IS ?`,
		yminArg, merged.YMax, xminArg, merged.XMax, table, nullableBand(band))
	return err
}
