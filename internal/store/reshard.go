package store

import (
	"fmt"
	"sort"

	"github.com/walkthru-earth/geoharvest/internal/shard"
)

// shardRec is one (rowid, x, y) tuple read back while resharding.
type shardRec struct {
	rowid int64
	x, y  int
}

// ReshardIfNeeded implements spec §4.5's resharding step: when a logical
// table's row count exceeds threshold, partition rows by the axis
// shard.ChooseAxis picks (x when the x span exceeds twice the shard count,
// else y) into `{table}_part_{i}` physical tables,
// drop the original, and return the resulting physical table names (or
// just [table] if no resharding was needed).
func (s *Store) ReshardIfNeeded(table string, threshold int) ([]string, error) {
	n, err := s.CountRows(table)
	if err != nil {
		return nil, err
	}
	if n/threshold == 0 {
		return []string{table}, nil
	}

	rows, err := s.db.Query(fmt.Sprintf(`SELECT rowid, x, y FROM "%s"`, table))
	if err != nil {
		return nil, fmt.Errorf("store: reshard read %s: %w", table, err)
	}
	var recs []shardRec
	for rows.Next() {
		var r shardRec
		if err := rows.Scan(&r.rowid, &r.x, &r.y); err != nil {
			rows.Close()
			return nil, err
		}
		recs = append(recs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	xs := make([]int, len(recs))
	ys := make([]int, len(recs))
	for i, r := range recs {
		xs[i], ys[i] = r.x, r.y
	}
	shardCount := n / threshold
	axis := shard.ChooseAxis(xs, ys, shardCount)
	if axis == "x" {
		sort.Slice(recs, func(i, j int) bool { return recs[i].x < recs[j].x })
	} else {
		sort.Slice(recs, func(i, j int) bool { return recs[i].y < recs[j].y })
	}

	bounds := shard.Partition(len(recs), threshold)
	var physical []string
	for i, b := range bounds {
		partTable := fmt.Sprintf("%s_part_%d", table, i)
		if err := s.copyRowsToShard(table, partTable, recs[b[0]:b[1]]); err != nil {
			return nil, err
		}
		physical = append(physical, partTable)
	}

	if _, err := s.db.Exec(fmt.Sprintf(`DROP TABLE "%s"`, table)); err != nil {
		return nil, fmt.Errorf("store: drop resharded table %s: %w", table, err)
	}
	s.mu.Lock()
	delete(s.tables, table)
	s.mu.Unlock()

	return physical, nil
}

func (s *Store) copyRowsToShard(srcTable, destTable string, recs []shardRec) error {
	if err := s.EnsureTileTable(destTable); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin shard copy tx: %w", err)
	}
	insert, err := tx.Prepare(fmt.Sprintf(
		`INSERT INTO "%s" (x, y, z, band, geometry, width, height, status)
		 SELECT x, y, z, band, geometry, width, height, status FROM "%s" WHERE rowid = ?`,
		destTable, srcTable))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: prepare shard copy: %w", err)
	}
	defer insert.Close()
	for _, r := range recs {
		if _, err := insert.Exec(r.rowid); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: copy row into shard %s: %w", destTable, err)
		}
	}
	return tx.Commit()
}
