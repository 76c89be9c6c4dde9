// Package enumerate implements the tile enumerator (C4, spec §4.4):
// quadtree descent over a polygon to produce the exact download list,
// flushed into the task database in batches. Grounded directly on the
// Python original's GeeImageCalculate.get_all_child_tiles /
// get_rec_info / get_child_tiles, which spec §4.4 documents verbatim.
package enumerate

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/walkthru-earth/geoharvest/internal/logging"
	"github.com/walkthru-earth/geoharvest/internal/store"
	"github.com/walkthru-earth/geoharvest/internal/tilegeom"
)

// FlushThreshold is the in-memory batch size before tiles are committed
// to the task database (spec §4.4: "every 50,000 tiles").
const FlushThreshold = 50000

// Enumerator drives stage 1 against one task database.
type Enumerator struct {
	st                   *store.Store
	log                  *logging.Stage
	tileWidth, tileHeight int
}

// New builds an Enumerator writing into st. tileWidth/tileHeight are the
// unbuffered tile pixel dimensions fixed by the zoom-probing procedure
// (spec §4.1), recorded on every emitted row so the downloader knows the
// expected unbuffered size without a second lookup.
func New(st *store.Store, log *logging.Stage, tileWidth, tileHeight int) *Enumerator {
	return &Enumerator{st: st, log: log, tileWidth: tileWidth, tileHeight: tileHeight}
}

// Run enumerates polygonWKT at the given target zoom(s), producing tile
// rows in the appropriate tiles_{z} tables. Multiple target zooms are
// supported because a task may in principle request more than one (the
// common case, per spec §4.1, is a single probed zoom).
func (e *Enumerator) Run(polygonWKT string, targetZooms []int) (int, error) {
	geom, err := wkt.UnmarshalString(polygonWKT)
	if err != nil {
		return 0, fmt.Errorf("enumerate: parse polygon WKT: %w", err)
	}

	var polys []orb.Polygon
	switch g := geom.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{g}
	case orb.MultiPolygon:
		// Multi-polygons are treated identically to independent polygons;
		// unary_union is deliberately not applied (spec §4.4 edge case),
		// so disjoint parts can produce disjoint, possibly overlapping,
		// tile sets. Rows are inserted as emitted; duplicates are collapsed
		// by the download stage's end-of-stage de-dup pass.
		polys = g
	default:
		return 0, fmt.Errorf("enumerate: unsupported geometry type %T", geom)
	}

	maxZoom := targetZooms[0]
	for _, z := range targetZooms {
		if z > maxZoom {
			maxZoom = z
		}
	}

	total := 0
	for _, poly := range polys {
		n, err := e.enumeratePolygon(poly, targetZooms, maxZoom)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (e *Enumerator) enumeratePolygon(poly orb.Polygon, targetZooms []int, maxZoom int) (int, error) {
	if tilegeom.IsRectangle(poly) {
		return e.enumerateRectangle(poly, targetZooms)
	}
	return e.enumerateQuadtree(poly, targetZooms, maxZoom)
}

// enumerateRectangle is the fast path (spec §4.4): iterate the tile grid
// directly at the target zoom without any geometric tests.
func (e *Enumerator) enumerateRectangle(poly orb.Polygon, targetZooms []int) (int, error) {
	ring := poly[0]
	minX, minY, maxX, maxY := ringBounds(ring)
	total := 0
	for _, zoom := range targetZooms {
		sx, sy, ex, ey := tilegeom.BoundingTile(minX, minY, maxX, maxY, zoom)
		var batch []store.TileRow
		for y := sy; y <= ey; y++ {
			for x := sx; x <= ex; x++ {
				batch = append(batch, e.tileRow(x, y, zoom))
				if len(batch) >= FlushThreshold {
					if err := e.flush(zoom, batch); err != nil {
						return total, err
					}
					total += len(batch)
					batch = nil
				}
			}
		}
		if err := e.flush(zoom, batch); err != nil {
			return total, err
		}
		total += len(batch)
	}
	return total, nil
}

type workItem struct{ x, y, z int }

// enumerateQuadtree is the general path (spec §4.4): descend from z=1,
// pruning tiles disjoint from the polygon, emitting whole subtrees for
// tiles fully contained, and splitting into four children otherwise.
func (e *Enumerator) enumerateQuadtree(poly orb.Polygon, targetZooms []int, maxZoom int) (int, error) {
	isTarget := make(map[int]bool, len(targetZooms))
	for _, z := range targetZooms {
		isTarget[z] = true
	}

	minLon, minLat, maxLon, maxLat := ringBounds(poly[0])
	sx, sy, ex, ey := tilegeom.BoundingTile(minLon, minLat, maxLon, maxLat, 1)

	var work []workItem
	for y := sy; y <= ey; y++ {
		for x := sx; x <= ex; x++ {
			work = append(work, workItem{x, y, 1})
		}
	}

	batches := make(map[int][]store.TileRow)
	total := 0
	flushAll := func() error {
		for zoom, rows := range batches {
			if len(rows) == 0 {
				continue
			}
			if err := e.flush(zoom, rows); err != nil {
				return err
			}
			total += len(rows)
			batches[zoom] = nil
		}
		return nil
	}

	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]

		tileRect := tilegeom.Rectangle(item.x, item.y, item.z)
		if !tilegeom.Intersects(poly, tileRect) {
			continue
		}

		if tilegeom.Contains(poly, tileRect) {
			for _, zoom := range targetZooms {
				if zoom < item.z {
					continue
				}
				for _, d := range tilegeom.Descendants(tilegeom.Tile{X: item.x, Y: item.y, Z: item.z}, zoom) {
					batches[zoom] = append(batches[zoom], e.tileRow(d.X, d.Y, d.Z))
					if len(batches[zoom]) >= FlushThreshold {
						if err := e.flush(zoom, batches[zoom]); err != nil {
							return total, err
						}
						total += len(batches[zoom])
						batches[zoom] = nil
					}
				}
			}
			continue
		}

		// Partial overlap.
		if isTarget[item.z] {
			batches[item.z] = append(batches[item.z], e.tileRow(item.x, item.y, item.z))
			if len(batches[item.z]) >= FlushThreshold {
				if err := e.flush(item.z, batches[item.z]); err != nil {
					return total, err
				}
				total += len(batches[item.z])
				batches[item.z] = nil
			}
		}
		if item.z+1 <= maxZoom {
			for _, child := range tilegeom.Children(tilegeom.Tile{X: item.x, Y: item.y, Z: item.z}) {
				work = append(work, workItem{child.X, child.Y, child.Z})
			}
		}
	}

	if err := flushAll(); err != nil {
		return total, err
	}
	return total, nil
}

func (e *Enumerator) tileRow(x, y, z int) store.TileRow {
	ring := tilegeom.BufferedRectangle(x, y, z)
	return store.TileRow{
		X: x, Y: y, Z: z,
		Geometry: wkt.MarshalString(orb.Polygon{ring}),
		Width:    e.tileWidth,
		Height:   e.tileHeight,
	}
}

func (e *Enumerator) flush(zoom int, rows []store.TileRow) error {
	if len(rows) == 0 {
		return nil
	}
	table := store.LogicalTableName(zoom)
	if e.log != nil {
		e.log.Printf("flushing %d tiles into %s", len(rows), table)
	}
	return e.st.InsertTiles(table, rows)
}

func ringBounds(ring orb.Ring) (minX, minY, maxX, maxY float64) {
	minX, minY = ring[0][0], ring[0][1]
	maxX, maxY = ring[0][0], ring[0][1]
	for _, p := range ring {
		if p[0] < minX {
			minX = p[0]
		}
		if p[0] > maxX {
			maxX = p[0]
		}
		if p[1] < minY {
			minY = p[1]
		}
		if p[1] > maxY {
			maxY = p[1]
		}
	}
	return
}
