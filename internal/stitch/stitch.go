// Package stitch implements the tile stitcher (C6, spec §4.6): assembles
// the persisted, successfully-downloaded tiles of one physical shard into
// a single memory-mapped canvas, resumable via the shard's stitch_status
// column. Grounded on the Python original's geestitch.GeeImageStitch
// (one mmap per shard, placements committed in batches to a DB update
// queue) and, for the mmap plumbing itself, on the teacher's
// internal/cog/mmap_unix.go wrapper, generalized here to a writable,
// shared mapping.
package stitch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/walkthru-earth/geoharvest/internal/logging"
	"github.com/walkthru-earth/geoharvest/internal/provider"
	"github.com/walkthru-earth/geoharvest/internal/store"
)

// FlushEvery is the placement count between mmap syncs (spec §4.6 step 4).
const FlushEvery = 200

// MaxShardWorkers bounds concurrent per-shard stitchers (spec §5: "up to
// 5 worker threads, one per physical shard").
const MaxShardWorkers = 5

// Stitcher drives stage 3a across every physical shard of a task.
type Stitcher struct {
	st      *store.Store
	log     *logging.Stage
	workDir string // directory holding the per-shard canvas temp files
}

// New builds a Stitcher. The pipeline passes the task's
// GeoTif/temp_<name> directory as workDir; canvases live there as temp
// files until crop succeeds.
func New(st *store.Store, log *logging.Stage, workDir string) *Stitcher {
	return &Stitcher{st: st, log: log, workDir: workDir}
}

// CanvasPath returns the temp mmap file path for a given shard.
func (s *Stitcher) CanvasPath(table, band string) string {
	name := table
	if band != "" {
		name += "_" + band
	}
	return filepath.Join(s.workDir, name+".canvas")
}

// ShardResult records one physical shard's canvas geometry, enough for a
// caller (the pipeline controller) to reopen the canvas for masking and
// to derive its geotransform without re-querying the database.
type ShardResult struct {
	Table                  string
	CanvasPath             string
	Zoom                   int
	MinX, MaxX, MinY, MaxY int
	MapWidth, MapHeight    int
	Channels               int
	Dtype                  string
}

// Run stitches every physical shard, up to MaxShardWorkers concurrently.
// band is empty for band-less sources; variant supplies the vertical-flip
// quirk (spec §4.6 step 3) and channel count.
func (s *Stitcher) Run(ctx context.Context, variant provider.Variant, band string) ([]ShardResult, error) {
	if err := s.st.InitStitchInfo(); err != nil {
		return nil, fmt.Errorf("stitch: init stitch_info: %w", err)
	}

	tables, err := s.st.PhysicalTables()
	if err != nil {
		return nil, fmt.Errorf("stitch: list physical tables: %w", err)
	}

	sem := make(chan struct{}, MaxShardWorkers)
	type outcome struct {
		result ShardResult
		err    error
	}
	outcomes := make(chan outcome, len(tables))
	done := 0

	for _, table := range tables {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case sem <- struct{}{}:
		}
		done++
		go func(table string) {
			defer func() { <-sem }()
			res, err := s.stitchTable(ctx, table, variant, band)
			outcomes <- outcome{res, err}
		}(table)
	}

	var firstErr error
	var results []ShardResult
	for i := 0; i < done; i++ {
		o := <-outcomes
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		results = append(results, o.result)
	}
	return results, firstErr
}

// stitchTable stitches one physical shard into its own canvas (spec
// §4.6 steps 1-4).
func (s *Stitcher) stitchTable(ctx context.Context, table string, variant provider.Variant, band string) (ShardResult, error) {
	_, _, _, dtype, err := s.st.TaskInfo()
	if err != nil {
		return ShardResult{}, fmt.Errorf("stitch: read task_info: %w", err)
	}
	if dtype == "" {
		dtype = "u8"
	}

	zoom, err := s.st.TableZoom(table)
	if err != nil {
		return ShardResult{}, fmt.Errorf("stitch: zoom of %s: %w", table, err)
	}

	minX, maxX, minY, maxY, err := s.st.XYSpread(table)
	if err != nil {
		return ShardResult{}, fmt.Errorf("stitch: xy spread of %s: %w", table, err)
	}

	tileW, tileH, err := s.st.TileDimensions(table)
	if err != nil {
		return ShardResult{}, fmt.Errorf("stitch: tile dimensions of %s: %w", table, err)
	}

	mapWidth := (maxX - minX + 1) * tileW
	mapHeight := (maxY - minY + 1) * tileH
	channels := variant.Channels
	if channels <= 0 {
		channels = 1
	}

	result := ShardResult{
		Table: table, Zoom: zoom,
		MinX: minX, MaxX: maxX, MinY: minY, MaxY: maxY,
		MapWidth: mapWidth, MapHeight: mapHeight,
		Channels: channels, Dtype: dtype,
	}

	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return ShardResult{}, fmt.Errorf("stitch: create work dir: %w", err)
	}
	canvasPath := s.CanvasPath(table, band)
	result.CanvasPath = canvasPath
	canvas, err := OpenCanvas(canvasPath, mapWidth, mapHeight, channels, dtype)
	if err != nil {
		return ShardResult{}, fmt.Errorf("stitch: open canvas for %s: %w", table, err)
	}
	defer canvas.Close()

	resumed, err := s.st.StitchSuccessCount(table)
	if err != nil {
		return ShardResult{}, fmt.Errorf("stitch: read resume counter for %s: %w", table, err)
	}
	resume := resumed > 0

	placed := 0
	var placeErr error
	streamErr := s.st.StitchCandidates(table, band, resume, func(row store.StitchRow) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		payload := row.Payload
		if variant.VerticalFlip {
			payload = flipVertical(payload, tileW, tileH, channels, canvas.ElemSize())
		}

		startY := (row.Y - minY) * tileH
		startX := (row.X - minX) * tileW
		if err := canvas.Place(startY, startX, tileH, tileW, payload, FlushEvery); err != nil {
			placeErr = fmt.Errorf("stitch: place tile (%d,%d) of %s: %w", row.X, row.Y, table, err)
			return false
		}

		if err := s.st.MarkStitched(table, row.X, row.Y, row.Z); err != nil {
			placeErr = fmt.Errorf("stitch: mark stitched (%d,%d) of %s: %w", row.X, row.Y, table, err)
			return false
		}
		placed++
		if placed%FlushEvery == 0 {
			if err := s.st.IncrementStitchSuccess(table, FlushEvery); err != nil {
				placeErr = fmt.Errorf("stitch: increment stitch success for %s: %w", table, err)
				return false
			}
		}
		return true
	})
	if streamErr != nil {
		return ShardResult{}, fmt.Errorf("stitch: stream candidates for %s: %w", table, streamErr)
	}
	if placeErr != nil {
		return ShardResult{}, placeErr
	}

	if remainder := placed % FlushEvery; remainder != 0 {
		if err := s.st.IncrementStitchSuccess(table, remainder); err != nil {
			return ShardResult{}, err
		}
	}
	if err := canvas.Flush(); err != nil {
		return ShardResult{}, err
	}
	return result, nil
}

// flipVertical reverses row order in a row-major pixel buffer, the
// land-cover source's placement quirk (spec §4.6 step 3).
func flipVertical(data []byte, width, height, channels, elemSize int) []byte {
	rowBytes := width * channels * elemSize
	out := make([]byte, len(data))
	for row := 0; row < height; row++ {
		src := row * rowBytes
		dst := (height - 1 - row) * rowBytes
		if src+rowBytes > len(data) || dst+rowBytes > len(out) {
			continue
		}
		copy(out[dst:dst+rowBytes], data[src:src+rowBytes])
	}
	return out
}
