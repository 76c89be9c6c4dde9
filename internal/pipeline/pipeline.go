// Package pipeline implements the pipeline controller (C9, spec §4.9):
// drives enumerate -> download -> stitch+crop serially against one task
// database, persisting milestones so a restart resumes at the right
// stage. Grounded on the teacher's main.go application lifecycle (one
// root logger, one task directory, cancellation threaded through a
// context) generalized from a single desktop download to three staged
// sub-processes, and on the Python original's GeeDownloadManager for the
// milestone/progress-dictionary shape spec §4.9 documents.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/walkthru-earth/geoharvest/internal/common"
	"github.com/walkthru-earth/geoharvest/internal/download"
	"github.com/walkthru-earth/geoharvest/internal/enumerate"
	"github.com/walkthru-earth/geoharvest/internal/ghErr"
	"github.com/walkthru-earth/geoharvest/internal/logging"
	"github.com/walkthru-earth/geoharvest/internal/maskcrop"
	"github.com/walkthru-earth/geoharvest/internal/output"
	"github.com/walkthru-earth/geoharvest/internal/provider"
	"github.com/walkthru-earth/geoharvest/internal/proxypool"
	"github.com/walkthru-earth/geoharvest/internal/stitch"
	"github.com/walkthru-earth/geoharvest/internal/store"
	"github.com/walkthru-earth/geoharvest/internal/tilegeom"
	"github.com/walkthru-earth/geoharvest/pkg/geotiff"
)

// MaxDownloadRetries bounds automatic restarts of the download stage
// before the task is marked failed (spec §4.9: "up to 3 automatic
// download retries before giving up").
const MaxDownloadRetries = 3

// DefaultBaseZoom is where probing starts (spec §4.1: "starting from
// z=10 and increasing").
const DefaultBaseZoom = 10

// MaxProbeZoom bounds the probe so a pathological provider can't spin
// forever; past this, the task fails with an area-too-large error.
const MaxProbeZoom = 21

// Controller drives one task end to end.
type Controller struct {
	st      *store.Store
	log     *logging.Stage
	root    *log.Logger
	logFile *os.File
	task    Task
	variant provider.Variant
	fetcher provider.Fetcher
	pool    *proxypool.Pool
}

// New opens (or creates) the task database and resolves the provider
// variant, ready for Run.
func New(task Task) (*Controller, error) {
	if task.StartDate != "" && !common.ValidateISO8601(task.StartDate) {
		return nil, fmt.Errorf("pipeline: invalid start date %q, want YYYY-MM-DD", task.StartDate)
	}
	if task.EndDate != "" && !common.ValidateISO8601(task.EndDate) {
		return nil, fmt.Errorf("pipeline: invalid end date %q, want YYYY-MM-DD", task.EndDate)
	}

	if err := os.MkdirAll(task.taskDir(), 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: create task dir: %w", err)
	}

	logFile, err := logging.OpenTaskLog(task.taskDir() + "/debug.log")
	if err != nil {
		return nil, fmt.Errorf("pipeline: open task log: %w", err)
	}
	root := logging.New(logFile)
	stageLog := logging.NewStage(root, "controller")

	st, err := store.Open(task.dbPath())
	if err != nil {
		logFile.Close()
		return nil, err
	}

	variant, err := provider.Resolve(task.Source)
	if err != nil {
		st.Close()
		logFile.Close()
		return nil, fmt.Errorf("pipeline: resolve source %q: %w", task.Source, err)
	}

	pool, err := proxypool.New(task.Proxies)
	if err != nil {
		st.Close()
		logFile.Close()
		return nil, fmt.Errorf("pipeline: build proxy pool: %w", err)
	}

	cfg := proxypool.DefaultConfig()
	client := proxypool.NewClient(pool, cfg)
	fetcher := provider.NewHTTPFetcher(client, "", variant, task.Credential)

	return &Controller{st: st, log: stageLog, root: root, logFile: logFile, task: task, variant: variant, fetcher: fetcher, pool: pool}, nil
}

// ReadStatus reports a task's progress without resolving a provider or
// building a proxy pool, for the `geoharvest status` subcommand, which
// should work even against a task whose credential or proxy config has
// gone stale since the last run.
func ReadStatus(task Task) (Progress, error) {
	st, err := store.Open(task.dbPath())
	if err != nil {
		return Progress{}, err
	}
	defer st.Close()

	p, err := readSidecar(task.taskDir() + "/progress.xml")
	if err != nil {
		return Progress{}, err
	}
	for key, dst := range map[string]*bool{
		MilestoneCalculateTiles: &p.CalculateTilesDone,
		MilestoneTileDownload:   &p.TileDownloadDone,
		MilestoneTileStitch:     &p.TileStitchDone,
	} {
		if v, ok, err := st.Milestone(key); err == nil && ok {
			*dst = v == "1"
		}
	}
	return p, nil
}

// Close releases the task database and log file.
func (c *Controller) Close() error {
	dbErr := c.st.Close()
	logErr := c.logFile.Close()
	if dbErr != nil {
		return dbErr
	}
	return logErr
}

func (c *Controller) sidecarPath() string {
	return c.task.taskDir() + "/progress.xml"
}

func (c *Controller) persist(p Progress) {
	if err := writeSidecar(c.sidecarPath(), p); err != nil {
		c.log.Printf("sidecar write failed: %v", err)
	}
}

// Run drives enumerate -> download -> stitch+crop to completion, or
// until ctx is cancelled. It resumes from whichever milestones the task
// database already records (spec §4.9/§3 Lifecycle invariant).
func (c *Controller) Run(ctx context.Context) (Progress, error) {
	p, err := readSidecar(c.sidecarPath())
	if err != nil {
		c.log.Printf("sidecar read failed, starting fresh: %v", err)
		p = Progress{}
	}
	c.syncMilestones(&p)

	if !p.CalculateTilesDone {
		if err := c.runEnumerate(ctx, &p); err != nil {
			c.persist(p)
			return p, err
		}
	}

	if !p.TileDownloadDone {
		if err := c.runDownloadWithRetries(ctx, &p); err != nil {
			c.persist(p)
			return p, err
		}
	}

	if !p.TileStitchDone {
		if err := c.runStitchAndCrop(ctx, &p); err != nil {
			c.persist(p)
			return p, err
		}
	}

	c.persist(p)
	return p, nil
}

// RunEnumerate drives only stage 1, for the `geoharvest enumerate`
// subcommand. It is a no-op if the milestone is already set.
func (c *Controller) RunEnumerate(ctx context.Context) (Progress, error) {
	p, err := c.loadProgress()
	if err != nil {
		return p, err
	}
	if p.CalculateTilesDone {
		return p, nil
	}
	if err := c.runEnumerate(ctx, &p); err != nil {
		c.persist(p)
		return p, err
	}
	return p, nil
}

// RunDownload drives only stage 2, for the `geoharvest download`
// subcommand. Stage 1 must already be complete.
func (c *Controller) RunDownload(ctx context.Context) (Progress, error) {
	p, err := c.loadProgress()
	if err != nil {
		return p, err
	}
	if !p.CalculateTilesDone {
		return p, fmt.Errorf("pipeline: tile enumeration has not completed yet")
	}
	if p.TileDownloadDone {
		return p, nil
	}
	if err := c.runDownloadWithRetries(ctx, &p); err != nil {
		c.persist(p)
		return p, err
	}
	return p, nil
}

// RunStitch drives only stage 3 (stitch + mask/crop + output), for the
// `geoharvest stitch` subcommand. Stage 2 must already be complete.
func (c *Controller) RunStitch(ctx context.Context) (Progress, error) {
	p, err := c.loadProgress()
	if err != nil {
		return p, err
	}
	if !p.TileDownloadDone {
		return p, fmt.Errorf("pipeline: tile download has not completed yet")
	}
	if p.TileStitchDone {
		return p, nil
	}
	if err := c.runStitchAndCrop(ctx, &p); err != nil {
		c.persist(p)
		return p, err
	}
	return p, nil
}

// Status reports the last persisted progress without driving any stage,
// for the `geoharvest status` subcommand.
func (c *Controller) Status() (Progress, error) {
	return c.loadProgress()
}

func (c *Controller) loadProgress() (Progress, error) {
	p, err := readSidecar(c.sidecarPath())
	if err != nil {
		return Progress{}, err
	}
	c.syncMilestones(&p)
	return p, nil
}

// syncMilestones pulls the database's milestone table into p, the
// source of truth when the sidecar is missing or stale.
func (c *Controller) syncMilestones(p *Progress) {
	for key, dst := range map[string]*bool{
		MilestoneCalculateTiles: &p.CalculateTilesDone,
		MilestoneTileDownload:   &p.TileDownloadDone,
		MilestoneTileStitch:     &p.TileStitchDone,
	} {
		if v, ok, err := c.st.Milestone(key); err == nil && ok {
			*dst = v == "1"
		}
	}
}

func (c *Controller) setMilestone(key string, done *bool) error {
	*done = true
	return c.st.SetMilestone(key, "1")
}

// runEnumerate drives stage 1: zoom probing then quadtree enumeration
// (spec §4.1/§4.4).
func (c *Controller) runEnumerate(ctx context.Context, p *Progress) error {
	zoom, tileW, tileH, err := c.probeZoom(ctx)
	if err != nil {
		p.EnumerateException = err.Error()
		return err
	}

	en := enumerate.New(c.st, logging.NewStage(c.root, "enumerate"), tileW, tileH)
	n, err := en.Run(c.task.PolygonWKT, []int{zoom})
	if err != nil {
		p.EnumerateException = err.Error()
		return fmt.Errorf("pipeline: enumerate: %w", err)
	}
	c.log.Printf("enumerated %d tiles at zoom %d", n, zoom)

	if err := c.setMilestone(MilestoneCalculateTiles, &p.CalculateTilesDone); err != nil {
		return err
	}
	c.persist(*p)
	return nil
}

// probeZoom implements spec §4.1's probing procedure: starting at
// DefaultBaseZoom, fetch the tile containing the polygon centroid and
// increase zoom until the fetch doesn't fail with the provider's
// area-too-large error. The returned sample also fixes the tile pixel
// dimensions for the whole task.
func (c *Controller) probeZoom(ctx context.Context) (zoom, tileWidth, tileHeight int, err error) {
	geom, err := wkt.UnmarshalString(c.task.PolygonWKT)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("pipeline: parse polygon for probing: %w", err)
	}
	lon, lat := centroid(geom)

	for z := DefaultBaseZoom; z <= MaxProbeZoom; z++ {
		x, y := tilegeom.LonLatToTile(lon, lat, z)
		geometryWKT := wkt.MarshalString(orb.Polygon{tilegeom.BufferedRectangle(int(x), int(y), z)})
		img, ferr := c.fetcher.FetchTile(ctx, geometryWKT, c.task.ScaleMeters, firstBand(c.task.Band))
		if ferr == nil {
			return z, img.Cols, img.Rows, nil
		}
		if !errors.Is(ferr, ghErr.ErrAreaTooLarge) {
			return 0, 0, 0, fmt.Errorf("pipeline: probe zoom %d: %w", z, ferr)
		}
	}
	return 0, 0, 0, fmt.Errorf("pipeline: no zoom up to %d avoided area-too-large", MaxProbeZoom)
}

func firstBand(bands string) string {
	for i, r := range bands {
		if r == ',' {
			return bands[:i]
		}
	}
	return bands
}

// runDownloadWithRetries drives stage 2, restarting up to
// MaxDownloadRetries times on a recoverable failure (spec §7 "Excess
// tile-level failures").
func (c *Controller) runDownloadWithRetries(ctx context.Context, p *Progress) error {
	dl := download.New(c.st, c.fetcher, c.variant, c.task.ScaleMeters, logging.NewStage(c.root, "download"))
	dl.SetWorkers(c.task.Workers)

	attempts := 0
	for {
		err := dl.Run(ctx)
		c.refreshDownloadProgress(p)
		c.persist(*p)

		if err == nil {
			if err := c.setMilestone(MilestoneTileDownload, &p.TileDownloadDone); err != nil {
				return err
			}
			c.persist(*p)
			return nil
		}

		// Completion-wins-over-cancellation: if the stage had already
		// finished every tile by the time ctx fired, the run is treated
		// as a success rather than a cancellation, since the only
		// observable state (download_info) is already complete.
		if p.DownloadTotal > 0 && p.DownloadSuccess+p.DownloadFail >= p.DownloadTotal {
			if err := c.setMilestone(MilestoneTileDownload, &p.TileDownloadDone); err != nil {
				return err
			}
			c.persist(*p)
			return nil
		}

		if errors.Is(ctx.Err(), context.Canceled) {
			p.DownloadException = ghErr.ErrCancelled.Error()
			return ghErr.ErrCancelled
		}

		if ghErr.IsFatal(err) {
			p.DownloadException = err.Error()
			return err
		}

		attempts++
		if attempts > MaxDownloadRetries {
			p.DownloadException = fmt.Sprintf("download: max retries exceeded: %v", err)
			return fmt.Errorf("pipeline: %s", p.DownloadException)
		}
		c.log.Printf("download attempt %d failed, retrying: %v", attempts, err)
	}
}

func (c *Controller) refreshDownloadProgress(p *Progress) {
	dp, err := c.st.DownloadProgress()
	if err != nil {
		return
	}
	p.DownloadTotal, p.DownloadSuccess, p.DownloadFail = dp.Total, dp.Success, dp.Fail
}

// runStitchAndCrop drives stage 3a+3b across every physical shard, then
// writes the output product for each (spec §4.6/§4.7/§4.8).
func (c *Controller) runStitchAndCrop(ctx context.Context, p *Progress) error {
	poly, err := parsePolygon(c.task.PolygonWKT)
	if err != nil {
		p.StitchException = err.Error()
		return err
	}

	st := stitch.New(c.st, logging.NewStage(c.root, "stitch"), c.task.canvasDir())
	results, err := st.Run(ctx, c.variant, firstBand(c.task.Band))
	if err != nil {
		p.StitchException = err.Error()
		return fmt.Errorf("pipeline: stitch: %w", err)
	}
	p.StitchTotal = len(results)
	p.StitchedTiles = len(results)
	c.persist(*p)

	mc := maskcrop.New(c.st, logging.NewStage(c.root, "crop"), maskcrop.DefaultBlockSize, nil)

	for _, shard := range results {
		if err := ctx.Err(); err != nil {
			p.StitchException = ghErr.ErrCancelled.Error()
			return ghErr.ErrCancelled
		}

		transform := tilegeom.ComputeGeoTransform(shard.MinX, shard.MinY, shard.MaxX, shard.MaxY, shard.Zoom, shard.MapWidth, shard.MapHeight)

		canvas, err := stitch.OpenCanvas(shard.CanvasPath, shard.MapWidth, shard.MapHeight, shard.Channels, shard.Dtype)
		if err != nil {
			p.StitchException = err.Error()
			return fmt.Errorf("pipeline: reopen canvas %s: %w", shard.Table, err)
		}

		band := firstBand(c.task.Band)
		result, err := mc.Run(ctx, canvas, poly, transform, shard.Table, band)
		if err != nil {
			canvas.Close()
			p.StitchException = err.Error()
			return fmt.Errorf("pipeline: mask+crop %s: %w", shard.Table, err)
		}
		p.CropTotal += shard.MapWidth * shard.MapHeight
		if !result.IsEmpty {
			p.CropedBlocks += (result.XMax - result.XMin) * (result.YMax - result.YMin)
		}

		if err := c.writeShardOutput(shard, canvas, result, band); err != nil {
			canvas.Close()
			p.StitchException = err.Error()
			return err
		}
		if err := canvas.Close(); err != nil {
			p.StitchException = err.Error()
			return err
		}
		os.Remove(shard.CanvasPath)
	}

	if c.task.ExportSHP {
		if err := output.WriteShapefileZip(c.task.geoTifDir(), c.task.Name, poly); err != nil {
			p.StitchException = err.Error()
			return err
		}
	}

	if err := c.setMilestone(MilestoneTileStitch, &p.TileStitchDone); err != nil {
		return err
	}
	c.persist(*p)
	return nil
}

// writeShardOutput extracts the cropped region of canvas (or the empty
// fallback image, spec §4.7/§8 scenario 6) and writes the full output
// product set for one shard.
func (c *Controller) writeShardOutput(shard stitch.ShardResult, canvas *stitch.Canvas, result maskcrop.Result, band string) error {
	desc := output.Descriptor{
		Dir:        c.task.geoTifDir(),
		TaskName:   c.task.Name,
		Source:     c.task.Source,
		Suffix:     shardSuffix(shard.Table),
		Band:       band,
		RegionName: c.task.Name,
		StartDate:  c.task.StartDate,
		EndDate:    c.task.EndDate,
	}

	if result.IsEmpty {
		raster := output.EmptyRaster()
		transform := tilegeom.GeoTransform{A: 1, E: -1}
		if err := output.WriteGeoTIFFSet(desc, raster, transform); err != nil {
			return err
		}
		return output.WriteReadme(c.task.geoTifDir(), desc, result, c.task.ScaleMeters)
	}

	canvasTransform := tilegeom.ComputeGeoTransform(shard.MinX, shard.MinY, shard.MaxX, shard.MaxY, shard.Zoom, shard.MapWidth, shard.MapHeight)
	raster := extractRaster(canvas, result)
	// The crop's top-left pixel sits at (result.XMin, result.YMin) in
	// canvas space; its lon/lat becomes the cropped raster's own tiepoint.
	transform := tilegeom.GeoTransform{
		A: canvasTransform.A, E: canvasTransform.E,
		C: result.TopLeft[0], F: result.TopLeft[1],
	}
	if err := output.WriteGeoTIFFSet(desc, raster, transform); err != nil {
		return err
	}
	return output.WriteReadme(c.task.geoTifDir(), desc, result, c.task.ScaleMeters)
}

// extractRaster copies the cropped sub-rectangle out of canvas into a
// standalone raster ready for encoding (spec §4.7 "Final crop").
func extractRaster(canvas *stitch.Canvas, result maskcrop.Result) geotiff.Raster {
	width := result.XMax - result.XMin
	height := result.YMax - result.YMin
	channels := canvas.Channels()
	elemSize := canvas.ElemSize()
	rowBytes := width * channels * elemSize
	canvasRowBytes := canvas.Width() * channels * elemSize

	data := make([]byte, height*rowBytes)
	src := canvas.Bytes()
	for row := 0; row < height; row++ {
		srcOff := (result.YMin+row)*canvasRowBytes + result.XMin*channels*elemSize
		dstOff := row * rowBytes
		if srcOff+rowBytes > len(src) {
			break
		}
		copy(data[dstOff:dstOff+rowBytes], src[srcOff:srcOff+rowBytes])
	}

	return geotiff.Raster{Data: data, Width: width, Height: height, Channels: channels, Dtype: dtypeName(elemSize)}
}

// shardSuffix strips the "tiles_" prefix so output filenames read
// "<task>_<source>_10_part_0..." instead of repeating the table name
// verbatim (spec §6: "<suffix> is <shard-index> when the zoom was sharded").
func shardSuffix(table string) string {
	const prefix = "tiles_"
	if len(table) > len(prefix) && table[:len(prefix)] == prefix {
		return table[len(prefix):]
	}
	return table
}

func dtypeName(elemSize int) string {
	switch elemSize {
	case 2:
		return "u16"
	case 4:
		return "f32"
	default:
		return "u8"
	}
}

// parsePolygon unmarshals the task's polygon WKT into a single
// orb.Polygon, taking the first part of a multi-polygon since crop
// masking operates per stitched shard canvas (spec §4.7 scope is a
// single polygon; multi-polygon crop is a per-task, not per-shard,
// concern the enumerator already resolved at tile level).
func parsePolygon(polygonWKT string) (orb.Polygon, error) {
	geom, err := wkt.UnmarshalString(polygonWKT)
	if err != nil {
		return nil, fmt.Errorf("pipeline: parse polygon: %w", err)
	}
	switch g := geom.(type) {
	case orb.Polygon:
		return g, nil
	case orb.MultiPolygon:
		if len(g) == 0 {
			return nil, fmt.Errorf("pipeline: empty multipolygon")
		}
		return g[0], nil
	default:
		return nil, fmt.Errorf("pipeline: unsupported geometry type %T", geom)
	}
}

// centroid returns a simple vertex-average centroid of geom's first
// ring, sufficient for picking a probe point inside the polygon's
// bounding area (spec §4.1 only needs "a point in the polygon").
func centroid(geom orb.Geometry) (lon, lat float64) {
	var ring orb.Ring
	switch g := geom.(type) {
	case orb.Polygon:
		if len(g) > 0 {
			ring = g[0]
		}
	case orb.MultiPolygon:
		if len(g) > 0 && len(g[0]) > 0 {
			ring = g[0][0]
		}
	}
	if len(ring) == 0 {
		return 0, 0
	}
	var sx, sy float64
	for _, pt := range ring {
		sx += pt[0]
		sy += pt[1]
	}
	n := float64(len(ring))
	return sx / n, sy / n
}
