// Package maskcrop implements the mask/crop engine (C7, spec §4.7):
// block-wise polygon masking of the stitched canvas, running extremum
// tracking, and the final crop to the tight bounding box of kept pixels.
// Grounded on the Python original's cropcut.crop_raster (block loop,
// per-block affine transform, crossing-number rasterization) with the
// ray-casting predicate reused from internal/tilegeom rather than
// reimplemented, and on spec §9's GPU-optional redesign note for the
// CPU/GPU split.
package maskcrop

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/walkthru-earth/geoharvest/internal/ghErr"
	"github.com/walkthru-earth/geoharvest/internal/logging"
	"github.com/walkthru-earth/geoharvest/internal/stitch"
	"github.com/walkthru-earth/geoharvest/internal/store"
	"github.com/walkthru-earth/geoharvest/internal/tilegeom"
)

// DefaultBlockSize is the masking tile size (spec §4.7: "default 2,048").
const DefaultBlockSize = 2048

// GPUMasker offloads the per-block point-in-polygon test and extremum
// reduction to a device (spec §4.7 GPU path). Real implementations live
// outside this module; this repo ships no CUDA bindings and no GPUMasker
// implementation, and the pipeline passes a nil GPUMasker, so every block
// takes the CPU path.
type GPUMasker interface {
	MaskBlock(ctx context.Context, pixels []byte, width, height, channels, elemSize int, transform tilegeom.GeoTransform, poly orb.Polygon) (store.Extremum, error)
}

// Engine drives stage 3b against one stitched canvas.
type Engine struct {
	st        *store.Store
	log       *logging.Stage
	blockSize int
	gpu       GPUMasker
}

// New builds an Engine. gpu may be nil, in which case masking always runs
// on the CPU path.
func New(st *store.Store, log *logging.Stage, blockSize int, gpu GPUMasker) *Engine {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Engine{st: st, log: log, blockSize: blockSize, gpu: gpu}
}

// Result is the outcome of a mask+crop run.
type Result struct {
	IsEmpty  bool
	YMin     int
	YMax     int
	XMin     int
	XMax     int
	TopLeft  [2]float64 // lon, lat
	BotRight [2]float64 // lon, lat
}

// Run masks every block of canvas against poly, tracks the running
// extremum in the task database (resumable via crop_info.cropped), and
// returns the final crop bounds (spec §4.7 "Final crop").
func (e *Engine) Run(ctx context.Context, canvas *stitch.Canvas, poly orb.Polygon, transform tilegeom.GeoTransform, table, band string) (Result, error) {
	width, height := canvas.Width(), canvas.Height()
	if err := e.st.InitCropInfo(table, band, width, height, e.blockSize); err != nil {
		return Result{}, fmt.Errorf("maskcrop: init crop_info: %w", err)
	}

	blocks, err := e.st.CropInfo(table, band)
	if err != nil {
		return Result{}, fmt.Errorf("maskcrop: read crop_info: %w", err)
	}

	for _, block := range blocks {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}
		if block.Cropped {
			continue
		}

		ext, err := e.maskBlock(ctx, canvas, poly, transform, block)
		if err != nil {
			return Result{}, fmt.Errorf("maskcrop: mask block (%d,%d): %w", block.X, block.Y, err)
		}

		if err := e.st.MergeCropBounds(table, band, ext); err != nil {
			return Result{}, fmt.Errorf("maskcrop: merge crop bounds: %w", err)
		}
		if err := e.st.MarkBlockCropped(table, band, block.X, block.Y); err != nil {
			return Result{}, fmt.Errorf("maskcrop: mark block cropped: %w", err)
		}
	}

	bounds, err := e.st.CropBounds(table, band)
	if err != nil {
		return Result{}, fmt.Errorf("maskcrop: read final crop bounds: %w", err)
	}

	if !bounds.HasMin || bounds.YMin >= bounds.YMax || bounds.XMin >= bounds.XMax {
		return Result{IsEmpty: true}, nil
	}

	tlLon, tlLat := transform.ToLonLat(float64(bounds.XMin), float64(bounds.YMin))
	brLon, brLat := transform.ToLonLat(float64(bounds.XMax), float64(bounds.YMax))

	return Result{
		YMin: bounds.YMin, YMax: bounds.YMax, XMin: bounds.XMin, XMax: bounds.XMax,
		TopLeft:  [2]float64{tlLon, tlLat},
		BotRight: [2]float64{brLon, brLat},
	}, nil
}

// maskBlock masks one block in place on the canvas and returns its
// observed extremum. The GPU path is attempted first if configured;
// on any GPU failure the engine falls back to the CPU path for this
// block (spec §9: "If GPU initialization fails or the kernel raises at
// runtime, the engine surfaces a GpuUnavailable error; the controller
// re-runs the block on the CPU").
func (e *Engine) maskBlock(ctx context.Context, canvas *stitch.Canvas, poly orb.Polygon, transform tilegeom.GeoTransform, block store.CropBlock) (store.Extremum, error) {
	if e.gpu != nil {
		pixels := e.blockPixels(canvas, block)
		sub := blockTransform(transform, block)
		ext, err := e.gpu.MaskBlock(ctx, pixels, block.XEnd-block.X, block.YEnd-block.Y, canvas.Channels(), canvas.ElemSize(), sub, poly)
		if err == nil {
			e.writeBlockPixels(canvas, block, pixels)
			return offsetExtremum(ext, block), nil
		}
		if !ghErr.IsGPUUnavailable(err) {
			return store.Extremum{}, err
		}
		if e.log != nil {
			e.log.Printf("gpu mask failed for block (%d,%d), falling back to cpu: %v", block.X, block.Y, err)
		}
	}
	return e.maskBlockCPU(canvas, poly, transform, block)
}

// maskBlockCPU zeroes out-of-polygon pixels in place and returns the
// block-local extremum of kept pixels, in absolute canvas coordinates.
func (e *Engine) maskBlockCPU(canvas *stitch.Canvas, poly orb.Polygon, transform tilegeom.GeoTransform, block store.CropBlock) (store.Extremum, error) {
	channels := canvas.Channels()
	elemSize := canvas.ElemSize()
	width := canvas.Width()
	data := canvas.Bytes()

	ext := store.Extremum{}
	for py := block.Y; py < block.YEnd; py++ {
		for px := block.X; px < block.XEnd; px++ {
			lon, lat := transform.ToLonLat(float64(px)+0.5, float64(py)+0.5)
			offset := (py*width + px) * channels * elemSize
			if offset+channels*elemSize > len(data) {
				continue
			}
			if tilegeom.PointInPolygon(orb.Point{lon, lat}, poly) {
				if !ext.HasMin {
					ext.YMin, ext.YMax, ext.XMin, ext.XMax, ext.HasMin = py, py+1, px, px+1, true
				} else {
					if py < ext.YMin {
						ext.YMin = py
					}
					if py+1 > ext.YMax {
						ext.YMax = py + 1
					}
					if px < ext.XMin {
						ext.XMin = px
					}
					if px+1 > ext.XMax {
						ext.XMax = px + 1
					}
				}
			} else {
				for c := 0; c < channels*elemSize; c++ {
					data[offset+c] = 0
				}
			}
		}
	}
	return ext, nil
}

func (e *Engine) blockPixels(canvas *stitch.Canvas, block store.CropBlock) []byte {
	channels := canvas.Channels()
	elemSize := canvas.ElemSize()
	width := canvas.Width()
	data := canvas.Bytes()
	rowBytes := (block.XEnd - block.X) * channels * elemSize
	out := make([]byte, rowBytes*(block.YEnd-block.Y))
	for row := block.Y; row < block.YEnd; row++ {
		srcOff := (row*width + block.X) * channels * elemSize
		dstOff := (row - block.Y) * rowBytes
		if srcOff+rowBytes > len(data) {
			continue
		}
		copy(out[dstOff:dstOff+rowBytes], data[srcOff:srcOff+rowBytes])
	}
	return out
}

func (e *Engine) writeBlockPixels(canvas *stitch.Canvas, block store.CropBlock, pixels []byte) {
	channels := canvas.Channels()
	elemSize := canvas.ElemSize()
	width := canvas.Width()
	data := canvas.Bytes()
	rowBytes := (block.XEnd - block.X) * channels * elemSize
	for row := block.Y; row < block.YEnd; row++ {
		dstOff := (row*width + block.X) * channels * elemSize
		srcOff := (row - block.Y) * rowBytes
		if dstOff+rowBytes > len(data) || srcOff+rowBytes > len(pixels) {
			continue
		}
		copy(data[dstOff:dstOff+rowBytes], pixels[srcOff:srcOff+rowBytes])
	}
}

// blockTransform derives the per-block affine transform from the
// canvas-wide one (spec §4.7 "a per-block affine transform is derived").
func blockTransform(canvasTransform tilegeom.GeoTransform, block store.CropBlock) tilegeom.GeoTransform {
	lon, lat := canvasTransform.ToLonLat(float64(block.X), float64(block.Y))
	return tilegeom.GeoTransform{
		A: canvasTransform.A, B: canvasTransform.B, C: lon,
		D: canvasTransform.D, E: canvasTransform.E, F: lat,
	}
}

// offsetExtremum shifts a block-local extremum (as returned by a GPU
// kernel operating in block-relative pixel space) into absolute canvas
// coordinates.
func offsetExtremum(block store.Extremum, b store.CropBlock) store.Extremum {
	if !block.HasMin {
		return block
	}
	return store.Extremum{
		YMin: block.YMin + b.Y, YMax: block.YMax + b.Y,
		XMin: block.XMin + b.X, XMax: block.XMax + b.X,
		HasMin: true,
	}
}
