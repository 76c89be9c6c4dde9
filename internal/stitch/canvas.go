package stitch

import (
	"fmt"
	"os"
)

// Canvas is the memory-mapped stage-3a assembly target (spec §4.6 step
// 2): one file per physical shard, sized mapHeight*mapWidth*channels*
// sizeof(dtype), sharing a single fd across the shard's workers (spec
// §5: "Mmap files: one per shard; each worker owns its shard exclusively").
type Canvas struct {
	file          *os.File
	data          []byte
	width, height int
	channels      int
	elemSize      int
	placements    int
}

// ElemSize returns the byte width of one sample of dtype.
func ElemSize(dtype string) int {
	switch dtype {
	case "u8":
		return 1
	case "u16":
		return 2
	case "f32":
		return 4
	default:
		return 1
	}
}

// OpenCanvas creates (or reopens, for resume) the canvas temp file at
// path and memory-maps it read-write. A pre-existing non-empty file is
// left as-is so a resumed stitch picks up prior placements in place.
func OpenCanvas(path string, width, height, channels int, dtype string) (*Canvas, error) {
	elemSize := ElemSize(dtype)
	size := width * height * channels * elemSize
	if size <= 0 {
		return nil, fmt.Errorf("stitch: invalid canvas size (w=%d h=%d ch=%d)", width, height, channels)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("stitch: open canvas file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stitch: stat canvas file: %w", err)
	}
	if info.Size() != int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("stitch: truncate canvas file: %w", err)
		}
	}

	data, err := mmapWritable(f.Fd(), size)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stitch: mmap canvas file: %w", err)
	}

	return &Canvas{file: f, data: data, width: width, height: height, channels: channels, elemSize: elemSize}, nil
}

// Width, Height, Channels expose the canvas dimensions for masking/crop.
func (c *Canvas) Width() int    { return c.width }
func (c *Canvas) Height() int   { return c.height }
func (c *Canvas) Channels() int { return c.channels }
func (c *Canvas) ElemSize() int { return c.elemSize }
func (c *Canvas) Bytes() []byte { return c.data }

// Place writes payload (rows x cols x channels, row-major, matching the
// canvas's own dtype/channels) at canvas offset (startY, startX),
// clamped to canvas bounds (spec §4.6 step 3). flushEvery governs the
// msync cadence; pass 0 to defer flushing to the caller.
func (c *Canvas) Place(startY, startX, rows, cols int, payload []byte, flushEvery int) error {
	rowBytes := cols * c.channels * c.elemSize
	canvasRowBytes := c.width * c.channels * c.elemSize

	copyRows := rows
	if startY+copyRows > c.height {
		copyRows = c.height - startY
	}
	copyCols := cols
	if startX+copyCols > c.width {
		copyCols = c.width - startX
	}
	if copyRows <= 0 || copyCols <= 0 || startY < 0 || startX < 0 {
		return nil
	}
	copyRowBytes := copyCols * c.channels * c.elemSize

	for row := 0; row < copyRows; row++ {
		srcOff := row * rowBytes
		dstOff := (startY+row)*canvasRowBytes + startX*c.channels*c.elemSize
		if srcOff+copyRowBytes > len(payload) || dstOff+copyRowBytes > len(c.data) {
			break
		}
		copy(c.data[dstOff:dstOff+copyRowBytes], payload[srcOff:srcOff+copyRowBytes])
	}

	c.placements++
	if flushEvery > 0 && c.placements%flushEvery == 0 {
		return c.Flush()
	}
	return nil
}

// Flush syncs the mapping to disk (spec §4.6 step 4: "every 200
// placements, flush the mmap").
func (c *Canvas) Flush() error {
	return msync(c.data)
}

// Close unmaps and closes the underlying file. It does not remove the
// file; callers delete the temp canvas only after a successful crop
// (spec §3 lifecycle).
func (c *Canvas) Close() error {
	if err := munmap(c.data); err != nil {
		c.file.Close()
		return fmt.Errorf("stitch: munmap canvas: %w", err)
	}
	return c.file.Close()
}
