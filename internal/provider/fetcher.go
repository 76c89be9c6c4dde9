package provider

import "context"

// TileImage is a decoded provider response before normalization.
type TileImage struct {
	Data     []byte
	Dtype    string // "u8", "u16", "f32"
	Rows     int
	Cols     int
	Channels int
}

// Fetcher abstracts the imagery provider request: given a buffered tile
// geometry, scale and optional band, return the raw pixel array and its
// shape. The pipeline receives a ready credential handle (spec §1); this
// interface is what it is bound to, living in this package (rather than
// the downloader's) so both the downloader and any Fetcher implementation
// can depend on it without an import cycle.
type Fetcher interface {
	FetchTile(ctx context.Context, bufferedGeometryWKT string, scaleMeters int, band string) (TileImage, error)
}
