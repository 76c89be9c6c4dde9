package provider

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/url"

	"github.com/walkthru-earth/geoharvest/internal/proxypool"
)

// HTTPFetcher implements Fetcher against a single abstract
// imagery endpoint reached through the rotating proxy pool. It decodes
// the provider's raster response with the standard image package exactly
// as the teacher's isBlankTile does (image.Decode over jpeg/png), rather
// than inventing a bespoke wire format — this pipeline receives a ready
// credential handle per spec §1 and is not tied to Esri Wayback or Google
// Earth's specific protocols.
type HTTPFetcher struct {
	client    *proxypool.Client
	endpoint  string // base URL; geometry/scale/band are appended as query parameters
	variant   Variant
	credential CredentialHandle
}

// CredentialHandle is the opaque, ready-to-use credential the pipeline is
// handed (spec §1: "the pipeline receives a ready credential handle").
// This repo never performs auth itself.
type CredentialHandle struct {
	ServiceAccount string
	KeyPath        string
	ProjectID      string
}

// NewHTTPFetcher builds a fetcher for one resolved source variant.
func NewHTTPFetcher(client *proxypool.Client, endpoint string, variant Variant, cred CredentialHandle) *HTTPFetcher {
	return &HTTPFetcher{client: client, endpoint: endpoint, variant: variant, credential: cred}
}

// FetchTile requests the buffered tile rectangle at scaleMeters,
// optionally for one band, and decodes it into a TileImage.
func (f *HTTPFetcher) FetchTile(ctx context.Context, bufferedGeometryWKT string, scaleMeters int, band string) (TileImage, error) {
	reqURL := f.buildURL(bufferedGeometryWKT, scaleMeters, band)

	data, err := f.client.Fetch(ctx, reqURL)
	if err != nil {
		return TileImage{}, fmt.Errorf("provider: fetch tile: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return TileImage{}, fmt.Errorf("provider: decode tile image: %w", err)
	}

	return decodeToTileImage(img, f.variant), nil
}

func (f *HTTPFetcher) buildURL(geometryWKT string, scaleMeters int, band string) string {
	q := url.Values{}
	q.Set("geometry", geometryWKT)
	q.Set("scale", fmt.Sprintf("%d", scaleMeters))
	if band != "" {
		q.Set("band", band)
	}
	if f.endpoint == "" {
		return "?" + q.Encode()
	}
	return f.endpoint + "?" + q.Encode()
}

// decodeToTileImage converts a decoded image.Image into the raw
// row-major byte buffer the downloader's normalize step expects,
// respecting the variant's declared channel count.
func decodeToTileImage(img image.Image, variant Variant) TileImage {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	channels := variant.Channels
	if channels <= 0 {
		channels = 3
	}
	out := make([]byte, w*h*channels)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			switch channels {
			case 1:
				out[i] = byte(r >> 8)
			case 3:
				out[i] = byte(r >> 8)
				out[i+1] = byte(g >> 8)
				out[i+2] = byte(b >> 8)
			case 4:
				out[i] = byte(r >> 8)
				out[i+1] = byte(g >> 8)
				out[i+2] = byte(b >> 8)
				out[i+3] = byte(a >> 8)
			}
			i += channels
		}
	}
	return TileImage{Data: out, Dtype: "u8", Rows: h, Cols: w, Channels: channels}
}
