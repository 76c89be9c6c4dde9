package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/walkthru-earth/geoharvest/internal/ghErr"
	"github.com/walkthru-earth/geoharvest/internal/maskcrop"
	"github.com/walkthru-earth/geoharvest/internal/provider"
	"github.com/walkthru-earth/geoharvest/internal/stitch"
)

func TestShardSuffixStripsTilesPrefix(t *testing.T) {
	if got := shardSuffix("tiles_10_part_0"); got != "10_part_0" {
		t.Fatalf("shardSuffix = %q", got)
	}
	if got := shardSuffix("other"); got != "other" {
		t.Fatalf("shardSuffix should pass through non-tiles names, got %q", got)
	}
}

func TestDtypeNameRoundTrip(t *testing.T) {
	cases := map[int]string{1: "u8", 2: "u16", 4: "f32"}
	for size, want := range cases {
		if got := dtypeName(size); got != want {
			t.Fatalf("dtypeName(%d) = %q, want %q", size, got, want)
		}
	}
}

func TestParsePolygonAcceptsPolygonAndMultiPolygon(t *testing.T) {
	poly, err := parsePolygon("POLYGON((-1 -1, 1 -1, 1 1, -1 1, -1 -1))")
	if err != nil || len(poly) == 0 {
		t.Fatalf("parsePolygon(POLYGON): %v", err)
	}
	mp, err := parsePolygon("MULTIPOLYGON(((-1 -1, 1 -1, 1 1, -1 1, -1 -1)))")
	if err != nil || len(mp) == 0 {
		t.Fatalf("parsePolygon(MULTIPOLYGON): %v", err)
	}
	if _, err := parsePolygon("not wkt"); err == nil {
		t.Fatalf("expected error for invalid WKT")
	}
}

func TestCentroidAveragesRingVertices(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}}
	lon, lat := centroid(poly)
	if lon != 1 || lat != 1 {
		t.Fatalf("centroid = (%v, %v), want (1, 1)", lon, lat)
	}
}

func TestExtractRasterCopiesSubRectangle(t *testing.T) {
	dir := t.TempDir()
	canvas, err := stitch.OpenCanvas(filepath.Join(dir, "c.canvas"), 4, 4, 1, "u8")
	require.NoError(t, err, "OpenCanvas")
	defer canvas.Close()
	require.NoError(t, canvas.Place(1, 1, 2, 2, []byte{1, 2, 3, 4}, 0), "Place")

	raster := extractRaster(canvas, maskcrop.Result{XMin: 1, YMin: 1, XMax: 3, YMax: 3})
	require.Equal(t, 2, raster.Width)
	require.Equal(t, 2, raster.Height)
	require.Equal(t, 1, raster.Channels)
	require.Equal(t, []byte{1, 2, 3, 4}, raster.Data[:4])
}

// zoomAwareFetcher counts calls and fails with ErrAreaTooLarge for the
// first failUntilCall of them.
type zoomAwareFetcher struct {
	attempt       int
	failUntilCall int
}

func (f *zoomAwareFetcher) FetchTile(ctx context.Context, geometryWKT string, scaleMeters int, band string) (provider.TileImage, error) {
	f.attempt++
	if f.attempt <= f.failUntilCall {
		return provider.TileImage{}, ghErr.ErrAreaTooLarge
	}
	return provider.TileImage{Rows: 256, Cols: 256, Channels: 1, Dtype: "u8"}, nil
}

func TestProbeZoomStopsAtFirstSuccessfulFetch(t *testing.T) {
	c := &Controller{
		task:    Task{PolygonWKT: "POLYGON((-1 -1, 1 -1, 1 1, -1 1, -1 -1))", ScaleMeters: 10},
		fetcher: &zoomAwareFetcher{failUntilCall: 2},
	}
	zoom, w, h, err := c.probeZoom(context.Background())
	require.NoError(t, err, "probeZoom")
	require.Equal(t, DefaultBaseZoom+2, zoom)
	require.Equal(t, 256, w)
	require.Equal(t, 256, h)
}

func TestProbeZoomPropagatesNonAreaErrors(t *testing.T) {
	c := &Controller{
		task:    Task{PolygonWKT: "POLYGON((-1 -1, 1 -1, 1 1, -1 1, -1 -1))", ScaleMeters: 10},
		fetcher: &fakeErrFetcher{err: errors.New("boom")},
	}
	if _, _, _, err := c.probeZoom(context.Background()); err == nil {
		t.Fatalf("expected probeZoom to propagate non-area-too-large errors")
	}
}

type fakeErrFetcher struct{ err error }

func (f *fakeErrFetcher) FetchTile(ctx context.Context, geometryWKT string, scaleMeters int, band string) (provider.TileImage, error) {
	return provider.TileImage{}, f.err
}

func TestNewRejectsMalformedDates(t *testing.T) {
	dir := t.TempDir()
	base := Task{
		Name: "t", OutputDir: dir, Source: string(provider.LandCover),
		PolygonWKT: "POLYGON((-1 -1, 1 -1, 1 1, -1 1, -1 -1))",
		Proxies:    map[string]string{"p": "http://127.0.0.1:0"},
	}

	bad := base
	bad.StartDate = "01-02-2020"
	_, err := New(bad)
	require.Error(t, err, "expected error for malformed start date")

	good := base
	good.StartDate = "2020-01-02"
	good.EndDate = "2020-02-01"
	ctrl, err := New(good)
	require.NoError(t, err, "New")
	ctrl.Close()
}
