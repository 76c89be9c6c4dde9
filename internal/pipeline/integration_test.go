package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/walkthru-earth/geoharvest/internal/provider"
)

// constFetcher always succeeds with a fixed-size single-channel tile,
// exercising both zoom probing (first call) and every download-stage
// fetch (every later call) with the same deterministic response.
type constFetcher struct {
	width, height int
}

func (f constFetcher) FetchTile(ctx context.Context, geometryWKT string, scaleMeters int, band string) (provider.TileImage, error) {
	return provider.TileImage{
		Data:     make([]byte, f.width*f.height),
		Dtype:    "u8",
		Rows:     f.height,
		Cols:     f.width,
		Channels: 1,
	}, nil
}

// TestRunDrivesEnumerateDownloadStitchToCompletion exercises the full
// enumerate -> download -> stitch+crop sequence against a real, on-disk
// task database, catching wiring gaps (e.g. a missing results table, or
// an unset task_info row) that pure-helper unit tests can't see.
func TestRunDrivesEnumerateDownloadStitchToCompletion(t *testing.T) {
	dir := t.TempDir()
	task := Task{
		Name:        "integration",
		OutputDir:   dir,
		Source:      string(provider.LandCover),
		PolygonWKT:  "POLYGON((-0.5 -0.5, 0.5 -0.5, 0.5 0.5, -0.5 0.5, -0.5 -0.5))",
		ScaleMeters: 10,
		Proxies:     map[string]string{"p": "http://127.0.0.1:0"},
	}

	ctrl, err := New(task)
	require.NoError(t, err, "New")
	defer ctrl.Close()

	ctrl.fetcher = constFetcher{width: 8, height: 8}

	progress, err := ctrl.Run(context.Background())
	require.NoError(t, err, "Run")
	require.True(t, progress.CalculateTilesDone)
	require.True(t, progress.TileDownloadDone)
	require.True(t, progress.TileStitchDone)
	require.Greater(t, progress.DownloadSuccess, 0)
	require.Zero(t, progress.DownloadFail)

	matches, err := filepath.Glob(filepath.Join(task.geoTifDir(), "*.tif"))
	require.NoError(t, err, "glob geotiffs")
	require.NotEmpty(t, matches, "expected at least one output GeoTIFF")

	for _, tif := range matches {
		info, err := os.Stat(tif)
		require.NoError(t, err, "stat %s", tif)
		require.Greater(t, info.Size(), int64(0))
	}
}
