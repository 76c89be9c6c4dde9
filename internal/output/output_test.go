package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/walkthru-earth/geoharvest/internal/maskcrop"
	"github.com/walkthru-earth/geoharvest/internal/tilegeom"
	"github.com/walkthru-earth/geoharvest/pkg/geotiff"
)

func TestWriteGeoTIFFSetProducesThreeFiles(t *testing.T) {
	dir := t.TempDir()
	d := Descriptor{Dir: dir, TaskName: "task1", Source: "land_cover"}
	raster := geotiff.Raster{Data: make([]byte, 4), Width: 2, Height: 2, Channels: 1, Dtype: "u8"}
	transform := tilegeom.GeoTransform{A: 0.0001, E: -0.0001, C: -122.5, F: 37.8}

	if err := WriteGeoTIFFSet(d, raster, transform); err != nil {
		t.Fatalf("WriteGeoTIFFSet: %v", err)
	}
	for _, ext := range []string{".tif", ".tfw", ".prj"} {
		path := filepath.Join(dir, "task1_land_cover"+ext)
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("missing %s: %v", ext, err)
		}
	}
}

func TestWriteReadmeRecordsEmptyOverlapError(t *testing.T) {
	dir := t.TempDir()
	d := Descriptor{TaskName: "task1", Source: "land_cover"}

	if err := WriteReadme(dir, d, maskcrop.Result{IsEmpty: true}, 10); err != nil {
		t.Fatalf("WriteReadme: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(dir, "readme.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(content) == 0 {
		t.Fatalf("expected non-empty readme")
	}
}

func TestWriteShapefileZipProducesZipFile(t *testing.T) {
	dir := t.TempDir()
	poly := orb.Polygon{{{-122.5, 37.7}, {-122.4, 37.7}, {-122.4, 37.8}, {-122.5, 37.8}, {-122.5, 37.7}}}

	if err := WriteShapefileZip(dir, "task1", poly); err != nil {
		t.Fatalf("WriteShapefileZip: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "task1_shp.zip")); err != nil {
		t.Fatalf("missing zip: %v", err)
	}
}

func TestEmptyRasterDimensions(t *testing.T) {
	r := EmptyRaster()
	if r.Width != EmptyImageSize || r.Height != EmptyImageSize || r.Channels != 3 {
		t.Fatalf("unexpected empty raster shape: %+v", r)
	}
}
