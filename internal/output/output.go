// Package output implements the output writer (C8, spec §4.8): the
// final GeoTIFF plus its world-file and projection sidecars, a readme,
// and an optional zipped polygon shapefile. Grounded on the teacher's
// pkg/geotiff encoder (adapted to generic channel/dtype rasters, see
// that package) and on the directory-layout conventions spec §6 spells
// out verbatim.
package output

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/walkthru-earth/geoharvest/internal/maskcrop"
	"github.com/walkthru-earth/geoharvest/internal/shpwrite"
	"github.com/walkthru-earth/geoharvest/internal/tilegeom"
	"github.com/walkthru-earth/geoharvest/internal/utils/naming"
	"github.com/walkthru-earth/geoharvest/pkg/geotiff"
)

// WGS84WKT is the fixed geographic coordinate system WKT every output
// carries (spec §4.8: "the fixed WGS84 geographic-CS WKT"; spec Non-goals
// rule out any other target CRS).
const WGS84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]]`

// EmptyImageSize is the fallback output dimension when the polygon does
// not overlap the stitched canvas (spec §4.7 "Final crop" / §8 scenario 6).
const EmptyImageSize = 512

// Descriptor names one output product (spec §6's filename template:
// "<taskname>_<source>[_<suffix>][_<band>]").
type Descriptor struct {
	Dir       string
	TaskName  string
	Source    string
	Suffix    string // shard index, empty when the zoom was not sharded
	Band      string
	InfoURL   string
	RegionName string
	StartDate, EndDate string
}

func (d Descriptor) baseName() string {
	name := d.TaskName + "_" + d.Source
	if d.Suffix != "" {
		name += "_" + d.Suffix
	}
	if d.Band != "" {
		name += "_" + d.Band
	}
	return name
}

// WriteGeoTIFFSet writes the .tif/.tfw/.prj triple for one cropped raster.
func WriteGeoTIFFSet(d Descriptor, raster geotiff.Raster, transform tilegeom.GeoTransform) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("output: create output dir: %w", err)
	}
	base := filepath.Join(d.Dir, d.baseName())

	geo := geotiff.GeoParams{
		TopLeftLon: transform.C, TopLeftLat: transform.F,
		PixelWidth: transform.A, PixelHeight: -transform.E,
	}

	// Encode to a uniquely-named temp file first and rename into place,
	// so a crash mid-encode never leaves a truncated .tif at the final
	// path a caller might already be polling for.
	tmpPath := base + ".tif." + uuid.NewString() + ".tmp"
	tifFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("output: create tif: %w", err)
	}
	encodeErr := geotiff.Encode(tifFile, raster, geo)
	closeErr := tifFile.Close()
	if encodeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("output: encode geotiff: %w", encodeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("output: close tif: %w", closeErr)
	}
	if err := os.Rename(tmpPath, base+".tif"); err != nil {
		return fmt.Errorf("output: finalize tif: %w", err)
	}

	if err := writeWorldFile(base+".tfw", transform); err != nil {
		return err
	}
	if err := os.WriteFile(base+".prj", []byte(WGS84WKT), 0o644); err != nil {
		return fmt.Errorf("output: write prj: %w", err)
	}
	return nil
}

// writeWorldFile emits the six-line .tfw sidecar (spec §4.8): pixel
// width, 0, 0, negative pixel height, top-left lon, top-left lat.
func writeWorldFile(path string, transform tilegeom.GeoTransform) error {
	lines := []string{
		fmt.Sprintf("%.10f", transform.A),
		"0",
		"0",
		fmt.Sprintf("%.10f", transform.E),
		fmt.Sprintf("%.10f", transform.C),
		fmt.Sprintf("%.10f", transform.F),
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

// WriteReadme emits the plain-text readme (spec §4.8). When result is
// empty (no polygon/canvas overlap), the readme instead records the
// single error line spec §8 scenario 6 requires.
func WriteReadme(dir string, d Descriptor, result maskcrop.Result, scaleMeters int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("output: create output dir: %w", err)
	}
	path := filepath.Join(dir, "readme.txt")

	if result.IsEmpty {
		content := fmt.Sprintf("ERROR: polygon does not overlap the stitched canvas; output is an empty %dx%dx3 image.\n", EmptyImageSize, EmptyImageSize)
		return os.WriteFile(path, []byte(content), 0o644)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Data source: %s\n", d.Source)
	fmt.Fprintf(&b, "Region: %s\n", d.RegionName)
	fmt.Fprintf(&b, "Date range: %s to %s\n", d.StartDate, d.EndDate)
	fmt.Fprintf(&b, "Scale (meters/pixel): %d\n", scaleMeters)
	if d.InfoURL != "" {
		fmt.Fprintf(&b, "Info URL: %s\n", d.InfoURL)
	}
	fmt.Fprintf(&b, "Bounds: top-left (%.6f, %.6f), bottom-right (%.6f, %.6f)\n",
		result.TopLeft[0], result.TopLeft[1], result.BotRight[0], result.BotRight[1])
	fmt.Fprintf(&b, "Bounds (south_west_north_east): %s\n",
		naming.BBoxString(result.BotRight[1], result.TopLeft[0], result.TopLeft[1], result.BotRight[0]))
	fmt.Fprintf(&b, "Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// WriteShapefileZip writes the optional zipped polygon shapefile (spec
// §4.8 "Optional shapefile": "write the polygon as a WGS84 shapefile and
// zip the four/five component files together").
func WriteShapefileZip(dir, taskName string, poly orb.Polygon) error {
	files, err := shpwrite.WriteSet(poly, WGS84WKT)
	if err != nil {
		return fmt.Errorf("output: build shapefile set: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("output: create output dir: %w", err)
	}

	zipPath := filepath.Join(dir, taskName+"_shp.zip")
	zf, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("output: create shapefile zip: %w", err)
	}
	defer zf.Close()

	zw := zip.NewWriter(zf)
	for _, ext := range []string{"shp", "shx", "dbf", "prj"} {
		w, err := zw.Create(taskName + "." + ext)
		if err != nil {
			return fmt.Errorf("output: add %s to zip: %w", ext, err)
		}
		if _, err := w.Write(files[ext]); err != nil {
			return fmt.Errorf("output: write %s into zip: %w", ext, err)
		}
	}
	return zw.Close()
}

// EmptyRaster builds the fallback black image for a no-overlap crop
// (spec §4.7/§8 scenario 6: "a single empty (512, 512, 3) black image").
func EmptyRaster() geotiff.Raster {
	size := EmptyImageSize
	return geotiff.Raster{
		Data:     make([]byte, size*size*3),
		Width:    size,
		Height:   size,
		Channels: 3,
		Dtype:    "u8",
	}
}
