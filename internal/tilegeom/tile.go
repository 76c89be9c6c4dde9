// Package tilegeom implements Web-Mercator tile<->lat/lon conversions and
// the per-zoom buffer distances used to eliminate seams after stitching.
package tilegeom

import (
	"math"

	"github.com/paulmach/orb"
)

// Tile identifies a Web-Mercator slippy-map tile.
type Tile struct {
	X, Y, Z int
}

// bufferDistance maps a zoom level to the buffer distance, in degrees, that
// a tile's footprint is expanded by before it is requested from the
// provider. Values below z10 and above z21 fall back to the nearest edge.
var bufferDistance = map[int]float64{
	10: 0.0018,
	11: 0.0006,
	12: 0.00048,
	13: 0.00024,
	14: 0.00012,
	15: 0.00006,
	16: 0.00003,
	17: 0.000012,
	18: 0.000006,
	19: 0.0000036,
	20: 0.0000018,
	21: 0.0000006,
}

// BufferDistance returns the buffer distance in degrees for a zoom level.
func BufferDistance(zoom int) float64 {
	if d, ok := bufferDistance[zoom]; ok {
		return d
	}
	if zoom < 10 {
		return bufferDistance[10]
	}
	return bufferDistance[21]
}

// LonLatToTile converts a lon/lat pair to the fractional tile coordinate at
// the given zoom, matching the standard slippy-map projection.
func LonLatToTile(lon, lat float64, zoom int) (x, y float64) {
	n := math.Exp2(float64(zoom))
	x = (lon + 180.0) / 360.0 * n
	latRad := lat * math.Pi / 180.0
	y = (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n
	return x, y
}

// Bounds returns the unbuffered west/south/east/north degrees of tile (x,y,z).
func Bounds(x, y, z int) (west, south, east, north float64) {
	n := math.Exp2(float64(z))
	west = float64(x)/n*360.0 - 180.0
	east = float64(x+1)/n*360.0 - 180.0
	north = tileYToLat(float64(y), n)
	south = tileYToLat(float64(y+1), n)
	return west, south, east, north
}

func tileYToLat(y, n float64) float64 {
	yFrac := math.Pi * (1.0 - 2.0*y/n)
	return math.Atan(math.Sinh(yFrac)) * 180.0 / math.Pi
}

// Rectangle returns the tile's footprint as a closed orb.Ring, unbuffered.
func Rectangle(x, y, z int) orb.Ring {
	west, south, east, north := Bounds(x, y, z)
	return orb.Ring{
		{west, south},
		{east, south},
		{east, north},
		{west, north},
		{west, south},
	}
}

// BufferedRectangle returns the tile's footprint expanded outward by the
// zoom-keyed buffer distance (see spec §4.1). The expansion is a plain
// degree-space offset applied to each edge, matching the Python original's
// use of a planar buffer at small distances near the equator-to-mid-lat
// band this pipeline targets.
func BufferedRectangle(x, y, z int) orb.Ring {
	west, south, east, north := Bounds(x, y, z)
	d := BufferDistance(z)
	west -= d
	south -= d
	east += d
	north += d
	return orb.Ring{
		{west, south},
		{east, south},
		{east, north},
		{west, north},
		{west, south},
	}
}

// BoundingTile returns the tile range [minX,maxX]x[minY,maxY] at zoom that
// fully covers the west/south/east/north rectangle. An east or south edge
// lying exactly on a tile boundary does not pull in the neighbouring tile
// it only touches.
func BoundingTile(west, south, east, north float64, zoom int) (minX, minY, maxX, maxY int) {
	x1, y1 := LonLatToTile(west, north, zoom)
	x2, y2 := LonLatToTile(east, south, zoom)
	ex, ey := math.Ceil(x2)-1, math.Ceil(y2)-1
	if ex < math.Floor(x1) {
		ex = math.Floor(x1)
	}
	if ey < math.Floor(y1) {
		ey = math.Floor(y1)
	}
	minX, maxX = clampOrder(int(math.Floor(x1)), int(ex))
	minY, maxY = clampOrder(int(math.Floor(y1)), int(ey))
	n := int(math.Exp2(float64(zoom)))
	if maxX >= n {
		maxX = n - 1
	}
	if maxY >= n {
		maxY = n - 1
	}
	if minX < 0 {
		minX = 0
	}
	if minY < 0 {
		minY = 0
	}
	return minX, minY, maxX, maxY
}

func clampOrder(a, b int) (int, int) {
	if a <= b {
		return a, b
	}
	return b, a
}

// Children returns the four descendant tiles of t at z+1.
func Children(t Tile) [4]Tile {
	return [4]Tile{
		{2 * t.X, 2 * t.Y, t.Z + 1},
		{2*t.X + 1, 2 * t.Y, t.Z + 1},
		{2 * t.X, 2*t.Y + 1, t.Z + 1},
		{2*t.X + 1, 2*t.Y + 1, t.Z + 1},
	}
}

// Descendants returns every descendant tile of t at the given target zoom
// (target must be >= t.Z). Used by the enumerator's contained-tile fast
// path to emit a full subtree without further geometric tests.
func Descendants(t Tile, target int) []Tile {
	if target < t.Z {
		return nil
	}
	span := 1 << uint(target-t.Z)
	out := make([]Tile, 0, span*span)
	baseX := t.X << uint(target-t.Z)
	baseY := t.Y << uint(target-t.Z)
	for dy := 0; dy < span; dy++ {
		for dx := 0; dx < span; dx++ {
			out = append(out, Tile{baseX + dx, baseY + dy, target})
		}
	}
	return out
}

// TopLeftLatLon returns the lat/lon of a tile's northwest corner, used when
// computing a canvas's geotransform from its corner tiles.
func TopLeftLatLon(x, y, z int) (lon, lat float64) {
	west, _, _, north := Bounds(x, y, z)
	return west, north
}

// GeoTransform is the affine mapping from canvas pixel space to WGS84
// degrees, in the usual six-coefficient (a,b,c,d,e,f) world-file form:
// lon = a*px + b*py + c, lat = d*px + e*py + f. This pipeline never
// rotates, so b = d = 0.
type GeoTransform struct {
	A, B, C float64
	D, E, F float64
}

// ToLonLat applies the transform to a pixel coordinate.
func (g GeoTransform) ToLonLat(px, py float64) (lon, lat float64) {
	return g.A*px + g.B*py + g.C, g.D*px + g.E*py + g.F
}

// ComputeGeoTransform derives the canvas geotransform from its corner
// tiles (spec §4.7: "computed from corner tiles"). minX/minY/maxX/maxY
// are the tile-index bounds used to size the canvas; mapWidth/mapHeight
// are the canvas's pixel dimensions.
func ComputeGeoTransform(minX, minY, maxX, maxY, zoom, mapWidth, mapHeight int) GeoTransform {
	west, _, _, north := Bounds(minX, minY, zoom)
	_, south, east, _ := Bounds(maxX, maxY, zoom)

	pixelWidth := (east - west) / float64(mapWidth)
	pixelHeight := (north - south) / float64(mapHeight)

	return GeoTransform{
		A: pixelWidth, B: 0, C: west,
		D: 0, E: -pixelHeight, F: north,
	}
}
