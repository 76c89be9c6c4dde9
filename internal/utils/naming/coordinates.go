// Package naming formats lon/lat bounds for the human-readable parts of
// an output product (the readme, not the filename: spec §6 fixes the
// filename template itself).
package naming

import (
	"fmt"
	"math"
	"strings"
)

// BBoxString renders a bounding box as a short human-readable string for
// the readme ("Bounds (south_west_north_east): ...").
func BBoxString(south, west, north, east float64) string {
	return fmt.Sprintf("%.4f_%.4f_%.4f_%.4f", south, west, north, east)
}

// SanitizeCoordinate formats one coordinate with a compass suffix
// (N/S/E/W) instead of a sign, and 'p' instead of a decimal point, so it
// is safe to use inside a path component on any filesystem.
func SanitizeCoordinate(coord float64, isLat bool) string {
	dir := "E"
	switch {
	case isLat && coord < 0:
		dir = "S"
	case isLat:
		dir = "N"
	case coord < 0:
		dir = "W"
	}
	coordStr := fmt.Sprintf("%.4f", math.Abs(coord))
	coordStr = strings.Replace(coordStr, ".", "p", 1)
	return coordStr + dir
}
