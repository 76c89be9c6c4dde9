package tilegeom

import "github.com/paulmach/orb"

// PointInRing reports whether pt is inside ring using the standard
// even-odd crossing-number test, the same technique
// MeKo-Christian-WaterColorMap's raster fill uses for polygon rasterization.
func PointInRing(pt orb.Point, ring orb.Ring) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > pt[1]) != (yj > pt[1]) {
			xCross := (xj-xi)*(pt[1]-yi)/(yj-yi) + xi
			if pt[0] < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// PointInPolygon respects holes: a point is inside the polygon if it is
// inside the outer ring and not inside any inner ring.
func PointInPolygon(pt orb.Point, poly orb.Polygon) bool {
	if len(poly) == 0 {
		return false
	}
	if !PointInRing(pt, poly[0]) {
		return false
	}
	for _, hole := range poly[1:] {
		if PointInRing(pt, hole) {
			return false
		}
	}
	return true
}

func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := cross(sub(p4, p3), sub(p1, p3))
	d2 := cross(sub(p4, p3), sub(p2, p3))
	d3 := cross(sub(p2, p1), sub(p3, p1))
	d4 := cross(sub(p2, p1), sub(p4, p1))
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return false
}

func sub(a, b orb.Point) orb.Point { return orb.Point{a[0] - b[0], a[1] - b[1]} }
func cross(a, b orb.Point) float64 { return a[0]*b[1] - a[1]*b[0] }

func ringsIntersect(a, b orb.Ring) bool {
	for i := 0; i < len(a)-1; i++ {
		for j := 0; j < len(b)-1; j++ {
			if segmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

func ringBounds(r orb.Ring) (minX, minY, maxX, maxY float64) {
	minX, minY = r[0][0], r[0][1]
	maxX, maxY = r[0][0], r[0][1]
	for _, p := range r {
		minX = min(minX, p[0])
		minY = min(minY, p[1])
		maxX = max(maxX, p[0])
		maxY = max(maxY, p[1])
	}
	return
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Intersects reports whether polygon and the axis-aligned tile rectangle
// share any area: true if any rectangle vertex is inside the polygon, any
// polygon vertex is inside the rectangle, any edges cross, or the
// rectangle lies entirely inside the polygon.
func Intersects(poly orb.Polygon, rect orb.Ring) bool {
	minX, minY, maxX, maxY := ringBounds(rect)
	for _, p := range poly[0] {
		if p[0] >= minX && p[0] <= maxX && p[1] >= minY && p[1] <= maxY {
			return true
		}
	}
	for _, p := range rect {
		if PointInPolygon(p, poly) {
			return true
		}
	}
	for _, ring := range poly {
		if ringsIntersect(ring, rect) {
			return true
		}
	}
	// Rectangle fully inside a hole-free polygon with no vertex inside and
	// no crossing: test the rectangle's centroid.
	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	return PointInPolygon(orb.Point{cx, cy}, poly)
}

// Contains reports whether polygon fully covers rect: every rectangle
// vertex must be inside the polygon and no polygon ring may cross it.
func Contains(poly orb.Polygon, rect orb.Ring) bool {
	for _, p := range rect {
		if !PointInPolygon(p, poly) {
			return false
		}
	}
	for _, ring := range poly {
		if ringsIntersect(ring, rect) {
			return false
		}
	}
	return true
}

// IsRectangle reports whether poly (single outer ring, no holes) equals its
// own axis-aligned bounding rectangle, the enumerator's fast-path test.
func IsRectangle(poly orb.Polygon) bool {
	if len(poly) != 1 || len(poly[0]) < 4 {
		return false
	}
	ring := poly[0]
	minX, minY, maxX, maxY := ringBounds(ring)
	// A ring equals its bbox iff every vertex lies on the bbox boundary and
	// there are exactly 4 distinct corners visited (allowing a closing
	// duplicate of the first point).
	corners := map[[2]float64]bool{
		{minX, minY}: true, {maxX, minY}: true,
		{maxX, maxY}: true, {minX, maxY}: true,
	}
	seen := map[[2]float64]bool{}
	for _, p := range ring {
		onBoundary := p[0] == minX || p[0] == maxX || p[1] == minY || p[1] == maxY
		if !onBoundary {
			return false
		}
		key := [2]float64{p[0], p[1]}
		if corners[key] {
			seen[key] = true
		}
	}
	return len(seen) == 4
}
