package tilegeom

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestBoundsRoundTrip(t *testing.T) {
	west, south, east, north := Bounds(100, 200, 9)
	if west >= east || south >= north {
		t.Fatalf("degenerate bounds: %f %f %f %f", west, south, east, north)
	}
	minX, minY, maxX, maxY := BoundingTile(west, south, east, north, 9)
	if minX != 100 || maxX != 100 || minY != 200 || maxY != 200 {
		t.Fatalf("bounding tile mismatch: got (%d,%d)-(%d,%d)", minX, minY, maxX, maxY)
	}
}

func TestBufferDistanceTable(t *testing.T) {
	cases := map[int]float64{
		10: 0.0018,
		15: 0.00006,
		21: 0.0000006,
	}
	for z, want := range cases {
		if got := BufferDistance(z); got != want {
			t.Errorf("zoom %d: got %v want %v", z, got, want)
		}
	}
	if BufferDistance(5) != BufferDistance(10) {
		t.Errorf("zoom below table should clamp to z10")
	}
	if BufferDistance(99) != BufferDistance(21) {
		t.Errorf("zoom above table should clamp to z21")
	}
}

func TestChildrenAndDescendants(t *testing.T) {
	kids := Children(Tile{1, 1, 1})
	want := [4]Tile{{2, 2, 2}, {3, 2, 2}, {2, 3, 2}, {3, 3, 2}}
	if kids != want {
		t.Fatalf("got %v want %v", kids, want)
	}
	desc := Descendants(Tile{0, 0, 0}, 2)
	if len(desc) != 16 {
		t.Fatalf("expected 16 descendants at +2 zoom, got %d", len(desc))
	}
}

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}

func TestIsRectangle(t *testing.T) {
	if !IsRectangle(square(0, 0, 1, 1)) {
		t.Fatal("axis-aligned square should be detected as rectangle")
	}
	tri := orb.Polygon{{{0, 0}, {1, 0}, {0.5, 1}, {0, 0}}}
	if IsRectangle(tri) {
		t.Fatal("triangle must not be a rectangle")
	}
}

func TestContainsAndIntersects(t *testing.T) {
	poly := square(-1, -1, 1, 1)
	inner := Rectangle(0, 0, 0)
	_ = inner
	rectInside := orb.Ring{{-0.5, -0.5}, {0.5, -0.5}, {0.5, 0.5}, {-0.5, 0.5}, {-0.5, -0.5}}
	if !Contains(poly, rectInside) {
		t.Fatal("polygon should contain the inner rectangle")
	}
	rectOutside := orb.Ring{{10, 10}, {11, 10}, {11, 11}, {10, 11}, {10, 10}}
	if Intersects(poly, rectOutside) {
		t.Fatal("disjoint rectangle must not intersect")
	}
	rectStraddle := orb.Ring{{0.5, 0.5}, {2, 0.5}, {2, 2}, {0.5, 2}, {0.5, 0.5}}
	if !Intersects(poly, rectStraddle) {
		t.Fatal("straddling rectangle should intersect")
	}
	if Contains(poly, rectStraddle) {
		t.Fatal("straddling rectangle must not be fully contained")
	}
}

func TestPointInPolygonWithHole(t *testing.T) {
	outer := orb.Ring{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}, {-1, -1}}
	hole := orb.Ring{{-0.2, -0.2}, {0.2, -0.2}, {0.2, 0.2}, {-0.2, 0.2}, {-0.2, -0.2}}
	poly := orb.Polygon{outer, hole}
	if PointInPolygon(orb.Point{0, 0}, poly) {
		t.Fatal("point inside hole must not be in polygon")
	}
	if !PointInPolygon(orb.Point{0.5, 0.5}, poly) {
		t.Fatal("point between hole and outer ring must be in polygon")
	}
}
