package shpwrite

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestWriteSetProducesAllComponents(t *testing.T) {
	poly := orb.Polygon{{{-122.5, 37.7}, {-122.4, 37.7}, {-122.4, 37.8}, {-122.5, 37.8}, {-122.5, 37.7}}}

	files, err := WriteSet(poly, "GEOGCS[...]")
	if err != nil {
		t.Fatalf("WriteSet: %v", err)
	}
	for _, ext := range []string{"shp", "shx", "dbf", "prj"} {
		if len(files[ext]) == 0 {
			t.Fatalf("missing or empty component: %s", ext)
		}
	}
	if files["shp"][0] != 0 || files["shp"][2] != 0x27 || files["shp"][3] != 0x0A {
		t.Fatalf("unexpected shp file code bytes: %v", files["shp"][:4])
	}
}

func TestWriteSetRejectsEmptyPolygon(t *testing.T) {
	if _, err := WriteSet(orb.Polygon{}, ""); err == nil {
		t.Fatalf("expected error for empty polygon")
	}
}
