package maskcrop

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/walkthru-earth/geoharvest/internal/stitch"
	"github.com/walkthru-earth/geoharvest/internal/store"
	"github.com/walkthru-earth/geoharvest/internal/tilegeom"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "task.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRunMasksAndCropsFullyContainedPolygon(t *testing.T) {
	st := openTestStore(t)
	canvas, err := stitch.OpenCanvas(filepath.Join(t.TempDir(), "c.canvas"), 4, 4, 1, "u8")
	if err != nil {
		t.Fatalf("OpenCanvas: %v", err)
	}
	defer canvas.Close()
	data := canvas.Bytes()
	for i := range data {
		data[i] = 255
	}

	transform := tilegeom.GeoTransform{A: 1, B: 0, C: 0, D: 0, E: -1, F: 4}
	poly := orb.Polygon{{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}}

	engine := New(st, nil, 2, nil)
	result, err := engine.Run(context.Background(), canvas, poly, transform, "tiles_15_rs", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.IsEmpty {
		t.Fatalf("expected non-empty crop for fully-contained polygon")
	}
}

func TestRunProducesEmptyResultForDisjointPolygon(t *testing.T) {
	st := openTestStore(t)
	canvas, err := stitch.OpenCanvas(filepath.Join(t.TempDir(), "c.canvas"), 4, 4, 1, "u8")
	if err != nil {
		t.Fatalf("OpenCanvas: %v", err)
	}
	defer canvas.Close()

	transform := tilegeom.GeoTransform{A: 1, B: 0, C: 0, D: 0, E: -1, F: 4}
	poly := orb.Polygon{{{100, 100}, {104, 100}, {104, 104}, {100, 104}, {100, 100}}}

	engine := New(st, nil, 2, nil)
	result, err := engine.Run(context.Background(), canvas, poly, transform, "tiles_15_rs", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.IsEmpty {
		t.Fatalf("expected empty crop for disjoint polygon")
	}
}
