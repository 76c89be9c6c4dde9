package stitch

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCanvasPlaceAndFlush(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shard.canvas")

	canvas, err := OpenCanvas(path, 4, 4, 1, "u8")
	if err != nil {
		t.Fatalf("OpenCanvas: %v", err)
	}
	defer canvas.Close()

	tile := []byte{1, 2, 3, 4}
	if err := canvas.Place(0, 0, 2, 2, tile, 0); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if err := canvas.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got := canvas.Bytes()
	want := []byte{1, 2, 0, 0, 3, 4, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("canvas byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestCanvasPlaceClampsToBounds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shard.canvas")

	canvas, err := OpenCanvas(path, 2, 2, 1, "u8")
	if err != nil {
		t.Fatalf("OpenCanvas: %v", err)
	}
	defer canvas.Close()

	tile := []byte{9, 9, 9, 9, 9, 9, 9, 9, 9}
	if err := canvas.Place(1, 1, 3, 3, tile, 0); err != nil {
		t.Fatalf("Place should clamp, not error: %v", err)
	}
}

func TestOpenCanvasResumesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shard.canvas")

	c1, err := OpenCanvas(path, 2, 2, 1, "u8")
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := c1.Place(0, 0, 1, 1, []byte{42}, 0); err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := c1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	c2, err := OpenCanvas(path, 2, 2, 1, "u8")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()
	if c2.Bytes()[0] != 42 {
		t.Fatalf("resumed canvas lost prior placement: got %d", c2.Bytes()[0])
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 4 {
		t.Fatalf("canvas file size = %d, want 4", info.Size())
	}
}
