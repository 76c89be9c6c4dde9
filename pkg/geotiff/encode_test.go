package geotiff

import (
	"bytes"
	"testing"
)

func TestEncodeWritesValidHeader(t *testing.T) {
	r := Raster{
		Data:     []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		Width:    2,
		Height:   2,
		Channels: 3,
		Dtype:    "u8",
	}
	geo := GeoParams{TopLeftLon: -122.5, TopLeftLat: 37.8, PixelWidth: 0.0001, PixelHeight: 0.0001}

	var buf bytes.Buffer
	if err := Encode(&buf, r, geo); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	out := buf.Bytes()
	if len(out) < 8 {
		t.Fatalf("output too short: %d bytes", len(out))
	}
	if out[0] != 'I' || out[1] != 'I' || out[2] != 0x2A {
		t.Fatalf("missing little-endian TIFF magic, got %v", out[:4])
	}
	if !bytes.Contains(out, r.Data) {
		t.Fatalf("pixel payload not found verbatim in output")
	}
}

func TestEncodeRejectsUnsupportedDtype(t *testing.T) {
	r := Raster{Data: []byte{1}, Width: 1, Height: 1, Channels: 1, Dtype: "weird"}
	var buf bytes.Buffer
	if err := Encode(&buf, r, GeoParams{}); err == nil {
		t.Fatalf("expected error for unsupported dtype")
	}
}

func TestEncodeRejectsZeroDimensions(t *testing.T) {
	r := Raster{Data: nil, Width: 0, Height: 0, Channels: 1, Dtype: "u8"}
	var buf bytes.Buffer
	if err := Encode(&buf, r, GeoParams{}); err == nil {
		t.Fatalf("expected error for zero-sized raster")
	}
}
