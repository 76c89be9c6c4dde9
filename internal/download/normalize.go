package download

import (
	"encoding/binary"
	"math"

	"github.com/walkthru-earth/geoharvest/internal/provider"
)

// normalize implements spec §4.5 steps 2-4: center-crop the buffered
// fetch to the expected buffered size (unbuffered + 2 halo), normalize
// floating-point payloads to u8 when no explicit band is set, and swap
// the first three channels when the source variant calls for it.
func normalize(img provider.TileImage, unbufW, unbufH int, variant provider.Variant, noBand bool) provider.TileImage {
	expectedW := unbufW + 2
	expectedH := unbufH + 2
	if img.Cols > expectedW || img.Rows > expectedH {
		img = centerCrop(img, expectedW, expectedH)
	}

	if img.Dtype == "f32" && noBand {
		img = floatToU8(img)
	}

	if variant.SwapChannels() {
		swapRB(img)
	}

	return img
}

func centerCrop(img provider.TileImage, targetW, targetH int) provider.TileImage {
	if targetW <= 0 || targetH <= 0 || targetW > img.Cols || targetH > img.Rows {
		return img
	}
	x0 := (img.Cols - targetW) / 2
	y0 := (img.Rows - targetH) / 2
	stride := elemSize(img.Dtype) * img.Channels
	rowBytes := img.Cols * stride
	targetRowBytes := targetW * stride
	out := make([]byte, targetH*targetRowBytes)
	for row := 0; row < targetH; row++ {
		srcOffset := (y0+row)*rowBytes + x0*stride
		dstOffset := row * targetRowBytes
		copy(out[dstOffset:dstOffset+targetRowBytes], img.Data[srcOffset:srcOffset+targetRowBytes])
	}
	return provider.TileImage{Data: out, Dtype: img.Dtype, Rows: targetH, Cols: targetW, Channels: img.Channels}
}

func elemSize(dtype string) int {
	switch dtype {
	case "u8":
		return 1
	case "u16":
		return 2
	case "f32":
		return 4
	default:
		return 1
	}
}

// floatToU8 normalizes a float32 buffer to u8 via min-max scaling,
// spec §4.5 step 3: "((v - min) / (max - min)) * 255".
func floatToU8(img provider.TileImage) provider.TileImage {
	n := img.Rows * img.Cols * img.Channels
	vals := make([]float32, n)
	minV, maxV := float32(math.MaxFloat32), -float32(math.MaxFloat32)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(img.Data[i*4 : i*4+4])
		v := math.Float32frombits(bits)
		vals[i] = v
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	out := make([]byte, n)
	span := maxV - minV
	for i, v := range vals {
		if span == 0 {
			out[i] = 0
			continue
		}
		scaled := (v - minV) / span * 255
		out[i] = byte(scaled)
	}
	return provider.TileImage{Data: out, Dtype: "u8", Rows: img.Rows, Cols: img.Cols, Channels: img.Channels}
}

// swapRB swaps channel 0 and channel 2 in place for 3-channel u8 images
// (RGB<->BGR), spec §4.5 step 4. Per DESIGN.md's open-question decision
// this never fires for non-3-channel images.
func swapRB(img provider.TileImage) {
	if img.Channels != 3 || img.Dtype != "u8" {
		return
	}
	for i := 0; i+2 < len(img.Data); i += 3 {
		img.Data[i], img.Data[i+2] = img.Data[i+2], img.Data[i]
	}
}
