// Package provider models the small closed set of imagery sources as a
// tagged-variant enum (spec §9 "Dynamic dispatch on source type"), so a
// task resolves its quirks once at start instead of string-matching on
// every tile.
package provider

import "fmt"

// Kind names one of the supported imagery sources.
type Kind string

const (
	LandCover    Kind = "land_cover"
	WaterHistory Kind = "water_history"
	Terrain      Kind = "terrain"
	Climate      Kind = "climate"
)

// Variant carries the per-source quirks the stitcher and downloader must
// apply: whether each tile needs a vertical flip before placement (the original
// land-cover source quirk from spec §4.6 step 3), how many channels the
// source emits, and whether floating-point payloads need min-max
// normalization to u8 (spec §4.5 step 3).
type Variant struct {
	Kind           Kind
	Channels       int
	VerticalFlip   bool
	NormalizeFloat bool
	BandAware      bool
	DisplayName    string
	InfoURL        string
}

var registry = map[Kind]Variant{
	LandCover: {
		Kind:           LandCover,
		Channels:       1,
		VerticalFlip:   true,
		NormalizeFloat: false,
		BandAware:      false,
		DisplayName:    "Dynamic World Land Cover",
	},
	WaterHistory: {
		Kind:           WaterHistory,
		Channels:       1,
		VerticalFlip:   false,
		NormalizeFloat: false,
		BandAware:      true,
		DisplayName:    "JRC Monthly Water History",
	},
	Terrain: {
		Kind:           Terrain,
		Channels:       1,
		VerticalFlip:   false,
		NormalizeFloat: true,
		BandAware:      false,
		DisplayName:    "Terrain Elevation",
	},
	Climate: {
		Kind:           Climate,
		Channels:       3,
		VerticalFlip:   false,
		NormalizeFloat: true,
		BandAware:      true,
		DisplayName:    "CFSV2 Climate",
	},
}

// Resolve returns the Variant for a source selector string, resolving the
// dispatch once at task start rather than at every tile.
func Resolve(selector string) (Variant, error) {
	v, ok := registry[Kind(selector)]
	if !ok {
		return Variant{}, fmt.Errorf("unknown imagery source selector %q", selector)
	}
	return v, nil
}

// SwapChannels reports whether the downloader should swap the first three
// channels (RGB<->BGR). Per DESIGN.md's open-question decision this only
// fires for exactly 3 channels; 4-channel sources pass through unchanged.
func (v Variant) SwapChannels() bool {
	return v.Channels == 3
}
