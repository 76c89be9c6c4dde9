package pipeline

import (
	"encoding/xml"
	"fmt"
	"os"
)

// Milestone keys, unchanged from spec §4.9.
const (
	MilestoneCalculateTiles = "is_CalculateTiles_done"
	MilestoneTileDownload   = "is_TileDownload_done"
	MilestoneTileStitch     = "is_TileStitch_done"
)

// Progress is the shared progress dictionary spec §4.9 describes,
// persisted as the per-task milestone sidecar so a restarted controller
// picks up at the right stage. The milestone booleans are also mirrored
// into the task database's milestones table (internal/store) so the
// sidecar and the database never disagree about where the last run left
// off; the sidecar exists because spec §6 names it as the externally
// inspectable artifact, the database as the resumable source of truth.
type Progress struct {
	XMLName xml.Name `xml:"progress"`

	DownloadTotal   int `xml:"download_total"`
	DownloadSuccess int `xml:"download_success"`
	DownloadFail    int `xml:"download_fail"`

	StitchTotal   int `xml:"stitch_total"`
	StitchedTiles int `xml:"stitched_tiles"`

	CropTotal    int `xml:"crop_total"`
	CropedBlocks int `xml:"croped_blocks"`

	CalculateTilesDone bool `xml:"is_CalculateTiles_done"`
	TileDownloadDone   bool `xml:"is_TileDownload_done"`
	TileStitchDone     bool `xml:"is_TileStitch_done"`

	EnumerateException string `xml:"enumerate_exception,omitempty"`
	DownloadException  string `xml:"download_exception,omitempty"`
	StitchException    string `xml:"stitch_exception,omitempty"`
}

// writeSidecar persists p as the per-task XML sidecar (spec §4.9: "The
// controller persists every milestone to a per-task XML sidecar").
func writeSidecar(path string, p Progress) error {
	data, err := xml.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: marshal progress sidecar: %w", err)
	}
	return os.WriteFile(path, append([]byte(xml.Header), data...), 0o644)
}

// readSidecar reads back a previously persisted sidecar, returning a zero
// Progress if none exists yet (a fresh task).
func readSidecar(path string) (Progress, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Progress{}, nil
	}
	if err != nil {
		return Progress{}, fmt.Errorf("pipeline: read progress sidecar: %w", err)
	}
	var p Progress
	if err := xml.Unmarshal(data, &p); err != nil {
		return Progress{}, fmt.Errorf("pipeline: unmarshal progress sidecar: %w", err)
	}
	return p, nil
}
