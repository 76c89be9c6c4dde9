package main

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/walkthru-earth/geoharvest/internal/pipeline"
)

// tickProgressBar advances an indeterminate bar until done is closed.
// The controller reports progress through the persisted sidecar rather
// than a callback, so the CLI can only show liveness, not a true
// percentage, while a stage is in flight.
func tickProgressBar(bar *progressbar.ProgressBar, done <-chan struct{}) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			bar.Add(1)
		}
	}
}

func printProgress(p pipeline.Progress) {
	fmt.Printf("tiles enumerated: %d done\n", boolToInt(p.CalculateTilesDone))
	fmt.Printf("download: %d/%d ok, %d failed, done=%v\n", p.DownloadSuccess, p.DownloadTotal, p.DownloadFail, p.TileDownloadDone)
	fmt.Printf("stitch: %d/%d shards, done=%v\n", p.StitchedTiles, p.StitchTotal, p.TileStitchDone)
	fmt.Printf("crop: %d/%d pixels kept\n", p.CropedBlocks, p.CropTotal)
	if p.EnumerateException != "" {
		fmt.Println("enumerate error:", p.EnumerateException)
	}
	if p.DownloadException != "" {
		fmt.Println("download error:", p.DownloadException)
	}
	if p.StitchException != "" {
		fmt.Println("stitch error:", p.StitchException)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
