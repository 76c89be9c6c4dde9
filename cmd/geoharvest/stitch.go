package main

import (
	"context"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stitchCmd)
}

var stitchCmd = &cobra.Command{
	Use:   "stitch <name> <polygon-wkt>",
	Short: "Stitch downloaded tiles into a canvas, mask/crop, and write GeoTIFF output",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := withSignalCancel(context.Background())
		defer stop()

		warnIfGPURequested()
		ctrl, err := newController(buildTask(args[0], args[1]))
		if err != nil {
			return err
		}
		defer ctrl.Close()

		p, err := ctrl.RunStitch(ctx)
		printProgress(p)
		return err
	},
}
