package main

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/walkthru-earth/geoharvest/internal/pipeline"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <name> <polygon-wkt>",
	Short: "Drive enumerate, download, and stitch+crop to completion",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := withSignalCancel(context.Background())
		defer stop()

		task := buildTask(args[0], args[1])
		warnIfGPURequested()

		ctrl, err := newController(task)
		if err != nil {
			return err
		}
		defer ctrl.Close()

		bar := progressbar.NewOptions(-1, progressbar.OptionSetDescription(fmt.Sprintf("running %s", task.Name)))
		done := make(chan struct{})
		defer close(done)
		go tickProgressBar(bar, done)

		p, err := ctrl.Run(ctx)
		bar.Finish()
		printProgress(p)
		return err
	},
}
