package main

import (
	"context"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(downloadCmd)
}

var downloadCmd = &cobra.Command{
	Use:   "download <name> <polygon-wkt>",
	Short: "Download the already-enumerated tile grid through the proxy pool",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := withSignalCancel(context.Background())
		defer stop()

		ctrl, err := newController(buildTask(args[0], args[1]))
		if err != nil {
			return err
		}
		defer ctrl.Close()

		p, err := ctrl.RunDownload(ctx)
		printProgress(p)
		return err
	},
}
