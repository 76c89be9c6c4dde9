package main

import (
	"context"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(enumerateCmd)
}

var enumerateCmd = &cobra.Command{
	Use:   "enumerate <name> <polygon-wkt>",
	Short: "Probe the zoom level and enumerate the tile grid covering the polygon",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := withSignalCancel(context.Background())
		defer stop()

		ctrl, err := newController(buildTask(args[0], args[1]))
		if err != nil {
			return err
		}
		defer ctrl.Close()

		p, err := ctrl.RunEnumerate(ctx)
		printProgress(p)
		return err
	},
}
