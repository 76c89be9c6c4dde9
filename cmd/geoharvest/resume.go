package main

import (
	"context"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(resumeCmd)
}

var resumeCmd = &cobra.Command{
	Use:   "resume <name> <polygon-wkt>",
	Short: "Resume a task from whichever milestone its task database last recorded",
	Long: `resume re-opens an existing task directory and continues the
pipeline from the last completed milestone. The polygon argument must
match the one the task was originally created with; it is only
re-consulted by stages that have not completed yet (enumerate and
stitch+crop both need it, download does not).`,
	Args: cobra.ExactArgs(2),
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

		p, err := ctrl.Run(ctx)
		printProgress(p)
		return err
	},
}
