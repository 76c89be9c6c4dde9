package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/walkthru-earth/geoharvest/internal/pipeline"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Print a task's last persisted milestone and counters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task := pipeline.Task{Name: args[0], OutputDir: viper.GetString("output-dir")}
		p, err := pipeline.ReadStatus(task)
		if err != nil {
			return err
		}
		printProgress(p)
		return nil
	},
}
