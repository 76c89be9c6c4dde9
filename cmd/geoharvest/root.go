package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "geoharvest",
	Short: "Enumerate, download, and stitch georeferenced imagery tiles",
	Long: `geoharvest enumerates the tile grid covering a polygon, downloads
the tiles through a rotating proxy pool into a per-task SQLite database,
stitches them into a memory-mapped canvas, masks and crops to the
polygon, and writes a GeoTIFF output set.

Each subcommand operates on a task directory named by its first
argument under --output-dir; "run" drives every stage, while "enumerate", "download",
and "stitch" each drive a single stage and "resume" picks up wherever a
prior run left off.`,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./geoharvest.yaml)")
	flags.String("output-dir", "./output", "root directory tasks are written under")
	flags.String("source", "", "imagery source selector (land_cover, water_history, terrain, climate)")
	flags.String("start-date", "", "range start date (YYYY-MM-DD)")
	flags.String("end-date", "", "range end date (YYYY-MM-DD)")
	flags.Int("scale-meters", 30, "requested pixel scale in meters")
	flags.String("band", "", "comma-separated band selection, empty for the source default")
	flags.Bool("export-shp", false, "also write a zipped shapefile of the crop boundary")
	flags.StringSlice("proxy", nil, "proxy URL, repeatable (scheme inferred from the URL)")
	flags.String("service-account", "", "imagery provider service account identifier")
	flags.String("key-path", "", "path to the provider service account key file")
	flags.String("project-id", "", "provider project id")
	flags.Int("workers", 0, "download worker pool size override, 0 uses the built-in default")
	flags.Bool("gpu", false, "opt into GPU-accelerated masking if available")

	for _, name := range []string{
		"output-dir", "source", "start-date", "end-date", "scale-meters", "band",
		"export-shp", "proxy", "service-account", "key-path", "project-id", "workers", "gpu",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("geoharvest: bind flag %q: %v", name, err))
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("geoharvest")
	}

	viper.SetEnvPrefix("GEOHARVEST")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}
