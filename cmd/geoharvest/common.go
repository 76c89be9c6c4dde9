package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/walkthru-earth/geoharvest/internal/pipeline"
	"github.com/walkthru-earth/geoharvest/internal/provider"
)

// buildTask assembles a pipeline.Task from the bound viper config plus
// the two positional arguments every subcommand takes: task name and
// polygon WKT.
func buildTask(name, polygonWKT string) pipeline.Task {
	proxies := make(map[string]string)
	for i, p := range viper.GetStringSlice("proxy") {
		proxies[fmt.Sprintf("proxy-%d", i)] = p
	}

	return pipeline.Task{
		Name:      name,
		OutputDir: viper.GetString("output-dir"),

		Source:      viper.GetString("source"),
		StartDate:   viper.GetString("start-date"),
		EndDate:     viper.GetString("end-date"),
		Proxies:     proxies,
		ScaleMeters: viper.GetInt("scale-meters"),
		PolygonWKT:  polygonWKT,
		Band:        viper.GetString("band"),
		ExportSHP:   viper.GetBool("export-shp"),
		Workers:     viper.GetInt("workers"),
		Credential: provider.CredentialHandle{
			ServiceAccount: viper.GetString("service-account"),
			KeyPath:        viper.GetString("key-path"),
			ProjectID:      viper.GetString("project-id"),
		},
	}
}

// warnIfGPURequested logs that masking always runs on the CPU path: no
// GPUMasker is wired in this build (internal/maskcrop.New is always
// called with gpu=nil in internal/pipeline), so an operator opting into
// --gpu should know it has no effect yet rather than silently ignoring it.
func warnIfGPURequested() {
	if viper.GetBool("gpu") {
		fmt.Println("warning: --gpu requested but no GPU masker is wired in this build, falling back to CPU")
	}
}

// withSignalCancel returns a context cancelled on SIGINT/SIGTERM, and the
// stop function that must be deferred to release the signal handler.
func withSignalCancel(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

func newController(task pipeline.Task) (*pipeline.Controller, error) {
	ctrl, err := pipeline.New(task)
	if err != nil {
		return nil, fmt.Errorf("geoharvest: %w", err)
	}
	return ctrl, nil
}
