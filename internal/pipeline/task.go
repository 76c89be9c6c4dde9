package pipeline

import "github.com/walkthru-earth/geoharvest/internal/provider"

// Task is the external task descriptor (spec §6 "Inputs (task
// descriptor)"): everything the controller needs to drive one run of
// enumerate -> download -> stitch+crop against one task database.
type Task struct {
	Name      string // filename-safe task name
	OutputDir string // output root; the task's files live under <OutputDir>/<Name>

	Source      string // provider selector, resolved via provider.Resolve
	StartDate   string // YYYY-MM-DD
	EndDate     string // YYYY-MM-DD
	Proxies     map[string]string
	Credential  provider.CredentialHandle
	ScaleMeters int
	PolygonWKT  string
	Band        string // comma-separated band selection, empty if none
	ExportSHP   bool
	Workers     int // download worker pool override; 0 uses download.MaxWorkers
}

// dbPath returns the task database file path (spec §6: "<output>/<taskname>/<taskname>.nev").
func (t Task) dbPath() string {
	return t.OutputDir + "/" + t.Name + "/" + t.Name + ".nev"
}

// taskDir returns the per-task output directory.
func (t Task) taskDir() string {
	return t.OutputDir + "/" + t.Name
}

// geoTifDir returns the per-task GeoTif output directory.
func (t Task) geoTifDir() string {
	return t.taskDir() + "/GeoTif"
}

// canvasDir returns the per-task temp canvas directory (spec §6:
// "<output>/GeoTif/temp_*", scoped here per-task to avoid collisions
// between concurrent tasks).
func (t Task) canvasDir() string {
	return t.geoTifDir() + "/temp_" + t.Name
}
