// Package logging wraps the standard library logger with per-stage
// prefixes, mirroring the teacher's "log to a file, println for the
// console" split in main.go but generalized to named pipeline stages
// instead of a single desktop-app logger.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Stage is a prefixed logger for one pipeline stage ("enumerate",
// "download", "stitch", "crop").
type Stage struct {
	name   string
	logger *log.Logger
}

// New creates a root logger writing to w (typically a task-local log file)
// with standard timestamp/file flags, matching main.go's log.SetFlags call.
func New(w io.Writer) *log.Logger {
	return log.New(w, "", log.LstdFlags)
}

// NewStage returns a Stage that prefixes every line with "[name] ".
func NewStage(root *log.Logger, name string) *Stage {
	return &Stage{name: name, logger: root}
}

func (s *Stage) Printf(format string, args ...interface{}) {
	s.logger.Printf("[%s] %s", s.name, fmt.Sprintf(format, args...))
}

func (s *Stage) Println(args ...interface{}) {
	s.logger.Println(append([]interface{}{"[" + s.name + "]"}, args...)...)
}

// OpenTaskLog opens (creating if needed) the per-task log file used by the
// pipeline controller, same append/create mode as main.go's debug.log.
func OpenTaskLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
