// Package logx builds the run's structured logger. One root logger per
// `patchwash run` invocation, with per-instance child loggers carrying
// instance_id as a persistent field — the same one-sink-per-unit-of-work
// shape as the teacher's LogManager, generalized from per-concern to
// per-instance and upgraded from fmt.Fprintf to leveled, keyed output.
package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// Root is the run-scoped logger plus the sink it was built against, kept
// together so ForInstance can tee a child logger's output into both the
// console and a per-instance log file.
type Root struct {
	Logger *log.Logger
	sink   io.Writer
}

// New builds the root logger, writing to w at the given level ("debug",
// "info", "warn", "error").
func New(w io.Writer, level string) *Root {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	if lvl, err := log.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	return &Root{Logger: l, sink: w}
}

// ForInstance returns a child logger tagged with instance_id, tee-writing
// to logs/<instance_id>.log under logDir — the only durable state the
// core keeps beyond the predictions file. Callers must close the returned
// file when the instance finishes.
func (r *Root) ForInstance(logDir, instanceID string) (*log.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log dir: %w", err)
	}
	path := filepath.Join(logDir, instanceID+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening instance log %s: %w", path, err)
	}

	child := log.NewWithOptions(io.MultiWriter(r.sink, f), log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	child.SetLevel(r.Logger.GetLevel())
	return child.With("instance_id", instanceID), f, nil
}
