// internal/storage/storage.go
package storage

import "github.com/tabletop-racing/racecontrol/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// StartRun registers a run and assigns run.ID.
	StartRun(run *core.Run) error
	// EndRun closes the run, writing anything still pending.
	EndRun(result *core.RunResult) error

	// Recording
	RecordLap(lap *core.Lap) error
	RecordFrame(frame *core.FrameTiming) error
}

// Exporter is an optional interface for backends that write a file per run.
type Exporter interface {
	LastExportPath() string
}
