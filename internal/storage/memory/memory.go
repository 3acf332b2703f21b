// Package memory keeps the current run in memory and exports it to a JSON
// file when the run ends.
package memory

import (
	"errors"
	"sync"

	"github.com/tabletop-racing/racecontrol/internal/config"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// ErrNoRun is returned when a record arrives with no run in progress.
var ErrNoRun = errors.New("no run in progress")

// Backend stores run data in memory and exports to JSON
type Backend struct {
	cfg config.MemoryConfig

	run    *core.Run
	laps   []core.Lap
	frames []core.FrameTiming

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartRun begins recording a new run, discarding anything left from the
// previous one.
func (b *Backend) StartRun(run *core.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	run.ID = b.idCounter

	cp := *run
	b.run = &cp
	b.laps = nil
	b.frames = nil
	return nil
}

// EndRun exports the run and clears it.
func (b *Backend) EndRun(result *core.RunResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil || b.run.ID != result.RunID {
		return ErrNoRun
	}
	err := b.exportJSON(*result)
	b.run = nil
	return err
}

// RecordLap appends a lap boundary.
func (b *Backend) RecordLap(lap *core.Lap) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil {
		return ErrNoRun
	}
	b.laps = append(b.laps, *lap)
	return nil
}

// RecordFrame appends a frame timing record.
func (b *Backend) RecordFrame(frame *core.FrameTiming) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil {
		return ErrNoRun
	}
	b.frames = append(b.frames, *frame)
	return nil
}

// LastExportPath returns the file written by the last EndRun.
func (b *Backend) LastExportPath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
