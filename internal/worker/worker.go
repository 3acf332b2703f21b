// Package worker turns run recording events into storage calls.
package worker

import (
	"errors"
	"log/slog"

	"github.com/tabletop-racing/racecontrol/internal/scenario"
	"github.com/tabletop-racing/racecontrol/internal/storage"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// ErrNoRun is returned when a record arrives before the run was started.
var ErrNoRun = errors.New("no run started")

// FrameSink receives every recorded frame timing besides storage.
type FrameSink interface {
	WriteFrame(frame core.FrameTiming)
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Logger   *slog.Logger
	Scenario *scenario.Context
	Sinks    []FrameSink
}

// Manager records runs into a storage backend.
type Manager struct {
	deps    Dependencies
	backend storage.Backend
	flusher flusher
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Scenario == nil {
		deps.Scenario = scenario.NewContext()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}
