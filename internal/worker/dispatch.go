package worker

import (
	"fmt"

	"github.com/tabletop-racing/racecontrol/internal/dispatcher"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// Recording commands.
const (
	CmdRunStart = ":RUN:START:"
	CmdRunFrame = ":RUN:FRAME:"
	CmdRunLap   = ":RUN:LAP:"
	CmdRunEnd   = ":RUN:END:"
)

type flusher interface {
	Flush()
}

// RegisterHandlers registers the recording handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	m.flusher = d

	// Run boundaries - sync (the run ID is needed before any record)
	d.Register(CmdRunStart, m.handleRunStart, dispatcher.Logged())
	d.Register(CmdRunEnd, m.handleRunEnd, dispatcher.Logged())

	// Frame timings - buffered, dropped when storage falls behind
	d.Register(CmdRunFrame, m.handleRunFrame, dispatcher.Buffered(1000))

	// Laps - buffered, never dropped
	d.Register(CmdRunLap, m.handleRunLap, dispatcher.Buffered(100), dispatcher.Blocking(), dispatcher.Logged())
}

func (m *Manager) handleRunStart(e dispatcher.Event) (any, error) {
	run, err := payload[*core.Run](e)
	if err != nil {
		return nil, err
	}
	if err := m.backend.StartRun(run); err != nil {
		return nil, err
	}
	m.deps.Scenario.Set(run)
	m.deps.Logger.Info("Run started", "run", run.ID, "map", run.MapName, "cars", len(run.Cars))
	return run.ID, nil
}

func (m *Manager) handleRunFrame(e dispatcher.Event) (any, error) {
	frame, err := payload[core.FrameTiming](e)
	if err != nil {
		return nil, err
	}
	if frame.RunID == 0 {
		return nil, ErrNoRun
	}
	for _, s := range m.deps.Sinks {
		s.WriteFrame(frame)
	}
	return nil, m.backend.RecordFrame(&frame)
}

func (m *Manager) handleRunLap(e dispatcher.Event) (any, error) {
	lap, err := payload[core.Lap](e)
	if err != nil {
		return nil, err
	}
	if lap.RunID == 0 {
		return nil, ErrNoRun
	}
	return nil, m.backend.RecordLap(&lap)
}

// handleRunEnd waits for queued records of the run before closing it.
func (m *Manager) handleRunEnd(e dispatcher.Event) (any, error) {
	result, err := payload[core.RunResult](e)
	if err != nil {
		return nil, err
	}
	if m.flusher != nil {
		m.flusher.Flush()
	}
	defer m.deps.Scenario.Clear()
	m.deps.Logger.Info("Run ended", "run", result.RunID, "reason", result.Reason, "laps", max(len(result.Laps)-1, 0))
	return nil, m.backend.EndRun(&result)
}

func payload[T any](e dispatcher.Event) (T, error) {
	v, ok := e.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: unexpected payload %T", e.Command, e.Payload)
	}
	return v, nil
}
