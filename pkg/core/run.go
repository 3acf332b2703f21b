// pkg/core/run.go
package core

import "time"

// UserMapName selects a track built from markers detected on the table.
const UserMapName = "map_user"

// Scenario is a menu selection: which map to race on and which cars take part.
type Scenario struct {
	MapName string         `json:"mapName"`
	Cars    []CarSelection `json:"cars"`
}

// Run is one executed scenario.
type Run struct {
	ID        uint
	MapName   string
	StartTime time.Time
	Track     Track
	Cars      []CarSelection
}

// Lap is a lap boundary measured from the start of a run.
type Lap struct {
	RunID   uint
	Number  int
	Elapsed time.Duration
	Time    time.Time
}

// FrameTiming is the per-stage duration of one scheduler tick.
type FrameTiming struct {
	RunID    uint
	Frame    uint
	Time     time.Time
	Vision   time.Duration
	Update   time.Duration
	Laps     time.Duration
	Display  time.Duration
	CopyDown time.Duration
	Total    time.Duration
}

// RunResult closes a run.
type RunResult struct {
	RunID   uint
	EndTime time.Time
	Reason  string
	Laps    []time.Duration
}
