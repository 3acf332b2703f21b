package world

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// VehicleState is one vehicle as seen in a snapshot.
type VehicleState struct {
	ID      string           `json:"id"`
	Kind    core.VehicleKind `json:"kind"`
	Tracked bool             `json:"tracked"`
	Pose    core.Pose        `json:"pose"`
	Speed   int              `json:"speed"`
	Angle   int              `json:"angle"`
}

// Position returns a fresh copy of the tracked position, or nil when the
// vehicle is not tracked.
func (v VehicleState) Position() *core.Point {
	if !v.Tracked {
		return nil
	}
	p := v.Pose.Position
	return &p
}

// Orientation returns the tracked orientation.
func (v VehicleState) Orientation() (float64, bool) {
	return v.Pose.Orientation, v.Tracked
}

// Snapshot is a read-only copy of the world at one tick. It has no setters;
// accessors hand out copies.
type Snapshot struct {
	tick       uint64
	taken      time.Time
	mapName    string
	dimensions core.Dimensions
	waypoints  core.Track
	vehicles   []VehicleState
}

// Tick is the number of world updates applied before this snapshot.
func (s *Snapshot) Tick() uint64 { return s.tick }

// Taken is when the snapshot was copied.
func (s *Snapshot) Taken() time.Time { return s.taken }

// MapName returns the active map.
func (s *Snapshot) MapName() string { return s.mapName }

// Dimensions returns the display plane size.
func (s *Snapshot) Dimensions() core.Dimensions { return s.dimensions }

// Waypoints returns a copy of the waypoint loop.
func (s *Snapshot) Waypoints() core.Track { return slices.Clone(s.waypoints) }

// WaypointCount returns the number of waypoints without copying them.
func (s *Snapshot) WaypointCount() int { return len(s.waypoints) }

// Waypoint returns waypoint i.
func (s *Snapshot) Waypoint(i int) (core.Waypoint, bool) {
	if i < 0 || i >= len(s.waypoints) {
		return core.Waypoint{}, false
	}
	return s.waypoints[i], true
}

// Vehicles returns a copy of every vehicle state.
func (s *Snapshot) Vehicles() []VehicleState { return slices.Clone(s.vehicles) }

// Vehicle returns the state of the vehicle owned by id.
func (s *Snapshot) Vehicle(id string) (VehicleState, bool) {
	for _, v := range s.vehicles {
		if v.ID == id {
			return v, true
		}
	}
	return VehicleState{}, false
}

// Others returns every vehicle except the one owned by id.
func (s *Snapshot) Others(id string) []VehicleState {
	others := make([]VehicleState, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		if v.ID != id {
			others = append(others, v)
		}
	}
	return others
}

type snapshotJSON struct {
	Tick       uint64          `json:"tick"`
	Taken      time.Time       `json:"taken"`
	MapName    string          `json:"mapName"`
	Dimensions core.Dimensions `json:"dimensions"`
	Waypoints  core.Track      `json:"waypoints"`
	Vehicles   []VehicleState  `json:"vehicles"`
}

// MarshalJSON renders the snapshot for the display.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Tick:       s.tick,
		Taken:      s.taken,
		MapName:    s.mapName,
		Dimensions: s.dimensions,
		Waypoints:  s.waypoints,
		Vehicles:   s.vehicles,
	})
}
