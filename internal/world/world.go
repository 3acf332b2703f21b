// Package world holds the canonical race state. A World has a single writer,
// the scheduler goroutine; everyone else sees immutable Snapshots.
package world

import (
	"slices"
	"time"

	"github.com/tabletop-racing/racecontrol/internal/vehicle"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// World is the scheduler-owned record of vehicles, map and waypoints.
// It is not safe for concurrent use.
type World struct {
	mapName    string
	dimensions core.Dimensions
	waypoints  core.Track
	vehicles   []*vehicle.Vehicle
	tick       uint64
}

// New creates the world for one run. The waypoint sequence is copied and
// fixed for the life of the world.
func New(m core.Map, vehicles []*vehicle.Vehicle) *World {
	return &World{
		mapName:    m.Name,
		dimensions: m.Dimensions,
		waypoints:  slices.Clone(m.Waypoints),
		vehicles:   slices.Clone(vehicles),
	}
}

// Update applies one vision frame. Each known vehicle takes the pose observed
// under its owner's ID; a vehicle missing from the frame loses its pose.
func (w *World) Update(observed []core.Observation) {
	byID := make(map[string]core.Pose, len(observed))
	for _, o := range observed {
		if _, dup := byID[o.ID]; !dup {
			byID[o.ID] = o.Pose
		}
	}

	for _, v := range w.vehicles {
		if p, ok := byID[v.OwnerID()]; ok {
			v.SetPose(&p)
		} else {
			v.SetPose(nil)
		}
	}
	w.tick++
}

// Snapshot copies the current state.
func (w *World) Snapshot() *Snapshot {
	s := &Snapshot{
		tick:       w.tick,
		taken:      time.Now(),
		mapName:    w.mapName,
		dimensions: w.dimensions,
		waypoints:  w.waypoints,
		vehicles:   make([]VehicleState, len(w.vehicles)),
	}
	for i, v := range w.vehicles {
		speed, _ := v.Speed()
		state := VehicleState{
			ID:    v.OwnerID(),
			Kind:  v.Kind(),
			Speed: speed,
			Angle: v.Angle(),
		}
		if p := v.Pose(); p != nil {
			state.Pose = *p
			state.Tracked = true
		}
		s.vehicles[i] = state
	}
	return s
}

// MapName returns the active map name.
func (w *World) MapName() string { return w.mapName }

// Waypoints returns a copy of the waypoint loop.
func (w *World) Waypoints() core.Track { return slices.Clone(w.waypoints) }
