package agent

import (
	"github.com/tabletop-racing/racecontrol/internal/world"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// Knowledge is an agent's private view of the world, refreshed from the
// scheduler's snapshot every tick.
type Knowledge struct {
	MapName    string
	Dimensions core.Dimensions
	Waypoints  core.Track
	Self       world.VehicleState
	Others     []world.VehicleState
	Tick       uint64
}

func knowledgeFrom(id string, s *world.Snapshot) *Knowledge {
	self, _ := s.Vehicle(id)
	return &Knowledge{
		MapName:    s.MapName(),
		Dimensions: s.Dimensions(),
		Waypoints:  s.Waypoints(),
		Self:       self,
		Others:     s.Others(id),
		Tick:       s.Tick(),
	}
}
