package strategy

import (
	"github.com/tabletop-racing/racecontrol/pkg/navapi"
)

const (
	cruiseSpeed = 20
	reachRadius = 35
)

// MakeDecision drives round the track, slowing for sharp turns.
func MakeDecision(nav navapi.Navigator) {
	distance, bearing, ok := nav.VectorToWaypoint()
	if !ok {
		return
	}
	if distance < reachRadius {
		nav.SetWaypointIndex(nav.WaypointIndex() + 1)
		if distance, bearing, ok = nav.VectorToWaypoint(); !ok {
			return
		}
	}

	nav.AimAngle(bearing)
	if distance < 2*reachRadius {
		nav.AimSpeed(cruiseSpeed / 2)
		return
	}
	nav.AimSpeed(cruiseSpeed)
}
