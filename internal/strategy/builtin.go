package strategy

import (
	"context"

	"github.com/tabletop-racing/racecontrol/internal/agent"
)

// Built-in strategy names.
const (
	FollowWaypointsName = "follow-waypoints"
	IdleName            = "idle"
)

// FollowWaypoints steers toward the current waypoint at a fixed cruise speed
// and advances the cursor once the car is within ReachRadius of it.
type FollowWaypoints struct {
	Speed       int
	ReachRadius int
}

// NewFollowWaypoints returns a waypoint follower with the default tuning.
func NewFollowWaypoints() *FollowWaypoints {
	return &FollowWaypoints{Speed: 25, ReachRadius: 40}
}

func (f *FollowWaypoints) Kind() agent.StrategyKind { return agent.KindBuiltin }
func (f *FollowWaypoints) Name() string             { return FollowWaypointsName }

func (f *FollowWaypoints) Decide(_ context.Context, c agent.Controller) error {
	distance, bearing, ok := c.VectorToWaypoint()
	if !ok {
		return nil
	}
	if distance < f.ReachRadius {
		c.SetWaypointIndex(c.WaypointIndex() + 1)
		if _, bearing, ok = c.VectorToWaypoint(); !ok {
			return nil
		}
	}
	c.AimAngle(bearing)
	c.AimSpeed(f.Speed)
	return nil
}

// Idle brings the car to rest and keeps it there.
type Idle struct{}

func (Idle) Kind() agent.StrategyKind { return agent.KindBuiltin }
func (Idle) Name() string             { return IdleName }

func (Idle) Decide(_ context.Context, c agent.Controller) error {
	c.AimSpeed(0)
	return nil
}
