package agent

import (
	"slices"

	"github.com/tabletop-racing/racecontrol/internal/geo"
	"github.com/tabletop-racing/racecontrol/pkg/core"
	"github.com/tabletop-racing/racecontrol/pkg/navapi"
)

var (
	_ navapi.Navigator = (*Agent)(nil)
	_ Controller       = tickView{}
)

// AimSpeed moves the commanded speed one step toward target. The step is at
// most the vehicle's acceleration when speeding up and its deceleration when
// slowing down, so target is never overshot. An unknown speed counts as 0.
func (a *Agent) AimSpeed(target int) {
	current, ok := a.vehicle.Speed()
	if !ok {
		current = 0
	}

	if target > current {
		a.vehicle.SetSpeed(current + min(target-current, a.vehicle.MaxAcceleration()))
		return
	}
	a.vehicle.SetSpeed(current - min(current-target, a.vehicle.MaxDeceleration()))
}

// AimAngle steers a third of the shortest turn from the vehicle's last known
// orientation to target, truncated toward zero. An untracked vehicle counts as
// facing 0.
func (a *Agent) AimAngle(target float64) {
	a.aimAngle(a.knowledge.Load(), target)
}

// VectorTo returns the vector from the vehicle's last known position to p.
// ok is false while the vehicle is not tracked.
func (a *Agent) VectorTo(p core.Point) (core.Vector, bool) {
	return vectorTo(a.knowledge.Load(), p)
}

// VectorToWaypoint returns the distance and bearing to the current waypoint.
func (a *Agent) VectorToWaypoint() (distance int, bearing float64, ok bool) {
	return a.vectorToWaypoint(a.knowledge.Load())
}

// WaypointIndex returns the current waypoint cursor.
func (a *Agent) WaypointIndex() int {
	return int(a.waypointIndex.Load())
}

// SetWaypointIndex moves the waypoint cursor. Past the last waypoint it wraps
// to 0; below 0 it wraps to the last waypoint.
func (a *Agent) SetWaypointIndex(i int) {
	a.setWaypointIndex(a.knowledge.Load(), i)
}

func (a *Agent) aimAngle(k *Knowledge, target float64) {
	current, _ := k.Self.Orientation()
	a.vehicle.SetAngle(geo.ShortestTurn(current, target) / 3)
}

func vectorTo(k *Knowledge, p core.Point) (core.Vector, bool) {
	return geo.DistanceAndBearing(k.Self.Position(), p)
}

func (a *Agent) vectorToWaypoint(k *Knowledge) (int, float64, bool) {
	i := a.WaypointIndex()
	if i < 0 || i >= len(k.Waypoints) {
		return 0, 0, false
	}
	v, ok := vectorTo(k, k.Waypoints[i])
	if !ok {
		return 0, 0, false
	}
	return v.Distance, v.Bearing, true
}

func (a *Agent) setWaypointIndex(k *Knowledge, i int) {
	last := len(k.Waypoints) - 1
	if i > last {
		i = 0
	}
	if i < 0 {
		i = max(last, 0)
	}
	a.waypointIndex.Store(int64(i))
}

// tickView is the Controller handed to a strategy. It holds the knowledge
// loaded when the tick began, so every read in one decision sees the same
// snapshot even if the scheduler copies a newer one down meanwhile.
type tickView struct {
	*Agent
	k *Knowledge
}

func (v tickView) AimAngle(target float64) { v.aimAngle(v.k, target) }

func (v tickView) VectorTo(p core.Point) (core.Vector, bool) { return vectorTo(v.k, p) }

func (v tickView) VectorToWaypoint() (int, float64, bool) { return v.vectorToWaypoint(v.k) }

func (v tickView) SetWaypointIndex(i int) { v.setWaypointIndex(v.k, i) }

func (v tickView) Knowledge() Knowledge {
	k := *v.k
	k.Waypoints = slices.Clone(k.Waypoints)
	k.Others = slices.Clone(k.Others)
	return k
}
