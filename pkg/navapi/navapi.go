// Package navapi is the narrow surface exposed to loaded strategy files.
//
// A loaded strategy is a Go source file in package strategy declaring
//
//	func MakeDecision(nav navapi.Navigator)
//
// It is evaluated by an interpreter that only exports this package and a
// subset of the standard library.
package navapi

// Navigator is what a strategy may do with its vehicle.
type Navigator interface {
	// AimSpeed steps the vehicle speed toward target, limited by the
	// vehicle's acceleration and deceleration.
	AimSpeed(target int)
	// AimAngle steers toward the given bearing in degrees clockwise from north.
	AimAngle(target float64)
	// VectorToWaypoint returns the distance and bearing from the vehicle to
	// the current waypoint. ok is false while the vehicle is not tracked or
	// there are no waypoints; the strategy should then hold its last command.
	VectorToWaypoint() (distance int, bearing float64, ok bool)
	// WaypointIndex returns the current waypoint cursor.
	WaypointIndex() int
	// SetWaypointIndex moves the cursor. Values past either end wrap to the
	// opposite end.
	SetWaypointIndex(i int)
}
