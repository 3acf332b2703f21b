package geo

import (
	"math"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// DistanceAndBearing returns the vector from one point to another. ok is false
// when from is unknown; callers hold their last command in that case.
func DistanceAndBearing(from *core.Point, to core.Point) (v core.Vector, ok bool) {
	if from == nil {
		return core.Vector{}, false
	}
	dx := to.X - from.X
	dy := to.Y - from.Y
	return core.Vector{
		Distance: int(math.Sqrt(dx*dx + dy*dy)),
		Bearing:  Bearing(dx, dy),
	}, true
}

// Bearing converts a display-plane delta (y grows downward) into degrees
// clockwise from north. Off-axis deltas use atan(dy/dx) offset by 90 for
// dx > 0 and by 270 for dx < 0.
func Bearing(dx, dy float64) float64 {
	switch {
	case dx == 0:
		if dy <= 0 {
			return 0
		}
		return 180
	case dy == 0:
		if dx < 0 {
			return 270
		}
		return 90
	}

	theta := math.Atan(dy/dx) * (180 / math.Pi)
	if dx > 0 {
		return theta + 90
	}
	return theta + 270
}

// ShortestTurn returns the signed turn in whole degrees, within [-180, 180],
// that takes current onto target. Positive is clockwise.
func ShortestTurn(current, target float64) int {
	diff := int(math.Abs(target - current))
	if diff > 180 {
		diff = 360 - diff
		if current < target {
			return -diff
		}
		return diff
	}
	if current < target {
		return diff
	}
	return -diff
}
