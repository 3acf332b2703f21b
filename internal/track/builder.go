// Package track turns detected track markers into an ordered waypoint loop and
// loads the stored map library.
//
// Both stages are greedy. Pairing takes the first remaining marker and its
// nearest neighbour; ordering is a nearest-neighbour tour. Neither is optimal,
// and both keep first-found tie-breaks so a given marker list always yields the
// same loop.
package track

import (
	"math"
	"slices"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// DefaultScale maps marker coordinates from camera space to display space.
const DefaultScale = 1.6

// Build pairs markers into waypoints and orders them into a loop. The result
// has len(markers)/2 waypoints.
func Build(markers []core.Point, scale float64) core.Track {
	return OrderLoop(PairMarkers(markers, scale))
}

// PairMarkers pops the first remaining marker, pairs it with the nearest
// remaining one and emits their scaled midpoint, rounded half to even. A final
// unpaired marker is dropped.
func PairMarkers(markers []core.Point, scale float64) []core.Waypoint {
	pool := slices.Clone(markers)
	waypoints := make([]core.Waypoint, 0, len(pool)/2)

	for len(pool) >= 2 {
		current := pool[0]
		pool = pool[1:]

		paired := 0
		minDist := math.Inf(1)
		for i, candidate := range pool {
			if d := math.Hypot(current.X-candidate.X, current.Y-candidate.Y); d < minDist {
				minDist = d
				paired = i
			}
		}

		other := pool[paired]
		waypoints = append(waypoints, core.Waypoint{
			X: math.RoundToEven((current.X + other.X) / 2 * scale),
			Y: math.RoundToEven((current.Y + other.Y) / 2 * scale),
		})
		pool = slices.Delete(pool, paired, paired+1)
	}

	return waypoints
}

// OrderLoop sorts the waypoints by x (stable), starts from the first and then
// repeatedly appends the closest remaining waypoint by squared distance. Ties
// go to the earliest waypoint in x order.
func OrderLoop(points []core.Waypoint) core.Track {
	if len(points) == 0 {
		return core.Track{}
	}

	pool := slices.Clone(points)
	slices.SortStableFunc(pool, func(a, b core.Waypoint) int {
		switch {
		case a.X < b.X:
			return -1
		case a.X > b.X:
			return 1
		default:
			return 0
		}
	})

	ordered := make(core.Track, 0, len(pool))
	ordered = append(ordered, pool[0])
	pool = pool[1:]

	for len(pool) > 0 {
		last := ordered[len(ordered)-1]
		best := 0
		bestDist := math.Inf(1)
		for i, p := range pool {
			dx, dy := p.X-last.X, p.Y-last.Y
			if d := dx*dx + dy*dy; d < bestDist {
				bestDist = d
				best = i
			}
		}
		ordered = append(ordered, pool[best])
		pool = slices.Delete(pool, best, best+1)
	}

	return ordered
}
