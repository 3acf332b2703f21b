// pkg/core/geometry.go
package core

// Point is a position on the display plane, in display pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Waypoint is a target point in the active navigation loop.
type Waypoint = Point

// Track is an ordered, cyclic waypoint sequence. It must not be modified once
// a run has started.
type Track []Waypoint

// Pose is a tracked position plus orientation in degrees clockwise from north.
// An unknown pose is represented by a nil *Pose, never by a half-filled value.
type Pose struct {
	Position    Point   `json:"position"`
	Orientation float64 `json:"orientation"`
}

// Observation is a single vision detection of a car.
type Observation struct {
	ID   string `json:"id"`
	Pose Pose   `json:"pose"`
}

// Vector is a distance and clockwise-from-north bearing between two points.
type Vector struct {
	Distance int     `json:"distance"`
	Bearing  float64 `json:"bearing"`
}

// Dimensions is the size of the display plane.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Map is a named track with its display-space waypoints.
type Map struct {
	Name       string     `json:"name"`
	ImagePath  string     `json:"imagePath,omitempty"`
	Dimensions Dimensions `json:"dimensions"`
	Waypoints  Track      `json:"waypoints"`
}
