package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

func TestDistanceAndBearing_UnknownSource(t *testing.T) {
	_, ok := DistanceAndBearing(nil, core.Point{X: 10, Y: 10})
	assert.False(t, ok)
}

func TestDistanceAndBearing(t *testing.T) {
	tests := []struct {
		name     string
		to       core.Point
		distance int
		bearing  float64
	}{
		{"same point", core.Point{X: 0, Y: 0}, 0, 0},
		{"straight down", core.Point{X: 0, Y: 10}, 10, 180},
		{"straight up", core.Point{X: 0, Y: -10}, 10, 0},
		{"right", core.Point{X: 10, Y: 0}, 10, 90},
		{"left", core.Point{X: -10, Y: 0}, 10, 270},
		{"down right", core.Point{X: 10, Y: 10}, 14, 135},
		{"up right", core.Point{X: 10, Y: -10}, 14, 45},
		{"down left", core.Point{X: -10, Y: 10}, 14, 225},
		{"up left", core.Point{X: -10, Y: -10}, 14, 315},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := DistanceAndBearing(&core.Point{}, tt.to)
			require.True(t, ok)
			assert.Equal(t, tt.distance, v.Distance)
			assert.InDelta(t, tt.bearing, v.Bearing, 1e-9)
		})
	}
}

func TestDistanceAndBearing_TruncatesDistance(t *testing.T) {
	v, ok := DistanceAndBearing(&core.Point{X: 1, Y: 1}, core.Point{X: 4, Y: 3})
	require.True(t, ok)
	assert.Equal(t, 3, v.Distance) // sqrt(13) = 3.6
}

func TestBearing_KeepsQuadrantOffsets(t *testing.T) {
	// atan(dy/dx) for dx>0, dy>0 is positive, so the result lands past 90.
	want := math.Atan(5.0/10.0)*180/math.Pi + 90
	assert.InDelta(t, want, Bearing(10, 5), 1e-9)
}

func TestShortestTurn(t *testing.T) {
	tests := []struct {
		current, target float64
		want            int
	}{
		{350, 10, 20},
		{10, 350, -20},
		{0, 90, 90},
		{90, 0, -90},
		{0, 180, 180},
		{45, 45, 0},
		{180, 0, -180},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ShortestTurn(tt.current, tt.target), "%v -> %v", tt.current, tt.target)
	}
}
