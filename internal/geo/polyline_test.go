package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

func TestLoopLength_ClosesTheLoop(t *testing.T) {
	square := core.Track{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	assert.InDelta(t, 40.0, LoopLength(square), 1e-9)
}

func TestLoopLength_TooShort(t *testing.T) {
	assert.Zero(t, LoopLength(core.Track{{X: 1, Y: 1}}))
	assert.Zero(t, LoopLength(nil))
}

func TestTrackWKT(t *testing.T) {
	track := core.Track{{X: 1, Y: 2}, {X: 3, Y: 4}, {X: 5, Y: 6}}

	wkt := TrackToWKT(track)
	assert.Equal(t, "LINESTRING(1 2,3 4,5 6)", wkt)

	got, err := TrackFromWKT(wkt)
	require.NoError(t, err)
	assert.Equal(t, track, got)
}

func TestTrackFromWKT_Invalid(t *testing.T) {
	_, err := TrackFromWKT("not wkt")
	require.Error(t, err)

	_, err = TrackFromWKT("POLYGON((0 0,1 0,1 1,0 0))")
	require.Error(t, err)
}
