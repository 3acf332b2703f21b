package world

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletop-racing/racecontrol/internal/vehicle"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

func testWorld() (*World, *vehicle.Vehicle, *vehicle.Vehicle) {
	a := vehicle.New("car_a", core.KindCar, nil, nil)
	b := vehicle.New("car_b", core.KindTruck, nil, nil)
	w := New(core.Map{
		Name:       "map_oval",
		Dimensions: core.Dimensions{Width: 1024, Height: 728},
		Waypoints:  core.Track{{X: 1, Y: 1}, {X: 2, Y: 2}},
	}, []*vehicle.Vehicle{a, b})
	return w, a, b
}

func TestUpdate_SetsAndClearsPosesTogether(t *testing.T) {
	w, a, b := testWorld()

	w.Update([]core.Observation{
		{ID: "car_a", Pose: core.Pose{Position: core.Point{X: 10, Y: 20}, Orientation: 45}},
		{ID: "car_b", Pose: core.Pose{Position: core.Point{X: 30, Y: 40}, Orientation: 90}},
	})
	require.NotNil(t, a.Pose())
	require.NotNil(t, b.Pose())
	assert.Equal(t, core.Point{X: 10, Y: 20}, a.Pose().Position)
	assert.Equal(t, 45.0, a.Pose().Orientation)

	w.Update([]core.Observation{
		{ID: "car_b", Pose: core.Pose{Position: core.Point{X: 31, Y: 41}, Orientation: 91}},
		{ID: "stranger", Pose: core.Pose{Position: core.Point{X: 5, Y: 5}}},
	})
	assert.Nil(t, a.Pose())
	require.NotNil(t, b.Pose())
	assert.Equal(t, core.Pose{Position: core.Point{X: 31, Y: 41}, Orientation: 91}, *b.Pose())
}

func TestUpdate_DuplicateIDKeepsFirst(t *testing.T) {
	w, a, _ := testWorld()

	w.Update([]core.Observation{
		{ID: "car_a", Pose: core.Pose{Position: core.Point{X: 1, Y: 1}}},
		{ID: "car_a", Pose: core.Pose{Position: core.Point{X: 9, Y: 9}}},
	})

	assert.Equal(t, core.Point{X: 1, Y: 1}, a.Pose().Position)
}

func TestSnapshot_IsACopy(t *testing.T) {
	w, _, _ := testWorld()
	w.Update([]core.Observation{{ID: "car_a", Pose: core.Pose{Position: core.Point{X: 10, Y: 20}, Orientation: 45}}})

	s := w.Snapshot()
	assert.Equal(t, uint64(1), s.Tick())
	assert.Equal(t, "map_oval", s.MapName())
	assert.Equal(t, 2, s.WaypointCount())

	wps := s.Waypoints()
	wps[0] = core.Waypoint{X: 99, Y: 99}
	first, ok := s.Waypoint(0)
	require.True(t, ok)
	assert.Equal(t, core.Waypoint{X: 1, Y: 1}, first)

	va, ok := s.Vehicle("car_a")
	require.True(t, ok)
	assert.True(t, va.Tracked)
	pos := va.Position()
	require.NotNil(t, pos)
	pos.X = 500
	va2, _ := s.Vehicle("car_a")
	assert.Equal(t, 10.0, va2.Pose.Position.X)

	vb, ok := s.Vehicle("car_b")
	require.True(t, ok)
	assert.False(t, vb.Tracked)
	assert.Nil(t, vb.Position())

	// Later updates do not reach an existing snapshot.
	w.Update(nil)
	va3, _ := s.Vehicle("car_a")
	assert.True(t, va3.Tracked)
}

func TestSnapshot_Others(t *testing.T) {
	w, _, _ := testWorld()
	others := w.Snapshot().Others("car_a")
	require.Len(t, others, 1)
	assert.Equal(t, "car_b", others[0].ID)
}

func TestSnapshot_WaypointOutOfRange(t *testing.T) {
	w, _, _ := testWorld()
	_, ok := w.Snapshot().Waypoint(2)
	assert.False(t, ok)
	_, ok = w.Snapshot().Waypoint(-1)
	assert.False(t, ok)
}

func TestSnapshot_MarshalJSON(t *testing.T) {
	w, _, _ := testWorld()
	data, err := json.Marshal(w.Snapshot())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "map_oval", decoded["mapName"])
	assert.Len(t, decoded["vehicles"], 2)
	assert.Len(t, decoded["waypoints"], 2)
}
