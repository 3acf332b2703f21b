package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletop-racing/racecontrol/internal/vehicle"
	"github.com/tabletop-racing/racecontrol/internal/world"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

type funcStrategy struct {
	decide func(ctx context.Context, c Controller) error
}

func (s funcStrategy) Kind() StrategyKind { return KindBuiltin }
func (s funcStrategy) Name() string       { return "test" }
func (s funcStrategy) Decide(ctx context.Context, c Controller) error {
	return s.decide(ctx, c)
}

type speedLog struct {
	mu     sync.Mutex
	speeds []int
}

func (l *speedLog) SetSpeed(_ string, speed int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.speeds = append(l.speeds, speed)
	return nil
}
func (l *speedLog) SetAngle(string, int) error                      { return nil }
func (l *speedLog) SetAccessory(string, core.Accessory, bool) error { return nil }

func fiveWaypoints() core.Map {
	return core.Map{
		Name: "map_test",
		Waypoints: core.Track{
			{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}, {X: -50, Y: 50},
		},
	}
}

func newTestAgent(t *testing.T, s Strategy, profile vehicle.Profile, comm vehicle.Communicator) *Agent {
	t.Helper()
	v := vehicle.New("car1", core.KindCar, comm, nil, vehicle.WithProfile(profile))
	a, err := New(Config{
		ID:           "car1",
		Vehicle:      v,
		Strategy:     s,
		Map:          fiveWaypoints(),
		TickInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	return a
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{ID: "car1"})
	require.Error(t, err)
}

func TestAimSpeed_StepsByAcceleration(t *testing.T) {
	a := newTestAgent(t, nil, vehicle.Profile{MaxAcceleration: 3, MaxDeceleration: 5}, nil)

	a.AimSpeed(10)
	speed, ok := a.Vehicle().Speed()
	require.True(t, ok)
	assert.Equal(t, 3, speed)

	prev := speed
	for i := 0; i < 10; i++ {
		a.AimSpeed(10)
		speed, _ = a.Vehicle().Speed()
		assert.GreaterOrEqual(t, speed, prev)
		assert.LessOrEqual(t, speed, 10)
		prev = speed
	}
	assert.Equal(t, 10, speed)
}

func TestAimSpeed_StepsByDeceleration(t *testing.T) {
	a := newTestAgent(t, nil, vehicle.Profile{MaxAcceleration: 3, MaxDeceleration: 5}, nil)
	a.Vehicle().SetSpeed(20)

	a.AimSpeed(0)
	speed, _ := a.Vehicle().Speed()
	assert.Equal(t, 15, speed)

	a.AimSpeed(13)
	speed, _ = a.Vehicle().Speed()
	assert.Equal(t, 13, speed)

	a.AimSpeed(13)
	speed, _ = a.Vehicle().Speed()
	assert.Equal(t, 13, speed)
}

func TestAimAngle(t *testing.T) {
	tests := []struct {
		name        string
		orientation *float64
		target      float64
		want        int
	}{
		{"wraps clockwise", ptr(350), 10, 6},
		{"wraps anticlockwise", ptr(10), 350, -6},
		{"straight ahead", ptr(90), 90, 0},
		{"untracked counts as north", nil, 90, 30},
		{"truncates toward zero", ptr(0), 359, 0},
		{"negative third", ptr(100), 50, -16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAgent(t, nil, vehicle.Profiles[core.KindCar], nil)
			if tt.orientation != nil {
				observe(a, &core.Pose{Orientation: *tt.orientation})
			}
			a.AimAngle(tt.target)
			assert.Equal(t, tt.want, a.Vehicle().Angle())
		})
	}
}

func ptr(f float64) *float64 { return &f }

// observe runs one world update with the agent's car at pose (nil for not
// seen) and copies the snapshot down. It returns the world for further frames.
func observe(a *Agent, pose *core.Pose) *world.World {
	w := world.New(fiveWaypoints(), []*vehicle.Vehicle{a.Vehicle()})
	frame(w, a, pose)
	return w
}

func frame(w *world.World, a *Agent, pose *core.Pose) {
	var seen []core.Observation
	if pose != nil {
		seen = append(seen, core.Observation{ID: a.ID(), Pose: *pose})
	}
	w.Update(seen)
	a.UpdateKnowledge(w.Snapshot())
}

func TestSetWaypointIndex_Wraps(t *testing.T) {
	a := newTestAgent(t, nil, vehicle.Profiles[core.KindCar], nil)

	a.SetWaypointIndex(-1)
	assert.Equal(t, 4, a.WaypointIndex())

	a.SetWaypointIndex(5)
	assert.Equal(t, 0, a.WaypointIndex())

	a.SetWaypointIndex(3)
	assert.Equal(t, 3, a.WaypointIndex())

	a.SetWaypointIndex(-7)
	assert.Equal(t, 4, a.WaypointIndex())
}

func TestSetWaypointIndex_NoWaypoints(t *testing.T) {
	v := vehicle.New("car1", core.KindCar, nil, nil)
	a, err := New(Config{ID: "car1", Vehicle: v})
	require.NoError(t, err)

	a.SetWaypointIndex(-1)
	assert.Equal(t, 0, a.WaypointIndex())
	_, _, ok := a.VectorToWaypoint()
	assert.False(t, ok)
}

func TestVectorToWaypoint(t *testing.T) {
	a := newTestAgent(t, nil, vehicle.Profiles[core.KindCar], nil)

	_, _, ok := a.VectorToWaypoint()
	assert.False(t, ok, "untracked vehicle has no vector")

	observe(a, &core.Pose{Position: core.Point{X: 100, Y: 50}})
	a.SetWaypointIndex(2)

	dist, bearing, ok := a.VectorToWaypoint()
	require.True(t, ok)
	assert.Equal(t, 50, dist)
	assert.Equal(t, 180.0, bearing)
}

func TestVectorToWaypoint_IgnoresLivePose(t *testing.T) {
	a := newTestAgent(t, nil, vehicle.Profiles[core.KindCar], nil)
	observe(a, &core.Pose{Position: core.Point{X: 100, Y: 50}})
	a.SetWaypointIndex(2)

	// The world writes the live pose; only a copy-down reaches the agent.
	a.Vehicle().SetPose(&core.Pose{Position: core.Point{X: 0, Y: 0}})

	dist, bearing, ok := a.VectorToWaypoint()
	require.True(t, ok)
	assert.Equal(t, 50, dist)
	assert.Equal(t, 180.0, bearing)
}

func TestTick_DecisionSeesOneSnapshot(t *testing.T) {
	type reading struct {
		dist    int
		bearing float64
		ok      bool
	}
	var w *world.World
	var a *Agent
	var first, second reading
	var knowledgeTick uint64
	s := funcStrategy{decide: func(_ context.Context, c Controller) error {
		first.dist, first.bearing, first.ok = c.VectorToWaypoint()

		// A new frame lands and is copied down mid-decision: the car moves
		// and then drops out of tracking.
		frame(w, a, &core.Pose{Position: core.Point{X: 0, Y: 100}, Orientation: 270})
		frame(w, a, nil)

		second.dist, second.bearing, second.ok = c.VectorToWaypoint()
		c.AimAngle(second.bearing)
		knowledgeTick = c.Knowledge().Tick
		return nil
	}}
	a = newTestAgent(t, s, vehicle.Profiles[core.KindCar], nil)
	w = observe(a, &core.Pose{Position: core.Point{X: 0, Y: 0}, Orientation: 0})
	a.SetWaypointIndex(1)

	require.NoError(t, a.Tick(context.Background()))

	require.True(t, first.ok)
	assert.Equal(t, first, second)
	assert.Equal(t, 90.0, second.bearing)
	assert.Equal(t, 30, a.Vehicle().Angle(), "steered from the tick's heading of 0")
	assert.Equal(t, uint64(1), knowledgeTick)

	// The next tick picks up the newer snapshot, where the car is untracked.
	_, _, ok := a.VectorToWaypoint()
	assert.False(t, ok)
}

func TestUpdateKnowledge(t *testing.T) {
	a := newTestAgent(t, nil, vehicle.Profiles[core.KindCar], nil)
	other := vehicle.New("car2", core.KindTruck, nil, nil)
	w := world.New(core.Map{
		Name:       "map_other",
		Dimensions: core.Dimensions{Width: 10, Height: 10},
		Waypoints:  core.Track{{X: 1, Y: 1}, {X: 2, Y: 2}},
	}, []*vehicle.Vehicle{a.Vehicle(), other})
	w.Update([]core.Observation{{ID: "car2", Pose: core.Pose{Position: core.Point{X: 3, Y: 3}}}})

	assert.Equal(t, "map_test", a.Knowledge().MapName)

	a.UpdateKnowledge(w.Snapshot())

	k := a.Knowledge()
	assert.Equal(t, "map_other", k.MapName)
	assert.Equal(t, uint64(1), k.Tick)
	assert.Len(t, k.Waypoints, 2)
	assert.Equal(t, "car1", k.Self.ID)
	assert.False(t, k.Self.Tracked)
	require.Len(t, k.Others, 1)
	assert.Equal(t, "car2", k.Others[0].ID)
	assert.True(t, k.Others[0].Tracked)

	k.Waypoints[0] = core.Waypoint{X: 42}
	assert.Equal(t, core.Waypoint{X: 1, Y: 1}, a.Knowledge().Waypoints[0])

	a.UpdateKnowledge(nil)
	assert.Equal(t, "map_other", a.Knowledge().MapName)
}

func TestTick_ReachesTargetSpeedWithoutOvershoot(t *testing.T) {
	comm := &speedLog{}
	s := funcStrategy{decide: func(_ context.Context, c Controller) error {
		c.AimSpeed(20)
		return nil
	}}
	a := newTestAgent(t, s, vehicle.Profile{MaxAcceleration: 5, MaxDeceleration: 5}, comm)

	for i := 0; i < 4; i++ {
		require.NoError(t, a.Tick(context.Background()))
	}

	speed, _ := a.Vehicle().Speed()
	assert.GreaterOrEqual(t, speed, 20)
	assert.Equal(t, []int{5, 10, 15, 20}, comm.speeds)
	for _, s := range comm.speeds {
		assert.LessOrEqual(t, s, 20)
	}
}

func TestTick_NoStrategy(t *testing.T) {
	a := newTestAgent(t, nil, vehicle.Profiles[core.KindCar], nil)
	assert.ErrorIs(t, a.Tick(context.Background()), ErrStopped)
}

func TestTick_AfterStop(t *testing.T) {
	var calls atomic.Int32
	s := funcStrategy{decide: func(context.Context, Controller) error {
		calls.Add(1)
		return nil
	}}
	a := newTestAgent(t, s, vehicle.Profiles[core.KindCar], nil)

	a.Stop()
	assert.ErrorIs(t, a.Tick(context.Background()), ErrStopped)
	assert.Zero(t, calls.Load())
}

func TestTick_DecisionTimeout(t *testing.T) {
	s := funcStrategy{decide: func(ctx context.Context, _ Controller) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	v := vehicle.New("car1", core.KindCar, nil, nil)
	a, err := New(Config{ID: "car1", Vehicle: v, Strategy: s, DecisionTimeout: 10 * time.Millisecond})
	require.NoError(t, err)

	err = a.Tick(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTick_RecoversPanic(t *testing.T) {
	s := funcStrategy{decide: func(context.Context, Controller) error {
		panic("boom")
	}}
	a := newTestAgent(t, s, vehicle.Profiles[core.KindCar], nil)

	err := a.Tick(context.Background())
	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "boom", pe.Value)
}

func TestRun_StopNeutralizesAndJoins(t *testing.T) {
	var calls atomic.Int32
	s := funcStrategy{decide: func(_ context.Context, c Controller) error {
		calls.Add(1)
		c.AimSpeed(30)
		c.Vehicle().SetAccessory(core.AccessoryHeadlights, true)
		return nil
	}}
	a := newTestAgent(t, s, vehicle.Profiles[core.KindCar], nil)

	a.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)

	a.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Wait(ctx))

	assert.True(t, a.Stopped())
	speed, _ := a.Vehicle().Speed()
	assert.Equal(t, 0, speed)
	assert.Equal(t, 0, a.Vehicle().Angle())
	assert.False(t, a.Vehicle().Accessory(core.AccessoryHeadlights))

	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "no decisions after stop")
}

func TestRun_PanicStopsOnlyThatAgent(t *testing.T) {
	s := funcStrategy{decide: func(context.Context, Controller) error {
		panic("boom")
	}}
	a := newTestAgent(t, s, vehicle.Profiles[core.KindCar], nil)

	a.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Wait(ctx))
	assert.True(t, a.Stopped())
}

func TestRun_ContextCancelStops(t *testing.T) {
	s := funcStrategy{decide: func(context.Context, Controller) error { return nil }}
	a := newTestAgent(t, s, vehicle.Profiles[core.KindCar], nil)

	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx)
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, a.Wait(waitCtx))
	assert.True(t, a.Stopped())
}

func TestWait_NotStarted(t *testing.T) {
	a := newTestAgent(t, nil, vehicle.Profiles[core.KindCar], nil)
	assert.NoError(t, a.Wait(context.Background()))
}

func TestStrategyKind_String(t *testing.T) {
	assert.Equal(t, "manual", KindManual.String())
	assert.Equal(t, "builtin", KindBuiltin.String())
	assert.Equal(t, "loaded", KindLoaded.String())
	assert.Equal(t, "unknown", StrategyKind(42).String())
}
