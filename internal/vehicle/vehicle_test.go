package vehicle

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

type recordingComm struct {
	mu       sync.Mutex
	commands []string
	err      error
}

func (c *recordingComm) record(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, s)
	return c.err
}

func (c *recordingComm) SetSpeed(id string, speed int) error {
	return c.record(fmt.Sprintf("%s speed %d", id, speed))
}

func (c *recordingComm) SetAngle(id string, angle int) error {
	return c.record(fmt.Sprintf("%s angle %d", id, angle))
}

func (c *recordingComm) SetAccessory(id string, a core.Accessory, on bool) error {
	return c.record(fmt.Sprintf("%s %s %t", id, a, on))
}

func TestNew_UsesKindProfile(t *testing.T) {
	v := New("car1", core.KindTruck, nil, nil)
	assert.Equal(t, core.KindTruck, v.Kind())
	assert.Equal(t, Profiles[core.KindTruck].MaxAcceleration, v.MaxAcceleration())
	assert.Equal(t, Profiles[core.KindTruck].MaxDeceleration, v.MaxDeceleration())
	assert.Equal(t, "car1", v.OwnerID())
}

func TestNew_UnknownKindFallsBackToCar(t *testing.T) {
	v := New("car1", core.VehicleKind("hovercraft"), nil, nil)
	assert.Equal(t, core.KindCar, v.Kind())
	assert.Equal(t, Profiles[core.KindCar], v.profile)
}

func TestPose_SetAndClearTogether(t *testing.T) {
	v := New("car1", core.KindCar, nil, nil)
	assert.Nil(t, v.Pose())

	p := &core.Pose{Position: core.Point{X: 1, Y: 2}, Orientation: 90}
	v.SetPose(p)
	p.Orientation = 180 // caller's copy must not leak in

	got := v.Pose()
	require.NotNil(t, got)
	assert.Equal(t, core.Pose{Position: core.Point{X: 1, Y: 2}, Orientation: 90}, *got)

	v.SetPose(nil)
	assert.Nil(t, v.Pose())
}

func TestSetSpeed_ClampsAndSends(t *testing.T) {
	comm := &recordingComm{}
	v := New("car1", core.KindCar, comm, nil)

	_, known := v.Speed()
	assert.False(t, known)

	v.SetSpeed(100)
	v.SetSpeed(-100)

	speed, known := v.Speed()
	assert.True(t, known)
	assert.Equal(t, MinSpeed, speed)
	assert.Equal(t, []string{"car1 speed 63", "car1 speed -64"}, comm.commands)
}

func TestSetAngle_Clamps(t *testing.T) {
	comm := &recordingComm{}
	v := New("car1", core.KindCar, comm, nil)

	v.SetAngle(64)
	assert.Equal(t, MaxAngle, v.Angle())
	v.SetAngle(-65)
	assert.Equal(t, MinAngle, v.Angle())
}

func TestSetSpeed_CommErrorDoesNotLoseState(t *testing.T) {
	comm := &recordingComm{err: errors.New("link down")}
	v := New("car1", core.KindCar, comm, nil)

	v.SetSpeed(10)

	speed, _ := v.Speed()
	assert.Equal(t, 10, speed)
}

func TestAccessories(t *testing.T) {
	comm := &recordingComm{}
	v := New("car1", core.KindCar, comm, nil)

	v.SetAccessory(core.AccessoryHorn, true)
	v.SetAccessory(core.AccessoryHorn, true) // no-op
	assert.True(t, v.Accessory(core.AccessoryHorn))

	assert.True(t, v.ToggleAccessory(core.AccessoryHeadlights))
	assert.False(t, v.ToggleAccessory(core.AccessoryHeadlights))

	assert.Equal(t, []string{
		"car1 horn true",
		"car1 headlights true",
		"car1 headlights false",
	}, comm.commands)
}

func TestNeutralize(t *testing.T) {
	comm := &recordingComm{}
	v := New("car1", core.KindCar, comm, nil)
	v.SetSpeed(30)
	v.SetAngle(-20)
	v.SetAccessory(core.AccessorySiren, true)
	v.SetAccessory(core.AccessoryLeftSignal, true)
	comm.commands = nil

	v.Neutralize()

	speed, _ := v.Speed()
	assert.Equal(t, 0, speed)
	assert.Equal(t, 0, v.Angle())
	for _, a := range core.Accessories {
		assert.False(t, v.Accessory(a), a)
	}
	assert.Equal(t, []string{
		"car1 speed 0",
		"car1 angle 0",
		"car1 left_signal false",
		"car1 siren false",
	}, comm.commands)
}

func TestHalt_KeepsSteering(t *testing.T) {
	v := New("car1", core.KindCar, nil, nil)
	v.SetSpeed(30)
	v.SetAngle(12)

	v.Halt()

	speed, _ := v.Speed()
	assert.Equal(t, 0, speed)
	assert.Equal(t, 12, v.Angle())
}

func TestWithProfile(t *testing.T) {
	v := New("car1", core.KindCar, nil, nil, WithProfile(Profile{MaxAcceleration: 5, MaxDeceleration: 7}))
	assert.Equal(t, 5, v.MaxAcceleration())
	assert.Equal(t, 7, v.MaxDeceleration())
	assert.Equal(t, core.KindCar, v.Kind())
}
