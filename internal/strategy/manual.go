package strategy

import (
	"context"

	"github.com/tabletop-racing/racecontrol/internal/agent"
	"github.com/tabletop-racing/racecontrol/internal/input"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// ManualName is the strategy name that selects gamepad control.
const ManualName = "manual"

// triggerDeadzone is the trigger reading below which a trigger counts as
// released. Released triggers read -1.
const triggerDeadzone = -0.8

// Manual drives the car straight from a gamepad:
//
//   - left stick steers;
//   - right trigger drives forward, else left trigger reverses, else stop;
//   - X sounds the horn while held;
//   - LB and RB toggle the indicators, Y the headlights, B the siren.
//
// Steering and speed are only re-sent when an axis moved.
type Manual struct {
	device  input.Device
	prev    core.GamepadState
	hasPrev bool
}

// NewManual creates a manual strategy reading device.
func NewManual(device input.Device) *Manual {
	return &Manual{device: device}
}

func (m *Manual) Kind() agent.StrategyKind { return agent.KindManual }
func (m *Manual) Name() string             { return ManualName }

// Decide applies one gamepad sample.
func (m *Manual) Decide(_ context.Context, c agent.Controller) error {
	st := m.device.State()
	v := c.Vehicle()

	if !m.hasPrev || axesMoved(m.prev, st) {
		v.SetAngle(int(64 * st.LeftX))
		switch {
		case st.RightTrigger >= triggerDeadzone:
			v.SetSpeed(int(63 * ((st.RightTrigger + 1) / 2)))
		case st.LeftTrigger >= triggerDeadzone:
			v.SetSpeed(int(-64 * ((st.LeftTrigger + 1) / 2)))
		default:
			v.Halt()
		}
	}

	if st.X != v.Accessory(core.AccessoryHorn) {
		v.SetAccessory(core.AccessoryHorn, st.X)
	}

	toggles := []struct {
		was, is bool
		acc     core.Accessory
	}{
		{m.prev.LeftBumper, st.LeftBumper, core.AccessoryLeftSignal},
		{m.prev.RightBumper, st.RightBumper, core.AccessoryRightSignal},
		{m.prev.Y, st.Y, core.AccessoryHeadlights},
		{m.prev.B, st.B, core.AccessorySiren},
	}
	for _, t := range toggles {
		if t.is && (!t.was || !m.hasPrev) {
			v.ToggleAccessory(t.acc)
		}
	}

	m.prev = st
	m.hasPrev = true
	return nil
}

func axesMoved(a, b core.GamepadState) bool {
	return a.LeftX != b.LeftX || a.LeftTrigger != b.LeftTrigger || a.RightTrigger != b.RightTrigger
}
