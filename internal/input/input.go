// Package input provides the gamepad used by manual strategies.
package input

import (
	"sync"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// Device reports the latest gamepad sample. State must be safe to call from
// any goroutine.
type Device interface {
	State() core.GamepadState
}

// Sampler is a device that must be polled from the main OS thread.
type Sampler interface {
	Device
	Sample()
}

// Released is the state of an untouched gamepad.
var Released = core.GamepadState{LeftTrigger: -1, RightTrigger: -1}

// Static is a device whose state is set directly, for headless runs and tests.
type Static struct {
	mu    sync.RWMutex
	state core.GamepadState
}

// NewStatic creates a static device with every control released.
func NewStatic() *Static {
	return &Static{state: Released}
}

// Set replaces the reported state.
func (s *Static) Set(state core.GamepadState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// State returns the last state set.
func (s *Static) State() core.GamepadState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}
