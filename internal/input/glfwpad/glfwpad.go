// Package glfwpad reads a gamepad through GLFW. It needs cgo and must be driven
// from the main OS thread.
package glfwpad

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/tabletop-racing/racecontrol/internal/input"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

var _ input.Sampler = (*GLFW)(nil)

// ErrNoGamepad is returned when no joystick with a gamepad mapping is present.
var ErrNoGamepad = errors.New("no gamepad detected")

// GLFW reads the first joystick through GLFW. GLFW may only be used from the
// main OS thread, so NewGLFW, Sample and Close must be called there; State
// may be called from anywhere.
type GLFW struct {
	joystick glfw.Joystick

	mu    sync.RWMutex
	state core.GamepadState
}

// NewGLFW initialises GLFW and checks that joystick 1 is a gamepad.
func NewGLFW() (*GLFW, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialise glfw: %w", err)
	}
	if !glfw.Joystick1.Present() || !glfw.Joystick1.IsGamepad() {
		glfw.Terminate()
		return nil, ErrNoGamepad
	}
	return &GLFW{joystick: glfw.Joystick1, state: input.Released}, nil
}

// Name returns the gamepad name reported by GLFW.
func (g *GLFW) Name() string {
	return g.joystick.GetGamepadName()
}

// Sample polls the gamepad and stores the result. A disconnected gamepad
// reads as released.
func (g *GLFW) Sample() {
	glfw.PollEvents()

	gs := g.joystick.GetGamepadState()
	state := input.Released
	if gs != nil {
		state = fromGLFW(gs)
	}

	g.mu.Lock()
	g.state = state
	g.mu.Unlock()
}

// State returns the last sample.
func (g *GLFW) State() core.GamepadState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Close terminates GLFW.
func (g *GLFW) Close() {
	glfw.Terminate()
}

func fromGLFW(gs *glfw.GamepadState) core.GamepadState {
	pressed := func(b glfw.GamepadButton) bool {
		return gs.Buttons[b] == glfw.Press
	}
	return core.GamepadState{
		LeftX:        float64(gs.Axes[glfw.AxisLeftX]),
		LeftTrigger:  float64(gs.Axes[glfw.AxisLeftTrigger]),
		RightTrigger: float64(gs.Axes[glfw.AxisRightTrigger]),
		A:            pressed(glfw.ButtonA),
		B:            pressed(glfw.ButtonB),
		X:            pressed(glfw.ButtonX),
		Y:            pressed(glfw.ButtonY),
		LeftBumper:   pressed(glfw.ButtonLeftBumper),
		RightBumper:  pressed(glfw.ButtonRightBumper),
	}
}
