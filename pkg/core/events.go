// pkg/core/events.go
package core

import "time"

// Intent commands raised by the display.
const (
	IntentLap          = ":LAP:"
	IntentQuit         = ":QUIT:"
	IntentRaceComplete = ":RACE:COMPLETE:"
)

// Intent is a user action forwarded by the display.
type Intent struct {
	Command string    `json:"command"`
	Time    time.Time `json:"time"`
}

// GamepadState is one sample of the manual-control gamepad. Axes are in
// [-1, 1]; released triggers read -1.
type GamepadState struct {
	LeftX        float64 `json:"leftX"`
	LeftTrigger  float64 `json:"leftTrigger"`
	RightTrigger float64 `json:"rightTrigger"`

	A           bool `json:"a"`
	B           bool `json:"b"`
	X           bool `json:"x"`
	Y           bool `json:"y"`
	LeftBumper  bool `json:"leftBumper"`
	RightBumper bool `json:"rightBumper"`
}
