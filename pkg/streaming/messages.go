// Package streaming defines the JSON messages exchanged with the tracker
// process and with display clients over websockets.
package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// Tracker protocol. Requests are answered with an ack carrying the same ID;
// pose frames are pushed unsolicited once tracking has started.
const (
	TypeAck           = "ack"
	TypeCalibrate     = "calibrate"
	TypeIdentify      = "identify"
	TypeMarkers       = "markers"
	TypeStartTracking = "start_tracking"
	TypeStopTracking  = "stop_tracking"
	TypePoseFrame     = "pose_frame"
)

// Display protocol.
const (
	TypeFrame          = "frame"
	TypeError          = "error"
	TypeCountdown      = "countdown"
	TypeMenu           = "menu"
	TypeIntent         = "intent"
	TypeSelectScenario = "select_scenario"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	ID      uint64          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage is the tracker's answer to a request.
type AckMessage struct {
	Type    string          `json:"type"` // always "ack"
	For     string          `json:"for"`  // the message type being acknowledged
	ID      uint64          `json:"id"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PointsPayload carries marker positions for calibrate and markers.
type PointsPayload struct {
	Points []core.Point `json:"points"`
}

// IdentifyPayload asks the tracker to match car IDs to detections.
type IdentifyPayload struct {
	IDs []string `json:"ids"`
}

// IdentifyResult reports whether every car was identified.
type IdentifyResult struct {
	OK bool `json:"ok"`
}

// PoseFramePayload is one tracker frame.
type PoseFramePayload struct {
	Seq          uint64             `json:"seq"`
	Observations []core.Observation `json:"observations"`
}

// FramePayload is one rendered frame: the world snapshot and lap boundaries
// in seconds from the start of the run.
type FramePayload struct {
	World json.RawMessage `json:"world"`
	Laps  []float64       `json:"laps"`
}

// CountdownPayload is one countdown step over the starting grid.
type CountdownPayload struct {
	Value int             `json:"value"`
	World json.RawMessage `json:"world"`
}

// ErrorPayload is an error shown to the operator.
type ErrorPayload struct {
	Message string `json:"message"`
}

// MenuPayload lists what can be selected for the next scenario.
type MenuPayload struct {
	Maps       []string           `json:"maps"`
	Cars       []core.CarInfo     `json:"cars"`
	Strategies []string           `json:"strategies"`
	Kinds      []core.VehicleKind `json:"kinds"`
}

// IntentPayload is a user action.
type IntentPayload struct {
	Command string `json:"command"`
}

// Encode builds an envelope around payload. A nil payload is omitted.
func Encode(typ string, id uint64, payload any) ([]byte, error) {
	env := Envelope{Type: typ, ID: id}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", typ, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode unmarshals an envelope payload into v.
func Decode(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", env.Type, err)
	}
	return nil
}
