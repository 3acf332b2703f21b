// Package vehicle models a physical car: its tracked pose, its actuation state
// and the accessory switches, forwarded to the radio link.
package vehicle

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// Actuation limits accepted by the cars.
const (
	MinSpeed = -64
	MaxSpeed = 63
	MinAngle = -64
	MaxAngle = 63
)

// Communicator sends actuation commands to a car. Commands are fire and
// forget; an error only means the command could not be handed to the link.
type Communicator interface {
	SetSpeed(id string, speed int) error
	SetAngle(id string, angle int) error
	SetAccessory(id string, accessory core.Accessory, on bool) error
}

// Profile holds the per-call speed change limits of a vehicle kind.
type Profile struct {
	MaxAcceleration int
	MaxDeceleration int
}

// Profiles maps each vehicle kind to its limits.
var Profiles = map[core.VehicleKind]Profile{
	core.KindCar:        {MaxAcceleration: 4, MaxDeceleration: 8},
	core.KindTruck:      {MaxAcceleration: 2, MaxDeceleration: 4},
	core.KindMotorcycle: {MaxAcceleration: 6, MaxDeceleration: 8},
	core.KindBicycle:    {MaxAcceleration: 2, MaxDeceleration: 3},
}

// Vehicle is the actuated half of an agent. The pose is written by the world
// update and read by the owning agent; actuation is driven by the owning agent
// and reset by Neutralize from the scheduler.
type Vehicle struct {
	ownerID string
	kind    core.VehicleKind
	profile Profile
	comm    Communicator
	logger  *slog.Logger

	pose atomic.Pointer[core.Pose]

	mu          sync.Mutex
	speed       int
	speedKnown  bool
	angle       int
	accessories map[core.Accessory]bool
}

// Option configures a Vehicle.
type Option func(*Vehicle)

// WithProfile overrides the limits of the vehicle kind.
func WithProfile(p Profile) Option {
	return func(v *Vehicle) {
		v.profile = p
	}
}

// New creates a vehicle of the given kind owned by the agent ownerID. Unknown
// kinds get the car profile.
func New(ownerID string, kind core.VehicleKind, comm Communicator, logger *slog.Logger, opts ...Option) *Vehicle {
	if logger == nil {
		logger = slog.Default()
	}
	profile, ok := Profiles[kind]
	if !ok {
		kind = core.KindCar
		profile = Profiles[core.KindCar]
	}
	v := &Vehicle{
		ownerID:     ownerID,
		kind:        kind,
		profile:     profile,
		comm:        comm,
		logger:      logger.With("car", ownerID),
		accessories: make(map[core.Accessory]bool, len(core.Accessories)),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// OwnerID is the ID of the agent driving this vehicle.
func (v *Vehicle) OwnerID() string { return v.ownerID }

// Kind returns the vehicle kind.
func (v *Vehicle) Kind() core.VehicleKind { return v.kind }

// MaxAcceleration is the largest speed increase per AimSpeed call.
func (v *Vehicle) MaxAcceleration() int { return v.profile.MaxAcceleration }

// MaxDeceleration is the largest speed decrease per AimSpeed call.
func (v *Vehicle) MaxDeceleration() int { return v.profile.MaxDeceleration }

// Pose returns the last tracked pose, or nil while the car is not tracked.
func (v *Vehicle) Pose() *core.Pose {
	return v.pose.Load()
}

// SetPose replaces the tracked pose. nil clears position and orientation
// together.
func (v *Vehicle) SetPose(p *core.Pose) {
	if p == nil {
		v.pose.Store(nil)
		return
	}
	cp := *p
	v.pose.Store(&cp)
}

// Speed returns the last commanded speed. ok is false until a speed has been
// commanded.
func (v *Vehicle) Speed() (speed int, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.speed, v.speedKnown
}

// Angle returns the last commanded steering angle.
func (v *Vehicle) Angle() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.angle
}

// SetSpeed commands a speed, clamped to [MinSpeed, MaxSpeed].
func (v *Vehicle) SetSpeed(speed int) {
	speed = clamp(speed, MinSpeed, MaxSpeed)

	v.mu.Lock()
	v.speed = speed
	v.speedKnown = true
	v.mu.Unlock()

	if v.comm == nil {
		return
	}
	if err := v.comm.SetSpeed(v.ownerID, speed); err != nil {
		v.logger.Warn("Failed to send speed", "speed", speed, "error", err)
	}
}

// SetAngle commands a steering angle, clamped to [MinAngle, MaxAngle].
func (v *Vehicle) SetAngle(angle int) {
	angle = clamp(angle, MinAngle, MaxAngle)

	v.mu.Lock()
	v.angle = angle
	v.mu.Unlock()

	if v.comm == nil {
		return
	}
	if err := v.comm.SetAngle(v.ownerID, angle); err != nil {
		v.logger.Warn("Failed to send steering angle", "angle", angle, "error", err)
	}
}

// Accessory reports whether an accessory is on.
func (v *Vehicle) Accessory(a core.Accessory) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.accessories[a]
}

// SetAccessory switches an accessory. Nothing is sent if it is already in the
// requested state.
func (v *Vehicle) SetAccessory(a core.Accessory, on bool) {
	v.mu.Lock()
	if v.accessories[a] == on {
		v.mu.Unlock()
		return
	}
	v.accessories[a] = on
	v.mu.Unlock()

	v.sendAccessory(a, on)
}

// ToggleAccessory flips an accessory and returns its new state.
func (v *Vehicle) ToggleAccessory(a core.Accessory) bool {
	v.mu.Lock()
	on := !v.accessories[a]
	v.accessories[a] = on
	v.mu.Unlock()

	v.sendAccessory(a, on)
	return on
}

// Halt commands speed 0 and leaves steering and accessories alone.
func (v *Vehicle) Halt() {
	v.SetSpeed(0)
}

// Neutralize commands speed 0, straight steering and switches every
// accessory off.
func (v *Vehicle) Neutralize() {
	v.SetSpeed(0)
	v.SetAngle(0)

	v.mu.Lock()
	var on []core.Accessory
	for _, a := range core.Accessories {
		if v.accessories[a] {
			on = append(on, a)
		}
		v.accessories[a] = false
	}
	v.mu.Unlock()

	for _, a := range on {
		v.sendAccessory(a, false)
	}
}

func (v *Vehicle) sendAccessory(a core.Accessory, on bool) {
	if v.comm == nil {
		return
	}
	if err := v.comm.SetAccessory(v.ownerID, a, on); err != nil {
		v.logger.Warn("Failed to send accessory", "accessory", a, "on", on, "error", err)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
