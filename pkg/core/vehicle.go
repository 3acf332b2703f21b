// pkg/core/vehicle.go
package core

import "strings"

// VehicleKind selects the acceleration profile of a vehicle.
type VehicleKind string

const (
	KindCar        VehicleKind = "car"
	KindTruck      VehicleKind = "truck"
	KindMotorcycle VehicleKind = "motorcycle"
	KindBicycle    VehicleKind = "bicycle"
)

// ParseVehicleKind normalises a kind name. ok is false for unknown names, in
// which case KindCar is returned.
func ParseVehicleKind(s string) (VehicleKind, bool) {
	switch k := VehicleKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCar, KindTruck, KindMotorcycle, KindBicycle:
		return k, true
	default:
		return KindCar, false
	}
}

// Accessory is a switchable vehicle accessory.
type Accessory string

const (
	AccessoryHorn        Accessory = "horn"
	AccessoryLeftSignal  Accessory = "left_signal"
	AccessoryRightSignal Accessory = "right_signal"
	AccessoryHeadlights  Accessory = "headlights"
	AccessorySiren       Accessory = "siren"
)

// Accessories lists every accessory in a stable order.
var Accessories = []Accessory{
	AccessoryHorn,
	AccessoryLeftSignal,
	AccessoryRightSignal,
	AccessoryHeadlights,
	AccessorySiren,
}

// CarInfo is one entry of the car roster.
type CarInfo struct {
	ID     string `json:"id"`
	Colour string `json:"colour"`
}

// CarSelection is a roster car assigned a vehicle kind and a strategy for a
// scenario.
type CarSelection struct {
	ID       string      `json:"id"`
	Colour   string      `json:"colour,omitempty"`
	Kind     VehicleKind `json:"kind"`
	Strategy string      `json:"strategy"`
}
