package agent

import (
	"context"

	"github.com/tabletop-racing/racecontrol/internal/vehicle"
	"github.com/tabletop-racing/racecontrol/pkg/navapi"
)

// StrategyKind tags how a strategy was obtained.
type StrategyKind int

const (
	// KindManual drives the car from a gamepad.
	KindManual StrategyKind = iota
	// KindBuiltin is a strategy compiled into the binary.
	KindBuiltin
	// KindLoaded is a strategy file evaluated at scenario start.
	KindLoaded
)

func (k StrategyKind) String() string {
	switch k {
	case KindManual:
		return "manual"
	case KindBuiltin:
		return "builtin"
	case KindLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Controller is what a strategy receives each tick.
type Controller interface {
	navapi.Navigator

	ID() string
	Vehicle() *vehicle.Vehicle
	Knowledge() Knowledge
}

// Strategy decides what the car does next. Decide is called once per tick on
// the agent's goroutine and should return promptly, honouring ctx.
type Strategy interface {
	Kind() StrategyKind
	Name() string
	Decide(ctx context.Context, c Controller) error
}
