// Package comms provides the radio links that carry actuation commands to the
// cars.
package comms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tabletop-racing/racecontrol/internal/config"
	"github.com/tabletop-racing/racecontrol/internal/vehicle"
)

// Link is a radio link to a set of cars.
type Link interface {
	vehicle.Communicator
	// Connect pairs with every car and returns once all of them answered.
	Connect(ctx context.Context, ids []string) error
	Close() error
}

// New creates the link selected by cfg.Type.
func New(cfg config.CommsConfig, logger *slog.Logger) (Link, error) {
	switch cfg.Type {
	case "log", "":
		return NewLog(logger), nil
	case "serial":
		return OpenSerial(cfg.Port, cfg.Baud, logger)
	default:
		return nil, fmt.Errorf("unknown comms type: %s", cfg.Type)
	}
}
