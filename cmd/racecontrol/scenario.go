package main

import (
	"fmt"
	"strings"

	"github.com/tabletop-racing/racecontrol/internal/config"
	"github.com/tabletop-racing/racecontrol/internal/strategy"
	"github.com/tabletop-racing/racecontrol/pkg/core"
	"github.com/tabletop-racing/racecontrol/pkg/streaming"
)

// parseScenario turns the preselected scenario into a menu selection. Each
// car is "id", "id:kind" or "id:kind:strategy"; kind defaults to car and
// strategy to follow-waypoints.
func parseScenario(cfg config.ScenarioConfig) (core.Scenario, error) {
	sc := core.Scenario{MapName: cfg.Map}
	for _, entry := range cfg.Cars {
		parts := strings.Split(entry, ":")
		if len(parts) > 3 || strings.TrimSpace(parts[0]) == "" {
			return core.Scenario{}, fmt.Errorf("invalid car %q, want id:kind:strategy", entry)
		}
		car := core.CarSelection{
			ID:       strings.TrimSpace(parts[0]),
			Kind:     core.KindCar,
			Strategy: strategy.FollowWaypointsName,
		}
		if len(parts) > 1 && parts[1] != "" {
			car.Kind = core.VehicleKind(parts[1])
		}
		if len(parts) > 2 && parts[2] != "" {
			car.Strategy = parts[2]
		}
		sc.Cars = append(sc.Cars, car)
	}
	return sc, nil
}

func menuPayload(maps []core.Map, cars []core.CarInfo, strategies []string) streaming.MenuPayload {
	names := make([]string, len(maps))
	for i, m := range maps {
		names[i] = m.Name
	}
	return streaming.MenuPayload{
		Maps:       names,
		Cars:       cars,
		Strategies: strategies,
		Kinds:      []core.VehicleKind{core.KindCar, core.KindTruck, core.KindMotorcycle, core.KindBicycle},
	}
}
