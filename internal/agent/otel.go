package agent

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tabletop-racing/racecontrol/internal/agent"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
