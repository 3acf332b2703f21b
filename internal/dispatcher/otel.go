package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tabletop-racing/racecontrol/internal/dispatcher"

type instruments struct {
	handled metric.Int64Counter
	dropped metric.Int64Counter
}

// newInstruments creates the dispatcher counters and a queue depth gauge fed
// by depths on every collection.
func newInstruments(depths func() map[string]int) (*instruments, error) {
	m := otel.Meter(instrumentationName)

	gauge, err := m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting in each command queue"))
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for cmd, n := range depths() {
			o.ObserveInt64(gauge, int64(n), metric.WithAttributes(attribute.String("command", cmd)))
		}
		return nil
	}, gauge)
	if err != nil {
		return nil, fmt.Errorf("registering queue size callback: %w", err)
	}

	in := &instruments{}
	if in.handled, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Queued events handled")); err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}
	if in.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Events dropped on a full queue")); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	return in, nil
}

func (in *instruments) processed(command string) {
	in.handled.Add(context.Background(), 1, metric.WithAttributes(attribute.String("command", command)))
}

func (in *instruments) drop(command string) {
	in.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("command", command)))
}
