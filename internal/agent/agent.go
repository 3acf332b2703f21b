// Package agent runs one decision loop per car. Each agent owns its vehicle,
// reads the world only through snapshots copied down by the scheduler, and
// calls its strategy once per tick until stopped.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tabletop-racing/racecontrol/internal/vehicle"
	"github.com/tabletop-racing/racecontrol/internal/world"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// DefaultTickInterval is the pause between two decisions.
const DefaultTickInterval = 200 * time.Millisecond

// ErrStopped is returned by Tick once the agent can no longer decide, either
// because it was stopped or because it has no strategy.
var ErrStopped = errors.New("agent stopped")

// Config holds everything needed to build an Agent.
type Config struct {
	ID       string
	Vehicle  *vehicle.Vehicle
	Strategy Strategy

	// Map is the run's map; it seeds the knowledge until the first snapshot.
	Map core.Map

	TickInterval time.Duration
	// DecisionTimeout bounds each Decide call through its context. Zero
	// leaves decisions unbounded.
	DecisionTimeout time.Duration

	Logger *slog.Logger
}

// Agent is the controller bound to one vehicle.
type Agent struct {
	id              string
	vehicle         *vehicle.Vehicle
	strategy        Strategy
	interval        time.Duration
	decisionTimeout time.Duration
	logger          *slog.Logger

	knowledge     atomic.Pointer[Knowledge]
	waypointIndex atomic.Int64

	stopped  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  atomic.Bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	decisions metric.Int64Counter
	overruns  metric.Int64Counter
	duration  metric.Float64Histogram
	attrs     metric.MeasurementOption
}

// New creates an agent in the Created state.
func New(cfg Config) (*Agent, error) {
	if cfg.ID == "" {
		return nil, errors.New("agent ID is required")
	}
	if cfg.Vehicle == nil {
		return nil, fmt.Errorf("agent %s: vehicle is required", cfg.ID)
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Agent{
		id:              cfg.ID,
		vehicle:         cfg.Vehicle,
		strategy:        cfg.Strategy,
		interval:        cfg.TickInterval,
		decisionTimeout: cfg.DecisionTimeout,
		logger:          cfg.Logger.With("agent", cfg.ID),
		stopCh:          make(chan struct{}),
		done:            make(chan struct{}),
	}
	a.knowledge.Store(&Knowledge{
		MapName:    cfg.Map.Name,
		Dimensions: cfg.Map.Dimensions,
		Waypoints:  slices.Clone(cfg.Map.Waypoints),
	})

	strategyName := "none"
	if cfg.Strategy != nil {
		strategyName = cfg.Strategy.Name()
	}
	a.attrs = metric.WithAttributes(
		attribute.String("agent", cfg.ID),
		attribute.String("strategy", strategyName),
	)

	m := meter()
	var err error
	a.decisions, err = m.Int64Counter(
		"agent.decisions",
		metric.WithDescription("Strategy decisions made"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating decisions counter: %w", err)
	}
	a.overruns, err = m.Int64Counter(
		"agent.decision.overruns",
		metric.WithDescription("Decisions that ran past their deadline"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating overrun counter: %w", err)
	}
	a.duration, err = m.Float64Histogram(
		"agent.decision.duration",
		metric.WithDescription("Time spent in a single decision"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating decision duration histogram: %w", err)
	}

	return a, nil
}

// ID returns the car identifier.
func (a *Agent) ID() string { return a.id }

// Vehicle returns the vehicle this agent drives.
func (a *Agent) Vehicle() *vehicle.Vehicle { return a.vehicle }

// Strategy returns the bound strategy, or nil.
func (a *Agent) Strategy() Strategy { return a.strategy }

// Stopped reports whether Stop has been called.
func (a *Agent) Stopped() bool { return a.stopped.Load() }

// Knowledge returns a copy of the agent's current world knowledge.
func (a *Agent) Knowledge() Knowledge {
	k := *a.knowledge.Load()
	k.Waypoints = slices.Clone(k.Waypoints)
	k.Others = slices.Clone(k.Others)
	return k
}

// UpdateKnowledge copies a snapshot down into the agent. It is the only way
// world state reaches a running agent.
func (a *Agent) UpdateKnowledge(s *world.Snapshot) {
	if s == nil {
		return
	}
	a.knowledge.Store(knowledgeFrom(a.id, s))
}

// Start launches the decision loop. It returns immediately; Stop ends the
// loop and Wait joins it.
func (a *Agent) Start(ctx context.Context) {
	if !a.started.CompareAndSwap(false, true) {
		return
	}
	go a.run(ctx)
}

func (a *Agent) run(ctx context.Context) {
	defer close(a.done)
	defer func() {
		// A decision still in flight when Stop was called may have actuated
		// the car after it was neutralized.
		if a.stopped.Load() {
			a.vehicle.Neutralize()
		}
	}()

	a.logger.Info("Agent started", "strategy", a.strategyName(), "interval", a.interval)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if err := a.Tick(ctx); err != nil {
			if errors.Is(err, ErrStopped) {
				a.logger.Info("Agent loop finished")
				return
			}
			var pe *PanicError
			if errors.As(err, &pe) {
				a.logger.Error("Strategy panicked, stopping agent", "error", err)
				a.Stop()
				return
			}
			a.logger.Warn("Decision failed", "error", err)
		}

		select {
		case <-a.stopCh:
			return
		case <-ctx.Done():
			a.Stop()
			return
		case <-ticker.C:
		}
	}
}

// Tick runs a single decision. It returns ErrStopped when the agent is
// stopped or has no strategy.
func (a *Agent) Tick(ctx context.Context) (err error) {
	if a.stopped.Load() || a.strategy == nil {
		return ErrStopped
	}

	var tickCtx context.Context
	var cancel context.CancelFunc
	if a.decisionTimeout > 0 {
		tickCtx, cancel = context.WithTimeout(ctx, a.decisionTimeout)
	} else {
		tickCtx, cancel = context.WithCancel(ctx)
	}
	a.setCancel(cancel)
	defer func() {
		a.setCancel(nil)
		cancel()
	}()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
		elapsed := time.Since(start)
		a.decisions.Add(context.Background(), 1, a.attrs)
		a.duration.Record(context.Background(), elapsed.Seconds(), a.attrs)
		if errors.Is(tickCtx.Err(), context.DeadlineExceeded) {
			a.overruns.Add(context.Background(), 1, a.attrs)
			a.logger.Warn("Decision overran its deadline", "elapsed", elapsed, "timeout", a.decisionTimeout)
		}
	}()

	return a.strategy.Decide(tickCtx, tickView{Agent: a, k: a.knowledge.Load()})
}

// Stop ends the decision loop and immediately puts the vehicle in neutral:
// speed 0, straight steering, accessories off. It does not wait for the loop;
// use Wait for that. Stop is idempotent.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		a.stopped.Store(true)
		close(a.stopCh)

		a.cancelMu.Lock()
		if a.cancel != nil {
			a.cancel()
		}
		a.cancelMu.Unlock()

		a.vehicle.Neutralize()
		a.logger.Info("Agent stopped")
	})
}

// Wait blocks until the decision loop has exited or ctx is done. An agent that
// was never started returns at once.
func (a *Agent) Wait(ctx context.Context) error {
	if !a.started.Load() {
		return nil
	}
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("agent %s did not stop: %w", a.id, ctx.Err())
	}
}

func (a *Agent) setCancel(cancel context.CancelFunc) {
	a.cancelMu.Lock()
	a.cancel = cancel
	a.cancelMu.Unlock()
}

func (a *Agent) strategyName() string {
	if a.strategy == nil {
		return "none"
	}
	return a.strategy.Name()
}

// PanicError wraps a value recovered from a panicking strategy.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("strategy panic: %v", e.Value)
}
