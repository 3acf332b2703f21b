// Package scheduler runs the frame loop of a scenario: it feeds vision poses
// into the world, handles display intents, renders, and copies the world down
// to every agent, in that order, once per frame.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/tabletop-racing/racecontrol/internal/agent"
	"github.com/tabletop-racing/racecontrol/internal/dispatcher"
	"github.com/tabletop-racing/racecontrol/internal/timeutil"
	"github.com/tabletop-racing/racecontrol/internal/worker"
	"github.com/tabletop-racing/racecontrol/internal/world"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// Termination reasons.
const (
	ReasonQuit         = "quit"
	ReasonRaceComplete = "race complete"
	ReasonCancelled    = "cancelled"
)

const defaultStopTimeout = 5 * time.Second

// Vision is the pose source of the frame loop.
type Vision interface {
	CarLocations(ctx context.Context) ([]core.Observation, error)
	StopTracking(ctx context.Context) error
}

// Display renders frames and collects user intents.
type Display interface {
	Render(s *world.Snapshot, laps []time.Duration)
	Intents() []core.Intent
}

// InputSampler is polled once per frame on the scheduler goroutine. Input
// devices that must be read from the main OS thread hook in here.
type InputSampler interface {
	Sample()
}

// Recorder receives run recording events.
type Recorder interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Config holds everything a scenario's frame loop needs.
type Config struct {
	World   *world.World
	Agents  []*agent.Agent
	Vision  Vision
	Display Display

	// Optional.
	Input    InputSampler
	Recorder Recorder
	RunID    uint

	Clock            timeutil.Clock
	FrameInterval    time.Duration
	RaceCompleteHold time.Duration
	// Timing records per-stage frame timings.
	Timing      bool
	StopTimeout time.Duration

	Logger *slog.Logger
}

// Scheduler is the single writer of the world during a scenario.
type Scheduler struct {
	cfg     Config
	logger  *slog.Logger
	clock   timeutil.Clock
	intents *dispatcher.Dispatcher

	// flags set by intent handlers
	mu           sync.Mutex
	lap          bool
	quit         bool
	raceComplete bool

	start time.Time
	laps  []time.Duration
	frame uint

	frames        metric.Int64Counter
	frameDuration metric.Float64Histogram
}

// New validates cfg and registers the intent handlers.
func New(cfg Config) (*Scheduler, error) {
	if cfg.World == nil || cfg.Vision == nil || cfg.Display == nil {
		return nil, errors.New("scheduler needs a world, a vision source and a display")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}

	s := &Scheduler{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "scheduler"),
		clock:  cfg.Clock,
	}

	d, err := dispatcher.New(s.logger)
	if err != nil {
		return nil, err
	}
	d.Register(core.IntentLap, s.setFlag(&s.lap), dispatcher.Logged())
	d.Register(core.IntentQuit, s.setFlag(&s.quit), dispatcher.Logged())
	d.Register(core.IntentRaceComplete, s.setFlag(&s.raceComplete), dispatcher.Logged())
	s.intents = d

	m := meter()
	s.frames, err = m.Int64Counter(
		"scheduler.frames",
		metric.WithDescription("Frames run by the scheduler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frames counter: %w", err)
	}
	s.frameDuration, err = m.Float64Histogram(
		"scheduler.frame.duration",
		metric.WithDescription("Time spent in a single frame"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frame duration histogram: %w", err)
	}

	return s, nil
}

func (s *Scheduler) setFlag(flag *bool) dispatcher.HandlerFunc {
	return func(dispatcher.Event) (any, error) {
		s.mu.Lock()
		*flag = true
		s.mu.Unlock()
		return nil, nil
	}
}

// Run starts the agents and runs frames until the user quits, the race is
// complete or ctx is done. It then stops every agent, waits for them, and
// stops tracking, strictly in that order.
func (s *Scheduler) Run(ctx context.Context) (core.RunResult, error) {
	defer s.intents.Close()

	for _, a := range s.cfg.Agents {
		a.Start(ctx)
	}

	s.start = s.clock.Now()
	s.laps = []time.Duration{0}
	s.recordLap(0)

	reason := ReasonCancelled
	for ctx.Err() == nil {
		frameStart := s.clock.Now()

		r, done := s.Tick(ctx)
		if done {
			reason = r
			break
		}

		if s.cfg.FrameInterval > 0 {
			if rest := s.cfg.FrameInterval - s.clock.Since(frameStart); rest > 0 {
				select {
				case <-ctx.Done():
				case <-s.clock.After(rest):
				}
			}
		}
	}

	if reason == ReasonRaceComplete && s.cfg.RaceCompleteHold > 0 {
		select {
		case <-ctx.Done():
		case <-s.clock.After(s.cfg.RaceCompleteHold):
		}
	}

	result := core.RunResult{
		RunID:   s.cfg.RunID,
		EndTime: s.clock.Now(),
		Reason:  reason,
		Laps:    slices.Clone(s.laps),
	}
	s.logger.Info("Frame loop finished", "reason", reason, "frames", s.frame, "laps", len(s.laps)-1)

	return result, s.shutdown()
}

// Tick runs one frame. done is true when the scenario should end.
func (s *Scheduler) Tick(ctx context.Context) (reason string, done bool) {
	s.frame++
	timing := core.FrameTiming{RunID: s.cfg.RunID, Frame: s.frame, Time: s.clock.Now()}
	mark := s.clock.Now()
	stage := func() time.Duration {
		now := s.clock.Now()
		d := now.Sub(mark)
		mark = now
		return d
	}

	// 1. poses
	observed, err := s.cfg.Vision.CarLocations(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ReasonCancelled, true
		}
		s.logger.Warn("Failed to fetch car locations", "error", err)
	}
	timing.Vision = stage()

	// 2. world
	s.cfg.World.Update(observed)
	snapshot := s.cfg.World.Snapshot()
	timing.Update = stage()

	// 3. intents and laps
	if s.cfg.Input != nil {
		s.cfg.Input.Sample()
	}
	for _, in := range s.cfg.Display.Intents() {
		if _, err := s.intents.Dispatch(dispatcher.Event{Command: in.Command, Timestamp: in.Time}); err != nil {
			s.logger.Warn("Unhandled intent", "command", in.Command, "error", err)
		}
	}
	lap, quit, raceComplete := s.takeFlags()
	if lap {
		elapsed := s.clock.Since(s.start)
		s.laps = append(s.laps, elapsed)
		s.recordLap(elapsed)
		s.logger.Info("Lap", "number", len(s.laps)-1, "elapsed", elapsed)
	}
	timing.Laps = stage()

	// 4. display
	s.cfg.Display.Render(snapshot, slices.Clone(s.laps))
	timing.Display = stage()

	// 5. termination
	switch {
	case quit:
		return ReasonQuit, true
	case raceComplete:
		return ReasonRaceComplete, true
	}

	// 6. copy down
	for _, a := range s.cfg.Agents {
		a.UpdateKnowledge(snapshot)
	}
	timing.CopyDown = stage()
	timing.Total = s.clock.Since(timing.Time)

	s.frames.Add(ctx, 1)
	s.frameDuration.Record(ctx, timing.Total.Seconds())
	if s.cfg.Timing {
		s.record(worker.CmdRunFrame, timing)
	}
	return "", false
}

// Laps returns the lap boundaries recorded so far, starting with lap 0.
func (s *Scheduler) Laps() []time.Duration {
	return slices.Clone(s.laps)
}

func (s *Scheduler) takeFlags() (lap, quit, raceComplete bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lap, quit, raceComplete = s.lap, s.quit, s.raceComplete
	s.lap = false
	return lap, quit, raceComplete
}

func (s *Scheduler) recordLap(elapsed time.Duration) {
	s.record(worker.CmdRunLap, core.Lap{
		RunID:   s.cfg.RunID,
		Number:  len(s.laps) - 1,
		Elapsed: elapsed,
		Time:    s.start.Add(elapsed),
	})
}

func (s *Scheduler) record(command string, payload any) {
	if s.cfg.Recorder == nil || s.cfg.RunID == 0 {
		return
	}
	if _, err := s.cfg.Recorder.Dispatch(dispatcher.Event{Command: command, Payload: payload, Timestamp: s.clock.Now()}); err != nil {
		s.logger.Debug("Recording event dropped", "command", command, "error", err)
	}
}

// shutdown stops and joins every agent, then stops tracking.
func (s *Scheduler) shutdown() error {
	for _, a := range s.cfg.Agents {
		a.Stop()
	}

	var errs []error
	joinCtx, cancelJoin := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
	for _, a := range s.cfg.Agents {
		if err := a.Wait(joinCtx); err != nil {
			errs = append(errs, err)
		}
	}
	cancelJoin()

	// A hung strategy can use up the join deadline; tracking still gets its own.
	stopCtx, cancelStop := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
	defer cancelStop()
	if err := s.cfg.Vision.StopTracking(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("stopping tracking: %w", err))
	}
	return errors.Join(errs...)
}
