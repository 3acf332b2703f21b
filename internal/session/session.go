// Package session drives the table between scenarios: calibrate once, then
// for every menu selection build the agents, connect and identify the cars,
// count down and hand over to the scheduler. Collaborator failures abort the
// scenario and return to the menu.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tabletop-racing/racecontrol/internal/agent"
	"github.com/tabletop-racing/racecontrol/internal/config"
	"github.com/tabletop-racing/racecontrol/internal/dispatcher"
	"github.com/tabletop-racing/racecontrol/internal/roster"
	"github.com/tabletop-racing/racecontrol/internal/scheduler"
	"github.com/tabletop-racing/racecontrol/internal/timeutil"
	"github.com/tabletop-racing/racecontrol/internal/track"
	"github.com/tabletop-racing/racecontrol/internal/vehicle"
	"github.com/tabletop-racing/racecontrol/internal/worker"
	"github.com/tabletop-racing/racecontrol/internal/world"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

var (
	ErrNoCars         = errors.New("no cars enabled")
	ErrMultipleManual = errors.New("more than one manual car enabled")
	ErrCalibration    = errors.New("could not calibrate")
	ErrConnect        = errors.New("could not connect to cars")
	ErrIdentify       = errors.New("could not locate all of the specified cars")
	ErrStrategy       = errors.New("could not resolve strategy")
	ErrUnknownMap     = errors.New("unknown map")
	ErrNoTrack        = errors.New("not enough track markers")
)

const (
	DefaultCalibrationTries = 5
	DefaultErrorHold        = 2 * time.Second
	DefaultCalibrationHold  = 2 * time.Second
)

// Vision is the tracker as seen by a session.
type Vision interface {
	scheduler.Vision
	Calibrate(ctx context.Context) ([]core.Point, error)
	Markers(ctx context.Context) ([]core.Point, error)
	Identify(ctx context.Context, ids []string) (bool, error)
	StartTracking(ctx context.Context) error
}

// Display shows frames, errors and the countdown.
type Display interface {
	scheduler.Display
	ShowError(msg string)
	Countdown(ctx context.Context, s *world.Snapshot) error
}

// Menu yields the next scenario to run.
type Menu interface {
	NextScenario(ctx context.Context) (core.Scenario, error)
}

// Comms is the radio link to the cars.
type Comms interface {
	vehicle.Communicator
	Connect(ctx context.Context, ids []string) error
}

// Strategies resolves strategy names into fresh instances.
type Strategies interface {
	Resolve(name string) (agent.Strategy, error)
}

// Config wires a session to its collaborators.
type Config struct {
	Vision     Vision
	Comms      Comms
	Display    Display
	Menu       Menu
	Strategies Strategies

	// Optional.
	Recorder scheduler.Recorder
	Input    scheduler.InputSampler
	Roster   []core.CarInfo

	Maps        []core.Map
	DisplaySize core.Dimensions
	TrackScale  float64

	Agent     config.AgentConfig
	Scheduler config.SchedulerConfig

	CalibrationTries int
	ErrorHold        time.Duration
	CalibrationHold  time.Duration

	Clock  timeutil.Clock
	Logger *slog.Logger
}

// Session owns the idle loop of the table.
type Session struct {
	cfg    Config
	clock  timeutil.Clock
	logger *slog.Logger
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Session, error) {
	if cfg.Vision == nil || cfg.Comms == nil || cfg.Display == nil || cfg.Menu == nil || cfg.Strategies == nil {
		return nil, errors.New("session needs vision, comms, display, menu and strategies")
	}
	if cfg.CalibrationTries <= 0 {
		cfg.CalibrationTries = DefaultCalibrationTries
	}
	if cfg.ErrorHold <= 0 {
		cfg.ErrorHold = DefaultErrorHold
	}
	if cfg.CalibrationHold <= 0 {
		cfg.CalibrationHold = DefaultCalibrationHold
	}
	if cfg.TrackScale <= 0 {
		cfg.TrackScale = track.DefaultScale
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{
		cfg:    cfg,
		clock:  cfg.Clock,
		logger: cfg.Logger.With("component", "session"),
	}, nil
}

// Run calibrates and then runs scenarios until the menu has no more, or ctx
// is done. Only a calibration failure ends it with an error.
func (s *Session) Run(ctx context.Context) error {
	corners, err := s.Calibrate(ctx)
	if err != nil {
		s.fail(err)
		return err
	}
	s.logger.Info("Calibrated", "corners", len(corners))
	s.clock.Sleep(s.cfg.CalibrationHold)

	for {
		sc, err := s.cfg.Menu.NextScenario(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Info("Menu closed", "reason", err)
			}
			return nil
		}

		result, err := s.RunScenario(ctx, sc)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.fail(err)
			continue
		}
		s.logger.Info("Scenario finished", "map", sc.MapName, "reason", result.Reason, "laps", len(result.Laps)-1)
	}
}

// Calibrate asks the tracker for the table corners, retrying up to
// CalibrationTries times.
func (s *Session) Calibrate(ctx context.Context) ([]core.Point, error) {
	var lastErr error
	for try := 1; try <= s.cfg.CalibrationTries; try++ {
		corners, err := s.cfg.Vision.Calibrate(ctx)
		if err == nil && len(corners) > 0 {
			return corners, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err
		s.logger.Warn("Calibration attempt failed", "try", try, "error", err)
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrCalibration, lastErr)
	}
	return nil, ErrCalibration
}

// RunScenario runs one menu selection to completion.
func (s *Session) RunScenario(ctx context.Context, sc core.Scenario) (core.RunResult, error) {
	if len(sc.Cars) == 0 {
		return core.RunResult{}, ErrNoCars
	}

	cars, strategies, err := s.resolveCars(sc)
	if err != nil {
		return core.RunResult{}, err
	}

	m, err := s.resolveMap(ctx, sc.MapName)
	if err != nil {
		return core.RunResult{}, err
	}

	agents, vehicles, err := s.buildAgents(cars, strategies, m)
	if err != nil {
		return core.RunResult{}, err
	}

	ids := make([]string, len(cars))
	for i, c := range cars {
		ids[i] = c.ID
	}

	s.logger.Info("Connecting to cars", "cars", ids)
	if err := s.cfg.Comms.Connect(ctx, ids); err != nil {
		return core.RunResult{}, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	s.logger.Info("Identifying cars", "cars", ids)
	ok, err := s.cfg.Vision.Identify(ctx, ids)
	if err != nil {
		return core.RunResult{}, fmt.Errorf("%w: %w", ErrIdentify, err)
	}
	if !ok {
		return core.RunResult{}, ErrIdentify
	}

	s.logger.Info("Starting tracking")
	if err := s.cfg.Vision.StartTracking(ctx); err != nil {
		return core.RunResult{}, fmt.Errorf("starting tracking: %w", err)
	}

	w := world.New(m, vehicles)
	run := &core.Run{
		MapName:   m.Name,
		StartTime: s.clock.Now(),
		Track:     m.Waypoints,
		Cars:      cars,
	}
	s.startRun(run)

	sched, err := scheduler.New(scheduler.Config{
		World:            w,
		Agents:           agents,
		Vision:           s.cfg.Vision,
		Display:          s.cfg.Display,
		Input:            s.cfg.Input,
		Recorder:         s.cfg.Recorder,
		RunID:            run.ID,
		Clock:            s.clock,
		FrameInterval:    s.cfg.Scheduler.FrameInterval,
		RaceCompleteHold: s.cfg.Scheduler.RaceCompleteHold,
		Timing:           s.cfg.Scheduler.Timing,
		Logger:           s.cfg.Logger,
	})
	if err != nil {
		s.abort(run)
		return core.RunResult{}, err
	}

	if err := s.cfg.Display.Countdown(ctx, w.Snapshot()); err != nil {
		s.abort(run)
		return core.RunResult{}, fmt.Errorf("countdown: %w", err)
	}

	s.logger.Info("Starting agents", "count", len(agents))
	result, err := sched.Run(ctx)
	if err != nil {
		s.logger.Warn("Shutdown incomplete", "error", err)
	}
	s.endRun(result)
	return result, nil
}

// resolveCars normalises every selection and resolves its strategy.
func (s *Session) resolveCars(sc core.Scenario) ([]core.CarSelection, []agent.Strategy, error) {
	cars := make([]core.CarSelection, len(sc.Cars))
	strategies := make([]agent.Strategy, len(sc.Cars))
	manual := 0

	for i, c := range sc.Cars {
		if c.Colour == "" {
			if info, ok := roster.Find(s.cfg.Roster, c.ID); ok {
				c.Colour = info.Colour
			}
		}
		kind, ok := core.ParseVehicleKind(string(c.Kind))
		if !ok {
			s.logger.Warn("Unknown vehicle kind, using car", "car", c.ID, "kind", c.Kind)
		}
		c.Kind = kind
		cars[i] = c

		strat, err := s.cfg.Strategies.Resolve(c.Strategy)
		if err != nil {
			return nil, nil, fmt.Errorf("%w %q for %s: %w", ErrStrategy, c.Strategy, c.ID, err)
		}
		if strat.Kind() == agent.KindManual {
			manual++
		}
		strategies[i] = strat
	}

	if manual > 1 {
		return nil, nil, ErrMultipleManual
	}
	return cars, strategies, nil
}

func (s *Session) buildAgents(cars []core.CarSelection, strategies []agent.Strategy, m core.Map) ([]*agent.Agent, []*vehicle.Vehicle, error) {
	agents := make([]*agent.Agent, 0, len(cars))
	vehicles := make([]*vehicle.Vehicle, 0, len(cars))

	for i, c := range cars {
		interval := s.cfg.Agent.TickInterval
		if strategies[i].Kind() == agent.KindManual && s.cfg.Agent.ManualTickInterval > 0 {
			interval = s.cfg.Agent.ManualTickInterval
		}

		v := vehicle.New(c.ID, c.Kind, s.cfg.Comms, s.cfg.Logger)
		a, err := agent.New(agent.Config{
			ID:              c.ID,
			Vehicle:         v,
			Strategy:        strategies[i],
			Map:             m,
			TickInterval:    interval,
			DecisionTimeout: s.cfg.Agent.DecisionTimeout,
			Logger:          s.cfg.Logger,
		})
		if err != nil {
			return nil, nil, err
		}
		agents = append(agents, a)
		vehicles = append(vehicles, v)
	}
	return agents, vehicles, nil
}

// resolveMap finds the named map. The user-defined map is built from the
// markers currently on the table.
func (s *Session) resolveMap(ctx context.Context, name string) (core.Map, error) {
	m, found := track.Find(s.cfg.Maps, name)
	if name != core.UserMapName {
		if !found {
			return core.Map{}, fmt.Errorf("%w: %q", ErrUnknownMap, name)
		}
		return m, nil
	}

	if !found {
		m = core.Map{Name: core.UserMapName, Dimensions: s.cfg.DisplaySize}
	}

	s.logger.Info("Detecting track markers")
	markers, err := s.cfg.Vision.Markers(ctx)
	if err != nil {
		return core.Map{}, fmt.Errorf("detecting track markers: %w", err)
	}
	m.Waypoints = track.Build(markers, s.cfg.TrackScale)
	if len(m.Waypoints) < 2 {
		return core.Map{}, fmt.Errorf("%w: %d markers", ErrNoTrack, len(markers))
	}
	s.logger.Info("Track built", "markers", len(markers), "waypoints", len(m.Waypoints))
	return m, nil
}

func (s *Session) startRun(run *core.Run) {
	if s.cfg.Recorder == nil {
		return
	}
	res, err := s.cfg.Recorder.Dispatch(dispatcher.Event{Command: worker.CmdRunStart, Payload: run, Timestamp: run.StartTime})
	if err != nil {
		s.logger.Warn("Run will not be recorded", "error", err)
		return
	}
	if id, ok := res.(uint); ok {
		run.ID = id
	}
}

func (s *Session) endRun(result core.RunResult) {
	if s.cfg.Recorder == nil || result.RunID == 0 {
		return
	}
	if _, err := s.cfg.Recorder.Dispatch(dispatcher.Event{Command: worker.CmdRunEnd, Payload: result, Timestamp: result.EndTime}); err != nil {
		s.logger.Warn("Failed to close run recording", "run", result.RunID, "error", err)
	}
}

// abort stops tracking and closes the recording of a run that never started
// its frame loop.
func (s *Session) abort(run *core.Run) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.cfg.Vision.StopTracking(ctx); err != nil {
		s.logger.Warn("Failed to stop tracking", "error", err)
	}
	s.endRun(core.RunResult{RunID: run.ID, EndTime: s.clock.Now(), Reason: scheduler.ReasonCancelled, Laps: []time.Duration{0}})
}

func (s *Session) fail(err error) {
	s.logger.Error("Scenario failed", "error", err)
	s.cfg.Display.ShowError(err.Error())
	s.clock.Sleep(s.cfg.ErrorHold)
}
