package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/tabletop-racing/racecontrol/internal/comms"
	"github.com/tabletop-racing/racecontrol/internal/config"
	"github.com/tabletop-racing/racecontrol/internal/display"
	"github.com/tabletop-racing/racecontrol/internal/input"
	"github.com/tabletop-racing/racecontrol/internal/input/glfwpad"
	"github.com/tabletop-racing/racecontrol/internal/logging"
	intOtel "github.com/tabletop-racing/racecontrol/internal/otel"
	"github.com/tabletop-racing/racecontrol/internal/roster"
	"github.com/tabletop-racing/racecontrol/internal/scenario"
	"github.com/tabletop-racing/racecontrol/internal/scheduler"
	"github.com/tabletop-racing/racecontrol/internal/session"
	"github.com/tabletop-racing/racecontrol/internal/strategy"
	"github.com/tabletop-racing/racecontrol/internal/track"
	"github.com/tabletop-racing/racecontrol/internal/vision"
	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// Version and BuildDate are set at build time via ldflags.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

const appName = "racecontrol"

var (
	SessionStartTime = time.Now()

	LogManager   *logging.Manager
	Logger       *slog.Logger
	OTelProvider *intOtel.Provider

	// ActiveRun tags log records with the run on the table.
	ActiveRun = scenario.NewContext()
)

// GLFW may only be driven from the main OS thread, and the session loop runs
// on the main goroutine.
func init() {
	runtime.LockOSThread()
}

func main() {
	os.Exit(start(os.Args[1:]))
}

// start runs the controller with the given command line and returns the
// process exit code. Deferred cleanup runs before main exits.
func start(args []string) int {
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	configDir := fs.String("config-dir", ".", "directory containing "+config.FileName)
	if err := config.BindFlags(fs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	configErr := config.Load(*configDir)

	logFile, err := setupLogging()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		return 1
	}
	defer logFile.Close()
	defer shutdownTelemetry()

	if configErr != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", configErr)
	} else {
		Logger.Info("Loaded config", "dir", *configDir)
	}
	Logger.Info("Starting up...", "version", Version, "buildDate", BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logFile); err != nil {
		Logger.Error("Exiting", "error", err)
		return 1
	}
	Logger.Info("Shut down cleanly")
	return 0
}

func setupLogging() (*os.File, error) {
	logsDir := config.GetString("logsDir")
	logFile, err := logging.OpenLogFile(logging.LogFilePath(logsDir, appName, SessionStartTime))
	if err != nil {
		return nil, err
	}

	otelCfg := config.GetOTelConfig()
	cfg := intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		ServiceVersion: Version,
		BatchTimeout:   otelCfg.BatchTimeout,
		Endpoint:       otelCfg.Endpoint,
		Insecure:       otelCfg.Insecure,
		MetricInterval: otelCfg.MetricInterval,
	}
	if otelCfg.Enabled {
		otelFile, err := logging.OpenLogFile(logging.LogFilePath(logsDir, appName+".otel", SessionStartTime))
		if err != nil {
			return nil, err
		}
		cfg.LogWriter = otelFile
	}
	OTelProvider, err = intOtel.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up OpenTelemetry: %w", err)
	}

	LogManager = logging.NewManager()
	LogManager.Setup(logging.Options{
		File:     logFile,
		Level:    config.GetString("logLevel"),
		Console:  os.Stderr,
		Provider: OTelProvider.LoggerProvider(),
		Run:      ActiveRun,
	})
	Logger = LogManager.Logger()
	slog.SetDefault(Logger)
	return logFile, nil
}

func shutdownTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := LogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
	}
	if err := OTelProvider.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to shut down OpenTelemetry: %v\n", err)
	}
}

func run(ctx context.Context, logFile *os.File) error {
	paths := config.GetPathsConfig()
	displayCfg := config.GetDisplayConfig()
	dims := core.Dimensions{Width: displayCfg.Width, Height: displayCfg.Height}

	maps, err := track.LoadMaps(paths.Maps, dims)
	if err != nil {
		return fmt.Errorf("loading maps: %w", err)
	}
	Logger.Info("Loaded maps", "count", len(maps))

	cars, err := roster.Load(paths.Cars)
	if err != nil {
		Logger.Warn("No car roster, cars must be named in full", "path", paths.Cars, "error", err)
	}

	zlog := zerolog.New(logFile).With().Timestamp().Str("component", "influx").Logger()
	rec, err := newRecorder(ctx, Logger, zlog)
	if err != nil {
		return err
	}
	defer rec.Close()

	link, err := comms.New(config.GetCommsConfig(), Logger)
	if err != nil {
		return fmt.Errorf("opening radio link: %w", err)
	}
	defer link.Close()

	visionCfg := config.GetVisionConfig()
	tracker, err := vision.Dial(ctx, vision.Config{URL: visionCfg.URL, FrameTimeout: visionCfg.FrameTimeout}, Logger)
	if err != nil {
		return fmt.Errorf("connecting to tracker: %w", err)
	}
	defer tracker.Close()

	hub := display.New(display.Config{Listen: displayCfg.Listen}, Logger)
	addr, err := hub.Start()
	if err != nil {
		return fmt.Errorf("starting display server: %w", err)
	}
	Logger.Info("Display server listening", "addr", addr.String())
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Shutdown(shutdownCtx); err != nil {
			Logger.Warn("Display server shutdown failed", "error", err)
		}
	}()

	var device input.Device
	var sampler scheduler.InputSampler
	if config.GetBool("input.gamepad") {
		pad, err := glfwpad.NewGLFW()
		if err != nil {
			Logger.Warn("Gamepad unavailable, manual control disabled", "error", err)
		} else {
			defer pad.Close()
			Logger.Info("Gamepad connected", "name", pad.Name())
			device, sampler = pad, pad
		}
	}

	registry := strategy.NewRegistry(paths.Strategies, device)
	strategies, err := registry.Available()
	if err != nil {
		Logger.Warn("Failed to list strategies", "error", err)
	}
	hub.SetMenu(menuPayload(maps, cars, strategies))

	var menu session.Menu = hub
	if sc := config.GetScenarioConfig(); sc.Map != "" {
		preset, err := parseScenario(sc)
		if err != nil {
			return err
		}
		menu = display.NewFixedMenu(preset)
		Logger.Info("Running preselected scenario", "map", preset.MapName, "cars", len(preset.Cars))
	}

	s, err := session.New(session.Config{
		Vision:           tracker,
		Comms:            link,
		Display:          hub,
		Menu:             menu,
		Strategies:       registry,
		Recorder:         rec.Dispatcher(),
		Input:            sampler,
		Roster:           cars,
		Maps:             maps,
		DisplaySize:      dims,
		TrackScale:       config.GetTrackConfig().Scale,
		Agent:            config.GetAgentConfig(),
		Scheduler:        config.GetSchedulerConfig(),
		CalibrationTries: visionCfg.CalibrationTries,
		Logger:           Logger,
	})
	if err != nil {
		return err
	}

	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func influxBackupPath() string {
	return filepath.Join(config.GetString("logsDir"), fmt.Sprintf("influx_backup.%s.lp.gz", SessionStartTime.Format("20060102_150405")))
}
