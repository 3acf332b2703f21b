package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Replaced in tests.
var (
	osStdout io.Writer = os.Stdout
	osPipe             = os.Pipe
)

// instrumentationName names the OTel logger.
const instrumentationName = "racecontrol"

// Options configures Setup.
type Options struct {
	// File receives every record at Level. Without a file, records go to
	// stdout.
	File  io.Writer
	Level string

	// Console, when set alongside File, also receives records at
	// ConsoleLevel and above so the operator sees warnings without tailing
	// the log. ConsoleLevel defaults to warn.
	Console      io.Writer
	ConsoleLevel string

	Provider *sdklog.LoggerProvider
	Run      RunSource
}

// Manager owns the process logger.
type Manager struct {
	logger   *slog.Logger
	provider *sdklog.LoggerProvider
}

func NewManager() *Manager {
	return &Manager{}
}

// ParseLevel maps debug, info, warn and error, in any case, to slog levels.
// Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func textOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
				}
			}
			return a
		},
	}
}

// Setup replaces the logger.
func (m *Manager) Setup(opts Options) {
	level := ParseLevel(opts.Level)
	m.provider = opts.Provider

	var handlers []slog.Handler
	if opts.File != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.File, textOptions(level)))
		if opts.Console != nil {
			consoleLevel := slog.LevelWarn
			if opts.ConsoleLevel != "" {
				consoleLevel = ParseLevel(opts.ConsoleLevel)
			}
			handlers = append(handlers, slog.NewTextHandler(opts.Console, textOptions(max(level, consoleLevel))))
		}
	} else {
		handlers = append(handlers, slog.NewTextHandler(osStdout, textOptions(level)))
	}
	if opts.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(opts.Provider)))
	}

	var handler slog.Handler = newFanout(handlers...)
	if opts.Run != nil {
		handler = &runHandler{inner: handler, run: opts.Run}
	}

	m.logger = slog.New(handler)
	m.logger.Info("Logging initialized", "level", level.String())
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *Manager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush pushes buffered OTel records out.
func (m *Manager) Flush(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.ForceFlush(ctx)
}
