package comms

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// Command is one command handed to a Log link.
type Command struct {
	ID    string
	Kind  string
	Value int
	// Accessory is set for accessory commands; Value is then 0 or 1.
	Accessory core.Accessory
}

// Log is a dry-run link that logs and records every command.
type Log struct {
	logger *slog.Logger

	mu        sync.Mutex
	connected []string
	commands  []Command
}

// NewLog creates a dry-run link.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Connect(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	l.connected = append(l.connected, ids...)
	l.mu.Unlock()
	l.logger.Info("Connected", "cars", ids)
	return nil
}

func (l *Log) SetSpeed(id string, speed int) error {
	l.record(Command{ID: id, Kind: "speed", Value: speed})
	return nil
}

func (l *Log) SetAngle(id string, angle int) error {
	l.record(Command{ID: id, Kind: "steer", Value: angle})
	return nil
}

func (l *Log) SetAccessory(id string, accessory core.Accessory, on bool) error {
	l.record(Command{ID: id, Kind: "accessory", Value: boolToInt(on), Accessory: accessory})
	return nil
}

func (l *Log) Close() error { return nil }

// Connected returns the IDs passed to Connect so far.
func (l *Log) Connected() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.connected)
}

// Commands returns every command sent so far.
func (l *Log) Commands() []Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.commands)
}

func (l *Log) record(c Command) {
	l.mu.Lock()
	l.commands = append(l.commands, c)
	l.mu.Unlock()
	l.logger.Debug("Command", "car", c.ID, "kind", c.Kind, "value", c.Value, "accessory", c.Accessory)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
