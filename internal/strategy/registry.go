package strategy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tabletop-racing/racecontrol/internal/agent"
	"github.com/tabletop-racing/racecontrol/internal/input"
)

var (
	// ErrUnknown is returned for a name that is neither built in nor a
	// strategy file.
	ErrUnknown = errors.New("unknown strategy")
	// ErrNoGamepad is returned when manual control is requested without a
	// gamepad.
	ErrNoGamepad = errors.New("manual strategy needs a gamepad")
)

// Factory builds a fresh strategy instance for one agent.
type Factory func() agent.Strategy

// Registry resolves strategy names for agents. Names are matched against the
// manual strategy, then the built-ins, then .go files in the strategies
// directory.
type Registry struct {
	dir      string
	device   input.Device
	builtins map[string]Factory
}

// NewRegistry creates a registry with the built-in strategies. device may be
// nil when no gamepad is connected.
func NewRegistry(dir string, device input.Device) *Registry {
	r := &Registry{
		dir:      dir,
		device:   device,
		builtins: make(map[string]Factory),
	}
	r.Register(FollowWaypointsName, func() agent.Strategy { return NewFollowWaypoints() })
	r.Register(IdleName, func() agent.Strategy { return Idle{} })
	return r
}

// Register adds or replaces a built-in strategy.
func (r *Registry) Register(name string, f Factory) {
	r.builtins[name] = f
}

// Resolve returns a new strategy instance for name.
func (r *Registry) Resolve(name string) (agent.Strategy, error) {
	if strings.EqualFold(name, ManualName) {
		if r.device == nil {
			return nil, ErrNoGamepad
		}
		return NewManual(r.device), nil
	}

	if f, ok := r.builtins[name]; ok {
		return f(), nil
	}

	if path, ok := r.strategyFile(name); ok {
		s, err := Load(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
}

func (r *Registry) strategyFile(name string) (string, bool) {
	candidates := []string{name}
	if r.dir != "" && !filepath.IsAbs(name) {
		candidates = append(candidates, filepath.Join(r.dir, name))
		if filepath.Ext(name) == "" {
			candidates = append(candidates, filepath.Join(r.dir, name+".go"))
		}
	}
	for _, c := range candidates {
		if filepath.Ext(c) != ".go" {
			continue
		}
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

// Available lists the names the menu can offer: built-ins, strategy files and,
// with a gamepad, manual control.
func (r *Registry) Available() ([]string, error) {
	names := make([]string, 0, len(r.builtins))
	for name := range r.builtins {
		names = append(names, name)
	}
	sort.Strings(names)

	if r.dir != "" {
		files, err := Discover(r.dir)
		if err != nil {
			return nil, err
		}
		names = append(names, files...)
	}

	if r.device != nil {
		names = append(names, ManualName)
	}
	return names, nil
}

// Discover lists the .go strategy files in dir, without their extension.
// Test files are skipped.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read strategies directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || filepath.Ext(n) != ".go" || strings.HasSuffix(n, "_test.go") {
			continue
		}
		names = append(names, strings.TrimSuffix(n, ".go"))
	}
	sort.Strings(names)
	return names, nil
}
