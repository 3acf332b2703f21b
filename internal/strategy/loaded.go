package strategy

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/tabletop-racing/racecontrol/internal/agent"
	"github.com/tabletop-racing/racecontrol/pkg/navapi"
)

// entryPoint is the function a strategy file must declare in package strategy.
const entryPoint = "strategy.MakeDecision"

// allowedStdlib is the part of the standard library a strategy file may import.
var allowedStdlib = []string{"math", "math/rand", "sort", "strconv", "strings", "time", "fmt"}

// Symbols exports the navigation API to the interpreter.
var Symbols = interp.Exports{
	"github.com/tabletop-racing/racecontrol/pkg/navapi/navapi": {
		"Navigator": reflect.ValueOf((*navapi.Navigator)(nil)),
	},
}

// Loaded is a strategy evaluated from a Go source file.
type Loaded struct {
	name   string
	path   string
	decide func(navapi.Navigator)
}

// Load evaluates a strategy file. The file must be in package strategy and
// declare func MakeDecision(nav navapi.Navigator).
func Load(path string) (*Loaded, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(restrictedStdlib()); err != nil {
		return nil, fmt.Errorf("failed to export stdlib: %w", err)
	}
	if err := i.Use(Symbols); err != nil {
		return nil, fmt.Errorf("failed to export navigation API: %w", err)
	}

	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("failed to evaluate %s: %w", path, err)
	}

	v, err := i.Eval(entryPoint)
	if err != nil {
		return nil, fmt.Errorf("%s does not declare %s: %w", path, entryPoint, err)
	}
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s: %s is a %s, not a func", path, entryPoint, v.Kind())
	}
	fn, ok := v.Interface().(func(navapi.Navigator))
	if !ok {
		return nil, fmt.Errorf("%s: %s has signature %s, want func(navapi.Navigator)", path, entryPoint, v.Type())
	}

	return &Loaded{
		name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		path:   path,
		decide: fn,
	}, nil
}

func (l *Loaded) Kind() agent.StrategyKind { return agent.KindLoaded }
func (l *Loaded) Name() string             { return l.name }

// Path returns the file the strategy was loaded from.
func (l *Loaded) Path() string { return l.path }

// Decide runs MakeDecision. Interpreted code cannot observe ctx, so a
// cancelled context only skips the call.
func (l *Loaded) Decide(ctx context.Context, c agent.Controller) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.decide(c)
	return nil
}

func restrictedStdlib() interp.Exports {
	exports := make(interp.Exports, len(allowedStdlib))
	for _, pkg := range allowedStdlib {
		key := pkg + "/" + filepath.Base(pkg)
		if symbols, ok := stdlib.Symbols[key]; ok {
			exports[key] = symbols
		}
	}
	return exports
}
