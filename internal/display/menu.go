package display

import (
	"context"
	"errors"
	"sync"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// ErrNoMoreScenarios ends the session loop of a FixedMenu.
var ErrNoMoreScenarios = errors.New("no more scenarios")

// FixedMenu yields one preconfigured scenario, for headless runs.
type FixedMenu struct {
	scenario core.Scenario

	mu   sync.Mutex
	used bool
}

// NewFixedMenu creates a menu that selects s once.
func NewFixedMenu(s core.Scenario) *FixedMenu {
	return &FixedMenu{scenario: s}
}

// NextScenario returns the scenario the first time and ErrNoMoreScenarios
// after that.
func (m *FixedMenu) NextScenario(ctx context.Context) (core.Scenario, error) {
	if err := ctx.Err(); err != nil {
		return core.Scenario{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used {
		return core.Scenario{}, ErrNoMoreScenarios
	}
	m.used = true
	return m.scenario, nil
}
