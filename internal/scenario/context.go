// Package scenario tracks the run currently on the table so log records and
// recordings can be tagged with it.
package scenario

import (
	"log/slog"
	"sync"

	"github.com/tabletop-racing/racecontrol/pkg/core"
)

// Context holds the active run, if any.
type Context struct {
	mu  sync.RWMutex
	run *core.Run
}

// NewContext creates a Context with no active run.
func NewContext() *Context {
	return &Context{}
}

// Run returns the active run, or nil between runs.
func (c *Context) Run() *core.Run {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run
}

// Set marks run as active.
func (c *Context) Set(run *core.Run) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run = run
}

// Clear marks the table idle.
func (c *Context) Clear() {
	c.Set(nil)
}

// LogAttrs returns the attributes added to every log record. It matches
// logging.RunSource.
func (c *Context) LogAttrs() []slog.Attr {
	run := c.Run()
	if run == nil {
		return nil
	}
	return []slog.Attr{
		slog.Uint64("run", uint64(run.ID)),
		slog.String("map", run.MapName),
	}
}
