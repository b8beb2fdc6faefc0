package eventlink

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/multierr"
)

// Component represents anything with a lifetime that can be part of a Group.
// Dispatchers and pumps implement it.
type Component interface {
	// Stop stops the component and cleans up resources
	Stop() error

	// IsRunning returns true if the component is currently running
	IsRunning() bool
}

// Group is a named, ordered set of components stopped together. A Group is
// itself a Component and can be nested within other Groups.
type Group struct {
	name       string
	components []Component
	mu         sync.RWMutex
}

// NewGroup creates an empty group with the given name
func NewGroup(name string) *Group {
	return &Group{
		name:       name,
		components: make([]Component, 0),
	}
}

// Add adds components to this group
func (g *Group) Add(components ...Component) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.components = append(g.components, components...)
}

// Stop stops all components in reverse order. Add producers (pumps) after the
// dispatchers they feed so they stop first and the dispatchers can drain.
// Every component is stopped even when an earlier one fails.
func (g *Group) Stop() error {
	g.mu.RLock()
	components := append([]Component(nil), g.components...)
	g.mu.RUnlock()

	var errs error
	for i := len(components) - 1; i >= 0; i-- {
		if err := components[i].Stop(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("group %q: failed to stop component %d: %w", g.name, i, err))
		}
	}
	return errs
}

// IsRunning returns true if any component in the group is running
func (g *Group) IsRunning() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, comp := range g.components {
		if comp.IsRunning() {
			return true
		}
	}
	return false
}

// Name returns the group's name
func (g *Group) Name() string {
	return g.name
}

// Count returns the number of components in this group
func (g *Group) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.components)
}

// FxHook returns a lifecycle hook stopping the group when the fx application
// stops. Components start when they are created, so there is no OnStart.
func (g *Group) FxHook() fx.Hook {
	return fx.Hook{
		OnStop: func(_ context.Context) error {
			return g.Stop()
		},
	}
}

// BindLifecycle appends the group's hook to lc.
func (g *Group) BindLifecycle(lc fx.Lifecycle) {
	lc.Append(g.FxHook())
}
