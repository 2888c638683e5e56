// Package plugin defines the origin plugin interface for kartta.
package plugin

import (
	"context"
	"slices"
	"sync"

	"github.com/yairfalse/kartta/internal/discovery"
	"github.com/yairfalse/kartta/pkg/resource"
)

// Plugin is one discovery origin (a cloud provider).
type Plugin interface {
	// Name returns the plugin identifier (e.g., "aws").
	Name() string

	// Services returns the modules the plugin can run.
	Services() []discovery.Module

	// Scan runs one discovery pass under session. Envelopes go to the
	// emitter the plugin was built with; the report summarizes the pass.
	Scan(ctx context.Context, session resource.Session, services discovery.ServiceFilter) (*discovery.Report, error)
}

// Registry holds registered plugins.
var (
	registry = make(map[string]Plugin)
	mu       sync.RWMutex
)

// Register adds a plugin to the registry.
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	registry[p.Name()] = p
}

// Get returns a plugin by name.
func Get(name string) (Plugin, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := registry[name]
	return p, ok
}

// All returns all registered plugins ordered by name.
func All() []Plugin {
	mu.RLock()
	defer mu.RUnlock()
	plugins := make([]Plugin, 0, len(registry))
	for _, name := range sortedNames() {
		plugins = append(plugins, registry[name])
	}
	return plugins
}

// Names returns all registered plugin names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedNames()
}

func sortedNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Clear removes all plugins from the registry. Used for testing.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[string]Plugin)
}
