package plugin

import (
	"fmt"
	"sync"

	"github.com/armature-dev/armature/pkg/descriptor"
)

// Factory constructs a plugin instance from its descriptor. Factories back
// the "direct" loading strategy: the plugin code is compiled into the host
// and no dynamic loading happens.
type Factory func(d *descriptor.Descriptor) (Plugin, error)

var (
	// factories maps artifact location -> entry point -> factory.
	factories = make(map[string]map[string]Factory)
	mu        sync.RWMutex
)

// Register adds a factory for the given artifact location and entry point.
// Several entry points may share one location; the descriptor's entry_point
// field disambiguates at load time.
func Register(location, entryPoint string, f Factory) error {
	if f == nil {
		return fmt.Errorf("cannot register nil factory")
	}
	if location == "" || entryPoint == "" {
		return fmt.Errorf("factory location and entry point are required")
	}

	mu.Lock()
	defer mu.Unlock()

	entries, ok := factories[location]
	if !ok {
		entries = make(map[string]Factory)
		factories[location] = entries
	}
	if _, exists := entries[entryPoint]; exists {
		return fmt.Errorf("factory already registered: %s (%s)", location, entryPoint)
	}
	entries[entryPoint] = f
	return nil
}

// MustRegister is Register for init-time use; it panics on error.
func MustRegister(location, entryPoint string, f Factory) {
	if err := Register(location, entryPoint, f); err != nil {
		panic(err)
	}
}

// Unregister removes a factory registration.
func Unregister(location, entryPoint string) {
	mu.Lock()
	defer mu.Unlock()

	if entries, ok := factories[location]; ok {
		delete(entries, entryPoint)
		if len(entries) == 0 {
			delete(factories, location)
		}
	}
}

// Lookup returns a copy of the factories registered under location.
func Lookup(location string) map[string]Factory {
	mu.RLock()
	defer mu.RUnlock()

	entries, ok := factories[location]
	if !ok {
		return nil
	}
	out := make(map[string]Factory, len(entries))
	for name, f := range entries {
		out[name] = f
	}
	return out
}
