package plugin

import (
	"context"
	"fmt"
)

// Capability is a named feature a plugin advertises to the host.
type Capability string

// Plugin is the capability contract implemented by every plugin variant.
// These are the only operations the manager and loader invoke on a plugin
// object.
type Plugin interface {
	// Initialize prepares the plugin after loading. Called exactly once.
	Initialize(ctx context.Context) error
	// Start transitions the plugin into its active state.
	Start(ctx context.Context) error
	// Stop leaves the active state. The plugin stays loaded and may be
	// started again.
	Stop(ctx context.Context) error
	// Cleanup releases all plugin resources. Called exactly once during
	// unload; the plugin is never used afterwards.
	Cleanup(ctx context.Context) error
	// Execute runs the plugin's unit of work.
	Execute(ctx context.Context, input any) (any, error)
	// HandleEvent delivers a bus event the plugin subscribed to.
	HandleEvent(ctx context.Context, event *Event)
	// Capabilities returns the capability tags the plugin implements.
	Capabilities() []Capability
}

// Subscriber is implemented by plugins that want events from the bus. The
// manager registers the returned event types when the plugin becomes active
// and deregisters them when it stops.
type Subscriber interface {
	Subscriptions() []string
}

// HealthChecker is implemented by plugins that support liveness probing.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// ExecutionError wraps a failure inside a plugin's Execute call. Execution
// errors are local to a single call and never change lifecycle state.
type ExecutionError struct {
	Plugin string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("plugin %s execution failed: %v", e.Plugin, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
