// Package manager is the top-level plugin orchestrator.
//
// # Overview
//
// The manager owns the loaded and active instance sets, drives the lifecycle
// state machine, enforces dependency ordering, and routes events between
// plugins and the host through its event bus.
//
// The lifecycle state machine:
//
//	Unloaded -> Loading -> Initializing -> Loaded -> Active
//	                            |            ^  |
//	                          Error          |  v (stop)
//	                            |            +--+
//	                            +--> Unloading -> Unloaded (forced)
//
// A failed Initialize leaves the instance registered in the error state for
// inspection; the only way out is unload. A failed Start leaves the
// instance Loaded and retryable. Unload always reaches Unloaded, even when
// Cleanup fails or panics, and releases the sandbox reservation.
//
// # Usage Example
//
//	mgr, err := manager.New(ctx, manager.Config{
//		PluginDirs:      []string{"/etc/armature/plugins"},
//		DefaultStrategy: loader.StrategySandboxed,
//	}, reg, store, metrics, log)
//	if err != nil {
//		return err
//	}
//	defer mgr.Shutdown(ctx)
//
//	mgr.Discover(ctx)
//	mgr.LoadPlugin(ctx, "analytics", manager.LoadOptions{AutoStart: true})
//	out, err := mgr.ExecutePlugin(ctx, "analytics", input)
//
// # Concurrency
//
// Lifecycle transitions for one instance are serialized by a per-instance
// lock; different plugins proceed independently. The bookkeeping lock only
// guards the instance map and is never held across plugin calls. Concurrent
// loads for the same name collapse into one underlying load.
//
// # Related Packages
//
//   - pkg/registry: descriptor catalog and dependency resolution
//   - pkg/loader: strategy-based instantiation
//   - pkg/sandbox: policy enforcement for sandboxed instances
//   - pkg/bus: event routing
package manager
