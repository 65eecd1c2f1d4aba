// Package plugin defines the capability contract every plugin implements and
// the event type routed between plugins and the host.
//
// # Overview
//
// The Plugin interface is the only surface the manager and loader ever invoke
// on a plugin object; everything else a plugin does is opaque to the core.
// Compile-time ("direct" strategy) plugins register a Factory under their
// artifact location so the loader can instantiate them without any dynamic
// code loading.
//
// # Lifecycle
//
// Initialize is called once after loading, Start/Stop toggle the active state,
// Cleanup is called exactly once during unload. Execute may be called any
// number of times while the plugin is active. HandleEvent receives bus events
// the plugin subscribed to.
//
// # Usage Example
//
// Register a built-in plugin at init time:
//
//	func init() {
//		plugin.MustRegister("builtin://wordcount", "WordCount", func(d *descriptor.Descriptor) (plugin.Plugin, error) {
//			return &WordCount{}, nil
//		})
//	}
//
// # Related Packages
//
//   - pkg/loader: instantiates plugins from descriptors
//   - pkg/manager: drives the lifecycle and the event bus
package plugin
