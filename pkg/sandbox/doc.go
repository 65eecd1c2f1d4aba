// Package sandbox provides resource- and capability-bounded execution
// contexts for plugin instances.
//
// # Overview
//
// A sandbox reservation is created per plugin instance at load time and
// destroyed at unload; it exists for exactly the instance's loaded lifetime.
// Run executes a callable under the instance's policy with a watchdog that
// samples process memory and CPU usage at a fixed interval and cancels the
// call when a ceiling is crossed or the wall-clock budget expires. Every
// breach is recorded as an append-only Violation.
//
// Resource enforcement is approximate: the watchdog samples the shared host
// process, so it bounds runaway workloads rather than metering a single
// plugin precisely. Module, path and network policy is enforced ahead of
// execution for declared accesses and through the Check* hooks for accesses
// intercepted mid-call (the Lua require hook uses CheckModule).
//
// # Security Levels
//
// NONE through MAXIMUM are named presets for the policy fields; callers may
// override individual fields after applying a preset.
//
// # Usage Example
//
//	sb := sandbox.New(sandbox.NewMemoryViolationStore(), log)
//	sb.Create(instanceID, sandbox.PolicyForLevel(sandbox.LevelHigh))
//	defer sb.Destroy(instanceID)
//
//	out, err := sb.Run(ctx, instanceID, sandbox.Access{}, func(ctx context.Context) (any, error) {
//		return plugin.Execute(ctx, input)
//	})
//
// # Related Packages
//
//   - pkg/loader: attaches sandboxes for the sandboxed strategy
//   - pkg/manager: routes ExecutePlugin through Run for sandboxed instances
package sandbox
