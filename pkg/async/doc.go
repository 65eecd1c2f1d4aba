// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery, timeout
// enforcement, context cancellation, and error collection.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(ctx, 30*time.Second, "catalog export", log, func(ctx context.Context) error {
//		// Task code with automatic panic recovery and timeout
//		return export(ctx)
//	})
//
// WorkerPool: Managed pool of concurrent workers
//
//	pool := async.NewWorkerPool(ctx, 8, "event dispatch", 5*time.Second, log)
//	defer pool.Shutdown(2 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return deliver(ctx, event)
//	})
//
// Batch: Bounded-concurrency map over a slice
//
//	errs := async.Batch(ctx, descriptors, 4, "auto-start", 0, log, loadOne)
//
// # Features
//
// Panic Recovery: Captures panics with stack traces
// Timeout Enforcement: Per-task timeouts
// Context Cancellation: Respects context cancellation
// Error Collection: Non-blocking error channels
// Graceful Shutdown: Worker draining
//
// # Use Cases
//
// Event dispatch fan-out, the health probe loop, bulk plugin auto-start
//
// # Related Packages
//
//   - pkg/bus: uses WorkerPool for handler dispatch
//   - pkg/manager: uses SafeGoNoError for the health probe loop
package async
