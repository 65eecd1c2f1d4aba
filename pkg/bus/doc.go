// Package bus implements the event routing layer between plugins and the host.
//
// # Overview
//
// A single ordered queue is drained by one dedicated consumer loop, so events
// are processed in the order they were dequeued. Delivery to individual
// subscriber handlers fans out to a worker pool, so cross-subscriber handler
// completion order is not guaranteed. A handler that panics is caught and
// logged at the dispatch boundary; the remaining subscribers of the same
// event still receive it.
//
// # Usage Example
//
//	b := bus.New(ctx, bus.Config{QueueSize: 256, Workers: 8}, log)
//	defer b.Close(5 * time.Second)
//
//	b.Subscribe("metrics-collector", []string{"plugin.loaded"}, inst.HandleEvent)
//	b.RegisterHandler("plugin.error", func(ctx context.Context, e *plugin.Event) {
//		log.Warnf("plugin error: %v", e.Payload)
//	})
//
//	b.Publish(plugin.NewEvent("plugin.loaded", "host", payload))
//
// # Related Packages
//
//   - pkg/plugin: Event type and handler contract
//   - pkg/async: worker pool used for dispatch fan-out
//   - pkg/manager: owns a Bus and wires plugin subscriptions on start/stop
package bus
