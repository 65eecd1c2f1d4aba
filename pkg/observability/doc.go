// Package observability provides structured logging, Prometheus metrics, and host health probes.
//
// # Overview
//
// This package centralizes observability infrastructure: logrus logger
// construction, Prometheus metrics for the plugin host, panic recovery
// helpers, health endpoints, and graceful shutdown coordination.
//
// # Structured Logging
//
// Create logger:
//
//	log := observability.NewLogger("info", "json", os.Stdout)
//	log.WithField("plugin", name).Info("plugin loaded")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.PluginLoadsTotal.WithLabelValues("sandboxed", "success").Inc()
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker()
//	checker.AddCheck("registry", func(ctx context.Context) error {
//		if reg.Count() == 0 {
//			return errors.New("no descriptors registered")
//		}
//		return nil
//	})
//	observability.RegisterHealthRoutes(router, checker)
//
// # Graceful Shutdown
//
// Register teardown and wait for a signal:
//
//	sm := observability.NewShutdownManager(log, server, 30*time.Second)
//	sm.RegisterShutdownFunc(mgr.Shutdown)
//	sm.WaitForShutdown()
//
// # Related Packages
//
//   - pkg/config: host configuration
//   - pkg/manager: consumes Metrics and registers shutdown functions
package observability
