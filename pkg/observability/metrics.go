package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Load metrics
	PluginLoadsTotal   *prometheus.CounterVec
	PluginLoadDuration *prometheus.HistogramVec

	// Lifecycle metrics
	LifecycleTransitionsTotal *prometheus.CounterVec
	InstancesByStatus         *prometheus.GaugeVec

	// Execution metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec

	// Event bus metrics
	EventsPublishedTotal prometheus.Counter
	BusQueueDepth        prometheus.Gauge

	// Sandbox metrics
	SandboxViolationsTotal *prometheus.CounterVec

	// Health metrics
	HealthProbesTotal    *prometheus.CounterVec
	PluginRestartsTotal  *prometheus.CounterVec
	RegisteredDescriptors prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "armature_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "armature_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Load metrics
		PluginLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "armature_plugin_loads_total",
				Help: "Total number of plugin load attempts",
			},
			[]string{"strategy", "status"},
		),
		PluginLoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "armature_plugin_load_duration_seconds",
				Help:    "Plugin load duration in seconds",
				Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 10},
			},
			[]string{"strategy"},
		),

		// Lifecycle metrics
		LifecycleTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "armature_lifecycle_transitions_total",
				Help: "Total number of lifecycle state transitions",
			},
			[]string{"to"},
		),
		InstancesByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "armature_instances",
				Help: "Current number of plugin instances by lifecycle status",
			},
			[]string{"status"},
		),

		// Execution metrics
		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "armature_executions_total",
				Help: "Total number of plugin executions",
			},
			[]string{"plugin", "status"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "armature_execution_duration_seconds",
				Help:    "Plugin execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"plugin"},
		),

		// Event bus metrics
		EventsPublishedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "armature_events_published_total",
				Help: "Total number of events published to the bus",
			},
		),
		BusQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "armature_bus_queue_depth",
				Help: "Current depth of the event bus queue",
			},
		),

		// Sandbox metrics
		SandboxViolationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "armature_sandbox_violations_total",
				Help: "Total number of sandbox policy violations",
			},
			[]string{"type"},
		),

		// Health metrics
		HealthProbesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "armature_health_probes_total",
				Help: "Total number of plugin health probes",
			},
			[]string{"plugin", "status"},
		),
		PluginRestartsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "armature_plugin_restarts_total",
				Help: "Total number of health-triggered plugin restarts",
			},
			[]string{"plugin"},
		),
		RegisteredDescriptors: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "armature_registered_descriptors",
				Help: "Number of descriptors in the registry",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PluginLoadsTotal,
		m.PluginLoadDuration,
		m.LifecycleTransitionsTotal,
		m.InstancesByStatus,
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.EventsPublishedTotal,
		m.BusQueueDepth,
		m.SandboxViolationsTotal,
		m.HealthProbesTotal,
		m.PluginRestartsTotal,
		m.RegisteredDescriptors,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
