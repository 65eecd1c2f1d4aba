package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Run("creates and registers all metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		if metrics == nil {
			t.Fatal("NewMetrics returned nil")
		}

		if metrics.HTTPRequestsTotal == nil {
			t.Error("HTTPRequestsTotal is nil")
		}
		if metrics.PluginLoadsTotal == nil {
			t.Error("PluginLoadsTotal is nil")
		}
		if metrics.LifecycleTransitionsTotal == nil {
			t.Error("LifecycleTransitionsTotal is nil")
		}
		if metrics.ExecutionsTotal == nil {
			t.Error("ExecutionsTotal is nil")
		}
		if metrics.EventsPublishedTotal == nil {
			t.Error("EventsPublishedTotal is nil")
		}
		if metrics.SandboxViolationsTotal == nil {
			t.Error("SandboxViolationsTotal is nil")
		}
		if metrics.HealthProbesTotal == nil {
			t.Error("HealthProbesTotal is nil")
		}
		if metrics.RegisteredDescriptors == nil {
			t.Error("RegisteredDescriptors is nil")
		}
	})

	t.Run("double registration panics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		NewMetrics(registry)

		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic on duplicate registration")
			}
		}()
		NewMetrics(registry)
	})
}

func TestMetrics_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.PluginLoadsTotal.WithLabelValues("direct", "success").Inc()
	metrics.PluginLoadsTotal.WithLabelValues("direct", "success").Inc()
	metrics.PluginLoadsTotal.WithLabelValues("sandboxed", "error").Inc()

	got := testutil.ToFloat64(metrics.PluginLoadsTotal.WithLabelValues("direct", "success"))
	if got != 2 {
		t.Errorf("Expected 2 successful direct loads, got %v", got)
	}

	metrics.ExecutionsTotal.WithLabelValues("metrics-collector", "success").Inc()
	expected := `
# HELP armature_executions_total Total number of plugin executions
# TYPE armature_executions_total counter
armature_executions_total{plugin="metrics-collector",status="success"} 1
`
	if err := testutil.CollectAndCompare(metrics.ExecutionsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected collecting result: %v", err)
	}
}

func TestMetrics_Gauges(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.InstancesByStatus.WithLabelValues("active").Set(3)
	metrics.InstancesByStatus.WithLabelValues("loaded").Set(1)
	metrics.RegisteredDescriptors.Set(7)
	metrics.BusQueueDepth.Set(12)

	if got := testutil.ToFloat64(metrics.InstancesByStatus.WithLabelValues("active")); got != 3 {
		t.Errorf("Expected 3 active instances, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.RegisteredDescriptors); got != 7 {
		t.Errorf("Expected 7 registered descriptors, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.BusQueueDepth); got != 12 {
		t.Errorf("Expected queue depth 12, got %v", got)
	}
}

func TestMetrics_SandboxViolations(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.SandboxViolationsTotal.WithLabelValues("module_access").Inc()
	metrics.SandboxViolationsTotal.WithLabelValues("timeout").Inc()
	metrics.SandboxViolationsTotal.WithLabelValues("module_access").Inc()

	if got := testutil.ToFloat64(metrics.SandboxViolationsTotal.WithLabelValues("module_access")); got != 2 {
		t.Errorf("Expected 2 module_access violations, got %v", got)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/api/v1/plugins", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.HandleFunc("/api/v1/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/plugins", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	ok := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/plugins", "200"))
	if ok != 3 {
		t.Errorf("Expected 3 requests counted, got %v", ok)
	}
	missing := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/missing", "404"))
	if missing != 1 {
		t.Errorf("Expected 1 not-found request counted, got %v", missing)
	}
}

func TestHTTPMetricsMiddleware_DefaultStatusIs200(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	// Handler never calls WriteHeader explicitly.
	router.HandleFunc("/implicit", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/implicit", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/implicit", "200"))
	if got != 1 {
		t.Errorf("Expected implicit 200 to be counted, got %v", got)
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.EventsPublishedTotal.Inc()

	router := mux.NewRouter()
	RegisterMetricsEndpoint(router, registry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "armature_events_published_total 1") {
		t.Errorf("Expected published counter in exposition, got:\n%s", body)
	}
}
