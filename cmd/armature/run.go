package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/armature-dev/armature/pkg/async"
	"github.com/armature-dev/armature/pkg/bus"
	"github.com/armature-dev/armature/pkg/config"
	"github.com/armature-dev/armature/pkg/descriptor"
	"github.com/armature-dev/armature/pkg/loader"
	"github.com/armature-dev/armature/pkg/manager"
	"github.com/armature-dev/armature/pkg/observability"
	"github.com/armature-dev/armature/pkg/registry"
	"github.com/armature-dev/armature/pkg/sandbox"
)

// autoStartWorkers bounds how many plugins load concurrently per pass.
const autoStartWorkers = 4

var runAutoStart bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover plugins and run the host",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHost()
	},
}

func init() {
	runCmd.Flags().BoolVar(&runAutoStart, "auto-start", false,
		"load and start every discovered plugin")
}

func runHost() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)

	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	var store sandbox.ViolationStore
	if cfg.Sandbox.ViolationDB != "" {
		sqlStore, err := sandbox.NewSQLiteViolationStore(cfg.Sandbox.ViolationDB)
		if err != nil {
			return fmt.Errorf("failed to open violation store: %w", err)
		}
		defer sqlStore.Close()
		store = sqlStore
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.New(log)

	strategy, err := loader.ParseStrategy(cfg.Plugins.DefaultStrategy)
	if err != nil {
		return err
	}
	policy := cfg.DefaultPolicy()

	mgr, err := manager.New(ctx, manager.Config{
		PluginDirs:      cfg.Plugins.Dirs,
		DefaultStrategy: strategy,
		DefaultPolicy:   &policy,
		Bus: bus.Config{
			QueueSize:       cfg.Bus.QueueSize,
			Workers:         cfg.Bus.Workers,
			DispatchTimeout: cfg.Bus.DispatchTimeout,
		},
		HealthInterval: cfg.Plugins.HealthInterval,
		ProbeTimeout:    cfg.Plugins.ProbeTimeout,
		RestartBudget:   cfg.Plugins.RestartBudget,
	}, reg, store, metrics, log)
	if err != nil {
		return err
	}

	report, err := mgr.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	log.WithFields(logrus.Fields{
		"discovered": len(report.Discovered),
		"errors":     len(report.Errors),
	}).Info("discovery complete")
	for _, derr := range report.Errors {
		log.Warnf("discovery: %v", derr)
	}

	if runAutoStart {
		autoStartAll(ctx, mgr, reg, log)
	}

	if cfg.Plugins.RescanSchedule != "" {
		watcher, err := registry.NewWatcher(reg, cfg.Plugins.Dirs, cfg.Plugins.RescanSchedule, log)
		if err != nil {
			return fmt.Errorf("failed to create registry watcher: %w", err)
		}
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	router := mux.NewRouter()
	if cfg.Observability.MetricsEnabled {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
		observability.RegisterMetricsEndpoint(router, promRegistry)
	}

	checker := observability.NewHealthChecker()
	checker.AddCheck("registry", func(ctx context.Context) error {
		if reg.Count() == 0 {
			return fmt.Errorf("no plugin descriptors registered")
		}
		return nil
	})
	observability.RegisterHealthRoutes(router, checker)
	registerAPIRoutes(router, mgr, reg)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Infof("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("server error: %v", err)
		}
	}()

	return observability.GracefulShutdown(log, server, cfg.Server.ShutdownTimeout, mgr.Shutdown)
}

// autoStartAll loads every registered plugin in an order that satisfies
// dependency constraints. Each pass loads the currently loadable plugins
// concurrently; plugins with unresolved dependencies are retried on the next
// pass until no progress is made.
func autoStartAll(ctx context.Context, mgr *manager.Manager, reg *registry.Registry, log *logrus.Logger) {
	pending := reg.List()
	for len(pending) > 0 {
		var (
			mu       sync.Mutex
			retry    []*descriptor.Descriptor
			progress bool
		)
		async.Batch(ctx, pending, autoStartWorkers, "auto-start", 0, log,
			func(ctx context.Context, d *descriptor.Descriptor) error {
				err := mgr.LoadPlugin(ctx, d.Name, manager.LoadOptions{
					Version:   d.Version,
					AutoStart: true,
				})
				mu.Lock()
				defer mu.Unlock()
				switch err.(type) {
				case nil, *manager.AlreadyLoadedError:
					progress = true
				case *registry.DependencyError:
					retry = append(retry, d)
				default:
					log.WithField("plugin", d.Name).Warnf("auto-start failed: %v", err)
				}
				return nil
			})
		if !progress {
			for _, d := range retry {
				log.WithField("plugin", d.Name).Warn("auto-start skipped: dependencies unresolved")
			}
			return
		}
		pending = retry
	}
}

// registerAPIRoutes exposes the read-only host API.
func registerAPIRoutes(router *mux.Router, mgr *manager.Manager, reg *registry.Registry) {
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/plugins", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, mgr.Instances())
	}).Methods(http.MethodGet)

	api.HandleFunc("/plugins/{name}", func(w http.ResponseWriter, r *http.Request) {
		info, err := mgr.Status(mux.Vars(r)["name"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, info)
	}).Methods(http.MethodGet)

	api.HandleFunc("/plugins/{name}/violations", func(w http.ResponseWriter, r *http.Request) {
		violations, err := mgr.Violations(mux.Vars(r)["name"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, violations)
	}).Methods(http.MethodGet)

	api.HandleFunc("/catalog", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, reg.Export())
	}).Methods(http.MethodGet)

	api.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, mgr.Metrics())
	}).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
