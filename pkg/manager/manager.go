package manager

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/armature-dev/armature/pkg/async"
	"github.com/armature-dev/armature/pkg/bus"
	"github.com/armature-dev/armature/pkg/descriptor"
	"github.com/armature-dev/armature/pkg/loader"
	"github.com/armature-dev/armature/pkg/observability"
	"github.com/armature-dev/armature/pkg/plugin"
	"github.com/armature-dev/armature/pkg/registry"
	"github.com/armature-dev/armature/pkg/sandbox"
)

// Event types the manager publishes on the bus.
const (
	EventPluginLoaded    = "plugin.loaded"
	EventPluginStarted   = "plugin.started"
	EventPluginStopped   = "plugin.stopped"
	EventPluginUnloaded  = "plugin.unloaded"
	EventPluginUnhealthy = "plugin.unhealthy"
	EventPluginRestarted = "plugin.restarted"
)

const hostSource = "host"

// Config tunes the manager and the subsystems it owns.
type Config struct {
	// PluginDirs are the filesystem locations Discover scans.
	PluginDirs []string
	// DefaultStrategy applies when a LoadOptions carries none.
	DefaultStrategy loader.Strategy
	// DefaultPolicy applies to sandboxed loads with no explicit policy.
	DefaultPolicy *sandbox.Policy
	// Bus sizes the event queue and dispatch pool.
	Bus bus.Config
	// HealthInterval enables the health monitor loop when positive.
	HealthInterval time.Duration
	// ProbeTimeout bounds a single health probe.
	ProbeTimeout time.Duration
	// RestartBudget caps health-triggered restarts per instance.
	RestartBudget int
}

// LoadOptions tune a single LoadPlugin call.
type LoadOptions struct {
	// Version selects an exact version; empty means highest registered.
	Version string
	// Strategy overrides Config.DefaultStrategy.
	Strategy loader.Strategy
	// Policy overrides Config.DefaultPolicy for sandboxed loads.
	Policy *sandbox.Policy
	// AutoStart starts the plugin immediately after a successful load.
	AutoStart bool
	// ForceReload bypasses the loader cache.
	ForceReload bool
}

// MetricsSnapshot is the host-facing view of manager activity.
type MetricsSnapshot struct {
	Instances     map[Status]int  `json:"instances"`
	Registered    int             `json:"registered_descriptors"`
	Bus           bus.Stats       `json:"bus"`
	Uptime        time.Duration   `json:"uptime"`
	LoadsTotal    uint64          `json:"loads_total"`
	LoadFailures  uint64          `json:"load_failures"`
	ExecTotal     uint64          `json:"executions_total"`
	ExecFailures  uint64          `json:"execution_failures"`
}

// Manager is the top-level orchestrator. It owns the loaded and active
// instance sets, drives the lifecycle state machine, enforces dependency
// ordering, and routes events through its bus.
//
// Construct one Manager at startup and pass it to all callers; there is no
// implicit global.
type Manager struct {
	cfg      Config
	registry *registry.Registry
	loader   *loader.Loader
	sb       *sandbox.Sandbox
	bus      *bus.Bus
	metrics  *observability.Metrics
	log      *logrus.Logger

	// mu guards the instances map. It protects bookkeeping transitions
	// only; plugin calls never run while it is held, and per-instance locks
	// are never taken under it.
	mu        sync.RWMutex
	instances map[string]*Instance

	loadGroup singleflight.Group

	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time

	counters struct {
		loads        atomic.Uint64
		loadFailures atomic.Uint64
		execs        atomic.Uint64
		execFailures atomic.Uint64
	}
}

// New wires a manager around the given registry and violation store. The
// manager constructs and owns its sandbox, loader and event bus.
func New(ctx context.Context, cfg Config, reg *registry.Registry, store sandbox.ViolationStore, metrics *observability.Metrics, log *logrus.Logger) (*Manager, error) {
	if reg == nil {
		return nil, fmt.Errorf("manager requires a registry")
	}
	if log == nil {
		log = logrus.New()
	}
	if metrics == nil {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = loader.StrategyDirect
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if store == nil {
		store = sandbox.NewMemoryViolationStore()
	}

	sb := sandbox.New(&countingViolationStore{inner: store, metrics: metrics}, log)
	ld, err := loader.New(sb, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create loader: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	m := &Manager{
		cfg:       cfg,
		registry:  reg,
		loader:    ld,
		sb:        sb,
		bus:       bus.New(ctx, cfg.Bus, log),
		metrics:   metrics,
		log:       log,
		instances: make(map[string]*Instance),
		ctx:       ctx,
		cancel:    cancel,
		started:   time.Now(),
	}

	if cfg.HealthInterval > 0 {
		async.SafeGoNoError(ctx, 0, "health probe loop", log, func(context.Context) {
			m.healthLoop()
		})
	}
	return m, nil
}

// Discover scans the configured plugin directories and registers the
// descriptors found there. No executable code is loaded.
func (m *Manager) Discover(ctx context.Context) (*registry.ScanReport, error) {
	report, err := m.registry.Scan(ctx, m.cfg.PluginDirs)
	if err != nil {
		return nil, err
	}
	m.metrics.RegisteredDescriptors.Set(float64(m.registry.Count()))
	return report, nil
}

// LoadPlugin resolves the plugin's dependency closure, loads the artifact,
// and initializes it. Every required dependency must already be at least
// Loaded; a failure lists the missing names and registers nothing. An
// initialization failure still registers the instance, marked error, so it
// stays inspectable.
//
// Concurrent loads for the same name collapse into one underlying load; the
// other callers observe AlreadyLoadedError.
func (m *Manager) LoadPlugin(ctx context.Context, name string, opts LoadOptions) error {
	_, err, _ := m.loadGroup.Do(name, func() (any, error) {
		return nil, m.loadOne(ctx, name, opts)
	})
	return err
}

func (m *Manager) loadOne(ctx context.Context, name string, opts LoadOptions) error {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = m.cfg.DefaultStrategy
	}

	m.mu.RLock()
	existing := m.instances[name]
	m.mu.RUnlock()
	if existing != nil {
		info := existing.info()
		return &AlreadyLoadedError{Plugin: name, Version: info.Version}
	}

	d, err := m.registry.Get(name, opts.Version)
	if err != nil {
		m.countLoad(strategy, false)
		return err
	}

	closure, err := m.registry.ResolveDependencies(d)
	if err != nil {
		m.countLoad(strategy, false)
		return err
	}
	if missing := m.unloadedDependencies(closure); len(missing) > 0 {
		m.countLoad(strategy, false)
		return &registry.DependencyError{Plugin: name, Missing: missing}
	}

	policy := opts.Policy
	if policy == nil {
		policy = m.cfg.DefaultPolicy
	}
	result, err := m.loader.Load(ctx, d, strategy, loader.Options{
		Policy:      policy,
		ForceReload: opts.ForceReload,
	})
	if err != nil {
		m.countLoad(strategy, false)
		return err
	}

	inst := &Instance{
		descriptor: result.Descriptor,
		plugin:     result.Plugin,
		strategy:   result.Strategy,
		instanceID: result.InstanceID,
		loadedAt:   time.Now().UTC(),
		status:     StatusInitializing,
	}

	m.mu.Lock()
	m.instances[name] = inst
	m.mu.Unlock()
	m.transition(inst.descriptor.Name, StatusInitializing)

	if err := m.callPlugin(ctx, inst, "initialize", inst.plugin.Initialize); err != nil {
		initErr := &InitializationError{Plugin: name, Err: err}
		inst.mu.Lock()
		inst.status = StatusError
		inst.lastError = initErr
		inst.mu.Unlock()
		m.transition(name, StatusError)
		m.countLoad(strategy, false)
		m.log.WithField("plugin", name).Warnf("plugin initialization failed: %v", err)
		return initErr
	}

	inst.mu.Lock()
	inst.status = StatusLoaded
	inst.lastError = nil
	inst.mu.Unlock()
	m.transition(name, StatusLoaded)
	m.countLoad(strategy, true)
	m.metrics.PluginLoadDuration.WithLabelValues(string(strategy)).Observe(result.LoadTime.Seconds())

	m.log.WithFields(logrus.Fields{
		"plugin":   name,
		"version":  d.Version,
		"strategy": strategy,
	}).Info("plugin loaded")
	m.publish(plugin.NewEvent(EventPluginLoaded, hostSource, map[string]any{
		"plugin": name, "version": d.Version,
	}))

	if opts.AutoStart {
		return m.StartPlugin(ctx, name)
	}
	return nil
}

// StartPlugin transitions a Loaded plugin to Active and registers its event
// subscriptions with the bus. A failed start leaves it Loaded; retry is
// allowed. Dependencies are not auto-started; only dependencies marked
// activation_required must already be Active.
func (m *Manager) StartPlugin(ctx context.Context, name string) error {
	inst, err := m.instance(name, "start")
	if err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.status != StatusLoaded {
		return &StateError{Plugin: name, Operation: "start", Current: inst.status, Required: StatusLoaded}
	}
	if err := m.checkActivationDeps(inst.descriptor); err != nil {
		return err
	}

	if err := m.callPluginLocked(ctx, name, "start", inst.plugin.Start); err != nil {
		return &StartError{Plugin: name, Err: err}
	}

	inst.status = StatusActive
	inst.lastError = nil
	m.transition(name, StatusActive)

	m.bus.Subscribe(name, inst.subscriptions(), inst.plugin.HandleEvent)

	m.log.WithField("plugin", name).Info("plugin started")
	m.publish(plugin.NewEvent(EventPluginStarted, hostSource, map[string]any{"plugin": name}))
	return nil
}

// StopPlugin transitions an Active plugin back to Loaded and deregisters
// its event subscriptions. The plugin always leaves the active set, even
// when its Stop call fails; the failure is reported but never leaks event
// routing.
func (m *Manager) StopPlugin(ctx context.Context, name string) error {
	inst, err := m.instance(name, "stop")
	if err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.status != StatusActive {
		return &StateError{Plugin: name, Operation: "stop", Current: inst.status, Required: StatusActive}
	}
	return m.stopLocked(ctx, name, inst)
}

// stopLocked performs the stop transition with inst.mu held.
func (m *Manager) stopLocked(ctx context.Context, name string, inst *Instance) error {
	stopErr := m.callPluginLocked(ctx, name, "stop", inst.plugin.Stop)

	m.bus.Unsubscribe(name)
	inst.status = StatusLoaded
	m.transition(name, StatusLoaded)

	m.log.WithField("plugin", name).Info("plugin stopped")
	m.publish(plugin.NewEvent(EventPluginStopped, hostSource, map[string]any{"plugin": name}))

	if stopErr != nil {
		m.log.WithField("plugin", name).Warnf("plugin stop failed: %v", stopErr)
		return &StopError{Plugin: name, Err: stopErr}
	}
	return nil
}

// UnloadPlugin tears the instance down: stops it if active, calls Cleanup,
// and forces the terminal Unloaded state regardless of Cleanup's outcome.
// The instance, its loader cache entry and its sandbox reservation are all
// released.
func (m *Manager) UnloadPlugin(ctx context.Context, name string) error {
	inst, err := m.instance(name, "unload")
	if err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.status == StatusUnloading || inst.status == StatusUnloaded {
		return &StateError{Plugin: name, Operation: "unload", Current: inst.status, Required: StatusLoaded}
	}

	if inst.status == StatusActive {
		// Best-effort stop; a failure is logged by stopLocked and must not
		// block teardown.
		_ = m.stopLocked(ctx, name, inst)
	}

	inst.status = StatusUnloading
	m.transition(name, StatusUnloading)

	if err := m.callPluginLocked(ctx, name, "cleanup", inst.plugin.Cleanup); err != nil {
		m.log.WithField("plugin", name).Warnf("%v", &UnloadError{Plugin: name, Err: err})
	}

	inst.status = StatusUnloaded
	m.transition(name, StatusUnloaded)

	m.mu.Lock()
	delete(m.instances, name)
	m.mu.Unlock()

	// Dropping the loader cache entry closes interpreter state and destroys
	// the sandbox reservation.
	m.loader.Unload(inst.descriptor.Name, inst.descriptor.Version)

	m.log.WithField("plugin", name).Info("plugin unloaded")
	m.publish(plugin.NewEvent(EventPluginUnloaded, hostSource, map[string]any{"plugin": name}))
	return nil
}

// ExecutePlugin runs the plugin's unit of work. Requires Active. Sandboxed
// instances run through the sandbox; a failed execution never changes the
// instance's lifecycle status.
func (m *Manager) ExecutePlugin(ctx context.Context, name string, input any) (any, error) {
	inst, err := m.instance(name, "execute")
	if err != nil {
		return nil, err
	}

	inst.mu.Lock()
	status := inst.status
	p := inst.plugin
	strategy := inst.strategy
	instanceID := inst.instanceID
	inst.mu.Unlock()

	if status != StatusActive {
		return nil, &StateError{Plugin: name, Operation: "execute", Current: status, Required: StatusActive}
	}

	start := time.Now()
	var out any
	if strategy.Sandboxed() {
		out, err = m.sb.Run(ctx, instanceID, sandbox.Access{}, func(ctx context.Context) (any, error) {
			return p.Execute(ctx, input)
		})
	} else {
		out, err = p.Execute(ctx, input)
	}

	m.counters.execs.Add(1)
	result := "success"
	if err != nil {
		m.counters.execFailures.Add(1)
		result = "error"
	}
	m.metrics.ExecutionsTotal.WithLabelValues(name, result).Inc()
	m.metrics.ExecutionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return out, err
}

// SendEvent publishes an event on the bus. Broadcast events reach every
// Active instance subscribed to the event type; targeted events reach only
// the named instance.
func (m *Manager) SendEvent(event *plugin.Event) error {
	return m.publish(event)
}

// RegisterEventHandler attaches a host-side callback for an event type,
// bypassing the plugin contract.
func (m *Manager) RegisterEventHandler(eventType string, handler bus.Handler) {
	m.bus.RegisterHandler(eventType, handler)
}

// Status returns a snapshot of the named instance.
func (m *Manager) Status(name string) (InstanceInfo, error) {
	m.mu.RLock()
	inst := m.instances[name]
	m.mu.RUnlock()
	if inst == nil {
		return InstanceInfo{}, &registry.NotFoundError{Name: name}
	}
	return inst.info(), nil
}

// Instances returns snapshots of every live instance, sorted by name.
func (m *Manager) Instances() []InstanceInfo {
	live := m.liveInstances()
	out := make([]InstanceInfo, 0, len(live))
	for _, inst := range live {
		out = append(out, inst.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// liveInstances snapshots the instance pointers so callers can take
// per-instance locks without holding the bookkeeping lock.
func (m *Manager) liveInstances() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	return out
}

// Violations returns the sandbox audit records for the named instance.
func (m *Manager) Violations(name string) ([]sandbox.Violation, error) {
	m.mu.RLock()
	inst := m.instances[name]
	m.mu.RUnlock()
	if inst == nil {
		return nil, &registry.NotFoundError{Name: name}
	}
	return m.sb.Violations(inst.instanceID)
}

// Metrics returns the host-facing activity snapshot and refreshes the
// gauges derived from it.
func (m *Manager) Metrics() MetricsSnapshot {
	byStatus := make(map[Status]int)
	for _, inst := range m.liveInstances() {
		byStatus[inst.currentStatus()]++
	}

	stats := m.bus.Stats()
	m.metrics.BusQueueDepth.Set(float64(stats.QueueDepth))
	for _, status := range []Status{StatusLoaded, StatusActive, StatusError, StatusInitializing, StatusUnloading} {
		m.metrics.InstancesByStatus.WithLabelValues(string(status)).Set(float64(byStatus[status]))
	}
	m.metrics.RegisteredDescriptors.Set(float64(m.registry.Count()))

	return MetricsSnapshot{
		Instances:    byStatus,
		Registered:   m.registry.Count(),
		Bus:          stats,
		Uptime:       time.Since(m.started),
		LoadsTotal:   m.counters.loads.Load(),
		LoadFailures: m.counters.loadFailures.Load(),
		ExecTotal:    m.counters.execs.Load(),
		ExecFailures: m.counters.execFailures.Load(),
	}
}

// Shutdown unloads every instance and stops the bus and loader. Instances
// are unloaded in reverse dependency order so dependents go first.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	for _, info := range m.shutdownOrder() {
		if err := m.UnloadPlugin(ctx, info.Name); err != nil {
			m.log.WithField("plugin", info.Name).Warnf("unload during shutdown failed: %v", err)
		}
	}

	err := m.bus.Close(5 * time.Second)
	m.loader.Close()
	m.log.Info("plugin manager shut down")
	return err
}

// shutdownOrder sorts live instances so that dependents unload before the
// plugins they depend on: reverse topological order over the live set.
func (m *Manager) shutdownOrder() []InstanceInfo {
	infos := m.Instances()
	byName := make(map[string]InstanceInfo, len(infos))
	descs := make([]*descriptor.Descriptor, 0, len(infos))
	for _, info := range infos {
		byName[info.Name] = info
		descs = append(descs, info.Descriptor)
	}

	ordered := registry.SortDependenciesFirst(descs)
	out := make([]InstanceInfo, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		out = append(out, byName[ordered[i].Name])
	}
	return out
}

func (m *Manager) instance(name, operation string) (*Instance, error) {
	m.mu.RLock()
	inst := m.instances[name]
	m.mu.RUnlock()
	if inst == nil {
		return nil, &StateError{Plugin: name, Operation: operation, Current: StatusUnloaded, Required: StatusLoaded}
	}
	return inst, nil
}

// unloadedDependencies returns closure members without a live instance in
// at least the Loaded state, sorted for deterministic errors.
func (m *Manager) unloadedDependencies(closure []*descriptor.Descriptor) []string {
	var missing []string
	for _, dep := range closure {
		m.mu.RLock()
		inst := m.instances[dep.Name]
		m.mu.RUnlock()
		if inst == nil {
			missing = append(missing, dep.Name)
			continue
		}
		switch inst.currentStatus() {
		case StatusLoaded, StatusActive:
		default:
			missing = append(missing, dep.Name)
		}
	}
	sort.Strings(missing)
	return missing
}

// checkActivationDeps verifies every activation_required dependency is
// Active before the dependent starts.
func (m *Manager) checkActivationDeps(d *descriptor.Descriptor) error {
	for _, dep := range d.Dependencies {
		if !dep.ActivationRequired {
			continue
		}
		m.mu.RLock()
		inst := m.instances[dep.Name]
		m.mu.RUnlock()
		if inst == nil || inst.currentStatus() != StatusActive {
			return &StartError{Plugin: d.Name,
				Err: fmt.Errorf("dependency %s requires activation but is not active", dep.Name)}
		}
	}
	return nil
}

// callPlugin invokes a lifecycle function with panic recovery, holding the
// instance lock for the duration of the call.
func (m *Manager) callPlugin(ctx context.Context, inst *Instance, name string, fn func(context.Context) error) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return m.callPluginLocked(ctx, inst.descriptor.Name, name, fn)
}

// callPluginLocked invokes a lifecycle function with panic recovery. A
// panicking plugin surfaces as an error, never as a crashed host.
func (m *Manager) callPluginLocked(ctx context.Context, pluginName, fnName string, fn func(context.Context) error) (err error) {
	defer func() {
		if rerr := observability.MustRecover(recover()); rerr != nil {
			m.log.WithField("plugin", pluginName).
				Errorf("plugin %s panicked: %v\n%s", fnName, rerr, string(debug.Stack()))
			err = fmt.Errorf("%s failed: %w", fnName, rerr)
		}
	}()
	return fn(ctx)
}

func (m *Manager) publish(event *plugin.Event) error {
	if err := m.bus.Publish(event); err != nil {
		return err
	}
	m.metrics.EventsPublishedTotal.Inc()
	return nil
}

func (m *Manager) transition(name string, to Status) {
	m.metrics.LifecycleTransitionsTotal.WithLabelValues(string(to)).Inc()
	m.log.WithFields(logrus.Fields{"plugin": name, "status": to}).Debug("lifecycle transition")
}

func (m *Manager) countLoad(strategy loader.Strategy, ok bool) {
	m.counters.loads.Add(1)
	status := "success"
	if !ok {
		m.counters.loadFailures.Add(1)
		status = "error"
	}
	m.metrics.PluginLoadsTotal.WithLabelValues(string(strategy), status).Inc()
}

// countingViolationStore increments the violation metric before delegating
// to the real store.
type countingViolationStore struct {
	inner   sandbox.ViolationStore
	metrics *observability.Metrics
}

func (s *countingViolationStore) Record(v sandbox.Violation) error {
	s.metrics.SandboxViolationsTotal.WithLabelValues(string(v.Type)).Inc()
	if s.inner == nil {
		return nil
	}
	return s.inner.Record(v)
}

func (s *countingViolationStore) ForInstance(instanceID string) ([]sandbox.Violation, error) {
	if s.inner == nil {
		return nil, nil
	}
	return s.inner.ForInstance(instanceID)
}

func (s *countingViolationStore) All() ([]sandbox.Violation, error) {
	if s.inner == nil {
		return nil, nil
	}
	return s.inner.All()
}
