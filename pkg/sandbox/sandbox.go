package sandbox

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/sirupsen/logrus"

	"github.com/armature-dev/armature/pkg/observability"
)

// ErrorKind classifies why a sandboxed call failed.
type ErrorKind string

const (
	ErrKindTimeout   ErrorKind = "timeout"
	ErrKindMemory    ErrorKind = "memory-limit"
	ErrKindCPU       ErrorKind = "cpu-limit"
	ErrKindModule    ErrorKind = "module-policy"
	ErrKindPath      ErrorKind = "path-policy"
	ErrKindNetwork   ErrorKind = "network-policy"
	ErrKindNotFound  ErrorKind = "no-reservation"
	ErrKindCancelled ErrorKind = "cancelled"
)

// Error is returned when a sandboxed call is rejected or cancelled.
type Error struct {
	Kind       ErrorKind
	InstanceID string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("sandbox %s [%s]: %s", e.InstanceID, e.Kind, e.Message)
}

// Access declares the modules, filesystem paths and network endpoints a
// callable intends to touch. Declared accesses are checked against policy
// before the callable runs, so disallowed accesses abort before any effect.
type Access struct {
	Modules          []string
	Paths            []string
	NetworkEndpoints []string
}

// Sandbox manages per-instance execution reservations. One Sandbox serves
// the whole host; reservations are created at instance load and destroyed at
// unload.
type Sandbox struct {
	mu           sync.Mutex
	reservations map[string]*reservation

	store ViolationStore
	log   *logrus.Logger
	proc  *process.Process
}

type reservation struct {
	policy Policy
	// execMu serializes Run calls when the policy requests it.
	execMu sync.Mutex
}

// New creates a sandbox backed by the given violation store.
func New(store ViolationStore, log *logrus.Logger) *Sandbox {
	if store == nil {
		store = NewMemoryViolationStore()
	}
	if log == nil {
		log = logrus.New()
	}

	// Resource sampling watches the host process; in-process limits are
	// approximate by nature (see package docs).
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warnf("cannot attach process sampler: %v", err)
	}

	return &Sandbox{
		reservations: make(map[string]*reservation),
		store:        store,
		log:          log,
		proc:         proc,
	}
}

// Create reserves resource accounting for the instance and records its
// active policy. Fails if a reservation already exists.
func (s *Sandbox) Create(instanceID string, policy Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reservations[instanceID]; exists {
		return fmt.Errorf("sandbox already exists for instance %s", instanceID)
	}
	if policy.SamplingInterval <= 0 {
		policy.SamplingInterval = DefaultSamplingInterval
	}
	s.reservations[instanceID] = &reservation{policy: policy}
	return nil
}

// Destroy releases the instance's reservation. Idempotent: destroying an
// unknown or already-destroyed instance is a no-op.
func (s *Sandbox) Destroy(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reservations, instanceID)
}

// Policy returns the active policy for the instance.
func (s *Sandbox) Policy(instanceID string) (Policy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[instanceID]
	if !ok {
		return Policy{}, false
	}
	return res.policy, true
}

// Violations returns the audit records for the instance.
func (s *Sandbox) Violations(instanceID string) ([]Violation, error) {
	return s.store.ForInstance(instanceID)
}

// Run executes fn under the instance's policy. Declared accesses are checked
// first; then a watchdog samples memory and CPU usage at the policy's
// interval and cancels execution on a breach or when the wall-clock budget
// expires. All sandbox resources for the call are released on every exit
// path, including cancellation and panics inside fn.
func (s *Sandbox) Run(ctx context.Context, instanceID string, access Access, fn func(context.Context) (any, error)) (any, error) {
	s.mu.Lock()
	res, ok := s.reservations[instanceID]
	s.mu.Unlock()
	if !ok {
		return nil, &Error{Kind: ErrKindNotFound, InstanceID: instanceID, Message: "no sandbox reservation"}
	}

	if err := s.checkAccess(instanceID, &res.policy, access); err != nil {
		return nil, err
	}

	if res.policy.SerializeExecution {
		res.execMu.Lock()
		defer res.execMu.Unlock()
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if res.policy.MaxExecutionTime > 0 {
		runCtx, cancel = context.WithTimeout(ctx, res.policy.MaxExecutionTime)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// The watchdog reports the breach kind before cancelling.
	breachCh := make(chan ViolationType, 1)
	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		defer observability.RecoverPanic(s.log, fmt.Sprintf("sandbox watchdog %s", instanceID))
		s.watchdog(runCtx, instanceID, &res.policy, breachCh, cancel)
	}()

	type result struct {
		out any
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		defer func() {
			if rerr := observability.MustRecover(recover()); rerr != nil {
				s.log.WithField("instance", instanceID).
					Errorf("panic in sandboxed call: %v\n%s", rerr, debug.Stack())
				resultCh <- result{err: fmt.Errorf("panic in sandboxed call: %w", rerr)}
			}
		}()
		out, err := fn(runCtx)
		resultCh <- result{out: out, err: err}
	}()

	select {
	case r := <-resultCh:
		cancel()
		<-watchdogDone
		return r.out, r.err
	case <-runCtx.Done():
		<-watchdogDone
		select {
		case breach := <-breachCh:
			return nil, &Error{Kind: breachKind(breach), InstanceID: instanceID,
				Message: fmt.Sprintf("execution cancelled: %s limit exceeded", breach)}
		default:
		}
		if runCtx.Err() == context.DeadlineExceeded {
			v := newViolation(instanceID, ViolationTimeout,
				fmt.Sprintf("execution exceeded %s", res.policy.MaxExecutionTime), "high")
			s.record(v)
			return nil, &Error{Kind: ErrKindTimeout, InstanceID: instanceID,
				Message: fmt.Sprintf("execution exceeded %s", res.policy.MaxExecutionTime)}
		}
		return nil, &Error{Kind: ErrKindCancelled, InstanceID: instanceID, Message: "execution cancelled"}
	}
}

// watchdog samples usage until ctx is done, cancelling on the first breach.
func (s *Sandbox) watchdog(ctx context.Context, instanceID string, policy *Policy, breachCh chan<- ViolationType, cancel context.CancelFunc) {
	if s.proc == nil || (policy.MaxMemory <= 0 && policy.MaxCPUPercent <= 0) {
		return
	}

	ticker := time.NewTicker(policy.SamplingInterval)
	defer ticker.Stop()

	// Prime the CPU sampler so the next Percent call measures this window.
	_, _ = s.proc.PercentWithContext(ctx, 0)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if policy.MaxMemory > 0 {
				if mem, err := s.proc.MemoryInfoWithContext(ctx); err == nil && int64(mem.RSS) > policy.MaxMemory {
					v := newViolation(instanceID, ViolationMemory,
						fmt.Sprintf("memory usage %d exceeds limit %d", mem.RSS, policy.MaxMemory), "critical")
					s.record(v)
					breachCh <- ViolationMemory
					cancel()
					return
				}
			}
			if policy.MaxCPUPercent > 0 {
				if cpu, err := s.proc.PercentWithContext(ctx, 0); err == nil && cpu > policy.MaxCPUPercent {
					v := newViolation(instanceID, ViolationCPU,
						fmt.Sprintf("cpu usage %.1f%% exceeds limit %.1f%%", cpu, policy.MaxCPUPercent), "high")
					s.record(v)
					breachCh <- ViolationCPU
					cancel()
					return
				}
			}
		}
	}
}

// CheckModule enforces module policy for an access intercepted mid-call
// (the Lua require hook routes through here). A denial is recorded as a
// violation and returned as a module-policy error.
func (s *Sandbox) CheckModule(instanceID, module string) error {
	s.mu.Lock()
	res, ok := s.reservations[instanceID]
	s.mu.Unlock()
	if !ok {
		return &Error{Kind: ErrKindNotFound, InstanceID: instanceID, Message: "no sandbox reservation"}
	}
	if res.policy.ModuleAllowed(module) {
		return nil
	}
	s.record(newViolation(instanceID, ViolationModule,
		fmt.Sprintf("module access denied: %s", module), "high"))
	return &Error{Kind: ErrKindModule, InstanceID: instanceID,
		Message: fmt.Sprintf("module access denied: %s", module)}
}

// CheckPath enforces filesystem policy for an intercepted access.
func (s *Sandbox) CheckPath(instanceID, path string) error {
	s.mu.Lock()
	res, ok := s.reservations[instanceID]
	s.mu.Unlock()
	if !ok {
		return &Error{Kind: ErrKindNotFound, InstanceID: instanceID, Message: "no sandbox reservation"}
	}
	if res.policy.PathAllowed(path) {
		return nil
	}
	s.record(newViolation(instanceID, ViolationPath,
		fmt.Sprintf("filesystem access denied: %s", path), "high"))
	return &Error{Kind: ErrKindPath, InstanceID: instanceID,
		Message: fmt.Sprintf("filesystem access denied: %s", path)}
}

// CheckNetwork enforces network policy for an intercepted access.
func (s *Sandbox) CheckNetwork(instanceID, endpoint string) error {
	s.mu.Lock()
	res, ok := s.reservations[instanceID]
	s.mu.Unlock()
	if !ok {
		return &Error{Kind: ErrKindNotFound, InstanceID: instanceID, Message: "no sandbox reservation"}
	}
	if res.policy.AllowNetworkAccess {
		return nil
	}
	s.record(newViolation(instanceID, ViolationNetwork,
		fmt.Sprintf("network access denied: %s", endpoint), "high"))
	return &Error{Kind: ErrKindNetwork, InstanceID: instanceID,
		Message: fmt.Sprintf("network access denied: %s", endpoint)}
}

func (s *Sandbox) checkAccess(instanceID string, policy *Policy, access Access) error {
	for _, module := range access.Modules {
		if !policy.ModuleAllowed(module) {
			s.record(newViolation(instanceID, ViolationModule,
				fmt.Sprintf("module access denied: %s", module), "high"))
			return &Error{Kind: ErrKindModule, InstanceID: instanceID,
				Message: fmt.Sprintf("module access denied: %s", module)}
		}
	}
	for _, path := range access.Paths {
		if !policy.PathAllowed(path) {
			s.record(newViolation(instanceID, ViolationPath,
				fmt.Sprintf("filesystem access denied: %s", path), "high"))
			return &Error{Kind: ErrKindPath, InstanceID: instanceID,
				Message: fmt.Sprintf("filesystem access denied: %s", path)}
		}
	}
	if len(access.NetworkEndpoints) > 0 && !policy.AllowNetworkAccess {
		s.record(newViolation(instanceID, ViolationNetwork,
			fmt.Sprintf("network access denied: %s", access.NetworkEndpoints[0]), "high"))
		return &Error{Kind: ErrKindNetwork, InstanceID: instanceID,
			Message: fmt.Sprintf("network access denied: %s", access.NetworkEndpoints[0])}
	}
	return nil
}

func (s *Sandbox) record(v Violation) {
	if err := s.store.Record(v); err != nil {
		s.log.Warnf("failed to record violation for %s: %v", v.InstanceID, err)
	}
}

func breachKind(v ViolationType) ErrorKind {
	switch v {
	case ViolationMemory:
		return ErrKindMemory
	case ViolationCPU:
		return ErrKindCPU
	default:
		return ErrKindTimeout
	}
}
