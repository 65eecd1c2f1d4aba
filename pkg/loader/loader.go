package loader

import (
	"context"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/armature-dev/armature/pkg/descriptor"
	"github.com/armature-dev/armature/pkg/plugin"
	"github.com/armature-dev/armature/pkg/sandbox"
)

// DefaultCacheSize bounds the number of cached instances.
const DefaultCacheSize = 128

// Options tune a single Load call.
type Options struct {
	// Policy is the sandbox policy for the sandboxed strategy. Nil applies
	// the medium preset.
	Policy *sandbox.Policy
	// ForceReload reloads the artifact even when a cached instance exists;
	// the cache entry is replaced.
	ForceReload bool
	// SkipChecksum disables artifact checksum verification.
	SkipChecksum bool
}

// LoadResult is the outcome of a successful load.
type LoadResult struct {
	Descriptor *descriptor.Descriptor
	Plugin     plugin.Plugin
	Strategy   Strategy
	InstanceID string
	LoadTime   time.Duration
	Cached     bool
}

type entry struct {
	result *LoadResult
	close  func()
}

// Loader produces runnable plugin instances from descriptors. Successful
// loads are cached by name@version; concurrent loads for the same key are
// collapsed into one underlying load.
type Loader struct {
	sb    *sandbox.Sandbox
	cache *lru.Cache[string, *entry]
	group singleflight.Group
	log   *logrus.Logger
}

// New creates a loader. The sandbox is used for the sandboxed strategy.
func New(sb *sandbox.Sandbox, log *logrus.Logger) (*Loader, error) {
	if log == nil {
		log = logrus.New()
	}
	l := &Loader{sb: sb, log: log}

	cache, err := lru.NewWithEvict[string, *entry](DefaultCacheSize, func(key string, e *entry) {
		if e.close != nil {
			e.close()
		}
		log.Debugf("released loader resources for %s", key)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create loader cache: %w", err)
	}
	l.cache = cache
	return l, nil
}

// Load produces a runnable instance for the descriptor using the given
// strategy. Cached instances are returned as-is unless opts.ForceReload is
// set, in which case the artifact is reloaded and the cache entry replaced.
func (l *Loader) Load(ctx context.Context, d *descriptor.Descriptor, strategy Strategy, opts Options) (*LoadResult, error) {
	key := d.Key()

	if !opts.ForceReload {
		if e, ok := l.cache.Get(key); ok {
			cached := *e.result
			cached.Cached = true
			return &cached, nil
		}
	} else {
		l.cache.Remove(key)
	}

	out, err, _ := l.group.Do(key, func() (any, error) {
		// A racing caller may have populated the cache while we waited.
		if e, ok := l.cache.Get(key); ok {
			cached := *e.result
			cached.Cached = true
			return &cached, nil
		}
		return l.loadLocked(ctx, d, strategy, opts)
	})
	if err != nil {
		return nil, err
	}
	return out.(*LoadResult), nil
}

// Unload drops the cache entry for (name, version) and releases
// loader-owned resources: interpreter states are closed and sandbox
// reservations destroyed.
func (l *Loader) Unload(name, version string) {
	l.cache.Remove(descriptor.Key(name, version))
}

// GetCached returns the cached instance for (name, version), if any.
func (l *Loader) GetCached(name, version string) (*LoadResult, bool) {
	e, ok := l.cache.Get(descriptor.Key(name, version))
	if !ok {
		return nil, false
	}
	return e.result, true
}

// Close releases every cached instance.
func (l *Loader) Close() {
	l.cache.Purge()
}

func (l *Loader) loadLocked(ctx context.Context, d *descriptor.Descriptor, strategy Strategy, opts Options) (*LoadResult, error) {
	start := time.Now()
	instanceID := uuid.NewString()

	// The sandbox reservation exists before the artifact is evaluated so
	// that module accesses during script load are already policed.
	if strategy.Sandboxed() {
		policy := sandbox.PolicyForLevel(sandbox.LevelMedium)
		if opts.Policy != nil {
			policy = *opts.Policy
		}
		if serr := l.sb.Create(instanceID, policy); serr != nil {
			return nil, &LoadError{Kind: ErrKindInstantiate, Plugin: d.Name,
				Message: "failed to create sandbox", Err: serr}
		}
	}

	var (
		p       plugin.Plugin
		cleanup = func() {}
		err     error
	)

	switch strategy {
	case StrategyDirect:
		p, err = l.loadDirect(d)
	case StrategyDynamic, StrategyIsolated, StrategySandboxed:
		if d.Checksum != "" && !opts.SkipChecksum {
			err = l.verifyChecksum(d)
		}
		if err == nil {
			var lp *luaPlugin
			lp, err = newLuaPlugin(ctx, d, strategy, l.sb, instanceID)
			if err == nil {
				p = lp
				cleanup = lp.close
			}
		}
	default:
		err = fmt.Errorf("unknown loading strategy: %q", strategy)
	}
	if err != nil {
		if strategy.Sandboxed() {
			l.sb.Destroy(instanceID)
		}
		return nil, err
	}

	if strategy.Sandboxed() {
		inner := cleanup
		cleanup = func() {
			l.sb.Destroy(instanceID)
			inner()
		}
	}

	result := &LoadResult{
		Descriptor: d.Clone(),
		Plugin:     p,
		Strategy:   strategy,
		InstanceID: instanceID,
		LoadTime:   time.Since(start),
	}
	l.cache.Add(d.Key(), &entry{result: result, close: cleanup})

	l.log.WithFields(logrus.Fields{
		"plugin":   d.Name,
		"version":  d.Version,
		"strategy": strategy,
	}).Info("loaded plugin")
	return result, nil
}

// loadDirect resolves the factory entry point for a compiled-in plugin. The
// loader never guesses: zero candidates or an undisambiguated plurality are
// load errors.
func (l *Loader) loadDirect(d *descriptor.Descriptor) (plugin.Plugin, error) {
	candidates := plugin.Lookup(d.ArtifactLocation)
	if len(candidates) == 0 {
		return nil, &LoadError{Kind: ErrKindNoEntryPoint, Plugin: d.Name,
			Message: fmt.Sprintf("no factory registered for %s", d.ArtifactLocation)}
	}

	var factory plugin.Factory
	switch {
	case d.EntryPoint != "":
		f, ok := candidates[d.EntryPoint]
		if !ok {
			return nil, &LoadError{Kind: ErrKindNoEntryPoint, Plugin: d.Name,
				Message: fmt.Sprintf("entry point %q not found in %s", d.EntryPoint, d.ArtifactLocation)}
		}
		factory = f
	case len(candidates) == 1:
		for _, f := range candidates {
			factory = f
		}
	default:
		names := make([]string, 0, len(candidates))
		for name := range candidates {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, &LoadError{Kind: ErrKindAmbiguousEntryPoint, Plugin: d.Name,
			Message: fmt.Sprintf("multiple entry points %v in %s and no entry_point hint", names, d.ArtifactLocation)}
	}

	p, err := factory(d)
	if err != nil {
		return nil, &LoadError{Kind: ErrKindInstantiate, Plugin: d.Name,
			Message: "factory failed", Err: err}
	}
	return p, nil
}

func (l *Loader) verifyChecksum(d *descriptor.Descriptor) error {
	sum, err := descriptor.ChecksumFile(d.ArtifactLocation)
	if err != nil {
		return &LoadError{Kind: ErrKindArtifact, Plugin: d.Name,
			Message: "cannot read artifact for checksum", Err: err}
	}
	if sum != d.Checksum {
		return &LoadError{Kind: ErrKindChecksum, Plugin: d.Name,
			Message: fmt.Sprintf("checksum mismatch: manifest %s, artifact %s", d.Checksum, sum)}
	}
	return nil
}
