package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Watcher keeps the catalog current: filesystem events on the plugin
// directories trigger a debounced rescan, and an optional cron schedule
// forces periodic full rescans regardless of events.
type Watcher struct {
	registry *Registry
	paths    []string
	debounce time.Duration

	fsw  *fsnotify.Watcher
	cron *cron.Cron
	log  *logrus.Logger

	// OnRescan, when set, is invoked after every completed rescan.
	OnRescan func(*ScanReport)

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewWatcher creates a watcher over the given plugin locations. schedule is
// a cron expression ("@every 5m", "0 * * * *"); empty disables periodic
// rescans.
func NewWatcher(registry *Registry, paths []string, schedule string, log *logrus.Logger) (*Watcher, error) {
	if log == nil {
		log = logrus.New()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	w := &Watcher{
		registry: registry,
		paths:    paths,
		debounce: 500 * time.Millisecond,
		fsw:      fsw,
		log:      log,
		stopped:  make(chan struct{}),
	}

	for _, path := range paths {
		if err := fsw.Add(path); err != nil {
			w.log.Warnf("cannot watch plugin directory %s: %v", path, err)
		}
	}

	if schedule != "" {
		w.cron = cron.New()
		if _, err := w.cron.AddFunc(schedule, func() { w.rescan(context.Background()) }); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("invalid rescan schedule %q: %w", schedule, err)
		}
	}

	return w, nil
}

// Start runs the watch loop until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	if w.cron != nil {
		w.cron.Start()
	}

	go func() {
		var timer *time.Timer
		fire := make(chan struct{}, 1)

		for {
			select {
			case <-ctx.Done():
				w.Stop()
				return
			case <-w.stopped:
				return
			case ev, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				// Debounce bursts of events from a single artifact update.
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(w.debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				w.log.Warnf("filesystem watcher error: %v", err)
			case <-fire:
				w.rescan(ctx)
			}
		}
	}()
}

// Stop shuts the watcher down. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopped)
		w.fsw.Close()
		if w.cron != nil {
			w.cron.Stop()
		}
	})
}

func (w *Watcher) rescan(ctx context.Context) {
	report, err := w.registry.Scan(ctx, w.paths)
	if err != nil {
		w.log.Warnf("rescan aborted: %v", err)
		return
	}
	if w.OnRescan != nil {
		w.OnRescan(report)
	}
}
