package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/armature-dev/armature/pkg/async"
	"github.com/armature-dev/armature/pkg/observability"
	"github.com/armature-dev/armature/pkg/plugin"
)

// Defaults applied when Config fields are zero.
const (
	DefaultQueueSize       = 256
	DefaultWorkers         = 8
	DefaultDispatchTimeout = 30 * time.Second
)

// Handler is a host-side event callback registered directly on the bus.
type Handler func(ctx context.Context, event *plugin.Event)

// Config sizes the bus queue and dispatch pool.
type Config struct {
	QueueSize       int
	Workers         int
	DispatchTimeout time.Duration
}

// Stats is a point-in-time snapshot of bus activity.
type Stats struct {
	Published     uint64 `json:"published"`
	Dispatched    uint64 `json:"dispatched"`
	HandlerPanics uint64 `json:"handler_panics"`
	QueueDepth    int    `json:"queue_depth"`
	Subscribers   int    `json:"subscribers"`
	HostHandlers  int    `json:"host_handlers"`
}

type subscription struct {
	name   string
	types  map[string]bool
	handle func(ctx context.Context, event *plugin.Event)
}

// Bus routes events between plugins and the host. A single consumer loop
// drains the queue, so events are always dequeued in FIFO order; delivery to
// individual handlers fans out to a worker pool, so handler completion order
// across subscribers is not guaranteed. A panicking handler never blocks
// delivery to the remaining subscribers of the same event.
type Bus struct {
	queue chan *plugin.Event
	pool  *async.WorkerPool
	log   *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	subscribers  map[string]*subscription
	hostHandlers map[string][]Handler

	published     atomic.Uint64
	dispatched    atomic.Uint64
	handlerPanics atomic.Uint64

	drainDone chan struct{}
	closeOnce sync.Once
}

// New creates and starts an event bus. The drain loop runs until Close is
// called or ctx is cancelled.
func New(ctx context.Context, cfg Config, log *logrus.Logger) *Bus {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}
	if log == nil {
		log = logrus.New()
	}

	ctx, cancel := context.WithCancel(ctx)
	b := &Bus{
		queue:        make(chan *plugin.Event, cfg.QueueSize),
		pool:         async.NewWorkerPool(ctx, cfg.Workers, "event dispatch", cfg.DispatchTimeout, log),
		log:          log,
		ctx:          ctx,
		cancel:       cancel,
		subscribers:  make(map[string]*subscription),
		hostHandlers: make(map[string][]Handler),
		drainDone:    make(chan struct{}),
	}

	go b.drain()
	return b
}

// Publish enqueues an event. Blocks while the queue is full; returns an
// error once the bus is closed or the event is nil.
func (b *Bus) Publish(event *plugin.Event) error {
	if event == nil {
		return fmt.Errorf("cannot publish nil event")
	}

	select {
	case b.queue <- event:
		b.published.Add(1)
		return nil
	case <-b.ctx.Done():
		return fmt.Errorf("event bus is closed")
	}
}

// Subscribe registers a plugin instance's event handler under the given
// event types. Re-subscribing the same name replaces the previous entry.
func (b *Bus) Subscribe(name string, types []string, handle func(ctx context.Context, event *plugin.Event)) {
	sub := &subscription{name: name, types: make(map[string]bool, len(types)), handle: handle}
	for _, t := range types {
		sub.types[t] = true
	}

	b.mu.Lock()
	b.subscribers[name] = sub
	b.mu.Unlock()

	b.log.WithFields(logrus.Fields{"plugin": name, "types": types}).Debug("subscribed to event bus")
}

// Unsubscribe removes a plugin instance from delivery. Safe to call for a
// name that was never subscribed.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	delete(b.subscribers, name)
	b.mu.Unlock()
}

// RegisterHandler attaches a host-side callback for an event type,
// bypassing the plugin contract entirely.
func (b *Bus) RegisterHandler(eventType string, handler Handler) {
	b.mu.Lock()
	b.hostHandlers[eventType] = append(b.hostHandlers[eventType], handler)
	b.mu.Unlock()
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	subs := len(b.subscribers)
	hosts := 0
	for _, handlers := range b.hostHandlers {
		hosts += len(handlers)
	}
	b.mu.RUnlock()

	return Stats{
		Published:     b.published.Load(),
		Dispatched:    b.dispatched.Load(),
		HandlerPanics: b.handlerPanics.Load(),
		QueueDepth:    len(b.queue),
		Subscribers:   subs,
		HostHandlers:  hosts,
	}
}

// Close stops the drain loop and shuts down the dispatch pool. In-flight
// handler calls get up to the dispatch timeout to finish.
func (b *Bus) Close(timeout time.Duration) error {
	var err error
	b.closeOnce.Do(func() {
		b.cancel()
		select {
		case <-b.drainDone:
		case <-time.After(timeout):
		}
		err = b.pool.Shutdown(timeout)
	})
	return err
}

// drain is the single consumer loop. It alone reads the queue, which is
// what makes dequeue order FIFO.
func (b *Bus) drain() {
	defer close(b.drainDone)
	for {
		select {
		case <-b.ctx.Done():
			return
		case event := <-b.queue:
			b.dispatch(event)
		}
	}
}

// dispatch fans one event out to every matching handler via the worker
// pool. Targeted events go only to the named instance; broadcasts go to
// every subscriber of the event type.
func (b *Bus) dispatch(event *plugin.Event) {
	b.mu.RLock()
	var targets []*subscription
	if event.Target != "" {
		if sub, ok := b.subscribers[event.Target]; ok {
			targets = append(targets, sub)
		}
	} else {
		for _, sub := range b.subscribers {
			if sub.types[event.Type] {
				targets = append(targets, sub)
			}
		}
	}
	hosts := append([]Handler(nil), b.hostHandlers[event.Type]...)
	b.mu.RUnlock()

	for _, sub := range targets {
		b.submit(event, sub.name, sub.handle)
	}
	for _, handler := range hosts {
		b.submit(event, "host", handler)
	}
}

func (b *Bus) submit(event *plugin.Event, name string, handle func(ctx context.Context, event *plugin.Event)) {
	err := b.pool.Submit(func(ctx context.Context) error {
		defer observability.RecoverPanicWithCallback(b.log,
			fmt.Sprintf("event handler %s (%s)", name, event.Type),
			func() { b.handlerPanics.Add(1) })
		handle(ctx, event)
		b.dispatched.Add(1)
		return nil
	})
	if err != nil {
		b.log.WithFields(logrus.Fields{
			"handler":    name,
			"event_type": event.Type,
		}).Warnf("dropping event dispatch: %v", err)
	}
}
