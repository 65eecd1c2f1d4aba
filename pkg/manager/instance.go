package manager

import (
	"sync"
	"time"

	"github.com/armature-dev/armature/pkg/descriptor"
	"github.com/armature-dev/armature/pkg/loader"
	"github.com/armature-dev/armature/pkg/plugin"
)

// Instance is the mutable runtime record of a loaded plugin. The manager
// owns the plugin object exclusively for the instance's lifetime.
//
// All lifecycle transitions for one instance are serialized through mu, so a
// concurrent start and unload for the same plugin cannot interleave; the
// loser observes a StateError.
type Instance struct {
	mu sync.Mutex

	descriptor *descriptor.Descriptor
	plugin     plugin.Plugin
	strategy   loader.Strategy
	instanceID string
	loadedAt   time.Time

	status    Status
	lastError error

	// restarts counts health-triggered restarts against the budget.
	restarts int
}

// InstanceInfo is a read-only snapshot of an instance.
type InstanceInfo struct {
	Name       string                 `json:"name"`
	Version    string                 `json:"version"`
	Status     Status                 `json:"status"`
	Strategy   loader.Strategy        `json:"strategy"`
	InstanceID string                 `json:"instance_id"`
	LoadedAt   time.Time              `json:"loaded_at"`
	LastError  string                 `json:"last_error,omitempty"`
	Restarts   int                    `json:"restarts,omitempty"`
	Descriptor *descriptor.Descriptor `json:"descriptor,omitempty"`
}

func (i *Instance) info() InstanceInfo {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.infoLocked()
}

func (i *Instance) infoLocked() InstanceInfo {
	info := InstanceInfo{
		Name:       i.descriptor.Name,
		Version:    i.descriptor.Version,
		Status:     i.status,
		Strategy:   i.strategy,
		InstanceID: i.instanceID,
		LoadedAt:   i.loadedAt,
		Restarts:   i.restarts,
		Descriptor: i.descriptor.Clone(),
	}
	if i.lastError != nil {
		info.LastError = i.lastError.Error()
	}
	return info
}

// currentStatus reads the status under the instance lock.
func (i *Instance) currentStatus() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// subscriptions returns the event types the plugin wants from the bus.
func (i *Instance) subscriptions() []string {
	if sub, ok := i.plugin.(plugin.Subscriber); ok {
		return sub.Subscriptions()
	}
	return nil
}
