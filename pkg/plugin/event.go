package plugin

import (
	"time"

	"github.com/google/uuid"
)

// Event is routed between plugins and the host through the event bus. Events
// are ephemeral: they exist only in the queue and during handler dispatch.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"event_type"`
	Source    string    `json:"source"`
	Target    string    `json:"target,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds a broadcast event from the given source.
func NewEvent(eventType, source string, payload any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// NewTargetedEvent builds an event addressed to a single plugin.
func NewTargetedEvent(eventType, source, target string, payload any) *Event {
	e := NewEvent(eventType, source, payload)
	e.Target = target
	return e
}
