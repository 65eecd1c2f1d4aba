package sandbox

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ViolationType classifies a policy breach.
type ViolationType string

const (
	ViolationMemory  ViolationType = "memory"
	ViolationCPU     ViolationType = "cpu"
	ViolationTimeout ViolationType = "timeout"
	ViolationModule  ViolationType = "module"
	ViolationPath    ViolationType = "path"
	ViolationNetwork ViolationType = "network"
)

// Violation is an append-only audit record of a sandbox policy breach. It is
// never mutated after being recorded.
type Violation struct {
	ID          string        `json:"id"`
	InstanceID  string        `json:"instance_id"`
	Type        ViolationType `json:"type"`
	Description string        `json:"description"`
	Severity    string        `json:"severity"`
	Timestamp   time.Time     `json:"timestamp"`
}

func newViolation(instanceID string, vtype ViolationType, description, severity string) Violation {
	return Violation{
		ID:          uuid.NewString(),
		InstanceID:  instanceID,
		Type:        vtype,
		Description: description,
		Severity:    severity,
		Timestamp:   time.Now().UTC(),
	}
}

// ViolationStore persists violations.
type ViolationStore interface {
	Record(v Violation) error
	ForInstance(instanceID string) ([]Violation, error)
	All() ([]Violation, error)
}

// MemoryViolationStore keeps violations in memory, in arrival order.
type MemoryViolationStore struct {
	mu         sync.RWMutex
	violations []Violation
}

// NewMemoryViolationStore creates an empty in-memory store.
func NewMemoryViolationStore() *MemoryViolationStore {
	return &MemoryViolationStore{}
}

func (s *MemoryViolationStore) Record(v Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = append(s.violations, v)
	return nil
}

func (s *MemoryViolationStore) ForInstance(instanceID string) ([]Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Violation
	for _, v := range s.violations {
		if v.InstanceID == instanceID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *MemoryViolationStore) All() ([]Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Violation(nil), s.violations...), nil
}
