package registry

import (
	"fmt"
	"strings"
)

// DiscoveryError reports an artifact that could not be read or parsed during
// a scan. Scans continue past discovery errors; the error is surfaced in the
// scan report.
type DiscoveryError struct {
	Path string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("failed to discover %s: %v", e.Path, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// DependencyError reports required dependencies that could not be resolved:
// either absent from the catalog (Missing) or resolved elsewhere in the
// closure to a version that does not satisfy this requirement (Conflicts).
type DependencyError struct {
	Plugin    string
	Missing   []string
	Conflicts []string
}

func (e *DependencyError) Error() string {
	msg := fmt.Sprintf("plugin %s has unresolved required dependencies", e.Plugin)
	if len(e.Missing) > 0 {
		msg += fmt.Sprintf(": missing %s", strings.Join(e.Missing, ", "))
	}
	if len(e.Conflicts) > 0 {
		msg += fmt.Sprintf(": conflicting %s", strings.Join(e.Conflicts, ", "))
	}
	return msg
}

// CycleError reports a dependency cycle. Cycles are rejected both at
// registration and at resolution time.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Chain, " -> "))
}

// NotFoundError reports a lookup for an unregistered plugin.
type NotFoundError struct {
	Name    string
	Version string
}

func (e *NotFoundError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("plugin not registered: %s@%s", e.Name, e.Version)
	}
	return fmt.Sprintf("plugin not registered: %s", e.Name)
}
