package loader

import "fmt"

// LoadErrorKind classifies an artifact load failure.
type LoadErrorKind string

const (
	// ErrKindNoEntryPoint means no type conforming to the plugin contract
	// was found in the artifact.
	ErrKindNoEntryPoint LoadErrorKind = "no-entry-point"
	// ErrKindAmbiguousEntryPoint means more than one conforming type was
	// found and the descriptor carried no entry_point hint to pick one.
	ErrKindAmbiguousEntryPoint LoadErrorKind = "ambiguous-entry-point"
	// ErrKindArtifact means the artifact could not be read or executed.
	ErrKindArtifact LoadErrorKind = "artifact"
	// ErrKindChecksum means the artifact bytes did not match the
	// descriptor's checksum.
	ErrKindChecksum LoadErrorKind = "checksum"
	// ErrKindInstantiate means the entry point was found but constructing
	// the plugin object failed.
	ErrKindInstantiate LoadErrorKind = "instantiate"
)

// LoadError reports why a descriptor could not be turned into an instance.
type LoadError struct {
	Kind    LoadErrorKind
	Plugin  string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to load plugin %s [%s]: %s: %v", e.Plugin, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("failed to load plugin %s [%s]: %s", e.Plugin, e.Kind, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }
