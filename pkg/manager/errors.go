package manager

import "fmt"

// StateError reports an operation attempted against an instance that is not
// in the required lifecycle state. Losing a lifecycle race surfaces as a
// StateError, never as a corrupted instance.
type StateError struct {
	Plugin    string
	Operation string
	Current   Status
	Required  Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s plugin %s: status is %s, requires %s",
		e.Operation, e.Plugin, e.Current, e.Required)
}

// AlreadyLoadedError reports a load attempt for a plugin that already has a
// live instance.
type AlreadyLoadedError struct {
	Plugin  string
	Version string
}

func (e *AlreadyLoadedError) Error() string {
	return fmt.Sprintf("plugin %s@%s is already loaded", e.Plugin, e.Version)
}

// InitializationError reports a failed Initialize call. The instance stays
// registered in the error state so operators can inspect it.
type InitializationError struct {
	Plugin string
	Err    error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("plugin %s initialization failed: %v", e.Plugin, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// StartError reports a failed Start call. The instance stays Loaded; a
// failed start is retryable.
type StartError struct {
	Plugin string
	Err    error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("plugin %s start failed: %v", e.Plugin, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// StopError reports a failed Stop call. The instance has still left the
// active set by the time this error is returned.
type StopError struct {
	Plugin string
	Err    error
}

func (e *StopError) Error() string {
	return fmt.Sprintf("plugin %s stop failed: %v", e.Plugin, e.Err)
}

func (e *StopError) Unwrap() error { return e.Err }

// UnloadError reports a failed Cleanup call during unload. Logged only; it
// never blocks the forced transition to Unloaded.
type UnloadError struct {
	Plugin string
	Err    error
}

func (e *UnloadError) Error() string {
	return fmt.Sprintf("plugin %s cleanup failed during unload: %v", e.Plugin, e.Err)
}

func (e *UnloadError) Unwrap() error { return e.Err }
