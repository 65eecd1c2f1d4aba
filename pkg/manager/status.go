package manager

// Status is the lifecycle state of a plugin instance.
type Status string

const (
	// StatusUnloaded means no live instance exists. It is the implicit state
	// of every unknown plugin and the forced terminal state of unload.
	StatusUnloaded Status = "unloaded"
	// StatusLoading means the artifact is being resolved and loaded.
	StatusLoading Status = "loading"
	// StatusLoaded means the instance is initialized and startable.
	StatusLoaded Status = "loaded"
	// StatusInitializing means Initialize is in flight.
	StatusInitializing Status = "initializing"
	// StatusActive means the plugin is started, executable, and receiving
	// its subscribed events.
	StatusActive Status = "active"
	// StatusUnloading means forced teardown is in flight.
	StatusUnloading Status = "unloading"
	// StatusError means initialization failed. The instance stays
	// registered for inspection; the only exit is unload.
	StatusError Status = "error"
)
