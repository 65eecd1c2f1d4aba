package loader

import (
	"fmt"
	"strings"
)

// Strategy selects how a plugin artifact is loaded, in increasing order of
// isolation.
type Strategy string

const (
	// StrategyDirect loads a compile-time-known plugin through the factory
	// registry. No isolation.
	StrategyDirect Strategy = "direct"
	// StrategyDynamic loads a script artifact at runtime into the host
	// process.
	StrategyDynamic Strategy = "dynamic"
	// StrategyIsolated is dynamic plus a private interpreter namespace with
	// restricted libraries.
	StrategyIsolated Strategy = "isolated"
	// StrategySandboxed is isolated plus a sandbox reservation enforcing
	// the instance's resource and access policy.
	StrategySandboxed Strategy = "sandboxed"
)

// ParseStrategy maps a strategy name to its Strategy value.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(s)) {
	case StrategyDirect, StrategyDynamic, StrategyIsolated, StrategySandboxed:
		return Strategy(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("unknown loading strategy: %q", s)
	}
}

// Sandboxed reports whether the strategy routes execution through a sandbox.
func (s Strategy) Sandboxed() bool {
	return s == StrategySandboxed
}
