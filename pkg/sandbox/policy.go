package sandbox

import (
	"strings"
	"time"
)

// SecurityLevel names a preset of policy defaults, from no enforcement to
// maximum isolation.
type SecurityLevel int

const (
	LevelNone SecurityLevel = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelMaximum
)

func (l SecurityLevel) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelMaximum:
		return "maximum"
	default:
		return "unknown"
	}
}

// ParseSecurityLevel maps a level name to its SecurityLevel. Unknown names
// map to LevelMedium.
func ParseSecurityLevel(s string) SecurityLevel {
	switch strings.ToLower(s) {
	case "none":
		return LevelNone
	case "low":
		return LevelLow
	case "medium":
		return LevelMedium
	case "high":
		return LevelHigh
	case "maximum":
		return LevelMaximum
	default:
		return LevelMedium
	}
}

// Policy bounds what a sandboxed instance may consume and touch. A zero
// value for a ceiling disables that ceiling.
type Policy struct {
	Level            SecurityLevel `json:"security_level" yaml:"security_level"`
	MaxMemory        int64         `json:"max_memory" yaml:"max_memory"`
	MaxCPUPercent    float64       `json:"max_cpu_percent" yaml:"max_cpu_percent"`
	MaxExecutionTime time.Duration `json:"max_execution_time" yaml:"max_execution_time"`

	AllowNetworkAccess    bool `json:"allow_network_access" yaml:"allow_network_access"`
	AllowFilesystemAccess bool `json:"allow_filesystem_access" yaml:"allow_filesystem_access"`

	AllowedModules []string `json:"allowed_modules" yaml:"allowed_modules"`
	BlockedModules []string `json:"blocked_modules" yaml:"blocked_modules"`
	AllowedPaths   []string `json:"allowed_paths" yaml:"allowed_paths"`
	BlockedPaths   []string `json:"blocked_paths" yaml:"blocked_paths"`

	// SamplingInterval is the watchdog tick; defaults to one second.
	SamplingInterval time.Duration `json:"sampling_interval" yaml:"sampling_interval"`

	// SerializeExecution forces concurrent Run calls for the same instance
	// to execute one at a time.
	SerializeExecution bool `json:"serialize_execution" yaml:"serialize_execution"`
}

// DefaultSamplingInterval is used when a policy leaves SamplingInterval zero.
const DefaultSamplingInterval = time.Second

// PolicyForLevel returns the named preset. Callers may override individual
// fields on the returned value.
func PolicyForLevel(level SecurityLevel) Policy {
	switch level {
	case LevelNone:
		return Policy{
			Level:                 LevelNone,
			AllowNetworkAccess:    true,
			AllowFilesystemAccess: true,
		}
	case LevelLow:
		return Policy{
			Level:                 LevelLow,
			MaxMemory:             512 << 20,
			MaxCPUPercent:         90,
			MaxExecutionTime:      60 * time.Second,
			AllowNetworkAccess:    true,
			AllowFilesystemAccess: true,
		}
	case LevelHigh:
		return Policy{
			Level:                 LevelHigh,
			MaxMemory:             128 << 20,
			MaxCPUPercent:         50,
			MaxExecutionTime:      10 * time.Second,
			AllowFilesystemAccess: true,
			AllowedModules:        []string{"string", "table", "math", "utf8"},
		}
	case LevelMaximum:
		return Policy{
			Level:            LevelMaximum,
			MaxMemory:        64 << 20,
			MaxCPUPercent:    25,
			MaxExecutionTime: 5 * time.Second,
			AllowedModules:   []string{"string", "table", "math"},
		}
	default:
		return Policy{
			Level:                 LevelMedium,
			MaxMemory:             256 << 20,
			MaxCPUPercent:         75,
			MaxExecutionTime:      30 * time.Second,
			AllowNetworkAccess:    true,
			AllowFilesystemAccess: true,
			BlockedModules:        []string{"os", "io", "debug"},
		}
	}
}

// ModuleAllowed applies the allowed/blocked module sets: an explicit block
// wins, then a non-empty allow list acts as a whitelist.
func (p *Policy) ModuleAllowed(module string) bool {
	for _, blocked := range p.BlockedModules {
		if module == blocked {
			return false
		}
	}
	if len(p.AllowedModules) == 0 {
		return true
	}
	for _, allowed := range p.AllowedModules {
		if module == allowed {
			return true
		}
	}
	return false
}

// PathAllowed applies the filesystem flag and the allowed/blocked path
// prefixes.
func (p *Policy) PathAllowed(path string) bool {
	if !p.AllowFilesystemAccess {
		return false
	}
	for _, blocked := range p.BlockedPaths {
		if strings.HasPrefix(path, blocked) {
			return false
		}
	}
	if len(p.AllowedPaths) == 0 {
		return true
	}
	for _, allowed := range p.AllowedPaths {
		if strings.HasPrefix(path, allowed) {
			return true
		}
	}
	return false
}
