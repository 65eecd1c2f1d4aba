package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/armature-dev/armature/pkg/loader"
	"github.com/armature-dev/armature/pkg/sandbox"
)

// Config holds all host configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Plugin host configuration
	Plugins PluginConfig

	// Sandbox defaults
	Sandbox SandboxConfig

	// Event bus sizing
	Bus BusConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// PluginConfig holds plugin discovery and lifecycle settings
type PluginConfig struct {
	// Dirs are the filesystem locations scanned for plugin artifacts.
	Dirs []string
	// DefaultStrategy is the loading strategy when none is requested.
	DefaultStrategy string
	// RescanSchedule is a cron expression for periodic re-discovery;
	// empty disables it.
	RescanSchedule string
	// HealthInterval enables the health monitor when positive.
	HealthInterval time.Duration
	// ProbeTimeout bounds a single health probe.
	ProbeTimeout time.Duration
	// RestartBudget caps health-triggered restarts per instance.
	RestartBudget int
}

// SandboxConfig holds the default sandbox policy settings
type SandboxConfig struct {
	SecurityLevel    string
	MaxMemory        int64
	MaxCPUPercent    float64
	MaxExecutionTime time.Duration
	// ViolationDB is the SQLite file for the violation audit store; empty
	// keeps violations in memory.
	ViolationDB string
}

// BusConfig holds event bus sizing
type BusConfig struct {
	QueueSize       int
	Workers         int
	DispatchTimeout time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Plugins:       loadPluginConfig(),
		Sandbox:       loadSandboxConfig(),
		Bus:           loadBusConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("ARMATURE_HOST", "0.0.0.0"),
		Port:            getEnv("ARMATURE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("ARMATURE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("ARMATURE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("ARMATURE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("ARMATURE_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// loadPluginConfig loads plugin host configuration from environment
func loadPluginConfig() PluginConfig {
	return PluginConfig{
		Dirs:            splitList(getEnv("ARMATURE_PLUGIN_DIRS", "./plugins")),
		DefaultStrategy: getEnv("ARMATURE_DEFAULT_STRATEGY", string(loader.StrategyDirect)),
		RescanSchedule:  getEnv("ARMATURE_RESCAN_SCHEDULE", ""),
		HealthInterval:  getEnvDuration("ARMATURE_HEALTH_INTERVAL", 0),
		ProbeTimeout:    getEnvDuration("ARMATURE_PROBE_TIMEOUT", 5*time.Second),
		RestartBudget:   getEnvInt("ARMATURE_RESTART_BUDGET", 3),
	}
}

// loadSandboxConfig loads sandbox defaults from environment
func loadSandboxConfig() SandboxConfig {
	return SandboxConfig{
		SecurityLevel:    getEnv("ARMATURE_SECURITY_LEVEL", "medium"),
		MaxMemory:        getEnvInt64("ARMATURE_SANDBOX_MAX_MEMORY", 0),
		MaxCPUPercent:    getEnvFloat("ARMATURE_SANDBOX_MAX_CPU_PERCENT", 0),
		MaxExecutionTime: getEnvDuration("ARMATURE_SANDBOX_MAX_EXECUTION_TIME", 0),
		ViolationDB:      getEnv("ARMATURE_VIOLATION_DB", ""),
	}
}

// loadBusConfig loads event bus sizing from environment
func loadBusConfig() BusConfig {
	return BusConfig{
		QueueSize:       getEnvInt("ARMATURE_BUS_QUEUE_SIZE", 256),
		Workers:         getEnvInt("ARMATURE_BUS_WORKERS", 8),
		DispatchTimeout: getEnvDuration("ARMATURE_BUS_DISPATCH_TIMEOUT", 30*time.Second),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       getEnv("ARMATURE_LOG_LEVEL", "info"),
		LogFormat:      getEnv("ARMATURE_LOG_FORMAT", "text"),
		MetricsEnabled: getEnvBool("ARMATURE_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if len(c.Plugins.Dirs) == 0 {
		return fmt.Errorf("at least one plugin directory is required")
	}
	if _, err := loader.ParseStrategy(c.Plugins.DefaultStrategy); err != nil {
		return fmt.Errorf("invalid default strategy: %w", err)
	}
	switch strings.ToLower(c.Sandbox.SecurityLevel) {
	case "none", "low", "medium", "high", "maximum":
	default:
		return fmt.Errorf("invalid security level: %q (must be none, low, medium, high, or maximum)", c.Sandbox.SecurityLevel)
	}
	if c.Bus.QueueSize <= 0 {
		return fmt.Errorf("bus queue size must be positive")
	}
	if c.Bus.Workers <= 0 {
		return fmt.Errorf("bus worker count must be positive")
	}
	if c.Plugins.RestartBudget < 0 {
		return fmt.Errorf("restart budget cannot be negative")
	}
	return nil
}

// DefaultPolicy builds the sandbox policy from the configured security
// level with the configured field overrides applied.
func (c *Config) DefaultPolicy() sandbox.Policy {
	policy := sandbox.PolicyForLevel(sandbox.ParseSecurityLevel(c.Sandbox.SecurityLevel))
	if c.Sandbox.MaxMemory > 0 {
		policy.MaxMemory = c.Sandbox.MaxMemory
	}
	if c.Sandbox.MaxCPUPercent > 0 {
		policy.MaxCPUPercent = c.Sandbox.MaxCPUPercent
	}
	if c.Sandbox.MaxExecutionTime > 0 {
		policy.MaxExecutionTime = c.Sandbox.MaxExecutionTime
	}
	return policy
}

// splitList splits a comma- or colon-separated list, dropping empties
func splitList(value string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ':' }) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float64 environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
