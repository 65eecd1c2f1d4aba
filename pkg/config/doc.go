// Package config provides host configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	ARMATURE_HOST="0.0.0.0"
//	ARMATURE_PORT="8080"
//	ARMATURE_READ_TIMEOUT="15s"
//	ARMATURE_SHUTDOWN_TIMEOUT="30s"
//
// Plugin settings:
//
//	ARMATURE_PLUGIN_DIRS="/etc/armature/plugins:/opt/plugins"
//	ARMATURE_DEFAULT_STRATEGY="sandboxed"  # direct, dynamic, isolated, sandboxed
//	ARMATURE_RESCAN_SCHEDULE="@every 5m"
//	ARMATURE_HEALTH_INTERVAL="30s"
//	ARMATURE_RESTART_BUDGET="3"
//
// Sandbox settings:
//
//	ARMATURE_SECURITY_LEVEL="medium"  # none, low, medium, high, maximum
//	ARMATURE_SANDBOX_MAX_MEMORY="268435456"
//	ARMATURE_SANDBOX_MAX_EXECUTION_TIME="30s"
//	ARMATURE_VIOLATION_DB="/var/lib/armature/violations.db"
//
// Event bus settings:
//
//	ARMATURE_BUS_QUEUE_SIZE="256"
//	ARMATURE_BUS_WORKERS="8"
//
// Observability settings:
//
//	ARMATURE_LOG_LEVEL="info"  # debug, info, warn, error
//	ARMATURE_LOG_FORMAT="json"
//	ARMATURE_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Plugin dirs: %v\n", cfg.Plugins.Dirs)
//
// # Related Packages
//
//   - pkg/manager: consumes the plugin, sandbox and bus configuration
//   - pkg/observability: consumes the observability configuration
package config
