package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseSecurityLevel(t *testing.T) {
	assert.Equal(t, LevelNone, ParseSecurityLevel("none"))
	assert.Equal(t, LevelLow, ParseSecurityLevel("LOW"))
	assert.Equal(t, LevelMedium, ParseSecurityLevel("medium"))
	assert.Equal(t, LevelHigh, ParseSecurityLevel("High"))
	assert.Equal(t, LevelMaximum, ParseSecurityLevel("maximum"))
	// Unknown names fall back to the medium preset.
	assert.Equal(t, LevelMedium, ParseSecurityLevel("paranoid"))
}

func TestSecurityLevelString(t *testing.T) {
	assert.Equal(t, "none", LevelNone.String())
	assert.Equal(t, "maximum", LevelMaximum.String())
	assert.Equal(t, "unknown", SecurityLevel(42).String())
}

func TestPolicyForLevel_Presets(t *testing.T) {
	none := PolicyForLevel(LevelNone)
	assert.Zero(t, none.MaxMemory)
	assert.Zero(t, none.MaxExecutionTime)
	assert.True(t, none.AllowNetworkAccess)
	assert.True(t, none.AllowFilesystemAccess)

	medium := PolicyForLevel(LevelMedium)
	assert.Equal(t, int64(256<<20), medium.MaxMemory)
	assert.Equal(t, 30*time.Second, medium.MaxExecutionTime)
	assert.Contains(t, medium.BlockedModules, "os")

	max := PolicyForLevel(LevelMaximum)
	assert.False(t, max.AllowNetworkAccess)
	assert.False(t, max.AllowFilesystemAccess)
	assert.Contains(t, max.AllowedModules, "string")
	assert.NotContains(t, max.AllowedModules, "utf8")

	// Ceilings tighten monotonically from low to maximum.
	low := PolicyForLevel(LevelLow)
	high := PolicyForLevel(LevelHigh)
	assert.Greater(t, low.MaxMemory, medium.MaxMemory)
	assert.Greater(t, medium.MaxMemory, high.MaxMemory)
	assert.Greater(t, high.MaxMemory, max.MaxMemory)
}

func TestModuleAllowed_BlockWinsOverAllow(t *testing.T) {
	p := Policy{
		AllowedModules: []string{"string", "os"},
		BlockedModules: []string{"os"},
	}
	assert.True(t, p.ModuleAllowed("string"))
	assert.False(t, p.ModuleAllowed("os"))
	assert.False(t, p.ModuleAllowed("io"))
}

func TestModuleAllowed_EmptyAllowListPermitsAll(t *testing.T) {
	p := Policy{BlockedModules: []string{"debug"}}
	assert.True(t, p.ModuleAllowed("anything"))
	assert.False(t, p.ModuleAllowed("debug"))
}

func TestPathAllowed(t *testing.T) {
	p := Policy{
		AllowFilesystemAccess: true,
		AllowedPaths:          []string{"/data"},
		BlockedPaths:          []string{"/data/secrets"},
	}
	assert.True(t, p.PathAllowed("/data/input.csv"))
	assert.False(t, p.PathAllowed("/data/secrets/key"))
	assert.False(t, p.PathAllowed("/etc/passwd"))
}

func TestPathAllowed_FilesystemDisabled(t *testing.T) {
	p := Policy{AllowFilesystemAccess: false, AllowedPaths: []string{"/data"}}
	assert.False(t, p.PathAllowed("/data/file"))
}

func TestPathAllowed_EmptyAllowListPermitsAll(t *testing.T) {
	p := Policy{AllowFilesystemAccess: true, BlockedPaths: []string{"/etc"}}
	assert.True(t, p.PathAllowed("/var/log/app.log"))
	assert.False(t, p.PathAllowed("/etc/shadow"))
}
