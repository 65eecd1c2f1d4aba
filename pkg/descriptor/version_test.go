package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIsValidSemver tests semver format validation
func TestIsValidSemver(t *testing.T) {
	tests := []struct {
		version string
		valid   bool
	}{
		{"1.0.0", true},
		{"v1.0.0", true},
		{"0.1.2", true},
		{"10.20.30", true},
		{"1.0.0-alpha.1", true},
		{"1.0.0+build.5", true},
		{"1.0", false},
		{"1", false},
		{"", false},
		{"abc", false},
		{"1.0.0.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidSemver(tt.version))
		})
	}
}

// TestCompareVersions tests semver ordering
func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "2.0.0", -1},
		{"2.0.0", "1.0.0", 1},
		{"1.2.0", "1.1.9", 1},
		{"1.0.1", "1.0.2", -1},
		{"v1.0.0", "1.0.0", 0},
		{"1.0.0-alpha", "1.0.0", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, CompareVersions(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

// TestSatisfies tests version requirement matching
func TestSatisfies(t *testing.T) {
	tests := []struct {
		version     string
		requirement string
		expected    bool
	}{
		{"1.0.0", "", true},
		{"1.0.0", "*", true},
		{"1.0.0", "1.0.0", true},
		{"1.0.1", "1.0.0", false},
		{"1.0.0", "=1.0.0", true},
		{"1.5.0", ">=1.0.0", true},
		{"0.9.0", ">=1.0.0", false},
		{"1.0.0", ">1.0.0", false},
		{"1.0.1", ">1.0.0", true},
		{"1.0.0", "<=1.0.0", true},
		{"1.0.1", "<=1.0.0", false},
		{"0.9.9", "<1.0.0", true},
		{"1.2.3", "^1.0.0", true},
		{"2.0.0", "^1.0.0", false},
		{"1.0.0", "^1.2.0", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Satisfies(tt.version, tt.requirement),
			"version %s requirement %s", tt.version, tt.requirement)
	}
}

// TestIsValidRequirement tests requirement format validation
func TestIsValidRequirement(t *testing.T) {
	assert.True(t, IsValidRequirement("*"))
	assert.True(t, IsValidRequirement(""))
	assert.True(t, IsValidRequirement("1.0.0"))
	assert.True(t, IsValidRequirement(">=1.0.0"))
	assert.True(t, IsValidRequirement("^2.1.0"))
	assert.False(t, IsValidRequirement(">=abc"))
	assert.False(t, IsValidRequirement("not-a-version"))
}
