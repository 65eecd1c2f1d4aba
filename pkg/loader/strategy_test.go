package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	for _, name := range []string{"direct", "dynamic", "isolated", "sandboxed"} {
		s, err := ParseStrategy(name)
		require.NoError(t, err)
		assert.Equal(t, Strategy(name), s)
	}

	s, err := ParseStrategy("SANDBOXED")
	require.NoError(t, err)
	assert.Equal(t, StrategySandboxed, s)

	_, err = ParseStrategy("yolo")
	assert.Error(t, err)
	_, err = ParseStrategy("")
	assert.Error(t, err)
}

func TestStrategySandboxed(t *testing.T) {
	assert.True(t, StrategySandboxed.Sandboxed())
	assert.False(t, StrategyDirect.Sandboxed())
	assert.False(t, StrategyDynamic.Sandboxed())
	assert.False(t, StrategyIsolated.Sandboxed())
}
