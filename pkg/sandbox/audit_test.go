package sandbox

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteViolationStore_RoundTrip(t *testing.T) {
	store, err := NewSQLiteViolationStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Record(newViolation("a", ViolationModule, "module access denied: os", "high")))
	require.NoError(t, store.Record(newViolation("b", ViolationMemory, "over limit", "critical")))
	require.NoError(t, store.Record(newViolation("a", ViolationTimeout, "too slow", "high")))

	forA, err := store.ForInstance("a")
	require.NoError(t, err)
	require.Len(t, forA, 2)
	assert.Equal(t, ViolationModule, forA[0].Type)
	assert.Equal(t, "module access denied: os", forA[0].Description)

	all, err := store.All()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := store.ForInstance("missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteViolationStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	store, err := NewSQLiteViolationStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(newViolation("a", ViolationPath, "denied", "high")))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteViolationStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ViolationPath, all[0].Type)
}
