package plugin

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armature-dev/armature/pkg/descriptor"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent("metrics.flushed", "metrics-collector", map[string]int{"count": 3})

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "metrics.flushed", e.Type)
	assert.Equal(t, "metrics-collector", e.Source)
	assert.Empty(t, e.Target)
	assert.WithinDuration(t, time.Now().UTC(), e.Timestamp, time.Second)

	// Every event gets a fresh identity.
	assert.NotEqual(t, e.ID, NewEvent("metrics.flushed", "metrics-collector", nil).ID)
}

func TestNewTargetedEvent(t *testing.T) {
	e := NewTargetedEvent("config.reload", "host", "log-shipper", nil)

	assert.Equal(t, "config.reload", e.Type)
	assert.Equal(t, "host", e.Source)
	assert.Equal(t, "log-shipper", e.Target)
}

func TestExecutionError(t *testing.T) {
	cause := errors.New("division by zero")
	err := &ExecutionError{Plugin: "calc", Err: cause}

	assert.Contains(t, err.Error(), "calc")
	assert.ErrorIs(t, err, cause)
}

func TestFactoryRegisterLookup(t *testing.T) {
	location := t.Name()
	defer Unregister(location, "main")

	called := false
	require.NoError(t, Register(location, "main", func(d *descriptor.Descriptor) (Plugin, error) {
		called = true
		return nil, nil
	}))

	entries := Lookup(location)
	require.Len(t, entries, 1)
	_, _ = entries["main"](&descriptor.Descriptor{})
	assert.True(t, called)
}

func TestFactoryRegister_Invalid(t *testing.T) {
	assert.Error(t, Register("loc", "main", nil))
	assert.Error(t, Register("", "main", func(d *descriptor.Descriptor) (Plugin, error) { return nil, nil }))
	assert.Error(t, Register("loc", "", func(d *descriptor.Descriptor) (Plugin, error) { return nil, nil }))
}

func TestFactoryRegister_Duplicate(t *testing.T) {
	location := t.Name()
	defer Unregister(location, "main")

	f := func(d *descriptor.Descriptor) (Plugin, error) { return nil, nil }
	require.NoError(t, Register(location, "main", f))
	assert.Error(t, Register(location, "main", f))

	// A second entry point under the same location is fine.
	require.NoError(t, Register(location, "alt", f))
	defer Unregister(location, "alt")
	assert.Len(t, Lookup(location), 2)
}

func TestFactoryUnregister(t *testing.T) {
	location := t.Name()
	f := func(d *descriptor.Descriptor) (Plugin, error) { return nil, nil }

	require.NoError(t, Register(location, "main", f))
	Unregister(location, "main")
	assert.Nil(t, Lookup(location))

	// Unregistering an unknown entry is a no-op.
	Unregister(location, "main")
	Unregister("never-registered", "main")
}

func TestFactoryLookup_ReturnsCopy(t *testing.T) {
	location := t.Name()
	defer Unregister(location, "main")

	f := func(d *descriptor.Descriptor) (Plugin, error) { return nil, nil }
	require.NoError(t, Register(location, "main", f))

	entries := Lookup(location)
	delete(entries, "main")
	assert.Len(t, Lookup(location), 1)
}
