package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armature-dev/armature/pkg/descriptor"
	"github.com/armature-dev/armature/pkg/plugin"
	"github.com/armature-dev/armature/pkg/sandbox"
)

const luaEchoScript = `
echo = {
  subscriptions = { "tick", "config.reload" }
}

function echo:initialize()
  self.ready = true
  return true
end

function echo:execute(input)
  return { echoed = input, ready = self.ready }
end

function echo:handle_event(event)
  self.last_event = event.event_type
end
`

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.lua")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func luaDescriptor(name, artifact string) *descriptor.Descriptor {
	return &descriptor.Descriptor{
		Name:             name,
		Version:          "1.0.0",
		Type:             descriptor.TypeProcessor,
		ArtifactLocation: artifact,
	}
}

func TestLuaLoad_Dynamic(t *testing.T) {
	l, _ := newTestLoader(t)
	d := luaDescriptor("echo", writeScript(t, luaEchoScript))

	result, err := l.Load(context.Background(), d, StrategyDynamic, Options{})
	require.NoError(t, err)
	require.NotNil(t, result.Plugin)
	assert.Equal(t, StrategyDynamic, result.Strategy)

	sub, ok := result.Plugin.(plugin.Subscriber)
	require.True(t, ok)
	assert.Equal(t, []string{"tick", "config.reload"}, sub.Subscriptions())
}

func TestLuaLifecycleAndExecute(t *testing.T) {
	l, _ := newTestLoader(t)
	d := luaDescriptor("echo", writeScript(t, luaEchoScript))

	result, err := l.Load(context.Background(), d, StrategyDynamic, Options{})
	require.NoError(t, err)
	p := result.Plugin

	ctx := context.Background()
	require.NoError(t, p.Initialize(ctx))
	require.NoError(t, p.Start(ctx)) // missing lifecycle functions are no-ops

	out, err := p.Execute(ctx, map[string]any{"n": float64(7)})
	require.NoError(t, err)

	table, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, table["ready"])
	inner, ok := table["echoed"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(7), inner["n"])
}

func TestLuaHandleEvent(t *testing.T) {
	l, _ := newTestLoader(t)
	d := luaDescriptor("echo", writeScript(t, luaEchoScript))

	result, err := l.Load(context.Background(), d, StrategyDynamic, Options{})
	require.NoError(t, err)
	p := result.Plugin

	p.HandleEvent(context.Background(), plugin.NewEvent("tick", "host", nil))

	out, err := p.Execute(context.Background(), nil)
	require.NoError(t, err)
	// handle_event stored the type on the entry table; execute can't see it
	// directly, but the call must not have errored or poisoned the state.
	assert.NotNil(t, out)
}

func TestLuaLifecycle_ReturnsFalse(t *testing.T) {
	script := `
worker = {}
function worker:execute(input) return input end
function worker:start() return false end
`
	l, _ := newTestLoader(t)
	d := luaDescriptor("worker", writeScript(t, script))

	result, err := l.Load(context.Background(), d, StrategyDynamic, Options{})
	require.NoError(t, err)

	err = result.Plugin.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned false")
}

func TestLuaExecute_ScriptError(t *testing.T) {
	script := `
worker = {}
function worker:execute(input) error("deliberate failure") end
`
	l, _ := newTestLoader(t)
	d := luaDescriptor("worker", writeScript(t, script))

	result, err := l.Load(context.Background(), d, StrategyDynamic, Options{})
	require.NoError(t, err)

	_, err = result.Plugin.Execute(context.Background(), nil)
	var xerr *plugin.ExecutionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, "worker", xerr.Plugin)
}

func TestLuaLoad_NoEntryPoint(t *testing.T) {
	script := `
local x = 1
function helper() return x end
`
	l, _ := newTestLoader(t)
	d := luaDescriptor("empty", writeScript(t, script))

	_, err := l.Load(context.Background(), d, StrategyDynamic, Options{})
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrKindNoEntryPoint, lerr.Kind)
}

func TestLuaLoad_AmbiguousEntryPoints(t *testing.T) {
	script := `
first = {}
function first:execute(input) return 1 end
second = {}
function second:execute(input) return 2 end
`
	l, _ := newTestLoader(t)
	d := luaDescriptor("multi", writeScript(t, script))

	_, err := l.Load(context.Background(), d, StrategyDynamic, Options{})
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrKindAmbiguousEntryPoint, lerr.Kind)
	assert.Contains(t, lerr.Message, "first")
	assert.Contains(t, lerr.Message, "second")
}

func TestLuaLoad_EntryPointHint(t *testing.T) {
	script := `
first = {}
function first:execute(input) return 1 end
second = {}
function second:execute(input) return 2 end
`
	l, _ := newTestLoader(t)
	d := luaDescriptor("multi", writeScript(t, script))
	d.EntryPoint = "second"

	result, err := l.Load(context.Background(), d, StrategyDynamic, Options{})
	require.NoError(t, err)

	out, err := result.Plugin.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, float64(2), out)
}

func TestLuaLoad_BadEntryPointHint(t *testing.T) {
	l, _ := newTestLoader(t)
	d := luaDescriptor("echo", writeScript(t, luaEchoScript))
	d.EntryPoint = "missing"

	_, err := l.Load(context.Background(), d, StrategyDynamic, Options{})
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrKindNoEntryPoint, lerr.Kind)
}

func TestLuaLoad_SyntaxError(t *testing.T) {
	l, _ := newTestLoader(t)
	d := luaDescriptor("broken", writeScript(t, "this is not lua ((("))

	_, err := l.Load(context.Background(), d, StrategyDynamic, Options{})
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrKindArtifact, lerr.Kind)
}

func TestLuaIsolated_SafeLibrariesOnly(t *testing.T) {
	// os and io are never opened in isolated states; touching them fails the
	// script at load time.
	script := `
worker = { when = os.time() }
function worker:execute(input) return input end
`
	l, _ := newTestLoader(t)
	d := luaDescriptor("worker", writeScript(t, script))

	_, err := l.Load(context.Background(), d, StrategyIsolated, Options{})
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrKindArtifact, lerr.Kind)
}

func TestLuaIsolated_RequireWhitelist(t *testing.T) {
	script := `
local str = require("string")
worker = {}
function worker:execute(input) return str.upper(input) end
`
	l, _ := newTestLoader(t)
	d := luaDescriptor("worker", writeScript(t, script))

	result, err := l.Load(context.Background(), d, StrategyIsolated, Options{})
	require.NoError(t, err)

	out, err := result.Plugin.Execute(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "HELLO", out)
}

func TestLuaIsolated_RequireUnavailableModule(t *testing.T) {
	script := `
local io = require("io")
worker = {}
function worker:execute(input) return input end
`
	l, _ := newTestLoader(t)
	d := luaDescriptor("worker", writeScript(t, script))

	_, err := l.Load(context.Background(), d, StrategyIsolated, Options{})
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrKindArtifact, lerr.Kind)
}

func TestLuaSandboxed_RequireRecordsViolation(t *testing.T) {
	store := sandbox.NewMemoryViolationStore()
	sb := sandbox.New(store, testLogger())
	l, err := New(sb, testLogger())
	require.NoError(t, err)

	script := `
local m = require("math")
worker = {}
function worker:execute(input) return m.floor(input) end
`
	policy := sandbox.Policy{AllowedModules: []string{"string", "table"}}
	d := luaDescriptor("worker", writeScript(t, script))

	_, err = l.Load(context.Background(), d, StrategySandboxed, Options{Policy: &policy})
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrKindArtifact, lerr.Kind)

	violations, verr := store.All()
	require.NoError(t, verr)
	require.Len(t, violations, 1)
	assert.Equal(t, sandbox.ViolationModule, violations[0].Type)
}

func TestLuaSandboxed_AllowedRequire(t *testing.T) {
	sb := sandbox.New(nil, testLogger())
	l, err := New(sb, testLogger())
	require.NoError(t, err)

	script := `
local m = require("math")
worker = {}
function worker:execute(input) return m.floor(input) end
`
	policy := sandbox.Policy{AllowedModules: []string{"string", "table", "math"}}
	d := luaDescriptor("worker", writeScript(t, script))

	result, err := l.Load(context.Background(), d, StrategySandboxed, Options{Policy: &policy})
	require.NoError(t, err)

	out, err := result.Plugin.Execute(context.Background(), float64(3.9))
	require.NoError(t, err)
	assert.Equal(t, float64(3), out)
}

func TestLuaSandboxed_LoadTimeLoopCancelled(t *testing.T) {
	sb := sandbox.New(nil, testLogger())
	l, err := New(sb, testLogger())
	require.NoError(t, err)

	// The script never finishes evaluating; the policy's execution ceiling
	// must bound the load instead of wedging the loader.
	script := `
worker = {}
function worker:execute(input) return input end
while true do end
`
	policy := sandbox.Policy{MaxExecutionTime: 100 * time.Millisecond}
	d := luaDescriptor("spinner", writeScript(t, script))

	start := time.Now()
	_, err = l.Load(context.Background(), d, StrategySandboxed, Options{Policy: &policy})
	elapsed := time.Since(start)

	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrKindArtifact, lerr.Kind)
	assert.Less(t, elapsed, 5*time.Second, "load must stop at the execution ceiling")
}

func TestLuaLoad_CancelledContext(t *testing.T) {
	l, _ := newTestLoader(t)

	script := `
worker = {}
function worker:execute(input) return input end
while true do end
`
	d := luaDescriptor("spinner", writeScript(t, script))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := l.Load(ctx, d, StrategyDynamic, Options{})
	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrKindArtifact, lerr.Kind)
}

func TestLuaPlugin_ClosedState(t *testing.T) {
	l, _ := newTestLoader(t)
	d := luaDescriptor("echo", writeScript(t, luaEchoScript))

	result, err := l.Load(context.Background(), d, StrategyDynamic, Options{})
	require.NoError(t, err)
	p := result.Plugin

	// Unload closes the interpreter; later calls fail instead of crashing.
	l.Unload(d.Name, d.Version)

	_, err = p.Execute(context.Background(), nil)
	assert.Error(t, err)
	assert.Error(t, p.Initialize(context.Background()))
	p.HandleEvent(context.Background(), plugin.NewEvent("tick", "host", nil))
}

func TestLuaCapabilities(t *testing.T) {
	l, _ := newTestLoader(t)
	d := luaDescriptor("echo", writeScript(t, luaEchoScript))
	d.Capabilities = []string{"echo", "diagnostics"}

	result, err := l.Load(context.Background(), d, StrategyDynamic, Options{})
	require.NoError(t, err)

	caps := result.Plugin.Capabilities()
	assert.Equal(t, []plugin.Capability{"echo", "diagnostics"}, caps)
}
