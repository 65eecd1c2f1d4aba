package loader

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"github.com/armature-dev/armature/pkg/descriptor"
	"github.com/armature-dev/armature/pkg/plugin"
	"github.com/armature-dev/armature/pkg/sandbox"
)

// luaPlugin adapts a Lua script artifact to the plugin contract. Each
// instance owns a private LState, so plugins never share globals.
//
// LStates are not goroutine-safe; every call into the interpreter holds mu.
type luaPlugin struct {
	d          *descriptor.Descriptor
	strategy   Strategy
	sb         *sandbox.Sandbox
	instanceID string

	mu     sync.Mutex
	L      *lua.LState
	entry  *lua.LTable
	closed bool

	subscriptions []string
}

// Lifecycle function names looked up on the entry table. Only execute is
// mandatory; missing lifecycle functions are no-ops.
const (
	luaFnInitialize  = "initialize"
	luaFnStart       = "start"
	luaFnStop        = "stop"
	luaFnCleanup     = "cleanup"
	luaFnExecute     = "execute"
	luaFnHandleEvent = "handle_event"
)

// luaStdTables are interpreter-owned globals skipped during entry-point
// discovery.
var luaStdTables = map[string]bool{
	"_G": true, "package": true, "string": true, "table": true, "math": true,
	"os": true, "io": true, "debug": true, "coroutine": true, "channel": true,
}

func newLuaPlugin(ctx context.Context, d *descriptor.Descriptor, strategy Strategy, sb *sandbox.Sandbox, instanceID string) (*luaPlugin, error) {
	p := &luaPlugin{
		d:          d,
		strategy:   strategy,
		sb:         sb,
		instanceID: instanceID,
	}

	switch strategy {
	case StrategyDynamic:
		p.L = lua.NewState()
	default:
		// Isolated and sandboxed states open only safe libraries; os, io,
		// debug and package stay out of reach.
		p.L = lua.NewState(lua.Options{SkipOpenLibs: true})
		for _, open := range []struct {
			name string
			fn   lua.LGFunction
		}{
			{lua.BaseLibName, lua.OpenBase},
			{lua.TabLibName, lua.OpenTable},
			{lua.StringLibName, lua.OpenString},
			{lua.MathLibName, lua.OpenMath},
		} {
			p.L.Push(p.L.NewFunction(open.fn))
			p.L.Push(lua.LString(open.name))
			p.L.Call(1, 0)
		}
		p.installRequire()
	}

	// Evaluation runs under the caller's context so a script that loops at
	// load time is cancelled rather than wedging the loader; sandboxed loads
	// also inherit the policy's execution ceiling.
	loadCtx := ctx
	cancel := context.CancelFunc(func() {})
	if strategy == StrategySandboxed && sb != nil {
		if pol, ok := sb.Policy(instanceID); ok && pol.MaxExecutionTime > 0 {
			loadCtx, cancel = context.WithTimeout(ctx, pol.MaxExecutionTime)
		}
	}
	p.L.SetContext(loadCtx)
	err := p.L.DoFile(d.ArtifactLocation)
	p.L.RemoveContext()
	cancel()
	if err != nil {
		p.L.Close()
		return nil, &LoadError{Kind: ErrKindArtifact, Plugin: d.Name,
			Message: "script evaluation failed", Err: err}
	}

	if err := p.resolveEntryPoint(); err != nil {
		p.L.Close()
		return p, err
	}

	p.subscriptions = p.readSubscriptions()
	return p, nil
}

// installRequire replaces require with a whitelist version. Sandboxed
// instances route every module name through the sandbox policy, recording a
// violation on denial; isolated instances only see the opened safe
// libraries.
func (p *luaPlugin) installRequire() {
	p.L.SetGlobal("require", p.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)

		if p.strategy == StrategySandboxed && p.sb != nil {
			if err := p.sb.CheckModule(p.instanceID, name); err != nil {
				L.RaiseError("module %q is blocked by sandbox policy", name)
				return 0
			}
		}

		if mod := L.GetGlobal(name); mod != lua.LNil {
			L.Push(mod)
			return 1
		}
		L.RaiseError("module %q is not available in this environment", name)
		return 0
	}))
}

// resolveEntryPoint finds exactly one global table conforming to the plugin
// contract (a table with an execute function). The descriptor's entry_point
// hint disambiguates; without it, zero or multiple candidates fail the load.
func (p *luaPlugin) resolveEntryPoint() error {
	globals := p.L.Get(lua.GlobalsIndex).(*lua.LTable)

	if p.d.EntryPoint != "" {
		candidate := p.L.GetGlobal(p.d.EntryPoint)
		table, ok := candidate.(*lua.LTable)
		if !ok || !conforms(p.L, table) {
			return &LoadError{Kind: ErrKindNoEntryPoint, Plugin: p.d.Name,
				Message: fmt.Sprintf("entry point %q does not implement the plugin contract", p.d.EntryPoint)}
		}
		p.entry = table
		return nil
	}

	var names []string
	var tables []*lua.LTable
	globals.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok || luaStdTables[string(name)] {
			return
		}
		if table, ok := v.(*lua.LTable); ok && conforms(p.L, table) {
			names = append(names, string(name))
			tables = append(tables, table)
		}
	})

	switch len(tables) {
	case 0:
		return &LoadError{Kind: ErrKindNoEntryPoint, Plugin: p.d.Name,
			Message: "no table implementing the plugin contract found in artifact"}
	case 1:
		p.entry = tables[0]
		return nil
	default:
		sort.Strings(names)
		return &LoadError{Kind: ErrKindAmbiguousEntryPoint, Plugin: p.d.Name,
			Message: fmt.Sprintf("multiple entry points %v and no entry_point hint", names)}
	}
}

func conforms(L *lua.LState, table *lua.LTable) bool {
	return L.GetField(table, luaFnExecute).Type() == lua.LTFunction
}

func (p *luaPlugin) readSubscriptions() []string {
	subs := p.L.GetField(p.entry, "subscriptions")
	table, ok := subs.(*lua.LTable)
	if !ok {
		return nil
	}
	var out []string
	table.ForEach(func(_, v lua.LValue) {
		if s, ok := v.(lua.LString); ok {
			out = append(out, string(s))
		}
	})
	return out
}

func (p *luaPlugin) Initialize(ctx context.Context) error { return p.callLifecycle(ctx, luaFnInitialize) }
func (p *luaPlugin) Start(ctx context.Context) error      { return p.callLifecycle(ctx, luaFnStart) }
func (p *luaPlugin) Stop(ctx context.Context) error       { return p.callLifecycle(ctx, luaFnStop) }

func (p *luaPlugin) Cleanup(ctx context.Context) error {
	return p.callLifecycle(ctx, luaFnCleanup)
}

func (p *luaPlugin) Execute(ctx context.Context, input any) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, &plugin.ExecutionError{Plugin: p.d.Name, Err: fmt.Errorf("plugin state is closed")}
	}

	p.L.SetContext(ctx)
	defer p.L.RemoveContext()

	fn := p.L.GetField(p.entry, luaFnExecute)
	p.L.Push(fn)
	p.L.Push(p.entry)
	p.L.Push(goToLua(p.L, input))
	if err := p.L.PCall(2, 1, nil); err != nil {
		return nil, &plugin.ExecutionError{Plugin: p.d.Name, Err: err}
	}
	out := p.L.Get(-1)
	p.L.Pop(1)
	return luaToGo(out), nil
}

func (p *luaPlugin) HandleEvent(ctx context.Context, event *plugin.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	fn := p.L.GetField(p.entry, luaFnHandleEvent)
	if fn.Type() != lua.LTFunction {
		return
	}

	p.L.SetContext(ctx)
	defer p.L.RemoveContext()

	table := p.L.NewTable()
	p.L.SetField(table, "id", lua.LString(event.ID))
	p.L.SetField(table, "event_type", lua.LString(event.Type))
	p.L.SetField(table, "source", lua.LString(event.Source))
	p.L.SetField(table, "target", lua.LString(event.Target))
	p.L.SetField(table, "payload", goToLua(p.L, event.Payload))

	p.L.Push(fn)
	p.L.Push(p.entry)
	p.L.Push(table)
	if err := p.L.PCall(2, 0, nil); err != nil {
		// Handler failures are isolated at the dispatch boundary; nothing
		// to do here beyond surfacing them to the interpreter log.
		logrus.WithField("plugin", p.d.Name).Debugf("lua event handler error: %v", err)
	}
}

func (p *luaPlugin) Capabilities() []plugin.Capability {
	out := make([]plugin.Capability, 0, len(p.d.Capabilities))
	for _, c := range p.d.Capabilities {
		out = append(out, plugin.Capability(c))
	}
	return out
}

func (p *luaPlugin) Subscriptions() []string {
	return append([]string(nil), p.subscriptions...)
}

func (p *luaPlugin) callLifecycle(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("plugin state is closed")
	}

	fn := p.L.GetField(p.entry, name)
	if fn.Type() != lua.LTFunction {
		return nil
	}

	p.L.SetContext(ctx)
	defer p.L.RemoveContext()

	p.L.Push(fn)
	p.L.Push(p.entry)
	if err := p.L.PCall(1, 1, nil); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	ret := p.L.Get(-1)
	p.L.Pop(1)
	if ret == lua.LFalse {
		return fmt.Errorf("%s returned false", name)
	}
	return nil
}

// close releases the interpreter. Called exactly once by the loader cache.
func (p *luaPlugin) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.L.Close()
	}
}

// goToLua converts a Go value to its Lua representation.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		table := L.NewTable()
		for _, item := range val {
			table.Append(goToLua(L, item))
		}
		return table
	case map[string]any:
		table := L.NewTable()
		for k, item := range val {
			L.SetField(table, k, goToLua(L, item))
		}
		return table
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// luaToGo converts a Lua value back to a Go value. Tables with contiguous
// integer keys become slices, everything else becomes a string-keyed map.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if n := val.MaxN(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, luaToGo(val.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any)
		val.ForEach(func(k, item lua.LValue) {
			out[fmt.Sprintf("%v", k)] = luaToGo(item)
		})
		return out
	default:
		return fmt.Sprintf("%v", val)
	}
}
