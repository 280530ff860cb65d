package runtime

import (
	"bytes"
	"strings"

	"codepad/internal/playground/wrapper"
	appErr "codepad/pkg/errors"

	lua "github.com/yuin/gopher-lua"
)

// Options tunes the interpreter created for each instance.
type Options struct {
	CallStackSize int `yaml:"callStackSize"`
	RegistrySize  int `yaml:"registrySize"`
}

func (o Options) withDefaults() Options {
	if o.CallStackSize <= 0 {
		o.CallStackSize = 200
	}
	if o.RegistrySize <= 0 {
		o.RegistrySize = 256 * 20
	}
	return o
}

// safeLibs are the only standard libraries exposed to scripts; io, os and
// debug stay closed.
var safeLibs = []struct {
	name string
	open lua.LGFunction
}{
	{lua.LoadLibName, lua.OpenPackage},
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
	{lua.CoroutineLibName, lua.OpenCoroutine},
}

// removedGlobals reach the filesystem, the host loader or the shared
// environment behind the per-run one.
var removedGlobals = []string{"dofile", "loadfile", "module", "getfenv", "setfenv"}

// luaVM is a booted interpreter. The harness is held here rather than looked
// up by name. base is the global table as boot left it; scripts never see it,
// each run gets its own clone.
type luaVM struct {
	L       *lua.LState
	harness *lua.LFunction
	base    *lua.LTable
}

func (vm *luaVM) Close() {
	vm.L.Close()
}

// runEnv clones base for one run. Nested tables are cloned as well, so a
// script that reassigns print or string.format only affects itself. require
// hands out per-run clones of the cached module tables for the same reason.
func (vm *luaVM) runEnv() *lua.LTable {
	seen := map[*lua.LTable]*lua.LTable{}
	env := cloneTable(vm.L, vm.base, seen)

	require := vm.base.RawGetString("require")
	modules := map[string]lua.LValue{}
	env.RawSetString("require", vm.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if mod, ok := modules[name]; ok {
			L.Push(mod)
			return 1
		}
		L.Push(require)
		L.Push(lua.LString(name))
		L.Call(1, 1)
		mod := L.Get(-1)
		L.Pop(1)
		if t, ok := mod.(*lua.LTable); ok {
			mod = cloneTable(L, t, seen)
		}
		modules[name] = mod
		L.Push(mod)
		return 1
	}))
	return env
}

func cloneTable(L *lua.LState, src *lua.LTable, seen map[*lua.LTable]*lua.LTable) *lua.LTable {
	if dst, ok := seen[src]; ok {
		return dst
	}
	dst := L.NewTable()
	dst.Metatable = src.Metatable
	seen[src] = dst
	src.ForEach(func(k, v lua.LValue) {
		if t, ok := v.(*lua.LTable); ok {
			v = cloneTable(L, t, seen)
		}
		dst.RawSet(k, v)
	})
	return dst
}

// newLuaState builds a sandboxed interpreter, binds the sinks and boots the bundle.
func newLuaState(b *Bundle, sinks Sinks, opts Options) (*luaVM, error) {
	opts = opts.withDefaults()
	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: opts.CallStackSize,
		RegistrySize:  opts.RegistrySize,
	})

	for _, lib := range safeLibs {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, appErr.Wrapf(err, appErr.RuntimeLoadFailed, "open lua library %q failed", lib.name)
		}
	}
	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	if pkg, ok := L.GetGlobal("package").(*lua.LTable); ok {
		L.SetField(pkg, "path", lua.LString(""))
		L.SetField(pkg, "cpath", lua.LString(""))
	}

	L.SetGlobal("getmetatable", L.NewFunction(getMetatable))
	bindSinks(L, sinks)
	preloadModules(L, b)

	prelude, err := L.Load(bytes.NewReader(b.Prelude()), "prelude")
	if err != nil {
		L.Close()
		return nil, appErr.Wrapf(err, appErr.BundleInvalid, "compile prelude failed: %v", err)
	}
	L.Push(prelude)
	if err := L.PCall(0, 0, nil); err != nil {
		L.Close()
		return nil, appErr.Wrapf(err, appErr.BundleInvalid, "run prelude failed: %v", err)
	}
	harness, ok := L.GetGlobal(wrapper.HarnessFunc).(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, appErr.Newf(appErr.BundleInvalid, "prelude does not define %s", wrapper.HarnessFunc)
	}
	L.SetGlobal(wrapper.HarnessFunc, lua.LNil)

	// The string metatable is shared by every run.
	if mt, ok := L.GetMetatable(lua.LString("")).(*lua.LTable); ok {
		mt.RawSetString("__metatable", lua.LFalse)
	}
	return &luaVM{L: L, harness: harness, base: L.G.Global}, nil
}

// getMetatable honors the __metatable field, which the builtin ignores.
func getMetatable(L *lua.LState) int {
	obj := L.CheckAny(1)
	if guard := L.GetMetaField(obj, "__metatable"); guard != lua.LNil {
		L.Push(guard)
		return 1
	}
	L.Push(L.GetMetatable(obj))
	return 1
}

func bindSinks(L *lua.LState, sinks Sinks) {
	out := sinks.Stdout
	if out == nil {
		out = func(string) {}
	}
	errOut := sinks.Stderr
	if errOut == nil {
		errOut = func(string) {}
	}

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		out(joinArgs(L, "\t") + "\n")
		return 0
	}))
	L.SetGlobal("eprint", L.NewFunction(func(L *lua.LState) int {
		errOut(joinArgs(L, "\t") + "\n")
		return 0
	}))

	io := L.NewTable()
	L.SetField(io, "write", L.NewFunction(func(L *lua.LState) int {
		out(joinArgs(L, ""))
		return 0
	}))
	stderr := L.NewTable()
	L.SetField(stderr, "write", L.NewFunction(func(L *lua.LState) int {
		// Called as io.stderr:write(...), so argument 1 is the table itself.
		var b strings.Builder
		for i := 2; i <= L.GetTop(); i++ {
			b.WriteString(L.ToStringMeta(L.Get(i)).String())
		}
		errOut(b.String())
		return 0
	}))
	L.SetField(io, "stderr", stderr)
	L.SetGlobal("io", io)
}

func joinArgs(L *lua.LState, sep string) string {
	top := L.GetTop()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	return strings.Join(parts, sep)
}

func preloadModules(L *lua.LState, b *Bundle) {
	for _, file := range b.Modules() {
		src := b.Files[file]
		name := ModuleName(file)
		L.PreloadModule(name, func(L *lua.LState) int {
			fn, err := L.Load(bytes.NewReader(src), name)
			if err != nil {
				L.RaiseError("load module %s: %s", name, err.Error())
				return 0
			}
			// Modules are cached across runs, so they bind to the boot globals
			// rather than the environment of the run that first required them.
			L.SetFEnv(fn, L.G.Global)
			L.Push(fn)
			L.Call(0, 1)
			return 1
		})
	}
}
