// Package scripting runs user-written attack-selection policies in a
// sandboxed GopherLua VM.
package scripting

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the opcode budget of one policy call when no
// override is configured.
const DefaultInstructionLimit = 100_000

// budget is a context that cancels itself once Done has been polled n times.
// The VM polls Done once per opcode, so n is an exact opcode budget.
type budget struct {
	context.Context
	cancel context.CancelFunc
	left   atomic.Int64
}

func newBudget(n int) *budget {
	ctx, cancel := context.WithCancel(context.Background())
	b := &budget{Context: ctx, cancel: cancel}
	b.left.Store(int64(n))
	return b
}

// Done spends one unit of the budget.
func (b *budget) Done() <-chan struct{} {
	if b.left.Add(-1) <= 0 {
		b.cancel()
	}
	return b.Context.Done()
}

func effectiveLimit(instLimit int) int {
	if instLimit <= 0 {
		return DefaultInstructionLimit
	}
	return instLimit
}

// sandboxLibs are the only standard libraries a policy may use.
var sandboxLibs = []lua.LGFunction{lua.OpenBase, lua.OpenTable, lua.OpenString, lua.OpenMath}

// strippedGlobals are base-library functions that reach the filesystem, the
// loader, or a table behind its read-only view.
var strippedGlobals = []string{
	"dofile", "loadfile", "load", "collectgarbage", "require",
	"getfenv", "setfenv", "rawset",
}

// strippedMath draw from the process-wide generator, not the fight's dice.
var strippedMath = []string{"random", "randomseed"}

// NewSandboxedState returns a VM with the base, table, string and math
// libraries, no file or module loading, no math.random, and an opcode budget of instLimit
// that lasts until the next refill.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: The caller owns the LState and must Close it.
func NewSandboxedState(instLimit int) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, open := range sandboxLibs {
		open(L)
	}
	for _, name := range strippedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	if mathLib, ok := L.GetGlobal("math").(*lua.LTable); ok {
		for _, name := range strippedMath {
			mathLib.RawSetString(name, lua.LNil)
		}
	}
	if mt, ok := L.GetMetatable(lua.LString("")).(*lua.LTable); ok {
		mt.RawSetString("__metatable", lua.LFalse)
	}
	refill(L, instLimit)
	return L
}

// refill installs a fresh budget of instLimit opcodes on L and returns the
// func that releases it.
func refill(L *lua.LState, instLimit int) context.CancelFunc {
	b := newBudget(effectiveLimit(instLimit))
	L.SetContext(b)
	return b.cancel
}

// FreezeGlobals returns a read-only view of L's globals: each library table
// is wrapped so writes raise an error. _G is left out.
//
// Precondition: Call after every global the scripts may read is registered.
func FreezeGlobals(L *lua.LState) *lua.LTable {
	globals := L.G.Global
	deny := L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("attempt to modify a read-only table")
		return 0
	})
	view := L.NewTable()
	globals.ForEach(func(k, v lua.LValue) {
		if v == globals {
			return
		}
		if t, ok := v.(*lua.LTable); ok {
			v = readOnly(L, t, deny)
		}
		view.RawSet(k, v)
	})
	return view
}

func readOnly(L *lua.LState, t *lua.LTable, deny *lua.LFunction) *lua.LTable {
	mt := L.NewTable()
	mt.RawSetString("__index", t)
	mt.RawSetString("__newindex", deny)
	mt.RawSetString("__metatable", lua.LFalse)
	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}
