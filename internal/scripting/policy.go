package scripting

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duelsim/internal/game/combat"
)

// ErrPolicyScript is wrapped by every load or runtime failure of a Lua policy.
var ErrPolicyScript = errors.New("scripting: policy script failed")

// SelectHook is the global function a policy script must define.
const SelectHook = "select_attacks"

// LuaPolicy is a combat.AttackPolicy implemented by a Lua script.
//
// The script defines select_attacks(self) where self describes the acting
// combatant:
//
//	{ name, side, hp, max_hp, ac,
//	  attacks = { {name, to_hit, damage, damage_type, recharge, available, save, average}, ... } }
//
// It returns a 1-based attack index, an array of indices, or nil to forfeit
// the turn.
//
// Every call runs the script from the top in a fresh global environment
// whose library tables are read-only, so a call sees nothing an earlier
// call stored. With math.random removed, the choice depends only on self.
//
// LuaPolicy is safe for concurrent use: calls are serialized on one VM and
// each call gets a fresh instruction budget.
type LuaPolicy struct {
	name   string
	limit  int
	logger *zap.Logger

	mu      sync.Mutex
	L       *lua.LState
	chunk   *lua.FunctionProto
	envMeta *lua.LTable
}

// NewLuaPolicy loads the policy script at path.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: Returns a ready policy, or an error wrapping ErrPolicyScript.
func NewLuaPolicy(path string, instLimit int, logger *zap.Logger) (*LuaPolicy, error) {
	name := "lua:" + strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return newLuaPolicy(name, instLimit, logger, func(L *lua.LState) (*lua.LFunction, error) {
		return L.LoadFile(path)
	})
}

// NewLuaPolicyFromString loads a policy from Lua source.
func NewLuaPolicyFromString(name, src string, instLimit int, logger *zap.Logger) (*LuaPolicy, error) {
	return newLuaPolicy("lua:"+name, instLimit, logger, func(L *lua.LState) (*lua.LFunction, error) {
		return L.LoadString(src)
	})
}

func newLuaPolicy(name string, instLimit int, logger *zap.Logger, load func(*lua.LState) (*lua.LFunction, error)) (*LuaPolicy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	L := NewSandboxedState(instLimit)
	RegisterModules(L, logger)
	chunk, err := load(L)
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("%w: loading %s: %v", ErrPolicyScript, name, err)
	}

	envMeta := L.NewTable()
	envMeta.RawSetString("__index", FreezeGlobals(L))
	envMeta.RawSetString("__metatable", lua.LFalse)
	p := &LuaPolicy{name: name, limit: instLimit, logger: logger, L: L, chunk: chunk.Proto, envMeta: envMeta}

	cancel := refill(L, instLimit)
	_, err = p.instantiate(L)
	cancel()
	L.RemoveContext()
	L.SetTop(0)
	if err != nil {
		L.Close()
		return nil, err
	}
	logger.Info("lua policy loaded", zap.String("policy", name))
	return p, nil
}

// Name returns "lua:" followed by the script name.
func (p *LuaPolicy) Name() string { return p.name }

// Close releases the VM.
func (p *LuaPolicy) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.L != nil {
		p.L.Close()
		p.L = nil
	}
}

// Select calls select_attacks with a snapshot of c.
//
// Postcondition: Returns 0-based indices into c.Attacks, or an error wrapping
// ErrPolicyScript. Indices are not checked against c; the fight does that.
func (p *LuaPolicy) Select(c *combat.Combatant) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.L == nil {
		return nil, fmt.Errorf("%w: %s is closed", ErrPolicyScript, p.name)
	}
	L := p.L

	cancel := refill(L, p.limit)
	defer func() {
		cancel()
		L.RemoveContext()
		L.SetTop(0)
	}()

	hook, err := p.instantiate(L)
	if err == nil {
		err = L.CallByParam(lua.P{Fn: hook, NRet: 1, Protect: true}, combatantTable(L, c))
		if err != nil {
			err = fmt.Errorf("%w: %s: %v", ErrPolicyScript, p.name, err)
		}
	}
	if err != nil {
		p.logger.Warn("lua policy runtime error",
			zap.String("policy", p.name),
			zap.String("combatant", c.Name),
			zap.Error(err),
		)
		return nil, err
	}
	return toIndices(p.name, L.Get(-1))
}

// instantiate runs the script chunk in a new environment and returns the
// select_attacks it defines.
func (p *LuaPolicy) instantiate(L *lua.LState) (*lua.LFunction, error) {
	env := L.NewTable()
	env.RawSetString("_G", env)
	L.SetMetatable(env, p.envMeta)

	chunk := L.NewFunctionFromProto(p.chunk)
	chunk.Env = env
	if err := L.CallByParam(lua.P{Fn: chunk, NRet: 0, Protect: true}); err != nil {
		return nil, fmt.Errorf("%w: running %s: %v", ErrPolicyScript, p.name, err)
	}
	hook, ok := env.RawGetString(SelectHook).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not define function %s", ErrPolicyScript, p.name, SelectHook)
	}
	return hook, nil
}

func combatantTable(L *lua.LState, c *combat.Combatant) *lua.LTable {
	self := L.NewTable()
	self.RawSetString("name", lua.LString(c.Name))
	self.RawSetString("side", lua.LString(c.Side.String()))
	self.RawSetString("hp", lua.LNumber(c.CurrentHP))
	self.RawSetString("max_hp", lua.LNumber(c.MaxHP))
	self.RawSetString("ac", lua.LNumber(c.AC))

	attacks := L.NewTable()
	for i := range c.Attacks {
		a := &c.Attacks[i]
		t := L.NewTable()
		t.RawSetString("name", lua.LString(a.Name))
		t.RawSetString("to_hit", lua.LNumber(a.ToHit))
		t.RawSetString("damage", lua.LString(a.Damage))
		t.RawSetString("damage_type", lua.LString(a.DamageType))
		t.RawSetString("recharge", lua.LNumber(a.Recharge))
		t.RawSetString("available", lua.LBool(c.Usable(i)))
		t.RawSetString("save", lua.LBool(a.IsSave()))
		t.RawSetString("average", lua.LNumber(a.DamageExpression().Average()))
		attacks.Append(t)
	}
	self.RawSetString("attacks", attacks)
	return self
}

func toIndices(name string, v lua.LValue) ([]int, error) {
	switch v := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LNumber:
		i, err := toIndex(name, v)
		if err != nil {
			return nil, err
		}
		return []int{i}, nil
	case *lua.LTable:
		out := make([]int, 0, v.Len())
		for n := 1; n <= v.Len(); n++ {
			num, ok := v.RawGetInt(n).(lua.LNumber)
			if !ok {
				return nil, fmt.Errorf("%w: %s returned a non-number at position %d", ErrPolicyScript, name, n)
			}
			i, err := toIndex(name, num)
			if err != nil {
				return nil, err
			}
			out = append(out, i)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s returned %s, want an index or a table of indices", ErrPolicyScript, name, v.Type())
	}
}

func toIndex(name string, n lua.LNumber) (int, error) {
	f := float64(n)
	if f != float64(int(f)) {
		return 0, fmt.Errorf("%w: %s returned non-integer index %v", ErrPolicyScript, name, f)
	}
	return int(f) - 1, nil
}
