package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duelsim/internal/game/dice"
)

// RegisterModules registers the duel.* helper table into L:
//
//	duel.average(expr)  expected total of a dice expression
//	duel.min(expr)      smallest total
//	duel.max(expr)      largest total
//	duel.log(msg)       writes msg to the debug log
//
// Precondition: L must be from NewSandboxedState; logger must be non-nil.
// Postcondition: duel global is defined in L.
func RegisterModules(L *lua.LState, logger *zap.Logger) {
	mod := L.NewTable()
	L.SetField(mod, "average", L.NewFunction(exprFunc(func(e dice.Expression) lua.LNumber {
		return lua.LNumber(e.Average())
	})))
	L.SetField(mod, "min", L.NewFunction(exprFunc(func(e dice.Expression) lua.LNumber {
		return lua.LNumber(e.Min())
	})))
	L.SetField(mod, "max", L.NewFunction(exprFunc(func(e dice.Expression) lua.LNumber {
		return lua.LNumber(e.Max())
	})))
	L.SetField(mod, "log", L.NewFunction(func(L *lua.LState) int {
		logger.Debug("lua policy", zap.String("msg", L.CheckString(1)))
		return 0
	}))
	L.SetGlobal("duel", mod)
}

func exprFunc(fn func(dice.Expression) lua.LNumber) lua.LGFunction {
	return func(L *lua.LState) int {
		e, err := dice.Parse(L.CheckString(1))
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(fn(e))
		return 1
	}
}
