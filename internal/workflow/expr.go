package workflow

import (
	"fmt"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Evaluator runs workflow expressions in a sandboxed Lua state. Each
// evaluation gets a fresh state: no file or OS access, no load
// functions, and no non-deterministic math. Execution variables are
// exposed through a `vars` table; variables whose names are plain
// identifiers are also bound as globals, so both `count > 3` and
// `vars["build.status"] == "ok"` work.
type Evaluator struct{}

// NewEvaluator creates an expression evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate runs the expression against the variables and returns its
// value as a Go value.
func (e *Evaluator) Evaluate(expr string, vars map[string]any) (any, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	openSafeLibs(L)

	tbl := L.NewTable()
	for k, v := range vars {
		L.SetField(tbl, k, goToLua(L, v))
		if isIdentifier(k) {
			L.SetGlobal(k, goToLua(L, v))
		}
	}
	// Dotted names bind after the plain globals so "build.output" lands
	// inside the table "build" already points at.
	for k, v := range vars {
		if strings.Contains(k, ".") {
			bindDotted(L, k, goToLua(L, v))
		}
	}
	L.SetGlobal("vars", tbl)

	if err := L.DoString("return (" + expr + ")"); err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	return luaToGo(L.Get(-1)), nil
}

// EvaluateBool evaluates the expression and applies Lua truthiness:
// nil and false are false, everything else is true.
func (e *Evaluator) EvaluateBool(expr string, vars map[string]any) (bool, error) {
	v, err := e.Evaluate(expr, vars)
	if err != nil {
		return false, err
	}
	switch val := v.(type) {
	case nil:
		return false, nil
	case bool:
		return val, nil
	default:
		return true, nil
	}
}

// EvaluateString evaluates the expression and stringifies the result
// for switch-branch matching.
func (e *Evaluator) EvaluateString(expr string, vars map[string]any) (string, error) {
	v, err := e.Evaluate(expr, vars)
	if err != nil {
		return "", err
	}
	return stringify(v), nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// openSafeLibs loads only side-effect-free standard libraries and strips
// the escape hatches from base.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil)

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	if tbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

// bindDotted exposes a dotted variable name as a nested table path, so
// expressions can read "loop.iteration" or "build.output" directly. The
// binding is skipped when any path segment is not an identifier or a
// non-table variable already owns part of the path.
func bindDotted(L *lua.LState, name string, v lua.LValue) {
	parts := strings.Split(name, ".")
	for _, p := range parts {
		if !isIdentifier(p) {
			return
		}
	}

	cur := L.GetGlobal(parts[0])
	tbl, ok := cur.(*lua.LTable)
	if !ok {
		if cur != lua.LNil {
			return
		}
		tbl = L.NewTable()
		L.SetGlobal(parts[0], tbl)
	}
	for _, p := range parts[1 : len(parts)-1] {
		field := L.GetField(tbl, p)
		next, ok := field.(*lua.LTable)
		if !ok {
			if field != lua.LNil {
				return
			}
			next = L.NewTable()
			L.SetField(tbl, p, next)
		}
		tbl = next
	}
	L.SetField(tbl, parts[len(parts)-1], v)
}

// isIdentifier reports whether the name can be bound as a Lua global.
func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return !luaReserved[name]
}

var luaReserved = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "if": true,
	"in": true, "local": true, "nil": true, "not": true, "or": true,
	"repeat": true, "return": true, "then": true, "true": true,
	"until": true, "while": true,
}

// goToLua converts a Go value to its Lua equivalent.
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
		tbl := L.NewTable()
		for i, item := range val {
			L.SetTable(tbl, lua.LNumber(i+1), goToLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			L.SetField(tbl, k, goToLua(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// luaToGo converts a Lua value back to a Go value. Tables with a
// contiguous 1..n integer key range become slices, others become maps.
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
		maxN := val.MaxN()
		if maxN > 0 {
			out := make([]any, 0, maxN)
			for i := 1; i <= maxN; i++ {
				out = append(out, luaToGo(val.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any)
		val.ForEach(func(k, item lua.LValue) {
			out[lua.LVAsString(k)] = luaToGo(item)
		})
		return out
	default:
		return strings.TrimSpace(val.String())
	}
}
