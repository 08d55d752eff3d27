package expression

import (
	"fmt"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Evaluator runs field value transforms using gopher-lua.
// An Evaluator owns one Lua state and must not be shared between goroutines.
type Evaluator struct {
	luaState *lua.LState
}

// NewEvaluator creates a new expression evaluator
func NewEvaluator() *Evaluator {
	L := lua.NewState()

	evaluator := &Evaluator{
		luaState: L,
	}

	evaluator.registerTransformFunctions()

	return evaluator
}

// Close closes the Lua state
func (e *Evaluator) Close() {
	if e.luaState != nil {
		e.luaState.Close()
	}
}

// Transform evaluates expression with the submitted value bound to `value`
// and returns the result converted back to Go.
func (e *Evaluator) Transform(expression string, value interface{}) (interface{}, error) {
	if strings.TrimSpace(expression) == "" {
		return value, nil
	}

	luaValue, err := e.goValueToLua(value)
	if err != nil {
		return nil, fmt.Errorf("failed to convert value for transform '%s': %v", expression, err)
	}
	e.luaState.SetGlobal("value", luaValue)
	defer e.luaState.SetGlobal("value", lua.LNil)

	result, err := e.evaluateLuaExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate transform '%s': %v", expression, err)
	}
	return result, nil
}

// Check compiles expression without running it
func (e *Evaluator) Check(expression string) error {
	if _, err := e.compile(expression); err != nil {
		return fmt.Errorf("invalid transform '%s': %v", expression, err)
	}
	return nil
}

// compile loads expression as a Lua expression, falling back to a chunk of
// statements when it is not one.
func (e *Evaluator) compile(expression string) (*lua.LFunction, error) {
	if fn, err := e.luaState.LoadString("return " + expression); err == nil {
		return fn, nil
	}
	return e.luaState.LoadString(expression)
}

// evaluateLuaExpression evaluates a Lua expression and returns the result
func (e *Evaluator) evaluateLuaExpression(expression string) (interface{}, error) {
	L := e.luaState

	fn, err := e.compile(expression)
	if err != nil {
		return nil, fmt.Errorf("Lua execution error: %v", err)
	}

	top := L.GetTop()
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.SetTop(top)
		return nil, fmt.Errorf("Lua execution error: %v", err)
	}
	if L.GetTop() == top {
		return nil, nil
	}

	result := L.Get(-1)
	L.SetTop(top)

	return e.luaValueToGo(result), nil
}

// goValueToLua converts a Go value to a Lua value
func (e *Evaluator) goValueToLua(value interface{}) (lua.LValue, error) {
	switch v := value.(type) {
	case nil:
		return lua.LNil, nil
	case bool:
		return lua.LBool(v), nil
	case int:
		return lua.LNumber(v), nil
	case int64:
		return lua.LNumber(v), nil
	case float64:
		return lua.LNumber(v), nil
	case string:
		return lua.LString(v), nil
	case []string:
		table := e.luaState.NewTable()
		for i, item := range v {
			table.RawSetInt(i+1, lua.LString(item))
		}
		return table, nil
	case []interface{}:
		table := e.luaState.NewTable()
		for i, item := range v {
			luaItem, err := e.goValueToLua(item)
			if err != nil {
				return nil, fmt.Errorf("failed to convert slice item %d: %v", i, err)
			}
			table.RawSetInt(i+1, luaItem) // Lua arrays are 1-indexed
		}
		return table, nil
	case map[string]interface{}:
		table := e.luaState.NewTable()
		for key, val := range v {
			luaVal, err := e.goValueToLua(val)
			if err != nil {
				return nil, fmt.Errorf("failed to convert map value for key %s: %v", key, err)
			}
			table.RawSetString(key, luaVal)
		}
		return table, nil
	default:
		return lua.LString(fmt.Sprintf("%v", v)), nil
	}
}

// luaValueToGo converts a Lua value to a Go value
func (e *Evaluator) luaValueToGo(value lua.LValue) interface{} {
	switch v := value.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		num := float64(v)
		if num == float64(int64(num)) {
			return int(num)
		}
		return num
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if e.isLuaArray(v) {
			return e.luaTableToSlice(v)
		}
		return e.luaTableToMap(v)
	default:
		return v.String()
	}
}

// isLuaArray checks if a Lua table is an array (consecutive integer keys starting from 1)
func (e *Evaluator) isLuaArray(table *lua.LTable) bool {
	length := table.Len()
	if length == 0 {
		return false
	}

	hasNonIntegerKeys := false
	table.ForEach(func(key, value lua.LValue) {
		keyNum, ok := key.(lua.LNumber)
		if !ok || int(keyNum) < 1 || int(keyNum) > length {
			hasNonIntegerKeys = true
		}
	})

	return !hasNonIntegerKeys
}

func (e *Evaluator) luaTableToSlice(table *lua.LTable) []interface{} {
	length := table.Len()
	result := make([]interface{}, length)

	for i := 1; i <= length; i++ {
		result[i-1] = e.luaValueToGo(table.RawGetInt(i))
	}

	return result
}

func (e *Evaluator) luaTableToMap(table *lua.LTable) map[string]interface{} {
	result := make(map[string]interface{})

	table.ForEach(func(key, value lua.LValue) {
		keyStr := e.luaValueToGo(key)
		result[fmt.Sprintf("%v", keyStr)] = e.luaValueToGo(value)
	})

	return result
}

// registerTransformFunctions registers helpers available to transforms
func (e *Evaluator) registerTransformFunctions() {
	L := e.luaState

	L.SetGlobal("trim", L.NewFunction(e.luaTrim))
	L.SetGlobal("upper", L.NewFunction(e.luaUpper))
	L.SetGlobal("lower", L.NewFunction(e.luaLower))
	L.SetGlobal("digits", L.NewFunction(e.luaDigits))
	L.SetGlobal("tonumber", L.NewFunction(e.luaToNumber))
	L.SetGlobal("join", L.NewFunction(e.luaJoin))
}

func (e *Evaluator) luaTrim(L *lua.LState) int {
	L.Push(lua.LString(strings.TrimSpace(L.Get(1).String())))
	return 1
}

func (e *Evaluator) luaUpper(L *lua.LState) int {
	L.Push(lua.LString(strings.ToUpper(L.Get(1).String())))
	return 1
}

func (e *Evaluator) luaLower(L *lua.LState) int {
	L.Push(lua.LString(strings.ToLower(L.Get(1).String())))
	return 1
}

// digits strips everything but 0-9 and a leading +
func (e *Evaluator) luaDigits(L *lua.LState) int {
	s := strings.TrimSpace(L.Get(1).String())
	var b strings.Builder
	for i, r := range s {
		if (r >= '0' && r <= '9') || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	L.Push(lua.LString(b.String()))
	return 1
}

func (e *Evaluator) luaToNumber(L *lua.LState) int {
	value := L.Get(1)
	switch v := value.(type) {
	case lua.LNumber:
		L.Push(v)
	case lua.LString:
		if num, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64); err == nil {
			L.Push(lua.LNumber(num))
		} else {
			L.Push(lua.LNil)
		}
	default:
		L.Push(lua.LNil)
	}
	return 1
}

// join concatenates the items of a table with a separator
func (e *Evaluator) luaJoin(L *lua.LState) int {
	table := L.CheckTable(1)
	sep := L.OptString(2, ",")
	var parts []string
	for i := 1; i <= table.Len(); i++ {
		parts = append(parts, table.RawGetInt(i).String())
	}
	L.Push(lua.LString(strings.Join(parts, sep)))
	return 1
}
