// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"fmt"
	"math"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/cogwheel/internal/cog"
)

// fromLua converts a Lua value into plain Go values: nil, bool, int64 or
// float64, string, []any for sequences and map[string]any for other tables.
func fromLua(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		f := float64(val)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(val)
	case *lua.LUserData:
		return val.Value
	case *lua.LTable:
		return tableFromLua(val)
	default:
		return v.String()
	}
}

func tableFromLua(t *lua.LTable) any {
	n := t.MaxN()
	hashOnly := false
	count := 0
	t.ForEach(func(k, _ lua.LValue) {
		count++
		if _, ok := k.(lua.LNumber); !ok {
			hashOnly = true
		}
	})

	if !hashOnly && n > 0 && count == n {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			out = append(out, fromLua(t.RawGetInt(i)))
		}
		return out
	}

	out := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		out[k.String()] = fromLua(v)
	})
	return out
}

// toLua converts a Go value into a Lua value for handler arguments.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []string:
		t := L.NewTable()
		for _, s := range val {
			t.Append(lua.LString(s))
		}
		return t
	case []any:
		t := L.NewTable()
		for _, e := range val {
			t.Append(toLua(L, e))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.RawSetString(k, toLua(L, val[k]))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(val))
	}
}

// hostValue wraps the opaque host handle so Lua can pass it around.
func hostValue(L *lua.LState, host any) lua.LValue {
	if host == nil {
		return lua.LNil
	}
	ud := L.NewUserData()
	ud.Value = host
	return ud
}

// callTable builds the argument table a Lua command handler receives.
func callTable(L *lua.LState, call *cog.Call) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("command", lua.LString(call.Command))
	t.RawSetString("invoked_as", lua.LString(call.InvokedAs))
	t.RawSetString("args", toLua(L, call.Args))
	opts := L.NewTable()
	if call.Options != nil {
		opts = toLua(L, call.Options).(*lua.LTable)
	}
	t.RawSetString("options", opts)
	t.RawSetString("host", hostValue(L, call.Host))
	return t
}
