package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/l1jgo/propsrv/internal/property"
)

// Identified is implemented by property owners that scripts can address by
// a numeric handle.
type Identified interface {
	Handle() uint64
}

// Resolver finds the property block of an entity by handle.
type Resolver func(handle uint64) (*property.Properties, bool)

// SetResolver enables entity_find in scripts.
func (e *Engine) SetResolver(fn Resolver) { e.resolve = fn }

// registerAPI installs the script-side property API:
//
//	prop_get(self, name)        -> value
//	prop_set(self, name, value) -> true | nil, err
//	prop_class(self)            -> class name
//	entity_id(self)             -> handle | nil
//	entity_find(handle)         -> self | nil
func (e *Engine) registerAPI() {
	e.vm.SetGlobal("prop_get", e.vm.NewFunction(e.luaPropGet))
	e.vm.SetGlobal("prop_set", e.vm.NewFunction(e.luaPropSet))
	e.vm.SetGlobal("prop_class", e.vm.NewFunction(e.luaPropClass))
	e.vm.SetGlobal("entity_id", e.vm.NewFunction(e.luaEntityID))
	e.vm.SetGlobal("entity_find", e.vm.NewFunction(e.luaEntityFind))
}

func (e *Engine) selfValue(props *property.Properties) lua.LValue {
	if props == nil {
		return lua.LNil
	}
	ud := e.vm.NewUserData()
	ud.Value = props
	return ud
}

func checkProps(L *lua.LState, n int) *property.Properties {
	ud := L.CheckUserData(n)
	props, ok := ud.Value.(*property.Properties)
	if !ok {
		L.ArgError(n, "entity expected")
		return nil
	}
	return props
}

func (e *Engine) luaPropGet(L *lua.LState) int {
	props := checkProps(L, 1)
	name := L.CheckString(2)
	prop := props.Registrator().Find(name)
	if prop == nil {
		L.ArgError(2, "unknown property "+name)
		return 0
	}
	L.Push(e.toLua(prop, props.GetData(prop)))
	return 1
}

func (e *Engine) luaPropSet(L *lua.LState) int {
	props := checkProps(L, 1)
	name := L.CheckString(2)
	prop := props.Registrator().Find(name)
	if prop == nil {
		L.ArgError(2, "unknown property "+name)
		return 0
	}
	fail := func(err error) int {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	if !prop.IsWritable() {
		return fail(fmt.Errorf("%w: %s", property.ErrNotWritable, prop))
	}
	data, err := e.fromLua(prop, L.Get(3))
	if err != nil {
		return fail(err)
	}
	if err := props.SetRawData(prop, data, true); err != nil {
		return fail(err)
	}
	L.Push(lua.LTrue)
	return 1
}

func (e *Engine) luaPropClass(L *lua.LState) int {
	props := checkProps(L, 1)
	L.Push(lua.LString(props.Registrator().Class()))
	return 1
}

func (e *Engine) luaEntityID(L *lua.LState) int {
	props := checkProps(L, 1)
	id, ok := props.Owner().(Identified)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(id.Handle()))
	return 1
}

func (e *Engine) luaEntityFind(L *lua.LState) int {
	handle := uint64(L.CheckNumber(1))
	if e.resolve == nil {
		L.Push(lua.LNil)
		return 1
	}
	props, ok := e.resolve(handle)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(e.selfValue(props))
	return 1
}

// toLua converts raw property bytes to a Lua value: numbers, booleans,
// strings, and arrays of numbers or booleans for lists.
func (e *Engine) toLua(prop *property.Property, data []byte) lua.LValue {
	t := prop.Type()
	switch t.Kind {
	case property.KindText:
		return lua.LString(data)
	case property.KindList:
		tbl := e.vm.NewTable()
		for off := 0; off+t.Size <= len(data); off += t.Size {
			tbl.Append(scalarToLua(t, data[off:off+t.Size]))
		}
		return tbl
	default:
		if len(data) != t.Size {
			return lua.LNil
		}
		return scalarToLua(t, data)
	}
}

func scalarToLua(t property.TypeInfo, data []byte) lua.LValue {
	if t.Number == property.NumberBool {
		return lua.LBool(data[0] != 0)
	}
	return lua.LNumber(property.NumberOf(t, data))
}

// fromLua converts a Lua value to raw property bytes.
func (e *Engine) fromLua(prop *property.Property, v lua.LValue) ([]byte, error) {
	t := prop.Type()
	switch t.Kind {
	case property.KindText:
		switch s := v.(type) {
		case lua.LString:
			return []byte(s), nil
		case lua.LNumber:
			return []byte(s.String()), nil
		}
		return nil, fmt.Errorf("string expected for %s", prop)
	case property.KindList:
		tbl, ok := v.(*lua.LTable)
		if !ok {
			if v == lua.LNil {
				return nil, nil
			}
			return nil, fmt.Errorf("table expected for %s", prop)
		}
		n := tbl.Len()
		out := make([]byte, 0, n*t.Size)
		for i := 1; i <= n; i++ {
			b, err := scalarFromLua(t, tbl.RawGetInt(i))
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", prop, i, err)
			}
			out = append(out, b...)
		}
		return out, nil
	default:
		b, err := scalarFromLua(t, v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", prop, err)
		}
		return b, nil
	}
}

func scalarFromLua(t property.TypeInfo, v lua.LValue) ([]byte, error) {
	if t.Number == property.NumberBool {
		if n, ok := v.(lua.LNumber); ok {
			return property.EncodeNumber(t, float64(n)), nil
		}
		return property.EncodeNumber(t, boolNumber(lua.LVAsBool(v))), nil
	}
	n, ok := v.(lua.LNumber)
	if !ok {
		return nil, fmt.Errorf("number expected, got %s", v.Type())
	}
	return property.EncodeNumber(t, float64(n)), nil
}

func boolNumber(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
