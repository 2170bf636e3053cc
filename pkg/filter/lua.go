package filter

import (
	lua "github.com/yuin/gopher-lua"
)

// luaFilter scripts the key-value predicate with a user-supplied Lua
// program. The program must define:
//
//	function filter(key, value) return true/false end
//	function project(key, value) return bytes, true/false end  -- optional
//
// project is optional; when absent KeyCopy falls back to copying key
// unchanged, matching the default byte filter's behavior.
type luaFilter struct {
	src     string
	hasProj bool
}

func newLuaFilter(param []byte) (*luaFilter, error) {
	f := &luaFilter{src: string(param)}
	L := lua.NewState()
	defer L.Close()
	if err := L.DoString(f.src); err != nil {
		return nil, errInvalidFilter("lua filter: %s", err)
	}
	if L.GetGlobal("filter") == lua.LNil {
		return nil, errInvalidFilter("lua filter: missing global function 'filter'")
	}
	f.hasProj = L.GetGlobal("project") != lua.LNil
	return f, nil
}

func (f *luaFilter) Accept(key, value []byte) bool {
	L := lua.NewState()
	defer L.Close()
	if err := L.DoString(f.src); err != nil {
		return false
	}
	if err := L.CallByParam(lua.P{Fn: L.GetGlobal("filter"), NRet: 1, Protect: true},
		lua.LString(key), lua.LString(value)); err != nil {
		return false
	}
	ret := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(ret)
}

func (f *luaFilter) project(key, value []byte) ([]byte, bool) {
	if !f.hasProj {
		return key, true
	}
	L := lua.NewState()
	defer L.Close()
	if err := L.DoString(f.src); err != nil {
		return nil, false
	}
	if err := L.CallByParam(lua.P{Fn: L.GetGlobal("project"), NRet: 2, Protect: true},
		lua.LString(key), lua.LString(value)); err != nil {
		return nil, false
	}
	ok := L.Get(-1)
	data := L.Get(-2)
	L.Pop(2)
	if !lua.LVAsBool(ok) {
		return nil, false
	}
	s, isStr := data.(lua.LString)
	if !isStr {
		return nil, false
	}
	return []byte(s), true
}

func (f *luaFilter) KeySizeFrom(key []byte) int {
	projected, ok := f.project(key, nil)
	if !ok {
		return 0
	}
	return len(projected)
}

func (f *luaFilter) KeyCopy(key, out []byte) int {
	projected, ok := f.project(key, nil)
	if !ok {
		return 0
	}
	return copy(out, projected)
}

// luaDocFilter is the document-layer counterpart: filter(doc) and
// project(doc) both take a single argument.
type luaDocFilter struct {
	src     string
	hasProj bool
}

func newLuaDocFilter(param []byte) (*luaDocFilter, error) {
	f := &luaDocFilter{src: string(param)}
	L := lua.NewState()
	defer L.Close()
	if err := L.DoString(f.src); err != nil {
		return nil, errInvalidFilter("lua doc filter: %s", err)
	}
	if L.GetGlobal("filter") == lua.LNil {
		return nil, errInvalidFilter("lua doc filter: missing global function 'filter'")
	}
	f.hasProj = L.GetGlobal("project") != lua.LNil
	return f, nil
}

func (f *luaDocFilter) Accept(doc []byte) bool {
	L := lua.NewState()
	defer L.Close()
	if err := L.DoString(f.src); err != nil {
		return false
	}
	if err := L.CallByParam(lua.P{Fn: L.GetGlobal("filter"), NRet: 1, Protect: true},
		lua.LString(doc)); err != nil {
		return false
	}
	ret := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(ret)
}

func (f *luaDocFilter) project(doc []byte) ([]byte, bool) {
	if !f.hasProj {
		return doc, true
	}
	L := lua.NewState()
	defer L.Close()
	if err := L.DoString(f.src); err != nil {
		return nil, false
	}
	if err := L.CallByParam(lua.P{Fn: L.GetGlobal("project"), NRet: 2, Protect: true},
		lua.LString(doc)); err != nil {
		return nil, false
	}
	ok := L.Get(-1)
	data := L.Get(-2)
	L.Pop(2)
	if !lua.LVAsBool(ok) {
		return nil, false
	}
	s, isStr := data.(lua.LString)
	if !isStr {
		return nil, false
	}
	return []byte(s), true
}

func (f *luaDocFilter) SizeFrom(doc []byte) int {
	projected, ok := f.project(doc)
	if !ok {
		return 0
	}
	return len(projected)
}

func (f *luaDocFilter) Copy(doc, out []byte) int {
	projected, ok := f.project(doc)
	if !ok {
		return 0
	}
	return copy(out, projected)
}
