package filter

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yokan-project/yokan/pkg/mode"
)

func TestDefaultFilterPrefix(t *testing.T) {
	f, err := New(mode.Mode(0), []byte("ab"))
	require.NoError(t, err)
	require.True(t, f.Accept([]byte("abc"), nil))
	require.False(t, f.Accept([]byte("xab"), nil))
}

func TestDefaultFilterSuffix(t *testing.T) {
	m := mode.Mode(0).Set(mode.SUFFIX)
	f, err := New(m, []byte("bc"))
	require.NoError(t, err)
	require.True(t, f.Accept([]byte("abc"), nil))
	require.False(t, f.Accept([]byte("bca"), nil))
}

func TestDefaultFilterEmptyParamAcceptsAll(t *testing.T) {
	f, err := New(mode.Mode(0), nil)
	require.NoError(t, err)
	require.True(t, f.Accept([]byte("anything"), nil))
}

func TestDefaultFilterKeyCopyIsIdentity(t *testing.T) {
	f, err := New(mode.Mode(0), nil)
	require.NoError(t, err)
	out := make([]byte, 3)
	n := f.KeyCopy([]byte("xyz"), out)
	require.Equal(t, 3, n)
	require.Equal(t, []byte("xyz"), out)
}

func TestLuaFilterAcceptsByScript(t *testing.T) {
	src := `function filter(key, value) return string.sub(key, 1, 1) == "a" end`
	m := mode.Mode(0).Set(mode.LUA_FILTER)
	f, err := New(m, []byte(src))
	require.NoError(t, err)
	require.True(t, f.Accept([]byte("apple"), []byte("v")))
	require.False(t, f.Accept([]byte("banana"), []byte("v")))
}

func TestLuaFilterRejectsMissingFunction(t *testing.T) {
	m := mode.Mode(0).Set(mode.LUA_FILTER)
	_, err := New(m, []byte("x = 1"))
	require.Error(t, err)
}

func TestLuaFilterProjection(t *testing.T) {
	src := `
function filter(key, value) return true end
function project(key, value) return string.upper(key), true end
`
	m := mode.Mode(0).Set(mode.LUA_FILTER)
	f, err := New(m, []byte(src))
	require.NoError(t, err)
	out := make([]byte, 8)
	n := f.KeyCopy([]byte("abc"), out)
	require.Equal(t, "ABC", string(out[:n]))
}

func TestDocFilterDefaultAcceptsAndCopies(t *testing.T) {
	f, err := NewDoc(mode.Mode(0), nil)
	require.NoError(t, err)
	require.True(t, f.Accept([]byte("doc body")))
	out := make([]byte, 8)
	n := f.Copy([]byte("doc body"), out)
	require.Equal(t, "doc body", string(out[:n]))
}

func TestLuaDocFilter(t *testing.T) {
	src := `function filter(doc) return #doc > 3 end`
	m := mode.Mode(0).Set(mode.LUA_FILTER)
	f, err := NewDoc(m, []byte(src))
	require.NoError(t, err)
	require.True(t, f.Accept([]byte("hello")))
	require.False(t, f.Accept([]byte("hi")))
}
