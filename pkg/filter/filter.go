// Package filter builds the key-value and document predicates that gate
// listKeys, listKeyValues, iter, docList and docIter. A filter is always
// derived from a mode bitmask plus an opaque parameter blob: the bitmask
// picks which engine interprets the blob (plain prefix/suffix bytes, Lua
// source, or a loadable plug-in).
package filter

import (
	"github.com/yokan-project/yokan/pkg/mode"
	"github.com/yokan-project/yokan/pkg/status"
)

// Filter is a predicate-plus-projection applied to (key, value) pairs
// during a listing or iteration.
type Filter interface {
	// Accept reports whether the entry should be included at all.
	Accept(key, value []byte) bool
	// KeySizeFrom returns an upper bound on the projected key's size.
	KeySizeFrom(key []byte) int
	// KeyCopy writes the projected key into out and returns the bytes
	// actually written.
	KeyCopy(key, out []byte) int
}

// DocFilter is the document-layer analogue of Filter: a predicate over an
// opaque document body with optional projection.
type DocFilter interface {
	Accept(doc []byte) bool
	// SizeFrom returns an upper bound on the projected document's size.
	SizeFrom(doc []byte) int
	// Copy writes the projected document into out and returns the bytes
	// actually written.
	Copy(doc, out []byte) int
}

// New constructs the Filter implied by m and param. Mutual exclusion
// between SUFFIX/LUA_FILTER/LIB_FILTER must already have been checked by
// mode.Validate; New does not re-check it.
func New(m mode.Mode, param []byte) (Filter, error) {
	switch {
	case m.Has(mode.LUA_FILTER):
		return newLuaFilter(param)
	case m.Has(mode.LIB_FILTER):
		return newPluginFilter(param)
	default:
		return newByteFilter(param, m.Has(mode.SUFFIX), m.Has(mode.NO_PREFIX)), nil
	}
}

// NewDoc constructs the DocFilter implied by m and param.
func NewDoc(m mode.Mode, param []byte) (DocFilter, error) {
	switch {
	case m.Has(mode.LUA_FILTER):
		return newLuaDocFilter(param)
	case m.Has(mode.LIB_FILTER):
		return newPluginDocFilter(param)
	default:
		return newByteDocFilter(), nil
	}
}

func errInvalidFilter(format string, args ...any) status.Status {
	return status.New(status.ErrInvalidFilter, format, args...)
}
