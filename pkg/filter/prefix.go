package filter

import "bytes"

// byteFilter is the default filter: param is interpreted as a prefix
// (or, with SUFFIX set, a suffix) of the key. No projection: KeyCopy is a
// plain copy of the key unchanged.
type byteFilter struct {
	param     []byte
	suffix    bool
	noProject bool
}

func newByteFilter(param []byte, suffix, noPrefix bool) *byteFilter {
	return &byteFilter{param: param, suffix: suffix, noProject: noPrefix}
}

func (f *byteFilter) Accept(key, value []byte) bool {
	if f.noProject || len(f.param) == 0 {
		return true
	}
	if f.suffix {
		return bytes.HasSuffix(key, f.param)
	}
	return bytes.HasPrefix(key, f.param)
}

func (f *byteFilter) KeySizeFrom(key []byte) int { return len(key) }

func (f *byteFilter) KeyCopy(key, out []byte) int {
	return copy(out, key)
}

// byteDocFilter accepts every document unchanged; it is the default when
// no LUA_FILTER/LIB_FILTER bit selects a scripted or plug-in engine.
type byteDocFilter struct{}

func newByteDocFilter() *byteDocFilter { return &byteDocFilter{} }

func (f *byteDocFilter) Accept(doc []byte) bool   { return true }
func (f *byteDocFilter) SizeFrom(doc []byte) int  { return len(doc) }
func (f *byteDocFilter) Copy(doc, out []byte) int { return copy(out, doc) }
