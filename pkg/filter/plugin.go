package filter

import (
	"plugin"
	"strings"
)

// newPluginFilter loads a LIB_FILTER filter. param is "path:symbol"; the
// named symbol in the .so at path must be a package-level variable of a
// type implementing Filter. This is the idiomatic Go analogue of loading
// a shared object and resolving a predicate symbol out of it.
func newPluginFilter(param []byte) (Filter, error) {
	path, symbol, err := splitPluginSpec(param)
	if err != nil {
		return nil, err
	}
	p, err := plugin.Open(path)
	if err != nil {
		return nil, errInvalidFilter("lib filter: open %s: %s", path, err)
	}
	sym, err := p.Lookup(symbol)
	if err != nil {
		return nil, errInvalidFilter("lib filter: lookup %s in %s: %s", symbol, path, err)
	}
	f, ok := sym.(Filter)
	if !ok {
		return nil, errInvalidFilter("lib filter: symbol %s in %s does not implement Filter", symbol, path)
	}
	return f, nil
}

// newPluginDocFilter is the document-layer analogue of newPluginFilter.
func newPluginDocFilter(param []byte) (DocFilter, error) {
	path, symbol, err := splitPluginSpec(param)
	if err != nil {
		return nil, err
	}
	p, err := plugin.Open(path)
	if err != nil {
		return nil, errInvalidFilter("lib doc filter: open %s: %s", path, err)
	}
	sym, err := p.Lookup(symbol)
	if err != nil {
		return nil, errInvalidFilter("lib doc filter: lookup %s in %s: %s", symbol, path, err)
	}
	f, ok := sym.(DocFilter)
	if !ok {
		return nil, errInvalidFilter("lib doc filter: symbol %s in %s does not implement DocFilter", symbol, path)
	}
	return f, nil
}

func splitPluginSpec(param []byte) (path, symbol string, err error) {
	spec := string(param)
	idx := strings.LastIndexByte(spec, ':')
	if idx < 0 {
		return "", "", errInvalidFilter("lib filter: malformed spec %q, want path:symbol", spec)
	}
	return spec[:idx], spec[idx+1:], nil
}
