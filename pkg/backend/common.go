package backend

import (
	"bytes"
	"sort"

	"github.com/yokan-project/yokan/pkg/mode"
	"github.com/yokan-project/yokan/pkg/status"
)

// validateKeys rejects any zero-length key, matching the uniform
// validation rule every data-plane op applies before touching storage.
func validateKeys(keys [][]byte) status.Status {
	for _, k := range keys {
		if len(k) == 0 {
			return status.New(status.ErrInvalidArgs, "zero-length key")
		}
	}
	return status.OK
}

// putGuard reports whether a put of a key whose current presence is
// `exists` should proceed, given mode.NEW_ONLY / mode.EXIST_ONLY.
func putGuard(m mode.Mode, exists bool) bool {
	if m.Has(mode.NEW_ONLY) && exists {
		return false
	}
	if m.Has(mode.EXIST_ONLY) && !exists {
		return false
	}
	return true
}

// nextValue computes the value to store for a put, honoring mode.APPEND.
func nextValue(m mode.Mode, old []byte, oldExists bool, newValue []byte) []byte {
	if m.Has(mode.APPEND) && oldExists {
		out := make([]byte, 0, len(old)+len(newValue))
		out = append(out, old...)
		out = append(out, newValue...)
		return out
	}
	return newValue
}

// packValues concatenates values and writes a parallel size array,
// marking any value that would overflow maxBytes as BufTooSmall and
// skipping it from the concatenated payload.
func packValues(values [][]byte, present []bool, maxBytes uint64) ([]byte, []uint64) {
	sizes := make([]uint64, len(values))
	out := make([]byte, 0, maxBytes)
	var used uint64
	for i, v := range values {
		if !present[i] {
			sizes[i] = KeyNotFound
			continue
		}
		if used+uint64(len(v)) > maxBytes {
			sizes[i] = BufTooSmall
			continue
		}
		sizes[i] = uint64(len(v))
		out = append(out, v...)
		used += uint64(len(v))
	}
	return out, sizes
}

// sortedKeysAfter returns keys from a snapshot that come at or after
// fromKey in byte order (or from the start if fromKey is empty), sorted
// ascending. fromKey itself is included only when inclusive is true
// (mode.INCLUSIVE). Used by backends whose native storage has no
// ordering of its own.
func sortedKeysAfter(keys [][]byte, fromKey []byte, inclusive bool) [][]byte {
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if len(fromKey) == 0 {
			out = append(out, k)
			continue
		}
		cmp := bytes.Compare(k, fromKey)
		if cmp > 0 || (inclusive && cmp == 0) {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	return out
}

func sortUint64s(s []uint64) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
