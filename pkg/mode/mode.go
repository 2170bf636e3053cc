// Package mode implements yokan's mode-bitmask state gate: the recognized
// flag bits, their mutual-exclusion table, and the validation entry point
// every data-plane handler calls before touching the backend.
package mode

import "github.com/yokan-project/yokan/pkg/status"

// Flag is a single mode bit. Flags are combined with bitwise OR into a Mode.
type Flag uint64

const (
	INCLUSIVE Flag = 1 << iota
	APPEND
	CONSUME
	WAIT
	NOTFOUND
	KEEP_LAST
	SUFFIX
	LUA_FILTER
	LIB_FILTER
	IGNORE_KEYS
	KEYS_ONLY
	NO_RDMA
	NO_PREFIX
	LATEST
	PACKED
	UPDATE_NEW
	EXIST_ONLY
	NEW_ONLY
	NO_VALUE
)

// Mode is a bitmask of Flags.
type Mode uint64

func (m Mode) Has(f Flag) bool { return uint64(m)&uint64(f) != 0 }

func (m Mode) Set(f Flag) Mode { return Mode(uint64(m) | uint64(f)) }

// exclusionPairs lists every pair of flags that may not both be set.
var exclusionPairs = [][2]Flag{
	{APPEND, NEW_ONLY},
	{NEW_ONLY, EXIST_ONLY},
	{SUFFIX, LUA_FILTER},
	{LIB_FILTER, SUFFIX},
	{LUA_FILTER, LIB_FILTER},
}

// Validate checks the mutual-exclusion table. It does not know about
// per-backend capability (that is supportsMode, checked separately by the
// caller against the chosen backend) — this is purely the static bitmask
// check that must run before the backend is ever invoked.
func Validate(m Mode) status.Status {
	for _, pair := range exclusionPairs {
		if m.Has(pair[0]) && m.Has(pair[1]) {
			return status.New(status.ErrInvalidMode,
				"mode bits %v and %v are mutually exclusive", pair[0], pair[1])
		}
	}
	return status.OK
}

// String names each single flag; any other value, including a combination
// of flags, is reported as "Flag(unknown)".
func (f Flag) String() string {
	switch f {
	case INCLUSIVE:
		return "INCLUSIVE"
	case APPEND:
		return "APPEND"
	case CONSUME:
		return "CONSUME"
	case WAIT:
		return "WAIT"
	case NOTFOUND:
		return "NOTFOUND"
	case KEEP_LAST:
		return "KEEP_LAST"
	case SUFFIX:
		return "SUFFIX"
	case LUA_FILTER:
		return "LUA_FILTER"
	case LIB_FILTER:
		return "LIB_FILTER"
	case IGNORE_KEYS:
		return "IGNORE_KEYS"
	case KEYS_ONLY:
		return "KEYS_ONLY"
	case NO_RDMA:
		return "NO_RDMA"
	case NO_PREFIX:
		return "NO_PREFIX"
	case LATEST:
		return "LATEST"
	case PACKED:
		return "PACKED"
	case UPDATE_NEW:
		return "UPDATE_NEW"
	case EXIST_ONLY:
		return "EXIST_ONLY"
	case NEW_ONLY:
		return "NEW_ONLY"
	case NO_VALUE:
		return "NO_VALUE"
	default:
		return "Flag(unknown)"
	}
}
