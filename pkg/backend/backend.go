// Package backend defines the pluggable storage contract that every
// database type (in-memory hash map, ordered map, on-disk B-tree, ...)
// implements, plus the sentinel values and packed/fixed-slot output
// conventions shared by every listing and batch-get operation.
package backend

import (
	"github.com/yokan-project/yokan/pkg/filter"
	"github.com/yokan-project/yokan/pkg/mode"
	"github.com/yokan-project/yokan/pkg/status"
)

// Size-array sentinels. Real sizes never reach this range because a value
// this large could never fit on the wire, so the high end of the u64
// space is free to carry out-of-band markers.
const (
	LastValidSize uint64 = 1<<64 - 1<<16
	KeyNotFound   uint64 = 1<<64 - 4
	BufTooSmall   uint64 = 1<<64 - 3
	NoMoreKeys    uint64 = 1<<64 - 2
)

// Entry is one (key, value) pair produced by a listing or iteration.
type Entry struct {
	Key   []byte
	Value []byte
}

// KVCallback is invoked once per result by Fetch and Iter, in the order
// documented on those methods. A non-OK return short-circuits the scan.
type KVCallback func(key, value []byte) status.Status

// DocCallback is the document-layer analogue of KVCallback.
type DocCallback func(id uint64, doc []byte) status.Status

// Database is the storage backend contract. Every method is safe for
// concurrent use; intra-operation atomicity (e.g. a single put across
// several keys is NOT atomic across keys, only per key) is documented on
// each method individually.
type Database interface {
	// SupportsMode reports whether m is a combination this backend can
	// honor at all (independent of the static mutual-exclusion check
	// already performed by mode.Validate).
	SupportsMode(m mode.Mode) bool

	Count() (uint64, status.Status)

	// Put stores each (keys[i], values[i]) pair. Atomic per pair, not
	// across pairs: a failure on pair 3 does not roll back pairs 0-2.
	Put(m mode.Mode, keys, values [][]byte) status.Status

	// Get is the fixed-slot read: outSizes[i] holds the capacity of
	// outValues[i] on entry, and on return the value length (after copying
	// the value in), KeyNotFound, or BufTooSmall. Packed output is
	// GetPacked.
	Get(m mode.Mode, keys [][]byte, outSizes []uint64, outValues [][]byte) status.Status

	// GetPacked is the packed-output variant of Get: it returns the
	// concatenated payload and a parallel size array, writing BufTooSmall
	// into a slot whose value did not fit within maxBytes total.
	GetPacked(m mode.Mode, keys [][]byte, maxBytes uint64) ([]byte, []uint64, status.Status)

	// Fetch streams one callback invocation per requested key, in the
	// same order as keys. KeyNotFound keys still get a callback with a
	// nil value; the callback itself should consult Exists if it needs
	// to distinguish a missing key from an empty value.
	Fetch(m mode.Mode, keys [][]byte, cb KVCallback) status.Status

	// Exists sets bit i of the returned bitfield iff keys[i] is present.
	Exists(m mode.Mode, keys [][]byte) ([]byte, status.Status)

	// Length writes KeyNotFound for absent keys, else the value length.
	Length(m mode.Mode, keys [][]byte) ([]uint64, status.Status)

	Erase(m mode.Mode, keys [][]byte) status.Status

	// ListKeys returns up to max keys strictly after fromKey (at or after
	// it with mode.INCLUSIVE; from the start, if fromKey is empty) that
	// satisfy filter.
	ListKeys(m mode.Mode, max int, fromKey []byte, f filter.Filter) ([][]byte, status.Status)

	// ListKeyValues is ListKeys plus the matching values.
	ListKeyValues(m mode.Mode, max int, fromKey []byte, f filter.Filter) ([]Entry, status.Status)

	// Iter walks the full keyspace starting strictly after fromKey (at or
	// after it with mode.INCLUSIVE), invoking cb once per accepted entry in
	// backend order.
	Iter(m mode.Mode, max int, fromKey []byte, f filter.Filter, noValues bool, cb KVCallback) status.Status

	CollCreate(name string) status.Status
	CollDrop(name string) status.Status
	CollExists(name string) (bool, status.Status)
	CollSize(name string) (uint64, status.Status)
	CollLastID(name string) (uint64, status.Status)

	// DocStore assigns and returns a fresh, monotonically increasing id
	// within the named collection for each document in docs.
	DocStore(m mode.Mode, coll string, docs [][]byte) ([]uint64, status.Status)

	// DocUpdate overwrites the documents at ids. With mode.UPDATE_NEW an
	// id beyond the current last_id is allowed and extends the id space;
	// without it, an out-of-range id fails the whole call.
	DocUpdate(m mode.Mode, coll string, ids []uint64, docs [][]byte) status.Status

	DocLoad(m mode.Mode, coll string, ids []uint64) ([][]byte, status.Status)

	DocFetch(m mode.Mode, coll string, ids []uint64, cb DocCallback) status.Status

	DocList(m mode.Mode, coll string, max int, fromID uint64, f filter.DocFilter) ([]uint64, [][]byte, status.Status)

	DocIter(m mode.Mode, coll string, max int, fromID uint64, f filter.DocFilter, cb DocCallback) status.Status

	DocSize(coll string, id uint64) (uint64, status.Status)

	DocErase(coll string, ids []uint64) status.Status

	// Close releases backend resources. Called once, after every
	// in-flight request on this database has drained.
	Close() status.Status
}

// Factory constructs a Database from its backend-specific JSON config.
type Factory func(config []byte) (Database, status.Status)

var factories = map[string]Factory{}

// Register makes a backend type available to New under tag. Called from
// each backend implementation's init().
func Register(tag string, f Factory) {
	factories[tag] = f
}

// New looks up the backend registered under tag and constructs it.
func New(tag string, config []byte) (Database, status.Status) {
	f, ok := factories[tag]
	if !ok {
		return nil, status.New(status.ErrInvalidBackend, "no backend registered for tag %q", tag)
	}
	return f(config)
}
