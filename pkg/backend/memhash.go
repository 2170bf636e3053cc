package backend

import (
	"sync"

	"github.com/yokan-project/yokan/pkg/filter"
	"github.com/yokan-project/yokan/pkg/mode"
	"github.com/yokan-project/yokan/pkg/status"
)

func init() {
	Register("memhash", func(config []byte) (Database, status.Status) {
		return newMemHash(), status.OK
	})
}

// memHash is the unordered in-memory backend: a plain Go map guarded by a
// RWMutex. Listing and iteration sort a snapshot of keys on every call,
// since the map itself carries no order.
type memHash struct {
	mu    sync.RWMutex
	data  map[string][]byte
	colls map[string]*collection
}

type collection struct {
	mu   sync.RWMutex
	docs map[uint64][]byte
	// nextID is the id that will be assigned to the next stored document;
	// ids are handed out starting at 0, so the highest assigned id (what
	// CollLastID reports) is nextID-1.
	nextID uint64
}

func newMemHash() *memHash {
	return &memHash{data: make(map[string][]byte), colls: make(map[string]*collection)}
}

func (b *memHash) SupportsMode(m mode.Mode) bool { return true }

func (b *memHash) Count() (uint64, status.Status) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return uint64(len(b.data)), status.OK
}

func (b *memHash) Put(m mode.Mode, keys, values [][]byte) status.Status {
	if s := validateKeys(keys); !s.IsOK() {
		return s
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, k := range keys {
		old, exists := b.data[string(k)]
		if !putGuard(m, exists) {
			continue
		}
		b.data[string(k)] = nextValue(m, old, exists, values[i])
	}
	return status.OK
}

func (b *memHash) Get(m mode.Mode, keys [][]byte, outSizes []uint64, outValues [][]byte) status.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, k := range keys {
		v, ok := b.data[string(k)]
		if !ok {
			outSizes[i] = KeyNotFound
			continue
		}
		if uint64(len(v)) > outSizes[i] {
			outSizes[i] = BufTooSmall
			continue
		}
		n := copy(outValues[i], v)
		outSizes[i] = uint64(n)
		if m.Has(mode.CONSUME) {
			delete(b.data, string(k))
		}
	}
	return status.OK
}

func (b *memHash) GetPacked(m mode.Mode, keys [][]byte, maxBytes uint64) ([]byte, []uint64, status.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	values := make([][]byte, len(keys))
	present := make([]bool, len(keys))
	for i, k := range keys {
		v, ok := b.data[string(k)]
		values[i] = v
		present[i] = ok
		if ok && m.Has(mode.CONSUME) {
			delete(b.data, string(k))
		}
	}
	out, sizes := packValues(values, present, maxBytes)
	return out, sizes, status.OK
}

func (b *memHash) Fetch(m mode.Mode, keys [][]byte, cb KVCallback) status.Status {
	for _, k := range keys {
		b.mu.RLock()
		v, ok := b.data[string(k)]
		b.mu.RUnlock()
		if !ok {
			if s := cb(k, nil); !s.IsOK() {
				return s
			}
			continue
		}
		if m.Has(mode.CONSUME) {
			b.mu.Lock()
			delete(b.data, string(k))
			b.mu.Unlock()
		}
		if s := cb(k, v); !s.IsOK() {
			return s
		}
	}
	return status.OK
}

func (b *memHash) Exists(m mode.Mode, keys [][]byte) ([]byte, status.Status) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]byte, (len(keys)+7)/8)
	for i, k := range keys {
		if _, ok := b.data[string(k)]; ok {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out, status.OK
}

func (b *memHash) Length(m mode.Mode, keys [][]byte) ([]uint64, status.Status) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]uint64, len(keys))
	for i, k := range keys {
		if v, ok := b.data[string(k)]; ok {
			out[i] = uint64(len(v))
		} else {
			out[i] = KeyNotFound
		}
	}
	return out, status.OK
}

func (b *memHash) Erase(m mode.Mode, keys [][]byte) status.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.data, string(k))
	}
	return status.OK
}

func (b *memHash) snapshotKeys() [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([][]byte, 0, len(b.data))
	for k := range b.data {
		out = append(out, []byte(k))
	}
	return out
}

func (b *memHash) ListKeys(m mode.Mode, max int, fromKey []byte, f filter.Filter) ([][]byte, status.Status) {
	keys := sortedKeysAfter(b.snapshotKeys(), fromKey, m.Has(mode.INCLUSIVE))
	out := make([][]byte, 0, max)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, k := range keys {
		if len(out) >= max {
			break
		}
		if !f.Accept(k, b.data[string(k)]) {
			continue
		}
		out = append(out, k)
	}
	return out, status.OK
}

func (b *memHash) ListKeyValues(m mode.Mode, max int, fromKey []byte, f filter.Filter) ([]Entry, status.Status) {
	keys := sortedKeysAfter(b.snapshotKeys(), fromKey, m.Has(mode.INCLUSIVE))
	out := make([]Entry, 0, max)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, k := range keys {
		if len(out) >= max {
			break
		}
		v := b.data[string(k)]
		if !f.Accept(k, v) {
			continue
		}
		out = append(out, Entry{Key: k, Value: v})
	}
	return out, status.OK
}

func (b *memHash) Iter(m mode.Mode, max int, fromKey []byte, f filter.Filter, noValues bool, cb KVCallback) status.Status {
	keys := sortedKeysAfter(b.snapshotKeys(), fromKey, m.Has(mode.INCLUSIVE))
	n := 0
	for _, k := range keys {
		if max > 0 && n >= max {
			break
		}
		b.mu.RLock()
		v, ok := b.data[string(k)]
		b.mu.RUnlock()
		if !ok || !f.Accept(k, v) {
			continue
		}
		if noValues {
			v = nil
		}
		if s := cb(k, v); !s.IsOK() {
			return s
		}
		n++
	}
	return status.OK
}

func (b *memHash) coll(name string) *collection {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.colls[name]
	if !ok {
		c = &collection{docs: make(map[uint64][]byte)}
		b.colls[name] = c
	}
	return c
}

func (b *memHash) CollCreate(name string) status.Status {
	b.coll(name)
	return status.OK
}

func (b *memHash) CollDrop(name string) status.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.colls, name)
	return status.OK
}

func (b *memHash) CollExists(name string) (bool, status.Status) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.colls[name]
	return ok, status.OK
}

func (b *memHash) CollSize(name string) (uint64, status.Status) {
	c := b.coll(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.docs)), status.OK
}

func (b *memHash) CollLastID(name string) (uint64, status.Status) {
	c := b.coll(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.nextID == 0 {
		return 0, status.OK
	}
	return c.nextID - 1, status.OK
}

func (b *memHash) DocStore(m mode.Mode, name string, docs [][]byte) ([]uint64, status.Status) {
	c := b.coll(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]uint64, len(docs))
	for i, d := range docs {
		ids[i] = c.nextID
		c.docs[c.nextID] = d
		c.nextID++
	}
	return ids, status.OK
}

func (b *memHash) DocUpdate(m mode.Mode, name string, ids []uint64, docs [][]byte) status.Status {
	c := b.coll(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range ids {
		if id >= c.nextID {
			if !m.Has(mode.UPDATE_NEW) {
				return status.New(status.ErrInvalidArgs, "document id %d out of range", id)
			}
			c.nextID = id + 1
		}
		c.docs[id] = docs[i]
	}
	return status.OK
}

func (b *memHash) DocLoad(m mode.Mode, name string, ids []uint64) ([][]byte, status.Status) {
	c := b.coll(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([][]byte, len(ids))
	for i, id := range ids {
		out[i] = c.docs[id]
	}
	return out, status.OK
}

func (b *memHash) DocFetch(m mode.Mode, name string, ids []uint64, cb DocCallback) status.Status {
	c := b.coll(name)
	for _, id := range ids {
		c.mu.RLock()
		d := c.docs[id]
		c.mu.RUnlock()
		if s := cb(id, d); !s.IsOK() {
			return s
		}
	}
	return status.OK
}

func (b *memHash) DocList(m mode.Mode, name string, max int, fromID uint64, f filter.DocFilter) ([]uint64, [][]byte, status.Status) {
	c := b.coll(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]uint64, 0, len(c.docs))
	for id := range c.docs {
		if id >= fromID {
			ids = append(ids, id)
		}
	}
	sortUint64s(ids)
	outIDs := make([]uint64, 0, max)
	outDocs := make([][]byte, 0, max)
	for _, id := range ids {
		if len(outIDs) >= max {
			break
		}
		d := c.docs[id]
		if !f.Accept(d) {
			continue
		}
		outIDs = append(outIDs, id)
		outDocs = append(outDocs, d)
	}
	return outIDs, outDocs, status.OK
}

func (b *memHash) DocIter(m mode.Mode, name string, max int, fromID uint64, f filter.DocFilter, cb DocCallback) status.Status {
	ids, docs, s := b.DocList(m, name, max, fromID, f)
	if !s.IsOK() {
		return s
	}
	for i, id := range ids {
		if s := cb(id, docs[i]); !s.IsOK() {
			return s
		}
	}
	return status.OK
}

func (b *memHash) DocSize(name string, id uint64) (uint64, status.Status) {
	c := b.coll(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.docs[id]
	if !ok {
		return KeyNotFound, status.New(status.ErrKeyNotFound, "document %d not found", id)
	}
	return uint64(len(d)), status.OK
}

func (b *memHash) DocErase(name string, ids []uint64) status.Status {
	c := b.coll(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.docs, id)
	}
	return status.OK
}

func (b *memHash) Close() status.Status { return status.OK }
