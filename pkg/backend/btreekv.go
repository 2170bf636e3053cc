package backend

import (
	"bytes"
	"sync"

	"github.com/google/btree"
	"github.com/yokan-project/yokan/pkg/filter"
	"github.com/yokan-project/yokan/pkg/mode"
	"github.com/yokan-project/yokan/pkg/status"
)

func init() {
	Register("btreekv", func(config []byte) (Database, status.Status) {
		return newBTreeKV(), status.OK
	})
}

type kvItem struct {
	key   string
	value []byte
}

func kvLess(a, b kvItem) bool { return a.key < b.key }

// btreeKV is the ordered-map backend: keys are kept sorted at all times
// by a google/btree.BTreeG, so listing and iteration walk forward from
// fromKey directly instead of sorting a snapshot on every call.
type btreeKV struct {
	mu    sync.RWMutex
	tree  *btree.BTreeG[kvItem]
	colls map[string]*collection
}

func newBTreeKV() *btreeKV {
	return &btreeKV{tree: btree.NewG(32, kvLess), colls: make(map[string]*collection)}
}

func (b *btreeKV) SupportsMode(m mode.Mode) bool { return true }

func (b *btreeKV) Count() (uint64, status.Status) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return uint64(b.tree.Len()), status.OK
}

func (b *btreeKV) Put(m mode.Mode, keys, values [][]byte) status.Status {
	if s := validateKeys(keys); !s.IsOK() {
		return s
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, k := range keys {
		old, exists := b.tree.Get(kvItem{key: string(k)})
		var oldVal []byte
		if exists {
			oldVal = old.value
		}
		if !putGuard(m, exists) {
			continue
		}
		b.tree.ReplaceOrInsert(kvItem{key: string(k), value: nextValue(m, oldVal, exists, values[i])})
	}
	return status.OK
}

func (b *btreeKV) Get(m mode.Mode, keys [][]byte, outSizes []uint64, outValues [][]byte) status.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, k := range keys {
		item, ok := b.tree.Get(kvItem{key: string(k)})
		if !ok {
			outSizes[i] = KeyNotFound
			continue
		}
		if uint64(len(item.value)) > outSizes[i] {
			outSizes[i] = BufTooSmall
			continue
		}
		n := copy(outValues[i], item.value)
		outSizes[i] = uint64(n)
		if m.Has(mode.CONSUME) {
			b.tree.Delete(kvItem{key: string(k)})
		}
	}
	return status.OK
}

func (b *btreeKV) GetPacked(m mode.Mode, keys [][]byte, maxBytes uint64) ([]byte, []uint64, status.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	values := make([][]byte, len(keys))
	present := make([]bool, len(keys))
	for i, k := range keys {
		item, ok := b.tree.Get(kvItem{key: string(k)})
		present[i] = ok
		if ok {
			values[i] = item.value
			if m.Has(mode.CONSUME) {
				b.tree.Delete(kvItem{key: string(k)})
			}
		}
	}
	out, sizes := packValues(values, present, maxBytes)
	return out, sizes, status.OK
}

func (b *btreeKV) Fetch(m mode.Mode, keys [][]byte, cb KVCallback) status.Status {
	for _, k := range keys {
		b.mu.Lock()
		item, ok := b.tree.Get(kvItem{key: string(k)})
		if ok && m.Has(mode.CONSUME) {
			b.tree.Delete(kvItem{key: string(k)})
		}
		b.mu.Unlock()
		var v []byte
		if ok {
			v = item.value
		}
		if s := cb(k, v); !s.IsOK() {
			return s
		}
	}
	return status.OK
}

func (b *btreeKV) Exists(m mode.Mode, keys [][]byte) ([]byte, status.Status) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]byte, (len(keys)+7)/8)
	for i, k := range keys {
		if _, ok := b.tree.Get(kvItem{key: string(k)}); ok {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out, status.OK
}

func (b *btreeKV) Length(m mode.Mode, keys [][]byte) ([]uint64, status.Status) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]uint64, len(keys))
	for i, k := range keys {
		if item, ok := b.tree.Get(kvItem{key: string(k)}); ok {
			out[i] = uint64(len(item.value))
		} else {
			out[i] = KeyNotFound
		}
	}
	return out, status.OK
}

func (b *btreeKV) Erase(m mode.Mode, keys [][]byte) status.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		b.tree.Delete(kvItem{key: string(k)})
	}
	return status.OK
}

func (b *btreeKV) ListKeys(m mode.Mode, max int, fromKey []byte, f filter.Filter) ([][]byte, status.Status) {
	out := make([][]byte, 0, max)
	b.mu.RLock()
	defer b.mu.RUnlock()
	skipFromKey := !m.Has(mode.INCLUSIVE)
	b.tree.AscendGreaterOrEqual(kvItem{key: string(fromKey)}, func(item kvItem) bool {
		if len(out) >= max {
			return false
		}
		if skipFromKey && bytes.Equal([]byte(item.key), fromKey) {
			return true
		}
		if !f.Accept([]byte(item.key), item.value) {
			return true
		}
		out = append(out, []byte(item.key))
		return true
	})
	return out, status.OK
}

func (b *btreeKV) ListKeyValues(m mode.Mode, max int, fromKey []byte, f filter.Filter) ([]Entry, status.Status) {
	out := make([]Entry, 0, max)
	b.mu.RLock()
	defer b.mu.RUnlock()
	skipFromKey := !m.Has(mode.INCLUSIVE)
	b.tree.AscendGreaterOrEqual(kvItem{key: string(fromKey)}, func(item kvItem) bool {
		if len(out) >= max {
			return false
		}
		if skipFromKey && bytes.Equal([]byte(item.key), fromKey) {
			return true
		}
		if !f.Accept([]byte(item.key), item.value) {
			return true
		}
		out = append(out, Entry{Key: []byte(item.key), Value: item.value})
		return true
	})
	return out, status.OK
}

func (b *btreeKV) Iter(m mode.Mode, max int, fromKey []byte, f filter.Filter, noValues bool, cb KVCallback) status.Status {
	type pair struct {
		key, value []byte
	}
	var batch []pair
	skipFromKey := !m.Has(mode.INCLUSIVE)
	b.mu.RLock()
	b.tree.AscendGreaterOrEqual(kvItem{key: string(fromKey)}, func(item kvItem) bool {
		if max > 0 && len(batch) >= max {
			return false
		}
		if skipFromKey && bytes.Equal([]byte(item.key), fromKey) {
			return true
		}
		if !f.Accept([]byte(item.key), item.value) {
			return true
		}
		v := item.value
		if noValues {
			v = nil
		}
		batch = append(batch, pair{key: []byte(item.key), value: v})
		return true
	})
	b.mu.RUnlock()

	for _, p := range batch {
		if s := cb(p.key, p.value); !s.IsOK() {
			return s
		}
	}
	return status.OK
}

func (b *btreeKV) coll(name string) *collection {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.colls[name]
	if !ok {
		c = &collection{docs: make(map[uint64][]byte)}
		b.colls[name] = c
	}
	return c
}

func (b *btreeKV) CollCreate(name string) status.Status { b.coll(name); return status.OK }

func (b *btreeKV) CollDrop(name string) status.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.colls, name)
	return status.OK
}

func (b *btreeKV) CollExists(name string) (bool, status.Status) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.colls[name]
	return ok, status.OK
}

func (b *btreeKV) CollSize(name string) (uint64, status.Status) {
	c := b.coll(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.docs)), status.OK
}

func (b *btreeKV) CollLastID(name string) (uint64, status.Status) {
	c := b.coll(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.nextID == 0 {
		return 0, status.OK
	}
	return c.nextID - 1, status.OK
}

func (b *btreeKV) DocStore(m mode.Mode, name string, docs [][]byte) ([]uint64, status.Status) {
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

func (b *btreeKV) DocUpdate(m mode.Mode, name string, ids []uint64, docs [][]byte) status.Status {
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

func (b *btreeKV) DocLoad(m mode.Mode, name string, ids []uint64) ([][]byte, status.Status) {
	c := b.coll(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([][]byte, len(ids))
	for i, id := range ids {
		out[i] = c.docs[id]
	}
	return out, status.OK
}

func (b *btreeKV) DocFetch(m mode.Mode, name string, ids []uint64, cb DocCallback) status.Status {
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

func (b *btreeKV) DocList(m mode.Mode, name string, max int, fromID uint64, f filter.DocFilter) ([]uint64, [][]byte, status.Status) {
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

func (b *btreeKV) DocIter(m mode.Mode, name string, max int, fromID uint64, f filter.DocFilter, cb DocCallback) status.Status {
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

func (b *btreeKV) DocSize(name string, id uint64) (uint64, status.Status) {
	c := b.coll(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.docs[id]
	if !ok {
		return KeyNotFound, status.New(status.ErrKeyNotFound, "document %d not found", id)
	}
	return uint64(len(d)), status.OK
}

func (b *btreeKV) DocErase(name string, ids []uint64) status.Status {
	c := b.coll(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.docs, id)
	}
	return status.OK
}

func (b *btreeKV) Close() status.Status { return status.OK }
