package backend

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/yokan-project/yokan/pkg/filter"
	"github.com/yokan-project/yokan/pkg/mode"
	"github.com/yokan-project/yokan/pkg/status"
)

func init() {
	Register("boltkv", func(config []byte) (Database, status.Status) {
		return newBoltKV(config)
	})
}

var bucketKV = []byte("kv")

// collBucket returns the bucket name used to store documents for a
// collection, and collMetaBucket the one holding its last_id counter.
func collBucket(name string) []byte     { return []byte("doc:" + name) }
func collMetaBucket(name string) []byte { return []byte("doc-meta:" + name) }

var keyLastID = []byte("last_id")

type boltKVConfig struct {
	Path string `json:"path"`
}

// boltKV is the on-disk B-tree backend, a single bbolt database file with
// one bucket for the flat key-value space and two buckets per collection
// (documents, and a small metadata bucket holding last_id).
type boltKV struct {
	db *bolt.DB
}

func newBoltKV(config []byte) (Database, status.Status) {
	var cfg boltKVConfig
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, status.New(status.ErrInvalidConfig, "boltkv: %s", err)
		}
	}
	if cfg.Path == "" {
		return nil, status.New(status.ErrInvalidConfig, "boltkv: config.path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, status.New(status.ErrAllocation, "boltkv: %s", err)
	}
	db, err := bolt.Open(cfg.Path, 0o600, nil)
	if err != nil {
		return nil, status.New(status.ErrAllocation, "boltkv: open %s: %s", cfg.Path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	})
	if err != nil {
		db.Close()
		return nil, status.New(status.ErrAllocation, "boltkv: %s", err)
	}
	return &boltKV{db: db}, status.OK
}

func (b *boltKV) SupportsMode(m mode.Mode) bool { return true }

func (b *boltKV) Count() (uint64, status.Status) {
	var n uint64
	b.db.View(func(tx *bolt.Tx) error {
		n = uint64(tx.Bucket(bucketKV).Stats().KeyN)
		return nil
	})
	return n, status.OK
}

func (b *boltKV) Put(m mode.Mode, keys, values [][]byte) status.Status {
	if s := validateKeys(keys); !s.IsOK() {
		return s
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketKV)
		for i, k := range keys {
			old := bkt.Get(k)
			exists := old != nil
			if !putGuard(m, exists) {
				continue
			}
			v := nextValue(m, old, exists, values[i])
			if err := bkt.Put(k, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return status.New(status.ErrOther, "boltkv: put: %s", err)
	}
	return status.OK
}

func (b *boltKV) Get(m mode.Mode, keys [][]byte, outSizes []uint64, outValues [][]byte) status.Status {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketKV)
		for i, k := range keys {
			v := bkt.Get(k)
			if v == nil {
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
				if err := bkt.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return status.New(status.ErrOther, "boltkv: get: %s", err)
	}
	return status.OK
}

func (b *boltKV) GetPacked(m mode.Mode, keys [][]byte, maxBytes uint64) ([]byte, []uint64, status.Status) {
	values := make([][]byte, len(keys))
	present := make([]bool, len(keys))
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketKV)
		for i, k := range keys {
			v := bkt.Get(k)
			if v != nil {
				values[i] = append([]byte(nil), v...)
				present[i] = true
				if m.Has(mode.CONSUME) {
					if err := bkt.Delete(k); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, status.New(status.ErrOther, "boltkv: get: %s", err)
	}
	out, sizes := packValues(values, present, maxBytes)
	return out, sizes, status.OK
}

func (b *boltKV) Fetch(m mode.Mode, keys [][]byte, cb KVCallback) status.Status {
	for _, k := range keys {
		var v []byte
		err := b.db.Update(func(tx *bolt.Tx) error {
			bkt := tx.Bucket(bucketKV)
			if got := bkt.Get(k); got != nil {
				v = append([]byte(nil), got...)
				if m.Has(mode.CONSUME) {
					return bkt.Delete(k)
				}
			}
			return nil
		})
		if err != nil {
			return status.New(status.ErrOther, "boltkv: fetch: %s", err)
		}
		if s := cb(k, v); !s.IsOK() {
			return s
		}
	}
	return status.OK
}

func (b *boltKV) Exists(m mode.Mode, keys [][]byte) ([]byte, status.Status) {
	out := make([]byte, (len(keys)+7)/8)
	b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketKV)
		for i, k := range keys {
			if bkt.Get(k) != nil {
				out[i/8] |= 1 << uint(i%8)
			}
		}
		return nil
	})
	return out, status.OK
}

func (b *boltKV) Length(m mode.Mode, keys [][]byte) ([]uint64, status.Status) {
	out := make([]uint64, len(keys))
	b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketKV)
		for i, k := range keys {
			if v := bkt.Get(k); v != nil {
				out[i] = uint64(len(v))
			} else {
				out[i] = KeyNotFound
			}
		}
		return nil
	})
	return out, status.OK
}

func (b *boltKV) Erase(m mode.Mode, keys [][]byte) status.Status {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketKV)
		for _, k := range keys {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return status.New(status.ErrOther, "boltkv: erase: %s", err)
	}
	return status.OK
}

func (b *boltKV) ListKeys(m mode.Mode, max int, fromKey []byte, f filter.Filter) ([][]byte, status.Status) {
	out := make([][]byte, 0, max)
	b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketKV).Cursor()
		k, v := seekAfter(c, fromKey, m.Has(mode.INCLUSIVE))
		for ; k != nil && len(out) < max; k, v = c.Next() {
			if !f.Accept(k, v) {
				continue
			}
			out = append(out, append([]byte(nil), k...))
		}
		return nil
	})
	return out, status.OK
}

func (b *boltKV) ListKeyValues(m mode.Mode, max int, fromKey []byte, f filter.Filter) ([]Entry, status.Status) {
	out := make([]Entry, 0, max)
	b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketKV).Cursor()
		k, v := seekAfter(c, fromKey, m.Has(mode.INCLUSIVE))
		for ; k != nil && len(out) < max; k, v = c.Next() {
			if !f.Accept(k, v) {
				continue
			}
			out = append(out, Entry{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)})
		}
		return nil
	})
	return out, status.OK
}

func (b *boltKV) Iter(m mode.Mode, max int, fromKey []byte, f filter.Filter, noValues bool, cb KVCallback) status.Status {
	type pair struct{ key, value []byte }
	var batch []pair
	b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketKV).Cursor()
		k, v := seekAfter(c, fromKey, m.Has(mode.INCLUSIVE))
		for ; k != nil && (max <= 0 || len(batch) < max); k, v = c.Next() {
			if !f.Accept(k, v) {
				continue
			}
			val := append([]byte(nil), v...)
			if noValues {
				val = nil
			}
			batch = append(batch, pair{key: append([]byte(nil), k...), value: val})
		}
		return nil
	})
	for _, p := range batch {
		if s := cb(p.key, p.value); !s.IsOK() {
			return s
		}
	}
	return status.OK
}

// seekAfter positions the cursor at fromKey or after (or at the first
// key, if fromKey is empty). fromKey itself is only included when
// inclusive is true (mode.INCLUSIVE); otherwise the cursor advances past
// an exact match.
func seekAfter(c *bolt.Cursor, fromKey []byte, inclusive bool) ([]byte, []byte) {
	if len(fromKey) == 0 {
		return c.First()
	}
	k, v := c.Seek(fromKey)
	if k != nil && !inclusive && bytes.Equal(k, fromKey) {
		return c.Next()
	}
	return k, v
}

func (b *boltKV) collBuckets(tx *bolt.Tx, name string) (*bolt.Bucket, *bolt.Bucket, error) {
	docs, err := tx.CreateBucketIfNotExists(collBucket(name))
	if err != nil {
		return nil, nil, err
	}
	meta, err := tx.CreateBucketIfNotExists(collMetaBucket(name))
	if err != nil {
		return nil, nil, err
	}
	return docs, meta, nil
}

func (b *boltKV) CollCreate(name string) status.Status {
	err := b.db.Update(func(tx *bolt.Tx) error {
		_, _, err := b.collBuckets(tx, name)
		return err
	})
	if err != nil {
		return status.New(status.ErrOther, "boltkv: coll_create: %s", err)
	}
	return status.OK
}

func (b *boltKV) CollDrop(name string) status.Status {
	err := b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(collBucket(name)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		if err := tx.DeleteBucket(collMetaBucket(name)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		return nil
	})
	if err != nil {
		return status.New(status.ErrOther, "boltkv: coll_drop: %s", err)
	}
	return status.OK
}

func (b *boltKV) CollExists(name string) (bool, status.Status) {
	var exists bool
	b.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(collBucket(name)) != nil
		return nil
	})
	return exists, status.OK
}

func (b *boltKV) CollSize(name string) (uint64, status.Status) {
	var n uint64
	b.db.View(func(tx *bolt.Tx) error {
		if bkt := tx.Bucket(collBucket(name)); bkt != nil {
			n = uint64(bkt.Stats().KeyN)
		}
		return nil
	})
	return n, status.OK
}

func (b *boltKV) CollLastID(name string) (uint64, status.Status) {
	var nextID uint64
	b.db.View(func(tx *bolt.Tx) error {
		if meta := tx.Bucket(collMetaBucket(name)); meta != nil {
			if raw := meta.Get(keyLastID); raw != nil {
				nextID = binary.LittleEndian.Uint64(raw)
			}
		}
		return nil
	})
	if nextID == 0 {
		return 0, status.OK
	}
	return nextID - 1, status.OK
}

// putLastID persists the next id to be assigned in this collection (not
// the highest id assigned so far — see getLastID).
func putLastID(meta *bolt.Bucket, nextID uint64) error {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], nextID)
	return meta.Put(keyLastID, raw[:])
}

func docKey(id uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], id)
	return k[:]
}

func (b *boltKV) DocStore(m mode.Mode, name string, docs [][]byte) ([]uint64, status.Status) {
	ids := make([]uint64, len(docs))
	err := b.db.Update(func(tx *bolt.Tx) error {
		docsBkt, meta, err := b.collBuckets(tx, name)
		if err != nil {
			return err
		}
		nextID, _ := getLastID(meta)
		for i, d := range docs {
			ids[i] = nextID
			if err := docsBkt.Put(docKey(nextID), d); err != nil {
				return err
			}
			nextID++
		}
		return putLastID(meta, nextID)
	})
	if err != nil {
		return nil, status.New(status.ErrOther, "boltkv: doc_store: %s", err)
	}
	return ids, status.OK
}

// getLastID returns the next id to be assigned in this collection (0 for
// a collection that has never stored a document).
func getLastID(meta *bolt.Bucket) (uint64, bool) {
	raw := meta.Get(keyLastID)
	if raw == nil {
		return 0, false
	}
	return binary.LittleEndian.Uint64(raw), true
}

func (b *boltKV) DocUpdate(m mode.Mode, name string, ids []uint64, docs [][]byte) status.Status {
	err := b.db.Update(func(tx *bolt.Tx) error {
		docsBkt, meta, err := b.collBuckets(tx, name)
		if err != nil {
			return err
		}
		nextID, _ := getLastID(meta)
		for i, id := range ids {
			if id >= nextID {
				if !m.Has(mode.UPDATE_NEW) {
					return fmt.Errorf("document id %d out of range", id)
				}
				nextID = id + 1
			}
			if err := docsBkt.Put(docKey(id), docs[i]); err != nil {
				return err
			}
		}
		return putLastID(meta, nextID)
	})
	if err != nil {
		return status.New(status.ErrInvalidArgs, "boltkv: doc_update: %s", err)
	}
	return status.OK
}

func (b *boltKV) DocLoad(m mode.Mode, name string, ids []uint64) ([][]byte, status.Status) {
	out := make([][]byte, len(ids))
	b.db.View(func(tx *bolt.Tx) error {
		docsBkt := tx.Bucket(collBucket(name))
		if docsBkt == nil {
			return nil
		}
		for i, id := range ids {
			if v := docsBkt.Get(docKey(id)); v != nil {
				out[i] = append([]byte(nil), v...)
			}
		}
		return nil
	})
	return out, status.OK
}

func (b *boltKV) DocFetch(m mode.Mode, name string, ids []uint64, cb DocCallback) status.Status {
	docs, s := b.DocLoad(m, name, ids)
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

func (b *boltKV) DocList(m mode.Mode, name string, max int, fromID uint64, f filter.DocFilter) ([]uint64, [][]byte, status.Status) {
	var outIDs []uint64
	var outDocs [][]byte
	b.db.View(func(tx *bolt.Tx) error {
		docsBkt := tx.Bucket(collBucket(name))
		if docsBkt == nil {
			return nil
		}
		c := docsBkt.Cursor()
		for k, v := c.Seek(docKey(fromID)); k != nil && len(outIDs) < max; k, v = c.Next() {
			id := binary.BigEndian.Uint64(k)
			if !f.Accept(v) {
				continue
			}
			outIDs = append(outIDs, id)
			outDocs = append(outDocs, append([]byte(nil), v...))
		}
		return nil
	})
	return outIDs, outDocs, status.OK
}

func (b *boltKV) DocIter(m mode.Mode, name string, max int, fromID uint64, f filter.DocFilter, cb DocCallback) status.Status {
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

func (b *boltKV) DocSize(name string, id uint64) (uint64, status.Status) {
	var size uint64
	var found bool
	b.db.View(func(tx *bolt.Tx) error {
		if docsBkt := tx.Bucket(collBucket(name)); docsBkt != nil {
			if v := docsBkt.Get(docKey(id)); v != nil {
				size = uint64(len(v))
				found = true
			}
		}
		return nil
	})
	if !found {
		return KeyNotFound, status.New(status.ErrKeyNotFound, "document %d not found", id)
	}
	return size, status.OK
}

func (b *boltKV) DocErase(name string, ids []uint64) status.Status {
	err := b.db.Update(func(tx *bolt.Tx) error {
		docsBkt := tx.Bucket(collBucket(name))
		if docsBkt == nil {
			return nil
		}
		for _, id := range ids {
			if err := docsBkt.Delete(docKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return status.New(status.ErrOther, "boltkv: doc_erase: %s", err)
	}
	return status.OK
}

func (b *boltKV) Close() status.Status {
	if err := b.db.Close(); err != nil {
		return status.New(status.ErrOther, "boltkv: close: %s", err)
	}
	return status.OK
}
