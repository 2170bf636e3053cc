package buffer

import (
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"
)

// sizeBucket is the btree item: all free buffers of exactly this size, for
// one access mode, live in buckets[size].
type sizeBucket struct {
	size int
}

func sizeLess(a, b sizeBucket) bool { return a.size < b.size }

// keepAllCache maintains one size-ordered free list per access mode. Get
// picks the smallest free buffer that is at least as large as requested;
// on a miss it grows (allocates new). Buffers are never shrunk or freed.
type keepAllCache struct {
	mu      sync.Mutex
	sizes   map[Access]*btree.BTreeG[sizeBucket]
	buckets map[Access]map[int][]*Buffer
}

func newKeepAllCache() *keepAllCache {
	c := &keepAllCache{
		sizes:   make(map[Access]*btree.BTreeG[sizeBucket]),
		buckets: make(map[Access]map[int][]*Buffer),
	}
	for _, a := range []Access{Read, Write, ReadWrite} {
		c.sizes[a] = btree.NewG(32, sizeLess)
		c.buckets[a] = make(map[int][]*Buffer)
	}
	return c
}

func (c *keepAllCache) Get(size int, access Access) (*Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var found *sizeBucket
	c.sizes[access].AscendGreaterOrEqual(sizeBucket{size: size}, func(item sizeBucket) bool {
		found = &item
		return false
	})

	if found != nil {
		bucket := c.buckets[access][found.size]
		buf := bucket[len(bucket)-1]
		bucket = bucket[:len(bucket)-1]
		if len(bucket) == 0 {
			delete(c.buckets[access], found.size)
			c.sizes[access].Delete(*found)
		} else {
			c.buckets[access][found.size] = bucket
		}
		buf.Access = access
		return buf, nil
	}

	return &Buffer{ID: uuid.New(), Data: make([]byte, size), Access: access}, nil
}

func (c *keepAllCache) Release(buf *Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := len(buf.Data)
	bucket := c.buckets[buf.Access][size]
	c.buckets[buf.Access][size] = append(bucket, buf)
	if len(bucket) == 0 {
		c.sizes[buf.Access].ReplaceOrInsert(sizeBucket{size: size})
	}
}

// evict drops one specific buffer from the free list without reuse. Used
// by lruCache to enforce a total-bytes ceiling on top of keep_all's
// free-list bookkeeping.
func (c *keepAllCache) evict(buf *Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := len(buf.Data)
	bucket := c.buckets[buf.Access][size]
	for i, b := range bucket {
		if b.ID == buf.ID {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(c.buckets[buf.Access], size)
		c.sizes[buf.Access].Delete(sizeBucket{size: size})
	} else {
		c.buckets[buf.Access][size] = bucket
	}
}

func (c *keepAllCache) Finalize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range []Access{Read, Write, ReadWrite} {
		c.sizes[a].Clear(false)
		c.buckets[a] = make(map[int][]*Buffer)
	}
}
