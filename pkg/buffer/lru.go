package buffer

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// lruCache layers a total-bytes ceiling on top of keep_all's size-ordered
// selection. Every released buffer is tracked in an LRU index keyed by
// buffer id; once the ceiling would be exceeded, the least recently
// released buffers are dropped (not returned to the free list) until the
// cache is back under the limit.
type lruCache struct {
	mu        sync.Mutex
	free      *keepAllCache
	recency   *lru.Cache // uuid.UUID -> *Buffer, oldest-first eviction order
	maxBytes  int64
	heldBytes int64
}

func newLRUCache(maxBytes int64) (*lruCache, error) {
	c := &lruCache{free: newKeepAllCache(), maxBytes: maxBytes}
	// Large capacity so golang-lru never evicts by count; only our own
	// byte-budget accounting in Release ever calls RemoveOldest.
	recency, err := lru.New(1 << 20)
	if err != nil {
		return nil, err
	}
	c.recency = recency
	return c, nil
}

func (c *lruCache) Get(size int, access Access) (*Buffer, error) {
	buf, err := c.free.Get(size, access)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.recency.Contains(buf.ID) {
		c.recency.Remove(buf.ID)
		c.heldBytes -= int64(len(buf.Data))
	}
	c.mu.Unlock()

	return buf, nil
}

func (c *lruCache) Release(buf *Buffer) {
	c.free.Release(buf)

	c.mu.Lock()
	c.recency.Add(buf.ID, buf)
	c.heldBytes += int64(len(buf.Data))

	for c.heldBytes > c.maxBytes {
		_, evicted, ok := c.recency.RemoveOldest()
		if !ok {
			break
		}
		old := evicted.(*Buffer)
		c.heldBytes -= int64(len(old.Data))
		c.free.evict(old)
	}
	c.mu.Unlock()
}

func (c *lruCache) Finalize() {
	c.mu.Lock()
	c.recency.Purge()
	c.heldBytes = 0
	c.mu.Unlock()
	c.free.Finalize()
}
