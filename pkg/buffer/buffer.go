/*
Package buffer implements yokan's bulk buffer cache: the provider-scoped
allocator of registered I/O buffers that amortizes allocation cost for
bulk memory pulled from / pushed to clients.

Three policies are provided:

  - "default": allocate on Get, free on Release, no sharing.
  - "keep_all": an unbounded free list per access mode, ordered by size
    so Get can find the smallest adequate buffer in O(log n).
  - "lru": keep_all's size-ordered selection plus a configured total-bytes
    ceiling, evicting least-recently-released buffers to stay under it.
*/
package buffer

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Access describes the rights a caller requested on a Buffer.
type Access int

const (
	Read Access = iota
	Write
	ReadWrite
)

// Buffer is a reusable block of memory handed to a caller by Get, held
// exclusively until Release.
type Buffer struct {
	ID     uuid.UUID
	Data   []byte
	Access Access
}

// Cache is the pluggable buffer-cache contract. Implementations must be
// safe for concurrent Get/Release from multiple RPC handler goroutines.
type Cache interface {
	// Get returns a buffer of at least size bytes with the given access.
	Get(size int, access Access) (*Buffer, error)
	// Release returns a buffer to the cache for reuse or disposal.
	Release(buf *Buffer)
	// Finalize reclaims all resources. Called once after every in-flight
	// request has drained.
	Finalize()
}

// Policy names the buffer_cache.type values recognized in the provider's
// JSON configuration.
type Policy string

const (
	PolicyDefault Policy = "default"
	PolicyKeepAll Policy = "keep_all"
	PolicyLRU     Policy = "lru"
)

// Config is the policy-specific JSON blob under "buffer_cache" in the
// provider configuration.
type Config struct {
	Policy   Policy `json:"type"`
	MaxBytes int64  `json:"max_bytes,omitempty"` // only meaningful for "lru"
}

// New constructs the built-in cache named by cfg.Policy. The "external"
// policy is not handled here — an external cache is supplied by the
// caller at provider-construction time instead of being built by this
// factory.
func New(cfg Config) (Cache, error) {
	switch cfg.Policy {
	case "", PolicyDefault:
		return newDefaultCache(), nil
	case PolicyKeepAll:
		return newKeepAllCache(), nil
	case PolicyLRU:
		if cfg.MaxBytes <= 0 {
			return nil, fmt.Errorf("buffer: lru policy requires positive max_bytes")
		}
		return newLRUCache(cfg.MaxBytes)
	default:
		return nil, fmt.Errorf("buffer: unknown cache policy %q", cfg.Policy)
	}
}

// defaultCache allocates on every Get and frees on every Release.
type defaultCache struct {
	mu sync.Mutex // guards nothing but documents the concurrency contract
}

func newDefaultCache() *defaultCache { return &defaultCache{} }

func (c *defaultCache) Get(size int, access Access) (*Buffer, error) {
	return &Buffer{ID: uuid.New(), Data: make([]byte, size), Access: access}, nil
}

func (c *defaultCache) Release(buf *Buffer) {}

func (c *defaultCache) Finalize() {}
