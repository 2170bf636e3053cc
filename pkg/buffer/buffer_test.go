package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownPolicy(t *testing.T) {
	_, err := New(Config{Policy: "bogus"})
	require.Error(t, err)
}

func TestNewLRURequiresMaxBytes(t *testing.T) {
	_, err := New(Config{Policy: PolicyLRU})
	require.Error(t, err)
}

func TestDefaultCacheAlwaysAllocates(t *testing.T) {
	c, err := New(Config{Policy: PolicyDefault})
	require.NoError(t, err)

	b1, err := c.Get(16, Write)
	require.NoError(t, err)
	require.Len(t, b1.Data, 16)
	c.Release(b1)

	b2, err := c.Get(16, Write)
	require.NoError(t, err)
	require.NotEqual(t, b1.ID, b2.ID)
}

func TestKeepAllCacheReusesReleasedBuffer(t *testing.T) {
	c, err := New(Config{Policy: PolicyKeepAll})
	require.NoError(t, err)

	b1, err := c.Get(64, Write)
	require.NoError(t, err)
	id := b1.ID
	c.Release(b1)

	b2, err := c.Get(64, Write)
	require.NoError(t, err)
	require.Equal(t, id, b2.ID)
}

func TestKeepAllCachePicksSmallestAdequateBuffer(t *testing.T) {
	c, err := New(Config{Policy: PolicyKeepAll})
	require.NoError(t, err)

	small, err := c.Get(8, Write)
	require.NoError(t, err)
	large, err := c.Get(1024, Write)
	require.NoError(t, err)
	c.Release(small)
	c.Release(large)

	got, err := c.Get(16, Write)
	require.NoError(t, err)
	require.Equal(t, large.ID, got.ID)
}

func TestLRUCacheEvictsOverByteCeiling(t *testing.T) {
	c, err := New(Config{Policy: PolicyLRU, MaxBytes: 100})
	require.NoError(t, err)

	b1, err := c.Get(60, Write)
	require.NoError(t, err)
	b2, err := c.Get(60, Write)
	require.NoError(t, err)

	c.Release(b1)
	c.Release(b2)

	lc := c.(*lruCache)
	require.LessOrEqual(t, lc.heldBytes, int64(100))
}

func TestFinalizeClearsCache(t *testing.T) {
	c, err := New(Config{Policy: PolicyKeepAll})
	require.NoError(t, err)

	b1, err := c.Get(32, Write)
	require.NoError(t, err)
	id := b1.ID
	c.Release(b1)
	c.Finalize()

	b2, err := c.Get(32, Write)
	require.NoError(t, err)
	require.NotEqual(t, id, b2.ID)
}
