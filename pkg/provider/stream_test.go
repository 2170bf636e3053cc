package provider

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yokan-project/yokan/pkg/rpc"
	"github.com/yokan-project/yokan/pkg/status"
	"github.com/yokan-project/yokan/pkg/wire"
)

type kvBatch struct {
	start  uint64
	keys   [][]byte
	values [][]byte
}

func collectingBackFn(t *testing.T, mu *sync.Mutex, batches *[]kvBatch, failAt int) rpc.BackRequestHandler {
	return func(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
		_, start, keys, values, err := decodeKVBack(body)
		require.NoError(t, err)
		mu.Lock()
		idx := len(*batches)
		*batches = append(*batches, kvBatch{start: start, keys: keys, values: values})
		mu.Unlock()
		if failAt >= 0 && idx == failAt {
			return nil, status.New(status.ErrOther, "callback refused batch")
		}
		return nil, status.OK
	}
}

func TestFetchStreamsBatchesInOrder(t *testing.T) {
	p := newTestProvider(t)

	_, ok := func() ([]byte, bool) {
		client := dialClientOnly(t, p, nil)
		return putReq(client, p.ID, 0, [][]byte{[]byte("k0"), []byte("k1"), []byte("k2")}, [][]byte{[]byte("v0"), []byte("v1"), []byte("v2")})
	}()
	require.True(t, ok)

	var mu sync.Mutex
	var batches []kvBatch
	client := dialClientOnly(t, p, collectingBackFn(t, &mu, &batches, -1))

	e := wire.NewEncoder(64)
	fetchIn{Keys: [][]byte{[]byte("k0"), []byte("k1"), []byte("k2")}, OpRef: 99, BatchSize: 2}.encode(e)
	_, s := client.Request(p.ID, "fetch", e.Bytes())
	require.True(t, s.IsOK())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 2)
	require.Equal(t, uint64(0), batches[0].start)
	require.Equal(t, [][]byte{[]byte("k0"), []byte("k1")}, batches[0].keys)
	require.Equal(t, uint64(2), batches[1].start)
	require.Equal(t, [][]byte{[]byte("k2")}, batches[1].keys)
}

func TestFetchStopsAfterCallbackFailure(t *testing.T) {
	p := newTestProvider(t)

	client0 := dialClientOnly(t, p, nil)
	_, ok := putReq(client0, p.ID, 0, [][]byte{[]byte("k0"), []byte("k1"), []byte("k2"), []byte("k3")}, [][]byte{[]byte("v0"), []byte("v1"), []byte("v2"), []byte("v3")})
	require.True(t, ok)

	var mu sync.Mutex
	var batches []kvBatch
	client := dialClientOnly(t, p, collectingBackFn(t, &mu, &batches, 0))

	e := wire.NewEncoder(64)
	fetchIn{Keys: [][]byte{[]byte("k0"), []byte("k1"), []byte("k2"), []byte("k3")}, OpRef: 1, BatchSize: 1}.encode(e)
	_, s := client.Request(p.ID, "fetch", e.Bytes())
	require.False(t, s.IsOK())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 1)
}

func TestIterStreamsFilteredBatches(t *testing.T) {
	p := newTestProvider(t)

	client0 := dialClientOnly(t, p, nil)
	_, ok := putReq(client0, p.ID, 0,
		[][]byte{[]byte("a"), []byte("ab"), []byte("ac"), []byte("b")},
		[][]byte{[]byte("1"), []byte("2"), []byte("3"), []byte("4")})
	require.True(t, ok)

	var mu sync.Mutex
	var batches []kvBatch
	client := dialClientOnly(t, p, collectingBackFn(t, &mu, &batches, -1))

	e := wire.NewEncoder(64)
	iterIn{Max: 0, Filter: []byte("a"), OpRef: 2, BatchSize: 2}.encode(e)
	_, s := client.Request(p.ID, "iter", e.Bytes())
	require.True(t, s.IsOK())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 2)
	require.Equal(t, [][]byte{[]byte("a"), []byte("ab")}, batches[0].keys)
	require.Equal(t, [][]byte{[]byte("ac")}, batches[1].keys)
}

// dialClientOnly connects a fresh client-role Conn to p's registry without
// tearing down previously dialed connections, letting a test put data
// through one connection and stream it back through another.
func dialClientOnly(t *testing.T, p *Provider, backFn rpc.BackRequestHandler) *rpc.Conn {
	t.Helper()
	_, client := dialProvider(t, p, backFn)
	return client
}
