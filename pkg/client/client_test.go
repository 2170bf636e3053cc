package client_test

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yokan-project/yokan/pkg/client"
	"github.com/yokan-project/yokan/pkg/mode"
	"github.com/yokan-project/yokan/pkg/provider"
	"github.com/yokan-project/yokan/pkg/rpc"
	"github.com/yokan-project/yokan/pkg/status"
)

func newTestProvider(t *testing.T) *provider.Provider {
	t.Helper()
	raw := []byte(`{"database": {"type": "memhash", "config": {}}, "buffer_cache": {"type": "default"}}`)
	p, s := provider.New(3, raw, nil)
	require.True(t, s.IsOK())
	t.Cleanup(func() { p.Close() })
	return p
}

// dialClient wires a fresh in-memory client.Client against p over a
// net.Pipe, using a real provider.Provider as the server side.
func dialClient(t *testing.T, p *provider.Provider) *client.Client {
	t.Helper()
	reg := rpc.NewRegistry()
	p.Register(reg)
	reg.Seal()

	serverSide, clientSide := net.Pipe()
	server := rpc.NewConn(serverSide, reg, nil)
	t.Cleanup(func() { server.Close() })

	c := client.WrapConn(clientSide, p.ID)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientPutGetRoundTrip(t *testing.T) {
	p := newTestProvider(t)
	c := dialClient(t, p)

	err := c.Put(0, [][]byte{[]byte("k1"), []byte("k2")}, [][]byte{[]byte("v1"), []byte("v2")})
	require.NoError(t, err)

	sizes, payload, err := c.Get(0, [][]byte{[]byte("k1")})
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, sizes)
	require.Equal(t, "v1", string(payload))

	n, err := c.Count()
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)
}

func TestClientExistsLengthErase(t *testing.T) {
	p := newTestProvider(t)
	c := dialClient(t, p)

	require.NoError(t, c.Put(0, [][]byte{[]byte("a")}, [][]byte{[]byte("12345")}))

	bits, err := c.Exists(0, [][]byte{[]byte("a"), []byte("missing")})
	require.NoError(t, err)
	require.Equal(t, byte(1), bits[0]&1)
	require.Equal(t, byte(0), bits[0]&2)

	sizes, err := c.Length(0, [][]byte{[]byte("a")})
	require.NoError(t, err)
	require.Equal(t, []uint64{5}, sizes)

	require.NoError(t, c.Erase(0, [][]byte{[]byte("a")}))
	bits, err = c.Exists(0, [][]byte{[]byte("a")})
	require.NoError(t, err)
	require.Equal(t, byte(0), bits[0]&1)
}

func TestClientInvalidModeRejected(t *testing.T) {
	p := newTestProvider(t)
	c := dialClient(t, p)

	err := c.Put(mode.Mode(mode.APPEND|mode.NEW_ONLY), [][]byte{[]byte("k")}, [][]byte{[]byte("v")})
	require.Error(t, err)
}

func TestClientFetchStreamsInOrder(t *testing.T) {
	p := newTestProvider(t)
	c := dialClient(t, p)

	keys := [][]byte{[]byte("k0"), []byte("k1"), []byte("k2")}
	values := [][]byte{[]byte("v0"), []byte("v1"), []byte("v2")}
	require.NoError(t, c.Put(0, keys, values))

	var mu sync.Mutex
	var gotKeys, gotValues [][]byte
	err := c.Fetch(0, keys, 2, func(index uint64, key, value []byte) status.Status {
		mu.Lock()
		defer mu.Unlock()
		require.Equal(t, uint64(len(gotKeys)), index)
		gotKeys = append(gotKeys, key)
		gotValues = append(gotValues, value)
		return status.OK
	})
	require.NoError(t, err)
	require.Equal(t, keys, gotKeys)
	require.Equal(t, values, gotValues)
}

func TestClientIterFiltersByPrefix(t *testing.T) {
	p := newTestProvider(t)
	c := dialClient(t, p)

	require.NoError(t, c.Put(0,
		[][]byte{[]byte("a"), []byte("ab"), []byte("ac"), []byte("b")},
		[][]byte{[]byte("1"), []byte("2"), []byte("3"), []byte("4")}))

	var mu sync.Mutex
	var gotKeys [][]byte
	err := c.Iter(0, 0, nil, []byte("a"), false, 2, func(index uint64, key, value []byte) status.Status {
		mu.Lock()
		defer mu.Unlock()
		gotKeys = append(gotKeys, key)
		return status.OK
	})
	require.NoError(t, err)
	require.ElementsMatch(t, [][]byte{[]byte("a"), []byte("ab"), []byte("ac")}, gotKeys)
}

func TestClientDocLifecycle(t *testing.T) {
	p := newTestProvider(t)
	c := dialClient(t, p)

	require.NoError(t, c.CollCreate("docs"))
	exists, err := c.CollExists("docs")
	require.NoError(t, err)
	require.True(t, exists)

	ids, err := c.DocStore(0, "docs", [][]byte{[]byte(`{"a":1}`), []byte(`{"a":2}`)})
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1}, ids)

	docs, err := c.DocLoad(0, "docs", ids)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte(`{"a":1}`), []byte(`{"a":2}`)}, docs)

	var mu sync.Mutex
	var gotIDs []uint64
	var gotDocs [][]byte
	err = c.DocFetch(0, "docs", ids, 1, func(index uint64, id uint64, doc []byte) status.Status {
		mu.Lock()
		defer mu.Unlock()
		gotIDs = append(gotIDs, id)
		gotDocs = append(gotDocs, doc)
		return status.OK
	})
	require.NoError(t, err)
	require.Equal(t, ids, gotIDs)
	require.Equal(t, docs, gotDocs)

	require.NoError(t, c.DocErase("docs", ids))
}

func TestClientFetchWithPoolDispatchesAndJoins(t *testing.T) {
	p := newTestProvider(t)
	c := dialClient(t, p)

	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	values := [][]byte{[]byte("1"), []byte("2"), []byte("3")}
	require.NoError(t, c.Put(0, keys, values))

	pool := rpc.NewPool(2)
	var mu sync.Mutex
	seen := make(map[string][]byte)
	err := c.Fetch(0, keys, 10, func(index uint64, key, value []byte) status.Status {
		mu.Lock()
		defer mu.Unlock()
		seen[string(key)] = value
		return status.OK
	}, client.Options{Pool: pool})
	require.NoError(t, err)
	require.Equal(t, map[string][]byte{"a": []byte("1"), "b": []byte("2"), "c": []byte("3")}, seen)
}

func TestClientFetchWithPoolPropagatesCallbackError(t *testing.T) {
	p := newTestProvider(t)
	c := dialClient(t, p)

	keys := [][]byte{[]byte("a"), []byte("b")}
	values := [][]byte{[]byte("1"), []byte("2")}
	require.NoError(t, c.Put(0, keys, values))

	pool := rpc.NewPool(4)
	err := c.Fetch(0, keys, 10, func(index uint64, key, value []byte) status.Status {
		return status.New(status.ErrOther, "boom")
	}, client.Options{Pool: pool})
	require.Error(t, err)
}
