package provider

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yokan-project/yokan/pkg/mode"
	"github.com/yokan-project/yokan/pkg/rpc"
	"github.com/yokan-project/yokan/pkg/wire"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	raw := []byte(`{"database": {"type": "memhash", "config": {}}, "buffer_cache": {"type": "default"}}`)
	p, s := New(7, raw, nil)
	require.True(t, s.IsOK())
	t.Cleanup(func() { p.Close() })
	return p
}

func dialProvider(t *testing.T, p *Provider, backFn rpc.BackRequestHandler) (*rpc.Conn, *rpc.Conn) {
	t.Helper()
	reg := rpc.NewRegistry()
	p.Register(reg)
	reg.Seal()

	a, b := net.Pipe()
	server := rpc.NewConn(a, reg, nil)
	client := rpc.NewConn(b, nil, backFn)
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}

func putReq(client *rpc.Conn, id uint16, m mode.Mode, keys, values [][]byte) ([]byte, bool) {
	e := wire.NewEncoder(64)
	putIn{Mode: m, Keys: keys, Values: values}.encode(e)
	out, s := client.Request(id, "put", e.Bytes())
	return out, s.IsOK()
}

func TestPutThenGetRoundTrip(t *testing.T) {
	p := newTestProvider(t)
	_, client := dialProvider(t, p, nil)

	_, ok := putReq(client, p.ID, 0, [][]byte{[]byte("k1")}, [][]byte{[]byte("v1")})
	require.True(t, ok)

	e := wire.NewEncoder(64)
	getIn{Packed: true, Keys: [][]byte{[]byte("k1")}}.encode(e)

	out, s := client.Request(p.ID, "get", e.Bytes())
	require.True(t, s.IsOK())

	d := wire.NewDecoder(out)
	sizes, err := d.GetUint64Slice()
	require.NoError(t, err)
	require.Len(t, sizes, 1)
	payload, err := d.GetBytes()
	require.NoError(t, err)
	require.Equal(t, "v1", string(payload))
}

func TestExistsAndErase(t *testing.T) {
	p := newTestProvider(t)
	_, client := dialProvider(t, p, nil)

	_, ok := putReq(client, p.ID, 0, [][]byte{[]byte("a"), []byte("b")}, [][]byte{[]byte("1"), []byte("2")})
	require.True(t, ok)

	keysBody := func(keys [][]byte) []byte {
		e := wire.NewEncoder(64)
		e.PutUint64(0)
		e.PutBytesSlice(keys)
		return e.Bytes()
	}

	out, s := client.Request(p.ID, "exists", keysBody([][]byte{[]byte("a"), []byte("missing")}))
	require.True(t, s.IsOK())
	d := wire.NewDecoder(out)
	bits, err := d.GetBytes()
	require.NoError(t, err)
	require.Equal(t, byte(1), bits[0]&1)
	require.Equal(t, byte(0), bits[0]&2)

	_, s = client.Request(p.ID, "erase", keysBody([][]byte{[]byte("a")}))
	require.True(t, s.IsOK())

	out, s = client.Request(p.ID, "exists", keysBody([][]byte{[]byte("a")}))
	require.True(t, s.IsOK())
	d = wire.NewDecoder(out)
	bits, err = d.GetBytes()
	require.NoError(t, err)
	require.Equal(t, byte(0), bits[0]&1)
}

func TestExistsWithWaitBlocksUntilKeyAppears(t *testing.T) {
	p := newTestProvider(t)
	_, client := dialProvider(t, p, nil)

	keysBody := func(m mode.Mode, keys [][]byte) []byte {
		e := wire.NewEncoder(64)
		e.PutUint64(uint64(m))
		e.PutBytesSlice(keys)
		return e.Bytes()
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		putReq(client, p.ID, 0, [][]byte{[]byte("late")}, [][]byte{[]byte("v")})
	}()

	out, s := client.Request(p.ID, "exists", keysBody(mode.Mode(0).Set(mode.WAIT), [][]byte{[]byte("late")}))
	require.True(t, s.IsOK())
	bits, err := wire.NewDecoder(out).GetBytes()
	require.NoError(t, err)
	require.Equal(t, byte(1), bits[0]&1)
}

func TestListKeyValuesHonorsIgnoreKeysAndKeysOnly(t *testing.T) {
	p := newTestProvider(t)
	_, client := dialProvider(t, p, nil)

	_, ok := putReq(client, p.ID, 0, [][]byte{[]byte("a"), []byte("b")}, [][]byte{[]byte("1"), []byte("2")})
	require.True(t, ok)

	listBody := func(m mode.Mode) []byte {
		e := wire.NewEncoder(64)
		listIn{Mode: m, Max: 10}.encode(e)
		return e.Bytes()
	}

	out, s := client.Request(p.ID, "list_keyvals", listBody(mode.Mode(0).Set(mode.IGNORE_KEYS)))
	require.True(t, s.IsOK())
	d := wire.NewDecoder(out)
	keys, err := d.GetBytesSlice()
	require.NoError(t, err)
	values, err := d.GetBytesSlice()
	require.NoError(t, err)
	require.Empty(t, keys)
	require.ElementsMatch(t, [][]byte{[]byte("1"), []byte("2")}, values)

	out, s = client.Request(p.ID, "list_keyvals", listBody(mode.Mode(0).Set(mode.KEYS_ONLY)))
	require.True(t, s.IsOK())
	d = wire.NewDecoder(out)
	keys, err = d.GetBytesSlice()
	require.NoError(t, err)
	values, err = d.GetBytesSlice()
	require.NoError(t, err)
	require.ElementsMatch(t, [][]byte{[]byte("a"), []byte("b")}, keys)
	require.Empty(t, values)
}

func TestInvalidModeRejected(t *testing.T) {
	p := newTestProvider(t)
	_, client := dialProvider(t, p, nil)

	e := wire.NewEncoder(64)
	putIn{Mode: mode.Mode(mode.APPEND | mode.NEW_ONLY), Keys: [][]byte{[]byte("k")}, Values: [][]byte{[]byte("v")}}.encode(e)
	_, s := client.Request(p.ID, "put", e.Bytes())
	require.False(t, s.IsOK())
}

func TestCollectionLifecycle(t *testing.T) {
	p := newTestProvider(t)
	_, client := dialProvider(t, p, nil)

	nameBody := func(name string) []byte {
		e := wire.NewEncoder(32)
		e.PutString(name)
		return e.Bytes()
	}

	_, s := client.Request(p.ID, "coll_create", nameBody("docs"))
	require.True(t, s.IsOK())

	out, s := client.Request(p.ID, "coll_exists", nameBody("docs"))
	require.True(t, s.IsOK())
	exists, err := wire.NewDecoder(out).GetBool()
	require.NoError(t, err)
	require.True(t, exists)

	storeBody := func(docs [][]byte) []byte {
		e := wire.NewEncoder(64)
		docStoreIn{Coll: "docs", Docs: docs}.encode(e)
		return e.Bytes()
	}
	out, s = client.Request(p.ID, "doc_store", storeBody([][]byte{[]byte(`{"a":1}`), []byte(`{"a":2}`)}))
	require.True(t, s.IsOK())
	ids, err := wire.NewDecoder(out).GetUint64Slice()
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1}, ids)
}
