/*
Package client implements the yokan client library: dialing a provider,
encoding each call's wire record, and for the streaming ops (fetch, iter,
doc_fetch, doc_iter) registering a per-call context keyed by an op_ref so
the connection's single back-request handler can route an incoming batch
back to the caller that issued it.

Direct-vs-bulk is a distinction the original C++ client makes to decide
whether arguments are RDMA-registered or inlined; this transport has no
RDMA path to exploit; every call inlines its arguments, and mode.NO_RDMA
is accepted and forwarded but does not change how this client builds a
request.
*/
package client

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/yokan-project/yokan/pkg/backend"
	"github.com/yokan-project/yokan/pkg/mode"
	"github.com/yokan-project/yokan/pkg/rpc"
	"github.com/yokan-project/yokan/pkg/status"
	"github.com/yokan-project/yokan/pkg/wire"
)

// KVCallback is invoked once per (key, value) result delivered by Fetch or
// Iter, in server-issued batch order. A non-OK return stops delivery of
// further batches.
type KVCallback func(index uint64, key, value []byte) status.Status

// DocCallback is the document-layer analogue of KVCallback.
type DocCallback func(index uint64, id uint64, doc []byte) status.Status

// Options configures one streaming call. The zero value runs every
// callback invocation synchronously, in order, on the goroutine that
// received the batch.
type Options struct {
	// Pool, if set, causes each callback invocation in a batch to be
	// spawned as a separate task on the pool; all tasks are joined
	// before the batch's back-response is sent to the server. Use this
	// to parallelize callback work (e.g. per-key I/O) across a batch
	// without serializing it behind the connection's read loop.
	Pool *rpc.Pool
}

// Client is a connection to one yokan provider.
type Client struct {
	conn       *rpc.Conn
	providerID uint16

	mu      sync.Mutex
	streams map[uint64]streamCtx
	nextRef uint64
}

type streamCtx struct {
	kv   KVCallback
	doc  DocCallback
	pool *rpc.Pool
}

func firstOptions(opts []Options) Options {
	if len(opts) == 0 {
		return Options{}
	}
	return opts[0]
}

// Dial connects to a yokan provider listening at addr and returns a
// Client bound to providerID.
func Dial(addr string, providerID uint16) (*Client, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return WrapConn(nc, providerID), nil
}

// WrapConn builds a Client around an already-established net.Conn, the
// seam Dial goes through and tests use to run a Client against an
// in-process provider over net.Pipe.
func WrapConn(nc net.Conn, providerID uint16) *Client {
	c := &Client{providerID: providerID, streams: make(map[uint64]streamCtx)}
	c.conn = rpc.NewConn(nc, nil, c.handleBack)
	return c
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(name string, body []byte) ([]byte, error) {
	out, s := c.conn.Request(c.providerID, name, body)
	if !s.IsOK() {
		return nil, s
	}
	return out, nil
}

func (c *Client) registerStream(sc streamCtx) uint64 {
	ref := atomic.AddUint64(&c.nextRef, 1)
	c.mu.Lock()
	c.streams[ref] = sc
	c.mu.Unlock()
	return ref
}

func (c *Client) unregisterStream(ref uint64) {
	c.mu.Lock()
	delete(c.streams, ref)
	c.mu.Unlock()
}

// handleBack is the connection's single back-request handler: every
// fetch/iter/doc_fetch/doc_iter batch for this connection arrives here
// and is routed to the registered stream by the op_ref that leads the
// body, regardless of whether it carries key/value or id/document pairs.
func (c *Client) handleBack(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	peek := wire.NewDecoder(body)
	opRef, err := peek.GetUint64()
	if err != nil {
		return nil, status.New(status.ErrInvalidArgs, "client: malformed back-request: %s", err)
	}

	c.mu.Lock()
	sc, ok := c.streams[opRef]
	c.mu.Unlock()
	if !ok {
		return nil, status.New(status.ErrInvalidArgs, "client: unknown op_ref %d", opRef)
	}

	if sc.kv != nil {
		_, start, keys, values, err := decodeKVBackBody(body)
		if err != nil {
			return nil, status.New(status.ErrInvalidArgs, "client: malformed fetch/iter batch: %s", err)
		}
		if sc.pool == nil {
			for i := range keys {
				if s := sc.kv(start+uint64(i), keys[i], values[i]); !s.IsOK() {
					return nil, s
				}
			}
			return nil, status.OK
		}
		return nil, runPooled(sc.pool, len(keys), func(i int) status.Status {
			return sc.kv(start+uint64(i), keys[i], values[i])
		})
	}

	_, start, ids, docs, err := decodeDocBackBody(body)
	if err != nil {
		return nil, status.New(status.ErrInvalidArgs, "client: malformed doc_fetch/doc_iter batch: %s", err)
	}
	if sc.pool == nil {
		for i := range ids {
			if s := sc.doc(start+uint64(i), ids[i], docs[i]); !s.IsOK() {
				return nil, s
			}
		}
		return nil, status.OK
	}
	return nil, runPooled(sc.pool, len(ids), func(i int) status.Status {
		return sc.doc(start+uint64(i), ids[i], docs[i])
	})
}

// runPooled spawns one task per index [0,n) on pool and joins all of them
// before returning, matching a batch's spawn-then-join back-RPC semantics.
// The first non-OK status observed (by index order) wins; every task still
// runs to completion regardless of another task's failure.
func runPooled(pool *rpc.Pool, n int, fn func(i int) status.Status) status.Status {
	results := make([]status.Status, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		pool.Go(func() {
			defer wg.Done()
			results[i] = fn(i)
		})
	}
	wg.Wait()
	for _, s := range results {
		if !s.IsOK() {
			return s
		}
	}
	return status.OK
}

func decodeKVBackBody(body []byte) (opRef, startIndex uint64, keys, values [][]byte, err error) {
	d := wire.NewDecoder(body)
	if opRef, err = d.GetUint64(); err != nil {
		return
	}
	if startIndex, err = d.GetUint64(); err != nil {
		return
	}
	if keys, err = d.GetBytesSlice(); err != nil {
		return
	}
	values, err = d.GetBytesSlice()
	return
}

func decodeDocBackBody(body []byte) (opRef, startIndex uint64, ids []uint64, docs [][]byte, err error) {
	d := wire.NewDecoder(body)
	if opRef, err = d.GetUint64(); err != nil {
		return
	}
	if startIndex, err = d.GetUint64(); err != nil {
		return
	}
	if ids, err = d.GetUint64Slice(); err != nil {
		return
	}
	docs, err = d.GetBytesSlice()
	return
}

// Count returns the number of keys stored.
func (c *Client) Count() (uint64, error) {
	out, err := c.call("count", nil)
	if err != nil {
		return 0, err
	}
	return wire.NewDecoder(out).GetUint64()
}

// Put stores each (keys[i], values[i]) pair under m.
func (c *Client) Put(m mode.Mode, keys, values [][]byte) error {
	e := wire.NewEncoder(64)
	e.PutUint64(uint64(m))
	e.PutBytesSlice(keys)
	e.PutBytesSlice(values)
	_, err := c.call("put", e.Bytes())
	return err
}

// Get fetches the values of keys, packed into one returned slice with a
// parallel size array (backend.KeyNotFound marks a missing key).
func (c *Client) Get(m mode.Mode, keys [][]byte) ([]uint64, []byte, error) {
	e := wire.NewEncoder(64)
	e.PutUint64(uint64(m))
	e.PutBool(true)
	e.PutBytesSlice(keys)
	out, err := c.call("get", e.Bytes())
	if err != nil {
		return nil, nil, err
	}
	d := wire.NewDecoder(out)
	sizes, derr := d.GetUint64Slice()
	if derr != nil {
		return nil, nil, derr
	}
	payload, derr := d.GetBytes()
	return sizes, payload, derr
}

// Length returns each key's value length, or backend.KeyNotFound.
func (c *Client) Length(m mode.Mode, keys [][]byte) ([]uint64, error) {
	out, err := c.call("length", keysBody(m, keys))
	if err != nil {
		return nil, err
	}
	return wire.NewDecoder(out).GetUint64Slice()
}

// Exists returns a bitfield with bit i set iff keys[i] is present.
func (c *Client) Exists(m mode.Mode, keys [][]byte) ([]byte, error) {
	out, err := c.call("exists", keysBody(m, keys))
	if err != nil {
		return nil, err
	}
	return wire.NewDecoder(out).GetBytes()
}

// Erase removes keys.
func (c *Client) Erase(m mode.Mode, keys [][]byte) error {
	_, err := c.call("erase", keysBody(m, keys))
	return err
}

func keysBody(m mode.Mode, keys [][]byte) []byte {
	e := wire.NewEncoder(64)
	e.PutUint64(uint64(m))
	e.PutBytesSlice(keys)
	return e.Bytes()
}

func listBody(m mode.Mode, max uint64, fromKey, filterParam []byte) []byte {
	e := wire.NewEncoder(64)
	e.PutUint64(uint64(m))
	e.PutUint64(max)
	e.PutBytes(fromKey)
	e.PutBytes(filterParam)
	return e.Bytes()
}

// ListKeys returns up to max keys strictly after fromKey (at or after it
// with mode.INCLUSIVE) matching filterParam.
func (c *Client) ListKeys(m mode.Mode, max uint64, fromKey, filterParam []byte) ([][]byte, error) {
	out, err := c.call("list_keys", listBody(m, max, fromKey, filterParam))
	if err != nil {
		return nil, err
	}
	return wire.NewDecoder(out).GetBytesSlice()
}

// ListKeyValues is ListKeys plus the matching values.
func (c *Client) ListKeyValues(m mode.Mode, max uint64, fromKey, filterParam []byte) ([]backend.Entry, error) {
	out, err := c.call("list_keyvals", listBody(m, max, fromKey, filterParam))
	if err != nil {
		return nil, err
	}
	d := wire.NewDecoder(out)
	keys, err := d.GetBytesSlice()
	if err != nil {
		return nil, err
	}
	values, err := d.GetBytesSlice()
	if err != nil {
		return nil, err
	}
	n := len(keys)
	if len(values) > n {
		n = len(values)
	}
	entries := make([]backend.Entry, n)
	for i := range entries {
		if i < len(keys) {
			entries[i].Key = keys[i]
		}
		if i < len(values) {
			entries[i].Value = values[i]
		}
	}
	return entries, nil
}

// Fetch streams the values of keys to cb in batches of batchSize, in the
// same order as keys. If opts specifies a Pool, each batch's callback
// invocations are spawned onto it and joined before the batch is
// acknowledged to the server.
func (c *Client) Fetch(m mode.Mode, keys [][]byte, batchSize uint64, cb KVCallback, opts ...Options) error {
	ref := c.registerStream(streamCtx{kv: cb, pool: firstOptions(opts).Pool})
	defer c.unregisterStream(ref)

	e := wire.NewEncoder(64)
	e.PutUint64(uint64(m))
	e.PutBytesSlice(keys)
	e.PutUint64(ref)
	e.PutUint64(batchSize)
	_, err := c.call("fetch", e.Bytes())
	return err
}

// Iter streams keys (and, unless noValues, values) strictly after fromKey
// (at or after it with mode.INCLUSIVE) matching filterParam to cb in
// batches of batchSize. If opts specifies a
// Pool, each batch's callback invocations are spawned onto it and joined
// before the batch is acknowledged to the server.
func (c *Client) Iter(m mode.Mode, max uint64, fromKey, filterParam []byte, noValues bool, batchSize uint64, cb KVCallback, opts ...Options) error {
	ref := c.registerStream(streamCtx{kv: cb, pool: firstOptions(opts).Pool})
	defer c.unregisterStream(ref)

	e := wire.NewEncoder(64)
	e.PutUint64(uint64(m))
	e.PutUint64(max)
	e.PutBytes(fromKey)
	e.PutBytes(filterParam)
	e.PutBool(noValues)
	e.PutUint64(ref)
	e.PutUint64(batchSize)
	_, err := c.call("iter", e.Bytes())
	return err
}

// CollCreate creates an empty document collection named name.
func (c *Client) CollCreate(name string) error {
	_, err := c.call("coll_create", nameBody(name))
	return err
}

func (c *Client) CollDrop(name string) error {
	_, err := c.call("coll_drop", nameBody(name))
	return err
}

func (c *Client) CollExists(name string) (bool, error) {
	out, err := c.call("coll_exists", nameBody(name))
	if err != nil {
		return false, err
	}
	return wire.NewDecoder(out).GetBool()
}

func (c *Client) CollSize(name string) (uint64, error) {
	out, err := c.call("coll_size", nameBody(name))
	if err != nil {
		return 0, err
	}
	return wire.NewDecoder(out).GetUint64()
}

func (c *Client) CollLastID(name string) (uint64, error) {
	out, err := c.call("coll_last_id", nameBody(name))
	if err != nil {
		return 0, err
	}
	return wire.NewDecoder(out).GetUint64()
}

func nameBody(name string) []byte {
	e := wire.NewEncoder(len(name) + 8)
	e.PutString(name)
	return e.Bytes()
}

// DocStore assigns and returns a fresh id in coll for each document in docs.
func (c *Client) DocStore(m mode.Mode, coll string, docs [][]byte) ([]uint64, error) {
	e := wire.NewEncoder(64)
	e.PutUint64(uint64(m))
	e.PutString(coll)
	e.PutBytesSlice(docs)
	out, err := c.call("doc_store", e.Bytes())
	if err != nil {
		return nil, err
	}
	return wire.NewDecoder(out).GetUint64Slice()
}

// DocUpdate overwrites the documents at ids in coll.
func (c *Client) DocUpdate(m mode.Mode, coll string, ids []uint64, docs [][]byte) error {
	e := wire.NewEncoder(64)
	e.PutUint64(uint64(m))
	e.PutString(coll)
	e.PutUint64Slice(ids)
	e.PutBytesSlice(docs)
	_, err := c.call("doc_update", e.Bytes())
	return err
}

func docIDsBody(m mode.Mode, coll string, ids []uint64) []byte {
	e := wire.NewEncoder(64)
	e.PutUint64(uint64(m))
	e.PutString(coll)
	e.PutUint64Slice(ids)
	return e.Bytes()
}

// DocLoad loads the documents at ids from coll.
func (c *Client) DocLoad(m mode.Mode, coll string, ids []uint64) ([][]byte, error) {
	out, err := c.call("doc_load", docIDsBody(m, coll, ids))
	if err != nil {
		return nil, err
	}
	return wire.NewDecoder(out).GetBytesSlice()
}

// DocLength returns each document's byte length, or backend.KeyNotFound.
func (c *Client) DocLength(m mode.Mode, coll string, ids []uint64) ([]uint64, error) {
	out, err := c.call("doc_length", docIDsBody(m, coll, ids))
	if err != nil {
		return nil, err
	}
	return wire.NewDecoder(out).GetUint64Slice()
}

// DocErase removes the documents at ids from coll.
func (c *Client) DocErase(coll string, ids []uint64) error {
	_, err := c.call("doc_erase", docIDsBody(0, coll, ids))
	return err
}

// DocList returns up to max (id, document) pairs from coll with id
// greater than or equal to fromID and matching filterParam.
func (c *Client) DocList(m mode.Mode, coll string, max, fromID uint64, filterParam []byte) ([]uint64, [][]byte, error) {
	e := wire.NewEncoder(64)
	e.PutUint64(uint64(m))
	e.PutString(coll)
	e.PutUint64(max)
	e.PutUint64(fromID)
	e.PutBytes(filterParam)
	out, err := c.call("doc_list", e.Bytes())
	if err != nil {
		return nil, nil, err
	}
	d := wire.NewDecoder(out)
	ids, derr := d.GetUint64Slice()
	if derr != nil {
		return nil, nil, derr
	}
	docs, derr := d.GetBytesSlice()
	return ids, docs, derr
}

// DocFetch streams the documents at ids from coll to cb in batches of
// batchSize. If opts specifies a Pool, each batch's callback invocations
// are spawned onto it and joined before the batch is acknowledged to the
// server.
func (c *Client) DocFetch(m mode.Mode, coll string, ids []uint64, batchSize uint64, cb DocCallback, opts ...Options) error {
	ref := c.registerStream(streamCtx{doc: cb, pool: firstOptions(opts).Pool})
	defer c.unregisterStream(ref)

	e := wire.NewEncoder(64)
	e.PutUint64(uint64(m))
	e.PutString(coll)
	e.PutUint64Slice(ids)
	e.PutUint64(ref)
	e.PutUint64(batchSize)
	_, err := c.call("doc_fetch", e.Bytes())
	return err
}

// DocIter streams (id, document) pairs from coll with id greater than or
// equal to fromID matching filterParam to cb in batches of batchSize. If
// opts specifies a Pool, each batch's callback invocations are spawned
// onto it and joined before the batch is acknowledged to the server.
func (c *Client) DocIter(m mode.Mode, coll string, max, fromID uint64, filterParam []byte, batchSize uint64, cb DocCallback, opts ...Options) error {
	ref := c.registerStream(streamCtx{doc: cb, pool: firstOptions(opts).Pool})
	defer c.unregisterStream(ref)

	e := wire.NewEncoder(64)
	e.PutUint64(uint64(m))
	e.PutString(coll)
	e.PutUint64(max)
	e.PutUint64(fromID)
	e.PutBytes(filterParam)
	e.PutUint64(ref)
	e.PutUint64(batchSize)
	_, err := c.call("doc_iter", e.Bytes())
	return err
}
