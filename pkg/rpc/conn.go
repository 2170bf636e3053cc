package rpc

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/yokan-project/yokan/pkg/log"
	"github.com/yokan-project/yokan/pkg/status"
	"github.com/yokan-project/yokan/pkg/wire"
)

// BackRequestHandler processes an incoming back-request (the server's
// half of a streaming op's pipelined delivery) and returns the encoded
// back-response body.
type BackRequestHandler func(conn *Conn, body []byte) ([]byte, status.Status)

// Conn wraps one net.Conn with a single-writer lock and a read loop that
// demultiplexes frames by request id. The same type serves both roles on
// a connection: issuing requests and awaiting responses (client role),
// and receiving requests and dispatching them to a Registry (server
// role). A provider's listener accepts connections and wraps each one in
// a server-role Conn; a client dials out and wraps the dial in a
// client-role Conn.
type Conn struct {
	nc       net.Conn
	writeMu  sync.Mutex
	registry *Registry
	backFn   BackRequestHandler
	nextID   uint64
	pool     *Pool

	mu      sync.Mutex
	pending map[uint64]chan wire.Frame
	bulk    *bulkTable
	closed  bool
}

// NewConn wraps nc. registry may be nil for a pure client connection that
// never serves inbound requests; backFn may be nil for a pure server
// connection that never receives back-requests. Inbound requests and
// back-requests run on a bounded pool of defaultPoolSize goroutines per
// connection.
func NewConn(nc net.Conn, registry *Registry, backFn BackRequestHandler) *Conn {
	c := &Conn{
		nc:       nc,
		registry: registry,
		backFn:   backFn,
		pending:  make(map[uint64]chan wire.Frame),
		bulk:     newBulkTable(),
		pool:     NewPool(defaultPoolSize),
	}
	go c.readLoop()
	return c
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[uint64]chan wire.Frame)
	c.mu.Unlock()
	return c.nc.Close()
}

// allocID hands out the next request id in this connection's shared id
// space (requests, back-requests, and bulk-chunk pulls all share it so a
// single pending map can demultiplex every response kind).
func (c *Conn) allocID() uint64 {
	return atomic.AddUint64(&c.nextID, 1)
}

func (c *Conn) writeFrame(f wire.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteFrame(c.nc, f)
}

// Request encodes (providerID, name, payload) as a request envelope,
// sends it, and blocks for the matching response body.
func (c *Conn) Request(providerID uint16, name string, payload []byte) ([]byte, status.Status) {
	id := c.allocID()
	body := encodeEnvelope(providerID, name, payload)

	ch := make(chan wire.Frame, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.writeFrame(wire.Frame{Kind: wire.KindRequest, RequestID: id, Body: body}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, status.New(status.ErrFromTransport, "rpc: write request: %s", err)
	}

	f, ok := <-ch
	if !ok {
		return nil, status.New(status.ErrFromTransport, "rpc: connection closed awaiting response")
	}
	s, payload, err := decodeResponse(f.Body)
	if err != nil {
		return nil, status.New(status.ErrFromTransport, "rpc: malformed response: %s", err)
	}
	return payload, s
}

// BackRequest sends a server-initiated back-request and blocks for the
// matching back-response body. Used by the streaming back-channel.
func (c *Conn) BackRequest(payload []byte) ([]byte, status.Status) {
	id := c.allocID()

	ch := make(chan wire.Frame, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.writeFrame(wire.Frame{Kind: wire.KindBackRequest, RequestID: id, Body: payload}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, status.New(status.ErrFromTransport, "rpc: write back-request: %s", err)
	}

	f, ok := <-ch
	if !ok {
		return nil, status.New(status.ErrFromTransport, "rpc: connection closed awaiting back-response")
	}
	s, payload, err := decodeResponse(f.Body)
	if err != nil {
		return nil, status.New(status.ErrFromTransport, "rpc: malformed back-response: %s", err)
	}
	return payload, s
}

// BulkToken starts hosting a bulk region under a fresh UUID token and
// returns it; PullBulk on the peer connection references this token to
// fetch chunk frames out of band from the request/response pair that
// advertises it.
func (c *Conn) BulkToken(data []byte) uuid.UUID {
	return c.bulk.host(data)
}

// PullBulk fetches the bulk region named by token from the peer, issuing
// bulk-chunk request frames until the peer signals end of region or
// maxBytes bytes have been read.
func (c *Conn) PullBulk(token uuid.UUID, maxBytes int) ([]byte, status.Status) {
	return c.bulk.pull(c, token, maxBytes)
}

// ReleaseBulk stops hosting a bulk region once its peer has finished
// pulling it (or never will).
func (c *Conn) ReleaseBulk(token uuid.UUID) {
	c.bulk.release(token)
}

func (c *Conn) readLoop() {
	log.Debug("rpc: read loop starting")
	for {
		f, err := wire.ReadFrame(c.nc)
		if err != nil {
			c.Close()
			return
		}
		switch f.Kind {
		case wire.KindResponse, wire.KindBackResponse:
			c.mu.Lock()
			ch, ok := c.pending[f.RequestID]
			if ok {
				delete(c.pending, f.RequestID)
			}
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case wire.KindRequest:
			c.pool.Go(func() { c.serveRequest(f) })
		case wire.KindBackRequest:
			c.pool.Go(func() { c.serveBackRequest(f) })
		case wire.KindBulkChunk:
			c.bulk.handleChunk(c, f)
		}
	}
}

func (c *Conn) serveRequest(f wire.Frame) {
	providerID, name, payload, err := decodeEnvelope(f.Body)
	var respBody []byte
	switch {
	case err != nil:
		respBody = encodeStatus(status.New(status.ErrInvalidArgs, "rpc: malformed envelope: %s", err))
	case c.registry == nil:
		respBody = encodeStatus(status.New(status.ErrInvalidProvider, "rpc: connection serves no registry"))
	default:
		if h, ok := c.registry.lookup(providerID, name); ok {
			out, s := h(c, payload)
			respBody = encodeResponse(s, out)
		} else {
			respBody = encodeStatus(status.New(status.ErrInvalidProvider, "rpc: no handler for provider %d rpc %q", providerID, name))
		}
	}
	c.writeFrame(wire.Frame{Kind: wire.KindResponse, RequestID: f.RequestID, Body: respBody})
}

func (c *Conn) serveBackRequest(f wire.Frame) {
	var respBody []byte
	if c.backFn == nil {
		respBody = encodeStatus(status.New(status.ErrOpUnsupported, "rpc: connection accepts no back-requests"))
	} else {
		out, s := c.backFn(c, f.Body)
		respBody = encodeResponse(s, out)
	}
	c.writeFrame(wire.Frame{Kind: wire.KindBackResponse, RequestID: f.RequestID, Body: respBody})
}
