package rpc

import (
	"sync"

	"github.com/google/uuid"
	"github.com/yokan-project/yokan/pkg/status"
	"github.com/yokan-project/yokan/pkg/wire"
)

// bulkChunkSize caps a single chunk frame's payload so a large bulk
// region is never held fully in memory on both ends at once.
const bulkChunkSize = 1 << 20

// bulkTable tracks the bulk regions this side of a Conn hosts for its
// peer to pull, keyed by a UUID token handed out by BulkToken. It also
// implements the pulling half: PullBulk issues chunk-request frames over
// the same Conn and reassembles the response chunks.
type bulkTable struct {
	mu     sync.Mutex
	hosted map[uuid.UUID][]byte
}

func newBulkTable() *bulkTable {
	return &bulkTable{hosted: make(map[uuid.UUID][]byte)}
}

func (t *bulkTable) host(data []byte) uuid.UUID {
	id := uuid.New()
	t.mu.Lock()
	t.hosted[id] = data
	t.mu.Unlock()
	return id
}

func (t *bulkTable) release(id uuid.UUID) {
	t.mu.Lock()
	delete(t.hosted, id)
	t.mu.Unlock()
}

// pull fetches the bulk region named by token from the peer, one chunk
// request/response round trip at a time until the peer reports the
// region fully drained or maxBytes have been read.
func (t *bulkTable) pull(c *Conn, token uuid.UUID, maxBytes int) ([]byte, status.Status) {
	var out []byte
	offset := uint64(0)
	for {
		want := uint64(bulkChunkSize)
		if remaining := maxBytes - len(out); remaining >= 0 && uint64(remaining) < want {
			want = uint64(remaining)
		}
		if want == 0 {
			break
		}

		id := c.allocID()
		ch := make(chan wire.Frame, 1)
		c.mu.Lock()
		c.pending[id] = ch
		c.mu.Unlock()

		reqBody := encodeBulkRequest(token, offset, want)
		if err := c.writeFrame(wire.Frame{Kind: wire.KindBulkChunk, RequestID: id, Body: reqBody}); err != nil {
			c.mu.Lock()
			delete(c.pending, id)
			c.mu.Unlock()
			return nil, status.New(status.ErrFromTransport, "rpc: bulk pull write: %s", err)
		}

		f, ok := <-ch
		if !ok {
			return nil, status.New(status.ErrFromTransport, "rpc: connection closed during bulk pull")
		}
		chunk, last, err := decodeBulkChunk(f.Body)
		if err != nil {
			return nil, status.New(status.ErrFromTransport, "rpc: malformed bulk chunk: %s", err)
		}
		out = append(out, chunk...)
		offset += uint64(len(chunk))
		if last || len(chunk) == 0 {
			break
		}
	}
	return out, status.OK
}

// handleChunk is invoked from the read loop for every inbound
// KindBulkChunk frame. If this Conn is awaiting a response with that
// frame's request id (it initiated a pull), the frame is routed there;
// otherwise it is treated as an inbound pull request against data this
// side hosts.
func (t *bulkTable) handleChunk(c *Conn, f wire.Frame) {
	c.mu.Lock()
	ch, awaiting := c.pending[f.RequestID]
	if awaiting {
		delete(c.pending, f.RequestID)
	}
	c.mu.Unlock()
	if awaiting {
		ch <- f
		return
	}

	token, offset, want, err := decodeBulkRequest(f.Body)
	if err != nil {
		c.writeFrame(wire.Frame{Kind: wire.KindBulkChunk, RequestID: f.RequestID, Body: encodeBulkChunk(nil, true)})
		return
	}
	t.mu.Lock()
	data := t.hosted[token]
	t.mu.Unlock()

	var chunk []byte
	last := true
	if offset < uint64(len(data)) {
		end := offset + want
		if end > uint64(len(data)) {
			end = uint64(len(data))
		}
		chunk = data[offset:end]
		last = end >= uint64(len(data))
	}
	c.writeFrame(wire.Frame{Kind: wire.KindBulkChunk, RequestID: f.RequestID, Body: encodeBulkChunk(chunk, last)})
}

func encodeBulkRequest(token uuid.UUID, offset, want uint64) []byte {
	e := wire.NewEncoder(16 + 8 + 8)
	e.PutUUID(token)
	e.PutUint64(offset)
	e.PutUint64(want)
	return e.Bytes()
}

func decodeBulkRequest(body []byte) (token uuid.UUID, offset, want uint64, err error) {
	d := wire.NewDecoder(body)
	if token, err = d.GetUUID(); err != nil {
		return
	}
	if offset, err = d.GetUint64(); err != nil {
		return
	}
	want, err = d.GetUint64()
	return
}

func encodeBulkChunk(data []byte, last bool) []byte {
	e := wire.NewEncoder(1 + 8 + len(data))
	e.PutBool(last)
	e.PutBytes(data)
	return e.Bytes()
}

func decodeBulkChunk(body []byte) (data []byte, last bool, err error) {
	d := wire.NewDecoder(body)
	if last, err = d.GetBool(); err != nil {
		return
	}
	data, err = d.GetBytes()
	return
}
