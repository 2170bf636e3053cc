package provider

import (
	"github.com/yokan-project/yokan/pkg/filter"
	"github.com/yokan-project/yokan/pkg/rpc"
	"github.com/yokan-project/yokan/pkg/status"
)

// kvBatcher accumulates key/value results into batches of batchSize and
// ships each completed batch through a back-RPC while the next batch is
// still being filled: the "current" batch being built is ordinary local
// state, and the "previous" batch is whatever send is still in flight on
// prevDone. finish drains the last partial batch and the final in-flight
// send.
type kvBatcher struct {
	conn      *rpc.Conn
	opRef     uint64
	batchSize uint64

	startIndex uint64
	keys       [][]byte
	values     [][]byte

	prevDone chan status.Status
	firstErr status.Status
}

func newKVBatcher(conn *rpc.Conn, opRef, batchSize uint64) *kvBatcher {
	if batchSize == 0 {
		batchSize = 1
	}
	return &kvBatcher{conn: conn, opRef: opRef, batchSize: batchSize, firstErr: status.OK}
}

// add is the backend.KVCallback passed to Fetch/Iter. Once a prior batch's
// back-RPC has failed, it keeps returning that status so the backend's
// scan stops at the next boundary per the documented callback contract.
func (b *kvBatcher) add(key, value []byte) status.Status {
	if !b.firstErr.IsOK() {
		return b.firstErr
	}
	b.keys = append(b.keys, key)
	b.values = append(b.values, value)
	if uint64(len(b.keys)) >= b.batchSize {
		return b.flush()
	}
	return status.OK
}

func (b *kvBatcher) flush() status.Status {
	if !b.firstErr.IsOK() {
		return b.firstErr
	}
	if len(b.keys) == 0 {
		return status.OK
	}
	if s := b.awaitPrevious(); !s.IsOK() {
		return s
	}
	keys, values, start := b.keys, b.values, b.startIndex
	b.startIndex += uint64(len(keys))
	b.keys, b.values = nil, nil

	done := make(chan status.Status, 1)
	go func() {
		_, s := b.conn.BackRequest(encodeKVBack(b.opRef, start, keys, values))
		done <- s
	}()
	b.prevDone = done
	return status.OK
}

func (b *kvBatcher) awaitPrevious() status.Status {
	if b.prevDone == nil {
		return status.OK
	}
	s := <-b.prevDone
	b.prevDone = nil
	if !s.IsOK() {
		b.firstErr = s
	}
	return s
}

// finish flushes any partial final batch and waits for the last send.
// Callers must still compare the backend scan's own status against this
// return per first-error-wins: a backend error takes precedence over a
// back-RPC failure.
func (b *kvBatcher) finish() status.Status {
	if s := b.flush(); !s.IsOK() {
		return s
	}
	return b.awaitPrevious()
}

func firstErrorWins(backendStatus, backStatus status.Status) status.Status {
	if !backendStatus.IsOK() {
		return backendStatus
	}
	return backStatus
}

func (p *Provider) handleFetch(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeFetchIn)
	if !s.IsOK() {
		return nil, instrument("fetch", s)
	}
	if s = p.checkMode(in.Mode); !s.IsOK() {
		return nil, instrument("fetch", s)
	}

	b := newKVBatcher(conn, in.OpRef, in.BatchSize)
	dbStatus := p.DB.Fetch(in.Mode, in.Keys, b.add)
	backStatus := b.finish()
	return nil, instrument("fetch", firstErrorWins(dbStatus, backStatus))
}

func (p *Provider) handleIter(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeIterIn)
	if !s.IsOK() {
		return nil, instrument("iter", s)
	}
	if s = p.checkMode(in.Mode); !s.IsOK() {
		return nil, instrument("iter", s)
	}
	f, err := filter.New(in.Mode, in.Filter)
	if err != nil {
		return nil, instrument("iter", status.New(status.ErrInvalidFilter, "%s", err))
	}

	b := newKVBatcher(conn, in.OpRef, in.BatchSize)
	dbStatus := p.DB.Iter(in.Mode, int(in.Max), in.FromKey, f, in.NoValues, b.add)
	backStatus := b.finish()
	return nil, instrument("iter", firstErrorWins(dbStatus, backStatus))
}

// docBatcher is kvBatcher's document-layer analogue: ids/docs instead of
// keys/values, otherwise identical pipelining.
type docBatcher struct {
	conn      *rpc.Conn
	opRef     uint64
	batchSize uint64

	startIndex uint64
	ids        []uint64
	docs       [][]byte

	prevDone chan status.Status
	firstErr status.Status
}

func newDocBatcher(conn *rpc.Conn, opRef, batchSize uint64) *docBatcher {
	if batchSize == 0 {
		batchSize = 1
	}
	return &docBatcher{conn: conn, opRef: opRef, batchSize: batchSize, firstErr: status.OK}
}

func (b *docBatcher) add(id uint64, doc []byte) status.Status {
	if !b.firstErr.IsOK() {
		return b.firstErr
	}
	b.ids = append(b.ids, id)
	b.docs = append(b.docs, doc)
	if uint64(len(b.ids)) >= b.batchSize {
		return b.flush()
	}
	return status.OK
}

func (b *docBatcher) flush() status.Status {
	if !b.firstErr.IsOK() {
		return b.firstErr
	}
	if len(b.ids) == 0 {
		return status.OK
	}
	if s := b.awaitPrevious(); !s.IsOK() {
		return s
	}
	ids, docs, start := b.ids, b.docs, b.startIndex
	b.startIndex += uint64(len(ids))
	b.ids, b.docs = nil, nil

	done := make(chan status.Status, 1)
	go func() {
		_, s := b.conn.BackRequest(encodeDocBack(b.opRef, start, ids, docs))
		done <- s
	}()
	b.prevDone = done
	return status.OK
}

func (b *docBatcher) awaitPrevious() status.Status {
	if b.prevDone == nil {
		return status.OK
	}
	s := <-b.prevDone
	b.prevDone = nil
	if !s.IsOK() {
		b.firstErr = s
	}
	return s
}

func (b *docBatcher) finish() status.Status {
	if s := b.flush(); !s.IsOK() {
		return s
	}
	return b.awaitPrevious()
}

func (p *Provider) handleDocFetch(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeDocFetchIn)
	if !s.IsOK() {
		return nil, instrument("doc_fetch", s)
	}
	if s = p.checkMode(in.Mode); !s.IsOK() {
		return nil, instrument("doc_fetch", s)
	}

	b := newDocBatcher(conn, in.OpRef, in.BatchSize)
	dbStatus := p.DB.DocFetch(in.Mode, in.Coll, in.IDs, b.add)
	backStatus := b.finish()
	return nil, instrument("doc_fetch", firstErrorWins(dbStatus, backStatus))
}

func (p *Provider) handleDocIter(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeDocIterIn)
	if !s.IsOK() {
		return nil, instrument("doc_iter", s)
	}
	if s = p.checkMode(in.Mode); !s.IsOK() {
		return nil, instrument("doc_iter", s)
	}
	f, err := filter.NewDoc(in.Mode, in.Filter)
	if err != nil {
		return nil, instrument("doc_iter", status.New(status.ErrInvalidFilter, "%s", err))
	}

	b := newDocBatcher(conn, in.OpRef, in.BatchSize)
	dbStatus := p.DB.DocIter(in.Mode, in.Coll, int(in.Max), in.FromID, f, b.add)
	backStatus := b.finish()
	return nil, instrument("doc_iter", firstErrorWins(dbStatus, backStatus))
}
