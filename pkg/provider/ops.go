package provider

import (
	"github.com/yokan-project/yokan/pkg/backend"
	"github.com/yokan-project/yokan/pkg/filter"
	"github.com/yokan-project/yokan/pkg/mode"
	"github.com/yokan-project/yokan/pkg/rpc"
	"github.com/yokan-project/yokan/pkg/status"
	"github.com/yokan-project/yokan/pkg/wire"
)

func (p *Provider) handleCount(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	n, s := p.DB.Count()
	if !s.IsOK() {
		return nil, instrument("count", s)
	}
	return encodeUint64Out(n), instrument("count", status.OK)
}

func (p *Provider) handlePut(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodePutIn)
	if !s.IsOK() {
		return nil, instrument("put", s)
	}
	if s = p.checkMode(in.Mode); !s.IsOK() {
		return nil, instrument("put", s)
	}
	s = p.DB.Put(in.Mode, in.Keys, in.Values)
	return nil, instrument("put", s)
}

func (p *Provider) handleGet(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeGetIn)
	if !s.IsOK() {
		return nil, instrument("get", s)
	}
	if s = p.checkMode(in.Mode); !s.IsOK() {
		return nil, instrument("get", s)
	}
	p.awaitKeys(in.Mode, in.Keys)

	if in.Packed {
		// A packed get carries no buffer size, so the payload is bounded by
		// the lengths currently stored under the keys.
		lengths, s := p.DB.Length(in.Mode, in.Keys)
		if !s.IsOK() {
			return nil, instrument("get", s)
		}
		var maxBytes uint64
		for _, n := range lengths {
			if n <= backend.LastValidSize {
				maxBytes += n
			}
		}
		payload, sizes, s := p.DB.GetPacked(in.Mode, in.Keys, maxBytes)
		if !s.IsOK() {
			return nil, instrument("get", s)
		}
		return encodeGetPackedOut(payload, sizes), instrument("get", status.OK)
	}

	outSizes := make([]uint64, len(in.Keys))
	outValues := make([][]byte, len(in.Keys))
	for i, sz := range in.Sizes {
		outSizes[i] = sz
		outValues[i] = make([]byte, sz)
	}
	s = p.DB.Get(in.Mode, in.Keys, outSizes, outValues)
	if !s.IsOK() {
		return nil, instrument("get", s)
	}
	return encodeGetOut(outSizes, outValues), instrument("get", status.OK)
}

func (p *Provider) handleLength(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeKeysIn)
	if !s.IsOK() {
		return nil, instrument("length", s)
	}
	if s = p.checkMode(in.Mode); !s.IsOK() {
		return nil, instrument("length", s)
	}
	p.awaitKeys(in.Mode, in.Keys)
	sizes, s := p.DB.Length(in.Mode, in.Keys)
	if !s.IsOK() {
		return nil, instrument("length", s)
	}
	return encodeSizesOut(sizes), instrument("length", status.OK)
}

func (p *Provider) handleExists(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeKeysIn)
	if !s.IsOK() {
		return nil, instrument("exists", s)
	}
	if s = p.checkMode(in.Mode); !s.IsOK() {
		return nil, instrument("exists", s)
	}
	p.awaitKeys(in.Mode, in.Keys)
	bits, s := p.DB.Exists(in.Mode, in.Keys)
	if !s.IsOK() {
		return nil, instrument("exists", s)
	}
	return encodeBytesOut(bits), instrument("exists", status.OK)
}

func (p *Provider) handleErase(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeKeysIn)
	if !s.IsOK() {
		return nil, instrument("erase", s)
	}
	if s = p.checkMode(in.Mode); !s.IsOK() {
		return nil, instrument("erase", s)
	}
	s = p.DB.Erase(in.Mode, in.Keys)
	return nil, instrument("erase", s)
}

func (p *Provider) handleListKeys(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeListIn)
	if !s.IsOK() {
		return nil, instrument("list_keys", s)
	}
	if s = p.checkMode(in.Mode); !s.IsOK() {
		return nil, instrument("list_keys", s)
	}
	f, err := filter.New(in.Mode, in.Filter)
	if err != nil {
		return nil, instrument("list_keys", status.New(status.ErrInvalidFilter, "%s", err))
	}
	keys, s := p.DB.ListKeys(in.Mode, int(in.Max), in.FromKey, f)
	if !s.IsOK() {
		return nil, instrument("list_keys", s)
	}
	return encodeKeysOut(keys), instrument("list_keys", status.OK)
}

func (p *Provider) handleListKeyValues(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeListIn)
	if !s.IsOK() {
		return nil, instrument("list_keyvals", s)
	}
	if s = p.checkMode(in.Mode); !s.IsOK() {
		return nil, instrument("list_keyvals", s)
	}
	f, err := filter.New(in.Mode, in.Filter)
	if err != nil {
		return nil, instrument("list_keyvals", status.New(status.ErrInvalidFilter, "%s", err))
	}
	entries, s := p.DB.ListKeyValues(in.Mode, int(in.Max), in.FromKey, f)
	if !s.IsOK() {
		return nil, instrument("list_keyvals", s)
	}
	var keys, values [][]byte
	if !in.Mode.Has(mode.IGNORE_KEYS) {
		keys = make([][]byte, len(entries))
	}
	if !in.Mode.Has(mode.KEYS_ONLY) {
		values = make([][]byte, len(entries))
	}
	for i, e := range entries {
		if keys != nil {
			keys[i] = e.Key
		}
		if values != nil {
			values[i] = e.Value
		}
	}
	return encodeEntriesOut(keys, values), instrument("list_keyvals", status.OK)
}

func (p *Provider) handleCollCreate(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeCollIn)
	if !s.IsOK() {
		return nil, instrument("coll_create", s)
	}
	return nil, instrument("coll_create", p.DB.CollCreate(in.Name))
}

func (p *Provider) handleCollDrop(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeCollIn)
	if !s.IsOK() {
		return nil, instrument("coll_drop", s)
	}
	return nil, instrument("coll_drop", p.DB.CollDrop(in.Name))
}

func (p *Provider) handleCollExists(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeCollIn)
	if !s.IsOK() {
		return nil, instrument("coll_exists", s)
	}
	ok, s := p.DB.CollExists(in.Name)
	if !s.IsOK() {
		return nil, instrument("coll_exists", s)
	}
	return encodeBoolOut(ok), instrument("coll_exists", status.OK)
}

func (p *Provider) handleCollSize(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeCollIn)
	if !s.IsOK() {
		return nil, instrument("coll_size", s)
	}
	n, s := p.DB.CollSize(in.Name)
	if !s.IsOK() {
		return nil, instrument("coll_size", s)
	}
	return encodeUint64Out(n), instrument("coll_size", status.OK)
}

func (p *Provider) handleCollLastID(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeCollIn)
	if !s.IsOK() {
		return nil, instrument("coll_last_id", s)
	}
	n, s := p.DB.CollLastID(in.Name)
	if !s.IsOK() {
		return nil, instrument("coll_last_id", s)
	}
	return encodeUint64Out(n), instrument("coll_last_id", status.OK)
}

func (p *Provider) handleDocStore(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeDocStoreIn)
	if !s.IsOK() {
		return nil, instrument("doc_store", s)
	}
	if s = p.checkMode(in.Mode); !s.IsOK() {
		return nil, instrument("doc_store", s)
	}
	ids, s := p.DB.DocStore(in.Mode, in.Coll, in.Docs)
	if !s.IsOK() {
		return nil, instrument("doc_store", s)
	}
	return encodeIDsOut(ids), instrument("doc_store", status.OK)
}

func (p *Provider) handleDocUpdate(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeDocUpdateIn)
	if !s.IsOK() {
		return nil, instrument("doc_update", s)
	}
	if s = p.checkMode(in.Mode); !s.IsOK() {
		return nil, instrument("doc_update", s)
	}
	s = p.DB.DocUpdate(in.Mode, in.Coll, in.IDs, in.Docs)
	return nil, instrument("doc_update", s)
}

func (p *Provider) handleDocLoad(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeDocIDsIn)
	if !s.IsOK() {
		return nil, instrument("doc_load", s)
	}
	if s = p.checkMode(in.Mode); !s.IsOK() {
		return nil, instrument("doc_load", s)
	}
	docs, s := p.DB.DocLoad(in.Mode, in.Coll, in.IDs)
	if !s.IsOK() {
		return nil, instrument("doc_load", s)
	}
	return encodeDocsOut(docs), instrument("doc_load", status.OK)
}

func (p *Provider) handleDocLength(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeDocIDsIn)
	if !s.IsOK() {
		return nil, instrument("doc_length", s)
	}
	sizes := make([]uint64, len(in.IDs))
	for i, id := range in.IDs {
		n, s := p.DB.DocSize(in.Coll, id)
		if !s.IsOK() {
			sizes[i] = backend.KeyNotFound
			continue
		}
		sizes[i] = n
	}
	return encodeSizesOut(sizes), instrument("doc_length", status.OK)
}

func (p *Provider) handleDocList(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeDocListIn)
	if !s.IsOK() {
		return nil, instrument("doc_list", s)
	}
	if s = p.checkMode(in.Mode); !s.IsOK() {
		return nil, instrument("doc_list", s)
	}
	f, err := filter.NewDoc(in.Mode, in.Filter)
	if err != nil {
		return nil, instrument("doc_list", status.New(status.ErrInvalidFilter, "%s", err))
	}
	ids, docs, s := p.DB.DocList(in.Mode, in.Coll, int(in.Max), in.FromID, f)
	if !s.IsOK() {
		return nil, instrument("doc_list", s)
	}
	e := wire.NewEncoder(64)
	putIDsAndDocs(e, ids, docs)
	return e.Bytes(), instrument("doc_list", status.OK)
}

func (p *Provider) handleDocErase(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	in, s := decode(body, decodeDocIDsIn)
	if !s.IsOK() {
		return nil, instrument("doc_erase", s)
	}
	return nil, instrument("doc_erase", p.DB.DocErase(in.Coll, in.IDs))
}

func (p *Provider) handleGetRemiProviderID(conn *rpc.Conn, body []byte) ([]byte, status.Status) {
	return nil, instrument("get_remi_provider_id",
		status.New(status.ErrOpUnsupported, "provider: no paired file-transport provider"))
}

func putIDsAndDocs(e *wire.Encoder, ids []uint64, docs [][]byte) {
	e.PutUint64Slice(ids)
	e.PutBytesSlice(docs)
}
