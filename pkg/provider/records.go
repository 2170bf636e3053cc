// Package provider implements the server-side data plane: decoding each
// RPC's wire record, validating its mode bitmask, dispatching to the
// configured backend, and encoding the result (or streaming it through
// the back-channel for fetch/iter/doc_fetch/doc_iter).
package provider

import (
	"github.com/yokan-project/yokan/pkg/mode"
	"github.com/yokan-project/yokan/pkg/wire"
)

// putIn is the wire record for put: a mode bitmask and parallel
// keys/values vectors, carried inline (the "direct" variant). No bulk
// variant that pulls keys/values out of a registered region exists; put
// accepts only this inline record.
type putIn struct {
	Mode   mode.Mode
	Keys   [][]byte
	Values [][]byte
}

func (r putIn) encode(e *wire.Encoder) {
	e.PutUint64(uint64(r.Mode))
	e.PutBytesSlice(r.Keys)
	e.PutBytesSlice(r.Values)
}

func decodePutIn(d *wire.Decoder) (putIn, error) {
	var r putIn
	m, err := d.GetUint64()
	if err != nil {
		return r, err
	}
	r.Mode = mode.Mode(m)
	if r.Keys, err = d.GetBytesSlice(); err != nil {
		return r, err
	}
	r.Values, err = d.GetBytesSlice()
	return r, err
}

type keysIn struct {
	Mode mode.Mode
	Keys [][]byte
}

func (r keysIn) encode(e *wire.Encoder) {
	e.PutUint64(uint64(r.Mode))
	e.PutBytesSlice(r.Keys)
}

func decodeKeysIn(d *wire.Decoder) (keysIn, error) {
	var r keysIn
	m, err := d.GetUint64()
	if err != nil {
		return r, err
	}
	r.Mode = mode.Mode(m)
	r.Keys, err = d.GetBytesSlice()
	return r, err
}

// getIn additionally carries per-key output buffer sizes, since the
// fixed-slot (!packed) layout needs to know how much room each value has
// before the backend runs.
type getIn struct {
	Mode   mode.Mode
	Packed bool
	Keys   [][]byte
	Sizes  []uint64 // only meaningful when !Packed
}

func (r getIn) encode(e *wire.Encoder) {
	e.PutUint64(uint64(r.Mode))
	e.PutBool(r.Packed)
	e.PutBytesSlice(r.Keys)
	if !r.Packed {
		e.PutUint64Slice(r.Sizes)
	}
}

func decodeGetIn(d *wire.Decoder) (getIn, error) {
	var r getIn
	m, err := d.GetUint64()
	if err != nil {
		return r, err
	}
	r.Mode = mode.Mode(m)
	if r.Packed, err = d.GetBool(); err != nil {
		return r, err
	}
	if r.Keys, err = d.GetBytesSlice(); err != nil {
		return r, err
	}
	if !r.Packed {
		r.Sizes, err = d.GetUint64Slice()
	}
	return r, err
}

func encodeGetOut(sizes []uint64, values [][]byte) []byte {
	e := wire.NewEncoder(64)
	e.PutUint64Slice(sizes)
	e.PutBytesSlice(values)
	return e.Bytes()
}

func encodeGetPackedOut(payload []byte, sizes []uint64) []byte {
	e := wire.NewEncoder(64 + len(payload))
	e.PutUint64Slice(sizes)
	e.PutBytes(payload)
	return e.Bytes()
}

func encodeSizesOut(sizes []uint64) []byte {
	e := wire.NewEncoder(8 * (len(sizes) + 1))
	e.PutUint64Slice(sizes)
	return e.Bytes()
}

func encodeBytesOut(b []byte) []byte {
	e := wire.NewEncoder(8 + len(b))
	e.PutBytes(b)
	return e.Bytes()
}

func encodeUint64Out(v uint64) []byte {
	e := wire.NewEncoder(8)
	e.PutUint64(v)
	return e.Bytes()
}

func encodeBoolOut(v bool) []byte {
	e := wire.NewEncoder(1)
	e.PutBool(v)
	return e.Bytes()
}

func encodeKeysOut(keys [][]byte) []byte {
	e := wire.NewEncoder(64)
	e.PutBytesSlice(keys)
	return e.Bytes()
}

func encodeEntriesOut(keys, values [][]byte) []byte {
	e := wire.NewEncoder(64)
	e.PutBytesSlice(keys)
	e.PutBytesSlice(values)
	return e.Bytes()
}

// listIn is shared by list_keys and list_keyvals.
type listIn struct {
	Mode    mode.Mode
	Max     uint64
	FromKey []byte
	Filter  []byte // opaque filter parameter blob
}

func (r listIn) encode(e *wire.Encoder) {
	e.PutUint64(uint64(r.Mode))
	e.PutUint64(r.Max)
	e.PutBytes(r.FromKey)
	e.PutBytes(r.Filter)
}

func decodeListIn(d *wire.Decoder) (listIn, error) {
	var r listIn
	m, err := d.GetUint64()
	if err != nil {
		return r, err
	}
	r.Mode = mode.Mode(m)
	if r.Max, err = d.GetUint64(); err != nil {
		return r, err
	}
	if r.FromKey, err = d.GetBytes(); err != nil {
		return r, err
	}
	r.Filter, err = d.GetBytes()
	return r, err
}

type collIn struct {
	Name string
}

func (r collIn) encode(e *wire.Encoder) {
	e.PutString(r.Name)
}

func decodeCollIn(d *wire.Decoder) (collIn, error) {
	name, err := d.GetString()
	return collIn{Name: name}, err
}

type docStoreIn struct {
	Mode mode.Mode
	Coll string
	Docs [][]byte
}

func (r docStoreIn) encode(e *wire.Encoder) {
	e.PutUint64(uint64(r.Mode))
	e.PutString(r.Coll)
	e.PutBytesSlice(r.Docs)
}

func decodeDocStoreIn(d *wire.Decoder) (docStoreIn, error) {
	var r docStoreIn
	m, err := d.GetUint64()
	if err != nil {
		return r, err
	}
	r.Mode = mode.Mode(m)
	if r.Coll, err = d.GetString(); err != nil {
		return r, err
	}
	r.Docs, err = d.GetBytesSlice()
	return r, err
}

type docUpdateIn struct {
	Mode mode.Mode
	Coll string
	IDs  []uint64
	Docs [][]byte
}

func (r docUpdateIn) encode(e *wire.Encoder) {
	e.PutUint64(uint64(r.Mode))
	e.PutString(r.Coll)
	e.PutUint64Slice(r.IDs)
	e.PutBytesSlice(r.Docs)
}

func decodeDocUpdateIn(d *wire.Decoder) (docUpdateIn, error) {
	var r docUpdateIn
	m, err := d.GetUint64()
	if err != nil {
		return r, err
	}
	r.Mode = mode.Mode(m)
	if r.Coll, err = d.GetString(); err != nil {
		return r, err
	}
	if r.IDs, err = d.GetUint64Slice(); err != nil {
		return r, err
	}
	r.Docs, err = d.GetBytesSlice()
	return r, err
}

type docIDsIn struct {
	Mode mode.Mode
	Coll string
	IDs  []uint64
}

func (r docIDsIn) encode(e *wire.Encoder) {
	e.PutUint64(uint64(r.Mode))
	e.PutString(r.Coll)
	e.PutUint64Slice(r.IDs)
}

func decodeDocIDsIn(d *wire.Decoder) (docIDsIn, error) {
	var r docIDsIn
	m, err := d.GetUint64()
	if err != nil {
		return r, err
	}
	r.Mode = mode.Mode(m)
	if r.Coll, err = d.GetString(); err != nil {
		return r, err
	}
	r.IDs, err = d.GetUint64Slice()
	return r, err
}

func encodeDocsOut(docs [][]byte) []byte {
	e := wire.NewEncoder(64)
	e.PutBytesSlice(docs)
	return e.Bytes()
}

func encodeIDsOut(ids []uint64) []byte {
	e := wire.NewEncoder(8 * (len(ids) + 1))
	e.PutUint64Slice(ids)
	return e.Bytes()
}

// fetchIn is the wire record for fetch: a key-value analogue of get that
// streams its results through the back-channel instead of the top-level
// response, batched batchSize keys at a time.
type fetchIn struct {
	Mode      mode.Mode
	Keys      [][]byte
	OpRef     uint64
	BatchSize uint64
}

func (r fetchIn) encode(e *wire.Encoder) {
	e.PutUint64(uint64(r.Mode))
	e.PutBytesSlice(r.Keys)
	e.PutUint64(r.OpRef)
	e.PutUint64(r.BatchSize)
}

func decodeFetchIn(d *wire.Decoder) (fetchIn, error) {
	var r fetchIn
	m, err := d.GetUint64()
	if err != nil {
		return r, err
	}
	r.Mode = mode.Mode(m)
	if r.Keys, err = d.GetBytesSlice(); err != nil {
		return r, err
	}
	if r.OpRef, err = d.GetUint64(); err != nil {
		return r, err
	}
	r.BatchSize, err = d.GetUint64()
	return r, err
}

// iterIn is iter's wire record: listIn's filter/range fields plus the
// back-channel batching parameters shared with fetchIn.
type iterIn struct {
	Mode      mode.Mode
	Max       uint64
	FromKey   []byte
	Filter    []byte
	NoValues  bool
	OpRef     uint64
	BatchSize uint64
}

func (r iterIn) encode(e *wire.Encoder) {
	e.PutUint64(uint64(r.Mode))
	e.PutUint64(r.Max)
	e.PutBytes(r.FromKey)
	e.PutBytes(r.Filter)
	e.PutBool(r.NoValues)
	e.PutUint64(r.OpRef)
	e.PutUint64(r.BatchSize)
}

func decodeIterIn(d *wire.Decoder) (iterIn, error) {
	var r iterIn
	m, err := d.GetUint64()
	if err != nil {
		return r, err
	}
	r.Mode = mode.Mode(m)
	if r.Max, err = d.GetUint64(); err != nil {
		return r, err
	}
	if r.FromKey, err = d.GetBytes(); err != nil {
		return r, err
	}
	if r.Filter, err = d.GetBytes(); err != nil {
		return r, err
	}
	if r.NoValues, err = d.GetBool(); err != nil {
		return r, err
	}
	if r.OpRef, err = d.GetUint64(); err != nil {
		return r, err
	}
	r.BatchSize, err = d.GetUint64()
	return r, err
}

type docFetchIn struct {
	Mode      mode.Mode
	Coll      string
	IDs       []uint64
	OpRef     uint64
	BatchSize uint64
}

func (r docFetchIn) encode(e *wire.Encoder) {
	e.PutUint64(uint64(r.Mode))
	e.PutString(r.Coll)
	e.PutUint64Slice(r.IDs)
	e.PutUint64(r.OpRef)
	e.PutUint64(r.BatchSize)
}

func decodeDocFetchIn(d *wire.Decoder) (docFetchIn, error) {
	var r docFetchIn
	m, err := d.GetUint64()
	if err != nil {
		return r, err
	}
	r.Mode = mode.Mode(m)
	if r.Coll, err = d.GetString(); err != nil {
		return r, err
	}
	if r.IDs, err = d.GetUint64Slice(); err != nil {
		return r, err
	}
	if r.OpRef, err = d.GetUint64(); err != nil {
		return r, err
	}
	r.BatchSize, err = d.GetUint64()
	return r, err
}

type docIterIn struct {
	Mode      mode.Mode
	Coll      string
	Max       uint64
	FromID    uint64
	Filter    []byte
	OpRef     uint64
	BatchSize uint64
}

func (r docIterIn) encode(e *wire.Encoder) {
	e.PutUint64(uint64(r.Mode))
	e.PutString(r.Coll)
	e.PutUint64(r.Max)
	e.PutUint64(r.FromID)
	e.PutBytes(r.Filter)
	e.PutUint64(r.OpRef)
	e.PutUint64(r.BatchSize)
}

func decodeDocIterIn(d *wire.Decoder) (docIterIn, error) {
	var r docIterIn
	m, err := d.GetUint64()
	if err != nil {
		return r, err
	}
	r.Mode = mode.Mode(m)
	if r.Coll, err = d.GetString(); err != nil {
		return r, err
	}
	if r.Max, err = d.GetUint64(); err != nil {
		return r, err
	}
	if r.FromID, err = d.GetUint64(); err != nil {
		return r, err
	}
	if r.Filter, err = d.GetBytes(); err != nil {
		return r, err
	}
	if r.OpRef, err = d.GetUint64(); err != nil {
		return r, err
	}
	r.BatchSize, err = d.GetUint64()
	return r, err
}

// encodeKVBack builds the direct-variant *_back request body for a batch
// of key/value results: { op_ref, start_index, keys, values }.
func encodeKVBack(opRef, startIndex uint64, keys, values [][]byte) []byte {
	e := wire.NewEncoder(64)
	e.PutUint64(opRef)
	e.PutUint64(startIndex)
	e.PutBytesSlice(keys)
	e.PutBytesSlice(values)
	return e.Bytes()
}

// encodeDocBack builds the direct-variant *_back request body for a batch
// of id/document results: { op_ref, start_index, ids, docs }.
func encodeDocBack(opRef, startIndex uint64, ids []uint64, docs [][]byte) []byte {
	e := wire.NewEncoder(64)
	e.PutUint64(opRef)
	e.PutUint64(startIndex)
	e.PutUint64Slice(ids)
	e.PutBytesSlice(docs)
	return e.Bytes()
}

// decodeKVBack is the client side's counterpart to encodeKVBack.
func decodeKVBack(body []byte) (opRef, startIndex uint64, keys, values [][]byte, err error) {
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

// decodeDocBack is the client side's counterpart to encodeDocBack.
func decodeDocBack(body []byte) (opRef, startIndex uint64, ids []uint64, docs [][]byte, err error) {
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

// docListIn additionally carries the starting document id.
type docListIn struct {
	Mode   mode.Mode
	Coll   string
	Max    uint64
	FromID uint64
	Filter []byte
}

func (r docListIn) encode(e *wire.Encoder) {
	e.PutUint64(uint64(r.Mode))
	e.PutString(r.Coll)
	e.PutUint64(r.Max)
	e.PutUint64(r.FromID)
	e.PutBytes(r.Filter)
}

func decodeDocListIn(d *wire.Decoder) (docListIn, error) {
	var r docListIn
	m, err := d.GetUint64()
	if err != nil {
		return r, err
	}
	r.Mode = mode.Mode(m)
	if r.Coll, err = d.GetString(); err != nil {
		return r, err
	}
	if r.Max, err = d.GetUint64(); err != nil {
		return r, err
	}
	if r.FromID, err = d.GetUint64(); err != nil {
		return r, err
	}
	r.Filter, err = d.GetBytes()
	return r, err
}
