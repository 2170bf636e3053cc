/*
Package wire implements yokan's binary encoding: little-endian fixed-width
integers, length-prefixed strings and opaque payloads (u64 length + bytes,
no terminator), and raw 16-byte UUIDs. Every RPC's in/out record is a plain
Go struct that knows how to write itself into an Encoder and read itself
back out of a Decoder — no reflection, so the hot data-plane path pays only
for the fields it actually has.

This mirrors the append/parse style of a hand-rolled wire codec (the same
shape as a drpcwire frame: flat byte-slice builders and parsers,
round-tripped losslessly) rather than a reflection-based encoding, since
the framing is fixed and known at compile time.
*/
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Encoder appends wire-format values to an in-memory buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with a pre-sized backing buffer.
func NewEncoder(sizeHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, sizeHint)}
}

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) PutUint8(v uint8) { e.buf = append(e.buf, v) }

func (e *Encoder) PutUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutInt32(v int32) { e.PutUint32(uint32(v)) }

func (e *Encoder) PutBool(v bool) {
	if v {
		e.PutUint8(1)
	} else {
		e.PutUint8(0)
	}
}

// PutBytes writes a u64 length prefix followed by the raw bytes — used for
// both opaque payloads and strings (strings are just UTF-8 bytes here).
func (e *Encoder) PutBytes(b []byte) {
	e.PutUint64(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *Encoder) PutString(s string) { e.PutBytes([]byte(s)) }

func (e *Encoder) PutUUID(id uuid.UUID) { e.buf = append(e.buf, id[:]...) }

// PutUint64Slice writes a u64 count followed by that many u64 values —
// used for key/value size arrays.
func (e *Encoder) PutUint64Slice(vs []uint64) {
	e.PutUint64(uint64(len(vs)))
	for _, v := range vs {
		e.PutUint64(v)
	}
}

func (e *Encoder) PutBytesSlice(bs [][]byte) {
	e.PutUint64(uint64(len(bs)))
	for _, b := range bs {
		e.PutBytes(b)
	}
}

// Decoder reads wire-format values off a byte slice, advancing a cursor.
// All read methods return an error instead of panicking on truncated
// input, since input always arrives over the network.
type Decoder struct {
	buf []byte
	pos int
}

func NewDecoder(buf []byte) *Decoder { return &Decoder{buf: buf} }

func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

func (d *Decoder) need(n int) error {
	if d.Remaining() < n {
		return fmt.Errorf("wire: short buffer: need %d, have %d", n, d.Remaining())
	}
	return nil
}

func (d *Decoder) GetUint8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *Decoder) GetUint16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *Decoder) GetUint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *Decoder) GetUint64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *Decoder) GetInt32() (int32, error) {
	v, err := d.GetUint32()
	return int32(v), err
}

func (d *Decoder) GetBool() (bool, error) {
	v, err := d.GetUint8()
	return v != 0, err
}

func (d *Decoder) GetBytes() ([]byte, error) {
	n, err := d.GetUint64()
	if err != nil {
		return nil, err
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, d.buf[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return b, nil
}

func (d *Decoder) GetString() (string, error) {
	b, err := d.GetBytes()
	return string(b), err
}

func (d *Decoder) GetUUID() (uuid.UUID, error) {
	if err := d.need(16); err != nil {
		return uuid.UUID{}, err
	}
	var id uuid.UUID
	copy(id[:], d.buf[d.pos:d.pos+16])
	d.pos += 16
	return id, nil
}

func (d *Decoder) GetUint64Slice() ([]uint64, error) {
	n, err := d.GetUint64()
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		v, err := d.GetUint64()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (d *Decoder) GetBytesSlice() ([][]byte, error) {
	n, err := d.GetUint64()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, n)
	for i := range out {
		b, err := d.GetBytes()
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
