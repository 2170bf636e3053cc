package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Kind distinguishes the five message shapes that travel over a yokan
// connection: ordinary request/response pairs, the server-initiated
// back-request/back-response pairs used by the streaming ops, and the
// bulk-chunk frames of the bulk side-channel.
type Kind uint8

const (
	KindRequest Kind = iota + 1
	KindResponse
	KindBackRequest
	KindBackResponse
	KindBulkChunk
)

// frameHeaderSize is [4-byte LE length][1-byte kind][8-byte LE request id].
const frameHeaderSize = 4 + 1 + 8

// Frame is one length-prefixed message on the wire.
type Frame struct {
	Kind      Kind
	RequestID uint64
	Body      []byte
}

// WriteFrame appends the header and body to w in one Write call so that
// frames never interleave on a shared connection (the caller still must
// hold whatever single-writer lock serializes concurrent senders).
func WriteFrame(w io.Writer, f Frame) error {
	buf := make([]byte, frameHeaderSize+len(f.Body))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(f.Body)))
	buf[4] = byte(f.Kind)
	binary.LittleEndian.PutUint64(buf[5:13], f.RequestID)
	copy(buf[frameHeaderSize:], f.Body)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	bodyLen := binary.LittleEndian.Uint32(hdr[0:4])
	const maxFrameBody = 1 << 30
	if bodyLen > maxFrameBody {
		return Frame{}, fmt.Errorf("wire: frame body too large: %d bytes", bodyLen)
	}
	f := Frame{
		Kind:      Kind(hdr[4]),
		RequestID: binary.LittleEndian.Uint64(hdr[5:13]),
		Body:      make([]byte, bodyLen),
	}
	if _, err := io.ReadFull(r, f.Body); err != nil {
		return Frame{}, err
	}
	return f, nil
}
