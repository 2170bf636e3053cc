package wire

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestScalarRoundTrip(t *testing.T) {
	e := NewEncoder(64)
	e.PutUint8(7)
	e.PutUint16(1000)
	e.PutUint32(1 << 20)
	e.PutUint64(1 << 40)
	e.PutBool(true)
	e.PutBool(false)

	d := NewDecoder(e.Bytes())
	u8, err := d.GetUint8()
	require.NoError(t, err)
	require.EqualValues(t, 7, u8)

	u16, err := d.GetUint16()
	require.NoError(t, err)
	require.EqualValues(t, 1000, u16)

	u32, err := d.GetUint32()
	require.NoError(t, err)
	require.EqualValues(t, 1<<20, u32)

	u64, err := d.GetUint64()
	require.NoError(t, err)
	require.EqualValues(t, 1<<40, u64)

	b1, err := d.GetBool()
	require.NoError(t, err)
	require.True(t, b1)

	b2, err := d.GetBool()
	require.NoError(t, err)
	require.False(t, b2)
}

func TestStringsAndBytesRoundTrip(t *testing.T) {
	e := NewEncoder(64)
	e.PutString("hello")
	e.PutBytes([]byte{0xde, 0xad, 0xbe, 0xef})
	e.PutBytesSlice([][]byte{[]byte("a"), []byte("bb"), {}})

	d := NewDecoder(e.Bytes())
	s, err := d.GetString()
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	b, err := d.GetBytes()
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, b)

	bs, err := d.GetBytesSlice()
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("a"), []byte("bb"), {}}, bs)
	require.Equal(t, 0, d.Remaining())
}

func TestUUIDRoundTrip(t *testing.T) {
	id := uuid.New()
	e := NewEncoder(16)
	e.PutUUID(id)

	d := NewDecoder(e.Bytes())
	got, err := d.GetUUID()
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestDecoderShortBufferErrors(t *testing.T) {
	d := NewDecoder([]byte{1, 2})
	_, err := d.GetUint64()
	require.Error(t, err)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Frame{Kind: KindRequest, RequestID: 42, Body: []byte("payload")}
	require.NoError(t, WriteFrame(&buf, want))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestFrameEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	want := Frame{Kind: KindBackResponse, RequestID: 7}
	require.NoError(t, WriteFrame(&buf, want))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, KindBackResponse, got.Kind)
	require.EqualValues(t, 7, got.RequestID)
	require.Len(t, got.Body, 0)
}
