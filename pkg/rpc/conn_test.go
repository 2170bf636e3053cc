package rpc

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yokan-project/yokan/pkg/status"
)

func pipeConns(t *testing.T, registry *Registry, backFn BackRequestHandler) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	serverConn := NewConn(a, registry, nil)
	clientConn := NewConn(b, nil, backFn)
	t.Cleanup(func() {
		serverConn.Close()
		clientConn.Close()
	})
	return serverConn, clientConn
}

func TestRequestResponseRoundTrip(t *testing.T) {
	reg := NewRegistry()
	reg.Register(1, "echo", func(conn *Conn, body []byte) ([]byte, status.Status) {
		return append([]byte("echo:"), body...), status.OK
	})

	_, client := pipeConns(t, reg, nil)

	out, s := client.Request(1, "echo", []byte("hi"))
	require.True(t, s.IsOK())
	require.Equal(t, "echo:hi", string(out))
}

func TestRequestUnknownRPCReturnsStatus(t *testing.T) {
	reg := NewRegistry()
	_, client := pipeConns(t, reg, nil)

	_, s := client.Request(1, "missing", nil)
	require.False(t, s.IsOK())
	require.Equal(t, status.ErrInvalidProvider, s.Code)
}

func TestHandlerErrorPropagates(t *testing.T) {
	reg := NewRegistry()
	reg.Register(1, "fail", func(conn *Conn, body []byte) ([]byte, status.Status) {
		return nil, status.New(status.ErrKeyNotFound, "no such key")
	})
	_, client := pipeConns(t, reg, nil)

	_, s := client.Request(1, "fail", nil)
	require.False(t, s.IsOK())
	require.Equal(t, status.ErrKeyNotFound, s.Code)
}

func TestBackRequestRoundTrip(t *testing.T) {
	reg := NewRegistry()
	var serverConnRef *Conn
	reg.Register(1, "stream", func(conn *Conn, body []byte) ([]byte, status.Status) {
		serverConnRef = conn
		out, s := conn.BackRequest([]byte("batch0"))
		if !s.IsOK() {
			return nil, s
		}
		return out, status.OK
	})

	backFn := func(conn *Conn, body []byte) ([]byte, status.Status) {
		return append([]byte("ack:"), body...), status.OK
	}
	_, client := pipeConns(t, reg, backFn)

	out, s := client.Request(1, "stream", nil)
	require.True(t, s.IsOK())
	require.Equal(t, "ack:batch0", string(out))
	require.NotNil(t, serverConnRef)
}

func TestBulkTokenPullRoundTrip(t *testing.T) {
	reg := NewRegistry()
	server, client := pipeConns(t, reg, nil)

	payload := make([]byte, bulkChunkSize*2+17)
	for i := range payload {
		payload[i] = byte(i)
	}
	token := server.BulkToken(payload)

	got, s := client.PullBulk(token, len(payload))
	require.True(t, s.IsOK())
	require.Equal(t, payload, got)
}

func TestBulkPullRespectsMaxBytes(t *testing.T) {
	reg := NewRegistry()
	server, client := pipeConns(t, reg, nil)

	payload := []byte("0123456789")
	token := server.BulkToken(payload)

	got, s := client.PullBulk(token, 4)
	require.True(t, s.IsOK())
	require.Equal(t, []byte("0123"), got)
}

func TestRequestDoesNotHangOnUnregisteredRPC(t *testing.T) {
	reg := NewRegistry()
	_, client := pipeConns(t, reg, nil)

	done := make(chan status.Status, 1)
	go func() {
		_, s := client.Request(1, "nobody-home", nil)
		done <- s
	}()

	select {
	case s := <-done:
		require.False(t, s.IsOK())
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}
}
