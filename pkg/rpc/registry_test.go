package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yokan-project/yokan/pkg/status"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	h := func(conn *Conn, body []byte) ([]byte, status.Status) { return body, status.OK }
	r.Register(3, "put", h)

	got, ok := r.lookup(3, "put")
	require.True(t, ok)
	require.NotNil(t, got)

	_, ok = r.lookup(3, "get")
	require.False(t, ok)
}

func TestRegistryPanicsAfterSeal(t *testing.T) {
	r := NewRegistry()
	r.Seal()
	require.Panics(t, func() {
		r.Register(1, "put", func(conn *Conn, body []byte) ([]byte, status.Status) { return nil, status.OK })
	})
}
