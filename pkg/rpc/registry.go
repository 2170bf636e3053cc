// Package rpc implements the framed request/response transport that
// binds (provider id, RPC name) pairs to handlers and demultiplexes
// frames read off a single net.Conn, including the server-initiated
// back-request/back-response pairs used by streaming operations and a
// side-channel bulk transfer protocol keyed by a UUID token.
package rpc

import (
	"fmt"
	"sync"

	"github.com/yokan-project/yokan/pkg/status"
)

// Handler processes one decoded request body and returns the encoded
// response body.
type Handler func(conn *Conn, body []byte) ([]byte, status.Status)

// Registry binds (providerID, name) to a Handler. Registration happens
// once per provider at startup; after Seal no further registration is
// permitted. Lookups take the same mutex as registration.
type Registry struct {
	mu       sync.Mutex
	handlers map[regKey]Handler
	sealed   bool
}

type regKey struct {
	providerID uint16
	name       string
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[regKey]Handler)}
}

// Register binds name for providerID. Panics if called after Seal, since
// that would violate the "registration is immutable after startup"
// invariant in a way a caller should find at development time, not as a
// runtime error path.
func (r *Registry) Register(providerID uint16, name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic(fmt.Sprintf("rpc: Register(%d, %q) called after Seal", providerID, name))
	}
	r.handlers[regKey{providerID, name}] = h
}

// Seal marks the registry read-only. Callers invoke it once, after every
// provider's handlers are registered and before connections are served.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

func (r *Registry) lookup(providerID uint16, name string) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[regKey{providerID, name}]
	return h, ok
}
