package provider

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/yokan-project/yokan/pkg/backend"
	"github.com/yokan-project/yokan/pkg/buffer"
	"github.com/yokan-project/yokan/pkg/config"
	"github.com/yokan-project/yokan/pkg/log"
	"github.com/yokan-project/yokan/pkg/metrics"
	"github.com/yokan-project/yokan/pkg/mode"
	"github.com/yokan-project/yokan/pkg/rpc"
	"github.com/yokan-project/yokan/pkg/status"
	"github.com/yokan-project/yokan/pkg/wire"
)

// waitPollInterval and waitPollTimeout bound the WAIT-mode polling loop
// in awaitKeys: get/length/exists re-check the backend at this interval
// until every requested key exists or the timeout elapses.
const (
	waitPollInterval = 5 * time.Millisecond
	waitPollTimeout  = 30 * time.Second
)

// Provider binds one database instance and one buffer cache to a 16-bit
// provider id and registers its RPC handlers. It owns the database for
// its full lifetime: construction happens before any data-plane RPC is
// served, and Close happens only after all in-flight requests finish.
type Provider struct {
	ID    uint16
	DB    backend.Database
	Cache buffer.Cache
	log   zerolog.Logger
}

// New constructs a Provider from its JSON configuration, instantiating
// the named backend and buffer cache policy. An externally supplied cache
// overrides the "external" buffer_cache.type.
func New(id uint16, raw []byte, externalCache buffer.Cache) (*Provider, status.Status) {
	cfg, s := config.Parse(raw)
	if !s.IsOK() {
		return nil, s
	}

	db, s := backend.New(cfg.Database.Type, cfg.Database.Config)
	if !s.IsOK() {
		return nil, s
	}

	var cache buffer.Cache
	if cfg.BufferCache.Policy == "external" {
		if externalCache == nil {
			return nil, status.New(status.ErrInvalidConfig, "provider: buffer_cache.type external requires a supplied Cache")
		}
		cache = externalCache
	} else {
		var err error
		cache, err = buffer.New(cfg.BufferCache)
		if err != nil {
			return nil, status.New(status.ErrInvalidConfig, "provider: %s", err)
		}
	}

	return &Provider{ID: id, DB: db, Cache: cache, log: log.WithProvider(id)}, status.OK
}

// Close tears down the database and releases the buffer cache. Must only
// be called once every in-flight RPC against this provider has drained.
func (p *Provider) Close() status.Status {
	p.Cache.Finalize()
	return p.DB.Close()
}

// Register binds every data-plane, collection, document, streaming, and
// introspection RPC to reg under p.ID. Call once per provider at startup,
// before reg.Seal().
func (p *Provider) Register(reg *rpc.Registry) {
	reg.Register(p.ID, "count", p.handleCount)
	reg.Register(p.ID, "put", p.handlePut)
	reg.Register(p.ID, "get", p.handleGet)
	reg.Register(p.ID, "length", p.handleLength)
	reg.Register(p.ID, "exists", p.handleExists)
	reg.Register(p.ID, "erase", p.handleErase)
	reg.Register(p.ID, "list_keys", p.handleListKeys)
	reg.Register(p.ID, "list_keyvals", p.handleListKeyValues)
	reg.Register(p.ID, "fetch", p.handleFetch)
	reg.Register(p.ID, "iter", p.handleIter)

	reg.Register(p.ID, "coll_create", p.handleCollCreate)
	reg.Register(p.ID, "coll_drop", p.handleCollDrop)
	reg.Register(p.ID, "coll_exists", p.handleCollExists)
	reg.Register(p.ID, "coll_size", p.handleCollSize)
	reg.Register(p.ID, "coll_last_id", p.handleCollLastID)

	reg.Register(p.ID, "doc_store", p.handleDocStore)
	reg.Register(p.ID, "doc_update", p.handleDocUpdate)
	reg.Register(p.ID, "doc_load", p.handleDocLoad)
	reg.Register(p.ID, "doc_length", p.handleDocLength)
	reg.Register(p.ID, "doc_list", p.handleDocList)
	reg.Register(p.ID, "doc_erase", p.handleDocErase)
	reg.Register(p.ID, "doc_fetch", p.handleDocFetch)
	reg.Register(p.ID, "doc_iter", p.handleDocIter)

	reg.Register(p.ID, "get_remi_provider_id", p.handleGetRemiProviderID)
}

// checkMode runs the static mutual-exclusion check and the backend's own
// capability check, the uniform preamble every data-plane RPC runs before
// touching the database.
func (p *Provider) checkMode(m mode.Mode) status.Status {
	if s := mode.Validate(m); !s.IsOK() {
		return s
	}
	if !p.DB.SupportsMode(m) {
		return status.New(status.ErrInvalidMode, "mode %v not supported by backend", m)
	}
	return status.OK
}

// awaitKeys blocks, polling p.DB.Exists, until every key in keys is
// present or waitPollTimeout elapses. A no-op unless m carries mode.WAIT.
// Used by get/length/exists to implement WAIT's "block until the key
// appears" semantics without requiring backend-level condition variables.
func (p *Provider) awaitKeys(m mode.Mode, keys [][]byte) {
	if !m.Has(mode.WAIT) || len(keys) == 0 {
		return
	}
	deadline := time.Now().Add(waitPollTimeout)
	for {
		bits, s := p.DB.Exists(m, keys)
		if !s.IsOK() {
			return
		}
		allPresent := true
		for i := range keys {
			if bits[i/8]&(1<<uint(i%8)) == 0 {
				allPresent = false
				break
			}
		}
		if allPresent || time.Now().After(deadline) {
			return
		}
		time.Sleep(waitPollInterval)
	}
}

// decode runs fn against a fresh Decoder over body and maps a decode
// error to ErrInvalidArgs, the uniform treatment of a malformed record.
func decode[T any](body []byte, fn func(*wire.Decoder) (T, error)) (T, status.Status) {
	v, err := fn(wire.NewDecoder(body))
	if err != nil {
		return v, status.New(status.ErrInvalidArgs, "provider: malformed request: %s", err)
	}
	return v, status.OK
}

// instrument records the op/status counter and returns s unchanged, so
// handlers can wrap their final return in one call.
func instrument(op string, s status.Status) status.Status {
	outcome := "ok"
	if !s.IsOK() {
		outcome = "error"
	}
	metrics.OpsTotal.WithLabelValues(op, outcome).Inc()
	return s
}
