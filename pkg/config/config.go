// Package config parses the provider's JSON configuration blob: which
// backend to load and its backend-specific settings, and which buffer
// cache policy to run.
package config

import (
	"encoding/json"

	"github.com/yokan-project/yokan/pkg/buffer"
	"github.com/yokan-project/yokan/pkg/status"
)

// Database names the backend type tag and its opaque, backend-specific
// configuration blob.
type Database struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// Provider is the top-level JSON document passed to a provider at
// construction time.
type Provider struct {
	Database    Database      `json:"database"`
	BufferCache buffer.Config `json:"buffer_cache"`
}

// Parse decodes and validates raw as a Provider configuration.
func Parse(raw []byte) (Provider, status.Status) {
	var cfg Provider
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Provider{}, status.New(status.ErrInvalidConfig, "config: %s", err)
	}
	if cfg.Database.Type == "" {
		return Provider{}, status.New(status.ErrInvalidConfig, "config: database.type is required")
	}
	return cfg, status.OK
}
