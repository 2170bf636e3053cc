package config

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yokan-project/yokan/pkg/buffer"
)

func TestParseValidConfig(t *testing.T) {
	raw := []byte(`{
		"database": {"type": "boltkv", "config": {"path": "/tmp/yokan.db"}},
		"buffer_cache": {"type": "lru", "max_bytes": 1048576}
	}`)
	cfg, s := Parse(raw)
	require.True(t, s.IsOK())
	require.Equal(t, "boltkv", cfg.Database.Type)
	require.Equal(t, buffer.PolicyLRU, cfg.BufferCache.Policy)
	require.EqualValues(t, 1048576, cfg.BufferCache.MaxBytes)
}

func TestParseMissingDatabaseType(t *testing.T) {
	_, s := Parse([]byte(`{"database": {}}`))
	require.False(t, s.IsOK())
}

func TestParseMalformedJSON(t *testing.T) {
	_, s := Parse([]byte(`not json`))
	require.False(t, s.IsOK())
}
