package backend

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yokan-project/yokan/pkg/filter"
	"github.com/yokan-project/yokan/pkg/mode"
	"github.com/yokan-project/yokan/pkg/status"
)

func openBackends(t *testing.T) map[string]Database {
	mh := newMemHash()
	bt := newBTreeKV()
	boltCfg, err := json.Marshal(map[string]string{"path": filepath.Join(t.TempDir(), "yokan.db")})
	require.NoError(t, err)
	bk, s := newBoltKV(boltCfg)
	require.True(t, s.IsOK())
	return map[string]Database{"memhash": mh, "btreekv": bt, "boltkv": bk}
}

func TestPutGetAcrossBackends(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer db.Close()
			s := db.Put(mode.Mode(0), [][]byte{[]byte("a"), []byte("b")}, [][]byte{[]byte("1"), []byte("2")})
			require.True(t, s.IsOK())

			sizes := []uint64{16, 16}
			values := [][]byte{make([]byte, 16), make([]byte, 16)}
			s = db.Get(mode.Mode(0), [][]byte{[]byte("a"), []byte("missing")}, sizes, values)
			require.True(t, s.IsOK())
			require.EqualValues(t, 1, sizes[0])
			require.Equal(t, "1", string(values[0][:sizes[0]]))
			require.Equal(t, KeyNotFound, sizes[1])
		})
	}
}

func TestPutNewOnlyAndExistOnly(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer db.Close()
			newOnly := mode.Mode(0).Set(mode.NEW_ONLY)
			require.True(t, db.Put(newOnly, [][]byte{[]byte("k")}, [][]byte{[]byte("v1")}).IsOK())
			require.True(t, db.Put(newOnly, [][]byte{[]byte("k")}, [][]byte{[]byte("v2")}).IsOK())

			sizes := []uint64{16}
			values := [][]byte{make([]byte, 16)}
			require.True(t, db.Get(mode.Mode(0), [][]byte{[]byte("k")}, sizes, values).IsOK())
			require.Equal(t, "v1", string(values[0][:sizes[0]]))
		})
	}
}

func TestEraseAndExists(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer db.Close()
			require.True(t, db.Put(mode.Mode(0), [][]byte{[]byte("x")}, [][]byte{[]byte("1")}).IsOK())
			bits, s := db.Exists(mode.Mode(0), [][]byte{[]byte("x"), []byte("y")})
			require.True(t, s.IsOK())
			require.Equal(t, byte(1), bits[0]&1)
			require.Equal(t, byte(0), bits[0]&2)

			require.True(t, db.Erase(mode.Mode(0), [][]byte{[]byte("x")}).IsOK())
			bits, _ = db.Exists(mode.Mode(0), [][]byte{[]byte("x")})
			require.Equal(t, byte(0), bits[0]&1)
		})
	}
}

func TestListKeysOrderedAfterFromKey(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer db.Close()
			keys := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
			values := [][]byte{[]byte("1"), []byte("2"), []byte("3")}
			require.True(t, db.Put(mode.Mode(0), keys, values).IsOK())

			f, err := filter.New(mode.Mode(0), nil)
			require.NoError(t, err)
			got, s := db.ListKeys(mode.Mode(0), 10, []byte("a"), f)
			require.True(t, s.IsOK())
			require.Len(t, got, 2)
			require.Equal(t, "b", string(got[0]))
			require.Equal(t, "c", string(got[1]))
		})
	}
}

func TestListKeysInclusiveModeIncludesFromKey(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer db.Close()
			keys := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
			values := [][]byte{[]byte("1"), []byte("2"), []byte("3")}
			require.True(t, db.Put(mode.Mode(0), keys, values).IsOK())

			f, err := filter.New(mode.Mode(0), nil)
			require.NoError(t, err)
			got, s := db.ListKeys(mode.Mode(0).Set(mode.INCLUSIVE), 10, []byte("a"), f)
			require.True(t, s.IsOK())
			require.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, got)
		})
	}
}

func TestDocListFromIDIsInclusive(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer db.Close()
			require.True(t, db.CollCreate("notes").IsOK())
			ids, s := db.DocStore(mode.Mode(0), "notes", [][]byte{[]byte("one"), []byte("two"), []byte("three")})
			require.True(t, s.IsOK())
			require.Equal(t, []uint64{0, 1, 2}, ids)

			f, err := filter.NewDoc(mode.Mode(0), nil)
			require.NoError(t, err)
			outIDs, _, s := db.DocList(mode.Mode(0), "notes", 10, 1, f)
			require.True(t, s.IsOK())
			require.Equal(t, []uint64{1, 2}, outIDs)
		})
	}
}

func TestIterRespectsCallbackErrorShortCircuit(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer db.Close()
			keys := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
			values := [][]byte{[]byte("1"), []byte("2"), []byte("3")}
			require.True(t, db.Put(mode.Mode(0), keys, values).IsOK())

			f, err := filter.New(mode.Mode(0), nil)
			require.NoError(t, err)
			seen := 0
			s := db.Iter(mode.Mode(0), 0, nil, f, false, func(key, value []byte) status.Status {
				seen++
				if seen == 2 {
					return status.New(status.ErrOther, "stop")
				}
				return status.OK
			})
			require.False(t, s.IsOK())
			require.Equal(t, 2, seen)
		})
	}
}

func TestDocStoreAssignsMonotonicIDs(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer db.Close()
			require.True(t, db.CollCreate("notes").IsOK())
			ids, s := db.DocStore(mode.Mode(0), "notes", [][]byte{[]byte("one"), []byte("two")})
			require.True(t, s.IsOK())
			require.Equal(t, []uint64{0, 1}, ids)

			lastID, s := db.CollLastID("notes")
			require.True(t, s.IsOK())
			require.EqualValues(t, 1, lastID)
		})
	}
}

func TestDocUpdateRejectsOutOfRangeWithoutUpdateNew(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer db.Close()
			require.True(t, db.CollCreate("notes").IsOK())
			s := db.DocUpdate(mode.Mode(0), "notes", []uint64{5}, [][]byte{[]byte("x")})
			require.False(t, s.IsOK())

			s = db.DocUpdate(mode.Mode(0).Set(mode.UPDATE_NEW), "notes", []uint64{5}, [][]byte{[]byte("x")})
			require.True(t, s.IsOK())
		})
	}
}
