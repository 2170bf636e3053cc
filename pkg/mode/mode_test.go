package mode

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yokan-project/yokan/pkg/status"
)

func TestValidateRejectsIncompatiblePairs(t *testing.T) {
	cases := []Mode{
		Mode(0).Set(APPEND).Set(NEW_ONLY),
		Mode(0).Set(NEW_ONLY).Set(EXIST_ONLY),
		Mode(0).Set(SUFFIX).Set(LUA_FILTER),
		Mode(0).Set(LIB_FILTER).Set(SUFFIX),
		Mode(0).Set(LUA_FILTER).Set(LIB_FILTER),
	}
	for _, m := range cases {
		got := Validate(m)
		require.Equal(t, status.ErrInvalidMode, got.Code)
	}
}

func TestValidateAcceptsCompatibleCombination(t *testing.T) {
	m := Mode(0).Set(APPEND).Set(WAIT).Set(PACKED)
	require.True(t, Validate(m).IsOK())
}

func TestHasAndSet(t *testing.T) {
	m := Mode(0).Set(PACKED).Set(KEYS_ONLY)
	require.True(t, m.Has(PACKED))
	require.True(t, m.Has(KEYS_ONLY))
	require.False(t, m.Has(APPEND))
}
