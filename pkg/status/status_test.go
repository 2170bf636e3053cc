package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOKIsZeroValue(t *testing.T) {
	var s Status
	require.True(t, s.IsOK())
	require.NoError(t, s.Err())
}

func TestFromErrorRoundTrip(t *testing.T) {
	orig := New(ErrKeyNotFound, "key %q", "missing")
	wrapped := errors.New("outer: " + "boom")
	_ = wrapped

	got := FromError(orig.Err())
	require.Equal(t, ErrKeyNotFound, got.Code)
	require.Contains(t, got.Message, "missing")
}

func TestFromErrorUnknown(t *testing.T) {
	got := FromError(errors.New("disk exploded"))
	require.Equal(t, ErrOther, got.Code)
	require.Equal(t, "disk exploded", got.Message)
}

func TestCodeString(t *testing.T) {
	require.Equal(t, "ErrInvalidMode", ErrInvalidMode.String())
	require.Equal(t, "Ok", Ok.String())
}
