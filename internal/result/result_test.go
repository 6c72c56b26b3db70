package result

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResult_Variants(t *testing.T) {
	ok := Success(42)
	v, err := ok.Get()
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, KindSuccess, ok.Kind())
	require.Nil(t, ok.Err())

	boom := errors.New("boom")
	bad := Failure[int](boom)
	_, err = bad.Get()
	require.ErrorIs(t, err, boom)
	require.True(t, bad.IsError())
	require.Equal(t, 7, bad.ValueOr(7))

	var zero Result[string]
	require.True(t, zero.IsLoading())
	_, err = zero.Get()
	require.Error(t, err)
	require.Equal(t, "loading", Loading[string]().Kind().String())
}

func TestResult_FailureNilCause(t *testing.T) {
	r := Failure[int](nil)
	require.True(t, r.IsError())
	require.Error(t, r.Err())
}

func TestResult_Of(t *testing.T) {
	require.True(t, Of("x", nil).IsSuccess())
	require.True(t, Of("", errors.New("e")).IsError())
}
