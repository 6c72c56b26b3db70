package vault

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/and161185/fitsync/internal/errs"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "tokens")
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, s.Put(ctx, "tokens", []byte("v1")))
	require.NoError(t, s.Put(ctx, "tokens", []byte("v2")))
	got, err := s.Get(ctx, "tokens")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), got)

	require.NoError(t, s.Delete(ctx, "tokens"))
	require.NoError(t, s.Delete(ctx, "tokens"))
	_, err = s.Get(ctx, "tokens")
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.ErrorIs(t, s.Put(ctx, "../escape", []byte("x")), ErrInvalidKey)
	require.ErrorIs(t, s.Put(ctx, "", []byte("x")), ErrInvalidKey)
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestFile(t *testing.T) {
	f, err := OpenFile(context.Background(), filepath.Join(t.TempDir(), "vault"), []byte("secret"))
	require.NoError(t, err)
	exercise(t, f)
}

func TestFile_SealedAtRestAndReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	f, err := OpenFile(ctx, dir, []byte("secret"))
	require.NoError(t, err)
	require.NoError(t, f.Put(ctx, "user", []byte(`{"email":"a@b.c"}`)))

	raw, err := os.ReadFile(filepath.Join(dir, "user"+fileExt))
	require.NoError(t, err)
	require.False(t, bytes.Contains(raw, []byte("a@b.c")))

	again, err := OpenFile(ctx, dir, []byte("secret"))
	require.NoError(t, err)
	got, err := again.Get(ctx, "user")
	require.NoError(t, err)
	require.Equal(t, `{"email":"a@b.c"}`, string(got))

	wrong, err := OpenFile(ctx, dir, []byte("other"))
	require.NoError(t, err)
	_, err = wrong.Get(ctx, "user")
	require.ErrorIs(t, err, errs.ErrDecode)
}

func TestFile_SwappedFilesDoNotOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := OpenFile(ctx, dir, []byte("secret"))
	require.NoError(t, err)
	require.NoError(t, f.Put(ctx, "a", []byte("A")))
	require.NoError(t, os.Rename(filepath.Join(dir, "a"+fileExt), filepath.Join(dir, "b"+fileExt)))
	_, err = f.Get(ctx, "b")
	require.ErrorIs(t, err, errs.ErrDecode)
}

func TestOpenFile_EmptySecret(t *testing.T) {
	_, err := OpenFile(context.Background(), t.TempDir(), nil)
	require.Error(t, err)
}
