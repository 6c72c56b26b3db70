package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/fitsync/internal/model"
	"github.com/and161185/fitsync/internal/vault"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestVaultStore_AccessTokenExpiry(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	s := New(vault.NewMemory(), clk.Now)

	tok, err := s.AccessToken(ctx)
	require.NoError(t, err)
	require.Empty(t, tok)

	exp := clk.now.UnixMilli() + 3_600_000
	require.NoError(t, s.SaveTokens(ctx, model.AuthTokens{Token: "A", RefreshToken: "B", ExpiresAt: exp}))

	tok, err = s.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "A", tok)

	clk.now = time.UnixMilli(exp - 1)
	tok, _ = s.AccessToken(ctx)
	require.Equal(t, "A", tok)

	clk.now = time.UnixMilli(exp)
	tok, err = s.AccessToken(ctx)
	require.NoError(t, err)
	require.Empty(t, tok, "token must be unusable at now == expiresAt")

	rt, err := s.RefreshToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "B", rt, "record is kept after expiry")
}

func TestVaultStore_UserAndClear(t *testing.T) {
	ctx := context.Background()
	s := New(vault.NewMemory(), nil)

	u, err := s.CachedUser(ctx)
	require.NoError(t, err)
	require.Nil(t, u)

	want := model.User{ID: uuid.Must(uuid.NewV4()), Name: "Ana", Email: "ana@gym.io", Role: model.RoleStudent}
	require.NoError(t, s.SaveUser(ctx, want))
	require.NoError(t, s.SaveTokens(ctx, model.AuthTokens{Token: "A", RefreshToken: "B", ExpiresAt: time.Now().Add(time.Hour).UnixMilli()}))

	got, err := s.CachedUser(ctx)
	require.NoError(t, err)
	require.Equal(t, want, *got)

	require.NoError(t, s.Clear(ctx))
	got, _ = s.CachedUser(ctx)
	require.Nil(t, got)
	tk, _ := s.Tokens(ctx)
	require.Nil(t, tk)
}

func TestVaultStore_CorruptRecordIsAbsent(t *testing.T) {
	ctx := context.Background()
	v := vault.NewMemory()
	require.NoError(t, v.Put(ctx, KeyTokens, []byte("{not json")))
	s := New(v, nil)
	tk, err := s.Tokens(ctx)
	require.NoError(t, err)
	require.Nil(t, tk)
}

type failingVault struct{ vault.Storage }

func (failingVault) Get(context.Context, string) ([]byte, error) { return nil, errors.New("io") }

func TestVaultStore_StorageErrorPropagates(t *testing.T) {
	s := New(failingVault{vault.NewMemory()}, nil)
	_, err := s.AccessToken(context.Background())
	require.Error(t, err)
}

func TestVaultStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := vault.OpenFile(ctx, dir, []byte("secret"))
	require.NoError(t, err)
	require.NoError(t, New(f, nil).SaveUser(ctx, model.User{Email: "x@y.z"}))

	f2, err := vault.OpenFile(ctx, dir, []byte("secret"))
	require.NoError(t, err)
	u, err := New(f2, nil).CachedUser(ctx)
	require.NoError(t, err)
	require.Equal(t, "x@y.z", u.Email)
}
