// Package tokenstore persists the token pair and the cached user through a vault.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/fitsync/internal/errs"
	"github.com/and161185/fitsync/internal/model"
	"github.com/and161185/fitsync/internal/vault"
)

// Vault keys.
const (
	KeyTokens = "tokens"
	KeyUser   = "user"
)

// Store is the token persistence boundary consumed by the session core.
type Store interface {
	// SaveTokens durably replaces the token pair.
	SaveTokens(ctx context.Context, t model.AuthTokens) error
	// Tokens returns the stored pair or nil when there is none.
	Tokens(ctx context.Context) (*model.AuthTokens, error)
	// AccessToken returns the access token, or "" once now >= expiresAt.
	AccessToken(ctx context.Context) (string, error)
	// RefreshToken returns the refresh token or "".
	RefreshToken(ctx context.Context) (string, error)
	// Clear removes the token pair and the cached user.
	Clear(ctx context.Context) error
	// SaveUser caches the authenticated user.
	SaveUser(ctx context.Context, u model.User) error
	// CachedUser returns the cached user or nil.
	CachedUser(ctx context.Context) (*model.User, error)
}

// VaultStore implements Store as JSON records in a vault.Storage.
type VaultStore struct {
	v     vault.Storage
	clock func() time.Time
}

// New constructs a store; clock may be nil.
func New(v vault.Storage, clock func() time.Time) *VaultStore {
	if clock == nil {
		clock = time.Now
	}
	return &VaultStore{v: v, clock: clock}
}

func (s *VaultStore) SaveTokens(ctx context.Context, t model.AuthTokens) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := s.v.Put(ctx, KeyTokens, b); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}

func (s *VaultStore) Tokens(ctx context.Context) (*model.AuthTokens, error) {
	var t model.AuthTokens
	ok, err := s.load(ctx, KeyTokens, &t)
	if !ok {
		return nil, err
	}
	return &t, nil
}

func (s *VaultStore) AccessToken(ctx context.Context) (string, error) {
	t, err := s.Tokens(ctx)
	if err != nil || t == nil {
		return "", err
	}
	if !t.UsableAt(s.clock()) {
		return "", nil
	}
	return t.Token, nil
}

func (s *VaultStore) RefreshToken(ctx context.Context) (string, error) {
	t, err := s.Tokens(ctx)
	if err != nil || t == nil {
		return "", err
	}
	return t.RefreshToken, nil
}

func (s *VaultStore) Clear(ctx context.Context) error {
	return errors.Join(s.v.Delete(ctx, KeyTokens), s.v.Delete(ctx, KeyUser))
}

func (s *VaultStore) SaveUser(ctx context.Context, u model.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := s.v.Put(ctx, KeyUser, b); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *VaultStore) CachedUser(ctx context.Context) (*model.User, error) {
	var u model.User
	ok, err := s.load(ctx, KeyUser, &u)
	if !ok {
		return nil, err
	}
	return &u, nil
}

// load reads key into dst. Missing and unreadable records both report ok=false;
// only storage failures other than those are returned as errors.
func (s *VaultStore) load(ctx context.Context, key string, dst any) (bool, error) {
	b, err := s.v.Get(ctx, key)
	switch {
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrDecode):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, nil
	}
	return true, nil
}
