package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/and161185/fitsync/internal/crypto/clientcrypto"
	"github.com/and161185/fitsync/internal/errs"
)

const (
	saltFile = "vault.salt"
	fileExt  = ".sealed"
)

// File seals every value with XChaCha20-Poly1305 and stores it as <dir>/<key>.sealed.
// The key name is the AAD, so sealed files cannot be swapped between keys.
type File struct {
	dir string
	key []byte
	mu  sync.Mutex
}

// OpenFile prepares dir (0700) and derives the storage key from secret and the
// per-directory salt, creating the salt on first use.
func OpenFile(ctx context.Context, dir string, secret []byte) (*File, error) {
	if len(secret) == 0 {
		return nil, errors.New("vault: empty device secret")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("vault: mkdir: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	salt, err := loadOrCreateSalt(filepath.Join(dir, saltFile))
	if err != nil {
		return nil, err
	}
	return &File{dir: dir, key: clientcrypto.DeriveStorageKey(secret, salt)}, nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil && len(salt) == clientcrypto.SaltLen {
		return salt, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("vault: read salt: %w", err)
	}
	salt, err = clientcrypto.Rand(clientcrypto.SaltLen)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(path, salt); err != nil {
		return nil, fmt.Errorf("vault: write salt: %w", err)
	}
	return salt, nil
}

func (f *File) path(key string) string { return filepath.Join(f.dir, key+fileExt) }

// Put seals value and replaces the file atomically.
func (f *File) Put(ctx context.Context, key string, value []byte) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sealed, err := clientcrypto.Seal(f.key, []byte(key), value)
	if err != nil {
		return fmt.Errorf("vault: seal %s: %w", key, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeAtomic(f.path(key), sealed)
}

// Get opens the sealed value. A file that no longer opens is reported as errs.ErrDecode.
func (f *File) Get(ctx context.Context, key string) ([]byte, error) {
	if !validKey(key) {
		return nil, ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sealed, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	pt, err := clientcrypto.Open(f.key, []byte(key), sealed)
	if err != nil {
		return nil, fmt.Errorf("vault: open %s: %w", key, errs.ErrDecode)
	}
	return pt, nil
}

// Delete removes the key; deleting a missing key is not an error.
func (f *File) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
