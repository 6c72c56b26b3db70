// Package vault is the secure key-value boundary the session core persists through.
// One contract, with the concrete backend chosen at construction time.
package vault

import (
	"context"
	"errors"
	"strings"
)

// Storage persists small opaque values by key. Get returns errs.ErrNotFound for missing keys.
type Storage interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// ErrInvalidKey rejects keys that cannot be used as a file name.
var ErrInvalidKey = errors.New("vault: invalid key")

func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`+"\x00")
}
