package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/and161185/fitsync/internal/cache"
	"github.com/and161185/fitsync/internal/coordinator"
)

// Resource paths.
const (
	PathPlans      = "/training-plans"
	PathExecutions = "/training-executions"
)

// Authorizer runs a call with an access token, refreshing and retrying as needed.
type Authorizer interface {
	Do(ctx context.Context, call coordinator.Call) error
}

// Collection is a REST resource of T; it implements syncrepo.Remote.
type Collection[T any] struct {
	c    *Client
	auth Authorizer
	path string
}

// NewCollection binds a resource path to the client.
func NewCollection[T any](c *Client, auth Authorizer, path string) *Collection[T] {
	return &Collection[T]{c: c, auth: auth, path: path}
}

func (col *Collection[T]) List(ctx context.Context, f cache.Filter) ([]T, error) {
	q := url.Values{}
	if f.OwnerID != "" {
		q.Set("studentId", f.OwnerID)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if !f.From.IsZero() {
		q.Set("from", f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		q.Set("to", f.To.UTC().Format(time.RFC3339))
	}
	var out []T
	err := col.auth.Do(ctx, func(ctx context.Context, token string) error {
		out = nil
		return col.c.do(ctx, http.MethodGet, col.path, q, token, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func (col *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var out T
	err := col.auth.Do(ctx, func(ctx context.Context, token string) error {
		return col.c.do(ctx, http.MethodGet, col.item(id), nil, token, nil, &out)
	})
	return out, err
}

// Update PUTs v under id; the server creates the entity when id is new.
func (col *Collection[T]) Update(ctx context.Context, id string, v T) (T, error) {
	var out T
	err := col.auth.Do(ctx, func(ctx context.Context, token string) error {
		return col.c.do(ctx, http.MethodPut, col.item(id), nil, token, v, &out)
	})
	return out, err
}

func (col *Collection[T]) item(id string) string { return col.path + "/" + url.PathEscape(id) }
