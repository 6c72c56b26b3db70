// Package syncrepo combines the local cache and a remote service behind one read/write
// contract: reads emit the cached snapshot first and then the remote one, writes land in the
// cache before the remote call and are never rolled back.
package syncrepo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/fitsync/internal/cache"
	"github.com/and161185/fitsync/internal/errs"
	"github.com/and161185/fitsync/internal/result"
)

// Codec maps an entity to its cache row and back.
type Codec[T any] interface {
	// Row returns the denormalized row for v, payload included.
	Row(v T) (cache.Row, error)
	// Decode rebuilds an entity from a row payload.
	Decode(payload []byte) (T, error)
}

// Remote is the remote service accessor for one entity type.
type Remote[T any] interface {
	List(ctx context.Context, f cache.Filter) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	// Update creates or replaces the entity and returns the server's canonical copy.
	Update(ctx context.Context, id string, v T) (T, error)
}

// Repository is safe for concurrent use.
type Repository[T any] struct {
	table  cache.Table
	store  cache.Store
	codec  Codec[T]
	remote Remote[T]
	log    *zap.Logger

	inflight sync.WaitGroup
}

// New constructs a Repository over one cache table.
func New[T any](table cache.Table, store cache.Store, codec Codec[T], remote Remote[T], log *zap.Logger) *Repository[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository[T]{
		table:  table,
		store:  store,
		codec:  codec,
		remote: remote,
		log:    log.With(zap.String("table", string(table))),
	}
}

// Entities emits at most two snapshots and then closes: the cached rows matching f (possibly
// empty), then the remote list once it has been written to the cache. A failed remote fetch
// ends the sequence after the cached snapshot without surfacing an error.
//
// The channel is buffered, so a reader may stop early. The remote fetch and its cache write
// keep running after ctx is cancelled; Wait blocks until they finish.
func (r *Repository[T]) Entities(ctx context.Context, f cache.Filter) <-chan []T {
	out := make(chan []T, 2)
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		defer close(out)

		if ctx.Err() != nil {
			return
		}
		out <- r.cached(ctx, f)

		fresh, err := r.remote.List(context.WithoutCancel(ctx), f)
		if err != nil {
			r.log.Debug("remote list failed, keeping cache", zap.Error(err))
			return
		}
		r.save(context.WithoutCancel(ctx), fresh...)
		out <- fresh
	}()
	return out
}

// Wait blocks until every detached remote fetch started by Entities has finished.
func (r *Repository[T]) Wait() { r.inflight.Wait() }

func (r *Repository[T]) cached(ctx context.Context, f cache.Filter) []T {
	rows, err := r.store.Find(ctx, r.table, f)
	if err != nil {
		r.log.Warn("cache read failed", zap.Error(err))
		return []T{}
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := r.codec.Decode(row.Payload)
		if err != nil {
			r.log.Warn("skipping undecodable row", zap.String("id", row.ID), zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out
}

// ByID returns the cached entity without touching the network. A missing or undecodable row
// falls through to the remote service, whose answer is cached.
func (r *Repository[T]) ByID(ctx context.Context, id string) result.Result[T] {
	row, err := r.store.Get(ctx, r.table, id)
	switch {
	case err == nil:
		v, derr := r.codec.Decode(row.Payload)
		if derr == nil {
			return result.Success(v)
		}
		r.log.Warn("cached row undecodable, fetching", zap.String("id", id), zap.Error(derr))
	case !errors.Is(err, errs.ErrNotFound):
		r.log.Warn("cache read failed, fetching", zap.String("id", id), zap.Error(err))
	}

	v, err := r.remote.Get(ctx, id)
	if err != nil {
		return result.Failure[T](err)
	}
	r.save(ctx, v)
	return result.Success(v)
}

// Mutate writes v to the cache under id and then sends it to the remote service. The cached
// row stays as written whatever the remote outcome; on success it is replaced by the server's
// canonical copy. The remote outcome is returned unchanged.
func (r *Repository[T]) Mutate(ctx context.Context, id string, v T) result.Result[T] {
	if id == "" {
		return result.Failure[T](fmt.Errorf("syncrepo.mutate: empty id: %w", errs.ErrValidation))
	}
	row, err := r.codec.Row(v)
	if err != nil {
		return result.Failure[T](fmt.Errorf("syncrepo.mutate.encode: %w", err))
	}
	row.ID = id
	if err := r.store.Upsert(ctx, r.table, row); err != nil {
		// the remote call still goes out so the write is not lost
		r.log.Error("local write failed", zap.String("id", id), zap.Error(err))
	}

	canonical, err := r.remote.Update(ctx, id, v)
	if err != nil {
		r.log.Warn("remote write failed, local copy kept", zap.String("id", id), zap.Error(err))
		return result.Failure[T](err)
	}
	r.save(ctx, canonical)
	return result.Success(canonical)
}

// save upserts entities as one batch; failures only cost freshness.
func (r *Repository[T]) save(ctx context.Context, vs ...T) {
	if len(vs) == 0 {
		return
	}
	rows := make([]cache.Row, 0, len(vs))
	for _, v := range vs {
		row, err := r.codec.Row(v)
		if err != nil {
			r.log.Warn("skipping unencodable entity", zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}
	if err := r.store.Upsert(ctx, r.table, rows...); err != nil {
		r.log.Warn("cache write failed", zap.Error(err))
	}
}
