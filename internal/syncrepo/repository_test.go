package syncrepo

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/fitsync/internal/cache"
	"github.com/and161185/fitsync/internal/errs"
)

type item struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Start int64  `json:"start"`
	Name  string `json:"name"`
}

type itemCodec struct{}

func (itemCodec) Row(v item) (cache.Row, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return cache.Row{}, err
	}
	return cache.Row{ID: v.ID, OwnerID: v.Owner, StartDate: v.Start, Payload: b}, nil
}

func (itemCodec) Decode(p []byte) (item, error) {
	var v item
	err := json.Unmarshal(p, &v)
	return v, err
}

// memStore is a map-backed cache.Store ordered like the real backends.
type memStore struct {
	mu   sync.Mutex
	rows map[string]cache.Row
}

func newMemStore() *memStore { return &memStore{rows: map[string]cache.Row{}} }

func (m *memStore) Upsert(_ context.Context, _ cache.Table, rows ...cache.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.rows[r.ID] = r
	}
	return nil
}

func (m *memStore) Find(_ context.Context, _ cache.Table, f cache.Filter) ([]cache.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []cache.Row
	for _, r := range m.rows {
		if f.OwnerID != "" && r.OwnerID != f.OwnerID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate != out[j].StartDate {
			return out[i].StartDate > out[j].StartDate
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStore) Get(_ context.Context, _ cache.Table, id string) (cache.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return cache.Row{}, errs.ErrNotFound
	}
	return r, nil
}

func (m *memStore) Close() error { return nil }

type fakeRemote struct {
	mu        sync.Mutex
	items     []item
	err       error
	gate      chan struct{} // List blocks on it when set
	listCalls atomic.Int32
	getCalls  atomic.Int32
	updated   []item
}

func (f *fakeRemote) List(_ context.Context, _ cache.Filter) ([]item, error) {
	f.listCalls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]item(nil), f.items...), nil
}

func (f *fakeRemote) Get(_ context.Context, id string) (item, error) {
	f.getCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return item{}, f.err
	}
	for _, it := range f.items {
		if it.ID == id {
			return it, nil
		}
	}
	return item{}, &errs.APIError{Status: 404}
}

func (f *fakeRemote) Update(_ context.Context, _ string, v item) (item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return item{}, f.err
	}
	v.Name += " (saved)"
	f.updated = append(f.updated, v)
	return v, nil
}

func collect[T any](t *testing.T, ch <-chan T) []T {
	t.Helper()
	var out []T
	timeout := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		case <-timeout:
			t.Fatal("sequence did not complete")
		}
	}
}

func TestEntities_CacheThenNetwork(t *testing.T) {
	store := newMemStore()
	remote := &fakeRemote{items: []item{
		{ID: "b", Owner: "u", Start: 2, Name: "B"},
		{ID: "a", Owner: "u", Start: 1, Name: "A"},
	}}
	repo := New[item](cache.TablePlans, store, itemCodec{}, remote, nil)
	ctx := context.Background()

	first := collect(t, repo.Entities(ctx, cache.Filter{OwnerID: "u"}))
	require.Len(t, first, 2)
	require.Empty(t, first[0], "cold cache emits an empty snapshot")
	require.Equal(t, remote.items, first[1])

	second := collect(t, repo.Entities(ctx, cache.Filter{OwnerID: "u"}))
	require.Len(t, second, 2)
	require.Equal(t, remote.items, second[0], "cache now holds the remote snapshot")
	require.Equal(t, second[0], second[1])
}

func TestEntities_RemoteFailureEndsAfterCache(t *testing.T) {
	store := newMemStore()
	row, err := itemCodec{}.Row(item{ID: "a", Owner: "u", Name: "cached"})
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), cache.TablePlans, row))

	remote := &fakeRemote{err: errs.ErrNetwork}
	repo := New[item](cache.TablePlans, store, itemCodec{}, remote, nil)

	for i := 0; i < 2; i++ {
		got := collect(t, repo.Entities(context.Background(), cache.Filter{}))
		require.Equal(t, [][]item{{{ID: "a", Owner: "u", Name: "cached"}}}, got)
	}
	require.Len(t, store.rows, 1)
}

func TestEntities_SkipsCorruptRows(t *testing.T) {
	store := newMemStore()
	good, _ := itemCodec{}.Row(item{ID: "good"})
	require.NoError(t, store.Upsert(context.Background(), cache.TablePlans, good,
		cache.Row{ID: "bad", Payload: []byte("{not json")}))

	repo := New[item](cache.TablePlans, store, itemCodec{}, &fakeRemote{err: errs.ErrNetwork}, nil)
	got := collect(t, repo.Entities(context.Background(), cache.Filter{}))
	require.Equal(t, [][]item{{{ID: "good"}}}, got)
}

func TestEntities_FetchOutlivesSubscriber(t *testing.T) {
	store := newMemStore()
	remote := &fakeRemote{gate: make(chan struct{}), items: []item{{ID: "x", Name: "X"}}}
	repo := New[item](cache.TablePlans, store, itemCodec{}, remote, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch := repo.Entities(ctx, cache.Filter{})
	require.Empty(t, <-ch)
	cancel()
	close(remote.gate)
	repo.Wait()

	got, err := store.Get(context.Background(), cache.TablePlans, "x")
	require.NoError(t, err)
	require.Equal(t, "x", got.ID)
}

func TestEntities_CancelledBeforeStart(t *testing.T) {
	remote := &fakeRemote{}
	repo := New[item](cache.TablePlans, newMemStore(), itemCodec{}, remote, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Empty(t, collect(t, repo.Entities(ctx, cache.Filter{})))
	require.Zero(t, remote.listCalls.Load())
}

func TestByID(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	remote := &fakeRemote{items: []item{{ID: "r", Name: "remote"}, {ID: "c", Name: "server copy"}}}
	repo := New[item](cache.TablePlans, store, itemCodec{}, remote, nil)

	row, _ := itemCodec{}.Row(item{ID: "c", Name: "cached"})
	require.NoError(t, store.Upsert(ctx, cache.TablePlans, row))

	hit := repo.ByID(ctx, "c")
	require.True(t, hit.IsSuccess())
	require.Equal(t, "cached", hit.ValueOr(item{}).Name)
	require.Zero(t, remote.getCalls.Load(), "a cache hit stays offline")

	miss := repo.ByID(ctx, "r")
	require.True(t, miss.IsSuccess())
	require.Equal(t, int32(1), remote.getCalls.Load())
	_, err := store.Get(ctx, cache.TablePlans, "r")
	require.NoError(t, err, "remote answer is cached")

	require.NoError(t, store.Upsert(ctx, cache.TablePlans, cache.Row{ID: "c", Payload: []byte("garbage")}))
	healed := repo.ByID(ctx, "c")
	require.True(t, healed.IsSuccess(), "corrupt row counts as a miss")
	require.Equal(t, "server copy", healed.ValueOr(item{}).Name)

	gone := repo.ByID(ctx, "nope")
	require.True(t, gone.IsError())
	var apiErr *errs.APIError
	require.True(t, errors.As(gone.Err(), &apiErr))
}

func TestMutate_LocalWriteSurvivesRemoteFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	remote := &fakeRemote{err: errs.ErrNetwork}
	repo := New[item](cache.TablePlans, store, itemCodec{}, remote, nil)

	res := repo.Mutate(ctx, "m", item{ID: "m", Name: "edited"})
	require.True(t, res.IsError())
	require.ErrorIs(t, res.Err(), errs.ErrNetwork)

	cached := repo.ByID(ctx, "m")
	require.True(t, cached.IsSuccess())
	require.Equal(t, "edited", cached.ValueOr(item{}).Name)
}

func TestMutate_CanonicalCopyReplacesLocal(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	remote := &fakeRemote{}
	repo := New[item](cache.TablePlans, store, itemCodec{}, remote, nil)

	res := repo.Mutate(ctx, "m", item{ID: "m", Name: "edited"})
	v, err := res.Get()
	require.NoError(t, err)
	require.Equal(t, "edited (saved)", v.Name)
	require.Len(t, remote.updated, 1)

	row, err := store.Get(ctx, cache.TablePlans, "m")
	require.NoError(t, err)
	decoded, err := itemCodec{}.Decode(row.Payload)
	require.NoError(t, err)
	require.Equal(t, "edited (saved)", decoded.Name)
}

func TestMutate_EmptyID(t *testing.T) {
	repo := New[item](cache.TablePlans, newMemStore(), itemCodec{}, &fakeRemote{}, nil)
	res := repo.Mutate(context.Background(), "", item{})
	require.ErrorIs(t, res.Err(), errs.ErrValidation)
}
