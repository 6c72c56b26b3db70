package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/and161185/fitsync/internal/cache"
	"github.com/and161185/fitsync/internal/errs"
)

const columns = `id, owner_id, status, start_date, end_date, updated_at, payload`

const upsertTmpl = `INSERT INTO %s (` + columns + `) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET owner_id=EXCLUDED.owner_id, status=EXCLUDED.status,
start_date=EXCLUDED.start_date, end_date=EXCLUDED.end_date, updated_at=EXCLUDED.updated_at,
payload=EXCLUDED.payload`

// Store implements cache.Store using PostgreSQL.
type Store struct {
	db  *DB
	log *zap.Logger
}

var _ cache.Store = (*Store)(nil)

// NewStore constructs a cache store.
func NewStore(db *DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

// Upsert replaces rows by id inside a single transaction.
func (s *Store) Upsert(ctx context.Context, table cache.Table, rows ...cache.Row) (err error) {
	if !table.Valid() {
		return cache.ErrUnknownTable
	}
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	q := fmt.Sprintf(upsertTmpl, table)
	for i, r := range rows {
		if r.ID == "" {
			return fmt.Errorf("row[%d]: empty id", i)
		}
		if _, err = tx.Exec(ctx, q, r.ID, r.OwnerID, r.Status, r.StartDate, r.EndDate, r.UpdatedAt, r.Payload); err != nil {
			return fmt.Errorf("row[%d]: %w", i, err)
		}
	}
	s.log.Debug("cache upsert", zap.String("table", string(table)), zap.Int("rows", len(rows)))
	return nil
}

// Find returns matching rows, newest start date first.
func (s *Store) Find(ctx context.Context, table cache.Table, f cache.Filter) ([]cache.Row, error) {
	if !table.Valid() {
		return nil, cache.ErrUnknownTable
	}
	q, args := findQuery(table, f)
	rows, err := s.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cache.Row
	for rows.Next() {
		var r cache.Row
		if err = rows.Scan(&r.ID, &r.OwnerID, &r.Status, &r.StartDate, &r.EndDate, &r.UpdatedAt, &r.Payload); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func findQuery(table cache.Table, f cache.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.OwnerID != "" {
		add("owner_id=$%d", f.OwnerID)
	}
	if f.Status != "" {
		add("status=$%d", f.Status)
	}
	if !f.From.IsZero() {
		add("start_date>=$%d", f.From.UnixMilli())
	}
	if !f.To.IsZero() {
		add("start_date<=$%d", f.To.UnixMilli())
	}

	var b strings.Builder
	b.WriteString("SELECT " + columns + " FROM " + string(table))
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY start_date DESC, id ASC")
	return b.String(), args
}

// Get returns a single row by id.
func (s *Store) Get(ctx context.Context, table cache.Table, id string) (cache.Row, error) {
	if !table.Valid() {
		return cache.Row{}, cache.ErrUnknownTable
	}
	q := "SELECT " + columns + " FROM " + string(table) + " WHERE id=$1"
	var r cache.Row
	err := s.db.Pool.QueryRow(ctx, q, id).Scan(&r.ID, &r.OwnerID, &r.Status, &r.StartDate, &r.EndDate, &r.UpdatedAt, &r.Payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return cache.Row{}, errs.ErrNotFound
	}
	if err != nil {
		return cache.Row{}, err
	}
	return r, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}
