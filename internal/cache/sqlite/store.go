// Package sqlite implements the on-device cache with GORM over a pure-Go SQLite driver.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	sqliteDialector "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/and161185/fitsync/internal/cache"
	"github.com/and161185/fitsync/internal/errs"
)

var (
	errEmptyPath = errors.New("cache.sqlite.empty_path")
	errBadScheme = errors.New("cache.sqlite.unsupported_scheme")
	errNilURL    = errors.New("cache.sqlite.invalid_url")
)

var upsertOnID = clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}

// record maps one cache row. ModifiedAt must not be called UpdatedAt: GORM would stamp it.
type record struct {
	ID         string `gorm:"column:id;primaryKey"`
	OwnerID    string `gorm:"column:owner_id;not null"`
	Status     string `gorm:"column:status;not null"`
	StartDate  int64  `gorm:"column:start_date;not null"`
	EndDate    int64  `gorm:"column:end_date;not null"`
	ModifiedAt int64  `gorm:"column:updated_at;not null"`
	Payload    []byte `gorm:"column:payload;not null"`
}

func toRecord(r cache.Row) record {
	return record{
		ID: r.ID, OwnerID: r.OwnerID, Status: r.Status,
		StartDate: r.StartDate, EndDate: r.EndDate, ModifiedAt: r.UpdatedAt, Payload: r.Payload,
	}
}

func (r record) row() cache.Row {
	return cache.Row{
		ID: r.ID, OwnerID: r.OwnerID, Status: r.Status,
		StartDate: r.StartDate, EndDate: r.EndDate, UpdatedAt: r.ModifiedAt, Payload: r.Payload,
	}
}

// Store implements cache.Store.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

var _ cache.Store = (*Store)(nil)

// Open opens (creating if needed) the SQLite database at dsn and migrates every cache table.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("cache.sqlite.open: %w", errEmptyPath)
	}
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(sqliteDialector.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("cache.sqlite.open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("cache.sqlite.open: %w", err)
	}
	// one writer at a time; SQLite locks the whole file anyway
	sqlDB.SetMaxOpenConns(1)

	for _, t := range cache.Tables {
		if err := db.WithContext(ctx).Table(string(t)).AutoMigrate(&record{}); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("cache.sqlite.migrate.%s: %w", t, err)
		}
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_owner_status_idx ON %s (owner_id, status)", t, t)
		if err := db.WithContext(ctx).Exec(idx).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("cache.sqlite.migrate.%s: %w", t, err)
		}
	}
	return &Store{db: db, log: log}, nil
}

// DSNFromURL turns sqlite:///path/to/cache.db (or sqlite://relative.db) into a driver DSN.
func DSNFromURL(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errNilURL
	}
	switch strings.ToLower(parsed.Scheme) {
	case "sqlite", "sqlite3":
	default:
		return "", fmt.Errorf("%w: %q", errBadScheme, parsed.Scheme)
	}
	var b strings.Builder
	switch {
	case parsed.Opaque != "":
		b.WriteString(parsed.Opaque)
	case parsed.Host != "":
		b.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				b.WriteString("/")
			}
			b.WriteString(parsed.Path)
		}
	default:
		b.WriteString(parsed.Path)
	}
	if b.Len() == 0 {
		return "", errEmptyPath
	}
	if parsed.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(parsed.RawQuery)
	}
	return b.String(), nil
}

// Upsert replaces rows by id inside one transaction.
func (s *Store) Upsert(ctx context.Context, table cache.Table, rows ...cache.Row) error {
	if !table.Valid() {
		return cache.ErrUnknownTable
	}
	if len(rows) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, r := range rows {
			if r.ID == "" {
				return fmt.Errorf("row[%d]: empty id", i)
			}
			rec := toRecord(r)
			if err := tx.Table(string(table)).Clauses(upsertOnID).Create(&rec).Error; err != nil {
				return fmt.Errorf("row[%d]: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache.sqlite.upsert.%s: %w", table, err)
	}
	s.log.Debug("cache upsert", zap.String("table", string(table)), zap.Int("rows", len(rows)))
	return nil
}

// Find returns matching rows, newest start date first.
func (s *Store) Find(ctx context.Context, table cache.Table, f cache.Filter) ([]cache.Row, error) {
	if !table.Valid() {
		return nil, cache.ErrUnknownTable
	}
	q := s.db.WithContext(ctx).Table(string(table))
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.From.IsZero() {
		q = q.Where("start_date >= ?", f.From.UnixMilli())
	}
	if !f.To.IsZero() {
		q = q.Where("start_date <= ?", f.To.UnixMilli())
	}
	var recs []record
	if err := q.Order("start_date DESC").Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("cache.sqlite.find.%s: %w", table, err)
	}
	out := make([]cache.Row, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.row())
	}
	return out, nil
}

// Get returns one row or errs.ErrNotFound.
func (s *Store) Get(ctx context.Context, table cache.Table, id string) (cache.Row, error) {
	if !table.Valid() {
		return cache.Row{}, cache.ErrUnknownTable
	}
	var rec record
	err := s.db.WithContext(ctx).Table(string(table)).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cache.Row{}, errs.ErrNotFound
	}
	if err != nil {
		return cache.Row{}, fmt.Errorf("cache.sqlite.get.%s: %w", table, err)
	}
	return rec.row(), nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
