// Package cache defines the local cache contract shared by the sync repositories.
package cache

import (
	"context"
	"errors"
	"time"
)

// Table names one cached entity type.
type Table string

const (
	TablePlans      Table = "training_plans"
	TableExecutions Table = "training_executions"
)

// Tables lists every cache table.
var Tables = []Table{TablePlans, TableExecutions}

// ErrUnknownTable rejects table names outside Tables.
var ErrUnknownTable = errors.New("cache: unknown table")

// Valid reports whether t is one of Tables.
func (t Table) Valid() bool {
	for _, known := range Tables {
		if t == known {
			return true
		}
	}
	return false
}

// Row is one cached entity. The denormalized columns only serve filtering and ordering;
// Payload is the authoritative representation.
type Row struct {
	ID        string
	OwnerID   string
	Status    string
	StartDate int64 // epoch millis
	EndDate   int64 // epoch millis
	UpdatedAt int64 // epoch millis
	Payload   []byte
}

// Filter narrows Find. Zero fields do not filter.
type Filter struct {
	OwnerID string
	Status  string
	From    time.Time // start_date >= From
	To      time.Time // start_date <= To
}

// Store is a local relational cache. Each row upsert is atomic; Upsert applies its batch in
// one transaction.
type Store interface {
	// Upsert inserts or fully replaces rows keyed by ID.
	Upsert(ctx context.Context, table Table, rows ...Row) error
	// Find returns rows matching f ordered by start_date descending, then id.
	Find(ctx context.Context, table Table, f Filter) ([]Row, error)
	// Get returns one row or errs.ErrNotFound.
	Get(ctx context.Context, table Table, id string) (Row, error)
	// Close releases the underlying connections.
	Close() error
}
