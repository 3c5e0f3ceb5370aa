package store

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// UpsertResult reports whether an upsert created or refreshed a row.
type UpsertResult int

// Upsert outcomes.
const (
	Inserted UpsertResult = iota + 1
	Updated
)

// QueryResult is one page of persisted records plus the total match count.
type QueryResult struct {
	Records []formatter.StoreRaw
	Total   int
}

// AnimalRepository persists canonical records keyed by (provider, native id).
type AnimalRepository interface {
	// Upsert inserts or replaces the row with the same natural key.
	Upsert(ctx context.Context, rec formatter.StoreRaw) (UpsertResult, error)
	// Query applies every filter in the store and returns rows ordered by
	// visibility score descending, then natural key.
	Query(ctx context.Context, filter animal.Filter, page animal.Page) (QueryResult, error)
	// GetByNaturalKey loads one row or returns ErrNotFound.
	GetByNaturalKey(ctx context.Context, id animal.ID) (formatter.StoreRaw, error)
	// MarkStaleAsRemoved flips adoptable rows last updated before olderThan to
	// removed and returns how many changed.
	MarkStaleAsRemoved(ctx context.Context, olderThan time.Time) (int, error)
}

// SyncRunRepository persists the append-only sync audit log.
type SyncRunRepository interface {
	// CreateSyncRun inserts a run, usually in the in_progress state.
	CreateSyncRun(ctx context.Context, run animal.SyncRun) error
	// FinishSyncRun records the final counters and status of a run.
	FinishSyncRun(ctx context.Context, run animal.SyncRun) error
	// ListSyncRuns returns the most recent runs first.
	ListSyncRuns(ctx context.Context, limit int) ([]animal.SyncRun, error)
}
