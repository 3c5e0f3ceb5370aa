package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/store"
)

// SyncRunStore implements store.SyncRunRepository on Postgres.
type SyncRunStore struct {
	pool Pool
}

// NewSyncRunStore constructs a store from an existing pool.
func NewSyncRunStore(pool Pool) (*SyncRunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SyncRunStore{pool: pool}, nil
}

// CreateSyncRun implements store.SyncRunRepository.
func (s *SyncRunStore) CreateSyncRun(ctx context.Context, run animal.SyncRun) error {
	query := `
		INSERT INTO sync_runs (id, started_at, provider, filters_applied, status)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err := s.pool.Exec(ctx, query, run.ID, run.StartedAt, run.Provider, filters(run), string(run.Status))
	if err != nil {
		return fmt.Errorf("insert sync run: %w", err)
	}
	return nil
}

// FinishSyncRun implements store.SyncRunRepository.
func (s *SyncRunStore) FinishSyncRun(ctx context.Context, run animal.SyncRun) error {
	query := `
		UPDATE sync_runs
		SET finished_at = $1, filters_applied = $2, pages_fetched = $3, dogs_added = $4,
			dogs_updated = $5, dogs_removed = $6, status = $7, error_message = $8
		WHERE id = $9;
	`
	tag, err := s.pool.Exec(ctx, query,
		run.FinishedAt,
		filters(run),
		run.PagesFetched,
		run.DogsAdded,
		run.DogsUpdated,
		run.DogsRemoved,
		string(run.Status),
		run.ErrorMessage,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish sync run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListSyncRuns implements store.SyncRunRepository.
func (s *SyncRunStore) ListSyncRuns(ctx context.Context, limit int) ([]animal.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, started_at, finished_at, provider, filters_applied, pages_fetched,
			dogs_added, dogs_updated, dogs_removed, status, error_message
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT $1;
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	var out []animal.SyncRun
	for rows.Next() {
		var (
			run    animal.SyncRun
			status string
		)
		if err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Provider,
			&run.FiltersApplied,
			&run.PagesFetched,
			&run.DogsAdded,
			&run.DogsUpdated,
			&run.DogsRemoved,
			&status,
			&run.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		run.Status = animal.SyncRunStatus(status)
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync runs: %w", err)
	}
	return out, nil
}

func filters(run animal.SyncRun) []string {
	if run.FiltersApplied == nil {
		return []string{}
	}
	return run.FiltersApplied
}
