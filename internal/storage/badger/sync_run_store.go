package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/store"
)

const defaultListLimit = 50

// SyncRunStore implements store.SyncRunRepository on badger.
type SyncRunStore struct {
	backend *Backend
}

// NewSyncRunStore wraps an open backend.
func NewSyncRunStore(backend *Backend) (*SyncRunStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	return &SyncRunStore{backend: backend}, nil
}

// CreateSyncRun implements store.SyncRunRepository.
func (s *SyncRunStore) CreateSyncRun(_ context.Context, run animal.SyncRun) error {
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("sync run id is required")
	}
	value, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode sync run: %w", err)
	}
	err = s.backend.update(func(tx *badger.Txn) error {
		if _, err := tx.Get(syncRunKey(run.ID)); err == nil {
			return fmt.Errorf("sync run %s already exists", run.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := tx.Set(syncRunKey(run.ID), value); err != nil {
			return err
		}
		return tx.Set(syncRunStartKey(run.StartedAt, run.ID), []byte(run.ID))
	})
	if err != nil {
		return fmt.Errorf("insert sync run: %w", err)
	}
	return nil
}

// FinishSyncRun implements store.SyncRunRepository. StartedAt is kept from
// the stored row so the start index stays valid.
func (s *SyncRunStore) FinishSyncRun(_ context.Context, run animal.SyncRun) error {
	err := s.backend.update(func(tx *badger.Txn) error {
		existing, err := readSyncRun(tx, run.ID)
		if err != nil {
			return err
		}
		run.StartedAt = existing.StartedAt
		value, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return tx.Set(syncRunKey(run.ID), value)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("finish sync run: %w", err)
	}
	return nil
}

// ListSyncRuns implements store.SyncRunRepository.
func (s *SyncRunStore) ListSyncRuns(_ context.Context, limit int) ([]animal.SyncRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var runs []animal.SyncRun
	err := s.backend.view(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		prefix := []byte(syncRunStartPrefix)
		for iter.Seek(prefixEnd(syncRunStartPrefix)); iter.ValidForPrefix(prefix) && len(runs) < limit; iter.Next() {
			id, err := iter.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			run, err := readSyncRun(tx, string(id))
			if err != nil {
				return err
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	return runs, nil
}

func readSyncRun(tx *badger.Txn, id string) (animal.SyncRun, error) {
	var run animal.SyncRun
	item, err := tx.Get(syncRunKey(id))
	if err != nil {
		return run, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &run)
	})
	return run, err
}
