package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
	"github.com/JakeFAU/rescue-radar/internal/store"
)

// maxSweepConflicts bounds how often a stale sweep restarts after racing an upsert.
const maxSweepConflicts = 5

var errBatchFull = errors.New("transaction full")

// AnimalStore implements store.AnimalRepository on badger.
type AnimalStore struct {
	backend *Backend
	// afterScan runs inside the sweep transaction before it commits. Tests only.
	afterScan func()
}

// NewAnimalStore wraps an open backend.
func NewAnimalStore(backend *Backend) (*AnimalStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	return &AnimalStore{backend: backend}, nil
}

// Upsert implements store.AnimalRepository.
func (s *AnimalStore) Upsert(_ context.Context, rec formatter.StoreRaw) (store.UpsertResult, error) {
	if rec.Provider == "" || rec.ID == "" {
		return 0, fmt.Errorf("provider and native id are required")
	}
	if rec.Photos == nil {
		rec.Photos = []string{}
	}
	if rec.Status == "" {
		rec.Status = string(animal.StatusAdoptable)
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encode animal: %w", err)
	}
	key := animalKey(animal.ID{Provider: rec.Provider, NativeID: rec.ID})

	result := store.Inserted
	err = s.backend.update(func(tx *badger.Txn) error {
		_, err := tx.Get(key)
		switch {
		case err == nil:
			result = store.Updated
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return tx.Set(key, value)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert animal: %w", err)
	}
	return result, nil
}

// Query implements store.AnimalRepository. Badger has no secondary indexes
// here, so rows are scanned and filtered with store.Select.
func (s *AnimalStore) Query(_ context.Context, filter animal.Filter, page animal.Page) (store.QueryResult, error) {
	var rows []formatter.StoreRaw
	err := s.backend.view(func(tx *badger.Txn) error {
		return scanAnimals(tx, func(_ []byte, row formatter.StoreRaw) error {
			rows = append(rows, row)
			return nil
		})
	})
	if err != nil {
		return store.QueryResult{}, fmt.Errorf("query animals: %w", err)
	}
	return store.Select(rows, filter, page), nil
}

// GetByNaturalKey implements store.AnimalRepository.
func (s *AnimalStore) GetByNaturalKey(_ context.Context, id animal.ID) (formatter.StoreRaw, error) {
	var row formatter.StoreRaw
	err := s.backend.view(func(tx *badger.Txn) error {
		item, err := tx.Get(animalKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &row)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return formatter.StoreRaw{}, store.ErrNotFound
	}
	if err != nil {
		return formatter.StoreRaw{}, fmt.Errorf("get animal: %w", err)
	}
	return row, nil
}

// MarkStaleAsRemoved implements store.AnimalRepository. Rows are read and
// rewritten in the same transaction, so an Upsert committed meanwhile makes
// the sweep conflict and rescan instead of being overwritten.
func (s *AnimalStore) MarkStaleAsRemoved(ctx context.Context, olderThan time.Time) (int, error) {
	total, conflicts := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		marked, more, err := s.markStaleBatch(olderThan)
		switch {
		case errors.Is(err, badger.ErrConflict) && conflicts < maxSweepConflicts:
			conflicts++
			continue
		case err != nil:
			return total, fmt.Errorf("mark stale animals: %w", err)
		}
		total += marked
		if !more {
			return total, nil
		}
	}
}

// markStaleBatch marks as many stale rows as fit in one transaction and
// reports whether any were left for another pass.
func (s *AnimalStore) markStaleBatch(olderThan time.Time) (marked int, more bool, err error) {
	err = s.backend.update(func(tx *badger.Txn) error {
		marked, more = 0, false
		err := scanAnimals(tx, func(key []byte, row formatter.StoreRaw) error {
			if formatter.ParseStatus(row.Status) != animal.StatusAdoptable || !row.LastUpdated.Before(olderThan) {
				return nil
			}
			row.Status = string(animal.StatusRemoved)
			value, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if err := tx.Set(key, value); err != nil {
				if errors.Is(err, badger.ErrTxnTooBig) {
					more = true
					return errBatchFull
				}
				return err
			}
			marked++
			return nil
		})
		if err != nil && !errors.Is(err, errBatchFull) {
			return err
		}
		if s.afterScan != nil {
			s.afterScan()
		}
		return nil
	})
	return marked, more, err
}

func scanAnimals(tx *badger.Txn, fn func(key []byte, row formatter.StoreRaw) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(animalPrefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		var row formatter.StoreRaw
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &row)
		}); err != nil {
			return fmt.Errorf("decode %s: %w", item.Key(), err)
		}
		if err := fn(item.KeyCopy(nil), row); err != nil {
			return err
		}
	}
	return nil
}
