package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
	"github.com/JakeFAU/rescue-radar/internal/store"
)

// AnimalStore provides an in-memory AnimalRepository for development and tests.
type AnimalStore struct {
	mu   sync.RWMutex
	rows map[animal.ID]formatter.StoreRaw
}

// NewAnimalStore constructs an AnimalStore.
func NewAnimalStore() *AnimalStore {
	return &AnimalStore{rows: make(map[animal.ID]formatter.StoreRaw)}
}

// Upsert implements store.AnimalRepository.
func (s *AnimalStore) Upsert(_ context.Context, rec formatter.StoreRaw) (store.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := animal.ID{Provider: rec.Provider, NativeID: rec.ID}
	_, exists := s.rows[key]
	s.rows[key] = cloneRow(rec)
	if exists {
		return store.Updated, nil
	}
	return store.Inserted, nil
}

// Query implements store.AnimalRepository.
func (s *AnimalStore) Query(_ context.Context, filter animal.Filter, page animal.Page) (store.QueryResult, error) {
	s.mu.RLock()
	rows := make([]formatter.StoreRaw, 0, len(s.rows))
	for _, r := range s.rows {
		rows = append(rows, r)
	}
	s.mu.RUnlock()
	res := store.Select(rows, filter, page)
	for i := range res.Records {
		res.Records[i] = cloneRow(res.Records[i])
	}
	return res, nil
}

// GetByNaturalKey implements store.AnimalRepository.
func (s *AnimalStore) GetByNaturalKey(_ context.Context, id animal.ID) (formatter.StoreRaw, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	if !ok {
		return formatter.StoreRaw{}, store.ErrNotFound
	}
	return cloneRow(r), nil
}

// MarkStaleAsRemoved implements store.AnimalRepository.
func (s *AnimalStore) MarkStaleAsRemoved(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, r := range s.rows {
		if formatter.ParseStatus(r.Status) == animal.StatusAdoptable && r.LastUpdated.Before(olderThan) {
			r.Status = string(animal.StatusRemoved)
			s.rows[key] = r
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored rows.
func (s *AnimalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func cloneRow(r formatter.StoreRaw) formatter.StoreRaw {
	r.Photos = append([]string(nil), r.Photos...)
	return r
}
