package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/store"
)

// SyncRunStore keeps the sync audit log in memory.
type SyncRunStore struct {
	mu   sync.RWMutex
	runs []animal.SyncRun
}

// NewSyncRunStore constructs a SyncRunStore.
func NewSyncRunStore() *SyncRunStore {
	return &SyncRunStore{}
}

// CreateSyncRun implements store.SyncRunRepository.
func (s *SyncRunStore) CreateSyncRun(_ context.Context, run animal.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(run.ID) >= 0 {
		return errors.New("sync run already exists")
	}
	s.runs = append(s.runs, cloneRun(run))
	return nil
}

// FinishSyncRun implements store.SyncRunRepository.
func (s *SyncRunStore) FinishSyncRun(_ context.Context, run animal.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(run.ID)
	if i < 0 {
		return store.ErrNotFound
	}
	s.runs[i] = cloneRun(run)
	return nil
}

// ListSyncRuns implements store.SyncRunRepository.
func (s *SyncRunStore) ListSyncRuns(_ context.Context, limit int) ([]animal.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]animal.SyncRun, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, cloneRun(s.runs[i]))
	}
	return out, nil
}

func (s *SyncRunStore) indexLocked(id string) int {
	return slices.IndexFunc(s.runs, func(r animal.SyncRun) bool { return r.ID == id })
}

func cloneRun(r animal.SyncRun) animal.SyncRun {
	r.FiltersApplied = append([]string(nil), r.FiltersApplied...)
	if r.FinishedAt != nil {
		finished := *r.FinishedAt
		r.FinishedAt = &finished
	}
	return r
}
