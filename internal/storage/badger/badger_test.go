package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
	"github.com/JakeFAU/rescue-radar/internal/store"
)

var (
	_ store.AnimalRepository  = (*AnimalStore)(nil)
	_ store.SyncRunRepository = (*SyncRunStore)(nil)
)

func openMemory(t *testing.T) *Backend {
	t.Helper()
	backend, err := Open(Config{InMemory: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func score(v float64) *float64 { return &v }

func TestOpenOnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "radar")
	backend, err := Open(Config{Path: dir}, nil)
	require.NoError(t, err)
	assert.False(t, backend.IsClosed())
	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	_, err = Open(Config{}, nil)
	assert.Error(t, err)
}

func TestAnimalStoreUpsertAndGet(t *testing.T) {
	animals, err := NewAnimalStore(openMemory(t))
	require.NoError(t, err)
	ctx := context.Background()

	rec := formatter.StoreRaw{Provider: "petfinder", ID: "1", Name: "Buddy"}
	res, err := animals.Upsert(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, store.Inserted, res)

	rec.Name = "Buddy II"
	res, err = animals.Upsert(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, store.Updated, res)

	got, err := animals.GetByNaturalKey(ctx, animal.ID{Provider: "petfinder", NativeID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "Buddy II", got.Name)
	assert.Equal(t, []string{}, got.Photos)
	assert.Equal(t, "adoptable", got.Status)

	_, err = animals.GetByNaturalKey(ctx, animal.ID{Provider: "rescuegroups", NativeID: "1"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = animals.Upsert(ctx, formatter.StoreRaw{Name: "no key"})
	assert.Error(t, err)
}

func TestAnimalStoreQuery(t *testing.T) {
	animals, err := NewAnimalStore(openMemory(t))
	require.NoError(t, err)
	ctx := context.Background()

	rows := []formatter.StoreRaw{
		{Provider: "petfinder", ID: "1", Name: "Low", State: "TX", City: "Austin", VisibilityScore: score(10), Status: "adoptable"},
		{Provider: "petfinder", ID: "2", Name: "High", State: "TX", City: "Austin", VisibilityScore: score(80), Status: "adoptable"},
		{Provider: "rescuegroups", ID: "3", Name: "Mid", State: "TX", City: "Waco", VisibilityScore: score(40), Status: "adoptable"},
		{Provider: "rescuegroups", ID: "4", Name: "Away", State: "CA", City: "Fresno", VisibilityScore: score(99), Status: "adoptable"},
		{Provider: "rescuegroups", ID: "5", Name: "Gone", State: "TX", City: "Austin", VisibilityScore: score(99), Status: "adopted"},
	}
	for _, r := range rows {
		_, err := animals.Upsert(ctx, r)
		require.NoError(t, err)
	}

	res, err := animals.Query(ctx, animal.Filter{Location: animal.Location{State: "tx"}}, animal.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "High", res.Records[0].Name)
	assert.Equal(t, "Mid", res.Records[1].Name)

	res, err = animals.Query(ctx, animal.Filter{Location: animal.Location{State: "TX"}}, animal.Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Low", res.Records[0].Name)
}

func TestAnimalStoreMarkStale(t *testing.T) {
	animals, err := NewAnimalStore(openMemory(t))
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for id, rec := range map[string]formatter.StoreRaw{
		"old":     {LastUpdated: now.AddDate(0, 0, -31), Status: "adoptable"},
		"fresh":   {LastUpdated: now.AddDate(0, 0, -2), Status: "adoptable"},
		"adopted": {LastUpdated: now.AddDate(0, 0, -90), Status: "adopted"},
	} {
		rec.Provider, rec.ID = "petfinder", id
		_, err := animals.Upsert(ctx, rec)
		require.NoError(t, err)
	}

	n, err := animals.MarkStaleAsRemoved(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	old, err := animals.GetByNaturalKey(ctx, animal.ID{Provider: "petfinder", NativeID: "old"})
	require.NoError(t, err)
	assert.Equal(t, "removed", old.Status)

	n, err = animals.MarkStaleAsRemoved(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAnimalStoreMarkStaleKeepsConcurrentUpsert(t *testing.T) {
	animals, err := NewAnimalStore(openMemory(t))
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	old := formatter.StoreRaw{Provider: "petfinder", ID: "old", LastUpdated: now.AddDate(0, 0, -31), Status: "adoptable"}
	_, err = animals.Upsert(ctx, old)
	require.NoError(t, err)

	// A sync pass refreshes the row while the sweep transaction is open.
	scans := 0
	animals.afterScan = func() {
		scans++
		if scans == 1 {
			refreshed := old
			refreshed.LastUpdated = now
			_, err := animals.Upsert(ctx, refreshed)
			require.NoError(t, err)
		}
	}

	n, err := animals.MarkStaleAsRemoved(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, scans)

	got, err := animals.GetByNaturalKey(ctx, animal.ID{Provider: "petfinder", NativeID: "old"})
	require.NoError(t, err)
	assert.Equal(t, "adoptable", got.Status)
	assert.True(t, got.LastUpdated.Equal(now))
}

func TestSyncRunStoreLifecycle(t *testing.T) {
	runs, err := NewSyncRunStore(openMemory(t))
	require.NoError(t, err)
	ctx := context.Background()
	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"b-first", "a-second", "c-third"} {
		require.NoError(t, runs.CreateSyncRun(ctx, animal.SyncRun{
			ID:        id,
			StartedAt: t0.Add(time.Duration(i) * time.Minute),
			Provider:  "petfinder",
			Status:    animal.SyncInProgress,
		}))
	}
	assert.Error(t, runs.CreateSyncRun(ctx, animal.SyncRun{ID: "b-first", StartedAt: t0}))

	finished := t0.Add(5 * time.Minute)
	require.NoError(t, runs.FinishSyncRun(ctx, animal.SyncRun{
		ID:         "a-second",
		FinishedAt: &finished,
		Provider:   "petfinder",
		DogsAdded:  4,
		Status:     animal.SyncCompleted,
	}))
	assert.ErrorIs(t, runs.FinishSyncRun(ctx, animal.SyncRun{ID: "missing"}), store.ErrNotFound)

	got, err := runs.ListSyncRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c-third", "a-second", "b-first"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, animal.SyncCompleted, got[1].Status)
	assert.Equal(t, 4, got[1].DogsAdded)
	assert.True(t, got[1].StartedAt.Equal(t0.Add(time.Minute)))

	got, err = runs.ListSyncRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c-third", got[0].ID)
}
