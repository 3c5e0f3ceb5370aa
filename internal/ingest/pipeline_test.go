package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/clock"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
	"github.com/JakeFAU/rescue-radar/internal/id/uuid"
	"github.com/JakeFAU/rescue-radar/internal/provider"
	"github.com/JakeFAU/rescue-radar/internal/publisher/memory"
	"github.com/JakeFAU/rescue-radar/internal/scoring"
	memstore "github.com/JakeFAU/rescue-radar/internal/storage/memory"
	"github.com/JakeFAU/rescue-radar/internal/store"
)

var now = time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)

type fixture struct {
	animals      *memstore.AnimalStore
	runs         *memstore.SyncRunStore
	blobs        *memstore.BlobStore
	pub          *memory.Publisher
	rescueGroups *provider.MockClient
	petfinder    *provider.MockClient
	pipeline     *Pipeline
}

func newFixture(t *testing.T, animals store.AnimalRepository) *fixture {
	t.Helper()
	f := &fixture{
		animals:      memstore.NewAnimalStore(),
		runs:         memstore.NewSyncRunStore(),
		blobs:        memstore.NewBlobStore(),
		pub:          memory.New(),
		rescueGroups: provider.NewMockClient(formatter.SourceRescueGroups),
		petfinder:    provider.NewMockClient(formatter.SourcePetfinder),
	}
	if animals == nil {
		animals = f.animals
	}
	clk := clock.NewFixed(now)
	p, err := New(Config{MaxPagesPerFilter: 5}, Deps{
		Animals:   animals,
		Runs:      f.runs,
		Providers: []provider.Client{f.rescueGroups, f.petfinder},
		Formatter: formatter.New(formatter.Config{}),
		Scorer:    scoring.New(scoring.DefaultWeights(), clk),
		Clock:     clk,
		IDs:       uuid.New(),
		Blobs:     f.blobs,
		Publisher: f.pub,
	})
	require.NoError(t, err)
	p.filters = func(time.Time) []DiversityFilter {
		return []DiversityFilter{
			{Name: "all", Filter: animal.Filter{Status: animal.StatusAdoptable}},
			{Name: "size:large", Filter: animal.Filter{Size: animal.SizeLarge, Status: animal.StatusAdoptable}},
		}
	}
	f.pipeline = p
	return f
}

func rgDog(id, name string) formatter.RescueGroupsRaw {
	return formatter.RescueGroupsRaw{
		ID: id,
		Attributes: formatter.RescueGroupsAnimal{
			Name:         name,
			BreedPrimary: "Plott Hound",
			AgeGroup:     "Senior",
			SizeGroup:    "Large",
			Sex:          "Male",
			CreatedDate:  now.AddDate(0, -2, 0).Format(time.RFC3339),
		},
	}
}

func storedRG(id string, lastUpdated time.Time) formatter.StoreRaw {
	return formatter.StoreRaw{
		Provider:    "rescuegroups",
		ID:          id,
		Name:        "Dog " + id,
		Photos:      []string{},
		City:        "Austin",
		State:       "TX",
		LastUpdated: lastUpdated,
		Status:      "adoptable",
	}
}

func page(n, total int, raw string, records ...formatter.RawRecord) provider.Page {
	return provider.Page{Records: records, Page: n, TotalPages: total, Raw: []byte(raw)}
}

func query(filterSize animal.Size, pageNo int) any {
	return mock.MatchedBy(func(q provider.Query) bool {
		return q.Filter.Size == filterSize && q.Page == pageNo
	})
}

func runByProvider(t *testing.T, runs []animal.SyncRun, name string) animal.SyncRun {
	t.Helper()
	for _, r := range runs {
		if r.Provider == name {
			return r
		}
	}
	t.Fatalf("no sync run for %s", name)
	return animal.SyncRun{}
}

// One provider refreshes X and Y, the other is down, and Z has not been seen
// for 45 days.
func TestRunSyncRefreshesAndSweepsStale(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, row := range []formatter.StoreRaw{
		storedRG("x", now.AddDate(0, 0, -10)),
		storedRG("y", now.AddDate(0, 0, -10)),
		storedRG("z", now.AddDate(0, 0, -45)),
	} {
		_, err := f.animals.Upsert(ctx, row)
		require.NoError(t, err)
	}

	f.rescueGroups.On("Search", mock.Anything, query("", 1)).
		Return(page(1, 2, `{"page":1}`, rgDog("x", "Xander"), rgDog("y", "Yoshi")), nil).Once()
	f.rescueGroups.On("Search", mock.Anything, query("", 2)).
		Return(page(2, 2, `{"page":2}`, rgDog("y", "Yoshi"), rgDog("w", "Waldo")), nil).Once()
	f.rescueGroups.On("Search", mock.Anything, query(animal.SizeLarge, 1)).
		Return(page(1, 1, `{"page":1}`, rgDog("x", "Xander")), nil).Once()
	f.petfinder.On("Search", mock.Anything, mock.Anything).
		Return(provider.Page{}, provider.ErrUnavailable)

	summary, err := f.pipeline.RunSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, animal.SyncCompleted, summary.Status)
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 2, summary.Updated)
	assert.Equal(t, 1, summary.Removed)
	require.Len(t, summary.Runs, 3)

	for _, id := range []string{"x", "y", "w"} {
		row, err := f.animals.GetByNaturalKey(ctx, animal.ID{Provider: "rescuegroups", NativeID: id})
		require.NoError(t, err)
		assert.Equal(t, "adoptable", row.Status, id)
		assert.True(t, row.LastUpdated.Equal(now), id)
		require.NotNil(t, row.VisibilityScore, id)
		assert.Positive(t, *row.VisibilityScore, id)
	}
	z, err := f.animals.GetByNaturalKey(ctx, animal.ID{Provider: "rescuegroups", NativeID: "z"})
	require.NoError(t, err)
	assert.Equal(t, "removed", z.Status)

	stored, err := f.runs.ListSyncRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	rg := runByProvider(t, stored, "rescuegroups")
	assert.Equal(t, animal.SyncCompleted, rg.Status)
	assert.Equal(t, []string{"all", "size:large"}, rg.FiltersApplied)
	assert.Equal(t, 3, rg.PagesFetched)
	assert.Equal(t, 1, rg.DogsAdded)
	assert.Equal(t, 2, rg.DogsUpdated)
	assert.NotNil(t, rg.FinishedAt)

	pf := runByProvider(t, stored, "petfinder")
	assert.Equal(t, animal.SyncFailed, pf.Status)
	assert.Contains(t, pf.ErrorMessage, "provider unavailable")

	sweep := runByProvider(t, stored, SweepProvider)
	assert.Equal(t, animal.SyncCompleted, sweep.Status)
	assert.Equal(t, 1, sweep.DogsRemoved)

	assert.Len(t, f.blobs.Paths(), 3)
	msgs := f.pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, DefaultConfig().Topic, msgs[0].Topic)
	published, ok := msgs[0].Payload.(Summary)
	require.True(t, ok)
	assert.Equal(t, 1, published.Removed)

	f.rescueGroups.AssertExpectations(t)
	f.petfinder.AssertNumberOfCalls(t, "Search", 2)
}

func TestRunSyncSkipsSweepWhenEveryPassFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.animals.Upsert(ctx, storedRG("z", now.AddDate(0, 0, -90)))
	require.NoError(t, err)

	f.rescueGroups.On("Search", mock.Anything, mock.Anything).Return(provider.Page{}, provider.ErrUnauthorized)
	f.petfinder.On("Search", mock.Anything, mock.Anything).Return(provider.Page{}, provider.ErrUnavailable)

	summary, err := f.pipeline.RunSync(ctx)
	require.ErrorIs(t, err, ErrSyncFailed)
	assert.Equal(t, animal.SyncFailed, summary.Status)
	require.Len(t, summary.Runs, 3)

	sweep := runByProvider(t, summary.Runs, SweepProvider)
	assert.Equal(t, animal.SyncFailed, sweep.Status)
	assert.Contains(t, sweep.ErrorMessage, "skipped")

	z, err := f.animals.GetByNaturalKey(ctx, animal.ID{Provider: "rescuegroups", NativeID: "z"})
	require.NoError(t, err)
	assert.Equal(t, "adoptable", z.Status)
}

func TestRunPassAbortsAfterConsecutiveFailures(t *testing.T) {
	f := newFixture(t, nil)
	f.pipeline.filters = func(time.Time) []DiversityFilter {
		return DefaultFilters(now, 7*24*time.Hour)
	}
	f.rescueGroups.On("Search", mock.Anything, mock.Anything).
		Return(provider.Page{}, errors.New("connection reset"))

	res := f.pipeline.runPass(context.Background(), f.rescueGroups, now)
	assert.Equal(t, animal.SyncFailed, res.run.Status)
	assert.Contains(t, res.run.ErrorMessage, "aborted")
	assert.Len(t, res.run.FiltersApplied, DefaultConfig().MaxConsecutiveFailures)
	f.rescueGroups.AssertNumberOfCalls(t, "Search", DefaultConfig().MaxConsecutiveFailures)
}

func TestRunPassStopsAtMaxPages(t *testing.T) {
	f := newFixture(t, nil)
	f.pipeline.filters = func(time.Time) []DiversityFilter {
		return []DiversityFilter{{Name: "all"}}
	}
	f.rescueGroups.On("Search", mock.Anything, mock.Anything).
		Return(page(1, 99, "", rgDog("a", "Ace")), nil)

	res := f.pipeline.runPass(context.Background(), f.rescueGroups, now)
	assert.Equal(t, animal.SyncCompleted, res.run.Status)
	assert.Equal(t, 5, res.run.PagesFetched)
	assert.Equal(t, 1, res.run.DogsAdded)
	assert.Empty(t, f.blobs.Paths())
}

type flakyStore struct {
	*memstore.AnimalStore
	failID string
}

func (s flakyStore) Upsert(ctx context.Context, rec formatter.StoreRaw) (store.UpsertResult, error) {
	if rec.ID == s.failID {
		return 0, errors.New("disk full")
	}
	return s.AnimalStore.Upsert(ctx, rec)
}

func TestRunSyncCountsWriteFailures(t *testing.T) {
	animals := flakyStore{AnimalStore: memstore.NewAnimalStore(), failID: "bad"}
	f := newFixture(t, animals)
	f.rescueGroups.On("Search", mock.Anything, mock.Anything).
		Return(page(1, 1, "", rgDog("good", "Goober"), rgDog("bad", "Bandit")), nil)
	f.petfinder.On("Search", mock.Anything, mock.Anything).Return(page(1, 1, ""), nil)

	summary, err := f.pipeline.RunSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 1, summary.WriteFailures)
	assert.Equal(t, animal.SyncCompleted, runByProvider(t, summary.Runs, "rescuegroups").Status)
	assert.Equal(t, 1, animals.Len())
}

func TestRunSyncIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t, nil)
	f.rescueGroups.On("Search", mock.Anything, mock.Anything).
		Return(page(1, 1, "", rgDog("a", "Ace")), nil)
	f.petfinder.On("Search", mock.Anything, mock.Anything).Return(page(1, 1, ""), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := f.pipeline.RunSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Added)
}

func TestRunSyncEnforcesMaxRuntime(t *testing.T) {
	f := newFixture(t, nil)
	f.pipeline.cfg.MaxRuntime = 20 * time.Millisecond
	block := func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}
	f.rescueGroups.On("Search", mock.Anything, mock.Anything).Run(block).
		Return(provider.Page{}, context.DeadlineExceeded)
	f.petfinder.On("Search", mock.Anything, mock.Anything).Run(block).
		Return(provider.Page{}, context.DeadlineExceeded)

	summary, err := f.pipeline.RunSync(context.Background())
	require.ErrorIs(t, err, ErrSyncFailed)
	for _, run := range summary.Runs {
		assert.Equal(t, animal.SyncFailed, run.Status, run.Provider)
	}
	stored, err := f.runs.ListSyncRuns(context.Background(), 0)
	require.NoError(t, err)
	for _, run := range stored {
		assert.NotEqual(t, animal.SyncInProgress, run.Status)
	}
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	require.Error(t, err)
}

func TestDefaultFilters(t *testing.T) {
	filters := DefaultFilters(now, 7*24*time.Hour)
	names := make([]string, len(filters))
	for i, f := range filters {
		names[i] = f.Name
		assert.Equal(t, animal.StatusAdoptable, f.Filter.Status)
	}
	assert.Equal(t, []string{
		"all",
		"size:small", "size:medium", "size:large", "size:extra_large",
		"age:baby", "age:young", "age:adult", "age:senior",
		"special_needs", "recent:7d",
	}, names)
	assert.True(t, filters[len(filters)-1].Filter.PublishedSince.Equal(now.AddDate(0, 0, -7)))

	assert.Len(t, DefaultFilters(now, 0), 10)
}

func TestSummaryJSON(t *testing.T) {
	data, err := json.Marshal(Summary{Status: animal.SyncCompleted, Removed: 2})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"removed":2`)
	assert.Contains(t, string(data), `"status":"completed"`)
}

func TestRunSyncPublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.pub.FailWith(errors.New("broker down"))
	f.rescueGroups.On("Search", mock.Anything, mock.Anything).Return(page(1, 1, ""), nil)
	f.petfinder.On("Search", mock.Anything, mock.Anything).Return(page(1, 1, ""), nil)

	summary, err := f.pipeline.RunSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, animal.SyncCompleted, summary.Status)
	assert.Empty(t, f.pub.Messages())
}
