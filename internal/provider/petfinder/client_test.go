package petfinder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
	"github.com/JakeFAU/rescue-radar/internal/provider"
)

const searchBody = `{
  "animals": [
    {"id": 1, "name": "Buddy", "breeds": {"primary": "Beagle"}, "photos": [{"full": "f"}],
     "contact": {"address": {"city": "Austin", "state": "TX", "postcode": "78701"}}},
    {"id": 2, "name": "Luna", "breeds": {"primary": null, "mixed": true}}
  ],
  "pagination": {"count_per_page": 2, "total_count": 5, "current_page": 1, "total_pages": 3}
}`

type fakeAPI struct {
	tokens       atomic.Int32
	rejectTokens int32
	lastQuery    atomic.Value
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/oauth2/token", func(w http.ResponseWriter, _ *http.Request) {
		n := f.tokens.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer","expires_in":3600,"access_token":"tok` + string(rune('0'+n)) + `"}`))
	})
	authorized := func(w http.ResponseWriter, r *http.Request) bool {
		issued := f.tokens.Load()
		if issued <= f.rejectTokens || r.Header.Get("Authorization") != "Bearer tok"+string(rune('0'+issued)) {
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
		return true
	}
	mux.HandleFunc("GET /v2/animals", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		f.lastQuery.Store(r.URL.Query())
		_, _ = w.Write([]byte(searchBody))
	})
	mux.HandleFunc("GET /v2/animals/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		if r.PathValue("id") != "1" {
			http.Error(w, `{"title":"Not Found"}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"animal": {"id": 1, "name": "Buddy"}}`))
	})
	mux.HandleFunc("GET /v2/types/dog/breeds", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		_, _ = w.Write([]byte(`{"breeds": [{"name": "Beagle"}, {"name": ""}, {"name": "Plott Hound"}]}`))
	})
	return mux
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, ClientID: "id", ClientSecret: "secret", PageSize: 50}, srv.Client(), nil, nil, nil)
	require.NoError(t, err)
	return c
}

func TestSearchMapsFiltersAndPages(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	c := newTestClient(t, api)

	page, err := c.Search(context.Background(), provider.Query{
		Filter: animal.Filter{
			Location:         animal.Location{City: "Austin", State: "TX"},
			Age:              animal.AgeSenior,
			Size:             animal.SizeExtraLarge,
			GoodWithChildren: true,
			SpecialNeeds:     true,
			PublishedSince:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		},
		Page:  1,
		Limit: 500,
	})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.True(t, page.HasMore())
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, "1", page.Records[0].NativeID())
	assert.Equal(t, formatter.SourcePetfinder, page.Records[0].Kind())
	assert.NotEmpty(t, page.Raw)

	q := api.lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"dog"}, q["type"])
	assert.Equal(t, []string{"Austin, TX"}, q["location"])
	assert.Equal(t, []string{"senior"}, q["age"])
	assert.Equal(t, []string{"xlarge"}, q["size"])
	assert.Equal(t, []string{"true"}, q["good_with_children"])
	assert.Equal(t, []string{"true"}, q["special_needs"])
	assert.Equal(t, []string{"50"}, q["limit"])
	assert.Equal(t, []string{"2024-05-01T00:00:00Z"}, q["after"])
	assert.EqualValues(t, 1, api.tokens.Load())
}

func TestGetByID(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &fakeAPI{})
	rec, err := c.GetByID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "1", rec.NativeID())

	_, err = c.GetByID(context.Background(), "2")
	assert.ErrorIs(t, err, provider.ErrNotFound)

	_, err = c.GetByID(context.Background(), "not-a-number")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestListBreedsSkipsBlank(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &fakeAPI{})
	breeds, err := c.ListBreeds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Beagle", "Plott Hound"}, breeds)
}

func TestUnauthorizedRefreshesOnce(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{rejectTokens: 1}
	c := newTestClient(t, api)

	_, err := c.GetByID(context.Background(), "1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, api.tokens.Load())
}

func TestRepeatedUnauthorizedIsUnavailable(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{rejectTokens: 10}
	c := newTestClient(t, api)

	_, err := c.ListBreeds(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrUnavailable)
	assert.EqualValues(t, 2, api.tokens.Load())
}
