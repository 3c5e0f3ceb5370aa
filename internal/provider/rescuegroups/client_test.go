package rescuegroups

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
	"github.com/JakeFAU/rescue-radar/internal/provider"
)

const searchResponse = `{
  "meta": {"count": 3, "pageReturned": 2, "pages": 2},
  "data": [
    {"type": "animals", "id": "11", "attributes": {"name": "Pepper"},
     "relationships": {"pictures": {"data": [{"type": "pictures", "id": "p1"}]}}},
    {"type": "animals", "id": "12", "attributes": {"name": "Salt"}}
  ],
  "included": [
    {"type": "pictures", "id": "p1", "attributes": {"order": 1, "large": {"url": "pepper.jpg"}}}
  ]
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, APIKey: "key-123"}, srv.Client(), nil, nil)
	require.NoError(t, err)
	return c
}

func TestSearchSendsFiltersAndDecodesSideTable(t *testing.T) {
	t.Parallel()

	bodies := make(chan searchBody, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v5/public/animals/search/available/dogs/", r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get("Authorization"))
		assert.Equal(t, contentType, r.Header.Get("Content-Type"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, includes, r.URL.Query().Get("include"))
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var body searchBody
		assert.NoError(t, json.Unmarshal(raw, &body))
		bodies <- body
		_, _ = w.Write([]byte(searchResponse))
	})

	page, err := c.Search(context.Background(), provider.Query{
		Filter: animal.Filter{
			Location:     animal.Location{Postcode: "78028"},
			Size:         animal.SizeExtraLarge,
			GoodWithCats: true,
			SpecialNeeds: true,
		},
		Page: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.False(t, page.HasMore())
	require.Len(t, page.Records, 2)

	pepper, ok := page.Records[0].(formatter.RescueGroupsRaw)
	require.True(t, ok)
	assert.Equal(t, "11", pepper.NativeID())
	assert.Contains(t, pepper.Included, formatter.ResourceRef{Type: "pictures", ID: "p1"})

	got := formatter.New(formatter.Config{}).Normalize(pepper)
	assert.Equal(t, []string{"pepper.jpg"}, got.Photos)

	body := <-bodies
	require.NotNil(t, body.Data.FilterRadius)
	assert.Equal(t, "78028", body.Data.FilterRadius.Postalcode)
	assert.Equal(t, DefaultRadiusMiles, body.Data.FilterRadius.Miles)
	fields := map[string]any{}
	for _, f := range body.Data.Filters {
		fields[f.FieldName] = f.Criteria
	}
	assert.Equal(t, map[string]any{
		"animals.sizeGroup":      "X-Large",
		"animals.isCatsOk":       true,
		"animals.isSpecialNeeds": true,
	}, fields)
}

func TestGetByIDAcceptsSingleResource(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/public/animals/11":
			_, _ = w.Write([]byte(`{"data": {"type": "animals", "id": "11", "attributes": {"name": "Pepper"}}}`))
		case "/v5/public/animals/12":
			_, _ = w.Write([]byte(`{"data": []}`))
		default:
			http.NotFound(w, r)
		}
	})

	rec, err := c.GetByID(context.Background(), "11")
	require.NoError(t, err)
	assert.Equal(t, "11", rec.NativeID())

	_, err = c.GetByID(context.Background(), "12")
	assert.ErrorIs(t, err, provider.ErrNotFound)

	_, err = c.GetByID(context.Background(), "13")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestListBreedsFollowsPages(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = w.Write([]byte(`{"meta": {"pages": 2}, "data": [{"attributes": {"name": "Beagle"}}]}`))
		case "2":
			_, _ = w.Write([]byte(`{"meta": {"pages": 2}, "data": [{"attributes": {"name": "Catahoula Leopard Dog"}}]}`))
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	})

	breeds, err := c.ListBreeds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Beagle", "Catahoula Leopard Dog"}, breeds)
}

func TestServerErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := c.Search(context.Background(), provider.Query{})
	assert.ErrorIs(t, err, provider.ErrUnavailable)
}
