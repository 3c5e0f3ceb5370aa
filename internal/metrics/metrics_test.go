package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := providerRequestsTotal
	Init()
	if providerRequestsTotal != first {
		t.Fatal("Init() replaced collectors on second call")
	}
}

func TestObserveSearch(t *testing.T) {
	Init()
	before := testutil.ToFloat64(searchSourcesTotal.WithLabelValues("petfinder"))
	ObserveSearch("ok", []string{"store", "petfinder"})
	if got := testutil.ToFloat64(searchSourcesTotal.WithLabelValues("petfinder")); got != before+1 {
		t.Errorf("expected petfinder source count %f, got %f", before+1, got)
	}
}

func TestObserveSyncRecordsIgnoresZero(t *testing.T) {
	Init()
	before := testutil.ToFloat64(syncRecordsTotal.WithLabelValues("store-test", "added"))
	ObserveSyncRecords("store-test", "added", 0)
	ObserveSyncRecords("store-test", "added", 3)
	if got := testutil.ToFloat64(syncRecordsTotal.WithLabelValues("store-test", "added")); got != before+3 {
		t.Errorf("expected %f, got %f", before+3, got)
	}
}

func TestSyncInProgressGauge(t *testing.T) {
	SetSyncInProgress(true)
	if got := testutil.ToFloat64(syncInProgress); got != 1 {
		t.Errorf("expected gauge 1, got %f", got)
	}
	SetSyncInProgress(false)
	if got := testutil.ToFloat64(syncInProgress); got != 0 {
		t.Errorf("expected gauge 0, got %f", got)
	}
}

func TestObserveProviderRequest(t *testing.T) {
	ObserveProviderRequest("metrics-test", "ok", 20*time.Millisecond)
	if got := testutil.ToFloat64(providerRequestsTotal.WithLabelValues("metrics-test", "ok")); got != 1 {
		t.Errorf("expected 1 request, got %f", got)
	}
}

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/middleware-ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/middleware-teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, path := range []string{"/middleware-ok", "/middleware-teapot"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418")); val != 1 {
		t.Errorf("Expected httpRequestsTotal for GET 418 to be 1, got %f", val)
	}
	if val := testutil.CollectAndCount(httpRequestDurationSeconds); val <= 0 {
		t.Errorf("Expected httpRequestDurationSeconds to be observed, got %d", val)
	}
}
