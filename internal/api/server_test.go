package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medifacil/backend/internal/catalog"
	"github.com/medifacil/backend/internal/config"
	"github.com/medifacil/backend/internal/crawler"
	"github.com/medifacil/backend/internal/runner"
	"github.com/medifacil/backend/internal/search"
	"github.com/medifacil/backend/internal/store/memory"
)

type fakeRunner struct {
	gotNames []string
	report   runner.Report
	err      error
}

func (f *fakeRunner) RunSites(_ context.Context, names []string) (runner.Report, error) {
	f.gotNames = names
	return f.report, f.err
}

func testConfig() config.Config {
	cfg, _ := config.Load("")
	return cfg
}

func newTestServer(t *testing.T, crawls CrawlRunner) (*Server, *memory.CatalogStore) {
	t.Helper()
	cat := memory.NewCatalogStore()
	cat.SeedPharmacy(catalog.Pharmacy{
		Name:     "Fybeca",
		Location: "Quito, Ecuador",
		LinkLogo: "https://www.fybeca.com/logo.png",
		Link:     "https://www.fybeca.com",
	})
	engine := search.New(cat, zap.NewNop())
	if crawls == nil {
		crawls = &fakeRunner{}
	}
	return NewServer(engine, crawls, testConfig(), zap.NewNop()), cat
}

func seedListing(t *testing.T, cat *memory.CatalogStore, name string, price float64) {
	t.Helper()
	err := cat.UpsertListing(context.Background(), catalog.Listing{
		URL:        "https://www.fybeca.com/p/" + strings.ReplaceAll(strings.ToLower(name), " ", "-"),
		Pharma:     "Fybeca",
		Name:       name,
		Price:      &price,
		IngestDate: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSearchReturnsPharmacyEntries(t *testing.T) {
	srv, cat := newTestServer(t, nil)
	seedListing(t, cat, "Paracetamol 500 mg x20 tabletas", 4.80)

	req := httptest.NewRequest(http.MethodGet, "/v1/search?name=paracetamol,ibuprofeno", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var results []search.PharmacyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)

	entry := results[0]
	assert.Equal(t, "Fybeca", entry.Name)
	assert.Equal(t, "Quito, Ecuador", entry.Location)
	require.Len(t, entry.Products, 2)

	assert.True(t, entry.Products[0].Found)
	require.NotNil(t, entry.Products[0].Price)
	assert.InDelta(t, 0.24, *entry.Products[0].Price, 0.001)

	assert.False(t, entry.Products[1].Found)
	assert.Equal(t, "ibuprofeno", entry.Products[1].Name)
	assert.Nil(t, entry.Products[1].Price)
}

func TestSearchWithoutMatchesReturnsEmptyList(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/search?name=loratadina", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestSearchRequiresName(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, target := range []string{"/v1/search", "/v1/search?name=", "/v1/search?name=%20,%20"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestCrawlRunsRequestedSites(t *testing.T) {
	fake := &fakeRunner{report: runner.Report{
		RunID:     uuid.New(),
		Summaries: []crawler.Summary{{Site: "fybeca", PagesFetched: 5, ItemsIngested: 3}},
	}}
	srv, _ := newTestServer(t, fake)

	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", strings.NewReader(`{"sites":["fybeca"]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"fybeca"}, fake.gotNames)

	var report runner.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Summaries, 1)
	assert.Equal(t, int64(3), report.Summaries[0].ItemsIngested)
}

func TestCrawlRejectsUnknownSite(t *testing.T) {
	fake := &fakeRunner{}
	srv, _ := newTestServer(t, fake)

	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", strings.NewReader(`{"sites":["walgreens"]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, fake.gotNames)
}

func TestCrawlEmptyBodyCrawlsAllSites(t *testing.T) {
	fake := &fakeRunner{}
	srv, _ := newTestServer(t, fake)

	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fake.gotNames)
}

func TestAPIKeyGuardsV1Routes(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"

	cat := memory.NewCatalogStore()
	engine := search.New(cat, zap.NewNop())
	srv := NewServer(engine, &fakeRunner{}, cfg, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/search?name=aspirina", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/search?name=aspirina", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/search?name=aspirina&api_key=secret", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Probes stay open without a key.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	srv.router.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
