package crawler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medifacil/backend/internal/archive"
	archivemem "github.com/medifacil/backend/internal/archive/memory"
	"github.com/medifacil/backend/internal/catalog"
	"github.com/medifacil/backend/internal/crawler"
	"github.com/medifacil/backend/internal/hash/sha256"
	"github.com/medifacil/backend/internal/progress"
	"github.com/medifacil/backend/internal/sites"
	memstore "github.com/medifacil/backend/internal/store/memory"
)

// fixtureServer serves a two-page catalog linking to three product pages.
func fixtureServer(t *testing.T) *httptest.Server {
	t.Helper()

	products := map[string][2]string{
		"/product/1": {"Aspirina 100mg x20 tabletas", "$4.80"},
		"/product/2": {"Paracetamol 500mg", "$2.50"},
		"/product/3": {"Vitamina C 1g", "$6.00"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/catalog", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `<html><body>
				<a href="/product/1">Aspirina</a>
				<a href="/product/2">Paracetamol</a>
				<a href="/catalog?page=2">next</a>
			</body></html>`)
		case "2":
			fmt.Fprint(w, `<html><body>
				<a href="/product/3">Vitamina C</a>
				<a href="/product/1">Aspirina otra vez</a>
				<a href="mailto:soporte@testpharm.ec">contacto</a>
			</body></html>`)
		default:
			http.NotFound(w, r)
		}
	})
	for path, fields := range products {
		name, price := fields[0], fields[1]
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, `<html><body>
				<h1 class="name">%s</h1>
				<span class="price">%s</span>
				<img class="photo" src="/img/x.webp"/>
			</body></html>`, name, price)
		})
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testSite(t *testing.T, baseURL string) sites.Site {
	t.Helper()

	u, err := url.Parse(baseURL)
	require.NoError(t, err)

	return sites.Site{
		Name:          "testpharm",
		Pharma:        "Testpharm",
		BaseURL:       baseURL,
		AllowedDomain: u.Hostname(),
		Seeds:         []string{baseURL + "/catalog?page=1"},
		ItemPattern:   regexp.MustCompile(`/product/\d+$`),
		PagePattern:   regexp.MustCompile(`/catalog`),
		Extract: func(doc *goquery.Document, pageURL string) (catalog.RawListing, error) {
			name := strings.TrimSpace(doc.Find("h1.name").Text())
			if name == "" {
				return catalog.RawListing{}, catalog.ErrMissingName
			}
			img, _ := doc.Find("img.photo").Attr("src")
			return catalog.RawListing{
				URL:       pageURL,
				Pharma:    "Testpharm",
				Name:      name,
				PriceText: strings.TrimSpace(doc.Find("span.price").Text()),
				ImageURL:  img,
			}, nil
		},
	}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) countStage(stage progress.Stage) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evt := range r.events {
		if evt.Stage == stage {
			n++
		}
	}
	return n
}

func TestCrawlerIngestsProductPages(t *testing.T) {
	server := fixtureServer(t)
	site := testSite(t, server.URL)
	cat := memstore.NewCatalogStore()
	blobs := archivemem.NewBlobStore()
	emitter := &recordingEmitter{}

	c := crawler.New(site, crawler.Config{
		UserAgent:   "medifacil-test",
		Parallelism: 2,
	}, cat, nil,
		crawler.WithArchiver(archive.New(blobs, sha256.New(), "pages", nil)),
		crawler.WithEmitter(emitter),
	)

	summary, err := c.Run(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.ItemsIngested)
	assert.Equal(t, int64(0), summary.ItemsFailed)
	// Two catalog pages plus three product pages.
	assert.Equal(t, int64(5), summary.PagesFetched)
	assert.Equal(t, 3, cat.Len())
	assert.Equal(t, 3, blobs.Len())

	// Pack listings are stored already normalized to their per-unit form.
	listing, ok := cat.Get(server.URL + "/product/1")
	require.True(t, ok)
	assert.Equal(t, "Aspirina 100mg unidad tabletas", listing.Name)
	require.NotNil(t, listing.Price)
	assert.InDelta(t, 0.24, *listing.Price, 1e-9)

	assert.Equal(t, 1, emitter.countStage(progress.StageCrawlStart))
	assert.Equal(t, 1, emitter.countStage(progress.StageCrawlDone))
	assert.Equal(t, 3, emitter.countStage(progress.StageItemIngested))
	assert.Equal(t, 5, emitter.countStage(progress.StagePageFetched))
}

// TestCrawlerRerunIsIdempotent verifies a second run refreshes listings
// without duplicating them.
func TestCrawlerRerunIsIdempotent(t *testing.T) {
	server := fixtureServer(t)
	site := testSite(t, server.URL)
	cat := memstore.NewCatalogStore()

	c := crawler.New(site, crawler.Config{Parallelism: 2}, cat, nil)

	_, err := c.Run(context.Background(), uuid.Nil)
	require.NoError(t, err)
	first, ok := cat.Get(server.URL + "/product/2")
	require.True(t, ok)

	time.Sleep(10 * time.Millisecond)
	_, err = c.Run(context.Background(), uuid.Nil)
	require.NoError(t, err)

	assert.Equal(t, 3, cat.Len())
	second, ok := cat.Get(server.URL + "/product/2")
	require.True(t, ok)
	assert.True(t, second.IngestDate.After(first.IngestDate))
}

func TestCrawlerCanceledContext(t *testing.T) {
	server := fixtureServer(t)
	site := testSite(t, server.URL)
	cat := memstore.NewCatalogStore()

	c := crawler.New(site, crawler.Config{Parallelism: 1}, cat, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Run(ctx, uuid.New())
	require.Error(t, err)
	assert.Equal(t, 0, cat.Len())
}

// TestCrawlerSeedsBypassClassification runs seeds the URL patterns would
// reject or misroute: the bare storefront root and a paginated listing whose
// URL looks like a product page. Both must still feed link discovery.
func TestCrawlerSeedsBypassClassification(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body><a href="/product/8">Hierro</a></body></html>`)
	})
	mux.HandleFunc("/product/0", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/product/9">Zinc</a></body></html>`)
	})
	for _, path := range []string{"/product/8", "/product/9"} {
		name := "Suplemento " + path
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, `<html><body>
				<h1 class="name">%s</h1>
				<span class="price">$3.10</span>
			</body></html>`, name)
		})
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	site := testSite(t, server.URL)
	site.Seeds = []string{server.URL + "/", server.URL + "/product/0"}
	cat := memstore.NewCatalogStore()

	c := crawler.New(site, crawler.Config{Parallelism: 2}, cat, nil)

	summary, err := c.Run(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.Equal(t, int64(2), summary.ItemsIngested)
	assert.Equal(t, int64(0), summary.ItemsFailed)
	assert.Equal(t, 2, cat.Len())

	_, ok := cat.Get(server.URL + "/product/8")
	assert.True(t, ok)
	_, ok = cat.Get(server.URL + "/product/9")
	assert.True(t, ok)
}
