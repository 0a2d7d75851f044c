package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/catalog/catalogtest"
	"github.com/IshaanNene/kitmanual/internal/config"
	"github.com/IshaanNene/kitmanual/internal/fetcher"
	"github.com/IshaanNene/kitmanual/internal/observability"
	"github.com/IshaanNene/kitmanual/internal/parser"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeCatalog serves listing pages like the real catalog: ?page=N, a
// pager, and optionally a redirect to the last page past the end.
type fakeCatalog struct {
	mu        sync.Mutex
	pages     map[int][]int64
	lastPage  int
	redirect  bool
	fail      map[int]int
	hits      map[int]int
	onRequest func(page int)
}

func newFakeCatalog(pages map[int][]int64, lastPage int) *fakeCatalog {
	return &fakeCatalog{pages: pages, lastPage: lastPage, fail: map[int]int{}, hits: map[int]int{}}
}

func (c *fakeCatalog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		page, _ = strconv.Atoi(v)
	}
	c.mu.Lock()
	c.hits[page]++
	status, failing := c.fail[page]
	hook := c.onRequest
	c.mu.Unlock()

	if hook != nil {
		hook(page)
	}
	if failing {
		http.Error(w, "boom", status)
		return
	}
	if c.redirect && page > c.lastPage {
		http.Redirect(w, r, fmt.Sprintf("/?page=%d", c.lastPage), http.StatusFound)
		return
	}

	var b strings.Builder
	b.WriteString(`<html><body><ul class="manual-list">`)
	for _, id := range c.pages[page] {
		fmt.Fprintf(&b, `<li><a href="/menus/detail/%d"><p class="name-en">HG Kit %d</p><p class="release">2024年11月8日</p></a></li>`, id, id)
	}
	b.WriteString(`</ul><ul class="pagination">`)
	for p := 1; p <= c.lastPage; p++ {
		fmt.Fprintf(&b, `<li><a href="/?page=%d">%d</a></li>`, p, p)
	}
	b.WriteString(`</ul></body></html>`)
	_, _ = w.Write([]byte(b.String()))
}

func (c *fakeCatalog) hitsFor(page int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[page]
}

type harness struct {
	fetcher *fetcher.HTTPFetcher
	parser  *parser.Extractor
	site    *catalog.Site
	cfg     *config.Config
	metrics *observability.Metrics
}

func newHarness(t *testing.T, srv *httptest.Server) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Crawl.Delay = 0
	cfg.Crawl.MaxRetries = 0
	cfg.Crawl.RequestTimeout = 2 * time.Second

	f, err := fetcher.NewHTTPFetcher(cfg, testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	site, err := catalog.NewSite(srv.URL, "/", cfg.Site.DetailPath, cfg.Site.PDFPath)
	require.NoError(t, err)

	return &harness{
		fetcher: f,
		parser:  parser.NewExtractor(site, cfg.Site.Selectors, testLogger),
		site:    site,
		cfg:     cfg,
		metrics: observability.NewMetrics(testLogger),
	}
}

func (h *harness) walker(store catalog.Store, maxPages int) *Walker {
	return NewWalker(h.fetcher, h.parser, store, h.site, maxPages, h.metrics, testLogger)
}

func (h *harness) sweeper(store catalog.Store, maxPages int) *Sweeper {
	return NewSweeper(h.fetcher, h.parser, store, h.site, h.cfg.Site.Selectors.Pager, maxPages, 3, h.metrics, testLogger)
}

func TestWalkStopsOnEmptyPage(t *testing.T) {
	cat := newFakeCatalog(map[int][]int64{1: {101, 102}, 2: {201}}, 3)
	srv := httptest.NewServer(cat)
	defer srv.Close()

	store := catalogtest.NewMemoryStore()
	res, err := newHarness(t, srv).walker(store, 300).Walk(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopEmptyPage, res.StopReason)
	assert.Equal(t, 3, res.PagesVisited)
	assert.Equal(t, 2, res.LastPage)
	assert.Equal(t, 3, res.Upserted)
	assert.Equal(t, []int64{101, 102, 201}, res.IDs())
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, 0, cat.hitsFor(4))
}

func TestWalkStopsOnRedirect(t *testing.T) {
	cat := newFakeCatalog(map[int][]int64{1: {1}, 2: {2}, 3: {3}, 4: {4, 5}}, 4)
	cat.redirect = true
	srv := httptest.NewServer(cat)
	defer srv.Close()

	store := catalogtest.NewMemoryStore()
	res, err := newHarness(t, srv).walker(store, 300).Walk(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopRedirect, res.StopReason)
	assert.Equal(t, 5, res.PagesVisited)
	assert.Equal(t, 4, res.LastPage)
	// page 5 echoed page 4; its items are not counted again
	assert.Equal(t, 5, res.ItemsExtracted)
	assert.Equal(t, 0, res.Duplicates)
	assert.Equal(t, 5, store.Upserts)
	assert.Equal(t, 0, cat.hitsFor(6))
}

func TestWalkStopsAtMaxPages(t *testing.T) {
	cat := newFakeCatalog(map[int][]int64{1: {1}, 2: {2}, 3: {3}}, 3)
	srv := httptest.NewServer(cat)
	defer srv.Close()

	res, err := newHarness(t, srv).walker(catalogtest.NewMemoryStore(), 2).Walk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopMaxPages, res.StopReason)
	assert.Equal(t, 2, res.PagesVisited)
	assert.Equal(t, 0, cat.hitsFor(3))
}

func TestWalkFetchFailureIsFatal(t *testing.T) {
	cat := newFakeCatalog(map[int][]int64{1: {1}, 2: {2}, 3: {3}}, 3)
	cat.fail[2] = http.StatusInternalServerError
	srv := httptest.NewServer(cat)
	defer srv.Close()

	store := catalogtest.NewMemoryStore()
	res, err := newHarness(t, srv).walker(store, 300).Walk(context.Background())
	require.Error(t, err)

	var pe *PageError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Page)
	assert.Equal(t, 1, res.Upserted, "page 1 stays persisted")
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 0, cat.hitsFor(3))
}

func TestWalkPersistenceFailureHalts(t *testing.T) {
	cat := newFakeCatalog(map[int][]int64{1: {1, 2}, 2: {3}}, 2)
	srv := httptest.NewServer(cat)
	defer srv.Close()

	store := catalogtest.NewMemoryStore()
	store.UpsertErr = catalogtest.ErrInjected
	_, err := newHarness(t, srv).walker(store, 300).Walk(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, catalogtest.ErrInjected)
	assert.Equal(t, 0, cat.hitsFor(2))
}

func TestWalkDeduplicatesAcrossPages(t *testing.T) {
	cat := newFakeCatalog(map[int][]int64{1: {1, 2}, 2: {2, 3}}, 2)
	srv := httptest.NewServer(cat)
	defer srv.Close()

	store := catalogtest.NewMemoryStore()
	res, err := newHarness(t, srv).walker(store, 300).Walk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.ItemsExtracted)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 3, res.Upserted)
	assert.Equal(t, 3, store.Upserts)
}

func TestWalkPersistsPageBeforeNextFetch(t *testing.T) {
	cat := newFakeCatalog(map[int][]int64{1: {1, 2}, 2: {3}}, 2)
	store := catalogtest.NewMemoryStore()
	var storedBeforePage2 int
	cat.onRequest = func(page int) {
		if page == 2 {
			storedBeforePage2 = store.Len()
		}
	}
	srv := httptest.NewServer(cat)
	defer srv.Close()

	_, err := newHarness(t, srv).walker(store, 300).Walk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, storedBeforePage2)
}

func TestWalkIsIdempotent(t *testing.T) {
	cat := newFakeCatalog(map[int][]int64{1: {1, 2}}, 1)
	srv := httptest.NewServer(cat)
	defer srv.Close()

	h := newHarness(t, srv)
	store := catalogtest.NewMemoryStore()
	_, err := h.walker(store, 300).Walk(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.SetLocalPath(context.Background(), 1, "manuals/1-HG_Kit_1.pdf"))

	_, err = h.walker(store, 300).Walk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	rec, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, rec.LocalPath, "re-crawl keeps the local path")
	assert.Equal(t, "HG", rec.GradeCode())
}

func TestSweepSkipsFailedPages(t *testing.T) {
	cat := newFakeCatalog(map[int][]int64{1: {1}, 2: {2}, 3: {3}, 4: {4}, 5: {5}}, 5)
	cat.fail[3] = http.StatusBadGateway
	srv := httptest.NewServer(cat)
	defer srv.Close()

	store := catalogtest.NewMemoryStore()
	h := newHarness(t, srv)
	res, err := h.sweeper(store, 300).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopLastPage, res.StopReason)
	assert.Equal(t, 1, res.PagesSkipped)
	assert.Equal(t, []int64{1, 2, 4, 5}, res.IDs())
	assert.Equal(t, 5, res.LastPage)
	assert.Equal(t, 4, store.Len())
	assert.Equal(t, int64(1), h.metrics.PagesSkipped.Load())
}

func TestSweepCapsAtMaxPages(t *testing.T) {
	pages := map[int][]int64{}
	for p := 1; p <= 10; p++ {
		pages[p] = []int64{int64(p)}
	}
	cat := newFakeCatalog(pages, 10)
	srv := httptest.NewServer(cat)
	defer srv.Close()

	res, err := newHarness(t, srv).sweeper(catalogtest.NewMemoryStore(), 3).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopMaxPages, res.StopReason)
	assert.Equal(t, 3, res.PagesVisited)
	assert.Equal(t, 0, cat.hitsFor(4))
}

func TestSweepFirstPageFailureIsFatal(t *testing.T) {
	cat := newFakeCatalog(map[int][]int64{1: {1}}, 1)
	cat.fail[1] = http.StatusNotFound
	srv := httptest.NewServer(cat)
	defer srv.Close()

	_, err := newHarness(t, srv).sweeper(catalogtest.NewMemoryStore(), 300).Sweep(context.Background())
	var pe *PageError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Page)
}

func TestSweepPersistenceFailureAborts(t *testing.T) {
	cat := newFakeCatalog(map[int][]int64{1: {1}, 2: {2}}, 2)
	srv := httptest.NewServer(cat)
	defer srv.Close()

	store := catalogtest.NewMemoryStore()
	store.UpsertErr = catalogtest.ErrInjected
	_, err := newHarness(t, srv).sweeper(store, 300).Sweep(context.Background())
	assert.ErrorIs(t, err, catalogtest.ErrInjected)
}

func TestDeduplicator(t *testing.T) {
	d := NewDeduplicator(4)
	assert.True(t, d.MarkSeen(7))
	assert.False(t, d.MarkSeen(7))
	assert.True(t, d.MarkSeen(8))
}
