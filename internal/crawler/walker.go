// Package crawler walks the catalog's paginated listing and feeds every
// extracted record to the catalog store.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/fetcher"
	"github.com/IshaanNene/kitmanual/internal/observability"
	"github.com/IshaanNene/kitmanual/internal/parser"
	"github.com/IshaanNene/kitmanual/internal/types"
)

// StopReason says why a crawl ended.
type StopReason string

const (
	// StopEmptyPage: a page had no extractable items.
	StopEmptyPage StopReason = "empty_page"
	// StopRedirect: the server answered a different page than requested,
	// which it does past the last page.
	StopRedirect StopReason = "redirect"
	// StopMaxPages: the configured page cap was reached.
	StopMaxPages StopReason = "max_pages"
	// StopLastPage: the sweep covered every page the pager advertised.
	StopLastPage StopReason = "last_page"
)

// PageError is returned when a listing page cannot be fetched or parsed.
type PageError struct {
	Page int
	URL  string
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("listing page %d (%s): %v", e.Page, e.URL, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Result summarizes a crawl.
type Result struct {
	PagesVisited   int
	PagesSkipped   int
	ItemsExtracted int
	Upserted       int
	Duplicates     int
	// LastPage is the highest page whose records were ingested.
	LastPage   int
	StopReason StopReason
	// Records holds each unique record once, in discovery order.
	Records  []catalog.Record
	Duration time.Duration
}

// IDs returns the ids of the crawled records.
func (r *Result) IDs() []int64 {
	ids := make([]int64, len(r.Records))
	for i := range r.Records {
		ids[i] = r.Records[i].ID
	}
	return ids
}

// Walker fetches listing pages one at a time, starting at page 1.
type Walker struct {
	fetcher  fetcher.Fetcher
	parser   parser.ListingParser
	store    catalog.Store
	site     *catalog.Site
	maxPages int
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewWalker creates a sequential listing walker.
func NewWalker(f fetcher.Fetcher, p parser.ListingParser, store catalog.Store, site *catalog.Site, maxPages int, metrics *observability.Metrics, logger *slog.Logger) *Walker {
	return &Walker{
		fetcher:  f,
		parser:   p,
		store:    store,
		site:     site,
		maxPages: maxPages,
		metrics:  metrics,
		logger:   logger.With("component", "walker"),
	}
}

// Walk crawls until a page is empty, the server redirects past the last
// page, or the page cap is hit. A page's records are persisted before the
// next page is requested. Fetch and persistence failures end the walk and
// are returned together with the partial result.
func (w *Walker) Walk(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}
	seen := NewDeduplicator(256)
	defer func() { res.Duration = time.Since(start) }()

	for page := 1; ; page++ {
		if page > w.maxPages {
			res.StopReason = StopMaxPages
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		resp, err := w.fetchPage(ctx, page)
		if err != nil {
			return res, err
		}
		res.PagesVisited++
		w.metrics.PagesVisited.Add(1)

		if actual := parser.PageParam(resp.FinalURL); actual != page {
			w.logger.Info("listing redirected past the last page",
				"requested", page,
				"actual", actual,
				"final_url", resp.FinalURL,
			)
			res.StopReason = StopRedirect
			break
		}

		recs, err := w.parser.ParseListing(resp)
		if err != nil {
			return res, &PageError{Page: page, URL: resp.FinalURL, Err: err}
		}
		if len(recs) == 0 {
			w.logger.Info("listing page is empty", "page", page)
			res.StopReason = StopEmptyPage
			break
		}

		ingested, dups, err := ingest(ctx, w.store, seen, recs, w.metrics)
		res.ItemsExtracted += len(recs)
		res.Duplicates += dups
		res.Upserted += len(ingested)
		res.Records = append(res.Records, ingested...)
		if err != nil {
			return res, fmt.Errorf("page %d: %w", page, err)
		}
		res.LastPage = page

		w.logger.Debug("listing page ingested",
			"page", page,
			"items", len(recs),
			"new", len(ingested),
		)
	}

	w.logger.Info("walk finished",
		"pages", res.PagesVisited,
		"items", res.ItemsExtracted,
		"upserted", res.Upserted,
		"stop", res.StopReason,
	)
	return res, nil
}

func (w *Walker) fetchPage(ctx context.Context, page int) (*types.Response, error) {
	return fetchListing(ctx, w.fetcher, w.site, page)
}

func fetchListing(ctx context.Context, f fetcher.Fetcher, site *catalog.Site, page int) (*types.Response, error) {
	rawURL := site.ListingURL(page)
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, &PageError{Page: page, URL: rawURL, Err: err}
	}
	req.Tag = types.TagListing
	req.Page = page

	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return nil, &PageError{Page: page, URL: rawURL, Err: err}
	}
	return resp, nil
}

// ingest upserts records not seen earlier in the run and returns them.
// Duplicates are counted but not written again.
func ingest(ctx context.Context, store catalog.Store, seen *Deduplicator, recs []catalog.Record, metrics *observability.Metrics) ([]catalog.Record, int, error) {
	metrics.ItemsExtracted.Add(int64(len(recs)))
	fresh := make([]catalog.Record, 0, len(recs))
	dups := 0
	for i := range recs {
		if !seen.MarkSeen(recs[i].ID) {
			dups++
			metrics.Duplicates.Add(1)
			continue
		}
		if err := store.Upsert(ctx, &recs[i]); err != nil {
			return fresh, dups, fmt.Errorf("upsert manual %d: %w", recs[i].ID, err)
		}
		metrics.RecordsUpserted.Add(1)
		fresh = append(fresh, recs[i])
	}
	return fresh, dups, nil
}
