package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/fetcher"
	"github.com/IshaanNene/kitmanual/internal/observability"
	"github.com/IshaanNene/kitmanual/internal/parser"
)

// Sweeper crawls every page the pager advertises with bounded
// concurrency. Unlike Walker it tolerates failed pages: they are logged,
// counted and skipped so one bad page does not cost the whole sweep.
type Sweeper struct {
	fetcher     fetcher.Fetcher
	parser      parser.ListingParser
	store       catalog.Store
	site        *catalog.Site
	pagerXPath  string
	maxPages    int
	concurrency int
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewSweeper creates a concurrent listing sweeper.
func NewSweeper(f fetcher.Fetcher, p parser.ListingParser, store catalog.Store, site *catalog.Site, pagerXPath string, maxPages, concurrency int, metrics *observability.Metrics, logger *slog.Logger) *Sweeper {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sweeper{
		fetcher:     f,
		parser:      p,
		store:       store,
		site:        site,
		pagerXPath:  pagerXPath,
		maxPages:    maxPages,
		concurrency: concurrency,
		metrics:     metrics,
		logger:      logger.With("component", "sweeper"),
	}
}

// Sweep fetches page 1, reads the last page number from the pager and
// then fetches the remaining pages concurrently. Page 1 must succeed;
// later fetch failures are skipped. Persistence failures abort the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{StopReason: StopLastPage}
	seen := NewDeduplicator(256)
	defer func() { res.Duration = time.Since(start) }()

	first, err := fetchListing(ctx, s.fetcher, s.site, 1)
	if err != nil {
		return res, err
	}
	res.PagesVisited++
	s.metrics.PagesVisited.Add(1)

	last, err := parser.LastPage(first.Body, s.pagerXPath)
	if err != nil {
		s.logger.Warn("pager unreadable, sweeping page 1 only", "error", err)
	}
	if last < 1 {
		last = 1
	}
	if last > s.maxPages {
		last = s.maxPages
		res.StopReason = StopMaxPages
	}
	s.logger.Info("sweep starting", "last_page", last, "concurrency", s.concurrency)

	// Ingested records are collected per page and flattened in page order.
	pages := make([][]catalog.Record, last+1)
	var mu sync.Mutex

	recs, err := s.parser.ParseListing(first)
	if err != nil {
		return res, &PageError{Page: 1, URL: first.FinalURL, Err: err}
	}
	ingested, dups, err := ingest(ctx, s.store, seen, recs, s.metrics)
	res.ItemsExtracted += len(recs)
	res.Duplicates += dups
	res.Upserted += len(ingested)
	pages[1] = ingested
	if err != nil {
		res.Records = ingested
		return res, fmt.Errorf("page 1: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for page := 2; page <= last; page++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			resp, err := fetchListing(gctx, s.fetcher, s.site, page)
			if err != nil {
				if errors.Is(err, context.Canceled) && gctx.Err() != nil {
					return nil
				}
				s.logger.Warn("skipping listing page", "page", page, "error", err)
				s.metrics.PagesSkipped.Add(1)
				mu.Lock()
				res.PagesSkipped++
				mu.Unlock()
				return nil
			}
			s.metrics.PagesVisited.Add(1)

			if actual := parser.PageParam(resp.FinalURL); actual != page {
				s.logger.Debug("ignoring redirected listing page", "requested", page, "actual", actual)
				mu.Lock()
				res.PagesVisited++
				mu.Unlock()
				return nil
			}

			recs, err := s.parser.ParseListing(resp)
			if err != nil {
				s.logger.Warn("skipping unparsable listing page", "page", page, "error", err)
				s.metrics.PagesSkipped.Add(1)
				mu.Lock()
				res.PagesVisited++
				res.PagesSkipped++
				mu.Unlock()
				return nil
			}

			ingested, dups, err := ingest(gctx, s.store, seen, recs, s.metrics)

			mu.Lock()
			res.PagesVisited++
			res.ItemsExtracted += len(recs)
			res.Duplicates += dups
			res.Upserted += len(ingested)
			pages[page] = ingested
			mu.Unlock()

			if err != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	for page, recs := range pages {
		if len(recs) > 0 {
			res.Records = append(res.Records, recs...)
			res.LastPage = page
		}
	}

	s.logger.Info("sweep finished",
		"pages", res.PagesVisited,
		"skipped", res.PagesSkipped,
		"items", res.ItemsExtracted,
		"upserted", res.Upserted,
		"stop", res.StopReason,
	)
	return res, err
}
