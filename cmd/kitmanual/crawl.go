package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/crawler"
	"github.com/IshaanNene/kitmanual/internal/fetcher"
	"github.com/IshaanNene/kitmanual/internal/pipeline"
)

var inlineDownload bool

// crawlCmd creates the "crawl" subcommand.
func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Walk the catalog listing and upsert every manual",
		Long: `Walk the listing from page 1, one page at a time, until a page is empty,
the site redirects past the last page, or --max-pages is reached.
A failed page fetch stops the crawl.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, false)
		},
	}
	addCrawlFlags(cmd)
	addDownloadFlags(cmd)
	cmd.Flags().BoolVar(&inlineDownload, "download", false, "download PDFs for the crawled manuals afterwards")
	return cmd
}

// sweepCmd creates the "sweep" subcommand.
func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Crawl every advertised listing page concurrently",
		Long: `Read the last page number from the pager on page 1, then fetch every page
concurrently. Pages that fail to load are logged and skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, true)
		},
	}
	addCrawlFlags(cmd)
	addDownloadFlags(cmd)
	cmd.Flags().BoolVar(&inlineDownload, "download", false, "download PDFs for the crawled manuals afterwards")
	return cmd
}

func runCrawl(cmd *cobra.Command, sweep bool) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	site, err := a.site()
	if err != nil {
		return err
	}
	f, err := a.fetcher()
	if err != nil {
		return err
	}
	defer f.Close()

	a.logger.Info("starting crawl",
		"base_url", a.cfg.Site.BaseURL,
		"max_pages", a.cfg.Crawl.MaxPages,
		"store", a.store.Name(),
		"sweep", sweep,
	)

	var res *crawler.Result
	if sweep {
		s := crawler.NewSweeper(f, a.extractor(site), a.store, site, a.cfg.Site.Selectors.Pager,
			a.cfg.Crawl.MaxPages, a.cfg.Crawl.Concurrency, a.metrics, a.logger)
		res, err = s.Sweep(ctx)
	} else {
		w := crawler.NewWalker(f, a.extractor(site), a.store, site, a.cfg.Crawl.MaxPages, a.metrics, a.logger)
		res, err = w.Walk(ctx)
	}
	printCrawlSummary(res, err)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	if !inlineDownload {
		return nil
	}
	return downloadCrawled(ctx, a, f, res)
}

// downloadCrawled downloads the records found by a crawl. Records are
// re-read from the store so their local paths are current.
func downloadCrawled(ctx context.Context, a *app, f fetcher.FileFetcher, res *crawler.Result) error {
	if len(res.Records) == 0 {
		return nil
	}
	recs, err := a.store.List(ctx, catalog.Query{IDs: res.IDs()})
	if err != nil {
		return fmt.Errorf("reload crawled records: %w", err)
	}
	recs, err = pipeline.FromQuery(a.downloadQuery(), a.logger).Run(recs)
	if err != nil {
		return err
	}

	d, err := a.downloader(f)
	if err != nil {
		return err
	}
	_, summary, err := d.Run(ctx, recs)
	printDownloadSummary(summary, err)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	return nil
}
