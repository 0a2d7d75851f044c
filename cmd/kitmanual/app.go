package main

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/config"
	"github.com/IshaanNene/kitmanual/internal/fetcher"
	"github.com/IshaanNene/kitmanual/internal/media"
	"github.com/IshaanNene/kitmanual/internal/observability"
	"github.com/IshaanNene/kitmanual/internal/parser"
	"github.com/IshaanNene/kitmanual/internal/storage"
)

// app holds what every command needs: validated config, a run-scoped
// logger, metrics and the catalog store.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	store   catalog.Store
	runID   string
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cmd, cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	runID := uuid.NewString()
	logger := setupLogger(cfg.Logging).With("run_id", runID, "command", cmd.Name())

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		metrics.StartServer(cmd.Context(), cfg.Metrics.Port, cfg.Metrics.Path)
	}

	store, err := storage.Open(cmd.Context(), cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		store:   store,
		runID:   runID,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
}

func (a *app) site() (*catalog.Site, error) {
	s := a.cfg.Site
	return catalog.NewSite(s.BaseURL, s.ListingPath, s.DetailPath, s.PDFPath)
}

func (a *app) extractor(site *catalog.Site) *parser.Extractor {
	return parser.NewExtractor(site, a.cfg.Site.Selectors, a.logger)
}

func (a *app) fetcher() (*fetcher.HTTPFetcher, error) {
	f, err := fetcher.NewHTTPFetcher(a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	return f, nil
}

func (a *app) resolver() (*media.Resolver, error) {
	return media.NewResolver(a.cfg.Download.StorageRoot)
}

func (a *app) downloader(files fetcher.FileFetcher) (*media.Downloader, error) {
	paths, err := a.resolver()
	if err != nil {
		return nil, err
	}
	opts := media.Options{
		Subdir:      a.cfg.Download.Subdir,
		Concurrency: a.cfg.Download.Concurrency,
	}
	if a.cfg.Download.ValidatePDF {
		opts.Check = media.ValidatePDF
	}
	return media.NewDownloader(a.store, files, paths, opts, a.metrics, a.logger), nil
}

// downloadQuery is the record selection configured for downloads.
func (a *app) downloadQuery() catalog.Query {
	d := a.cfg.Download
	return catalog.Query{
		OnlyMissing: d.OnlyMissing,
		Grades:      d.Grades,
		IDs:         d.IDs,
		Limit:       d.Limit,
	}
}
