package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/kitmanual/internal/config"
)

var (
	cfgFile string
	verbose bool

	// crawl overrides
	maxPages    int
	concurrency int
	delay       string
	timeout     string
	userAgent   string
	baseURL     string

	// download overrides
	storageRoot         string
	subdir              string
	downloadConcurrency int
	onlyMissing         bool
	limit               int
	grades              []string
	ids                 []int64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kitmanual",
		Short: "kitmanual — model kit manual catalog crawler",
		Long: `kitmanual discovers assembly manuals on a vendor catalog site, keeps their
metadata in a database and downloads the PDFs into a local storage root.

Commands:
  crawl     walk the listing page by page and upsert every manual
  sweep     crawl every advertised page concurrently, skipping failed pages
  download  fetch PDFs for stored manuals (resumable)
  upload    publish downloaded PDFs to Google Cloud Storage
  export    dump the catalog as JSON, JSONL or CSV
  serve     run the read-only lookup API`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(downloadCmd())
	rootCmd.AddCommand(uploadCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kitmanual %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				fmt.Printf("⚠️  %v\n\n", err)
			}
			fmt.Printf("Site:\n")
			fmt.Printf("  Base URL:          %s\n", cfg.Site.BaseURL)
			fmt.Printf("  Listing Path:      %s\n", cfg.Site.ListingPath)
			fmt.Printf("  Detail Path:       %s\n", cfg.Site.DetailPath)
			fmt.Printf("  PDF Path:          %s\n", cfg.Site.PDFPath)
			fmt.Printf("\nCrawl:\n")
			fmt.Printf("  Max Pages:         %d\n", cfg.Crawl.MaxPages)
			fmt.Printf("  Concurrency:       %d\n", cfg.Crawl.Concurrency)
			fmt.Printf("  Delay:             %s\n", cfg.Crawl.Delay)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Crawl.RequestTimeout)
			fmt.Printf("  Max Retries:       %d\n", cfg.Crawl.MaxRetries)
			fmt.Printf("\nDownload:\n")
			fmt.Printf("  Storage Root:      %s\n", cfg.Download.StorageRoot)
			fmt.Printf("  Subdir:            %s\n", cfg.Download.Subdir)
			fmt.Printf("  Concurrency:       %d\n", cfg.Download.Concurrency)
			fmt.Printf("  Only Missing:      %v\n", cfg.Download.OnlyMissing)
			fmt.Printf("  Validate PDF:      %v\n", cfg.Download.ValidatePDF)
			fmt.Printf("  Timeout:           %s\n", cfg.Download.Timeout)
			fmt.Printf("\nDatabase:\n")
			fmt.Printf("  Driver:            %s\n", cfg.Database.Driver)
			fmt.Printf("  DSN:               %s\n", redactDSN(cfg.Database.DSN))
			fmt.Printf("\nUpload:\n")
			fmt.Printf("  Bucket:            %s\n", cfg.Upload.Bucket)
			fmt.Printf("  Prefix:            %s\n", cfg.Upload.Prefix)
			fmt.Printf("\nAPI:\n")
			fmt.Printf("  Addr:              %s\n", cfg.API.Addr)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
	return cmd
}

// setupLogger creates a structured logger.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// addCrawlFlags registers the listing and fetch overrides on cmd.
func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&maxPages, "max-pages", "m", 0, "maximum listing pages to visit")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 0, "concurrent requests")
	cmd.Flags().StringVar(&delay, "delay", "", "delay between requests (e.g. 500ms)")
	cmd.Flags().StringVar(&timeout, "timeout", "", "per-request timeout (e.g. 30s)")
	cmd.Flags().StringVar(&userAgent, "user-agent", "", "custom User-Agent string")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "catalog site origin")
}

// addDownloadFlags registers the download selection overrides on cmd.
func addDownloadFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&storageRoot, "storage-root", "", "directory PDFs are stored under")
	cmd.Flags().StringVar(&subdir, "subdir", "", "subdirectory of the storage root for PDFs")
	cmd.Flags().IntVar(&downloadConcurrency, "download-concurrency", 0, "concurrent downloads")
	cmd.Flags().BoolVar(&onlyMissing, "only-missing", true, "only handle manuals without a recorded local path")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum manuals to handle (0 = all)")
	cmd.Flags().StringSliceVar(&grades, "grade", nil, "only handle these grades (e.g. MG,RG)")
	cmd.Flags().Int64SliceVar(&ids, "id", nil, "only handle these manual ids")
}

// applyCLIOverrides applies command-line flag values to the config. Only
// flags registered on cmd and set by the user are applied.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if maxPages > 0 {
		cfg.Crawl.MaxPages = maxPages
	}
	if concurrency > 0 {
		cfg.Crawl.Concurrency = concurrency
	}
	if delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			cfg.Crawl.Delay = d
		}
	}
	if timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Crawl.RequestTimeout = d
		}
	}
	if userAgent != "" {
		cfg.Crawl.UserAgent = userAgent
	}
	if baseURL != "" {
		cfg.Site.BaseURL = baseURL
	}

	if storageRoot != "" {
		cfg.Download.StorageRoot = storageRoot
	}
	if changed("subdir") {
		cfg.Download.Subdir = subdir
	}
	if downloadConcurrency > 0 {
		cfg.Download.Concurrency = downloadConcurrency
	}
	if changed("only-missing") {
		cfg.Download.OnlyMissing = onlyMissing
	}
	if limit > 0 {
		cfg.Download.Limit = limit
	}
	if len(grades) > 0 {
		cfg.Download.Grades = grades
	}
	if len(ids) > 0 {
		cfg.Download.IDs = ids
	}
}

// redactDSN hides the password in a URL-style DSN.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		return dsn[:scheme+3] + creds[:colon] + ":****" + dsn[at:]
	}
	return dsn
}
