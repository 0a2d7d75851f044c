package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters for crawl, download and upload runs.
type Metrics struct {
	// Crawl metrics
	PagesVisited    atomic.Int64
	PagesSkipped    atomic.Int64
	ItemsExtracted  atomic.Int64
	RecordsUpserted atomic.Int64
	Duplicates      atomic.Int64

	// Download metrics
	Downloaded      atomic.Int64
	DownloadSkipped atomic.Int64
	DownloadFailed  atomic.Int64
	PathsHealed     atomic.Int64
	BytesDownloaded atomic.Int64
	ActiveWorkers   atomic.Int32

	// Upload metrics
	Uploaded      atomic.Int64
	UploadFailed  atomic.Int64
	BytesUploaded atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		kind  string
		value int64
	}{
		{"kitmanual_pages_visited_total", "Listing pages fetched and processed", "counter", m.PagesVisited.Load()},
		{"kitmanual_pages_skipped_total", "Listing pages skipped after fetch failure", "counter", m.PagesSkipped.Load()},
		{"kitmanual_items_extracted_total", "Listing items extracted", "counter", m.ItemsExtracted.Load()},
		{"kitmanual_records_upserted_total", "Catalog records upserted", "counter", m.RecordsUpserted.Load()},
		{"kitmanual_duplicates_total", "Records seen more than once in a run", "counter", m.Duplicates.Load()},
		{"kitmanual_downloads_total", "PDFs downloaded", "counter", m.Downloaded.Load()},
		{"kitmanual_downloads_skipped_total", "Download tasks skipped because the file exists", "counter", m.DownloadSkipped.Load()},
		{"kitmanual_downloads_failed_total", "Download tasks that failed", "counter", m.DownloadFailed.Load()},
		{"kitmanual_paths_healed_total", "Legacy local paths rewritten to root-relative form", "counter", m.PathsHealed.Load()},
		{"kitmanual_bytes_downloaded_total", "Total bytes downloaded", "counter", m.BytesDownloaded.Load()},
		{"kitmanual_active_workers", "Currently active download workers", "gauge", int64(m.ActiveWorkers.Load())},
		{"kitmanual_uploads_total", "PDFs uploaded to object storage", "counter", m.Uploaded.Load()},
		{"kitmanual_uploads_failed_total", "Uploads that failed", "counter", m.UploadFailed.Load()},
		{"kitmanual_bytes_uploaded_total", "Total bytes uploaded", "counter", m.BytesUploaded.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", metric.name, metric.kind)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer serves metrics until ctx is cancelled.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"pages_visited":    m.PagesVisited.Load(),
		"pages_skipped":    m.PagesSkipped.Load(),
		"items_extracted":  m.ItemsExtracted.Load(),
		"records_upserted": m.RecordsUpserted.Load(),
		"duplicates":       m.Duplicates.Load(),
		"downloaded":       m.Downloaded.Load(),
		"download_skipped": m.DownloadSkipped.Load(),
		"download_failed":  m.DownloadFailed.Load(),
		"paths_healed":     m.PathsHealed.Load(),
		"bytes_downloaded": m.BytesDownloaded.Load(),
		"uploaded":         m.Uploaded.Load(),
		"upload_failed":    m.UploadFailed.Load(),
		"bytes_uploaded":   m.BytesUploaded.Load(),
	}
}
