// Package media downloads manual PDFs into the storage root and keeps the
// catalog's recorded local paths in sync with what is on disk.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/fetcher"
	"github.com/IshaanNene/kitmanual/internal/observability"
)

// Outcome classifies what happened to one download task.
type Outcome string

const (
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
)

var errNotAttempted = errors.New("not attempted: batch aborted")

// DownloadResult tracks one record's download task.
type DownloadResult struct {
	ID        int64         `json:"id"`
	URL       string        `json:"url"`
	Filename  string        `json:"filename"`
	LocalPath string        `json:"local_path,omitempty"`
	Outcome   Outcome       `json:"outcome"`
	Healed    bool          `json:"healed,omitempty"`
	External  bool          `json:"external,omitempty"`
	Size      int64         `json:"size,omitempty"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// Summary aggregates a batch.
type Summary struct {
	Total      int
	Downloaded int
	Skipped    int
	Failed     int
	Healed     int
	Bytes      int64
	Duration   time.Duration
}

// Options tunes a Downloader.
type Options struct {
	Subdir      string
	Concurrency int
	// Check runs against the partial file before it is moved into place.
	// Nil disables validation.
	Check PDFCheck
}

// Downloader fetches manual PDFs for catalog records.
type Downloader struct {
	store   catalog.Store
	files   fetcher.FileFetcher
	paths   *Resolver
	opts    Options
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewDownloader creates a new download orchestrator.
func NewDownloader(store catalog.Store, files fetcher.FileFetcher, paths *Resolver, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Downloader {
	if opts.Concurrency < 1 {
		opts.Concurrency = 3
	}
	return &Downloader{
		store:   store,
		files:   files,
		paths:   paths,
		opts:    opts,
		metrics: metrics,
		logger:  logger.With("component", "media_downloader"),
	}
}

// Run processes recs with bounded concurrency. A failed download is
// recorded in its result and does not stop the batch; a failure to persist
// a local path aborts the batch and is returned. Results are in input order.
func (d *Downloader) Run(ctx context.Context, recs []catalog.Record) ([]DownloadResult, Summary, error) {
	start := time.Now()
	results := make([]DownloadResult, len(recs))
	for i := range recs {
		results[i] = DownloadResult{
			ID:       recs[i].ID,
			URL:      recs[i].PDFURL,
			Filename: FileName(&recs[i]),
			Outcome:  OutcomeFailed,
			Err:      errNotAttempted,
		}
	}

	dir, ok := d.paths.Resolve(d.opts.Subdir)
	if d.opts.Subdir == "" {
		dir, ok = d.paths.Root(), true
	}
	if !ok {
		return results, Summary{Total: len(recs)}, fmt.Errorf("download subdir %q escapes storage root", d.opts.Subdir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return results, Summary{Total: len(recs)}, fmt.Errorf("create download dir: %w", err)
	}

	d.logger.Info("download batch starting",
		"records", len(recs),
		"concurrency", d.opts.Concurrency,
		"root", d.paths.Root(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for i := range recs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			d.metrics.ActiveWorkers.Add(1)
			defer d.metrics.ActiveWorkers.Add(-1)

			res, err := d.process(gctx, &recs[i])
			results[i] = res
			return err
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	summary := summarize(results)
	summary.Duration = time.Since(start)
	d.logger.Info("download batch finished",
		"downloaded", summary.Downloaded,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"healed", summary.Healed,
		"bytes", humanSize(summary.Bytes),
		"duration", summary.Duration.Round(time.Millisecond),
	)
	return results, summary, err
}

func (d *Downloader) process(ctx context.Context, rec *catalog.Record) (DownloadResult, error) {
	start := time.Now()
	rel := ExpectedPath(d.opts.Subdir, rec)
	res := DownloadResult{
		ID:       rec.ID,
		URL:      rec.PDFURL,
		Filename: FileName(rec),
	}

	if rec.HasLocalPath() {
		stored := *rec.LocalPath
		if abs, ok := d.paths.Resolve(stored); ok && fileExists(abs) {
			res.Outcome = OutcomeSkipped
			res.LocalPath = stored
			d.metrics.DownloadSkipped.Add(1)
			return res, nil
		}
		handled, err := d.normalizeLegacy(ctx, rec, &res)
		if err != nil || handled {
			return res, err
		}
	}

	expected, ok := d.paths.Resolve(rel)
	if !ok {
		return d.fail(res, fmt.Errorf("expected path %q escapes storage root", rel)), nil
	}
	if fileExists(expected) {
		if err := d.persist(ctx, rec.ID, rel, &res); err != nil {
			return res, err
		}
		res.Outcome = OutcomeSkipped
		d.metrics.DownloadSkipped.Add(1)
		return res, nil
	}

	size, err := d.fetchTo(ctx, rec.PDFURL, expected)
	if err != nil {
		return d.fail(res, err), nil
	}
	if err := d.persist(ctx, rec.ID, rel, &res); err != nil {
		return res, err
	}

	res.Outcome = OutcomeDownloaded
	res.Size = size
	res.Duration = time.Since(start)
	d.metrics.Downloaded.Add(1)
	d.metrics.BytesDownloaded.Add(size)
	d.logger.Debug("manual downloaded",
		"id", rec.ID,
		"path", rel,
		"size", humanSize(size),
		"duration", res.Duration,
	)
	return res, nil
}

// normalizeLegacy handles stored values that do not resolve under the root.
// A file found inside the root gets its path rewritten to root-relative
// form; a file found elsewhere is left alone.
func (d *Downloader) normalizeLegacy(ctx context.Context, rec *catalog.Record, res *DownloadResult) (bool, error) {
	stored := *rec.LocalPath
	for _, candidate := range LegacyCandidates(stored) {
		if !fileExists(candidate) {
			continue
		}
		if !d.paths.IsInsideRoot(candidate) {
			res.Outcome = OutcomeSkipped
			res.External = true
			res.LocalPath = stored
			d.metrics.DownloadSkipped.Add(1)
			d.logger.Warn("manual stored outside storage root, leaving path as is",
				"id", rec.ID,
				"path", candidate,
			)
			return true, nil
		}
		rel, err := d.paths.ToRelative(candidate)
		if err != nil {
			continue
		}
		if err := d.persist(ctx, rec.ID, rel, res); err != nil {
			return true, err
		}
		res.Outcome = OutcomeSkipped
		res.Healed = true
		d.metrics.DownloadSkipped.Add(1)
		d.metrics.PathsHealed.Add(1)
		d.logger.Info("legacy local path normalized", "id", rec.ID, "from", stored, "to", rel)
		return true, nil
	}
	return false, nil
}

// fetchTo downloads into a sibling .part file and renames it into place
// once it passes validation.
func (d *Downloader) fetchTo(ctx context.Context, rawURL, dest string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create dir: %w", err)
	}
	part := dest + ".part"
	size, err := d.files.Download(ctx, rawURL, part)
	if err == nil && d.opts.Check != nil {
		if cerr := d.opts.Check(part); cerr != nil {
			err = fmt.Errorf("validate %s: %w", rawURL, cerr)
		}
	}
	if err == nil {
		err = os.Rename(part, dest)
	}
	if err != nil {
		_ = os.Remove(part)
		return 0, err
	}
	return size, nil
}

func (d *Downloader) persist(ctx context.Context, id int64, rel string, res *DownloadResult) error {
	if err := d.store.SetLocalPath(ctx, id, rel); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return fmt.Errorf("record local path for manual %d: %w", id, err)
	}
	res.LocalPath = rel
	return nil
}

func (d *Downloader) fail(res DownloadResult, err error) DownloadResult {
	res.Outcome = OutcomeFailed
	res.Err = err
	d.metrics.DownloadFailed.Add(1)
	d.logger.Warn("download failed", "id", res.ID, "url", res.URL, "error", err)
	return res
}

func summarize(results []DownloadResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Outcome {
		case OutcomeDownloaded:
			s.Downloaded++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeFailed:
			s.Failed++
		}
		if r.Healed {
			s.Healed++
		}
		s.Bytes += r.Size
	}
	return s
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
