// Package upload publishes downloaded manuals to object storage and records
// where they landed.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/media"
	"github.com/IshaanNene/kitmanual/internal/observability"
)

// Sink stores one local file under an object name.
type Sink interface {
	Upload(ctx context.Context, localPath, object string) (catalog.UploadInfo, error)
	Close() error
	Name() string
}

// Summary aggregates an upload run.
type Summary struct {
	Uploaded int
	Failed   int
	Bytes    int64
	Duration time.Duration
}

// Uploader pushes downloaded manuals that have no upload yet.
type Uploader struct {
	store       catalog.Store
	sink        Sink
	paths       *media.Resolver
	prefix      string
	concurrency int
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewUploader creates an uploader.
func NewUploader(store catalog.Store, sink Sink, paths *media.Resolver, prefix string, concurrency int, metrics *observability.Metrics, logger *slog.Logger) *Uploader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Uploader{
		store:       store,
		sink:        sink,
		paths:       paths,
		prefix:      prefix,
		concurrency: concurrency,
		metrics:     metrics,
		logger:      logger.With("component", "uploader", "sink", sink.Name()),
	}
}

// Run uploads every record matching q that has a local file and no upload.
// A failed upload is logged and counted; a failure to record an upload
// aborts the run.
func (u *Uploader) Run(ctx context.Context, q catalog.Query) (Summary, error) {
	start := time.Now()
	q.NotUploaded = true
	recs, err := u.store.List(ctx, q)
	if err != nil {
		return Summary{}, fmt.Errorf("list records to upload: %w", err)
	}
	u.logger.Info("upload starting", "records", len(recs), "concurrency", u.concurrency)

	var (
		mu      sync.Mutex
		summary Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for i := range recs {
		if gctx.Err() != nil {
			break
		}
		rec := &recs[i]
		g.Go(func() error {
			info, err := u.uploadOne(gctx, rec)
			if err != nil {
				u.logger.Warn("upload failed", "id", rec.ID, "error", err)
				u.metrics.UploadFailed.Add(1)
				mu.Lock()
				summary.Failed++
				mu.Unlock()
				return nil
			}
			if err := u.store.SetUpload(gctx, rec.ID, info); err != nil {
				return fmt.Errorf("record upload for manual %d: %w", rec.ID, err)
			}
			u.metrics.Uploaded.Add(1)
			u.metrics.BytesUploaded.Add(info.Size)
			mu.Lock()
			summary.Uploaded++
			summary.Bytes += info.Size
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	summary.Duration = time.Since(start)

	u.logger.Info("upload finished",
		"uploaded", summary.Uploaded,
		"failed", summary.Failed,
		"bytes", summary.Bytes,
		"duration", summary.Duration.Round(time.Millisecond),
	)
	return summary, err
}

func (u *Uploader) uploadOne(ctx context.Context, rec *catalog.Record) (catalog.UploadInfo, error) {
	abs, ok := u.paths.Locate(*rec.LocalPath)
	if !ok {
		return catalog.UploadInfo{}, fmt.Errorf("local file %q: %w", *rec.LocalPath, os.ErrNotExist)
	}
	return u.sink.Upload(ctx, abs, ObjectName(u.prefix, *rec.LocalPath))
}

// ObjectName returns the object key for a stored local path: the file's
// base name under prefix.
func ObjectName(prefix, localPath string) string {
	base := path.Base(strings.ReplaceAll(localPath, `\`, "/"))
	return path.Join(strings.Trim(prefix, "/"), base)
}
