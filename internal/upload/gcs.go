package upload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/types"
)

// GCSSink writes manuals to a Google Cloud Storage bucket. Objects are
// created with a DoesNotExist precondition, so re-running an upload never
// overwrites a published file.
type GCSSink struct {
	client     *storage.Client
	bucket     *storage.BucketHandle
	bucketName string
	publicBase string
	now        func() time.Time
	logger     *slog.Logger
}

// NewGCSSink creates a sink using application default credentials.
func NewGCSSink(ctx context.Context, bucket, publicBaseURL string, logger *slog.Logger) (*GCSSink, error) {
	if bucket == "" {
		return nil, errors.New("upload bucket is not configured")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, &types.StorageError{Backend: "gcs", Op: "connect", Err: err}
	}
	return &GCSSink{
		client:     client,
		bucket:     client.Bucket(bucket),
		bucketName: bucket,
		publicBase: publicBaseURL,
		now:        time.Now,
		logger:     logger.With("component", "gcs_sink"),
	}, nil
}

// Upload copies the file at localPath to object.
func (s *GCSSink) Upload(ctx context.Context, localPath, object string) (catalog.UploadInfo, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return catalog.UploadInfo{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return catalog.UploadInfo{}, err
	}

	result := catalog.UploadInfo{
		Bucket:     s.bucketName,
		Path:       object,
		PublicURL:  PublicURL(s.publicBase, s.bucketName, object),
		Size:       info.Size(),
		UploadedAt: s.now().UTC(),
	}

	w := s.bucket.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/pdf"

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		if isPreconditionFailed(err) {
			s.logger.Info("object already exists, skipping", "object", object)
			return result, nil
		}
		return catalog.UploadInfo{}, &types.StorageError{Backend: "gcs", Op: "write " + object, Err: err}
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			s.logger.Info("object already exists, skipping", "object", object)
			return result, nil
		}
		return catalog.UploadInfo{}, &types.StorageError{Backend: "gcs", Op: "finalize " + object, Err: err}
	}
	return result, nil
}

// Close releases the storage client.
func (s *GCSSink) Close() error {
	return s.client.Close()
}

// Name returns the sink identifier.
func (s *GCSSink) Name() string { return "gcs" }

// PublicURL returns where object can be read. Without a configured base it
// falls back to the bucket's public storage.googleapis.com address.
func PublicURL(publicBase, bucket, object string) string {
	if publicBase == "" {
		publicBase = "https://storage.googleapis.com/" + bucket
	}
	return strings.TrimRight(publicBase, "/") + "/" + strings.TrimLeft(object, "/")
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

var _ Sink = (*GCSSink)(nil)
