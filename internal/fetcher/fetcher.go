package fetcher

import (
	"context"

	"github.com/IshaanNene/kitmanual/internal/types"
)

// Fetcher is the interface for page fetcher implementations.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// FileFetcher streams a remote document to a local file.
type FileFetcher interface {
	// Download writes the body at rawURL to destPath, truncating it first,
	// and returns the number of bytes written.
	Download(ctx context.Context, rawURL, destPath string) (int64, error)
}
