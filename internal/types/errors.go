package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrEmptyResponse = errors.New("empty response body")
	ErrInvalidURL    = errors.New("invalid URL")
	ErrNotPDF        = errors.New("downloaded file is not a PDF")
	ErrBodyTooLarge  = errors.New("response body exceeds size limit")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// IsRetryable reports whether err carries a retryable FetchError.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// ParseError wraps errors that occur during parsing.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur in a persistence backend.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("storage error (%s, %s): %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the record selection pipeline.
type PipelineError struct {
	Stage    string
	RecordID int64
	Err      error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q (record %d): %v", e.Stage, e.RecordID, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
