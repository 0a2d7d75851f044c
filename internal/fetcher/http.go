package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/avast/retry-go"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/IshaanNene/kitmanual/internal/config"
	"github.com/IshaanNene/kitmanual/internal/types"
)

const maxRedirects = 10

// HTTPFetcher implements Fetcher and FileFetcher using net/http.
//
// Every attempt holds one slot of a weighted semaphore, waits on a shared
// rate limiter and runs under its own timeout. Retryable failures (5xx,
// 429, timeouts, connection resets) are retried with exponential backoff.
type HTTPFetcher struct {
	client          *http.Client
	cfg             *config.CrawlConfig
	downloadTimeout time.Duration
	limiter         *rate.Limiter
	sem             *semaphore.Weighted
	logger          *slog.Logger
	attempts        atomic.Int64
}

// NewHTTPFetcher creates a new HTTP fetcher.
func NewHTTPFetcher(cfg *config.Config, logger *slog.Logger) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // We handle decompression ourselves (including brotli)
	}

	client := &http.Client{
		Transport: transport,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("max redirects (%d) reached", maxRedirects)
			}
			return nil
		},
	}

	limit := rate.Inf
	if cfg.Crawl.Delay > 0 {
		limit = rate.Every(cfg.Crawl.Delay)
	}
	concurrency := cfg.Crawl.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &HTTPFetcher{
		client:          client,
		cfg:             &cfg.Crawl,
		downloadTimeout: cfg.Download.Timeout,
		limiter:         rate.NewLimiter(limit, 1),
		sem:             semaphore.NewWeighted(int64(concurrency)),
		logger:          logger.With("component", "http_fetcher"),
	}, nil
}

// Fetch executes an HTTP request and returns the buffered response.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	timeout := f.cfg.RequestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	var resp *types.Response
	err := f.withRetry(ctx, req.URLString(), timeout, func(ctx context.Context) error {
		r, err := f.fetchOnce(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Download streams rawURL into destPath. Each attempt truncates the file.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL, destPath string) (int64, error) {
	var written int64
	err := f.withRetry(ctx, rawURL, f.downloadTimeout, func(ctx context.Context) error {
		n, err := f.downloadOnce(ctx, rawURL, destPath)
		if err != nil {
			return err
		}
		written = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// Attempts returns the number of HTTP attempts issued so far.
func (f *HTTPFetcher) Attempts() int64 {
	return f.attempts.Load()
}

// Close releases resources.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// Type returns the fetcher type identifier.
func (f *HTTPFetcher) Type() string {
	return "http"
}

func (f *HTTPFetcher) withRetry(ctx context.Context, rawURL string, timeout time.Duration, fn func(context.Context) error) error {
	return retry.Do(
		func() error {
			err := f.attempt(ctx, timeout, fn)
			if err != nil && !types.IsRetryable(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(f.cfg.MaxRetries)+1),
		retry.Delay(f.cfg.RetryDelay),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, rc *retry.Config) time.Duration {
			var fe *types.FetchError
			if errors.As(err, &fe) && fe.RetryAfter > 0 {
				return fe.RetryAfter
			}
			return retry.BackOffDelay(n, err, rc)
		}),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Warn("request failed", "url", rawURL, "attempt", n+1, "error", err)
		}),
	)
}

// attempt runs fn inside one concurrency slot, after the rate limiter, under
// a per-attempt timeout.
func (f *HTTPFetcher) attempt(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer f.sem.Release(1)

	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}
	f.attempts.Add(1)

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(actx)
	// A per-attempt timeout is transient as long as the caller is still waiting.
	var fe *types.FetchError
	if err != nil && errors.As(err, &fe) && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		fe.Retryable = true
	}
	return err
}

func (f *HTTPFetcher) newRequest(ctx context.Context, method, rawURL, accept string) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: false}
	}
	httpReq.Header.Set("User-Agent", f.userAgent())
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("Accept-Language", "ja,en-US;q=0.9,en;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	return httpReq, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, req *types.Request) (*types.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := f.newRequest(ctx, method, req.URLString(), "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Set(key, v)
		}
	}

	start := time.Now()
	httpResp, err := f.client.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: isRetryableError(err)}
	}
	defer httpResp.Body.Close()

	if err := checkStatus(req.URLString(), httpResp); err != nil {
		return nil, err
	}

	// A truncated listing would parse as a shorter page, so oversized
	// bodies fail instead.
	var reader io.Reader = httpResp.Body
	if f.cfg.MaxBodySize > 0 {
		reader = http.MaxBytesReader(nil, httpResp.Body, f.cfg.MaxBodySize)
	}
	reader, err = decompressReader(httpResp, reader)
	if err != nil {
		return nil, f.bodyError(req.URLString(), err, false)
	}
	// Listing pages are parsed as UTF-8; older catalog pages are Shift_JIS.
	reader, err = charset.NewReader(reader, httpResp.Header.Get("Content-Type"))
	if err != nil {
		return nil, f.bodyError(req.URLString(), err, false)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, f.bodyError(req.URLString(), err, true)
	}

	resp := types.NewResponse(req, httpResp, body, duration)

	f.logger.Debug("fetch complete",
		"url", req.URLString(),
		"final_url", resp.FinalURL,
		"status", resp.StatusCode,
		"size", len(body),
		"duration", duration,
	)

	return resp, nil
}

// bodyError wraps a body read failure. Exceeding max_body_size is never
// retried.
func (f *HTTPFetcher) bodyError(rawURL string, err error, retryable bool) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &types.FetchError{
			URL: rawURL,
			Err: fmt.Errorf("%w: more than %d bytes", types.ErrBodyTooLarge, tooLarge.Limit),
		}
	}
	return &types.FetchError{URL: rawURL, Err: err, Retryable: retryable}
}

func (f *HTTPFetcher) downloadOnce(ctx context.Context, rawURL, destPath string) (int64, error) {
	httpReq, err := f.newRequest(ctx, http.MethodGet, rawURL, "application/pdf,*/*;q=0.8")
	if err != nil {
		return 0, err
	}

	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		return 0, &types.FetchError{URL: rawURL, Err: err, Retryable: isRetryableError(err)}
	}
	defer httpResp.Body.Close()

	if err := checkStatus(rawURL, httpResp); err != nil {
		return 0, err
	}

	reader, err := decompressReader(httpResp, httpResp.Body)
	if err != nil {
		return 0, &types.FetchError{URL: rawURL, Err: err, Retryable: false}
	}

	file, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", destPath, err)
	}
	n, copyErr := io.Copy(file, reader)
	closeErr := file.Close()
	if copyErr != nil {
		return 0, &types.FetchError{URL: rawURL, Err: copyErr, Retryable: isRetryableError(copyErr)}
	}
	if closeErr != nil {
		return 0, fmt.Errorf("close %s: %w", destPath, closeErr)
	}
	if n == 0 {
		return 0, &types.FetchError{URL: rawURL, StatusCode: httpResp.StatusCode, Err: types.ErrEmptyResponse}
	}

	f.logger.Debug("download complete", "url", rawURL, "path", destPath, "size", n)
	return n, nil
}

func (f *HTTPFetcher) userAgent() string {
	if f.cfg.UserAgent == "" {
		return "kitmanual/" + config.Version
	}
	return f.cfg.UserAgent
}

// checkStatus maps non-2xx responses to FetchErrors. 429 and 5xx are
// retryable; every other status is final.
func checkStatus(rawURL string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	snippet := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP 429: rate limited (retry after %s): %s", retryAfter, snippet),
			Retryable:  true,
			RetryAfter: retryAfter,
		}
	case resp.StatusCode >= 500:
		return &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet),
			Retryable:  true,
		}
	default:
		return &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
			Retryable:  false,
		}
	}
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// isRetryableError checks if a network error warrants a retry.
// Covers timeouts, connection resets, unexpected EOF, and connection refused.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Context cancellation is NOT retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}

// parseRetryAfter parses the Retry-After header value.
// Supports both integer seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs > 120 {
			secs = 120
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return time.Second
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return 5 * time.Second
}
