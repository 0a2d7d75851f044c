package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// TagListing marks requests for catalog listing pages.
const TagListing = "listing"

// Request represents an HTTP request issued against the catalog site.
type Request struct {
	// URL is the target URL to fetch.
	URL *url.URL

	// Method is the HTTP method. Defaults to GET.
	Method string

	// Headers are custom HTTP headers to send with the request.
	Headers http.Header

	// Timeout overrides the client request timeout for this request.
	Timeout time.Duration

	// Tag categorizes this request.
	Tag string

	// Page is the listing page number this request asks for, if any.
	Page int

	// CreatedAt is when this request was created.
	CreatedAt time.Time
}

// NewRequest creates a new GET Request.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	return &Request{
		URL:       u,
		Method:    http.MethodGet,
		Headers:   make(http.Header),
		CreatedAt: time.Now(),
	}, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}
