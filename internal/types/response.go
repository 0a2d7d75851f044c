package types

import (
	"bytes"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Response represents the result of fetching a request.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Headers are the response HTTP headers.
	Headers http.Header

	// Body is the raw response body bytes.
	Body []byte

	// Request is a reference to the original request.
	Request *Request

	// ContentType is the MIME type of the response.
	ContentType string

	// FinalURL is the URL after any redirects.
	FinalURL string

	// Doc is a parsed goquery document (lazily loaded).
	Doc *goquery.Document

	// FetchDuration is how long the fetch took.
	FetchDuration time.Duration

	// FetchedAt is when this response was received.
	FetchedAt time.Time
}

// NewResponse creates a Response from an http.Response.
func NewResponse(req *Request, httpResp *http.Response, body []byte, duration time.Duration) *Response {
	return &Response{
		StatusCode:    httpResp.StatusCode,
		Headers:       httpResp.Header,
		Body:          body,
		Request:       req,
		ContentType:   httpResp.Header.Get("Content-Type"),
		FinalURL:      httpResp.Request.URL.String(),
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}
}

// Document returns a parsed goquery document, lazily initializing it.
func (r *Response) Document() (*goquery.Document, error) {
	if r.Doc != nil {
		return r.Doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return nil, &ParseError{URL: r.FinalURL, Err: err}
	}
	if u, err := url.Parse(r.FinalURL); err == nil {
		doc.Url = u
	}
	r.Doc = doc
	return doc, nil
}

// BaseURL returns the final URL parsed, falling back to the request URL.
func (r *Response) BaseURL() *url.URL {
	if u, err := url.Parse(r.FinalURL); err == nil && r.FinalURL != "" {
		return u
	}
	if r.Request != nil {
		return r.Request.URL
	}
	return nil
}

// IsSuccess returns true if the response status is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
