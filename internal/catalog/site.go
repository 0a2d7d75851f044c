package catalog

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Site builds catalog URLs from the configured origin and path templates.
// Templates carry an "{id}" placeholder.
type Site struct {
	base        *url.URL
	listingPath string
	detailPath  string
	pdfPath     string
}

// NewSite parses the origin and keeps the templates.
func NewSite(baseURL, listingPath, detailPath, pdfPath string) (*Site, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	return &Site{
		base:        u,
		listingPath: listingPath,
		detailPath:  detailPath,
		pdfPath:     pdfPath,
	}, nil
}

// Base returns a copy of the site origin.
func (s *Site) Base() *url.URL {
	u := *s.base
	return &u
}

// ListingURL returns the listing URL for the given 1-based page.
func (s *Site) ListingURL(page int) string {
	u := s.Base()
	u.Path = s.listingPath
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// DetailURL returns the absolute detail page URL for id.
func (s *Site) DetailURL(id int64) string {
	return s.expand(s.detailPath, id)
}

// PDFURL returns the absolute PDF URL for id.
func (s *Site) PDFURL(id int64) string {
	return s.expand(s.pdfPath, id)
}

func (s *Site) expand(tmpl string, id int64) string {
	return s.base.String() + strings.ReplaceAll(tmpl, "{id}", strconv.FormatInt(id, 10))
}
