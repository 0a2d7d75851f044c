package parser

import (
	"log/slog"
	"net/url"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/config"
	"github.com/IshaanNene/kitmanual/internal/types"
)

var digitRun = regexp.MustCompile(`\d+`)

// Extractor reads listing items with CSS selectors via goquery.
type Extractor struct {
	site   *catalog.Site
	sel    config.SelectorsConfig
	logger *slog.Logger
}

// NewExtractor creates a listing extractor for the given site layout.
func NewExtractor(site *catalog.Site, sel config.SelectorsConfig, logger *slog.Logger) *Extractor {
	return &Extractor{
		site:   site,
		sel:    sel,
		logger: logger.With("component", "extractor"),
	}
}

// ParseListing implements ListingParser.
func (e *Extractor) ParseListing(resp *types.Response) ([]catalog.Record, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, err
	}
	return e.ExtractAll(doc.Selection, resp.BaseURL()), nil
}

// ExtractAll extracts every listing item below root.
func (e *Extractor) ExtractAll(root *goquery.Selection, base *url.URL) []catalog.Record {
	var records []catalog.Record
	root.Find(e.sel.Item).Each(func(_ int, item *goquery.Selection) {
		rec, ok := e.ExtractItem(item, base)
		if !ok {
			e.logger.Debug("skipping listing item without identifier")
			return
		}
		records = append(records, rec)
	})
	return records
}

// ExtractItem turns one listing item into a record. It reports false when
// the item has no detail link or the link carries no digits.
func (e *Extractor) ExtractItem(item *goquery.Selection, base *url.URL) (catalog.Record, bool) {
	link := item
	if !item.Is(e.sel.Link) {
		link = item.Find(e.sel.Link).First()
	}
	href, ok := link.Attr("href")
	if !ok {
		return catalog.Record{}, false
	}
	id, ok := ParseID(href)
	if !ok {
		return catalog.Record{}, false
	}

	detailPath := href
	if u := resolve(base, href); u != nil {
		detailPath = u.Path
	}

	native := e.text(item, e.sel.NameNative)
	foreign := e.text(item, e.sel.NameForeign)
	release := e.text(item, e.sel.Release)

	gradeSource := foreign
	if gradeSource == "" {
		gradeSource = native
	}

	rec := catalog.Record{
		ID:              id,
		DetailPath:      detailPath,
		DetailURL:       e.site.DetailURL(id),
		PDFURL:          e.site.PDFURL(id),
		NameNative:      catalog.StringPtr(native),
		NameForeign:     catalog.StringPtr(foreign),
		Grade:           InferGrade(gradeSource),
		ReleaseDate:     ParseReleaseDate(release),
		ReleaseDateText: release,
		ImageURL:        catalog.StringPtr(e.image(item, base)),
	}
	return rec, true
}

func (e *Extractor) text(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return CleanText(item.Find(selector).First().Text())
}

func (e *Extractor) image(item *goquery.Selection, base *url.URL) string {
	if e.sel.Image == "" {
		return ""
	}
	img := item.Find(e.sel.Image).First()
	src, ok := img.Attr("data-src")
	if !ok || src == "" {
		src, _ = img.Attr("src")
	}
	src = CleanText(src)
	if src == "" {
		return ""
	}
	if u := resolve(base, src); u != nil {
		return u.String()
	}
	return src
}

// ParseID returns the first run of digits in href.
func ParseID(href string) (int64, bool) {
	run := digitRun.FindString(href)
	if run == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(run, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func resolve(base *url.URL, ref string) *url.URL {
	u, err := url.Parse(ref)
	if err != nil {
		return nil
	}
	if base == nil {
		return u
	}
	return base.ResolveReference(u)
}
