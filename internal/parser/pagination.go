package parser

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"

	"github.com/IshaanNene/kitmanual/internal/types"
)

// LastPage returns the highest page number linked from the pager nodes
// selected by the XPath expression, or 0 when the page has no pager.
func LastPage(body []byte, expr string) (int, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return 0, &types.ParseError{Selector: expr, Err: err}
	}
	nodes, err := htmlquery.QueryAll(doc, expr)
	if err != nil {
		return 0, &types.ParseError{Selector: expr, Err: err}
	}

	last := 0
	for _, node := range nodes {
		n := pageFromHref(htmlquery.SelectAttr(node, "href"))
		if n == 0 {
			// Some pagers render the current page as a bare number.
			n, _ = strconv.Atoi(strings.TrimSpace(htmlquery.InnerText(node)))
		}
		if n > last {
			last = n
		}
	}
	return last, nil
}

// PageParam returns the "page" query parameter of rawURL. A URL without
// the parameter is the server's default page 1; an unparsable value is 0.
func PageParam(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	v := u.Query().Get("page")
	if v == "" {
		return 1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func pageFromHref(href string) int {
	if href == "" || !strings.Contains(href, "page=") {
		return 0
	}
	u, err := url.Parse(href)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(u.Query().Get("page"))
	return n
}
