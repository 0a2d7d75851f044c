// Package parser turns catalog listing pages into records.
//
// Everything here is pure: no network, no storage. The grade and release
// date heuristics are ordered rule tables so new formats are added by
// inserting a row, not by growing a conditional chain.
package parser

import (
	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/types"
)

// ListingParser extracts catalog records from a fetched listing page.
type ListingParser interface {
	// ParseListing returns the extractable records on the page in document
	// order. Items without an identifier are skipped silently.
	ParseListing(resp *types.Response) ([]catalog.Record, error)
}
