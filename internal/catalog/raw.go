package catalog

import (
	"errors"
	"strings"
	"time"
)

// ErrMissingName marks an extraction that produced no product name. The item
// is dropped; the crawl continues.
var ErrMissingName = errors.New("listing has no product name")

// ErrMissingURL marks an extraction with no product URL to key on.
var ErrMissingURL = errors.New("listing has no product url")

// RawListing is the unvalidated field set an extractor pulls off a product
// page. Every field is a string; absence is the empty string.
type RawListing struct {
	URL          string
	Pharma       string
	Name         string
	PriceText    string
	ImageURL     string
	Availability string
}

// Normalize converts a raw extraction into a canonical Listing: the price
// text is cleaned, the quantity marker (if any) is folded into a per-unit
// price, and the name is rewritten to its canonical form. An unparseable
// price yields a listing with no price rather than an error; only a missing
// name or URL fails the item.
func Normalize(raw RawListing, ingestDate time.Time) (Listing, error) {
	if strings.TrimSpace(raw.URL) == "" {
		return Listing{}, ErrMissingURL
	}
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return Listing{}, ErrMissingName
	}

	listing := Listing{
		URL:          strings.TrimSpace(raw.URL),
		Pharma:       raw.Pharma,
		Name:         name,
		ImageURL:     strings.TrimSpace(raw.ImageURL),
		Availability: strings.TrimSpace(raw.Availability),
		IngestDate:   ingestDate,
	}

	if price, err := CleanPrice(raw.PriceText); err == nil {
		unitName, unitPrice := UnitPrice(name, price)
		listing.Name = unitName
		listing.Price = &unitPrice
	}
	return listing, nil
}
