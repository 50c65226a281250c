// Package catalog defines the listing shape shared by the ingestion and
// search paths, plus the normalization rules that make prices comparable
// across pharmacies.
package catalog

import "time"

// Listing is one catalog row, keyed by the product URL. Re-ingestion
// overwrites every mutable field but never URL or Pharma.
type Listing struct {
	URL          string    `json:"url"`
	Pharma       string    `json:"pharma"`
	Name         string    `json:"name"`
	Price        *float64  `json:"price"`
	ImageURL     string    `json:"url_image"`
	Availability string    `json:"availability"`
	IngestDate   time.Time `json:"ingest_date"`
}

// Pharmacy is read-only reference data joined into search responses.
type Pharmacy struct {
	Name     string `json:"pharma"`
	Location string `json:"location"`
	LinkLogo string `json:"link_logo"`
	Link     string `json:"link"`
}
