// Package store defines the catalog persistence contract shared by the
// ingestion and search paths.
package store

import (
	"context"
	"errors"

	"github.com/medifacil/backend/internal/catalog"
)

// ErrNotFound is returned when a pharmacy lookup matches no row.
var ErrNotFound = errors.New("not found")

// Catalog is the durable contract between ingestion and search. Upserts are
// atomic per listing and safe under concurrent calls; BestMatches returns at
// most one listing per pharmacy, the highest ranked for the term.
type Catalog interface {
	// UpsertListing inserts a listing keyed by URL, or overwrites the
	// mutable fields of the existing row. URL and pharma never change.
	UpsertListing(ctx context.Context, listing catalog.Listing) error

	// BestMatches runs a ranked full-text lookup for one query term and
	// returns the single best listing per pharmacy. Ties break by most
	// recent ingest date, then URL. A term with no usable tokens yields
	// an empty result, not an error.
	BestMatches(ctx context.Context, term string) ([]catalog.Listing, error)

	// GetPharmacy returns reference metadata for one pharmacy.
	GetPharmacy(ctx context.Context, pharma string) (catalog.Pharmacy, error)

	// Close releases the underlying resources.
	Close()
}
