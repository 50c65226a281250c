// Package memory provides an in-memory catalog store for local development
// and tests. Ranking is a token-overlap stand-in for the Postgres full-text
// rank; the per-pharmacy top-1 contract and tie-break order are identical.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/medifacil/backend/internal/catalog"
	"github.com/medifacil/backend/internal/store"
)

// CatalogStore implements store.Catalog with maps under a mutex.
type CatalogStore struct {
	mu       sync.RWMutex
	listings map[string]catalog.Listing
	pharmas  map[string]catalog.Pharmacy
}

// NewCatalogStore creates an empty store.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		listings: make(map[string]catalog.Listing),
		pharmas:  make(map[string]catalog.Pharmacy),
	}
}

// SeedPharmacy loads pharmacy reference data, normally seeded out-of-band.
func (s *CatalogStore) SeedPharmacy(p catalog.Pharmacy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pharmas[p.Name] = p
}

// UpsertListing inserts or overwrites one row keyed by URL, preserving the
// original pharma on update.
func (s *CatalogStore) UpsertListing(_ context.Context, listing catalog.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.listings[listing.URL]; ok {
		listing.Pharma = existing.Pharma
	}
	s.listings[listing.URL] = listing
	return nil
}

// Len reports the number of stored listings.
func (s *CatalogStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listings)
}

// Get returns the listing stored under url.
func (s *CatalogStore) Get(url string) (catalog.Listing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[url]
	return l, ok
}

// BestMatches scores every listing by the number of query tokens present in
// its name and keeps the best scorer per pharmacy. Ties break by most recent
// ingest date, then URL.
func (s *CatalogStore) BestMatches(_ context.Context, term string) ([]catalog.Listing, error) {
	tokens := tokenize(term)
	if len(tokens) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		listing catalog.Listing
		score   int
	}
	best := make(map[string]scored)
	for _, l := range s.listings {
		score := overlap(tokens, tokenize(l.Name))
		if score == 0 {
			continue
		}
		cur, ok := best[l.Pharma]
		if !ok || score > cur.score || (score == cur.score && newerOrStableKey(l, cur.listing)) {
			best[l.Pharma] = scored{listing: l, score: score}
		}
	}

	matches := make([]catalog.Listing, 0, len(best))
	for _, sc := range best {
		matches = append(matches, sc.listing)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Pharma < matches[j].Pharma })
	return matches, nil
}

// GetPharmacy returns seeded pharmacy metadata.
func (s *CatalogStore) GetPharmacy(_ context.Context, pharma string) (catalog.Pharmacy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pharmas[pharma]
	if !ok {
		return catalog.Pharmacy{}, store.ErrNotFound
	}
	return p, nil
}

// Close implements store.Catalog; nothing to release.
func (s *CatalogStore) Close() {}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func overlap(query, name []string) int {
	present := make(map[string]struct{}, len(name))
	for _, tok := range name {
		present[tok] = struct{}{}
	}
	score := 0
	for _, tok := range query {
		if _, ok := present[tok]; ok {
			score++
		}
	}
	return score
}

func newerOrStableKey(a, b catalog.Listing) bool {
	if !a.IngestDate.Equal(b.IngestDate) {
		return a.IngestDate.After(b.IngestDate)
	}
	return a.URL < b.URL
}
