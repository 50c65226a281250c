// Package search implements the cross-pharmacy search engine: per-term
// ranked lookups fanned out against the catalog, assembled into one ordered
// response with per-unit prices.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/medifacil/backend/internal/catalog"
	"github.com/medifacil/backend/internal/store"
)

// ErrNoTerms is returned when a request carries no usable query terms.
var ErrNoTerms = errors.New("no medicine name provided")

// ProductSlot is one per-term result within a pharmacy entry. Before a match
// overwrites it, a slot holds the queried name with found=false and null
// price and link.
type ProductSlot struct {
	Name  string   `json:"name"`
	Price *float64 `json:"price"`
	Found bool     `json:"found"`
	Link  *string  `json:"link"`
}

// PharmacyResult is one pharmacy's entry: reference metadata plus one slot
// per query term, in input order.
type PharmacyResult struct {
	Name     string        `json:"name"`
	Location string        `json:"location"`
	LinkLogo string        `json:"link_logo"`
	Link     string        `json:"link"`
	Products []ProductSlot `json:"products"`
}

// Engine answers multi-term searches against the catalog store.
type Engine struct {
	catalog store.Catalog
	logger  *zap.Logger
}

// New constructs an Engine.
func New(cat store.Catalog, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{catalog: cat, logger: logger}
}

// Search runs every term's ranked lookup concurrently, waits for all of
// them, and assembles one entry per encountered pharmacy in first-encounter
// order. Any lookup failure fails the whole request; no partial response is
// returned.
func (e *Engine) Search(ctx context.Context, terms []string) ([]PharmacyResult, error) {
	terms = cleanTerms(terms)
	if len(terms) == 0 {
		return nil, ErrNoTerms
	}

	perTerm := make([][]catalog.Listing, len(terms))
	errs := make([]error, len(terms))

	var wg sync.WaitGroup
	for i, term := range terms {
		wg.Add(1)
		go func(i int, term string) {
			defer wg.Done()
			matches, err := e.catalog.BestMatches(ctx, term)
			if err != nil {
				errs[i] = fmt.Errorf("lookup term %q: %w", term, err)
				return
			}
			perTerm[i] = matches
		}(i, term)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return e.assemble(ctx, terms, perTerm)
}

func (e *Engine) assemble(ctx context.Context, terms []string, perTerm [][]catalog.Listing) ([]PharmacyResult, error) {
	var (
		results []PharmacyResult
		index   = make(map[string]int)
	)

	for termPos, matches := range perTerm {
		for _, match := range matches {
			pos, seen := index[match.Pharma]
			if !seen {
				pos = len(results)
				index[match.Pharma] = pos
				results = append(results, e.newEntry(ctx, match.Pharma, terms))
			}
			results[pos].Products[termPos] = matchSlot(match)
		}
	}
	return results, nil
}

// newEntry builds a pharmacy entry with one default not-found slot per term
// and reference metadata fetched once. A missing reference row is logged and
// leaves the metadata blank rather than failing the request.
func (e *Engine) newEntry(ctx context.Context, pharma string, terms []string) PharmacyResult {
	entry := PharmacyResult{
		Name:     pharma,
		Products: defaultSlots(terms),
	}

	meta, err := e.catalog.GetPharmacy(ctx, pharma)
	if err != nil {
		e.logger.Warn("pharmacy metadata lookup failed",
			zap.String("pharma", pharma),
			zap.Error(err),
		)
		return entry
	}
	entry.Location = meta.Location
	entry.LinkLogo = meta.LinkLogo
	entry.Link = meta.Link
	return entry
}

// matchSlot applies unit-price normalization to the match before it
// overwrites the default slot, so pack listings rank and display per unit.
func matchSlot(match catalog.Listing) ProductSlot {
	slot := ProductSlot{
		Name:  match.Name,
		Found: true,
		Link:  &match.URL,
	}
	if match.Price != nil {
		name, unitPrice := catalog.UnitPrice(match.Name, *match.Price)
		slot.Name = name
		slot.Price = &unitPrice
	}
	return slot
}

func defaultSlots(terms []string) []ProductSlot {
	slots := make([]ProductSlot, len(terms))
	for i, term := range terms {
		slots[i] = ProductSlot{Name: term}
	}
	return slots
}

func cleanTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term != "" {
			out = append(out, term)
		}
	}
	return out
}
