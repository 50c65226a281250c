package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medifacil/backend/internal/catalog"
	memstore "github.com/medifacil/backend/internal/store/memory"
)

func ptr(f float64) *float64 { return &f }

func seededStore(t *testing.T) *memstore.CatalogStore {
	t.Helper()
	s := memstore.NewCatalogStore()
	s.SeedPharmacy(catalog.Pharmacy{Name: "Fybeca", Location: "Quito", LinkLogo: "fy.png", Link: "https://www.fybeca.com"})
	s.SeedPharmacy(catalog.Pharmacy{Name: "Medicity", Location: "Guayaquil", LinkLogo: "md.png", Link: "https://www.farmaciasmedicity.com"})

	day := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	seed := []catalog.Listing{
		{URL: "https://www.fybeca.com/aspirina/A_1.html", Pharma: "Fybeca", Name: "Aspirina 100mg", Price: ptr(1.20), IngestDate: day},
		{URL: "https://www.fybeca.com/ibuprofeno/B_2.html", Pharma: "Fybeca", Name: "Ibuprofeno x10 caps", Price: ptr(10.00), IngestDate: day},
		{URL: "https://www.farmaciasmedicity.com/ibuprofeno/p", Pharma: "Medicity", Name: "Ibuprofeno 400mg", Price: ptr(0.80), IngestDate: day},
	}
	for _, l := range seed {
		require.NoError(t, s.UpsertListing(context.Background(), l))
	}
	return s
}

func TestSearchSlotOrderMatchesTermOrder(t *testing.T) {
	t.Parallel()

	engine := New(seededStore(t), nil)
	results, err := engine.Search(context.Background(), []string{"aspirina", "ibuprofeno"})
	require.NoError(t, err)

	require.Len(t, results, 2)
	for _, entry := range results {
		require.Len(t, entry.Products, 2, "one slot per term regardless of matches")
		if !entry.Products[0].Found {
			assert.Equal(t, "aspirina", entry.Products[0].Name)
		}
	}

	// Fybeca matched term 1; it is encountered first.
	fybeca := results[0]
	assert.Equal(t, "Fybeca", fybeca.Name)
	assert.Equal(t, "Quito", fybeca.Location)
	assert.True(t, fybeca.Products[0].Found)
	assert.True(t, fybeca.Products[1].Found)
}

func TestSearchPharmacyMissingFirstTermKeepsDefaultSlot(t *testing.T) {
	t.Parallel()

	engine := New(seededStore(t), nil)
	results, err := engine.Search(context.Background(), []string{"aspirina", "ibuprofeno"})
	require.NoError(t, err)

	var medicity *PharmacyResult
	for i := range results {
		if results[i].Name == "Medicity" {
			medicity = &results[i]
		}
	}
	require.NotNil(t, medicity, "pharmacy with only a term-2 match still appears")

	slot1 := medicity.Products[0]
	assert.Equal(t, "aspirina", slot1.Name)
	assert.False(t, slot1.Found)
	assert.Nil(t, slot1.Price)
	assert.Nil(t, slot1.Link)

	slot2 := medicity.Products[1]
	assert.True(t, slot2.Found)
	assert.Equal(t, "Ibuprofeno 400mg", slot2.Name)
	require.NotNil(t, slot2.Price)
	assert.InDelta(t, 0.80, *slot2.Price, 1e-9)
	require.NotNil(t, slot2.Link)
	assert.Equal(t, "https://www.farmaciasmedicity.com/ibuprofeno/p", *slot2.Link)
}

func TestSearchNormalizesPackPricesAtQueryTime(t *testing.T) {
	t.Parallel()

	engine := New(seededStore(t), nil)
	results, err := engine.Search(context.Background(), []string{"ibuprofeno"})
	require.NoError(t, err)

	var fybeca *PharmacyResult
	for i := range results {
		if results[i].Name == "Fybeca" {
			fybeca = &results[i]
		}
	}
	require.NotNil(t, fybeca)
	slot := fybeca.Products[0]
	require.True(t, slot.Found)
	assert.Equal(t, "Ibuprofeno unidad caps", slot.Name)
	require.NotNil(t, slot.Price)
	assert.InDelta(t, 1.00, *slot.Price, 1e-9)
}

func TestSearchRejectsEmptyTermList(t *testing.T) {
	t.Parallel()

	engine := New(seededStore(t), nil)
	for _, terms := range [][]string{nil, {}, {"  ", ""}} {
		_, err := engine.Search(context.Background(), terms)
		assert.ErrorIs(t, err, ErrNoTerms)
	}
}

func TestSearchUnknownTermYieldsEmptyResponse(t *testing.T) {
	t.Parallel()

	engine := New(seededStore(t), nil)
	results, err := engine.Search(context.Background(), []string{"loratadina"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

type failingCatalog struct {
	*memstore.CatalogStore
}

func (f failingCatalog) BestMatches(context.Context, string) ([]catalog.Listing, error) {
	return nil, errors.New("connection refused")
}

func TestSearchStoreFailureFailsRequest(t *testing.T) {
	t.Parallel()

	engine := New(failingCatalog{memstore.NewCatalogStore()}, nil)
	_, err := engine.Search(context.Background(), []string{"aspirina"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
