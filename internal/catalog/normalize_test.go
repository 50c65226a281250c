package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want float64
	}{
		{"plain", "2.50", 2.50},
		{"currency symbol", "$3.75", 3.75},
		{"comma decimal", "12,50", 12.50},
		{"thousands mark", "$1,234.56", 1234.56},
		{"european thousands", "1.234,56", 1234.56},
		{"whitespace and label", " USD 9.99 ", 9.99},
		{"integer", "15", 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CleanPrice(tc.in)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestCleanPriceRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "abc", "$", "..", "0"} {
		_, err := CleanPrice(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestUnitPrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		inName    string
		inPrice   float64
		wantName  string
		wantPrice float64
	}{
		{"x marker with suffix", "Ibuprofen x10 caps", 10.00, "Ibuprofen unidad caps", 1.00},
		{"unidades marker no suffix", "Vitamin C 30 unidades", 15.00, "Vitamin C unidad", 0.50},
		{"singular unidad", "Paracetamol 500mg 20 unidad", 5.00, "Paracetamol 500mg unidad", 0.25},
		{"no marker", "Paracetamol", 2.50, "Paracetamol", 2.50},
		{"zero quantity ignored", "Gasas x0 pack", 4.00, "Gasas x0 pack", 4.00},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotName, gotPrice := UnitPrice(tc.inName, tc.inPrice)
			assert.Equal(t, tc.wantName, gotName)
			assert.InDelta(t, tc.wantPrice, gotPrice, 1e-9)
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	t.Run("full item", func(t *testing.T) {
		listing, err := Normalize(RawListing{
			URL:          "https://www.fybeca.com/ibuprofeno/ABC_123.html",
			Pharma:       "Fybeca",
			Name:         "Ibuprofeno 400mg x20 tabletas",
			PriceText:    "$8.00",
			ImageURL:     "https://cdn.fybeca.com/ibu.jpg",
			Availability: "InStock",
		}, day)
		require.NoError(t, err)
		assert.Equal(t, "Ibuprofeno 400mg unidad tabletas", listing.Name)
		require.NotNil(t, listing.Price)
		assert.InDelta(t, 0.40, *listing.Price, 1e-9)
		assert.Equal(t, "Fybeca", listing.Pharma)
		assert.Equal(t, day, listing.IngestDate)
	})

	t.Run("unparseable price still ingests", func(t *testing.T) {
		listing, err := Normalize(RawListing{
			URL:       "https://example.com/p",
			Pharma:    "Medicity",
			Name:      "Aspirina",
			PriceText: "consultar",
		}, day)
		require.NoError(t, err)
		assert.Nil(t, listing.Price)
		assert.Equal(t, "Aspirina", listing.Name)
	})

	t.Run("missing name fails the item", func(t *testing.T) {
		_, err := Normalize(RawListing{URL: "https://example.com/p", PriceText: "1.00"}, day)
		assert.ErrorIs(t, err, ErrMissingName)
	})

	t.Run("missing url fails the item", func(t *testing.T) {
		_, err := Normalize(RawListing{Name: "Aspirina"}, day)
		assert.ErrorIs(t, err, ErrMissingURL)
	})
}
