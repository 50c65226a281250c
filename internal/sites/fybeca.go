package sites

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/medifacil/backend/internal/catalog"
)

const (
	fybecaBase   = "https://www.fybeca.com"
	fybecaPharma = "Fybeca"
)

// fybeca serves product pages as "<slug>/<SKU>_<digits>.html" with a JSON-LD
// product block; the CSS selectors are the fallback when the block is absent
// or malformed.
var fybeca = Site{
	Name:          "fybeca",
	Pharma:        fybecaPharma,
	BaseURL:       fybecaBase,
	AllowedDomain: domainOf(fybecaBase),
	Seeds:         []string{fybecaBase},
	ItemPattern:   regexp.MustCompile(`^https://www\.fybeca\.com/[a-zA-Z0-9\-.]+/[A-Z]+_[0-9]+\.html$`),
	PagePattern:   regexp.MustCompile(`^https?://www\.fybeca\.com/[a-zA-Z0-9\-.]+$`),
	Extract:       extractFybeca,
}

// ldProduct is the slice of schema.org Product we care about.
type ldProduct struct {
	Name   string   `json:"name"`
	Image  []string `json:"image"`
	Offers struct {
		Price        json.Number `json:"price"`
		Availability string      `json:"availability"`
	} `json:"offers"`
}

func extractFybeca(doc *goquery.Document, pageURL string) (catalog.RawListing, error) {
	var product ldProduct
	if blob := doc.Find(`script[type="application/ld+json"]`).First().Text(); blob != "" {
		// Malformed structured data falls through to the DOM selectors.
		_ = json.Unmarshal([]byte(blob), &product)
	}

	name := product.Name
	if name == "" {
		name = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	price := product.Offers.Price.String()
	if price == "" {
		price, _ = doc.Find(".price .value").First().Attr("content")
	}

	imageURL := ""
	if len(product.Image) > 0 {
		imageURL = product.Image[0]
	}
	if imageURL == "" {
		imageURL, _ = doc.Find("img.product-image").First().Attr("src")
	}

	availability := product.Offers.Availability
	if availability == "" {
		availability = strings.TrimSpace(doc.Find(".availability").First().Text())
	}

	return catalog.RawListing{
		URL:          pageURL,
		Pharma:       fybecaPharma,
		Name:         name,
		PriceText:    price,
		ImageURL:     imageURL,
		Availability: availability,
	}, nil
}
