package sites

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/medifacil/backend/internal/catalog"
)

const (
	cruzAzulBase   = "https://farmaciascruzazul.ec"
	cruzAzulPharma = "CruzAzul"
)

// cruzAzul product URLs are slugs with a trailing numeric id; availability
// comes from the in-stock badge rather than a text node.
var cruzAzul = Site{
	Name:          "cruzazul",
	Pharma:        cruzAzulPharma,
	BaseURL:       cruzAzulBase,
	AllowedDomain: domainOf(cruzAzulBase),
	Seeds:         pageRange(cruzAzulBase+"/medicina?pagenumber=%d", 30),
	ItemPattern:   regexp.MustCompile(`^https?://(?:www\.)?farmaciascruzazul\.ec/[a-zA-Z0-9\-_]+.*\d+$`),
	PagePattern:   regexp.MustCompile(`^https?://(?:www\.)?farmaciascruzazul\.ec/[a-zA-Z0-9\-_.]+$`),
	Extract:       extractCruzAzul,
}

func extractCruzAzul(doc *goquery.Document, pageURL string) (catalog.RawListing, error) {
	name := strings.TrimSpace(doc.Find("div.ps-product__title a").First().Text())
	price := strings.TrimSpace(doc.Find("div.ps-product__meta span.ps-product__price").First().Text())
	imageURL, _ := doc.Find("div.ps-product__thumbnail img").First().Attr("src")

	availability := "No available"
	if doc.Find("div.ps-product__badge span.ps-badge--instock").Length() > 0 {
		availability = "Available"
	}

	return catalog.RawListing{
		URL:          pageURL,
		Pharma:       cruzAzulPharma,
		Name:         name,
		PriceText:    price,
		ImageURL:     imageURL,
		Availability: availability,
	}, nil
}
