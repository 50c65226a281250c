package sites

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/medifacil/backend/internal/catalog"
)

const (
	medicityBase   = "https://www.farmaciasmedicity.com"
	medicityPharma = "Medicity"
)

// medicityExtraPaths are category and storefront-search entry points beyond
// the main medicine catalog; each is expanded with "&page=N" pagination.
var medicityExtraPaths = []string{
	"/especialidad",
	"/medicina?order=",
	"/dermocosmetica?order=",
	"/cuidado-infantil-y-mama?order=",
	"/bienestar-y-nutricion/vitaminas-adultos?order=",
	"/belleza?order=",
	"/cuidado-personal?order=",
	"/cuidado-infantil-y-mama?order=OrderByBestDiscountDESC",
	"/bienestar-y-nutricion?order=OrderByBestDiscountDESC",
	"/dermocosmetica?order=OrderByBestDiscountDESC",
	"/medicina?order=OrderByBestDiscountDESC",
	"/139?map=productClusterIds&order=OrderByBestDiscountDESC",
	"/piel%20grasa?_q=piel%20grasa&map=ft",
	"/antiedad?_q=antiedad&map=ft",
	"/pigmentos?_q=pigmentos&map=ft",
	"/eucerin?_q=eucerin&map=ft",
	"/la%20roche?_q=la%20roche&map=ft",
	"/bioderma?_q=bioderma&map=ft",
	"/redoxon?_q=redoxon&map=ft",
	"/pediasure?_q=pediasure&map=ft",
}

// medicity is a VTEX storefront: product URLs end in "/p" and the price is
// split across currency-part spans.
var medicity = Site{
	Name:          "medicity",
	Pharma:        medicityPharma,
	BaseURL:       medicityBase,
	AllowedDomain: domainOf(medicityBase),
	Seeds:         medicitySeeds(),
	ItemPattern:   regexp.MustCompile(`^https://(?:www\.)?farmaciasmedicity\.com/[a-zA-Z0-9\-.]+/p$`),
	PagePattern:   regexp.MustCompile(`^https?://(?:www\.)?farmaciasmedicity\.com/[a-zA-Z0-9\-.]+$`),
	Extract:       extractMedicity,
}

func medicitySeeds() []string {
	seeds := pageRange(medicityBase+"/medicina?page=%d", 50)
	seeds = append(seeds, medicityBase)
	for _, path := range medicityExtraPaths {
		base := medicityBase + path
		seeds = append(seeds, pageRange(base+"&page=%d", 50)...)
		seeds = append(seeds, base)
	}
	return seeds
}

func extractMedicity(doc *goquery.Document, pageURL string) (catalog.RawListing, error) {
	name := strings.TrimSpace(doc.Find(
		"div.vtex-flex-layout-0-x-flexCol--right-col h1.vtex-store-components-3-x-productNameContainer span.vtex-store-components-3-x-productBrand",
	).First().Text())

	integer := doc.Find("span.vtex-product-price-1-x-currencyInteger").First().Text()
	decimal := doc.Find("span.vtex-product-price-1-x-currencyDecimal").First().Text()
	fraction := doc.Find("span.vtex-product-price-1-x-currencyFraction").First().Text()
	price := integer + decimal + fraction

	imageURL, _ := doc.Find("img.vtex-store-components-3-x-imageElement").First().Attr("src")
	availability := strings.TrimSpace(doc.Find(
		"div.vtex-product-availability-0-x-container span.vtex-product-availability-0-x-highStockText",
	).First().Text())

	return catalog.RawListing{
		URL:          pageURL,
		Pharma:       medicityPharma,
		Name:         name,
		PriceText:    price,
		ImageURL:     imageURL,
		Availability: availability,
	}, nil
}
