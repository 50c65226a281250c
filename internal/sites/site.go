// Package sites models each supported pharmacy as data: seed URLs, URL
// patterns, and a pure extraction function. The crawler and dispatcher are
// generic and configured entirely from this registry.
package sites

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/medifacil/backend/internal/catalog"
)

// Extractor pulls the raw listing fields from a parsed product page. It must
// not touch the network or storage; missing optional fields come back as
// empty strings.
type Extractor func(doc *goquery.Document, pageURL string) (catalog.RawListing, error)

// Site describes one pharmacy website. Seeds are fetched unconditionally
// and treated as listing pages; for discovered links ItemPattern is checked
// before PagePattern, and URLs matching neither are dropped.
type Site struct {
	Name          string
	Pharma        string
	BaseURL       string
	AllowedDomain string
	Seeds         []string
	ItemPattern   *regexp.Regexp
	PagePattern   *regexp.Regexp
	Extract       Extractor
}

// Registry returns every supported site keyed by its identifier.
func Registry() map[string]Site {
	return map[string]Site{
		fybeca.Name:   fybeca,
		medicity.Name: medicity,
		cruzAzul.Name: cruzAzul,
	}
}

// Lookup resolves a site identifier, case-insensitively.
func Lookup(name string) (Site, error) {
	site, ok := Registry()[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Site{}, fmt.Errorf("unknown site %q", name)
	}
	return site, nil
}

// Names lists the registered site identifiers in stable order.
func Names() []string {
	reg := Registry()
	names := make([]string, 0, len(reg))
	for name := range reg {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Links yields every anchor href on a listing page, lower-cased and resolved
// against the site base URL. No pattern filtering happens here; the
// dispatcher classifies each link on its next visit.
func (s Site) Links(doc *goquery.Document) []string {
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.ToLower(strings.TrimSpace(href))
		if href == "" || href == "/" {
			return
		}
		switch {
		case strings.HasPrefix(href, "http"):
			links = append(links, href)
		case strings.HasPrefix(href, "/"):
			links = append(links, s.BaseURL+href)
		}
	})
	return links
}

// pageRange expands a paginated seed template for pages [1, n).
func pageRange(template string, n int) []string {
	urls := make([]string, 0, n-1)
	for i := 1; i < n; i++ {
		urls = append(urls, fmt.Sprintf(template, i))
	}
	return urls
}

// domainOf returns the bare hostname, matching what Colly's domain filter
// compares against.
func domainOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
