package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// quantityPattern finds multi-unit pack markers in product names, either the
// "x<N>" form ("Ibuprofeno x10 caps") or the "<N> unidad(es)" form
// ("Vitamina C 30 unidades"). The trailing group captures whatever follows
// the marker so the canonical name can keep it.
var quantityPattern = regexp.MustCompile(`(?i)(.+?)(?:\s*x(\d+)|\s*(\d+)\s*unidad(?:es)?)(.*)`)

var priceJunk = regexp.MustCompile(`[^\d.,]`)

// CleanPrice turns raw price text into a number. Pharmacies mix currency
// symbols, thousands marks, and comma decimals; when both "." and "," appear
// the later one is taken as the decimal separator.
func CleanPrice(text string) (float64, error) {
	cleaned := priceJunk.ReplaceAllString(text, "")
	if cleaned == "" {
		return 0, fmt.Errorf("no digits in price text %q", text)
	}

	dot := strings.LastIndex(cleaned, ".")
	comma := strings.LastIndex(cleaned, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case comma >= 0:
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}

	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", text, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive price %q", text)
	}
	return price, nil
}

// UnitPrice divides a pack price down to a single unit when the product name
// carries a quantity marker, rewriting the name to its canonical per-unit
// form. Names without a marker pass through unchanged. The same function
// runs at ingestion and at query time so stored and ranked prices agree.
func UnitPrice(name string, price float64) (string, float64) {
	m := quantityPattern.FindStringSubmatch(name)
	if m == nil {
		return name, price
	}

	digits := m[2]
	if digits == "" {
		digits = m[3]
	}
	quantity, err := strconv.Atoi(digits)
	if err != nil || quantity <= 0 {
		return name, price
	}

	base := strings.TrimSpace(m[1])
	suffix := strings.TrimSpace(m[4])
	canonical := base + " unidad"
	if suffix != "" {
		canonical += " " + suffix
	}
	return canonical, price / float64(quantity)
}
