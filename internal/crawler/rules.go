package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/medifacil/backend/internal/sites"
)

// Role classifies what the crawler should do with a URL.
type Role int

// URL roles, in precedence order. Item patterns win over page patterns.
const (
	RoleReject Role = iota
	RoleItem
	RolePage
)

func (r Role) String() string {
	switch r {
	case RoleItem:
		return "item"
	case RolePage:
		return "page"
	default:
		return "reject"
	}
}

// Classify decides the crawl role for a URL on the given site. URLs outside
// the site's domain or matching neither pattern are rejected.
func Classify(site sites.Site, rawURL string) Role {
	u, err := url.Parse(rawURL)
	if err != nil {
		return RoleReject
	}
	if site.AllowedDomain != "" && !strings.EqualFold(u.Hostname(), site.AllowedDomain) {
		return RoleReject
	}
	if site.ItemPattern != nil && site.ItemPattern.MatchString(rawURL) {
		return RoleItem
	}
	if site.PagePattern != nil && site.PagePattern.MatchString(rawURL) {
		return RolePage
	}
	return RoleReject
}

// NormalizeURL standardizes a URL to avoid duplicate visits. It lowercases
// the scheme and host, strips default ports and fragments, and sorts query
// parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}
