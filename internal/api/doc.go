// Package api exposes the HTTP surface: health probes, Prometheus metrics,
// the cross-pharmacy search endpoint, and the crawl trigger.
package api
