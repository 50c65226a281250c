// Package crawler walks one pharmacy site at a time using Colly, classifies
// each fetched URL as a product or listing page, extracts product fields, and
// upserts normalized listings into the catalog. Pages that look like empty
// JavaScript shells can be escalated to a headless renderer.
package crawler
