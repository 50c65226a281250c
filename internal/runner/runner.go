// Package runner fans a crawl request out over the selected pharmacy sites
// with bounded concurrency.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medifacil/backend/internal/crawler"
	"github.com/medifacil/backend/internal/sites"
	"github.com/medifacil/backend/internal/store"
)

// CrawlerFactory builds a site crawler. It exists so tests can substitute
// fakes for the Colly-backed implementation.
type CrawlerFactory func(site sites.Site) SiteCrawler

// SiteCrawler runs one site crawl.
type SiteCrawler interface {
	Run(ctx context.Context, runID uuid.UUID) (crawler.Summary, error)
}

// Report aggregates the per-site summaries of one crawl run.
type Report struct {
	RunID     uuid.UUID         `json:"run_id"`
	Started   time.Time         `json:"started"`
	Finished  time.Time         `json:"finished"`
	Summaries []crawler.Summary `json:"summaries"`
}

// Runner coordinates crawls across sites.
type Runner struct {
	factory     CrawlerFactory
	maxParallel int
	logger      *zap.Logger
}

// New creates a Runner. maxParallel bounds how many sites crawl at once.
func New(factory CrawlerFactory, maxParallel int, logger *zap.Logger) *Runner {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{factory: factory, maxParallel: maxParallel, logger: logger}
}

// DefaultFactory wires the Colly crawler with the given shared collaborators.
func DefaultFactory(cfg crawler.Config, cat store.Catalog, logger *zap.Logger, opts ...crawler.Option) CrawlerFactory {
	return func(site sites.Site) SiteCrawler {
		return crawler.New(site, cfg, cat, logger, opts...)
	}
}

// RunSites crawls the named sites and returns a combined report. Unknown site
// names fail the request before any crawling starts. An empty names slice
// means every registered site.
func (r *Runner) RunSites(ctx context.Context, names []string) (Report, error) {
	if len(names) == 0 {
		names = sites.Names()
	}
	selected := make([]sites.Site, 0, len(names))
	for _, name := range names {
		site, err := sites.Lookup(name)
		if err != nil {
			return Report{}, fmt.Errorf("select sites: %w", err)
		}
		selected = append(selected, site)
	}

	runID := uuid.New()
	report := Report{
		RunID:     runID,
		Started:   time.Now().UTC(),
		Summaries: make([]crawler.Summary, len(selected)),
	}

	r.logger.Info("crawl run starting",
		zap.String("run_id", runID.String()),
		zap.Int("sites", len(selected)))

	sem := make(chan struct{}, r.maxParallel)
	var wg sync.WaitGroup
	for i, site := range selected {
		wg.Add(1)
		go func(idx int, s sites.Site) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				report.Summaries[idx] = crawler.Summary{Site: s.Name, RunID: runID}
				return
			}
			summary, err := r.factory(s).Run(ctx, runID)
			if err != nil {
				r.logger.Warn("site crawl aborted",
					zap.String("site", s.Name),
					zap.Error(err))
			}
			report.Summaries[idx] = summary
		}(i, site)
	}
	wg.Wait()

	report.Finished = time.Now().UTC()
	return report, ctx.Err()
}
