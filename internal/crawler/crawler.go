package crawler

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medifacil/backend/internal/archive"
	"github.com/medifacil/backend/internal/catalog"
	"github.com/medifacil/backend/internal/progress"
	"github.com/medifacil/backend/internal/sites"
	"github.com/medifacil/backend/internal/store"
)

// Config holds per-site crawl settings.
type Config struct {
	UserAgent      string
	Parallelism    int
	Delay          time.Duration
	RandomDelay    time.Duration
	RequestTimeout time.Duration
	MaxDepth       int
}

// Summary reports the outcome of one site crawl.
type Summary struct {
	Site          string        `json:"site"`
	RunID         uuid.UUID     `json:"run_id"`
	PagesFetched  int64         `json:"pages_fetched"`
	ItemsIngested int64         `json:"items_ingested"`
	ItemsFailed   int64         `json:"items_failed"`
	Duration      time.Duration `json:"duration"`
}

// Crawler walks one pharmacy site and ingests its product pages.
type Crawler struct {
	site     sites.Site
	cfg      Config
	catalog  store.Catalog
	archiver *archive.Archiver
	emitter  progress.Emitter
	detector Detector
	renderer Renderer
	logger   *zap.Logger
}

// Option customizes optional collaborators.
type Option func(*Crawler)

// WithArchiver enables raw page archiving.
func WithArchiver(a *archive.Archiver) Option {
	return func(c *Crawler) { c.archiver = a }
}

// WithEmitter wires progress events.
func WithEmitter(e progress.Emitter) Option {
	return func(c *Crawler) { c.emitter = e }
}

// WithRenderer enables headless escalation for JS shell pages.
func WithRenderer(d Detector, r Renderer) Option {
	return func(c *Crawler) {
		c.detector = d
		c.renderer = r
	}
}

// New builds a Crawler for one site.
func New(site sites.Site, cfg Config, cat store.Catalog, logger *zap.Logger, opts ...Option) *Crawler {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 2
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Crawler{
		site:    site,
		cfg:     cfg,
		catalog: cat,
		logger:  logger.With(zap.String("site", site.Name)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// runState carries the per-run counters shared by collector callbacks.
type runState struct {
	runID         uuid.UUID
	pagesFetched  atomic.Int64
	itemsIngested atomic.Int64
	itemsFailed   atomic.Int64
}

// Run visits the site's seed URLs and follows listing links until the
// frontier is exhausted or ctx is canceled. It always returns a Summary; the
// error is non-nil only when the run could not start.
func (c *Crawler) Run(ctx context.Context, runID uuid.UUID) (Summary, error) {
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	state := &runState{runID: runID}
	started := time.Now()

	collector, err := c.initCollector(ctx, state)
	if err != nil {
		return Summary{Site: c.site.Name, RunID: runID}, err
	}

	c.emit(progress.Event{
		RunID: runID,
		TS:    started.UTC(),
		Stage: progress.StageCrawlStart,
		Site:  c.site.Name,
	})

	for _, seed := range c.site.Seeds {
		if ctx.Err() != nil {
			break
		}
		if err := collector.Visit(seed); err != nil {
			c.logger.Debug("seed visit rejected", zap.String("url", seed), zap.Error(err))
		}
	}
	collector.Wait()

	summary := Summary{
		Site:          c.site.Name,
		RunID:         runID,
		PagesFetched:  state.pagesFetched.Load(),
		ItemsIngested: state.itemsIngested.Load(),
		ItemsFailed:   state.itemsFailed.Load(),
		Duration:      time.Since(started),
	}

	stage := progress.StageCrawlDone
	if ctx.Err() != nil {
		stage = progress.StageCrawlError
	}
	c.emit(progress.Event{
		RunID: runID,
		TS:    time.Now().UTC(),
		Stage: stage,
		Site:  c.site.Name,
		Dur:   summary.Duration,
		Note:  noteFromCtx(ctx),
	})

	c.logger.Info("crawl finished",
		zap.String("run_id", runID.String()),
		zap.Int64("pages", summary.PagesFetched),
		zap.Int64("items", summary.ItemsIngested),
		zap.Int64("failed", summary.ItemsFailed),
		zap.Duration("duration", summary.Duration))

	return summary, ctx.Err()
}

func (c *Crawler) initCollector(ctx context.Context, state *runState) (*colly.Collector, error) {
	opts := []colly.CollectorOption{
		colly.AllowedDomains(c.site.AllowedDomain),
		colly.UserAgent(c.cfg.UserAgent),
		colly.Async(true),
	}
	if c.cfg.MaxDepth > 0 {
		opts = append(opts, colly.MaxDepth(c.cfg.MaxDepth))
	}
	collector := colly.NewCollector(opts...)
	collector.AllowURLRevisit = false
	collector.SetRequestTimeout(c.cfg.RequestTimeout)

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: c.cfg.Parallelism,
		Delay:       c.cfg.Delay,
		RandomDelay: c.cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("set collector limits: %w", err)
	}

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	collector.OnResponse(c.handleResponse(ctx, state))
	collector.OnError(c.handleError(state))

	return collector, nil
}

func (c *Crawler) handleResponse(ctx context.Context, state *runState) func(*colly.Response) {
	return func(r *colly.Response) {
		pageURL := r.Request.URL.String()
		state.pagesFetched.Add(1)
		c.emit(progress.Event{
			RunID:       state.runID,
			TS:          time.Now().UTC(),
			Stage:       progress.StagePageFetched,
			Site:        c.site.Name,
			URL:         pageURL,
			StatusClass: progress.ClassifyStatus(r.StatusCode),
		})

		if r.StatusCode != 200 || len(r.Body) == 0 {
			c.logger.Warn("skipping response",
				zap.String("url", pageURL),
				zap.Int("status_code", r.StatusCode))
			return
		}

		// Seed fetches always feed link discovery; the URL patterns
		// describe discovered links, not entry points.
		if r.Request.Depth <= 1 {
			c.handleListing(r)
			return
		}

		switch Classify(c.site, pageURL) {
		case RoleItem:
			c.handleItem(ctx, state, r, pageURL)
		case RolePage:
			c.handleListing(r)
		}
	}
}

// handleListing re-feeds every in-domain link; classification happens when
// the link is fetched.
func (c *Crawler) handleListing(r *colly.Response) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		c.logger.Warn("parse listing page", zap.String("url", r.Request.URL.String()), zap.Error(err))
		return
	}
	for _, link := range c.site.Links(doc) {
		normalized, err := NormalizeURL(link)
		if err != nil {
			continue
		}
		if Classify(c.site, normalized) == RoleReject {
			continue
		}
		if err := r.Request.Visit(normalized); err != nil {
			c.logger.Debug("link visit rejected", zap.String("url", normalized), zap.Error(err))
		}
	}
}

func (c *Crawler) handleItem(ctx context.Context, state *runState, r *colly.Response, pageURL string) {
	body := r.Body
	if c.renderer != nil && c.detector != nil && c.detector.NeedsJS(body) {
		rendered, err := c.renderer.Render(ctx, pageURL)
		if err != nil {
			c.logger.Warn("headless render failed, using original body",
				zap.String("url", pageURL), zap.Error(err))
		} else {
			body = rendered
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		c.recordItemFailure(state, pageURL, fmt.Sprintf("parse html: %v", err))
		return
	}

	raw, err := c.site.Extract(doc, pageURL)
	if err != nil {
		c.recordItemFailure(state, pageURL, err.Error())
		return
	}

	listing, err := catalog.Normalize(raw, time.Now().UTC())
	if err != nil {
		c.recordItemFailure(state, pageURL, err.Error())
		return
	}

	if err := c.catalog.UpsertListing(ctx, listing); err != nil {
		c.recordItemFailure(state, pageURL, fmt.Sprintf("upsert: %v", err))
		return
	}

	if c.archiver.Enabled() {
		if _, err := c.archiver.SavePage(ctx, c.site.Name, pageURL, r.Body, time.Now().UTC()); err != nil {
			c.logger.Warn("archive page failed", zap.String("url", pageURL), zap.Error(err))
		}
	}

	state.itemsIngested.Add(1)
	c.emit(progress.Event{
		RunID: state.runID,
		TS:    time.Now().UTC(),
		Stage: progress.StageItemIngested,
		Site:  c.site.Name,
		URL:   pageURL,
	})
}

func (c *Crawler) recordItemFailure(state *runState, pageURL, note string) {
	state.itemsFailed.Add(1)
	c.logger.Warn("item dropped", zap.String("url", pageURL), zap.String("reason", note))
	c.emit(progress.Event{
		RunID: state.runID,
		TS:    time.Now().UTC(),
		Stage: progress.StageItemFailed,
		Site:  c.site.Name,
		URL:   pageURL,
		Note:  note,
	})
}

func (c *Crawler) handleError(state *runState) func(*colly.Response, error) {
	return func(r *colly.Response, err error) {
		state.pagesFetched.Add(1)
		msg := "request failed"
		switch r.StatusCode {
		case 429:
			msg = "rate limited"
		case 403:
			msg = "forbidden"
		}
		c.logger.Warn(msg,
			zap.String("url", r.Request.URL.String()),
			zap.Int("status_code", r.StatusCode),
			zap.Error(err))
		c.emit(progress.Event{
			RunID:       state.runID,
			TS:          time.Now().UTC(),
			Stage:       progress.StagePageFetched,
			Site:        c.site.Name,
			URL:         r.Request.URL.String(),
			StatusClass: progress.ClassifyStatus(r.StatusCode),
			Note:        err.Error(),
		})
	}
}

func (c *Crawler) emit(evt progress.Event) {
	if c.emitter == nil {
		return
	}
	c.emitter.Emit(evt)
}

func noteFromCtx(ctx context.Context) string {
	if err := ctx.Err(); err != nil {
		return err.Error()
	}
	return ""
}
