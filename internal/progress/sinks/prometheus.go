package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medifacil/backend/internal/progress"
)

// PrometheusSink exports crawl progress metrics via Prometheus. It owns all
// collectors for runs started/completed/running and per-site page and item
// counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	pagesFetched *prometheus.CounterVec
	items        *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawl_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_runs_completed_total",
			Help: "Total crawl runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawl_runs_running",
			Help: "Current number of running crawl runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawl_run_duration_seconds",
			Help:    "Wall time per completed crawl run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"result"}),
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_pages_total",
			Help: "Page fetches partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_items_total",
			Help: "Item extraction outcomes partitioned by site and result.",
		}, []string{"site", "result"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.pagesFetched,
		s.items,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageCrawlStart, progress.StageCrawlDone, progress.StageCrawlError:
		s.handleRunEvent(evt)
	case progress.StagePageFetched:
		s.handlePageEvent(evt)
	case progress.StageItemIngested:
		s.items.WithLabelValues(siteLabel(evt), "ingested").Inc()
	case progress.StageItemFailed:
		s.items.WithLabelValues(siteLabel(evt), "failed").Inc()
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageCrawlStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID, evt.Site) {
			s.runsRunning.Inc()
		}
	case progress.StageCrawlDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		s.observeDuration(evt, "success")
	case progress.StageCrawlError:
		s.runsCompleted.WithLabelValues("error").Inc()
		s.observeDuration(evt, "error")
	}
	if evt.Stage != progress.StageCrawlStart && s.tracker.complete(evt.RunID, evt.Site) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeDuration(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handlePageEvent(evt progress.Event) {
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.pagesFetched.WithLabelValues(siteLabel(evt), statusClass).Inc()
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func siteLabel(evt progress.Event) string {
	if evt.Site == "" {
		return "unknown"
	}
	return evt.Site
}

// runTracker keys running crawls by run and site so one run fanning out to
// several sites keeps the gauge accurate.
type runTracker struct {
	mu      sync.Mutex
	running map[runKey]struct{}
}

type runKey struct {
	id   uuid.UUID
	site string
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[runKey]struct{})}
}

func (t *runTracker) start(id uuid.UUID, site string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := runKey{id: id, site: site}
	if _, ok := t.running[key]; ok {
		return false
	}
	t.running[key] = struct{}{}
	return true
}

func (t *runTracker) complete(id uuid.UUID, site string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := runKey{id: id, site: site}
	if _, ok := t.running[key]; !ok {
		return false
	}
	delete(t.running, key)
	return true
}
