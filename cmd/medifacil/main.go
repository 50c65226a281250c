package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/medifacil/backend/internal/api"
	"github.com/medifacil/backend/internal/archive"
	gcsarchive "github.com/medifacil/backend/internal/archive/gcs"
	localarchive "github.com/medifacil/backend/internal/archive/local"
	"github.com/medifacil/backend/internal/config"
	"github.com/medifacil/backend/internal/crawler"
	"github.com/medifacil/backend/internal/hash/sha256"
	"github.com/medifacil/backend/internal/logging"
	"github.com/medifacil/backend/internal/metrics"
	"github.com/medifacil/backend/internal/progress"
	"github.com/medifacil/backend/internal/progress/sinks"
	pubsubpublisher "github.com/medifacil/backend/internal/publisher/pubsub"
	"github.com/medifacil/backend/internal/runner"
	"github.com/medifacil/backend/internal/search"
	"github.com/medifacil/backend/internal/store"
	"github.com/medifacil/backend/internal/store/memory"
	"github.com/medifacil/backend/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalogStore, err := newCatalogStore(ctx, cfg)
	if err != nil {
		logger.Fatal("catalog store init failed", zap.Error(err))
	}
	defer catalogStore.Close()

	hub, cleanupSinks, err := newProgressHub(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("progress hub init failed", zap.Error(err))
	}

	crawlOpts := []crawler.Option{crawler.WithEmitter(hub)}

	archiver, err := newArchiver(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}
	if archiver != nil {
		crawlOpts = append(crawlOpts, crawler.WithArchiver(archiver))
	}

	var renderer crawler.Renderer
	if cfg.Headless.Enabled {
		r, err := crawler.NewChromedpRenderer(crawler.RendererConfig{
			MaxConcurrency: cfg.Headless.MaxParallel,
			Timeout:        time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			DomainQPS:      cfg.Headless.DomainQPS,
			UserAgent:      cfg.Crawler.UserAgent,
		}, logger.Named("renderer"))
		if err != nil {
			logger.Warn("headless renderer init failed, continuing without", zap.Error(err))
		} else {
			renderer = r
			detector := crawler.NewHeuristicDetector(
				cfg.Headless.MinHTMLBytes,
				cfg.Headless.RequiredSelectors,
				cfg.Headless.ShellKeywords,
			)
			crawlOpts = append(crawlOpts, crawler.WithRenderer(detector, renderer))
		}
	}

	crawlerCfg := crawler.Config{
		UserAgent:      cfg.Crawler.UserAgent,
		Parallelism:    cfg.Crawler.Parallelism,
		Delay:          time.Duration(cfg.Crawler.DelayMs) * time.Millisecond,
		RandomDelay:    time.Duration(cfg.Crawler.RandomDelayMs) * time.Millisecond,
		RequestTimeout: time.Duration(cfg.Crawler.RequestTimeoutSecs) * time.Second,
		MaxDepth:       cfg.Crawler.MaxDepth,
	}
	crawls := runner.New(
		runner.DefaultFactory(crawlerCfg, catalogStore, logger.Named("crawler"), crawlOpts...),
		cfg.Crawler.MaxParallelSites,
		logger.Named("runner"),
	)

	engine := search.New(catalogStore, logger.Named("search"))
	apiServer := api.NewServer(engine, crawls, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSecs) * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if renderer != nil {
		if err := renderer.Close(shutdownCtx); err != nil {
			logger.Error("renderer shutdown error", zap.Error(err))
		}
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub shutdown error", zap.Error(err))
	}
	cleanupSinks()
	logger.Info("shutdown complete")
}

// newCatalogStore selects Postgres when a DSN is configured and falls back to
// the in-memory catalog otherwise.
func newCatalogStore(ctx context.Context, cfg config.Config) (store.Catalog, error) {
	if cfg.DB.DSN == "" {
		return memory.NewCatalogStore(), nil
	}
	return postgres.New(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		Language:        cfg.Search.Language,
		MaxConns:        int32(cfg.DB.MaxConns),
		MinConns:        int32(cfg.DB.MinConns),
		MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetimeMin) * time.Minute,
	})
}

// newProgressHub assembles the crawl progress pipeline: structured logs and
// Prometheus collectors always, Pub/Sub notifications when a project is
// configured. The returned cleanup releases the publisher after the hub has
// drained.
func newProgressHub(ctx context.Context, cfg config.Config, logger *zap.Logger) (*progress.Hub, func(), error) {
	sinkList := []progress.Sink{
		sinks.NewLogSink(logger.Named("progress")),
	}
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, nil, fmt.Errorf("register crawl collectors: %w", err)
	}
	sinkList = append(sinkList, promSink)

	cleanup := func() {}
	if cfg.PubSub.ProjectID != "" {
		pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub publisher: %w", err)
		}
		sinkList = append(sinkList, sinks.NewPublishSink(pub, cfg.PubSub.TopicName, logger.Named("publish")))
		cleanup = func() {
			if err := pub.Close(); err != nil {
				logger.Error("pubsub publisher close error", zap.Error(err))
			}
		}
	}

	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")}, sinkList...)
	return hub, cleanup, nil
}

// newArchiver builds the page archiver for the configured backend, or nil
// when archiving is disabled.
func newArchiver(ctx context.Context, cfg config.Config, logger *zap.Logger) (*archive.Archiver, error) {
	var blobs archive.BlobStore
	switch cfg.Archive.Backend {
	case "":
		return nil, nil
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		blobs, err = gcsarchive.New(ctx, client, gcsarchive.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			return nil, err
		}
	case "local":
		var err error
		blobs, err = localarchive.New(localarchive.Config{BaseDir: cfg.Archive.LocalDir})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
	return archive.New(blobs, sha256.New(), cfg.Archive.Prefix, logger.Named("archive")), nil
}
