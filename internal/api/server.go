package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medifacil/backend/internal/config"
	"github.com/medifacil/backend/internal/metrics"
	"github.com/medifacil/backend/internal/runner"
	"github.com/medifacil/backend/internal/search"
	"github.com/medifacil/backend/internal/sites"
)

// CrawlRunner triggers crawl runs. Satisfied by *runner.Runner.
type CrawlRunner interface {
	RunSites(ctx context.Context, names []string) (runner.Report, error)
}

// Server routes HTTP requests to the search engine and the crawl runner.
type Server struct {
	router chi.Router
	engine *search.Engine
	runner CrawlRunner
	cfg    config.Config
	logger *zap.Logger
}

// NewServer builds the router with all middlewares and routes attached.
func NewServer(engine *search.Engine, crawls CrawlRunner, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		router: chi.NewRouter(),
		engine: engine,
		runner: crawls,
		cfg:    cfg,
		logger: logger,
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoverMiddleware)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		if s.cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(s.cfg.Auth.APIKey))
		}
		r.With(timeoutMiddleware(s.cfg.SearchTimeout())).
			Get("/search", s.handleSearch)
		r.Post("/crawl", s.handleCrawl)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "search engine not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleSearch answers GET /v1/search?name=term1,term2 with one entry per
// pharmacy that matched at least one term.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	terms := splitTerms(r.URL.Query().Get("name"))

	start := time.Now()
	results, err := s.engine.Search(r.Context(), terms)
	if err != nil {
		if errors.Is(err, search.ErrNoTerms) {
			metrics.ObserveSearch("bad_request", time.Since(start))
			writeError(w, http.StatusBadRequest, "query parameter 'name' is required")
			return
		}
		metrics.ObserveSearch("error", time.Since(start))
		s.logger.Error("search failed", zap.Strings("terms", terms), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	metrics.ObserveSearch("ok", time.Since(start))

	if results == nil {
		results = []search.PharmacyResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

type crawlRequest struct {
	Sites []string `json:"sites"`
}

// handleCrawl runs the requested crawls synchronously and returns the
// combined report. An empty or absent sites list crawls every registered
// site.
func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	for _, name := range req.Sites {
		if _, err := sites.Lookup(name); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown site %q", name))
			return
		}
	}

	report, err := s.runner.RunSites(r.Context(), req.Sites)
	if err != nil {
		s.logger.Error("crawl run failed", zap.Strings("sites", req.Sites), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "crawl run failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func splitTerms(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))

		id, _ := r.Context().Value(requestIDKey).(string)
		s.logger.Info("http request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("dur", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// apiKeyMiddleware accepts the key in the X-API-Key header or, for curl
// convenience, the api_key query parameter.
func apiKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-API-Key")
			if got == "" {
				got = r.URL.Query().Get("api_key")
			}
			if got != key {
				writeError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// responseWriter records the status code for logging and metrics while
// passing Flush and Hijack through to the underlying writer.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("response writer does not support hijacking")
}
