package api

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/norad/internal/auth"
	"github.com/star/norad/internal/cache"
	"github.com/star/norad/internal/health"
	"github.com/star/norad/internal/httputil"
	"github.com/star/norad/internal/metrics"
	"github.com/star/norad/internal/observability"
	"github.com/star/norad/internal/propagation"
	"github.com/star/norad/internal/stream"
	"github.com/star/norad/internal/tle"
)

// TLEConfig controls where element sets come from and when they are
// refreshed.
type TLEConfig struct {
	EnableFetch     bool
	SourceURL       string
	ExtraSourceURLs []string
	CacheDir        string
	MaxFiles        int
	MaxAge          time.Duration // fetch skips younger data unless forced
	StaleAfter      time.Duration // readiness fails past this age, 0 disables
}

// Deps are the components the handlers serve. Cache, Stream and Static
// are optional; their routes are left out when nil.
type Deps struct {
	Store      *tle.Store
	TLE        TLEConfig
	Source     tle.Source
	TLECache   *tle.Cache
	Propagator *propagation.Propagator
	Cache      *cache.KeyframeCache
	Stream     *stream.Handler
	Static     fs.FS
	TrustProxy bool
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	mux := http.NewServeMux()
	ready := health.NewChecker(deps.Store, deps.TLE.StaleAfter)

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", ready.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/tle/metadata", metadataHandler(deps.Store))
	mux.HandleFunc("POST /api/v1/tle/fetch", fetchHandler(logger, deps))
	mux.HandleFunc("GET /api/v1/propagate/{norad_id}", propagateSingleHandler(logger, deps.Propagator))
	mux.HandleFunc("GET /api/v1/look/{norad_id}", lookHandler(logger, deps.Propagator))
	mux.HandleFunc("GET /api/v1/passes/{norad_id}", passesHandler(logger, deps.Store))

	if deps.Cache != nil {
		mux.HandleFunc("GET /api/v1/cache/stats", cacheStatsHandler(deps.Cache))
	}
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/keyframes", deps.Stream.HandleKeyframes)
	}
	if deps.Static != nil {
		mux.Handle("GET /{$}", http.FileServerFS(deps.Static))
	}

	// metrics -> tracing -> logging -> auth -> mux
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger, deps.TrustProxy)(handler)
	handler = observability.Middleware(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}
			attrs := []any{
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			}
			if id := observability.TraceID(r.Context()); id != "" {
				attrs = append(attrs, "trace_id", id)
			}
			logger.Log(r.Context(), level, "request", attrs...)
		})
	}
}
