package api

import (
	"bufio"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/star/czmlgo/internal/auth"
	"github.com/star/czmlgo/internal/cache"
	"github.com/star/czmlgo/internal/config"
	"github.com/star/czmlgo/internal/health"
	"github.com/star/czmlgo/internal/ingest"
	"github.com/star/czmlgo/internal/metrics"
	"github.com/star/czmlgo/internal/sp3"
	"github.com/star/czmlgo/internal/stream"
)

// Deps are the services the routes are served from.
type Deps struct {
	Store      *sp3.Store
	Loader     *ingest.Loader
	Pool       *ingest.Pool // parses uploaded SP3 texts
	Docs       *cache.DocumentCache
	Stream     *stream.Handler
	Appearance *config.Appearance
	Web        fs.FS // optional viewer, must hold index.html
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(logger, authCfg, deps),
			ReadTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			// Streams push their own deadline forward before every write.
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler registers every route and wraps them in the middleware chain.
func NewHandler(logger *slog.Logger, authCfg auth.Config, deps Deps) http.Handler {
	if deps.Appearance == nil {
		deps.Appearance = config.Default()
	}
	if deps.Pool == nil {
		deps.Pool = ingest.NewPool(1, "", logger)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() bool {
		return deps.Docs != nil && deps.Docs.Get() != nil
	}))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/v1/convert/sp3", convertSP3Handler(logger, deps))
	mux.HandleFunc("POST /api/v1/convert/events", convertEventsHandler(logger, deps))

	if deps.Docs != nil {
		mux.HandleFunc("GET /api/v1/czml", documentHandler(deps.Docs))
		mux.HandleFunc("GET /api/v1/czml/satellites/{id}", packetHandler(deps.Docs))
		mux.HandleFunc("GET /api/v1/cache/stats", cacheStatsHandler(deps.Docs))
	}
	if deps.Store != nil {
		mux.HandleFunc("GET /api/v1/sp3/metadata", metadataHandler(deps.Store))
	}
	if deps.Loader != nil {
		mux.HandleFunc("POST /api/v1/sp3/fetch", fetchHandler(logger, deps.Loader))
	}
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/czml", deps.Stream.HandleCZML)
		mux.HandleFunc("GET /api/v1/ws/czml", deps.Stream.HandleWebSocket)
	}
	if deps.Web != nil {
		mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFileFS(w, r, deps.Web, "index.html")
		})
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)
	return handler
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
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

// statusRecorder keeps the status for the access log. It passes Flush and
// Hijack through so streams work behind it.
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

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	// A hijacked connection reports 101 in the access log.
	sr.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
