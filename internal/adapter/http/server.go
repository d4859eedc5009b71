package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/ltv-stats-service/internal/observability"
	"github.com/couchcryptid/ltv-stats-service/internal/snapshot"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SnapshotStore provides the current snapshot. Load builds it on first use.
type SnapshotStore interface {
	Load(ctx context.Context) (*snapshot.Snapshot, error)
	CheckReadiness(ctx context.Context) error
}

// Server exposes the LTV data API plus health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	store      SnapshotStore
	stats      *statsCache
	logger     *slog.Logger
}

// NewServer creates an HTTP server. statsCacheSize bounds the number of
// memoized filtered aggregates.
func NewServer(addr string, store SnapshotStore, metrics *observability.Metrics, statsCacheSize int, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:  store,
		stats:  newStatsCache(statsCacheSize, metrics),
		logger: logger,
	}

	mux.HandleFunc("GET /api/data", s.handleData)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/records", s.handleRecords)
	mux.HandleFunc("GET /api/records.csv", s.handleRecordsCSV)
	mux.HandleFunc("GET /api/lines", s.handleLines)
	mux.HandleFunc("GET /api/tracks", s.handleTracks)

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(store))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
