package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/traffic-data-etl/internal/ledger"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

// RunLister returns the most recent segment syncs, newest first.
type RunLister interface {
	Recent(ctx context.Context, n int) ([]ledger.SyncRun, error)
}

// Server exposes health, readiness, metrics and sync history endpoints.
type Server struct {
	httpServer *http.Server
	runs       RunLister
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz and /metrics routes.
// /runs is added when runs is non-nil.
func NewServer(addr string, ready sharedobs.ReadinessChecker, runs RunLister, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		runs:   runs,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if runs != nil {
		mux.HandleFunc("GET /runs", s.handleRuns)
	}

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

type runView struct {
	RunID       string    `json:"run_id"`
	SegmentID   string    `json:"segment_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	RowsAdded   int       `json:"rows_added"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRunsLimit {
			sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be an integer between 1 and " + strconv.Itoa(maxRunsLimit),
			})
			return
		}
		limit = n
	}

	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list sync runs failed", "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "ledger unavailable"})
		return
	}

	out := make([]runView, 0, len(runs))
	for _, run := range runs {
		out = append(out, runView{
			RunID:       run.RunID,
			SegmentID:   run.SegmentID,
			WindowStart: run.WindowStart,
			WindowEnd:   run.WindowEnd,
			RowsAdded:   run.RowsAdded,
			Status:      run.Status,
			Error:       run.Error,
			FinishedAt:  run.FinishedAt,
		})
	}
	sharedobs.WriteJSON(w, http.StatusOK, out)
}
