package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/balloon-reliability-service/internal/domain"
	"github.com/couchcryptid/balloon-reliability-service/internal/enrich"
)

// processTimeout bounds one on-demand run; enrichment paces its provider
// calls, so this is far longer than the ops endpoints need.
const processTimeout = 10 * time.Minute

// RunProcessor scores and enriches one run on demand.
type RunProcessor interface {
	ProcessRun(ctx context.Context, runID int64) (domain.RunReport, error)
}

// Server exposes health, readiness, metrics, and run trigger HTTP endpoints.
type Server struct {
	httpServer *http.Server
	runs       RunProcessor
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, and /metrics routes.
// Readiness reflects the processor: database reachable and polling started.
// When runs is non-nil, POST /runs/{id}/process triggers a run out of band.
func NewServer(addr string, ready sharedobs.ReadinessChecker, runs RunProcessor, logger *slog.Logger) *Server {
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
		mux.HandleFunc("POST /runs/{id}/process", s.handleProcessRun)
	}

	return s
}

type processResponse struct {
	OK bool `json:"ok"`
	*domain.RunReport
	Error string `json:"error,omitempty"`
}

func (s *Server) handleProcessRun(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || runID <= 0 {
		writeJSON(w, http.StatusBadRequest, processResponse{Error: "invalid run id"})
		return
	}

	// Per-request deadline replaces the server-wide WriteTimeout for this route.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(processTimeout)); err != nil {
		s.logger.Debug("extend write deadline", "error", err)
	}
	ctx, cancel := context.WithTimeout(r.Context(), processTimeout)
	defer cancel()

	report, err := s.runs.ProcessRun(ctx, runID)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("process run failed", "run_id", runID, "error", err)
		}
		writeJSON(w, status, processResponse{RunReport: &report, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, processResponse{OK: true, RunReport: &report})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRunNotIngested),
		errors.Is(err, domain.ErrRunNotScored),
		errors.Is(err, domain.ErrRunAlreadyEnriched),
		errors.Is(err, enrich.ErrRunBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
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
