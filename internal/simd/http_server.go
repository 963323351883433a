package simd

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/GoSim-25-26J-441/ptasim-core/internal/metrics"
	"github.com/GoSim-25-26J-441/ptasim-core/internal/report"
	"github.com/GoSim-25-26J-441/ptasim-core/internal/simulation"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/logger"
	"github.com/GoSim-25-26J-441/ptasim-core/pkg/models"
)

// maxBodyBytes caps request bodies; scenarios are small
const maxBodyBytes = 1 << 20

type HTTPServer struct {
	mux      *http.ServeMux
	store    *RunStore
	Executor *RunExecutor
	limiter  *rate.Limiter
}

func NewHTTPServer(store *RunStore, executor *RunExecutor) *HTTPServer {
	s := &HTTPServer{
		mux:      http.NewServeMux(),
		store:    store,
		Executor: executor,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/v1/runs", s.handleRuns)
	s.mux.HandleFunc("/v1/runs/", s.handleRunByID)
	s.mux.HandleFunc("/v1/simulate", s.handleSimulate)

	return s
}

// SetRateLimit bounds run creation and synchronous simulation to rps requests
// per second with the given burst. rps <= 0 removes the limit.
func (s *HTTPServer) SetRateLimit(rps float64, burst int) {
	if rps <= 0 {
		s.limiter = nil
		return
	}
	if burst <= 0 {
		burst = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"runs":      s.store.Len(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleRuns handles /v1/runs endpoint
func (s *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleRunByID handles /v1/runs/{id} and related endpoints
func (s *HTTPServer) handleRunByID(w http.ResponseWriter, r *http.Request) {
	// /v1/runs/{id}, /v1/runs/{id}:start, /v1/runs/{id}:stop,
	// /v1/runs/{id}/results, /v1/runs/{id}/export
	path := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	route := func(suffix, method string, h func(http.ResponseWriter, *http.Request, string)) bool {
		if !strings.HasSuffix(path, suffix) {
			return false
		}
		if r.Method != method {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return true
		}
		h(w, r, strings.TrimSuffix(path, suffix))
		return true
	}

	switch {
	case route(":start", http.MethodPost, s.handleStartRun):
	case route(":stop", http.MethodPost, s.handleStopRun):
	case route("/results", http.MethodGet, s.handleGetResults):
	case route("/export", http.MethodGet, s.handleExportRun):
	case strings.Contains(path, "/"):
		s.writeError(w, http.StatusNotFound, "not found")
	case r.Method == http.MethodGet:
		s.handleGetRun(w, r, path)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCreateRun handles POST /v1/runs
func (s *HTTPServer) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w) {
		return
	}

	var req CreateRunRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rec, err := createRun(s.store, s.Executor, &req)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"run": rec.Run,
	})
}

// handleListRuns handles GET /v1/runs with pagination and filtering
func (s *HTTPServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, 1000)
		}
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	var statusFilter models.RunStatus
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		statusFilter = models.ParseRunStatus(statusStr)
		if statusFilter == "" {
			s.writeError(w, http.StatusBadRequest, "unknown status: "+statusStr)
			return
		}
	}

	recs := s.store.ListFiltered(limit, offset, statusFilter)
	runs := make([]*Run, 0, len(recs))
	for _, rec := range recs {
		runs = append(runs, rec.Run)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"runs": runs,
		"pagination": map[string]any{
			"limit":  limit,
			"offset": offset,
			"count":  len(runs),
		},
	})
}

// handleGetRun handles GET /v1/runs/{id}
func (s *HTTPServer) handleGetRun(w http.ResponseWriter, _ *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"run": rec.Run,
	})
}

// handleStartRun handles POST /v1/runs/{id}:start
func (s *HTTPServer) handleStartRun(w http.ResponseWriter, _ *http.Request, runID string) {
	updated, err := s.Executor.Start(runID)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}

	logger.Info("run started (HTTP)", "run_id", runID)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run": updated.Run,
	})
}

// handleStopRun handles POST /v1/runs/{id}:stop
func (s *HTTPServer) handleStopRun(w http.ResponseWriter, _ *http.Request, runID string) {
	updated, err := s.Executor.Stop(runID)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}

	logger.Info("run cancelled (HTTP)", "run_id", runID)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run": updated.Run,
	})
}

// handleGetResults handles GET /v1/runs/{id}/results
func (s *HTTPServer) handleGetResults(w http.ResponseWriter, _ *http.Request, runID string) {
	view, err := runResults(s.store, runID)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// handleExportRun handles GET /v1/runs/{id}/export?table=pta|cfr
func (s *HTTPServer) handleExportRun(w http.ResponseWriter, r *http.Request, runID string) {
	table := r.URL.Query().Get("table")
	if table == "" {
		table = "pta"
	}
	if table != "pta" && table != "cfr" {
		s.writeError(w, http.StatusBadRequest, "table must be pta or cfr")
		return
	}

	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if rec.Run.Status != models.RunStatusCompleted || rec.Result == nil {
		s.writeError(w, http.StatusPreconditionFailed, "results not available")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	var err error
	switch table {
	case "pta":
		w.Header().Set("Content-Disposition", `attachment; filename="pta_results_matrix.csv"`)
		err = report.WritePTACSV(w, rec.Result.Attainment, rec.Result.Regimens)
	case "cfr":
		w.Header().Set("Content-Disposition", `attachment; filename="cfr_results.csv"`)
		err = report.WriteCFRCSV(w, rec.Result.Scores)
	}
	if err != nil {
		logger.Error("failed to write export", "run_id", runID, "table", table, "error", err)
	}
}

// handleSimulate handles POST /v1/simulate, a synchronous run that is not stored
func (s *HTTPServer) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.admit(w) {
		return
	}

	var req SimulateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	scenario, err := resolveScenario(req.ScenarioYAML, req.Scenario)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}

	eng := newEngine(scenario, s.Executor.Workers(), logger.Default)
	out, err := simulation.Simulate(r.Context(), eng, scenario.ToInput())
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, newResultsView(out))
}

func (s *HTTPServer) admit(w http.ResponseWriter) bool {
	if s.limiter == nil || s.limiter.Allow() {
		return true
	}
	w.Header().Set("Retry-After", "1")
	s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// statusForError maps service errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrRunIDMissing), errors.Is(err, models.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRunExists), errors.Is(err, ErrRunTerminal):
		return http.StatusConflict
	case errors.Is(err, ErrResultsNotReady):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// Helper functions

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}
