package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"code-runner-api/internal/config"
	"code-runner-api/internal/harness"
	"code-runner-api/internal/monitor"
	"code-runner-api/internal/storage"
)

type Handlers struct {
	runner  harness.Harness
	cfg     config.RunnerConfig
	db      *storage.DB
	history *storage.HistoryWriter
	metrics *monitor.Metrics
}

func NewHandlers(runner harness.Harness, cfg config.RunnerConfig, db *storage.DB, history *storage.HistoryWriter, metrics *monitor.Metrics) *Handlers {
	return &Handlers{
		runner:  runner,
		cfg:     cfg,
		db:      db,
		history: history,
		metrics: metrics,
	}
}

func (h *Handlers) HandlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PingResponse{Status: "ok", Message: "pong"})
}

func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if !h.checkSize(w, r, "code", req.Code) {
		return
	}

	timeout, ok := h.resolveTimeout(w, r, req.TimeoutSec)
	if !ok {
		return
	}

	h.metrics.CodeSizeChars.Observe(float64(utf8.RuneCountInString(req.Code)))

	h.metrics.ActiveRuns.Inc()
	defer h.metrics.ActiveRuns.Dec()

	start := time.Now()
	result, err := h.runner.Run(r.Context(), harness.RunSpec{
		Source:  req.Code,
		Stdin:   req.Stdin,
		Timeout: timeout,
	})
	if err != nil {
		h.writeRunError(w, r, err)
		return
	}

	h.finishRun(result, "run", start, r)

	writeJSON(w, http.StatusOK, RunResponse{
		OK:       result.OK,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
	})
}

func (h *Handlers) HandleTest(w http.ResponseWriter, r *http.Request) {
	var req TestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if !h.checkSize(w, r, "code", req.Code) || !h.checkSize(w, r, "tests", req.Tests) {
		return
	}

	timeout, ok := h.resolveTimeout(w, r, req.TimeoutSec)
	if !ok {
		return
	}

	h.metrics.CodeSizeChars.Observe(float64(utf8.RuneCountInString(req.Code)))

	h.metrics.ActiveRuns.Inc()
	defer h.metrics.ActiveRuns.Dec()

	start := time.Now()
	result, err := h.runner.Test(r.Context(), harness.TestSpec{
		Source:  req.Code,
		Tests:   req.Tests,
		Timeout: timeout,
	})
	if err != nil {
		h.writeRunError(w, r, err)
		return
	}

	h.finishRun(&result.RunResult, "test", start, r)

	writeJSON(w, http.StatusOK, TestResponse{
		OK:       result.OK,
		Summary:  result.Summary,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
	})
}

func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "run ID required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	run, err := h.db.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, "run not found", "NOT_FOUND", http.StatusNotFound, r)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	filter := storage.RunFilter{
		Mode:   r.URL.Query().Get("mode"),
		Status: r.URL.Query().Get("status"),
		Limit:  100,
	}

	runs, err := h.db.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

// checkSize rejects oversized input before any workspace exists.
func (h *Handlers) checkSize(w http.ResponseWriter, r *http.Request, field, value string) bool {
	if utf8.RuneCountInString(value) > h.cfg.MaxCodeChars {
		writeError(w,
			fmt.Sprintf("%s exceeds %d character limit", field, h.cfg.MaxCodeChars),
			"CODE_TOO_LARGE", http.StatusRequestEntityTooLarge, r)
		return false
	}
	return true
}

// resolveTimeout applies the default and bounds-checks the requested timeout.
func (h *Handlers) resolveTimeout(w http.ResponseWriter, r *http.Request, sec int) (time.Duration, bool) {
	if sec == 0 {
		sec = h.cfg.DefaultTimeoutSec
	}
	if sec < h.cfg.MinTimeoutSec || sec > h.cfg.MaxTimeoutSec {
		writeError(w,
			fmt.Sprintf("timeout_sec must be %d-%d", h.cfg.MinTimeoutSec, h.cfg.MaxTimeoutSec),
			"INVALID_REQUEST", http.StatusBadRequest, r)
		return 0, false
	}
	return time.Duration(sec) * time.Second, true
}

func (h *Handlers) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	if harness.IsClientFault(err) {
		writeError(w, err.Error(), "CODE_TOO_LARGE", http.StatusRequestEntityTooLarge, r)
		return
	}

	h.metrics.RecordError("infra")
	log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("run failed")
	writeError(w, "execution failed", "INTERNAL", http.StatusInternalServerError, r)
}

// finishRun records metrics and the history entry for a completed run.
func (h *Handlers) finishRun(result *harness.RunResult, mode string, start time.Time, r *http.Request) {
	status := "failure"
	switch {
	case result.OK:
		status = "success"
	case result.ExitCode == harness.ExitCodeTimeout:
		status = "timeout"
	}

	h.metrics.RecordRun(mode, status, result.Duration.Seconds())
	h.metrics.OutputSizeChars.Observe(float64(utf8.RuneCountInString(result.Stdout) + utf8.RuneCountInString(result.Stderr)))

	if h.history == nil {
		return
	}

	completedAt := time.Now()
	h.history.Log(&storage.Run{
		ID:          result.ID,
		Mode:        mode,
		CodeHash:    result.CodeHash,
		ExitCode:    result.ExitCode,
		Stdout:      result.Stdout,
		Stderr:      result.Stderr,
		DurationMS:  result.Duration.Milliseconds(),
		Status:      status,
		RequestIP:   r.RemoteAddr,
		CreatedAt:   start,
		CompletedAt: &completedAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
