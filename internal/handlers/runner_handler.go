package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/interfaces"
	"github.com/ternarybob/runpack/internal/models"
	"github.com/ternarybob/runpack/internal/services/lifecycle"
	"github.com/ternarybob/runpack/internal/services/validation"
)

// RunnerIDHeader carries the caller's runner identity on runner endpoints.
const RunnerIDHeader = "X-Runner-ID"

// RunnerHandler handles runner registration, polling, and job transitions
type RunnerHandler struct {
	lifecycle *lifecycle.Service
	validator *validation.Service
	logger    arbor.ILogger
}

// NewRunnerHandler creates a new runner handler
func NewRunnerHandler(lifecycleService *lifecycle.Service, validator *validation.Service, logger arbor.ILogger) *RunnerHandler {
	return &RunnerHandler{
		lifecycle: lifecycleService,
		validator: validator,
		logger:    logger,
	}
}

// runnerID extracts the X-Runner-ID header, writing a 400 when absent.
func (h *RunnerHandler) runnerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(RunnerIDHeader)
	if id == "" {
		WriteError(w, http.StatusBadRequest, "X-Runner-ID header is required")
		return "", false
	}
	return id, true
}

// RegisterHandler registers or re-registers a runner
// POST /api/runner/register
func (h *RunnerHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRunnerRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateRegister(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	runner, err := h.lifecycle.RegisterRunner(r.Context(), &req)
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, runner)
}

// VerifyHandler confirms a runner id is registered
// GET /api/runner/verify
func (h *RunnerHandler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runnerID(w, r)
	if !ok {
		return
	}

	runner, err := h.lifecycle.VerifyRunner(r.Context(), id)
	if err == interfaces.ErrNotFound {
		WriteError(w, http.StatusNotFound, "runner not registered")
		return
	}
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"valid":  true,
		"runner": runner,
	})
}

// AvailableHandler lists claimable jobs matching the runner's capabilities
// GET /api/runner/jobs/available?types[]=...
func (h *RunnerHandler) AvailableHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runnerID(w, r)
	if !ok {
		return
	}

	types := r.URL.Query()["types[]"]
	if len(types) == 0 {
		types = r.URL.Query()["types"]
	}
	limit := ParseLimit(r, 50)

	jobs, err := h.lifecycle.AvailableJobs(r.Context(), id, types, limit)
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// ClaimHandler atomically claims a pending job
// POST /api/runner/jobs/{id}/claim
func (h *RunnerHandler) ClaimHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	id, ok := h.runnerID(w, r)
	if !ok {
		return
	}

	job, err := h.lifecycle.Claim(r.Context(), jobID, id)
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// HeartbeatHandler records progress and extends the claim
// POST /api/runner/jobs/{id}/heartbeat
func (h *RunnerHandler) HeartbeatHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	id, ok := h.runnerID(w, r)
	if !ok {
		return
	}

	var req models.HeartbeatRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateHeartbeat(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.lifecycle.Heartbeat(r.Context(), jobID, id, &req)
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// CompleteHandler records a terminal success
// POST /api/runner/jobs/{id}/complete
func (h *RunnerHandler) CompleteHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	id, ok := h.runnerID(w, r)
	if !ok {
		return
	}

	var req models.CompleteRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateComplete(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.lifecycle.Complete(r.Context(), jobID, id, &req)
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// ErrorHandler records a terminal failure
// POST /api/runner/jobs/{id}/error
func (h *RunnerHandler) ErrorHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	id, ok := h.runnerID(w, r)
	if !ok {
		return
	}

	var req models.FailRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateFail(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.lifecycle.Fail(r.Context(), jobID, id, &req)
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}
