package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/models"
	"github.com/ternarybob/runpack/internal/services/lifecycle"
	"github.com/ternarybob/runpack/internal/services/validation"
)

// JobHandler handles client-facing job submission and status requests
type JobHandler struct {
	lifecycle *lifecycle.Service
	validator *validation.Service
	logger    arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(lifecycleService *lifecycle.Service, validator *validation.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		lifecycle: lifecycleService,
		validator: validator,
		logger:    logger,
	}
}

// SubmitHandler creates a job or returns the state of its duplicate
// POST /api/jobs/submit
func (h *JobHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateSubmit(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.lifecycle.Submit(r.Context(), &req)
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, resp)
}

// CheckHandler reports whether an identical job exists, without creating
// POST /api/jobs/check
func (h *JobHandler) CheckHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateSubmit(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.lifecycle.Check(r.Context(), &req)
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// StatusHandler returns a job by id
// GET /api/jobs/{id}
func (h *JobHandler) StatusHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.lifecycle.GetJob(r.Context(), jobID)
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}
