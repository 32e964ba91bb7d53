package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/models"
	"github.com/ternarybob/runpack/internal/services/lifecycle"
	"github.com/ternarybob/runpack/internal/services/validation"
)

// AdminHandler handles monitoring and maintenance requests
type AdminHandler struct {
	lifecycle *lifecycle.Service
	validator *validation.Service
	logger    arbor.ILogger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(lifecycleService *lifecycle.Service, validator *validation.Service, logger arbor.ILogger) *AdminHandler {
	return &AdminHandler{
		lifecycle: lifecycleService,
		validator: validator,
		logger:    logger,
	}
}

// StatsHandler reports job counts by status and runner activity
// GET /api/admin/stats
func (h *AdminHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.lifecycle.Stats(r.Context())
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// ListJobsHandler lists jobs newest first
// GET /api/admin/jobs?status=&limit=
func (h *AdminHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := ParseLimit(r, 50)

	jobs, err := h.lifecycle.ListJobs(r.Context(), status, limit)
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// JobDetailHandler returns the full job record including input, output,
// and console fields
// GET /api/admin/jobs/{id}
func (h *AdminHandler) JobDetailHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.lifecycle.GetJob(r.Context(), jobID)
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// DeleteJobHandler removes a single job
// DELETE /api/admin/jobs/{id}
func (h *AdminHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	deleted, err := h.lifecycle.DeleteJob(r.Context(), jobID)
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}
	if !deleted {
		WriteError(w, http.StatusNotFound, "not found")
		return
	}

	h.logger.Info().Str("job_id", jobID).Msg("Job deleted")
	WriteJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "job_id": jobID})
}

// BatchDeleteHandler removes a set of jobs, reporting partial success
// POST /api/admin/jobs/batch-delete
func (h *AdminHandler) BatchDeleteHandler(w http.ResponseWriter, r *http.Request) {
	var req models.BatchDeleteRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateBatchDelete(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.lifecycle.DeleteJobs(r.Context(), req.JobIDs)
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}

	h.logger.Info().Int("deleted", len(resp.Deleted)).Int("failed", len(resp.Failed)).Msg("Batch delete completed")
	WriteJSON(w, http.StatusOK, resp)
}

// ListRunnersHandler lists runners with derived activeness
// GET /api/admin/runners
func (h *AdminHandler) ListRunnersHandler(w http.ResponseWriter, r *http.Request) {
	runners, err := h.lifecycle.ListRunners(r.Context())
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runners": runners,
		"count":   len(runners),
	})
}

// RunnerDetailHandler returns a runner with its recent jobs
// GET /api/admin/runners/{id}
func (h *AdminHandler) RunnerDetailHandler(w http.ResponseWriter, r *http.Request, runnerID string) {
	detail, err := h.lifecycle.RunnerDetail(r.Context(), runnerID)
	if err != nil {
		WriteLifecycleError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}
