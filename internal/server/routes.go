package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/runpack/internal/handlers"
)

// setupRoutes builds the full endpoint table. Auth and rate limiting are
// applied per route; the global chain (recovery, CORS, logging) wraps the
// whole mux.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Unauthenticated service endpoints
	mux.HandleFunc("/health", handlers.HealthHandler)
	mux.HandleFunc("/api/version", handlers.VersionHandler)

	// Client job endpoints (submit role)
	mux.HandleFunc("/api/jobs/check",
		s.requireRole(roleSubmit, s.rateLimit(limitSubmit, requirePost(s.jobHandler.CheckHandler))))
	mux.HandleFunc("/api/jobs/submit",
		s.requireRole(roleSubmit, s.rateLimit(limitSubmit, requirePost(s.jobHandler.SubmitHandler))))
	mux.HandleFunc("/api/jobs/",
		s.requireRole(roleSubmit, s.rateLimit(limitStatus, s.handleJobStatus)))

	// Runner endpoints (runner role)
	mux.HandleFunc("/api/runner/register",
		s.requireRole(roleRunner, s.rateLimit(limitRunner, requirePost(s.runnerHandler.RegisterHandler))))
	mux.HandleFunc("/api/runner/verify",
		s.requireRole(roleRunner, s.rateLimit(limitRunner, requireGet(s.runnerHandler.VerifyHandler))))
	mux.HandleFunc("/api/runner/jobs/available",
		s.requireRole(roleRunner, s.rateLimit(limitRunner, requireGet(s.runnerHandler.AvailableHandler))))
	mux.HandleFunc("/api/runner/jobs/",
		s.requireRole(roleRunner, s.rateLimit(limitRunner, s.handleRunnerJobRoutes)))

	// Admin endpoints (admin role, runner credential accepted, unbounded)
	mux.HandleFunc("/api/admin/stats",
		s.requireRole(roleAdmin, requireGet(s.adminHandler.StatsHandler)))
	mux.HandleFunc("/api/admin/jobs",
		s.requireRole(roleAdmin, requireGet(s.adminHandler.ListJobsHandler)))
	mux.HandleFunc("/api/admin/jobs/batch-delete",
		s.requireRole(roleAdmin, requirePost(s.adminHandler.BatchDeleteHandler)))
	mux.HandleFunc("/api/admin/jobs/", s.requireRole(roleAdmin, s.handleAdminJobRoutes))
	mux.HandleFunc("/api/admin/runners",
		s.requireRole(roleAdmin, requireGet(s.adminHandler.ListRunnersHandler)))
	mux.HandleFunc("/api/admin/runners/", s.requireRole(roleAdmin, s.handleAdminRunnerRoutes))

	return mux
}

// handleJobStatus routes GET /api/jobs/{id}
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		handlers.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	s.jobHandler.StatusHandler(w, r, id)
}

// handleRunnerJobRoutes routes POST /api/runner/jobs/{id}/{action} for
// claim, heartbeat, complete, and error.
func (s *Server) handleRunnerJobRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/runner/jobs/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		handlers.WriteError(w, http.StatusNotFound, "not found")
		return
	}

	jobID, action := parts[0], parts[1]
	switch action {
	case "claim":
		s.runnerHandler.ClaimHandler(w, r, jobID)
	case "heartbeat":
		s.runnerHandler.HeartbeatHandler(w, r, jobID)
	case "complete":
		s.runnerHandler.CompleteHandler(w, r, jobID)
	case "error":
		s.runnerHandler.ErrorHandler(w, r, jobID)
	default:
		handlers.WriteError(w, http.StatusNotFound, "not found")
	}
}

// handleAdminJobRoutes routes GET/DELETE /api/admin/jobs/{id}
func (s *Server) handleAdminJobRoutes(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/jobs/")
	if id == "" || strings.Contains(id, "/") {
		handlers.WriteError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.adminHandler.JobDetailHandler(w, r, id)
	case http.MethodDelete:
		s.adminHandler.DeleteJobHandler(w, r, id)
	default:
		methodNotAllowed(w)
	}
}

// handleAdminRunnerRoutes routes GET /api/admin/runners/{id}
func (s *Server) handleAdminRunnerRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/admin/runners/")
	if id == "" || strings.Contains(id, "/") {
		handlers.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	s.adminHandler.RunnerDetailHandler(w, r, id)
}

func requireGet(next http.HandlerFunc) http.HandlerFunc {
	return requireMethod(http.MethodGet, next)
}

func requirePost(next http.HandlerFunc) http.HandlerFunc {
	return requireMethod(http.MethodPost, next)
}

func requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			methodNotAllowed(w)
			return
		}
		next(w, r)
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	handlers.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
}
