package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/app"
	"github.com/ternarybob/runpack/internal/common"
	"github.com/ternarybob/runpack/internal/handlers"
)

const (
	submitKey = "submit-secret"
	runnerKey = "runner-secret"
	adminKey  = "admin-secret"
)

func newTestServer(t *testing.T, mutate func(*common.Config)) *httptest.Server {
	t.Helper()

	config := common.NewDefaultConfig()
	config.Storage.Type = "sqlite"
	config.Storage.SQLite.Path = filepath.Join(t.TempDir(), "server-test.db")
	config.Auth.SubmitKey = submitKey
	config.Auth.RunnerKey = runnerKey
	config.Auth.AdminKey = adminKey
	config.Notify.URL = ""
	config.RateLimit.SubmitPerWindow = 1000
	config.RateLimit.StatusPerWindow = 1000
	config.RateLimit.RunnerPerWindow = 1000
	if mutate != nil {
		mutate(config)
	}

	application, err := app.New(config, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	srv := httptest.NewServer(New(application).Handler())
	t.Cleanup(srv.Close)
	return srv
}

type apiClient struct {
	t    *testing.T
	base string
}

// do sends one request and decodes the JSON body into a generic map.
func (c *apiClient) do(method, path, token, runnerID string, body interface{}) (int, map[string]interface{}) {
	c.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if runnerID != "" {
		req.Header.Set(handlers.RunnerIDHeader, runnerID)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	decoded := map[string]interface{}{}
	if resp.ContentLength != 0 {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp.StatusCode, decoded
}

func submitBody(jobType string, params string) map[string]interface{} {
	return map[string]interface{}{
		"job_type":     jobType,
		"input_params": json.RawMessage(params),
	}
}

func registerRunner(t *testing.T, c *apiClient, name string, caps ...string) string {
	t.Helper()
	code, body := c.do(http.MethodPost, "/api/runner/register", runnerKey, "", map[string]interface{}{
		"name":         name,
		"capabilities": caps,
	})
	require.Equal(t, http.StatusOK, code)
	id, _ := body["runner_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestHealthAndVersion(t *testing.T) {
	srv := newTestServer(t, nil)
	c := &apiClient{t: t, base: srv.URL}

	code, body := c.do(http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = c.do(http.MethodGet, "/api/version", "", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["version"])
}

func TestAuth_Roles(t *testing.T) {
	srv := newTestServer(t, nil)
	c := &apiClient{t: t, base: srv.URL}

	// No token.
	code, body := c.do(http.MethodPost, "/api/jobs/submit", "", "", submitBody("render", `{}`))
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "missing bearer token", body["error"])

	// Wrong role: submit key on a runner endpoint and vice versa.
	code, _ = c.do(http.MethodPost, "/api/runner/register", submitKey, "", map[string]interface{}{
		"name": "w", "capabilities": []string{"render"},
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = c.do(http.MethodPost, "/api/jobs/submit", runnerKey, "", submitBody("render", `{}`))
	assert.Equal(t, http.StatusUnauthorized, code)

	// Submit key does not open admin endpoints.
	code, _ = c.do(http.MethodGet, "/api/admin/stats", submitKey, "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// Admin endpoints accept both the admin and the runner credential.
	code, _ = c.do(http.MethodGet, "/api/admin/stats", adminKey, "", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = c.do(http.MethodGet, "/api/admin/stats", runnerKey, "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAuth_UnconfiguredKeyNeverMatches(t *testing.T) {
	srv := newTestServer(t, func(c *common.Config) {
		c.Auth.SubmitKey = ""
	})
	c := &apiClient{t: t, base: srv.URL}

	code, _ := c.do(http.MethodPost, "/api/jobs/submit", "", "", submitBody("render", `{}`))
	assert.Equal(t, http.StatusUnauthorized, code)

	// An empty bearer token is rejected before comparison.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/jobs/submit", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer ")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCORS_Preflight(t *testing.T) {
	srv := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/jobs/submit", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), handlers.RunnerIDHeader)
}

func TestRateLimit_SubmitWindow(t *testing.T) {
	srv := newTestServer(t, func(c *common.Config) {
		c.RateLimit.SubmitPerWindow = 2
	})
	c := &apiClient{t: t, base: srv.URL}

	code, _ := c.do(http.MethodPost, "/api/jobs/submit", submitKey, "", submitBody("render", `{"n": 1}`))
	assert.Equal(t, http.StatusCreated, code)
	code, _ = c.do(http.MethodPost, "/api/jobs/submit", submitKey, "", submitBody("render", `{"n": 2}`))
	assert.Equal(t, http.StatusCreated, code)

	code, body := c.do(http.MethodPost, "/api/jobs/submit", submitKey, "", submitBody("render", `{"n": 3}`))
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", body["error"])
	assert.NotZero(t, body["reset_at"])
}

func TestJobLifecycle_EndToEnd(t *testing.T) {
	srv := newTestServer(t, nil)
	c := &apiClient{t: t, base: srv.URL}

	// Submit creates a pending job.
	code, created := c.do(http.MethodPost, "/api/jobs/submit", submitKey, "", submitBody("render", `{"x": 1}`))
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, true, created["created"])
	assert.Equal(t, "pending", created["status"])
	jobID := created["job_id"].(string)
	require.NotEmpty(t, jobID)

	// A duplicate submission returns the same job with 200.
	code, dup := c.do(http.MethodPost, "/api/jobs/submit", submitKey, "", submitBody("render", `{"x": 1}`))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, dup["created"])
	assert.Equal(t, jobID, dup["job_id"])

	// Register a runner and poll for work.
	runnerID := registerRunner(t, c, "worker-1", "render")

	code, verify := c.do(http.MethodGet, "/api/runner/verify", runnerKey, runnerID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, verify["valid"])

	code, avail := c.do(http.MethodGet, "/api/runner/jobs/available", runnerKey, runnerID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), avail["count"])

	// Claim, heartbeat, complete.
	code, claimed := c.do(http.MethodPost, "/api/runner/jobs/"+jobID+"/claim", runnerKey, runnerID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "claimed", claimed["status"])

	code, hb := c.do(http.MethodPost, "/api/runner/jobs/"+jobID+"/heartbeat", runnerKey, runnerID, map[string]interface{}{
		"progress_current": 1,
		"progress_total":   2,
		"console_output":   "halfway",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "in_progress", hb["status"])

	code, done := c.do(http.MethodPost, "/api/runner/jobs/"+jobID+"/complete", runnerKey, runnerID, map[string]interface{}{
		"output_data":    json.RawMessage(`{"answer": 42}`),
		"console_output": "done",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", done["status"])

	// Re-submitting the same work returns the cached result.
	code, cached := c.do(http.MethodPost, "/api/jobs/submit", submitKey, "", submitBody("render", `{"x": 1}`))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", cached["status"])
	result := cached["result"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"answer": float64(42)}, result["output_data"])
	assert.Equal(t, "done", result["console_output"])

	// Status endpoint reflects the terminal state.
	code, status := c.do(http.MethodGet, "/api/jobs/"+jobID, submitKey, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", status["status"])
}

func TestJobCheck_DoesNotCreate(t *testing.T) {
	srv := newTestServer(t, nil)
	c := &apiClient{t: t, base: srv.URL}

	code, body := c.do(http.MethodPost, "/api/jobs/check", submitKey, "", submitBody("render", `{"x": 1}`))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["exists"])

	code, stats := c.do(http.MethodGet, "/api/admin/stats", adminKey, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), stats["total_jobs"])
}

func TestClaimConflict_And_TransitionErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	c := &apiClient{t: t, base: srv.URL}

	code, created := c.do(http.MethodPost, "/api/jobs/submit", submitKey, "", submitBody("render", `{"x": 1}`))
	require.Equal(t, http.StatusCreated, code)
	jobID := created["job_id"].(string)

	winner := registerRunner(t, c, "worker-1", "render")
	loser := registerRunner(t, c, "worker-2", "render")

	code, _ = c.do(http.MethodPost, "/api/runner/jobs/"+jobID+"/claim", runnerKey, winner, nil)
	require.Equal(t, http.StatusOK, code)

	// Second claim loses with 409.
	code, body := c.do(http.MethodPost, "/api/runner/jobs/"+jobID+"/claim", runnerKey, loser, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.NotEmpty(t, body["error"])

	// Heartbeat by the wrong runner is a 400.
	code, _ = c.do(http.MethodPost, "/api/runner/jobs/"+jobID+"/heartbeat", runnerKey, loser, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, code)

	// Unknown job is a 404.
	code, _ = c.do(http.MethodPost, "/api/runner/jobs/no-such-job/claim", runnerKey, winner, nil)
	assert.Equal(t, http.StatusNotFound, code)

	// Unregistered runner is a 400.
	code, _ = c.do(http.MethodPost, "/api/runner/jobs/"+jobID+"/claim", runnerKey, "ghost", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	// Missing X-Runner-ID header is a 400.
	code, body = c.do(http.MethodPost, "/api/runner/jobs/"+jobID+"/claim", runnerKey, "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "X-Runner-ID")

	// Completing a failed transition path: fail then complete again.
	code, _ = c.do(http.MethodPost, "/api/runner/jobs/"+jobID+"/error", runnerKey, winner, map[string]interface{}{
		"error_message": "boom",
	})
	require.Equal(t, http.StatusOK, code)

	code, _ = c.do(http.MethodPost, "/api/runner/jobs/"+jobID+"/complete", runnerKey, winner, map[string]interface{}{
		"output_data": json.RawMessage(`{}`),
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestValidation_Errors(t *testing.T) {
	srv := newTestServer(t, nil)
	c := &apiClient{t: t, base: srv.URL}

	// Missing job_type.
	code, body := c.do(http.MethodPost, "/api/jobs/submit", submitKey, "", map[string]interface{}{
		"input_params": json.RawMessage(`{}`),
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, body["error"])

	// Malformed JSON body.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/jobs/submit", bytes.NewReader([]byte(`{not json`)))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+submitKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Fail without an error message.
	jobCode, created := c.do(http.MethodPost, "/api/jobs/submit", submitKey, "", submitBody("render", `{"x": 1}`))
	require.Equal(t, http.StatusCreated, jobCode)
	jobID := created["job_id"].(string)
	runnerID := registerRunner(t, c, "worker-1", "render")
	code, _ = c.do(http.MethodPost, "/api/runner/jobs/"+jobID+"/claim", runnerKey, runnerID, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = c.do(http.MethodPost, "/api/runner/jobs/"+jobID+"/error", runnerKey, runnerID, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAdmin_JobManagement(t *testing.T) {
	srv := newTestServer(t, nil)
	c := &apiClient{t: t, base: srv.URL}

	var jobIDs []string
	for i := 0; i < 3; i++ {
		code, created := c.do(http.MethodPost, "/api/jobs/submit", submitKey, "",
			submitBody("render", fmt.Sprintf(`{"n": %d}`, i)))
		require.Equal(t, http.StatusCreated, code)
		jobIDs = append(jobIDs, created["job_id"].(string))
	}

	code, list := c.do(http.MethodGet, "/api/admin/jobs", adminKey, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), list["count"])

	code, filtered := c.do(http.MethodGet, "/api/admin/jobs?status=completed", adminKey, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), filtered["count"])

	// Single delete, then a repeat is a 404.
	code, deleted := c.do(http.MethodDelete, "/api/admin/jobs/"+jobIDs[0], adminKey, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, deleted["deleted"])

	code, _ = c.do(http.MethodDelete, "/api/admin/jobs/"+jobIDs[0], adminKey, "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	// Batch delete reports per-id outcomes.
	code, batch := c.do(http.MethodPost, "/api/admin/jobs/batch-delete", adminKey, "", map[string]interface{}{
		"job_ids": []string{jobIDs[1], "missing", jobIDs[2]},
	})
	require.Equal(t, http.StatusOK, code)
	assert.ElementsMatch(t, []interface{}{jobIDs[1], jobIDs[2]}, batch["deleted"])
	assert.Equal(t, []interface{}{"missing"}, batch["failed"])
}

func TestAdmin_Runners(t *testing.T) {
	srv := newTestServer(t, nil)
	c := &apiClient{t: t, base: srv.URL}

	runnerID := registerRunner(t, c, "worker-1", "render")

	code, created := c.do(http.MethodPost, "/api/jobs/submit", submitKey, "", submitBody("render", `{"x": 1}`))
	require.Equal(t, http.StatusCreated, code)
	jobID := created["job_id"].(string)
	code, _ = c.do(http.MethodPost, "/api/runner/jobs/"+jobID+"/claim", runnerKey, runnerID, nil)
	require.Equal(t, http.StatusOK, code)

	code, list := c.do(http.MethodGet, "/api/admin/runners", adminKey, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), list["count"])

	code, detail := c.do(http.MethodGet, "/api/admin/runners/"+runnerID, adminKey, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, detail["active"])
	recent := detail["recent_jobs"].([]interface{})
	require.Len(t, recent, 1)

	code, _ = c.do(http.MethodGet, "/api/admin/runners/ghost", adminKey, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil)
	c := &apiClient{t: t, base: srv.URL}

	code, _ := c.do(http.MethodGet, "/api/jobs/submit", submitKey, "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)

	code, _ = c.do(http.MethodPost, "/api/admin/stats", adminKey, "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}
