package models

import (
	"encoding/json"
)

// SubmitJobRequest is the body of POST /api/jobs/submit and
// POST /api/jobs/check. InputParams is opaque to the coordinator; it is
// canonicalized only for hashing and size-checked on the way in.
type SubmitJobRequest struct {
	JobType     string          `json:"job_type" validate:"required,max=200"`
	InputParams json.RawMessage `json:"input_params"`
}

// JobResult carries the terminal payload of a completed job back to a
// submitting client.
type JobResult struct {
	OutputData    json.RawMessage `json:"output_data,omitempty"`
	ConsoleOutput string          `json:"console_output,omitempty"`
}

// JobStatusView is the client-facing projection of a job used by the
// submit/check responses.
type JobStatusView struct {
	JobID           string     `json:"job_id"`
	JobHash         string     `json:"job_hash"`
	JobType         string     `json:"job_type"`
	Status          JobStatus  `json:"status"`
	CreatedAt       int64      `json:"created_at,omitempty"`
	UpdatedAt       int64      `json:"updated_at,omitempty"`
	ProgressCurrent *int64     `json:"progress_current,omitempty"`
	ProgressTotal   *int64     `json:"progress_total,omitempty"`
	Result          *JobResult `json:"result,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// SubmitJobResponse is returned by POST /api/jobs/submit. Created reports
// whether this request inserted the row (201) or matched an existing one
// (200).
type SubmitJobResponse struct {
	JobStatusView
	Created bool `json:"created"`
}

// CheckJobResponse is returned by POST /api/jobs/check. Job is nil when
// Exists is false.
type CheckJobResponse struct {
	Exists bool           `json:"exists"`
	Job    *JobStatusView `json:"job,omitempty"`
}

// RegisterRunnerRequest is the body of POST /api/runner/register. RunnerID
// is optional; a runner re-registering after a restart supplies its stored
// id and keeps its identity, otherwise a fresh id is generated.
type RegisterRunnerRequest struct {
	RunnerID     string   `json:"runner_id,omitempty"`
	Name         string   `json:"name" validate:"required,max=200"`
	Capabilities []string `json:"capabilities" validate:"required,min=1,dive,required"`
}

// HeartbeatRequest is the body of POST /api/runner/jobs/{id}/heartbeat.
type HeartbeatRequest struct {
	ProgressCurrent *int64 `json:"progress_current,omitempty"`
	ProgressTotal   *int64 `json:"progress_total,omitempty"`
	ConsoleOutput   string `json:"console_output,omitempty"`
}

// CompleteRequest is the body of POST /api/runner/jobs/{id}/complete.
type CompleteRequest struct {
	OutputData    json.RawMessage `json:"output_data"`
	ConsoleOutput string          `json:"console_output,omitempty"`
}

// FailRequest is the body of POST /api/runner/jobs/{id}/error.
type FailRequest struct {
	ErrorMessage  string `json:"error_message" validate:"required"`
	ConsoleOutput string `json:"console_output,omitempty"`
}

// BatchDeleteRequest is the body of POST /api/admin/jobs/batch-delete.
type BatchDeleteRequest struct {
	JobIDs []string `json:"job_ids" validate:"required,min=1,dive,required"`
}

// BatchDeleteResponse reports per-id deletion outcomes.
type BatchDeleteResponse struct {
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed"`
}

// RunnerView is a runner record plus its derived activeness.
type RunnerView struct {
	Runner
	Active bool `json:"active"`
}

// RunnerDetailResponse is returned by GET /api/admin/runners/{id}.
type RunnerDetailResponse struct {
	RunnerView
	RecentJobs []*Job `json:"recent_jobs"`
}

// StatsResponse is returned by GET /api/admin/stats.
type StatsResponse struct {
	Jobs          map[JobStatus]int `json:"jobs"`
	TotalJobs     int               `json:"total_jobs"`
	TotalRunners  int               `json:"total_runners"`
	ActiveRunners int               `json:"active_runners"`
}
