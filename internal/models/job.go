package models

import (
	"encoding/json"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusClaimed    JobStatus = "claimed"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"

	// JobStatusExpired is a synthetic status reported when a completed job
	// fails its freshness probe. It is never persisted; the row is deleted
	// after the response is written.
	JobStatusExpired JobStatus = "expired"
)

// Job represents a unit of deferred computation tracked by the coordinator.
// The coordinator never inspects InputParams or OutputData beyond size
// checks and the freshness probe; both are opaque serialized JSON.
// All timestamps are Unix milliseconds.
type Job struct {
	ID   string `json:"job_id"`
	Hash string `json:"job_hash" badgerhold:"unique"`
	Type string `json:"job_type" badgerhold:"index"`

	InputParams json.RawMessage `json:"input_params,omitempty"`

	Status    JobStatus `json:"status" badgerhold:"index"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`

	// Claim attribution. Empty until a runner claims the job. A terminal
	// job may reference a runner id that no longer exists; runner records
	// are garbage-collected independently.
	ClaimedBy string `json:"claimed_by,omitempty" badgerhold:"index"`
	ClaimedAt int64  `json:"claimed_at,omitempty"`

	ProgressCurrent *int64 `json:"progress_current,omitempty"`
	ProgressTotal   *int64 `json:"progress_total,omitempty"`

	ConsoleOutput string          `json:"console_output,omitempty"`
	OutputData    json.RawMessage `json:"output_data,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`

	// LastHeartbeat is set on claim and advanced by every heartbeat.
	// Jobs whose heartbeat goes silent beyond the stale threshold are
	// failed by the sweeper.
	LastHeartbeat int64 `json:"last_heartbeat,omitempty"`
}

// IsLive reports whether the job is attributed to a runner and still
// mutable by that runner.
func (j *Job) IsLive() bool {
	return j.Status == JobStatusClaimed || j.Status == JobStatusInProgress
}

// IsTerminal reports whether the job has reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// StaleTimeoutMessage is the error message recorded on jobs failed by the
// stale-heartbeat sweeper.
const StaleTimeoutMessage = "Job timed out - no heartbeat received"
