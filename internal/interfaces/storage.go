package interfaces

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/runpack/internal/models"
)

// JobStorage - interface for job persistence.
//
// Every state transition is a single conditional write: the backend encodes
// the precondition (current status, claim ownership) in the write itself
// and reports whether a row changed. Higher-level races are resolved by
// these conditional writes, never by multi-statement transactions.
// InputParams and OutputData are opaque serialized blobs; the store never
// parses them.
type JobStorage interface {
	// CreateJob inserts a new pending job. Returns ErrDuplicateHash when a
	// job with the same job_hash already exists.
	CreateJob(ctx context.Context, job *models.Job) error

	GetJob(ctx context.Context, id string) (*models.Job, error)
	GetJobByHash(ctx context.Context, hash string) (*models.Job, error)

	// ListAvailableJobs returns pending jobs whose type is in types,
	// oldest first (FIFO by created_at).
	ListAvailableJobs(ctx context.Context, types []string, limit int) ([]*models.Job, error)

	// ListJobs returns jobs newest first, optionally filtered by status.
	ListJobs(ctx context.Context, status string, limit int) ([]*models.Job, error)

	// ListJobsByRunner returns jobs claimed by the runner, newest first.
	ListJobsByRunner(ctx context.Context, runnerID string, limit int) ([]*models.Job, error)

	CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error)

	// ClaimJob transitions pending -> claimed for exactly one caller.
	// Returns false when the job is missing or no longer pending.
	ClaimJob(ctx context.Context, jobID, runnerID string) (bool, error)

	// HeartbeatJob transitions claimed|in_progress -> in_progress and
	// records progress and console output. Returns false unless the job is
	// live and claimed by runnerID.
	HeartbeatJob(ctx context.Context, jobID, runnerID string, progressCurrent, progressTotal *int64, consoleOutput string) (bool, error)

	// CompleteJob transitions claimed|in_progress -> completed. Same
	// precondition as HeartbeatJob.
	CompleteJob(ctx context.Context, jobID, runnerID string, outputData json.RawMessage, consoleOutput string) (bool, error)

	// FailJob transitions claimed|in_progress -> failed. Same precondition
	// as HeartbeatJob.
	FailJob(ctx context.Context, jobID, runnerID, errorMessage, consoleOutput string) (bool, error)

	// SweepStaleJobs fails every claimed or in_progress job whose
	// last_heartbeat is older than cutoffMs. Returns the number of jobs
	// transitioned.
	SweepStaleJobs(ctx context.Context, cutoffMs int64, errorMessage string) (int, error)

	// DeleteJob removes a job. Returns false when the id does not exist.
	DeleteJob(ctx context.Context, id string) (bool, error)

	// DeleteJobs removes jobs individually, reporting per-id success.
	DeleteJobs(ctx context.Context, ids []string) (map[string]bool, error)
}

// RunnerStorage - interface for runner registration records
type RunnerStorage interface {
	// RegisterRunner upserts by id, replacing name and capabilities and
	// advancing last_seen.
	RegisterRunner(ctx context.Context, runner *models.Runner) error

	GetRunner(ctx context.Context, id string) (*models.Runner, error)

	// TouchRunner advances last_seen. Returns false when the id does not
	// exist.
	TouchRunner(ctx context.Context, id string) (bool, error)

	ListRunners(ctx context.Context) ([]*models.Runner, error)

	DeleteRunner(ctx context.Context, id string) (bool, error)
}

// StorageManager provides access to all storage backends
type StorageManager interface {
	JobStorage() JobStorage
	RunnerStorage() RunnerStorage
	Close() error
}
