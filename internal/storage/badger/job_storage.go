package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/interfaces"
	"github.com/ternarybob/runpack/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// nowMillis returns the current time in Unix milliseconds
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// JobStorage implements the JobStorage interface for Badger. Where the
// SQLite backend expresses each transition as a conditional UPDATE, this
// backend reads, checks the precondition, and writes inside a single
// serializable transaction.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts a new pending job, enforcing hash uniqueness inside
// the insert transaction
func (s *JobStorage) CreateJob(ctx context.Context, job *models.Job) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var existing []models.Job
		if err := s.db.Store().TxFind(txn, &existing, badgerhold.Where("Hash").Eq(job.Hash)); err != nil {
			return fmt.Errorf("failed to check hash: %w", err)
		}
		if len(existing) > 0 {
			return interfaces.ErrDuplicateHash
		}
		return s.db.Store().TxInsert(txn, job.ID, job)
	})

	if err != nil {
		if err == interfaces.ErrDuplicateHash || err == badgerhold.ErrUniqueExists {
			return interfaces.ErrDuplicateHash
		}
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to create job")
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Debug().Str("job_id", job.ID).Str("job_type", job.Type).Msg("Job created")
	return nil
}

// GetJob retrieves a job by ID
func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// GetJobByHash retrieves a job by its deduplication hash
func (s *JobStorage) GetJobByHash(ctx context.Context, hash string) (*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Hash").Eq(hash)); err != nil {
		return nil, fmt.Errorf("failed to get job by hash: %w", err)
	}
	if len(jobs) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &jobs[0], nil
}

// ListAvailableJobs lists pending jobs matching the given types, oldest first
func (s *JobStorage) ListAvailableJobs(ctx context.Context, types []string, limit int) ([]*models.Job, error) {
	if len(types) == 0 {
		return []*models.Job{}, nil
	}
	if limit <= 0 {
		limit = 50
	}

	typeValues := make([]interface{}, len(types))
	for i, t := range types {
		typeValues[i] = t
	}

	query := badgerhold.Where("Status").Eq(models.JobStatusPending).
		And("Type").In(typeValues...).
		SortBy("CreatedAt").
		Limit(limit)

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list available jobs: %w", err)
	}
	return toJobPointers(jobs), nil
}

// ListJobs lists jobs newest first with an optional status filter
func (s *JobStorage) ListJobs(ctx context.Context, status string, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	var query *badgerhold.Query
	if status != "" {
		query = badgerhold.Where("Status").Eq(models.JobStatus(status))
	} else {
		query = badgerhold.Where("ID").Ne("")
	}
	query = query.SortBy("CreatedAt").Reverse().Limit(limit)

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return toJobPointers(jobs), nil
}

// ListJobsByRunner lists jobs claimed by a runner, newest first
func (s *JobStorage) ListJobsByRunner(ctx context.Context, runnerID string, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 20
	}

	query := badgerhold.Where("ClaimedBy").Eq(runnerID).
		SortBy("ClaimedAt").Reverse().
		Limit(limit)

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs by runner: %w", err)
	}
	return toJobPointers(jobs), nil
}

// CountJobsByStatus returns job counts grouped by status
func (s *JobStorage) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	counts := make(map[models.JobStatus]int)
	for i := range jobs {
		counts[jobs[i].Status]++
	}
	return counts, nil
}

// ClaimJob atomically transitions pending -> claimed inside one transaction
func (s *JobStorage) ClaimJob(ctx context.Context, jobID, runnerID string) (bool, error) {
	changed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		var job models.Job
		if err := s.db.Store().TxGet(txn, jobID, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return nil
			}
			return err
		}
		if job.Status != models.JobStatusPending {
			return nil
		}

		now := nowMillis()
		job.Status = models.JobStatusClaimed
		job.ClaimedBy = runnerID
		job.ClaimedAt = now
		job.LastHeartbeat = now
		job.UpdatedAt = now

		if err := s.db.Store().TxUpdate(txn, jobID, &job); err != nil {
			return err
		}
		changed = true
		return nil
	})

	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	if changed {
		s.logger.Debug().Str("job_id", jobID).Str("runner_id", runnerID).Msg("Job claimed")
	}
	return changed, nil
}

// mutateLive applies fn to the job when it is live and claimed by runnerID
func (s *JobStorage) mutateLive(jobID, runnerID string, fn func(job *models.Job)) (bool, error) {
	changed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		var job models.Job
		if err := s.db.Store().TxGet(txn, jobID, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return nil
			}
			return err
		}
		if job.ClaimedBy != runnerID || !job.IsLive() {
			return nil
		}

		fn(&job)
		job.LastHeartbeat = nowMillis()
		job.UpdatedAt = job.LastHeartbeat

		if err := s.db.Store().TxUpdate(txn, jobID, &job); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}

// HeartbeatJob advances progress and liveness for a claimed job
func (s *JobStorage) HeartbeatJob(ctx context.Context, jobID, runnerID string, progressCurrent, progressTotal *int64, consoleOutput string) (bool, error) {
	changed, err := s.mutateLive(jobID, runnerID, func(job *models.Job) {
		job.Status = models.JobStatusInProgress
		job.ProgressCurrent = progressCurrent
		job.ProgressTotal = progressTotal
		job.ConsoleOutput = consoleOutput
	})
	if err != nil {
		return false, fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return changed, nil
}

// CompleteJob records a terminal success
func (s *JobStorage) CompleteJob(ctx context.Context, jobID, runnerID string, outputData json.RawMessage, consoleOutput string) (bool, error) {
	changed, err := s.mutateLive(jobID, runnerID, func(job *models.Job) {
		job.Status = models.JobStatusCompleted
		job.OutputData = outputData
		job.ConsoleOutput = consoleOutput
	})
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}
	if changed {
		s.logger.Debug().Str("job_id", jobID).Str("runner_id", runnerID).Msg("Job completed")
	}
	return changed, nil
}

// FailJob records a terminal failure
func (s *JobStorage) FailJob(ctx context.Context, jobID, runnerID, errorMessage, consoleOutput string) (bool, error) {
	changed, err := s.mutateLive(jobID, runnerID, func(job *models.Job) {
		job.Status = models.JobStatusFailed
		job.ErrorMessage = errorMessage
		job.ConsoleOutput = consoleOutput
	})
	if err != nil {
		return false, fmt.Errorf("failed to fail job: %w", err)
	}
	return changed, nil
}

// SweepStaleJobs bulk-fails live jobs whose last heartbeat predates cutoffMs
func (s *JobStorage) SweepStaleJobs(ctx context.Context, cutoffMs int64, errorMessage string) (int, error) {
	swept := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		statuses := []interface{}{models.JobStatusClaimed, models.JobStatusInProgress}
		query := badgerhold.Where("Status").In(statuses...).And("LastHeartbeat").Lt(cutoffMs)

		var stale []models.Job
		if err := s.db.Store().TxFind(txn, &stale, query); err != nil {
			return err
		}

		now := nowMillis()
		for i := range stale {
			job := stale[i]
			job.Status = models.JobStatusFailed
			job.ErrorMessage = errorMessage
			job.UpdatedAt = now
			if err := s.db.Store().TxUpdate(txn, job.ID, &job); err != nil {
				return err
			}
			swept++
		}
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale jobs: %w", err)
	}
	if swept > 0 {
		s.logger.Warn().Int("count", swept).Msg("Stale jobs failed by sweeper")
	}
	return swept, nil
}

// DeleteJob deletes a job by ID
func (s *JobStorage) DeleteJob(ctx context.Context, id string) (bool, error) {
	err := s.db.Store().Delete(id, &models.Job{})
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete job: %w", err)
	}
	return true, nil
}

// DeleteJobs deletes jobs individually and reports per-id success
func (s *JobStorage) DeleteJobs(ctx context.Context, ids []string) (map[string]bool, error) {
	results := make(map[string]bool, len(ids))
	for _, id := range ids {
		deleted, err := s.DeleteJob(ctx, id)
		if err != nil {
			return results, err
		}
		results[id] = deleted
	}
	return results, nil
}

func toJobPointers(jobs []models.Job) []*models.Job {
	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result
}
