package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/interfaces"
	"github.com/ternarybob/runpack/internal/models"
)

// nowMillis returns the current time in Unix milliseconds
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// JobStorage implements SQLite storage for coordinator jobs
type JobStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewJobStorage creates a new job storage instance
func NewJobStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

const jobColumns = `id, job_hash, job_type, input_params, status, created_at, updated_at,
	       claimed_by, claimed_at, progress_current, progress_total,
	       console_output, output_data, error_message, last_heartbeat`

// CreateJob inserts a new pending job. The unique index on job_hash makes
// concurrent submissions of the same hash collapse to one row; the loser
// receives ErrDuplicateHash and re-reads.
func (s *JobStorage) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, job_hash, job_type, input_params, status, created_at, updated_at, last_heartbeat)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
	`

	_, err := s.db.db.ExecContext(ctx, query,
		job.ID,
		job.Hash,
		job.Type,
		string(job.InputParams),
		string(job.Status),
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
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
	query := fmt.Sprintf("SELECT %s FROM jobs WHERE id = ?", jobColumns)
	row := s.db.db.QueryRowContext(ctx, query, id)
	return s.scanJob(row)
}

// GetJobByHash retrieves a job by its deduplication hash
func (s *JobStorage) GetJobByHash(ctx context.Context, hash string) (*models.Job, error) {
	query := fmt.Sprintf("SELECT %s FROM jobs WHERE job_hash = ?", jobColumns)
	row := s.db.db.QueryRowContext(ctx, query, hash)
	return s.scanJob(row)
}

// ListAvailableJobs lists pending jobs matching the given types, oldest
// first so runners drain the backlog in FIFO order.
func (s *JobStorage) ListAvailableJobs(ctx context.Context, types []string, limit int) ([]*models.Job, error) {
	if len(types) == 0 {
		return []*models.Job{}, nil
	}
	if limit <= 0 {
		limit = 50
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(types)), ", ")
	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE status = 'pending' AND job_type IN (%s)
		ORDER BY created_at ASC
		LIMIT ?
	`, jobColumns, placeholders)

	args := make([]interface{}, 0, len(types)+1)
	for _, t := range types {
		args = append(args, t)
	}
	args = append(args, limit)

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list available jobs: %w", err)
	}
	defer rows.Close()

	return s.scanJobs(rows)
}

// ListJobs lists jobs newest first with an optional status filter
func (s *JobStorage) ListJobs(ctx context.Context, status string, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf("SELECT %s FROM jobs", jobColumns)
	args := []interface{}{}

	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return s.scanJobs(rows)
}

// ListJobsByRunner lists jobs claimed by a runner, newest first
func (s *JobStorage) ListJobsByRunner(ctx context.Context, runnerID string, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 20
	}

	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE claimed_by = ?
		ORDER BY claimed_at DESC
		LIMIT ?
	`, jobColumns)

	rows, err := s.db.db.QueryContext(ctx, query, runnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs by runner: %w", err)
	}
	defer rows.Close()

	return s.scanJobs(rows)
}

// CountJobsByStatus returns job counts grouped by status
func (s *JobStorage) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := s.db.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[models.JobStatus(status)] = count
	}
	return counts, rows.Err()
}

// ClaimJob atomically transitions pending -> claimed. The WHERE clause is
// the whole concurrency story: two racing claims produce exactly one
// changed row.
func (s *JobStorage) ClaimJob(ctx context.Context, jobID, runnerID string) (bool, error) {
	now := nowMillis()
	query := `
		UPDATE jobs
		SET status = 'claimed', claimed_by = ?, claimed_at = ?, last_heartbeat = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`

	result, err := s.db.db.ExecContext(ctx, query, runnerID, now, now, now, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}

	if affected == 1 {
		s.logger.Debug().Str("job_id", jobID).Str("runner_id", runnerID).Msg("Job claimed")
	}
	return affected == 1, nil
}

// HeartbeatJob advances progress and liveness for a claimed job
func (s *JobStorage) HeartbeatJob(ctx context.Context, jobID, runnerID string, progressCurrent, progressTotal *int64, consoleOutput string) (bool, error) {
	now := nowMillis()
	query := `
		UPDATE jobs
		SET status = 'in_progress', progress_current = ?, progress_total = ?,
		    console_output = ?, last_heartbeat = ?, updated_at = ?
		WHERE id = ? AND claimed_by = ? AND status IN ('claimed', 'in_progress')
	`

	result, err := s.db.db.ExecContext(ctx, query,
		nullableInt(progressCurrent), nullableInt(progressTotal),
		consoleOutput, now, now, jobID, runnerID)
	if err != nil {
		return false, fmt.Errorf("failed to record heartbeat: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read heartbeat result: %w", err)
	}
	return affected == 1, nil
}

// CompleteJob records a terminal success
func (s *JobStorage) CompleteJob(ctx context.Context, jobID, runnerID string, outputData json.RawMessage, consoleOutput string) (bool, error) {
	now := nowMillis()
	query := `
		UPDATE jobs
		SET status = 'completed', output_data = ?, console_output = ?,
		    last_heartbeat = ?, updated_at = ?
		WHERE id = ? AND claimed_by = ? AND status IN ('claimed', 'in_progress')
	`

	result, err := s.db.db.ExecContext(ctx, query,
		string(outputData), consoleOutput, now, now, jobID, runnerID)
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read complete result: %w", err)
	}

	if affected == 1 {
		s.logger.Debug().Str("job_id", jobID).Str("runner_id", runnerID).Msg("Job completed")
	}
	return affected == 1, nil
}

// FailJob records a terminal failure
func (s *JobStorage) FailJob(ctx context.Context, jobID, runnerID, errorMessage, consoleOutput string) (bool, error) {
	now := nowMillis()
	query := `
		UPDATE jobs
		SET status = 'failed', error_message = ?, console_output = ?,
		    last_heartbeat = ?, updated_at = ?
		WHERE id = ? AND claimed_by = ? AND status IN ('claimed', 'in_progress')
	`

	result, err := s.db.db.ExecContext(ctx, query,
		errorMessage, consoleOutput, now, now, jobID, runnerID)
	if err != nil {
		return false, fmt.Errorf("failed to fail job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read fail result: %w", err)
	}
	return affected == 1, nil
}

// SweepStaleJobs bulk-fails live jobs whose last heartbeat predates cutoffMs
func (s *JobStorage) SweepStaleJobs(ctx context.Context, cutoffMs int64, errorMessage string) (int, error) {
	now := nowMillis()
	query := `
		UPDATE jobs
		SET status = 'failed', error_message = ?, updated_at = ?
		WHERE status IN ('claimed', 'in_progress') AND last_heartbeat < ?
	`

	result, err := s.db.db.ExecContext(ctx, query, errorMessage, now, cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale jobs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read sweep result: %w", err)
	}

	if affected > 0 {
		s.logger.Warn().Int64("count", affected).Msg("Stale jobs failed by sweeper")
	}
	return int(affected), nil
}

// DeleteJob deletes a job by ID
func (s *JobStorage) DeleteJob(ctx context.Context, id string) (bool, error) {
	result, err := s.db.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected == 1, nil
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

// nullableInt converts an optional int64 to a driver-friendly value
func nullableInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// scanJob scans a single row into a Job
func (s *JobStorage) scanJob(row *sql.Row) (*models.Job, error) {
	var (
		id, hash, jobType, status                   string
		inputParams                                 sql.NullString
		createdAt, updatedAt                        int64
		claimedBy, consoleOutput, outputData        sql.NullString
		errorMessage                                sql.NullString
		claimedAt, lastHeartbeat                    sql.NullInt64
		progressCurrent, progressTotal              sql.NullInt64
	)

	err := row.Scan(
		&id, &hash, &jobType, &inputParams, &status, &createdAt, &updatedAt,
		&claimedBy, &claimedAt, &progressCurrent, &progressTotal,
		&consoleOutput, &outputData, &errorMessage, &lastHeartbeat,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	return buildJob(id, hash, jobType, status, inputParams, createdAt, updatedAt,
		claimedBy, claimedAt, progressCurrent, progressTotal,
		consoleOutput, outputData, errorMessage, lastHeartbeat), nil
}

// scanJobs scans multiple rows into a slice of Jobs
func (s *JobStorage) scanJobs(rows *sql.Rows) ([]*models.Job, error) {
	jobs := []*models.Job{}

	for rows.Next() {
		var (
			id, hash, jobType, status                   string
			inputParams                                 sql.NullString
			createdAt, updatedAt                        int64
			claimedBy, consoleOutput, outputData        sql.NullString
			errorMessage                                sql.NullString
			claimedAt, lastHeartbeat                    sql.NullInt64
			progressCurrent, progressTotal              sql.NullInt64
		)

		err := rows.Scan(
			&id, &hash, &jobType, &inputParams, &status, &createdAt, &updatedAt,
			&claimedBy, &claimedAt, &progressCurrent, &progressTotal,
			&consoleOutput, &outputData, &errorMessage, &lastHeartbeat,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}

		jobs = append(jobs, buildJob(id, hash, jobType, status, inputParams, createdAt, updatedAt,
			claimedBy, claimedAt, progressCurrent, progressTotal,
			consoleOutput, outputData, errorMessage, lastHeartbeat))
	}

	return jobs, rows.Err()
}

func buildJob(id, hash, jobType, status string, inputParams sql.NullString,
	createdAt, updatedAt int64, claimedBy sql.NullString, claimedAt sql.NullInt64,
	progressCurrent, progressTotal sql.NullInt64,
	consoleOutput, outputData, errorMessage sql.NullString, lastHeartbeat sql.NullInt64) *models.Job {

	job := &models.Job{
		ID:        id,
		Hash:      hash,
		Type:      jobType,
		Status:    models.JobStatus(status),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}

	if inputParams.Valid && inputParams.String != "" {
		job.InputParams = json.RawMessage(inputParams.String)
	}
	if claimedBy.Valid {
		job.ClaimedBy = claimedBy.String
	}
	if claimedAt.Valid {
		job.ClaimedAt = claimedAt.Int64
	}
	if progressCurrent.Valid {
		v := progressCurrent.Int64
		job.ProgressCurrent = &v
	}
	if progressTotal.Valid {
		v := progressTotal.Int64
		job.ProgressTotal = &v
	}
	if consoleOutput.Valid {
		job.ConsoleOutput = consoleOutput.String
	}
	if outputData.Valid && outputData.String != "" {
		job.OutputData = json.RawMessage(outputData.String)
	}
	if errorMessage.Valid {
		job.ErrorMessage = errorMessage.String
	}
	if lastHeartbeat.Valid {
		job.LastHeartbeat = lastHeartbeat.Int64
	}

	return job
}
