// -----------------------------------------------------------------------
// Package lifecycle implements the job and runner state machines on top
// of the conditional-write storage contract
// -----------------------------------------------------------------------

package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/common"
	"github.com/ternarybob/runpack/internal/interfaces"
	"github.com/ternarybob/runpack/internal/models"
)

// Service coordinates job submission, claiming, progress reporting, and
// terminal transitions. It holds no state of its own: every race is
// resolved by the store's conditional writes, so two coordinators sharing
// one store would behave identically.
type Service struct {
	jobs      interfaces.JobStorage
	runners   interfaces.RunnerStorage
	freshness interfaces.FreshnessChecker
	notifier  interfaces.NotifyService
	threshold time.Duration
	logger    arbor.ILogger
}

// NewService creates the lifecycle service
func NewService(
	logger arbor.ILogger,
	storage interfaces.StorageManager,
	freshness interfaces.FreshnessChecker,
	notifier interfaces.NotifyService,
	staleThreshold time.Duration,
) *Service {
	return &Service{
		jobs:      storage.JobStorage(),
		runners:   storage.RunnerStorage(),
		freshness: freshness,
		notifier:  notifier,
		threshold: staleThreshold,
		logger:    logger,
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Submit implements the idempotent submission algorithm: hash, look up,
// and either return the existing job's state or create a new pending row.
// A lost creation race falls through to the winner's row.
func (s *Service) Submit(ctx context.Context, req *models.SubmitJobRequest) (*models.SubmitJobResponse, error) {
	hash, err := common.JobHash(req.JobType, req.InputParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash job parameters: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.jobs.GetJobByHash(ctx, hash)
		if err == interfaces.ErrNotFound {
			now := nowMillis()
			job := &models.Job{
				ID:          common.NewJobID(),
				Hash:        hash,
				Type:        req.JobType,
				InputParams: req.InputParams,
				Status:      models.JobStatusPending,
				CreatedAt:   now,
				UpdatedAt:   now,
			}

			if err := s.jobs.CreateJob(ctx, job); err != nil {
				if err == interfaces.ErrDuplicateHash {
					// Lost the creation race; surface the winner's row.
					continue
				}
				return nil, err
			}

			s.logger.Info().Str("job_id", job.ID).Str("job_type", job.Type).Msg("Job submitted")
			s.notifier.NotifyNewJob(job)

			view := s.viewOf(job)
			return &models.SubmitJobResponse{JobStatusView: *view, Created: true}, nil
		}
		if err != nil {
			return nil, err
		}

		view, err := s.resolveExisting(ctx, existing)
		if err != nil {
			return nil, err
		}
		return &models.SubmitJobResponse{JobStatusView: *view, Created: false}, nil
	}

	return nil, fmt.Errorf("failed to resolve job after creation race for hash %s", hash)
}

// Check is the read-only twin of Submit: identical resolution but never
// creates a row.
func (s *Service) Check(ctx context.Context, req *models.SubmitJobRequest) (*models.CheckJobResponse, error) {
	hash, err := common.JobHash(req.JobType, req.InputParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash job parameters: %w", err)
	}

	existing, err := s.jobs.GetJobByHash(ctx, hash)
	if err == interfaces.ErrNotFound {
		return &models.CheckJobResponse{Exists: false}, nil
	}
	if err != nil {
		return nil, err
	}

	view, err := s.resolveExisting(ctx, existing)
	if err != nil {
		return nil, err
	}
	return &models.CheckJobResponse{Exists: true, Job: view}, nil
}

// resolveExisting maps a stored job onto the client-facing view. Completed
// jobs are probed for freshness; a stale result is deleted and reported as
// expired so the client can re-submit.
func (s *Service) resolveExisting(ctx context.Context, job *models.Job) (*models.JobStatusView, error) {
	view := s.viewOf(job)

	switch job.Status {
	case models.JobStatusCompleted:
		if s.freshness.IsFresh(ctx, job.OutputData) {
			view.Result = &models.JobResult{
				OutputData:    job.OutputData,
				ConsoleOutput: job.ConsoleOutput,
			}
			return view, nil
		}

		if _, err := s.jobs.DeleteJob(ctx, job.ID); err != nil {
			return nil, err
		}
		s.logger.Info().Str("job_id", job.ID).Str("job_hash", job.Hash).Msg("Cached result expired and removed")
		view.Status = models.JobStatusExpired
		return view, nil

	case models.JobStatusFailed:
		view.ErrorMessage = job.ErrorMessage
		return view, nil

	default:
		return view, nil
	}
}

func (s *Service) viewOf(job *models.Job) *models.JobStatusView {
	return &models.JobStatusView{
		JobID:           job.ID,
		JobHash:         job.Hash,
		JobType:         job.Type,
		Status:          job.Status,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		ProgressCurrent: job.ProgressCurrent,
		ProgressTotal:   job.ProgressTotal,
	}
}

// GetJob returns a job by id.
func (s *Service) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return s.jobs.GetJob(ctx, id)
}

// RegisterRunner upserts a runner registration. A runner supplying its
// previous id keeps its identity and original registration time; a blank
// id gets a fresh one.
func (s *Service) RegisterRunner(ctx context.Context, req *models.RegisterRunnerRequest) (*models.Runner, error) {
	now := nowMillis()
	runner := &models.Runner{
		ID:           req.RunnerID,
		Name:         req.Name,
		Capabilities: req.Capabilities,
		RegisteredAt: now,
		LastSeen:     now,
	}

	if runner.ID == "" {
		runner.ID = common.NewRunnerID()
	} else if existing, err := s.runners.GetRunner(ctx, runner.ID); err == nil {
		runner.RegisteredAt = existing.RegisteredAt
	}

	if err := s.runners.RegisterRunner(ctx, runner); err != nil {
		return nil, err
	}

	s.logger.Info().Str("runner_id", runner.ID).Str("name", runner.Name).Msg("Runner registered")
	return runner, nil
}

// VerifyRunner confirms a runner id exists and advances its last_seen.
func (s *Service) VerifyRunner(ctx context.Context, runnerID string) (*models.Runner, error) {
	runner, err := s.runners.GetRunner(ctx, runnerID)
	if err != nil {
		return nil, err
	}

	if _, err := s.runners.TouchRunner(ctx, runnerID); err != nil {
		s.logger.Warn().Err(err).Str("runner_id", runnerID).Msg("Failed to touch runner")
	}
	runner.LastSeen = nowMillis()
	return runner, nil
}

// requireRunner resolves the caller's registration and advances last_seen.
func (s *Service) requireRunner(ctx context.Context, runnerID string) (*models.Runner, error) {
	runner, err := s.runners.GetRunner(ctx, runnerID)
	if err == interfaces.ErrNotFound {
		return nil, ErrUnknownRunner
	}
	if err != nil {
		return nil, err
	}

	if _, err := s.runners.TouchRunner(ctx, runnerID); err != nil {
		s.logger.Warn().Err(err).Str("runner_id", runnerID).Msg("Failed to touch runner")
	}
	return runner, nil
}

// AvailableJobs lists pending jobs the runner can execute, oldest first.
// Requested types are intersected with the runner's capabilities; an empty
// request means all capabilities.
func (s *Service) AvailableJobs(ctx context.Context, runnerID string, types []string, limit int) ([]*models.Job, error) {
	runner, err := s.requireRunner(ctx, runnerID)
	if err != nil {
		return nil, err
	}

	effective := types
	if len(effective) == 0 {
		effective = runner.Capabilities
	} else {
		filtered := make([]string, 0, len(effective))
		for _, t := range effective {
			if runner.CanRun(t) {
				filtered = append(filtered, t)
			}
		}
		effective = filtered
	}

	return s.jobs.ListAvailableJobs(ctx, effective, limit)
}

// Claim atomically transitions a pending job to claimed for this runner.
// Exactly one of two concurrent claimers succeeds; the loser gets
// ErrClaimConflict.
func (s *Service) Claim(ctx context.Context, jobID, runnerID string) (*models.Job, error) {
	if _, err := s.requireRunner(ctx, runnerID); err != nil {
		return nil, err
	}

	claimed, err := s.jobs.ClaimJob(ctx, jobID, runnerID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		if _, err := s.jobs.GetJob(ctx, jobID); err != nil {
			return nil, err
		}
		return nil, ErrClaimConflict
	}

	return s.jobs.GetJob(ctx, jobID)
}

// Heartbeat records progress for a claimed job and extends its liveness.
func (s *Service) Heartbeat(ctx context.Context, jobID, runnerID string, req *models.HeartbeatRequest) (*models.Job, error) {
	if _, err := s.requireRunner(ctx, runnerID); err != nil {
		return nil, err
	}

	changed, err := s.jobs.HeartbeatJob(ctx, jobID, runnerID, req.ProgressCurrent, req.ProgressTotal, req.ConsoleOutput)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, s.diagnoseRejection(ctx, jobID, runnerID)
	}

	return s.jobs.GetJob(ctx, jobID)
}

// Complete records a terminal success for a claimed job.
func (s *Service) Complete(ctx context.Context, jobID, runnerID string, req *models.CompleteRequest) (*models.Job, error) {
	if _, err := s.requireRunner(ctx, runnerID); err != nil {
		return nil, err
	}

	changed, err := s.jobs.CompleteJob(ctx, jobID, runnerID, req.OutputData, req.ConsoleOutput)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, s.diagnoseRejection(ctx, jobID, runnerID)
	}

	s.logger.Info().Str("job_id", jobID).Str("runner_id", runnerID).Msg("Job completed")
	return s.jobs.GetJob(ctx, jobID)
}

// Fail records a terminal failure for a claimed job.
func (s *Service) Fail(ctx context.Context, jobID, runnerID string, req *models.FailRequest) (*models.Job, error) {
	if _, err := s.requireRunner(ctx, runnerID); err != nil {
		return nil, err
	}

	changed, err := s.jobs.FailJob(ctx, jobID, runnerID, req.ErrorMessage, req.ConsoleOutput)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, s.diagnoseRejection(ctx, jobID, runnerID)
	}

	s.logger.Info().Str("job_id", jobID).Str("runner_id", runnerID).Msg("Job failed")
	return s.jobs.GetJob(ctx, jobID)
}

// diagnoseRejection explains why a conditional transition changed nothing.
// The write itself is the authority; this read only picks the error.
func (s *Service) diagnoseRejection(ctx context.Context, jobID, runnerID string) error {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.ClaimedBy != runnerID {
		return ErrNotClaimed
	}
	return ErrNotLive
}

// SweepStale fails every live job whose heartbeat has been silent longer
// than the threshold. Returns the number of jobs transitioned.
func (s *Service) SweepStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.threshold).UnixMilli()
	return s.jobs.SweepStaleJobs(ctx, cutoff, models.StaleTimeoutMessage)
}

// Stats aggregates job counts by status and runner activity.
func (s *Service) Stats(ctx context.Context) (*models.StatsResponse, error) {
	counts, err := s.jobs.CountJobsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	runners, err := s.runners.ListRunners(ctx)
	if err != nil {
		return nil, err
	}

	now := nowMillis()
	active := 0
	for _, r := range runners {
		if r.IsActive(now) {
			active++
		}
	}

	return &models.StatsResponse{
		Jobs:          counts,
		TotalJobs:     total,
		TotalRunners:  len(runners),
		ActiveRunners: active,
	}, nil
}

// ListJobs lists jobs newest first, optionally filtered by status.
func (s *Service) ListJobs(ctx context.Context, status string, limit int) ([]*models.Job, error) {
	return s.jobs.ListJobs(ctx, status, limit)
}

// DeleteJob removes one job. Returns false when the id is unknown.
func (s *Service) DeleteJob(ctx context.Context, id string) (bool, error) {
	return s.jobs.DeleteJob(ctx, id)
}

// DeleteJobs removes jobs individually and reports which ids succeeded.
func (s *Service) DeleteJobs(ctx context.Context, ids []string) (*models.BatchDeleteResponse, error) {
	results, err := s.jobs.DeleteJobs(ctx, ids)
	if err != nil {
		return nil, err
	}

	resp := &models.BatchDeleteResponse{Deleted: []string{}, Failed: []string{}}
	for _, id := range ids {
		if results[id] {
			resp.Deleted = append(resp.Deleted, id)
		} else {
			resp.Failed = append(resp.Failed, id)
		}
	}
	return resp, nil
}

// ListRunners lists runners with derived activeness, most recently seen
// first.
func (s *Service) ListRunners(ctx context.Context) ([]*models.RunnerView, error) {
	runners, err := s.runners.ListRunners(ctx)
	if err != nil {
		return nil, err
	}

	now := nowMillis()
	views := make([]*models.RunnerView, len(runners))
	for i, r := range runners {
		views[i] = &models.RunnerView{Runner: *r, Active: r.IsActive(now)}
	}
	return views, nil
}

// RunnerDetail returns a runner with its recent jobs, newest first.
func (s *Service) RunnerDetail(ctx context.Context, id string) (*models.RunnerDetailResponse, error) {
	runner, err := s.runners.GetRunner(ctx, id)
	if err != nil {
		return nil, err
	}

	jobs, err := s.jobs.ListJobsByRunner(ctx, id, 20)
	if err != nil {
		return nil, err
	}

	return &models.RunnerDetailResponse{
		RunnerView: models.RunnerView{Runner: *runner, Active: runner.IsActive(nowMillis())},
		RecentJobs: jobs,
	}, nil
}
