package badger

import (
	"context"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/interfaces"
	"github.com/ternarybob/runpack/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// RunnerStorage implements Badger storage for runner registrations
type RunnerStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunnerStorage creates a new runner storage instance
func NewRunnerStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunnerStorage {
	return &RunnerStorage{
		db:     db,
		logger: logger,
	}
}

// RegisterRunner upserts a runner by id, replacing name and capabilities
// and advancing last_seen
func (s *RunnerStorage) RegisterRunner(ctx context.Context, runner *models.Runner) error {
	if err := s.db.Store().Upsert(runner.ID, runner); err != nil {
		s.logger.Error().Err(err).Str("runner_id", runner.ID).Msg("Failed to register runner")
		return fmt.Errorf("failed to register runner: %w", err)
	}

	s.logger.Debug().Str("runner_id", runner.ID).Str("name", runner.Name).Msg("Runner registered")
	return nil
}

// GetRunner retrieves a runner by ID
func (s *RunnerStorage) GetRunner(ctx context.Context, id string) (*models.Runner, error) {
	var runner models.Runner
	if err := s.db.Store().Get(id, &runner); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get runner: %w", err)
	}
	return &runner, nil
}

// TouchRunner advances the runner's last_seen timestamp
func (s *RunnerStorage) TouchRunner(ctx context.Context, id string) (bool, error) {
	touched := false
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		var runner models.Runner
		if err := s.db.Store().TxGet(txn, id, &runner); err != nil {
			if err == badgerhold.ErrNotFound {
				return nil
			}
			return err
		}

		runner.LastSeen = nowMillis()
		if err := s.db.Store().TxUpdate(txn, id, &runner); err != nil {
			return err
		}
		touched = true
		return nil
	})

	if err != nil {
		return false, fmt.Errorf("failed to touch runner: %w", err)
	}
	return touched, nil
}

// ListRunners lists all registered runners, most recently seen first
func (s *RunnerStorage) ListRunners(ctx context.Context) ([]*models.Runner, error) {
	var runners []models.Runner
	query := badgerhold.Where("ID").Ne("").SortBy("LastSeen").Reverse()
	if err := s.db.Store().Find(&runners, query); err != nil {
		return nil, fmt.Errorf("failed to list runners: %w", err)
	}

	result := make([]*models.Runner, len(runners))
	for i := range runners {
		result[i] = &runners[i]
	}
	return result, nil
}

// DeleteRunner removes a runner registration
func (s *RunnerStorage) DeleteRunner(ctx context.Context, id string) (bool, error) {
	err := s.db.Store().Delete(id, &models.Runner{})
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete runner: %w", err)
	}
	return true, nil
}
