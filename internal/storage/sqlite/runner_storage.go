package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/interfaces"
	"github.com/ternarybob/runpack/internal/models"
)

// RunnerStorage implements SQLite storage for runner registrations
type RunnerStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewRunnerStorage creates a new runner storage instance
func NewRunnerStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.RunnerStorage {
	return &RunnerStorage{
		db:     db,
		logger: logger,
	}
}

// RegisterRunner upserts a runner by id, replacing name and capabilities
// and advancing last_seen
func (s *RunnerStorage) RegisterRunner(ctx context.Context, runner *models.Runner) error {
	capsJSON, err := json.Marshal(runner.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to serialize capabilities: %w", err)
	}

	query := `
		INSERT INTO runners (id, name, capabilities, registered_at, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			capabilities = excluded.capabilities,
			last_seen = excluded.last_seen
	`

	_, err = s.db.db.ExecContext(ctx, query,
		runner.ID, runner.Name, string(capsJSON), runner.RegisteredAt, runner.LastSeen)
	if err != nil {
		s.logger.Error().Err(err).Str("runner_id", runner.ID).Msg("Failed to register runner")
		return fmt.Errorf("failed to register runner: %w", err)
	}

	s.logger.Debug().Str("runner_id", runner.ID).Str("name", runner.Name).Msg("Runner registered")
	return nil
}

// GetRunner retrieves a runner by ID
func (s *RunnerStorage) GetRunner(ctx context.Context, id string) (*models.Runner, error) {
	query := "SELECT id, name, capabilities, registered_at, last_seen FROM runners WHERE id = ?"
	row := s.db.db.QueryRowContext(ctx, query, id)

	runner, err := scanRunner(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return runner, nil
}

// TouchRunner advances the runner's last_seen timestamp
func (s *RunnerStorage) TouchRunner(ctx context.Context, id string) (bool, error) {
	result, err := s.db.db.ExecContext(ctx,
		"UPDATE runners SET last_seen = ? WHERE id = ?", nowMillis(), id)
	if err != nil {
		return false, fmt.Errorf("failed to touch runner: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read touch result: %w", err)
	}
	return affected == 1, nil
}

// ListRunners lists all registered runners, most recently seen first
func (s *RunnerStorage) ListRunners(ctx context.Context) ([]*models.Runner, error) {
	query := "SELECT id, name, capabilities, registered_at, last_seen FROM runners ORDER BY last_seen DESC"
	rows, err := s.db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runners: %w", err)
	}
	defer rows.Close()

	runners := []*models.Runner{}
	for rows.Next() {
		runner, err := scanRunner(rows.Scan)
		if err != nil {
			return nil, err
		}
		runners = append(runners, runner)
	}
	return runners, rows.Err()
}

// DeleteRunner removes a runner registration
func (s *RunnerStorage) DeleteRunner(ctx context.Context, id string) (bool, error) {
	result, err := s.db.db.ExecContext(ctx, "DELETE FROM runners WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete runner: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected == 1, nil
}

// scanRunner scans a row via the provided scan function
func scanRunner(scan func(dest ...interface{}) error) (*models.Runner, error) {
	var (
		id, name, capsJSON      string
		registeredAt, lastSeen  int64
	)

	if err := scan(&id, &name, &capsJSON, &registeredAt, &lastSeen); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan runner: %w", err)
	}

	var capabilities []string
	if err := json.Unmarshal([]byte(capsJSON), &capabilities); err != nil {
		return nil, fmt.Errorf("failed to deserialize capabilities: %w", err)
	}

	return &models.Runner{
		ID:           id,
		Name:         name,
		Capabilities: capabilities,
		RegisteredAt: registeredAt,
		LastSeen:     lastSeen,
	}, nil
}
