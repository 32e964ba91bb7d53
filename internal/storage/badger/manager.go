package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/common"
	"github.com/ternarybob/runpack/internal/interfaces"
)

// Manager implements the StorageManager interface
type Manager struct {
	db     *BadgerDB
	job    interfaces.JobStorage
	runner interfaces.RunnerStorage
	logger arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:     db,
		job:    NewJobStorage(db, logger),
		runner: NewRunnerStorage(db, logger),
		logger: logger,
	}, nil
}

// JobStorage returns the Job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// RunnerStorage returns the Runner storage interface
func (m *Manager) RunnerStorage() interfaces.RunnerStorage {
	return m.runner
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
