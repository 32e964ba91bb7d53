package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/common"
	"github.com/ternarybob/runpack/internal/interfaces"
	"github.com/ternarybob/runpack/internal/storage/badger"
	"github.com/ternarybob/runpack/internal/storage/sqlite"
)

// NewStorageManager creates a storage manager based on config. SQLite is
// the default backend; badger is available for deployments that prefer an
// embedded KV store.
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	switch config.Storage.Type {
	case "", "sqlite":
		return sqlite.NewManager(logger, &config.Storage.SQLite)
	case "badger":
		return badger.NewManager(logger, &config.Storage.Badger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Storage.Type)
	}
}
