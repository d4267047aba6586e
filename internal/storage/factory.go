// Package storage selects and constructs the backing StorageManager
// implementation. SQLite is the only supported backend; the factory exists
// so callers depend on one constructor instead of importing the sqlite
// package directly.
package storage

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/taskqueue/internal/common"
	"github.com/ternarybob/taskqueue/internal/interfaces"
	"github.com/ternarybob/taskqueue/internal/storage/sqlite"
)

// NewStorageManager opens the configured SQLite store and returns it behind
// the interfaces.StorageManager contract.
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	return sqlite.NewManager(logger, &config.Storage.SQLite, config.MaxConnections)
}
