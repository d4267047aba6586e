package sqlite

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/taskqueue/internal/common"
	"github.com/ternarybob/taskqueue/internal/interfaces"
)

// Manager implements interfaces.StorageManager, wiring one storage type per
// concern onto a single SQLite connection.
type Manager struct {
	db           *SQLiteDB
	tq           *TQStorage
	share        *ShareStorage
	housekeeping *HousekeepingStorage
	logger       arbor.ILogger
}

// NewManager opens the SQLite connection, applies the schema and
// migrations, and wires every storage concern against it.
func NewManager(logger arbor.ILogger, config *common.SQLiteConfig, maxConnections int) (*Manager, error) {
	db, err := NewSQLiteDB(logger, config, maxConnections)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		db:           db,
		tq:           NewTQStorage(db, logger),
		share:        NewShareStorage(db, logger),
		housekeeping: NewHousekeepingStorage(db, logger),
		logger:       logger,
	}

	logger.Info().Msg("Storage manager initialized (task queues, shares, housekeeping)")
	return m, nil
}

func (m *Manager) TaskQueueStorage() interfaces.TaskQueueStorage { return m.tq }
func (m *Manager) ShareStorage() interfaces.ShareStorage         { return m.share }
func (m *Manager) HousekeepingStorage() interfaces.HousekeepingStorage {
	return m.housekeeping
}

// DB returns the underlying *sql.DB for diagnostics/test setup.
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.DB()
	}
	return nil
}

// Close closes the database connection.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
