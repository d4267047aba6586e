package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/taskqueue/internal/common"
	_ "modernc.org/sqlite"
)

// SQLiteDB manages the SQLite database connection backing the task queue store.
type SQLiteDB struct {
	db     *sql.DB
	logger arbor.ILogger
	config *common.SQLiteConfig
}

// NewSQLiteDB creates a new SQLite database connection and applies the
// schema. maxConnections bounds the pool.
func NewSQLiteDB(logger arbor.ILogger, config *common.SQLiteConfig, maxConnections int) (*SQLiteDB, error) {
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if config.ResetOnStartup {
		if config.Environment != "development" {
			logger.Warn().
				Str("environment", config.Environment).
				Msg("reset_on_startup is enabled but environment is not 'development' - ignoring reset request for safety")
		} else {
			if err := resetDatabase(logger, config.Path); err != nil {
				return nil, fmt.Errorf("failed to reset database: %w", err)
			}
		}
	}

	logger.Debug().Str("path", config.Path).Msg("Opening database connection")

	// modernc.org/sqlite uses "sqlite" driver name (not "sqlite3"). _txlock=immediate
	// makes every *sql.Tx acquire SQLite's write lock at BEGIN instead of on first
	// write, which is what findOrCreateTQ relies on for row-lock emulation.
	// busy_timeout and foreign_keys are per-connection settings, so they are
	// passed as _pragma parameters and applied to every pooled connection.
	dsn := fmt.Sprintf("%s?_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		config.Path, config.BusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode lets readers (match candidate queries) proceed while a writer
	// holds the single write lock, so a real ceiling on concurrent handles
	// is useful instead of pinning to one connection.
	if maxConnections <= 0 {
		maxConnections = 10
	}
	db.SetMaxOpenConns(maxConnections)
	db.SetMaxIdleConns(maxConnections)

	s := &SQLiteDB{
		db:     db,
		logger: logger,
		config: config,
	}

	if err := s.configure(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if err := s.InitSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info().Str("path", config.Path).Int("max_connections", maxConnections).Msg("SQLite database initialized")
	return s, nil
}

// configure sets up SQLite pragmas and settings
func (s *SQLiteDB) configure() error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA cache_size = -%d", s.config.CacheSizeMB*1024), // Negative for KB
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.config.BusyTimeoutMS),
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}

	if s.config.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	if s.config.WALMode {
		var journalMode string
		if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to verify journal mode")
		} else {
			s.logger.Info().
				Str("journal_mode", journalMode).
				Int("busy_timeout_ms", s.config.BusyTimeoutMS).
				Int("cache_size_mb", s.config.CacheSizeMB).
				Msg("SQLite configuration applied")
		}
	}

	return nil
}

// DB returns the underlying database connection
func (s *SQLiteDB) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// BeginImmediate starts a transaction that acquires SQLite's write lock up
// front, used for the row-level-lock emulation findOrCreateTQ needs
// (detachJob uses a single DELETE ... RETURNING instead). The DSN's _txlock=immediate makes every transaction
// behave this way, so this is a thin, self-documenting wrapper around BeginTx.
func (s *SQLiteDB) BeginImmediate(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// Ping verifies the database connection
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// resetDatabase deletes the database file and all associated files (WAL, SHM).
// This should ONLY be called in development environment.
func resetDatabase(logger arbor.ILogger, dbPath string) error {
	logger.Warn().Str("path", dbPath).Msg("Resetting database (deleting all data)")

	if err := os.Remove(dbPath); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete database file: %w", err)
		}
	} else {
		logger.Info().Str("path", dbPath).Msg("Deleted database file")
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		p := dbPath + suffix
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", p).Msg("Failed to delete companion file")
		}
	}

	logger.Info().Msg("Database reset complete - starting with clean database")
	return nil
}
