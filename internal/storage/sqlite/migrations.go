package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrate runs database migrations on top of the baseline schema.go.
func (s *SQLiteDB) migrate() error {
	ctx := context.Background()

	if err := s.createMigrationsTable(ctx); err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "cpu_time_bucket_index", up: migrateV1},
	}

	for _, m := range migrations {
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}

	return nil
}

type migration struct {
	version int
	name    string
	up      func(context.Context, *sql.Tx) error
}

func (s *SQLiteDB) createMigrationsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLiteDB) runMigration(ctx context.Context, m migration) error {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.up(ctx, tx); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, strftime('%s', 'now'))",
		m.version, m.name)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// migrateV1 adds a composite (owner_group, cpu_time) index on
// tq_task_queues, the two columns MatchCandidates filters on; schema.go's
// baseline indexes owner_group alone.
func migrateV1(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		`CREATE INDEX IF NOT EXISTS idx_tq_owner_group_cpu ON tq_task_queues(owner_group, cpu_time)`,
	}
	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
	}
	return nil
}
