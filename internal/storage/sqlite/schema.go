package sqlite

// schemaSQL is the baseline task-queue schema. Every statement is idempotent so it can run on every startup;
// anything added after the first release goes through migrations.go instead.
const schemaSQL = `
-- One row per task queue. Identity is the fingerprint of its canonical
-- requirement vector -- at most one live row per fingerprint.
CREATE TABLE IF NOT EXISTS tq_task_queues (
	tq_id INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint TEXT NOT NULL,
	owner_dn TEXT NOT NULL DEFAULT '',
	owner_group TEXT NOT NULL,
	setup TEXT NOT NULL DEFAULT '',
	cpu_time INTEGER NOT NULL,
	raw_priority REAL NOT NULL DEFAULT 1.0,
	share REAL NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tq_fingerprint ON tq_task_queues(fingerprint);
CREATE INDEX IF NOT EXISTS idx_tq_owner_group ON tq_task_queues(owner_group);

-- Multi-valued requirement rows (Sites, BannedSites, GridCEs, Platforms,
-- Tags, RequiredTags, JobTypes, SubmitPools, PilotTypes). One shared table
-- keyed by field name rather than one table per field.
CREATE TABLE IF NOT EXISTS tq_multivalue (
	tq_id INTEGER NOT NULL,
	field TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (tq_id, field, value),
	FOREIGN KEY (tq_id) REFERENCES tq_task_queues(tq_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_tq_multivalue_field_value ON tq_multivalue(field, value);

-- Jobs are a weak reference to their TQ: no ON DELETE CASCADE, because
-- deleteTQ must fail while a job is still attached.
CREATE TABLE IF NOT EXISTS tq_jobs (
	job_id INTEGER PRIMARY KEY,
	tq_id INTEGER NOT NULL,
	enqueued_at INTEGER NOT NULL,
	priority_hint REAL NOT NULL DEFAULT 0,
	FOREIGN KEY (tq_id) REFERENCES tq_task_queues(tq_id)
);

CREATE INDEX IF NOT EXISTS idx_tq_jobs_dispatch ON tq_jobs(tq_id, enqueued_at, job_id);

-- Derived fair-share state. Never authoritative; rebuilt by
-- recalculateTQSharesForGroup/...ForAll.
CREATE TABLE IF NOT EXISTS tq_shares (
	owner_group TEXT PRIMARY KEY,
	raw REAL NOT NULL DEFAULT 0,
	normalised REAL NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);

-- Companion credential-lifecycle tables:
-- the scheduler shares its backing store with the credential system but
-- only exposes purge hooks here, never issuance/validation.
CREATE TABLE IF NOT EXISTS tq_delegated_proxies (
	id TEXT PRIMARY KEY,
	owner_dn TEXT NOT NULL,
	owner_group TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	persistent INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_proxies_expires ON tq_delegated_proxies(persistent, expires_at);

CREATE TABLE IF NOT EXISTS tq_delegation_requests (
	id TEXT PRIMARY KEY,
	owner_dn TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requests_expires ON tq_delegation_requests(expires_at);
`

// InitSchema creates the baseline schema. Safe to call on every startup.
func (s *SQLiteDB) InitSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return err
	}
	s.logger.Info().Msg("Database schema initialized")
	return nil
}
