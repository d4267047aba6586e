package sqlite

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/taskqueue/internal/errs"
	"github.com/ternarybob/taskqueue/internal/models"
)

// HousekeepingStorage implements interfaces.HousekeepingStorage.
type HousekeepingStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

func NewHousekeepingStorage(db *SQLiteDB, logger arbor.ILogger) *HousekeepingStorage {
	return &HousekeepingStorage{db: db, logger: logger}
}

// CleanOrphanedTaskQueues deletes TQs with no attached jobs. The NOT EXISTS
// guard is evaluated per-row inside one DELETE statement, so a concurrent
// insertJob that attaches a job between the snapshot and the delete either
// commits first (row survives) or loses the race entirely -- there is no
// window where a non-empty TQ is deleted.
func (s *HousekeepingStorage) CleanOrphanedTaskQueues(ctx context.Context) (int, error) {
	res, err := s.db.DB().ExecContext(ctx, `
		DELETE FROM tq_task_queues
		WHERE NOT EXISTS (SELECT 1 FROM tq_jobs j WHERE j.tq_id = tq_task_queues.tq_id)`)
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, "CleanOrphanedTaskQueues", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "CleanOrphanedTaskQueues", err)
	}
	return int(n), nil
}

// FindOrphanJobs returns jobs whose tq_id no longer resolves to a live TQ.
// Should always be empty under correct operation; surfaced for
// operator inspection, not auto-repaired.
func (s *HousekeepingStorage) FindOrphanJobs(ctx context.Context) ([]models.Job, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT j.job_id, j.tq_id, j.enqueued_at, j.priority_hint
		FROM tq_jobs j
		LEFT JOIN tq_task_queues tq ON tq.tq_id = j.tq_id
		WHERE tq.tq_id IS NULL`)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "FindOrphanJobs", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var j models.Job
		var enqueuedAt int64
		if err := rows.Scan(&j.JobID, &j.TQID, &enqueuedAt, &j.PriorityHint); err != nil {
			return nil, errs.Wrap(errs.Internal, "FindOrphanJobs", err)
		}
		j.EnqueuedAt = time.Unix(enqueuedAt, 0)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// PurgeExpiredRequests removes expired delegation-request rows from the
// companion credential table the scheduler shares its store with. Issuance
// and validation belong to the credential store; this purge is the only
// credential-lifecycle hook exposed here.
func (s *HousekeepingStorage) PurgeExpiredRequests(ctx context.Context) (int, error) {
	res, err := s.db.DB().ExecContext(ctx, `DELETE FROM tq_delegation_requests WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, "PurgeExpiredRequests", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "PurgeExpiredRequests", err)
	}
	return int(n), nil
}

// PurgeExpiredProxies removes expired, non-persistent delegated-proxy rows.
// Persistent proxies are renewed by the (out-of-scope) credential store and
// are never swept here.
func (s *HousekeepingStorage) PurgeExpiredProxies(ctx context.Context) (int, error) {
	res, err := s.db.DB().ExecContext(ctx, `
		DELETE FROM tq_delegated_proxies WHERE persistent = 0 AND expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, "PurgeExpiredProxies", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "PurgeExpiredProxies", err)
	}
	return int(n), nil
}
