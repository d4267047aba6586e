package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/taskqueue/internal/errs"
	"github.com/ternarybob/taskqueue/internal/models"
)

// TQStorage implements interfaces.TaskQueueStorage. mu serialises the
// fingerprint-upsert path in-process, on top of the BEGIN IMMEDIATE
// transactions that do the real locking against other processes.
type TQStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

func NewTQStorage(db *SQLiteDB, logger arbor.ILogger) *TQStorage {
	return &TQStorage{db: db, logger: logger}
}

// FindOrCreateTQ is an idempotent upsert keyed on fingerprint.
// The BEGIN IMMEDIATE transaction plus the in-process mutex means two
// concurrent callers computing the same fingerprint either both observe a
// committed TQ, or the second serialises behind the first's commit.
func (s *TQStorage) FindOrCreateTQ(ctx context.Context, c models.CanonicalRequirements, fingerprint string, priorityHint float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginImmediate(ctx)
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, "FindOrCreateTQ", err)
	}
	defer tx.Rollback()

	var tqID int64
	err = tx.QueryRowContext(ctx, `SELECT tq_id FROM tq_task_queues WHERE fingerprint = ?`, fingerprint).Scan(&tqID)
	if err == nil {
		return tqID, nil
	}
	if err != sql.ErrNoRows {
		return 0, errs.Wrap(errs.StoreUnavailable, "FindOrCreateTQ", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO tq_task_queues (fingerprint, owner_dn, owner_group, setup, cpu_time, raw_priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fingerprint, c.OwnerDN, c.OwnerGroup, c.Setup, c.CPUTime, priorityHint, time.Now().Unix())
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, "FindOrCreateTQ", err)
	}
	tqID, err = res.LastInsertId()
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "FindOrCreateTQ", err)
	}

	if err := insertMultiValues(ctx, tx, tqID, c); err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, "FindOrCreateTQ", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, "FindOrCreateTQ", err)
	}
	return tqID, nil
}

func insertMultiValues(ctx context.Context, tx *sql.Tx, tqID int64, c models.CanonicalRequirements) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO tq_multivalue (tq_id, field, value) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	fields := map[string][]string{
		"Sites":        c.Sites,
		"BannedSites":  c.BannedSites,
		"GridCEs":      c.GridCEs,
		"Platforms":    c.Platforms,
		"Tags":         c.Tags,
		"RequiredTags": c.RequiredTags,
		"JobTypes":     c.JobTypes,
		"SubmitPools":  c.SubmitPools,
		"PilotTypes":   c.PilotTypes,
	}
	for field, values := range fields {
		for _, v := range values {
			if _, err := stmt.ExecContext(ctx, tqID, field, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// AttachJob inserts the job row. jobId is caller-supplied and
// globally unique; a duplicate insert is a Conflict, not a store error.
func (s *TQStorage) AttachJob(ctx context.Context, tqID, jobID int64, priorityHint float64) error {
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO tq_jobs (job_id, tq_id, enqueued_at, priority_hint) VALUES (?, ?, ?, ?)`,
		jobID, tqID, time.Now().Unix(), priorityHint)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.New(errs.Conflict, "AttachJob")
		}
		return errs.Wrap(errs.StoreUnavailable, "AttachJob", err)
	}
	return nil
}

// DetachJob atomically removes the job row and returns its former TQ.
// DELETE ... RETURNING means a losing concurrent detach sees zero rows
// rather than a partial read.
func (s *TQStorage) DetachJob(ctx context.Context, jobID int64) (int64, error) {
	var tqID int64
	err := s.db.DB().QueryRowContext(ctx,
		`DELETE FROM tq_jobs WHERE job_id = ? RETURNING tq_id`, jobID).Scan(&tqID)
	if err == sql.ErrNoRows {
		return 0, errs.New(errs.UnknownJob, "DetachJob")
	}
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, "DetachJob", err)
	}
	return tqID, nil
}

// DeleteTQ removes a TQ and its multi-value rows. Fails Conflict if any
// job is still attached.
func (s *TQStorage) DeleteTQ(ctx context.Context, tqID int64) error {
	var count int
	if err := s.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM tq_jobs WHERE tq_id = ?`, tqID).Scan(&count); err != nil {
		return errs.Wrap(errs.StoreUnavailable, "DeleteTQ", err)
	}
	if count > 0 {
		return errs.New(errs.Conflict, "DeleteTQ")
	}

	res, err := s.db.DB().ExecContext(ctx, `DELETE FROM tq_task_queues WHERE tq_id = ?`, tqID)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, "DeleteTQ", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.Internal, "DeleteTQ", err)
	}
	if n == 0 {
		return errs.New(errs.UnknownTaskQueue, "DeleteTQ")
	}
	return nil
}

// DeleteTQIfEmpty is the safe variant: returns false without error if the
// TQ still has attached jobs.
func (s *TQStorage) DeleteTQIfEmpty(ctx context.Context, tqID int64) (bool, error) {
	err := s.DeleteTQ(ctx, tqID)
	if errs.Is(err, errs.Conflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetTaskQueue loads one TQ's scalar fields, multi-value rows, and job count.
func (s *TQStorage) GetTaskQueue(ctx context.Context, tqID int64) (models.TaskQueue, error) {
	tqs, err := s.retrieveTQsWhere(ctx, `WHERE tq.tq_id = ?`, tqID)
	if err != nil {
		return models.TaskQueue{}, err
	}
	if len(tqs) == 0 {
		return models.TaskQueue{}, errs.New(errs.UnknownTaskQueue, "GetTaskQueue")
	}
	return tqs[0], nil
}

// RetrieveTQs enumerates every TQ with its scalar and multi-value content,
// used by the priority engine and diagnostics.
func (s *TQStorage) RetrieveTQs(ctx context.Context) ([]models.TaskQueue, error) {
	return s.retrieveTQsWhere(ctx, "")
}

func (s *TQStorage) retrieveTQsWhere(ctx context.Context, where string, args ...interface{}) ([]models.TaskQueue, error) {
	query := fmt.Sprintf(`
		SELECT tq.tq_id, tq.fingerprint, tq.owner_dn, tq.owner_group, tq.setup, tq.cpu_time,
		       tq.raw_priority, tq.share, tq.created_at,
		       (SELECT COUNT(*) FROM tq_jobs j WHERE j.tq_id = tq.tq_id) AS jobs
		FROM tq_task_queues tq %s ORDER BY tq.tq_id`, where)

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "RetrieveTQs", err)
	}
	defer rows.Close()

	var result []models.TaskQueue
	for rows.Next() {
		var tq models.TaskQueue
		var createdAt int64
		if err := rows.Scan(&tq.TQID, &tq.Fingerprint, &tq.OwnerDN, &tq.OwnerGroup, &tq.Setup,
			&tq.CPUTime, &tq.RawPriority, &tq.Share, &createdAt, &tq.Jobs); err != nil {
			return nil, errs.Wrap(errs.Internal, "RetrieveTQs", err)
		}
		tq.CreatedAt = time.Unix(createdAt, 0)
		result = append(result, tq)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "RetrieveTQs", err)
	}

	if err := s.attachMultiValues(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *TQStorage) attachMultiValues(ctx context.Context, tqs []models.TaskQueue) error {
	if len(tqs) == 0 {
		return nil
	}
	byID := make(map[int64]*models.TaskQueue, len(tqs))
	for i := range tqs {
		byID[tqs[i].TQID] = &tqs[i]
	}

	rows, err := s.db.DB().QueryContext(ctx, `SELECT tq_id, field, value FROM tq_multivalue`)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, "attachMultiValues", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tqID int64
		var field, value string
		if err := rows.Scan(&tqID, &field, &value); err != nil {
			return errs.Wrap(errs.Internal, "attachMultiValues", err)
		}
		tq, ok := byID[tqID]
		if !ok {
			continue
		}
		appendField(tq, field, value)
	}
	return rows.Err()
}

func appendField(tq *models.TaskQueue, field, value string) {
	switch field {
	case "Sites":
		tq.Sites = append(tq.Sites, value)
	case "BannedSites":
		tq.BannedSites = append(tq.BannedSites, value)
	case "GridCEs":
		tq.GridCEs = append(tq.GridCEs, value)
	case "Platforms":
		tq.Platforms = append(tq.Platforms, value)
	case "Tags":
		tq.Tags = append(tq.Tags, value)
	case "RequiredTags":
		tq.RequiredTags = append(tq.RequiredTags, value)
	case "JobTypes":
		tq.JobTypes = append(tq.JobTypes, value)
	case "SubmitPools":
		tq.SubmitPools = append(tq.SubmitPools, value)
	case "PilotTypes":
		tq.PilotTypes = append(tq.PilotTypes, value)
	}
}

// GetNumTaskQueues returns the total TQ population.
func (s *TQStorage) GetNumTaskQueues(ctx context.Context) (int, error) {
	var count int
	if err := s.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM tq_task_queues`).Scan(&count); err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, "GetNumTaskQueues", err)
	}
	return count, nil
}

// GetTaskQueueForJobs resolves a batch of jobId -> tqId.
func (s *TQStorage) GetTaskQueueForJobs(ctx context.Context, jobIDs []int64) (map[int64]int64, error) {
	result := make(map[int64]int64, len(jobIDs))
	if len(jobIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(jobIDs))
	args := make([]interface{}, len(jobIDs))
	for i, id := range jobIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT job_id, tq_id FROM tq_jobs WHERE job_id IN (%s)`, joinComma(placeholders))

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "GetTaskQueueForJobs", err)
	}
	defer rows.Close()

	for rows.Next() {
		var jobID, tqID int64
		if err := rows.Scan(&jobID, &tqID); err != nil {
			return nil, errs.Wrap(errs.Internal, "GetTaskQueueForJobs", err)
		}
		result[jobID] = tqID
	}
	return result, rows.Err()
}

// MatchCandidates applies the scalar filters (Setup, CPUTime floor,
// OwnerGroup membership) in SQL and returns full TQ records including
// multi-value rows; the matcher package applies the remaining
// positive-inclusion/negative-exclusion/platform-family/tag rules in
// process.
func (s *TQStorage) MatchCandidates(ctx context.Context, r models.ResourceDescription) ([]models.TaskQueue, error) {
	// A drained TQ is not a candidate; it lingers only until housekeeping
	// sweeps it.
	where := "WHERE EXISTS (SELECT 1 FROM tq_jobs j WHERE j.tq_id = tq.tq_id)"
	var args []interface{}

	if r.Setup != "" {
		where += " AND tq.setup = ?"
		args = append(args, r.Setup)
	}
	if r.CPUTime > 0 {
		where += " AND tq.cpu_time <= ?"
		args = append(args, r.CPUTime)
	}
	if len(r.OwnerGroup) > 0 {
		placeholders := make([]string, len(r.OwnerGroup))
		for i, g := range r.OwnerGroup {
			placeholders[i] = "?"
			args = append(args, g)
		}
		where += fmt.Sprintf(" AND tq.owner_group IN (%s)", joinComma(placeholders))
	}
	if r.OwnerDN != "" {
		where += " AND tq.owner_dn = ?"
		args = append(args, r.OwnerDN)
	}

	return s.retrieveTQsWhere(ctx, where, args...)
}

// OldestJob returns the FIFO-oldest job attached to tqID, tie-broken by
// jobId.
func (s *TQStorage) OldestJob(ctx context.Context, tqID int64) (models.Job, error) {
	var job models.Job
	var enqueuedAt int64
	err := s.db.DB().QueryRowContext(ctx, `
		SELECT job_id, tq_id, enqueued_at, priority_hint FROM tq_jobs
		WHERE tq_id = ? ORDER BY enqueued_at ASC, job_id ASC LIMIT 1`, tqID).
		Scan(&job.JobID, &job.TQID, &enqueuedAt, &job.PriorityHint)
	if err == sql.ErrNoRows {
		return models.Job{}, errs.New(errs.UnknownJob, "OldestJob")
	}
	if err != nil {
		return models.Job{}, errs.Wrap(errs.StoreUnavailable, "OldestJob", err)
	}
	job.EnqueuedAt = time.Unix(enqueuedAt, 0)
	return job, nil
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func isUniqueViolation(err error) bool {
	return err != nil && (containsFold(err.Error(), "UNIQUE constraint") || containsFold(err.Error(), "constraint failed"))
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && stringContains(s, substr)
}

func stringContains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
