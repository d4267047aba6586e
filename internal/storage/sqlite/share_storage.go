package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/taskqueue/internal/errs"
)

// ShareStorage implements interfaces.ShareStorage. Shares are
// derived state: recomputed wholesale by the priority engine, never
// incrementally patched, so there is no locking here beyond SQLite's own
// write serialisation.
type ShareStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

func NewShareStorage(db *SQLiteDB, logger arbor.ILogger) *ShareStorage {
	return &ShareStorage{db: db, logger: logger}
}

// UpsertShare writes a group's aggregate raw-priority total and the
// group-wide normalisation basis. The per-TQ selection weight
// the matcher reads lives on tq_task_queues.share, set by SetTaskQueueShare.
func (s *ShareStorage) UpsertShare(ctx context.Context, ownerGroup string, raw, normalised float64) error {
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO tq_shares (owner_group, raw, normalised, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_group) DO UPDATE SET raw = excluded.raw, normalised = excluded.normalised, updated_at = excluded.updated_at`,
		ownerGroup, raw, normalised, time.Now().Unix())
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, "UpsertShare", err)
	}
	return nil
}

// SetTaskQueueShare writes one TQ's normalised share, the weight the
// matcher's ordering and weighted-random selection consult directly.
func (s *ShareStorage) SetTaskQueueShare(ctx context.Context, tqID int64, share float64) error {
	_, err := s.db.DB().ExecContext(ctx, `UPDATE tq_task_queues SET share = ? WHERE tq_id = ?`, share, tqID)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, "SetTaskQueueShare", err)
	}
	return nil
}

// GetShares returns the persisted raw/normalised share for a group, or
// zeros if the group has never been recomputed.
func (s *ShareStorage) GetShares(ctx context.Context, ownerGroup string) (float64, float64, error) {
	var raw, normalised float64
	err := s.db.DB().QueryRowContext(ctx, `SELECT raw, normalised FROM tq_shares WHERE owner_group = ?`, ownerGroup).
		Scan(&raw, &normalised)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, errs.Wrap(errs.StoreUnavailable, "GetShares", err)
	}
	return raw, normalised, nil
}

// DeleteShare drops a group's share row, used when a group's last TQ is
// removed.
func (s *ShareStorage) DeleteShare(ctx context.Context, ownerGroup string) error {
	_, err := s.db.DB().ExecContext(ctx, `DELETE FROM tq_shares WHERE owner_group = ?`, ownerGroup)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, "DeleteShare", err)
	}
	return nil
}
