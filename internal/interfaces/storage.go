// Package interfaces declares the storage-facing contracts the scheduler's
// upper layers (matcher, priority engine, housekeeping) depend on, so those
// packages never import the sqlite package directly.
package interfaces

import (
	"context"

	"github.com/ternarybob/taskqueue/internal/models"
)

// TaskQueueStorage persists TQs, their multi-value rows, and job
// attachment.
type TaskQueueStorage interface {
	// FindOrCreateTQ is an idempotent upsert keyed on fingerprint.
	FindOrCreateTQ(ctx context.Context, canonical models.CanonicalRequirements, fingerprint string, priorityHint float64) (int64, error)
	AttachJob(ctx context.Context, tqID, jobID int64, priorityHint float64) error
	DetachJob(ctx context.Context, jobID int64) (int64, error)
	DeleteTQ(ctx context.Context, tqID int64) error
	DeleteTQIfEmpty(ctx context.Context, tqID int64) (bool, error)
	RetrieveTQs(ctx context.Context) ([]models.TaskQueue, error)
	GetTaskQueue(ctx context.Context, tqID int64) (models.TaskQueue, error)
	GetNumTaskQueues(ctx context.Context) (int, error)
	GetTaskQueueForJobs(ctx context.Context, jobIDs []int64) (map[int64]int64, error)

	// MatchCandidates returns every non-empty TQ that passes the resource's
	// scalar filters (Setup, CPUTime floor, OwnerGroup, OwnerDN), with its
	// multi-value rows loaded; the matcher applies positive-inclusion,
	// negative-exclusion, platform-family, and tag refinement in process.
	MatchCandidates(ctx context.Context, r models.ResourceDescription) ([]models.TaskQueue, error)

	// OldestJob returns the FIFO-oldest job attached to tqID.
	OldestJob(ctx context.Context, tqID int64) (models.Job, error)
}

// ShareStorage persists the derived fair-share state.
type ShareStorage interface {
	// UpsertShare records a group's aggregate raw-priority total. The
	// per-TQ selection weight the matcher actually reads lives on
	// tq_task_queues.share and is set per TQ via SetTaskQueueShare.
	UpsertShare(ctx context.Context, ownerGroup string, raw, normalised float64) error
	GetShares(ctx context.Context, ownerGroup string) (raw, normalised float64, err error)
	DeleteShare(ctx context.Context, ownerGroup string) error
	// SetTaskQueueShare writes one TQ's normalised share.
	SetTaskQueueShare(ctx context.Context, tqID int64, share float64) error
}

// HousekeepingStorage backs the periodic maintenance sweeps.
type HousekeepingStorage interface {
	CleanOrphanedTaskQueues(ctx context.Context) (int, error)
	FindOrphanJobs(ctx context.Context) ([]models.Job, error)
	PurgeExpiredRequests(ctx context.Context) (int, error)
	PurgeExpiredProxies(ctx context.Context) (int, error)
}

// StorageManager composes every storage concern behind one handle.
type StorageManager interface {
	TaskQueueStorage() TaskQueueStorage
	ShareStorage() ShareStorage
	HousekeepingStorage() HousekeepingStorage
	DB() interface{}
	Close() error
}
