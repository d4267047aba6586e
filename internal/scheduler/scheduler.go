// Package scheduler wires the storage, matcher, priority, and housekeeping
// packages into the single facade exposing the external operation set: a
// job producer or pilot consumer only ever talks to a *Scheduler, never to
// the packages underneath it directly.
package scheduler

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/taskqueue/internal/common"
	"github.com/ternarybob/taskqueue/internal/errs"
	"github.com/ternarybob/taskqueue/internal/housekeeping"
	"github.com/ternarybob/taskqueue/internal/interfaces"
	"github.com/ternarybob/taskqueue/internal/matcher"
	"github.com/ternarybob/taskqueue/internal/models"
	"github.com/ternarybob/taskqueue/internal/priority"
	"github.com/ternarybob/taskqueue/internal/schema"
	"github.com/ternarybob/taskqueue/internal/storage"
)

// Scheduler is the top-level facade over the task-queue store.
type Scheduler struct {
	store    interfaces.StorageManager
	matcher  *matcher.Matcher
	priority *priority.Engine
	sweeper  *housekeeping.Sweeper
	buckets  []int
	logger   arbor.ILogger
}

// New wires a Scheduler from configuration: opens the storage manager,
// builds the platform DAG, and constructs the matcher/priority/housekeeping
// packages on top of the shared store.
func New(ctx context.Context, config *common.Config, logger arbor.ILogger) (*Scheduler, error) {
	store, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return nil, err
	}

	platforms := schema.NewPlatformOrder(config.PlatformOrder)
	tqStore := store.TaskQueueStorage()
	shareStore := store.ShareStorage()

	return &Scheduler{
		store:    store,
		matcher:  matcher.New(tqStore, platforms, config.MatchRetryBudget),
		priority: priority.New(tqStore, shareStore, logger),
		sweeper:  housekeeping.NewSweeper(store.HousekeepingStorage(), logger),
		buckets:  config.CPUTimeBuckets,
		logger:   logger,
	}, nil
}

// Close releases the underlying store.
func (s *Scheduler) Close() error {
	return s.store.Close()
}

// InsertJob runs the producer path: normalise -> fingerprint ->
// find-or-create the owning TQ -> attach the job. After every attach the
// job's OwnerGroup has its fair-share weights recalculated, so a newly
// created TQ is never matched with a stale (zero) share.
func (s *Scheduler) InsertJob(ctx context.Context, jobID int64, reqs models.Requirements, priorityHint float64) (int64, error) {
	if err := reqs.Validate(); err != nil {
		return 0, errs.Wrap(errs.BadRequest, "InsertJob", err)
	}

	canonical, err := schema.Normalise(reqs, s.buckets)
	if err != nil {
		return 0, err
	}

	fingerprint, err := schema.Fingerprint(canonical)
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "InsertJob", err)
	}

	tqStore := s.store.TaskQueueStorage()
	tqID, err := tqStore.FindOrCreateTQ(ctx, canonical, fingerprint, priorityHint)
	if err != nil {
		return 0, err
	}

	if err := tqStore.AttachJob(ctx, tqID, jobID, priorityHint); err != nil {
		return 0, err
	}

	if err := s.priority.RecalculateForGroup(ctx, canonical.OwnerGroup); err != nil {
		s.logger.Warn().Err(err).Str("owner_group", canonical.OwnerGroup).Msg("share recalculation after insert failed")
	}

	return tqID, nil
}

// DeleteJob removes a job from its TQ without touching the TQ itself.
// Use DeleteTaskQueueIfEmpty afterward to reclaim an emptied TQ.
func (s *Scheduler) DeleteJob(ctx context.Context, jobID int64) (int64, error) {
	return s.store.TaskQueueStorage().DetachJob(ctx, jobID)
}

// GetTaskQueueForJobs resolves a batch of jobId -> tqId.
func (s *Scheduler) GetTaskQueueForJobs(ctx context.Context, jobIDs []int64) (map[int64]int64, error) {
	return s.store.TaskQueueStorage().GetTaskQueueForJobs(ctx, jobIDs)
}

// RetrieveTaskQueues enumerates every TQ with scalar, multi-value, and
// population fields.
func (s *Scheduler) RetrieveTaskQueues(ctx context.Context) ([]models.TaskQueue, error) {
	return s.store.TaskQueueStorage().RetrieveTQs(ctx)
}

// DeleteTaskQueue removes a TQ unconditionally; fails Conflict if any job
// is still attached.
func (s *Scheduler) DeleteTaskQueue(ctx context.Context, tqID int64) error {
	return s.store.TaskQueueStorage().DeleteTQ(ctx, tqID)
}

// DeleteTaskQueueIfEmpty removes a TQ only if it has no attached jobs, and
// recalculates its former group's shares on success since the group's TQ
// population just shrank.
func (s *Scheduler) DeleteTaskQueueIfEmpty(ctx context.Context, tqID int64) (bool, error) {
	tq, err := s.store.TaskQueueStorage().GetTaskQueue(ctx, tqID)
	if err != nil {
		return false, err
	}

	deleted, err := s.store.TaskQueueStorage().DeleteTQIfEmpty(ctx, tqID)
	if err != nil || !deleted {
		return deleted, err
	}

	if err := s.priority.RecalculateForGroup(ctx, tq.OwnerGroup); err != nil {
		s.logger.Warn().Err(err).Str("owner_group", tq.OwnerGroup).Msg("share recalculation after delete failed")
	}
	return true, nil
}

// GetNumTaskQueues returns the total TQ population.
func (s *Scheduler) GetNumTaskQueues(ctx context.Context) (int, error) {
	return s.store.TaskQueueStorage().GetNumTaskQueues(ctx)
}

// MatchAndGetTaskQueue returns candidate TQ ids without dispatching a job.
func (s *Scheduler) MatchAndGetTaskQueue(ctx context.Context, r models.ResourceDescription) ([]int64, error) {
	if err := r.Validate(); err != nil {
		return nil, errs.Wrap(errs.BadRequest, "MatchAndGetTaskQueue", err)
	}
	return s.matcher.MatchAndGetTaskQueue(ctx, r)
}

// MatchAndGetJob selects and atomically dispatches one job.
func (s *Scheduler) MatchAndGetJob(ctx context.Context, r models.ResourceDescription) (models.MatchResult, error) {
	if err := r.Validate(); err != nil {
		return models.MatchResult{}, errs.Wrap(errs.BadRequest, "MatchAndGetJob", err)
	}

	matchID := common.NewMatchID()
	result, err := s.matcher.MatchAndGetJob(ctx, r)
	if err != nil {
		s.logger.Warn().Str("match_id", matchID).Err(err).Msg("match attempt failed")
		return result, err
	}
	if result.MatchFound {
		s.logger.Debug().Str("match_id", matchID).Int64("job_id", result.JobID).Int64("tq_id", result.TQID).Msg("job dispatched")
	}
	return result, nil
}

// CleanOrphanedTaskQueues deletes every TQ with no attached jobs.
func (s *Scheduler) CleanOrphanedTaskQueues(ctx context.Context) (int, error) {
	return s.sweeper.CleanOrphanedTaskQueues(ctx)
}

// FindOrphanJobs surfaces jobs whose TQ no longer exists.
func (s *Scheduler) FindOrphanJobs(ctx context.Context) ([]models.Job, error) {
	return s.sweeper.FindOrphanJobs(ctx)
}

// PurgeExpiredCredentials purges expired delegation requests and
// non-persistent proxies.
func (s *Scheduler) PurgeExpiredCredentials(ctx context.Context) (requests, proxies int, err error) {
	return s.sweeper.PurgeExpired(ctx)
}

// RecalculateTQSharesForAll refreshes every group's fair-share weights in
// one pass.
func (s *Scheduler) RecalculateTQSharesForAll(ctx context.Context) error {
	return s.priority.RecalculateForAll(ctx)
}
