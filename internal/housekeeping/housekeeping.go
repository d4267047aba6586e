// Package housekeeping implements the periodic maintenance sweeps: orphan
// TQ cleanup, orphan job detection, and expired credential-proxy purges.
package housekeeping

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/taskqueue/internal/interfaces"
	"github.com/ternarybob/taskqueue/internal/models"
)

// Sweeper runs the housekeeping operations against the backing store.
type Sweeper struct {
	store  interfaces.HousekeepingStorage
	logger arbor.ILogger
}

func NewSweeper(store interfaces.HousekeepingStorage, logger arbor.ILogger) *Sweeper {
	return &Sweeper{store: store, logger: logger}
}

// CleanOrphanedTaskQueues deletes every TQ with no attached jobs. Safe to
// call concurrently with insertJob: the store's NOT EXISTS guard means a
// non-empty TQ is never deleted.
func (s *Sweeper) CleanOrphanedTaskQueues(ctx context.Context) (int, error) {
	n, err := s.store.CleanOrphanedTaskQueues(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int("deleted", n).Msg("cleaned orphaned task queues")
	}
	return n, nil
}

// FindOrphanJobs returns jobs whose TQ vanished -- should be impossible
// under correct operation, surfaced for operator inspection.
func (s *Sweeper) FindOrphanJobs(ctx context.Context) ([]models.Job, error) {
	jobs, err := s.store.FindOrphanJobs(ctx)
	if err != nil {
		return nil, err
	}
	if len(jobs) > 0 {
		s.logger.Warn().Int("count", len(jobs)).Msg("found orphan jobs with no live task queue")
	}
	return jobs, nil
}

// PurgeExpired removes expired delegation requests and non-persistent
// expired proxies from the companion credential tables the scheduler
// shares its store with.
func (s *Sweeper) PurgeExpired(ctx context.Context) (requests, proxies int, err error) {
	requests, err = s.store.PurgeExpiredRequests(ctx)
	if err != nil {
		return 0, 0, err
	}
	proxies, err = s.store.PurgeExpiredProxies(ctx)
	if err != nil {
		return requests, 0, err
	}
	if requests > 0 || proxies > 0 {
		s.logger.Info().Int("requests", requests).Int("proxies", proxies).Msg("purged expired credential rows")
	}
	return requests, proxies, nil
}
