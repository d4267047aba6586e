// Package priority implements the fair-share engine: within each
// OwnerGroup, TQs' raw priorities are normalised to sum to 1, and the
// matcher consults those normalised shares as selection weights.
package priority

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/taskqueue/internal/interfaces"
)

// Engine recomputes share weights across the TQ population.
type Engine struct {
	tqStore    interfaces.TaskQueueStorage
	shareStore interfaces.ShareStorage
	logger     arbor.ILogger
}

func New(tqStore interfaces.TaskQueueStorage, shareStore interfaces.ShareStorage, logger arbor.ILogger) *Engine {
	return &Engine{tqStore: tqStore, shareStore: shareStore, logger: logger}
}

// RecalculateForAll refreshes every group's shares in one pass. It reloads the full TQ population once and
// groups it in process rather than issuing one query per group.
func (e *Engine) RecalculateForAll(ctx context.Context) error {
	tqs, err := e.tqStore.RetrieveTQs(ctx)
	if err != nil {
		return err
	}

	byGroup := make(map[string][]int64)
	sums := make(map[string]float64)
	for _, tq := range tqs {
		byGroup[tq.OwnerGroup] = append(byGroup[tq.OwnerGroup], tq.TQID)
		sums[tq.OwnerGroup] += tq.RawPriority
	}

	rawByID := make(map[int64]float64, len(tqs))
	for _, tq := range tqs {
		rawByID[tq.TQID] = tq.RawPriority
	}

	for group, ids := range byGroup {
		total := sums[group]
		if total <= 0 {
			continue
		}
		if err := e.shareStore.UpsertShare(ctx, group, total, 1.0); err != nil {
			return err
		}
		for _, id := range ids {
			share := rawByID[id] / total
			if err := e.shareStore.SetTaskQueueShare(ctx, id, share); err != nil {
				return err
			}
		}
	}

	e.logger.Debug().Int("groups", len(byGroup)).Int("tqs", len(tqs)).Msg("recalculated TQ shares for all groups")
	return nil
}

// RecalculateForGroup refreshes a single group's shares.
func (e *Engine) RecalculateForGroup(ctx context.Context, group string) error {
	tqs, err := e.tqStore.RetrieveTQs(ctx)
	if err != nil {
		return err
	}

	var total float64
	var ids []int64
	raw := make(map[int64]float64)
	for _, tq := range tqs {
		if tq.OwnerGroup != group {
			continue
		}
		total += tq.RawPriority
		ids = append(ids, tq.TQID)
		raw[tq.TQID] = tq.RawPriority
	}

	if len(ids) == 0 {
		// Group has no active TQs: its share is 0.
		return e.shareStore.DeleteShare(ctx, group)
	}

	if err := e.shareStore.UpsertShare(ctx, group, total, 1.0); err != nil {
		return err
	}
	for _, id := range ids {
		share := raw[id] / total
		if err := e.shareStore.SetTaskQueueShare(ctx, id, share); err != nil {
			return err
		}
	}
	return nil
}
