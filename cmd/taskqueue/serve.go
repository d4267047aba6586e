package main

import (
	"context"
	"flag"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/taskqueue/internal/common"
	"github.com/ternarybob/taskqueue/internal/housekeeping"
	"github.com/ternarybob/taskqueue/internal/scheduler"
)

// runServe starts the scheduler and drives its housekeeping sweeps on the
// configured cron cadence until the process is interrupted.
func runServe(ctx context.Context, config *common.Config, logger arbor.ILogger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	sched, err := scheduler.New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer sched.Close()

	cron := housekeeping.NewService(logger)

	if err := cron.RegisterJob("clean_orphaned_task_queues", config.Housekeeping.Schedule, func() error {
		_, err := sched.CleanOrphanedTaskQueues(ctx)
		if err != nil {
			return err
		}
		return sched.RecalculateTQSharesForAll(ctx)
	}); err != nil {
		return err
	}

	if err := cron.RegisterJob("purge_expired_credentials", config.Housekeeping.ProxyPurgeSchedule, func() error {
		_, _, err := sched.PurgeExpiredCredentials(ctx)
		return err
	}); err != nil {
		return err
	}

	cron.Start()
	defer cron.Stop()

	logger.Info().Str("schedule", config.Housekeeping.Schedule).Msg("taskqueue serving -- press Ctrl+C to stop")
	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	common.PrintShutdownBanner(logger)
	return nil
}
