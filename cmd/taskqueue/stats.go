package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/taskqueue/internal/common"
	"github.com/ternarybob/taskqueue/internal/scheduler"
)

// runStats prints the current task queue population, one line per TQ, for
// operator inspection.
func runStats(ctx context.Context, config *common.Config, logger arbor.ILogger, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	sched, err := scheduler.New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer sched.Close()

	tqs, err := sched.RetrieveTaskQueues(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%-6s %-20s %-16s %8s %10s %6s  %s\n", "TQID", "OwnerGroup", "Setup", "CPUTime", "Share", "Jobs", "Fingerprint")
	for _, tq := range tqs {
		fmt.Printf("%-6d %-20s %-16s %8d %10.4f %6d  %s\n",
			tq.TQID, tq.OwnerGroup, tq.Setup, tq.CPUTime, tq.Share, tq.Jobs, tq.Fingerprint[:12])
	}
	fmt.Printf("\n%d task queues total\n", len(tqs))
	return nil
}
