package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/taskqueue/internal/common"
	"github.com/ternarybob/taskqueue/internal/models"
	"github.com/ternarybob/taskqueue/internal/scheduler"
)

// runMatch runs matchAndGetJob (or, with -dry-run, matchAndGetTaskQueue)
// against a manually-described resource, for smoke-testing the matcher
// without a real pilot.
func runMatch(ctx context.Context, config *common.Config, logger arbor.ILogger, args []string) error {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	setup := fs.String("setup", "", "offered runtime environment")
	cpuTime := fs.Int("cpu-time", 0, "offered CPU time floor, seconds")
	ownerGroup := fs.String("owner-group", "", "comma-separated acceptable owner groups")
	site := fs.String("site", "", "comma-separated offered sites")
	platform := fs.String("platform", "", "comma-separated offered platforms")
	tag := fs.String("tag", "", "comma-separated offered tags")
	numQueues := fs.Int("num-queues", 1, "number of candidate task queues to consider")
	dryRun := fs.Bool("dry-run", false, "list candidate task queues without dispatching a job")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sched, err := scheduler.New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer sched.Close()

	resource := models.ResourceDescription{
		Setup:          *setup,
		CPUTime:        *cpuTime,
		OwnerGroup:     splitCSV(*ownerGroup),
		Site:           splitCSV(*site),
		Platform:       splitCSV(*platform),
		Tag:            splitCSV(*tag),
		NumQueuesToGet: *numQueues,
	}

	if *dryRun {
		tqIDs, err := sched.MatchAndGetTaskQueue(ctx, resource)
		if err != nil {
			return err
		}
		fmt.Printf("candidate task queues: %v\n", tqIDs)
		return nil
	}

	result, err := sched.MatchAndGetJob(ctx, resource)
	if err != nil {
		return err
	}
	if !result.MatchFound {
		fmt.Println("no matching job found")
		return nil
	}
	fmt.Printf("dispatched job %d from task queue %d\n", result.JobID, result.TQID)
	return nil
}
