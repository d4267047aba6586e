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

// runInsert manually attaches one job to its task queue, for smoke-testing
// the matching algebra against a local store.
func runInsert(ctx context.Context, config *common.Config, logger arbor.ILogger, args []string) error {
	fs := flag.NewFlagSet("insert", flag.ExitOnError)
	jobID := fs.Int64("job-id", 0, "globally unique job id (required)")
	ownerDN := fs.String("owner-dn", "", "owning user's distinguished name (required)")
	ownerGroup := fs.String("owner-group", "", "fair-share owner group (required)")
	setup := fs.String("setup", "", "runtime environment identifier")
	cpuTime := fs.Int("cpu-time", 0, "raw requested CPU time, seconds")
	priorityHint := fs.Float64("priority", 1.0, "raw per-job priority contribution")
	sites := fs.String("sites", "", "comma-separated required sites")
	bannedSites := fs.String("banned-sites", "", "comma-separated banned sites")
	platforms := fs.String("platforms", "", "comma-separated required platform families")
	tags := fs.String("tags", "", "comma-separated tag upper bound")
	requiredTags := fs.String("required-tags", "", "comma-separated tag lower bound")
	jobTypes := fs.String("job-types", "", "comma-separated required job types")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jobID == 0 || *ownerDN == "" || *ownerGroup == "" {
		return fmt.Errorf("insert: -job-id, -owner-dn, and -owner-group are required")
	}

	sched, err := scheduler.New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer sched.Close()

	reqs := models.Requirements{
		OwnerDN:      *ownerDN,
		OwnerGroup:   *ownerGroup,
		Setup:        *setup,
		CPUTime:      *cpuTime,
		Sites:        splitCSV(*sites),
		BannedSites:  splitCSV(*bannedSites),
		Platforms:    splitCSV(*platforms),
		Tags:         splitCSV(*tags),
		RequiredTags: splitCSV(*requiredTags),
		JobTypes:     splitCSV(*jobTypes),
	}

	tqID, err := sched.InsertJob(ctx, *jobID, reqs, *priorityHint)
	if err != nil {
		return err
	}

	fmt.Printf("job %d attached to task queue %d\n", *jobID, tqID)
	return nil
}
