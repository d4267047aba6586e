package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/taskqueue/internal/common"
	"github.com/ternarybob/taskqueue/internal/errs"
	"github.com/ternarybob/taskqueue/internal/models"
)

func setupScheduler(t *testing.T) *Scheduler {
	config := common.NewDefaultConfig()
	config.Storage.SQLite.Path = t.TempDir() + "/test.db"
	config.Storage.SQLite.WALMode = false
	config.MatchRetryBudget = 50

	sched, err := New(context.Background(), config, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { sched.Close() })
	return sched
}

func baseRequirements() models.Requirements {
	return models.Requirements{
		OwnerDN:    "/DN=alice",
		OwnerGroup: "atlas",
		Setup:      "prod",
		CPUTime:    50000,
	}
}

func TestInsertJob_IdenticalRequirementsShareOneTQ(t *testing.T) {
	sched := setupScheduler(t)
	ctx := context.Background()

	tqA, err := sched.InsertJob(ctx, 1, baseRequirements(), 1.0)
	require.NoError(t, err)
	tqB, err := sched.InsertJob(ctx, 2, baseRequirements(), 1.0)
	require.NoError(t, err)
	assert.Equal(t, tqA, tqB)

	tqs, err := sched.RetrieveTaskQueues(ctx)
	require.NoError(t, err)
	require.Len(t, tqs, 1)
	assert.Equal(t, 2, tqs[0].Jobs)
	assert.Equal(t, 86400, tqs[0].CPUTime) // 50000 ceilinged into its bucket
}

func TestMatch_PlatformFamilies(t *testing.T) {
	sched := setupScheduler(t)
	ctx := context.Background()

	platformSets := map[int64][]string{
		1: {"centos7"},
		2: {"centos7"},
		3: {"ubuntu"},
		4: {"centos7", "slc6"},
		5: {"debian", "ubuntu"},
	}
	var tqOfJob4 int64
	for jobID := int64(1); jobID <= 5; jobID++ {
		reqs := baseRequirements()
		reqs.Platforms = platformSets[jobID]
		tqID, err := sched.InsertJob(ctx, jobID, reqs, 1.0)
		require.NoError(t, err)
		if jobID == 4 {
			tqOfJob4 = tqID
		}
	}

	// slc6 satisfies only the TQ that lists slc6 itself; a centos7
	// requirement is newer than what the worker offers.
	ids, err := sched.MatchAndGetTaskQueue(ctx, models.ResourceDescription{
		Platform: []string{"slc6"}, NumQueuesToGet: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{tqOfJob4}, ids)

	// An empty platform string means "any": everything matches.
	ids, err = sched.MatchAndGetTaskQueue(ctx, models.ResourceDescription{
		Platform: []string{""}, NumQueuesToGet: 10,
	})
	require.NoError(t, err)
	assert.Len(t, ids, 4)

	// slc5 is older than every declared requirement.
	ids, err = sched.MatchAndGetTaskQueue(ctx, models.ResourceDescription{
		Platform: []string{"slc5"}, NumQueuesToGet: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestInsertJob_EmptyPlatformEqualsNoPlatform(t *testing.T) {
	sched := setupScheduler(t)
	ctx := context.Background()

	noPlatform := baseRequirements()
	tqA, err := sched.InsertJob(ctx, 1, noPlatform, 1.0)
	require.NoError(t, err)

	emptyPlatform := baseRequirements()
	emptyPlatform.Platforms = []string{""}
	tqB, err := sched.InsertJob(ctx, 2, emptyPlatform, 1.0)
	require.NoError(t, err)
	assert.Equal(t, tqA, tqB)

	// A platform-constrained worker still matches the unconstrained TQ.
	ids, err := sched.MatchAndGetTaskQueue(ctx, models.ResourceDescription{
		Platform: []string{"slc5"}, NumQueuesToGet: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{tqA}, ids)
}

func TestMatch_TagRules(t *testing.T) {
	sched := setupScheduler(t)
	ctx := context.Background()

	reqs := baseRequirements()
	reqs.Tags = []string{"MultiProcessor"}
	tqID, err := sched.InsertJob(ctx, 1, reqs, 1.0)
	require.NoError(t, err)

	cases := []struct {
		name     string
		resource models.ResourceDescription
		matches  bool
	}{
		{"offered tag covers TQ tags", models.ResourceDescription{Tag: []string{"MultiProcessor"}}, true},
		{"no offered tags means any", models.ResourceDescription{}, true},
		{"banned tag not carried by TQ", models.ResourceDescription{BannedTag: []string{"SingleProcessor"}}, true},
		{"required tag missing from TQ", models.ResourceDescription{RequiredTag: []string{"SingleProcessor"}}, false},
		{"banned tag carried by TQ", models.ResourceDescription{BannedTag: []string{"MultiProcessor"}}, false},
		{"required tag carried by TQ", models.ResourceDescription{RequiredTag: []string{"MultiProcessor"}}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			c.resource.NumQueuesToGet = 10
			ids, err := sched.MatchAndGetTaskQueue(ctx, c.resource)
			require.NoError(t, err)
			if c.matches {
				assert.Equal(t, []int64{tqID}, ids)
			} else {
				assert.Empty(t, ids)
			}
		})
	}
}

func TestMatch_OwnerGroupRestriction(t *testing.T) {
	sched := setupScheduler(t)
	ctx := context.Background()

	reqs := baseRequirements()
	reqs.OwnerGroup = "admin"
	reqs.Sites = []string{"Site_1", "Site_2"}
	reqs.Platforms = []string{"centos7"}
	tqID, err := sched.InsertJob(ctx, 1, reqs, 1.0)
	require.NoError(t, err)

	resource := models.ResourceDescription{
		Platform:       []string{"slc6", "centos7"},
		OwnerGroup:     []string{"prod", "user"},
		Site:           []string{"Site_1"},
		NumQueuesToGet: 10,
	}
	ids, err := sched.MatchAndGetTaskQueue(ctx, resource)
	require.NoError(t, err)
	assert.Empty(t, ids) // group mismatch

	resource.OwnerGroup = append(resource.OwnerGroup, "admin")
	ids, err = sched.MatchAndGetTaskQueue(ctx, resource)
	require.NoError(t, err)
	assert.Equal(t, []int64{tqID}, ids)
}

func TestMatch_BannedSites(t *testing.T) {
	sched := setupScheduler(t)
	ctx := context.Background()

	reqs := baseRequirements()
	reqs.BannedSites = []string{"Site_Bad"}
	tqID, err := sched.InsertJob(ctx, 1, reqs, 1.0)
	require.NoError(t, err)

	ids, err := sched.MatchAndGetTaskQueue(ctx, models.ResourceDescription{
		Site: []string{"Site_Bad"}, NumQueuesToGet: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = sched.MatchAndGetTaskQueue(ctx, models.ResourceDescription{
		Site: []string{"Site_Good"}, NumQueuesToGet: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{tqID}, ids)
}

func TestDeleteTaskQueue_ConflictWhileJobAttached(t *testing.T) {
	sched := setupScheduler(t)
	ctx := context.Background()

	tqID, err := sched.InsertJob(ctx, 123, baseRequirements(), 1.0)
	require.NoError(t, err)

	err = sched.DeleteTaskQueue(ctx, tqID)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Conflict))

	_, err = sched.DeleteJob(ctx, 123)
	require.NoError(t, err)

	deleted, err := sched.DeleteTaskQueueIfEmpty(ctx, tqID)
	require.NoError(t, err)
	assert.True(t, deleted)

	n, err := sched.GetNumTaskQueues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMatchAndGetJob_DispatchesEachJobAtMostOnce(t *testing.T) {
	sched := setupScheduler(t)
	ctx := context.Background()

	_, err := sched.InsertJob(ctx, 1, baseRequirements(), 1.0)
	require.NoError(t, err)
	_, err = sched.InsertJob(ctx, 2, baseRequirements(), 1.0)
	require.NoError(t, err)

	seen := make(map[int64]bool)
	for i := 0; i < 2; i++ {
		result, err := sched.MatchAndGetJob(ctx, models.ResourceDescription{})
		require.NoError(t, err)
		require.True(t, result.MatchFound)
		assert.False(t, seen[result.JobID])
		seen[result.JobID] = true
	}
	assert.Len(t, seen, 2)

	result, err := sched.MatchAndGetJob(ctx, models.ResourceDescription{})
	require.NoError(t, err)
	assert.False(t, result.MatchFound)
}

func TestMatchAndGetJob_ConcurrentMatchersNeverDuplicate(t *testing.T) {
	sched := setupScheduler(t)
	ctx := context.Background()

	const jobCount = 5
	for jobID := int64(1); jobID <= jobCount; jobID++ {
		reqs := baseRequirements()
		if jobID%2 == 0 {
			reqs.OwnerGroup = "cms"
		}
		_, err := sched.InsertJob(ctx, jobID, reqs, 1.0)
		require.NoError(t, err)
	}

	var mu sync.Mutex
	dispatched := make(map[int64]int)
	var matchErrs []error

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				result, err := sched.MatchAndGetJob(ctx, models.ResourceDescription{NumQueuesToGet: 2})
				if err != nil {
					mu.Lock()
					matchErrs = append(matchErrs, err)
					mu.Unlock()
					return
				}
				if !result.MatchFound {
					return
				}
				mu.Lock()
				dispatched[result.JobID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Empty(t, matchErrs)
	assert.Len(t, dispatched, jobCount)
	for jobID, count := range dispatched {
		assert.Equal(t, 1, count, "job %d dispatched more than once", jobID)
	}
}

func TestRecalculateTQSharesForAll_SharesSumToOnePerGroup(t *testing.T) {
	sched := setupScheduler(t)
	ctx := context.Background()

	for jobID, cpuTime := range map[int64]int{1: 100, 2: 1000, 3: 5000} {
		reqs := baseRequirements()
		reqs.CPUTime = cpuTime // distinct buckets, so distinct TQs
		_, err := sched.InsertJob(ctx, jobID, reqs, float64(jobID))
		require.NoError(t, err)
	}

	require.NoError(t, sched.RecalculateTQSharesForAll(ctx))

	tqs, err := sched.RetrieveTaskQueues(ctx)
	require.NoError(t, err)
	require.Len(t, tqs, 3)

	var total float64
	for _, tq := range tqs {
		total += tq.Share
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestCleanOrphanedTaskQueues_ThroughFacade(t *testing.T) {
	sched := setupScheduler(t)
	ctx := context.Background()

	_, err := sched.InsertJob(ctx, 1, baseRequirements(), 1.0)
	require.NoError(t, err)
	_, err = sched.DeleteJob(ctx, 1)
	require.NoError(t, err)

	deleted, err := sched.CleanOrphanedTaskQueues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	orphans, err := sched.FindOrphanJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestInsertJob_RejectsMissingOwnerGroup(t *testing.T) {
	sched := setupScheduler(t)

	reqs := baseRequirements()
	reqs.OwnerGroup = ""
	_, err := sched.InsertJob(context.Background(), 1, reqs, 1.0)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.BadRequest))
}

func TestInsertJob_DuplicateJobIDIsConflict(t *testing.T) {
	sched := setupScheduler(t)
	ctx := context.Background()

	_, err := sched.InsertJob(ctx, 1, baseRequirements(), 1.0)
	require.NoError(t, err)

	_, err = sched.InsertJob(ctx, 1, baseRequirements(), 1.0)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Conflict))
}
