package matcher

import (
	"context"
	"math/rand/v2"
	"sort"

	"golang.org/x/time/rate"

	"github.com/ternarybob/taskqueue/internal/errs"
	"github.com/ternarybob/taskqueue/internal/interfaces"
	"github.com/ternarybob/taskqueue/internal/models"
	"github.com/ternarybob/taskqueue/internal/schema"
)

const defaultNumQueuesToGet = 1

// Matcher compiles a resource description into a store query, filters and
// orders the candidate TQs, and atomically dispatches a job from the
// selection.
type Matcher struct {
	store       interfaces.TaskQueueStorage
	platforms   *schema.PlatformOrder
	retryBudget int
	// limiter paces the detach-retry loop so a burst of losing detach
	// races doesn't turn into a tight store-hammering loop.
	limiter *rate.Limiter
}

// New builds a Matcher. retryBudget bounds MatchAndGetJob's detach-retry
// loop (config MatchRetryBudget, default 3).
func New(store interfaces.TaskQueueStorage, platforms *schema.PlatformOrder, retryBudget int) *Matcher {
	if retryBudget <= 0 {
		retryBudget = 3
	}
	return &Matcher{
		store:       store,
		platforms:   platforms,
		retryBudget: retryBudget,
		limiter:     rate.NewLimiter(rate.Limit(50), 10),
	}
}

func validateResource(r models.ResourceDescription) error {
	if r.CPUTime < 0 {
		return errs.BadField("MatchAndGetJob", "CPUTime", nil)
	}
	if r.NumQueuesToGet < 0 {
		return errs.BadField("MatchAndGetJob", "NumQueuesToGet", nil)
	}
	return nil
}

// canonicaliseResource lowercases the offered multi-value lists so they
// compare against the store's canonical (lowercased) requirement rows.
// Scalar identity fields stay verbatim; DN and group case is significant.
func canonicaliseResource(r models.ResourceDescription) models.ResourceDescription {
	r.Site = lowerAll(r.Site)
	r.Platform = lowerAll(r.Platform)
	r.Tag = lowerAll(r.Tag)
	r.RequiredTag = lowerAll(r.RequiredTag)
	r.BannedTag = lowerAll(r.BannedTag)
	r.JobType = lowerAll(r.JobType)
	r.SubmitPool = lowerAll(r.SubmitPool)
	r.PilotType = lowerAll(r.PilotType)
	r.GridCE = lowerAll(r.GridCE)
	return r
}

// candidates runs the store's scalar filter, applies the in-process
// refinement rules, and orders survivors by descending share then
// ascending tqId as the deterministic tie-break.
func (m *Matcher) candidates(ctx context.Context, r models.ResourceDescription) ([]models.TaskQueue, error) {
	rows, err := m.store.MatchCandidates(ctx, r)
	if err != nil {
		return nil, err
	}

	out := rows[:0]
	for _, tq := range rows {
		if compatible(tq, r, m.platforms) {
			out = append(out, tq)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Share != out[j].Share {
			return out[i].Share > out[j].Share
		}
		return out[i].TQID < out[j].TQID
	})
	return out, nil
}

// MatchAndGetTaskQueue returns up to numQueuesToGet candidate TQs without
// dispatching a job from any of them. Used for diagnostics and pilot
// pre-filtering.
func (m *Matcher) MatchAndGetTaskQueue(ctx context.Context, r models.ResourceDescription) ([]int64, error) {
	if err := validateResource(r); err != nil {
		return nil, err
	}
	n := r.NumQueuesToGet
	if n <= 0 {
		n = defaultNumQueuesToGet
	}
	r = canonicaliseResource(r)

	tqs, err := m.candidates(ctx, r)
	if err != nil {
		return nil, err
	}
	if len(tqs) > n {
		tqs = tqs[:n]
	}

	ids := make([]int64, len(tqs))
	for i, tq := range tqs {
		ids[i] = tq.TQID
	}
	return ids, nil
}

// MatchAndGetJob selects one TQ from the candidate set via weighted random
// (normalised share), picks the FIFO-oldest job attached to it, and
// atomically detaches it. A losing concurrent detach restarts the whole
// selection, bounded by retryBudget attempts; an exhausted budget reports
// no match rather than an error.
func (m *Matcher) MatchAndGetJob(ctx context.Context, r models.ResourceDescription) (models.MatchResult, error) {
	if err := validateResource(r); err != nil {
		return models.MatchResult{}, err
	}
	n := r.NumQueuesToGet
	if n <= 0 {
		n = defaultNumQueuesToGet
	}
	r = canonicaliseResource(r)

	for attempt := 0; attempt < m.retryBudget; attempt++ {
		if attempt > 0 {
			if err := m.limiter.Wait(ctx); err != nil {
				return models.MatchResult{}, errs.Wrap(errs.DeadlineExceeded, "MatchAndGetJob", err)
			}
		}

		tqs, err := m.candidates(ctx, r)
		if err != nil {
			return models.MatchResult{}, err
		}
		if len(tqs) > n {
			tqs = tqs[:n]
		}
		if len(tqs) == 0 {
			return models.MatchResult{MatchFound: false}, nil
		}

		chosen := weightedPick(tqs)

		job, err := m.store.OldestJob(ctx, chosen.TQID)
		if errs.Is(err, errs.UnknownJob) {
			// TQ emptied out from under us between candidate selection and
			// pick; restart the whole selection rather than just this TQ
			// so share ordering is re-evaluated against current state.
			continue
		}
		if err != nil {
			return models.MatchResult{}, err
		}

		tqID, err := m.store.DetachJob(ctx, job.JobID)
		if errs.Is(err, errs.UnknownJob) {
			// Another matcher won the race for this job; retry selection.
			continue
		}
		if err != nil {
			return models.MatchResult{}, err
		}

		return models.MatchResult{MatchFound: true, TQID: tqID, JobID: job.JobID}, nil
	}

	return models.MatchResult{MatchFound: false}, nil
}

// weightedPick selects a candidate using normalised-share weighted random
// sampling. When every candidate has zero share (an unrecalculated or newly
// created group), the pick falls back to uniform random so a cold TQ
// population still dispatches; a zero-share candidate alongside
// positive-share ones is never picked.
func weightedPick(tqs []models.TaskQueue) models.TaskQueue {
	total := 0.0
	for _, tq := range tqs {
		total += tq.Share
	}
	if total <= 0 {
		return tqs[rand.IntN(len(tqs))]
	}

	r := rand.Float64() * total
	acc := 0.0
	for _, tq := range tqs {
		acc += tq.Share
		if r < acc {
			return tq
		}
	}
	return tqs[len(tqs)-1]
}
