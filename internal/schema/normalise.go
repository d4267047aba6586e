package schema

import (
	"sort"
	"strings"

	"github.com/ternarybob/taskqueue/internal/errs"
	"github.com/ternarybob/taskqueue/internal/models"
)

// Normalise ceilings CPUTime into a bucket and lowercases, sorts, and
// deduplicates every multi-valued list so that {Sites:[A,B]} and
// {Sites:[B,A]} fingerprint identically. Scalar identity fields (OwnerDN,
// OwnerGroup, Setup) are kept verbatim; DN case is significant.
func Normalise(reqs models.Requirements, buckets []int) (models.CanonicalRequirements, error) {
	if reqs.OwnerDN == "" {
		return models.CanonicalRequirements{}, errs.BadField("Normalise", "OwnerDN", nil)
	}
	if reqs.OwnerGroup == "" {
		return models.CanonicalRequirements{}, errs.BadField("Normalise", "OwnerGroup", nil)
	}
	if reqs.CPUTime < 0 {
		return models.CanonicalRequirements{}, errs.BadField("Normalise", "CPUTime", nil)
	}

	return models.CanonicalRequirements{
		OwnerDN:    reqs.OwnerDN,
		OwnerGroup: reqs.OwnerGroup,
		Setup:      reqs.Setup,
		CPUTime:    CeilCPUTime(reqs.CPUTime, buckets),

		Sites:        sortDedup(reqs.Sites),
		BannedSites:  sortDedup(reqs.BannedSites),
		GridCEs:      sortDedup(reqs.GridCEs),
		Platforms:    sortDedup(reqs.Platforms),
		Tags:         sortDedup(reqs.Tags),
		RequiredTags: sortDedup(reqs.RequiredTags),
		JobTypes:     sortDedup(reqs.JobTypes),
		SubmitPools:  sortDedup(reqs.SubmitPools),
		PilotTypes:   sortDedup(reqs.PilotTypes),
	}, nil
}

// CeilCPUTime returns the smallest bucket value >= raw, or the highest
// bucket if raw exceeds every configured bucket.
func CeilCPUTime(raw int, buckets []int) int {
	sorted := append([]int(nil), buckets...)
	sort.Ints(sorted)
	for _, b := range sorted {
		if raw <= b {
			return b
		}
	}
	if len(sorted) > 0 {
		return sorted[len(sorted)-1]
	}
	return raw
}

// sortDedup lowercases, trims, sorts, and deduplicates a multi-value list.
func sortDedup(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
