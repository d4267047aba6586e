// Package matcher implements the matching algebra between task queues and
// worker resource descriptions: it filters the store's match candidates
// against the positive-inclusion/negative-exclusion/platform-family/tag
// rules that the store itself cannot express in SQL, orders survivors, and
// dispatches a job with bounded retry on detach races.
package matcher

import (
	"strings"

	"github.com/ternarybob/taskqueue/internal/models"
	"github.com/ternarybob/taskqueue/internal/schema"
)

// compatible applies every in-process refinement rule left after the
// store's scalar SQL filter (Setup, CPUTime floor, OwnerGroup, OwnerDN):
// Sites/GridCEs/JobTypes/SubmitPools/PilotTypes (positive-inclusion),
// BannedSites (negative-exclusion), Platform (ordered family), and the
// three tag rules.
func compatible(tq models.TaskQueue, r models.ResourceDescription, platforms *schema.PlatformOrder) bool {
	if !positiveInclusion(tq.Sites, r.Site) {
		return false
	}
	if !positiveInclusion(tq.GridCEs, r.GridCE) {
		return false
	}
	if !positiveInclusion(tq.JobTypes, r.JobType) {
		return false
	}
	if !positiveInclusion(tq.SubmitPools, r.SubmitPool) {
		return false
	}
	if !positiveInclusion(tq.PilotTypes, r.PilotType) {
		return false
	}
	if negativeExclusion(r.Site, tq.BannedSites) {
		return false
	}
	if !platformMatch(tq.Platforms, r.Platform, platforms) {
		return false
	}
	if !tagsMatch(tq.Tags, r.Tag) {
		return false
	}
	if !requiredTagsMatch(tq.Tags, r.RequiredTag) {
		return false
	}
	if !bannedTagsMatch(tq.Tags, r.BannedTag) {
		return false
	}
	return true
}

// positiveInclusion: a TQ with no declared value for the field accepts
// anything; otherwise the resource's offered values must overlap the TQ's
// declared set. An empty/absent resource value means "any", so it always
// passes.
func positiveInclusion(tqValues, resourceValues []string) bool {
	if len(tqValues) == 0 {
		return true
	}
	if len(resourceValues) == 0 {
		return true
	}
	return overlaps(tqValues, resourceValues)
}

// negativeExclusion implements BannedSites: the TQ is excluded iff any
// resource value appears in its banned set.
func negativeExclusion(resourceValues, bannedValues []string) bool {
	if len(bannedValues) == 0 || len(resourceValues) == 0 {
		return false
	}
	return overlaps(resourceValues, bannedValues)
}

// platformMatch implements the platform family rule: a TQ with no platform
// constraint matches anything; a resource offering no platform matches
// anything; otherwise some TQ-declared platform must be satisfied by some
// resource-offered platform under the configured order.
func platformMatch(tqPlatforms, resourcePlatforms []string, order *schema.PlatformOrder) bool {
	if len(tqPlatforms) == 0 {
		return true
	}
	if len(resourcePlatforms) == 0 {
		return true
	}
	for _, offered := range resourcePlatforms {
		for _, required := range tqPlatforms {
			if order.Satisfies(required, offered) {
				return true
			}
		}
	}
	return false
}

// tagsMatch implements the Tag rule: offered is an upper bound, TQ.Tags
// must be a subset of it. An empty offered set means "any" and matches
// regardless of TQ.Tags, even tag-requiring ones.
func tagsMatch(tqTags, offered []string) bool {
	if len(offered) == 0 {
		return true
	}
	return isSubset(tqTags, offered)
}

// requiredTagsMatch implements RequiredTag: required is a lower bound the
// TQ must carry in full.
func requiredTagsMatch(tqTags, required []string) bool {
	if len(required) == 0 {
		return true
	}
	return isSubset(required, tqTags)
}

// bannedTagsMatch implements BannedTag: the TQ must carry none of banned.
func bannedTagsMatch(tqTags, banned []string) bool {
	if len(banned) == 0 {
		return true
	}
	return !overlaps(tqTags, banned)
}

// lowerAll lowercases offered values and drops empties: an empty string in
// a resource list means "any", the same as omitting the field.
func lowerAll(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func overlaps(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

// isSubset reports whether every element of sub appears in super.
func isSubset(sub, super []string) bool {
	if len(sub) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(super))
	for _, v := range super {
		set[v] = struct{}{}
	}
	for _, v := range sub {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}
