// Package models defines the scheduler's closed request/response types.
package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Requirements is the producer-side vector attached to a job on insert.
// CPUTime here is the raw value; normalisation ceilings it into a bucket
// before it is ever persisted or fingerprinted.
type Requirements struct {
	OwnerDN    string `validate:"required"`
	OwnerGroup string `validate:"required"`
	Setup      string `validate:"required"`
	CPUTime    int    `validate:"gte=0"`

	Sites        []string
	BannedSites  []string
	GridCEs      []string
	Platforms    []string
	Tags         []string
	RequiredTags []string
	JobTypes     []string
	SubmitPools  []string
	PilotTypes   []string
}

// Validate checks the struct tags above, catching a malformed Requirements
// before it ever reaches normalise/fingerprint.
func (r *Requirements) Validate() error {
	return validate.Struct(r)
}

// CanonicalRequirements is the normalised form produced by schema.Normalise:
// lowercased where appropriate, bucketed CPUTime, sorted/deduplicated
// multi-value lists. Only this form is ever fingerprinted or persisted.
type CanonicalRequirements struct {
	OwnerDN    string
	OwnerGroup string
	Setup      string
	CPUTime    int

	Sites        []string
	BannedSites  []string
	GridCEs      []string
	Platforms    []string
	Tags         []string
	RequiredTags []string
	JobTypes     []string
	SubmitPools  []string
	PilotTypes   []string
}

// ResourceDescription is the consumer-side input to the matcher.
// CPUTime here is a floor, not an exact value, which is why it is a
// distinct type from Requirements rather than a shared bag.
type ResourceDescription struct {
	Setup      string
	CPUTime    int `validate:"gte=0"`
	OwnerGroup []string
	OwnerDN    string

	Site         []string
	Platform     []string
	Tag          []string
	RequiredTag  []string
	BannedTag    []string
	JobType      []string
	SubmitPool   []string
	PilotType    []string
	GridCE       []string

	// NumQueuesToGet bounds the number of candidate TQs returned; 0 means
	// the matcher's default of 1.
	NumQueuesToGet int
}

// Validate checks the struct tags above.
func (r *ResourceDescription) Validate() error {
	return validate.Struct(r)
}

// TaskQueue is a store-side descriptor of a TQ: scalar fields plus derived
// population/priority state.
type TaskQueue struct {
	TQID        int64
	Fingerprint string
	OwnerDN     string
	OwnerGroup  string
	Setup       string
	CPUTime     int
	RawPriority float64
	Share       float64
	CreatedAt   time.Time

	Sites        []string
	BannedSites  []string
	GridCEs      []string
	Platforms    []string
	Tags         []string
	RequiredTags []string
	JobTypes     []string
	SubmitPools  []string
	PilotTypes   []string

	Jobs int // number of attached jobs, populated by retrieveTQs
}

// Job is the weak reference from a TQ to an attached unit of work.
type Job struct {
	JobID        int64
	TQID         int64
	EnqueuedAt   time.Time
	PriorityHint float64
}

// MatchResult is matchAndGetJob's return value.
type MatchResult struct {
	MatchFound bool
	TQID       int64
	JobID      int64
}
