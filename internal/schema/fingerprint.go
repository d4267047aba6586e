package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/ternarybob/taskqueue/internal/models"
)

// canonicalForm is the JSON-serialisable shape hashed by Fingerprint. Field
// order is fixed by struct declaration order, and every slice entering it
// has already been sorted/deduplicated by Normalise, so two requirement
// vectors that are set-equal always marshal byte-for-byte identically.
type canonicalForm struct {
	OwnerDN      string
	OwnerGroup   string
	Setup        string
	CPUTime      int
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

// Fingerprint returns the stable hex-encoded sha256 digest of a canonical
// requirement vector. Two jobs with identical vectors fingerprint equal and
// land in the same task queue.
func Fingerprint(c models.CanonicalRequirements) (string, error) {
	form := canonicalForm{
		OwnerDN:      c.OwnerDN,
		OwnerGroup:   c.OwnerGroup,
		Setup:        c.Setup,
		CPUTime:      c.CPUTime,
		Sites:        c.Sites,
		BannedSites:  c.BannedSites,
		GridCEs:      c.GridCEs,
		Platforms:    c.Platforms,
		Tags:         c.Tags,
		RequiredTags: c.RequiredTags,
		JobTypes:     c.JobTypes,
		SubmitPools:  c.SubmitPools,
		PilotTypes:   c.PilotTypes,
	}
	data, err := json.Marshal(form)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
