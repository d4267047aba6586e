package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/taskqueue/internal/models"
)

func TestFingerprint_DeterministicForIdenticalInput(t *testing.T) {
	c := models.CanonicalRequirements{
		OwnerDN: "/DN=alice", OwnerGroup: "atlas", Setup: "cmssw", CPUTime: 1800,
		Sites: []string{"cern", "fnal"},
	}
	a, err := Fingerprint(c)
	require.NoError(t, err)
	b, err := Fingerprint(c)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64) // hex-encoded sha256
}

func TestFingerprint_DiffersOnAnyFieldChange(t *testing.T) {
	base := models.CanonicalRequirements{OwnerDN: "/DN=alice", OwnerGroup: "atlas", CPUTime: 1800}
	fpBase, err := Fingerprint(base)
	require.NoError(t, err)

	variant := base
	variant.CPUTime = 3600
	fpVariant, err := Fingerprint(variant)
	require.NoError(t, err)

	assert.NotEqual(t, fpBase, fpVariant)
}
