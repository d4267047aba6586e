package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/taskqueue/internal/models"
)

var testBuckets = []int{500, 1800, 10800, 43200, 86400}

func TestNormalise_SortsDedupsAndLowercases(t *testing.T) {
	reqs := models.Requirements{
		OwnerDN:    "/DN=alice",
		OwnerGroup: "atlas",
		Setup:      "cmssw",
		CPUTime:    300,
		Sites:      []string{"CERN", "cern", " FNAL "},
	}

	got, err := Normalise(reqs, testBuckets)
	require.NoError(t, err)
	assert.Equal(t, []string{"cern", "fnal"}, got.Sites)
}

func TestNormalise_RejectsEmptyOwnerDN(t *testing.T) {
	reqs := models.Requirements{OwnerGroup: "atlas"}
	_, err := Normalise(reqs, testBuckets)
	require.Error(t, err)
}

func TestNormalise_RejectsEmptyOwnerGroup(t *testing.T) {
	reqs := models.Requirements{OwnerDN: "/DN=alice"}
	_, err := Normalise(reqs, testBuckets)
	require.Error(t, err)
}

func TestNormalise_RejectsNegativeCPUTime(t *testing.T) {
	reqs := models.Requirements{OwnerDN: "/DN=alice", OwnerGroup: "atlas", CPUTime: -1}
	_, err := Normalise(reqs, testBuckets)
	require.Error(t, err)
}

func TestCeilCPUTime_PicksSmallestBucketAtOrAboveRaw(t *testing.T) {
	cases := []struct {
		raw  int
		want int
	}{
		{0, 500},
		{500, 500},
		{501, 1800},
		{43200, 43200},
		{999999, 86400}, // exceeds every bucket: falls back to the highest
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CeilCPUTime(c.raw, testBuckets))
	}
}

func TestCeilCPUTime_EmptyBucketsReturnsRaw(t *testing.T) {
	assert.Equal(t, 1234, CeilCPUTime(1234, nil))
}

func TestNormalise_SetEqualListsFingerprintIdentically(t *testing.T) {
	a := models.Requirements{OwnerDN: "/DN=alice", OwnerGroup: "atlas", Sites: []string{"cern", "fnal"}}
	b := models.Requirements{OwnerDN: "/DN=alice", OwnerGroup: "atlas", Sites: []string{"fnal", "cern"}}

	canonA, err := Normalise(a, testBuckets)
	require.NoError(t, err)
	canonB, err := Normalise(b, testBuckets)
	require.NoError(t, err)

	fpA, err := Fingerprint(canonA)
	require.NoError(t, err)
	fpB, err := Fingerprint(canonB)
	require.NoError(t, err)

	assert.Equal(t, fpA, fpB)
}
