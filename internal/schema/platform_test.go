package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatformOrder_DescendantSatisfiesAncestor(t *testing.T) {
	order := NewPlatformOrder([][2]string{{"slc6", "centos7"}})
	assert.True(t, order.Satisfies("slc6", "centos7"))
	assert.False(t, order.Satisfies("centos7", "slc6"))
}

func TestPlatformOrder_SatisfiesTransitively(t *testing.T) {
	order := NewPlatformOrder([][2]string{
		{"slc5", "slc6"},
		{"slc6", "centos7"},
	})
	assert.True(t, order.Satisfies("slc5", "centos7"))
	assert.False(t, order.Satisfies("centos7", "slc5"))
}

func TestPlatformOrder_SatisfiesSelf(t *testing.T) {
	order := NewPlatformOrder(nil)
	assert.True(t, order.Satisfies("ubuntu", "ubuntu"))
}

func TestPlatformOrder_UnrelatedFamiliesNeverMatch(t *testing.T) {
	order := NewPlatformOrder([][2]string{{"slc6", "centos7"}, {"debian", "ubuntu"}})
	assert.False(t, order.Satisfies("slc6", "ubuntu"))
	assert.False(t, order.Satisfies("debian", "centos7"))
}

func TestPlatformOrder_IsCaseInsensitive(t *testing.T) {
	order := NewPlatformOrder([][2]string{{"SLC6", "CentOS7"}})
	assert.True(t, order.Satisfies("slc6", "centos7"))
}
