package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ExtentsToBsdiffPositionsString(t *testing.T) {
	cases := []struct {
		name       string
		extents    []*Extent
		fullLength uint64
		expected   string
	}{
		{
			name:       "single extent, exact",
			extents:    []*Extent{makeExtent(1, 2)},
			fullLength: 8,
			expected:   "4:8",
		},
		{
			name:       "single extent, capped",
			extents:    []*Extent{makeExtent(1, 2)},
			fullLength: 7,
			expected:   "4:7",
		},
		{
			name:       "multiple extents, last one short",
			extents:    []*Extent{makeExtent(1, 1), makeExtent(5, 1)},
			fullLength: 6,
			expected:   "4:4,20:2",
		},
		{
			name:       "sparse hole",
			extents:    []*Extent{makeExtent(SparseHole, 1), makeExtent(0, 1)},
			fullLength: 8,
			expected:   "-1:4,0:4",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			positions, err := extentsToBsdiffPositionsString(tc.extents, 4, tc.fullLength)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, positions)
		})
	}
}

func Test_ExtentsToBsdiffPositionsStringUndercoverage(t *testing.T) {
	_, err := extentsToBsdiffPositionsString([]*Extent{makeExtent(0, 1)}, 4, 9)
	assert.Error(t, err)
}
