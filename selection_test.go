package h5zarr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelection(t *testing.T) {
	shape := []uint64{20, 8, 3}
	tests := []struct {
		in   string
		want []Range
	}{
		{"", []Range{{0, 20}, {0, 8}, {0, 3}}},
		{"0:10,5:6", []Range{{0, 10}, {5, 6}, {0, 3}}},
		{"4", []Range{{4, 5}, {0, 8}, {0, 3}}},
		{":, 2:, :1", []Range{{0, 20}, {2, 8}, {0, 1}}},
		{"3:3", []Range{{3, 3}, {0, 8}, {0, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSelection(tt.in, shape)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"0:21", "5:2", "a:b", "-1", "1,2,3,4", "8,8,3"} {
		_, err := ParseSelection(bad, shape)
		assert.Error(t, err, bad)
	}

	scalar, err := ParseSelection("", nil)
	require.NoError(t, err)
	assert.Empty(t, scalar)
}
