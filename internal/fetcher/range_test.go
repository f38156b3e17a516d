package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRange(t *testing.T) {
	got, err := SplitRange(100, 105, 2)
	require.NoError(t, err)
	assert.Equal(t, []BlockRange{
		{From: 100, To: 101},
		{From: 102, To: 103},
		{From: 104, To: 105},
	}, got)
}

func TestSplitRangeSingle(t *testing.T) {
	got, err := SplitRange(5, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, []BlockRange{{From: 5, To: 5}}, got)
}

func TestSplitRangeInvalid(t *testing.T) {
	_, err := SplitRange(10, 9, 1)
	assert.Error(t, err, "inverted range")
	_, err = SplitRange(1, 10, 0)
	assert.Error(t, err, "zero batch size")
}

func TestSplitRangeExactBatches(t *testing.T) {
	got, err := SplitRange(0, 3999, 2000)
	require.NoError(t, err)
	assert.Equal(t, []BlockRange{
		{From: 0, To: 1999},
		{From: 2000, To: 3999},
	}, got)
}
