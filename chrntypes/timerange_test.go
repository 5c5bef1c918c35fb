package chrntypes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/muddysheep/chronicle/chrnerr"
)

func TestNewTimeRangeAcceptsValidRange(t *testing.T) {
	r, err := NewTimeRange(0, 1000)
	require.NoError(t, err)
	require.Equal(t, int64(0), r.Start)
	require.Equal(t, int64(1000), r.End)
}

func TestNewTimeRangeRejectsEqualBounds(t *testing.T) {
	_, err := NewTimeRange(1000, 1000)
	require.Error(t, err)
	kind, ok := chrnerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, chrnerr.KindInvalidTimeRange, kind)
}

func TestNewTimeRangeRejectsInvertedBounds(t *testing.T) {
	_, err := NewTimeRange(1000, 0)
	require.Error(t, err)
	kind, ok := chrnerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, chrnerr.KindInvalidTimeRange, kind)
}
