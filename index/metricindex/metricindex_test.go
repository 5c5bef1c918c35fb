package metricindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddAndGetSegments(t *testing.T) {
	idx, err := Open(t.TempDir())
	require.NoError(t, err)

	idx.AddSegment(1, 10)
	idx.AddSegment(1, 20)
	idx.AddSegment(2, 30)

	segs := idx.GetSegments(1)
	require.ElementsMatch(t, []uint32{10, 20}, segs)
	require.True(t, idx.HasMetric(1))
	require.False(t, idx.HasMetric(3))
}

func TestRemoveSegmentPrunesEmptyMetrics(t *testing.T) {
	idx, err := Open(t.TempDir())
	require.NoError(t, err)

	idx.AddSegment(1, 10)
	idx.RemoveSegment(10)

	require.False(t, idx.HasMetric(1))
	require.Equal(t, 0, idx.MetricCount())
}

func TestPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir)
	require.NoError(t, err)

	idx.AddSegments(1, []uint32{1, 2, 3})
	idx.AddSegment(2, 5)
	require.True(t, idx.IsDirty())
	require.NoError(t, idx.Persist())
	require.False(t, idx.IsDirty())

	idx2, err := Open(dir)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint32{1, 2, 3}, idx2.GetSegments(1))
	require.ElementsMatch(t, []uint32{5}, idx2.GetSegments(2))
}

func TestPersistNoopWhenClean(t *testing.T) {
	idx, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, idx.Persist())
}

func TestForcePersist(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, idx.ForcePersist())
}

func TestTotalSegments(t *testing.T) {
	idx, err := Open(t.TempDir())
	require.NoError(t, err)
	idx.AddSegment(1, 100)
	idx.AddSegment(2, 100)
	idx.AddSegment(2, 200)
	require.Equal(t, 2, idx.TotalSegments())
}
