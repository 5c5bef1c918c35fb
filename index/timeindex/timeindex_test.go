package timeindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func tempIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestTimeIndexCreation(t *testing.T) {
	idx := tempIndex(t)
	n, err := idx.Count()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestInsertAndFindRange(t *testing.T) {
	idx := tempIndex(t)

	require.NoError(t, idx.Insert(1000, 1, 0))
	require.NoError(t, idx.Insert(2000, 1, 1))
	require.NoError(t, idx.Insert(3000, 2, 0))

	n, err := idx.Count()
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	results, err := idx.FindRange(1500, 2500)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint32(1), results[0].SegmentID)
	require.Equal(t, uint32(1), results[0].BlockIdx)
}

func TestInsertRange(t *testing.T) {
	idx := tempIndex(t)

	boundaries := make([]BlockBoundary, 100)
	for i := range boundaries {
		boundaries[i] = BlockBoundary{BlockIdx: uint32(i), Timestamp: int64(i) * 1000}
	}
	require.NoError(t, idx.InsertRange(1, boundaries))

	n, err := idx.Count()
	require.NoError(t, err)
	require.EqualValues(t, 100, n)

	results, err := idx.FindRange(25000, 75000)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(results), 50)
}

func TestFindFloorAndCeiling(t *testing.T) {
	idx := tempIndex(t)

	require.NoError(t, idx.Insert(1000, 1, 0))
	require.NoError(t, idx.Insert(2000, 1, 1))
	require.NoError(t, idx.Insert(3000, 2, 0))

	floor, ok, err := idx.FindFloor(2500)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1), floor.SegmentID)
	require.Equal(t, uint32(1), floor.BlockIdx)

	_, ok, err = idx.FindFloor(500)
	require.NoError(t, err)
	require.False(t, ok)

	ceil, ok, err := idx.FindCeiling(1500)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1), ceil.SegmentID)
	require.Equal(t, uint32(1), ceil.BlockIdx)
}

func TestRemoveSegment(t *testing.T) {
	idx := tempIndex(t)

	require.NoError(t, idx.InsertRange(1, []BlockBoundary{{0, 1000}, {1, 2000}}))
	require.NoError(t, idx.InsertRange(2, []BlockBoundary{{0, 3000}, {1, 4000}}))

	n, err := idx.Count()
	require.NoError(t, err)
	require.EqualValues(t, 4, n)

	require.NoError(t, idx.RemoveSegment(1))

	n, err = idx.Count()
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	results, err := idx.FindRange(0, 5000)
	require.NoError(t, err)
	for _, l := range results {
		require.Equal(t, uint32(2), l.SegmentID)
	}
}

func TestTimeBounds(t *testing.T) {
	idx := tempIndex(t)

	require.NoError(t, idx.Insert(1000, 1, 0))
	require.NoError(t, idx.Insert(5000, 2, 0))
	require.NoError(t, idx.Insert(3000, 1, 1))

	min, max, ok, err := idx.TimeBounds()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1000, min)
	require.EqualValues(t, 5000, max)
}

func TestFindBySegment(t *testing.T) {
	idx := tempIndex(t)
	require.NoError(t, idx.InsertRange(7, []BlockBoundary{{0, 10}, {1, 20}, {2, 30}}))

	locs, err := idx.FindBySegment(7)
	require.NoError(t, err)
	require.Len(t, locs, 3)
	require.Equal(t, uint32(0), locs[0].BlockIdx)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	idx, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, idx.Insert(1000, 1, 0))
	require.NoError(t, idx.Insert(2000, 1, 1))
	require.NoError(t, idx.Close())

	idx2, err := Open(dir)
	require.NoError(t, err)
	defer idx2.Close()

	n, err := idx2.Count()
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}
