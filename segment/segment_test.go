package segment

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/muddysheep/chronicle/chrntypes"
)

func tempSegment(t *testing.T) (*Segment, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName(1))
	seg, err := Create(path, CompressionLZ4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = seg.Close() })
	return seg, path
}

func sampleRun(n int, start int64, metricID uint32) []chrntypes.Sample {
	out := make([]chrntypes.Sample, n)
	for i := 0; i < n; i++ {
		out[i] = chrntypes.Sample{Timestamp: start + int64(i)*1000, MetricID: metricID, Value: float64(i)}
	}
	return out
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{BlockCount: 3, MinTimestamp: 100, MaxTimestamp: 900, Compression: CompressionLZ4}
	buf := h.ToBytes()
	require.Len(t, buf, HeaderSize)

	got, err := HeaderFromBytes(buf)
	require.NoError(t, err)
	require.Equal(t, h.BlockCount, got.BlockCount)
	require.Equal(t, h.MinTimestamp, got.MinTimestamp)
	require.Equal(t, h.MaxTimestamp, got.MaxTimestamp)
	require.Equal(t, h.Compression, got.Compression)
}

func TestHeaderFromBytesRejectsCorruption(t *testing.T) {
	h := Header{BlockCount: 1, MinTimestamp: 1, MaxTimestamp: 2}
	buf := h.ToBytes()
	buf[10] ^= 0xFF

	_, err := HeaderFromBytes(buf)
	require.Error(t, err)
}

func TestCreateAndAppendSingleBlock(t *testing.T) {
	seg, _ := tempSegment(t)

	samples := sampleRun(10, 1000, 1)
	require.NoError(t, seg.AppendBlock(samples))
	require.Equal(t, 1, seg.BlockCount())
	require.Equal(t, 10, seg.PointCount())

	got, err := seg.ReadBlock(0)
	require.NoError(t, err)
	require.Equal(t, samples, got)
}

func TestAppendMultipleBlocksAndReopen(t *testing.T) {
	seg, path := tempSegment(t)

	block1 := sampleRun(5, 0, 1)
	block2 := sampleRun(5, 10000, 2)
	require.NoError(t, seg.AppendBlock(block1))
	require.NoError(t, seg.AppendBlock(block2))
	require.NoError(t, seg.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, 2, reopened.BlockCount())
	require.Equal(t, 10, reopened.PointCount())

	got1, err := reopened.ReadBlock(0)
	require.NoError(t, err)
	require.Equal(t, block1, got1)

	got2, err := reopened.ReadBlock(1)
	require.NoError(t, err)
	require.Equal(t, block2, got2)
}

func TestReadRangeFiltersAcrossBlocks(t *testing.T) {
	seg, _ := tempSegment(t)

	require.NoError(t, seg.AppendBlock(sampleRun(5, 0, 1)))      // 0,1000,...,4000
	require.NoError(t, seg.AppendBlock(sampleRun(5, 10000, 1)))  // 10000,...,14000

	got, err := seg.ReadRange(2000, 11000)
	require.NoError(t, err)

	var timestamps []int64
	for _, s := range got {
		timestamps = append(timestamps, s.Timestamp)
	}
	require.Equal(t, []int64{2000, 3000, 4000, 10000}, timestamps)
}

func TestSegmentOverlaps(t *testing.T) {
	seg, _ := tempSegment(t)
	require.False(t, seg.Overlaps(0, 100))

	require.NoError(t, seg.AppendBlock(sampleRun(3, 1000, 1)))
	require.True(t, seg.Overlaps(0, 1001))
	require.True(t, seg.Overlaps(2000, 5000))
	require.False(t, seg.Overlaps(0, 1000))
	require.False(t, seg.Overlaps(4000, 5000))
}

func TestSegmentID(t *testing.T) {
	id, err := ID("/data/segment_000042.dat")
	require.NoError(t, err)
	require.Equal(t, uint32(42), id)

	_, err = ID("/data/not-a-segment.dat")
	require.Error(t, err)

	require.Equal(t, "segment_000007.dat", FileName(7))
}

func TestBuilderAutoFlushesAtTargetSize(t *testing.T) {
	seg, _ := tempSegment(t)
	b := NewBuilder(seg, 4)

	require.NoError(t, b.AddBatch(sampleRun(10, 0, 1)))
	require.Equal(t, 2, b.Pending())
	require.Equal(t, 2, seg.BlockCount())

	require.NoError(t, b.Flush())
	require.Equal(t, 0, b.Pending())
	require.Equal(t, 3, seg.BlockCount())
	require.Equal(t, 10, seg.PointCount())
}

func TestBuilderFlushOnEmptyIsNoop(t *testing.T) {
	seg, _ := tempSegment(t)
	b := NewBuilder(seg, 4)
	require.NoError(t, b.Flush())
	require.Equal(t, 0, seg.BlockCount())
}
