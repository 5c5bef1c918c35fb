package codec

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/muddysheep/chronicle/chrntypes"
)

func TestCompressDecompressEmpty(t *testing.T) {
	compressed, err := Compress(nil, CompressionLZ4)
	require.NoError(t, err)
	require.Nil(t, compressed)

	out, err := Decompress(compressed, CompressionLZ4)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestCompressDecompressSingle(t *testing.T) {
	samples := []chrntypes.Sample{
		{Timestamp: 1000, MetricID: 1, Value: 7.5},
	}
	compressed, err := Compress(samples, CompressionLZ4)
	require.NoError(t, err)
	require.NotEmpty(t, compressed)

	out, err := Decompress(compressed, CompressionLZ4)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(1000), out[0].Timestamp)
	require.Equal(t, uint32(1), out[0].MetricID)
	require.InDelta(t, 7.5, out[0].Value, 1e-9)
}

func TestCompressDecompressMultipleWithTags(t *testing.T) {
	samples := make([]chrntypes.Sample, 0, 100)
	for i := 0; i < 100; i++ {
		samples = append(samples, chrntypes.Sample{
			Timestamp: 1000 + int64(i)*1000,
			MetricID:  1,
			Value:     7.0 + float64(i)*0.01,
			Tags:      map[string]string{"source": "test"},
		})
	}

	compressed, err := Compress(samples, CompressionLZ4)
	require.NoError(t, err)

	out, err := Decompress(compressed, CompressionLZ4)
	require.NoError(t, err)
	require.Len(t, out, len(samples))

	for i, original := range samples {
		require.Equal(t, original.Timestamp, out[i].Timestamp)
		require.Equal(t, original.MetricID, out[i].MetricID)
		require.InDelta(t, original.Value, out[i].Value, 1e-9)
		require.Equal(t, original.Tags, out[i].Tags)
	}
}

func TestCompressSortsUnsortedInput(t *testing.T) {
	samples := []chrntypes.Sample{
		{Timestamp: 3000, MetricID: 1, Value: 3.0},
		{Timestamp: 1000, MetricID: 1, Value: 1.0},
		{Timestamp: 2000, MetricID: 1, Value: 2.0},
	}

	compressed, err := Compress(samples, CompressionLZ4)
	require.NoError(t, err)

	out, err := Decompress(compressed, CompressionLZ4)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, int64(1000), out[0].Timestamp)
	require.Equal(t, int64(2000), out[1].Timestamp)
	require.Equal(t, int64(3000), out[2].Timestamp)
	require.Equal(t, 1.0, out[0].Value)
	require.Equal(t, 2.0, out[1].Value)
	require.Equal(t, 3.0, out[2].Value)
}

func TestCompressTagDeduplication(t *testing.T) {
	samples := make([]chrntypes.Sample, 0, 1000)
	for i := 0; i < 1000; i++ {
		samples = append(samples, chrntypes.Sample{
			Timestamp: int64(i) * 1000,
			MetricID:  1,
			Value:     float64(i),
			Tags: map[string]string{
				"source": "api",
				"device": "phone",
				"app":    "chronicle",
			},
		})
	}

	compressed, err := Compress(samples, CompressionLZ4)
	require.NoError(t, err)

	var rawSize int
	for _, s := range samples {
		rawSize += s.EstimatedSize()
	}

	ratio := float64(rawSize) / float64(len(compressed))
	require.Greaterf(t, ratio, 3.0, "expected compression ratio > 3x, got %.2f", ratio)

	out, err := Decompress(compressed, CompressionLZ4)
	require.NoError(t, err)
	require.Len(t, out, 1000)
}

func TestCompressMultipleMetrics(t *testing.T) {
	samples := []chrntypes.Sample{
		{Timestamp: 1000, MetricID: 1, Value: 7.0},
		{Timestamp: 1001, MetricID: 2, Value: 10000.0},
		{Timestamp: 1002, MetricID: 3, Value: 72.5},
		{Timestamp: 2000, MetricID: 1, Value: 8.0},
		{Timestamp: 2001, MetricID: 2, Value: 500.0},
	}

	compressed, err := Compress(samples, CompressionLZ4)
	require.NoError(t, err)

	out, err := Decompress(compressed, CompressionLZ4)
	require.NoError(t, err)
	require.Len(t, out, 5)
	require.Equal(t, uint32(1), out[0].MetricID)
}

func TestDecompressCorruptPayload(t *testing.T) {
	samples := []chrntypes.Sample{{Timestamp: 1, MetricID: 1, Value: 1}}
	compressed, err := Compress(samples, CompressionLZ4)
	require.NoError(t, err)

	corrupt := make([]byte, len(compressed))
	copy(corrupt, compressed)
	corrupt[len(corrupt)-1] ^= 0xFF

	_, err = Decompress(corrupt, CompressionLZ4)
	// Either the LZ4 framing or the field reader must reject a flipped
	// trailing byte; we don't assert a specific error kind since which
	// layer catches it depends on which byte was hit.
	if err == nil {
		t.Skip("flipped byte happened to decode to a structurally valid (if wrong) payload")
	}
}

func TestCompressDecompressAllCodecs(t *testing.T) {
	kinds := []CompressionType{CompressionNone, CompressionLZ4, CompressionS2, CompressionZstd}
	samples := []chrntypes.Sample{
		{Timestamp: 1000, MetricID: 1, Value: 7.5, Tags: map[string]string{"source": "test"}},
		{Timestamp: 2000, MetricID: 1, Value: 8.5},
	}

	for _, kind := range kinds {
		t.Run(fmt.Sprintf("kind=%d", kind), func(t *testing.T) {
			compressed, err := Compress(samples, kind)
			require.NoError(t, err)
			require.NotEmpty(t, compressed)

			out, err := Decompress(compressed, kind)
			require.NoError(t, err)
			require.Len(t, out, 2)
			require.Equal(t, samples[0].Timestamp, out[0].Timestamp)
			require.Equal(t, samples[0].Tags, out[0].Tags)
		})
	}
}

func TestCompressRejectsUnknownCodec(t *testing.T) {
	samples := []chrntypes.Sample{{Timestamp: 1, MetricID: 1, Value: 1}}
	_, err := Compress(samples, CompressionType(99))
	require.Error(t, err)
}

func TestTagTableInternDeduplicates(t *testing.T) {
	tbl := newTagTable()
	for i := 0; i < 3; i++ {
		_, err := tbl.intern(fmt.Sprintf("s%d", i))
		require.NoError(t, err)
	}
	idx, err := tbl.intern("s0")
	require.NoError(t, err)
	require.EqualValues(t, 0, idx)
}
