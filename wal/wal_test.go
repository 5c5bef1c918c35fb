package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/muddysheep/chronicle/chrntypes"
)

func tempWAL(t *testing.T, mode SyncMode) (*WAL, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "current.wal")
	w, err := Open(path, mode, 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, path
}

func TestWalBasicAppendAndRecover(t *testing.T) {
	w, _ := tempWAL(t, SyncEveryWrite)

	samples := []chrntypes.Sample{
		{Timestamp: 1000, MetricID: 1, Value: 7.5},
		{Timestamp: 2000, MetricID: 1, Value: 8.0, Tags: map[string]string{"source": "manual"}},
	}
	for _, s := range samples {
		require.NoError(t, w.Append(s))
	}
	require.Equal(t, 2, w.EntryCount())

	recovered, err := w.Recover()
	require.NoError(t, err)
	require.Equal(t, samples, recovered)
}

func TestWalAppendBatch(t *testing.T) {
	w, _ := tempWAL(t, SyncBatched)

	samples := make([]chrntypes.Sample, 0, 50)
	for i := 0; i < 50; i++ {
		samples = append(samples, chrntypes.Sample{Timestamp: int64(i), MetricID: 1, Value: float64(i)})
	}
	require.NoError(t, w.AppendBatch(samples))

	recovered, err := w.Recover()
	require.NoError(t, err)
	require.Len(t, recovered, 50)
}

func TestWalTruncate(t *testing.T) {
	w, path := tempWAL(t, SyncEveryWrite)

	require.NoError(t, w.Append(chrntypes.Sample{Timestamp: 1, MetricID: 1, Value: 1}))
	require.NoError(t, w.Truncate())
	require.Equal(t, 0, w.EntryCount())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Zero(t, info.Size())

	require.NoError(t, w.Append(chrntypes.Sample{Timestamp: 2, MetricID: 1, Value: 2}))
	recovered, err := w.Recover()
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	require.Equal(t, int64(2), recovered[0].Timestamp)
}

func TestWalRecoversPersistedEntriesAcrossReopen(t *testing.T) {
	w, path := tempWAL(t, SyncEveryWrite)
	require.NoError(t, w.Append(chrntypes.Sample{Timestamp: 5, MetricID: 1, Value: 5}))
	require.NoError(t, w.Close())

	w2, err := Open(path, SyncEveryWrite, 0, nil)
	require.NoError(t, err)
	defer w2.Close()

	require.Equal(t, 1, w2.EntryCount())
	recovered, err := w2.Recover()
	require.NoError(t, err)
	require.Len(t, recovered, 1)
}

func TestWalDetectsCorruptTail(t *testing.T) {
	w, path := tempWAL(t, SyncEveryWrite)
	require.NoError(t, w.Append(chrntypes.Sample{Timestamp: 1, MetricID: 1, Value: 1}))
	require.NoError(t, w.Append(chrntypes.Sample{Timestamp: 2, MetricID: 1, Value: 2}))
	require.NoError(t, w.Close())

	// Flip a byte inside the second record's payload.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-6] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	w2, err := Open(path, SyncEveryWrite, 0, nil)
	require.NoError(t, err)
	defer w2.Close()

	recovered, err := w2.Recover()
	require.NoError(t, err)
	// Only the well-formed first record survives; the torn second record
	// is dropped, not a hard error.
	require.Len(t, recovered, 1)
	require.Equal(t, int64(1), recovered[0].Timestamp)
}

func TestWalIteratorOverNonexistentFile(t *testing.T) {
	dir := t.TempDir()
	it, err := NewIterator(filepath.Join(dir, "missing.wal"), nil)
	require.NoError(t, err)
	defer it.Close()

	_, ok, err := it.Next()
	require.NoError(t, err)
	require.False(t, ok)
}
