package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/muddysheep/chronicle/chrnerr"
	"github.com/muddysheep/chronicle/chrntypes"
	"github.com/muddysheep/chronicle/internal/chlog"
)

func tempEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.BlockSize = 1 << 20 // large enough that tests control flush timing
	cfg.FlushIntervalMillis = 60_000
	e, err := Open(cfg, chlog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown() })
	return e
}

func registerMetric(t *testing.T, e *Engine, name string) uint32 {
	t.Helper()
	id, err := e.RegisterMetric(chrntypes.Metric{
		Name:        name,
		Unit:        "count",
		Category:    chrntypes.CategoryCustom,
		Aggregation: chrntypes.AggAvg,
	})
	require.NoError(t, err)
	return id
}

func TestEngineOpenCreatesDirectoryStructure(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(DefaultConfig(dir), chlog.Nop())
	require.NoError(t, err)
	defer e.Shutdown()

	require.DirExists(t, filepath.Join(dir, "segments"))
	require.DirExists(t, filepath.Join(dir, "wal"))
	require.DirExists(t, filepath.Join(dir, "meta"))
	require.DirExists(t, filepath.Join(dir, "index"))
}

func TestEngineRejectsWriteForUnknownMetric(t *testing.T) {
	e := tempEngine(t)
	err := e.Write(chrntypes.Sample{Timestamp: 1, MetricID: 999, Value: 1})
	require.Error(t, err)
}

func TestEngineRejectsWriteOutsideMetricRange(t *testing.T) {
	e := tempEngine(t)
	min, max := 1.0, 10.0
	metricID, err := e.RegisterMetric(chrntypes.Metric{
		Name: "mood", Unit: "score", Category: chrntypes.CategoryMood,
		Aggregation: chrntypes.AggAvg, MinValue: &min, MaxValue: &max,
	})
	require.NoError(t, err)

	err = e.Write(chrntypes.Sample{Timestamp: 1, MetricID: metricID, Value: 0})
	require.Error(t, err)
	kind, ok := chrnerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, chrnerr.KindConfig, kind)

	err = e.Write(chrntypes.Sample{Timestamp: 2, MetricID: metricID, Value: 11})
	require.Error(t, err)

	require.NoError(t, e.Write(chrntypes.Sample{Timestamp: 3, MetricID: metricID, Value: 5.5}))
}

func TestEngineWriteBatchRejectsOutsideMetricRange(t *testing.T) {
	e := tempEngine(t)
	min, max := 1.0, 10.0
	metricID, err := e.RegisterMetric(chrntypes.Metric{
		Name: "mood", Unit: "score", Category: chrntypes.CategoryMood,
		Aggregation: chrntypes.AggAvg, MinValue: &min, MaxValue: &max,
	})
	require.NoError(t, err)

	err = e.WriteBatch([]chrntypes.Sample{
		{Timestamp: 1, MetricID: metricID, Value: 5},
		{Timestamp: 2, MetricID: metricID, Value: 100},
	})
	require.Error(t, err)
}

func TestEngineRegisterMetricRejectsInvertedRange(t *testing.T) {
	e := tempEngine(t)
	min, max := 10.0, 1.0
	_, err := e.RegisterMetric(chrntypes.Metric{
		Name: "bad_range", Unit: "count", Category: chrntypes.CategoryCustom,
		Aggregation: chrntypes.AggAvg, MinValue: &min, MaxValue: &max,
	})
	require.Error(t, err)
	kind, ok := chrnerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, chrnerr.KindConfig, kind)
}

func TestEngineQueryRejectsZeroWidthTimeRange(t *testing.T) {
	e := tempEngine(t)
	_, err := e.Query(chrntypes.TimeRange{Start: 1000, End: 1000}, nil)
	require.Error(t, err)
	kind, ok := chrnerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, chrnerr.KindInvalidTimeRange, kind)
}

func TestEngineQueryRejectsInvertedTimeRange(t *testing.T) {
	e := tempEngine(t)
	_, err := e.Query(chrntypes.TimeRange{Start: 1000, End: 0}, nil)
	require.Error(t, err)
	kind, ok := chrnerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, chrnerr.KindInvalidTimeRange, kind)
}

func TestEngineWriteAndQueryRoundTrip(t *testing.T) {
	e := tempEngine(t)
	metricID := registerMetric(t, e, "steps")

	for i := int64(0); i < 10; i++ {
		require.NoError(t, e.Write(chrntypes.Sample{Timestamp: i * 1000, MetricID: metricID, Value: float64(i)}))
	}

	r, err := chrntypes.NewTimeRange(0, 10_000)
	require.NoError(t, err)
	results, err := e.Query(r, nil)
	require.NoError(t, err)
	require.Len(t, results, 10)
	for i, s := range results {
		require.Equal(t, int64(i)*1000, s.Timestamp)
	}
}

func TestEngineFlushMovesBufferIntoSegment(t *testing.T) {
	e := tempEngine(t)
	metricID := registerMetric(t, e, "heart_rate")

	for i := int64(0); i < 5; i++ {
		require.NoError(t, e.Write(chrntypes.Sample{Timestamp: i, MetricID: metricID, Value: 70 + float64(i)}))
	}
	require.NoError(t, e.Flush())

	stats, err := e.Stats()
	require.NoError(t, err)
	require.Equal(t, 0, stats.BufferPoints)
	require.Equal(t, 1, stats.SegmentCount)
	require.EqualValues(t, 5, stats.TotalPoints)

	r, err := chrntypes.NewTimeRange(0, 5)
	require.NoError(t, err)
	results, err := e.Query(r, nil)
	require.NoError(t, err)
	require.Len(t, results, 5)
}

func TestEngineQueryMetricFiltersByName(t *testing.T) {
	e := tempEngine(t)
	stepsID := registerMetric(t, e, "steps")
	moodID := registerMetric(t, e, "mood")

	require.NoError(t, e.Write(chrntypes.Sample{Timestamp: 1, MetricID: stepsID, Value: 100}))
	require.NoError(t, e.Write(chrntypes.Sample{Timestamp: 2, MetricID: moodID, Value: 5}))
	require.NoError(t, e.Flush())

	r, err := chrntypes.NewTimeRange(0, 10)
	require.NoError(t, err)
	results, err := e.QueryMetric("steps", r)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, stepsID, results[0].MetricID)
}

func TestEngineQueryFiltersByTags(t *testing.T) {
	e := tempEngine(t)
	metricID := registerMetric(t, e, "workout")

	require.NoError(t, e.Write(chrntypes.Sample{Timestamp: 1, MetricID: metricID, Value: 1, Tags: map[string]string{"type": "run"}}))
	require.NoError(t, e.Write(chrntypes.Sample{Timestamp: 2, MetricID: metricID, Value: 2, Tags: map[string]string{"type": "swim"}}))
	require.NoError(t, e.Flush())

	r, err := chrntypes.NewTimeRange(0, 10)
	require.NoError(t, err)
	results, err := e.Query(r, &chrntypes.QueryFilter{Tags: map[string]string{"type": "run"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(1), results[0].Timestamp)
}

func TestEngineRecoversFromWALAfterUncleanShutdown(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.FlushIntervalMillis = 60_000

	e, err := Open(cfg, chlog.Nop())
	require.NoError(t, err)
	metricID := registerMetric(t, e, "steps")
	require.NoError(t, e.Write(chrntypes.Sample{Timestamp: 1, MetricID: metricID, Value: 42}))
	// Simulate an unclean shutdown: no Shutdown() call, WAL stays on disk.
	require.NoError(t, e.wal.Close())

	e2, err := Open(cfg, chlog.Nop())
	require.NoError(t, err)
	defer e2.Shutdown()

	stats, err := e2.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.TotalPoints)
}

func TestEngineRotatesSegmentsPastMaxSize(t *testing.T) {
	e := tempEngine(t)
	e.config.MaxSegmentSize = 1 // force rotation on the very first flush
	metricID := registerMetric(t, e, "steps")

	require.NoError(t, e.Write(chrntypes.Sample{Timestamp: 1, MetricID: metricID, Value: 1}))
	require.NoError(t, e.Flush())
	require.NoError(t, e.Write(chrntypes.Sample{Timestamp: 2, MetricID: metricID, Value: 2}))
	require.NoError(t, e.Flush())

	stats, err := e.Stats()
	require.NoError(t, err)
	require.GreaterOrEqual(t, stats.SegmentCount, 2)
}

func TestEngineShutdownWithBufferedWriteSucceeds(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(DefaultConfig(dir), chlog.Nop())
	require.NoError(t, err)
	metricID := registerMetric(t, e, "steps")
	require.NoError(t, e.Write(chrntypes.Sample{Timestamp: 1, MetricID: metricID, Value: 1}))
	require.NoError(t, e.Shutdown())
}

func TestEngineStatsReflectIndexAndTimeBounds(t *testing.T) {
	e := tempEngine(t)
	metricID := registerMetric(t, e, "steps")

	require.NoError(t, e.Write(chrntypes.Sample{Timestamp: 100, MetricID: metricID, Value: 1}))
	require.NoError(t, e.Write(chrntypes.Sample{Timestamp: 500, MetricID: metricID, Value: 2}))
	require.NoError(t, e.Flush())

	min, max, ok, err := e.TimeBounds()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(100), min)
	// One block was flushed, and the time index keys it by its earliest sample.
	require.Equal(t, int64(100), max)

	idxStats, err := e.IndexStats()
	require.NoError(t, err)
	require.Equal(t, 1, idxStats.SegmentsIndexed)
	require.Equal(t, 1, idxStats.MetricsIndexed)
}
