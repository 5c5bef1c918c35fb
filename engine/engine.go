// Package engine implements the write path (Sample -> WAL -> buffer ->
// segment), the read path (Query -> buffer and overlapping segments ->
// decompress -> filter), and lifecycle management (Open/Flush/Shutdown)
// that tie together wal, segment, registry, and index into one embeddable
// store. Flush records every block in the index manager; Query does not
// consult it and picks segments by their header time bounds.
package engine

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muddysheep/chronicle/chrnerr"
	"github.com/muddysheep/chronicle/chrntypes"
	"github.com/muddysheep/chronicle/index"
	"github.com/muddysheep/chronicle/internal/chlog"
	"github.com/muddysheep/chronicle/internal/chmetrics"
	"github.com/muddysheep/chronicle/registry"
	"github.com/muddysheep/chronicle/segment"
	"github.com/muddysheep/chronicle/wal"
)

// Engine is the main embeddable storage engine: durable writes through a
// WAL, buffered accumulation, periodic compressed-segment flushes, and
// range queries over the buffer and every segment whose time bounds
// overlap the range.
type Engine struct {
	config Config
	log    *zap.Logger
	stats  *chmetrics.Collectors

	walMu sync.Mutex
	wal   *wal.WAL

	bufMu  sync.Mutex
	buffer []chrntypes.Sample

	metrics *registry.Registry

	stateMu          sync.Mutex
	segments         []*segment.Segment
	currentSegmentID uint32

	idx *index.Manager

	scheduler gocron.Scheduler
	shutdown  atomicBool
}

// small dependency-free atomic bool, since the only concurrency concern
// here is a single background job reading a flag the main goroutine sets
// once during Shutdown.
type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (b *atomicBool) set(v bool) { b.mu.Lock(); b.v = v; b.mu.Unlock() }
func (b *atomicBool) get() bool  { b.mu.Lock(); defer b.mu.Unlock(); return b.v }

// Open creates the data directory structure (if needed), recovers any
// WAL entries from a prior unclean shutdown, loads existing segments and
// the metric registry, opens the index, and starts the background flush
// job.
func Open(config Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = chlog.Nop()
	}
	if config.BlockSize <= 0 || config.FlushIntervalMillis <= 0 || config.MaxSegmentSize <= 0 {
		config = fillDefaults(config)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	for _, dir := range []string{config.DataDir, config.segmentsDir(), config.walDir(), config.metaDir(), config.indexDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, chrnerr.New(chrnerr.KindIO, "engine.Open", err)
		}
	}

	metrics, err := registry.Load(config.metricsPath())
	if err != nil {
		return nil, err
	}

	w, err := wal.Open(config.walPath(), config.WALSync, wal.DefaultBatchThresholdBytes, log)
	if err != nil {
		return nil, err
	}

	recovered, err := w.Recover()
	if err != nil {
		return nil, err
	}
	if len(recovered) > 0 {
		log.Info("recovered samples from write-ahead log", zap.Int("count", len(recovered)))
	}

	segments, maxSegmentID, err := loadSegments(config.segmentsDir(), log)
	if err != nil {
		return nil, err
	}

	idx, err := index.Open(config.DataDir, index.Config{EnableTags: config.EnableTagIndex})
	if err != nil {
		return nil, err
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, chrnerr.New(chrnerr.KindIO, "engine.Open", err)
	}

	e := &Engine{
		config:           config,
		log:              log,
		stats:            chmetrics.New(),
		wal:              w,
		buffer:           recovered,
		metrics:          metrics,
		segments:         segments,
		currentSegmentID: maxSegmentID + 1,
		idx:              idx,
		scheduler:        scheduler,
	}

	if len(recovered) > 0 {
		if err := e.Flush(); err != nil {
			return nil, err
		}
	}

	if _, err := scheduler.NewJob(
		gocron.DurationJob(time.Duration(config.FlushIntervalMillis)*time.Millisecond),
		gocron.NewTask(e.backgroundFlush),
	); err != nil {
		return nil, chrnerr.New(chrnerr.KindIO, "engine.Open", err)
	}
	scheduler.Start()

	return e, nil
}

func fillDefaults(c Config) Config {
	d := DefaultConfig(c.DataDir)
	if c.BlockSize > 0 {
		d.BlockSize = c.BlockSize
	}
	if c.FlushIntervalMillis > 0 {
		d.FlushIntervalMillis = c.FlushIntervalMillis
	}
	if c.MaxSegmentSize > 0 {
		d.MaxSegmentSize = c.MaxSegmentSize
	}
	d.Compression = c.Compression
	d.WALSync = c.WALSync
	d.EnableTagIndex = c.EnableTagIndex
	return d
}

func loadSegments(dir string, log *zap.Logger) ([]*segment.Segment, uint32, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, chrnerr.New(chrnerr.KindIO, "engine.loadSegments", err)
	}

	var segments []*segment.Segment
	var maxID uint32
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".dat" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		seg, err := segment.Open(path)
		if err != nil {
			log.Warn("failed to open segment, skipping", zap.String("path", path), zap.Error(err))
			continue
		}
		if id, err := segment.ID(path); err == nil && id > maxID {
			maxID = id
		}
		segments = append(segments, seg)
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Header().MinTimestamp < segments[j].Header().MinTimestamp
	})

	log.Info("loaded segments", zap.Int("count", len(segments)))
	return segments, maxID, nil
}

func (e *Engine) backgroundFlush() {
	if e.shutdown.get() {
		return
	}
	e.bufMu.Lock()
	empty := len(e.buffer) == 0
	e.bufMu.Unlock()
	if empty {
		return
	}
	if err := e.Flush(); err != nil {
		e.stats.FlushErrors.Inc()
		e.log.Error("background flush failed", zap.Error(err))
	}
}

// RegisterMetric adds metric to the registry, persisting immediately. If a
// validation range is configured, its bounds are checked for internal
// consistency (MinValue must not exceed MaxValue) before the metric is
// accepted.
func (e *Engine) RegisterMetric(m chrntypes.Metric) (uint32, error) {
	if m.MinValue != nil {
		if err := m.ValidateValue(*m.MinValue); err != nil {
			return 0, err
		}
	}
	if m.MaxValue != nil {
		if err := m.ValidateValue(*m.MaxValue); err != nil {
			return 0, err
		}
	}
	return e.metrics.Register(m)
}

// GetMetric returns the metric registered under name.
func (e *Engine) GetMetric(name string) (chrntypes.Metric, bool) {
	return e.metrics.GetByName(name)
}

// GetMetrics returns every registered metric.
func (e *Engine) GetMetrics() []chrntypes.Metric {
	return e.metrics.All()
}

// Write validates and durably appends a single sample: WAL first, then
// the in-memory buffer, flushing immediately if the buffer has grown
// past the configured block size.
func (e *Engine) Write(s chrntypes.Sample) error {
	m, ok := e.metrics.GetByID(s.MetricID)
	if !ok {
		return chrnerr.New(chrnerr.KindMetricNotFound, "Engine.Write", nil)
	}
	if err := m.ValidateValue(s.Value); err != nil {
		return err
	}

	e.walMu.Lock()
	err := e.wal.Append(s)
	e.walMu.Unlock()
	if err != nil {
		return err
	}

	e.bufMu.Lock()
	e.buffer = append(e.buffer, s)
	size := 0
	for _, sm := range e.buffer {
		size += sm.EstimatedSize()
	}
	shouldFlush := size >= e.config.BlockSize
	e.bufMu.Unlock()

	e.stats.WritesTotal.Inc()

	if shouldFlush {
		return e.Flush()
	}
	return nil
}

// WriteBatch validates and durably appends every sample in one WAL
// transaction, flushing if the resulting buffer crosses the block-size
// threshold.
func (e *Engine) WriteBatch(samples []chrntypes.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	for _, s := range samples {
		m, ok := e.metrics.GetByID(s.MetricID)
		if !ok {
			return chrnerr.New(chrnerr.KindMetricNotFound, "Engine.WriteBatch", nil)
		}
		if err := m.ValidateValue(s.Value); err != nil {
			return err
		}
	}

	e.walMu.Lock()
	err := e.wal.AppendBatch(samples)
	e.walMu.Unlock()
	if err != nil {
		return err
	}

	e.bufMu.Lock()
	e.buffer = append(e.buffer, samples...)
	size := 0
	for _, sm := range e.buffer {
		size += sm.EstimatedSize()
	}
	shouldFlush := size >= e.config.BlockSize
	e.bufMu.Unlock()

	e.stats.WritesTotal.Add(float64(len(samples)))

	if shouldFlush {
		return e.Flush()
	}
	return nil
}

// Flush drains the write buffer into the active segment (rotating to a
// new one past MaxSegmentSize), updates every index, and truncates the
// WAL now that the data is durable elsewhere.
func (e *Engine) Flush() error {
	e.bufMu.Lock()
	points := e.buffer
	e.buffer = nil
	e.bufMu.Unlock()

	if len(points) == 0 {
		return nil
	}

	e.log.Debug("flushing buffer to segment", zap.Int("count", len(points)))

	minTS := points[0].Timestamp
	metricSet := make(map[uint32]struct{})
	allTags := make(map[string]string)
	for _, p := range points {
		if p.Timestamp < minTS {
			minTS = p.Timestamp
		}
		metricSet[p.MetricID] = struct{}{}
		for k, v := range p.Tags {
			allTags[k] = v
		}
	}
	metrics := make([]uint32, 0, len(metricSet))
	for m := range metricSet {
		metrics = append(metrics, m)
	}

	e.stateMu.Lock()
	segmentID, blockIdx, err := e.appendToCurrentSegmentLocked(points)
	e.stateMu.Unlock()
	if err != nil {
		return err
	}

	if err := e.idx.IndexBlock(segmentID, blockIdx, minTS, metrics, allTags); err != nil {
		return err
	}

	e.walMu.Lock()
	err = e.wal.Truncate()
	e.walMu.Unlock()
	if err != nil {
		return err
	}

	e.stats.FlushTotal.Inc()
	return nil
}

func (e *Engine) appendToCurrentSegmentLocked(points []chrntypes.Sample) (segmentID uint32, blockIdx uint32, err error) {
	segmentPath := filepath.Join(e.config.segmentsDir(), segment.FileName(e.currentSegmentID))

	seg := e.findOpenSegment(segmentPath)
	if seg == nil {
		if _, statErr := os.Stat(segmentPath); statErr == nil {
			seg, err = segment.Open(segmentPath)
		} else {
			seg, err = segment.Create(segmentPath, e.config.Compression)
		}
		if err != nil {
			return 0, 0, err
		}
		e.segments = append(e.segments, seg)
	}

	blockIdx = uint32(seg.BlockCount())
	segmentID = e.currentSegmentID

	if err := seg.AppendBlock(points); err != nil {
		return 0, 0, err
	}

	size, err := seg.Size()
	if err != nil {
		return 0, 0, err
	}

	if size >= e.config.MaxSegmentSize {
		e.log.Info("rotating segment", zap.Uint32("segment_id", e.currentSegmentID), zap.Int64("size", size))
		e.currentSegmentID++
	}

	sort.Slice(e.segments, func(i, j int) bool {
		return e.segments[i].Header().MinTimestamp < e.segments[j].Header().MinTimestamp
	})

	return segmentID, blockIdx, nil
}

func (e *Engine) findOpenSegment(path string) *segment.Segment {
	for _, existing := range e.segments {
		if existing.Path() == path {
			return existing
		}
	}
	return nil
}

// Query returns every sample in range, including unflushed buffer
// contents, filtered by the optional filter and sorted by timestamp. r
// must have Start < End; a zero-width or inverted range is rejected. A
// block that fails to read or verify is logged and skipped, and the
// samples of the segment's other blocks are still returned.
func (e *Engine) Query(r chrntypes.TimeRange, filter *chrntypes.QueryFilter) ([]chrntypes.Sample, error) {
	if r.Start >= r.End {
		return nil, chrnerr.New(chrnerr.KindInvalidTimeRange, "Engine.Query", nil)
	}

	var results []chrntypes.Sample

	e.bufMu.Lock()
	for _, p := range e.buffer {
		if r.Contains(p.Timestamp) && e.matches(filter, p) {
			results = append(results, p)
		}
	}
	e.bufMu.Unlock()

	e.stateMu.Lock()
	for _, seg := range e.segments {
		if !seg.Overlaps(r.Start, r.End) {
			continue
		}
		points, err := seg.ReadRange(r.Start, r.End)
		if err != nil {
			// Rescan block by block, logging and skipping each block that fails.
			points = nil
			for i := 0; i < seg.BlockCount(); i++ {
				block, blockErr := seg.ReadBlock(i)
				if blockErr != nil {
					e.log.Warn("skipping unreadable block", zap.String("path", seg.Path()), zap.Int("block", i), zap.Error(blockErr))
					continue
				}
				for _, p := range block {
					if r.Contains(p.Timestamp) {
						points = append(points, p)
					}
				}
			}
		}
		for _, p := range points {
			if e.matches(filter, p) {
				results = append(results, p)
			}
		}
	}
	e.stateMu.Unlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Timestamp < results[j].Timestamp })

	e.stats.QueriesTotal.Inc()
	return results, nil
}

func (e *Engine) matches(filter *chrntypes.QueryFilter, s chrntypes.Sample) bool {
	if filter == nil {
		return true
	}
	m, _ := e.metrics.GetByID(s.MetricID)
	return filter.Matches(s, m)
}

// QueryMetric queries by metric name, a convenience wrapper over Query.
func (e *Engine) QueryMetric(metricName string, r chrntypes.TimeRange) ([]chrntypes.Sample, error) {
	m, ok := e.metrics.GetByName(metricName)
	if !ok {
		return nil, chrnerr.New(chrnerr.KindMetricNotFound, "Engine.QueryMetric", nil)
	}
	id := m.ID
	return e.Query(r, &chrntypes.QueryFilter{MetricID: &id})
}

// Stats reports the engine's current in-memory and on-disk footprint.
func (e *Engine) Stats() (Stats, error) {
	e.stateMu.Lock()
	segmentCount := len(e.segments)
	var totalPoints uint64
	var storageSize int64
	for _, seg := range e.segments {
		totalPoints += uint64(seg.PointCount())
		if sz, err := seg.Size(); err == nil {
			storageSize += sz
		}
	}
	e.stateMu.Unlock()

	e.bufMu.Lock()
	bufferPoints := len(e.buffer)
	e.bufMu.Unlock()

	e.walMu.Lock()
	walEntries := e.wal.EntryCount()
	e.walMu.Unlock()

	e.stats.SegmentCount.Set(float64(segmentCount))
	e.stats.TotalPoints.Set(float64(totalPoints))
	e.stats.BufferPoints.Set(float64(bufferPoints))
	e.stats.WALEntries.Set(float64(walEntries))
	e.stats.StorageBytes.Set(float64(storageSize))

	return Stats{
		SegmentCount:     segmentCount,
		TotalPoints:      totalPoints,
		BufferPoints:     bufferPoints,
		WALEntries:       walEntries,
		StorageSizeBytes: storageSize,
	}, nil
}

// IndexStats reports the size of every sub-index.
func (e *Engine) IndexStats() (index.Stats, error) { return e.idx.Stats() }

// TimeBounds returns the smallest and largest key in the time index. Each
// flushed block is keyed by its earliest sample timestamp, so max is the
// start of the latest block, not its last sample.
func (e *Engine) TimeBounds() (min, max int64, ok bool, err error) { return e.idx.TimeBounds() }

// DataDir returns the engine's root data directory.
func (e *Engine) DataDir() string { return e.config.DataDir }

// Metrics exposes the Prometheus collectors for the embedder to register.
func (e *Engine) Metrics() *chmetrics.Collectors { return e.stats }

// Shutdown stops the background flush job, performs a final flush,
// syncs the WAL, and persists every index, aggregating every error that
// occurs along the way.
func (e *Engine) Shutdown() error {
	e.shutdown.set(true)

	var errs error
	if err := e.scheduler.Shutdown(); err != nil {
		errs = multierr.Append(errs, chrnerr.New(chrnerr.KindIO, "Engine.Shutdown", err))
	}
	if err := e.Flush(); err != nil {
		errs = multierr.Append(errs, err)
	}

	e.walMu.Lock()
	syncErr := e.wal.Sync()
	e.walMu.Unlock()
	if syncErr != nil {
		errs = multierr.Append(errs, syncErr)
	}

	if err := e.idx.Persist(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := e.idx.Close(); err != nil {
		errs = multierr.Append(errs, err)
	}

	e.stateMu.Lock()
	for _, seg := range e.segments {
		if err := seg.Close(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	e.stateMu.Unlock()

	return errs
}
