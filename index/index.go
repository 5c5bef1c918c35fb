// Package index coordinates the three sub-indexes (time, metric, tag)
// behind a single facade whose lookups prune by time range first, then by
// a metric's known segments, then by tag intersection, narrowing a read to
// the minimal set of blocks. The engine's Query path does not call these
// lookups.
package index

import (
	"os"
	"path/filepath"

	"github.com/muddysheep/chronicle/chrntypes"
	"github.com/muddysheep/chronicle/index/metricindex"
	"github.com/muddysheep/chronicle/index/tagindex"
	"github.com/muddysheep/chronicle/index/timeindex"
)

// Config controls how the Manager's sub-indexes are constructed.
type Config struct {
	// EnableTags turns on the (memory/disk costing) inverted tag index.
	EnableTags bool
}

// DefaultConfig enables tag indexing, matching the original's default.
func DefaultConfig() Config { return Config{EnableTags: true} }

// Location identifies one block within one segment.
type Location struct {
	SegmentID uint32
	BlockIdx  uint32
}

// Stats summarizes the current size of every sub-index.
type Stats struct {
	TimeEntries     int64
	MetricsIndexed  int
	SegmentsIndexed int
	TagKeys         int
}

// Manager composes the time, metric, and tag indexes into one facade.
type Manager struct {
	time   *timeindex.Index
	metric *metricindex.Index
	tag    *tagindex.Index
	config Config
}

// Open creates or loads every sub-index rooted at dataDir/index.
func Open(dataDir string, config Config) (*Manager, error) {
	indexDir := filepath.Join(dataDir, "index")
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, err
	}

	timeIdx, err := timeindex.Open(indexDir)
	if err != nil {
		return nil, err
	}
	metricIdx, err := metricindex.Open(indexDir)
	if err != nil {
		return nil, err
	}

	var tagIdx *tagindex.Index
	if config.EnableTags {
		tagIdx, err = tagindex.Open(indexDir)
		if err != nil {
			return nil, err
		}
	} else {
		tagIdx = tagindex.Disabled()
	}

	return &Manager{time: timeIdx, metric: metricIdx, tag: tagIdx, config: config}, nil
}

// FindByTimeRange is the primary query path: a single B-tree range scan.
func (m *Manager) FindByTimeRange(r chrntypes.TimeRange) ([]Location, error) {
	locs, err := m.time.FindRange(r.Start, r.End)
	if err != nil {
		return nil, err
	}
	return fromTimeLocations(locs), nil
}

// FindSegmentsByMetric returns every segment known to carry metricID.
func (m *Manager) FindSegmentsByMetric(metricID uint32) []uint32 {
	return m.metric.GetSegments(metricID)
}

// FindByTag returns every location carrying key=value.
func (m *Manager) FindByTag(key, value string) []Location {
	return fromTagLocations(m.tag.Find(key, value))
}

// FindByTimeAndMetric narrows a time-range scan to segments known to
// carry metricID.
func (m *Manager) FindByTimeAndMetric(r chrntypes.TimeRange, metricID uint32) ([]Location, error) {
	segments := m.metric.GetSegments(metricID)
	if len(segments) == 0 {
		return nil, nil
	}
	allowed := make(map[uint32]struct{}, len(segments))
	for _, s := range segments {
		allowed[s] = struct{}{}
	}

	locs, err := m.time.FindRange(r.Start, r.End)
	if err != nil {
		return nil, err
	}

	var out []Location
	for _, l := range locs {
		if _, ok := allowed[l.SegmentID]; ok {
			out = append(out, Location{SegmentID: l.SegmentID, BlockIdx: l.BlockIdx})
		}
	}
	return out, nil
}

// FindByTimeMetricAndTags narrows a time-range scan by an optional metric
// id and an optional tag set, applying each filter only when non-empty.
func (m *Manager) FindByTimeMetricAndTags(r chrntypes.TimeRange, metricID *uint32, tags map[string]string) ([]Location, error) {
	rawLocs, err := m.time.FindRange(r.Start, r.End)
	if err != nil {
		return nil, err
	}
	locs := make(map[Location]struct{}, len(rawLocs))
	for _, l := range rawLocs {
		locs[Location{SegmentID: l.SegmentID, BlockIdx: l.BlockIdx}] = struct{}{}
	}

	if metricID != nil {
		segments := m.metric.GetSegments(*metricID)
		allowed := make(map[uint32]struct{}, len(segments))
		for _, s := range segments {
			allowed[s] = struct{}{}
		}
		for loc := range locs {
			if _, ok := allowed[loc.SegmentID]; !ok {
				delete(locs, loc)
			}
		}
	}

	if len(tags) > 0 && m.tag.IsEnabled() {
		tagLocs := m.tag.FindAll(tags)
		allowed := make(map[Location]struct{}, len(tagLocs))
		for _, l := range tagLocs {
			allowed[Location{SegmentID: l.SegmentID, BlockIdx: l.BlockIdx}] = struct{}{}
		}
		for loc := range locs {
			if _, ok := allowed[loc]; !ok {
				delete(locs, loc)
			}
		}
	}

	out := make([]Location, 0, len(locs))
	for loc := range locs {
		out = append(out, loc)
	}
	return out, nil
}

// FindFloor returns the block containing or preceding timestamp.
func (m *Manager) FindFloor(timestamp int64) (Location, bool, error) {
	l, ok, err := m.time.FindFloor(timestamp)
	return Location{SegmentID: l.SegmentID, BlockIdx: l.BlockIdx}, ok, err
}

// IndexSegment records every block boundary, metric, and (optionally) tag
// location for a freshly written segment in one call.
func (m *Manager) IndexSegment(segmentID uint32, boundaries []timeindex.BlockBoundary, metrics []uint32, tagsByBlock map[uint32]map[string]string) error {
	if err := m.time.InsertRange(segmentID, boundaries); err != nil {
		return err
	}
	for _, metricID := range metrics {
		m.metric.AddSegment(metricID, segmentID)
	}
	if m.tag.IsEnabled() {
		for blockIdx, tags := range tagsByBlock {
			loc := tagindex.Location{SegmentID: segmentID, BlockIdx: blockIdx}
			m.tag.AddTags(tags, loc)
		}
	}
	return nil
}

// IndexBlock records a single block's time boundary, metrics, and tags —
// a simpler API for incremental indexing during streaming writes.
func (m *Manager) IndexBlock(segmentID, blockIdx uint32, minTimestamp int64, metrics []uint32, tags map[string]string) error {
	if err := m.time.Insert(minTimestamp, segmentID, blockIdx); err != nil {
		return err
	}
	for _, metricID := range metrics {
		m.metric.AddSegment(metricID, segmentID)
	}
	if m.tag.IsEnabled() && len(tags) > 0 {
		m.tag.AddTags(tags, tagindex.Location{SegmentID: segmentID, BlockIdx: blockIdx})
	}
	return nil
}

// RemoveSegment deletes segmentID from every sub-index, for when a segment
// is dropped. Nothing in this module drops segments or calls it.
func (m *Manager) RemoveSegment(segmentID uint32) error {
	if err := m.time.RemoveSegment(segmentID); err != nil {
		return err
	}
	m.metric.RemoveSegment(segmentID)
	m.tag.RemoveSegment(segmentID)
	return nil
}

// Persist flushes every sub-index: a WAL checkpoint for the time index,
// and dirty-gated snapshots for the metric and tag indexes.
func (m *Manager) Persist() error {
	if err := m.time.Checkpoint(); err != nil {
		return err
	}
	if err := m.metric.Persist(); err != nil {
		return err
	}
	return m.tag.Persist()
}

// Optimize compacts the time index (VACUUM); the map-based sub-indexes
// need no analogous operation.
func (m *Manager) Optimize() error {
	return m.time.Optimize()
}

// Stats summarizes every sub-index's current size.
func (m *Manager) Stats() (Stats, error) {
	n, err := m.time.Count()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TimeEntries:     n,
		MetricsIndexed:  m.metric.MetricCount(),
		SegmentsIndexed: m.metric.TotalSegments(),
		TagKeys:         m.tag.KeyCount(),
	}, nil
}

// TimeBounds returns the min/max indexed timestamp, ok=false if empty.
func (m *Manager) TimeBounds() (min, max int64, ok bool, err error) {
	return m.time.TimeBounds()
}

// HasMetric reports whether metricID appears in any indexed segment.
func (m *Manager) HasMetric(metricID uint32) bool {
	return m.metric.HasMetric(metricID)
}

// GetTagKeys returns every known tag key.
func (m *Manager) GetTagKeys() []string { return m.tag.GetKeys() }

// GetTagValues returns every distinct value seen for key.
func (m *Manager) GetTagValues(key string) []string { return m.tag.GetValues(key) }

// TagsEnabled reports whether tag indexing is active.
func (m *Manager) TagsEnabled() bool { return m.config.EnableTags && m.tag.IsEnabled() }

// Close releases every sub-index's resources (currently only the time
// index holds an OS handle).
func (m *Manager) Close() error {
	return m.time.Close()
}

func fromTimeLocations(locs []timeindex.Location) []Location {
	out := make([]Location, len(locs))
	for i, l := range locs {
		out[i] = Location{SegmentID: l.SegmentID, BlockIdx: l.BlockIdx}
	}
	return out
}

func fromTagLocations(locs []tagindex.Location) []Location {
	out := make([]Location, len(locs))
	for i, l := range locs {
		out[i] = Location{SegmentID: l.SegmentID, BlockIdx: l.BlockIdx}
	}
	return out
}
