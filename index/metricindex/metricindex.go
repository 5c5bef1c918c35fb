// Package metricindex implements an in-memory metric_id -> set(segment_id)
// index with a zstd-compressed JSON snapshot for durability.
package metricindex

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/muddysheep/chronicle/chrnerr"
)

const snapshotVersion = 1

type snapshot struct {
	Version uint32             `json:"version"`
	Index   map[uint32][]uint32 `json:"index"`
}

// Index maps each metric id to the set of segment ids containing at least
// one block with that metric, giving O(1) segment-pruning lookups.
type Index struct {
	mu    sync.RWMutex
	path  string
	data  map[uint32]map[uint32]struct{}
	dirty bool
}

// Open loads an existing snapshot at dataDir/metric_index.json.zst, or
// starts empty if none exists yet.
func Open(dataDir string) (*Index, error) {
	path := filepath.Join(dataDir, "metric_index.json.zst")
	idx := &Index{path: path, data: make(map[uint32]map[uint32]struct{})}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, chrnerr.New(chrnerr.KindIO, "metricindex.Open", err)
	}

	decoded, err := decompressZstd(raw)
	if err != nil {
		return nil, chrnerr.New(chrnerr.KindSerialization, "metricindex.Open", err)
	}

	var snap snapshot
	if err := json.Unmarshal(decoded, &snap); err != nil {
		return nil, chrnerr.New(chrnerr.KindSerialization, "metricindex.Open", err)
	}
	for metricID, segments := range snap.Index {
		set := make(map[uint32]struct{}, len(segments))
		for _, s := range segments {
			set[s] = struct{}{}
		}
		idx.data[metricID] = set
	}
	return idx, nil
}

// AddSegment records that segmentID contains data for metricID.
func (idx *Index) AddSegment(metricID, segmentID uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	set, ok := idx.data[metricID]
	if !ok {
		set = make(map[uint32]struct{})
		idx.data[metricID] = set
	}
	if _, already := set[segmentID]; !already {
		set[segmentID] = struct{}{}
		idx.dirty = true
	}
}

// AddSegments is a batch form of AddSegment.
func (idx *Index) AddSegments(metricID uint32, segmentIDs []uint32) {
	for _, s := range segmentIDs {
		idx.AddSegment(metricID, s)
	}
}

// RemoveSegment removes segmentID from every metric's set, for when a
// segment is dropped, pruning any metric left with an empty set.
func (idx *Index) RemoveSegment(segmentID uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for metricID, set := range idx.data {
		if _, ok := set[segmentID]; ok {
			delete(set, segmentID)
			idx.dirty = true
		}
		if len(set) == 0 {
			delete(idx.data, metricID)
		}
	}
}

// GetSegments returns every segment id known to contain metricID.
func (idx *Index) GetSegments(metricID uint32) []uint32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set, ok := idx.data[metricID]
	if !ok {
		return nil
	}
	out := make([]uint32, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// HasMetric reports whether metricID is present in any segment.
func (idx *Index) HasMetric(metricID uint32) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set, ok := idx.data[metricID]
	return ok && len(set) > 0
}

// GetAllMetrics returns every indexed metric id.
func (idx *Index) GetAllMetrics() []uint32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]uint32, 0, len(idx.data))
	for m := range idx.data {
		out = append(out, m)
	}
	return out
}

// SegmentCount returns how many segments carry metricID.
func (idx *Index) SegmentCount(metricID uint32) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.data[metricID])
}

// MetricCount returns the number of distinct metrics indexed.
func (idx *Index) MetricCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.data)
}

// TotalSegments returns the number of distinct segment ids across every
// metric.
func (idx *Index) TotalSegments() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	all := make(map[uint32]struct{})
	for _, set := range idx.data {
		for s := range set {
			all[s] = struct{}{}
		}
	}
	return len(all)
}

// IsDirty reports whether there are unsaved changes.
func (idx *Index) IsDirty() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dirty
}

// Persist writes the snapshot if dirty, otherwise does nothing.
func (idx *Index) Persist() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.dirty {
		return nil
	}
	return idx.persistLocked()
}

// ForcePersist writes the snapshot regardless of the dirty flag.
func (idx *Index) ForcePersist() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.dirty = true
	return idx.persistLocked()
}

func (idx *Index) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(idx.path), 0o755); err != nil {
		return chrnerr.New(chrnerr.KindIO, "metricindex.persist", err)
	}

	snap := snapshot{Version: snapshotVersion, Index: make(map[uint32][]uint32, len(idx.data))}
	for metricID, set := range idx.data {
		segs := make([]uint32, 0, len(set))
		for s := range set {
			segs = append(segs, s)
		}
		snap.Index[metricID] = segs
	}

	encoded, err := json.Marshal(snap)
	if err != nil {
		return chrnerr.New(chrnerr.KindSerialization, "metricindex.persist", err)
	}
	compressed, err := compressZstd(encoded)
	if err != nil {
		return chrnerr.New(chrnerr.KindCompression, "metricindex.persist", err)
	}

	tmp := idx.path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return chrnerr.New(chrnerr.KindIO, "metricindex.persist", err)
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		return chrnerr.New(chrnerr.KindIO, "metricindex.persist", err)
	}
	idx.dirty = false
	return nil
}

func compressZstd(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decompressZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
