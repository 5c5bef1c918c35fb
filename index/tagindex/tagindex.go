// Package tagindex implements an inverted index over "key:value" tag
// pairs, mapping each pair to the set of block locations carrying it.
// Tag indexing is optional per deployment; a Disabled index is a safe
// no-op that every call can go through unconditionally.
package tagindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/muddysheep/chronicle/chrnerr"
)

// Location identifies one block within one segment.
type Location struct {
	SegmentID uint32 `json:"segment_id"`
	BlockIdx  uint32 `json:"block_idx"`
}

const snapshotVersion = 1

type snapshotData struct {
	Version uint32                `json:"version"`
	Keys    []string              `json:"keys"`
	Index   map[string][]Location `json:"index"`
}

// Index is an in-memory inverted tag index with an optional zstd-compressed
// JSON snapshot for durability.
type Index struct {
	mu      sync.RWMutex
	path    string
	index   map[string]map[Location]struct{}
	keys    map[string]struct{}
	dirty   bool
	enabled bool
}

// Open loads or creates an enabled tag index at dataDir/tag_index.json.zst.
func Open(dataDir string) (*Index, error) {
	path := filepath.Join(dataDir, "tag_index.json.zst")
	idx := &Index{
		path:    path,
		index:   make(map[string]map[Location]struct{}),
		keys:    make(map[string]struct{}),
		enabled: true,
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, chrnerr.New(chrnerr.KindIO, "tagindex.Open", err)
	}

	decoded, err := decompressZstd(raw)
	if err != nil {
		return nil, chrnerr.New(chrnerr.KindSerialization, "tagindex.Open", err)
	}
	var snap snapshotData
	if err := json.Unmarshal(decoded, &snap); err != nil {
		return nil, chrnerr.New(chrnerr.KindSerialization, "tagindex.Open", err)
	}
	for _, k := range snap.Keys {
		idx.keys[k] = struct{}{}
	}
	for tagKey, locs := range snap.Index {
		set := make(map[Location]struct{}, len(locs))
		for _, l := range locs {
			set[l] = struct{}{}
		}
		idx.index[tagKey] = set
	}
	return idx, nil
}

// Disabled returns a no-op tag index: every mutation and lookup is a no-op
// or empty result.
func Disabled() *Index {
	return &Index{index: make(map[string]map[Location]struct{}), keys: make(map[string]struct{}), enabled: false}
}

// IsEnabled reports whether this index records and serves lookups.
func (idx *Index) IsEnabled() bool { return idx.enabled }

func tagKey(key, value string) string { return key + ":" + value }

// Add records that location carries tag key=value.
func (idx *Index) Add(key, value string, loc Location) {
	if !idx.enabled {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.keys[key] = struct{}{}

	tk := tagKey(key, value)
	set, ok := idx.index[tk]
	if !ok {
		set = make(map[Location]struct{})
		idx.index[tk] = set
	}
	if _, already := set[loc]; !already {
		set[loc] = struct{}{}
		idx.dirty = true
	}
}

// AddTags is a batch form of Add over a tag map.
func (idx *Index) AddTags(tags map[string]string, loc Location) {
	for k, v := range tags {
		idx.Add(k, v, loc)
	}
}

// Find returns every location recorded for key=value.
func (idx *Index) Find(key, value string) []Location {
	if !idx.enabled {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return setToSlice(idx.index[tagKey(key, value)])
}

// FindAny returns the union of locations across every value for key.
func (idx *Index) FindAny(key string, values []string) []Location {
	if !idx.enabled {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	result := make(map[Location]struct{})
	for _, v := range values {
		for loc := range idx.index[tagKey(key, v)] {
			result[loc] = struct{}{}
		}
	}
	return setToSlice(result)
}

// FindAll returns the intersection of locations across every given
// key=value pair.
func (idx *Index) FindAll(tags map[string]string) []Location {
	if !idx.enabled || len(tags) == 0 {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var result map[Location]struct{}
	for k, v := range tags {
		cur := idx.index[tagKey(k, v)]
		if result == nil {
			result = make(map[Location]struct{}, len(cur))
			for loc := range cur {
				result[loc] = struct{}{}
			}
			continue
		}
		next := make(map[Location]struct{})
		for loc := range result {
			if _, ok := cur[loc]; ok {
				next[loc] = struct{}{}
			}
		}
		result = next
	}
	return setToSlice(result)
}

// GetValues returns every distinct value seen for key.
func (idx *Index) GetValues(key string) []string {
	if !idx.enabled {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	prefix := key + ":"
	var out []string
	for tk := range idx.index {
		if strings.HasPrefix(tk, prefix) {
			out = append(out, tk[len(prefix):])
		}
	}
	return out
}

// GetKeys returns every known tag key.
func (idx *Index) GetKeys() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.keys))
	for k := range idx.keys {
		out = append(out, k)
	}
	return out
}

// HasKey reports whether key has ever been recorded.
func (idx *Index) HasKey(key string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.keys[key]
	return ok
}

// RemoveSegment drops every location belonging to segmentID, pruning any
// tag value left with no locations.
func (idx *Index) RemoveSegment(segmentID uint32) {
	if !idx.enabled {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for tk, locs := range idx.index {
		for loc := range locs {
			if loc.SegmentID == segmentID {
				delete(locs, loc)
				idx.dirty = true
			}
		}
		if len(locs) == 0 {
			delete(idx.index, tk)
		}
	}
}

// RemoveLocation drops loc from every tag value it appears under.
func (idx *Index) RemoveLocation(loc Location) {
	if !idx.enabled {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for tk, locs := range idx.index {
		if _, ok := locs[loc]; ok {
			delete(locs, loc)
			idx.dirty = true
		}
		if len(locs) == 0 {
			delete(idx.index, tk)
		}
	}
}

// TagCount returns the number of distinct key:value combinations indexed.
func (idx *Index) TagCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.index)
}

// KeyCount returns the number of distinct tag keys.
func (idx *Index) KeyCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.keys)
}

// LocationCount sums the number of location entries across every tag
// value (a location tagged two ways counts twice).
func (idx *Index) LocationCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n := 0
	for _, locs := range idx.index {
		n += len(locs)
	}
	return n
}

// Persist writes the snapshot if dirty and enabled.
func (idx *Index) Persist() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.enabled || !idx.dirty {
		return nil
	}
	return idx.persistLocked()
}

// ForcePersist writes the snapshot regardless of the dirty flag.
func (idx *Index) ForcePersist() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.enabled {
		return nil
	}
	idx.dirty = true
	return idx.persistLocked()
}

func (idx *Index) persistLocked() error {
	if idx.path == "" {
		return chrnerr.New(chrnerr.KindConfig, "tagindex.persist", fmt.Errorf("no snapshot path configured"))
	}
	if err := os.MkdirAll(filepath.Dir(idx.path), 0o755); err != nil {
		return chrnerr.New(chrnerr.KindIO, "tagindex.persist", err)
	}

	snap := snapshotData{Version: snapshotVersion, Index: make(map[string][]Location, len(idx.index))}
	for k := range idx.keys {
		snap.Keys = append(snap.Keys, k)
	}
	for tk, locs := range idx.index {
		snap.Index[tk] = setToSlice(locs)
	}

	encoded, err := json.Marshal(snap)
	if err != nil {
		return chrnerr.New(chrnerr.KindSerialization, "tagindex.persist", err)
	}
	compressed, err := compressZstd(encoded)
	if err != nil {
		return chrnerr.New(chrnerr.KindCompression, "tagindex.persist", err)
	}

	tmp := idx.path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return chrnerr.New(chrnerr.KindIO, "tagindex.persist", err)
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		return chrnerr.New(chrnerr.KindIO, "tagindex.persist", err)
	}
	idx.dirty = false
	return nil
}

func setToSlice(set map[Location]struct{}) []Location {
	if len(set) == 0 {
		return nil
	}
	out := make([]Location, 0, len(set))
	for loc := range set {
		out = append(out, loc)
	}
	return out
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
