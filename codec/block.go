// Package codec implements the sample/block encoding described in the
// engine's storage format: stable-sort by timestamp, delta-encode
// timestamps from a base, intern tag strings into 16-bit index pairs,
// serialize with a compact binary layout, then compress with one of a
// handful of pluggable block compressors (None, LZ4, S2, Zstd) selected by
// CompressionType.
package codec

import (
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/muddysheep/chronicle/chrnerr"
	"github.com/muddysheep/chronicle/chrntypes"
	"github.com/muddysheep/chronicle/internal/endian"
	"github.com/muddysheep/chronicle/internal/pool"
)

// tagHash is the xxHash64 of a tag key/value string, used to key tagTable's
// collision-checked candidate lists.
func tagHash(s string) uint64 {
	return xxhash.Sum64String(s)
}

// MaxInternedStrings bounds the per-block string table: indices are 16-bit,
// so a block cannot reference more than 65536 distinct tag keys/values.
const MaxInternedStrings = 1 << 16

// tagTable interns tag key/value strings within one block, deduplicating
// repeats via an xxhash-keyed lookup so a block with many samples sharing
// tags doesn't re-scan the string list for every intern.
type tagTable struct {
	strings []string
	byHash  map[uint64][]int // hash -> candidate indices (collision-checked)
}

func newTagTable() *tagTable {
	return &tagTable{byHash: make(map[uint64][]int)}
}

func (t *tagTable) intern(s string) (uint16, error) {
	h := tagHash(s)
	for _, idx := range t.byHash[h] {
		if t.strings[idx] == s {
			return uint16(idx), nil
		}
	}
	if len(t.strings) >= MaxInternedStrings {
		return 0, chrnerr.New(chrnerr.KindSerialization, "codec.tagTable.intern", nil)
	}
	idx := len(t.strings)
	t.strings = append(t.strings, s)
	t.byHash[h] = append(t.byHash[h], idx)
	return uint16(idx), nil
}

// Compress encodes samples into a compressed block payload: stable sort by
// timestamp, delta-encode timestamps, intern tag strings, serialize, then
// compress the result with the codec named by kind.
func Compress(samples []chrntypes.Sample, kind CompressionType) ([]byte, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	c, err := compressorFor(kind)
	if err != nil {
		return nil, err
	}

	sorted := make([]chrntypes.Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	table := newTagTable()
	type pair struct{ k, v uint16 }
	pointTags := make([][]pair, len(sorted))

	for i, s := range sorted {
		if len(s.Tags) == 0 {
			continue
		}
		ps := make([]pair, 0, len(s.Tags))
		for k, v := range s.Tags {
			ki, err := table.intern(k)
			if err != nil {
				return nil, err
			}
			vi, err := table.intern(v)
			if err != nil {
				return nil, err
			}
			ps = append(ps, pair{ki, vi})
		}
		pointTags[i] = ps
	}

	buf := pool.GetBlockBuffer()
	defer pool.PutBlockBuffer(buf)

	var tmp [8]byte
	writeU32 := func(v uint32) {
		endian.LE.PutUint32(tmp[:4], v)
		buf.Write(tmp[:4])
	}
	writeU16 := func(v uint16) {
		endian.LE.PutUint16(tmp[:2], v)
		buf.Write(tmp[:2])
	}
	writeI64 := func(v int64) {
		endian.LE.PutUint64(tmp[:8], uint64(v))
		buf.Write(tmp[:8])
	}
	writeF64 := func(v float64) {
		endian.LE.PutUint64(tmp[:8], math.Float64bits(v))
		buf.Write(tmp[:8])
	}
	writeStr := func(s string) error {
		if len(s) > 255 {
			return chrnerr.New(chrnerr.KindSerialization, "codec.Compress", nil)
		}
		buf.Write([]byte{byte(len(s))})
		buf.Write([]byte(s))
		return nil
	}

	writeU32(uint32(len(sorted)))
	base := sorted[0].Timestamp
	writeI64(base)

	prev := base
	for _, s := range sorted {
		writeI64(s.Timestamp - prev)
		prev = s.Timestamp
	}
	for _, s := range sorted {
		writeU32(s.MetricID)
	}
	for _, s := range sorted {
		writeF64(s.Value)
	}

	writeU32(uint32(len(table.strings)))
	for _, s := range table.strings {
		if err := writeStr(s); err != nil {
			return nil, err
		}
	}

	for _, ps := range pointTags {
		writeU16(uint16(len(ps)))
		for _, p := range ps {
			writeU16(p.k)
			writeU16(p.v)
		}
	}

	return c.Compress(buf.Bytes())
}

// Decompress reverses Compress. kind must match the CompressionType the
// block was produced with; Decompress does not infer it. Resulting samples
// are in timestamp order.
func Decompress(data []byte, kind CompressionType) ([]chrntypes.Sample, error) {
	if len(data) == 0 {
		return nil, nil
	}
	c, err := compressorFor(kind)
	if err != nil {
		return nil, err
	}

	raw, err := c.Decompress(data)
	if err != nil {
		return nil, err
	}

	r := &reader{buf: raw}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	base, err := r.i64()
	if err != nil {
		return nil, err
	}

	deltas := make([]int64, count)
	for i := range deltas {
		d, err := r.i64()
		if err != nil {
			return nil, err
		}
		deltas[i] = d
	}
	metricIDs := make([]uint32, count)
	for i := range metricIDs {
		v, err := r.u32()
		if err != nil {
			return nil, err
		}
		metricIDs[i] = v
	}
	values := make([]float64, count)
	for i := range values {
		v, err := r.f64()
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	stringCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	strs := make([]string, stringCount)
	for i := range strs {
		s, err := r.str()
		if err != nil {
			return nil, err
		}
		strs[i] = s
	}

	samples := make([]chrntypes.Sample, count)
	ts := base
	for i := uint32(0); i < count; i++ {
		ts += deltas[i]
		tagPairCount, err := r.u16()
		if err != nil {
			return nil, err
		}
		var tags map[string]string
		if tagPairCount > 0 {
			tags = make(map[string]string, tagPairCount)
			for j := uint16(0); j < tagPairCount; j++ {
				ki, err := r.u16()
				if err != nil {
					return nil, err
				}
				vi, err := r.u16()
				if err != nil {
					return nil, err
				}
				if int(ki) >= len(strs) || int(vi) >= len(strs) {
					return nil, chrnerr.New(chrnerr.KindCorruption, "codec.Decompress", nil)
				}
				tags[strs[ki]] = strs[vi]
			}
		}
		samples[i] = chrntypes.Sample{
			Timestamp: ts,
			MetricID:  metricIDs[i],
			Value:     values[i],
			Tags:      tags,
		}
	}

	return samples, nil
}

// reader walks a decoded block payload sequentially, surfacing truncation
// as a Corruption error instead of panicking on an out-of-range slice.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return chrnerr.New(chrnerr.KindCorruption, "codec.reader", nil)
	}
	return nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := endian.LE.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := endian.LE.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) i64() (int64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := int64(endian.LE.Uint64(r.buf[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *reader) f64() (float64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := math.Float64frombits(endian.LE.Uint64(r.buf[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *reader) str() (string, error) {
	if err := r.need(1); err != nil {
		return "", err
	}
	n := int(r.buf[r.pos])
	r.pos++
	if err := r.need(n); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+n])
	r.pos += n
	return s, nil
}
