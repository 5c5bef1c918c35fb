package wal

import (
	"math"

	"github.com/muddysheep/chronicle/chrnerr"
	"github.com/muddysheep/chronicle/chrntypes"
	"github.com/muddysheep/chronicle/internal/endian"
)

// encodeSample is the WAL's own compact per-sample binary encoding. Unlike
// the block codec it has no tag interning table (a WAL record is one
// sample, so there is nothing to dedup against) and is not compressed,
// trading density for append-time simplicity.
func encodeSample(s chrntypes.Sample) []byte {
	size := 8 + 4 + 8 + 2
	for k, v := range s.Tags {
		size += 1 + len(k) + 1 + len(v)
	}
	buf := make([]byte, size)
	off := 0
	endian.LE.PutUint64(buf[off:], uint64(s.Timestamp))
	off += 8
	endian.LE.PutUint32(buf[off:], s.MetricID)
	off += 4
	endian.LE.PutUint64(buf[off:], math.Float64bits(s.Value))
	off += 8
	endian.LE.PutUint16(buf[off:], uint16(len(s.Tags)))
	off += 2
	for k, v := range s.Tags {
		buf[off] = byte(len(k))
		off++
		off += copy(buf[off:], k)
		buf[off] = byte(len(v))
		off++
		off += copy(buf[off:], v)
	}
	return buf
}

func decodeSample(buf []byte) (chrntypes.Sample, error) {
	if len(buf) < 22 {
		return chrntypes.Sample{}, chrnerr.New(chrnerr.KindSerialization, "wal.decodeSample", nil)
	}
	off := 0
	ts := int64(endian.LE.Uint64(buf[off:]))
	off += 8
	metricID := endian.LE.Uint32(buf[off:])
	off += 4
	value := math.Float64frombits(endian.LE.Uint64(buf[off:]))
	off += 8
	tagCount := endian.LE.Uint16(buf[off:])
	off += 2

	var tags map[string]string
	if tagCount > 0 {
		tags = make(map[string]string, tagCount)
		for i := uint16(0); i < tagCount; i++ {
			if off >= len(buf) {
				return chrntypes.Sample{}, chrnerr.New(chrnerr.KindSerialization, "wal.decodeSample", nil)
			}
			klen := int(buf[off])
			off++
			if off+klen > len(buf) {
				return chrntypes.Sample{}, chrnerr.New(chrnerr.KindSerialization, "wal.decodeSample", nil)
			}
			key := string(buf[off : off+klen])
			off += klen
			if off >= len(buf) {
				return chrntypes.Sample{}, chrnerr.New(chrnerr.KindSerialization, "wal.decodeSample", nil)
			}
			vlen := int(buf[off])
			off++
			if off+vlen > len(buf) {
				return chrntypes.Sample{}, chrnerr.New(chrnerr.KindSerialization, "wal.decodeSample", nil)
			}
			val := string(buf[off : off+vlen])
			off += vlen
			tags[key] = val
		}
	}

	return chrntypes.Sample{Timestamp: ts, MetricID: metricID, Value: value, Tags: tags}, nil
}
