// Package segment implements the immutable segment file format: a 64-byte
// header, a sequence of appended compressed blocks, and a trailing footer
// describing block offsets.
package segment

import (
	"hash/crc32"

	"github.com/muddysheep/chronicle/chrnerr"
	"github.com/muddysheep/chronicle/internal/endian"
)

// CompressionType identifies the codec used for every block in a segment.
type CompressionType uint8

const (
	CompressionNone CompressionType = 0
	CompressionLZ4  CompressionType = 1
	CompressionS2   CompressionType = 2
	CompressionZstd CompressionType = 3
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionLZ4:
		return "LZ4"
	case CompressionS2:
		return "S2"
	case CompressionZstd:
		return "Zstd"
	default:
		return "Unknown"
	}
}

const (
	segmentMagic   = "CHRN"
	segmentVersion = uint16(1)
	// HeaderSize is the fixed on-disk size of Header, including its trailing CRC.
	HeaderSize = 64
	// BlockMetaSize is the fixed on-disk size of one BlockMeta footer entry.
	BlockMetaSize = 32
)

// Header is the segment's 64-byte, little-endian fixed layout:
//
//	0  magic        4B   "CHRN"
//	4  version      u16
//	6  block_count  u32
//	10 min_timestamp i64
//	18 max_timestamp i64
//	26 compression  u8
//	27 reserved     33B  (zero)
//	60 header_crc32 u32  (CRC of bytes 0..60)
type Header struct {
	Version      uint16
	BlockCount   uint32
	MinTimestamp int64
	MaxTimestamp int64
	Compression  CompressionType
}

// ToBytes serializes h into a 64-byte header block including its CRC.
func (h Header) ToBytes() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], segmentMagic)
	endian.LE.PutUint16(buf[4:6], segmentVersion)
	endian.LE.PutUint32(buf[6:10], h.BlockCount)
	endian.LE.PutUint64(buf[10:18], uint64(h.MinTimestamp))
	endian.LE.PutUint64(buf[18:26], uint64(h.MaxTimestamp))
	buf[26] = byte(h.Compression)
	// bytes 27..60 are the zeroed reserved region.
	crc := crc32.ChecksumIEEE(buf[:60])
	endian.LE.PutUint32(buf[60:64], crc)
	return buf
}

// HeaderFromBytes parses and verifies a 64-byte header, returning a
// Corruption error on magic/version/CRC mismatch.
func HeaderFromBytes(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, chrnerr.New(chrnerr.KindCorruption, "segment.HeaderFromBytes", nil)
	}
	if string(buf[0:4]) != segmentMagic {
		return Header{}, chrnerr.New(chrnerr.KindCorruption, "segment.HeaderFromBytes", nil)
	}
	version := endian.LE.Uint16(buf[4:6])
	if version != segmentVersion {
		return Header{}, chrnerr.New(chrnerr.KindCorruption, "segment.HeaderFromBytes", nil)
	}
	want := endian.LE.Uint32(buf[60:64])
	got := crc32.ChecksumIEEE(buf[:60])
	if want != got {
		return Header{}, chrnerr.New(chrnerr.KindCorruption, "segment.HeaderFromBytes", nil)
	}

	return Header{
		Version:      version,
		BlockCount:   endian.LE.Uint32(buf[6:10]),
		MinTimestamp: int64(endian.LE.Uint64(buf[10:18])),
		MaxTimestamp: int64(endian.LE.Uint64(buf[18:26])),
		Compression:  CompressionType(buf[26]),
	}, nil
}

// BlockMeta is one 32-byte footer entry describing a block's location and
// time bounds: offset u64 | size u32 | point_count u32 | min_ts i64 | max_ts i64.
type BlockMeta struct {
	Offset       uint64
	Size         uint32
	PointCount   uint32
	MinTimestamp int64
	MaxTimestamp int64
}

func (m BlockMeta) toBytes(buf []byte) {
	endian.LE.PutUint64(buf[0:8], m.Offset)
	endian.LE.PutUint32(buf[8:12], m.Size)
	endian.LE.PutUint32(buf[12:16], m.PointCount)
	endian.LE.PutUint64(buf[16:24], uint64(m.MinTimestamp))
	endian.LE.PutUint64(buf[24:32], uint64(m.MaxTimestamp))
}

func blockMetaFromBytes(buf []byte) BlockMeta {
	return BlockMeta{
		Offset:       endian.LE.Uint64(buf[0:8]),
		Size:         endian.LE.Uint32(buf[8:12]),
		PointCount:   endian.LE.Uint32(buf[12:16]),
		MinTimestamp: int64(endian.LE.Uint64(buf[16:24])),
		MaxTimestamp: int64(endian.LE.Uint64(buf[24:32])),
	}
}

// overlaps reports whether this block could contain a sample in r, using
// the same half-open comparison as Segment.Overlaps.
func (m BlockMeta) overlaps(start, end int64) bool {
	return m.MinTimestamp < end && m.MaxTimestamp >= start
}
