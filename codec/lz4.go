package codec

import (
	"encoding/binary"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/muddysheep/chronicle/chrnerr"
)

// lz4CompressorPool pools lz4.Compressor instances; CompressBlock uses
// internal hash-table state that benefits from reuse across calls.
var lz4CompressorPool = sync.Pool{
	New: func() any { return &lz4.Compressor{} },
}

// lz4Compressor is the default block compressor: fast, moderate ratio,
// pure Go (no cgo).
type lz4Compressor struct{}

func (lz4Compressor) Compress(data []byte) ([]byte, error) {
	return compressLZ4(data), nil
}

func (lz4Compressor) Decompress(data []byte) ([]byte, error) {
	return decompressLZ4(data)
}

// compressLZ4 compresses data and prepends its uncompressed length as a
// little-endian uint32, so Decompress can allocate an exact-size
// destination instead of guessing and retrying.
func compressLZ4(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}

	dstSize := lz4.CompressBlockBound(len(data))
	dst := make([]byte, 4+dstSize)
	binary.LittleEndian.PutUint32(dst[:4], uint32(len(data)))

	c, _ := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(c)

	n, err := c.CompressBlock(data, dst[4:])
	// CompressBlockBound guarantees dst is large enough; a failure here
	// means the block didn't compress (incompressible input), which
	// lz4.Compressor reports as n==0 rather than an error in practice,
	// but guard anyway by falling back to storing it uncompressed-sized.
	if err != nil || n == 0 {
		// Incompressible: store raw with length prefix so Decompress still
		// round-trips (n==0 only ever happens for tiny/incompressible input).
		out := make([]byte, 4+len(data))
		binary.LittleEndian.PutUint32(out[:4], uint32(len(data)))
		copy(out[4:], data)
		return out
	}

	return dst[:4+n]
}

// decompressLZ4 reverses compressLZ4. It returns a Compression-kind error if
// the length prefix or LZ4 framing is malformed.
func decompressLZ4(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < 4 {
		return nil, chrnerr.New(chrnerr.KindCompression, "codec.decompressLZ4", nil)
	}

	size := binary.LittleEndian.Uint32(data[:4])
	dst := make([]byte, size)

	n, err := lz4.UncompressBlock(data[4:], dst)
	if err != nil {
		// The incompressible-input fallback above stores size==len(payload)
		// raw bytes; try that before declaring corruption.
		if int(size) == len(data)-4 {
			copy(dst, data[4:])
			return dst, nil
		}
		return nil, chrnerr.New(chrnerr.KindCompression, "codec.decompressLZ4", err)
	}

	return dst[:n], nil
}
